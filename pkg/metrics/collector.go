// Copyright 2024 The Dockerprom Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package metrics reads per-container resource usage out of the cgroup
// filesystem and renders it as Prometheus text exposition, one metric
// family per resource, labeled with container metadata.
package metrics

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/sync/errgroup"

	"github.com/nikolabura/dockerprom/pkg/cgroup"
	"github.com/nikolabura/dockerprom/pkg/containers"
	"github.com/nikolabura/dockerprom/pkg/labels"
)

// sample is one raw reading for one container. It only lives for the
// duration of a single scrape.
type sample struct {
	id    string
	value float64
}

type collectorMetrics struct {
	scrapes        prometheus.Counter
	scrapeErrors   prometheus.Counter
	scrapeDuration prometheus.Histogram
}

func newCollectorMetrics(reg prometheus.Registerer) *collectorMetrics {
	return &collectorMetrics{
		scrapes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dockerprom_scrapes_total",
			Help: "Number of container metric scrapes served.",
		}),
		scrapeErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dockerprom_scrape_errors_total",
			Help: "Number of container metric scrapes that failed.",
		}),
		scrapeDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "dockerprom_scrape_duration_seconds",
			Help:    "Time spent collecting and rendering container metrics.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Collector walks the resolved cgroup directories on every scrape and turns
// what it finds into exposition text. It holds no per-scrape state; the
// metadata store is the only shared mutable resource it touches.
type Collector struct {
	logger  log.Logger
	env     cgroup.Environment
	store   *containers.Store
	policy  labels.Policy
	metrics *collectorMetrics
}

func NewCollector(logger log.Logger, reg prometheus.Registerer, env cgroup.Environment, store *containers.Store, policy labels.Policy) *Collector {
	return &Collector{
		logger:  logger,
		env:     env,
		store:   store,
		policy:  policy,
		metrics: newCollectorMetrics(reg),
	}
}

// Collect performs one scrape: it reads all three resources, joins each
// sample with container metadata, and renders the metric families in a
// fixed order. A resource whose base directory cannot be listed fails the
// whole scrape; per-container read or parse failures only cost that
// container its sample.
func (c *Collector) Collect(ctx context.Context) (string, error) {
	start := time.Now()
	c.metrics.scrapes.Inc()

	var (
		memory             []sample
		cpuUser, cpuSystem []sample
		ioRead, ioWrite    []sample
	)

	// The readers share nothing but the immutable environment, so they can
	// run against each other freely.
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		memory, err = c.readMemory()
		return err
	})
	g.Go(func() error {
		var err error
		cpuUser, cpuSystem, err = c.readCPU()
		return err
	})
	g.Go(func() error {
		var err error
		ioRead, ioWrite, err = c.readBlkio()
		return err
	})
	if err := g.Wait(); err != nil {
		c.metrics.scrapeErrors.Inc()
		return "", err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, fam := range []*dto.MetricFamily{
		c.family(memoryFamily, memory),
		c.family(cpuUserFamily, cpuUser),
		c.family(cpuSystemFamily, cpuSystem),
		c.family(blkioReadFamily, ioRead),
		c.family(blkioWriteFamily, ioWrite),
	} {
		if len(fam.Metric) == 0 {
			// The text encoder rejects families without samples, but every
			// family's header block still appears on every scrape, even
			// with no containers running.
			fmt.Fprintf(&buf, "# HELP %s %s\n# TYPE %s %s\n",
				fam.GetName(), fam.GetHelp(), fam.GetName(), strings.ToLower(fam.GetType().String()))
			continue
		}
		if err := enc.Encode(fam); err != nil {
			c.metrics.scrapeErrors.Inc()
			return "", fmt.Errorf("failed to encode metric family %s: %w", fam.GetName(), err)
		}
	}

	c.metrics.scrapeDuration.Observe(time.Since(start).Seconds())
	return buf.String(), nil
}

// containerDirs lists the base directory of a resource and keeps only the
// entries that are container cgroup directories, returning their names and
// extracted IDs.
func (c *Collector) containerDirs(resource string) (string, []containerDir, error) {
	base := c.env.ResourcePath(resource)
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read %s cgroup directory %s: %w", resource, base, err)
	}

	var dirs []containerDir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, ok := c.env.ContainerID(entry.Name())
		if !ok {
			continue
		}
		dirs = append(dirs, containerDir{name: entry.Name(), id: id})
	}
	return base, dirs, nil
}

type containerDir struct {
	name string
	id   string
}

// readUint reads a file holding a single unsigned integer, the common
// grammar of cgroup accounting files.
func readUint(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimRight(string(b), "\n"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return v, nil
}
