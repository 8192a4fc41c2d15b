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

// Package containers keeps a cache of container metadata read from the
// Docker containers directory, so metric samples can be labeled with the
// container's name, image and labels without talking to the Docker daemon.
package containers

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// descriptorFile is the per-container descriptor Docker maintains under
// <containers-dir>/<id>/.
const descriptorFile = "config.v2.json"

// Container is the subset of a Docker container descriptor the exporter
// cares about.
type Container struct {
	ID     string `json:"ID"`
	Name   string `json:"Name"`
	Config Config `json:"Config"`
}

type Config struct {
	Image  string            `json:"Image"`
	Labels map[string]string `json:"Labels"`
}

type storeMetrics struct {
	refreshes     prometheus.Counter
	parseFailures prometheus.Counter
	size          prometheus.Gauge
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	return &storeMetrics{
		refreshes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dockerprom_metadata_refreshes_total",
			Help: "Number of container metadata directory rescans.",
		}),
		parseFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dockerprom_metadata_parse_failures_total",
			Help: "Number of container descriptor files that failed to parse.",
		}),
		size: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dockerprom_metadata_containers",
			Help: "Number of containers currently held in the metadata cache.",
		}),
	}
}

// Store maps container IDs to their metadata. The single mutex covers
// reads, miss-triggered refreshes and full rescans, so readers never see a
// partially rebuilt mapping. Refreshes are throttled by minRefresh and the
// mapping is cleared outright when it outgrows maxEntries; the following
// rescan rebuilds it.
type Store struct {
	logger  log.Logger
	dir     string
	metrics *storeMetrics

	minRefresh time.Duration
	maxEntries int

	mtx         sync.Mutex
	byID        map[string]Container
	lastRefresh time.Time

	now func() time.Time
}

func NewStore(logger log.Logger, reg prometheus.Registerer, dir string, minRefresh time.Duration, maxEntries int) *Store {
	return &Store{
		logger:     logger,
		dir:        dir,
		metrics:    newStoreMetrics(reg),
		minRefresh: minRefresh,
		maxEntries: maxEntries,
		byID:       make(map[string]Container),
		now:        time.Now,
	}
}

// Lookup returns the metadata for a container ID. A miss triggers one
// throttled rescan before giving up; a miss after that is normal, the
// container may simply be gone already.
func (s *Store) Lookup(id string) (Container, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	c, ok := s.byID[id]
	if !ok {
		s.refreshLocked(false)
		c, ok = s.byID[id]
	}
	return c, ok
}

// Refresh rescans the containers directory. Unless forced, it is a no-op
// when the last attempt was less than the minimum refresh interval ago.
func (s *Store) Refresh(force bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.refreshLocked(force)
}

// size returns the number of cached containers.
func (s *Store) size() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.byID)
}

func (s *Store) refreshLocked(force bool) {
	if !force && s.minRefresh > 0 && s.now().Sub(s.lastRefresh) < s.minRefresh {
		return
	}
	s.lastRefresh = s.now()

	level.Debug(s.logger).Log("msg", "refreshing container metadata")

	if len(s.byID) > s.maxEntries {
		// Crude anti-memory-leak mechanism: drop everything and let the
		// rescan below repopulate the live containers.
		level.Info(s.logger).Log("msg", "container metadata cache has grown too large, clearing it out", "entries", len(s.byID))
		s.byID = make(map[string]Container)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to read containers directory", "dir", s.dir, "err", err)
		return
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		c, err := readDescriptor(filepath.Join(s.dir, entry.Name(), descriptorFile))
		if err != nil {
			s.metrics.parseFailures.Inc()
			level.Error(s.logger).Log("msg", "failed to parse container descriptor", "container", entry.Name(), "err", err)
			continue
		}
		s.byID[c.ID] = c
		count++
	}

	s.metrics.refreshes.Inc()
	s.metrics.size.Set(float64(len(s.byID)))
	level.Info(s.logger).Log("msg", "refreshed container metadata", "containers", count)
}

func readDescriptor(path string) (Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return Container{}, err
	}
	defer f.Close()

	var c Container
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return Container{}, err
	}
	return c, nil
}
