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

// dockerprom is a lightweight Prometheus exporter for Docker container
// metrics. It needs no Docker socket access or special privilege: metrics
// come from the cgroup filesystem and container metadata from the Docker
// containers directory.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/common-nighthawk/go-figure"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	okrun "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/nikolabura/dockerprom/pkg/buildinfo"
	"github.com/nikolabura/dockerprom/pkg/cgroup"
	"github.com/nikolabura/dockerprom/pkg/containers"
	"github.com/nikolabura/dockerprom/pkg/labels"
	"github.com/nikolabura/dockerprom/pkg/logger"
	"github.com/nikolabura/dockerprom/pkg/metrics"
	"github.com/nikolabura/dockerprom/pkg/server"
)

type flags struct {
	LogLevel  string `default:"info"   enum:"error,warn,info,debug" help:"Log level."`
	LogFormat string `default:"logfmt" enum:"logfmt,json"           help:"Log format."`
	Version   bool   `help:"Show application version."`

	HTTPAddress string `default:"127.0.0.1:3000" env:"HTTP_ADDRESS" help:"Address to bind the HTTP server to. Defaults to localhost only; use [::]:3000 to listen on all addresses."`

	CgroupfsDir   string `default:"/sys/fs/cgroup/"             env:"CGROUPFS_DIR"   help:"Path to the cgroup filesystem."`
	ContainersDir string `default:"/var/lib/docker/containers/" env:"CONTAINERS_DIR" help:"Path to the Docker containers directory."`

	CgroupVersion string `default:"auto" enum:"auto,v1,v2"            env:"CGROUP_VERSION" help:"Override cgroup version detection (v1 or v2)."`
	CgroupDriver  string `default:"auto" enum:"auto,cgroupfs,systemd" env:"CGROUP_DRIVER"  help:"Override Docker cgroup driver detection (cgroupfs or systemd)."`

	MetadataMinRefresh time.Duration `default:"2s"   env:"METADATA_MIN_REFRESH" help:"Minimum time between container metadata refreshes. Set to 0 to always refresh on a cache miss."`
	MetadataMaxEntries int           `default:"2000" env:"METADATA_MAX_ENTRIES" help:"Metadata cache entries kept before the cache is cleared outright."`

	Basicauth string `env:"BASICAUTH" help:"HTTP Basic authentication credentials in user:password form. Prefer setting this via environment variable."`

	IncludeLabels []string `env:"INCLUDE_LABELS" help:"Container labels to copy to metric labels; all others are skipped. Repeatable or comma-separated. Mutually exclusive with --exclude-labels."`
	ExcludeLabels []string `env:"EXCLUDE_LABELS" help:"Container labels to skip when labeling metrics. Repeatable or comma-separated. Mutually exclusive with --include-labels."`
}

func main() {
	flags := flags{}
	kong.Parse(&flags, kong.Description(
		"Simple Prometheus exporter for Docker container metrics. "+
			"Reads the cgroup filesystem for metrics and the Docker containers directory for metadata; "+
			"no Docker socket access required.",
	))

	if flags.Version {
		fmt.Println("dockerprom", buildinfo.Version())
		return
	}

	logger := logger.NewLogger(flags.LogLevel, flags.LogFormat, "dockerprom")

	intro := figure.NewColorFigure("dockerprom", "", "yellow", true)
	intro.Print()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...interface{}) {
		level.Info(logger).Log("msg", fmt.Sprintf(format, a...))
	})); err != nil {
		level.Warn(logger).Log("msg", "failed to set GOMAXPROCS automatically", "err", err)
	}

	if err := run(logger, flags); err != nil {
		level.Error(logger).Log("err", err)
		os.Exit(1)
	}
}

func run(logger log.Logger, flags flags) error {
	policy, err := labels.NewPolicy(labels.ParseList(flags.IncludeLabels), labels.ParseList(flags.ExcludeLabels))
	if err != nil {
		return err
	}

	versionOverride, err := cgroup.ParseVersion(flags.CgroupVersion)
	if err != nil {
		return err
	}
	driverOverride, err := cgroup.ParseDriver(flags.CgroupDriver)
	if err != nil {
		return err
	}

	if contained, err := cgroup.InContainer(); err == nil && contained {
		level.Info(logger).Log("msg", "running inside a container; the cgroupfs and containers directories need volume mounts")
	}

	env, err := cgroup.Detect(logger, flags.CgroupfsDir, versionOverride, driverOverride)
	if err != nil {
		return err
	}
	level.Info(logger).Log("msg", "assuming cgroup layout", "version", env.Version, "driver", env.Driver)

	// The containers directory must be readable for the exporter to be of
	// any use; fail startup rather than serve empty metadata forever.
	if _, err := os.ReadDir(flags.ContainersDir); err != nil {
		return fmt.Errorf("failed to read containers directory %s: %w", flags.ContainersDir, err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := containers.NewStore(logger, reg, flags.ContainersDir, flags.MetadataMinRefresh, flags.MetadataMaxEntries)
	store.Refresh(true)

	collector := metrics.NewCollector(logger, reg, env, store, policy)

	if flags.Basicauth != "" {
		level.Info(logger).Log("msg", "HTTP basic auth will be required")
	}
	srv := server.New(logger, collector, flags.Basicauth)

	ctx := context.Background()
	var g okrun.Group
	{
		ln, err := net.Listen("tcp", flags.HTTPAddress)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", flags.HTTPAddress, err)
		}
		level.Info(logger).Log("msg", "listening", "addr", ln.Addr().String())
		g.Add(func() error {
			return http.Serve(ln, srv.Handler(reg))
		}, func(error) {
			ln.Close()
		})
	}
	g.Add(okrun.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var signalErr okrun.SignalError
	if errors.As(err, &signalErr) {
		level.Info(logger).Log("msg", "terminating", "signal", signalErr.Signal)
		return nil
	}
	return err
}
