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

// Package server is the HTTP face of the exporter: basic auth, the
// container metrics endpoint, the exporter's own telemetry and pprof.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Collector produces one full exposition-format scrape.
type Collector interface {
	Collect(ctx context.Context) (string, error)
}

type Server struct {
	logger    log.Logger
	collector Collector

	// expectedAuth is the precomputed "Basic <base64>" header value;
	// empty means authentication is disabled.
	expectedAuth string
}

// New builds a server. basicauth is "user:password" credentials, or empty
// to leave the endpoints unauthenticated.
func New(logger log.Logger, collector Collector, basicauth string) *Server {
	expected := ""
	if basicauth != "" {
		expected = "Basic " + base64.StdEncoding.EncodeToString([]byte(basicauth))
	}
	return &Server{
		logger:       logger,
		collector:    collector,
		expectedAuth: expected,
	}
}

// Handler returns the exporter's HTTP handler. reg is the exporter's own
// telemetry registry, served separately from the container metrics so the
// container families keep their fixed order.
func (s *Server) Handler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.metrics)
	mux.Handle("/debug/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/", s.index)
	return s.authenticated(mux)
}

func (s *Server) authenticated(next http.Handler) http.Handler {
	if s.expectedAuth == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.expectedAuth)) != 1 {
			level.Debug(s.logger).Log("msg", "basic auth failed", "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", "Basic")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	body, err := s.collector.Collect(r.Context())
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to collect metrics", "err", err)
		http.Error(w, "Error occured. Please see logs.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	fmt.Fprint(w, body)
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<p><b>Container Metrics</b></p>\n")
	fmt.Fprint(w, "<a href='/metrics'>/metrics</a><br/>\n")
	fmt.Fprint(w, "<p><b>Exporter Telemetry</b></p>\n")
	fmt.Fprint(w, "<a href='/debug/metrics'>/debug/metrics</a><br/>\n")
	fmt.Fprint(w, "<a href='/debug/pprof/'>/debug/pprof</a><br/>\n")
}
