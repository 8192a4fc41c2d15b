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

package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type stubCollector struct {
	body string
	err  error
}

func (s stubCollector) Collect(context.Context) (string, error) {
	return s.body, s.err
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	body := "# HELP container_memory_usage Memory used by the container, in bytes\n" +
		"# TYPE container_memory_usage gauge\n" +
		"container_memory_usage{id=\"abc\"} 1024 1700000000000\n"
	srv := New(log.NewNopLogger(), stubCollector{body: body}, "")
	ts := httptest.NewServer(srv.Handler(prometheus.NewRegistry()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, body, string(got))
	require.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestMetricsEndpointError(t *testing.T) {
	t.Parallel()

	srv := New(log.NewNopLogger(), stubCollector{err: errors.New("cgroup dir vanished")}, "")
	ts := httptest.NewServer(srv.Handler(prometheus.NewRegistry()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	// The client gets a generic body; the detail only goes to the log.
	require.Equal(t, "Error occured. Please see logs.\n", string(got))
	require.NotContains(t, string(got), "cgroup dir vanished")
}

func TestBasicAuth(t *testing.T) {
	t.Parallel()

	srv := New(log.NewNopLogger(), stubCollector{body: "ok"}, "user:password")
	ts := httptest.NewServer(srv.Handler(prometheus.NewRegistry()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Basic", resp.Header.Get("WWW-Authenticate"))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	require.NoError(t, err)
	req.SetBasicAuth("user", "wrong")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/metrics", nil)
	require.NoError(t, err)
	req.SetBasicAuth("user", "password")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIndex(t *testing.T) {
	t.Parallel()

	srv := New(log.NewNopLogger(), stubCollector{body: "ok"}, "")
	ts := httptest.NewServer(srv.Handler(prometheus.NewRegistry()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(got), "/metrics")

	resp, err = http.Get(ts.URL + "/no-such-page")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
