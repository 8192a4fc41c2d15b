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

package metrics

import (
	"sort"
	"time"

	"github.com/go-kit/log/level"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"

	"github.com/nikolabura/dockerprom/pkg/labels"
)

type familySpec struct {
	name string
	help string
	typ  dto.MetricType
}

// The five exposed families, rendered in exactly this order.
var (
	memoryFamily = familySpec{
		name: "container_memory_usage",
		help: "Memory used by the container, in bytes",
		typ:  dto.MetricType_GAUGE,
	}
	cpuUserFamily = familySpec{
		name: "container_cpu_user_total",
		help: "CPU seconds used by the container in userspace",
		typ:  dto.MetricType_COUNTER,
	}
	cpuSystemFamily = familySpec{
		name: "container_cpu_system_total",
		help: "CPU seconds used by the container in kernelspace",
		typ:  dto.MetricType_COUNTER,
	}
	blkioReadFamily = familySpec{
		name: "container_blkio_read_total",
		help: "Bytes read from disk by the container",
		typ:  dto.MetricType_COUNTER,
	}
	blkioWriteFamily = familySpec{
		name: "container_blkio_write_total",
		help: "Bytes written to disk by the container",
		typ:  dto.MetricType_COUNTER,
	}
)

// family renders one metric family, hydrating every sample with container
// metadata.
func (c *Collector) family(spec familySpec, samples []sample) *dto.MetricFamily {
	fam := &dto.MetricFamily{
		Name: proto.String(spec.name),
		Help: proto.String(spec.help),
		Type: spec.typ.Enum(),
	}
	for _, s := range samples {
		fam.Metric = append(fam.Metric, c.renderSample(spec.typ, s))
	}
	return fam
}

func (c *Collector) renderSample(typ dto.MetricType, s sample) *dto.Metric {
	m := &dto.Metric{
		Label:       c.labelsFor(s.id),
		TimestampMs: proto.Int64(time.Now().UnixMilli()),
	}
	if typ == dto.MetricType_GAUGE {
		m.Gauge = &dto.Gauge{Value: proto.Float64(s.value)}
	} else {
		m.Counter = &dto.Counter{Value: proto.Float64(s.value)}
	}
	return m
}

// labelsFor builds the label pairs for one container: always the id, plus
// name, image and the policy-filtered container labels when metadata is
// known. Missing metadata only costs the extra labels, never the sample.
func (c *Collector) labelsFor(id string) []*dto.LabelPair {
	pairs := []*dto.LabelPair{labelPair("id", id)}

	meta, ok := c.store.Lookup(id)
	if !ok {
		level.Warn(c.logger).Log("msg", "no metadata found for container", "id", id)
		return pairs
	}

	pairs = append(pairs, labelPair("name", meta.Name), labelPair("image", meta.Config.Image))

	keys := make([]string, 0, len(meta.Config.Labels))
	for key := range meta.Config.Labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	// Distinct keys can sanitize to the same label name; the later one in
	// key order wins.
	index := make(map[string]int)
	for _, key := range keys {
		if !c.policy.Allow(key) {
			continue
		}
		name := labels.Sanitize(key)
		value := meta.Config.Labels[key]
		if i, ok := index[name]; ok {
			pairs[i].Value = proto.String(value)
			continue
		}
		index[name] = len(pairs)
		pairs = append(pairs, labelPair(name, value))
	}
	return pairs
}

func labelPair(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}
