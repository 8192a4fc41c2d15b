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
	"path/filepath"

	"github.com/go-kit/log/level"

	"github.com/nikolabura/dockerprom/pkg/cgroup"
)

// readMemory reads each container's current memory usage in bytes.
func (c *Collector) readMemory() ([]sample, error) {
	base, dirs, err := c.containerDirs("memory")
	if err != nil {
		return nil, err
	}

	usageFile := "memory.current"
	if c.env.Version == cgroup.V1 {
		usageFile = "memory.usage_in_bytes"
	}

	var out []sample
	for _, dir := range dirs {
		usage, err := readUint(filepath.Join(base, dir.name, usageFile))
		if err != nil {
			level.Error(c.logger).Log("msg", "failed to read memory usage", "container", dir.id, "err", err)
			continue
		}
		out = append(out, sample{id: dir.id, value: float64(usage)})
	}
	return out, nil
}
