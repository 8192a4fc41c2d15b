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
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-kit/log/level"

	"github.com/nikolabura/dockerprom/pkg/cgroup"
)

// readCPU reads each container's cumulative user and system CPU time,
// normalized to seconds. cgroup v1 keeps two nanosecond counters in
// separate cpuacct files; v2 keeps microsecond counters as lines of
// cpu.stat.
func (c *Collector) readCPU() (user, system []sample, err error) {
	base, dirs, err := c.containerDirs("cpu")
	if err != nil {
		return nil, nil, err
	}

	for _, dir := range dirs {
		var userSec, systemSec float64
		var err error
		if c.env.Version == cgroup.V1 {
			userSec, systemSec, err = readCPUAcct(filepath.Join(base, dir.name))
		} else {
			userSec, systemSec, err = readCPUStat(filepath.Join(base, dir.name, "cpu.stat"))
		}
		if err != nil {
			level.Error(c.logger).Log("msg", "failed to read cpu usage", "container", dir.id, "err", err)
			continue
		}
		user = append(user, sample{id: dir.id, value: userSec})
		system = append(system, sample{id: dir.id, value: systemSec})
	}
	return user, system, nil
}

func readCPUAcct(dir string) (user, system float64, err error) {
	userNs, err := readUint(filepath.Join(dir, "cpuacct.usage_user"))
	if err != nil {
		return 0, 0, err
	}
	systemNs, err := readUint(filepath.Join(dir, "cpuacct.usage_sys"))
	if err != nil {
		return 0, 0, err
	}
	return float64(userNs) / 1e9, float64(systemNs) / 1e9, nil
}

func readCPUStat(path string) (user, system float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var userUs, systemUs *uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case "user_usec", "system_usec":
			v, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("failed to parse %s line of %s: %w", fields[0], path, err)
			}
			if fields[0] == "user_usec" {
				userUs = &v
			} else {
				systemUs = &v
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if userUs == nil || systemUs == nil {
		return 0, 0, fmt.Errorf("missing user_usec or system_usec in %s", path)
	}
	return float64(*userUs) / 1e6, float64(*systemUs) / 1e6, nil
}
