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

// readBlkio reads each container's cumulative bytes read from and written
// to block devices, summed across devices. cgroup v1 lists one
// "<dev> <op> <bytes>" line per device and operation; v2 lists one
// "<dev> key=value ..." line per device.
func (c *Collector) readBlkio() (read, write []sample, err error) {
	base, dirs, err := c.containerDirs("blkio")
	if err != nil {
		return nil, nil, err
	}

	for _, dir := range dirs {
		var readBytes, writeBytes uint64
		var err error
		if c.env.Version == cgroup.V1 {
			readBytes, writeBytes, err = readIOServiceBytes(filepath.Join(base, dir.name, "blkio.throttle.io_service_bytes"))
		} else {
			readBytes, writeBytes, err = readIOStat(filepath.Join(base, dir.name, "io.stat"))
		}
		if err != nil {
			level.Error(c.logger).Log("msg", "failed to read blkio usage", "container", dir.id, "err", err)
			continue
		}
		read = append(read, sample{id: dir.id, value: float64(readBytes)})
		write = append(write, sample{id: dir.id, value: float64(writeBytes)})
	}
	return read, write, nil
}

func readIOServiceBytes(path string) (read, write uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// "8:0 Read 104857600"; the trailing "Total N" line has no
		// operation field and is skipped.
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		switch fields[1] {
		case "Read", "Write":
			v, err := strconv.ParseUint(fields[2], 10, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("failed to parse %s line of %s: %w", fields[1], path, err)
			}
			if fields[1] == "Read" {
				read += v
			} else {
				write += v
			}
		}
	}
	return read, write, scanner.Err()
}

func readIOStat(path string) (read, write uint64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// "8:0 rbytes=104857600 wbytes=52428800 rios=... ..."
		for _, kv := range strings.Fields(scanner.Text()) {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			switch key {
			case "rbytes", "wbytes":
				v, err := strconv.ParseUint(value, 10, 64)
				if err != nil {
					return 0, 0, fmt.Errorf("failed to parse %s entry of %s: %w", key, path, err)
				}
				if key == "rbytes" {
					read += v
				} else {
					write += v
				}
			}
		}
	}
	return read, write, scanner.Err()
}
