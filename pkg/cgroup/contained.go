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

package cgroup

import (
	"strings"

	"github.com/prometheus/procfs"
)

// InContainer reports whether the exporter itself appears to be running
// inside a container, judged by the cgroup membership of PID 1. When true,
// the cgroupfs and containers directories likely need explicit volume
// mounts.
func InContainer() (bool, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return false, err
	}
	p, err := fs.Proc(1)
	if err != nil {
		return false, err
	}
	cgroups, err := p.Cgroups()
	if err != nil {
		return false, err
	}

	for _, cg := range cgroups {
		if strings.Contains(cg.Path, "/docker") || strings.Contains(cg.Path, "/kubepods") {
			return true, nil
		}
	}
	return false, nil
}
