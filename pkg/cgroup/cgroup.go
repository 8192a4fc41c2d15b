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

// Package cgroup figures out how the local cgroup filesystem is laid out:
// which cgroup API version is in use, which cgroup driver Docker is using,
// where each resource controller keeps its per-container directories, and
// how a container ID is embedded in a directory name.
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type Version int

const (
	// VersionUnknown means no override was given; detection decides.
	VersionUnknown Version = iota
	V1
	V2
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return "unknown"
	}
}

func ParseVersion(s string) (Version, error) {
	switch s {
	case "", "auto":
		return VersionUnknown, nil
	case "v1":
		return V1, nil
	case "v2":
		return V2, nil
	default:
		return VersionUnknown, fmt.Errorf("unknown cgroup version %q", s)
	}
}

// Driver is the cgroup driver Docker was configured with. It decides both
// the base directory container cgroups live under and the shape of each
// container's directory name.
type Driver int

const (
	DriverUnknown Driver = iota
	// DriverCgroupfs names container directories by the bare container ID.
	DriverCgroupfs
	// DriverSystemd names container directories docker-<id>.scope.
	DriverSystemd
)

func (d Driver) String() string {
	switch d {
	case DriverCgroupfs:
		return "cgroupfs"
	case DriverSystemd:
		return "systemd"
	default:
		return "unknown"
	}
}

func ParseDriver(s string) (Driver, error) {
	switch s {
	case "", "auto":
		return DriverUnknown, nil
	case "cgroupfs":
		return DriverCgroupfs, nil
	case "systemd":
		return DriverSystemd, nil
	default:
		return DriverUnknown, fmt.Errorf("unknown cgroup driver %q", s)
	}
}

const (
	// Container IDs are 64 hex characters.
	containerIDLen = 64

	// Under the systemd driver each container directory is a scope unit
	// named docker-<id>.scope.
	scopePrefix = "docker-"
	scopeSuffix = ".scope"
)

// Environment is the resolved cgroup layout. It is computed once at startup
// and never re-detected.
type Environment struct {
	Root    string
	Version Version
	Driver  Driver
}

// Detect inspects the cgroup filesystem under root and resolves the cgroup
// version and Docker cgroup driver. A non-unknown override wins over the
// heuristic; a contradicting override is logged as a warning. An unreadable
// root (or v1 memory controller directory) is a startup failure.
func Detect(logger log.Logger, root string, versionOverride Version, driverOverride Driver) (Environment, error) {
	version, err := detectVersion(logger, root, versionOverride)
	if err != nil {
		return Environment{}, err
	}

	driver, err := detectDriver(logger, root, version, driverOverride)
	if err != nil {
		return Environment{}, err
	}

	return Environment{Root: root, Version: version, Driver: driver}, nil
}

// A "memory" directory at the cgroupfs root is the v1 memory controller;
// cgroup v2 has a unified hierarchy with no per-controller directories.
func detectVersion(logger log.Logger, root string, override Version) (Version, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return VersionUnknown, fmt.Errorf("failed to read cgroupfs directory %s: %w", root, err)
	}

	guess := V2
	for _, entry := range entries {
		if entry.Name() == "memory" {
			guess = V1
			break
		}
	}
	level.Debug(logger).Log("msg", "autodetected cgroup version", "version", guess)

	if override != VersionUnknown {
		if override != guess {
			level.Warn(logger).Log(
				"msg", "this system looks like it is using another cgroup version, but detection has been overridden",
				"detected", guess,
				"override", override,
			)
		}
		return override, nil
	}
	return guess, nil
}

// A "docker" directory in the base hierarchy means Docker manages container
// cgroups itself (cgroupfs driver); otherwise it delegates to systemd.
func detectDriver(logger log.Logger, root string, version Version, override Driver) (Driver, error) {
	dir := root
	if version == V1 {
		dir = filepath.Join(root, "memory")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return DriverUnknown, fmt.Errorf("failed to read cgroup directory %s: %w", dir, err)
	}

	guess := DriverSystemd
	for _, entry := range entries {
		if entry.Name() == "docker" {
			guess = DriverCgroupfs
			break
		}
	}
	level.Debug(logger).Log("msg", "autodetected Docker cgroup driver", "driver", guess)

	if override != DriverUnknown {
		if override != guess {
			level.Warn(logger).Log(
				"msg", "this system looks like it is using another Docker cgroup driver, but detection has been overridden",
				"detected", guess,
				"override", override,
			)
		}
		return override, nil
	}
	return guess, nil
}

// ResourcePath returns the directory holding one cgroup directory per
// container for the given v1 controller name ("memory", "cpu", "blkio").
// The v2 unified hierarchy ignores the controller name. No I/O is involved.
func (e Environment) ResourcePath(resource string) string {
	switch {
	case e.Version == V1 && e.Driver == DriverCgroupfs:
		return filepath.Join(e.Root, resource, "docker")
	case e.Version == V1 && e.Driver == DriverSystemd:
		return filepath.Join(e.Root, resource, "system.slice")
	case e.Version == V2 && e.Driver == DriverCgroupfs:
		return filepath.Join(e.Root, "docker")
	default:
		return filepath.Join(e.Root, "system.slice")
	}
}

// DirNameLen is the exact length of a container's cgroup directory name
// under the active driver. Directories of any other length are not
// containers (parent slices, runtime bookkeeping) and must be skipped.
func (e Environment) DirNameLen() int {
	if e.Driver == DriverSystemd {
		return len(scopePrefix) + containerIDLen + len(scopeSuffix)
	}
	return containerIDLen
}

// ContainerID extracts the container ID embedded in a cgroup directory
// name. It reports false for names whose length does not match the driver
// constant, so the fixed-offset slice below never runs on an unvalidated
// name.
func (e Environment) ContainerID(dirName string) (string, bool) {
	if len(dirName) != e.DirNameLen() {
		return "", false
	}
	if e.Driver == DriverSystemd {
		return dirName[len(scopePrefix) : len(dirName)-len(scopeSuffix)], true
	}
	return dirName, true
}
