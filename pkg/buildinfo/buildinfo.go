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

// Package buildinfo reports the version control state the binary was built
// from, for the --version flag.
package buildinfo

import (
	"fmt"
	"runtime/debug"
)

// Version assembles a human-readable build identifier from the VCS
// settings embedded in the binary: revision, commit time and target
// platform. Binaries built outside a checkout report "unknown".
func Version() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	settings := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		settings[s.Key] = s.Value
	}

	revision := settings["vcs.revision"]
	if revision == "" {
		revision = "unknown"
	}
	if settings["vcs.modified"] == "true" {
		revision += "-modified"
	}

	return fmt.Sprintf("%s (%s, %s/%s)", revision, settings["vcs.time"], settings["GOOS"], settings["GOARCH"])
}
