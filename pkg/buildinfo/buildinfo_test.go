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

package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	t.Parallel()

	// Test binaries carry no VCS stamp, but the platform fields and the
	// revision fallback must always be present.
	v := Version()
	require.NotEmpty(t, v)
	require.Contains(t, v, "(")
	require.Contains(t, v, "/")
}
