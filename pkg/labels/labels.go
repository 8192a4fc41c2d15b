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

// Package labels decides which container labels get copied onto metrics and
// how their keys are rewritten into valid metric label names.
package labels

import (
	"errors"
	"strings"

	"github.com/prometheus/prometheus/util/strutil"
)

// Prefix is prepended to every container label key before it is attached to
// a metric, namespacing it away from the fixed identity labels.
const Prefix = "container_label_"

// Policy is an include-list or exclude-list over container label keys.
// At most one of the two sets is populated.
type Policy struct {
	include map[string]struct{}
	exclude map[string]struct{}
}

// NewPolicy builds a label policy. Passing both an include and an exclude
// set is a configuration error.
func NewPolicy(include, exclude []string) (Policy, error) {
	if len(include) > 0 && len(exclude) > 0 {
		return Policy{}, errors.New("cannot set both include-labels and exclude-labels")
	}
	return Policy{include: toSet(include), exclude: toSet(exclude)}, nil
}

// Allow reports whether a container label with the given key should be
// attached to metrics.
func (p Policy) Allow(key string) bool {
	if len(p.include) > 0 {
		_, ok := p.include[key]
		return ok
	}
	if len(p.exclude) > 0 {
		_, ok := p.exclude[key]
		return !ok
	}
	return true
}

// Sanitize rewrites a container label key into a valid, namespaced metric
// label name. Invalid characters (including "." and "-") become "_".
func Sanitize(key string) string {
	return strutil.SanitizeLabelName(Prefix + key)
}

// ParseList splits flag values on commas and trims the pieces, so labels
// can be given either as repeated flags or as one comma-separated value.
func ParseList(args []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, arg := range args {
		for _, label := range strings.Split(arg, ",") {
			label = strings.TrimSpace(label)
			if label == "" {
				continue
			}
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			out = append(out, label)
		}
	}
	return out
}

func toSet(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
