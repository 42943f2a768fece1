// Copyright (c) 2017 Intel Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"github.com/intelsdi-x/cadence/pkg/benchmark"
)

// Unset marks global run count which is not configured.
const Unset = -1

// Bounds is the allowed number of attempts of a block.
type Bounds struct {
	Min int
	Max int
}

// BoundsConfig holds session wide and per tag repetition bounds.
type BoundsConfig struct {
	// Runs overrides MinRuns and MaxRuns when not Unset.
	Runs    int
	MinRuns int
	MaxRuns int
	// RunsPerTag overrides global bounds of blocks with the tag.
	RunsPerTag    map[string]int
	MinRunsPerTag map[string]int
	MaxRunsPerTag map[string]int
}

// ResolveBounds returns bounds of the block. Precedence, from the strongest:
// block runs, block min_runs and max_runs, the largest matching runs_per_tag, global runs,
// and finally the tightest of global and per tag min and max (largest minimum, smallest maximum).
// Minimum never exceeds maximum.
func ResolveBounds(block *benchmark.Block, config BoundsConfig) Bounds {
	run := block.RunConfig
	if run.Runs != nil {
		return Bounds{Min: *run.Runs, Max: *run.Runs}
	}

	bounds := Bounds{Min: config.MinRuns, Max: config.MaxRuns}
	if runs, ok := largestForTags(block.Tags(), config.RunsPerTag); ok {
		bounds = Bounds{Min: runs, Max: runs}
	} else if config.Runs != Unset && config.Runs >= 0 {
		bounds = Bounds{Min: config.Runs, Max: config.Runs}
	} else {
		if min, ok := largestForTags(block.Tags(), config.MinRunsPerTag); ok && min > bounds.Min {
			bounds.Min = min
		}
		if max, ok := smallestForTags(block.Tags(), config.MaxRunsPerTag); ok && max < bounds.Max {
			bounds.Max = max
		}
	}

	if run.MinRuns != nil {
		bounds.Min = *run.MinRuns
	}
	if run.MaxRuns != nil {
		bounds.Max = *run.MaxRuns
	}
	if bounds.Max < 0 {
		bounds.Max = 0
	}
	if bounds.Min > bounds.Max {
		bounds.Min = bounds.Max
	}
	if bounds.Min < 0 {
		bounds.Min = 0
	}
	return bounds
}

func largestForTags(tags []string, values map[string]int) (int, bool) {
	result, found := 0, false
	for _, tag := range tags {
		if value, ok := values[tag]; ok && (!found || value > result) {
			result, found = value, true
		}
	}
	return result, found
}

func smallestForTags(tags []string, values map[string]int) (int, bool) {
	result, found := 0, false
	for _, tag := range tags {
		if value, ok := values[tag]; ok && (!found || value < result) {
			result, found = value, true
		}
	}
	return result, found
}
