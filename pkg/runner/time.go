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

package runner

import (
	"context"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/pkg/errors"
)

// TimeRunnerName is the registered name of the runner measuring time and resource usage.
const TimeRunnerName = "time"

var timeProperties = map[string]string{
	OverheadTimeProperty: "Wall clock time of the execution in seconds",
	"utime":              "CPU time spent in user mode in seconds",
	"stime":              "CPU time spent in kernel mode in seconds",
	"maxrss":             "Maximum resident set size in kilobytes",
	"minflt":             "Page faults serviced without any I/O",
	"majflt":             "Page faults that required I/O",
	"inblock":            "File system inputs",
	"oublock":            "File system outputs",
	"nvcsw":              "Voluntary context switches",
	"nivcsw":             "Involuntary context switches",
}

// timePropertyOrder is the order of properties in produced measurements.
var timePropertyOrder = []string{
	OverheadTimeProperty, "utime", "stime", "maxrss", "minflt", "majflt", "inblock", "oublock", "nvcsw", "nivcsw",
}

type timeRunner struct {
	properties []string
}

// NewTimeRunner returns Runner which measures wall clock time and resource usage reported by the kernel.
func NewTimeRunner(config Config) (Runner, error) {
	properties := timePropertyOrder
	if len(config.Properties) > 0 {
		properties = nil
		for _, property := range config.Properties {
			if _, ok := timeProperties[property]; !ok {
				return nil, errors.Errorf("unknown property %q", property)
			}
			properties = append(properties, property)
		}
		if _, ok := indexOf(properties, OverheadTimeProperty); !ok {
			properties = append([]string{OverheadTimeProperty}, properties...)
		}
	}
	return &timeRunner{properties: properties}, nil
}

func (t *timeRunner) Name() string {
	return TimeRunnerName
}

func (t *timeRunner) Properties() map[string]string {
	result := map[string]string{}
	for _, property := range t.properties {
		result[property] = timeProperties[property]
	}
	return result
}

func (t *timeRunner) Execute(ctx context.Context, spec Spec) (Outcome, error) {
	return run(ctx, spec, spec.Command, func(exec execution) (*Outcome, error) {
		usage := exec.usage
		values := map[string]float64{
			OverheadTimeProperty: usage.Elapsed.Seconds(),
			"utime":              usage.User.Seconds(),
			"stime":              usage.System.Seconds(),
			"maxrss":             float64(usage.MaxRSS),
			"minflt":             float64(usage.MinorFaults),
			"majflt":             float64(usage.MajorFaults),
			"inblock":            float64(usage.InBlock),
			"oublock":            float64(usage.OutBlock),
			"nvcsw":              float64(usage.VoluntarySwitches),
			"nivcsw":             float64(usage.InvoluntarySwitches),
		}

		measurement := benchmark.NewMeasurement()
		for _, property := range t.properties {
			measurement.Add(property, values[property])
		}
		return &Outcome{Kind: Success, Measurement: measurement}, nil
	})
}

func indexOf(list []string, elem string) (int, bool) {
	for i, e := range list {
		if e == elem {
			return i, true
		}
	}
	return -1, false
}
