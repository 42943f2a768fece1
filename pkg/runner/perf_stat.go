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
	"fmt"
	"strconv"
	"strings"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/pkg/errors"
)

// PerfStatRunnerName is the registered name of the runner reading hardware counters with perf stat.
const PerfStatRunnerName = "perf_stat"

// DefaultPerfStatProperties are events measured when none are configured.
var DefaultPerfStatProperties = []string{
	"task-clock", "branch-misses", "cache-references", "cache-misses", "cycles", "instructions",
}

type perfStatRunner struct {
	events []string
	repeat int
}

// NewPerfStatRunner returns Runner which measures perf events of the program.
func NewPerfStatRunner(config Config) (Runner, error) {
	events := config.Properties
	if len(events) == 0 {
		events = DefaultPerfStatProperties
	}
	for _, event := range events {
		if strings.ContainsAny(event, " ;,'\"") {
			return nil, errors.Errorf("invalid perf event %q", event)
		}
	}
	repeat := config.PerfStatRepeat
	if repeat < 1 {
		repeat = 1
	}
	return &perfStatRunner{events: events, repeat: repeat}, nil
}

func (p *perfStatRunner) Name() string {
	return PerfStatRunnerName
}

func (p *perfStatRunner) Properties() map[string]string {
	result := map[string]string{OverheadTimeProperty: timeProperties[OverheadTimeProperty]}
	for _, event := range p.events {
		result[event] = fmt.Sprintf("Value of perf event %s", event)
	}
	return result
}

func (p *perfStatRunner) command(command string) string {
	repeat := ""
	if p.repeat > 1 {
		repeat = fmt.Sprintf("--repeat %d ", p.repeat)
	}
	return fmt.Sprintf("perf stat %s-x ';' -e %s -- sh -c %s",
		repeat, strings.Join(p.events, ","), isolation.ShellQuote(command))
}

func (p *perfStatRunner) Execute(ctx context.Context, spec Spec) (Outcome, error) {
	// perf prints numbers according to locale.
	spec.Env = append(append([]string{}, spec.Env...), "LC_NUMERIC=C")
	return run(ctx, spec, p.command(spec.Command), func(exec execution) (*Outcome, error) {
		counters, err := parsePerfStat(exec.stderr)
		if err != nil {
			return nil, err
		}

		measurement := benchmark.NewMeasurement()
		measurement.Add(OverheadTimeProperty, exec.usage.Elapsed.Seconds()/float64(p.repeat))
		for _, event := range p.events {
			value, ok := counters[event]
			if !ok {
				return nil, errors.Errorf("perf stat did not report event %q", event)
			}
			measurement.Add(event, value)
		}
		return &Outcome{Kind: Success, Measurement: measurement}, nil
	})
}

// parsePerfStat reads "value;unit;event;..." lines printed by `perf stat -x ';'`.
// Modifiers like ":u" are stripped from event names.
func parsePerfStat(output string) (map[string]float64, error) {
	counters := map[string]float64{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Split(strings.TrimSpace(line), ";")
		if len(fields) < 3 {
			continue
		}
		event := strings.SplitN(fields[2], ":", 2)[0]
		if event == "" {
			continue
		}
		value, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, errors.Errorf("event %q was not counted: %q", event, fields[0])
		}
		if !finite(value) {
			return nil, errors.Errorf("event %q has non-finite value %q", event, fields[0])
		}
		counters[event] = value
	}
	return counters, nil
}
