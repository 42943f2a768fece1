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
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/pkg/errors"
)

// OutputRunnerName is the registered name of the runner parsing properties printed by the program.
const OutputRunnerName = "output"

var outputLine = regexp.MustCompile(`^\s*([\w.\-]+)\s*:\s*(.+?)\s*$`)

type outputRunner struct {
	required []string
}

// NewOutputRunner returns Runner which reads "name: number" or "name: [n1, n2]" lines from stdout.
// Configured properties are required, other properties are ignored then.
func NewOutputRunner(config Config) (Runner, error) {
	return &outputRunner{required: config.Properties}, nil
}

func (o *outputRunner) Name() string {
	return OutputRunnerName
}

func (o *outputRunner) Properties() map[string]string {
	result := map[string]string{OverheadTimeProperty: timeProperties[OverheadTimeProperty]}
	for _, property := range o.required {
		result[property] = fmt.Sprintf("Value of %s printed by the program", property)
	}
	return result
}

func (o *outputRunner) Execute(ctx context.Context, spec Spec) (Outcome, error) {
	return run(ctx, spec, spec.Command, func(exec execution) (*Outcome, error) {
		parsed, err := ParseOutput(exec.stdout)
		if err != nil {
			return &Outcome{Kind: ValidationFailure, Reason: err.Error(), Stdout: exec.stdout, Stderr: exec.stderr}, nil
		}

		measurement := parsed
		if len(o.required) > 0 {
			measurement = benchmark.NewMeasurement()
			for _, property := range o.required {
				values, ok := parsed.Values(property)
				if !ok {
					return nil, errors.Errorf("program did not print property %q", property)
				}
				measurement.Add(property, values...)
			}
		}
		if len(measurement.Names()) == 0 {
			return nil, errors.New("program did not print any property")
		}

		if !measurement.Has(OverheadTimeProperty) {
			length, err := measurement.Len()
			if err != nil {
				return nil, err
			}
			perValue := exec.usage.Elapsed.Seconds() / float64(length)
			for i := 0; i < length; i++ {
				measurement.Add(OverheadTimeProperty, perValue)
			}
		}
		return &Outcome{Kind: Success, Measurement: measurement}, nil
	})
}

// ParseOutput reads properties printed as "name: number" or "name: [n1, n2, ...]" lines.
// Lines of other shapes are skipped, repeated names and NaN or infinite values are rejected.
func ParseOutput(stdout string) (*benchmark.Measurement, error) {
	measurement := benchmark.NewMeasurement()
	for _, line := range strings.Split(stdout, "\n") {
		match := outputLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		values, ok := parseValues(match[2])
		if !ok {
			continue
		}
		if !finite(values...) {
			return nil, errors.Errorf("property %q has non-finite value %q", match[1], match[2])
		}
		if measurement.Has(match[1]) {
			return nil, errors.Errorf("property %q printed twice", match[1])
		}
		measurement.Add(match[1], values...)
	}
	return measurement, nil
}

func parseValues(text string) ([]float64, bool) {
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		var values []float64
		for _, elem := range strings.Split(strings.TrimSuffix(strings.TrimPrefix(text, "["), "]"), ",") {
			value, err := strconv.ParseFloat(strings.TrimSpace(elem), 64)
			if err != nil {
				return nil, false
			}
			values = append(values, value)
		}
		return values, true
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, false
	}
	return []float64{value}, true
}

func finite(values ...float64) bool {
	for _, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return false
		}
	}
	return true
}
