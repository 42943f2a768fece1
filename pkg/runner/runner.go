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
	"sort"
	"time"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/pkg/errors"
)

// OverheadTimeProperty is wall clock time of an execution in seconds, reported by every runner.
const OverheadTimeProperty = "__ov-time"

// Spec describes a single execution.
type Spec struct {
	Command string
	// Dir is a working directory, empty means the current one.
	Dir string
	// Env is the complete environment of the program, nil means the environment of current process.
	Env []string
	// Timeout kills the program after given time, zero means no limit.
	Timeout time.Duration
	// Validator is optional, nil accepts exit code 0 only.
	Validator  *benchmark.Validator
	Decorators isolation.Decorators
	// OutputDir is where stdout and stderr files are kept during execution.
	OutputDir string
}

// Runner executes a program once and turns the execution into a Measurement.
type Runner interface {
	// Name returns registered name of the runner.
	Name() string
	// Properties returns measured property names with their descriptions.
	Properties() map[string]string
	// Execute runs the program. Returned error means the execution could not be performed
	// or was cancelled, program failures are reported as Outcome.
	Execute(ctx context.Context, spec Spec) (Outcome, error)
}

// Config holds runner options shared by all runners.
type Config struct {
	// Properties restricts or selects measured properties, empty means runner defaults.
	Properties []string
	// PerfStatRepeat makes perf_stat runner repeat the program and report averages.
	PerfStatRepeat int
}

// Factory creates a configured Runner.
type Factory func(config Config) (Runner, error)

// Registry maps stable runner names to their factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns Registry with all built in runners.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TimeRunnerName, NewTimeRunner)
	r.Register(PerfStatRunnerName, NewPerfStatRunner)
	r.Register(OutputRunnerName, NewOutputRunner)
	return r
}

// Register adds factory under given name. Registering a name twice panics.
func (r *Registry) Register(name string, factory Factory) {
	if _, ok := r.factories[name]; ok {
		panic("runner " + name + " registered twice")
	}
	r.factories[name] = factory
}

// Names returns sorted names of registered runners.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create returns runner registered under name.
func (r *Registry) Create(name string, config Config) (Runner, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, errors.Errorf("unknown runner %q, available: %v", name, r.Names())
	}
	runner, err := factory(config)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create runner %q", name)
	}
	return runner, nil
}
