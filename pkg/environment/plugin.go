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

package environment

import (
	"bytes"
	"context"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/intelsdi-x/cadence/pkg/executor"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/intelsdi-x/cadence/pkg/isolation/topo"
	"github.com/intelsdi-x/cadence/pkg/utils/sysctl"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Plugin is a reversible modification of the machine state.
type Plugin interface {
	// Name returns registered name of the plugin.
	Name() string
	// NeedsRoot is true when Setup or Teardown require superuser privileges.
	NeedsRoot() bool
	// Setup applies the modification.
	Setup() error
	// Teardown reverts what Setup did.
	Teardown() error
}

// ContextSetup is implemented by plugins whose Setup takes long. Controller calls SetupContext
// instead of Setup. When ctx is done first, the plugin leaves the machine unchanged and returns ctx.Err().
type ContextSetup interface {
	SetupContext(ctx context.Context) error
}

// RunContext is what a RunHook may change about a single run.
type RunContext struct {
	Command    string
	Env        []string
	Decorators isolation.Decorators
}

// RunHook modifies every run of a program.
type RunHook interface {
	PrepareRun(run *RunContext) error
}

// BlockConfigurable plugins derive a per block RunHook from a block's plugin configuration.
type BlockConfigurable interface {
	ForBlock(config map[string]interface{}) (RunHook, error)
}

// Factory creates plugin from its generic configuration.
type Factory func(config map[string]interface{}) (Plugin, error)

// Deps are the machine facilities plugins act upon.
type Deps struct {
	// Executor runs helper programs (ionice, swapoff, cgroup tools).
	Executor       executor.Executor
	CommandTimeout time.Duration
	// SysfsRoot is where sysfs is mounted, usually "/sys".
	SysfsRoot string
	// SysctlRoot is the root of the sysctl tree, usually "/proc/sys".
	SysctlRoot string
	Processes  ProcessTable
	// Topology returns hardware threads of the machine.
	Topology func() (topo.ThreadSet, error)
	// AvailableCPUs returns CPUs the benchmarks may use.
	AvailableCPUs func() (isolation.IntSet, error)
	// Seed initializes random generators of plugins.
	Seed int64
}

// DefaultDeps returns Deps operating on the local machine.
func DefaultDeps(seed int64) Deps {
	local := executor.NewLocal()
	return Deps{
		Executor:       local,
		CommandTimeout: 30 * time.Second,
		SysfsRoot:      "/sys",
		SysctlRoot:     sysctl.DefaultRoot,
		Processes:      NewProcfsTable("/proc"),
		Topology: func() (topo.ThreadSet, error) {
			return topo.Discover(local)
		},
		AvailableCPUs: isolation.AvailableCPUs,
		Seed:          seed,
	}
}

func (d Deps) newRand() *rand.Rand {
	return rand.New(rand.NewSource(d.Seed))
}

var configValidator = validator.New()

// decodeConfig overlays generic configuration on top of defaults already present in out
// and validates the result. Unknown keys are errors.
func decodeConfig(config map[string]interface{}, out interface{}) error {
	if len(config) > 0 {
		data, err := yaml.Marshal(config)
		if err != nil {
			return errors.Wrap(err, "cannot encode plugin configuration")
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(out); err != nil {
			return errors.Wrap(err, "invalid plugin configuration")
		}
	}
	if err := configValidator.Struct(out); err != nil {
		return errors.Wrap(err, "invalid plugin configuration")
	}
	return nil
}
