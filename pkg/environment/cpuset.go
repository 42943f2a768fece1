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
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/intelsdi-x/cadence/pkg/isolation/cgroup"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CPUSetPluginName is the name of cpuset plugin.
const CPUSetPluginName = "cpuset"

// CPUSetConfig configures cpuset plugin.
type CPUSetConfig struct {
	// Path of the cgroup in cpuset hierarchy.
	Path string `yaml:"path" validate:"required"`
	// CPUs is a range list, e.g. "1-3,5". Empty means all available CPUs except the first BaseCores ones.
	CPUs      string `yaml:"cpus"`
	BaseCores int    `yaml:"base_core_number" validate:"gte=0"`
	// Mems is a range list of memory nodes.
	Mems string `yaml:"mems" validate:"required"`
}

// CPUSetPlugin runs every program in a dedicated cpuset cgroup.
type CPUSetPlugin struct {
	config CPUSetConfig
	deps   Deps
	cgroup *cgroup.CPUSet
}

// NewCPUSetPlugin returns cpuset plugin.
func NewCPUSetPlugin(deps Deps, config map[string]interface{}) (*CPUSetPlugin, error) {
	plugin := &CPUSetPlugin{config: CPUSetConfig{Path: "cadence", BaseCores: 1, Mems: "0"}, deps: deps}
	if err := decodeConfig(config, &plugin.config); err != nil {
		return nil, err
	}
	cg, err := cgroup.NewCPUSetWithExecutor(plugin.config.Path, deps.Executor, deps.CommandTimeout)
	if err != nil {
		return nil, err
	}
	plugin.cgroup = cg
	return plugin, nil
}

// Name implements Plugin.
func (c *CPUSetPlugin) Name() string { return CPUSetPluginName }

// NeedsRoot implements Plugin.
func (c *CPUSetPlugin) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (c *CPUSetPlugin) Setup() error {
	cpus, err := c.cpus()
	if err != nil {
		return err
	}
	mems, err := isolation.NewIntSetFromRange(c.config.Mems)
	if err != nil {
		return errors.Wrapf(err, "invalid memory nodes %q", c.config.Mems)
	}

	exists, err := c.cgroup.Exists()
	if err != nil {
		return err
	}
	if exists {
		return errors.Errorf("cgroup %q already exists", c.cgroup.Spec())
	}
	if err := c.cgroup.Create(cpus, mems); err != nil {
		c.cgroup.Destroy(true)
		return err
	}
	logrus.Debugf("benchmarks restricted to CPUs %s in cgroup %q", cpus.AsRangeString(), c.cgroup.Spec())
	return nil
}

// Teardown implements Plugin.
func (c *CPUSetPlugin) Teardown() error {
	return c.cgroup.Destroy(true)
}

// PrepareRun implements RunHook.
func (c *CPUSetPlugin) PrepareRun(run *RunContext) error {
	run.Decorators = append(run.Decorators, c.cgroup)
	return nil
}

func (c *CPUSetPlugin) cpus() (isolation.IntSet, error) {
	if c.config.CPUs != "" {
		cpus, err := isolation.NewIntSetFromRange(c.config.CPUs)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid CPUs %q", c.config.CPUs)
		}
		return cpus, nil
	}
	available, err := c.deps.AvailableCPUs()
	if err != nil {
		return nil, err
	}
	partitioning, err := isolation.PartitionCPUs(available, c.config.BaseCores, 1, isolation.AutoParallel)
	if err != nil {
		return nil, err
	}
	cpus := isolation.NewIntSet()
	for _, partition := range partitioning.Partitions {
		cpus = cpus.Union(partition)
	}
	return cpus, nil
}
