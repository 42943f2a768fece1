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
	"fmt"
	"io/ioutil"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/intelsdi-x/cadence/pkg/utils/err_collection"
	"github.com/intelsdi-x/cadence/pkg/utils/sysctl"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Names of CPU plugins.
const (
	CPUGovernorPluginName  = "cpu_governor"
	DisableTurboPluginName = "disable_turbo"
	DisableHTPluginName    = "disable_ht"
	DisableASLRPluginName  = "disable_aslr"
)

// sysfsFile is a single value file in sysfs remembering its original content.
type sysfsFile struct {
	path string
	old  string
}

func readSysfs(file string) (string, error) {
	content, err := ioutil.ReadFile(file)
	if err != nil {
		return "", errors.Wrapf(err, "cannot read %q", file)
	}
	return strings.TrimSpace(string(content)), nil
}

func writeSysfs(file, value string) error {
	if err := ioutil.WriteFile(file, []byte(value+"\n"), 0644); err != nil {
		return errors.Wrapf(err, "cannot write %q to %q", value, file)
	}
	return nil
}

// restoreSysfs writes back original values in reverse order.
func restoreSysfs(files []sysfsFile) error {
	var errs errcollection.ErrorCollection
	for i := len(files) - 1; i >= 0; i-- {
		errs.Add(writeSysfs(files[i].path, files[i].old))
	}
	return errs.GetErrIfAny()
}

// CPUGovernorConfig configures cpu_governor plugin.
type CPUGovernorConfig struct {
	Governor string `yaml:"governor" validate:"required"`
}

// CPUGovernor sets frequency scaling governor of every CPU.
type CPUGovernor struct {
	config  CPUGovernorConfig
	root    string
	changed []sysfsFile
}

// NewCPUGovernor returns cpu_governor plugin.
func NewCPUGovernor(deps Deps, config map[string]interface{}) (*CPUGovernor, error) {
	plugin := &CPUGovernor{config: CPUGovernorConfig{Governor: "performance"}, root: deps.SysfsRoot}
	if err := decodeConfig(config, &plugin.config); err != nil {
		return nil, err
	}
	return plugin, nil
}

// Name implements Plugin.
func (g *CPUGovernor) Name() string { return CPUGovernorPluginName }

// NeedsRoot implements Plugin.
func (g *CPUGovernor) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (g *CPUGovernor) Setup() error {
	files, err := filepath.Glob(path.Join(g.root, "devices/system/cpu/cpu[0-9]*/cpufreq/scaling_governor"))
	if err != nil {
		return errors.Wrap(err, "cannot list CPU governors")
	}
	if len(files) == 0 {
		return errors.New("CPU frequency scaling is not available")
	}
	sort.Strings(files)

	g.changed = nil
	for _, file := range files {
		available, err := readSysfs(path.Join(path.Dir(file), "scaling_available_governors"))
		if err == nil && !contains(strings.Fields(available), g.config.Governor) {
			restoreSysfs(g.changed)
			return errors.Errorf("governor %q is not available in %q", g.config.Governor, available)
		}
		old, err := readSysfs(file)
		if err != nil {
			restoreSysfs(g.changed)
			return err
		}
		if err := writeSysfs(file, g.config.Governor); err != nil {
			restoreSysfs(g.changed)
			return err
		}
		g.changed = append(g.changed, sysfsFile{path: file, old: old})
	}
	logrus.Debugf("scaling governor of %d CPUs set to %q", len(g.changed), g.config.Governor)
	return nil
}

// Teardown implements Plugin.
func (g *CPUGovernor) Teardown() error {
	return restoreSysfs(g.changed)
}

// DisableTurbo disables turbo boost of intel_pstate driver.
type DisableTurbo struct {
	file sysfsFile
}

// NewDisableTurbo returns disable_turbo plugin.
func NewDisableTurbo(deps Deps, config map[string]interface{}) (*DisableTurbo, error) {
	if err := decodeConfig(config, &struct{}{}); err != nil {
		return nil, err
	}
	return &DisableTurbo{file: sysfsFile{path: path.Join(deps.SysfsRoot, "devices/system/cpu/intel_pstate/no_turbo")}}, nil
}

// Name implements Plugin.
func (d *DisableTurbo) Name() string { return DisableTurboPluginName }

// NeedsRoot implements Plugin.
func (d *DisableTurbo) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (d *DisableTurbo) Setup() error {
	old, err := readSysfs(d.file.path)
	if err != nil {
		return errors.Wrap(err, "intel_pstate driver is not available")
	}
	d.file.old = old
	return writeSysfs(d.file.path, "1")
}

// Teardown implements Plugin.
func (d *DisableTurbo) Teardown() error {
	return writeSysfs(d.file.path, d.file.old)
}

// DisableHT takes sibling hyper-threads offline so that each core runs a single thread.
type DisableHT struct {
	deps    Deps
	offline []sysfsFile
}

// NewDisableHT returns disable_ht plugin.
func NewDisableHT(deps Deps, config map[string]interface{}) (*DisableHT, error) {
	if err := decodeConfig(config, &struct{}{}); err != nil {
		return nil, err
	}
	return &DisableHT{deps: deps}, nil
}

// Name implements Plugin.
func (d *DisableHT) Name() string { return DisableHTPluginName }

// NeedsRoot implements Plugin.
func (d *DisableHT) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (d *DisableHT) Setup() error {
	threads, err := d.deps.Topology()
	if err != nil {
		return errors.Wrap(err, "cannot discover CPU topology")
	}
	d.offline = nil
	for _, id := range threads.Siblings().AsSlice() {
		file := path.Join(d.deps.SysfsRoot, fmt.Sprintf("devices/system/cpu/cpu%d/online", id))
		old, err := readSysfs(file)
		if err != nil {
			restoreSysfs(d.offline)
			return err
		}
		if err := writeSysfs(file, "0"); err != nil {
			restoreSysfs(d.offline)
			return err
		}
		d.offline = append(d.offline, sysfsFile{path: file, old: old})
	}
	logrus.Debugf("%d hyper-threads taken offline", len(d.offline))
	return nil
}

// Teardown implements Plugin.
func (d *DisableHT) Teardown() error {
	return restoreSysfs(d.offline)
}

// DisableASLR disables address space layout randomization.
type DisableASLR struct {
	root string
	old  string
}

const aslrKey = "kernel.randomize_va_space"

// NewDisableASLR returns disable_aslr plugin.
func NewDisableASLR(deps Deps, config map[string]interface{}) (*DisableASLR, error) {
	if err := decodeConfig(config, &struct{}{}); err != nil {
		return nil, err
	}
	return &DisableASLR{root: deps.SysctlRoot}, nil
}

// Name implements Plugin.
func (d *DisableASLR) Name() string { return DisableASLRPluginName }

// NeedsRoot implements Plugin.
func (d *DisableASLR) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (d *DisableASLR) Setup() error {
	old, err := sysctl.GetFrom(d.root, aslrKey)
	if err != nil {
		return errors.Wrapf(err, "cannot read %s", aslrKey)
	}
	d.old = old
	return sysctl.SetIn(d.root, aslrKey, "0")
}

// Teardown implements Plugin.
func (d *DisableASLR) Teardown() error {
	return sysctl.SetIn(d.root, aslrKey, d.old)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
