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

package cgroup

import (
	"fmt"
	pth "path"
	"strconv"
	"strings"
	"time"

	"github.com/intelsdi-x/cadence/pkg/executor"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/pkg/errors"
)

const (
	// CPUSetController is the canonical name of the cgroups cpuset controller.
	CPUSetController = "cpuset"

	// DefaultCommandTimeout is the default amount of time to wait for
	// dispatched commands to finish executing.
	DefaultCommandTimeout = 10 * time.Second
)

// CPUSet represents a Linux control group of the cpuset controller.
// See https://www.kernel.org/doc/Documentation/cgroup-v1/cpusets.txt
//
// Usage of this type requires the libcgroup tools to be installed
// on the system. It interacts with cgroups by shelling out to
// utility programs like `cgcreate`, `cgexec`, `cgget` and friends.
type CPUSet struct {
	path       string
	executor   executor.Executor
	cmdTimeout time.Duration
}

// NewCPUSet returns a new cpuset cgroup with the supplied path.
func NewCPUSet(path string) (*CPUSet, error) {
	return NewCPUSetWithExecutor(path, executor.NewLocal(), DefaultCommandTimeout)
}

// NewCPUSetWithExecutor returns a new cpuset cgroup with the supplied path and executor.
// Returns an error if the path is empty or is the root of the hierarchy.
func NewCPUSetWithExecutor(path string, executor executor.Executor, cmdTimeout time.Duration) (*CPUSet, error) {
	canonicalPath := pth.Join("/", path)
	if path == "" || canonicalPath == "/" {
		return nil, errors.Errorf("invalid path %q specified for cgroup", path)
	}
	if executor == nil {
		return nil, errors.New("nil executor supplied for cgroup")
	}
	return &CPUSet{path: canonicalPath, executor: executor, cmdTimeout: cmdTimeout}, nil
}

// Path returns this cgroup's path in the hierarchy.
func (cg *CPUSet) Path() string {
	return cg.path
}

// Spec returns an identifier compatible with libcgroup-tools, e.g. 'cpuset:/cadence/bench0'.
func (cg *CPUSet) Spec() string {
	return fmt.Sprintf("%s:%s", CPUSetController, cg.path)
}

// Exists returns true iff this cgroup is present in the cpuset hierarchy.
func (cg *CPUSet) Exists() (bool, error) {
	out, err := cg.cmdOutput("lscgroup", "-g", cg.Spec())
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimRight(strings.TrimSpace(line), "/") == strings.TrimRight(cg.Spec(), "/") {
			return true, nil
		}
	}
	return false, nil
}

// Create creates this cgroup restricted to the supplied CPUs and memory nodes.
func (cg *CPUSet) Create(cpus isolation.IntSet, mems isolation.IntSet) error {
	if cpus.Empty() || mems.Empty() {
		return errors.Errorf("cgroup %q needs at least one CPU and memory node", cg.path)
	}
	if _, err := cg.cmdOutput("cgcreate", "-g", cg.Spec()); err != nil {
		return err
	}
	if err := cg.SetAndCheck("cpuset.cpus", cpus.AsRangeString()); err != nil {
		return err
	}
	return cg.SetAndCheck("cpuset.mems", mems.AsRangeString())
}

// Destroy removes this cgroup.
// If recursive is specified, also destroy this cgroup's children.
func (cg *CPUSet) Destroy(recursive bool) error {
	if recursive {
		_, err := cg.cmdOutput("cgdelete", "--recursive", "-g", cg.Spec())
		return err
	}
	_, err := cg.cmdOutput("cgdelete", "-g", cg.Spec())
	return err
}

// Tasks returns the pids of this cgroup.
func (cg *CPUSet) Tasks() (isolation.IntSet, error) {
	out, err := cg.Get("tasks")
	if err != nil {
		return nil, err
	}
	tasks := isolation.NewIntSet()
	for _, field := range strings.Fields(out) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed pid %q in cgroup %q", field, cg.path)
		}
		tasks.Add(pid)
	}
	return tasks, nil
}

// Get returns the value of an attribute for this cgroup.
func (cg *CPUSet) Get(name string) (string, error) {
	return cg.cmdOutput("cgget", "-nv", "-r", name, cg.path)
}

// Set overwrites the value of an attribute for this cgroup.
func (cg *CPUSet) Set(name string, value string) error {
	_, err := cg.cmdOutput("cgset", "-r", fmt.Sprintf("%s=%s", name, value), cg.path)
	return err
}

// SetAndCheck overwrites the value of an attribute for this cgroup and
// returns an error if a subsequent read of the same attribute does
// not match the written value.
func (cg *CPUSet) SetAndCheck(name string, value string) error {
	if err := cg.Set(name, value); err != nil {
		return err
	}
	actual, err := cg.Get(name)
	if err != nil {
		return err
	}
	if actual != value {
		return errors.Errorf("%s of cgroup %q is %q after setting %q", name, cg.path, actual, value)
	}
	return nil
}

// Isolate moves the process to this cgroup.
func (cg *CPUSet) Isolate(pid int) error {
	_, err := cg.cmdOutput("cgclassify", "-g", cg.Spec(), strconv.Itoa(pid))
	return err
}

// Decorate implements isolation.Decorator interface by running command under cgexec.
func (cg *CPUSet) Decorate(command string) string {
	return fmt.Sprintf("cgexec -g %s sh -c %s", cg.Spec(), isolation.ShellQuote(command))
}

func (cg *CPUSet) cmdOutput(argv ...string) (string, error) {
	return executor.RunCommand(cg.executor, strings.Join(argv, " "), cg.cmdTimeout)
}
