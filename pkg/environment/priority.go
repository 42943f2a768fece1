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
	"strconv"
	"strings"
	"syscall"

	"github.com/intelsdi-x/cadence/pkg/executor"
	"github.com/intelsdi-x/cadence/pkg/utils/err_collection"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Names of priority plugins.
const (
	NicePluginName      = "nice"
	OtherNicePluginName = "other_nice"
	StopStartPluginName = "stop_start"
)

var ioniceClasses = map[string]int{"none": 0, "realtime": 1, "best-effort": 2, "idle": 3}

// NiceConfig configures nice plugin.
type NiceConfig struct {
	// Nice of the benchmarking process, from -20 (most favorable) to 19.
	Nice int `yaml:"nice" validate:"gte=-20,lte=19"`
	// IONice is the I/O scheduling class: 0 none, 1 realtime, 2 best-effort, 3 idle.
	IONice int `yaml:"io_nice" validate:"gte=0,lte=3"`
}

// NicePlugin changes CPU and I/O priority of the benchmarking process. Programs inherit them.
type NicePlugin struct {
	config     NiceConfig
	processes  ProcessTable
	deps       Deps
	oldNice    int
	oldIOClass int
	oldIOPrio  int
}

// NewNicePlugin returns nice plugin.
func NewNicePlugin(deps Deps, config map[string]interface{}) (*NicePlugin, error) {
	plugin := &NicePlugin{config: NiceConfig{Nice: -15, IONice: 1}, processes: deps.Processes, deps: deps}
	if err := decodeConfig(config, &plugin.config); err != nil {
		return nil, err
	}
	return plugin, nil
}

// Name implements Plugin.
func (n *NicePlugin) Name() string { return NicePluginName }

// NeedsRoot implements Plugin.
func (n *NicePlugin) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (n *NicePlugin) Setup() error {
	self, err := n.processes.Get(n.processes.Self())
	if err != nil {
		return err
	}
	n.oldNice = self.Nice

	out, err := executor.RunCommand(n.deps.Executor, fmt.Sprintf("ionice -p %d", self.PID), n.deps.CommandTimeout)
	if err != nil {
		return errors.Wrap(err, "cannot read I/O scheduling class")
	}
	n.oldIOClass, n.oldIOPrio, err = parseIonice(out)
	if err != nil {
		return err
	}

	if err := n.processes.SetNice(self.PID, n.config.Nice); err != nil {
		return err
	}
	if err := n.setIONice(n.config.IONice, 4); err != nil {
		n.processes.SetNice(self.PID, n.oldNice)
		return err
	}
	logrus.Debugf("nice of benchmarking process changed from %d to %d", n.oldNice, n.config.Nice)
	return nil
}

// Teardown implements Plugin.
func (n *NicePlugin) Teardown() error {
	var errs errcollection.ErrorCollection
	errs.Add(n.processes.SetNice(n.processes.Self(), n.oldNice))
	errs.Add(n.setIONice(n.oldIOClass, n.oldIOPrio))
	return errs.GetErrIfAny()
}

func (n *NicePlugin) setIONice(class, prio int) error {
	pid := n.processes.Self()
	tids, err := n.processes.Threads(pid)
	if err != nil || len(tids) == 0 {
		tids = []int{pid}
	}
	pids := make([]string, 0, len(tids))
	for _, tid := range tids {
		pids = append(pids, strconv.Itoa(tid))
	}

	command := fmt.Sprintf("ionice -c %d", class)
	if class == ioniceClasses["realtime"] || class == ioniceClasses["best-effort"] {
		command += fmt.Sprintf(" -n %d", prio)
	}
	command += " -p " + strings.Join(pids, " ")
	_, err = executor.RunCommand(n.deps.Executor, command, n.deps.CommandTimeout)
	return errors.Wrap(err, "cannot set I/O scheduling class")
}

// parseIonice parses output of "ionice -p", e.g. "best-effort: prio 4" or "idle".
func parseIonice(output string) (class int, prio int, err error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(output), "\n", 2)[0])
	parts := strings.SplitN(line, ":", 2)
	class, ok := ioniceClasses[strings.TrimSpace(parts[0])]
	if !ok {
		return 0, 0, errors.Errorf("unknown I/O scheduling class in %q", line)
	}
	if len(parts) == 2 {
		fields := strings.Fields(parts[1])
		if len(fields) == 2 && fields[0] == "prio" {
			if prio, err = strconv.Atoi(fields[1]); err != nil {
				return 0, 0, errors.Wrapf(err, "malformed I/O priority in %q", line)
			}
		}
	}
	return class, prio, nil
}

// OtherNiceConfig configures other_nice plugin.
type OtherNiceConfig struct {
	// Nice given to other processes.
	Nice int `yaml:"nice" validate:"gte=-20,lte=19"`
	// MinNice excludes processes with nice lower or equal to it.
	MinNice int `yaml:"min_nice" validate:"gte=-20,lte=19"`
}

// OtherNice lowers priority of all other processes.
type OtherNice struct {
	config    OtherNiceConfig
	processes ProcessTable
	oldNices  map[int]int
	order     []int
}

// NewOtherNice returns other_nice plugin.
func NewOtherNice(deps Deps, config map[string]interface{}) (*OtherNice, error) {
	plugin := &OtherNice{config: OtherNiceConfig{Nice: 18, MinNice: -10}, processes: deps.Processes}
	if err := decodeConfig(config, &plugin.config); err != nil {
		return nil, err
	}
	return plugin, nil
}

// Name implements Plugin.
func (o *OtherNice) Name() string { return OtherNicePluginName }

// NeedsRoot implements Plugin.
func (o *OtherNice) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (o *OtherNice) Setup() error {
	processes, err := o.processes.List()
	if err != nil {
		return err
	}
	excluded := ancestors(o.processes, o.processes.Self())
	o.oldNices = map[int]int{}
	o.order = nil
	for _, process := range processes {
		if process.Kernel || excluded[process.PID] || process.Nice <= o.config.MinNice {
			continue
		}
		if err := o.processes.SetNice(process.PID, o.config.Nice); err != nil {
			logrus.Infof("cannot renice process %d (%s): %v", process.PID, process.Comm, err)
			continue
		}
		o.oldNices[process.PID] = process.Nice
		o.order = append(o.order, process.PID)
	}
	logrus.Debugf("reniced %d other processes to %d", len(o.order), o.config.Nice)
	return nil
}

// Teardown implements Plugin. Vanished processes are ignored.
func (o *OtherNice) Teardown() error {
	for _, pid := range o.order {
		if err := o.processes.SetNice(pid, o.oldNices[pid]); err != nil {
			logrus.Infof("cannot restore nice of process %d: %v", pid, err)
		}
	}
	return nil
}

// StopStartConfig configures stop_start plugin.
type StopStartConfig struct {
	// MinNice selects processes with at least this nice value.
	MinNice int `yaml:"min_nice" validate:"gte=-20,lte=19"`
	// IgnoredCommPrefixes protects processes with matching command names.
	IgnoredCommPrefixes []string `yaml:"ignored_comm_prefixes"`
}

// StopStart stops other processes during benchmarking and continues them afterwards.
type StopStart struct {
	config    StopStartConfig
	processes ProcessTable
	stopped   []int
}

// NewStopStart returns stop_start plugin.
func NewStopStart(deps Deps, config map[string]interface{}) (*StopStart, error) {
	plugin := &StopStart{
		config:    StopStartConfig{MinNice: -20, IgnoredCommPrefixes: []string{"sshd", "systemd"}},
		processes: deps.Processes,
	}
	if err := decodeConfig(config, &plugin.config); err != nil {
		return nil, err
	}
	return plugin, nil
}

// Name implements Plugin.
func (s *StopStart) Name() string { return StopStartPluginName }

// NeedsRoot implements Plugin.
func (s *StopStart) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (s *StopStart) Setup() error {
	processes, err := s.processes.List()
	if err != nil {
		return err
	}
	excluded := ancestors(s.processes, s.processes.Self())
	s.stopped = nil
	for _, process := range processes {
		if process.Kernel || excluded[process.PID] || process.PID == 1 || process.Nice < s.config.MinNice || s.ignored(process.Comm) {
			continue
		}
		if err := s.processes.Signal(process.PID, syscall.SIGSTOP); err != nil {
			logrus.Infof("cannot stop process %d (%s): %v", process.PID, process.Comm, err)
			continue
		}
		s.stopped = append(s.stopped, process.PID)
	}
	logrus.Debugf("stopped %d processes", len(s.stopped))
	return nil
}

// Teardown implements Plugin.
func (s *StopStart) Teardown() error {
	for i := len(s.stopped) - 1; i >= 0; i-- {
		if err := s.processes.Signal(s.stopped[i], syscall.SIGCONT); err != nil {
			logrus.Infof("cannot continue process %d: %v", s.stopped[i], err)
		}
	}
	s.stopped = nil
	return nil
}

func (s *StopStart) ignored(comm string) bool {
	for _, prefix := range s.config.IgnoredCommPrefixes {
		if strings.HasPrefix(comm, prefix) {
			return true
		}
	}
	return false
}
