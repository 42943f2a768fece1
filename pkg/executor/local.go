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

package executor

import (
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// LocalConfig holds optional parameters of Local executor.
type LocalConfig struct {
	// Dir is a working directory of executed commands. Empty means current directory.
	Dir string
	// Env replaces environment of executed commands. Nil means the environment of current process.
	Env []string
	// OutputDir is a directory where output directories of tasks are created. Empty means os.TempDir().
	OutputDir string
	// Decorators are applied to every executed command.
	Decorators isolation.Decorators
}

// Local provisioning is responsible for providing the execution environment
// on local machine via exec.Command.
// It runs command as current user.
type Local struct {
	config LocalConfig
}

// NewLocal returns a Local instance.
func NewLocal() Local {
	return Local{}
}

// NewLocalWithConfig returns a Local instance configured with config.
func NewLocalWithConfig(config LocalConfig) Local {
	return Local{config: config}
}

// Name returns user-friendly name of executor.
func (l Local) Name() string {
	return "Local Executor"
}

// Execute runs the command given as input.
// Returned TaskHandle is able to stop & monitor the provisioned process.
func (l Local) Execute(command string) (TaskHandle, error) {
	command = l.config.Decorators.Decorate(command)

	stdoutFile, stderrFile, err := createExecutorOutputFiles(l.config.OutputDir, command, "local")
	if err != nil {
		return nil, err
	}

	log.Debug("Starting ", command)

	cmd := exec.Command("sh", "-c", command)
	// It is important to set additional Process Group ID for parent process and his children
	// to have ability to kill all the children processes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.Dir = l.config.Dir
	cmd.Env = l.config.Env

	started := time.Now()
	if err := cmd.Start(); err != nil {
		removeFiles(stdoutFile, stderrFile)
		return nil, errors.Wrapf(err, "could not start command %q", command)
	}

	log.Debug("Started with pid ", cmd.Process.Pid)

	t := newLocalTaskHandle(cmd, command, started, stdoutFile, stderrFile)
	go t.wait()

	return t, nil
}

// localTaskHandle implements TaskHandle interface.
type localTaskHandle struct {
	cmd        *exec.Cmd
	command    string
	started    time.Time
	stdoutFile *os.File
	stderrFile *os.File

	// stopped is closed when the process terminates.
	stopped chan struct{}

	mu       sync.Mutex
	exitCode int
	usage    ResourceUsage
	waitErr  error
}

func newLocalTaskHandle(cmd *exec.Cmd, command string, started time.Time, stdoutFile, stderrFile *os.File) *localTaskHandle {
	return &localTaskHandle{
		cmd:        cmd,
		command:    command,
		started:    started,
		stdoutFile: stdoutFile,
		stderrFile: stderrFile,
		stopped:    make(chan struct{}),
	}
}

func (t *localTaskHandle) wait() {
	// NOTE: Wait() returns an error. We grab the process state in any case
	// (success or failure) below, so the error object matters only when the
	// process state is not available.
	err := t.cmd.Wait()
	elapsed := time.Since(t.started)

	t.mu.Lock()
	defer t.mu.Unlock()
	defer close(t.stopped)

	if t.cmd.ProcessState == nil {
		t.waitErr = errors.Wrapf(err, "waiting for %q failed", t.command)
		return
	}

	status := t.cmd.ProcessState.Sys().(syscall.WaitStatus)
	if status.Exited() {
		t.exitCode = status.ExitStatus()
	} else {
		// Show what signal caused the termination.
		t.exitCode = -int(status.Signal())
	}

	t.usage = ResourceUsage{Elapsed: elapsed}
	if rusage, ok := t.cmd.ProcessState.SysUsage().(*syscall.Rusage); ok && rusage != nil {
		t.usage.User = time.Duration(rusage.Utime.Nano())
		t.usage.System = time.Duration(rusage.Stime.Nano())
		t.usage.MaxRSS = int64(rusage.Maxrss)
		t.usage.MinorFaults = int64(rusage.Minflt)
		t.usage.MajorFaults = int64(rusage.Majflt)
		t.usage.InBlock = int64(rusage.Inblock)
		t.usage.OutBlock = int64(rusage.Oublock)
		t.usage.VoluntarySwitches = int64(rusage.Nvcsw)
		t.usage.InvoluntarySwitches = int64(rusage.Nivcsw)
	}

	log.Debugf("Ended %q with output in %q and %q with exit code %d",
		t.command, t.stdoutFile.Name(), t.stderrFile.Name(), t.exitCode)
}

func (t *localTaskHandle) isTerminated() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Stop terminates the local task.
func (t *localTaskHandle) Stop() error {
	if t.isTerminated() {
		return nil
	}

	// We signal the entire process group.
	// The kill syscall interprets a negated PID N as the process group N belongs to.
	log.Debug("Sending ", syscall.SIGKILL, " to PID ", -t.cmd.Process.Pid)
	if err := syscall.Kill(-t.cmd.Process.Pid, syscall.SIGKILL); err != nil {
		// Process might have terminated in the meantime.
		if err != syscall.ESRCH {
			return errors.Wrapf(err, "could not kill %q", t.command)
		}
	}

	<-t.stopped
	return nil
}

// Status returns a state of the task.
func (t *localTaskHandle) Status() TaskState {
	if t.isTerminated() {
		return TERMINATED
	}
	return RUNNING
}

// ExitCode returns a exitCode. If task is not terminated it returns error.
func (t *localTaskHandle) ExitCode() (int, error) {
	if !t.isTerminated() {
		return -1, errors.New("task is not terminated")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.waitErr != nil {
		return -1, t.waitErr
	}
	return t.exitCode, nil
}

// Usage returns resources consumed by the terminated task.
func (t *localTaskHandle) Usage() (ResourceUsage, error) {
	if !t.isTerminated() {
		return ResourceUsage{}, errors.New("task is not terminated")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage, t.waitErr
}

// StdoutFile returns a file handle for file to the task's stdout file.
func (t *localTaskHandle) StdoutFile() (*os.File, error) {
	return openOutputFile(t.stdoutFile)
}

// StderrFile returns a file handle for file to the task's stderr file.
func (t *localTaskHandle) StderrFile() (*os.File, error) {
	return openOutputFile(t.stderrFile)
}

// Wait blocks until process is terminated or timeout appeared.
// Returns true when process terminates before timeout, otherwise false.
func (t *localTaskHandle) Wait(timeout time.Duration) bool {
	if timeout == 0 {
		<-t.stopped
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.stopped:
		return true
	case <-timer.C:
		return false
	}
}

// Clean closes stdout and stderr files of terminated task.
func (t *localTaskHandle) Clean() error {
	if !t.isTerminated() {
		return errors.New("cannot clean running task")
	}
	closeErr := t.stdoutFile.Close()
	if err := t.stderrFile.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	return closeErr
}

// EraseOutput removes directory with stdout and stderr files.
func (t *localTaskHandle) EraseOutput() error {
	return removeOutputDir(t.stdoutFile.Name())
}

// Address returns address where task was located.
func (t *localTaskHandle) Address() string {
	return "127.0.0.1"
}
