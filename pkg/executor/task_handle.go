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
	"time"
)

// TaskState is an enum presenting current task state.
type TaskState int

const (
	// RUNNING task state means that task is still running.
	RUNNING TaskState = iota
	// TERMINATED task state means that task completed or stopped.
	TERMINATED
)

func (s TaskState) String() string {
	switch s {
	case RUNNING:
		return "running"
	case TERMINATED:
		return "terminated"
	}
	return "unknown"
}

// TaskHandle represents a process which can be stopped or monitored.
type TaskHandle interface {
	// Stop kills the whole process group of a task and waits for its termination.
	Stop() error
	// Status returns a state of the task.
	Status() TaskState
	// ExitCode returns a exitCode. If task is not terminated it returns error.
	// Tasks terminated by a signal report the negated signal number.
	ExitCode() (int, error)
	// StdoutFile returns a file handle for file to the task's stdout file.
	StdoutFile() (*os.File, error)
	// StderrFile returns a file handle for file to the task's stderr file.
	StderrFile() (*os.File, error)
	// Wait does the blocking wait for the task completion with a given timeout.
	// Zero timeout means infinite wait.
	// It returns true if task is terminated.
	Wait(timeout time.Duration) bool
	// Usage returns resources consumed by the terminated task and its waited-for children.
	Usage() (ResourceUsage, error)
	// Clean closes the task's stdout & stderr files.
	Clean() error
	// EraseOutput removes task's stdout & stderr files.
	EraseOutput() error
	// Address returns address where task was located.
	Address() string
}

// ResourceUsage describes resources consumed by a terminated task.
type ResourceUsage struct {
	// Elapsed is wall clock time between start and termination.
	Elapsed time.Duration
	// User is CPU time spent in user mode.
	User time.Duration
	// System is CPU time spent in kernel mode.
	System time.Duration
	// MaxRSS is maximum resident set size in kilobytes.
	MaxRSS int64
	// MinorFaults is number of page faults serviced without any I/O.
	MinorFaults int64
	// MajorFaults is number of page faults that required I/O.
	MajorFaults int64
	// InBlock is number of file system inputs.
	InBlock int64
	// OutBlock is number of file system outputs.
	OutBlock int64
	// VoluntarySwitches is number of voluntary context switches.
	VoluntarySwitches int64
	// InvoluntarySwitches is number of involuntary context switches.
	InvoluntarySwitches int64
}
