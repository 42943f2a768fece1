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
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ExecuteAndWait executes command, waits at most timeout for its termination (zero means infinite)
// and checks that it ended with exit code 0. Task is stopped when the timeout passes.
// Returned handle is terminated and still owns its output files.
func ExecuteAndWait(executor Executor, command string, timeout time.Duration) (TaskHandle, error) {
	handle, err := executor.Execute(command)
	if err != nil {
		return nil, errors.Wrapf(err, "executing %q on %q failed", command, executor.Name())
	}

	if !handle.Wait(timeout) {
		if err := handle.Stop(); err != nil {
			log.Warnf("stopping %q failed: %v", command, err)
		}
		LogUnsucessfulExecution(command, executor.Name(), handle)
		return handle, errors.Errorf("task %q launched on %q did not finish within %s", command, executor.Name(), timeout)
	}

	exitCode, err := handle.ExitCode()
	if err != nil {
		// Something really wrong happened, print error message + logs
		LogUnsucessfulExecution(command, executor.Name(), handle)
		return handle, errors.Wrapf(err, "task %q launched on %q failed, cannot get exit code", command, executor.Name())
	}
	if exitCode != 0 {
		LogUnsucessfulExecution(command, executor.Name(), handle)
		return handle, errors.Errorf("task %q launched on %q failed: exit code %d", command, executor.Name(), exitCode)
	}

	LogSuccessfulExecution(command, executor.Name(), handle)
	return handle, nil
}

// RunCommand executes command, waits for it and returns its trimmed stdout.
// Output files of the task are removed afterwards.
func RunCommand(executor Executor, command string, timeout time.Duration) (string, error) {
	handle, err := ExecuteAndWait(executor, command, timeout)
	if handle != nil {
		defer func() {
			handle.Clean()
			handle.EraseOutput()
		}()
	}
	if err != nil {
		return "", err
	}

	output, err := ReadOutput(handle.StdoutFile())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}
