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
	"time"

	"github.com/intelsdi-x/cadence/pkg/executor"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// execution holds raw telemetry of a finished program.
type execution struct {
	exitCode int
	stdout   string
	stderr   string
	usage    executor.ResourceUsage
}

// measureFunc turns a valid execution into a Measurement.
type measureFunc func(execution) (*Outcome, error)

// run executes command of the spec, classifies the execution and measures it when valid.
// Cancellation of ctx kills the whole process group and returns ctx error.
func run(ctx context.Context, spec Spec, command string, measure measureFunc) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	local := executor.NewLocalWithConfig(executor.LocalConfig{
		Dir:        spec.Dir,
		Env:        spec.Env,
		OutputDir:  spec.OutputDir,
		Decorators: spec.Decorators,
	})

	handle, err := local.Execute(command)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "could not execute program")
	}
	defer func() {
		if err := handle.Clean(); err != nil {
			logrus.Debugf("cleaning task of %q failed: %v", command, err)
		}
		if err := handle.EraseOutput(); err != nil {
			logrus.Warnf("removing output of %q failed: %v", command, err)
		}
	}()

	terminated := make(chan struct{})
	go func() {
		handle.Wait(0)
		close(terminated)
	}()

	var deadline <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-terminated:
	case <-ctx.Done():
		if err := handle.Stop(); err != nil {
			logrus.Errorf("stopping %q after cancellation failed: %v", command, err)
		}
		return Outcome{}, ctx.Err()
	case <-deadline:
		if err := handle.Stop(); err != nil {
			return Outcome{}, errors.Wrapf(err, "could not stop %q after timeout", command)
		}
		return Outcome{
			Kind:   Timeout,
			Reason: fmt.Sprintf("program did not finish within %s", spec.Timeout),
		}, nil
	}

	exec := execution{}
	if exec.exitCode, err = handle.ExitCode(); err != nil {
		return Outcome{}, errors.Wrap(err, "could not read exit code")
	}
	if exec.usage, err = handle.Usage(); err != nil {
		return Outcome{}, errors.Wrap(err, "could not read resource usage")
	}
	if exec.stdout, err = executor.ReadOutput(handle.StdoutFile()); err != nil {
		return Outcome{}, err
	}
	if exec.stderr, err = executor.ReadOutput(handle.StderrFile()); err != nil {
		return Outcome{}, err
	}

	if outcome, failed := classify(spec, exec); failed {
		return outcome, nil
	}

	outcome, err := measure(exec)
	if err != nil {
		return Outcome{}, err
	}
	outcome.ExitCode = exec.exitCode
	return *outcome, nil
}

// classify applies validator of the spec. Exit code which is not expected is a process failure
// when nonzero and a validation failure otherwise. An expected nonzero exit code is valid.
func classify(spec Spec, exec execution) (Outcome, bool) {
	outcome := Outcome{ExitCode: exec.exitCode, Stdout: exec.stdout, Stderr: exec.stderr}

	if !spec.Validator.ExitCodeAllowed(exec.exitCode) {
		if exec.exitCode != 0 {
			outcome.Kind = ProcessFailure
			outcome.Reason = fmt.Sprintf("unexpected exit code %d", exec.exitCode)
		} else {
			outcome.Kind = ValidationFailure
			outcome.Reason = fmt.Sprintf("exit code 0 is not one of expected %v", spec.Validator.ExitCodes())
		}
		return outcome, true
	}

	if reason := spec.Validator.CheckOutput(exec.stdout, exec.stderr); reason != "" {
		outcome.Kind = ValidationFailure
		outcome.Reason = reason
		return outcome, true
	}

	return outcome, false
}
