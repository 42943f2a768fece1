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

package executor_test

import (
	"testing"
	"time"

	"github.com/intelsdi-x/cadence/pkg/executor"
	"github.com/intelsdi-x/cadence/pkg/executor/mocks"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"
)

func TestExecuteAndWait(t *testing.T) {
	Convey("When executing command with mocked executor", t, func() {
		mockedExecutor := new(mocks.Executor)
		mockedHandle := new(mocks.TaskHandle)
		mockedExecutor.On("Name").Return("mocked")
		mockedHandle.On("Address").Return("127.0.0.1").Maybe()
		mockedHandle.On("StdoutFile").Return(nil, errors.New("no file")).Maybe()
		mockedHandle.On("StderrFile").Return(nil, errors.New("no file")).Maybe()

		Convey("Failure of Execute is propagated", func() {
			mockedExecutor.On("Execute", "cmd").Return(nil, errors.New("cannot start"))
			handle, err := executor.ExecuteAndWait(mockedExecutor, "cmd", 0)
			So(err, ShouldNotBeNil)
			So(handle, ShouldBeNil)
		})

		Convey("Task is stopped when it does not finish in time", func() {
			mockedExecutor.On("Execute", "cmd").Return(mockedHandle, nil)
			mockedHandle.On("Wait", time.Second).Return(false)
			mockedHandle.On("Stop").Return(nil)
			mockedHandle.On("ExitCode").Return(-9, nil)

			_, err := executor.ExecuteAndWait(mockedExecutor, "cmd", time.Second)
			So(err, ShouldNotBeNil)
			So(mockedHandle.AssertCalled(t, "Stop"), ShouldBeTrue)
		})

		Convey("Nonzero exit code results in error", func() {
			mockedExecutor.On("Execute", "cmd").Return(mockedHandle, nil)
			mockedHandle.On("Wait", mock.Anything).Return(true)
			mockedHandle.On("ExitCode").Return(1, nil)

			_, err := executor.ExecuteAndWait(mockedExecutor, "cmd", 0)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "exit code 1")
		})

		Convey("Zero exit code results in success", func() {
			mockedExecutor.On("Execute", "cmd").Return(mockedHandle, nil)
			mockedHandle.On("Wait", mock.Anything).Return(true)
			mockedHandle.On("ExitCode").Return(0, nil)

			handle, err := executor.ExecuteAndWait(mockedExecutor, "cmd", 0)
			So(err, ShouldBeNil)
			So(handle, ShouldEqual, mockedHandle)
		})
	})
}

func TestRunCommand(t *testing.T) {
	Convey("Running a local command returns its trimmed output", t, func() {
		output, err := executor.RunCommand(executor.NewLocal(), "echo '  hello  '", 10*time.Second)
		So(err, ShouldBeNil)
		So(output, ShouldEqual, "hello")
	})

	Convey("Running a failing local command results in error", t, func() {
		_, err := executor.RunCommand(executor.NewLocal(), "false", 10*time.Second)
		So(err, ShouldNotBeNil)
	})
}
