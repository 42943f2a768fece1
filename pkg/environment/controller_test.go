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

package environment_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/intelsdi-x/cadence/pkg/environment"
	"github.com/intelsdi-x/cadence/pkg/environment/mocks"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"
)

// newRecordingPlugins returns mocked plugins named p1..pn appending their calls to log.
func newRecordingPlugins(n int, log *[]string) []*mocks.Plugin {
	plugins := make([]*mocks.Plugin, 0, n)
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("p%d", i)
		plugin := new(mocks.Plugin)
		plugin.On("Name").Return(name).Maybe()
		plugin.On("NeedsRoot").Return(false).Maybe()
		plugins = append(plugins, plugin)
	}
	return plugins
}

func expectSetup(plugin *mocks.Plugin, log *[]string, err error) {
	name := plugin.Name()
	plugin.On("Setup").Return(err).Run(func(mock.Arguments) { *log = append(*log, "setup "+name) }).Once()
}

func expectTeardown(plugin *mocks.Plugin, log *[]string, err error) {
	name := plugin.Name()
	plugin.On("Teardown").Return(err).Run(func(mock.Arguments) { *log = append(*log, "teardown "+name) }).Once()
}

func asPlugins(plugins []*mocks.Plugin) []environment.Plugin {
	result := make([]environment.Plugin, 0, len(plugins))
	for _, plugin := range plugins {
		result = append(result, plugin)
	}
	return result
}

func TestController(t *testing.T) {
	Convey("When controlling environment with five plugins", t, func() {
		var log []string
		plugins := newRecordingPlugins(5, &log)
		controller := environment.NewController(asPlugins(plugins)).WithRootCheck(func() bool { return true })

		Convey("All plugins are set up in order and torn down in reverse order exactly once", func() {
			for _, plugin := range plugins {
				expectSetup(plugin, &log, nil)
				expectTeardown(plugin, &log, nil)
			}

			So(controller.Activate(context.Background()), ShouldBeNil)
			So(controller.Deactivate(), ShouldBeNil)
			So(controller.Deactivate(), ShouldBeNil)

			So(log, ShouldResemble, []string{
				"setup p1", "setup p2", "setup p3", "setup p4", "setup p5",
				"teardown p5", "teardown p4", "teardown p3", "teardown p2", "teardown p1",
			})
			for _, plugin := range plugins {
				plugin.AssertNumberOfCalls(t, "Setup", 1)
				plugin.AssertNumberOfCalls(t, "Teardown", 1)
			}
		})

		Convey("Failing third plugin rolls back the first two and leaves the rest untouched", func() {
			expectSetup(plugins[0], &log, nil)
			expectSetup(plugins[1], &log, nil)
			expectSetup(plugins[2], &log, errors.New("no such governor"))
			expectTeardown(plugins[0], &log, nil)
			expectTeardown(plugins[1], &log, nil)

			err := controller.Activate(context.Background())
			So(err, ShouldNotBeNil)
			So(environment.IsSetupError(err), ShouldBeTrue)
			setupErr := err.(*environment.SetupError)
			So(setupErr.Plugin, ShouldEqual, "p3")
			So(setupErr.Cause.Error(), ShouldEqual, "no such governor")

			So(controller.Deactivate(), ShouldBeNil)
			So(log, ShouldResemble, []string{"setup p1", "setup p2", "setup p3", "teardown p2", "teardown p1"})
			plugins[2].AssertNotCalled(t, "Teardown")
			for _, untouched := range plugins[3:] {
				untouched.AssertNotCalled(t, "Setup")
				untouched.AssertNotCalled(t, "Teardown")
			}
		})

		Convey("Teardown errors and panics are recorded and do not stop other teardowns", func() {
			for _, plugin := range plugins {
				expectSetup(plugin, &log, nil)
			}
			expectTeardown(plugins[4], &log, nil)
			expectTeardown(plugins[3], &log, errors.New("cannot write"))
			plugins[2].On("Teardown").Return(nil).Run(func(mock.Arguments) { panic("broken plugin") }).Once()
			expectTeardown(plugins[1], &log, nil)
			expectTeardown(plugins[0], &log, nil)

			So(controller.Activate(context.Background()), ShouldBeNil)
			err := controller.Deactivate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "cannot write")
			So(err.Error(), ShouldContainSubstring, "broken plugin")
			So(controller.TeardownErrors(), ShouldHaveLength, 2)
			So(log[len(log)-1], ShouldEqual, "teardown p1")
		})

		Convey("Cancelled context prevents any setup", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := controller.Activate(ctx)
			So(err, ShouldNotBeNil)
			So(errors.Cause(err), ShouldEqual, context.Canceled)
			So(controller.Deactivate(), ShouldBeNil)
			So(log, ShouldBeEmpty)
		})
	})

	Convey("When a plugin needs privileges the process lacks", t, func() {
		privileged := new(mocks.Plugin)
		privileged.On("Name").Return("privileged")
		privileged.On("NeedsRoot").Return(true)
		controller := environment.NewController([]environment.Plugin{privileged}).WithRootCheck(func() bool { return false })

		Convey("Activation fails before anything is set up", func() {
			err := controller.Activate(context.Background())
			So(err, ShouldNotBeNil)
			So(err.(*environment.SetupError).Cause, ShouldEqual, environment.ErrRootRequired)
			privileged.AssertNotCalled(t, "Setup")
			So(controller.Deactivate(), ShouldBeNil)
		})
	})
}

func TestHooksFor(t *testing.T) {
	Convey("When resolving run hooks of a block", t, func() {
		deps := environment.DefaultDeps(42)
		registry := environment.DefaultRegistry(deps)
		plugins, err := registry.Create(
			[]string{environment.SyncPluginName, environment.EnvRandomizePluginName},
			map[string]map[string]interface{}{environment.EnvRandomizePluginName: {"min": 1, "max": 1}})
		So(err, ShouldBeNil)
		controller := environment.NewController(plugins)

		blocks, err := benchmark.ParseBlocks([]byte(`
- attributes: {description: plain}
  run_config: {run_cmd: "true"}
- attributes: {description: configured}
  run_config:
    run_cmd: "true"
    plugins:
      env_randomize: {min: 3, max: 3, key_max: 1}
`))
		So(err, ShouldBeNil)

		Convey("Plugins without block configuration use their session configuration", func() {
			hooks, err := controller.HooksFor(blocks[0])
			So(err, ShouldBeNil)
			So(hooks, ShouldHaveLength, 2)

			run := &environment.RunContext{Command: "true", Env: []string{"HOME=/root"}}
			So(hooks.PrepareRun(run), ShouldBeNil)
			So(run.Env, ShouldHaveLength, 2)
			So(run.Decorators.Decorate(run.Command), ShouldEqual, "sync; true")
		})

		Convey("Block configuration overrides session configuration", func() {
			hooks, err := controller.HooksFor(blocks[1])
			So(err, ShouldBeNil)

			run := &environment.RunContext{Command: "true"}
			So(hooks.PrepareRun(run), ShouldBeNil)
			So(len(run.Env), ShouldBeBetweenOrEqual, 1, 3)
			for _, variable := range run.Env {
				So(strings.Index(variable, "="), ShouldEqual, 1)
			}
		})

		Convey("Invalid block configuration is an error", func() {
			blocks[0].RunConfig.Plugins = map[string]map[string]interface{}{
				environment.EnvRandomizePluginName: {"min": 5, "max": 1},
			}
			_, err := controller.HooksFor(blocks[0])
			So(err, ShouldNotBeNil)
		})
	})
}

func TestInterruptedActivation(t *testing.T) {
	Convey("When activation is cancelled while preheating", t, func() {
		var log []string
		plugins := newRecordingPlugins(1, &log)
		expectSetup(plugins[0], &log, nil)
		expectTeardown(plugins[0], &log, nil)
		preheat, err := environment.NewPreheat(map[string]interface{}{"time": 10})
		So(err, ShouldBeNil)
		controller := environment.NewController([]environment.Plugin{plugins[0], preheat}).WithRootCheck(func() bool { return true })

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		started := time.Now()
		err = controller.Activate(ctx)

		So(time.Since(started), ShouldBeLessThan, 5*time.Second)
		So(err, ShouldNotBeNil)
		So(environment.IsSetupError(err), ShouldBeFalse)
		So(errors.Cause(err), ShouldEqual, context.DeadlineExceeded)
		So(log, ShouldResemble, []string{"setup p1", "teardown p1"})
		So(controller.Deactivate(), ShouldBeNil)
		So(log, ShouldHaveLength, 2)
	})
}
