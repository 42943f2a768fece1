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

package session

import (
	"bytes"
	"context"
	"io/ioutil"
	"math"
	"os"
	"path"
	"sync"
	"testing"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/intelsdi-x/cadence/pkg/environment"
	"github.com/intelsdi-x/cadence/pkg/results"
	"github.com/intelsdi-x/cadence/pkg/runner"
	"github.com/intelsdi-x/cadence/pkg/scheduler"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type fakeRunner struct {
	mutex  sync.Mutex
	calls  map[string]int
	broken bool
}

func (f *fakeRunner) Name() string { return "fake" }

func (f *fakeRunner) Properties() map[string]string {
	return map[string]string{"time": "Fake execution time"}
}

func (f *fakeRunner) Execute(ctx context.Context, spec runner.Spec) (runner.Outcome, error) {
	f.mutex.Lock()
	f.calls[spec.Command]++
	n := f.calls[spec.Command]
	broken := f.broken
	f.mutex.Unlock()

	switch spec.Command {
	case "fail":
		return runner.Outcome{Kind: runner.ProcessFailure, ExitCode: 1}, nil
	case "broken":
		if broken {
			return runner.Outcome{}, errors.New("cannot start")
		}
	}
	measurement := benchmark.NewMeasurement()
	measurement.Add("time", float64(n))
	return runner.Outcome{Kind: runner.Success, Measurement: measurement}, nil
}

func (f *fakeRunner) total() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	total := 0
	for _, calls := range f.calls {
		total += calls
	}
	return total
}

type recordingPlugin struct {
	name     string
	failing  bool
	root     bool
	log      *[]string
	mutex    *sync.Mutex
	setups   int
	teardown int
}

func (p *recordingPlugin) Name() string    { return p.name }
func (p *recordingPlugin) NeedsRoot() bool { return p.root }

func (p *recordingPlugin) Setup() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.setups++
	*p.log = append(*p.log, "setup "+p.name)
	if p.failing {
		return errors.New("cannot apply " + p.name)
	}
	return nil
}

func (p *recordingPlugin) Teardown() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.teardown++
	*p.log = append(*p.log, "teardown "+p.name)
	return nil
}

func parseBlocks(yaml string) []*benchmark.Block {
	blocks, err := benchmark.ParseBlocks([]byte(yaml))
	So(err, ShouldBeNil)
	return blocks
}

func TestSession(t *testing.T) {
	Convey("When running a session", t, func() {
		dir, err := ioutil.TempDir("", "session")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		fake := &fakeRunner{calls: map[string]int{}}
		runners := runner.NewRegistry()
		runners.Register("fake", func(runner.Config) (runner.Runner, error) { return fake, nil })

		var log []string
		var mutex sync.Mutex
		plugins := map[string]*recordingPlugin{}
		registry := environment.NewRegistry()
		for _, name := range []string{"p1", "p2", "p3", "p4", "p5"} {
			plugin := &recordingPlugin{name: name, log: &log, mutex: &mutex}
			plugins[name] = plugin
			registry.Register(name, func(map[string]interface{}) (environment.Plugin, error) { return plugin, nil })
		}
		options := Options{Runners: runners, Plugins: registry, IsRoot: func() bool { return true }}

		config := DefaultConfig(path.Join(dir, "results.yaml"))
		config.Runner = "fake"
		config.MinRuns, config.MaxRuns = 3, 3
		config.Plugins.Enable = []string{"p1", "p2"}
		blocks := parseBlocks(`
- attributes: {description: first, tags: [fast]}
  run_config: {run_cmd: ok}
- attributes: {description: second}
  run_config: {run_cmd: other}
`)

		Convey("Results are stored and the environment is reverted", func() {
			session, err := New(config, blocks, options)
			So(err, ShouldBeNil)
			So(session.ID(), ShouldNotBeEmpty)

			code, err := session.Run(context.Background())
			So(err, ShouldBeNil)
			So(code, ShouldEqual, ExitOK)
			So(log, ShouldResemble, []string{"setup p1", "setup p2", "teardown p2", "teardown p1"})

			stored, err := results.Load(config.OutputPath)
			So(err, ShouldBeNil)
			So(stored.Blocks, ShouldHaveLength, 2)
			So(stored.Block("first").Data["time"], ShouldResemble, []float64{1, 2, 3})
			So(stored.Block("first").Attributes.Tags, ShouldResemble, []string{"fast"})
			So(stored.PropertyDescriptions["time"], ShouldEqual, "Fake execution time")
		})

		Convey("Failing programs result in exit code 1", func() {
			blocks[1].RunConfig.RunCmd = benchmark.StringList{"fail"}
			session, err := New(config, blocks, options)
			So(err, ShouldBeNil)

			code, err := session.Run(context.Background())
			So(err, ShouldBeNil)
			So(code, ShouldEqual, ExitProgramFailure)
			So(session.Snapshot().Block("second").Error, ShouldNotBeNil)
		})

		Convey("Internal errors take precedence over program failures", func() {
			fake.broken = true
			blocks[0].RunConfig.RunCmd = benchmark.StringList{"broken"}
			blocks[1].RunConfig.RunCmd = benchmark.StringList{"fail"}
			session, err := New(config, blocks, options)
			So(err, ShouldBeNil)

			code, err := session.Run(context.Background())
			So(err, ShouldNotBeNil)
			So(code, ShouldEqual, ExitInternalError)
			So(session.Snapshot().Block("first").InternalError, ShouldNotBeNil)
		})

		Convey("Failing third of five plugins aborts the session before any run", func() {
			plugins["p3"].failing = true
			config.Plugins.Enable = []string{"p1", "p2", "p3", "p4", "p5"}
			session, err := New(config, blocks, options)
			So(err, ShouldBeNil)

			code, err := session.Run(context.Background())
			So(code, ShouldEqual, ExitInternalError)
			So(environment.IsSetupError(err), ShouldBeTrue)
			So(log, ShouldResemble, []string{"setup p1", "setup p2", "setup p3", "teardown p2", "teardown p1"})
			So(plugins["p4"].setups+plugins["p4"].teardown+plugins["p5"].setups+plugins["p5"].teardown, ShouldEqual, 0)
			So(fake.total(), ShouldEqual, 0)
			_, statErr := os.Stat(config.OutputPath)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})

		Convey("Missing privileges abort the session", func() {
			plugins["p2"].root = true
			options.IsRoot = func() bool { return false }
			session, err := New(config, blocks, options)
			So(err, ShouldBeNil)

			code, err := session.Run(context.Background())
			So(code, ShouldEqual, ExitInternalError)
			So(err, ShouldNotBeNil)
			So(log, ShouldBeEmpty)
		})

		Convey("Cancellation reverts the environment exactly once and keeps collected samples", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			config.Shuffle = false
			options.Observer = func(scheduler.Event) { cancel() }
			session, err := New(config, blocks, options)
			So(err, ShouldBeNil)

			code, err := session.Run(ctx)
			So(err, ShouldNotBeNil)
			So(code, ShouldEqual, ExitInternalError)
			for _, name := range []string{"p1", "p2"} {
				So(plugins[name].setups, ShouldEqual, 1)
				So(plugins[name].teardown, ShouldEqual, 1)
			}
			stored, err := results.Load(config.OutputPath)
			So(err, ShouldBeNil)
			So(stored.Block("first").Len(), ShouldEqual, 1)
		})

		Convey("Appending merges samples with stored results", func() {
			config.Append = true
			for i := 0; i < 2; i++ {
				session, err := New(config, blocks, options)
				So(err, ShouldBeNil)
				code, err := session.Run(context.Background())
				So(err, ShouldBeNil)
				So(code, ShouldEqual, ExitOK)
			}

			stored, err := results.Load(config.OutputPath)
			So(err, ShouldBeNil)
			So(stored.Blocks, ShouldHaveLength, 2)
			So(stored.Block("first").Data["time"], ShouldResemble, []float64{1, 2, 3, 4, 5, 6})
		})

		Convey("Retrying runs only blocks with internal errors", func() {
			config.Append = true
			fake.broken = true
			blocks[0].RunConfig.RunCmd = benchmark.StringList{"broken"}
			session, err := New(config, blocks, options)
			So(err, ShouldBeNil)
			code, _ := session.Run(context.Background())
			So(code, ShouldEqual, ExitInternalError)

			fake.broken = false
			config.RetryInternalErrors = true
			session, err = New(config, blocks, options)
			So(err, ShouldBeNil)
			selected, err := session.Blocks()
			So(err, ShouldBeNil)
			So(selected, ShouldHaveLength, 1)
			So(selected[0].Description(), ShouldEqual, "first")
			code, err = session.Run(context.Background())
			So(err, ShouldBeNil)
			So(code, ShouldEqual, ExitOK)

			stored, err := results.Load(config.OutputPath)
			So(err, ShouldBeNil)
			So(stored.Block("first").InternalError, ShouldBeNil)
			So(stored.Block("first").Len(), ShouldEqual, 3)
			So(stored.Block("second").Data["time"], ShouldResemble, []float64{1, 2, 3})
			So(fake.calls["other"], ShouldEqual, 3)
		})

		Convey("Invalid configuration is rejected", func() {
			invalid := config
			invalid.RunBlockSize = 0
			_, err := New(invalid, blocks, options)
			So(err, ShouldNotBeNil)

			invalid = config
			invalid.Tester = "z"
			_, err = New(invalid, blocks, options)
			So(err, ShouldNotBeNil)

			invalid = config
			invalid.UncertaintyLow, invalid.UncertaintyHigh = 0.5, 0.1
			_, err = New(invalid, blocks, options)
			So(err, ShouldNotBeNil)

			invalid = config
			invalid.RetryInternalErrors = true
			_, err = New(invalid, blocks, options)
			So(err, ShouldNotBeNil)

			_, err = New(config, nil, options)
			So(err, ShouldNotBeNil)
		})

		Convey("Unknown runners and plugins are configuration errors", func() {
			unknown := config
			unknown.Runner = "stopwatch"
			session, err := New(unknown, blocks, options)
			So(err, ShouldBeNil)
			code, err := session.Run(context.Background())
			So(err, ShouldNotBeNil)
			So(code, ShouldEqual, ExitInternalError)

			unknown = config
			unknown.Plugins.Config = map[string]map[string]interface{}{"p9": {}}
			session, err = New(unknown, blocks, options)
			So(err, ShouldBeNil)
			code, err = session.Run(context.Background())
			So(err, ShouldNotBeNil)
			So(code, ShouldEqual, ExitInternalError)
			So(log, ShouldBeEmpty)
		})

		Convey("Stopping properties must be measured by the runner", func() {
			config.StoppingProperties = []string{"tiem"}
			session, err := New(config, blocks, options)
			So(err, ShouldBeNil)
			code, err := session.Run(context.Background())
			So(err, ShouldNotBeNil)
			So(code, ShouldEqual, ExitInternalError)
			So(fake.total(), ShouldEqual, 0)

			config.StoppingProperties = []string{"time"}
			session, err = New(config, blocks, options)
			So(err, ShouldBeNil)
			code, err = session.Run(context.Background())
			So(err, ShouldBeNil)
			So(code, ShouldEqual, ExitOK)
		})

		Convey("Summary describes every property of every block", func() {
			session, err := New(config, blocks, options)
			So(err, ShouldBeNil)
			_, err = session.Run(context.Background())
			So(err, ShouldBeNil)

			rows := Summarize(session.Snapshot())
			So(rows, ShouldHaveLength, 2)
			So(rows[0].Mean.String(), ShouldEqual, "2")
			So(rows[0].StdDev.String(), ShouldEqual, "1")
			So(rows[0].Samples, ShouldEqual, 3)

			buffer := &bytes.Buffer{}
			RenderSummary(buffer, session.Snapshot())
			So(buffer.String(), ShouldContainSubstring, "first")
			So(buffer.String(), ShouldContainSubstring, "time")
		})
	})
}

func TestSummary(t *testing.T) {
	Convey("Summary of stored results with non-finite samples", t, func() {
		snapshot := &results.Snapshot{Blocks: []results.BlockSnapshot{{
			Attributes: benchmark.Attributes{Description: "broken"},
			Properties: []string{"time"},
			Data:       map[string][]float64{"time": {math.NaN(), math.Inf(1)}},
		}}}

		rows := Summarize(snapshot)
		So(rows, ShouldHaveLength, 1)
		So(rows[0].Mean.String(), ShouldEqual, "0")

		buffer := &bytes.Buffer{}
		So(func() { RenderSummary(buffer, snapshot) }, ShouldNotPanic)
		So(buffer.String(), ShouldContainSubstring, "broken")
	})
}
