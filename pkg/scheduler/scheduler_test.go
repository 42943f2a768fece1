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

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/intelsdi-x/cadence/pkg/results"
	"github.com/intelsdi-x/cadence/pkg/runner"
	"github.com/intelsdi-x/cadence/pkg/stopping"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeRunner returns outcomes produced by per command functions of the repetition number.
type fakeRunner struct {
	mutex    sync.Mutex
	outcomes map[string]func(n int) (runner.Outcome, error)
	calls    map[string]int
	specs    []runner.Spec
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outcomes: map[string]func(int) (runner.Outcome, error){}, calls: map[string]int{}}
}

func (f *fakeRunner) Name() string { return "fake" }

func (f *fakeRunner) Properties() map[string]string {
	return map[string]string{"time": "fake time"}
}

func (f *fakeRunner) Execute(ctx context.Context, spec runner.Spec) (runner.Outcome, error) {
	f.mutex.Lock()
	n := f.calls[spec.Command]
	f.calls[spec.Command]++
	f.specs = append(f.specs, spec)
	produce := f.outcomes[spec.Command]
	f.mutex.Unlock()
	return produce(n)
}

func (f *fakeRunner) callsOf(command string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls[command]
}

func measured(values ...float64) runner.Outcome {
	measurement := benchmark.NewMeasurement()
	measurement.Add("time", values...)
	return runner.Outcome{Kind: runner.Success, Measurement: measurement}
}

// noisy returns deterministic values around mean.
func noisy(mean float64) func(int) (runner.Outcome, error) {
	return func(n int) (runner.Outcome, error) {
		return measured(mean + float64((n*7)%11) - 5), nil
	}
}

func newBlocks(commands ...string) []*benchmark.Block {
	blocks := []*benchmark.Block{}
	for i, command := range commands {
		blocks = append(blocks, &benchmark.Block{
			ID:         i,
			Attributes: benchmark.Attributes{Description: command},
			RunConfig:  benchmark.RunConfig{RunCmd: benchmark.StringList{command}},
		})
	}
	return blocks
}

func newTasks(blocks []*benchmark.Block, r runner.Runner) []*Task {
	tasks := []*Task{}
	for _, block := range blocks {
		tasks = append(tasks, &Task{Block: block, Runner: r})
	}
	return tasks
}

func newEngine() *stopping.Engine {
	tester, err := stopping.TesterByName(stopping.TTest)
	So(err, ShouldBeNil)
	engine, err := stopping.NewEngine(stopping.Config{Tester: tester, Band: stopping.DefaultBand})
	So(err, ShouldBeNil)
	return engine
}

func TestScheduler(t *testing.T) {
	Convey("When scheduling two blocks", t, func() {
		fake := newFakeRunner()
		blocks := newBlocks("a", "b")
		store := results.NewStore(blocks)
		config := Config{Bounds: BoundsConfig{Runs: Unset, MinRuns: 5, MaxRuns: 100}, Shuffle: true, Seed: 3}

		Convey("Clearly different blocks stop early with a conclusive verdict", func() {
			fake.outcomes["a"] = noisy(100)
			fake.outcomes["b"] = noisy(200)
			s, err := New(config, newTasks(blocks, fake), store, newEngine())
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			for _, id := range []int{0, 1} {
				So(store.IsTerminal(id), ShouldBeTrue)
				So(store.IsErroneous(id), ShouldBeFalse)
				So(store.Len(id), ShouldBeBetweenOrEqual, 5, 10)
			}
		})

		Convey("Blocks with identical distributions stop at their minimum", func() {
			config.Bounds.MinRuns = 20
			fake.outcomes["a"] = noisy(100)
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, newEngine())
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(store.Len(0), ShouldEqual, 20)
			So(store.Len(1), ShouldEqual, 20)
		})

		Convey("A block does not stop before its peers have samples to compare with", func() {
			config.Shuffle = false
			config.RunBlockSize = 3
			config.Bounds.MinRuns = 2
			fake.outcomes["a"] = noisy(100)
			fake.outcomes["b"] = noisy(200)
			s, err := New(config, newTasks(blocks, fake), store, newEngine())
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(store.Len(0), ShouldBeGreaterThanOrEqualTo, 3)
			So(store.Len(1), ShouldBeGreaterThanOrEqualTo, 2)
			for _, id := range []int{0, 1} {
				So(store.IsTerminal(id), ShouldBeTrue)
				So(store.Len(id), ShouldBeLessThan, 20)
			}
		})

		Convey("Minimum of one run does not stop a block after a single sample", func() {
			config.Shuffle = false
			config.Bounds.MinRuns = 1
			fake.outcomes["a"] = noisy(100)
			fake.outcomes["b"] = noisy(200)
			s, err := New(config, newTasks(blocks, fake), store, newEngine())
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			for _, id := range []int{0, 1} {
				So(store.IsTerminal(id), ShouldBeTrue)
				So(store.Len(id), ShouldBeBetweenOrEqual, 2, 10)
			}
		})

		Convey("Discard all policy drops samples at the first failure and stops the block", func() {
			config.DiscardAllOnError = true
			config.Bounds.MinRuns, config.Bounds.MaxRuns = 5, 5
			fake.outcomes["a"] = func(n int) (runner.Outcome, error) {
				if n == 2 {
					return runner.Outcome{Kind: runner.ProcessFailure, ExitCode: 3, Stderr: "boom"}, nil
				}
				return measured(1), nil
			}
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(fake.callsOf("a"), ShouldEqual, 3)
			So(store.Len(0), ShouldEqual, 0)
			So(store.IsErroneous(0), ShouldBeTrue)
			So(store.Len(1), ShouldEqual, 5)

			snapshot := store.Snapshot()
			So(snapshot.Blocks[0].Error, ShouldNotBeNil)
			So(snapshot.Blocks[0].Error.ReturnCode, ShouldEqual, 3)
			So(snapshot.Blocks[0].Error.ErrorOutput, ShouldEqual, "boom")
		})

		Convey("Without discard policy failures count as attempts and samples are kept", func() {
			config.Bounds.MinRuns, config.Bounds.MaxRuns = 6, 6
			fake.outcomes["a"] = func(n int) (runner.Outcome, error) {
				if n%3 == 0 {
					return runner.Outcome{Kind: runner.Timeout, Reason: "killed"}, nil
				}
				return measured(1), nil
			}
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(fake.callsOf("a"), ShouldEqual, 6)
			So(store.Attempts(0), ShouldEqual, 6)
			So(store.Len(0), ShouldEqual, 4)
			So(store.IsErroneous(0), ShouldBeFalse)
			So(store.HasProgramErrors(), ShouldBeTrue)
		})

		Convey("Internal errors stop only the affected block", func() {
			config.Bounds.MinRuns, config.Bounds.MaxRuns = 3, 3
			fake.outcomes["a"] = func(int) (runner.Outcome, error) {
				return runner.Outcome{}, errors.New("cannot start")
			}
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(fake.callsOf("a"), ShouldEqual, 1)
			So(store.HasInternalErrors(), ShouldBeTrue)
			So(store.Len(1), ShouldEqual, 3)
		})

		Convey("Malformed measurements are internal errors", func() {
			config.Bounds.MinRuns, config.Bounds.MaxRuns = 3, 3
			fake.outcomes["a"] = func(int) (runner.Outcome, error) {
				measurement := benchmark.NewMeasurement()
				measurement.Add("x", 1, 2)
				measurement.Add("y", 1)
				return runner.Outcome{Kind: runner.Success, Measurement: measurement}, nil
			}
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(store.Snapshot().Blocks[0].InternalError, ShouldNotBeNil)
		})

		Convey("Discarded runs are executed but never recorded", func() {
			config.DiscardedRuns = 2
			config.Bounds.MinRuns, config.Bounds.MaxRuns = 3, 3
			fake.outcomes["a"] = noisy(100)
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(fake.callsOf("a"), ShouldEqual, 5)
			So(store.Len(0), ShouldEqual, 3)
		})

		Convey("Rounds run several repetitions of a block and notify the observer", func() {
			var mutex sync.Mutex
			events := 0
			config.RunBlockSize = 4
			config.Bounds.MinRuns, config.Bounds.MaxRuns = 6, 6
			config.Observer = func(Event) {
				mutex.Lock()
				events++
				mutex.Unlock()
			}
			rounds := 0
			config.Checkpoint = func(*results.Snapshot) error {
				rounds++
				return nil
			}
			fake.outcomes["a"] = noisy(100)
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(store.Len(0), ShouldEqual, 6)
			So(store.Len(1), ShouldEqual, 6)
			So(events, ShouldEqual, 12)
			So(rounds, ShouldEqual, 2)
		})

		Convey("Per run deadline is passed to the runner", func() {
			config.MaxBlockTime = 3 * time.Second
			config.Bounds.MinRuns, config.Bounds.MaxRuns = 1, 1
			fake.outcomes["a"] = noisy(100)
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(fake.specs, ShouldHaveLength, 2)
			So(fake.specs[0].Timeout, ShouldEqual, 3*time.Second)
		})

		Convey("Parallel partitions pin programs to their CPUs", func() {
			config.Partitions = []isolation.IntSet{isolation.NewIntSet(1), isolation.NewIntSet(2)}
			config.Bounds.MinRuns, config.Bounds.MaxRuns = 4, 4
			fake.outcomes["a"] = noisy(100)
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(store.Len(0), ShouldEqual, 4)
			So(store.Len(1), ShouldEqual, 4)
			for _, spec := range fake.specs {
				decorated := spec.Decorators.Decorate(spec.Command)
				So(decorated == "taskset -c 1 sh -c '"+spec.Command+"'" || decorated == "taskset -c 2 sh -c '"+spec.Command+"'", ShouldBeTrue)
			}
		})

		Convey("Session deadline halts scheduling without recording interrupted repetitions", func() {
			config.MaxTime = 200 * time.Millisecond
			fake.outcomes["a"] = noisy(100)
			config.Shuffle = false
			blockingRunner := &contextRunner{fakeRunner: fake, block: "b"}
			s, err := New(config, newTasks(blocks, blockingRunner), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(store.Len(1), ShouldEqual, 0)
			So(store.Attempts(1), ShouldEqual, 0)
			So(store.IsErroneous(1), ShouldBeFalse)
			So(store.Len(0), ShouldEqual, 1)
		})

		Convey("Cancellation is reported as an error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			fake.outcomes["a"] = noisy(100)
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			err = s.Run(ctx)
			So(errors.Cause(err), ShouldEqual, context.Canceled)
			So(fake.callsOf("a"), ShouldEqual, 0)
		})

		Convey("Blocks with zero runs are finished without running", func() {
			zero := 0
			blocks[0].RunConfig.Runs = &zero
			config.Bounds.MinRuns, config.Bounds.MaxRuns = 2, 2
			var mutex sync.Mutex
			terminal := map[string]int{}
			config.Observer = func(event Event) {
				mutex.Lock()
				defer mutex.Unlock()
				if event.Terminal {
					terminal[event.Block.Description()]++
				}
			}
			fake.outcomes["b"] = noisy(100)
			s, err := New(config, newTasks(blocks, fake), store, nil)
			So(err, ShouldBeNil)

			So(s.Run(context.Background()), ShouldBeNil)
			So(fake.callsOf("a"), ShouldEqual, 0)
			So(store.IsTerminal(0), ShouldBeTrue)
			So(terminal, ShouldResemble, map[string]int{"a": 1, "b": 1})
		})

		Convey("Blocks without runner are rejected", func() {
			_, err := New(config, []*Task{{Block: blocks[0]}}, store, nil)
			So(err, ShouldNotBeNil)
		})
	})
}

// contextRunner blocks the given command until the context is done.
type contextRunner struct {
	*fakeRunner
	block string
}

func (c *contextRunner) Execute(ctx context.Context, spec runner.Spec) (runner.Outcome, error) {
	if spec.Command == c.block {
		<-ctx.Done()
		return runner.Outcome{}, ctx.Err()
	}
	return c.fakeRunner.Execute(ctx, spec)
}

func TestResolveBounds(t *testing.T) {
	intPtr := func(i int) *int { return &i }

	Convey("When resolving repetition bounds", t, func() {
		block := &benchmark.Block{Attributes: benchmark.Attributes{Tags: []string{"fast", "io"}}}
		config := BoundsConfig{Runs: Unset, MinRuns: 20, MaxRuns: 100}

		Convey("Global bounds apply to untagged configuration", func() {
			So(ResolveBounds(block, config), ShouldResemble, Bounds{Min: 20, Max: 100})
		})

		Convey("The tightest of global and tag bounds wins", func() {
			config.MinRunsPerTag = map[string]int{"fast": 10, "io": 30}
			config.MaxRunsPerTag = map[string]int{"fast": 50, "io": 200}
			So(ResolveBounds(block, config), ShouldResemble, Bounds{Min: 30, Max: 50})
		})

		Convey("Global runs override global bounds", func() {
			config.Runs = 7
			config.MinRunsPerTag = map[string]int{"io": 30}
			So(ResolveBounds(block, config), ShouldResemble, Bounds{Min: 7, Max: 7})
		})

		Convey("Largest matching runs per tag overrides global runs", func() {
			config.Runs = 7
			config.RunsPerTag = map[string]int{"fast": 12, "io": 15, "other": 99}
			So(ResolveBounds(block, config), ShouldResemble, Bounds{Min: 15, Max: 15})
		})

		Convey("Block bounds override tags and block runs override everything", func() {
			config.RunsPerTag = map[string]int{"fast": 12}
			block.RunConfig.MaxRuns = intPtr(8)
			So(ResolveBounds(block, config), ShouldResemble, Bounds{Min: 8, Max: 8})

			block.RunConfig.MinRuns = intPtr(2)
			So(ResolveBounds(block, config), ShouldResemble, Bounds{Min: 2, Max: 8})

			block.RunConfig.Runs = intPtr(3)
			So(ResolveBounds(block, config), ShouldResemble, Bounds{Min: 3, Max: 3})
		})

		Convey("Minimum never exceeds maximum", func() {
			config.MinRuns, config.MaxRuns = 50, 10
			So(ResolveBounds(block, config), ShouldResemble, Bounds{Min: 10, Max: 10})
		})

		Convey("Every combination keeps bounds ordered and non negative", func() {
			for _, min := range []int{0, 5, 30} {
				for _, max := range []int{0, 5, 30} {
					for _, tagMax := range []int{1, 10, 100} {
						config := BoundsConfig{Runs: Unset, MinRuns: min, MaxRuns: max, MaxRunsPerTag: map[string]int{"io": tagMax}}
						bounds := ResolveBounds(block, config)
						So(bounds.Min, ShouldBeGreaterThanOrEqualTo, 0)
						So(bounds.Min, ShouldBeLessThanOrEqualTo, bounds.Max)
						So(bounds.Max, ShouldBeLessThanOrEqualTo, max)
					}
				}
			}
		})
	})
}
