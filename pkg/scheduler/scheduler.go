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
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/intelsdi-x/cadence/pkg/environment"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/intelsdi-x/cadence/pkg/results"
	"github.com/intelsdi-x/cadence/pkg/runner"
	"github.com/intelsdi-x/cadence/pkg/stopping"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Task is a block with everything needed to run it.
type Task struct {
	Block  *benchmark.Block
	Runner runner.Runner
	// Hook prepares every run of the block, optional.
	Hook environment.RunHook
}

// Event describes a repetition which was recorded.
type Event struct {
	Block *benchmark.Block
	Kind  runner.Kind
	// Internal is true when the block failed because of an internal error.
	Internal bool
	Attempts int
	// Terminal is true when the block will not be run anymore.
	Terminal bool
}

// Observer is notified about recorded repetitions. It is called concurrently from all partitions.
type Observer func(Event)

// Config configures Scheduler.
type Config struct {
	Bounds BoundsConfig
	// Shuffle randomizes order of blocks in every round.
	Shuffle bool
	Seed    int64
	// RunBlockSize is the number of consecutive repetitions of a block in a round.
	RunBlockSize int
	// DiscardedRuns are warm-up repetitions of every block which are never recorded.
	DiscardedRuns int
	// MaxBlockTime limits a single repetition, zero means no limit.
	MaxBlockTime time.Duration
	// MaxTime limits the whole scheduling, zero means no limit.
	MaxTime time.Duration
	// DiscardAllOnError drops all samples of a block at its first failed repetition.
	DiscardAllOnError bool
	// Partitions are CPU sets of parallel workers, empty means a single unpinned worker.
	Partitions []isolation.IntSet
	// OutputDir keeps stdout and stderr of running programs.
	OutputDir string
	// Checkpoint is called with current results after every round, optional.
	Checkpoint func(*results.Snapshot) error
	Observer   Observer
}

type work struct {
	task        *Task
	repetitions int
}

// Scheduler runs blocks in rounds until all of them collected enough samples.
type Scheduler struct {
	config Config
	tasks  []*Task
	bounds map[int]Bounds
	store  *results.Store
	// engine is optional, without it blocks run until their maximum.
	engine *stopping.Engine

	mutex    sync.Mutex
	random   *rand.Rand
	warmedUp map[int]bool
}

// New returns Scheduler recording into store. Bounds of blocks are resolved here, once.
func New(config Config, tasks []*Task, store *results.Store, engine *stopping.Engine) (*Scheduler, error) {
	if config.RunBlockSize < 1 {
		config.RunBlockSize = 1
	}
	if config.DiscardedRuns < 0 {
		return nil, errors.Errorf("negative number of discarded runs %d", config.DiscardedRuns)
	}
	s := &Scheduler{
		config:   config,
		tasks:    tasks,
		bounds:   map[int]Bounds{},
		store:    store,
		engine:   engine,
		random:   rand.New(rand.NewSource(config.Seed)),
		warmedUp: map[int]bool{},
	}
	for _, task := range tasks {
		if task.Runner == nil {
			return nil, errors.Errorf("block %q has no runner", task.Block.Description())
		}
		s.bounds[task.Block.ID] = ResolveBounds(task.Block, config.Bounds)
	}
	return s, nil
}

// Bounds returns resolved bounds of the block.
func (s *Scheduler) Bounds(id int) Bounds {
	return s.bounds[id]
}

// Run schedules blocks until all of them are terminal, MaxTime elapses or ctx is cancelled.
// Repetitions interrupted by the deadline or cancellation are not recorded.
// Only cancellation of ctx is reported as an error.
func (s *Scheduler) Run(ctx context.Context) error {
	runCtx := ctx
	if s.config.MaxTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.config.MaxTime)
		defer cancel()
	}

	for _, task := range s.tasks {
		if s.bounds[task.Block.ID].Max == 0 {
			s.store.Finish(task.Block.ID)
			s.notify(task, runner.Success)
		}
	}

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "scheduling cancelled")
		}
		if runCtx.Err() != nil {
			logrus.Warnf("maximum time %v reached, %d block(s) left unfinished", s.config.MaxTime, len(s.active()))
			return nil
		}

		active := s.active()
		if len(active) == 0 {
			logrus.Debugf("all blocks finished after %d round(s)", round-1)
			return nil
		}
		logrus.Debugf("round %d with %d active block(s)", round, len(active))

		if err := s.runRound(runCtx, active); err != nil {
			return err
		}
		s.checkpoint()
	}
}

func (s *Scheduler) active() []*Task {
	active := []*Task{}
	for _, task := range s.tasks {
		if !s.store.IsTerminal(task.Block.ID) {
			active = append(active, task)
		}
	}
	if s.config.Shuffle {
		s.mutex.Lock()
		s.random.Shuffle(len(active), func(i, j int) { active[i], active[j] = active[j], active[i] })
		s.mutex.Unlock()
	}
	return active
}

// runRound distributes blocks among partitions, each partition runs its work sequentially.
func (s *Scheduler) runRound(ctx context.Context, active []*Task) error {
	queue := make(chan work, len(active))
	for _, task := range active {
		queue <- work{task: task, repetitions: s.config.RunBlockSize}
	}
	close(queue)

	partitions := s.config.Partitions
	if len(partitions) == 0 {
		partitions = []isolation.IntSet{nil}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, partition := range partitions {
		partition := partition
		group.Go(func() error {
			for item := range queue {
				if err := s.runWork(groupCtx, item, partition); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return group.Wait()
}

func (s *Scheduler) runWork(ctx context.Context, item work, partition isolation.IntSet) error {
	block := item.task.Block
	log := logrus.WithField("block", block.Description())

	if err := s.warmUp(ctx, item.task, partition); err != nil {
		return err
	}

	for i := 0; i < item.repetitions; i++ {
		if ctx.Err() != nil || s.store.IsTerminal(block.ID) {
			return nil
		}
		outcome, err := s.execute(ctx, item.task, partition)
		if err != nil {
			if ctx.Err() != nil {
				log.Debugf("repetition interrupted: %v", err)
				return nil
			}
			log.Errorf("internal error: %v", err)
			if err := s.store.MarkInternalError(block.ID, err.Error()); err != nil {
				return err
			}
			s.notifyInternal(item.task)
			return nil
		}
		if err := s.record(item.task, outcome); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) warmUp(ctx context.Context, task *Task, partition isolation.IntSet) error {
	s.mutex.Lock()
	done := s.warmedUp[task.Block.ID]
	s.warmedUp[task.Block.ID] = true
	s.mutex.Unlock()
	if done {
		return nil
	}

	for i := 0; i < s.config.DiscardedRuns; i++ {
		if ctx.Err() != nil {
			return nil
		}
		outcome, err := s.execute(ctx, task, partition)
		if err != nil {
			logrus.WithField("block", task.Block.Description()).Debugf("discarded run failed: %v", err)
			continue
		}
		logrus.WithField("block", task.Block.Description()).Debugf("discarded run: %s", outcome.Message())
	}
	return nil
}

func (s *Scheduler) execute(ctx context.Context, task *Task, partition isolation.IntSet) (runner.Outcome, error) {
	block := task.Block
	command := 0
	if n := len(block.Commands()); n > 1 {
		s.mutex.Lock()
		command = s.random.Intn(n)
		s.mutex.Unlock()
	}

	run := &environment.RunContext{
		Command: block.Command(command),
		Env:     append(os.Environ(), block.Environment()...),
	}
	if task.Hook != nil {
		if err := task.Hook.PrepareRun(run); err != nil {
			return runner.Outcome{}, errors.Wrap(err, "cannot prepare run")
		}
	}
	if partition != nil {
		run.Decorators = append(run.Decorators, isolation.NewTasksetDecorator(partition))
	}

	return task.Runner.Execute(ctx, runner.Spec{
		Command:    run.Command,
		Dir:        block.RunConfig.Cwd,
		Env:        run.Env,
		Timeout:    s.config.MaxBlockTime,
		Validator:  block.RunConfig.Validator,
		Decorators: run.Decorators,
		OutputDir:  s.config.OutputDir,
	})
}

// record stores outcome of a repetition and decides whether the block is finished.
func (s *Scheduler) record(task *Task, outcome runner.Outcome) error {
	id := task.Block.ID
	log := logrus.WithField("block", task.Block.Description())

	if outcome.Failed() {
		record := results.ErrorRecord{
			Message:     outcome.Message(),
			ReturnCode:  outcome.ExitCode,
			Output:      outcome.Stdout,
			ErrorOutput: outcome.Stderr,
		}
		if s.config.DiscardAllOnError {
			log.Errorf("%s, discarding all samples of the block", outcome.Message())
			if err := s.store.MarkError(id, record); err != nil {
				return err
			}
			s.notify(task, outcome.Kind)
			return nil
		}
		log.Warnf("repetition failed: %s", outcome.Message())
		if err := s.store.RecordFailure(id, record); err != nil {
			return err
		}
		s.finishIfDone(task, false)
		s.notify(task, outcome.Kind)
		return nil
	}

	if err := s.store.Append(id, outcome.Measurement); err != nil {
		log.Errorf("cannot record measurement: %v", err)
		if err := s.store.MarkInternalError(id, err.Error()); err != nil {
			return err
		}
		s.notifyInternal(task)
		return nil
	}
	s.finishIfDone(task, true)
	s.notify(task, outcome.Kind)
	return nil
}

// finishIfDone finishes the block at its maximum, or earlier when it reached its minimum
// and the stopping engine is conclusive.
func (s *Scheduler) finishIfDone(task *Task, query bool) {
	id := task.Block.ID
	bounds := s.bounds[id]
	attempts := s.store.Attempts(id)

	switch {
	case attempts >= bounds.Max:
		logrus.WithField("block", task.Block.Description()).Debugf("maximum of %d attempts reached", bounds.Max)
		s.store.Finish(id)
	case query && attempts >= bounds.Min && s.engine != nil:
		decision := s.engine.Evaluate(s.samples(id), s.peers(id))
		if decision.Conclusive {
			logrus.WithField("block", task.Block.Description()).Debugf("conclusive after %d attempts", attempts)
			s.store.Finish(id)
		}
	}
}

func (s *Scheduler) samples(id int) stopping.Samples {
	properties, data := s.store.Samples(id)
	return stopping.Samples{ID: id, Data: data, Properties: properties}
}

// peers are all other blocks which are not erroneous, finished ones included.
func (s *Scheduler) peers(id int) []stopping.Samples {
	peers := []stopping.Samples{}
	for _, task := range s.tasks {
		other := task.Block.ID
		if other == id || s.store.IsErroneous(other) {
			continue
		}
		samples := s.samples(other)
		samples.Final = s.store.IsTerminal(other)
		peers = append(peers, samples)
	}
	return peers
}

func (s *Scheduler) notify(task *Task, kind runner.Kind) {
	s.publish(Event{Block: task.Block, Kind: kind})
}

func (s *Scheduler) notifyInternal(task *Task) {
	s.publish(Event{Block: task.Block, Internal: true})
}

func (s *Scheduler) publish(event Event) {
	if s.config.Observer == nil {
		return
	}
	event.Attempts = s.store.Attempts(event.Block.ID)
	event.Terminal = s.store.IsTerminal(event.Block.ID)
	s.config.Observer(event)
}

func (s *Scheduler) checkpoint() {
	if s.config.Checkpoint == nil {
		return
	}
	if err := s.config.Checkpoint(s.store.Snapshot()); err != nil {
		logrus.Errorf("cannot store intermediate results: %v", err)
	}
}
