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
	"context"
	"io/ioutil"
	"os"
	"strings"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/intelsdi-x/cadence/pkg/environment"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/intelsdi-x/cadence/pkg/results"
	"github.com/intelsdi-x/cadence/pkg/runner"
	"github.com/intelsdi-x/cadence/pkg/scheduler"
	"github.com/intelsdi-x/cadence/pkg/stopping"
	"github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Exit codes of a session.
const (
	ExitOK             = 0
	ExitProgramFailure = 1
	ExitInternalError  = 255
)

// Options replace machine facing collaborators of a session.
type Options struct {
	// Runners defaults to runner.DefaultRegistry().
	Runners *runner.Registry
	// Plugins defaults to environment.DefaultRegistry over environment.DefaultDeps.
	Plugins *environment.Registry
	// IsRoot defaults to environment.IsRoot.
	IsRoot func() bool
	// AvailableCPUs defaults to isolation.AvailableCPUs.
	AvailableCPUs func() (isolation.IntSet, error)
	Observer      scheduler.Observer
}

// Session benchmarks blocks once with conditioned environment and stores the results.
type Session struct {
	id      string
	config  Config
	blocks  []*benchmark.Block
	options Options

	selected []*benchmark.Block
	prior    *results.Snapshot
	store    *results.Store
	snapshot *results.Snapshot
}

// New validates configuration and returns a Session of blocks.
func New(config Config, blocks []*benchmark.Block, options Options) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, errors.New("no program blocks to benchmark")
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, errors.Wrap(err, "cannot generate session id")
	}

	if options.Runners == nil {
		options.Runners = runner.DefaultRegistry()
	}
	if options.Plugins == nil {
		options.Plugins = environment.DefaultRegistry(environment.DefaultDeps(config.Seed))
	}
	if options.IsRoot == nil {
		options.IsRoot = environment.IsRoot
	}
	if options.AvailableCPUs == nil {
		options.AvailableCPUs = isolation.AvailableCPUs
	}

	return &Session{id: id.String(), config: config, blocks: blocks, options: options}, nil
}

// ID returns unique identifier of the session.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns results stored by the last Run, including prior results when appending.
func (s *Session) Snapshot() *results.Snapshot {
	return s.snapshot
}

// Run benchmarks all blocks and stores the results. The environment is reverted whatever happens.
// Returned exit code is ExitInternalError for setup, configuration and internal errors,
// ExitProgramFailure when any benchmarked program failed, ExitOK otherwise.
func (s *Session) Run(ctx context.Context) (int, error) {
	log := logrus.WithField("session", s.id)

	blocks, err := s.Blocks()
	if err != nil {
		return ExitInternalError, err
	}
	tasks, descriptions, err := s.createTasks(blocks)
	if err != nil {
		return ExitInternalError, err
	}
	engine, err := s.createEngine()
	if err != nil {
		return ExitInternalError, err
	}
	controller, err := s.createController()
	if err != nil {
		return ExitInternalError, err
	}

	if err := controller.Activate(ctx); err != nil {
		controller.Deactivate()
		return ExitInternalError, err
	}
	defer func() {
		if err := controller.Deactivate(); err != nil {
			log.Errorf("environment was not completely reverted: %v", err)
		}
	}()

	for _, task := range tasks {
		hook, err := controller.HooksFor(task.Block)
		if err != nil {
			return ExitInternalError, err
		}
		task.Hook = hook
	}

	partitions, err := s.partitions()
	if err != nil {
		return ExitInternalError, err
	}

	outputDir, cleanup, err := s.outputDir()
	if err != nil {
		return ExitInternalError, err
	}
	defer cleanup()

	s.store = results.NewStore(blocks)
	s.store.AddPropertyDescriptions(descriptions)

	config := scheduler.Config{
		Bounds:            s.config.boundsConfig(),
		Shuffle:           s.config.Shuffle,
		Seed:              s.config.Seed,
		RunBlockSize:      s.config.RunBlockSize,
		DiscardedRuns:     s.config.DiscardedRuns,
		MaxBlockTime:      s.config.MaxBlockTime,
		MaxTime:           s.config.MaxTime,
		DiscardAllOnError: s.config.DiscardAllOnError,
		Partitions:        partitions,
		OutputDir:         outputDir,
		Observer:          s.options.Observer,
	}
	if s.config.StoreOften {
		config.Checkpoint = s.persist
	}
	sched, err := scheduler.New(config, tasks, s.store, engine)
	if err != nil {
		return ExitInternalError, err
	}

	log.Infof("benchmarking %d block(s)", len(blocks))
	runErr := sched.Run(ctx)

	if err := s.persist(s.store.Snapshot()); err != nil {
		return ExitInternalError, err
	}
	log.Infof("results stored in %q", s.config.OutputPath)

	switch {
	case runErr != nil:
		return ExitInternalError, runErr
	case s.store.HasInternalErrors():
		return ExitInternalError, errors.New("some blocks could not be processed because of internal errors")
	case s.store.HasProgramErrors():
		return ExitProgramFailure, nil
	}
	return ExitOK, nil
}

// selectBlocks loads prior results when appending and picks blocks to run.
// Blocks returns blocks the session runs. With RetryInternalErrors these are only blocks
// stored with an internal error.
func (s *Session) Blocks() ([]*benchmark.Block, error) {
	if s.selected == nil {
		selected, err := s.selectBlocks()
		if err != nil {
			return nil, err
		}
		s.selected = selected
	}
	return s.selected, nil
}

func (s *Session) selectBlocks() ([]*benchmark.Block, error) {
	if !s.config.Append {
		return s.blocks, nil
	}
	if _, err := os.Stat(s.config.OutputPath); os.IsNotExist(err) {
		logrus.Debugf("no prior results in %q", s.config.OutputPath)
		return s.blocks, nil
	}
	prior, err := results.Load(s.config.OutputPath)
	if err != nil {
		return nil, err
	}
	s.prior = prior
	if !s.config.RetryInternalErrors {
		return s.blocks, nil
	}

	selected := []*benchmark.Block{}
	for _, block := range s.blocks {
		if priorBlock := prior.Block(block.Description()); priorBlock != nil && priorBlock.InternalError != nil {
			selected = append(selected, block)
		}
	}
	if len(selected) == 0 {
		return nil, errors.Errorf("no blocks with internal errors in %q", s.config.OutputPath)
	}
	logrus.Infof("retrying %d block(s) with internal errors", len(selected))
	return selected, nil
}

// createTasks creates runners of blocks, blocks with equal runner configuration share the runner.
func (s *Session) createTasks(blocks []*benchmark.Block) ([]*scheduler.Task, map[string]string, error) {
	runners := map[string]runner.Runner{}
	descriptions := map[string]string{}
	tasks := make([]*scheduler.Task, 0, len(blocks))

	for _, block := range blocks {
		name := s.config.Runner
		if block.RunConfig.Runner != "" {
			name = block.RunConfig.Runner
		}
		properties := s.config.Properties
		if len(block.RunConfig.Properties) > 0 {
			properties = block.RunConfig.Properties
		}

		key := name + "\x00" + strings.Join(properties, ",")
		r, ok := runners[key]
		if !ok {
			var err error
			r, err = s.options.Runners.Create(name, runner.Config{Properties: properties, PerfStatRepeat: s.config.PerfStatRepeat})
			if err != nil {
				return nil, nil, errors.Wrapf(err, "block %q", block.Description())
			}
			runners[key] = r
			for property, description := range r.Properties() {
				descriptions[property] = description
			}
		}
		tasks = append(tasks, &scheduler.Task{Block: block, Runner: r})
	}

	// Stopping properties are compared across blocks, so every runner in use must measure them.
	for _, property := range s.config.StoppingProperties {
		for _, r := range runners {
			if _, ok := r.Properties()[property]; !ok {
				return nil, nil, errors.Errorf("stopping property %q is not measured by runner %q", property, r.Name())
			}
		}
	}
	return tasks, descriptions, nil
}

func (s *Session) createEngine() (*stopping.Engine, error) {
	tester, err := stopping.TesterByName(s.config.Tester)
	if err != nil {
		return nil, err
	}
	return stopping.NewEngine(stopping.Config{
		Tester:     tester,
		Band:       s.config.band(),
		Properties: s.config.StoppingProperties,
	})
}

func (s *Session) createController() (*environment.Controller, error) {
	plugins := s.config.Plugins
	names, err := s.options.Plugins.Select(plugins.Preset, plugins.Enable, plugins.Disable)
	if err != nil {
		return nil, err
	}
	for name := range plugins.Config {
		if !contains(s.options.Plugins.Names(), name) {
			return nil, errors.Errorf("configuration of unknown plugin %q", name)
		}
	}
	created, err := s.options.Plugins.Create(names, plugins.Config)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("active plugins: %v", names)
	return environment.NewController(created).WithRootCheck(s.options.IsRoot), nil
}

func (s *Session) partitions() ([]isolation.IntSet, error) {
	if s.config.Parallel == 0 {
		return nil, nil
	}
	available, err := s.options.AvailableCPUs()
	if err != nil {
		return nil, err
	}
	partitioning, err := isolation.PartitionCPUs(available, s.config.BaseCores, s.config.SubCores, s.config.Parallel)
	if err != nil {
		return nil, err
	}
	for i, partition := range partitioning.Partitions {
		logrus.Debugf("partition %d uses CPUs %s", i, partition.AsRangeString())
	}
	return partitioning.Partitions, nil
}

// outputDir returns directory for program outputs and a function removing it if it was created.
func (s *Session) outputDir() (string, func(), error) {
	if s.config.OutputDir != "" {
		return s.config.OutputDir, func() {}, nil
	}
	dir, err := ioutil.TempDir("", "cadence-"+s.id)
	if err != nil {
		return "", nil, errors.Wrap(err, "cannot create directory for program outputs")
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			logrus.Warnf("cannot remove %q: %v", dir, err)
		}
	}, nil
}

// persist stores snapshot merged with prior results.
func (s *Session) persist(snapshot *results.Snapshot) error {
	if s.prior != nil {
		snapshot = results.Merge(s.prior, snapshot)
	}
	if err := results.Save(s.config.OutputPath, snapshot); err != nil {
		return err
	}
	s.snapshot = snapshot
	return nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
