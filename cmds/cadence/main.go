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

package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/intelsdi-x/cadence/pkg/conf"
	"github.com/intelsdi-x/cadence/pkg/environment"
	"github.com/intelsdi-x/cadence/pkg/runner"
	"github.com/intelsdi-x/cadence/pkg/scheduler"
	"github.com/intelsdi-x/cadence/pkg/session"
	"github.com/intelsdi-x/cadence/pkg/stopping"
	"github.com/intelsdi-x/cadence/pkg/utils/errutil"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/cheggaaa/pb.v1"
	"gopkg.in/yaml.v3"
)

var (
	// Input and output.
	blocksFlag     = conf.NewStringFlag("blocks", "YAML file with program blocks to benchmark", "")
	outputFlag     = conf.NewStringFlag("output", "File where results are stored", "results.yaml")
	appendFlag     = conf.NewBoolFlag("append", "Merge results with results already stored in the output file", false)
	retryFlag      = conf.NewBoolFlag("retry_internal_errors", "Run only blocks which ended with an internal error in the output file", false)
	storeOftenFlag = conf.NewBoolFlag("store_often", "Store results after every round", false)
	outputDirFlag  = conf.NewStringFlag("output_dir", "Directory for stdout and stderr of benchmarked programs, temporary when empty", "")
	dumpConfigFlag = conf.NewBoolFlag("config_dump", "Dump configuration as environment script and exit", false)

	// Measurement.
	runnerFlag         = conf.NewStringFlag("runner", fmt.Sprintf("Runner measuring every repetition, one of %v", runner.DefaultRegistry().Names()), runner.TimeRunnerName)
	propertiesFlag     = conf.NewSliceFlag("properties", "Properties measured by the runner, runner defaults when empty")
	perfStatRepeatFlag = conf.NewIntFlag("perf_stat_repeat", "Number of repetitions inside one perf stat execution", 1)

	// Environment plugins.
	presetFlag       = conf.NewStringFlag("preset", "Plugin preset: none, usable or all", environment.PresetNone)
	enableFlag       = conf.NewSliceFlag("enable", "Plugins enabled in addition to the preset")
	disableFlag      = conf.NewSliceFlag("disable", "Plugins disabled even if the preset or --enable selects them")
	pluginConfigFlag = conf.NewStringFlag("plugin_config", "YAML file with configuration of plugins keyed by plugin name", "")

	// Scheduling.
	runsFlag          = conf.NewIntFlag("runs", "Exact number of repetitions of every block, -1 uses min and max runs", scheduler.Unset)
	minRunsFlag       = conf.NewIntFlag("min_runs", "Minimum number of repetitions of every block", 20)
	maxRunsFlag       = conf.NewIntFlag("max_runs", "Maximum number of repetitions of every block", 100)
	runsPerTagFlag    = conf.NewTagMapFlag("runs_per_tag", "Exact number of repetitions per tag, e.g. slow=10,fast=100", "")
	minRunsPerTagFlag = conf.NewTagMapFlag("min_runs_per_tag", "Minimum number of repetitions per tag", "")
	maxRunsPerTagFlag = conf.NewTagMapFlag("max_runs_per_tag", "Maximum number of repetitions per tag", "")
	shuffleFlag       = conf.NewBoolFlag("shuffle", "Randomize order of blocks in every round", true)
	seedFlag          = conf.NewIntFlag("seed", "Seed of all random choices, current time when zero", 0)
	runBlockSizeFlag  = conf.NewIntFlag("run_block_size", "Number of consecutive repetitions of a block in one round", 1)
	discardedRunsFlag = conf.NewIntFlag("discarded_runs", "Number of warm up repetitions of every block which are not recorded", 0)
	maxBlockTimeFlag  = conf.NewDurationFlag("max_block_time", "Maximum duration of one repetition, zero means no limit", 0)
	maxTimeFlag       = conf.NewDurationFlag("max_time", "Maximum duration of the whole session, zero means no limit", 0)
	discardAllFlag    = conf.NewBoolFlag("discard_all_on_error", "Drop all samples of a block when one of its repetitions fails", false)

	// CPU partitioning.
	parallelFlag  = conf.NewIntFlag("parallel", "Number of CPU partitions running blocks in parallel, -1 for as many as possible", 0)
	baseCoresFlag = conf.NewIntFlag("base_cores", "Number of cores left for the system and the tool", 1)
	subCoresFlag  = conf.NewIntFlag("sub_cores", "Number of cores in every partition", 1)

	// Early stopping.
	testerFlag             = conf.NewStringFlag("tester", "Statistical test: t, ks or mannwhitney", stopping.TTest)
	uncertaintyLowFlag     = conf.NewFloatFlag("uncertainty_low", "Upper p-value considered as a significant difference", stopping.DefaultBand.Low)
	uncertaintyHighFlag    = conf.NewFloatFlag("uncertainty_high", "Lower p-value considered as an equality", stopping.DefaultBand.High)
	stoppingPropertiesFlag = conf.NewSliceFlag("stopping_properties", "Properties compared by the statistical test, all when empty")
)

func main() {
	conf.SetAppName("cadence")
	conf.SetHelp(`Cadence benchmarks program blocks repeatedly in a controlled environment.
It interleaves repetitions of blocks, stops early once a statistical test gives a conclusive answer
and stores all samples in a YAML file which can be extended by subsequent sessions.`)

	// Configuration errors exit with the same code as internal errors.
	logrus.StandardLogger().ExitFunc = func(int) { os.Exit(session.ExitInternalError) }

	errutil.Check(conf.ParseFlags())
	logrus.SetLevel(conf.LogLevel())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.100"})

	if dumpConfigFlag.Value() {
		fmt.Println(conf.DumpConfig())
		os.Exit(session.ExitOK)
	}

	if blocksFlag.Value() == "" {
		logrus.Fatal("No program blocks given, use --blocks")
	}
	blocks, err := benchmark.LoadBlocks(blocksFlag.Value())
	errutil.CheckWithContext(err, "Cannot load program blocks")

	config, err := sessionConfig()
	errutil.CheckWithContext(err, "Invalid configuration")

	options := session.Options{
		Plugins: environment.DefaultRegistry(environment.DefaultDeps(config.Seed)),
	}

	// Progress bar is shown only when logs do not clutter the terminal.
	var bar *pb.ProgressBar
	var observer scheduler.Observer
	options.Observer = func(event scheduler.Event) {
		if observer != nil {
			observer(event)
		}
	}

	s, err := session.New(config, blocks, options)
	errutil.CheckWithContext(err, "Cannot create session")
	selected, err := s.Blocks()
	errutil.CheckWithContext(err, "Cannot select blocks")

	if conf.LogLevel() == logrus.ErrorLevel {
		bar = pb.StartNew(len(selected))
		bar.ShowCounters = false
		bar.ShowTimeLeft = true
		observer = progress(bar)
	}
	logrus.Infof("session %s started with %d block(s)", s.ID(), len(selected))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code, err := s.Run(ctx)
	stop()
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		logrus.Errorf("session %s: %v", s.ID(), err)
	}

	if snapshot := s.Snapshot(); snapshot != nil {
		session.RenderSummary(os.Stdout, snapshot)
	}
	os.Exit(code)
}

func sessionConfig() (session.Config, error) {
	config := session.DefaultConfig(outputFlag.Value())
	config.Append = appendFlag.Value()
	config.RetryInternalErrors = retryFlag.Value()
	config.StoreOften = storeOftenFlag.Value()
	config.OutputDir = outputDirFlag.Value()

	config.Runner = runnerFlag.Value()
	config.Properties = propertiesFlag.Value()
	config.PerfStatRepeat = perfStatRepeatFlag.Value()

	config.Plugins.Preset = presetFlag.Value()
	config.Plugins.Enable = enableFlag.Value()
	config.Plugins.Disable = disableFlag.Value()
	if path := pluginConfigFlag.Value(); path != "" {
		pluginConfig, err := loadPluginConfig(path)
		if err != nil {
			return config, err
		}
		config.Plugins.Config = pluginConfig
	}

	config.Runs = runsFlag.Value()
	config.MinRuns = minRunsFlag.Value()
	config.MaxRuns = maxRunsFlag.Value()
	var err error
	if config.RunsPerTag, err = runsPerTagFlag.Value(); err != nil {
		return config, err
	}
	if config.MinRunsPerTag, err = minRunsPerTagFlag.Value(); err != nil {
		return config, err
	}
	if config.MaxRunsPerTag, err = maxRunsPerTagFlag.Value(); err != nil {
		return config, err
	}

	config.Shuffle = shuffleFlag.Value()
	if seed := seedFlag.Value(); seed != 0 {
		config.Seed = int64(seed)
	}
	config.RunBlockSize = runBlockSizeFlag.Value()
	config.DiscardedRuns = discardedRunsFlag.Value()
	config.MaxBlockTime = maxBlockTimeFlag.Value()
	config.MaxTime = maxTimeFlag.Value()
	config.DiscardAllOnError = discardAllFlag.Value()

	config.Parallel = parallelFlag.Value()
	config.BaseCores = baseCoresFlag.Value()
	config.SubCores = subCoresFlag.Value()

	config.Tester = testerFlag.Value()
	config.UncertaintyLow = uncertaintyLowFlag.Value()
	config.UncertaintyHigh = uncertaintyHighFlag.Value()
	config.StoppingProperties = stoppingPropertiesFlag.Value()

	return config, config.Validate()
}

func loadPluginConfig(path string) (map[string]map[string]interface{}, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read plugin configuration %q", path)
	}
	pluginConfig := map[string]map[string]interface{}{}
	if err := yaml.Unmarshal(data, &pluginConfig); err != nil {
		return nil, errors.Wrapf(err, "cannot parse plugin configuration %q", path)
	}
	return pluginConfig, nil
}

// progress advances the bar whenever a block becomes terminal.
func progress(bar *pb.ProgressBar) scheduler.Observer {
	var mutex sync.Mutex
	return func(event scheduler.Event) {
		mutex.Lock()
		defer mutex.Unlock()
		bar.Prefix(event.Block.Description() + " ")
		if event.Terminal {
			bar.Add(1)
		}
	}
}
