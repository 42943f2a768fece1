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
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/intelsdi-x/cadence/pkg/environment"
	"github.com/intelsdi-x/cadence/pkg/runner"
	"github.com/intelsdi-x/cadence/pkg/scheduler"
	"github.com/intelsdi-x/cadence/pkg/stopping"
	"github.com/pkg/errors"
)

// PluginsConfig selects and configures environment plugins.
type PluginsConfig struct {
	Preset  string   `validate:"oneof=none usable all"`
	Enable  []string `validate:"dive,required"`
	Disable []string `validate:"dive,required"`
	// Config holds configuration of every plugin by its name.
	Config map[string]map[string]interface{}
}

// Config is the complete configuration of a session.
type Config struct {
	// OutputPath is where the result snapshot is stored.
	OutputPath string `validate:"required"`
	// Append merges results with the snapshot already stored in OutputPath.
	Append bool
	// RetryInternalErrors runs only blocks which ended with an internal error in the stored snapshot.
	RetryInternalErrors bool
	// StoreOften stores results after every round.
	StoreOften bool
	// OutputDir keeps stdout and stderr of programs while they run, empty means a temporary directory.
	OutputDir string

	Runner         string `validate:"required"`
	Properties     []string
	PerfStatRepeat int `validate:"gte=0"`

	Plugins PluginsConfig

	Runs          int `validate:"gte=-1"`
	MinRuns       int `validate:"gte=0"`
	MaxRuns       int `validate:"gte=0"`
	RunsPerTag    map[string]int
	MinRunsPerTag map[string]int
	MaxRunsPerTag map[string]int

	Shuffle           bool
	Seed              int64
	RunBlockSize      int           `validate:"gte=1"`
	DiscardedRuns     int           `validate:"gte=0"`
	MaxBlockTime      time.Duration `validate:"gte=0"`
	MaxTime           time.Duration `validate:"gte=0"`
	DiscardAllOnError bool

	// Parallel is the number of CPU partitions, zero runs sequentially without pinning,
	// isolation.AutoParallel uses as many partitions as available CPUs allow.
	Parallel  int `validate:"gte=-1"`
	BaseCores int `validate:"gte=0"`
	SubCores  int `validate:"gte=1"`

	Tester             string  `validate:"oneof=t ks mannwhitney"`
	UncertaintyLow     float64 `validate:"gte=0,lte=1"`
	UncertaintyHigh    float64 `validate:"gte=0,lte=1,gtefield=UncertaintyLow"`
	StoppingProperties []string
}

// DefaultConfig returns configuration with default values writing results to outputPath.
func DefaultConfig(outputPath string) Config {
	return Config{
		OutputPath:      outputPath,
		Runner:          runner.TimeRunnerName,
		Plugins:         PluginsConfig{Preset: environment.PresetNone},
		Runs:            scheduler.Unset,
		MinRuns:         20,
		MaxRuns:         100,
		Shuffle:         true,
		Seed:            time.Now().UnixNano(),
		RunBlockSize:    1,
		SubCores:        1,
		BaseCores:       1,
		Tester:          stopping.TTest,
		UncertaintyLow:  stopping.DefaultBand.Low,
		UncertaintyHigh: stopping.DefaultBand.High,
	}
}

var configValidator = validator.New()

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return errors.Wrap(err, "invalid session configuration")
	}
	if c.RetryInternalErrors && !c.Append {
		return errors.New("retrying internal errors requires appending to stored results")
	}
	return nil
}

func (c Config) boundsConfig() scheduler.BoundsConfig {
	return scheduler.BoundsConfig{
		Runs:          c.Runs,
		MinRuns:       c.MinRuns,
		MaxRuns:       c.MaxRuns,
		RunsPerTag:    c.RunsPerTag,
		MinRunsPerTag: c.MinRunsPerTag,
		MaxRunsPerTag: c.MaxRunsPerTag,
	}
}

func (c Config) band() stopping.Band {
	return stopping.Band{Low: c.UncertaintyLow, High: c.UncertaintyHigh}
}
