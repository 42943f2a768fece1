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

package environment

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
)

// EnvRandomizePluginName is the name of env_randomize plugin.
const EnvRandomizePluginName = "env_randomize"

const randomLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// EnvRandomizeConfig configures env_randomize plugin.
type EnvRandomizeConfig struct {
	// Min and Max bound the number of added variables.
	Min int `yaml:"min" validate:"gte=0"`
	Max int `yaml:"max" validate:"gte=1"`
	// VarMax is the maximum length of a value.
	VarMax int `yaml:"var_max" validate:"gte=1"`
	// KeyMax is the maximum length of a name.
	KeyMax int `yaml:"key_max" validate:"gte=1"`
}

// EnvRandomize adds random environment variables to every run, so that the stack layout
// of programs varies between runs.
type EnvRandomize struct {
	config EnvRandomizeConfig
	random *lockedRand
}

// NewEnvRandomize returns env_randomize plugin.
func NewEnvRandomize(deps Deps, config map[string]interface{}) (*EnvRandomize, error) {
	conf := EnvRandomizeConfig{Min: 0, Max: 100, VarMax: 1000, KeyMax: 100}
	if err := parseEnvRandomizeConfig(config, &conf); err != nil {
		return nil, err
	}
	return &EnvRandomize{config: conf, random: &lockedRand{rand: deps.newRand()}}, nil
}

func parseEnvRandomizeConfig(config map[string]interface{}, conf *EnvRandomizeConfig) error {
	if err := decodeConfig(config, conf); err != nil {
		return err
	}
	if conf.Min > conf.Max {
		return errors.Errorf("minimum number of variables %d is greater than maximum %d", conf.Min, conf.Max)
	}
	return nil
}

// Name implements Plugin.
func (e *EnvRandomize) Name() string { return EnvRandomizePluginName }

// NeedsRoot implements Plugin.
func (e *EnvRandomize) NeedsRoot() bool { return false }

// Setup implements Plugin.
func (e *EnvRandomize) Setup() error { return nil }

// Teardown implements Plugin.
func (e *EnvRandomize) Teardown() error { return nil }

// ForBlock implements BlockConfigurable. Block configuration overrides the plugin configuration.
func (e *EnvRandomize) ForBlock(config map[string]interface{}) (RunHook, error) {
	conf := e.config
	if err := parseEnvRandomizeConfig(config, &conf); err != nil {
		return nil, err
	}
	return &EnvRandomize{config: conf, random: e.random}, nil
}

// PrepareRun implements RunHook. Variables already present are not overridden.
func (e *EnvRandomize) PrepareRun(run *RunContext) error {
	present := map[string]bool{}
	for _, variable := range run.Env {
		for i := 0; i < len(variable); i++ {
			if variable[i] == '=' {
				present[variable[:i]] = true
				break
			}
		}
	}

	e.random.Lock()
	defer e.random.Unlock()
	count := e.config.Min + e.random.rand.Intn(e.config.Max-e.config.Min+1)
	for i := 0; i < count; i++ {
		key := e.random.letters(1 + e.random.rand.Intn(e.config.KeyMax))
		if present[key] {
			continue
		}
		present[key] = true
		value := e.random.letters(e.random.rand.Intn(e.config.VarMax + 1))
		run.Env = append(run.Env, fmt.Sprintf("%s=%s", key, value))
	}
	return nil
}

// lockedRand is a random generator shared by concurrent runs.
type lockedRand struct {
	sync.Mutex
	rand *rand.Rand
}

func (l *lockedRand) letters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = randomLetters[l.rand.Intn(len(randomLetters))]
	}
	return string(b)
}
