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

package benchmark

import (
	"fmt"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Attributes identify a block across sessions.
type Attributes struct {
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags,omitempty,flow"`
}

// StringList accepts either a single string or a list of strings in YAML.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	return errors.Errorf("line %d: expected string or list of strings", value.Line)
}

// RunConfig describes how commands of a block are executed.
// Nil bounds are not set and fall back to session and tag configuration.
type RunConfig struct {
	RunCmd     StringList                        `yaml:"run_cmd"`
	Cwd        string                            `yaml:"cwd,omitempty"`
	Env        map[string]string                 `yaml:"env,omitempty"`
	CmdPrefix  []string                          `yaml:"cmd_prefix,omitempty"`
	Runs       *int                              `yaml:"runs,omitempty"`
	MinRuns    *int                              `yaml:"min_runs,omitempty"`
	MaxRuns    *int                              `yaml:"max_runs,omitempty"`
	Runner     string                            `yaml:"runner,omitempty"`
	Properties []string                          `yaml:"properties,omitempty"`
	Plugins    map[string]map[string]interface{} `yaml:"plugins,omitempty"`
	Validator  *Validator                        `yaml:"validator,omitempty"`
}

// Block is a single benchmarked program with its configuration.
// It must not be modified once scheduling starts.
type Block struct {
	// ID is the position of the block in the input.
	ID         int        `yaml:"-"`
	Attributes Attributes `yaml:"attributes"`
	RunConfig  RunConfig  `yaml:"run_config"`
}

// Description returns description of the block.
func (b *Block) Description() string {
	return b.Attributes.Description
}

// Tags returns tags of the block.
func (b *Block) Tags() []string {
	return b.Attributes.Tags
}

// Commands returns commands of the block, one of them is chosen per repetition.
func (b *Block) Commands() []string {
	return b.RunConfig.RunCmd
}

// Command returns command number i prefixed with command prefixes of the block.
func (b *Block) Command(i int) string {
	parts := append(append([]string{}, b.RunConfig.CmdPrefix...), b.RunConfig.RunCmd[i])
	return strings.Join(parts, "; ")
}

// Environment returns environment variables of the block in "key=value" form, sorted by key.
func (b *Block) Environment() []string {
	keys := make([]string, 0, len(b.RunConfig.Env))
	for key := range b.RunConfig.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, key := range keys {
		env = append(env, fmt.Sprintf("%s=%s", key, b.RunConfig.Env[key]))
	}
	return env
}

// PluginConfig returns per block configuration of the plugin or nil.
func (b *Block) PluginConfig(plugin string) map[string]interface{} {
	return b.RunConfig.Plugins[plugin]
}

// Validate checks consistency of the block.
func (b *Block) Validate() error {
	if len(b.RunConfig.RunCmd) == 0 {
		return errors.Errorf("block %q has no command", b.Description())
	}
	for _, cmd := range b.RunConfig.RunCmd {
		if strings.TrimSpace(cmd) == "" {
			return errors.Errorf("block %q has an empty command", b.Description())
		}
	}
	for name, bound := range map[string]*int{"runs": b.RunConfig.Runs, "min_runs": b.RunConfig.MinRuns, "max_runs": b.RunConfig.MaxRuns} {
		if bound != nil && *bound < 0 {
			return errors.Errorf("block %q has negative %s", b.Description(), name)
		}
	}
	if b.RunConfig.MinRuns != nil && b.RunConfig.MaxRuns != nil && *b.RunConfig.MinRuns > *b.RunConfig.MaxRuns {
		return errors.Errorf("block %q has min_runs greater than max_runs", b.Description())
	}
	if b.RunConfig.Validator != nil {
		if err := b.RunConfig.Validator.Validate(); err != nil {
			return errors.Wrapf(err, "block %q", b.Description())
		}
	}
	return nil
}

// ParseBlocks reads list of blocks from YAML document.
// Blocks get IDs in input order, missing descriptions default to the first command.
// Descriptions must be unique as they identify blocks when results are merged.
func ParseBlocks(data []byte) ([]*Block, error) {
	var blocks []*Block
	if err := yaml.Unmarshal(data, &blocks); err != nil {
		return nil, errors.Wrap(err, "could not parse program blocks")
	}

	descriptions := map[string]int{}
	for i, block := range blocks {
		if block == nil {
			return nil, errors.Errorf("program block %d is empty", i)
		}
		block.ID = i
		if block.Attributes.Description == "" && len(block.RunConfig.RunCmd) > 0 {
			block.Attributes.Description = block.RunConfig.RunCmd[0]
		}
		if err := block.Validate(); err != nil {
			return nil, err
		}
		if previous, ok := descriptions[block.Description()]; ok {
			return nil, errors.Errorf("program blocks %d and %d share description %q", previous, i, block.Description())
		}
		descriptions[block.Description()] = i
	}
	return blocks, nil
}

// LoadBlocks reads list of blocks from YAML file.
func LoadBlocks(path string) ([]*Block, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read program blocks from %q", path)
	}
	return ParseBlocks(data)
}
