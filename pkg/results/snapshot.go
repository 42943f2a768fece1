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

package results

import (
	"sort"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	attributesKey           = "attributes"
	dataKey                 = "data"
	errorKey                = "error"
	internalErrorKey        = "internal_error"
	propertyDescriptionsKey = "property_descriptions"
)

// BlockSnapshot is the persisted form of one block.
type BlockSnapshot struct {
	Attributes    benchmark.Attributes
	Properties    []string
	Data          map[string][]float64
	Error         *ErrorRecord
	InternalError *InternalErrorRecord
}

// Len returns number of samples of the block.
func (b *BlockSnapshot) Len() int {
	if len(b.Properties) == 0 {
		return 0
	}
	return len(b.Data[b.Properties[0]])
}

// Snapshot is the persisted form of all results: an ordered list of blocks
// followed by an optional record with long descriptions of properties.
type Snapshot struct {
	Blocks               []BlockSnapshot
	PropertyDescriptions map[string]string
}

// Block returns the block with given description or nil.
func (s *Snapshot) Block(description string) *BlockSnapshot {
	for i := range s.Blocks {
		if s.Blocks[i].Attributes.Description == description {
			return &s.Blocks[i]
		}
	}
	return nil
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}

func encodeNode(value interface{}) (*yaml.Node, error) {
	node := &yaml.Node{}
	if err := node.Encode(value); err != nil {
		return nil, err
	}
	return node, nil
}

// MarshalYAML implements yaml.Marshaler interface keeping property order of every block.
func (s *Snapshot) MarshalYAML() (interface{}, error) {
	root := &yaml.Node{Kind: yaml.SequenceNode}

	for _, block := range s.Blocks {
		blockNode := &yaml.Node{Kind: yaml.MappingNode}

		attributes, err := encodeNode(block.Attributes)
		if err != nil {
			return nil, errors.Wrapf(err, "could not encode attributes of %q", block.Attributes.Description)
		}
		blockNode.Content = append(blockNode.Content, scalarNode(attributesKey), attributes)

		data := &yaml.Node{Kind: yaml.MappingNode}
		for _, property := range block.Properties {
			values, err := encodeNode(block.Data[property])
			if err != nil {
				return nil, errors.Wrapf(err, "could not encode property %q", property)
			}
			values.Style = yaml.FlowStyle
			data.Content = append(data.Content, scalarNode(property), values)
		}
		blockNode.Content = append(blockNode.Content, scalarNode(dataKey), data)

		if block.Error != nil {
			record, err := encodeNode(block.Error)
			if err != nil {
				return nil, err
			}
			blockNode.Content = append(blockNode.Content, scalarNode(errorKey), record)
		}
		if block.InternalError != nil {
			record, err := encodeNode(block.InternalError)
			if err != nil {
				return nil, err
			}
			blockNode.Content = append(blockNode.Content, scalarNode(internalErrorKey), record)
		}
		root.Content = append(root.Content, blockNode)
	}

	if len(s.PropertyDescriptions) > 0 {
		names := make([]string, 0, len(s.PropertyDescriptions))
		for name := range s.PropertyDescriptions {
			names = append(names, name)
		}
		sort.Strings(names)

		descriptions := &yaml.Node{Kind: yaml.MappingNode}
		for _, name := range names {
			descriptions.Content = append(descriptions.Content, scalarNode(name), scalarNode(s.PropertyDescriptions[name]))
		}
		root.Content = append(root.Content, &yaml.Node{
			Kind:    yaml.MappingNode,
			Content: []*yaml.Node{scalarNode(propertyDescriptionsKey), descriptions},
		})
	}

	return root, nil
}

// UnmarshalYAML implements yaml.Unmarshaler interface.
func (s *Snapshot) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return errors.Errorf("line %d: result snapshot must be a list", value.Line)
	}

	s.Blocks = nil
	s.PropertyDescriptions = map[string]string{}
	for _, item := range value.Content {
		if item.Kind != yaml.MappingNode {
			return errors.Errorf("line %d: result entry must be a mapping", item.Line)
		}

		if len(item.Content) == 2 && item.Content[0].Value == propertyDescriptionsKey {
			if err := item.Content[1].Decode(&s.PropertyDescriptions); err != nil {
				return errors.Wrap(err, "could not decode property descriptions")
			}
			continue
		}

		block, err := decodeBlock(item)
		if err != nil {
			return err
		}
		s.Blocks = append(s.Blocks, block)
	}
	return nil
}

func decodeBlock(item *yaml.Node) (BlockSnapshot, error) {
	block := BlockSnapshot{Data: map[string][]float64{}}
	for i := 0; i+1 < len(item.Content); i += 2 {
		key, value := item.Content[i], item.Content[i+1]
		var err error
		switch key.Value {
		case attributesKey:
			err = value.Decode(&block.Attributes)
		case dataKey:
			err = decodeData(value, &block)
		case errorKey:
			block.Error = &ErrorRecord{}
			err = value.Decode(block.Error)
		case internalErrorKey:
			block.InternalError = &InternalErrorRecord{}
			err = value.Decode(block.InternalError)
		default:
			err = errors.Errorf("unknown key %q", key.Value)
		}
		if err != nil {
			return block, errors.Wrapf(err, "line %d", key.Line)
		}
	}

	for _, property := range block.Properties {
		if len(block.Data[property]) != block.Len() {
			return block, errors.Errorf("line %d: properties of block %q have different numbers of samples",
				item.Line, block.Attributes.Description)
		}
	}
	return block, nil
}

func decodeData(value *yaml.Node, block *BlockSnapshot) error {
	if value.Kind == yaml.ScalarNode && value.Tag == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return errors.New("data must be a mapping")
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		property := value.Content[i].Value
		var values []float64
		if err := value.Content[i+1].Decode(&values); err != nil {
			return errors.Wrapf(err, "could not decode samples of %q", property)
		}
		if _, ok := block.Data[property]; ok {
			return errors.Errorf("property %q is repeated", property)
		}
		block.Properties = append(block.Properties, property)
		block.Data[property] = values
	}
	return nil
}

// Merge returns union of prior and current snapshots. Blocks with equal descriptions get
// concatenated samples, prior samples first, and the error state of the current block.
// Prior blocks without a counterpart are kept in place, new blocks are appended.
func Merge(prior, current *Snapshot) *Snapshot {
	result := &Snapshot{PropertyDescriptions: map[string]string{}}
	merged := map[string]bool{}

	for _, priorBlock := range prior.Blocks {
		currentBlock := current.Block(priorBlock.Attributes.Description)
		if currentBlock == nil {
			result.Blocks = append(result.Blocks, copyBlock(priorBlock))
			continue
		}
		result.Blocks = append(result.Blocks, mergeBlocks(priorBlock, *currentBlock))
		merged[priorBlock.Attributes.Description] = true
	}

	for _, currentBlock := range current.Blocks {
		if !merged[currentBlock.Attributes.Description] {
			result.Blocks = append(result.Blocks, copyBlock(currentBlock))
		}
	}

	for name, description := range prior.PropertyDescriptions {
		result.PropertyDescriptions[name] = description
	}
	for name, description := range current.PropertyDescriptions {
		result.PropertyDescriptions[name] = description
	}
	return result
}

func copyBlock(block BlockSnapshot) BlockSnapshot {
	result := block
	result.Attributes.Tags = append([]string{}, block.Attributes.Tags...)
	result.Properties, result.Data = copyData(block.Properties, block.Data)
	return result
}

func mergeBlocks(prior, current BlockSnapshot) BlockSnapshot {
	result := copyBlock(current)

	switch {
	case len(prior.Properties) == 0:
		return result
	case len(current.Properties) == 0:
		result.Properties, result.Data = copyData(prior.Properties, prior.Data)
		return result
	}

	// Only properties measured in both sessions keep equal numbers of samples.
	result.Properties = nil
	result.Data = map[string][]float64{}
	for _, property := range prior.Properties {
		currentValues, ok := current.Data[property]
		if !ok {
			logrus.Warnf("dropping property %q of block %q which was not measured in the current session",
				property, prior.Attributes.Description)
			continue
		}
		result.Properties = append(result.Properties, property)
		result.Data[property] = append(append([]float64{}, prior.Data[property]...), currentValues...)
	}
	for _, property := range current.Properties {
		if _, ok := prior.Data[property]; !ok {
			logrus.Warnf("dropping property %q of block %q which was not measured in the prior session",
				property, current.Attributes.Description)
		}
	}
	return result
}
