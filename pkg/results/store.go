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
	"sync"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/pkg/errors"
)

// ErrorRecord describes a failure of the benchmarked program.
type ErrorRecord struct {
	Message     string `yaml:"message"`
	ReturnCode  int    `yaml:"return_code"`
	Output      string `yaml:"output"`
	ErrorOutput string `yaml:"error_output"`
}

// InternalErrorRecord describes a failure of the tool itself while processing a block.
type InternalErrorRecord struct {
	Message string `yaml:"message"`
}

// ErrTerminal is returned when a terminal block is modified.
var ErrTerminal = errors.New("block is terminal")

// BlockResult holds samples and error state of one block.
// Every property always has the same number of samples.
type BlockResult struct {
	id         int
	attributes benchmark.Attributes

	properties []string
	data       map[string][]float64

	errorRecord   *ErrorRecord
	internalError *InternalErrorRecord
	// failures are recorded repetitions which failed without making the block terminal.
	failures []ErrorRecord

	attempts int
	finished bool
}

func newBlockResult(block *benchmark.Block) *BlockResult {
	return &BlockResult{
		id:         block.ID,
		attributes: block.Attributes,
		data:       map[string][]float64{},
	}
}

func (b *BlockResult) terminal() bool {
	return b.finished || b.errorRecord != nil || b.internalError != nil
}

func (b *BlockResult) length() int {
	if len(b.properties) == 0 {
		return 0
	}
	return len(b.data[b.properties[0]])
}

// Store accumulates results of all blocks of a session. It is safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	blocks       []*BlockResult
	byID         map[int]*BlockResult
	descriptions map[string]string
}

// NewStore returns Store with an empty result for every block, in the order of blocks.
func NewStore(blocks []*benchmark.Block) *Store {
	s := &Store{byID: map[int]*BlockResult{}, descriptions: map[string]string{}}
	for _, block := range blocks {
		result := newBlockResult(block)
		s.blocks = append(s.blocks, result)
		s.byID[block.ID] = result
	}
	return s
}

func (s *Store) get(id int) (*BlockResult, error) {
	result, ok := s.byID[id]
	if !ok {
		return nil, errors.Errorf("unknown block %d", id)
	}
	return result, nil
}

// Append adds measurement of one repetition to the block as a whole.
// The first measurement fixes the property set, later ones must carry the same properties.
func (s *Store) Append(id int, measurement *benchmark.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.get(id)
	if err != nil {
		return err
	}
	if result.terminal() {
		return errors.Wrapf(ErrTerminal, "cannot append to block %d", id)
	}

	if _, err := measurement.Len(); err != nil {
		return errors.Wrapf(err, "malformed measurement of block %d", id)
	}
	names := measurement.Names()
	if len(result.properties) > 0 {
		if len(names) != len(result.properties) {
			return errors.Errorf("block %d measured %d properties instead of %d", id, len(names), len(result.properties))
		}
		for _, name := range result.properties {
			if !measurement.Has(name) {
				return errors.Errorf("block %d did not measure property %q", id, name)
			}
		}
	} else {
		result.properties = names
	}

	for _, name := range result.properties {
		values, _ := measurement.Values(name)
		result.data[name] = append(result.data[name], values...)
	}
	result.attempts++
	return nil
}

// MarkError clears all samples of the block and makes it terminal.
func (s *Store) MarkError(id int, record ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.get(id)
	if err != nil {
		return err
	}
	if result.terminal() {
		return errors.Wrapf(ErrTerminal, "cannot mark block %d erroneous", id)
	}
	result.properties = nil
	result.data = map[string][]float64{}
	result.errorRecord = &record
	result.attempts++
	return nil
}

// MarkInternalError makes the block terminal because the tool failed to process it.
// Samples collected so far are kept.
func (s *Store) MarkInternalError(id int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.get(id)
	if err != nil {
		return err
	}
	if result.terminal() {
		return errors.Wrapf(ErrTerminal, "cannot mark block %d with internal error", id)
	}
	result.internalError = &InternalErrorRecord{Message: message}
	return nil
}

// RecordFailure records a failed repetition. The block keeps its samples and stays schedulable,
// the failure counts as an attempt.
func (s *Store) RecordFailure(id int, record ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.get(id)
	if err != nil {
		return err
	}
	if result.terminal() {
		return errors.Wrapf(ErrTerminal, "cannot record failure of block %d", id)
	}
	result.failures = append(result.failures, record)
	result.attempts++
	return nil
}

// Finish makes the block terminal after it collected enough samples.
func (s *Store) Finish(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.get(id)
	if err != nil {
		return err
	}
	if !result.terminal() {
		result.finished = true
	}
	return nil
}

// Attempts returns number of repetitions, successful or failed, recorded for the block.
func (s *Store) Attempts(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result, ok := s.byID[id]; ok {
		return result.attempts
	}
	return 0
}

// Len returns number of valid samples of the block.
func (s *Store) Len(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if result, ok := s.byID[id]; ok {
		return result.length()
	}
	return 0
}

// IsTerminal returns true for finished and erroneous blocks.
func (s *Store) IsTerminal(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.byID[id]
	return !ok || result.terminal()
}

// IsErroneous returns true for blocks marked with an error or internal error.
func (s *Store) IsErroneous(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.byID[id]
	return ok && (result.errorRecord != nil || result.internalError != nil)
}

// Samples returns a copy of samples of the block in property insertion order.
func (s *Store) Samples(id int) ([]string, map[string][]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return copyData(result.properties, result.data)
}

// IDs returns identifiers of all blocks in input order.
func (s *Store) IDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.blocks))
	for _, result := range s.blocks {
		ids = append(ids, result.id)
	}
	return ids
}

// AddPropertyDescriptions stores long descriptions of properties. Known descriptions are kept.
func (s *Store) AddPropertyDescriptions(descriptions map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, description := range descriptions {
		if _, ok := s.descriptions[name]; !ok {
			s.descriptions[name] = description
		}
	}
}

// HasProgramErrors returns true if any benchmarked program failed.
func (s *Store) HasProgramErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, result := range s.blocks {
		if result.errorRecord != nil || len(result.failures) > 0 {
			return true
		}
	}
	return false
}

// HasInternalErrors returns true if the tool failed to process any block.
func (s *Store) HasInternalErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, result := range s.blocks {
		if result.internalError != nil {
			return true
		}
	}
	return false
}

// Snapshot returns a consistent copy of all results.
// A block with failed repetitions carries the last failure as its error record,
// an internal error hides program failures.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := &Snapshot{PropertyDescriptions: map[string]string{}}
	for _, result := range s.blocks {
		properties, data := copyData(result.properties, result.data)
		block := BlockSnapshot{
			Attributes: benchmark.Attributes{
				Description: result.attributes.Description,
				Tags:        append([]string{}, result.attributes.Tags...),
			},
			Properties: properties,
			Data:       data,
		}
		switch {
		case result.internalError != nil:
			record := *result.internalError
			block.InternalError = &record
		case result.errorRecord != nil:
			record := *result.errorRecord
			block.Error = &record
		case len(result.failures) > 0:
			record := result.failures[len(result.failures)-1]
			block.Error = &record
		}
		snapshot.Blocks = append(snapshot.Blocks, block)
	}
	for name, description := range s.descriptions {
		snapshot.PropertyDescriptions[name] = description
	}
	return snapshot
}

func copyData(properties []string, data map[string][]float64) ([]string, map[string][]float64) {
	resultProperties := append([]string{}, properties...)
	resultData := make(map[string][]float64, len(data))
	for name, values := range data {
		resultData[name] = append([]float64{}, values...)
	}
	return resultProperties, resultData
}
