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

package stopping

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Verdict is a classification of a single pairwise comparison.
type Verdict int

const (
	// Inconclusive means more samples are needed.
	Inconclusive Verdict = iota
	// Different means the samples come from different populations.
	Different
	// Equivalent means the samples come from the same population.
	Equivalent
)

func (v Verdict) String() string {
	switch v {
	case Different:
		return "different"
	case Equivalent:
		return "equivalent"
	}
	return "inconclusive"
}

// Band is the uncertainty range of p-values.
type Band struct {
	Low  float64
	High float64
}

// DefaultBand is used when no band is configured.
var DefaultBand = Band{Low: 0.05, High: 0.15}

// Validate checks that 0 <= Low <= High <= 1.
func (b Band) Validate() error {
	if b.Low < 0 || b.High > 1 || b.Low > b.High {
		return errors.Errorf("invalid uncertainty range [%v, %v]", b.Low, b.High)
	}
	return nil
}

// Classify maps p-value to a Verdict. P-values inside the band and NaN are inconclusive.
func (b Band) Classify(p float64) Verdict {
	switch {
	case math.IsNaN(p):
		return Inconclusive
	case p < b.Low:
		return Different
	case p > b.High:
		return Equivalent
	}
	return Inconclusive
}

// Samples are sample sequences of one block.
type Samples struct {
	ID   int
	Data map[string][]float64
	// Properties are names in Data in insertion order.
	Properties []string
	// Final is true when the block will not collect more samples.
	Final bool
}

// Len returns number of valid repetitions.
func (s Samples) Len() int {
	if len(s.Properties) == 0 {
		return 0
	}
	return len(s.Data[s.Properties[0]])
}

// Comparison is a verdict of one property of a block against one peer.
type Comparison struct {
	Property string
	Peer     int
	PValue   float64
	Verdict  Verdict
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s vs block %d: p=%.4f (%s)", c.Property, c.Peer, c.PValue, c.Verdict)
}

// Decision is the latest stopping state of a block.
type Decision struct {
	Block       int
	Repetitions int
	Comparisons []Comparison
	Conclusive  bool
}

// Inconclusive returns comparisons which keep the block running.
func (d Decision) Inconclusive() []Comparison {
	var result []Comparison
	for _, c := range d.Comparisons {
		if c.Verdict == Inconclusive {
			result = append(result, c)
		}
	}
	return result
}

// Config configures Engine.
type Config struct {
	Tester Tester
	Band   Band
	// Properties are tracked properties, empty means every property of the evaluated block.
	Properties []string
}

// Engine decides whether a block collected enough samples by pairwise testing against its peers.
// Engine is stateless and safe for concurrent use.
type Engine struct {
	config Config
}

// NewEngine returns Engine for validated config.
func NewEngine(config Config) (*Engine, error) {
	if config.Tester == nil {
		return nil, errors.New("no tester configured")
	}
	if err := config.Band.Validate(); err != nil {
		return nil, err
	}
	return &Engine{config: config}, nil
}

// Evaluate compares every tracked property of the block with the same property of every peer.
// The block itself is skipped among peers, and so is a final peer with fewer than two samples
// because it can never be compared. A peer without any sample yet keeps the block inconclusive,
// a peer measuring other properties is skipped for the properties it lacks.
// A block without peers is conclusive, a block with fewer than two samples is not.
func (e *Engine) Evaluate(block Samples, peers []Samples) Decision {
	decision := Decision{Block: block.ID, Repetitions: block.Len(), Conclusive: true}

	active := make([]Samples, 0, len(peers))
	for _, peer := range peers {
		if peer.ID == block.ID || (peer.Final && peer.Len() < 2) {
			continue
		}
		active = append(active, peer)
	}
	if len(active) == 0 {
		return decision
	}
	if decision.Repetitions < 2 {
		decision.Conclusive = false
	}

	properties := e.config.Properties
	if len(properties) == 0 {
		properties = block.Properties
	}

	for _, property := range properties {
		own, ok := block.Data[property]
		if !ok {
			decision.Conclusive = false
			continue
		}
		for _, peer := range active {
			other, ok := peer.Data[property]
			if !ok && peer.Len() > 0 {
				continue
			}

			p := math.NaN()
			if len(own) >= 2 && len(other) >= 2 {
				p = e.config.Tester.PValue(own, other)
			}
			comparison := Comparison{Property: property, Peer: peer.ID, PValue: p, Verdict: e.config.Band.Classify(p)}
			decision.Comparisons = append(decision.Comparisons, comparison)
			if comparison.Verdict == Inconclusive {
				decision.Conclusive = false
			}
		}
	}
	return decision
}

// ShouldStop returns true when every comparison of the block is conclusive.
func (e *Engine) ShouldStop(block Samples, peers []Samples) bool {
	return e.Evaluate(block, peers).Conclusive
}
