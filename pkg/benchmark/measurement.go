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
	"github.com/pkg/errors"
)

// Measurement is an ordered mapping from property name to values produced by one execution.
// A scalar property holds a single value.
type Measurement struct {
	names  []string
	values map[string][]float64
}

// NewMeasurement returns an empty Measurement.
func NewMeasurement() *Measurement {
	return &Measurement{values: map[string][]float64{}}
}

// Add appends values to the property, creating it if needed.
func (m *Measurement) Add(name string, values ...float64) {
	if _, ok := m.values[name]; !ok {
		m.names = append(m.names, name)
	}
	m.values[name] = append(m.values[name], values...)
}

// Names returns property names in insertion order.
func (m *Measurement) Names() []string {
	return append([]string{}, m.names...)
}

// Values returns values of the property.
func (m *Measurement) Values(name string) ([]float64, bool) {
	values, ok := m.values[name]
	return values, ok
}

// Has returns true if the property was measured.
func (m *Measurement) Has(name string) bool {
	_, ok := m.values[name]
	return ok
}

// Len returns number of values every property carries.
// Measurement without properties or with properties of different lengths is malformed.
func (m *Measurement) Len() (int, error) {
	if len(m.names) == 0 {
		return 0, errors.New("measurement has no properties")
	}
	length := len(m.values[m.names[0]])
	for _, name := range m.names[1:] {
		if len(m.values[name]) != length {
			return 0, errors.Errorf("property %q has %d values while %q has %d",
				name, len(m.values[name]), m.names[0], length)
		}
	}
	if length == 0 {
		return 0, errors.Errorf("property %q has no values", m.names[0])
	}
	return length, nil
}
