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

package isolation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// IntSet is a set of integers, used for CPU and pid sets.
type IntSet map[int]struct{}

// NewIntSet returns a new set containing all of the supplied elements.
func NewIntSet(elems ...int) IntSet {
	result := IntSet{}
	for _, elem := range elems {
		result.Add(elem)
	}
	return result
}

// NewIntSetFromRange creates a set from traditional cgroup set representation.
// For example, "0-5,34,46-48". Surrounding whitespace and empty entries are ignored.
func NewIntSetFromRange(rangesString string) (IntSet, error) {
	result := IntSet{}

	// "0-5,34,46-48" becomes ["0-5", "34", "46-48"]
	for _, r := range strings.Split(strings.TrimSpace(rangesString), ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}

		boundaries := strings.Split(r, "-")
		switch len(boundaries) {
		case 1:
			elem, err := strconv.Atoi(boundaries[0])
			if err != nil {
				return nil, errors.Wrapf(err, "malformed element %q", r)
			}
			result.Add(elem)
		case 2:
			start, err := strconv.Atoi(boundaries[0])
			if err != nil {
				return nil, errors.Wrapf(err, "malformed range start %q", r)
			}
			end, err := strconv.Atoi(boundaries[1])
			if err != nil {
				return nil, errors.Wrapf(err, "malformed range end %q", r)
			}
			if end < start {
				return nil, errors.Errorf("range %q is descending", r)
			}
			for elem := start; elem <= end; elem++ {
				result.Add(elem)
			}
		default:
			return nil, errors.Errorf("malformed range %q", r)
		}
	}

	return result, nil
}

// Empty returns true if set has zero items.
func (s IntSet) Empty() bool {
	return len(s) == 0
}

// Contains returns true if the supplied element is present in this set.
func (s IntSet) Contains(elem int) bool {
	_, found := s[elem]
	return found
}

// Add mutates this set to include the supplied element.
func (s IntSet) Add(elem int) {
	s[elem] = struct{}{}
}

// Remove mutates this set to remove the supplied element.
func (s IntSet) Remove(elem int) {
	delete(s, elem)
}

// Equals returns true iff the supplied set is equal to this set.
func (s IntSet) Equals(t IntSet) bool {
	if len(s) != len(t) {
		return false
	}
	for elem := range s {
		if !t.Contains(elem) {
			return false
		}
	}
	return true
}

// Union returns a new set that contains all of the elements from this set
// and all of the elements from the supplied set.
func (s IntSet) Union(t IntSet) IntSet {
	result := NewIntSet(s.AsSlice()...)
	for elem := range t {
		result.Add(elem)
	}
	return result
}

// Difference returns a new set that contains all of the elements that are
// present in this set and not the supplied set.
func (s IntSet) Difference(t IntSet) IntSet {
	result := NewIntSet()
	for elem := range s {
		if !t.Contains(elem) {
			result.Add(elem)
		}
	}
	return result
}

// AsSlice returns elements of the set in ascending order.
func (s IntSet) AsSlice() []int {
	result := make([]int, 0, len(s))
	for elem := range s {
		result = append(result, elem)
	}
	sort.Ints(result)
	return result
}

// AsRangeString returns the set in cgroup representation, e.g. "0-5,34,46-48".
func (s IntSet) AsRangeString() string {
	elems := s.AsSlice()
	var ranges []string
	for i := 0; i < len(elems); {
		j := i
		for j+1 < len(elems) && elems[j+1] == elems[j]+1 {
			j++
		}
		if i == j {
			ranges = append(ranges, strconv.Itoa(elems[i]))
		} else {
			ranges = append(ranges, strconv.Itoa(elems[i])+"-"+strconv.Itoa(elems[j]))
		}
		i = j + 1
	}
	return strings.Join(ranges, ",")
}

// AsCommaSeparated returns elements of the set in ascending order separated with commas.
func (s IntSet) AsCommaSeparated() string {
	var elems []string
	for _, elem := range s.AsSlice() {
		elems = append(elems, strconv.Itoa(elem))
	}
	return strings.Join(elems, ",")
}
