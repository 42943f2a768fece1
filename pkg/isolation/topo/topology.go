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

package topo

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/intelsdi-x/cadence/pkg/executor"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/pkg/errors"
)

// Thread is a hardware thread (logical CPU) placed on a physical core of a socket.
type Thread struct {
	ID     int
	Core   int
	Socket int
}

// ThreadSet is a list of hardware threads.
type ThreadSet []Thread

// Discover reads CPU topology with `lscpu -p` run through the executor.
func Discover(e executor.Executor) (ThreadSet, error) {
	out, err := executor.RunCommand(e, "lscpu -p", 10*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "could not discover CPU topology")
	}
	return ReadTopology(out)
}

// ReadTopology attempts to create a ThreadSet that corresponds to the
// supplied output from `lscpu -p`.
func ReadTopology(lscpuOutput string) (ThreadSet, error) {
	threads := ThreadSet{}

	// lscpu -p output looks like:
	//
	// # comments
	// cpu,core,socket,node,,l1d,l1i,l2,l3
	for _, line := range strings.Split(strings.TrimSpace(lscpuOutput), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var thread Thread
		n, err := fmt.Sscanf(line, "%d,%d,%d", &thread.ID, &thread.Core, &thread.Socket)
		if n != 3 {
			return nil, errors.Errorf("expected to read 3 values from %q but got %d", line, n)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "malformed topology line %q", line)
		}
		threads = append(threads, thread)
	}

	return threads, nil
}

// IDs returns identifiers of all threads.
func (s ThreadSet) IDs() isolation.IntSet {
	result := isolation.NewIntSet()
	for _, thread := range s {
		result.Add(thread.ID)
	}
	return result
}

// Siblings returns every thread which shares its physical core with a thread of lower ID.
// Disabling them leaves exactly one thread per physical core.
func (s ThreadSet) Siblings() isolation.IntSet {
	sorted := make(ThreadSet, len(s))
	copy(sorted, s)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	type coreKey struct{ socket, core int }
	seen := map[coreKey]bool{}
	result := isolation.NewIntSet()
	for _, thread := range sorted {
		key := coreKey{thread.Socket, thread.Core}
		if seen[key] {
			result.Add(thread.ID)
			continue
		}
		seen[key] = true
	}
	return result
}
