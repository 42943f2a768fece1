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

import "fmt"

// Taskset is a Decorator which pins command to the given set of CPUs.
type Taskset struct {
	CPUs IntSet
}

// NewTasksetDecorator is a constructor for Taskset object.
func NewTasksetDecorator(cpus IntSet) Taskset {
	return Taskset{CPUs: cpus}
}

// Decorate implements Decorator interface.
// Compound commands are wrapped in a shell so every part of them is pinned.
func (t Taskset) Decorate(command string) string {
	cpuList := t.CPUs.AsCommaSeparated()
	if cpuList == "" {
		cpuList = "0"
	}
	return fmt.Sprintf("taskset -c %s %s", cpuList, wrapInShell(command))
}
