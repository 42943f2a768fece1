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

type nice struct {
	value int
}

// NewNice returns Decorator which runs command with given niceness adjustment.
func NewNice(value int) Decorator {
	return &nice{value: value}
}

// Decorate prepare "nice -n" prefixed command for value other than 0.
func (n *nice) Decorate(command string) (decorated string) {
	if n.value != 0 {
		return fmt.Sprintf("nice -n %d %s", n.value, wrapInShell(command))
	}
	return command
}
