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

import "strings"

// Decorator is an interface for adding prefixes to a command.
type Decorator interface {
	Decorate(string) string
}

// Decorators represents array of Decorator implementations.
type Decorators []Decorator

// Decorate uses all available decorators to modify the command
// (and implements Decorator interface).
func (d Decorators) Decorate(command string) string {
	for _, decorator := range d {
		command = decorator.Decorate(command)
	}
	return command
}

// Prefix is a Decorator which prepends a raw shell snippet to the command, e.g. "sync;".
type Prefix string

// Decorate implements Decorator interface.
func (p Prefix) Decorate(command string) string {
	if p == "" {
		return command
	}
	return string(p) + " " + command
}

// ShellQuote quotes s so that sh interprets it as a single word.
func ShellQuote(s string) string {
	return "'" + strings.Replace(s, "'", `'\''`, -1) + "'"
}

// wrapInShell returns command runnable as a single program argument.
func wrapInShell(command string) string {
	return "sh -c " + ShellQuote(command)
}
