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
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Validator holds expectations about exit code and output of a benchmarked program.
// Nil exact expectations are not checked.
type Validator struct {
	ExpectedExitCodes []int    `yaml:"expected_exit_codes,omitempty,flow"`
	ExpectedStdout    *string  `yaml:"expected_stdout,omitempty"`
	ExpectedStderr    *string  `yaml:"expected_stderr,omitempty"`
	StdoutContains    []string `yaml:"stdout_contains,omitempty"`
	StderrContains    []string `yaml:"stderr_contains,omitempty"`
	StdoutForbids     []string `yaml:"stdout_forbids,omitempty"`
	StderrForbids     []string `yaml:"stderr_forbids,omitempty"`
}

// ExitCodes returns exit codes considered successful.
func (v *Validator) ExitCodes() []int {
	if v == nil || len(v.ExpectedExitCodes) == 0 {
		return []int{0}
	}
	return v.ExpectedExitCodes
}

// ExitCodeAllowed returns true if exit code is expected.
func (v *Validator) ExitCodeAllowed(exitCode int) bool {
	for _, code := range v.ExitCodes() {
		if code == exitCode {
			return true
		}
	}
	return false
}

// CheckOutput returns description of the first unmet output expectation or empty string.
// Exact expectations are compared without surrounding whitespace.
func (v *Validator) CheckOutput(stdout, stderr string) string {
	if v == nil {
		return ""
	}
	streams := []struct {
		name      string
		output    string
		exact     *string
		contains  []string
		forbidden []string
	}{
		{"stdout", stdout, v.ExpectedStdout, v.StdoutContains, v.StdoutForbids},
		{"stderr", stderr, v.ExpectedStderr, v.StderrContains, v.StderrForbids},
	}

	for _, stream := range streams {
		if stream.exact != nil && strings.TrimSpace(stream.output) != strings.TrimSpace(*stream.exact) {
			return fmt.Sprintf("%s %q does not match expected %q", stream.name, abbreviate(stream.output), *stream.exact)
		}
		for _, expected := range stream.contains {
			if !strings.Contains(stream.output, expected) {
				return fmt.Sprintf("%s does not contain %q", stream.name, expected)
			}
		}
		for _, forbidden := range stream.forbidden {
			if strings.Contains(stream.output, forbidden) {
				return fmt.Sprintf("%s contains forbidden %q", stream.name, forbidden)
			}
		}
	}
	return ""
}

// Validate checks that expectations are not contradictory.
func (v *Validator) Validate() error {
	for _, expected := range v.StdoutContains {
		for _, forbidden := range v.StdoutForbids {
			if strings.Contains(expected, forbidden) {
				return errors.Errorf("stdout is expected to contain %q which contains forbidden %q", expected, forbidden)
			}
		}
	}
	for _, expected := range v.StderrContains {
		for _, forbidden := range v.StderrForbids {
			if strings.Contains(expected, forbidden) {
				return errors.Errorf("stderr is expected to contain %q which contains forbidden %q", expected, forbidden)
			}
		}
	}
	return nil
}

func abbreviate(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
