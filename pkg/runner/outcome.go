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

package runner

import (
	"fmt"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
)

// Kind distinguishes outcomes of a single execution.
type Kind int

const (
	// Success means the program passed validation and was measured.
	Success Kind = iota
	// ValidationFailure means exit code or output did not meet expectations.
	ValidationFailure
	// ProcessFailure means the program ended with an unexpected nonzero exit code.
	ProcessFailure
	// Timeout means the program was killed after exceeding its deadline.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case ValidationFailure:
		return "validation failure"
	case ProcessFailure:
		return "process failure"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Outcome is a result of a single execution.
// Measurement is set only for Success.
type Outcome struct {
	Kind        Kind
	Measurement *benchmark.Measurement
	Reason      string
	ExitCode    int
	Stdout      string
	Stderr      string
}

// Failed returns true for every outcome but Success.
func (o Outcome) Failed() bool {
	return o.Kind != Success
}

// Message returns human readable description of the outcome.
func (o Outcome) Message() string {
	switch o.Kind {
	case Success:
		return "success"
	case ProcessFailure:
		return fmt.Sprintf("program failed with exit code %d", o.ExitCode)
	}
	if o.Reason == "" {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s: %s", o.Kind, o.Reason)
}
