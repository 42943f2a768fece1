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

package cgroup

import (
	"strings"
	"testing"
	"time"

	"github.com/intelsdi-x/cadence/pkg/executor"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	. "github.com/smartystreets/goconvey/convey"
)

// scriptedExecutor records commands and replays canned outputs through a local shell.
type scriptedExecutor struct {
	commands []string
	outputs  map[string]string
	failing  map[string]bool
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{outputs: map[string]string{}, failing: map[string]bool{}}
}

func (s *scriptedExecutor) Name() string {
	return "scripted"
}

func (s *scriptedExecutor) Execute(command string) (executor.TaskHandle, error) {
	s.commands = append(s.commands, command)
	for prefix := range s.failing {
		if strings.HasPrefix(command, prefix) {
			return executor.NewLocal().Execute("exit 1")
		}
	}
	return executor.NewLocal().Execute("printf '%s' " + isolation.ShellQuote(s.outputs[command]))
}

func TestCPUSet(t *testing.T) {
	Convey("When creating cpuset cgroup", t, func() {
		scripted := newScriptedExecutor()

		Convey("Empty and root paths are rejected", func() {
			_, err := NewCPUSetWithExecutor("", scripted, time.Second)
			So(err, ShouldNotBeNil)
			_, err = NewCPUSetWithExecutor("/", scripted, time.Second)
			So(err, ShouldNotBeNil)
		})

		cg, err := NewCPUSetWithExecutor("cadence/bench0", scripted, 10*time.Second)
		So(err, ShouldBeNil)
		So(cg.Path(), ShouldEqual, "/cadence/bench0")
		So(cg.Spec(), ShouldEqual, "cpuset:/cadence/bench0")

		Convey("Create should set and verify cpus and mems", func() {
			scripted.outputs["cgget -nv -r cpuset.cpus /cadence/bench0"] = "2-3\n"
			scripted.outputs["cgget -nv -r cpuset.mems /cadence/bench0"] = "0\n"

			err := cg.Create(isolation.NewIntSet(2, 3), isolation.NewIntSet(0))
			So(err, ShouldBeNil)
			So(scripted.commands, ShouldResemble, []string{
				"cgcreate -g cpuset:/cadence/bench0",
				"cgset -r cpuset.cpus=2-3 /cadence/bench0",
				"cgget -nv -r cpuset.cpus /cadence/bench0",
				"cgset -r cpuset.mems=0 /cadence/bench0",
				"cgget -nv -r cpuset.mems /cadence/bench0",
			})
		})

		Convey("Create should fail when value was not applied", func() {
			scripted.outputs["cgget -nv -r cpuset.cpus /cadence/bench0"] = "0\n"
			err := cg.Create(isolation.NewIntSet(2, 3), isolation.NewIntSet(0))
			So(err, ShouldNotBeNil)
		})

		Convey("Failing tools result in error", func() {
			scripted.failing["cgcreate"] = true
			err := cg.Create(isolation.NewIntSet(2), isolation.NewIntSet(0))
			So(err, ShouldNotBeNil)
		})

		Convey("Tasks should be parsed", func() {
			scripted.outputs["cgget -nv -r tasks /cadence/bench0"] = "12\n15\n"
			tasks, err := cg.Tasks()
			So(err, ShouldBeNil)
			So(tasks.Equals(isolation.NewIntSet(12, 15)), ShouldBeTrue)
		})

		Convey("Existence is checked with lscgroup", func() {
			scripted.outputs["lscgroup -g cpuset:/cadence/bench0"] = "cpuset:/cadence/bench0/\n"
			exists, err := cg.Exists()
			So(err, ShouldBeNil)
			So(exists, ShouldBeTrue)
		})

		Convey("Recursive destroy uses cgdelete", func() {
			So(cg.Destroy(true), ShouldBeNil)
			So(scripted.commands, ShouldResemble, []string{"cgdelete --recursive -g cpuset:/cadence/bench0"})
		})

		Convey("Decorated commands run under cgexec", func() {
			So(cg.Decorate("echo 1"), ShouldEqual, "cgexec -g cpuset:/cadence/bench0 sh -c 'echo 1'")
		})
	})
}
