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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDecorators(t *testing.T) {
	Convey("When I want to use taskset decorator", t, func() {
		Convey("With simple one cpu range", func() {
			decorator := NewTasksetDecorator(NewIntSet(1))
			So(decorator.Decorate("test"), ShouldEqual, "taskset -c 1 sh -c 'test'")
		})

		Convey("With complex cpu range", func() {
			decorator := NewTasksetDecorator(NewIntSet(8, 1, 3, 4, 7))
			So(decorator.Decorate("test"), ShouldEqual, "taskset -c 1,3,4,7,8 sh -c 'test'")
		})
	})

	Convey("When I want to use nice decorator", t, func() {
		So(NewNice(0).Decorate("test"), ShouldEqual, "test")
		So(NewNice(5).Decorate("a; b"), ShouldEqual, "nice -n 5 sh -c 'a; b'")
	})

	Convey("When I chain decorators", t, func() {
		decorators := Decorators{Prefix("sync;"), NewTasksetDecorator(NewIntSet(2))}
		So(decorators.Decorate("run"), ShouldEqual, "taskset -c 2 sh -c 'sync; run'")
	})

	Convey("Single quotes are escaped", t, func() {
		So(ShellQuote("echo 'x'"), ShouldEqual, `'echo '\''x'\'''`)
	})
}
