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

package fs

import (
	"io/ioutil"
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestReadTail(t *testing.T) {
	Convey("When reading tail of a file", t, func() {
		file, err := ioutil.TempFile("", "tail")
		So(err, ShouldBeNil)
		defer os.Remove(file.Name())
		file.WriteString("one\ntwo\nthree\nfour\n")
		file.Close()

		Convey("Only last lines are returned", func() {
			tail, err := ReadTail(file.Name(), 2)
			So(err, ShouldBeNil)
			So(tail, ShouldEqual, "three\nfour\n")
		})

		Convey("Whole file is returned when it is shorter", func() {
			tail, err := ReadTail(file.Name(), 10)
			So(err, ShouldBeNil)
			So(tail, ShouldEqual, "one\ntwo\nthree\nfour\n")
		})

		Convey("Missing file results in error", func() {
			_, err := ReadTail(file.Name()+"missing", 2)
			So(err, ShouldNotBeNil)
		})
	})
}
