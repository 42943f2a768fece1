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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMeasurement(t *testing.T) {
	Convey("When building a measurement", t, func() {
		m := NewMeasurement()

		Convey("Empty measurement is malformed", func() {
			_, err := m.Len()
			So(err, ShouldNotBeNil)
		})

		Convey("Scalar properties keep insertion order", func() {
			m.Add("utime", 1)
			m.Add("__ov-time", 2)
			m.Add("maxrss", 3)
			So(m.Names(), ShouldResemble, []string{"utime", "__ov-time", "maxrss"})
			length, err := m.Len()
			So(err, ShouldBeNil)
			So(length, ShouldEqual, 1)
			So(m.Has("maxrss"), ShouldBeTrue)
			values, ok := m.Values("__ov-time")
			So(ok, ShouldBeTrue)
			So(values, ShouldResemble, []float64{2})
		})

		Convey("List properties must have equal lengths", func() {
			m.Add("a", 1, 2)
			m.Add("b", 3)
			_, err := m.Len()
			So(err, ShouldNotBeNil)

			m.Add("b", 4)
			length, err := m.Len()
			So(err, ShouldBeNil)
			So(length, ShouldEqual, 2)
		})
	})
}
