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

func TestPartitionCPUs(t *testing.T) {
	Convey("When partitioning 8 CPUs", t, func() {
		available := NewIntSet(0, 1, 2, 3, 4, 5, 6, 7)

		Convey("Sequential execution has no partitions", func() {
			p, err := PartitionCPUs(available, 1, 1, 0)
			So(err, ShouldBeNil)
			So(p.Base.AsSlice(), ShouldResemble, []int{0})
			So(p.Partitions, ShouldBeEmpty)
		})

		Convey("Explicit number of partitions uses CPUs in order", func() {
			p, err := PartitionCPUs(available, 2, 2, 3)
			So(err, ShouldBeNil)
			So(p.Base.AsSlice(), ShouldResemble, []int{0, 1})
			So(p.Partitions, ShouldHaveLength, 3)
			So(p.Partitions[0].AsSlice(), ShouldResemble, []int{2, 3})
			So(p.Partitions[2].AsSlice(), ShouldResemble, []int{6, 7})
		})

		Convey("Automatic number of partitions uses all remaining CPUs", func() {
			p, err := PartitionCPUs(available, 1, 3, AutoParallel)
			So(err, ShouldBeNil)
			So(p.Partitions, ShouldHaveLength, 2)
		})

		Convey("Too many partitions are rejected", func() {
			_, err := PartitionCPUs(available, 1, 2, 4)
			So(err, ShouldNotBeNil)
		})

		Convey("Too many base cores are rejected", func() {
			_, err := PartitionCPUs(available, 9, 1, 0)
			So(err, ShouldNotBeNil)
		})

		Convey("Invalid core numbers are rejected", func() {
			_, err := PartitionCPUs(available, 1, 0, 1)
			So(err, ShouldNotBeNil)
			_, err = PartitionCPUs(available, 1, 1, -2)
			So(err, ShouldNotBeNil)
		})
	})
}
