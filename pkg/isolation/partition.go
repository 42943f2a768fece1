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
	"github.com/pkg/errors"
)

// AutoParallel requests as many partitions as the available CPUs allow.
const AutoParallel = -1

// Partitioning describes assignment of CPUs to the base set (everything which is not benchmarked)
// and to the sets of concurrent execution streams.
type Partitioning struct {
	Base       IntSet
	Partitions []IntSet
}

// PartitionCPUs splits available CPUs into base CPUs and parallel partitions of subCores CPUs each.
// CPUs are assigned in ascending order: base set first.
// Zero parallel means sequential execution without partitions, AutoParallel uses all remaining CPUs.
func PartitionCPUs(available IntSet, baseCores, subCores, parallel int) (Partitioning, error) {
	if baseCores < 0 || subCores < 1 {
		return Partitioning{}, errors.Errorf("invalid core numbers: base %d, sub %d", baseCores, subCores)
	}
	if parallel < AutoParallel {
		return Partitioning{}, errors.Errorf("invalid number of partitions %d", parallel)
	}

	cpus := available.AsSlice()
	if baseCores > len(cpus) {
		return Partitioning{}, errors.Errorf("%d base cores requested but only %d CPUs available", baseCores, len(cpus))
	}

	result := Partitioning{Base: NewIntSet(cpus[:baseCores]...)}
	rest := cpus[baseCores:]

	if parallel == AutoParallel {
		parallel = len(rest) / subCores
		if parallel == 0 {
			return Partitioning{}, errors.Errorf("not enough CPUs for a single partition of %d cores", subCores)
		}
	}

	if parallel*subCores > len(rest) {
		return Partitioning{}, errors.Errorf("%d partitions of %d cores requested but only %d CPUs left after base",
			parallel, subCores, len(rest))
	}

	for i := 0; i < parallel; i++ {
		result.Partitions = append(result.Partitions, NewIntSet(rest[i*subCores:(i+1)*subCores]...))
	}
	return result, nil
}
