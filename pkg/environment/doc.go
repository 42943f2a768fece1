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

// Package environment conditions the machine for benchmarking.
//
// Every conditioning step is a Plugin with a Setup and a Teardown.
// The Controller applies selected plugins in registry order and reverts
// them in reverse order, exactly once, whatever happens in between.
// Plugins may additionally modify every single run (RunHook), optionally
// configured per program block (BlockConfigurable).
package environment
