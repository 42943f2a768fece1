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

package sysctl

import (
	"io/ioutil"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// DefaultRoot is the mount point of the sysctl tree.
const DefaultRoot = "/proc/sys"

// Get returns the value of the sysctl key specified by name.
func Get(name string) (string, error) {
	return GetFrom(DefaultRoot, name)
}

// Set writes the value of the sysctl key specified by name.
func Set(name string, value string) error {
	return SetIn(DefaultRoot, name, value)
}

// GetFrom returns the value of the sysctl key specified by name from tree mounted at root.
func GetFrom(root string, name string) (string, error) {
	byteContent, err := ioutil.ReadFile(keyPath(root, name))
	if err != nil {
		return "", err
	}

	// As the sys file system represent single values as files, they are
	// terminated with a newline. We trim trailing newline, if present.
	content := strings.TrimSuffix(string(byteContent), "\n")

	return content, nil
}

// SetIn writes the value of the sysctl key specified by name into tree mounted at root.
func SetIn(root string, name string, value string) error {
	err := ioutil.WriteFile(keyPath(root, name), []byte(value+"\n"), 0644)
	if err != nil {
		return errors.Wrapf(err, "cannot set sysctl %q to %q", name, value)
	}
	return nil
}

// "kernel.randomize_va_space" translates into "/proc/sys/kernel/randomize_va_space"
func keyPath(root, name string) string {
	relativeSysctlPath := strings.Replace(name, ".", "/", -1)
	return path.Join(root, relativeSysctlPath)
}
