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

package executor

import (
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// getBinaryNameFromCommand returns base name of the first word of command.
func getBinaryNameFromCommand(command string) (string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", errors.Errorf("failed to extract command name from %q", command)
	}
	return filepath.Base(fields[0]), nil
}

func createExecutorOutputFiles(outputRoot, command, prefix string) (stdout, stderr *os.File, err error) {
	if len(command) == 0 {
		return nil, nil, errors.New("empty command string")
	}

	commandName, err := getBinaryNameFromCommand(command)
	if err != nil {
		return nil, nil, err
	}

	if outputRoot == "" {
		outputRoot = os.TempDir()
	}
	outputDir, err := ioutil.TempDir(outputRoot, prefix+"_"+commandName+"_")
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create output directory for %q", commandName)
	}

	stdout, err = os.Create(path.Join(outputDir, "stdout"))
	if err != nil {
		os.RemoveAll(outputDir)
		return nil, nil, errors.Wrap(err, "failed to create stdout file")
	}

	stderr, err = os.Create(path.Join(outputDir, "stderr"))
	if err != nil {
		stdout.Close()
		os.RemoveAll(outputDir)
		return nil, nil, errors.Wrap(err, "failed to create stderr file")
	}

	return stdout, stderr, nil
}

// openOutputFile opens a fresh read handle so the caller always reads from the beginning.
func openOutputFile(file *os.File) (*os.File, error) {
	if file == nil {
		return nil, errors.New("output file does not exist")
	}
	readFile, err := os.Open(file.Name())
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %q", file.Name())
	}
	return readFile, nil
}

func removeFiles(files ...*os.File) {
	for _, file := range files {
		file.Close()
	}
	if len(files) > 0 {
		os.RemoveAll(filepath.Dir(files[0].Name()))
	}
}

func removeOutputDir(outputFile string) error {
	dir := filepath.Dir(outputFile)
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "could not remove output directory %q", dir)
	}
	return nil
}

// ReadOutput returns whole content of the file and closes it.
func ReadOutput(file *os.File, err error) (string, error) {
	if err != nil {
		return "", err
	}
	defer file.Close()
	content, err := ioutil.ReadAll(file)
	if err != nil {
		return "", errors.Wrapf(err, "could not read %q", file.Name())
	}
	return string(content), nil
}
