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

package environment

import (
	"io/ioutil"
	"os"
	"path"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// pfKthread marks kernel threads in the flags field of /proc/<pid>/stat.
const pfKthread = 0x00200000

// Process is a snapshot of a process state.
type Process struct {
	PID    int
	PPID   int
	Nice   int
	Comm   string
	Kernel bool
}

// ProcessTable inspects and controls processes of the machine.
type ProcessTable interface {
	// Self returns pid of the current process.
	Self() int
	// List returns all processes.
	List() ([]Process, error)
	// Get returns single process.
	Get(pid int) (Process, error)
	// Threads returns thread ids of the process.
	Threads(pid int) ([]int, error)
	// SetNice changes niceness of all threads of the process.
	SetNice(pid int, nice int) error
	// Signal sends signal to the process.
	Signal(pid int, signal syscall.Signal) error
}

type procfsTable struct {
	root string
}

// NewProcfsTable returns ProcessTable reading procfs mounted at root.
func NewProcfsTable(root string) ProcessTable {
	return procfsTable{root: root}
}

func (p procfsTable) Self() int {
	return os.Getpid()
}

func (p procfsTable) List() ([]Process, error) {
	entries, err := ioutil.ReadDir(p.root)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list processes in %q", p.root)
	}
	processes := []Process{}
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || !entry.IsDir() {
			continue
		}
		process, err := p.Get(pid)
		if err != nil {
			// Process exited in the meantime.
			continue
		}
		processes = append(processes, process)
	}
	return processes, nil
}

func (p procfsTable) Get(pid int) (Process, error) {
	content, err := ioutil.ReadFile(path.Join(p.root, strconv.Itoa(pid), "stat"))
	if err != nil {
		return Process{}, errors.Wrapf(err, "cannot read state of process %d", pid)
	}
	return parseStat(string(content))
}

func (p procfsTable) Threads(pid int) ([]int, error) {
	entries, err := ioutil.ReadDir(path.Join(p.root, strconv.Itoa(pid), "task"))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list threads of process %d", pid)
	}
	tids := []int{}
	for _, entry := range entries {
		if tid, err := strconv.Atoi(entry.Name()); err == nil {
			tids = append(tids, tid)
		}
	}
	return tids, nil
}

func (p procfsTable) SetNice(pid int, nice int) error {
	tids, err := p.Threads(pid)
	if err != nil {
		return err
	}
	for _, tid := range tids {
		if err := unix.Setpriority(unix.PRIO_PROCESS, tid, nice); err != nil && err != unix.ESRCH {
			return errors.Wrapf(err, "cannot set nice %d of thread %d", nice, tid)
		}
	}
	return nil
}

func (p procfsTable) Signal(pid int, signal syscall.Signal) error {
	if err := unix.Kill(pid, signal); err != nil {
		return errors.Wrapf(err, "cannot send %v to process %d", signal, pid)
	}
	return nil
}

// parseStat parses content of /proc/<pid>/stat, see proc(5).
func parseStat(stat string) (Process, error) {
	open := strings.Index(stat, "(")
	closing := strings.LastIndex(stat, ")")
	if open < 0 || closing < open {
		return Process{}, errors.Errorf("malformed process stat %q", stat)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(stat[:open]))
	if err != nil {
		return Process{}, errors.Wrapf(err, "malformed pid in process stat %q", stat)
	}
	// Fields following the command name start with the state (field 3).
	fields := strings.Fields(stat[closing+1:])
	if len(fields) < 17 {
		return Process{}, errors.Errorf("process stat of %d has only %d fields", pid, len(fields)+2)
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return Process{}, errors.Wrapf(err, "malformed parent pid of process %d", pid)
	}
	flags, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return Process{}, errors.Wrapf(err, "malformed flags of process %d", pid)
	}
	nice, err := strconv.Atoi(fields[16])
	if err != nil {
		return Process{}, errors.Wrapf(err, "malformed nice of process %d", pid)
	}
	return Process{
		PID:    pid,
		PPID:   ppid,
		Nice:   nice,
		Comm:   stat[open+1 : closing],
		Kernel: flags&pfKthread != 0 || pid == 2 || ppid == 2,
	}, nil
}

// ancestors returns pid and all its ancestors.
func ancestors(table ProcessTable, pid int) map[int]bool {
	result := map[int]bool{pid: true}
	for pid > 1 {
		process, err := table.Get(pid)
		if err != nil {
			break
		}
		pid = process.PPID
		result[pid] = true
	}
	return result
}
