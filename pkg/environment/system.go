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
	"context"
	"fmt"
	"math"
	"path"
	"runtime"
	"sync"
	"time"

	"github.com/intelsdi-x/cadence/pkg/executor"
	"github.com/intelsdi-x/cadence/pkg/isolation"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Names of system plugins.
const (
	DisableSwapPluginName  = "disable_swap"
	DropFSCachesPluginName = "drop_fs_caches"
	SyncPluginName         = "sync"
	PreheatPluginName      = "preheat"
)

// DisableSwap turns swapping off.
type DisableSwap struct {
	deps Deps
}

// NewDisableSwap returns disable_swap plugin.
func NewDisableSwap(deps Deps, config map[string]interface{}) (*DisableSwap, error) {
	if err := decodeConfig(config, &struct{}{}); err != nil {
		return nil, err
	}
	return &DisableSwap{deps: deps}, nil
}

// Name implements Plugin.
func (d *DisableSwap) Name() string { return DisableSwapPluginName }

// NeedsRoot implements Plugin.
func (d *DisableSwap) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (d *DisableSwap) Setup() error {
	_, err := executor.RunCommand(d.deps.Executor, "swapoff -a", d.deps.CommandTimeout)
	return errors.Wrap(err, "cannot disable swap")
}

// Teardown implements Plugin.
func (d *DisableSwap) Teardown() error {
	_, err := executor.RunCommand(d.deps.Executor, "swapon -a", d.deps.CommandTimeout)
	return errors.Wrap(err, "cannot enable swap")
}

// DropFSCachesConfig configures drop_fs_caches plugin.
type DropFSCachesConfig struct {
	FreePageCache      bool `yaml:"free_pagecache"`
	FreeDentriesInodes bool `yaml:"free_dentries_inodes"`
}

// DropFSCaches drops page cache and/or dentries and inodes before every run.
type DropFSCaches struct {
	prefix isolation.Prefix
}

// NewDropFSCaches returns drop_fs_caches plugin.
func NewDropFSCaches(deps Deps, config map[string]interface{}) (*DropFSCaches, error) {
	conf := DropFSCachesConfig{FreePageCache: true, FreeDentriesInodes: true}
	if err := decodeConfig(config, &conf); err != nil {
		return nil, err
	}
	value := 0
	if conf.FreePageCache {
		value |= 1
	}
	if conf.FreeDentriesInodes {
		value |= 2
	}
	if value == 0 {
		return nil, errors.New("drop_fs_caches has nothing to drop")
	}
	file := path.Join(deps.SysctlRoot, "vm/drop_caches")
	return &DropFSCaches{prefix: isolation.Prefix(fmt.Sprintf("sync; echo %d > %s;", value, file))}, nil
}

// Name implements Plugin.
func (d *DropFSCaches) Name() string { return DropFSCachesPluginName }

// NeedsRoot implements Plugin.
func (d *DropFSCaches) NeedsRoot() bool { return true }

// Setup implements Plugin.
func (d *DropFSCaches) Setup() error { return nil }

// Teardown implements Plugin.
func (d *DropFSCaches) Teardown() error { return nil }

// PrepareRun implements RunHook.
func (d *DropFSCaches) PrepareRun(run *RunContext) error {
	run.Decorators = append(run.Decorators, d.prefix)
	return nil
}

// Sync flushes file system buffers before every run.
type Sync struct{}

// NewSync returns sync plugin.
func NewSync(config map[string]interface{}) (*Sync, error) {
	if err := decodeConfig(config, &struct{}{}); err != nil {
		return nil, err
	}
	return &Sync{}, nil
}

// Name implements Plugin.
func (s *Sync) Name() string { return SyncPluginName }

// NeedsRoot implements Plugin.
func (s *Sync) NeedsRoot() bool { return false }

// Setup implements Plugin.
func (s *Sync) Setup() error { return nil }

// Teardown implements Plugin.
func (s *Sync) Teardown() error { return nil }

// PrepareRun implements RunHook.
func (s *Sync) PrepareRun(run *RunContext) error {
	run.Decorators = append(run.Decorators, isolation.Prefix("sync;"))
	return nil
}

// PreheatConfig configures preheat plugin.
type PreheatConfig struct {
	// Time is number of seconds to keep all CPUs busy.
	Time int `yaml:"time" validate:"gte=0"`
}

// Preheat keeps all CPUs busy for a while before benchmarking starts.
type Preheat struct {
	config PreheatConfig
}

// NewPreheat returns preheat plugin.
func NewPreheat(config map[string]interface{}) (*Preheat, error) {
	plugin := &Preheat{config: PreheatConfig{Time: 10}}
	if err := decodeConfig(config, &plugin.config); err != nil {
		return nil, err
	}
	return plugin, nil
}

// Name implements Plugin.
func (p *Preheat) Name() string { return PreheatPluginName }

// NeedsRoot implements Plugin.
func (p *Preheat) NeedsRoot() bool { return false }

// Setup implements Plugin.
func (p *Preheat) Setup() error {
	return p.SetupContext(context.Background())
}

// SetupContext implements ContextSetup.
func (p *Preheat) SetupContext(ctx context.Context) error {
	duration := time.Duration(p.config.Time) * time.Second
	logrus.Infof("preheating the system for %v with a CPU bound task", duration)
	return heat(ctx, duration, runtime.NumCPU())
}

// Teardown implements Plugin.
func (p *Preheat) Teardown() error { return nil }

// heat spins workers until duration elapses or ctx is done.
func heat(ctx context.Context, duration time.Duration, workers int) error {
	heating, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(seed float64) {
			defer wg.Done()
			x := seed
			for heating.Err() == nil {
				for j := 0; j < 10000; j++ {
					x = math.Sqrt(x*x + 1)
				}
			}
		}(float64(i))
	}
	wg.Wait()
	return ctx.Err()
}
