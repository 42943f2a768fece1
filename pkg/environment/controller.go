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
	"sync"

	"github.com/intelsdi-x/cadence/pkg/benchmark"
	"github.com/intelsdi-x/cadence/pkg/utils/err_collection"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// ErrRootRequired is the cause of SetupError when a plugin needs privileges the process lacks.
var ErrRootRequired = errors.New("superuser privileges required")

// SetupError reports the plugin which could not be applied.
type SetupError struct {
	Plugin string
	Cause  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup of plugin %q failed: %v", e.Plugin, e.Cause)
}

// IsSetupError returns true when the cause of err is a SetupError.
func IsSetupError(err error) bool {
	_, ok := errors.Cause(err).(*SetupError)
	return ok
}

// IsRoot returns true when the process runs with effective uid 0.
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// Controller applies plugins and reverts them.
type Controller struct {
	plugins []Plugin
	isRoot  func() bool

	mutex    sync.Mutex
	applied  []Plugin
	once     sync.Once
	failures errcollection.ErrorCollection
}

// NewController returns Controller of plugins in application order.
func NewController(plugins []Plugin) *Controller {
	return &Controller{plugins: plugins, isRoot: IsRoot}
}

// WithRootCheck replaces the privilege check.
func (c *Controller) WithRootCheck(isRoot func() bool) *Controller {
	c.isRoot = isRoot
	return c
}

// Plugins returns plugins of the controller in application order.
func (c *Controller) Plugins() []Plugin {
	return append([]Plugin(nil), c.plugins...)
}

// Activate sets up plugins in order. When a plugin fails, already applied plugins are
// torn down in reverse order and SetupError is returned; later plugins are never touched.
func (c *Controller) Activate(ctx context.Context) error {
	if !c.isRoot() {
		for _, plugin := range c.plugins {
			if plugin.NeedsRoot() {
				return &SetupError{Plugin: plugin.Name(), Cause: ErrRootRequired}
			}
		}
	}

	for _, plugin := range c.plugins {
		if err := ctx.Err(); err != nil {
			c.rollback()
			return errors.Wrap(err, "activation interrupted")
		}
		logrus.Debugf("setting up plugin %q", plugin.Name())
		if err := setup(ctx, plugin); err != nil {
			c.rollback()
			if ctx.Err() != nil {
				return errors.Wrapf(ctx.Err(), "activation interrupted during setup of plugin %q", plugin.Name())
			}
			return &SetupError{Plugin: plugin.Name(), Cause: err}
		}
		c.mutex.Lock()
		c.applied = append(c.applied, plugin)
		c.mutex.Unlock()
	}
	logrus.Infof("environment activated with %d plugin(s)", len(c.plugins))
	return nil
}

// Deactivate tears down applied plugins in reverse order. It runs at most once,
// never panics and returns aggregated teardown errors for reporting.
func (c *Controller) Deactivate() error {
	c.once.Do(c.teardownApplied)
	return c.failures.GetErrIfAny()
}

// TeardownErrors returns errors recorded while reverting plugins.
func (c *Controller) TeardownErrors() []error {
	return c.failures.Errors()
}

// HooksFor resolves run hooks of active plugins for the block, in plugin order.
func (c *Controller) HooksFor(block *benchmark.Block) (Hooks, error) {
	hooks := Hooks{}
	for _, plugin := range c.plugins {
		if configurable, ok := plugin.(BlockConfigurable); ok {
			if config := block.PluginConfig(plugin.Name()); len(config) > 0 {
				hook, err := configurable.ForBlock(config)
				if err != nil {
					return nil, errors.Wrapf(err, "invalid %q configuration of block %q", plugin.Name(), block.Description())
				}
				hooks = append(hooks, hook)
				continue
			}
		}
		if hook, ok := plugin.(RunHook); ok {
			hooks = append(hooks, hook)
		}
	}
	return hooks, nil
}

func (c *Controller) rollback() {
	c.once.Do(c.teardownApplied)
}

func (c *Controller) teardownApplied() {
	c.mutex.Lock()
	applied := c.applied
	c.applied = nil
	c.mutex.Unlock()

	for i := len(applied) - 1; i >= 0; i-- {
		plugin := applied[i]
		logrus.Debugf("tearing down plugin %q", plugin.Name())
		if err := teardown(plugin); err != nil {
			logrus.Errorf("teardown of plugin %q failed: %v", plugin.Name(), err)
			c.failures.Add(errors.Wrapf(err, "teardown of plugin %q failed", plugin.Name()))
		}
	}
}

func setup(ctx context.Context, plugin Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	if interruptible, ok := plugin.(ContextSetup); ok {
		return interruptible.SetupContext(ctx)
	}
	return plugin.Setup()
}

func teardown(plugin Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return plugin.Teardown()
}

// Hooks are run hooks applied in order.
type Hooks []RunHook

// PrepareRun implements RunHook.
func (h Hooks) PrepareRun(run *RunContext) error {
	for _, hook := range h {
		if err := hook.PrepareRun(run); err != nil {
			return err
		}
	}
	return nil
}
