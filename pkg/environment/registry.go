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
	"sort"

	"github.com/pkg/errors"
)

// Names of presets.
const (
	PresetNone   = "none"
	PresetUsable = "usable"
	PresetAll    = "all"
)

// usablePlugins are safe to enable on a machine used for other work.
var usablePlugins = []string{
	NicePluginName,
	EnvRandomizePluginName,
	DisableASLRPluginName,
	DisableSwapPluginName,
	CPUGovernorPluginName,
	SyncPluginName,
}

// Registry maps plugin names to factories. Registration order is the order of application.
type Registry struct {
	names     []string
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// DefaultRegistry returns Registry with all built in plugins operating on deps.
func DefaultRegistry(deps Deps) *Registry {
	r := NewRegistry()
	r.Register(PreheatPluginName, func(config map[string]interface{}) (Plugin, error) { return NewPreheat(config) })
	r.Register(NicePluginName, func(config map[string]interface{}) (Plugin, error) { return NewNicePlugin(deps, config) })
	r.Register(OtherNicePluginName, func(config map[string]interface{}) (Plugin, error) { return NewOtherNice(deps, config) })
	r.Register(StopStartPluginName, func(config map[string]interface{}) (Plugin, error) { return NewStopStart(deps, config) })
	r.Register(CPUGovernorPluginName, func(config map[string]interface{}) (Plugin, error) { return NewCPUGovernor(deps, config) })
	r.Register(DisableTurboPluginName, func(config map[string]interface{}) (Plugin, error) { return NewDisableTurbo(deps, config) })
	r.Register(DisableHTPluginName, func(config map[string]interface{}) (Plugin, error) { return NewDisableHT(deps, config) })
	r.Register(DisableASLRPluginName, func(config map[string]interface{}) (Plugin, error) { return NewDisableASLR(deps, config) })
	r.Register(DisableSwapPluginName, func(config map[string]interface{}) (Plugin, error) { return NewDisableSwap(deps, config) })
	r.Register(CPUSetPluginName, func(config map[string]interface{}) (Plugin, error) { return NewCPUSetPlugin(deps, config) })
	r.Register(DropFSCachesPluginName, func(config map[string]interface{}) (Plugin, error) { return NewDropFSCaches(deps, config) })
	r.Register(SyncPluginName, func(config map[string]interface{}) (Plugin, error) { return NewSync(config) })
	r.Register(EnvRandomizePluginName, func(config map[string]interface{}) (Plugin, error) { return NewEnvRandomize(deps, config) })
	return r
}

// Register adds factory under given name. Registering a name twice panics.
func (r *Registry) Register(name string, factory Factory) {
	if _, ok := r.factories[name]; ok {
		panic("plugin " + name + " registered twice")
	}
	r.names = append(r.names, name)
	r.factories[name] = factory
}

// Names returns registered plugin names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Preset returns plugin names of the preset.
func (r *Registry) Preset(preset string) ([]string, error) {
	switch preset {
	case PresetNone, "":
		return nil, nil
	case PresetUsable:
		return r.order(usablePlugins), nil
	case PresetAll:
		return r.Names(), nil
	}
	return nil, errors.Errorf("unknown plugin preset %q, available: %s, %s, %s", preset, PresetNone, PresetUsable, PresetAll)
}

// Select resolves preset and explicit enable and disable lists into ordered plugin names.
// Disabling takes precedence over enabling.
func (r *Registry) Select(preset string, enable, disable []string) ([]string, error) {
	names, err := r.Preset(preset)
	if err != nil {
		return nil, err
	}
	selected := map[string]bool{}
	for _, name := range names {
		selected[name] = true
	}
	for _, name := range enable {
		if _, ok := r.factories[name]; !ok {
			return nil, errors.Errorf("cannot enable unknown plugin %q, available: %v", name, r.names)
		}
		selected[name] = true
	}
	for _, name := range disable {
		if _, ok := r.factories[name]; !ok {
			return nil, errors.Errorf("cannot disable unknown plugin %q, available: %v", name, r.names)
		}
		delete(selected, name)
	}

	result := []string{}
	for name := range selected {
		result = append(result, name)
	}
	return r.order(result), nil
}

// Create builds plugins of given names with their configurations.
func (r *Registry) Create(names []string, configs map[string]map[string]interface{}) ([]Plugin, error) {
	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		factory, ok := r.factories[name]
		if !ok {
			return nil, errors.Errorf("unknown plugin %q, available: %v", name, r.names)
		}
		plugin, err := factory(configs[name])
		if err != nil {
			return nil, errors.Wrapf(err, "could not create plugin %q", name)
		}
		plugins = append(plugins, plugin)
	}
	return plugins, nil
}

// order sorts registered names by registration order and drops unregistered ones.
func (r *Registry) order(names []string) []string {
	position := map[string]int{}
	for i, name := range r.names {
		position[name] = i
	}
	result := []string{}
	for _, name := range names {
		if _, ok := position[name]; ok {
			result = append(result, name)
		}
	}
	sort.Slice(result, func(i, j int) bool { return position[result[i]] < position[result[j]] })
	return result
}
