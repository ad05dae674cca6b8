// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package catalog registers the built-in module kinds.
package catalog

import (
	"fmt"

	"github.com/united-manufacturing-hub/fsmkit/pkg/config"
	"github.com/united-manufacturing-hub/fsmkit/pkg/fsm"
	"github.com/united-manufacturing-hub/fsmkit/pkg/module"
	"github.com/united-manufacturing-hub/fsmkit/pkg/starvationchecker"
)

// RegisterDefaults adds the state machine engine and the starvation checker
// to the catalog of r. Extension kinds can be registered before or after.
func RegisterDefaults(r *module.Registry, cfg config.FullConfig) error {
	err := module.RegisterModuleManagerType(r, module.KindFSM, func() *fsm.Registry {
		return fsm.NewRegistry(fsm.DefaultRegistryName)
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", module.KindFSM, err)
	}

	threshold := cfg.Runtime.StarvationThreshold

	err = module.RegisterModuleManagerType(r, module.KindStarvationChecker, func() *starvationchecker.StarvationChecker {
		return starvationchecker.NewStarvationChecker(threshold)
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", module.KindStarvationChecker, err)
	}

	return nil
}

// NewRegistry builds a module registry with the priority list from cfg and the default catalog.
func NewRegistry(cfg config.FullConfig) (*module.Registry, error) {
	priority := make([]module.ModuleKind, 0, len(cfg.Runtime.Modules))
	for _, kind := range cfg.Runtime.Modules {
		priority = append(priority, module.ModuleKind(kind))
	}

	r := module.NewRegistry(priority...)
	if err := RegisterDefaults(r, cfg); err != nil {
		return nil, err
	}

	return r, nil
}
