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

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/tiendc/go-deepcopy"
	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/fsmkit/pkg/constants"
)

var (
	// ErrNoModules is returned when the priority list is empty.
	ErrNoModules = errors.New("config: priority list is empty")
	// ErrInvalidTickInterval is returned for a non-positive tick interval.
	ErrInvalidTickInterval = errors.New("config: tick interval must be positive")
	// ErrInvalidPort is returned for a port outside 0..65535.
	ErrInvalidPort = errors.New("config: port out of range")
)

type FullConfig struct {
	Agent   AgentConfig   `yaml:"agent"`   // Host process settings, require a restart to take effect
	Runtime RuntimeConfig `yaml:"runtime"` // Lifecycle settings
}

type AgentConfig struct {
	MetricsPort int    `yaml:"metricsPort" env:"METRICS_PORT"`       // Port to expose metrics on
	APIPort     int    `yaml:"apiPort" env:"API_PORT"`               // Port of the inspection API, 0 disables it
	SentryDSN   string `yaml:"sentryDsn,omitempty" env:"SENTRY_DSN"` // Empty keeps reporting local
	Version     string `yaml:"-" env:"APP_VERSION"`                  // Set by the host binary, never read from the file
}

type RuntimeConfig struct {
	// Modules is the priority list: Init and Update run in this order, Shutdown in reverse.
	// Duplicates are not rejected.
	Modules             []string      `yaml:"modules" env:"MODULES" envSeparator:","`
	TickInterval        time.Duration `yaml:"tickInterval" env:"TICK_INTERVAL"`
	StarvationThreshold time.Duration `yaml:"starvationThreshold" env:"STARVATION_THRESHOLD"`
}

// Default returns the configuration used when no file exists.
func Default() FullConfig {
	return FullConfig{
		Agent: AgentConfig{
			MetricsPort: constants.DefaultMetricsPort,
			APIPort:     constants.DefaultAPIPort,
		},
		Runtime: RuntimeConfig{
			Modules:             []string{"fsm", "starvation_checker"},
			TickInterval:        constants.DefaultTickerTime,
			StarvationThreshold: constants.StarvationThreshold,
		},
	}
}

// Validate checks the settings the lifecycle depends on.
func (c FullConfig) Validate() error {
	if len(c.Runtime.Modules) == 0 {
		return ErrNoModules
	}

	if c.Runtime.TickInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTickInterval, c.Runtime.TickInterval)
	}

	for name, port := range map[string]int{"metricsPort": c.Agent.MetricsPort, "apiPort": c.Agent.APIPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidPort, name, port)
		}
	}

	return nil
}

// Clone creates a deep copy of FullConfig. On error the zero config is returned.
func (c FullConfig) Clone() (FullConfig, error) {
	var clone FullConfig

	if err := deepcopy.Copy(&clone.Agent, &c.Agent); err != nil {
		return FullConfig{}, fmt.Errorf("clone agent config: %w", err)
	}

	if err := deepcopy.Copy(&clone.Runtime, &c.Runtime); err != nil {
		return FullConfig{}, fmt.Errorf("clone runtime config: %w", err)
	}

	return clone, nil
}

// Hash fingerprints the effective runtime configuration. Two configs with the
// same priority list and timings hash equal regardless of agent settings.
func (c FullConfig) Hash() uint64 {
	out, err := yaml.Marshal(c.Runtime)
	if err != nil {
		return 0
	}

	return xxhash.Sum64(out)
}
