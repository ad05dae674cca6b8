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

package control

// Package control drives the module registry from a fixed-rate ticker.
//
// The control loop is the host side of the lifecycle orchestrator:
// - Awake and Init the registry once
// - Call Update on every tick with the real time elapsed since the previous tick
// - Record tick durations and warn about overrunning ticks
// - Publish a snapshot of all state machines for the inspection API
// - Shut the registry down within a bounded time once the context is cancelled

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/fsmkit/pkg/config"
	"github.com/united-manufacturing-hub/fsmkit/pkg/constants"
	"github.com/united-manufacturing-hub/fsmkit/pkg/fsm"
	"github.com/united-manufacturing-hub/fsmkit/pkg/logger"
	"github.com/united-manufacturing-hub/fsmkit/pkg/metrics"
	"github.com/united-manufacturing-hub/fsmkit/pkg/module"
	"github.com/united-manufacturing-hub/fsmkit/pkg/sentry"
)

const instanceMain = "main"

// ControlLoop owns a module registry and ticks it at a fixed interval.
// All manager hooks run on the goroutine that called Execute.
type ControlLoop struct {
	registry        *module.Registry
	engine          *fsm.Registry
	snapshotManager *fsm.SnapshotManager
	logger          *zap.SugaredLogger
	tickerTime      time.Duration
	configHash      uint64
	currentTick     uint64
}

// NewControlLoop creates a control loop for registry. The tick interval is
// taken from cfg, falling back to constants.DefaultTickerTime.
func NewControlLoop(registry *module.Registry, cfg config.FullConfig) *ControlLoop {
	log := logger.For(logger.ComponentControlLoop)
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	tickerTime := cfg.Runtime.TickInterval
	if tickerTime <= 0 {
		tickerTime = constants.DefaultTickerTime
	}

	metrics.InitErrorCounter(metrics.ComponentControlLoop, instanceMain)

	return &ControlLoop{
		registry:        registry,
		snapshotManager: fsm.NewSnapshotManager(),
		logger:          log,
		tickerTime:      tickerTime,
		configHash:      cfg.Hash(),
	}
}

// Start runs Awake and Init on the registry. Execute calls it; tests that
// drive ticks by hand call it directly.
func (c *ControlLoop) Start(ctx context.Context) error {
	if c.registry == nil {
		return errors.New("module registry is not set")
	}

	if err := c.registry.Awake(ctx); err != nil {
		c.abort("awake")

		return fmt.Errorf("awake: %w", err)
	}

	if err := c.registry.Init(ctx); err != nil {
		c.abort("init")

		return fmt.Errorf("init: %w", err)
	}

	if c.registry.IsRegistered(module.KindFSM) {
		engine, err := module.GetManager[*fsm.Registry](ctx, c.registry)
		if err != nil {
			c.logger.Warnf("No state machine engine available, snapshots disabled: %v", err)
		} else {
			c.engine = engine
		}
	}

	c.currentTick = 0
	c.updateSnapshot()

	return nil
}

// Execute starts the registry and ticks it until ctx is cancelled. It then
// shuts the registry down and returns the shutdown error, if any. Errors
// returned by a single tick are reported and the loop keeps running.
func (c *ControlLoop) Execute(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	c.logger.Infof("Control loop started with ticker time %v", c.tickerTime)

	ticker := time.NewTicker(c.tickerTime)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("Control loop cancelled after %d ticks", c.currentTick)

			return c.Stop()
		case now := <-ticker.C:
			delta := now.Sub(lastTick)
			lastTick = now

			err := c.Tick(ctx, delta)
			if err == nil {
				continue
			}

			if errors.Is(err, context.Canceled) {
				continue
			}

			metrics.IncErrorCountAndLog(metrics.ComponentControlLoop, instanceMain, err, c.logger)
			sentry.ReportIssuef(sentry.IssueTypeError, c.logger, "Control loop tick %d failed: %v", c.currentTick, err)
		}
	}
}

// Tick advances the registry by delta and refreshes the snapshot.
func (c *ControlLoop) Tick(ctx context.Context, delta time.Duration) error {
	c.currentTick++

	start := time.Now()
	err := c.registry.Update(ctx, delta)
	cycleTime := time.Since(start)

	if cycleTime > c.tickerTime {
		if cycleTime > constants.TickOverrunFactor*c.tickerTime {
			c.logger.Errorf("Control loop tick time is greater than %d*ticker time: %v", constants.TickOverrunFactor, cycleTime)
		} else {
			c.logger.Warnf("Control loop tick time is greater than ticker time: %v", cycleTime)
		}
	}

	metrics.ObserveTickTime(metrics.ComponentControlLoop, instanceMain, cycleTime)

	c.updateSnapshot()

	return err
}

// Stop shuts the registry down with a fresh context bounded by
// constants.DefaultShutdownTimeout.
func (c *ControlLoop) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()

	err := c.registry.Shutdown(shutdownCtx)
	c.engine = nil
	c.updateSnapshot()

	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, c.logger, "Module registry shutdown returned: %v", err)

		return fmt.Errorf("shutdown: %w", err)
	}

	c.logger.Info("Module registry shut down")

	return nil
}

// abort releases the managers built by a failed start.
func (c *ControlLoop) abort(step string) {
	if err := c.Stop(); err != nil {
		c.logger.Warnf("Shutdown after failed %s returned: %v", step, err)
	}
}

func (c *ControlLoop) updateSnapshot() {
	var snapshot *fsm.RegistrySnapshot
	if c.engine != nil {
		snapshot = c.engine.CreateSnapshot()
	} else {
		snapshot = &fsm.RegistrySnapshot{
			Name:         fsm.DefaultRegistryName,
			SnapshotTime: time.Now(),
			Machines:     []fsm.MachineSnapshot{},
		}
	}

	snapshot.Tick = c.currentTick
	snapshot.RunID = c.registry.RunID()
	snapshot.Phase = string(c.registry.Phase())
	snapshot.ConfigHash = c.configHash

	c.snapshotManager.UpdateSnapshot(snapshot)
}

// GetSnapshotManager returns the snapshot manager the loop publishes to.
func (c *ControlLoop) GetSnapshotManager() *fsm.SnapshotManager {
	return c.snapshotManager
}

// GetSystemSnapshot returns the latest published snapshot.
func (c *ControlLoop) GetSystemSnapshot() *fsm.RegistrySnapshot {
	return c.snapshotManager.GetSnapshot()
}

// GetRegistry returns the module registry driven by the loop.
func (c *ControlLoop) GetRegistry() *module.Registry {
	return c.registry
}

// GetTickerTime returns the tick interval.
func (c *ControlLoop) GetTickerTime() time.Duration {
	return c.tickerTime
}

// GetCurrentTick returns the number of ticks since Start.
func (c *ControlLoop) GetCurrentTick() uint64 {
	return c.currentTick
}
