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

package starvationchecker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/fsmkit/pkg/constants"
	"github.com/united-manufacturing-hub/fsmkit/pkg/logger"
	"github.com/united-manufacturing-hub/fsmkit/pkg/metrics"
	"github.com/united-manufacturing-hub/fsmkit/pkg/sentry"
)

// StarvationChecker detects periods in which the control loop did not tick.
//
// It is a module manager: Update marks the tick, so it notices when the
// registry stops being driven. A background goroutine started in Init checks
// the time since the last tick every interval, independent of the loop
// itself, and reports starvation as a warning plus the starvation metric.
type StarvationChecker struct {
	lastTickTime        time.Time
	logger              *zap.SugaredLogger
	cancel              context.CancelFunc
	wg                  sync.WaitGroup
	starvationThreshold time.Duration
	checkInterval       time.Duration
	starvations         atomic.Uint64
	mutex               sync.RWMutex
}

// NewStarvationChecker creates a checker that reports starvation once no tick
// happened for threshold. The background check starts with Init.
func NewStarvationChecker(threshold time.Duration) *StarvationChecker {
	return NewStarvationCheckerWithInterval(threshold, constants.StarvationCheckInterval)
}

// NewStarvationCheckerWithInterval is NewStarvationChecker with a custom check interval.
func NewStarvationCheckerWithInterval(threshold, interval time.Duration) *StarvationChecker {
	if threshold <= 0 {
		threshold = constants.StarvationThreshold
	}

	if interval <= 0 {
		interval = constants.StarvationCheckInterval
	}

	return &StarvationChecker{
		starvationThreshold: threshold,
		checkInterval:       interval,
		lastTickTime:        time.Now(),
		logger:              logger.For(logger.ComponentStarvationChecker),
	}
}

func (s *StarvationChecker) Awake(ctx context.Context) error {
	metrics.InitErrorCounter(metrics.ComponentStarvationChecker, s.GetManagerName())

	return nil
}

// Init starts the background check. Calling it again while running does nothing.
func (s *StarvationChecker) Init(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.lastTickTime = time.Now()

	s.wg.Add(1)

	go s.checkStarvationLoop(loopCtx)

	s.logger.Infof("Starvation checker started with threshold %s", s.starvationThreshold)

	return nil
}

// Update marks the current time as the most recent tick.
func (s *StarvationChecker) Update(ctx context.Context, delta time.Duration) error {
	s.UpdateLastTickTime()

	return nil
}

// Shutdown stops the background check and waits for it to exit.
func (s *StarvationChecker) Shutdown(ctx context.Context) error {
	s.mutex.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mutex.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	s.wg.Wait()
	s.logger.Info("Starvation checker stopped")

	return nil
}

func (s *StarvationChecker) checkStarvationLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check()
		}
	}
}

// check reports starvation if the last tick is older than the threshold.
func (s *StarvationChecker) check() bool {
	sinceLastTick := time.Since(s.GetLastTickTime())
	if sinceLastTick <= s.starvationThreshold {
		s.logger.Debugf("Control loop is healthy, last tick was %.2f seconds ago", sinceLastTick.Seconds())

		return false
	}

	s.starvations.Add(1)
	metrics.AddStarvationTime(sinceLastTick.Seconds())
	sentry.ReportIssuef(sentry.IssueTypeWarning, s.logger,
		"[StarvationChecker.check] Control loop starvation detected: %.2f seconds since last tick", sinceLastTick.Seconds())

	return true
}

// UpdateLastTickTime marks the current time as the most recent tick.
func (s *StarvationChecker) UpdateLastTickTime() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastTickTime = time.Now()
}

// GetLastTickTime returns the time of the most recent tick.
func (s *StarvationChecker) GetLastTickTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.lastTickTime
}

// StarvationCount returns how often starvation was detected.
func (s *StarvationChecker) StarvationCount() uint64 {
	return s.starvations.Load()
}

// GetManagerName returns the component name for logging and metrics.
func (s *StarvationChecker) GetManagerName() string {
	return logger.ComponentStarvationChecker
}
