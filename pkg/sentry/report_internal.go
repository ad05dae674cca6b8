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

package sentry

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// DebounceWindow is the minimum time between two events of the same level.
const DebounceWindow = 2 * time.Hour

type debouncer struct {
	last map[sentry.Level]time.Time
	mu   sync.Mutex
	on   bool
}

var reportDebouncer = &debouncer{
	last: make(map[sentry.Level]time.Time),
	on:   true,
}

func setDebounce(on bool) {
	reportDebouncer.mu.Lock()
	defer reportDebouncer.mu.Unlock()

	reportDebouncer.on = on
	reportDebouncer.last = make(map[sentry.Level]time.Time)
}

// EnableTestMode disables debouncing for testing.
func EnableTestMode() {
	setDebounce(false)
}

// DisableTestMode restores normal debouncing behavior.
func DisableTestMode() {
	setDebounce(true)
}

// allow reports whether an event of this level may be sent now and records it.
func (d *debouncer) allow(level sentry.Level) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.on {
		return true
	}

	if last, ok := d.last[level]; ok && time.Since(last) < DebounceWindow {
		return false
	}

	d.last[level] = time.Now()

	return true
}

func reportFatal(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	log.Error("fsmkit has encountered a fatal error and will now terminate.")
	log.Errorf("Error: %s", err)
	log.Errorf("Stack trace: %s", string(debug.Stack()))

	sendSentryEvent(createSentryEventWithContext(sentry.LevelFatal, err, context))
	sentry.Flush(time.Second * 5)

	log.Panic("Fatal error")
}

func reportError(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	log.Error(err)

	if !reportDebouncer.allow(sentry.LevelError) {
		return
	}

	sendSentryEvent(createSentryEventWithContext(sentry.LevelError, err, context))
}

func reportWarning(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	log.Warn(err)

	if !reportDebouncer.allow(sentry.LevelWarning) {
		return
	}

	sendSentryEvent(createSentryEventWithContext(sentry.LevelWarning, err, context))
}
