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

// Package lifecycle wraps looplab/fsm for the small, fixed state graphs used
// by machines and the module registry. It is not the typed state machine
// engine itself.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// ErrInvalidEvent is returned when an event is unknown or not allowed in the current state.
var ErrInvalidEvent = errors.New("event not allowed in current state")

// Machine is a named looplab/fsm instance with per-state enter callbacks.
type Machine struct {
	fsm *fsm.FSM

	// Registered "enter_<state>" callbacks
	callbacks map[string]fsm.Callback

	name   string
	logger *zap.SugaredLogger
}

// New creates a Machine starting in initial with the given transitions.
func New(name string, initial string, events []fsm.EventDesc, logger *zap.SugaredLogger) *Machine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	m := &Machine{
		callbacks: make(map[string]fsm.Callback),
		name:      name,
		logger:    logger,
	}

	m.fsm = fsm.NewFSM(
		initial,
		fsm.Events(events),
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				m.logger.Debugf("%s: %s -> %s (%s)", m.name, e.Src, e.Dst, e.Event)

				if cb, ok := m.callbacks["enter_"+e.Dst]; ok {
					cb(ctx, e)
				}
			},
		},
	)

	return m
}

// AddCallback registers a callback for "enter_<state>". A later call for the
// same key replaces the earlier one.
func (m *Machine) AddCallback(eventName string, callback fsm.Callback) {
	m.callbacks[eventName] = callback
}

// SendEvent fires eventName. It refuses to start a transition on a cancelled context.
func (m *Machine) SendEvent(ctx context.Context, eventName string, args ...interface{}) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	err := m.fsm.Event(ctx, eventName, args...)
	if err == nil {
		return nil
	}

	var invalid fsm.InvalidEventError
	var unknown fsm.UnknownEventError

	if errors.As(err, &invalid) || errors.As(err, &unknown) {
		return fmt.Errorf("%w: %s: event %q in state %q", ErrInvalidEvent, m.name, eventName, m.fsm.Current())
	}

	return fmt.Errorf("%s: %w", m.name, err)
}

// Fire is SendEvent without a caller context, for transitions driven from
// synchronous code that never blocks.
func (m *Machine) Fire(eventName string) error {
	return m.SendEvent(context.Background(), eventName)
}

// Current returns the current state.
func (m *Machine) Current() string {
	return m.fsm.Current()
}

// Is reports whether the machine is in state.
func (m *Machine) Is(state string) bool {
	return m.fsm.Is(state)
}

// Can reports whether eventName may fire in the current state.
func (m *Machine) Can(eventName string) bool {
	return m.fsm.Can(eventName)
}

// SetState forces the state without running callbacks.
func (m *Machine) SetState(state string) {
	m.fsm.SetState(state)
}
