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

package fsm

import (
	"fmt"
	"reflect"
	"time"

	lf "github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/fsmkit/internal/lifecycle"
	"github.com/united-manufacturing-hub/fsmkit/pkg/logger"
	"github.com/united-manufacturing-hub/fsmkit/pkg/metrics"
)

// Lifecycle states of a machine. They are independent of the user states.
const (
	// LifecycleStateUninitialized means the machine has no current state yet
	LifecycleStateUninitialized = "uninitialized"
	// LifecycleStateRunning means a current state is set and updates are dispatched to it
	LifecycleStateRunning = "running"
	// LifecycleStateDestroyed is terminal
	LifecycleStateDestroyed = "destroyed"

	LifecycleEventStart   = "start"
	LifecycleEventDestroy = "destroy"
)

var machineLifecycle = []lf.EventDesc{
	{Name: LifecycleEventStart, Src: []string{LifecycleStateUninitialized}, Dst: LifecycleStateRunning},
	{Name: LifecycleEventDestroy, Src: []string{LifecycleStateUninitialized, LifecycleStateRunning}, Dst: LifecycleStateDestroyed},
}

// Machine is a named state machine driving an owner through a fixed set of
// states. The owner is borrowed: the machine never manages its lifetime.
type Machine[O any] struct {
	owner O
	key   OwnerTypeNamePair

	// states in the order they were passed, and the same states by kind
	states []State[O]
	byKind map[StateKind]State[O]

	current          State[O]
	currentStateTime time.Duration

	blackboard *Blackboard
	lifecycle  *lifecycle.Machine

	// registry is set while the machine is registered, Destroy routes through it
	registry *Registry

	tearingDown bool

	logger *zap.SugaredLogger
}

// NewMachine builds an unregistered machine and calls OnInit on every state.
// Use CreateFSM to build a machine that is updated by a Registry.
func NewMachine[O any](name string, owner O, states ...State[O]) (*Machine[O], error) {
	return newMachine(name, owner, logger.For(logger.ComponentFSMMachine), states...)
}

func newMachine[O any](name string, owner O, log *zap.SugaredLogger, states ...State[O]) (*Machine[O], error) {
	key := OwnerTypeNamePair{OwnerType: reflect.TypeFor[O](), Name: name}

	if isNil(owner) {
		return nil, fmt.Errorf("%w: %s", ErrNilOwner, key)
	}

	if len(states) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoStates, key)
	}

	byKind := make(map[StateKind]State[O], len(states))

	for i, state := range states {
		if isNil(state) {
			return nil, fmt.Errorf("%w: %s, index %d", ErrNilState, key, i)
		}

		kind := kindOf(state)
		if _, exists := byKind[kind]; exists {
			return nil, fmt.Errorf("%w: %s, %s", ErrDuplicateState, key, StateName(kind))
		}

		byKind[kind] = state
	}

	log = log.With("fsm", key.String())

	m := &Machine[O]{
		owner:      owner,
		key:        key,
		states:     append([]State[O](nil), states...),
		byKind:     byKind,
		blackboard: NewBlackboard(),
		logger:     log,
	}
	m.lifecycle = lifecycle.New(key.String(), LifecycleStateUninitialized, machineLifecycle, log)

	for _, state := range m.states {
		state.OnInit(m)
	}

	return m, nil
}

// Start enters the initial state. It is only valid once, before any other transition.
func (m *Machine[O]) Start(kind StateKind) error {
	if m.closed() {
		return m.fail("start", ErrMachineDestroyed)
	}

	if !m.lifecycle.Is(LifecycleStateUninitialized) {
		return m.fail("start", fmt.Errorf("%w: %s is already running in %s", ErrInvalidTransition, m.key, m.GetCurrentStateName()))
	}

	state, ok := m.byKind[kind]
	if !ok {
		return m.fail("start", fmt.Errorf("%w: %s", ErrInvalidStateKind, StateName(kind)))
	}

	if err := m.lifecycle.Fire(LifecycleEventStart); err != nil {
		return m.fail("start", err)
	}

	m.enter(state)

	return nil
}

// ChangeState leaves the current state and enters the state of the given kind.
// Changing into the current state runs OnLeave and OnEnter as well.
func (m *Machine[O]) ChangeState(kind StateKind) error {
	if m.closed() {
		return m.fail("change_state", ErrMachineDestroyed)
	}

	if !m.IsRunning() {
		return m.fail("change_state", fmt.Errorf("%w: %s was not started", ErrInvalidTransition, m.key))
	}

	target, ok := m.byKind[kind]
	if !ok {
		return m.fail("change_state", fmt.Errorf("%w: %s", ErrInvalidStateKind, StateName(kind)))
	}

	m.current.OnLeave(m, false)
	m.enter(target)

	return nil
}

func (m *Machine[O]) enter(state State[O]) {
	m.current = state
	m.currentStateTime = 0

	name := StateName(kindOf(state))
	m.logger.Debugf("entering %s", name)
	metrics.IncStateTransition(TypeName(m.key.OwnerType), name)

	state.OnEnter(m)
}

// update advances the time in the current state and runs its OnUpdate.
// Negative deltas count as zero.
func (m *Machine[O]) update(delta time.Duration) {
	if !m.IsRunning() {
		return
	}

	if delta < 0 {
		delta = 0
	}

	m.currentStateTime += delta
	m.current.OnUpdate(m, delta)
}

// Destroy tears the machine down. A machine created by CreateFSM is removed
// from its registry as well.
func (m *Machine[O]) Destroy() error {
	if m.registry != nil {
		return m.registry.DestroyMachine(m)
	}

	return m.teardown()
}

// teardown calls OnLeave(true) on the current state if running, then
// OnDestroy on every state, then moves to destroyed.
func (m *Machine[O]) teardown() error {
	if m.tearingDown || m.IsDestroyed() {
		return ErrMachineDestroyed
	}

	m.tearingDown = true
	defer func() { m.tearingDown = false }()

	if m.IsRunning() {
		m.current.OnLeave(m, true)
	}

	for _, state := range m.states {
		state.OnDestroy(m)
	}

	dropped := m.blackboard.Len()

	m.current = nil
	m.currentStateTime = 0
	m.blackboard.Clear()

	if err := m.lifecycle.Fire(LifecycleEventDestroy); err != nil {
		// only reachable if the lifecycle was forced into an unknown state
		m.lifecycle.SetState(LifecycleStateDestroyed)
	}

	m.logger.Debugf("destroyed, dropped %d data keys", dropped)

	return nil
}

// closed reports whether the machine is destroyed or being torn down. Hooks
// running during teardown cannot transition or write data.
func (m *Machine[O]) closed() bool {
	return m.tearingDown || m.IsDestroyed()
}

func (m *Machine[O]) fail(operation string, err error) error {
	m.logger.Debugf("%s failed: %v", operation, err)
	metrics.IncErrorCount(metrics.ComponentFSMMachine, m.key.String())

	return err
}

// SetData stores value on the blackboard.
func (m *Machine[O]) SetData(key string, value any) error {
	if m.closed() {
		return ErrMachineDestroyed
	}

	return m.blackboard.Set(key, value)
}

// GetData reads a typed value from the machine's blackboard.
//
//	hp, err := fsm.GetData[int](m, "hp")
func GetData[T any, O any](m *Machine[O], key string) (T, error) {
	if m.IsDestroyed() {
		var zero T

		return zero, ErrMachineDestroyed
	}

	return Lookup[T](m.blackboard, key)
}

func (m *Machine[O]) HasData(key string) bool {
	return !m.IsDestroyed() && m.blackboard.Has(key)
}

// RemoveData deletes key from the blackboard. Removing an absent key returns ErrDataNotFound.
func (m *Machine[O]) RemoveData(key string) error {
	if m.closed() {
		return ErrMachineDestroyed
	}

	if !m.blackboard.Remove(key) {
		return fmt.Errorf("%w: %q", ErrDataNotFound, key)
	}

	return nil
}

// DataKeys returns the blackboard keys in sorted order.
func (m *Machine[O]) DataKeys() []string {
	return m.blackboard.Keys()
}

func (m *Machine[O]) GetName() string {
	return m.key.Name
}

// GetFullName returns "<owner type>.<name>".
func (m *Machine[O]) GetFullName() string {
	return m.key.String()
}

func (m *Machine[O]) GetOwner() O {
	return m.owner
}

func (m *Machine[O]) GetOwnerType() reflect.Type {
	return m.key.OwnerType
}

// Key returns the registry key of the machine.
func (m *Machine[O]) Key() OwnerTypeNamePair {
	return m.key
}

// GetCurrentState returns the current state, nil before Start and after Destroy.
func (m *Machine[O]) GetCurrentState() State[O] {
	return m.current
}

// GetCurrentStateKind returns the kind of the current state, nil if there is none.
func (m *Machine[O]) GetCurrentStateKind() StateKind {
	if m.current == nil {
		return nil
	}

	return kindOf(m.current)
}

func (m *Machine[O]) GetCurrentStateName() string {
	return StateName(m.GetCurrentStateKind())
}

// GetCurrentStateTime returns the time spent in the current state. It is zero
// right after Start and every ChangeState.
func (m *Machine[O]) GetCurrentStateTime() time.Duration {
	return m.currentStateTime
}

func (m *Machine[O]) IsRunning() bool {
	return m.lifecycle.Is(LifecycleStateRunning)
}

func (m *Machine[O]) IsDestroyed() bool {
	return m.lifecycle.Is(LifecycleStateDestroyed)
}

// StateCount returns the number of states the machine owns.
func (m *Machine[O]) StateCount() int {
	return len(m.states)
}

func (m *Machine[O]) HasState(kind StateKind) bool {
	_, ok := m.byKind[kind]

	return ok
}

// GetAllStates returns the states in the order they were passed at creation.
func (m *Machine[O]) GetAllStates() []State[O] {
	return append([]State[O](nil), m.states...)
}

// StateNames returns the names of all states in creation order.
func (m *Machine[O]) StateNames() []string {
	names := make([]string, 0, len(m.states))
	for _, state := range m.states {
		names = append(names, StateName(kindOf(state)))
	}

	return names
}

func (m *Machine[O]) detach() {
	m.registry = nil
}

// Start enters state kind S.
//
//	fsm.Start[*Idle](m)
func Start[S any, O any](m *Machine[O]) error {
	return m.Start(KindOf[S]())
}

// ChangeState changes into state kind S.
func ChangeState[S any, O any](m *Machine[O]) error {
	return m.ChangeState(KindOf[S]())
}

// GetState returns the machine's state of kind S.
func GetState[S State[O], O any](m *Machine[O]) (S, bool) {
	state, ok := m.byKind[KindOf[S]()]
	if !ok {
		var zero S

		return zero, false
	}

	s, ok := state.(S)

	return s, ok
}

func HasState[S any, O any](m *Machine[O]) bool {
	return m.HasState(KindOf[S]())
}

// IsInState reports whether the current state is of kind S.
func IsInState[S any, O any](m *Machine[O]) bool {
	return m.GetCurrentStateKind() == KindOf[S]()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
