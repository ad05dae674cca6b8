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
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/fsmkit/pkg/logger"
	"github.com/united-manufacturing-hub/fsmkit/pkg/metrics"
	"github.com/united-manufacturing-hub/fsmkit/pkg/sentry"
)

// DefaultRegistryName is the name of the registry built by the default catalog.
const DefaultRegistryName = "fsm"

// Instance is the type-erased view of a Machine that the Registry stores.
type Instance interface {
	Key() OwnerTypeNamePair
	GetFullName() string
	GetOwnerType() reflect.Type
	GetCurrentStateName() string
	GetCurrentStateTime() time.Duration
	IsRunning() bool
	IsDestroyed() bool
	StateNames() []string
	DataKeys() []string

	update(delta time.Duration)
	teardown() error
	detach()
}

// Registry owns every machine created through it and updates the live ones
// once per tick. Machines created or destroyed during a tick are queued and
// applied at the start of the next Update, so the list being iterated never
// changes mid-iteration.
//
// Registry implements the module manager contract (Awake, Init, Update,
// Shutdown) and is not safe for concurrent use.
type Registry struct {
	// machines is the key map, always up to date
	machines map[OwnerTypeNamePair]Instance

	// live is iterated by Update
	live []Instance

	pendingAdd    []Instance
	pendingRemove []Instance

	name   string
	tick   uint64
	logger *zap.SugaredLogger
}

// NewRegistry creates an empty registry.
func NewRegistry(name string) *Registry {
	return &Registry{
		machines: make(map[OwnerTypeNamePair]Instance),
		name:     name,
		logger:   logger.For(logger.ComponentFSMRegistry).With("registry", name),
	}
}

// CreateFSM builds a machine for owner under name, calls OnInit on every
// state and queues the machine for the next Update. If a machine for the
// same owner type and name exists, nothing is built and ErrDuplicateKey is
// returned.
func CreateFSM[O any](r *Registry, name string, owner O, states ...State[O]) (*Machine[O], error) {
	key := OwnerTypeNamePair{OwnerType: reflect.TypeFor[O](), Name: name}

	if _, exists := r.machines[key]; exists {
		return nil, r.fail("create", fmt.Errorf("%w: %s", ErrDuplicateKey, key))
	}

	m, err := newMachine(name, owner, r.logger, states...)
	if err != nil {
		return nil, r.fail("create", err)
	}

	// OnInit may have created a machine under the same key
	if _, exists := r.machines[key]; exists {
		_ = m.teardown()

		return nil, r.fail("create", fmt.Errorf("%w: %s", ErrDuplicateKey, key))
	}

	m.registry = r
	r.machines[key] = m
	r.pendingAdd = append(r.pendingAdd, m)
	metrics.SetMachineCount(r.name, len(r.machines))

	r.logger.Debugf("created %s", key)

	return m, nil
}

// DestroyFSM destroys the machine of owner type O registered under name.
func DestroyFSM[O any](r *Registry, name string) error {
	return r.DestroyFSMByType(reflect.TypeFor[O](), name)
}

// HasFSM reports whether a machine of owner type O is registered under name.
func HasFSM[O any](r *Registry, name string) bool {
	return r.HasFSMByType(reflect.TypeFor[O](), name)
}

// GetFSM returns the machine of owner type O registered under name.
func GetFSM[O any](r *Registry, name string) (*Machine[O], error) {
	inst, err := r.GetFSMByType(reflect.TypeFor[O](), name)
	if err != nil {
		return nil, err
	}

	m, ok := inst.(*Machine[O])
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, inst.GetFullName())
	}

	return m, nil
}

func (r *Registry) HasFSMByType(ownerType reflect.Type, name string) bool {
	_, ok := r.machines[OwnerTypeNamePair{OwnerType: ownerType, Name: name}]

	return ok
}

func (r *Registry) GetFSMByType(ownerType reflect.Type, name string) (Instance, error) {
	key := OwnerTypeNamePair{OwnerType: ownerType, Name: name}

	inst, ok := r.machines[key]
	if !ok {
		return nil, r.fail("get", fmt.Errorf("%w: %s", ErrNotFound, key))
	}

	return inst, nil
}

func (r *Registry) DestroyFSMByType(ownerType reflect.Type, name string) error {
	key := OwnerTypeNamePair{OwnerType: ownerType, Name: name}

	inst, ok := r.machines[key]
	if !ok {
		return r.fail("destroy", fmt.Errorf("%w: %s", ErrNotFound, key))
	}

	return r.destroy(inst)
}

// DestroyMachine destroys inst if it is the machine registered under its key.
func (r *Registry) DestroyMachine(inst Instance) error {
	if inst == nil {
		return r.fail("destroy", fmt.Errorf("%w: nil machine", ErrNotFound))
	}

	if registered, ok := r.machines[inst.Key()]; !ok || registered != inst {
		return r.fail("destroy", fmt.Errorf("%w: %s", ErrNotFound, inst.GetFullName()))
	}

	return r.destroy(inst)
}

// destroy removes inst from the key map, tears it down and queues it for
// removal from the live list.
func (r *Registry) destroy(inst Instance) error {
	delete(r.machines, inst.Key())
	inst.detach()

	err := inst.teardown()

	r.pendingRemove = append(r.pendingRemove, inst)
	metrics.SetMachineCount(r.name, len(r.machines))

	r.logger.Debugf("destroyed %s", inst.GetFullName())

	return err
}

// GetAllFSMs returns every registered machine ordered by full name.
func (r *Registry) GetAllFSMs() []Instance {
	all := make([]Instance, 0, len(r.machines))
	for _, inst := range r.machines {
		all = append(all, inst)
	}

	slices.SortFunc(all, func(a, b Instance) int {
		return strings.Compare(a.GetFullName(), b.GetFullName())
	})

	return all
}

// Count returns the number of registered machines, including those still
// waiting for their first Update.
func (r *Registry) Count() int {
	return len(r.machines)
}

// LiveCount returns the number of machines the next Update iterates before flushing.
func (r *Registry) LiveCount() int {
	return len(r.live)
}

func (r *Registry) GetManagerName() string {
	return r.name
}

// GetTick returns the number of Update calls since creation.
func (r *Registry) GetTick() uint64 {
	return r.tick
}

func (r *Registry) Awake(ctx context.Context) error {
	metrics.InitErrorCounter(metrics.ComponentFSMRegistry, r.name)
	metrics.SetMachineCount(r.name, len(r.machines))
	r.logger.Debug("awake")

	return nil
}

func (r *Registry) Init(ctx context.Context) error {
	r.logger.Debugf("init with %d machines", len(r.machines))

	return nil
}

// Update flushes pending additions, then pending removals, then updates
// every live machine in list order. A panicking state is reported and does
// not stop the other machines.
func (r *Registry) Update(ctx context.Context, delta time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	start := time.Now()
	defer func() {
		metrics.ObserveTickTime(metrics.ComponentFSMRegistry, r.name, time.Since(start))
	}()

	r.tick++
	r.flush()

	var errs []error

	for _, inst := range r.live {
		if err := r.updateMachine(inst, delta); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Registry) updateMachine(inst Instance, delta time.Duration) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: %v", ErrStatePanicked, inst.GetFullName(), rec)
			metrics.IncErrorCount(metrics.ComponentFSMRegistry, r.name)
			sentry.ReportFSMErrorf(r.logger, inst.GetFullName(), TypeName(inst.GetOwnerType()), "update",
				"state %s panicked: %v", inst.GetCurrentStateName(), rec)
		}
	}()

	inst.update(delta)

	return nil
}

// flush applies pending additions before pending removals, so a machine
// created and destroyed within one tick is never iterated.
func (r *Registry) flush() {
	if len(r.pendingAdd) > 0 {
		r.live = append(r.live, r.pendingAdd...)
		r.pendingAdd = nil
	}

	if len(r.pendingRemove) > 0 {
		remove := r.pendingRemove
		r.pendingRemove = nil

		r.live = slices.DeleteFunc(r.live, func(inst Instance) bool {
			return slices.Contains(remove, inst)
		})
	}
}

// maxShutdownRounds bounds how often Shutdown picks up machines that were
// created by teardown hooks of the previous round.
const maxShutdownRounds = 16

// Shutdown tears down every machine and clears the registry. Machines are
// torn down in live list order. Machines created by teardown hooks are torn
// down in a further round.
func (r *Registry) Shutdown(ctx context.Context) error {
	var errs []error

	total := 0

	for round := 0; ; round++ {
		r.flush()

		if len(r.live) == 0 {
			break
		}

		if round == maxShutdownRounds {
			errs = append(errs, fmt.Errorf("%w: %d machines still created after %d rounds",
				ErrShutdownIncomplete, len(r.live), maxShutdownRounds))

			break
		}

		batch := r.live
		r.live = nil

		for _, inst := range batch {
			inst.detach()

			if r.machines[inst.Key()] == inst {
				delete(r.machines, inst.Key())
			}

			if inst.IsDestroyed() {
				continue
			}

			total++

			if err := r.shutdownMachine(inst); err != nil {
				errs = append(errs, err)
			}
		}
	}

	r.logger.Debugf("shut down %d machines", total)

	clear(r.machines)
	r.live = nil
	r.pendingAdd = nil
	r.pendingRemove = nil
	metrics.SetMachineCount(r.name, 0)

	return errors.Join(errs...)
}

func (r *Registry) shutdownMachine(inst Instance) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: %v", ErrStatePanicked, inst.GetFullName(), rec)
			sentry.ReportFSMErrorf(r.logger, inst.GetFullName(), TypeName(inst.GetOwnerType()), "shutdown",
				"teardown panicked: %v", rec)
		}
	}()

	return inst.teardown()
}

func (r *Registry) fail(operation string, err error) error {
	r.logger.Debugf("%s failed: %v", operation, err)
	metrics.IncErrorCount(metrics.ComponentFSMRegistry, r.name)

	return err
}
