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

package module

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	lf "github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/fsmkit/internal/lifecycle"
	"github.com/united-manufacturing-hub/fsmkit/pkg/logger"
	"github.com/united-manufacturing-hub/fsmkit/pkg/metrics"
	"github.com/united-manufacturing-hub/fsmkit/pkg/sentry"
)

var phaseTransitions = []lf.EventDesc{
	{Name: eventAwake, Src: []string{string(PhaseStopped)}, Dst: string(PhaseAwake)},
	{Name: eventInit, Src: []string{string(PhaseAwake)}, Dst: string(PhaseInit)},
	{Name: eventRun, Src: []string{string(PhaseInit)}, Dst: string(PhaseRuntime)},
	{Name: eventShutdown, Src: []string{string(PhaseAwake), string(PhaseInit), string(PhaseRuntime)}, Dst: string(PhaseShutdown)},
	{Name: eventStop, Src: []string{string(PhaseShutdown)}, Dst: string(PhaseStopped)},
}

type catalogEntry struct {
	managerType reflect.Type
	factory     func() Manager
}

// Registry creates, sequences and tears down the managers of the configured
// module kinds. Init and Update walk the priority list in order, Shutdown
// walks it in reverse. There is one Registry per running application; it is
// passed explicitly to whoever needs it.
//
// Registry is driven from a single goroutine and is not safe for concurrent use.
type Registry struct {
	// catalog maps kinds to manager types, factories maps types to constructors
	catalog   map[ModuleKind]catalogEntry
	factories map[reflect.Type]func() Manager

	priority []ModuleKind

	// resolved holds the manager type of every priority list entry
	resolved      []reflect.Type
	resolvedKinds map[reflect.Type]ModuleKind

	managers map[reflect.Type]Manager
	// created holds manager types in construction order
	created []reflect.Type

	phase *lifecycle.Machine
	runID uuid.UUID

	logger *zap.SugaredLogger
}

// NewRegistry creates a stopped registry with the given priority list.
func NewRegistry(priority ...ModuleKind) *Registry {
	log := logger.For(logger.ComponentModuleRegistry)

	r := &Registry{
		catalog:       make(map[ModuleKind]catalogEntry),
		factories:     make(map[reflect.Type]func() Manager),
		priority:      slices.Clone(priority),
		resolvedKinds: make(map[reflect.Type]ModuleKind),
		managers:      make(map[reflect.Type]Manager),
		logger:        log,
	}

	r.phase = lifecycle.New("module_registry", string(PhaseStopped), phaseTransitions, log)
	for _, phase := range AllPhases {
		r.phase.AddCallback("enter_"+string(phase), func(ctx context.Context, e *lf.Event) {
			r.logger.Infof("Entering phase %s", e.Dst)
			setPhaseMetric(phase)
		})
	}

	setPhaseMetric(PhaseStopped)

	return r
}

func setPhaseMetric(phase Phase) {
	all := make([]string, 0, len(AllPhases))
	for _, p := range AllPhases {
		all = append(all, string(p))
	}

	metrics.SetLifecyclePhase(string(phase), all)
}

// RegisterModuleManagerType adds kind to the catalog, served by manager type
// M built with factory. A later registration for the same kind wins. The
// catalog can only change while the registry is stopped.
func RegisterModuleManagerType[M Manager](r *Registry, kind ModuleKind, factory func() M) error {
	if kind == "" {
		return ErrEmptyKind
	}

	if factory == nil {
		return fmt.Errorf("%w: %s", ErrNilFactory, kind)
	}

	if r.Phase() != PhaseStopped {
		return fmt.Errorf("%w: %s in phase %s", ErrRegistrationClosed, kind, r.Phase())
	}

	managerType := reflect.TypeFor[M]()
	construct := func() Manager { return factory() }

	previous, replaced := r.catalog[kind]

	r.catalog[kind] = catalogEntry{managerType: managerType, factory: construct}
	r.factories[managerType] = construct

	if replaced && previous.managerType != managerType {
		r.logger.Infof("Module kind %s now served by %s instead of %s", kind, managerType, previous.managerType)

		if !r.servesType(previous.managerType) {
			delete(r.factories, previous.managerType)
		}
	}

	return nil
}

// servesType reports whether any kind in the catalog maps to managerType.
func (r *Registry) servesType(managerType reflect.Type) bool {
	for _, entry := range r.catalog {
		if entry.managerType == managerType {
			return true
		}
	}

	return false
}

// GetManager returns the singleton manager of type M, constructing it and
// running its Awake hook on the first request. Requesting a type that no kind
// is registered for returns ErrUnregisteredManagerType.
func GetManager[M Manager](ctx context.Context, r *Registry) (M, error) {
	var zero M

	inst, err := r.getManager(ctx, reflect.TypeFor[M]())
	if err != nil {
		return zero, err
	}

	m, ok := inst.(M)
	if !ok {
		return zero, fmt.Errorf("%w: %s built %T", ErrUnregisteredManagerType, reflect.TypeFor[M](), inst)
	}

	return m, nil
}

// MustGetManager is GetManager for wiring code that cannot continue without the manager.
func MustGetManager[M Manager](ctx context.Context, r *Registry) M {
	m, err := GetManager[M](ctx, r)
	if err != nil {
		panic(err)
	}

	return m
}

func (r *Registry) getManager(ctx context.Context, managerType reflect.Type) (Manager, error) {
	if inst, ok := r.managers[managerType]; ok {
		return inst, nil
	}

	factory, ok := r.factories[managerType]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnregisteredManagerType, managerType)
		sentry.ReportManagerErrorf(r.logger, managerType.String(), "get_manager", "%v", err)

		return nil, err
	}

	inst := factory()
	if inst == nil || reflect.ValueOf(inst).Kind() == reflect.Pointer && reflect.ValueOf(inst).IsNil() {
		return nil, fmt.Errorf("%w: factory for %s returned nil", ErrNilFactory, managerType)
	}

	if err := r.call(ctx, managerType.String(), "awake", inst.Awake); err != nil {
		return nil, err
	}

	r.managers[managerType] = inst
	r.created = append(r.created, managerType)
	r.logger.Debugf("Created manager %s (%s)", inst.GetManagerName(), managerType)

	return inst, nil
}

// Awake resolves the priority list into manager types and constructs every
// manager that does not exist yet. A kind without a catalog entry fails
// Awake before anything is constructed.
func (r *Registry) Awake(ctx context.Context) error {
	if r.Phase() != PhaseStopped {
		return fmt.Errorf("%w: awake in phase %s", ErrInvalidPhase, r.Phase())
	}

	resolved := make([]reflect.Type, 0, len(r.priority))
	kinds := make(map[reflect.Type]ModuleKind, len(r.priority))

	for _, kind := range r.priority {
		entry, ok := r.catalog[kind]
		if !ok {
			err := fmt.Errorf("%w: kind %q", ErrUnregisteredManagerType, kind)
			sentry.ReportManagerErrorf(r.logger, string(kind), "awake", "%v", err)

			return err
		}

		resolved = append(resolved, entry.managerType)
		if _, seen := kinds[entry.managerType]; !seen {
			kinds[entry.managerType] = kind
		}
	}

	r.resolved = resolved
	r.resolvedKinds = kinds
	r.runID = uuid.New()
	r.logger = r.logger.With("run", r.runID.String())

	if err := r.phase.SendEvent(ctx, eventAwake); err != nil {
		return err
	}

	for _, managerType := range r.resolved {
		metrics.InitErrorCounter(metrics.ComponentModuleRegistry, string(r.resolvedKinds[managerType]))

		if _, err := r.getManager(ctx, managerType); err != nil {
			return err
		}
	}

	return nil
}

// Init calls Init on every resolved manager in priority order and stops at the first error.
func (r *Registry) Init(ctx context.Context) error {
	if err := r.phase.SendEvent(ctx, eventInit); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPhase, err)
	}

	for _, managerType := range r.resolved {
		inst, err := r.getManager(ctx, managerType)
		if err != nil {
			return err
		}

		kind := r.resolvedKinds[managerType]
		if err := r.call(ctx, string(kind), "init", inst.Init); err != nil {
			sentry.ReportManagerError(r.logger, string(kind), "init", err)

			return fmt.Errorf("init %s: %w", kind, err)
		}
	}

	return nil
}

// Update calls Update on every resolved manager in priority order. A failing
// manager does not stop the ones after it; all errors are returned joined.
// The first Update moves the registry from init to runtime.
func (r *Registry) Update(ctx context.Context, delta time.Duration) error {
	switch r.Phase() {
	case PhaseRuntime:
	case PhaseInit:
		if err := r.phase.SendEvent(ctx, eventRun); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: update in phase %s", ErrInvalidPhase, r.Phase())
	}

	var errs []error

	for _, managerType := range r.resolved {
		inst, ok := r.managers[managerType]
		if !ok {
			continue
		}

		kind := string(r.resolvedKinds[managerType])
		if err := r.call(ctx, kind, "update", func(ctx context.Context) error {
			return inst.Update(ctx, delta)
		}); err != nil {
			metrics.IncErrorCountAndLog(metrics.ComponentModuleRegistry, kind, err, r.logger)
			errs = append(errs, fmt.Errorf("update %s: %w", kind, err))
		}
	}

	return errors.Join(errs...)
}

// Shutdown reverses the resolved list in place and shuts the managers down in
// that order, then shuts down managers that were requested through GetManager
// without being in the priority list, newest first. Afterwards all registry
// state is cleared and the phase is stopped again, even if managers failed or
// panicked. Shutdown while stopped only shuts down managers that GetManager
// built before Awake.
func (r *Registry) Shutdown(ctx context.Context) error {
	switch r.Phase() {
	case PhaseStopped:
		return r.shutdownDetached(ctx)
	case PhaseShutdown:
		return nil
	}

	if err := r.phase.SendEvent(context.WithoutCancel(ctx), eventShutdown); err != nil {
		// the phase machine only refuses if it was left in an unknown state
		r.phase.SetState(string(PhaseShutdown))
	}

	defer r.reset()

	slices.Reverse(r.resolved)

	var errs []error

	done := make(map[reflect.Type]bool, len(r.managers))
	shutdown := func(managerType reflect.Type, kind string) {
		if done[managerType] {
			return
		}

		done[managerType] = true

		inst, ok := r.managers[managerType]
		if !ok {
			return
		}

		if err := r.call(ctx, kind, "shutdown", inst.Shutdown); err != nil {
			sentry.ReportManagerError(r.logger, kind, "shutdown", err)
			errs = append(errs, fmt.Errorf("shutdown %s: %w", kind, err))
		}
	}

	for _, managerType := range r.resolved {
		shutdown(managerType, string(r.resolvedKinds[managerType]))
	}

	for i := len(r.created) - 1; i >= 0; i-- {
		shutdown(r.created[i], r.created[i].String())
	}

	return errors.Join(errs...)
}

// shutdownDetached shuts down managers that GetManager built while the
// registry was stopped, newest first, and forgets them.
func (r *Registry) shutdownDetached(ctx context.Context) error {
	if len(r.created) == 0 {
		return nil
	}

	var errs []error

	for i := len(r.created) - 1; i >= 0; i-- {
		managerType := r.created[i]

		inst, ok := r.managers[managerType]
		if !ok {
			continue
		}

		if err := r.call(ctx, managerType.String(), "shutdown", inst.Shutdown); err != nil {
			sentry.ReportManagerError(r.logger, managerType.String(), "shutdown", err)
			errs = append(errs, fmt.Errorf("shutdown %s: %w", managerType, err))
		}
	}

	clear(r.managers)
	r.created = nil

	return errors.Join(errs...)
}

// reset clears every piece of registry state and returns to stopped. The
// catalog and the priority list survive.
func (r *Registry) reset() {
	clear(r.managers)
	r.created = nil
	r.resolved = nil
	clear(r.resolvedKinds)
	r.runID = uuid.Nil
	r.logger = logger.For(logger.ComponentModuleRegistry)

	if err := r.phase.Fire(eventStop); err != nil {
		r.phase.SetState(string(PhaseStopped))
		setPhaseMetric(PhaseStopped)
	}
}

// call runs a manager hook and turns a panic into ErrManagerPanicked.
func (r *Registry) call(ctx context.Context, kind string, operation string, hook func(context.Context) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s %s: %v", ErrManagerPanicked, kind, operation, rec)
		}
	}()

	return hook(ctx)
}

// Phase returns the current lifecycle phase.
func (r *Registry) Phase() Phase {
	return Phase(r.phase.Current())
}

// RunID identifies the current run. It changes on every Awake and is empty while stopped.
func (r *Registry) RunID() string {
	if r.runID == uuid.Nil {
		return ""
	}

	return r.runID.String()
}

// Managers returns the existing managers of the priority list in priority order.
func (r *Registry) Managers() []Manager {
	out := make([]Manager, 0, len(r.resolved))
	for _, managerType := range r.resolved {
		if inst, ok := r.managers[managerType]; ok {
			out = append(out, inst)
		}
	}

	return out
}

// PriorityList returns a copy of the configured priority list.
func (r *Registry) PriorityList() []ModuleKind {
	return slices.Clone(r.priority)
}

// SetPriorityList replaces the priority list. Duplicates are kept as given.
func (r *Registry) SetPriorityList(kinds ...ModuleKind) error {
	if r.Phase() != PhaseStopped {
		return fmt.Errorf("%w: priority list in phase %s", ErrRegistrationClosed, r.Phase())
	}

	r.priority = slices.Clone(kinds)

	return nil
}

// IsRegistered reports whether kind has a catalog entry.
func (r *Registry) IsRegistered(kind ModuleKind) bool {
	_, ok := r.catalog[kind]

	return ok
}

// Kinds returns every registered kind in sorted order.
func (r *Registry) Kinds() []ModuleKind {
	kinds := make([]ModuleKind, 0, len(r.catalog))
	for kind := range r.catalog {
		kinds = append(kinds, kind)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}
