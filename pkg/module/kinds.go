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
	"time"
)

// ModuleKind identifies one subsystem category in the catalog. Extension
// packages may define their own kinds and register them before Awake.
type ModuleKind string

const (
	// KindFSM is the state machine engine, served by *fsm.Registry.
	KindFSM ModuleKind = "fsm"
	// KindStarvationChecker watches the tick rate of the control loop.
	KindStarvationChecker ModuleKind = "starvation_checker"
)

// Manager is the lifecycle contract every module kind implements. The
// registry calls Awake once right after construction, Init once before the
// first tick, Update once per tick and Shutdown once at the end.
type Manager interface {
	Awake(ctx context.Context) error
	Init(ctx context.Context) error
	Update(ctx context.Context, delta time.Duration) error
	Shutdown(ctx context.Context) error
	GetManagerName() string
}

// Phase is the lifecycle phase of the registry.
type Phase string

const (
	PhaseStopped  Phase = "stopped"
	PhaseAwake    Phase = "awake"
	PhaseInit     Phase = "init"
	PhaseRuntime  Phase = "runtime"
	PhaseShutdown Phase = "shutdown"
)

// AllPhases lists every phase in lifecycle order.
var AllPhases = []Phase{PhaseStopped, PhaseAwake, PhaseInit, PhaseRuntime, PhaseShutdown}

const (
	eventAwake    = "awake"
	eventInit     = "init"
	eventRun      = "run"
	eventShutdown = "shutdown"
	eventStop     = "stop"
)
