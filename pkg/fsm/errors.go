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

import "errors"

var (
	// ErrDuplicateKey is returned by CreateFSM when a machine for the same
	// owner type and name already exists.
	ErrDuplicateKey = errors.New("fsm already exists")
	// ErrNotFound is returned when no machine exists for an owner type and name.
	ErrNotFound = errors.New("fsm not found")
	// ErrInvalidStateKind is returned when a transition targets a state the machine does not own.
	ErrInvalidStateKind = errors.New("state kind not part of the machine")
	// ErrInvalidTransition is returned by Start on a running machine and by
	// ChangeState on a machine that was never started.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrMachineDestroyed is returned by every operation on a destroyed machine.
	ErrMachineDestroyed = errors.New("fsm is destroyed")

	ErrNoStates       = errors.New("fsm needs at least one state")
	ErrNilState       = errors.New("state must not be nil")
	ErrDuplicateState = errors.New("duplicate state kind")
	ErrNilOwner       = errors.New("owner must not be nil")

	// ErrDataNotFound is returned when a blackboard key is absent.
	ErrDataNotFound = errors.New("blackboard key not found")
	// ErrTypeMismatch is returned when a blackboard value does not have the requested type.
	ErrTypeMismatch = errors.New("blackboard value has a different type")
	// ErrEmptyKey is returned when a blackboard key is empty.
	ErrEmptyKey = errors.New("blackboard key must not be empty")
)

// ErrStatePanicked is returned by Registry.Update when a state hook panicked.
// The panic is recovered and the remaining machines are still updated.
var ErrStatePanicked = errors.New("state hook panicked")

// ErrShutdownIncomplete is returned by Registry.Shutdown when teardown hooks
// keep creating machines.
var ErrShutdownIncomplete = errors.New("machines created during shutdown")
