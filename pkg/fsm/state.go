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
	"reflect"
	"strings"
	"time"
)

// State is one behaviour of a machine. A machine owns its states for its
// whole lifetime and calls the hooks in this order:
//
//	OnInit     once, when the machine is created
//	OnEnter    on Start and on every ChangeState into the state
//	OnUpdate   once per tick while the state is current
//	OnLeave    on ChangeState out of the state (isShutdown=false) and on
//	           Destroy while the state is current (isShutdown=true)
//	OnDestroy  once, when the machine is destroyed
//
// Embed BaseState to implement only the hooks you need.
type State[O any] interface {
	OnInit(m *Machine[O])
	OnEnter(m *Machine[O])
	OnUpdate(m *Machine[O], delta time.Duration)
	OnLeave(m *Machine[O], isShutdown bool)
	OnDestroy(m *Machine[O])
}

// BaseState implements every hook as a no-op.
type BaseState[O any] struct{}

func (BaseState[O]) OnInit(*Machine[O]) {}
func (BaseState[O]) OnEnter(*Machine[O]) {}
func (BaseState[O]) OnUpdate(*Machine[O], time.Duration) {}
func (BaseState[O]) OnLeave(*Machine[O], bool) {}
func (BaseState[O]) OnDestroy(*Machine[O]) {}

// StateKind identifies a state by its concrete type. A machine holds at most
// one state per kind.
type StateKind = reflect.Type

// KindOf returns the kind of state type S.
//
//	fsm.KindOf[*Idle]()
func KindOf[S any]() StateKind {
	return reflect.TypeFor[S]()
}

// kindOf returns the kind of a state value.
func kindOf(state any) StateKind {
	return reflect.TypeOf(state)
}

// StateName returns a short, human readable name for a kind: the type name
// without package and pointer.
func StateName(kind StateKind) string {
	if kind == nil {
		return ""
	}

	for kind.Kind() == reflect.Pointer {
		kind = kind.Elem()
	}

	if name := kind.Name(); name != "" {
		// generic instantiations carry their type arguments in brackets
		if idx := strings.IndexByte(name, '['); idx > 0 {
			return name[:idx]
		}

		return name
	}

	return kind.String()
}

// TypeName returns the owner type name used in full names and snapshots, e.g. "game.Player".
func TypeName(t reflect.Type) string {
	if t == nil {
		return ""
	}

	return strings.TrimLeft(t.String(), "*")
}

// OwnerTypeNamePair is the registry key of a machine. Names are case
// sensitive and may be empty.
type OwnerTypeNamePair struct {
	OwnerType reflect.Type
	Name      string
}

// String returns "<owner type>.<name>", or only the owner type if the name is empty.
func (p OwnerTypeNamePair) String() string {
	if p.Name == "" {
		return TypeName(p.OwnerType)
	}

	return TypeName(p.OwnerType) + "." + p.Name
}
