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

import "errors"

var (
	// ErrUnregisteredManagerType is returned when a manager type or kind has no
	// catalog entry. It is always logged at error level and reported.
	ErrUnregisteredManagerType = errors.New("manager type is not registered")
	// ErrRegistrationClosed is returned when the catalog or the priority list
	// is changed after Awake.
	ErrRegistrationClosed = errors.New("registration is only possible while stopped")
	// ErrInvalidPhase is returned when a lifecycle call does not fit the current phase.
	ErrInvalidPhase = errors.New("invalid lifecycle phase")
	// ErrManagerPanicked is returned when a manager hook panicked. The panic is recovered.
	ErrManagerPanicked = errors.New("manager panicked")
	ErrEmptyKind       = errors.New("module kind must not be empty")
	ErrNilFactory      = errors.New("manager factory must not be nil")
)
