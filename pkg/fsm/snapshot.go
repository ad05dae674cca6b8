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
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"
)

// MachineSnapshot contains the immutable state of one machine
type MachineSnapshot struct {
	OwnerType        string        `json:"ownerType"`
	Name             string        `json:"name"`
	FullName         string        `json:"fullName"`
	CurrentState     string        `json:"currentState,omitempty"`
	CurrentStateTime time.Duration `json:"currentStateTime"`
	Running          bool          `json:"running"`
	Destroyed        bool          `json:"destroyed"`
	States           []string      `json:"states"`
	DataKeys         []string      `json:"dataKeys"`
}

// RegistrySnapshot contains the state of a registry at the end of a tick.
// RunID, Phase and ConfigHash are filled in by whoever drives the registry.
type RegistrySnapshot struct {
	Name         string            `json:"name"`
	RunID        string            `json:"runId,omitempty"`
	Phase        string            `json:"phase,omitempty"`
	SnapshotTime time.Time         `json:"snapshotTime"`
	Machines     []MachineSnapshot `json:"machines"`
	Tick         uint64            `json:"tick"`
	ConfigHash   uint64            `json:"configHash,omitempty"`
}

// Machine returns the snapshot of the machine with the given owner type name
// and machine name.
func (s *RegistrySnapshot) Machine(ownerType, name string) (MachineSnapshot, bool) {
	for _, m := range s.Machines {
		if m.OwnerType == ownerType && m.Name == name {
			return m, true
		}
	}

	return MachineSnapshot{}, false
}

// SnapshotInstance captures the current state of inst.
func SnapshotInstance(inst Instance) MachineSnapshot {
	key := inst.Key()

	return MachineSnapshot{
		OwnerType:        TypeName(key.OwnerType),
		Name:             key.Name,
		FullName:         inst.GetFullName(),
		CurrentState:     inst.GetCurrentStateName(),
		CurrentStateTime: inst.GetCurrentStateTime(),
		Running:          inst.IsRunning(),
		Destroyed:        inst.IsDestroyed(),
		States:           inst.StateNames(),
		DataKeys:         inst.DataKeys(),
	}
}

// CreateSnapshot captures every registered machine, ordered by full name.
func (r *Registry) CreateSnapshot() *RegistrySnapshot {
	all := r.GetAllFSMs()

	snapshot := &RegistrySnapshot{
		Name:         r.name,
		Tick:         r.tick,
		SnapshotTime: time.Now(),
		Machines:     make([]MachineSnapshot, 0, len(all)),
	}

	for _, inst := range all {
		snapshot.Machines = append(snapshot.Machines, SnapshotInstance(inst))
	}

	return snapshot
}

// SnapshotManager manages thread-safe storage and retrieval of registry
// snapshots. The control loop writes, HTTP handlers read.
type SnapshotManager struct {
	mu           sync.RWMutex
	lastSnapshot *RegistrySnapshot
}

// NewSnapshotManager creates a new snapshot manager
func NewSnapshotManager() *SnapshotManager {
	return &SnapshotManager{
		lastSnapshot: &RegistrySnapshot{
			SnapshotTime: time.Now(),
		},
	}
}

// UpdateSnapshot replaces the stored snapshot. Nil snapshots are ignored.
func (s *SnapshotManager) UpdateSnapshot(snapshot *RegistrySnapshot) {
	if s == nil || snapshot == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSnapshot = snapshot
}

// GetSnapshot returns the most recent snapshot. Treat it as read-only.
func (s *SnapshotManager) GetSnapshot() *RegistrySnapshot {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastSnapshot
}

// GetDeepCopySnapshot returns a deep copy of the most recent snapshot
func (s *SnapshotManager) GetDeepCopySnapshot() RegistrySnapshot {
	if s == nil {
		return RegistrySnapshot{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshotCopy RegistrySnapshot

	err := deepcopy.Copy(&snapshotCopy, s.lastSnapshot)
	if err != nil {
		return RegistrySnapshot{}
	}

	return snapshotCopy
}
