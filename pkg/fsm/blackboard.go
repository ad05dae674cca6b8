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
	"sort"
)

// Blackboard is the per-machine key/value store. Values of any type can be
// stored; typed reads go through Lookup and fail closed on a type mismatch.
type Blackboard struct {
	data map[string]any
}

// NewBlackboard returns an empty blackboard.
func NewBlackboard() *Blackboard {
	return &Blackboard{data: make(map[string]any)}
}

// Set stores value under key, replacing any previous value.
func (b *Blackboard) Set(key string, value any) error {
	if key == "" {
		return ErrEmptyKey
	}

	b.data[key] = value

	return nil
}

// Get returns the raw value for key.
func (b *Blackboard) Get(key string) (any, bool) {
	v, ok := b.data[key]

	return v, ok
}

func (b *Blackboard) Has(key string) bool {
	_, ok := b.data[key]

	return ok
}

// Remove deletes key and reports whether it was present.
func (b *Blackboard) Remove(key string) bool {
	if _, ok := b.data[key]; !ok {
		return false
	}

	delete(b.data, key)

	return true
}

// Keys returns all keys in sorted order.
func (b *Blackboard) Keys() []string {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Len returns the number of stored keys.
func (b *Blackboard) Len() int {
	return len(b.data)
}

func (b *Blackboard) Clear() {
	clear(b.data)
}

// Lookup returns the value for key as T. It returns ErrDataNotFound if the
// key is absent and ErrTypeMismatch if the stored value is not a T.
func Lookup[T any](b *Blackboard, key string) (T, error) {
	var zero T

	raw, ok := b.Get(key)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrDataNotFound, key)
	}

	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T, not %T", ErrTypeMismatch, key, raw, zero)
	}

	return v, nil
}
