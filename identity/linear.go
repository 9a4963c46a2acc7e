// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package identity

import (
	"iter"
	"slices"

	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/errors"
)

// LinearStore is an ordered sequence of values plus a Store mapping host
// objects to positions in the sequence. Objects are assigned to a value by
// the value's position, and looked up by indexing the sequence with the
// object's position, so the association follows a value when the sequence is
// reordered.
type LinearStore[T any, V comparable] struct {
	values []V
	pos    *Store[T, int]
}

// NewLinearStore returns a LinearStore holding values.
func NewLinearStore[T any, V comparable](values ...V) *LinearStore[T, V] {
	return &LinearStore[T, V]{
		values: values,
		pos:    NewStore[T, int](),
	}
}

// Keys returns the Store of positions, for creating keys.
func (s *LinearStore[T, V]) Keys() *Store[T, int] { return s.pos }

// Len returns the number of values.
func (s *LinearStore[T, V]) Len() int { return len(s.values) }

// At returns the value at position i.
func (s *LinearStore[T, V]) At(i int) V { return s.values[i] }

// Index returns the position of v, or -1.
func (s *LinearStore[T, V]) Index(v V) int { return slices.Index(s.values, v) }

// Values returns the values. The slice must not be modified.
func (s *LinearStore[T, V]) Values() []V { return s.values }

// All returns an iterator over the positions and values.
func (s *LinearStore[T, V]) All() iter.Seq2[int, V] {
	return slices.All(s.values)
}

// Append adds v at the end of the sequence.
func (s *LinearStore[T, V]) Append(v V) {
	s.values = append(s.values, v)
}

// Insert adds v at position i, shifting the values at and after i.
func (s *LinearStore[T, V]) Insert(i int, v V) {
	s.values = slices.Insert(s.values, i, v)
	s.remap(func(p int) (int, bool) {
		if p >= i {
			return p + 1, true
		}
		return p, true
	})
}

// Remove removes v from the sequence along with the objects assigned to it.
// It reports whether v was present.
func (s *LinearStore[T, V]) Remove(v V) bool {
	i := s.Index(v)
	if i < 0 {
		return false
	}
	s.values = slices.Delete(s.values, i, i+1)
	s.remap(func(p int) (int, bool) {
		switch {
		case p == i:
			return 0, false
		case p > i:
			return p - 1, true
		}
		return p, true
	})
	return true
}

// SortFunc sorts the values with cmp. Objects stay assigned to the same
// values.
func (s *LinearStore[T, V]) SortFunc(cmp func(a, b V) int) {
	perm := make([]int, len(s.values))
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, func(a, b int) int { return cmp(s.values[a], s.values[b]) })
	moved := make([]int, len(perm))
	sorted := make([]V, len(perm))
	for to, from := range perm {
		moved[from] = to
		sorted[to] = s.values[from]
	}
	s.values = sorted
	s.remap(func(p int) (int, bool) { return moved[p], true })
}

// remap rewrites every stored position with fn, dropping those for which it
// returns false.
func (s *LinearStore[T, V]) remap(fn func(int) (int, bool)) {
	for i := range s.pos.slots {
		sl := &s.pos.slots[i]
		if !sl.live {
			continue
		}
		p, keep := fn(sl.value)
		if !keep {
			s.pos.release(int32(i))
			continue
		}
		sl.value = p
	}
}

// Assign associates obj with v, which must be in the sequence.
func (s *LinearStore[T, V]) Assign(obj *T, v V) error {
	i := s.Index(v)
	if i < 0 {
		return base.LookupErrorf("identity: value %v is not in the store", errors.Safe(v))
	}
	s.pos.Set(obj, i)
	return nil
}

// AssignKey associates k with v, which must be in the sequence.
func (s *LinearStore[T, V]) AssignKey(k *Key[T], v V) error {
	i := s.Index(v)
	if i < 0 {
		return base.LookupErrorf("identity: value %v is not in the store", errors.Safe(v))
	}
	s.pos.SetByKey(k, i)
	return nil
}

// Lookup returns the value assigned to obj.
func (s *LinearStore[T, V]) Lookup(obj *T) (V, bool) {
	i, ok := s.pos.Get(obj)
	if !ok {
		var zero V
		return zero, false
	}
	return s.values[i], true
}

// LookupKey returns the value assigned to k.
func (s *LinearStore[T, V]) LookupKey(k *Key[T]) (V, bool) {
	i, ok := s.pos.GetByKey(k)
	if !ok {
		var zero V
		return zero, false
	}
	return s.values[i], true
}

// Cleanup removes the assignments of collected objects.
func (s *LinearStore[T, V]) Cleanup() { s.pos.Cleanup() }
