// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package identity

import (
	"iter"
	"slices"

	"github.com/cockroachdb/swiss"
)

// handle refers to a slot of a Store's arena. A handle whose generation does
// not match the slot's is stale: the slot has been freed and maybe reused.
type handle struct {
	slot int32
	gen  uint32
}

type slot[T, V any] struct {
	key   *Key[T]
	value V
	gen   uint32
	live  bool
	// indexed is set once the key's address is in the address index. An
	// unbound key is indexed when it is bound and set again.
	indexed bool
}

// Store maps host objects of type T, or keys identifying them, to values of
// type V without keeping the objects alive.
//
// Entries live in an arena of slots. Two indexes point into it: the address
// of the object to a small bucket of handles, and the key's ID to a handle.
// An entry whose object has been collected stays in the store, unreachable by
// object, until Cleanup removes it. A Store is not safe for concurrent use.
type Store[T, V any] struct {
	slots  []slot[T, V]
	free   []int32
	byAddr swiss.Map[uintptr, []handle]
	byID   swiss.Map[uint64, handle]
}

// NewStore returns an empty Store.
func NewStore[T, V any]() *Store[T, V] {
	s := &Store[T, V]{}
	s.byAddr.Init(0)
	s.byID.Init(0)
	return s
}

// NewKey returns a key with a fresh discriminator, bound to obj if obj is
// non-nil. It is a convenience for NewKey[T].
func (s *Store[T, V]) NewKey(obj *T) *Key[T] {
	return NewKey(obj)
}

func (s *Store[T, V]) resolve(h handle) *slot[T, V] {
	sl := &s.slots[h.slot]
	if !sl.live || sl.gen != h.gen {
		return nil
	}
	return sl
}

// find returns the index of the slot whose key matches obj, or -1.
func (s *Store[T, V]) find(obj *T) int32 {
	if obj == nil {
		return -1
	}
	bucket, ok := s.byAddr.Get(addrOf(obj))
	if !ok {
		return -1
	}
	for _, h := range bucket {
		if sl := s.resolve(h); sl != nil && sl.key.Matches(obj) {
			return h.slot
		}
	}
	return -1
}

func (s *Store[T, V]) findKey(k *Key[T]) int32 {
	h, ok := s.byID.Get(k.id)
	if !ok || s.resolve(h) == nil {
		return -1
	}
	return h.slot
}

// Get returns the value associated with obj.
func (s *Store[T, V]) Get(obj *T) (V, bool) {
	if i := s.find(obj); i >= 0 {
		return s.slots[i].value, true
	}
	var zero V
	return zero, false
}

// GetByKey returns the value associated with k. Keys are compared by ID, so
// an unbound key finds the value it was set with.
func (s *Store[T, V]) GetByKey(k *Key[T]) (V, bool) {
	if i := s.findKey(k); i >= 0 {
		return s.slots[i].value, true
	}
	var zero V
	return zero, false
}

// Set associates v with obj. If no key in the store matches obj, a new key
// is created. It returns the key of the entry.
func (s *Store[T, V]) Set(obj *T, v V) *Key[T] {
	if i := s.find(obj); i >= 0 {
		s.slots[i].value = v
		return s.slots[i].key
	}
	k := s.NewKey(obj)
	s.insert(k, v)
	return k
}

// SetByKey associates v with k. If k was unbound when it was first set and
// has been bound since, the entry becomes reachable by object.
func (s *Store[T, V]) SetByKey(k *Key[T], v V) {
	h, ok := s.byID.Get(k.id)
	if ok {
		if sl := s.resolve(h); sl != nil {
			sl.key = k
			sl.value = v
			if !sl.indexed && k.bound {
				s.indexAddr(k.addr, h)
				sl.indexed = true
			}
			return
		}
	}
	s.insert(k, v)
}

func (s *Store[T, V]) insert(k *Key[T], v V) {
	var idx int32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.slots = append(s.slots, slot[T, V]{})
		idx = int32(len(s.slots) - 1)
	}
	sl := &s.slots[idx]
	sl.key, sl.value, sl.live = k, v, true
	h := handle{slot: idx, gen: sl.gen}
	s.byID.Put(k.id, h)
	if k.bound {
		s.indexAddr(k.addr, h)
		sl.indexed = true
	}
}

func (s *Store[T, V]) indexAddr(addr uintptr, h handle) {
	bucket, _ := s.byAddr.Get(addr)
	s.byAddr.Put(addr, append(bucket, h))
}

// release frees the slot at idx. The slot's generation is bumped so that
// handles to it go stale.
func (s *Store[T, V]) release(idx int32) {
	sl := &s.slots[idx]
	h := handle{slot: idx, gen: sl.gen}
	if cur, ok := s.byID.Get(sl.key.id); ok && cur == h {
		s.byID.Delete(sl.key.id)
	}
	if sl.indexed {
		addr := sl.key.addr
		if bucket, ok := s.byAddr.Get(addr); ok {
			bucket = slices.DeleteFunc(bucket, func(o handle) bool { return o == h })
			if len(bucket) == 0 {
				s.byAddr.Delete(addr)
			} else {
				s.byAddr.Put(addr, bucket)
			}
		}
	}
	*sl = slot[T, V]{gen: sl.gen + 1}
	s.free = append(s.free, idx)
}

// Delete removes the entry for obj, reporting whether there was one.
func (s *Store[T, V]) Delete(obj *T) bool {
	i := s.find(obj)
	if i < 0 {
		return false
	}
	s.release(i)
	return true
}

// DeleteByKey removes the entry for k, reporting whether there was one.
func (s *Store[T, V]) DeleteByKey(k *Key[T]) bool {
	i := s.findKey(k)
	if i < 0 {
		return false
	}
	s.release(i)
	return true
}

// DeleteFunc removes every entry for which del returns true.
func (s *Store[T, V]) DeleteFunc(del func(k *Key[T], v V) bool) {
	for i := range s.slots {
		if sl := &s.slots[i]; sl.live && del(sl.key, sl.value) {
			s.release(int32(i))
		}
	}
}

// Cleanup removes the entries whose objects have been collected. Entries of
// keys that were never bound are kept.
func (s *Store[T, V]) Cleanup() {
	s.DeleteFunc(func(k *Key[T], _ V) bool {
		return k.bound && !k.Valid()
	})
}

// Len returns the number of entries, including those whose objects have been
// collected but not cleaned up.
func (s *Store[T, V]) Len() int {
	return s.byID.Len()
}

// All returns an iterator over the entries in arena order.
func (s *Store[T, V]) All() iter.Seq2[*Key[T], V] {
	return func(yield func(*Key[T], V) bool) {
		for i := range s.slots {
			if sl := &s.slots[i]; sl.live && !yield(sl.key, sl.value) {
				return
			}
		}
	}
}
