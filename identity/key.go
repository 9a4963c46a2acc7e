// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package identity associates values with host objects without owning them.
//
// A Store maps objects to values through weak references. Objects are looked
// up by address, and every candidate found at an address is checked against
// its weak reference, so an object allocated at the address of a collected
// one never resolves to the collected object's value.
package identity

import (
	"fmt"
	"sync/atomic"
	"unsafe"
	"weak"

	"github.com/cockroachdb/blockfile/internal/base"
)

// Key identifies a host object of type T by a discriminator and a weak
// reference. Two keys are the same key iff they have the same ID; the state of
// the referenced object never affects it.
//
// A Key may be created unbound and bound to an object later, once.
type Key[T any] struct {
	id    uint64
	ref   weak.Pointer[T]
	addr  uintptr
	bound bool
}

// nextID is the discriminator counter. It only increases, so keys drawn from
// it never collide, whatever store they end up in.
var nextID atomic.Uint64

// NewKey returns a key with a fresh discriminator, bound to obj if obj is
// non-nil.
func NewKey[T any](obj *T) *Key[T] {
	return NewKeyWithID(nextID.Add(1), obj)
}

// NewKeyWithID returns a key with an explicit discriminator, bound to obj if
// obj is non-nil. The caller must not reuse discriminators, nor pick ones that
// NewKey may return.
func NewKeyWithID[T any](id uint64, obj *T) *Key[T] {
	k := &Key[T]{id: id}
	if obj != nil {
		k.bind(obj)
	}
	return k
}

func (k *Key[T]) bind(obj *T) {
	k.ref = weak.Make(obj)
	k.addr = addrOf(obj)
	k.bound = true
}

// Bind binds an unbound key to obj.
func (k *Key[T]) Bind(obj *T) error {
	if k.bound {
		return base.StateErrorf("identity: key %d is already bound", k.id)
	}
	if obj == nil {
		return base.StateErrorf("identity: cannot bind key %d to nil", k.id)
	}
	k.bind(obj)
	return nil
}

// ID returns the discriminator.
func (k *Key[T]) ID() uint64 { return k.id }

// Bound reports whether the key has been bound to an object.
func (k *Key[T]) Bound() bool { return k.bound }

// Valid reports whether the key is bound to an object that is still alive.
func (k *Key[T]) Valid() bool {
	return k.bound && k.ref.Value() != nil
}

// Matches reports whether the key refers to exactly obj.
func (k *Key[T]) Matches(obj *T) bool {
	if !k.bound || obj == nil {
		return false
	}
	return k.ref.Value() == obj
}

// String implements fmt.Stringer.
func (k *Key[T]) String() string {
	return fmt.Sprintf("key(%d)", k.id)
}

func addrOf[T any](obj *T) uintptr {
	return uintptr(unsafe.Pointer(obj))
}
