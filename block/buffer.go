// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"slices"

	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cespare/xxhash/v2"
)

// Buffer holds a decoded block payload. The identity of a payload is the
// identity of its *Buffer: views and aliases of the same payload share one
// Buffer, and blocks are associated with payloads by that pointer.
//
// A Buffer is either backed by heap memory or by a memory mapping of the file
// it was read from. A mapped Buffer becomes stale when the mapping is
// invalidated; Bytes then returns nil and the owning block re-materializes
// the payload into the same Buffer.
type Buffer struct {
	b       []byte
	n       int
	mapping *vfs.Mapping
}

// NewBuffer returns a heap-backed Buffer. The Buffer takes ownership of b.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{b: b, n: len(b)}
}

func newMappedBuffer(m *vfs.Mapping) *Buffer {
	buf := &Buffer{}
	buf.setMapping(m)
	return buf
}

func (b *Buffer) setMapping(m *vfs.Mapping) {
	b.b = m.Bytes()
	b.n = len(b.b)
	b.mapping = m
}

func (b *Buffer) setBytes(p []byte) {
	b.b = p
	b.n = len(p)
	b.mapping = nil
}

// Base returns b. Views over a buffer return the Buffer they view, so any
// payload resolves to the Buffer that owns its memory.
func (b *Buffer) Base() *Buffer {
	return b
}

// Bytes returns the payload, or nil if the Buffer is stale.
func (b *Buffer) Bytes() []byte {
	if b.Stale() {
		return nil
	}
	return b.b
}

// Len returns the length of the payload, which is unaffected by staleness.
func (b *Buffer) Len() int {
	return b.n
}

// Mapped reports whether the Buffer views a memory mapping.
func (b *Buffer) Mapped() bool {
	return b.mapping != nil
}

// Stale reports whether the Buffer views a mapping that is no longer valid.
func (b *Buffer) Stale() bool {
	return b.mapping != nil && !b.mapping.Valid()
}

// Detach copies a mapped payload into heap memory, so the Buffer survives
// the invalidation of its mapping. It is a no-op for heap-backed Buffers.
func (b *Buffer) Detach() {
	if b.mapping == nil || b.Stale() {
		return
	}
	b.setBytes(slices.Clone(b.b))
}

// Clone returns a heap-backed copy of b with a new identity.
func (b *Buffer) Clone() *Buffer {
	return NewBuffer(slices.Clone(b.Bytes()))
}

// fingerprint returns the xxhash of the payload.
func (b *Buffer) fingerprint() uint64 {
	return xxhash.Sum64(b.Bytes())
}
