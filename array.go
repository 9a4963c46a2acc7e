// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/errors"
)

// Payload is a value whose bytes are stored in a block. Every view of a
// payload resolves to the Buffer that owns its memory, which is what blocks
// are associated with.
type Payload interface {
	Base() *block.Buffer
}

var _ Payload = (*block.Buffer)(nil)
var _ Payload = (*Array)(nil)

// Array is a strided view of a Buffer. Views of the same Buffer share its
// block.
type Array struct {
	base     *block.Buffer
	offset   int
	shape    []int
	strides  []int
	itemSize int
}

// NewArray returns a C-contiguous view of buf with the given item size and
// shape. A nil shape views the whole buffer as a one-dimensional array.
func NewArray(buf *block.Buffer, itemSize int, shape ...int) (*Array, error) {
	if itemSize <= 0 {
		return nil, base.ConfigErrorf("blockfile: invalid item size %d", errors.Safe(itemSize))
	}
	if shape == nil {
		shape = []int{buf.Len() / itemSize}
	}
	strides := make([]int, len(shape))
	stride := itemSize
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	a := &Array{base: buf, shape: shape, strides: strides, itemSize: itemSize}
	if err := a.check(); err != nil {
		return nil, err
	}
	return a, nil
}

// View returns a view of the same buffer starting offset bytes into it.
func (a *Array) View(offset int, shape, strides []int) (*Array, error) {
	if len(shape) != len(strides) {
		return nil, base.ConfigErrorf("blockfile: shape and strides differ in length")
	}
	v := &Array{base: a.base, offset: offset, shape: shape, strides: strides, itemSize: a.itemSize}
	if err := v.check(); err != nil {
		return nil, err
	}
	return v, nil
}

// check verifies that every element lies within the buffer.
func (a *Array) check() error {
	lo, hi := a.offset, a.offset+a.itemSize
	for i, n := range a.shape {
		if n < 0 {
			return base.ConfigErrorf("blockfile: negative dimension %d", errors.Safe(n))
		}
		if n == 0 {
			return nil
		}
		if s := a.strides[i] * (n - 1); s < 0 {
			lo += s
		} else {
			hi += s
		}
	}
	if lo < 0 || hi > a.base.Len() {
		return base.ConfigErrorf("blockfile: view [%d, %d) exceeds buffer of %d bytes",
			errors.Safe(lo), errors.Safe(hi), errors.Safe(a.base.Len()))
	}
	return nil
}

// Base implements Payload.
func (a *Array) Base() *block.Buffer { return a.base.Base() }

// Offset returns the byte offset of the first element.
func (a *Array) Offset() int { return a.offset }

// Shape returns the dimensions of the view.
func (a *Array) Shape() []int { return a.shape }

// Strides returns the byte strides of the view.
func (a *Array) Strides() []int { return a.strides }

// ItemSize returns the size of an element in bytes.
func (a *Array) ItemSize() int { return a.itemSize }

// Len returns the number of elements.
func (a *Array) Len() int {
	n := 1
	for _, d := range a.shape {
		n *= d
	}
	return n
}

// At returns the bytes of the element at idx. It returns nil if the buffer
// is stale.
func (a *Array) At(idx ...int) []byte {
	p := a.base.Bytes()
	if p == nil {
		return nil
	}
	off := a.offset
	for i, x := range idx {
		off += x * a.strides[i]
	}
	return p[off : off+a.itemSize]
}
