// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"weak"

	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/blockfile/internal/base"
)

// DataCallback reads the payload of an internal block on demand. It refers
// to the Manager's blocks weakly, so it neither keeps a closed or discarded
// Manager alive nor reads through one.
type DataCallback struct {
	index  int
	blocks weak.Pointer[internalBlocks]
}

// NewDataCallback returns a callback for the internal block at index of m.
func NewDataCallback(index int, m *Manager) (*DataCallback, error) {
	c := &DataCallback{}
	if err := c.Reassign(index, m); err != nil {
		return nil, err
	}
	return c, nil
}

// Reassign points the callback at the internal block at index of m. It
// fails if m is nil or closed, leaving the callback unchanged.
func (c *DataCallback) Reassign(index int, m *Manager) error {
	if m == nil || m.internal.closed {
		return base.StateErrorf("blockfile: attempt to retarget a data callback to a closed block manager")
	}
	c.index = index
	c.blocks = weak.Make(m.internal)
	return nil
}

// Index returns the index of the block.
func (c *DataCallback) Index() int { return c.index }

// Block returns the block, reading deferred blocks if needed.
func (c *DataCallback) Block() (*block.Block, error) {
	ib := c.blocks.Value()
	if ib == nil || ib.closed {
		return nil, base.StateErrorf("blockfile: attempt to read block data from missing block")
	}
	return ib.m.getInternal(c.index)
}

// Data returns the materialized payload of the block. The payload is
// associated with the block, so writing it back reuses the block.
func (c *DataCallback) Data() (*block.Buffer, error) {
	b, err := c.Block()
	if err != nil {
		return nil, err
	}
	buf, err := b.Materialize()
	if err != nil {
		return nil, err
	}
	if ib := c.blocks.Value(); ib != nil && ib.Index(b) >= 0 {
		if err := ib.Assign(buf, b); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
