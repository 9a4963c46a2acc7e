// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
)

// Open opens the container stored in the file name of fs. The file is
// opened for reading and writing if opts.ReadWrite is set, and closed by the
// Manager's Close.
func Open(fs vfs.FS, name string, opts *Options) (*Manager, error) {
	if opts == nil {
		opts = &Options{}
	}
	if opts.FS == nil {
		opts.FS = fs
	}
	if opts.URI == "" {
		opts.URI = name
	}
	var h vfs.Handle
	var err error
	if opts.ReadWrite {
		h, err = fs.OpenReadWrite(name)
	} else {
		h, err = fs.Open(name)
	}
	if err != nil {
		return nil, err
	}
	m, err := OpenHandle(h, opts)
	if err != nil {
		return nil, errors.CombineErrors(err, h.Close())
	}
	m.ownsHandle = true
	return m, nil
}

// OpenHandle reads the tree of the container in h and locates its blocks.
// Unless lazy loading is enabled, every block and payload is read before
// OpenHandle returns. The caller keeps ownership of h.
func OpenHandle(h vfs.Handle, opts *Options) (*Manager, error) {
	if opts != nil {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
	}
	m := NewManager(opts)
	tree, hasBlocks, err := ReadTree(h)
	if err != nil {
		return nil, err
	}
	m.tree = tree
	m.h = h
	if !hasBlocks {
		m.state = stateFullyScanned
		return m, nil
	}
	if err := m.ReadInternalBlocks(h, true); err != nil {
		return nil, err
	}
	if m.opts.LazyLoad {
		if err := m.readBlockIndex(); err != nil {
			return nil, err
		}
		return m, nil
	}
	if err := m.FinishReadingInternalBlocks(); err != nil {
		return nil, err
	}
	return m, nil
}

// Tree returns the tree read by Open, or nil for a Manager that was not
// opened from a file.
func (m *Manager) Tree() *RawTree { return m.tree }
