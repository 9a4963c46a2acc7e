// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"crypto/md5"

	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/internal/compression"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
)

// Write writes the block at the current position of h: the header, the
// payload and zero padding up to the allocated size. The block is placed at
// that position.
//
// A compressed payload is encoded before the header is written and the
// allocated size grows to fit it. A non-streamed block must have a payload. A
// streamed block is written without sizes or checksum, and without padding.
func (b *Block) Write(h vfs.Handle) error {
	offset, err := h.Tell()
	if err != nil {
		return err
	}
	var buf *Buffer
	if b.HasData() || b.h != nil {
		if buf, err = b.payload(); err != nil {
			return err
		}
	}

	label := b.OutputCompression()
	var hdr Header
	var out []byte
	if b.storage == Streamed {
		if label != "" {
			return base.StateErrorf("blockfile: a streamed block cannot be compressed")
		}
		hdr.Flags |= FlagStreamed
		if buf != nil {
			out = buf.Bytes()
		}
		b.allocated, b.usedSize, b.dataSize = 0, 0, 0
		b.checksum = Checksum{}
	} else {
		if buf == nil {
			return base.StateErrorf("blockfile: writing a %s block without a payload", b.storage)
		}
		p := buf.Bytes()
		b.checksum = md5.Sum(p)
		b.dataSize = uint64(len(p))
		out = p
		if label != "" {
			if out, err = b.encode(buf, label); err != nil {
				return err
			}
			b.allocated = max(b.allocated, uint64(len(out)))
		}
		b.usedSize = uint64(len(out))
		if b.allocated < b.usedSize {
			return base.StateErrorf("blockfile: block used size %d larger than allocated size %d",
				errors.Safe(b.usedSize), errors.Safe(b.allocated))
		}
		hdr.Allocated, hdr.Used, hdr.DataSize = b.allocated, b.usedSize, b.dataSize
		hdr.Checksum = b.checksum
	}
	hdr.Compression = compression.ToHeader(label)

	b.headerLen = HeaderLen
	b.flags = hdr.Flags
	b.SetOffset(offset)
	if _, err := h.Write(hdr.Encode()); err != nil {
		return err
	}
	if _, err := h.Write(out); err != nil {
		return err
	}
	if b.storage != Streamed {
		if err := h.Clear(int64(b.allocated - b.usedSize)); err != nil {
			return err
		}
	}
	b.inputCompression = label

	if h.Seekable() && b.storage != Streamed {
		if b.h != h {
			// The block now lives in h; a payload mapped from another file
			// must not go stale underneath it.
			if b.data != nil {
				b.data.Detach()
			}
			b.h = h
		}
		b.loaded = true
		b.recordPersisted()
		if buf != nil && buf == b.data {
			b.fingerprint, b.hasPrint = buf.fingerprint(), true
		}
	}
	return nil
}
