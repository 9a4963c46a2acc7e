// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"io"

	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/internal/compression"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// ReadOptions control how a block is read.
type ReadOptions struct {
	// PastMagic is set when the handle is positioned just after the block
	// magic rather than at its start.
	PastMagic bool
	// ValidateChecksum checks the payload against the header checksum the
	// first time it is materialized.
	ValidateChecksum bool
	// Memmap maps uncompressed payloads instead of copying them, when the
	// handle supports it.
	Memmap bool
	// LazyLoad defers reading the payload until it is requested. It is
	// ignored for non-seekable handles.
	LazyLoad bool
	// SkipLeadingZeros tolerates NUL bytes before the block magic. It is set
	// for the first block after the tree.
	SkipLeadingZeros bool
	// Logger reports recoverable oddities. It may be nil.
	Logger base.Logger
	// Latency, if set, observes the duration of each payload
	// materialization in seconds.
	Latency prometheus.Observer
}

// IndexHeader is the token that starts the block index.
const IndexHeader = "#ASDF BLOCK INDEX"

// Read reads a block from h. It returns a nil block and no error at the end
// of the run of blocks: at end of file, at a short run of trailing bytes, or
// at the start of the block index.
func Read(h vfs.Handle, o ReadOptions) (*Block, error) {
	start, err := h.Tell()
	if err != nil {
		return nil, err
	}
	if o.PastMagic {
		start -= int64(MagicLen)
	} else {
		var ok bool
		start, ok, err = readMagic(h, start, o)
		if err != nil || !ok {
			return nil, err
		}
	}

	hdr, headerLen, err := readHeader(h)
	if err != nil {
		return nil, err
	}
	label, err := compression.FromHeader(hdr.Compression)
	if err != nil {
		return nil, err
	}
	b := &Block{
		storage:          Internal,
		offset:           start,
		located:          true,
		headerLen:        uint16(headerLen),
		flags:            hdr.Flags,
		allocated:        hdr.Allocated,
		usedSize:         hdr.Used,
		dataSize:         hdr.DataSize,
		checksum:         hdr.Checksum,
		inputCompression: label,
		outputInput:      true,
		h:                h,
		loaded:           true,
		opts:             o,
	}
	if hdr.Streamed() {
		b.storage = Streamed
	}

	if !h.Seekable() {
		if err := b.readStream(); err != nil {
			return nil, err
		}
		return b, nil
	}

	b.recordPersisted()
	if hdr.Streamed() {
		end, err := h.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, err
		}
		n := uint64(end - b.DataOffset())
		b.allocated, b.usedSize, b.dataSize = n, n, n
	}
	if !o.LazyLoad {
		if _, err := b.Materialize(); err != nil {
			return nil, err
		}
	}
	if hdr.Streamed() {
		_, err = h.Seek(0, io.SeekEnd)
	} else {
		_, err = h.Seek(b.EndOffset(), io.SeekStart)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// readMagic consumes the block magic. It returns false at the end of the run
// of blocks, along with the position of the magic.
func readMagic(h vfs.Handle, start int64, o ReadOptions) (int64, bool, error) {
	var buf [MagicLen]byte
	n, err := io.ReadFull(h, buf[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return 0, false, err
	}
	for o.SkipLeadingZeros && n > 0 && buf[0] == 0 {
		k := copy(buf[:], bytes.TrimLeft(buf[:n], "\x00"))
		start += int64(n - k)
		m, err := io.ReadFull(h, buf[k:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return 0, false, err
		}
		n = k + m
		if m == 0 && k == 0 {
			break
		}
	}
	switch {
	case n == 0:
		return start, false, nil
	case n < MagicLen:
		if len(bytes.Trim(buf[:n], "\x00")) != 0 && o.Logger != nil {
			o.Logger.Infof("blockfile: read invalid bytes %q after blocks, the file might be corrupt", buf[:n])
		}
		return start, false, nil
	case string(buf[:]) == IndexHeader[:MagicLen]:
		return start, false, nil
	case string(buf[:]) != Magic:
		return 0, false, base.CorruptionErrorf("blockfile: bad magic number %q in block at %d; "+
			"this may indicate an internal inconsistency about the sizes of the blocks in the file",
			errors.Safe(buf[:]), errors.Safe(start))
	}
	return start, true, nil
}

// readStream reads the payload of a block from a non-seekable handle.
func (b *Block) readStream() error {
	var raw []byte
	var err error
	if b.flags&FlagStreamed != 0 {
		raw, err = io.ReadAll(b.h)
		if err != nil {
			return err
		}
		n := uint64(len(raw))
		b.allocated, b.usedSize, b.dataSize = n, n, n
	} else {
		raw = make([]byte, b.usedSize)
		if _, err := io.ReadFull(b.h, raw); err != nil {
			return base.MarkCorruptionError(errors.Wrapf(err, "blockfile: reading block at %d", errors.Safe(b.offset)))
		}
		if err := b.h.FastForward(int64(b.allocated - b.usedSize)); err != nil {
			return err
		}
	}
	p, err := compression.Decompress(b.inputCompression, raw, int(b.dataSize))
	if err != nil {
		return err
	}
	b.data = NewBuffer(p)
	b.fingerprint, b.hasPrint = b.data.fingerprint(), true
	if b.opts.ValidateChecksum {
		b.validated = true
		return b.validate(b.data)
	}
	return nil
}

// Load reads the header of an unloaded placeholder. The handle position is
// preserved. Load is a no-op for a loaded block.
func (b *Block) Load() error {
	if b.loaded {
		return nil
	}
	if b.h.Closed() {
		return base.StateErrorf("blockfile: attempt to load block from closed file")
	}
	pos, err := b.h.Tell()
	if err != nil {
		return err
	}
	if _, err := b.h.Seek(b.offset, io.SeekStart); err != nil {
		return err
	}
	opts := b.opts
	opts.PastMagic, opts.SkipLeadingZeros, opts.LazyLoad = false, false, true
	nb, err := Read(b.h, opts)
	if err == nil && nb == nil {
		err = base.CorruptionErrorf("blockfile: no block at offset %d", errors.Safe(b.offset))
	}
	if err != nil {
		return errors.CombineErrors(err, seekErr(b.h, pos))
	}
	origOpts := b.opts
	outputCompression, outputInput, params, inUse := b.outputCompression, b.outputInput, b.params, b.inUse
	*b = *nb
	b.opts = origOpts
	b.outputCompression, b.outputInput, b.params, b.inUse = outputCompression, outputInput, params, inUse
	return seekErr(b.h, pos)
}

func seekErr(h vfs.Handle, pos int64) error {
	_, err := h.Seek(pos, io.SeekStart)
	return err
}

// Materialize returns the payload, reading it from the file if needed.
// Repeated calls return the same *Buffer. If the buffer views a memory
// mapping that has since been invalidated, the payload is read again into the
// same Buffer. The handle position is preserved.
func (b *Block) Materialize() (*Buffer, error) {
	if b.data != nil && !b.data.Stale() {
		return b.data, nil
	}
	if b.data == nil && b.callback != nil {
		return b.callback()
	}
	if err := b.Load(); err != nil {
		return nil, err
	}
	if b.h == nil {
		if b.flags&FlagStreamed != 0 || b.storage == Streamed {
			return NewBuffer(nil), nil
		}
		return nil, base.StateErrorf("blockfile: block has no payload")
	}
	if b.h.Closed() {
		return nil, base.StateErrorf("blockfile: file has already been closed, cannot read block data")
	}
	start := crtime.NowMono()
	pos, err := b.h.Tell()
	if err != nil {
		return nil, err
	}
	if err := b.readPayload(); err != nil {
		return nil, errors.CombineErrors(err, seekErr(b.h, pos))
	}
	if err := seekErr(b.h, pos); err != nil {
		return nil, err
	}
	b.fingerprint, b.hasPrint = b.data.fingerprint(), true
	observe(b.opts.Latency, start.Elapsed().Seconds())
	if b.opts.ValidateChecksum && !b.validated {
		if err := b.validate(b.data); err != nil {
			b.data = nil
			return nil, err
		}
		// Only validate the payload the first time it is read.
		b.validated = true
	}
	return b.data, nil
}

func (b *Block) readPayload() error {
	n := int(b.usedSize)
	if b.inputCompression == "" && b.opts.Memmap && b.h.CanMemmap() {
		m, err := b.h.Memmap(b.DataOffset(), n)
		if err != nil {
			return err
		}
		if b.data != nil {
			b.data.setMapping(m)
		} else {
			b.data = newMappedBuffer(m)
		}
		return nil
	}
	if _, err := b.h.Seek(b.DataOffset(), io.SeekStart); err != nil {
		return err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(b.h, raw); err != nil {
		return base.MarkCorruptionError(errors.Wrapf(err, "blockfile: reading block at %d", errors.Safe(b.offset)))
	}
	p, err := compression.Decompress(b.inputCompression, raw, int(b.dataSize))
	if err != nil {
		return err
	}
	if b.data != nil {
		b.data.setBytes(p)
	} else {
		b.data = NewBuffer(p)
	}
	return nil
}
