// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package block implements the binary block format of a container: the block
// header codec, reading and writing single blocks, lazy and memory-mapped
// payload materialization, and the block index trailer.
package block

import (
	"crypto/md5"
	"fmt"

	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/internal/compression"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/prometheus/client_golang/prometheus"
)

// StorageClass says where a block's payload lives.
type StorageClass uint8

const (
	// Internal blocks follow the tree in the same file.
	Internal StorageClass = iota
	// External blocks are stored in a separate file.
	External
	// Inline blocks are stored as literal values in the tree.
	Inline
	// Streamed is the single trailing block that extends to the end of the
	// file.
	Streamed
)

var storageClassNames = [...]string{
	Internal: "internal",
	External: "external",
	Inline:   "inline",
	Streamed: "streamed",
}

// String implements fmt.Stringer.
func (c StorageClass) String() string {
	if int(c) < len(storageClassNames) {
		return storageClassNames[c]
	}
	return fmt.Sprintf("StorageClass(%d)", uint8(c))
}

// SafeFormat implements redact.SafeFormatter.
func (c StorageClass) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(c.String()))
}

// ParseStorageClass parses the name of a storage class.
func ParseStorageClass(s string) (StorageClass, error) {
	for i, name := range storageClassNames {
		if name == s {
			return StorageClass(i), nil
		}
	}
	return 0, base.ConfigErrorf("blockfile: unknown array storage type %q", errors.Safe(s))
}

// Block is one payload segment of a container.
//
// A Block is created in one of three ways: read from a handle (Read), as an
// unloaded placeholder at a known offset (NewUnloaded), or as a fresh wrapper
// of an in-memory payload before it is written (New). A Block is not safe for
// concurrent use.
type Block struct {
	storage StorageClass

	// offset is the position of the block's magic. It is meaningful only
	// when located is set.
	offset  int64
	located bool

	headerLen uint16
	flags     uint32
	allocated uint64
	usedSize  uint64
	dataSize  uint64
	checksum  Checksum

	inputCompression  string
	outputCompression string
	outputInput       bool
	params            compression.Params

	data     *Buffer
	callback func() (*Buffer, error)

	// encoded caches the output-compressed payload computed by UpdateSize.
	encoded struct {
		b           []byte
		label       string
		fingerprint uint64
	}

	// Fields describing the file the block was read from.
	h           vfs.Handle
	loaded      bool
	opts        ReadOptions
	validated   bool
	persisted   bool
	readOffset  int64
	readAlloc   uint64
	readHdrLen  uint16
	fingerprint uint64
	hasPrint    bool

	inUse bool
}

// New returns a fresh block wrapping data, to be written later. The block
// is not located and its output compression defaults to the input
// compression, which for a fresh block is none.
func New(data *Buffer, storage StorageClass) *Block {
	b := &Block{
		storage:     storage,
		headerLen:   HeaderLen,
		data:        data,
		loaded:      true,
		outputInput: true,
	}
	if data != nil {
		b.dataSize = uint64(data.Len())
		b.usedSize = b.dataSize
		b.allocated = b.usedSize
	}
	return b
}

// NewUnloaded returns a placeholder for an internal block at offset whose
// header has not been read yet. The header is read by Load.
func NewUnloaded(h vfs.Handle, offset int64, opts ReadOptions) *Block {
	return &Block{
		storage:     Internal,
		offset:      offset,
		located:     true,
		h:           h,
		opts:        opts,
		outputInput: true,
	}
}

// SafeFormat implements redact.SafeFormatter.
func (b *Block) SafeFormat(w redact.SafePrinter, _ rune) {
	if !b.loaded {
		w.Printf("<Block unloaded off: %d>", b.offset)
		return
	}
	w.Printf("<Block %s off: ", b.storage)
	if b.located {
		w.Print(b.offset)
	} else {
		w.Print(redact.SafeString("-"))
	}
	w.Printf(" alc: %d size: %d>", b.allocated, b.Size())
}

// String implements fmt.Stringer.
func (b *Block) String() string {
	return redact.StringWithoutMarkers(b)
}

// Loaded reports whether the block's header is known.
func (b *Block) Loaded() bool { return b.loaded }

// Storage returns the block's storage class.
func (b *Block) Storage() StorageClass { return b.storage }

// SetStorage changes the storage class. A streamed block cannot be
// compressed, so moving a block to Streamed drops its output compression.
func (b *Block) SetStorage(c StorageClass) {
	b.storage = c
	if c == Streamed {
		b.outputCompression = ""
		b.outputInput = false
	}
}

// Offset returns the position of the block's magic and whether the block has
// been located or placed.
func (b *Block) Offset() (int64, bool) { return b.offset, b.located }

// SetOffset places the block at offset.
func (b *Block) SetOffset(offset int64) {
	b.offset = offset
	b.located = true
}

// ClearOffset marks the block as not placed.
func (b *Block) ClearOffset() {
	b.offset = 0
	b.located = false
}

// Allocated returns the number of bytes reserved for the payload on disk.
func (b *Block) Allocated() uint64 { return b.allocated }

// SetAllocated sets the space reserved for the payload on disk.
func (b *Block) SetAllocated(n uint64) { b.allocated = n }

// Used returns the number of bytes the (possibly compressed) payload
// occupies on disk.
func (b *Block) Used() uint64 { return b.usedSize }

// DataSize returns the decoded size of the payload.
func (b *Block) DataSize() uint64 { return b.dataSize }

// Flags returns the header flags.
func (b *Block) Flags() uint32 { return b.flags }

// HeaderSize returns the on-disk size of the block header including the
// magic and header length.
func (b *Block) HeaderSize() int64 {
	hl := b.headerLen
	if hl == 0 {
		hl = HeaderLen
	}
	return int64(boilerplateLen) + int64(hl)
}

// DataOffset returns the position of the payload.
func (b *Block) DataOffset() int64 { return b.offset + b.HeaderSize() }

// Size returns the header size plus the used size.
func (b *Block) Size() int64 { return b.HeaderSize() + int64(b.usedSize) }

// EndOffset returns the end of the space allocated to the block, which is
// where the next block begins.
func (b *Block) EndOffset() int64 { return b.offset + b.HeaderSize() + int64(b.allocated) }

// Checksum returns the recorded checksum.
func (b *Block) Checksum() Checksum { return b.checksum }

// InputCompression returns the compression the block was read with.
func (b *Block) InputCompression() string { return b.inputCompression }

// OutputCompression returns the compression the block will be written with.
func (b *Block) OutputCompression() string {
	if b.outputInput {
		return b.inputCompression
	}
	return b.outputCompression
}

// OutputCompressionParams returns the codec parameters used when writing.
func (b *Block) OutputCompressionParams() compression.Params { return b.params }

// SetOutputCompression sets the compression used when writing the block.
// The label compression.Input keeps the input compression.
func (b *Block) SetOutputCompression(label string, p compression.Params) error {
	label, err := compression.Validate(label)
	if err != nil {
		return err
	}
	if b.storage == Streamed && label != "" && label != compression.Input {
		return base.StateErrorf("blockfile: a streamed block cannot be compressed")
	}
	b.outputInput = label == compression.Input
	if !b.outputInput {
		b.outputCompression = label
	}
	b.params = p
	return nil
}

// SetDataCallback makes the block produce its payload on demand. It fails if
// the block already holds a payload.
func (b *Block) SetDataCallback(fn func() (*Buffer, error)) error {
	if b.data != nil {
		return base.StateErrorf("blockfile: block cannot have both data and a data callback")
	}
	b.callback = fn
	return nil
}

// HasData reports whether the block holds, or can produce, a payload without
// reading the file.
func (b *Block) HasData() bool {
	return b.data != nil || b.callback != nil
}

// Data returns the payload if it has been materialized, without reading.
func (b *Block) Data() *Buffer { return b.data }

// MarkUsed records whether the block is referenced by the tree being written.
func (b *Block) MarkUsed(used bool) { b.inUse = used }

// IsUsed reports whether MarkUsed(true) was called.
func (b *Block) IsUsed() bool { return b.inUse }

// Handle returns the handle the block was read from, if any.
func (b *Block) Handle() vfs.Handle { return b.h }

// Close releases the payload. A block read from a file can be materialized
// again afterwards.
func (b *Block) Close() {
	if b.h != nil {
		b.data = nil
	}
	b.encoded.b = nil
}

// UpdateChecksum recomputes the checksum from the current payload.
func (b *Block) UpdateChecksum() error {
	buf, err := b.payload()
	if err != nil {
		return err
	}
	b.checksum = md5.Sum(buf.Bytes())
	return nil
}

// ValidateChecksum checks the payload against the recorded checksum. A block
// without a recorded checksum, and a streamed block, always validate.
func (b *Block) ValidateChecksum() error {
	if b.checksum.IsZero() || b.flags&FlagStreamed != 0 {
		return nil
	}
	buf, err := b.Materialize()
	if err != nil {
		return err
	}
	return b.validate(buf)
}

func (b *Block) validate(buf *Buffer) error {
	if b.checksum.IsZero() || b.flags&FlagStreamed != 0 {
		return nil
	}
	actual := Checksum(md5.Sum(buf.Bytes()))
	if actual != b.checksum {
		return base.IntegrityErrorf("blockfile: block at %d does not match given checksum: expected %x, got %x",
			errors.Safe(b.offset), errors.Safe(b.checksum[:]), errors.Safe(actual[:]))
	}
	return nil
}

// UpdateSize recomputes the decoded and on-disk sizes from the payload. If
// the block has an output compression, the payload is compressed and the
// result kept for the next Write.
//
// A block read from a file whose payload has not been materialized keeps the
// sizes from its header unless its compression changes.
func (b *Block) UpdateSize() error {
	if err := b.Load(); err != nil {
		return err
	}
	if !b.HasData() {
		if b.h == nil {
			b.dataSize, b.usedSize = 0, 0
			return nil
		}
		if b.OutputCompression() == b.inputCompression {
			return nil
		}
	}
	buf, err := b.payload()
	if err != nil {
		return err
	}
	b.dataSize = uint64(buf.Len())
	label := b.OutputCompression()
	if label == "" {
		b.usedSize = b.dataSize
		return nil
	}
	enc, err := b.encode(buf, label)
	if err != nil {
		return err
	}
	b.usedSize = uint64(len(enc))
	return nil
}

// encode returns the payload compressed with label, reusing the cached
// encoding when the payload is unchanged.
func (b *Block) encode(buf *Buffer, label string) ([]byte, error) {
	fp := buf.fingerprint()
	if b.encoded.b != nil && b.encoded.label == label && b.encoded.fingerprint == fp {
		return b.encoded.b, nil
	}
	enc, err := compression.Compress(label, nil, buf.Bytes(), b.params)
	if err != nil {
		return nil, err
	}
	b.encoded.b, b.encoded.label, b.encoded.fingerprint = enc, label, fp
	return enc, nil
}

// payload returns the payload from memory, the data callback, or the file.
func (b *Block) payload() (*Buffer, error) {
	if b.data == nil && b.callback != nil {
		return b.callback()
	}
	return b.Materialize()
}

// Pristine reports whether the block is stored in h at its current offset
// exactly as it would be written: it was read from or written to h at the
// same offset, with the same allocation and compression, and its payload is
// unchanged. Rewriting a pristine block in place is a no-op.
func (b *Block) Pristine(h vfs.Handle) bool {
	if !b.persisted || !b.loaded || !b.located || b.h != h {
		return false
	}
	if b.offset != b.readOffset || b.allocated != b.readAlloc || b.headerLen != b.readHdrLen {
		return false
	}
	if b.storage != Internal || b.OutputCompression() != b.inputCompression {
		return false
	}
	if b.data == nil || b.data.Stale() {
		return b.callback == nil
	}
	return b.hasPrint && b.data.fingerprint() == b.fingerprint
}

// recordPersisted remembers where and how the block is stored in its file.
func (b *Block) recordPersisted() {
	b.persisted = true
	b.readOffset = b.offset
	b.readAlloc = b.allocated
	b.readHdrLen = b.headerLen
}

// observe records a materialization latency.
func observe(o prometheus.Observer, seconds float64) {
	if o != nil {
		o.Observe(seconds)
	}
}
