// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/internal/compression"
	"github.com/cockroachdb/errors"
)

// Magic is the token that starts every block.
const Magic = "\xd3BLK"

// MagicLen is the length of Magic.
const MagicLen = 4

// HeaderLen is the length of the fixed block header that follows the magic
// and the 2-byte header length. A block may declare a longer header; the
// extra bytes are skipped.
const HeaderLen = 48

// boilerplateLen is the length of the magic plus the header length field.
const boilerplateLen = MagicLen + 2

// HeaderSize is the on-disk size of a block header as written: magic, header
// length and the fixed header.
const HeaderSize = boilerplateLen + HeaderLen

// ChecksumLen is the length of the MD5 digest stored in the header.
const ChecksumLen = 16

// FlagStreamed marks a block that extends to the end of the file.
const FlagStreamed uint32 = 0x1

// Checksum is an MD5 digest of a decoded payload. The zero value means that
// no checksum was recorded.
type Checksum [ChecksumLen]byte

// IsZero reports whether no checksum is recorded.
func (c Checksum) IsZero() bool {
	return c == Checksum{}
}

// Header is the decoded fixed block header.
//
// The on-disk encoding is big-endian:
//
//	magic:4 ‖ header_len:u16 ‖ flags:u32 ‖ compression:4 ‖ allocated:u64 ‖
//	used:u64 ‖ data_size:u64 ‖ checksum:16
type Header struct {
	Flags       uint32
	Compression [compression.LabelLen]byte
	Allocated   uint64
	Used        uint64
	DataSize    uint64
	Checksum    Checksum
}

// Streamed reports whether the streamed flag is set.
func (h *Header) Streamed() bool {
	return h.Flags&FlagStreamed != 0
}

// Encode returns the full on-disk header, starting with the magic.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Magic)
	binary.BigEndian.PutUint16(buf[MagicLen:], HeaderLen)
	h.encodeFixed(buf[boilerplateLen:])
	return buf
}

func (h *Header) encodeFixed(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:], h.Flags)
	copy(buf[4:8], h.Compression[:])
	binary.BigEndian.PutUint64(buf[8:], h.Allocated)
	binary.BigEndian.PutUint64(buf[16:], h.Used)
	binary.BigEndian.PutUint64(buf[24:], h.DataSize)
	copy(buf[32:48], h.Checksum[:])
}

// decodeFixed decodes the fixed portion of a header. buf must hold at least
// HeaderLen bytes.
func decodeFixed(buf []byte) Header {
	var h Header
	h.Flags = binary.BigEndian.Uint32(buf[0:])
	copy(h.Compression[:], buf[4:8])
	h.Allocated = binary.BigEndian.Uint64(buf[8:])
	h.Used = binary.BigEndian.Uint64(buf[16:])
	h.DataSize = binary.BigEndian.Uint64(buf[24:])
	copy(h.Checksum[:], buf[32:48])
	return h
}

// readHeader reads the header length and header from r, which must be
// positioned just past the magic. It returns the declared header length.
func readHeader(r io.Reader) (Header, int, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Header{}, 0, base.MarkCorruptionError(errors.Wrap(err, "blockfile: reading block header length"))
	}
	headerLen := int(binary.BigEndian.Uint16(lenBuf[:]))
	if headerLen < HeaderLen {
		return Header{}, 0, base.CorruptionErrorf("blockfile: header size must be >= %d, got %d",
			errors.Safe(HeaderLen), errors.Safe(headerLen))
	}
	buf := make([]byte, headerLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, 0, base.MarkCorruptionError(errors.Wrap(err, "blockfile: reading block header"))
	}
	h := decodeFixed(buf)
	if err := h.validate(); err != nil {
		return Header{}, 0, err
	}
	return h, headerLen, nil
}

// validate checks the consistency of the compression, flags and sizes.
func (h *Header) validate() error {
	label, err := compression.FromHeader(h.Compression)
	if err != nil {
		return err
	}
	if h.Streamed() {
		if label != "" {
			return base.CorruptionErrorf("blockfile: compression set on a streamed block")
		}
	} else if label == "" && h.Used != h.DataSize {
		return base.CorruptionErrorf("blockfile: used_size (%d) and data_size (%d) must be equal when no compression is used",
			errors.Safe(h.Used), errors.Safe(h.DataSize))
	}
	if !h.Streamed() && h.Allocated < h.Used {
		return base.CorruptionErrorf("blockfile: used_size (%d) larger than allocated_size (%d)",
			errors.Safe(h.Used), errors.Safe(h.Allocated))
	}
	return nil
}
