// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"encoding/binary"

	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4/v4"
)

// The lz4 payload is a sequence of chunks, each holding at most
// DefaultChunkSize decoded bytes:
//
//	chunk_len:u32 (big-endian) ‖ decoded_len:u32 (little-endian) ‖ lz4 block
//
// where chunk_len covers the decoded length field and the block.
const lz4ChunkHeaderLen = 8

type lz4Compressor struct {
	level lz4.CompressionLevel
}

var _ Compressor = lz4Compressor{}

func newLZ4Compressor(p Params) Compressor {
	return lz4Compressor{level: lz4.CompressionLevel(p.Level)}
}

func (c lz4Compressor) Compress(dst, src []byte) ([]byte, error) {
	dst = dst[:0]
	for len(src) > 0 {
		chunk := src
		if len(chunk) > DefaultChunkSize {
			chunk = chunk[:DefaultChunkSize]
		}
		src = src[len(chunk):]

		bound := lz4.CompressBlockBound(len(chunk))
		start := len(dst)
		dst = append(dst, make([]byte, lz4ChunkHeaderLen+bound)...)
		out := dst[start+lz4ChunkHeaderLen:]
		var n int
		var err error
		if c.level == lz4.Fast {
			n, err = lz4.CompressBlock(chunk, out, nil)
		} else {
			n, err = lz4.CompressBlockHC(chunk, out, c.level, nil, nil)
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, errors.AssertionFailedf("lz4: empty block for %d byte chunk", len(chunk))
		}
		binary.BigEndian.PutUint32(dst[start:], uint32(4+n))
		binary.LittleEndian.PutUint32(dst[start+4:], uint32(len(chunk)))
		dst = dst[:start+lz4ChunkHeaderLen+n]
	}
	return dst, nil
}

func (lz4Compressor) Close() {}

type lz4Decompressor struct{}

var _ Decompressor = lz4Decompressor{}

func newLZ4Decompressor() Decompressor { return lz4Decompressor{} }

func (lz4Decompressor) DecompressInto(dst, src []byte) error {
	pos := 0
	for len(src) > 0 {
		if len(src) < lz4ChunkHeaderLen {
			return base.CorruptionErrorf("lz4: truncated chunk header")
		}
		chunkLen := int(binary.BigEndian.Uint32(src))
		decodedLen := int(binary.LittleEndian.Uint32(src[4:]))
		if chunkLen < 4 || 4+chunkLen > len(src) {
			return base.CorruptionErrorf("lz4: chunk of %d bytes exceeds remaining %d",
				errors.Safe(chunkLen), errors.Safe(len(src)-4))
		}
		if pos+decodedLen > len(dst) {
			return checkDecodedLen("lz4", pos+decodedLen, len(dst))
		}
		n, err := lz4.UncompressBlock(src[lz4ChunkHeaderLen:4+chunkLen], dst[pos:pos+decodedLen])
		if err != nil {
			return err
		}
		if n != decodedLen {
			return checkDecodedLen("lz4", n, decodedLen)
		}
		pos += n
		src = src[4+chunkLen:]
	}
	return checkDecodedLen("lz4", pos, len(dst))
}

func (lz4Decompressor) Close() {}
