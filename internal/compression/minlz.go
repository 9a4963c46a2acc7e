// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/minio/minlz"
)

type minlzCompressor struct {
	level int
}

var _ Compressor = minlzCompressor{}

func newMinlzCompressor(p Params) Compressor {
	level := p.Level
	if level == 0 {
		level = minlz.LevelBalanced
	}
	return minlzCompressor{level: level}
}

func (c minlzCompressor) Compress(dst, src []byte) ([]byte, error) {
	// MinLZ cannot encode blocks greater than 8MB. Fall back to Snappy in those
	// cases. Note that MinLZ can decode the Snappy compressed block.
	if len(src) > minlz.MaxBlockSize {
		return (snappyCompressor{}).Compress(dst, src)
	}
	return minlz.Encode(dst, src, c.level)
}

func (minlzCompressor) Close() {}

type minlzDecompressor struct{}

var _ Decompressor = minlzDecompressor{}

func newMinlzDecompressor() Decompressor { return minlzDecompressor{} }

func (minlzDecompressor) DecompressInto(buf, compressed []byte) error {
	result, err := minlz.Decode(buf, compressed)
	if err != nil {
		return err
	}
	if len(result) != len(buf) || (len(result) > 0 && &result[0] != &buf[0]) {
		return base.CorruptionErrorf("blockfile: decompressed into unexpected buffer: %p != %p",
			errors.Safe(result), errors.Safe(buf))
	}
	return nil
}

func (minlzDecompressor) Close() {}
