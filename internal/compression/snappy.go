// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
)

type snappyCompressor struct{}

var _ Compressor = snappyCompressor{}

func newSnappyCompressor(Params) Compressor { return snappyCompressor{} }

func (snappyCompressor) Compress(dst, src []byte) ([]byte, error) {
	dst = dst[:cap(dst):cap(dst)]
	return snappy.Encode(dst, src), nil
}

func (snappyCompressor) Close() {}

type snappyDecompressor struct{}

var _ Decompressor = snappyDecompressor{}

func newSnappyDecompressor() Decompressor { return snappyDecompressor{} }

func (snappyDecompressor) DecompressInto(buf, compressed []byte) error {
	n, err := snappy.DecodedLen(compressed)
	if err != nil {
		return err
	}
	if err := checkDecodedLen("snpy", n, len(buf)); err != nil {
		return err
	}
	result, err := snappy.Decode(buf, compressed)
	if err != nil {
		return err
	}
	if len(result) != len(buf) || (len(result) > 0 && &result[0] != &buf[0]) {
		return base.CorruptionErrorf("blockfile: decompressed into unexpected buffer: %p != %p",
			errors.Safe(result), errors.Safe(buf))
	}
	return nil
}

func (snappyDecompressor) Close() {}
