// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !cgo

package compression

import "github.com/klauspost/compress/zstd"

// UseStandardZstdLib indicates whether the zstd implementation is a port of the
// official one in the facebook/zstd repository.
//
// This constant is only used in tests. Some tests rely on reproducibility of
// encoded payloads, which a custom implementation of zstd does not provide.
//
// We cannot always use the official facebook/zstd implementation since it
// relies on CGo.
const UseStandardZstdLib = false

type zstdCompressor struct {
	enc *zstd.Encoder
}

var _ Compressor = zstdCompressor{}

func newZstdCompressor(p Params) Compressor {
	opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
	if p.Level != 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(p.Level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		panic(err)
	}
	return zstdCompressor{enc: enc}
}

func (z zstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, dst[:0]), nil
}

func (z zstdCompressor) Close() {
	if err := z.enc.Close(); err != nil {
		panic(err)
	}
}

type zstdDecompressor struct{}

var _ Decompressor = zstdDecompressor{}

func newZstdDecompressor() Decompressor { return zstdDecompressor{} }

func (zstdDecompressor) DecompressInto(dst, src []byte) error {
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return err
	}
	defer decoder.Close()
	result, err := decoder.DecodeAll(src, dst[:0])
	if err != nil {
		return err
	}
	if err := checkDecodedLen("zstd", len(result), len(dst)); err != nil {
		return err
	}
	if len(result) > 0 && &result[0] != &dst[0] {
		copy(dst, result)
	}
	return nil
}

func (zstdDecompressor) Close() {}
