// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build cgo

package compression

import (
	"sync"

	"github.com/DataDog/zstd"
)

// UseStandardZstdLib indicates whether the zstd implementation is a port of the
// official one in the facebook/zstd repository.
//
// This constant is only used in tests. Some tests rely on reproducibility of
// encoded payloads, which a custom implementation of zstd does not provide.
const UseStandardZstdLib = true

type zstdCompressor struct {
	level int
	ctx   zstd.Ctx
}

var _ Compressor = (*zstdCompressor)(nil)

var zstdCompressorPool = sync.Pool{
	New: func() any {
		return &zstdCompressor{ctx: zstd.NewCtx()}
	},
}

func newZstdCompressor(p Params) Compressor {
	z := zstdCompressorPool.Get().(*zstdCompressor)
	z.level = p.Level
	if z.level == 0 {
		z.level = zstd.DefaultCompression
	}
	return z
}

func (z *zstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	bound := zstd.CompressBound(len(src))
	if cap(dst) < bound {
		dst = make([]byte, bound)
	}
	return z.ctx.CompressLevel(dst[:bound], src, z.level)
}

func (z *zstdCompressor) Close() {
	zstdCompressorPool.Put(z)
}

type zstdDecompressor struct {
	ctx zstd.Ctx
}

var _ Decompressor = (*zstdDecompressor)(nil)

var zstdDecompressorPool = sync.Pool{
	New: func() any {
		return &zstdDecompressor{ctx: zstd.NewCtx()}
	},
}

func newZstdDecompressor() Decompressor {
	return zstdDecompressorPool.Get().(*zstdDecompressor)
}

// DecompressInto decompresses src with the Zstandard algorithm. The destination
// buffer must already be sized to the decoded length.
func (z *zstdDecompressor) DecompressInto(dst, src []byte) error {
	n, err := z.ctx.DecompressInto(dst, src)
	if err != nil {
		return err
	}
	return checkDecodedLen("zstd", n, len(dst))
}

func (z *zstdDecompressor) Close() {
	zstdDecompressorPool.Put(z)
}
