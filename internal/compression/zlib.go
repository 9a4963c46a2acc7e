// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

type zlibCompressor struct {
	level int
}

var _ Compressor = zlibCompressor{}

func newZlibCompressor(p Params) Compressor {
	level := p.Level
	if level == 0 {
		level = zlib.DefaultCompression
	}
	return zlibCompressor{level: level}
}

func (c zlibCompressor) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	w, err := zlib.NewWriterLevel(buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (zlibCompressor) Close() {}

type zlibDecompressor struct{}

var _ Decompressor = zlibDecompressor{}

func newZlibDecompressor() Decompressor { return zlibDecompressor{} }

func (zlibDecompressor) DecompressInto(dst, src []byte) error {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return err
	}
	defer r.Close()
	n, err := io.ReadFull(r, dst)
	if err != nil {
		return err
	}
	// Anything left over means the header under-reported the decoded size.
	if extra, _ := r.Read(make([]byte, 1)); extra != 0 {
		return checkDecodedLen("zlib", n+extra, len(dst))
	}
	return nil
}

func (zlibDecompressor) Close() {}
