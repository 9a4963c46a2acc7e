// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package compression

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
)

type bzip2Compressor struct {
	level int
}

var _ Compressor = bzip2Compressor{}

func newBzip2Compressor(p Params) Compressor {
	return bzip2Compressor{level: p.Level}
}

func (c bzip2Compressor) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	w, err := bzip2.NewWriter(buf, &bzip2.WriterConfig{Level: c.level})
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

func (bzip2Compressor) Close() {}

type bzip2Decompressor struct{}

var _ Decompressor = bzip2Decompressor{}

func newBzip2Decompressor() Decompressor { return bzip2Decompressor{} }

func (bzip2Decompressor) DecompressInto(dst, src []byte) error {
	r, err := bzip2.NewReader(bytes.NewReader(src), nil)
	if err != nil {
		return err
	}
	defer r.Close()
	n, err := io.ReadFull(r, dst)
	if err != nil {
		return err
	}
	if extra, _ := r.Read(make([]byte, 1)); extra != 0 {
		return checkDecodedLen("bzp2", n+extra, len(dst))
	}
	return nil
}

func (bzip2Decompressor) Close() {}
