// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"bufio"
	"io"

	"github.com/cockroachdb/errors"
)

// readerHandle is a non-seekable, read-only Handle over an io.Reader.
type readerHandle struct {
	r      *bufio.Reader
	c      io.Closer
	pos    int64
	closed bool
}

var _ Handle = (*readerHandle)(nil)

// NewReaderHandle returns a non-seekable Handle that reads from r. If r is an
// io.Closer, closing the handle closes r.
func NewReaderHandle(r io.Reader) Handle {
	h := &readerHandle{r: bufio.NewReaderSize(r, DefaultBlockSize)}
	h.c, _ = r.(io.Closer)
	return h
}

func (h *readerHandle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, ErrClosed
	}
	n, err := h.r.Read(p)
	h.pos += int64(n)
	return n, err
}

func (h *readerHandle) Write([]byte) (int, error) {
	return 0, errors.New("vfs: handle is not writable")
}

func (h *readerHandle) Seek(int64, int) (int64, error) { return 0, ErrNotSeekable }
func (h *readerHandle) Tell() (int64, error)           { return h.pos, nil }
func (h *readerHandle) Seekable() bool                 { return false }
func (h *readerHandle) Writable() bool                 { return false }

func (h *readerHandle) FastForward(n int64) error {
	if h.closed {
		return ErrClosed
	}
	if n < 0 {
		m, err := io.Copy(io.Discard, h.r)
		h.pos += m
		return err
	}
	m, err := io.CopyN(io.Discard, h.r, n)
	h.pos += m
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (h *readerHandle) Clear(int64) error    { return errors.New("vfs: handle is not writable") }
func (h *readerHandle) Truncate(int64) error { return ErrNotSeekable }
func (h *readerHandle) BlockSize() int       { return DefaultBlockSize }
func (h *readerHandle) CanMemmap() bool      { return false }

func (h *readerHandle) Memmap(int64, int) (*Mapping, error) { return nil, ErrNotSeekable }

func (h *readerHandle) Peek(n int) ([]byte, error) {
	b, err := h.r.Peek(n)
	if err == io.EOF || err == bufio.ErrBufferFull {
		err = nil
	}
	return b, err
}

func (h *readerHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.c != nil {
		return h.c.Close()
	}
	return nil
}

func (h *readerHandle) Closed() bool  { return h.closed }
func (h *readerHandle) Reopen() error { return ErrNotSeekable }

// writerHandle is a non-seekable, write-only Handle over an io.Writer.
type writerHandle struct {
	w      io.Writer
	pos    int64
	closed bool
}

var _ Handle = (*writerHandle)(nil)

// NewWriterHandle returns a non-seekable Handle that writes to w. If w is an
// io.Closer, closing the handle closes w.
func NewWriterHandle(w io.Writer) Handle {
	return &writerHandle{w: w}
}

func (h *writerHandle) Read([]byte) (int, error) {
	return 0, errors.New("vfs: handle is not readable")
}

func (h *writerHandle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, ErrClosed
	}
	n, err := h.w.Write(p)
	h.pos += int64(n)
	return n, err
}

func (h *writerHandle) Seek(int64, int) (int64, error) { return 0, ErrNotSeekable }
func (h *writerHandle) Tell() (int64, error)           { return h.pos, nil }
func (h *writerHandle) Seekable() bool                 { return false }
func (h *writerHandle) Writable() bool                 { return true }

func (h *writerHandle) FastForward(n int64) error {
	if n < 0 {
		return nil
	}
	return writeZeros(h, n)
}

func (h *writerHandle) Clear(n int64) error                 { return writeZeros(h, n) }
func (h *writerHandle) Truncate(int64) error                { return ErrNotSeekable }
func (h *writerHandle) BlockSize() int                      { return DefaultBlockSize }
func (h *writerHandle) CanMemmap() bool                     { return false }
func (h *writerHandle) Memmap(int64, int) (*Mapping, error) { return nil, ErrNotSeekable }

func (h *writerHandle) Peek(int) ([]byte, error) {
	return nil, errors.New("vfs: handle is not readable")
}

func (h *writerHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if c, ok := h.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (h *writerHandle) Closed() bool  { return h.closed }
func (h *writerHandle) Reopen() error { return ErrNotSeekable }
