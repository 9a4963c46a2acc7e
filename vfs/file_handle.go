// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
)

// fileHandle is a Handle over an *os.File.
type fileHandle struct {
	name      string
	f         *os.File
	flag      int
	blockSize int
	maps      mappings
	closed    bool
}

var _ Handle = (*fileHandle)(nil)

// NewFileHandle wraps f, which must have been opened with the given
// os.OpenFile flags. The handle takes ownership of f.
func NewFileHandle(f *os.File, flag int) Handle {
	return newFileHandle(f, flag)
}

func newFileHandle(f *os.File, flag int) *fileHandle {
	return &fileHandle{
		name:      f.Name(),
		f:         f,
		flag:      flag,
		blockSize: fileBlockSize(f),
	}
}

func (h *fileHandle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, ErrClosed
	}
	return h.f.Read(p)
}

func (h *fileHandle) Write(p []byte) (int, error) {
	if h.closed {
		return 0, ErrClosed
	}
	return h.f.Write(p)
}

func (h *fileHandle) Seek(offset int64, whence int) (int64, error) {
	if h.closed {
		return 0, ErrClosed
	}
	return h.f.Seek(offset, whence)
}

func (h *fileHandle) Tell() (int64, error) {
	return h.Seek(0, io.SeekCurrent)
}

func (h *fileHandle) Seekable() bool { return true }

func (h *fileHandle) Writable() bool {
	return h.flag&(os.O_WRONLY|os.O_RDWR) != 0
}

func (h *fileHandle) FastForward(n int64) error {
	if n < 0 {
		_, err := h.Seek(0, io.SeekEnd)
		return err
	}
	_, err := h.Seek(n, io.SeekCurrent)
	return err
}

func (h *fileHandle) Clear(n int64) error {
	return writeZeros(h, n)
}

func (h *fileHandle) Truncate(size int64) error {
	if h.closed {
		return ErrClosed
	}
	if err := h.maps.invalidateAll(); err != nil {
		return err
	}
	return h.f.Truncate(size)
}

func (h *fileHandle) BlockSize() int { return h.blockSize }

func (h *fileHandle) CanMemmap() bool { return mmapSupported && !h.closed }

func (h *fileHandle) Memmap(offset int64, length int) (*Mapping, error) {
	if !h.CanMemmap() {
		return nil, errors.Newf("vfs: %s cannot be memory mapped", errors.Safe(h.name))
	}
	fi, err := h.f.Stat()
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset+int64(length) > fi.Size() {
		return nil, errors.Newf("vfs: mapping [%d,%d) outside of %d byte file",
			errors.Safe(offset), errors.Safe(offset+int64(length)), errors.Safe(fi.Size()))
	}
	data, release, err := mmapFile(h.f, offset, length)
	if err != nil {
		return nil, errors.Wrapf(err, "vfs: mapping %s", errors.Safe(h.name))
	}
	m := newMapping(data, release)
	h.maps.add(m)
	return m, nil
}

func (h *fileHandle) Peek(n int) ([]byte, error) {
	return peekSeekable(h, n)
}

func (h *fileHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return errors.CombineErrors(h.maps.invalidateAll(), h.f.Close())
}

func (h *fileHandle) Closed() bool { return h.closed }

func (h *fileHandle) Reopen() error {
	if h.closed {
		return ErrClosed
	}
	pos, err := h.Tell()
	if err != nil {
		return err
	}
	if err := errors.CombineErrors(h.maps.invalidateAll(), h.f.Close()); err != nil {
		return err
	}
	flag := h.flag &^ (os.O_TRUNC | os.O_CREATE | os.O_EXCL)
	f, err := os.OpenFile(h.name, flag|syscall.O_CLOEXEC, 0)
	if err != nil {
		h.closed = true
		return err
	}
	h.f = f
	_, err = h.f.Seek(pos, io.SeekStart)
	return err
}

var zeros [DefaultBlockSize]byte

func writeZeros(w io.Writer, n int64) error {
	for n > 0 {
		chunk := min(n, int64(len(zeros)))
		if _, err := w.Write(zeros[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
