// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"
)

// DefaultBlockSize is the block size reported by handles that have no better
// hint from the operating system.
const DefaultBlockSize = 8192

// ErrNotSeekable is returned by positioning operations on stream handles.
var ErrNotSeekable = errors.New("vfs: handle is not seekable")

// ErrClosed is returned by operations on a closed handle.
var ErrClosed = errors.New("vfs: handle is closed")

// Handle is a readable and/or writable sequence of bytes that a container is
// read from or written to.
//
// Typically it wraps an *os.File, but stream handles (NewReaderHandle,
// NewWriterHandle) and memory-backed handles (NewMemHandle, MemFS) are
// substituted where a file is unavailable or unnecessary.
type Handle interface {
	io.Reader
	io.Writer
	io.Seeker

	// Tell returns the current position.
	Tell() (int64, error)
	// Seekable reports whether Seek, Truncate and Memmap are supported.
	Seekable() bool
	// Writable reports whether the handle was opened for writing.
	Writable() bool
	// FastForward skips n bytes. When reading, the bytes are discarded; when
	// writing a stream, zeros are written. A negative n moves to the end of
	// the file.
	FastForward(n int64) error
	// Clear writes n zero bytes at the current position.
	Clear(n int64) error
	// Truncate changes the size of the file. All mappings created by this
	// handle are invalidated.
	Truncate(size int64) error
	// BlockSize is the preferred I/O chunk size.
	BlockSize() int
	// CanMemmap reports whether Memmap is supported.
	CanMemmap() bool
	// Memmap maps length bytes starting at offset. The mapping stays valid
	// until the handle is truncated, closed or reopened.
	Memmap(offset int64, length int) (*Mapping, error)
	// Peek returns up to n bytes at the current position without consuming
	// them.
	Peek(n int) ([]byte, error)
	// Close closes the handle and invalidates its mappings.
	Close() error
	// Closed reports whether Close has been called.
	Closed() bool
	// Reopen closes and reopens the underlying file at the same position,
	// invalidating all mappings.
	Reopen() error
}

// Mapping is a read-only view of a range of a handle. After the handle
// invalidates it, Bytes returns nil and the previously returned slice must
// not be used.
type Mapping struct {
	data    []byte
	release func() error
	valid   bool
	// owner is the handle that created the mapping, for handles that share
	// one set of views between several handles.
	owner any
}

func newMapping(data []byte, release func() error) *Mapping {
	return &Mapping{data: data, release: release, valid: true}
}

// Valid reports whether the mapping is still backed by the handle.
func (m *Mapping) Valid() bool {
	return m != nil && m.valid
}

// Bytes returns the mapped bytes, or nil once the mapping is invalid.
func (m *Mapping) Bytes() []byte {
	if !m.Valid() {
		return nil
	}
	return m.data
}

// Len returns the length of the mapped range.
func (m *Mapping) Len() int {
	return len(m.data)
}

func (m *Mapping) invalidate() error {
	if !m.Valid() {
		return nil
	}
	m.valid = false
	m.data = nil
	if m.release != nil {
		return m.release()
	}
	return nil
}

// mappings tracks the live mappings created by a handle.
type mappings []*Mapping

func (ms *mappings) add(m *Mapping) {
	live := (*ms)[:0]
	for _, x := range *ms {
		if x.Valid() {
			live = append(live, x)
		}
	}
	*ms = append(live, m)
}

func (ms *mappings) invalidateAll() error {
	var err error
	for _, m := range *ms {
		err = errors.CombineErrors(err, m.invalidate())
	}
	*ms = (*ms)[:0]
	return err
}

// FS is a namespace for files.
//
// The names are filepath names: they may be / separated or \ separated,
// depending on the underlying operating system.
type FS interface {
	// Create creates the named file for reading and writing, truncating it if
	// it already exists.
	Create(name string) (Handle, error)

	// Open opens the named file for reading.
	Open(name string) (Handle, error)

	// OpenReadWrite opens the named file for reading and writing without
	// truncating it. If the file does not exist, it is created.
	OpenReadWrite(name string) (Handle, error)

	// Remove removes the named file or directory.
	Remove(name string) error

	// MkdirAll creates a directory and all necessary parents. The permission
	// bits perm have the same semantics as in os.MkdirAll. If the directory
	// already exists, MkdirAll does nothing and returns nil.
	MkdirAll(dir string, perm os.FileMode) error

	// Stat returns an os.FileInfo describing the named file.
	Stat(name string) (os.FileInfo, error)

	// PathBase returns the last element of path. Trailing path separators are
	// removed before extracting the last element. If the path is empty, PathBase
	// returns ".".  If the path consists entirely of separators, PathBase returns a
	// single separator.
	PathBase(path string) string

	// PathJoin joins any number of path elements into a single path, adding a
	// separator if necessary.
	PathJoin(elem ...string) string

	// PathDir returns all but the last element of path, typically the path's
	// directory.
	PathDir(path string) string
}

// Default is a FS implementation backed by the underlying operating system's
// file system.
var Default FS = defaultFS{}

type defaultFS struct{}

func (defaultFS) openFile(name string, flag int) (Handle, error) {
	f, err := os.OpenFile(name, flag|syscall.O_CLOEXEC, 0666)
	if err != nil {
		return nil, err
	}
	return newFileHandle(f, flag), nil
}

func (fs defaultFS) Create(name string) (Handle, error) {
	return fs.openFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
}

func (fs defaultFS) Open(name string) (Handle, error) {
	return fs.openFile(name, os.O_RDONLY)
}

func (fs defaultFS) OpenReadWrite(name string) (Handle, error) {
	return fs.openFile(name, os.O_RDWR|os.O_CREATE)
}

func (defaultFS) Remove(name string) error {
	return os.Remove(name)
}

func (defaultFS) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

func (defaultFS) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (defaultFS) PathBase(path string) string {
	return filepath.Base(path)
}

func (defaultFS) PathJoin(elem ...string) string {
	return filepath.Join(elem...)
}

func (defaultFS) PathDir(path string) string {
	return filepath.Dir(path)
}

// peekSeekable implements Handle.Peek for seekable handles.
func peekSeekable(h Handle, n int) ([]byte, error) {
	pos, err := h.Tell()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	m, err := io.ReadFull(h, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	if _, err := h.Seek(pos, io.SeekStart); err != nil {
		return nil, err
	}
	return buf[:m], nil
}
