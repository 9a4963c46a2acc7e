// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
)

const sep = "/"

var errNotEmpty = oserror.ErrExist

// NewMem returns a new memory-backed FS implementation.
func NewMem() *MemFS {
	return &MemFS{
		root: newRootMemNode(),
	}
}

// NewMemHandle returns a seekable, writable memory-backed Handle positioned at
// the start of data. The handle takes ownership of data.
func NewMemHandle(data []byte) *MemHandle {
	n := &memNode{}
	n.mu.data = data
	n.mu.modTime = time.Now()
	return &MemHandle{
		name:      "<memory>",
		n:         n,
		read:      true,
		write:     true,
		blockSize: DefaultBlockSize,
	}
}

// MemFS implements FS.
type MemFS struct {
	mu   sync.Mutex
	root *memNode
}

var _ FS = &MemFS{}

// String dumps the contents of the MemFS.
func (y *MemFS) String() string {
	y.mu.Lock()
	defer y.mu.Unlock()

	s := new(bytes.Buffer)
	y.root.dump(s, 0, sep)
	return s.String()
}

// walk walks the directory tree for the fullname, calling f at each step. If
// f returns an error, the walk will be aborted and return that same error.
//
// Each walk is atomic: y's mutex is held for the entire operation, including
// all calls to f.
//
// dir is the directory at that step, frag is the name fragment, and final is
// whether it is the final step. For example, walking "/foo/bar/x" will result
// in 3 calls to f:
//   - "/", "foo", false
//   - "/foo/", "bar", false
//   - "/foo/bar/", "x", true
func (y *MemFS) walk(fullname string, f func(dir *memNode, frag string, final bool) error) error {
	y.mu.Lock()
	defer y.mu.Unlock()

	// For memfs, the current working directory is the same as the root directory,
	// so we strip off any leading "/"s to make fullname a relative path, and
	// the walk starts at y.root.
	for len(fullname) > 0 && fullname[0] == sep[0] {
		fullname = fullname[1:]
	}
	if fullname == "." {
		fullname = ""
	}
	dir := y.root

	for {
		frag, remaining := fullname, ""
		i := strings.IndexRune(fullname, rune(sep[0]))
		final := i < 0
		if !final {
			frag, remaining = fullname[:i], fullname[i+1:]
			for len(remaining) > 0 && remaining[0] == sep[0] {
				remaining = remaining[1:]
			}
		}
		if err := f(dir, frag, final); err != nil {
			return err
		}
		if final {
			break
		}
		child := dir.children[frag]
		if child == nil {
			return &os.PathError{
				Op:   "open",
				Path: fullname,
				Err:  oserror.ErrNotExist,
			}
		}
		if !child.isDir {
			return &os.PathError{
				Op:   "open",
				Path: fullname,
				Err:  errors.New("not a directory"),
			}
		}
		dir, fullname = child, remaining
	}
	return nil
}

// Create implements FS.Create.
func (y *MemFS) Create(fullname string) (Handle, error) {
	var ret *MemHandle
	err := y.walk(fullname, func(dir *memNode, frag string, final bool) error {
		if final {
			if frag == "" {
				return errors.New("vfs: empty file name")
			}
			n := &memNode{}
			n.mu.modTime = time.Now()
			dir.children[frag] = n
			ret = y.newHandle(frag, n, true /* write */)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (y *MemFS) newHandle(name string, n *memNode, write bool) *MemHandle {
	return &MemHandle{
		name:      name,
		n:         n,
		read:      true,
		write:     write,
		blockSize: DefaultBlockSize,
	}
}

func (y *MemFS) open(fullname string, openForWrite bool) (*MemHandle, error) {
	var ret *MemHandle
	err := y.walk(fullname, func(dir *memNode, frag string, final bool) error {
		if final {
			if n := dir.children[frag]; n != nil && !n.isDir {
				ret = y.newHandle(frag, n, openForWrite)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, &os.PathError{
			Op:   "open",
			Path: fullname,
			Err:  oserror.ErrNotExist,
		}
	}
	return ret, nil
}

// Open implements FS.Open.
func (y *MemFS) Open(fullname string) (Handle, error) {
	return y.open(fullname, false /* openForWrite */)
}

// OpenReadWrite implements FS.OpenReadWrite.
func (y *MemFS) OpenReadWrite(fullname string) (Handle, error) {
	f, err := y.open(fullname, true /* openForWrite */)
	if oserror.IsNotExist(err) {
		return y.Create(fullname)
	}
	return f, err
}

// Remove implements FS.Remove.
func (y *MemFS) Remove(fullname string) error {
	return y.walk(fullname, func(dir *memNode, frag string, final bool) error {
		if final {
			if frag == "" {
				return errors.New("vfs: empty file name")
			}
			child, ok := dir.children[frag]
			if !ok {
				return oserror.ErrNotExist
			}
			if len(child.children) > 0 {
				return errNotEmpty
			}
			delete(dir.children, frag)
		}
		return nil
	})
}

// MkdirAll implements FS.MkdirAll.
func (y *MemFS) MkdirAll(dirname string, perm os.FileMode) error {
	return y.walk(dirname, func(dir *memNode, frag string, final bool) error {
		if frag == "" {
			if final {
				return nil
			}
			return errors.New("vfs: empty file name")
		}
		child := dir.children[frag]
		if child == nil {
			dir.children[frag] = &memNode{
				children: make(map[string]*memNode),
				isDir:    true,
			}
			return nil
		}
		if !child.isDir {
			return &os.PathError{
				Op:   "open",
				Path: dirname,
				Err:  errors.New("not a directory"),
			}
		}
		return nil
	})
}

// Stat implements FS.Stat.
func (y *MemFS) Stat(name string) (os.FileInfo, error) {
	var info os.FileInfo
	err := y.walk(name, func(dir *memNode, frag string, final bool) error {
		if !final {
			return nil
		}
		n := dir
		if frag != "" {
			n = dir.children[frag]
		}
		if n == nil {
			return &os.PathError{Op: "stat", Path: name, Err: oserror.ErrNotExist}
		}
		info = n.stat(frag)
		return nil
	})
	return info, err
}

// PathBase implements FS.PathBase.
func (*MemFS) PathBase(p string) string {
	// Note that MemFS uses forward slashes for its separator, hence the use of
	// path.Base, not filepath.Base.
	return path.Base(p)
}

// PathJoin implements FS.PathJoin.
func (*MemFS) PathJoin(elem ...string) string {
	// Note that MemFS uses forward slashes for its separator, hence the use of
	// path.Join, not filepath.Join.
	return path.Join(elem...)
}

// PathDir implements FS.PathDir.
func (*MemFS) PathDir(p string) string {
	// Note that MemFS uses forward slashes for its separator, hence the use of
	// path.Dir, not filepath.Dir.
	return path.Dir(p)
}

// ReadFile returns a copy of the named file's contents. It is intended for
// tests.
func (y *MemFS) ReadFile(fullname string) ([]byte, error) {
	h, err := y.open(fullname, false /* openForWrite */)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return h.Bytes(), nil
}

// memNode holds a file's data or a directory's children.
type memNode struct {
	isDir bool

	// A file is mutated by a single handle at a time, but other handles may
	// read it concurrently.
	mu struct {
		sync.Mutex
		data    []byte
		modTime time.Time
		// maps holds the views handed out over data. They are invalidated
		// whenever data is reallocated or truncated.
		maps []*Mapping
	}

	children map[string]*memNode
}

func newRootMemNode() *memNode {
	return &memNode{
		children: make(map[string]*memNode),
		isDir:    true,
	}
}

func (f *memNode) dump(w *bytes.Buffer, level int, name string) {
	if f.isDir {
		w.WriteString("          ")
	} else {
		f.mu.Lock()
		fmt.Fprintf(w, "%8d  ", len(f.mu.data))
		f.mu.Unlock()
	}
	for i := 0; i < level; i++ {
		w.WriteString("  ")
	}
	w.WriteString(name)
	if !f.isDir {
		w.WriteByte('\n')
		return
	}
	if level > 0 { // deal with the fact that the root's name is already "/"
		w.WriteByte(sep[0])
	}
	w.WriteByte('\n')
	names := slices.Sorted(maps.Keys(f.children))
	for _, name := range names {
		f.children[name].dump(w, level+1, name)
	}
}

func (f *memNode) stat(name string) os.FileInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &memFileInfo{
		name:    name,
		size:    int64(len(f.mu.data)),
		modTime: f.mu.modTime,
		isDir:   f.isDir,
	}
}

// invalidateLocked invalidates the views over the node's data. If owner is
// non-nil, only the views created by that handle are invalidated. f.mu must
// be held.
func (f *memNode) invalidateLocked(owner *MemHandle) {
	live := f.mu.maps[:0]
	for _, m := range f.mu.maps {
		if owner == nil || m.owner == owner {
			_ = m.invalidate()
		} else if m.Valid() {
			live = append(live, m)
		}
	}
	f.mu.maps = live
}

// MemHandle is a Handle over a memory-backed file. Memory mappings are views
// of the file's data; they observe in-place writes and are invalidated when
// the data is reallocated, truncated, or when the handle is closed or
// reopened.
type MemHandle struct {
	name        string
	n           *memNode
	pos         int64
	read, write bool
	blockSize   int
	closed      bool
}

var _ Handle = (*MemHandle)(nil)

// SetBlockSize overrides the block size reported by the handle.
func (f *MemHandle) SetBlockSize(n int) {
	f.blockSize = n
}

// Bytes returns a copy of the handle's contents.
func (f *MemHandle) Bytes() []byte {
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	return slices.Clone(f.n.mu.data)
}

// Read implements io.Reader.
func (f *MemHandle) Read(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if !f.read {
		return 0, errors.New("vfs: file was not opened for reading")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	if f.pos >= int64(len(f.n.mu.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.n.mu.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write implements io.Writer.
func (f *MemHandle) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if !f.write {
		return 0, errors.New("vfs: file was not created for writing")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.mu.modTime = time.Now()
	end := f.pos + int64(len(p))
	if end <= int64(len(f.n.mu.data)) {
		copy(f.n.mu.data[f.pos:end], p)
	} else {
		f.n.invalidateLocked(nil)
		if grow := f.pos - int64(len(f.n.mu.data)); grow > 0 {
			f.n.mu.data = append(f.n.mu.data, make([]byte, grow)...)
		}
		f.n.mu.data = append(f.n.mu.data[:f.pos:f.pos], p...)
	}
	f.pos = end
	return len(p), nil
}

// Seek implements io.Seeker.
func (f *MemHandle) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.pos
	case io.SeekEnd:
		offset += int64(len(f.n.mu.data))
	default:
		return 0, errors.Newf("vfs: invalid whence %d", errors.Safe(whence))
	}
	if offset < 0 {
		return 0, errors.Newf("vfs: negative position %d", errors.Safe(offset))
	}
	f.pos = offset
	return offset, nil
}

// Tell implements Handle.Tell.
func (f *MemHandle) Tell() (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	return f.pos, nil
}

// Seekable implements Handle.Seekable.
func (f *MemHandle) Seekable() bool { return true }

// Writable implements Handle.Writable.
func (f *MemHandle) Writable() bool { return f.write }

// FastForward implements Handle.FastForward.
func (f *MemHandle) FastForward(n int64) error {
	if n < 0 {
		_, err := f.Seek(0, io.SeekEnd)
		return err
	}
	_, err := f.Seek(n, io.SeekCurrent)
	return err
}

// Clear implements Handle.Clear.
func (f *MemHandle) Clear(n int64) error {
	return writeZeros(f, n)
}

// Truncate implements Handle.Truncate.
func (f *MemHandle) Truncate(size int64) error {
	if f.closed {
		return ErrClosed
	}
	if !f.write {
		return errors.New("vfs: file was not created for writing")
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.invalidateLocked(nil)
	if size <= int64(len(f.n.mu.data)) {
		f.n.mu.data = f.n.mu.data[:size:size]
	} else {
		f.n.mu.data = append(f.n.mu.data, make([]byte, size-int64(len(f.n.mu.data)))...)
	}
	f.n.mu.modTime = time.Now()
	return nil
}

// BlockSize implements Handle.BlockSize.
func (f *MemHandle) BlockSize() int { return f.blockSize }

// CanMemmap implements Handle.CanMemmap.
func (f *MemHandle) CanMemmap() bool { return !f.closed }

// Memmap implements Handle.Memmap.
func (f *MemHandle) Memmap(offset int64, length int) (*Mapping, error) {
	if f.closed {
		return nil, ErrClosed
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	end := offset + int64(length)
	if offset < 0 || end > int64(len(f.n.mu.data)) {
		return nil, errors.Newf("vfs: mapping [%d,%d) outside of %d byte file",
			errors.Safe(offset), errors.Safe(end), errors.Safe(len(f.n.mu.data)))
	}
	m := newMapping(f.n.mu.data[offset:end:end], nil)
	m.owner = f
	f.n.mu.maps = append(f.n.mu.maps, m)
	return m, nil
}

// Peek implements Handle.Peek.
func (f *MemHandle) Peek(n int) ([]byte, error) {
	return peekSeekable(f, n)
}

// Close implements io.Closer.
func (f *MemHandle) Close() error {
	if f.closed {
		return nil
	}
	f.n.mu.Lock()
	f.n.invalidateLocked(f)
	f.n.mu.Unlock()
	f.closed = true
	return nil
}

// Closed implements Handle.Closed.
func (f *MemHandle) Closed() bool { return f.closed }

// Reopen implements Handle.Reopen.
func (f *MemHandle) Reopen() error {
	if f.closed {
		return ErrClosed
	}
	f.n.mu.Lock()
	defer f.n.mu.Unlock()
	f.n.invalidateLocked(f)
	return nil
}

// memFileInfo implements os.FileInfo for a memNode.
type memFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

var _ os.FileInfo = (*memFileInfo)(nil)

func (f *memFileInfo) Name() string {
	return f.name
}

func (f *memFileInfo) Size() int64 {
	return f.size
}

func (f *memFileInfo) Mode() os.FileMode {
	if f.isDir {
		return os.ModeDir | 0755
	}
	return 0755
}

func (f *memFileInfo) ModTime() time.Time {
	return f.modTime
}

func (f *memFileInfo) IsDir() bool {
	return f.isDir
}

func (f *memFileInfo) Sys() interface{} {
	return nil
}
