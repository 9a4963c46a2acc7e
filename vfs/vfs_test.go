// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package vfs

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/oserror"
	"github.com/stretchr/testify/require"
)

// testSeekableHandle exercises the Handle contract on a fresh, empty,
// writable handle.
func testSeekableHandle(t *testing.T, h Handle) {
	require.True(t, h.Seekable())
	require.True(t, h.Writable())

	_, err := h.Write([]byte("hello world"))
	require.NoError(t, err)
	pos, err := h.Tell()
	require.NoError(t, err)
	require.EqualValues(t, 11, pos)

	require.NoError(t, h.Clear(5))
	pos, err = h.Tell()
	require.NoError(t, err)
	require.EqualValues(t, 16, pos)

	_, err = h.Seek(0, io.SeekStart)
	require.NoError(t, err)
	peek, err := h.Peek(5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(peek))
	pos, err = h.Tell()
	require.NoError(t, err)
	require.EqualValues(t, 0, pos)

	require.NoError(t, h.FastForward(6))
	buf := make([]byte, 10)
	n, err := io.ReadFull(h, buf)
	require.NoError(t, err)
	require.Equal(t, "world\x00\x00\x00\x00\x00", string(buf[:n]))

	require.NoError(t, h.FastForward(-1))
	pos, err = h.Tell()
	require.NoError(t, err)
	require.EqualValues(t, 16, pos)

	// Peek at the end of the file returns what is there.
	peek, err = h.Peek(4)
	require.NoError(t, err)
	require.Empty(t, peek)

	require.True(t, h.CanMemmap())
	m, err := h.Memmap(6, 5)
	require.NoError(t, err)
	require.True(t, m.Valid())
	require.Equal(t, "world", string(m.Bytes()))
	require.Equal(t, 5, m.Len())

	_, err = h.Memmap(12, 10)
	require.Error(t, err)

	// Truncation invalidates mappings.
	require.NoError(t, h.Truncate(11))
	require.False(t, m.Valid())
	require.Nil(t, m.Bytes())
	end, err := h.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	require.EqualValues(t, 11, end)

	// So does reopening.
	m, err = h.Memmap(0, 5)
	require.NoError(t, err)
	require.NoError(t, h.Reopen())
	require.False(t, m.Valid())
	pos, err = h.Tell()
	require.NoError(t, err)
	require.EqualValues(t, 11, pos)

	// And closing.
	m, err = h.Memmap(0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(m.Bytes()))
	require.False(t, h.Closed())
	require.NoError(t, h.Close())
	require.True(t, h.Closed())
	require.False(t, m.Valid())
	require.NoError(t, h.Close())
	_, err = h.Read(buf)
	require.True(t, errors.Is(err, ErrClosed))
}

func TestMemHandle(t *testing.T) {
	testSeekableHandle(t, NewMemHandle(nil))
}

func TestFileHandle(t *testing.T) {
	h, err := Default.Create(filepath.Join(t.TempDir(), "file"))
	require.NoError(t, err)
	require.Greater(t, h.BlockSize(), 0)
	testSeekableHandle(t, h)
}

func TestMemHandleViews(t *testing.T) {
	h := NewMemHandle([]byte("abcdefgh"))
	m, err := h.Memmap(2, 4)
	require.NoError(t, err)
	require.Equal(t, "cdef", string(m.Bytes()))

	// In-place writes are visible through the view.
	_, err = h.Seek(2, io.SeekStart)
	require.NoError(t, err)
	_, err = h.Write([]byte("CD"))
	require.NoError(t, err)
	require.True(t, m.Valid())
	require.Equal(t, "CDef", string(m.Bytes()))

	// Growing the file reallocates and invalidates the view.
	_, err = h.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	_, err = h.Write([]byte("ijkl"))
	require.NoError(t, err)
	require.False(t, m.Valid())
	require.Equal(t, "abCDefghijkl", string(h.Bytes()))

	h.SetBlockSize(16)
	require.Equal(t, 16, h.BlockSize())
}

func TestReaderHandle(t *testing.T) {
	h := NewReaderHandle(bytes.NewReader([]byte("0123456789")))
	require.False(t, h.Seekable())
	require.False(t, h.Writable())
	require.False(t, h.CanMemmap())

	peek, err := h.Peek(4)
	require.NoError(t, err)
	require.Equal(t, "0123", string(peek))

	require.NoError(t, h.FastForward(2))
	buf := make([]byte, 3)
	_, err = io.ReadFull(h, buf)
	require.NoError(t, err)
	require.Equal(t, "234", string(buf))
	pos, err := h.Tell()
	require.NoError(t, err)
	require.EqualValues(t, 5, pos)

	_, err = h.Seek(0, io.SeekStart)
	require.True(t, errors.Is(err, ErrNotSeekable))
	_, err = h.Memmap(0, 1)
	require.True(t, errors.Is(err, ErrNotSeekable))
	_, err = h.Write([]byte("x"))
	require.Error(t, err)

	// Peeking past the end is not an error.
	peek, err = h.Peek(100)
	require.NoError(t, err)
	require.Equal(t, "56789", string(peek))

	require.NoError(t, h.FastForward(-1))
	pos, err = h.Tell()
	require.NoError(t, err)
	require.EqualValues(t, 10, pos)
	require.Error(t, h.FastForward(1))
	require.NoError(t, h.Close())
	require.True(t, h.Closed())
}

func TestWriterHandle(t *testing.T) {
	var buf bytes.Buffer
	h := NewWriterHandle(&buf)
	require.False(t, h.Seekable())
	require.True(t, h.Writable())
	_, err := h.Write([]byte("ab"))
	require.NoError(t, err)
	require.NoError(t, h.FastForward(2))
	require.NoError(t, h.Clear(1))
	pos, err := h.Tell()
	require.NoError(t, err)
	require.EqualValues(t, 5, pos)
	require.Equal(t, "ab\x00\x00\x00", buf.String())
	require.True(t, errors.Is(h.Truncate(0), ErrNotSeekable))
	_, err = h.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestMemFS(t *testing.T) {
	fs := NewMem()
	require.NoError(t, fs.MkdirAll("/a/b", 0755))

	h, err := fs.Create("/a/b/data.asdf")
	require.NoError(t, err)
	_, err = h.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, h.Close())

	fi, err := fs.Stat("/a/b/data.asdf")
	require.NoError(t, err)
	require.EqualValues(t, 7, fi.Size())
	require.False(t, fi.IsDir())
	fi, err = fs.Stat("/a")
	require.NoError(t, err)
	require.True(t, fi.IsDir())

	ro, err := fs.Open("/a/b/data.asdf")
	require.NoError(t, err)
	require.False(t, ro.Writable())
	_, err = ro.Write([]byte("x"))
	require.Error(t, err)
	require.Error(t, ro.Truncate(0))

	rw, err := fs.OpenReadWrite("/a/b/data.asdf")
	require.NoError(t, err)
	_, err = rw.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	_, err = rw.Write([]byte("!"))
	require.NoError(t, err)
	data, err := fs.ReadFile("/a/b/data.asdf")
	require.NoError(t, err)
	require.Equal(t, "payload!", string(data))

	// OpenReadWrite creates missing files.
	_, err = fs.OpenReadWrite("/a/new")
	require.NoError(t, err)

	_, err = fs.Open("/a/missing")
	require.True(t, oserror.IsNotExist(err))

	require.Equal(t, `          /
            a/
              b/
       8        data.asdf
       0      new
`, fs.String())

	require.NoError(t, fs.Remove("/a/new"))
	require.Equal(t, "data.asdf", fs.PathBase("/a/b/data.asdf"))
	require.Equal(t, "/a/b", fs.PathDir("/a/b/data.asdf"))
	require.Equal(t, "/a/b/c", fs.PathJoin("/a", "b", "c"))
}
