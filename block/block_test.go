// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"crypto/md5"
	"io"
	"testing"

	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/internal/compression"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func writeBlocks(t *testing.T, h vfs.Handle, payloads ...[]byte) []*Block {
	t.Helper()
	var blocks []*Block
	for _, p := range payloads {
		b := New(NewBuffer(p), Internal)
		require.NoError(t, b.Write(h))
		blocks = append(blocks, b)
	}
	return blocks
}

func TestHeaderEncoding(t *testing.T) {
	h := Header{
		Flags:       FlagStreamed,
		Compression: compression.ToHeader("zlib"),
		Allocated:   100,
		Used:        90,
		DataSize:    200,
		Checksum:    Checksum{1, 2, 3},
	}
	buf := h.Encode()
	require.Len(t, buf, HeaderSize)
	require.Equal(t, Magic, string(buf[:MagicLen]))
	require.Equal(t, []byte{0, HeaderLen}, buf[MagicLen:boilerplateLen])
	require.Equal(t, h, decodeFixed(buf[boilerplateLen:]))
	require.True(t, h.Streamed())
	require.Equal(t, 54, HeaderSize)
}

func TestReadHeaderErrors(t *testing.T) {
	encode := func(h Header) []byte { return h.Encode()[MagicLen:] }
	for _, tc := range []struct {
		name string
		buf  []byte
	}{
		{"truncated length", []byte{0}},
		{"short header length", []byte{0, 47}},
		{"truncated header", encode(Header{})[:20]},
		{"used differs from data size", encode(Header{Allocated: 10, Used: 5, DataSize: 6})},
		{"compressed streamed block", encode(Header{Flags: FlagStreamed, Compression: compression.ToHeader("zlib")})},
		{"unknown compression", encode(Header{Compression: compression.ToHeader("xxxx")})},
		{"used exceeds allocated", encode(Header{Allocated: 4, Used: 5, DataSize: 5})},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := readHeader(bytes.NewReader(tc.buf))
			require.True(t, errors.Is(err, base.ErrCorruption), "%v", err)
		})
	}

	// A longer header is accepted and the extra bytes are skipped.
	long := Header{Allocated: 3, Used: 3, DataSize: 3}
	buf := long.Encode()[MagicLen:]
	buf[1] = HeaderLen + 4
	buf = append(buf, 0, 0, 0, 0)
	got, n, err := readHeader(bytes.NewReader(buf))
	require.NoError(t, err)
	require.Equal(t, HeaderLen+4, n)
	require.Equal(t, long, got)
}

func TestRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 100)
	for _, label := range append([]string{""}, compression.Labels()...) {
		for _, opts := range []ReadOptions{
			{},
			{LazyLoad: true},
			{LazyLoad: true, Memmap: true},
			{Memmap: true, ValidateChecksum: true},
		} {
			h := vfs.NewMemHandle(nil)
			b := New(NewBuffer(payload), Internal)
			require.NoError(t, b.SetOutputCompression(label, compression.Params{}))
			require.NoError(t, b.Write(h))
			off, ok := b.Offset()
			require.True(t, ok)
			require.EqualValues(t, 0, off)
			require.Equal(t, label, b.InputCompression())
			require.Equal(t, Checksum(md5.Sum(payload)), b.Checksum())
			if label == "" {
				require.EqualValues(t, len(payload), b.Used())
			}
			require.EqualValues(t, len(payload), b.DataSize())
			require.Equal(t, b.EndOffset(), mustTell(t, h))

			_, err := h.Seek(0, io.SeekStart)
			require.NoError(t, err)
			r, err := Read(h, opts)
			require.NoError(t, err)
			require.NotNil(t, r)
			require.Equal(t, b.EndOffset(), mustTell(t, h))
			require.Equal(t, label, r.InputCompression())
			require.Equal(t, b.Used(), r.Used())
			require.Equal(t, b.Allocated(), r.Allocated())
			require.Equal(t, b.Checksum(), r.Checksum())
			require.Equal(t, opts.LazyLoad, r.Data() == nil)

			buf, err := r.Materialize()
			require.NoError(t, err)
			require.Equal(t, payload, buf.Bytes())
			require.Equal(t, opts.Memmap && label == "", buf.Mapped())
			require.NoError(t, r.ValidateChecksum())

			// End of run.
			next, err := Read(h, opts)
			require.NoError(t, err)
			require.Nil(t, next)
		}
	}
}

func mustTell(t *testing.T, h vfs.Handle) int64 {
	t.Helper()
	pos, err := h.Tell()
	require.NoError(t, err)
	return pos
}

func TestMaterializeIdempotent(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	writeBlocks(t, h, []byte("abcdef"))
	_, err := h.Seek(0, io.SeekStart)
	require.NoError(t, err)

	b, err := Read(h, ReadOptions{LazyLoad: true})
	require.NoError(t, err)
	pos := mustTell(t, h)
	first, err := b.Materialize()
	require.NoError(t, err)
	second, err := b.Materialize()
	require.NoError(t, err)
	require.Same(t, first, second)
	// The handle position is preserved.
	require.Equal(t, pos, mustTell(t, h))
}

func TestMaterializeStaleMapping(t *testing.T) {
	for _, invalidate := range []func(h *vfs.MemHandle) error{
		func(h *vfs.MemHandle) error { return h.Truncate(int64(len(h.Bytes()))) },
		func(h *vfs.MemHandle) error { return h.Reopen() },
	} {
		h := vfs.NewMemHandle(nil)
		writeBlocks(t, h, []byte("mapped payload"))
		_, err := h.Seek(0, io.SeekStart)
		require.NoError(t, err)

		b, err := Read(h, ReadOptions{LazyLoad: true, Memmap: true})
		require.NoError(t, err)
		buf, err := b.Materialize()
		require.NoError(t, err)
		require.True(t, buf.Mapped())
		require.False(t, buf.Stale())

		require.NoError(t, invalidate(h))
		require.True(t, buf.Stale())
		require.Nil(t, buf.Bytes())
		require.Equal(t, len("mapped payload"), buf.Len())

		again, err := b.Materialize()
		require.NoError(t, err)
		require.Same(t, buf, again)
		require.False(t, again.Stale())
		require.Equal(t, "mapped payload", string(again.Bytes()))
	}
}

func TestMaterializeClosedHandle(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	writeBlocks(t, h, []byte("x"))
	_, err := h.Seek(0, io.SeekStart)
	require.NoError(t, err)
	b, err := Read(h, ReadOptions{LazyLoad: true})
	require.NoError(t, err)
	require.NoError(t, h.Close())
	_, err = b.Materialize()
	require.True(t, errors.Is(err, base.ErrState), "%v", err)
}

func TestChecksumMismatch(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	writeBlocks(t, h, []byte("checksummed"))
	data := h.Bytes()
	data[HeaderSize] ^= 0xff
	h = vfs.NewMemHandle(data)

	b, err := Read(h, ReadOptions{LazyLoad: true})
	require.NoError(t, err)
	err = b.ValidateChecksum()
	require.True(t, errors.Is(err, base.ErrIntegrity), "%v", err)
	require.Contains(t, err.Error(), "expected")

	_, err = h.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = Read(h, ReadOptions{ValidateChecksum: true})
	require.True(t, errors.Is(err, base.ErrIntegrity), "%v", err)

	// Without validation the payload is returned as is.
	_, err = h.Seek(0, io.SeekStart)
	require.NoError(t, err)
	b, err = Read(h, ReadOptions{})
	require.NoError(t, err)
	require.NotNil(t, b.Data())
}

func TestEndOfRun(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
		opts ReadOptions
	}{
		{name: "empty"},
		{name: "short zeros", data: "\x00\x00"},
		{name: "short garbage", data: "ab"},
		{name: "index", data: IndexHeader + "\n"},
		{name: "all zeros", data: "\x00\x00\x00\x00\x00\x00\x00", opts: ReadOptions{SkipLeadingZeros: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Read(vfs.NewMemHandle([]byte(tc.data)), tc.opts)
			require.NoError(t, err)
			require.Nil(t, b)
		})
	}

	_, err := Read(vfs.NewMemHandle([]byte("XBLK....")), ReadOptions{})
	require.True(t, errors.Is(err, base.ErrCorruption))
	_, err = Read(vfs.NewMemHandle([]byte("\x00\x00\x00\x00")), ReadOptions{})
	require.True(t, errors.Is(err, base.ErrCorruption))
}

func TestSkipLeadingZeros(t *testing.T) {
	h := vfs.NewMemHandle([]byte("\x00\x00\x00\x00\x00\x00"))
	_, err := h.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	writeBlocks(t, h, []byte("payload"))
	_, err = h.Seek(0, io.SeekStart)
	require.NoError(t, err)

	b, err := Read(h, ReadOptions{SkipLeadingZeros: true})
	require.NoError(t, err)
	off, _ := b.Offset()
	require.EqualValues(t, 6, off)
	require.Equal(t, "payload", string(b.Data().Bytes()))
}

func TestPastMagic(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	writeBlocks(t, h, []byte("a"), []byte("bc"))
	_, err := h.Seek(HeaderSize+1+MagicLen, io.SeekStart)
	require.NoError(t, err)
	b, err := Read(h, ReadOptions{PastMagic: true})
	require.NoError(t, err)
	off, _ := b.Offset()
	require.EqualValues(t, HeaderSize+1, off)
	require.Equal(t, "bc", string(b.Data().Bytes()))
}

func TestStreamedBlock(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	writeBlocks(t, h, []byte("first"))
	s := New(NewBuffer([]byte("streamed")), Streamed)
	require.Error(t, s.SetOutputCompression("zlib", compression.Params{}))
	require.NoError(t, s.Write(h))
	_, err := h.Write([]byte(" and more"))
	require.NoError(t, err)

	for _, seekable := range []bool{true, false} {
		var r vfs.Handle = vfs.NewMemHandle(h.Bytes())
		if !seekable {
			r = vfs.NewReaderHandle(bytes.NewReader(h.Bytes()))
		}
		first, err := Read(r, ReadOptions{LazyLoad: true})
		require.NoError(t, err)
		require.Equal(t, Internal, first.Storage())
		b, err := Read(r, ReadOptions{LazyLoad: true})
		require.NoError(t, err)
		require.Equal(t, Streamed, b.Storage())
		require.EqualValues(t, FlagStreamed, b.Flags())
		buf, err := b.Materialize()
		require.NoError(t, err)
		require.Equal(t, "streamed and more", string(buf.Bytes()))
		require.EqualValues(t, len("streamed and more"), b.DataSize())
	}
}

func TestNonSeekableRead(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	b := New(NewBuffer(bytes.Repeat([]byte("z"), 1000)), Internal)
	require.NoError(t, b.SetOutputCompression("zlib", compression.Params{}))
	b.SetAllocated(2000)
	require.NoError(t, b.Write(h))
	writeBlocks(t, h, []byte("tail"))

	r := vfs.NewReaderHandle(bytes.NewReader(h.Bytes()))
	first, err := Read(r, ReadOptions{LazyLoad: true, ValidateChecksum: true})
	require.NoError(t, err)
	require.NotNil(t, first.Data(), "stream reads are eager")
	require.Equal(t, 1000, first.Data().Len())
	second, err := Read(r, ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, "tail", string(second.Data().Bytes()))
}

func TestWriteErrors(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	err := New(nil, Internal).Write(h)
	require.True(t, errors.Is(err, base.ErrState), "%v", err)

	b := New(NewBuffer([]byte("12345")), Internal)
	b.SetAllocated(2)
	err = b.Write(h)
	require.True(t, errors.Is(err, base.ErrState), "%v", err)

	// A streamed block may be written without a payload.
	require.NoError(t, New(nil, Streamed).Write(h))
}

func TestWritePadding(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	b := New(NewBuffer([]byte("abc")), Internal)
	b.SetAllocated(10)
	require.NoError(t, b.Write(h))
	require.Equal(t, int64(HeaderSize+10), mustTell(t, h))
	require.Equal(t, "abc\x00\x00\x00\x00\x00\x00\x00", string(h.Bytes()[HeaderSize:]))
}

func TestUpdateSize(t *testing.T) {
	payload := bytes.Repeat([]byte("compress me "), 200)
	b := New(NewBuffer(payload), Internal)
	require.NoError(t, b.UpdateSize())
	require.EqualValues(t, len(payload), b.Used())

	require.NoError(t, b.SetOutputCompression("zlib", compression.Params{}))
	require.NoError(t, b.UpdateSize())
	require.Less(t, b.Used(), uint64(len(payload)))
	require.EqualValues(t, len(payload), b.DataSize())
	used := b.Used()

	// Write reuses the encoding computed by UpdateSize.
	b.SetAllocated(used)
	h := vfs.NewMemHandle(nil)
	require.NoError(t, b.Write(h))
	require.Equal(t, used, b.Used())
	require.Equal(t, int64(HeaderSize)+int64(used), mustTell(t, h))
}

func TestUnloaded(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	written := writeBlocks(t, h, []byte("one"), []byte("two"))
	off, _ := written[1].Offset()
	_, err := h.Seek(0, io.SeekStart)
	require.NoError(t, err)

	b := NewUnloaded(h, off, ReadOptions{LazyLoad: true})
	require.False(t, b.Loaded())
	require.Equal(t, "<Block unloaded off: 57>", b.String())
	require.NoError(t, b.Load())
	require.True(t, b.Loaded())
	require.Equal(t, written[1].EndOffset(), b.EndOffset())
	require.Equal(t, int64(0), mustTell(t, h))
	buf, err := b.Materialize()
	require.NoError(t, err)
	require.Equal(t, "two", string(buf.Bytes()))
	require.Equal(t, "<Block internal off: 57 alc: 3 size: 57>", b.String())

	bad := NewUnloaded(h, 3, ReadOptions{})
	require.True(t, errors.Is(bad.Load(), base.ErrCorruption))
}

func TestPristine(t *testing.T) {
	h := vfs.NewMemHandle(nil)
	writeBlocks(t, h, []byte("stable"))
	_, err := h.Seek(0, io.SeekStart)
	require.NoError(t, err)
	b, err := Read(h, ReadOptions{LazyLoad: true})
	require.NoError(t, err)
	require.True(t, b.Pristine(h))
	require.False(t, b.Pristine(vfs.NewMemHandle(nil)))

	buf, err := b.Materialize()
	require.NoError(t, err)
	require.True(t, b.Pristine(h))
	buf.Bytes()[0] = 'S'
	require.False(t, b.Pristine(h))
	buf.Bytes()[0] = 's'

	b.SetOffset(100)
	require.False(t, b.Pristine(h))
	b.SetOffset(0)
	require.NoError(t, b.SetOutputCompression("zlib", compression.Params{}))
	require.False(t, b.Pristine(h))
}

func TestMaterializeLatency(t *testing.T) {
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "materialize_latency",
		Buckets: prometheus.DefBuckets,
	})
	h := vfs.NewMemHandle(nil)
	writeBlocks(t, h, []byte("a"), []byte("b"))
	_, err := h.Seek(0, io.SeekStart)
	require.NoError(t, err)
	for {
		b, err := Read(h, ReadOptions{Latency: hist})
		require.NoError(t, err)
		if b == nil {
			break
		}
	}
	m := &dto.Metric{}
	require.NoError(t, hist.Write(m))
	require.EqualValues(t, 2, m.Histogram.GetSampleCount())
}

func TestStorageClass(t *testing.T) {
	for _, c := range []StorageClass{Internal, External, Inline, Streamed} {
		got, err := ParseStorageClass(c.String())
		require.NoError(t, err)
		require.Equal(t, c, got)
	}
	_, err := ParseStorageClass("foo")
	require.True(t, errors.Is(err, base.ErrConfig))
	require.Equal(t, "StorageClass(9)", StorageClass(9).String())

	b := New(NewBuffer([]byte("x")), Internal)
	require.NoError(t, b.SetOutputCompression("zlib", compression.Params{}))
	b.SetStorage(Streamed)
	require.Equal(t, "", b.OutputCompression())
}
