// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/blockfile"
	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testTree = "%YAML 1.1\n---\nblocks: [0, 1, 2]\n...\n"

// makeContainer writes a container of three blocks, the second compressed,
// and returns the payloads and block offsets.
func makeContainer(t *testing.T, fs vfs.FS, name string, wo blockfile.WriteOptions) ([][]byte, []int64) {
	t.Helper()
	m := blockfile.NewManager(&blockfile.Options{FS: fs, URI: name, Logger: base.NoopLogger{}})
	var payloads [][]byte
	var refs []any
	var blocks []*block.Block
	for i := range 3 {
		p := bytes.Repeat([]byte{byte('a' + i)}, 1000*(i+1))
		buf := block.NewBuffer(p)
		b, err := m.FindOrCreateBlockForArray(buf)
		require.NoError(t, err)
		if i == 1 {
			require.NoError(t, b.SetOutputCompression("zlib", blockfile.CompressionParams{}))
		}
		payloads = append(payloads, p)
		refs = append(refs, buf)
		blocks = append(blocks, b)
	}
	f, err := fs.Create(name)
	require.NoError(t, err)
	require.NoError(t, m.WriteTo(f, &blockfile.RawTree{YAML: []byte(testTree), Refs: refs}, wo))
	require.NoError(t, f.Close())
	var offsets []int64
	for _, b := range blocks {
		off, ok := b.Offset()
		require.True(t, ok)
		offsets = append(offsets, off)
	}
	return payloads, offsets
}

// run executes the tool with args and returns what it printed.
func run(t *testing.T, fs vfs.FS, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	stderr = &buf
	defer func() {
		stdout = os.Stdout
		stderr = os.Stderr
	}()

	c := &cobra.Command{}
	c.AddCommand(New(WithFS(fs)).Commands...)
	c.SetArgs(args)
	c.SetOutput(&buf)
	if err := c.Execute(); err != nil {
		return err.Error()
	}
	return buf.String()
}

func TestLayout(t *testing.T) {
	fs := vfs.NewMem()
	_, offsets := makeContainer(t, fs, "/a.asdf", blockfile.WriteOptions{})
	out := run(t, fs, "layout", "/a.asdf")
	for _, s := range []string{"BLOCK", "STORAGE", "COMPRESSION", "zlib", "none", "internal", "3000 (2.9KB)"} {
		require.Contains(t, out, s)
	}
	for _, off := range offsets {
		require.Contains(t, out, fmt.Sprint(off))
	}
}

func TestIndex(t *testing.T) {
	fs := vfs.NewMem()
	_, offsets := makeContainer(t, fs, "/a.asdf", blockfile.WriteOptions{})
	out := run(t, fs, "index", "/a.asdf")
	require.True(t, strings.HasPrefix(out, "index: found\n"), out)
	for i, off := range offsets {
		require.Contains(t, out, fmt.Sprintf("%d: %d\n", i, off))
	}

	_, offsets = makeContainer(t, fs, "/b.asdf", blockfile.WriteOptions{OmitBlockIndex: true})
	out = run(t, fs, "index", "/b.asdf")
	require.True(t, strings.HasPrefix(out, "index: no-end-marker\nblocks located by scanning\n"), out)
	require.Contains(t, out, fmt.Sprintf("2: %d\n", offsets[2]))
}

func TestVerify(t *testing.T) {
	fs := vfs.NewMem()
	_, offsets := makeContainer(t, fs, "/a.asdf", blockfile.WriteOptions{})
	require.Equal(t, "3 blocks verified, 0 failed\n", run(t, fs, "verify", "/a.asdf"))

	data, err := fs.ReadFile("/a.asdf")
	require.NoError(t, err)
	data[offsets[2]+block.HeaderSize] ^= 0xff
	f, err := fs.Create("/a.asdf")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, "block 2: checksum mismatch\n2 blocks verified, 1 failed\n", run(t, fs, "verify", "/a.asdf"))
}

func TestDefragment(t *testing.T) {
	fs := vfs.NewMem()
	payloads, _ := makeContainer(t, fs, "/a.asdf", blockfile.WriteOptions{PadBlocks: 2})
	out := run(t, fs, "defragment", "--compression", "lz4", "/a.asdf", "/b.asdf")
	require.Equal(t, "wrote 3 blocks to /b.asdf\n", out)

	before, err := fs.Stat("/a.asdf")
	require.NoError(t, err)
	after, err := fs.Stat("/b.asdf")
	require.NoError(t, err)
	require.Less(t, after.Size(), before.Size())

	m, err := blockfile.Open(fs, "/b.asdf", &blockfile.Options{Logger: base.NoopLogger{}})
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Close()) }()
	require.Equal(t, testTree, string(m.Tree().YAML))
	require.Equal(t, []string{"lz4"}, m.OutputCompressions())
	for i, p := range payloads {
		b, err := m.GetBlock(blockfile.InternalSource(i))
		require.NoError(t, err)
		buf, err := b.Materialize()
		require.NoError(t, err)
		require.Equal(t, p, buf.Bytes())
	}
}

func TestMetricsAndConfig(t *testing.T) {
	fs := vfs.NewMem()
	makeContainer(t, fs, "/a.asdf", blockfile.WriteOptions{})
	out := run(t, fs, "metrics", "/a.asdf")
	require.Contains(t, out, "state: fully-scanned\n")
	require.Contains(t, out, "blocks: 3 internal, 0 external, 0 inline, 0 streamed\n")
	require.Contains(t, out, "index: not read\n")

	f, err := fs.Create("/opts.yaml")
	require.NoError(t, err)
	_, err = f.Write([]byte("lazy_load: true\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	out = run(t, fs, "metrics", "--config", "/opts.yaml", "/a.asdf")
	require.Contains(t, out, "index: found (used, 1 placeholders)\n")

	f, err = fs.Create("/bad.yaml")
	require.NoError(t, err)
	_, err = f.Write([]byte("bogus: 1\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	out = run(t, fs, "metrics", "--config", "/bad.yaml", "/a.asdf")
	require.Contains(t, out, "parsing options")

	out = run(t, fs, "metrics", "/missing.asdf")
	require.Contains(t, out, "/missing.asdf")
}

func TestVerboseLogging(t *testing.T) {
	fs := vfs.NewMem()
	makeContainer(t, fs, "/a.asdf", blockfile.WriteOptions{OmitBlockIndex: true})
	out := run(t, fs, "index", "--verbose", "/a.asdf")
	require.Contains(t, out, "discarding block index")
}
