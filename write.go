// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
)

// maxBlocksDigits is the room reserved in the tree size estimate for each
// reference to an internal block, whose index may change in the update.
const maxBlocksDigits = 6

// WriteTo finalizes the catalog and writes the container to h: the tree,
// the internal blocks and the block index. External blocks are written to
// files of their own, next to wo.URI.
func (m *Manager) WriteTo(h vfs.Handle, t Tree, wo WriteOptions) error {
	if err := m.scanRemaining(); err != nil {
		return err
	}
	if h == m.h {
		// The payloads are about to be overwritten.
		if err := m.detachAll(); err != nil {
			return err
		}
	}
	if err := m.Finalize(t.Nodes(), m.opts.ReserveHooks); err != nil {
		return err
	}
	return m.writeSerial(h, t, wo)
}

// writeSerial writes the tree and every block one after the other at the
// current position of h.
func (m *Manager) writeSerial(h vfs.Handle, t Tree, wo WriteOptions) error {
	if err := t.WriteTree(h); err != nil {
		return err
	}
	if wo.PadBlocks > 0 {
		pos, err := h.Tell()
		if err != nil {
			return err
		}
		if err := h.Clear(calculatePadding(pos, wo.PadBlocks, int64(h.BlockSize()))); err != nil {
			return err
		}
	}
	if err := m.WriteInternalBlocksSerial(h, wo.PadBlocks); err != nil {
		return err
	}
	if err := m.WriteExternalBlocks(m.writeURI(wo), wo.PadBlocks); err != nil {
		return err
	}
	if wo.OmitBlockIndex {
		return nil
	}
	return m.WriteBlockIndex(h)
}

func (m *Manager) writeURI(wo WriteOptions) string {
	if wo.URI != "" {
		return wo.URI
	}
	return m.opts.URI
}

// Update rewrites the container in the file it was read from. Blocks that
// have not moved and are unchanged are left alone, the others are placed
// around them. When that is not possible the file is rewritten serially.
//
// t is written twice: once to estimate its size, and once into the file
// after the blocks have been placed, when GetSource returns their final
// references.
func (m *Manager) Update(t Tree, wo WriteOptions) error {
	h := m.h
	if h == nil {
		return base.StateErrorf("blockfile: can not update, since there is no associated file")
	}
	if !h.Writable() || !h.Seekable() {
		return base.StateErrorf("blockfile: can not update, since associated file is not seekable and writable")
	}
	if err := m.FinishReadingInternalBlocks(); err != nil {
		return err
	}

	if m.opts.AllArrayStorage == External.String() {
		if err := m.detachAll(); err != nil {
			return err
		}
		if err := m.Finalize(t.Nodes(), m.opts.ReserveHooks); err != nil {
			return err
		}
		return m.rewrite(h, t, wo)
	}

	if m.streamed != nil && m.streamed.Handle() == h {
		// The streamed payload runs to the end of the file, where other
		// blocks may be placed.
		buf, err := m.streamed.Materialize()
		if err != nil {
			return err
		}
		buf.Detach()
	}
	if err := m.Finalize(t.Nodes(), m.opts.ReserveHooks); err != nil {
		return err
	}
	if !m.hasLocatedInternal() {
		if err := m.detachAll(); err != nil {
			return err
		}
		return m.rewrite(h, t, wo)
	}

	treeSize, err := m.estimateTreeSize(t)
	if err != nil {
		return err
	}
	ok, err := m.calculateUpdatedLayout(treeSize, wo.PadBlocks, int64(h.BlockSize()))
	if err != nil {
		return err
	}
	if !ok {
		m.metrics.LayoutDeclines++
		m.opts.Logger.Infof("blockfile: no in-place layout for %d blocks, rewriting the file",
			errors.Safe(m.internal.Len()))
		if err := m.detachAll(); err != nil {
			return err
		}
		return m.rewrite(h, t, wo)
	}

	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := t.WriteTree(h); err != nil {
		return err
	}
	if err := m.WriteInternalBlocksRandomAccess(h); err != nil {
		return err
	}
	if err := m.WriteExternalBlocks(m.writeURI(wo), wo.PadBlocks); err != nil {
		return err
	}
	if m.streamed == nil && !wo.OmitBlockIndex {
		if err := m.WriteBlockIndex(h); err != nil {
			return err
		}
	}
	return truncateAtTell(h)
}

// rewrite writes the whole container serially from the start of h and cuts
// the file after it.
func (m *Manager) rewrite(h vfs.Handle, t Tree, wo WriteOptions) error {
	if _, err := h.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := m.writeSerial(h, t, wo); err != nil {
		return err
	}
	return truncateAtTell(h)
}

func truncateAtTell(h vfs.Handle) error {
	pos, err := h.Tell()
	if err != nil {
		return err
	}
	return h.Truncate(pos)
}

// detachAll copies the payloads stored in the Manager's file into memory,
// so that the file can be overwritten.
func (m *Manager) detachAll() error {
	for b := range m.InternalBlocks() {
		if b.Handle() != m.h || m.h == nil {
			continue
		}
		buf, err := b.Materialize()
		if err != nil {
			return err
		}
		buf.Detach()
	}
	return nil
}

func (m *Manager) hasLocatedInternal() bool {
	for _, b := range m.internal.Values() {
		if _, ok := b.Offset(); ok {
			return true
		}
	}
	return false
}

// estimateTreeSize returns an upper bound on the size of t once its block
// references are final.
func (m *Manager) estimateTreeSize(t Tree) (int64, error) {
	var buf bytes.Buffer
	if err := t.WriteTree(&buf); err != nil {
		return 0, err
	}
	refs := 0
	if nodes := t.Nodes(); nodes != nil {
		for node := range nodes {
			p, ok := node.(Payload)
			if !ok {
				continue
			}
			if b, ok := m.blockFor(p.Base()); ok && b.Storage() == Internal {
				refs++
			}
		}
	}
	return int64(buf.Len() + maxBlocksDigits*refs), nil
}

// WriteInternalBlocksSerial writes the internal blocks and the streamed
// block one after the other at the current position of h. Uncompressed
// blocks are padded according to pad; compressed blocks take exactly the
// space of their encoding.
func (m *Manager) WriteInternalBlocksSerial(h vfs.Handle, pad float64) error {
	bs := int64(h.BlockSize())
	for b := range m.InternalBlocks() {
		if err := b.UpdateSize(); err != nil {
			return err
		}
		if b.Storage() != Streamed {
			if b.OutputCompression() != "" {
				b.SetAllocated(b.Used())
			} else {
				b.SetAllocated(b.Used() + uint64(calculatePadding(b.Size(), pad, bs)))
			}
		}
		if err := m.writeBlock(h, b); err != nil {
			return err
		}
	}
	return nil
}

// WriteInternalBlocksRandomAccess writes the internal blocks at their
// offsets, each allocated up to the start of the next. Unchanged blocks are
// skipped. The file is cut after the last block.
func (m *Manager) WriteInternalBlocksRandomAccess(h vfs.Handle) error {
	m.sortInternalBlocks()
	var blocks []*block.Block
	for b := range m.InternalBlocks() {
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return nil
	}
	pos, err := h.Tell()
	if err != nil {
		return err
	}
	first, ok := blocks[0].Offset()
	if !ok || first < pos {
		return base.StateErrorf("blockfile: first block at %d overlaps the tree ending at %d",
			errors.Safe(first), errors.Safe(pos))
	}
	if err := h.Clear(first - pos); err != nil {
		return err
	}
	for i, b := range blocks {
		off, ok := b.Offset()
		if !ok {
			return base.StateErrorf("blockfile: block %d has no offset", errors.Safe(i))
		}
		if i+1 < len(blocks) {
			next, _ := blocks[i+1].Offset()
			if next < off+block.HeaderSize {
				return base.StateErrorf("blockfile: block at %d overlaps block at %d", errors.Safe(off), errors.Safe(next))
			}
			b.SetAllocated(uint64(next - off - block.HeaderSize))
		} else if b.Storage() != Streamed {
			b.SetAllocated(b.Used())
		}
		if b.Pristine(h) {
			m.metrics.Write.Skipped++
			continue
		}
		if _, err := h.Seek(off, io.SeekStart); err != nil {
			return err
		}
		if err := m.writeBlock(h, b); err != nil {
			return err
		}
	}
	last := blocks[len(blocks)-1]
	if last.Storage() == Streamed {
		// A streamed block is never pristine, so it was just written and its
		// payload ends here. Whatever followed it would be read back as part
		// of it.
		return truncateAtTell(h)
	}
	end := last.EndOffset()
	if err := h.Truncate(end); err != nil {
		return err
	}
	_, err = h.Seek(end, io.SeekStart)
	return err
}

func (m *Manager) writeBlock(h vfs.Handle, b *block.Block) error {
	if err := b.Write(h); err != nil {
		return err
	}
	m.metrics.Write.Blocks++
	m.metrics.Write.Bytes += uint64(block.HeaderSize) + b.Allocated()
	return nil
}

// WriteExternalBlocks writes each external block to a file of its own,
// named after uri and the block's index.
func (m *Manager) WriteExternalBlocks(uri string, pad float64) error {
	for i, b := range m.external {
		if uri == "" {
			return base.LookupErrorf("blockfile: can't write external blocks, since URI of main file is unknown")
		}
		buf, err := b.Materialize()
		if err != nil {
			return err
		}
		name := ExternalURI(uri, i)
		sub := NewManager(&Options{FS: m.opts.FS, Logger: m.opts.Logger, URI: name})
		nb := block.New(buf, Internal)
		if err := nb.SetOutputCompression(b.OutputCompression(), b.OutputCompressionParams()); err != nil {
			return err
		}
		nb.MarkUsed(true)
		if err := sub.Add(nb, nil); err != nil {
			return err
		}
		f, err := m.opts.FS.Create(uriPath(name))
		if err != nil {
			return err
		}
		err = sub.WriteTo(f, &RawTree{}, WriteOptions{PadBlocks: pad, URI: name})
		if err := errors.CombineErrors(err, f.Close()); err != nil {
			return err
		}
		m.opts.Logger.Infof("blockfile: wrote external block %d to %s", errors.Safe(i), name)
	}
	return nil
}

// WriteBlockIndex writes the offsets of the internal blocks at the current
// position of h. Nothing is written if there are no internal blocks or there
// is a streamed block.
func (m *Manager) WriteBlockIndex(h vfs.Handle) error {
	if m.internal.Len() == 0 || m.streamed != nil {
		return nil
	}
	offsets := make([]int64, 0, m.internal.Len())
	for _, b := range m.internal.Values() {
		off, ok := b.Offset()
		if !ok {
			return base.StateErrorf("blockfile: writing block index for unplaced block")
		}
		offsets = append(offsets, off)
	}
	return block.WriteIndex(h, offsets)
}

// ExternalFilename returns the name of the file holding external block
// index of the container named filename: the name without its extension,
// followed by the zero-padded index and ".asdf".
func ExternalFilename(filename string, index int) string {
	return strings.TrimSuffix(filename, path.Ext(filename)) + fmt.Sprintf("%04d.asdf", index)
}

// ExternalURI returns the URI of the file holding external block index of
// the container at uri.
func ExternalURI(uri string, index int) string {
	u, err := url.Parse(uri)
	if err != nil {
		dir, file := path.Split(uri)
		return path.Join(dir, ExternalFilename(file, index))
	}
	dir, file := path.Split(u.Path)
	u.Path = path.Join(dir, ExternalFilename(file, index))
	return u.String()
}

// uriPath returns the filesystem path of uri. URIs with a scheme other than
// "file" are returned unchanged.
func uriPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "" && u.Scheme != "file") {
		return uri
	}
	return u.Path
}
