// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"bytes"
	"io"
	"iter"
	"slices"

	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
)

// FileMagic starts the header line of every container.
const FileMagic = "#ASDF"

// DefaultFileHeader is written before a tree that has no header of its own.
const DefaultFileHeader = "#ASDF 1.0.0\n#ASDF_STANDARD 1.5.0\n"

// yamlMagic starts the tree.
const yamlMagic = "%YAML"

// Tree is the metadata written ahead of the blocks. Parsing and serializing
// the tree is up to the caller; the Manager only needs to write it, and to
// walk its nodes to find the blocks still in use.
type Tree interface {
	// WriteTree writes the file header and the tree.
	WriteTree(w io.Writer) error
	// Nodes returns an iterator over the nodes of the tree.
	Nodes() iter.Seq[any]
}

// RawTree is a Tree held as bytes.
type RawTree struct {
	// Header is the header line and the comment lines that precede the tree.
	// DefaultFileHeader is written if it is empty.
	Header []byte
	// YAML is the tree document, including its end marker. It may be empty.
	YAML []byte
	// Refs are reported as the nodes of the tree.
	Refs []any
}

var _ Tree = (*RawTree)(nil)

// WriteTree implements Tree.
func (t *RawTree) WriteTree(w io.Writer) error {
	header := t.Header
	if len(header) == 0 {
		header = []byte(DefaultFileHeader)
	}
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(t.YAML)
	return err
}

// Nodes implements Tree.
func (t *RawTree) Nodes() iter.Seq[any] {
	return slices.Values(t.Refs)
}

// treeReader reads a handle one byte at a time. On a seekable handle it
// reads ahead in chunks, and sync moves the handle back to the logical
// position. Non-seekable handles are already buffered.
type treeReader struct {
	h   vfs.Handle
	buf []byte
	off int
	pos int64
}

func (r *treeReader) readByte() (byte, error) {
	if r.off < len(r.buf) {
		c := r.buf[r.off]
		r.off++
		r.pos++
		return c, nil
	}
	if !r.h.Seekable() {
		var b [1]byte
		if _, err := io.ReadFull(r.h, b[:]); err != nil {
			return 0, err
		}
		r.pos++
		return b[0], nil
	}
	if cap(r.buf) == 0 {
		r.buf = make([]byte, max(r.h.BlockSize(), 512))
	}
	n, err := r.h.Read(r.buf[:cap(r.buf)])
	if n == 0 {
		if err == nil {
			err = io.ErrNoProgress
		}
		return 0, err
	}
	r.buf, r.off = r.buf[:n], 0
	return r.readByte()
}

// readFull reads len(p) bytes, or fewer at end of file.
func (r *treeReader) readFull(p []byte) (int, error) {
	for i := range p {
		c, err := r.readByte()
		if err == io.EOF {
			return i, nil
		} else if err != nil {
			return i, err
		}
		p[i] = c
	}
	return len(p), nil
}

// readLine reads through the next newline. At end of file it returns what
// was read.
func (r *treeReader) readLine(dst []byte) ([]byte, error) {
	for {
		c, err := r.readByte()
		if err == io.EOF {
			return dst, nil
		} else if err != nil {
			return dst, err
		}
		dst = append(dst, c)
		if c == '\n' {
			return dst, nil
		}
	}
}

// sync positions a seekable handle at the logical position.
func (r *treeReader) sync() error {
	if !r.h.Seekable() {
		return nil
	}
	r.buf, r.off = r.buf[:0], 0
	_, err := r.h.Seek(r.pos, io.SeekStart)
	return err
}

// ReadTree reads the header, comments and tree of a container from h. It
// reports whether blocks follow the tree; if so, h is left just after the
// magic of the first block.
func ReadTree(h vfs.Handle) (*RawTree, bool, error) {
	r := &treeReader{h: h}
	t := &RawTree{}
	var err error
	if t.Header, err = r.readLine(nil); err != nil {
		return nil, false, err
	}
	if !bytes.HasPrefix(t.Header, []byte(FileMagic)) {
		return nil, false, base.CorruptionErrorf("blockfile: does not appear to be a container file")
	}

	// Comment and blank lines precede the tree or the blocks.
	var token [len(yamlMagic)]byte
	for {
		n, err := r.readFull(token[:1])
		if err != nil {
			return nil, false, err
		}
		if n == 0 {
			return t, false, r.sync()
		}
		switch token[0] {
		case '#':
			line, err := r.readLine(token[:1])
			if err != nil {
				return nil, false, err
			}
			t.Header = append(t.Header, line...)
			continue
		case '\n', '\r':
			t.Header = append(t.Header, token[0])
			continue
		case yamlMagic[0]:
			n, err := r.readFull(token[1:])
			if err != nil {
				return nil, false, err
			}
			if string(token[:1+n]) != yamlMagic {
				return nil, false, base.CorruptionErrorf("blockfile: unexpected content %q after file header",
					errors.Safe(token[:1+n]))
			}
			t.YAML = append(t.YAML, token[:]...)
		case block.Magic[0]:
			n, err := r.readFull(token[1:block.MagicLen])
			if err != nil {
				return nil, false, err
			}
			if string(token[:1+n]) != block.Magic {
				return nil, false, base.CorruptionErrorf("blockfile: unexpected content %q after file header",
					errors.Safe(token[:1+n]))
			}
			return t, true, r.sync()
		case 0:
			found, err := skipPadding(r)
			if err != nil {
				return nil, false, err
			}
			return t, found, r.sync()
		default:
			return nil, false, base.CorruptionErrorf("blockfile: unexpected content %q after file header",
				errors.Safe(token[:1]))
		}
		break
	}

	if t.YAML, err = readYAML(r, t.YAML); err != nil {
		return nil, false, err
	}
	found, err := seekMagic(r)
	if err != nil {
		return nil, false, err
	}
	return t, found, r.sync()
}

// readYAML reads the rest of the tree document, through its end marker: a
// line holding "..." followed by a newline or the end of the file.
func readYAML(r *treeReader, doc []byte) ([]byte, error) {
	for {
		c, err := r.readByte()
		if err == io.EOF {
			if bytes.HasSuffix(doc, []byte("\n...")) {
				return doc, nil
			}
			return nil, base.CorruptionErrorf("blockfile: tree is missing its end marker")
		} else if err != nil {
			return nil, err
		}
		doc = append(doc, c)
		if c == '\n' && (bytes.HasSuffix(doc, []byte("\n...\n")) || bytes.HasSuffix(doc, []byte("\n...\r\n"))) {
			return doc, nil
		}
	}
}

// skipPadding consumes the zero bytes reserved after a header that has no
// tree, and the block magic that ends them. It returns false at the end of
// the file.
func skipPadding(r *treeReader) (bool, error) {
	for {
		c, err := r.readByte()
		if err == io.EOF {
			return false, nil
		} else if err != nil {
			return false, err
		}
		if c == 0 {
			continue
		}
		var token [block.MagicLen]byte
		token[0] = c
		n, err := r.readFull(token[1:])
		if err != nil {
			return false, err
		}
		if string(token[:1+n]) != block.Magic {
			return false, base.CorruptionErrorf("blockfile: unexpected content %q after file header",
				errors.Safe(token[:1+n]))
		}
		return true, nil
	}
}

// seekMagic consumes bytes up to and including the first block magic. It
// returns false at the end of the file.
func seekMagic(r *treeReader) (bool, error) {
	var window [block.MagicLen]byte
	n := 0
	for {
		c, err := r.readByte()
		if err == io.EOF {
			return false, nil
		} else if err != nil {
			return false, err
		}
		copy(window[:], window[1:])
		window[block.MagicLen-1] = c
		n++
		if n >= block.MagicLen && string(window[:]) == block.Magic {
			return true, nil
		}
	}
}

// DetectFormat reports whether h starts with the header line of a
// container. The position of h is unchanged.
func DetectFormat(h vfs.Handle) (bool, error) {
	p, err := h.Peek(len(FileMagic))
	if err != nil {
		return false, err
	}
	return bytes.Equal(p, []byte(FileMagic)), nil
}
