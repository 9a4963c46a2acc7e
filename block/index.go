// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package block

import (
	"bytes"
	"io"
	"regexp"

	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"gopkg.in/yaml.v3"
)

// The block index is an optional trailer listing the offsets of all internal
// blocks, in file order, so that a reader can locate every block without
// scanning the file:
//
//	#ASDF BLOCK INDEX
//	%YAML 1.1
//	---
//	- 1024
//	- 5190
//	...
//
// The index is purely a read-performance optimization. A reader must never
// trust an index that fails any of its checks; it falls back to scanning the
// blocks instead.

// WriteIndex writes the block index for offsets to w.
func WriteIndex(w io.Writer, offsets []int64) error {
	list, err := yaml.Marshal(offsets)
	if err != nil {
		return errors.Wrap(err, "blockfile: encoding block index")
	}
	var buf bytes.Buffer
	buf.WriteString(IndexHeader)
	buf.WriteString("\n%YAML 1.1\n---\n")
	buf.Write(list)
	buf.WriteString("...\n")
	_, err = w.Write(buf.Bytes())
	return err
}

// IndexStatus is the outcome of looking for a block index.
type IndexStatus uint8

const (
	// IndexFound means that a well-formed index was found.
	IndexFound IndexStatus = iota
	// IndexNotSeekable means that the handle cannot be scanned backward.
	IndexNotSeekable
	// IndexNoEndMarker means that the file does not end with a YAML
	// document end marker.
	IndexNoEndMarker
	// IndexUnsafeContent means that the backward scan ran into bytes that
	// cannot be part of an index before finding the index header.
	IndexUnsafeContent
	// IndexExhausted means that the backward scan reached the end of the
	// first block without finding the index header.
	IndexExhausted
	// IndexMalformed means that the index is not a non-empty list of
	// strictly increasing, in-range offsets.
	IndexMalformed
	// IndexFirstMismatch means that the first offset is not the offset of
	// the first block.
	IndexFirstMismatch
	// IndexLastMismatch means that the last offset does not point to a
	// block that ends where the index starts.
	IndexLastMismatch
)

var indexStatusNames = [...]string{
	IndexFound:         "found",
	IndexNotSeekable:   "not-seekable",
	IndexNoEndMarker:   "no-end-marker",
	IndexUnsafeContent: "unsafe-content",
	IndexExhausted:     "exhausted",
	IndexMalformed:     "malformed",
	IndexFirstMismatch: "first-offset-mismatch",
	IndexLastMismatch:  "last-block-mismatch",
}

// String implements fmt.Stringer.
func (s IndexStatus) String() string {
	if int(s) < len(indexStatusNames) {
		return indexStatusNames[s]
	}
	return "unknown"
}

// SafeFormat implements redact.SafeFormatter.
func (s IndexStatus) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Print(redact.SafeString(s.String()))
}

// IndexScan is the result of ScanIndex.
type IndexScan struct {
	Status IndexStatus
	// Offsets are the block offsets listed in the index. They are only set
	// when Status is IndexFound.
	Offsets []int64
	// Start is the position of the index header.
	Start int64
	// FileSize is the size of the file.
	FileSize int64
}

var indexEndings = [][]byte{[]byte("..."), []byte("...\r\n"), []byte("...\n")}

// indexSafeContent matches bytes that may appear in an index.
var indexSafeContent = regexp.MustCompile(`^[\n\r\x20-\x7f]+$`)

// ScanIndex looks for a block index by reading h backward from the end, one
// block-size chunk at a time, never reading before firstBlockEnd. The
// handle's position is not preserved.
//
// The offsets are checked for range and ordering, but not against the
// blocks they point to; that is up to the caller.
func ScanIndex(h vfs.Handle, firstBlockEnd int64) (IndexScan, error) {
	if !h.Seekable() {
		return IndexScan{Status: IndexNotSeekable}, nil
	}
	fileSize, err := h.Seek(0, io.SeekEnd)
	if err != nil {
		return IndexScan{}, err
	}
	scan := IndexScan{FileSize: fileSize}
	bs := int64(h.BlockSize())
	if bs <= 0 {
		bs = vfs.DefaultBlockSize
	}

	// Read on block boundaries, making sure at least 5 bytes are read in the
	// first chunk.
	blockEnd := fileSize
	blockStart := max(0, ((blockEnd-5)/bs)*bs)
	buf, err := readRange(h, blockStart, blockEnd)
	if err != nil {
		return IndexScan{}, err
	}
	// Extra NUL bytes are allowed after the end marker, since some platforms
	// cannot truncate reliably.
	buf = bytes.TrimRight(buf, "\x00")
	content := buf
	hasEnding := false
	for _, ending := range indexEndings {
		if bytes.HasSuffix(content, ending) {
			hasEnding = true
			break
		}
	}
	if !hasEnding {
		scan.Status = IndexNoEndMarker
		return scan, nil
	}

	for {
		if i := bytes.LastIndex(content, []byte(IndexHeader)); i >= 0 {
			content = content[i:]
			scan.Start = blockStart + int64(i)
			break
		}
		if !indexSafeContent.Match(buf) {
			scan.Status = IndexUnsafeContent
			return scan, nil
		}
		if blockStart <= firstBlockEnd {
			scan.Status = IndexExhausted
			return scan, nil
		}
		blockEnd = blockStart
		blockStart = max(blockEnd-bs, firstBlockEnd)
		if buf, err = readRange(h, blockStart, blockEnd); err != nil {
			return IndexScan{}, err
		}
		content = append(buf[:len(buf):len(buf)], content...)
	}

	offsets, ok := parseIndex(content, fileSize)
	if !ok {
		scan.Status = IndexMalformed
		return scan, nil
	}
	scan.Status = IndexFound
	scan.Offsets = offsets
	return scan, nil
}

func readRange(h vfs.Handle, start, end int64) ([]byte, error) {
	if _, err := h.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, end-start)
	n, err := io.ReadFull(h, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// parseIndex decodes the YAML list following the index header line and
// checks that the offsets are in range and strictly increasing, at least one
// header apart.
func parseIndex(content []byte, fileSize int64) ([]int64, bool) {
	nl := bytes.IndexByte(content, '\n')
	if nl < 0 {
		return nil, false
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(content[nl+1:], &doc); err != nil {
		return nil, false
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, false
	}
	seq := doc.Content[0]
	if seq.Kind != yaml.SequenceNode || len(seq.Content) == 0 {
		return nil, false
	}
	offsets := make([]int64, 0, len(seq.Content))
	var last int64
	for _, n := range seq.Content {
		if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!int" {
			return nil, false
		}
		var x int64
		if err := n.Decode(&x); err != nil {
			return nil, false
		}
		if x > fileSize || x < 0 || x <= last+HeaderLen {
			return nil, false
		}
		offsets = append(offsets, x)
		last = x
	}
	return offsets, true
}
