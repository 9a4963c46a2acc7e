// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package compression is the registry of block codecs. A codec is identified
// on disk by a 4-byte label stored in the block header; an all-zero label
// means the payload is stored as-is.
package compression

import (
	"bytes"
	"sort"
	"sync"

	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/errors"
)

// LabelLen is the width of the compression label in a block header.
const LabelLen = 4

// Input is the pseudo-label meaning "write with whatever compression the
// block was read with". It is never stored on disk.
const Input = "input"

// DefaultChunkSize is the decoded size of one chunk for codecs that frame
// their output in chunks (lz4).
const DefaultChunkSize = 1 << 22

// Params are optional codec parameters. The zero value selects each codec's
// default.
type Params struct {
	// Level is the codec-specific compression level. Zero means default.
	Level int
}

// Compressor encodes a payload.
type Compressor interface {
	// Compress appends the encoded form of src to dst[:0] and returns it.
	Compress(dst, src []byte) ([]byte, error)
	// Close must be called when the Compressor is no longer needed.
	Close()
}

// Decompressor decodes a payload.
type Decompressor interface {
	// DecompressInto decodes src into dst. len(dst) must be exactly the
	// decoded size recorded in the block header.
	DecompressInto(dst, src []byte) error
	// Close must be called when the Decompressor is no longer needed.
	Close()
}

// Algorithm describes a registered codec.
type Algorithm struct {
	// Label is the on-disk label, at most LabelLen bytes of ASCII.
	Label string
	// NewCompressor returns a Compressor configured with p.
	NewCompressor func(p Params) Compressor
	// NewDecompressor returns a Decompressor.
	NewDecompressor func() Decompressor
}

var registry struct {
	sync.RWMutex
	algorithms map[string]Algorithm
}

// Register adds a codec to the registry, replacing any codec with the same
// label.
func Register(a Algorithm) {
	if len(a.Label) == 0 || len(a.Label) > LabelLen || a.Label == Input {
		panic(errors.AssertionFailedf("invalid compression label %q", a.Label))
	}
	registry.Lock()
	defer registry.Unlock()
	if registry.algorithms == nil {
		registry.algorithms = make(map[string]Algorithm)
	}
	registry.algorithms[a.Label] = a
}

// Lookup returns the codec registered under label.
func Lookup(label string) (Algorithm, bool) {
	registry.RLock()
	defer registry.RUnlock()
	a, ok := registry.algorithms[label]
	return a, ok
}

// Labels returns the registered labels in sorted order.
func Labels() []string {
	registry.RLock()
	defer registry.RUnlock()
	labels := make([]string, 0, len(registry.algorithms))
	for l := range registry.algorithms {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Validate canonicalizes a label: trailing NULs are stripped, the empty label
// means no compression, and Input is accepted. Any other unregistered label
// is a configuration error.
func Validate(label string) (string, error) {
	label = string(bytes.TrimRight([]byte(label), "\x00"))
	if label == "" || label == Input {
		return label, nil
	}
	if _, ok := Lookup(label); !ok {
		return "", base.ConfigErrorf("blockfile: unsupported compression type %q (supported: %v)",
			errors.Safe(label), errors.Safe(Labels()))
	}
	return label, nil
}

// ToHeader returns the on-disk form of label.
func ToHeader(label string) [LabelLen]byte {
	var h [LabelLen]byte
	copy(h[:], label)
	return h
}

// FromHeader decodes an on-disk label. An unknown label is reported as
// corruption, since it was read from a file.
func FromHeader(h [LabelLen]byte) (string, error) {
	label, err := Validate(string(h[:]))
	if err != nil {
		return "", base.MarkCorruptionError(err)
	}
	if label == Input {
		return "", base.CorruptionErrorf("blockfile: pseudo-label %q stored in block header", label)
	}
	return label, nil
}

// Compress encodes src with the codec registered under label. The empty label
// returns a copy of src, as does an empty src under any label.
func Compress(label string, dst, src []byte, p Params) ([]byte, error) {
	if label == "" || len(src) == 0 {
		return append(dst[:0], src...), nil
	}
	a, ok := Lookup(label)
	if !ok {
		return nil, base.ConfigErrorf("blockfile: unknown compression %q", errors.Safe(label))
	}
	c := a.NewCompressor(p)
	defer c.Close()
	return c.Compress(dst, src)
}

// Decompress decodes src into a new buffer of decodedLen bytes.
func Decompress(label string, src []byte, decodedLen int) ([]byte, error) {
	dst := make([]byte, decodedLen)
	if label == "" || (decodedLen == 0 && len(src) == 0) {
		if len(src) != decodedLen {
			return nil, base.CorruptionErrorf("blockfile: stored payload is %d bytes, expected %d",
				errors.Safe(len(src)), errors.Safe(decodedLen))
		}
		copy(dst, src)
		return dst, nil
	}
	a, ok := Lookup(label)
	if !ok {
		return nil, base.ConfigErrorf("blockfile: unknown compression %q", errors.Safe(label))
	}
	d := a.NewDecompressor()
	defer d.Close()
	if err := d.DecompressInto(dst, src); err != nil {
		return nil, base.MarkCorruptionError(errors.Wrapf(err, "blockfile: decompressing %s payload", errors.Safe(label)))
	}
	return dst, nil
}

func init() {
	Register(Algorithm{Label: "zlib", NewCompressor: newZlibCompressor, NewDecompressor: newZlibDecompressor})
	Register(Algorithm{Label: "bzp2", NewCompressor: newBzip2Compressor, NewDecompressor: newBzip2Decompressor})
	Register(Algorithm{Label: "lz4", NewCompressor: newLZ4Compressor, NewDecompressor: newLZ4Decompressor})
	Register(Algorithm{Label: "zstd", NewCompressor: newZstdCompressor, NewDecompressor: newZstdDecompressor})
	Register(Algorithm{Label: "snpy", NewCompressor: newSnappyCompressor, NewDecompressor: newSnappyDecompressor})
	Register(Algorithm{Label: "mnlz", NewCompressor: newMinlzCompressor, NewDecompressor: newMinlzDecompressor})
}

// checkDecodedLen reports a decoder that produced a different number of bytes
// than the header promised.
func checkDecodedLen(label string, got, want int) error {
	if got != want {
		return base.CorruptionErrorf("blockfile: %s payload decoded to %d bytes, expected %d",
			errors.Safe(label), errors.Safe(got), errors.Safe(want))
	}
	return nil
}
