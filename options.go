// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"bytes"
	"fmt"
	"io"
	"reflect"

	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/internal/compression"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

// Logger defines an interface for writing log messages.
type Logger = base.Logger

// DefaultLogger logs to the Go stdlib logs.
type DefaultLogger = base.DefaultLogger

// CompressionParams are optional codec parameters.
type CompressionParams = compression.Params

// StorageClass says where a block's payload lives.
type StorageClass = block.StorageClass

// The storage classes.
const (
	Internal = block.Internal
	External = block.External
	Inline   = block.Inline
	Streamed = block.Streamed
)

// InputCompression is the compression label meaning "keep the compression
// the block was read with".
const InputCompression = compression.Input

// DefaultPadding is the padding factor used when padding is requested
// without an explicit factor.
const DefaultPadding = 1.1

// ReserveFunc returns the blocks referenced by a node of the tree.
type ReserveFunc func(node any) []*block.Block

// ReserveHooks maps the dynamic type of a tree node to the function that
// returns the blocks it references.
type ReserveHooks map[reflect.Type]ReserveFunc

// Options holds the parameters for opening, reading and writing containers.
type Options struct {
	// Memmap maps uncompressed block payloads from the file instead of copying
	// them, when the file supports it.
	Memmap bool

	// LazyLoad defers reading the blocks after the first one, and the payload
	// of every block, until they are requested.
	LazyLoad bool

	// ValidateChecksums checks every payload against the checksum in its
	// header when it is first read. A mismatch fails the read.
	ValidateChecksums bool

	// ReadWrite opens the file for reading and writing, so that the
	// container can be updated in place.
	ReadWrite bool

	// FS is used to open and create container files, including the files of
	// external blocks.
	FS vfs.FS

	// Logger reports discarded block indexes and other recoverable events.
	Logger Logger

	// OpenExternal opens the container holding an external block. The default
	// opens uri relative to the directory of URI with FS.
	OpenExternal func(uri string) (*Manager, error)

	// URI is the location of the container. It names the files of external
	// blocks.
	URI string

	// AllArrayStorage, if set, overrides the storage class of every block
	// when the container is written. Streamed is not allowed.
	AllArrayStorage string

	// AllArrayCompression, if not InputCompression, overrides the output
	// compression of every block when the container is written.
	AllArrayCompression string

	// AllArrayCompressionParams are the codec parameters used with
	// AllArrayCompression.
	AllArrayCompressionParams CompressionParams

	// InlineThreshold, if positive and AllArrayStorage is unset, stores
	// internal and inline blocks whose payloads are smaller than this many
	// bytes inline, and the others internally.
	InlineThreshold int

	// ReserveHooks are used by writes to find the blocks referenced by the
	// tree.
	ReserveHooks ReserveHooks

	// MaterializeLatency, if set, observes the duration of every payload read
	// in seconds.
	MaterializeLatency prometheus.Histogram
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified.
func (o *Options) EnsureDefaults() {
	if o.FS == nil {
		o.FS = vfs.Default
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger{}
	}
	if o.AllArrayCompression == "" {
		o.AllArrayCompression = InputCompression
	}
	if o.OpenExternal == nil {
		o.OpenExternal = o.openExternal
	}
}

// WithFSDefaults configures the Options to use an in-memory filesystem, for
// tests.
func (o *Options) WithFSDefaults() *Options {
	if o.FS == nil {
		o.FS = vfs.NewMem()
	}
	o.EnsureDefaults()
	return o
}

func (o *Options) openExternal(uri string) (*Manager, error) {
	name := uri
	if o.URI != "" {
		name = o.FS.PathJoin(o.FS.PathDir(uriPath(o.URI)), uriPath(uri))
	}
	sub := &Options{
		Memmap:            o.Memmap,
		LazyLoad:          o.LazyLoad,
		ValidateChecksums: o.ValidateChecksums,
		FS:                o.FS,
		Logger:            o.Logger,
		URI:               name,
	}
	return Open(o.FS, name, sub)
}

// readOptions returns the options used to read blocks.
func (o *Options) readOptions() block.ReadOptions {
	ro := block.ReadOptions{
		ValidateChecksum: o.ValidateChecksums,
		Memmap:           o.Memmap,
		LazyLoad:         o.LazyLoad,
		Logger:           o.Logger,
	}
	if o.MaterializeLatency != nil {
		ro.Latency = o.MaterializeLatency
	}
	return ro
}

// Validate checks the write policy settings.
func (o *Options) Validate() error {
	if o.AllArrayStorage != "" {
		c, err := block.ParseStorageClass(o.AllArrayStorage)
		if err != nil {
			return err
		}
		if c == Streamed {
			return base.ConfigErrorf("blockfile: invalid value for all_array_storage: %q", errors.Safe(o.AllArrayStorage))
		}
	}
	if _, err := compression.Validate(o.AllArrayCompression); err != nil {
		return err
	}
	if o.InlineThreshold < 0 {
		return base.ConfigErrorf("blockfile: invalid inline threshold %d", errors.Safe(o.InlineThreshold))
	}
	return nil
}

// String returns a textual representation of the options, in the format
// accepted by ParseOptions.
func (o *Options) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "memmap: %t\n", o.Memmap)
	fmt.Fprintf(&buf, "lazy_load: %t\n", o.LazyLoad)
	fmt.Fprintf(&buf, "validate_checksums: %t\n", o.ValidateChecksums)
	if o.URI != "" {
		fmt.Fprintf(&buf, "uri: %q\n", o.URI)
	}
	if o.AllArrayStorage != "" {
		fmt.Fprintf(&buf, "all_array_storage: %s\n", o.AllArrayStorage)
	}
	fmt.Fprintf(&buf, "all_array_compression: %q\n", o.AllArrayCompression)
	if o.AllArrayCompressionParams.Level != 0 {
		fmt.Fprintf(&buf, "all_array_compression_level: %d\n", o.AllArrayCompressionParams.Level)
	}
	fmt.Fprintf(&buf, "inline_threshold: %d\n", o.InlineThreshold)
	return buf.String()
}

// optionsDoc is the YAML form of Options.
type optionsDoc struct {
	Memmap                   *bool   `yaml:"memmap"`
	LazyLoad                 *bool   `yaml:"lazy_load"`
	ValidateChecksums        *bool   `yaml:"validate_checksums"`
	URI                      *string `yaml:"uri"`
	AllArrayStorage          *string `yaml:"all_array_storage"`
	AllArrayCompression      *string `yaml:"all_array_compression"`
	AllArrayCompressionLevel *int    `yaml:"all_array_compression_level"`
	InlineThreshold          *int    `yaml:"inline_threshold"`
}

// Parse parses the YAML representation of options into o. Keys that are not
// present keep their current values. Unknown keys are an error.
func (o *Options) Parse(data []byte) error {
	var doc optionsDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return base.ConfigErrorf("blockfile: parsing options: %v", err)
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setBool(&o.Memmap, doc.Memmap)
	setBool(&o.LazyLoad, doc.LazyLoad)
	setBool(&o.ValidateChecksums, doc.ValidateChecksums)
	if doc.URI != nil {
		o.URI = *doc.URI
	}
	if doc.AllArrayStorage != nil {
		o.AllArrayStorage = *doc.AllArrayStorage
	}
	if doc.AllArrayCompression != nil {
		o.AllArrayCompression = *doc.AllArrayCompression
	}
	if doc.AllArrayCompressionLevel != nil {
		o.AllArrayCompressionParams.Level = *doc.AllArrayCompressionLevel
	}
	if doc.InlineThreshold != nil {
		o.InlineThreshold = *doc.InlineThreshold
	}
	return o.Validate()
}

// ParseOptions returns Options parsed from their YAML representation, with
// defaults for everything not set.
func ParseOptions(data []byte) (*Options, error) {
	o := &Options{}
	if err := o.Parse(data); err != nil {
		return nil, err
	}
	o.EnsureDefaults()
	return o, nil
}

// WriteOptions control how a container is written.
type WriteOptions struct {
	// PadBlocks is the factor by which the space reserved for each block,
	// rounded up to whole filesystem blocks, exceeds its content, leaving room
	// for in-place updates. Zero disables padding.
	PadBlocks float64

	// OmitBlockIndex disables writing the block index. An index is never
	// written for a container with a streamed block.
	OmitBlockIndex bool

	// URI is the location of the file being written, which names the files
	// of external blocks. It defaults to Options.URI.
	URI string
}

// BlockOptions are the per-payload settings used when the payload is
// written.
type BlockOptions struct {
	Storage           StorageClass
	Compression       string
	CompressionParams CompressionParams
}
