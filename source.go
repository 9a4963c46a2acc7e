// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"bytes"
	"strconv"

	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"gopkg.in/yaml.v3"
)

// SourceKind says how a tree refers to a block.
type SourceKind uint8

const (
	// SourceInternal refers to an internal block by index, or to the
	// streamed block with index -1.
	SourceInternal SourceKind = iota
	// SourceExternal refers to the first block of another file by URI.
	SourceExternal
	// SourceInline carries the payload itself.
	SourceInline
)

// Source is the reference to a block stored in a tree. In YAML it is an
// integer, a string, or a sequence of byte values.
type Source struct {
	kind  SourceKind
	index int
	uri   string
	data  []byte
}

// InternalSource refers to the internal block at index i.
func InternalSource(i int) Source { return Source{kind: SourceInternal, index: i} }

// StreamedSource refers to the streamed block.
func StreamedSource() Source { return Source{kind: SourceInternal, index: -1} }

// ExternalSource refers to the first block of the file at uri. A relative
// uri is resolved against the directory of the containing file.
func ExternalSource(uri string) Source { return Source{kind: SourceExternal, uri: uri} }

// InlineSource carries data as the payload.
func InlineSource(data []byte) Source { return Source{kind: SourceInline, data: data} }

// Kind returns the kind of reference.
func (s Source) Kind() SourceKind { return s.kind }

// Index returns the index of an internal source.
func (s Source) Index() int { return s.index }

// URI returns the URI of an external source.
func (s Source) URI() string { return s.uri }

// Data returns the payload of an inline source.
func (s Source) Data() []byte { return s.data }

// Equal reports whether s and o refer to the same block.
func (s Source) Equal(o Source) bool {
	return s.kind == o.kind && s.index == o.index && s.uri == o.uri && bytes.Equal(s.data, o.data)
}

// SafeFormat implements redact.SafeFormatter.
func (s Source) SafeFormat(w redact.SafePrinter, _ rune) {
	switch s.kind {
	case SourceInternal:
		if s.index == -1 {
			w.Print(redact.SafeString("streamed"))
			return
		}
		w.Printf("internal:%d", s.index)
	case SourceExternal:
		w.Printf("external:%s", s.uri)
	case SourceInline:
		w.Printf("inline:%d bytes", len(s.data))
	}
}

// String implements fmt.Stringer.
func (s Source) String() string {
	return redact.StringWithoutMarkers(s)
}

// MarshalYAML implements yaml.Marshaler.
func (s Source) MarshalYAML() (interface{}, error) {
	switch s.kind {
	case SourceInternal:
		return s.index, nil
	case SourceExternal:
		return s.uri, nil
	}
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, c := range s.data {
		n.Content = append(n.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!int",
			Value: strconv.Itoa(int(c)),
		})
	}
	return n, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Source) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!int" {
			var i int
			if err := n.Decode(&i); err != nil {
				return err
			}
			if i < -1 {
				return base.LookupErrorf("blockfile: invalid source id %d", errors.Safe(i))
			}
			*s = InternalSource(i)
			return nil
		}
		var uri string
		if err := n.Decode(&uri); err != nil {
			return err
		}
		*s = ExternalSource(uri)
		return nil
	case yaml.SequenceNode:
		var vals []int
		if err := n.Decode(&vals); err != nil {
			return err
		}
		data := make([]byte, len(vals))
		for i, v := range vals {
			if v < 0 || v > 255 {
				return base.CorruptionErrorf("blockfile: inline data value %d out of range", errors.Safe(v))
			}
			data[i] = byte(v)
		}
		*s = InlineSource(data)
		return nil
	}
	return base.CorruptionErrorf("blockfile: invalid block source at line %d", errors.Safe(n.Line))
}
