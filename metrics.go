// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/blockfile/internal/humanize"
	"github.com/cockroachdb/redact"
)

// Metrics holds the counters of a Manager.
type Metrics struct {
	// State is the scan state of the internal blocks.
	State string
	Blocks struct {
		// The number of blocks of each storage class.
		Internal int
		External int
		Inline   int
		Streamed int
	}
	Index struct {
		// Scanned is set once the file has been searched for a block index.
		Scanned bool
		// Status is the outcome of the last attempt to read the block index.
		Status block.IndexStatus
		// Used is set when the index replaced the sequential scan.
		Used bool
		// Placeholders is the number of blocks synthesized from the index
		// without reading their headers.
		Placeholders int
	}
	Write struct {
		// Blocks is the number of blocks written.
		Blocks int64
		// Bytes is the number of bytes written for blocks, headers included.
		Bytes uint64
		// Skipped is the number of blocks not rewritten by in-place updates
		// because they were unchanged.
		Skipped int64
	}
	// LayoutDeclines is the number of in-place updates that fell back to a
	// serial rewrite.
	LayoutDeclines int64
}

// Pretty-print the metrics:
//
//	state: fully-scanned
//	blocks: 3 internal, 0 external, 1 inline, 0 streamed
//	index: found (used, 1 placeholders)
//	write: 3 blocks, 12KB, 1 skipped, 0 layout declines
func (m Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("state: %s\n", redact.SafeString(m.State))
	w.Printf("blocks: %d internal, %d external, %d inline, %d streamed\n",
		m.Blocks.Internal, m.Blocks.External, m.Blocks.Inline, m.Blocks.Streamed)
	if m.Index.Scanned {
		w.Printf("index: %s", m.Index.Status)
	} else {
		w.Printf("index: not read")
	}
	if m.Index.Used {
		w.Printf(" (used, %d placeholders)", m.Index.Placeholders)
	}
	w.Printf("\n")
	w.Printf("write: %s blocks, %s, %d skipped, %d layout declines\n",
		humanize.Count.Int64(m.Write.Blocks), humanize.Bytes.Uint64(m.Write.Bytes),
		m.Write.Skipped, m.LayoutDeclines)
}

// String implements fmt.Stringer.
func (m Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}
