// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"cmp"
	"math"
	"slices"

	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/blockfile/internal/invariants"
)

// calculatePadding returns the number of bytes to reserve after content
// bytes so that the content plus padding is pad times the content, rounded up
// to whole blocks of blockSize, plus one more block. A pad of zero disables
// padding.
func calculatePadding(content int64, pad float64, blockSize int64) int64 {
	if pad <= 0 {
		return 0
	}
	if blockSize <= 0 {
		blockSize = 1
	}
	newSize := (int64(math.Ceil(float64(content)*pad/float64(blockSize))) + 1) * blockSize
	return max(newSize-content, 0)
}

// layoutEntry is the extent of a placed block. end is the offset plus the
// header and used sizes; the allocated space beyond it is free for reuse.
type layoutEntry struct {
	start, end int64
	b          *block.Block
}

func compareEntries(a, b layoutEntry) int {
	return cmp.Or(cmp.Compare(a.start, b.start), cmp.Compare(a.end, b.end))
}

// calculateUpdatedLayout places the internal blocks for an in-place update
// that writes a tree of treeSize bytes at the start of the file. Blocks that
// already have an offset keep it unless the tree or an earlier block now
// covers it; the others are placed first-fit in the gaps between them, or
// after the last one. The streamed block goes after everything else.
//
// It returns false, leaving offsets in an unspecified state, when the file
// is better rewritten serially.
func (m *Manager) calculateUpdatedLayout(treeSize int64, pad float64, blockSize int64) (bool, error) {
	var fixed []layoutEntry
	var free []*block.Block
	for _, b := range m.internal.Values() {
		if err := b.UpdateSize(); err != nil {
			return false, err
		}
		if off, ok := b.Offset(); ok {
			fixed = append(fixed, layoutEntry{start: off, end: off + b.Size(), b: b})
		} else {
			free = append(free, b)
		}
	}
	if len(fixed) == 0 {
		return false, nil
	}
	slices.SortFunc(fixed, compareEntries)

	// unfix moves a placed block to the free list. Its payload may live in the
	// region about to be overwritten, so it is copied out first.
	unfix := func(i int) error {
		e := fixed[i]
		buf, err := e.b.Materialize()
		if err != nil {
			return err
		}
		buf.Detach()
		fixed = slices.Delete(fixed, i, i+1)
		free = append(free, e.b)
		return nil
	}
	fix := func(b *block.Block, offset int64) {
		b.SetOffset(offset)
		fixed = append(fixed, layoutEntry{start: offset, end: offset + b.Size(), b: b})
		slices.SortFunc(fixed, compareEntries)
	}

	// Make room for the tree.
	for len(fixed) > 0 && fixed[0].start < treeSize {
		if err := unfix(0); err != nil {
			return false, err
		}
	}
	// A block whose payload grew, for example because its compression
	// changed, may now run into the next one.
	for i := 1; i < len(fixed); {
		if fixed[i].start < fixed[i-1].end {
			if err := unfix(i); err != nil {
				return false, err
			}
			continue
		}
		i++
	}
	if len(fixed) == 0 {
		return false, nil
	}

	for len(free) > 0 {
		b := free[len(free)-1]
		free = free[:len(free)-1]
		size := b.Size()
		lastEnd := treeSize
		placed := false
		for _, e := range fixed {
			if e.start-lastEnd >= size {
				fix(b, lastEnd)
				placed = true
				break
			}
			lastEnd = e.end
		}
		if !placed {
			last := fixed[len(fixed)-1]
			fix(b, lastEnd+calculatePadding(last.b.Size(), pad, blockSize))
		}
	}

	if m.streamed != nil {
		last := fixed[len(fixed)-1]
		m.streamed.SetOffset(last.end + calculatePadding(last.b.Size(), pad, blockSize))
	}
	m.sortInternalBlocks()

	if invariants.Enabled {
		intervals := make([]invariants.Interval, len(fixed))
		for i, e := range fixed {
			intervals[i] = invariants.Interval{Start: uint64(e.start), End: uint64(e.end)}
		}
		invariants.CheckDisjoint(intervals)
	}
	return true, nil
}
