// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package invariants holds assertions that are only compiled in when the
// "invariants" or "race" build tags are set.
package invariants

import "github.com/cockroachdb/errors"

// Interval is a half-open byte range [Start, End).
type Interval struct {
	Start, End uint64
}

// CheckDisjoint panics in invariant builds if any two of the given sorted
// intervals overlap. Callers use it to assert that a block layout never
// places two blocks on top of each other.
func CheckDisjoint(intervals []Interval) {
	if !Enabled {
		return
	}
	for i := 1; i < len(intervals); i++ {
		if intervals[i].Start < intervals[i-1].End {
			panic(errors.AssertionFailedf("overlapping intervals [%d,%d) and [%d,%d)",
				intervals[i-1].Start, intervals[i-1].End, intervals[i].Start, intervals[i].End))
		}
	}
}
