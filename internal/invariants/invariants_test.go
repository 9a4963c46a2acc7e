// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package invariants

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckDisjoint(t *testing.T) {
	CheckDisjoint(nil)
	CheckDisjoint([]Interval{{0, 10}, {10, 20}, {25, 30}})
	overlapping := []Interval{{0, 10}, {9, 20}}
	if Enabled {
		require.Panics(t, func() { CheckDisjoint(overlapping) })
	} else {
		require.NotPanics(t, func() { CheckDisjoint(overlapping) })
	}
}
