// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorMarkers(t *testing.T) {
	markers := []error{ErrCorruption, ErrIntegrity, ErrState, ErrLookup, ErrConfig}
	for _, tc := range []struct {
		err  error
		mark error
	}{
		{CorruptionErrorf("bad magic %x", 1), ErrCorruption},
		{IntegrityErrorf("checksum mismatch"), ErrIntegrity},
		{StateErrorf("second streamed block"), ErrState},
		{LookupErrorf("no block %d", 3), ErrLookup},
		{ConfigErrorf("unknown storage %q", "foo"), ErrConfig},
	} {
		wrapped := errors.Wrap(tc.err, "context")
		for _, m := range markers {
			require.Equal(t, m == tc.mark, errors.Is(wrapped, m), "%v is %v", tc.err, m)
		}
	}
}

func TestMarkCorruptionError(t *testing.T) {
	err := errors.New("short read")
	marked := MarkCorruptionError(err)
	require.True(t, errors.Is(marked, ErrCorruption))
	require.Equal(t, marked, MarkCorruptionError(marked))
	require.Equal(t, "short read", marked.Error())
}
