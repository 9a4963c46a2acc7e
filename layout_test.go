// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/datadriven"
	"github.com/stretchr/testify/require"
)

func TestCalculatePadding(t *testing.T) {
	for _, tc := range []struct {
		content   int64
		pad       float64
		blockSize int64
		want      int64
	}{
		{content: 100, pad: 0, blockSize: 16, want: 0},
		{content: 64, pad: 1.1, blockSize: 16, want: 32},
		{content: 0, pad: 1.1, blockSize: 4096, want: 4096},
		{content: 4096, pad: 1, blockSize: 4096, want: 4096},
		{content: 10, pad: 1.5, blockSize: 0, want: 6},
	} {
		t.Run(fmt.Sprintf("%d/%g/%d", tc.content, tc.pad, tc.blockSize), func(t *testing.T) {
			require.Equal(t, tc.want, calculatePadding(tc.content, tc.pad, tc.blockSize))
		})
	}
}

// TestLayout runs the in-place layout planner over blocks described one per
// line:
//
//	fixed <name> <offset> <payload-size>
//	free <name> <payload-size>
//	streamed <name>
func TestLayout(t *testing.T) {
	datadriven.RunTest(t, "testdata/layout", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "layout":
			var treeSize, blockSize int64
			pad := 0.0
			td.ScanArgs(t, "tree", &treeSize)
			blockSize = 16
			td.MaybeScanArgs(t, "blocksize", &blockSize)
			if td.HasArg("pad") {
				var s string
				td.ScanArgs(t, "pad", &s)
				var err error
				pad, err = strconv.ParseFloat(s, 64)
				require.NoError(t, err)
			}

			m := NewManager(nil)
			names := make(map[*block.Block]string)
			for line := range crstrings.LinesSeq(td.Input) {
				f := strings.Fields(line)
				var b *block.Block
				switch f[0] {
				case "fixed":
					b = block.New(block.NewBuffer(make([]byte, atoi(t, f[3]))), Internal)
					b.SetOffset(int64(atoi(t, f[2])))
				case "free":
					b = block.New(block.NewBuffer(make([]byte, atoi(t, f[2]))), Internal)
				case "streamed":
					b = block.New(nil, Streamed)
				default:
					td.Fatalf(t, "unknown block kind %q", f[0])
				}
				require.NoError(t, m.Add(b, nil))
				names[b] = f[1]
			}

			ok, err := m.calculateUpdatedLayout(treeSize, pad, blockSize)
			if err != nil {
				return err.Error()
			}
			if !ok {
				return "declined\n"
			}
			var buf strings.Builder
			for b := range m.InternalBlocks() {
				off, _ := b.Offset()
				if b.Storage() == Streamed {
					fmt.Fprintf(&buf, "%s: %d (streamed)\n", names[b], off)
					continue
				}
				fmt.Fprintf(&buf, "%s: %d-%d\n", names[b], off, off+b.Size())
			}
			return buf.String()

		default:
			td.Fatalf(t, "unknown command %q", td.Cmd)
			return ""
		}
	})
}

func atoi(t *testing.T, s string) int {
	t.Helper()
	v, err := strconv.Atoi(s)
	require.NoError(t, err)
	return v
}
