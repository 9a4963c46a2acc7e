// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/cockroachdb/blockfile"
	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// blocksT implements the block-level tools, including both configuration
// state and the commands themselves.
type blocksT struct {
	Layout     *cobra.Command
	Index      *cobra.Command
	Verify     *cobra.Command
	Defragment *cobra.Command
	Metrics    *cobra.Command

	t *T

	compression string
	pad         float64
}

func newBlocks(t *T) *blocksT {
	b := &blocksT{t: t}

	b.Layout = &cobra.Command{
		Use:   "layout <file>",
		Short: "print the blocks of a container",
		Long: `
Print a table of the internal blocks of a container and the streamed block:
their offsets, sizes and compression.
`,
		Args: cobra.ExactArgs(1),
		Run:  b.runLayout,
	}
	b.Index = &cobra.Command{
		Use:   "index <file>",
		Short: "check the block index of a container",
		Long: `
Look for the block index at the end of a container and report whether it can
be used to locate the blocks, along with the block offsets.
`,
		Args: cobra.ExactArgs(1),
		Run:  b.runIndex,
	}
	b.Verify = &cobra.Command{
		Use:   "verify <file>",
		Short: "verify the checksums of a container's blocks",
		Long: `
Read every internal block of a container and check its payload against the
checksum recorded in its header.
`,
		Args: cobra.ExactArgs(1),
		Run:  b.runVerify,
	}
	b.Defragment = &cobra.Command{
		Use:   "defragment <in> <out>",
		Short: "rewrite a container without gaps",
		Long: `
Rewrite the tree and the internal blocks of a container to a new file, one
after the other, dropping the space left by in-place updates. External files
are not copied.
`,
		Args: cobra.ExactArgs(2),
		Run:  b.runDefragment,
	}
	b.Defragment.Flags().StringVar(
		&b.compression, "compression", blockfile.InputCompression, "compression of the rewritten blocks")
	b.Defragment.Flags().Float64Var(
		&b.pad, "pad", 0, "padding factor of the rewritten blocks (0 disables padding)")
	b.Metrics = &cobra.Command{
		Use:   "metrics <file>",
		Short: "print the metrics of reading a container",
		Args:  cobra.ExactArgs(1),
		Run:   b.runMetrics,
	}
	return b
}

func (b *blocksT) runLayout(cmd *cobra.Command, args []string) {
	m, err := b.t.open(args[0], func(o *blockfile.Options) { o.LazyLoad = true })
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer m.Close()
	if err := m.FinishReadingInternalBlocks(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}

	tbl := tablewriter.NewWriter(stdout)
	tbl.SetHeader([]string{"Block", "Storage", "Offset", "Allocated", "Used", "Data", "Compression"})
	tbl.SetAlignment(tablewriter.ALIGN_RIGHT)
	tbl.SetAutoWrapText(false)
	var allocated, used, data uint64
	for i, blk := range slices.Collect(m.InternalBlocks()) {
		if err := blk.Load(); err != nil {
			fmt.Fprintf(stderr, "block %d: %s\n", i, err)
			return
		}
		off, _ := blk.Offset()
		tbl.Append([]string{
			strconv.Itoa(i),
			blk.Storage().String(),
			strconv.FormatInt(off, 10),
			formatBytes(blk.Allocated()),
			formatBytes(blk.Used()),
			formatBytes(blk.DataSize()),
			compressionName(blk.InputCompression()),
		})
		allocated += blk.Allocated()
		used += blk.Used()
		data += blk.DataSize()
	}
	tbl.SetFooter([]string{"", "", "total", formatBytes(allocated), formatBytes(used), formatBytes(data), ""})
	tbl.Render()
}

func (b *blocksT) runIndex(cmd *cobra.Command, args []string) {
	m, err := b.t.open(args[0], func(o *blockfile.Options) { o.LazyLoad = true })
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer m.Close()

	mt := m.Metrics()
	if !mt.Index.Scanned {
		fmt.Fprintf(stdout, "index: not read\n")
	} else {
		fmt.Fprintf(stdout, "index: %s\n", mt.Index.Status)
	}
	if !mt.Index.Used {
		fmt.Fprintf(stdout, "blocks located by scanning\n")
		if err := m.FinishReadingInternalBlocks(); err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			return
		}
	}
	for i, blk := range slices.Collect(m.InternalBlocks()) {
		off, _ := blk.Offset()
		fmt.Fprintf(stdout, "%d: %d\n", i, off)
	}
}

func (b *blocksT) runVerify(cmd *cobra.Command, args []string) {
	m, err := b.t.open(args[0], func(o *blockfile.Options) {
		o.LazyLoad = true
		o.ValidateChecksums = true
	})
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer m.Close()
	if err := m.FinishReadingInternalBlocks(); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}

	var ok, failed int
	for i, blk := range slices.Collect(m.InternalBlocks()) {
		if _, err := blk.Materialize(); err != nil {
			failed++
			if errors.Is(err, blockfile.ErrIntegrity) {
				fmt.Fprintf(stdout, "block %d: checksum mismatch\n", i)
			} else {
				fmt.Fprintf(stdout, "block %d: %s\n", i, err)
			}
			continue
		}
		ok++
	}
	fmt.Fprintf(stdout, "%d blocks verified, %d failed\n", ok, failed)
}

func (b *blocksT) runDefragment(cmd *cobra.Command, args []string) {
	in, out := args[0], args[1]
	m, err := b.t.open(in, func(o *blockfile.Options) { o.AllArrayCompression = b.compression })
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer m.Close()

	for blk := range m.InternalBlocks() {
		blk.MarkUsed(true)
	}
	tree := m.Tree()
	f, err := b.t.fs.Create(out)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	err = m.WriteTo(f, tree, blockfile.WriteOptions{PadBlocks: b.pad, URI: out})
	if err := errors.CombineErrors(err, f.Close()); err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	mt := m.Metrics()
	fmt.Fprintf(stdout, "wrote %d blocks to %s\n", mt.Write.Blocks, out)
}

func (b *blocksT) runMetrics(cmd *cobra.Command, args []string) {
	m, err := b.t.open(args[0], nil)
	if err != nil {
		fmt.Fprintf(stderr, "%s\n", err)
		return
	}
	defer m.Close()
	fmt.Fprintf(stdout, "%s", m.Metrics().String())
}
