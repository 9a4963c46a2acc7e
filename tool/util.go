// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/blockfile/internal/humanize"
)

var stdout = io.Writer(os.Stdout)
var stderr = io.Writer(os.Stderr)

func compressionName(label string) string {
	if label == "" {
		return "none"
	}
	return label
}

func formatBytes(n uint64) string {
	return fmt.Sprintf("%d (%s)", n, humanize.Bytes.Uint64(n))
}
