// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import "github.com/cockroachdb/blockfile/internal/base"

// The error categories. Errors returned by this package and its
// subpackages are marked with one of them where it applies; test for them
// with errors.Is.
var (
	// ErrCorruption marks malformed files: bad magic, truncated headers,
	// unknown compression, and malformed trees.
	ErrCorruption = base.ErrCorruption
	// ErrIntegrity marks payloads that do not match their checksum.
	ErrIntegrity = base.ErrIntegrity
	// ErrState marks operations that are invalid in the current state, such
	// as reading through a closed file or adding a second streamed block.
	ErrState = base.ErrState
	// ErrLookup marks references to blocks that do not exist.
	ErrLookup = base.ErrLookup
	// ErrConfig marks invalid options.
	ErrConfig = base.ErrConfig
)
