// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines the error markers and the logging interface shared by
// the blockfile packages.
//
// # Errors
//
// Every error returned by the library is marked with exactly one of
// [ErrCorruption], [ErrIntegrity], [ErrState], [ErrLookup] or [ErrConfig] so
// that callers can classify it with errors.Is regardless of how much context
// was wrapped around it on the way up. Corruption covers anything malformed
// that was read from a container. Integrity is narrower: the payload decoded
// fine but its MD5 digest disagrees with the header.
package base
