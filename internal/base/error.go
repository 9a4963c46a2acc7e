// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrCorruption is a marker to indicate that data in a container (a block
// header, the block sequence, a compressed payload) is malformed.
var ErrCorruption = errors.New("blockfile: corruption")

// ErrIntegrity is a marker for a block whose payload does not match the
// checksum recorded in its header.
var ErrIntegrity = errors.New("blockfile: integrity")

// ErrState is a marker for API misuse: a second streamed block, writing a
// block without a payload, using a released data callback.
var ErrState = errors.New("blockfile: invalid state")

// ErrLookup is a marker for a block source or block that cannot be resolved.
var ErrLookup = errors.New("blockfile: not found")

// ErrConfig is a marker for an invalid setting (unknown storage class,
// unknown compression label).
var ErrConfig = errors.New("blockfile: invalid configuration")

// MarkCorruptionError marks given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// CorruptionErrorf formats according to a format specifier and returns
// the string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// IntegrityErrorf returns an error marked with ErrIntegrity.
func IntegrityErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrIntegrity)
}

// StateErrorf returns an error marked with ErrState.
func StateErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrState)
}

// LookupErrorf returns an error marked with ErrLookup.
func LookupErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrLookup)
}

// ConfigErrorf returns an error marked with ErrConfig.
func ConfigErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfig)
}
