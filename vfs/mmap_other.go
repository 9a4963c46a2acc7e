// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !unix

package vfs

import (
	"os"

	"github.com/cockroachdb/errors"
)

const mmapSupported = false

func mmapFile(*os.File, int64, int) ([]byte, func() error, error) {
	return nil, nil, errors.New("vfs: memory mapping is not supported on this platform")
}

func fileBlockSize(*os.File) int { return DefaultBlockSize }
