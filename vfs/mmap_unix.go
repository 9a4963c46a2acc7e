// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build unix

package vfs

import (
	"os"

	"golang.org/x/sys/unix"
)

const mmapSupported = true

func mmapFile(f *os.File, offset int64, length int) ([]byte, func() error, error) {
	if length == 0 {
		return []byte{}, nil, nil
	}
	pageSize := int64(unix.Getpagesize())
	aligned := offset &^ (pageSize - 1)
	delta := int(offset - aligned)
	mem, err := unix.Mmap(int(f.Fd()), aligned, length+delta, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return mem[delta : delta+length : delta+length], func() error { return unix.Munmap(mem) }, nil
}

func fileBlockSize(f *os.File) int {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil || st.Blksize <= 0 {
		return DefaultBlockSize
	}
	return int(st.Blksize)
}
