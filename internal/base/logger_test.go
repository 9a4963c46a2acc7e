// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var l Logger = NewZapLogger(zap.New(core))
	l.Infof("wrote %d blocks", 3)
	l.Errorf("checksum mismatch in block %d", 1)

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "wrote 3 blocks", entries[0].Message)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "checksum mismatch in block 1", entries[1].Message)
	require.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	l.Infof("ignored")
	l.Errorf("ignored")
	require.Panics(t, func() { l.Fatalf("fatal %d", 1) })

	// A nil zap logger is replaced with a no-op one.
	NewZapLogger(nil).Infof("ignored")
}
