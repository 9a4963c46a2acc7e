// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "go.uber.org/zap"

// ZapLogger adapts a *zap.Logger to the Logger interface. Messages are
// formatted with the sugared logger.
type ZapLogger struct {
	l *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger wraps l. A nil l is replaced by zap.NewNop().
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{l: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Infof implements the Logger.Infof interface.
func (z *ZapLogger) Infof(format string, args ...interface{}) {
	z.l.Infof(format, args...)
}

// Errorf implements the Logger.Errorf interface.
func (z *ZapLogger) Errorf(format string, args ...interface{}) {
	z.l.Errorf(format, args...)
}

// Fatalf implements the Logger.Fatalf interface.
func (z *ZapLogger) Fatalf(format string, args ...interface{}) {
	z.l.Fatalf(format, args...)
}
