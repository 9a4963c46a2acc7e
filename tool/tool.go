// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"io"

	"github.com/cockroachdb/blockfile"
	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// T is the container for all of the introspection tools.
type T struct {
	Commands []*cobra.Command
	blocks   *blocksT

	fs      vfs.FS
	opts    blockfile.Options
	config  string
	verbose bool
}

// Option configures a T.
type Option func(*T)

// WithFS sets the filesystem containers are read from and written to.
func WithFS(fs vfs.FS) Option {
	return func(t *T) { t.fs = fs }
}

// New creates a new introspection tool.
func New(opts ...Option) *T {
	t := &T{fs: vfs.Default}
	for _, o := range opts {
		o(t)
	}
	t.blocks = newBlocks(t)
	t.Commands = []*cobra.Command{
		t.blocks.Layout,
		t.blocks.Index,
		t.blocks.Verify,
		t.blocks.Defragment,
		t.blocks.Metrics,
	}
	for _, c := range t.Commands {
		c.Flags().StringVar(&t.config, "config", "", "YAML file of reader options")
		c.Flags().BoolVarP(&t.verbose, "verbose", "v", false, "log recoverable events to stderr")
	}
	return t
}

// options returns the reader options: those of the --config file, if any,
// over the tool's defaults.
func (t *T) options() (*blockfile.Options, error) {
	o := t.opts
	o.FS = t.fs
	if t.config != "" {
		f, err := t.fs.Open(t.config)
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		if err := errors.CombineErrors(err, f.Close()); err != nil {
			return nil, err
		}
		if err := o.Parse(data); err != nil {
			return nil, err
		}
	}
	if t.verbose {
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.AddSync(stderr),
			zap.InfoLevel,
		)
		o.Logger = base.NewZapLogger(zap.New(core))
	} else {
		o.Logger = base.NoopLogger{}
	}
	return &o, nil
}

// open opens the container at name with the reader options.
func (t *T) open(name string, configure func(o *blockfile.Options)) (*blockfile.Manager, error) {
	o, err := t.options()
	if err != nil {
		return nil, err
	}
	o.URI = name
	if configure != nil {
		configure(o)
	}
	return blockfile.Open(t.fs, name, o)
}
