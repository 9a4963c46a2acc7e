// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package blockfile

import (
	"cmp"
	"io"
	"iter"
	"path"
	"reflect"
	"slices"

	"github.com/cockroachdb/blockfile/block"
	"github.com/cockroachdb/blockfile/identity"
	"github.com/cockroachdb/blockfile/internal/base"
	"github.com/cockroachdb/blockfile/internal/compression"
	"github.com/cockroachdb/blockfile/internal/invariants"
	"github.com/cockroachdb/blockfile/vfs"
	"github.com/cockroachdb/errors"
)

// Key identifies a payload that may not exist yet, or whose object may be
// replaced, so that it keeps its block across reads and writes.
type Key = identity.Key[block.Buffer]

// scanState tracks how much of the run of internal blocks has been read.
type scanState uint8

const (
	// stateEmpty: no blocks have been read.
	stateEmpty scanState = iota
	// statePartiallyScanned: the first block has been read and the rest are
	// read on demand.
	statePartiallyScanned
	// stateFullyScanned: every internal block is known, either read or
	// synthesized from the block index.
	stateFullyScanned
	// stateFinalized: the catalog has been pruned and the write policy
	// applied, ready for a write.
	stateFinalized
)

var scanStateNames = [...]string{
	stateEmpty:            "empty",
	statePartiallyScanned: "partially-scanned",
	stateFullyScanned:     "fully-scanned",
	stateFinalized:        "finalized",
}

func (s scanState) String() string { return scanStateNames[s] }

// internalBlocks is the ordered run of internal blocks. Payloads and keys
// are assigned to blocks by position, so they follow a block when the run is
// re-sorted.
type internalBlocks struct {
	*identity.LinearStore[block.Buffer, *block.Block]
	m      *Manager
	closed bool
}

// blockSeq reads consecutive blocks from a handle. It is not restartable:
// once it reaches the end of the run or a streamed block it stays done.
type blockSeq struct {
	h       vfs.Handle
	opts    block.ReadOptions
	started bool
	done    bool
}

// Next returns the next block, or nil at the end of the run.
func (s *blockSeq) Next() (*block.Block, error) {
	if s.done {
		return nil, nil
	}
	o := s.opts
	// Padding between the tree and the first block is tolerated.
	o.SkipLeadingZeros = !s.started
	s.opts.PastMagic = false
	b, err := block.Read(s.h, o)
	if err != nil || b == nil {
		s.done = true
		return nil, err
	}
	s.started = true
	if b.Storage() == Streamed {
		s.done = true
	}
	return b, nil
}

// resume positions the sequence at offset.
func (s *blockSeq) resume(offset int64) error {
	_, err := s.h.Seek(offset, io.SeekStart)
	return err
}

// Manager is the catalog of the blocks of one container. It reads blocks
// from the container's file, associates them with the payloads and keys that
// refer to them, and writes them back out, either serially or in place.
//
// A Manager is not safe for concurrent use.
type Manager struct {
	opts *Options

	internal *internalBlocks
	external []*block.Block
	inline   []*block.Block
	streamed *block.Block

	// blocks maps payloads and keys to blocks that are not internal.
	blocks  *identity.Store[block.Buffer, *block.Block]
	options *identity.Store[block.Buffer, *BlockOptions]

	// externalByURI caches the blocks loaded from other files, and externals
	// the managers that own them.
	externalByURI map[string]*block.Block
	externals     []*Manager

	state      scanState
	h          vfs.Handle
	ownsHandle bool
	seq        *blockSeq
	tree       *RawTree

	metrics Metrics
}

// NewManager returns an empty Manager.
func NewManager(opts *Options) *Manager {
	if opts == nil {
		opts = &Options{}
	}
	opts.EnsureDefaults()
	m := &Manager{
		opts:          opts,
		blocks:        identity.NewStore[block.Buffer, *block.Block](),
		options:       identity.NewStore[block.Buffer, *BlockOptions](),
		externalByURI: make(map[string]*block.Block),
	}
	m.internal = &internalBlocks{
		LinearStore: identity.NewLinearStore[block.Buffer, *block.Block](),
		m:           m,
	}
	return m
}

// Handle returns the handle blocks are read from, or nil.
func (m *Manager) Handle() vfs.Handle { return m.h }

// NewKey returns a key bound to obj, or an unbound key if obj is nil.
func (m *Manager) NewKey(obj *block.Buffer) *Key {
	return identity.NewKey(obj)
}

// Add adds b to the collection of its storage class. key, if not nil, is
// associated with b along with b's payload.
func (m *Manager) Add(b *block.Block, key *Key) error {
	// Appending to a partially read run would misplace the unread blocks, and
	// the unread blocks may include the file's streamed block.
	if err := m.scanRemaining(); err != nil {
		return err
	}
	return m.add(b, key)
}

func (m *Manager) add(b *block.Block, key *Key) error {
	switch b.Storage() {
	case Internal:
		if m.internal.Index(b) < 0 {
			m.internal.Append(b)
		}
	case External:
		if !slices.Contains(m.external, b) {
			m.external = append(m.external, b)
		}
	case Inline:
		if !slices.Contains(m.inline, b) {
			m.inline = append(m.inline, b)
		}
	case Streamed:
		if m.streamed != nil && m.streamed != b {
			return base.StateErrorf("blockfile: cannot add second streaming block")
		}
		m.streamed = b
	default:
		return base.ConfigErrorf("blockfile: invalid block storage type %s", b.Storage())
	}
	return m.register(b, key)
}

// register associates the payload of b, and key, with b. An internal block
// must already be in the sequence of internal blocks.
func (m *Manager) register(b *block.Block, key *Key) error {
	if b.Storage() == Internal {
		if d := b.Data(); d != nil {
			if err := m.internal.Assign(d, b); err != nil {
				return err
			}
		}
		if key != nil {
			return m.internal.AssignKey(key, b)
		}
		return nil
	}
	if d := b.Data(); d != nil {
		m.blocks.Set(d, b)
	}
	if key != nil {
		m.blocks.SetByKey(key, b)
	}
	return nil
}

// Remove removes b, along with the associations of payloads and keys with
// it.
func (m *Manager) Remove(b *block.Block) error {
	found := false
	switch b.Storage() {
	case Internal:
		found = m.internal.Remove(b)
	case External:
		if i := slices.Index(m.external, b); i >= 0 {
			m.external = slices.Delete(m.external, i, i+1)
			found = true
		}
	case Inline:
		if i := slices.Index(m.inline, b); i >= 0 {
			m.inline = slices.Delete(m.inline, i, i+1)
			found = true
		}
	case Streamed:
		if m.streamed == b {
			m.streamed = nil
			found = true
		}
	default:
		return base.ConfigErrorf("blockfile: invalid block storage type %s", b.Storage())
	}
	if !found {
		return base.LookupErrorf("blockfile: block %s not found", b)
	}
	m.blocks.DeleteFunc(func(_ *Key, v *block.Block) bool { return v == b })
	return nil
}

// contains reports whether b is in the collection of its storage class.
func (m *Manager) contains(b *block.Block) bool {
	switch b.Storage() {
	case Internal:
		return m.internal.Index(b) >= 0
	case External:
		return slices.Contains(m.external, b)
	case Inline:
		return slices.Contains(m.inline, b)
	case Streamed:
		return m.streamed == b
	}
	return false
}

// keysOf returns the keys associated with b.
func (m *Manager) keysOf(b *block.Block) []*Key {
	var keys []*Key
	if i := m.internal.Index(b); i >= 0 {
		for k, p := range m.internal.Keys().All() {
			if p == i {
				keys = append(keys, k)
			}
		}
	}
	for k, v := range m.blocks.All() {
		if v == b {
			keys = append(keys, k)
		}
	}
	return keys
}

// SetStorage moves b to the storage class c. Keys and the payload stay
// associated with b.
func (m *Manager) SetStorage(b *block.Block, c StorageClass) error {
	if c > Streamed {
		return base.ConfigErrorf("blockfile: invalid block storage type %s", c)
	}
	if b.Storage() == c {
		return nil
	}
	if err := m.scanRemaining(); err != nil {
		return err
	}
	if c == Streamed && m.streamed != nil && m.streamed != b {
		return base.StateErrorf("blockfile: cannot add second streaming block")
	}
	var keys []*Key
	if m.contains(b) {
		keys = m.keysOf(b)
		if err := m.Remove(b); err != nil {
			return err
		}
	}
	b.SetStorage(c)
	if err := m.Add(b, nil); err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.register(b, k); err != nil {
			return err
		}
	}
	return nil
}

// lookup returns the block associated with the payload buf.
func (m *Manager) lookup(buf *block.Buffer) (*block.Block, bool) {
	if b, ok := m.internal.Lookup(buf); ok {
		return b, true
	}
	return m.blocks.Get(buf)
}

// blockFor returns the block holding the payload buf. A payload
// materialized directly from a block is associated with it here.
func (m *Manager) blockFor(buf *block.Buffer) (*block.Block, bool) {
	if b, ok := m.lookup(buf); ok && m.contains(b) {
		return b, true
	}
	for b := range m.Blocks() {
		if b.Data() == buf {
			if err := m.register(b, nil); err != nil && invariants.Enabled {
				panic(errors.AssertionFailedf("blockfile: registering a block of the catalog: %v", err))
			}
			return b, true
		}
	}
	return nil, false
}

// lookupKey returns the block associated with k.
func (m *Manager) lookupKey(k *Key) (*block.Block, bool) {
	if b, ok := m.internal.LookupKey(k); ok {
		return b, true
	}
	return m.blocks.GetByKey(k)
}

// ReadInternalBlocks reads the first block from h and prepares to read the
// rest on demand. If pastMagic is set, h is positioned just after the magic
// of the first block. The blocks of a non-seekable handle are all read
// immediately.
func (m *Manager) ReadInternalBlocks(h vfs.Handle, pastMagic bool) error {
	if m.state != stateEmpty {
		return base.StateErrorf("blockfile: blocks have already been read (%s)", m.state)
	}
	m.h = h
	ro := m.opts.readOptions()
	ro.PastMagic = pastMagic
	m.seq = &blockSeq{h: h, opts: ro}
	b, err := m.seq.Next()
	if err != nil {
		return err
	}
	if b == nil {
		m.state = stateFullyScanned
		return nil
	}
	m.appendRead(b)
	m.state = statePartiallyScanned
	if !h.Seekable() {
		return m.scanRemaining()
	}
	if b.Storage() == Streamed {
		m.state = stateFullyScanned
	}
	return nil
}

func (m *Manager) appendRead(b *block.Block) {
	if b.Storage() == Streamed {
		m.streamed = b
		return
	}
	m.internal.Append(b)
}

// readDeferred reads blocks following the last known one until stop returns
// true or the run ends.
func (m *Manager) readDeferred(stop func(b *block.Block) bool) error {
	if m.state != statePartiallyScanned {
		return nil
	}
	if n := m.internal.Len(); n > 0 && m.h.Seekable() {
		last := m.internal.At(n - 1)
		if err := last.Load(); err != nil {
			return err
		}
		if err := m.seq.resume(last.EndOffset()); err != nil {
			return err
		}
	}
	read := 0
	for {
		b, err := m.seq.Next()
		if err != nil {
			return err
		}
		if b == nil {
			m.state = stateFullyScanned
			m.opts.Logger.Infof("blockfile: read %d deferred blocks, %d internal blocks in total",
				errors.Safe(read), errors.Safe(m.internal.Len()))
			return nil
		}
		read++
		m.appendRead(b)
		if b.Storage() == Streamed {
			m.state = stateFullyScanned
			return nil
		}
		if stop != nil && stop(b) {
			return nil
		}
	}
}

// scanRemaining reads every block that has not been read yet.
func (m *Manager) scanRemaining() error {
	return m.readDeferred(nil)
}

// readBlockIndex replaces the deferred scan with placeholders for the
// blocks listed in the block index, if the file has a valid one. An invalid
// index is discarded and the blocks are read sequentially instead.
func (m *Manager) readBlockIndex() error {
	if m.state != statePartiallyScanned || !m.h.Seekable() || m.internal.Len() == 0 {
		return nil
	}
	pos, err := m.h.Tell()
	if err != nil {
		return err
	}
	defer func() { _, _ = m.h.Seek(pos, io.SeekStart) }()

	first := m.internal.At(0)
	scan, err := block.ScanIndex(m.h, first.EndOffset())
	if err != nil {
		return err
	}
	m.metrics.Index.Scanned = true
	m.metrics.Index.Status = scan.Status
	if scan.Status != block.IndexFound {
		m.discardIndex(scan.Status)
		return nil
	}
	offsets := scan.Offsets
	if off, _ := first.Offset(); offsets[0] != off {
		m.discardIndex(block.IndexFirstMismatch)
		return nil
	}
	if len(offsets) == 1 {
		return nil
	}
	ro := m.opts.readOptions()
	last := block.NewUnloaded(m.h, offsets[len(offsets)-1], ro)
	if err := last.Load(); err != nil || last.Storage() == Streamed || last.EndOffset() != scan.Start {
		m.discardIndex(block.IndexLastMismatch)
		return nil
	}
	for _, off := range offsets[1 : len(offsets)-1] {
		m.internal.Append(block.NewUnloaded(m.h, off, ro))
	}
	m.internal.Append(last)
	m.seq.done = true
	m.state = stateFullyScanned
	m.metrics.Index.Used = true
	m.metrics.Index.Placeholders = len(offsets) - 2
	return nil
}

func (m *Manager) discardIndex(status block.IndexStatus) {
	m.metrics.Index.Status = status
	m.opts.Logger.Infof("blockfile: discarding block index: %s", status)
}

// FinishReadingInternalBlocks reads every internal block that has not been
// read yet. Unless lazy loading is enabled, the payload of every block is
// read as well.
func (m *Manager) FinishReadingInternalBlocks() error {
	if err := m.scanRemaining(); err != nil {
		return err
	}
	if m.opts.LazyLoad {
		return nil
	}
	for b := range m.InternalBlocks() {
		if _, err := b.Materialize(); err != nil {
			return err
		}
	}
	return nil
}

// sortInternalBlocks orders the internal blocks by offset. Blocks without an
// offset go last.
func (m *Manager) sortInternalBlocks() {
	m.internal.SortFunc(func(a, b *block.Block) int {
		ao, aok := a.Offset()
		bo, bok := b.Offset()
		switch {
		case aok && !bok:
			return -1
		case !aok && bok:
			return 1
		}
		return cmp.Compare(ao, bo)
	})
}

// GetBlock returns the block a tree refers to with src. An internal source
// past the blocks read so far reads deferred blocks until it is found. An
// external source opens the other file. An inline source returns a new
// block that is not added to the Manager.
func (m *Manager) GetBlock(src Source) (*block.Block, error) {
	switch src.kind {
	case SourceInternal:
		return m.getInternal(src.index)
	case SourceExternal:
		return m.getExternal(src.uri)
	case SourceInline:
		return block.New(block.NewBuffer(slices.Clone(src.data)), Inline), nil
	}
	return nil, base.LookupErrorf("blockfile: unknown source kind %d", errors.Safe(src.kind))
}

func (m *Manager) getInternal(i int) (*block.Block, error) {
	switch {
	case i < -1:
		return nil, base.LookupErrorf("blockfile: invalid source id %d", errors.Safe(i))
	case i == -1 && m.streamed != nil:
		return m.streamed, nil
	case i >= 0 && i < m.internal.Len():
		return m.internal.At(i), nil
	}
	if err := m.readDeferred(func(b *block.Block) bool {
		return i >= 0 && m.internal.Len()-1 == i
	}); err != nil {
		return nil, err
	}
	switch {
	case i == -1 && m.streamed != nil:
		return m.streamed, nil
	case i >= 0 && i < m.internal.Len():
		return m.internal.At(i), nil
	}
	return nil, base.LookupErrorf("blockfile: block '%d' not found", errors.Safe(i))
}

func (m *Manager) getExternal(uri string) (*block.Block, error) {
	if b, ok := m.externalByURI[uri]; ok && m.contains(b) {
		return b, nil
	}
	sub, err := m.opts.OpenExternal(uri)
	if err != nil {
		return nil, err
	}
	b, err := sub.getInternal(0)
	if err != nil {
		return nil, errors.CombineErrors(err, sub.Close())
	}
	m.externals = append(m.externals, sub)
	b.SetStorage(External)
	if err := m.add(b, nil); err != nil {
		return nil, err
	}
	m.externalByURI[uri] = b
	return b, nil
}

// GetSource returns the source a tree uses to refer to b.
func (m *Manager) GetSource(b *block.Block) (Source, error) {
	if b == m.streamed && b != nil {
		return StreamedSource(), nil
	}
	if i := m.internal.Index(b); i >= 0 {
		return InternalSource(i), nil
	}
	if i := slices.Index(m.external, b); i >= 0 {
		if m.opts.URI == "" {
			return Source{}, base.LookupErrorf("blockfile: can't write external blocks, since URI of main file is unknown")
		}
		return ExternalSource(ExternalFilename(path.Base(uriPath(m.opts.URI)), i)), nil
	}
	if slices.Contains(m.inline, b) {
		buf, err := b.Materialize()
		if err != nil {
			return Source{}, err
		}
		return InlineSource(buf.Bytes()), nil
	}
	return Source{}, base.LookupErrorf("blockfile: block not found")
}

// FindOrCreateBlockForArray returns the block holding the payload of p,
// creating an internal block for it if there is none. The payload's
// BlockOptions and the global write policy apply to a new block.
func (m *Manager) FindOrCreateBlockForArray(p Payload) (*block.Block, error) {
	buf := p.Base()
	if b, ok := m.blockFor(buf); ok {
		return b, nil
	}
	b := block.New(buf, Internal)
	if o, ok := m.options.Get(buf); ok {
		b.SetStorage(o.Storage)
		if o.Compression != "" {
			if err := b.SetOutputCompression(o.Compression, o.CompressionParams); err != nil {
				return nil, err
			}
		}
	}
	if err := m.Add(b, nil); err != nil {
		return nil, err
	}
	if err := m.applyWritePolicy(b); err != nil {
		return nil, err
	}
	return b, nil
}

// FindOrCreateBlock returns the block associated with k, creating an
// internal block without a payload if there is none.
func (m *Manager) FindOrCreateBlock(k *Key) (*block.Block, error) {
	if b, ok := m.lookupKey(k); ok && m.contains(b) {
		return b, nil
	}
	b := block.New(nil, Internal)
	if err := m.Add(b, k); err != nil {
		return nil, err
	}
	return b, nil
}

// AddInline adds an inline block holding the payload of p.
func (m *Manager) AddInline(p Payload) (*block.Block, error) {
	b := block.New(p.Base(), Inline)
	if err := m.Add(b, nil); err != nil {
		return nil, err
	}
	return b, nil
}

// StreamedBlock returns the streamed block, or nil if there is none. Deferred
// blocks are read first, since the streamed block is always the last.
func (m *Manager) StreamedBlock() (*block.Block, error) {
	if err := m.scanRemaining(); err != nil {
		return nil, err
	}
	return m.streamed, nil
}

// GetStreamedBlock returns the streamed block, creating an empty one if
// there is none.
func (m *Manager) GetStreamedBlock() (*block.Block, error) {
	b, err := m.StreamedBlock()
	if err != nil || b != nil {
		return b, err
	}
	m.streamed = block.New(nil, Streamed)
	return m.streamed, nil
}

// Finalize prepares the catalog for a write. Blocks that were never marked
// used and are not referenced by any node are removed: a node references the
// blocks its ReserveFunc in hooks returns, and a Payload node the block of
// its payload. The write policy of the options is applied to the remaining
// blocks.
func (m *Manager) Finalize(nodes iter.Seq[any], hooks ReserveHooks) error {
	if err := m.scanRemaining(); err != nil {
		return err
	}
	reserved := make(map[*block.Block]struct{})
	if nodes != nil {
		for node := range nodes {
			if node == nil {
				continue
			}
			if fn, ok := hooks[reflect.TypeOf(node)]; ok {
				for _, b := range fn(node) {
					reserved[b] = struct{}{}
				}
			}
			if p, ok := node.(Payload); ok {
				if b, ok := m.blockFor(p.Base()); ok {
					reserved[b] = struct{}{}
				}
			}
		}
	}
	for _, b := range slices.Collect(m.Blocks()) {
		if _, ok := reserved[b]; !b.IsUsed() && !ok {
			if err := m.Remove(b); err != nil {
				return err
			}
		}
	}
	for _, b := range slices.Collect(m.Blocks()) {
		if err := m.applyWritePolicy(b); err != nil {
			return err
		}
	}
	m.state = stateFinalized
	return nil
}

// applyWritePolicy applies the all-array settings of the options to b.
func (m *Manager) applyWritePolicy(b *block.Block) error {
	o := m.opts
	if o.AllArrayStorage != "" {
		c, err := block.ParseStorageClass(o.AllArrayStorage)
		if err != nil {
			return err
		}
		if err := m.SetStorage(b, c); err != nil {
			return err
		}
	}
	if o.AllArrayCompression != InputCompression && b.Storage() != Streamed {
		if err := b.SetOutputCompression(o.AllArrayCompression, o.AllArrayCompressionParams); err != nil {
			return err
		}
	}
	if o.AllArrayStorage == "" && o.InlineThreshold > 0 &&
		(b.Storage() == Internal || b.Storage() == Inline) {
		if err := b.Load(); err != nil {
			return err
		}
		n := b.DataSize()
		if b.HasData() {
			n = uint64(b.Data().Len())
		}
		c := Internal
		if n < uint64(o.InlineThreshold) {
			c = Inline
		}
		if err := m.SetStorage(b, c); err != nil {
			return err
		}
	}
	return nil
}

// Options returns the options for the payload of p. A payload without
// options gets defaults, taken from its block if it has one, and keeps them.
func (m *Manager) Options(p Payload) BlockOptions {
	buf := p.Base()
	if o, ok := m.options.Get(buf); ok {
		return *o
	}
	o := &BlockOptions{Storage: Internal, Compression: InputCompression}
	for b := range m.Blocks() {
		if b.Data() == buf {
			o.Storage = b.Storage()
			o.Compression = b.InputCompression()
			break
		}
	}
	m.options.Set(buf, o)
	return *o
}

// SetOptions sets the options for the payload of p and applies them to
// its block, if it has one. Only one payload may be streamed.
func (m *Manager) SetOptions(p Payload, o BlockOptions) error {
	if o.Storage > Streamed {
		return base.ConfigErrorf("blockfile: invalid block storage type %s", o.Storage)
	}
	if o.Compression != "" {
		if _, err := compression.Validate(o.Compression); err != nil {
			return err
		}
	}
	buf := p.Base()
	if o.Storage == Streamed {
		if err := m.scanRemaining(); err != nil {
			return err
		}
		for k, v := range m.options.All() {
			if v.Storage == Streamed && !k.Matches(buf) {
				return base.StateErrorf("blockfile: cannot add second streaming block")
			}
		}
		if s := m.streamed; s != nil && s.Data() != buf && (s.HasData() || s.Handle() != nil) {
			return base.StateErrorf("blockfile: cannot add second streaming block")
		}
	}
	opts := o
	m.options.Set(buf, &opts)
	if b, ok := m.blockFor(buf); ok {
		if err := m.SetStorage(b, o.Storage); err != nil {
			return err
		}
		if o.Compression != "" && o.Storage != Streamed {
			return b.SetOutputCompression(o.Compression, o.CompressionParams)
		}
	}
	return nil
}

// OutputCompressions returns the distinct output compressions of the blocks,
// in sorted order. No compression is the empty string.
func (m *Manager) OutputCompressions() []string {
	var labels []string
	for b := range m.Blocks() {
		if l := b.OutputCompression(); !slices.Contains(labels, l) {
			labels = append(labels, l)
		}
	}
	slices.Sort(labels)
	return labels
}

// Blocks returns an iterator over every block: internal, external, inline,
// then the streamed block.
func (m *Manager) Blocks() iter.Seq[*block.Block] {
	return func(yield func(*block.Block) bool) {
		for _, b := range m.internal.Values() {
			if !yield(b) {
				return
			}
		}
		for _, b := range m.external {
			if !yield(b) {
				return
			}
		}
		for _, b := range m.inline {
			if !yield(b) {
				return
			}
		}
		if m.streamed != nil {
			yield(m.streamed)
		}
	}
}

// InternalBlocks returns an iterator over the blocks stored in the file: the
// internal blocks followed by the streamed block.
func (m *Manager) InternalBlocks() iter.Seq[*block.Block] {
	return func(yield func(*block.Block) bool) {
		for _, b := range m.internal.Values() {
			if !yield(b) {
				return
			}
		}
		if m.streamed != nil {
			yield(m.streamed)
		}
	}
}

// ExternalBlocks returns an iterator over the external blocks.
func (m *Manager) ExternalBlocks() iter.Seq[*block.Block] {
	return slices.Values(m.external)
}

// InlineBlocks returns an iterator over the inline blocks.
func (m *Manager) InlineBlocks() iter.Seq[*block.Block] {
	return slices.Values(m.inline)
}

// Len returns the number of blocks.
func (m *Manager) Len() int {
	n := m.internal.Len() + len(m.external) + len(m.inline)
	if m.streamed != nil {
		n++
	}
	return n
}

// Close releases the payloads of the blocks and the managers of external
// files. Data callbacks fail afterwards. If the Manager opened its file, the
// file is closed.
func (m *Manager) Close() error {
	for b := range m.Blocks() {
		b.Close()
	}
	m.internal.closed = true
	var err error
	for _, sub := range m.externals {
		err = errors.CombineErrors(err, sub.Close())
	}
	m.externals = nil
	if m.ownsHandle && m.h != nil && !m.h.Closed() {
		err = errors.CombineErrors(err, m.h.Close())
	}
	return err
}

// Metrics returns the counters of the Manager.
func (m *Manager) Metrics() Metrics {
	mt := m.metrics
	mt.Blocks.Internal = m.internal.Len()
	mt.Blocks.External = len(m.external)
	mt.Blocks.Inline = len(m.inline)
	if m.streamed != nil {
		mt.Blocks.Streamed = 1
	}
	mt.State = m.state.String()
	return mt
}
