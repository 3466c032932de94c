// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import "github.com/gogpu/frameflight/internal/assert"

type flightMode uint8

const (
	modeUnbound flightMode = iota
	modeDynamic
	modePinned
)

// Flight resolves which replicated copy an object touches. It is either
// Dynamic, following the context's frame counter, or Pinned to a single
// slot. The zero value is unbound and must be initialized before use.
type Flight struct {
	ctx      *Context
	mode     flightMode
	pinned   int
	static   int
	isStatic bool
}

// DelayInitialize binds f to ctx. A single flight is pinned to slot 0 and
// has one copy; otherwise it follows the shared counter.
func (f *Flight) DelayInitialize(ctx *Context, single bool) {
	assert.That(ctx != nil, "flight bound to nil context")
	f.ctx = ctx
	f.isStatic = false
	if single {
		f.mode = modePinned
		f.pinned = 0
		return
	}
	f.mode = modeDynamic
}

// Bound reports whether f has been initialized.
func (f *Flight) Bound() bool { return f.mode != modeUnbound }

// Context returns the context f is bound to.
func (f *Flight) Context() *Context {
	assert.That(f.Bound(), "use of frame flight before its context exists")
	return f.ctx
}

// Single reports whether f addresses a single copy.
func (f *Flight) Single() bool { return f.mode == modePinned }

// Count returns the number of copies f addresses.
func (f *Flight) Count() int {
	switch f.mode {
	case modePinned:
		return 1
	case modeDynamic:
		return f.ctx.count
	}
	assert.Fail("use of frame flight before its context exists")
	return 0
}

// CurrentFrame returns the slot to touch now.
func (f *Flight) CurrentFrame() int {
	if f.isStatic {
		return f.static
	}
	switch f.mode {
	case modePinned:
		return f.pinned
	case modeDynamic:
		return f.ctx.slot
	}
	assert.Fail("use of frame flight before its context exists")
	return 0
}

// Generation returns the frame number of the context. Objects compare it to
// detect that their slot has come around again.
func (f *Flight) Generation() uint64 {
	return f.Context().frame
}

// SetStaticFrameIndex forces CurrentFrame to return i until
// ClearStaticFrameIndex is called.
func (f *Flight) SetStaticFrameIndex(i int) {
	assert.That(i >= 0 && i < f.Count(), "static frame index %d out of range [0,%d)", i, f.Count())
	f.static = i
	f.isStatic = true
}

// ClearStaticFrameIndex returns f to its normal resolution.
func (f *Flight) ClearStaticFrameIndex() {
	f.isStatic = false
}

// EachSlot calls fn once per copy with the static index forced to that
// slot, then restores the previous resolution. It stops at the first error.
func (f *Flight) EachSlot(fn func(slot int) error) error {
	prevStatic, prevIdx := f.isStatic, f.static
	defer func() { f.isStatic, f.static = prevStatic, prevIdx }()
	for i := 0; i < f.Count(); i++ {
		f.SetStaticFrameIndex(i)
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}
