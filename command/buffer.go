// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"fmt"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/handle"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
	"github.com/gogpu/frameflight/pool"
	"github.com/gogpu/frameflight/syncobj"
)

// Mode selects how a Buffer is recorded.
type Mode uint8

const (
	// OneShot buffers are re-recorded every frame.
	OneShot Mode = iota
	// Static buffers are recorded once and replayed every frame.
	Static
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Static {
		return "static"
	}
	return "one-shot"
}

// State is the recording state of one slot.
type State uint8

// Slot states.
const (
	Idle State = iota
	Recording
	Finalized
	Submitted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finalized:
		return "finalized"
	case Submitted:
		return "submitted"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Option configures a Buffer.
type Option func(*options)

type options struct {
	mode   Mode
	single bool
	label  string
}

// WithMode selects OneShot (default) or Static recording.
func WithMode(m Mode) Option {
	return func(o *options) { o.mode = m }
}

// WithSingle allocates one buffer pinned to slot 0 instead of one per slot.
func WithSingle() Option {
	return func(o *options) { o.single = true }
}

// WithLabel sets a label used in log messages.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

type slot struct {
	state     State
	ended     bool
	gen       uint64
	submitGen uint64
}

// Buffer is a frame-aware command buffer. It is not safe for concurrent use.
type Buffer struct {
	frame.Flight
	dev     device.Device
	pool    handle.Owner[*pool.CommandPool]
	handles []device.CommandBuffer
	slots   []slot
	mode    Mode
	label   string
}

// New allocates a Buffer from p. The buffer keeps p alive until Destroy.
func New(p *handle.Owner[*pool.CommandPool], opts ...Option) (*Buffer, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	assert.That(p.Valid(), "command buffer %q created from empty pool handle", o.label)
	cp := p.Get()

	b := &Buffer{dev: cp.Context().Device(), mode: o.mode, label: o.label}
	b.DelayInitialize(cp.Context(), o.single)

	handles, err := cp.Allocate(b.Count())
	if err != nil {
		return nil, fmt.Errorf("command: allocate %q: %w", o.label, err)
	}
	b.handles = handles
	b.slots = make([]slot, len(handles))
	b.pool = p.Clone()
	return b, nil
}

// Mode returns the recording mode.
func (b *Buffer) Mode() Mode { return b.mode }

// Label returns the buffer label.
func (b *Buffer) Label() string { return b.label }

// State returns the state of the current slot.
func (b *Buffer) State() State { return b.slots[b.CurrentFrame()].state }

// HandleAt returns the device command buffer of slot i.
func (b *Buffer) HandleAt(i int) device.CommandBuffer { return b.handles[i] }

// GetBuffer returns the current slot's device command buffer ready for
// recording. A slot left over from an earlier frame, or one already
// finalized, is reset and begun again.
func (b *Buffer) GetBuffer() (device.CommandBuffer, error) {
	i := b.CurrentFrame()
	s := &b.slots[i]
	gen := b.Generation()
	if s.state == Recording && s.gen == gen {
		return b.handles[i], nil
	}
	assert.That(!(s.state == Submitted && s.submitGen == gen),
		"command buffer %q slot %d re-recorded in the frame it was submitted", b.label, i)

	h := b.handles[i]
	if s.state != Idle {
		if err := b.dev.ResetCommandBuffer(h); err != nil {
			return 0, fmt.Errorf("command: reset %q slot %d: %w", b.label, i, err)
		}
		s.state = Idle
		s.ended = false
	}
	if err := b.dev.BeginCommandBuffer(h, b.mode == OneShot); err != nil {
		return 0, fmt.Errorf("command: begin %q slot %d: %w", b.label, i, err)
	}
	s.state = Recording
	s.gen = gen
	return h, nil
}

// Discard throws away a recording left unfinished on the current slot and
// returns the slot to Idle. Other states are left alone.
func (b *Buffer) Discard() error {
	i := b.CurrentFrame()
	s := &b.slots[i]
	if s.state != Recording {
		return nil
	}
	if err := b.dev.ResetCommandBuffer(b.handles[i]); err != nil {
		return fmt.Errorf("command: discard %q slot %d: %w", b.label, i, err)
	}
	s.state = Idle
	s.ended = false
	return nil
}

// Finalize ends recording on the current slot.
func (b *Buffer) Finalize() error {
	i := b.CurrentFrame()
	s := &b.slots[i]
	assert.That(s.state == Recording, "finalize of %s command buffer %q slot %d", s.state, b.label, i)
	if err := b.dev.EndCommandBuffer(b.handles[i]); err != nil {
		return fmt.Errorf("command: end %q slot %d: %w", b.label, i, err)
	}
	s.state = Finalized
	s.ended = true
	return nil
}

// GetReadonlyBuffer returns the current slot's finalized command buffer.
// The slot must have been finalized.
func (b *Buffer) GetReadonlyBuffer() device.CommandBuffer {
	i := b.CurrentFrame()
	assert.That(b.slots[i].ended, "read-only access to command buffer %q slot %d before Finalize", b.label, i)
	return b.handles[i]
}

// Submit hands the current slot to the queue. A slot still recording is
// finalized first. fence may be nil.
//
// A slot may be submitted once per frame. Static buffers may be submitted
// again in later frames without re-recording.
func (b *Buffer) Submit(waits []device.SemaphoreWait, signals []device.Semaphore, fence *syncobj.Fence) error {
	i := b.CurrentFrame()
	s := &b.slots[i]
	gen := b.Generation()

	switch s.state {
	case Idle:
		assert.Fail("submit of command buffer %q slot %d that was never recorded", b.label, i)
	case Recording:
		assert.That(b.mode == Static || s.gen == gen,
			"submit of one-shot command buffer %q slot %d recorded in an earlier frame", b.label, i)
		if err := b.Finalize(); err != nil {
			return err
		}
	case Finalized:
		assert.That(b.mode == Static || s.gen == gen,
			"submit of one-shot command buffer %q slot %d finalized in an earlier frame", b.label, i)
	case Submitted:
		assert.That(s.submitGen != gen, "double submit of command buffer %q slot %d without Finalize", b.label, i)
		assert.That(b.mode == Static, "resubmit of one-shot command buffer %q slot %d without re-recording", b.label, i)
	}

	var fh device.Fence
	if fence != nil {
		fh = fence.Handle()
	}
	info := device.SubmitInfo{
		Waits:          waits,
		CommandBuffers: []device.CommandBuffer{b.handles[i]},
		Signals:        signals,
	}
	if err := b.dev.Submit([]device.SubmitInfo{info}, fh); err != nil {
		return fmt.Errorf("command: submit %q slot %d: %w", b.label, i, err)
	}
	if fence != nil {
		fence.MarkSubmitted()
	}
	s.state = Submitted
	s.submitGen = gen
	return nil
}

// SubmitAndWait submits the current slot and blocks until the GPU has
// executed it. It is meant for setup and teardown, never for the frame
// loop.
func (b *Buffer) SubmitAndWait(waits []device.SemaphoreWait, signals []device.Semaphore) error {
	fence, err := syncobj.NewFence(b.Context(), true, false)
	if err != nil {
		return fmt.Errorf("command: blocking submit %q: %w", b.label, err)
	}
	defer fence.Destroy()

	if err := b.Submit(waits, signals, fence); err != nil {
		return err
	}
	logging.Logger().Debug("command: blocking submit", "label", b.label, "slot", b.CurrentFrame())
	ok, err := fence.Wait(syncobj.Infinite)
	if err != nil {
		return fmt.Errorf("command: blocking submit %q: %w", b.label, err)
	}
	if !ok {
		return fmt.Errorf("command: blocking submit %q: %w", b.label, device.ErrTimeout)
	}
	return nil
}

// Destroy frees every slot back to the pool and releases the pool. The
// GPU must have finished with the buffers.
func (b *Buffer) Destroy() {
	if !b.pool.Valid() {
		return
	}
	b.pool.Get().Free(b.handles)
	b.handles = nil
	b.slots = nil
	b.pool.Release()
}
