// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package syncobj

import (
	"fmt"
	"time"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
)

// Infinite waits without a timeout.
const Infinite = device.Infinite

// Fence is a single or per-slot replicated device fence.
type Fence struct {
	*frame.Replicated[device.Fence]
	dev device.Device
	// armed[i] is set while slot i has been submitted (or created signaled)
	// and not reset since. Only armed fences can ever become signaled.
	armed []bool
}

// NewFence creates a fence with one copy, or one per slot unless single.
// A signaled fence can be waited on before its first submission.
func NewFence(ctx *frame.Context, single, signaled bool) (*Fence, error) {
	dev := ctx.Device()
	r, err := frame.NewReplicated(ctx, single,
		func(int) (device.Fence, error) { return dev.CreateFence(signaled) },
		dev.DestroyFence)
	if err != nil {
		return nil, fmt.Errorf("syncobj: create fence: %w", err)
	}
	armed := make([]bool, r.Len())
	for i := range armed {
		armed[i] = signaled
	}
	return &Fence{Replicated: r, dev: dev, armed: armed}, nil
}

// Handle returns the native fence of the current slot.
func (f *Fence) Handle() device.Fence { return f.Current() }

// MarkSubmitted records that the current slot's fence was handed to a
// queue submission.
func (f *Fence) MarkSubmitted() {
	f.armed[f.CurrentFrame()] = true
}

// Submitted reports whether the current slot's fence can become signaled.
func (f *Fence) Submitted() bool {
	return f.armed[f.CurrentFrame()]
}

// Wait blocks until the current slot's fence is signaled or timeout
// elapses, and reports whether it is signaled. A zero timeout polls.
// Blocking on a fence that was never submitted is a contract violation,
// because it could only time out.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	slot := f.CurrentFrame()
	assert.That(timeout == 0 || f.armed[slot], "blocking wait on fence that was never submitted (slot %d)", slot)
	ok, err := f.dev.WaitForFences([]device.Fence{f.At(slot)}, true, timeout)
	if err != nil {
		return false, fmt.Errorf("syncobj: wait fence: %w", err)
	}
	if !ok && timeout > 0 {
		logging.Logger().Debug("syncobj: fence wait timed out", "slot", slot, "timeout", timeout)
	}
	return ok, nil
}

// Status reports whether the current slot's fence is signaled without
// blocking.
func (f *Fence) Status() (bool, error) {
	return f.dev.FenceStatus(f.Current())
}

// Reset returns the current slot's fence to unsignaled.
func (f *Fence) Reset() error {
	slot := f.CurrentFrame()
	if err := f.dev.ResetFences([]device.Fence{f.At(slot)}); err != nil {
		return fmt.Errorf("syncobj: reset fence: %w", err)
	}
	f.armed[slot] = false
	return nil
}

// Recycle waits for the current slot's fence if it is armed and then
// resets it, making the slot ready for a new submission. It returns
// device.ErrTimeout if the wait expires.
func (f *Fence) Recycle(timeout time.Duration) error {
	if !f.Submitted() {
		return nil
	}
	ok, err := f.Wait(timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("syncobj: recycle slot %d: %w", f.CurrentFrame(), device.ErrTimeout)
	}
	return f.Reset()
}

// WaitAll blocks until every fence's current slot is signaled or timeout
// elapses, and reports whether all are signaled.
func WaitAll(fences []*Fence, timeout time.Duration) (bool, error) {
	if len(fences) == 0 {
		return true, nil
	}
	handles := make([]device.Fence, len(fences))
	for i, f := range fences {
		assert.That(timeout == 0 || f.Submitted(), "blocking wait on fence %d that was never submitted", i)
		handles[i] = f.Handle()
	}
	ok, err := fences[0].dev.WaitForFences(handles, true, timeout)
	if err != nil {
		return false, fmt.Errorf("syncobj: wait fences: %w", err)
	}
	return ok, nil
}
