// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldev

import (
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/internal/logging"
)

// pollInterval is the sleep between queue polls in a blocking fence wait.
const pollInterval = 50 * time.Microsecond

type fence struct {
	signaled bool
	// index is the submission that signals the fence, zero when no
	// submission is pending.
	index uint64
}

// CreateFence creates a fence.
func (d *Device) CreateFence(signaled bool) (device.Fence, error) {
	h := device.Fence(d.handles.Next())
	d.fences[h] = &fence{signaled: signaled}
	return h, nil
}

// DestroyFence destroys a fence.
func (d *Device) DestroyFence(h device.Fence) {
	f, ok := d.fences[h]
	if !ok {
		return
	}
	if d.armed(f) {
		logging.Logger().Warn("haldev: destroying fence with pending submission", "fence", uint64(h))
	}
	delete(d.fences, h)
}

// done resolves a fence against the queue's completed index.
func (d *Device) done(f *fence) bool {
	if !f.signaled && f.index != 0 && d.completed() >= f.index {
		f.signaled = true
		f.index = 0
	}
	return f.signaled
}

// armed reports whether a pending submission will signal f.
func (d *Device) armed(f *fence) bool {
	return !d.done(f) && f.index != 0
}

func (d *Device) lookupFences(hs []device.Fence) ([]*fence, error) {
	out := make([]*fence, len(hs))
	for i, h := range hs {
		f, ok := d.fences[h]
		if !ok {
			return nil, unknown("fence", h)
		}
		out[i] = f
	}
	return out, nil
}

// WaitForFences polls the queue until the wait condition holds or the
// timeout expires.
func (d *Device) WaitForFences(hs []device.Fence, waitAll bool, timeout time.Duration) (bool, error) {
	fences, err := d.lookupFences(hs)
	if err != nil {
		return false, err
	}
	var deadline time.Time
	if timeout != device.Infinite {
		deadline = time.Now().Add(timeout)
	}
	for {
		met, progress := d.fencesMet(fences, waitAll)
		if met {
			d.collect()
			return true, nil
		}
		if timeout == 0 {
			return false, nil
		}
		if !progress {
			return false, validation("wait on fences that no pending submission signals")
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false, nil
		}
		time.Sleep(pollInterval)
	}
}

// fencesMet evaluates the wait condition. progress reports whether an
// unsignaled fence can still become signaled.
func (d *Device) fencesMet(fences []*fence, waitAll bool) (met, progress bool) {
	signaled := 0
	for _, f := range fences {
		if d.done(f) {
			signaled++
		} else if f.index != 0 {
			progress = true
		}
	}
	if waitAll {
		return signaled == len(fences), progress
	}
	return signaled > 0 || len(fences) == 0, progress
}

// ResetFences returns fences to the unsignaled state.
func (d *Device) ResetFences(hs []device.Fence) error {
	fences, err := d.lookupFences(hs)
	if err != nil {
		return err
	}
	for i, f := range fences {
		if d.armed(f) {
			return validation("reset of fence %d with pending submission", hs[i])
		}
	}
	for _, f := range fences {
		f.signaled = false
		f.index = 0
	}
	return nil
}

// FenceStatus reports whether the fence is signaled.
func (d *Device) FenceStatus(h device.Fence) (bool, error) {
	f, ok := d.fences[h]
	if !ok {
		return false, unknown("fence", h)
	}
	return d.done(f), nil
}

// CreateSemaphore creates a semaphore.
func (d *Device) CreateSemaphore() (device.Semaphore, error) {
	h := device.Semaphore(d.handles.Next())
	d.sems[h] = struct{}{}
	return h, nil
}

// DestroySemaphore destroys a semaphore.
func (d *Device) DestroySemaphore(h device.Semaphore) {
	delete(d.sems, h)
}

func (d *Device) checkSemaphores(waits []device.SemaphoreWait, signals []device.Semaphore) error {
	for _, w := range waits {
		if _, ok := d.sems[w.Semaphore]; !ok {
			return unknown("semaphore", w.Semaphore)
		}
	}
	for _, s := range signals {
		if _, ok := d.sems[s]; !ok {
			return unknown("semaphore", s)
		}
	}
	return nil
}

// Submit submits the batches in order. The fence resolves with the last
// submission index.
func (d *Device) Submit(batches []device.SubmitInfo, h device.Fence) error {
	var f *fence
	if !device.IsNull(h) {
		var ok bool
		if f, ok = d.fences[h]; !ok {
			return unknown("fence", h)
		}
		if d.armed(f) {
			return validation("submit with fence %d that is already pending", h)
		}
		if f.signaled {
			return validation("submit with signaled fence %d", h)
		}
	}

	// Validate everything before the first queue submission so a bad batch
	// does not leave earlier ones half-submitted.
	resolved := make([][]*commandBuffer, len(batches))
	for i, b := range batches {
		if err := d.checkSemaphores(b.Waits, b.Signals); err != nil {
			return err
		}
		for _, cbh := range b.CommandBuffers {
			cb, err := d.buffer(cbh)
			if err != nil {
				return err
			}
			if cb.recording || cb.cmd == nil {
				return validation("submit of command buffer %d that is not executable", cbh)
			}
			if d.pending(cb) {
				return validation("submit of pending command buffer %d", cbh)
			}
			if slices.Contains(resolved[i], cb) {
				return validation("command buffer %d submitted twice in one batch", cbh)
			}
			resolved[i] = append(resolved[i], cb)
		}
	}

	for _, cbs := range resolved {
		if len(cbs) == 0 {
			continue
		}
		cmds := make([]hal.CommandBuffer, len(cbs))
		for j, cb := range cbs {
			cmds[j] = cb.cmd
		}
		index, err := d.queue.Submit(cmds)
		if err != nil {
			return fmt.Errorf("haldev: submit: %w", mapErr(err))
		}
		d.lastSubmit = index
		for _, cb := range cbs {
			cb.submitted = index
		}
	}

	if f != nil {
		switch {
		case d.lastSubmit == 0, d.completed() >= d.lastSubmit:
			f.signaled = true
		default:
			f.index = d.lastSubmit
		}
	}
	d.collect()
	return nil
}
