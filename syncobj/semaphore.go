// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package syncobj

import (
	"fmt"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
)

// Semaphore is a single or per-slot replicated binary device semaphore.
//
// Each copy also carries a host-side record of whether a signal has been
// queued that no wait has consumed yet. Binary semaphores allow exactly one
// wait per signal, so submitters consult the record to skip waits on
// semaphores nobody signaled and to drain signals nobody waited on.
type Semaphore struct {
	*frame.Replicated[device.Semaphore]
	signaled []bool
}

// NewSemaphore creates a semaphore with one copy, or one per slot unless
// single.
func NewSemaphore(ctx *frame.Context, single bool) (*Semaphore, error) {
	dev := ctx.Device()
	r, err := frame.NewReplicated(ctx, single,
		func(int) (device.Semaphore, error) { return dev.CreateSemaphore() },
		dev.DestroySemaphore)
	if err != nil {
		return nil, fmt.Errorf("syncobj: create semaphore: %w", err)
	}
	return &Semaphore{Replicated: r, signaled: make([]bool, r.Len())}, nil
}

// Handle returns the native semaphore of the current slot.
func (s *Semaphore) Handle() device.Semaphore { return s.Current() }

// Signaled reports whether the current copy has a queued signal that no
// wait has consumed.
func (s *Semaphore) Signaled() bool {
	if len(s.signaled) == 0 {
		return false
	}
	return s.signaled[s.CurrentFrame()]
}

// MarkSignaled records that a signal of the current copy was queued.
func (s *Semaphore) MarkSignaled() {
	if len(s.signaled) != 0 {
		s.signaled[s.CurrentFrame()] = true
	}
}

// MarkWaited records that a wait consumed the current copy's signal.
func (s *Semaphore) MarkWaited() {
	if len(s.signaled) != 0 {
		s.signaled[s.CurrentFrame()] = false
	}
}
