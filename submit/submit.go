// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import (
	"fmt"
	"slices"

	"github.com/gogpu/frameflight/command"
	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
	"github.com/gogpu/frameflight/syncobj"
)

// Submitter is anything that signals completion semaphores and can wait
// on others.
//
// Semaphores are binary, so one signal satisfies exactly one wait. A
// submitter therefore signals a separate semaphore per consumer.
type Submitter interface {
	// GetOrCreateCompletionSemaphore returns the semaphore signaled for
	// this submitter's first consumer. Repeated calls return the same
	// semaphore.
	GetOrCreateCompletionSemaphore() (*syncobj.Semaphore, error)

	// SignalFor returns the semaphore signaled for consumer, creating it
	// on first use. Repeated calls with the same consumer return the same
	// semaphore.
	SignalFor(consumer Submitter) (*syncobj.Semaphore, error)

	// Unlink stops signaling for consumer.
	Unlink(consumer Submitter)

	// AddWaitObject makes this submitter wait for other's completion at
	// stage.
	AddWaitObject(other Submitter, stage device.PipelineStage) error
}

// Edge is one wait dependency: the semaphore waited on and the pipeline
// stage that blocks until it is signaled. From is the submitter that
// signals it, or nil for a semaphore signaled outside any Submitter.
type Edge struct {
	Semaphore *syncobj.Semaphore
	Stage     device.PipelineStage
	From      Submitter
}

type edges []Edge

func (e *edges) add(sem *syncobj.Semaphore, stage device.PipelineStage, from Submitter) {
	assert.That(sem != nil, "wait edge on nil semaphore")
	for i := range *e {
		if (*e)[i].Semaphore == sem {
			(*e)[i].Stage |= stage
			return
		}
	}
	*e = append(*e, Edge{Semaphore: sem, Stage: stage, From: from})
}

// remove drops the edges matching drop and unlinks their producers from
// consumer.
func (e *edges) remove(consumer Submitter, drop func(Edge) bool) {
	*e = slices.DeleteFunc(*e, func(edge Edge) bool {
		if !drop(edge) {
			return false
		}
		if edge.From != nil {
			edge.From.Unlink(consumer)
		}
		return true
	})
}

// ready resolves the edges to the native semaphores of the current slot.
// Edges from a Submitter are skipped when their producer queued no signal
// in this slot; a binary wait without a pending signal never completes.
func (e edges) ready() ([]device.SemaphoreWait, []*syncobj.Semaphore) {
	var (
		waits []device.SemaphoreWait
		used  []*syncobj.Semaphore
	)
	for _, edge := range e {
		if edge.From != nil && !edge.Semaphore.Signaled() {
			continue
		}
		waits = append(waits, device.SemaphoreWait{Semaphore: edge.Semaphore.Handle(), Stage: edge.Stage})
		used = append(used, edge.Semaphore)
	}
	return waits, used
}

// link is one semaphore a Unit signals. A link without a consumer is kept
// for reuse and is only waited on to drain a stale signal.
type link struct {
	consumer Submitter
	sem      *syncobj.Semaphore
}

// Unit is a queue submission point with its per-consumer completion
// semaphores, wait list and optional completion fence. It is not safe for
// concurrent use.
type Unit struct {
	ctx        *frame.Context
	label      string
	completion *syncobj.Semaphore
	links      []link
	waits      edges
	fence      *syncobj.Fence
	submits    uint64
}

var _ Submitter = (*Unit)(nil)

// NewUnit creates a unit. Native objects are created on demand.
func NewUnit(ctx *frame.Context, label string) *Unit {
	assert.That(ctx != nil, "submit unit %q without frame context", label)
	return &Unit{ctx: ctx, label: label}
}

// Label returns the unit label.
func (u *Unit) Label() string { return u.label }

// GetOrCreateCompletionSemaphore implements Submitter. The completion
// semaphore is signaled on every Submit and is handed to the first
// consumer linked through SignalFor.
func (u *Unit) GetOrCreateCompletionSemaphore() (*syncobj.Semaphore, error) {
	if u.completion != nil {
		return u.completion, nil
	}
	sem, err := syncobj.NewSemaphore(u.ctx, false)
	if err != nil {
		return nil, fmt.Errorf("submit: completion semaphore for %q: %w", u.label, err)
	}
	u.completion = sem
	u.links = append(u.links, link{sem: sem})
	return sem, nil
}

// SignalFor implements Submitter.
func (u *Unit) SignalFor(consumer Submitter) (*syncobj.Semaphore, error) {
	assert.That(consumer != nil, "submit unit %q linked to nil consumer", u.label)
	for _, l := range u.links {
		if l.consumer == consumer {
			return l.sem, nil
		}
	}
	if _, err := u.GetOrCreateCompletionSemaphore(); err != nil {
		return nil, err
	}
	for i := range u.links {
		if u.links[i].consumer == nil {
			u.links[i].consumer = consumer
			return u.links[i].sem, nil
		}
	}
	sem, err := syncobj.NewSemaphore(u.ctx, false)
	if err != nil {
		return nil, fmt.Errorf("submit: link semaphore %d for %q: %w", len(u.links), u.label, err)
	}
	u.links = append(u.links, link{consumer: consumer, sem: sem})
	return sem, nil
}

// Unlink implements Submitter. The consumer's semaphore is kept for the
// next consumer.
func (u *Unit) Unlink(consumer Submitter) {
	for i := range u.links {
		if u.links[i].consumer == consumer {
			u.links[i].consumer = nil
		}
	}
}

// Consumers returns how many submitters wait on the unit.
func (u *Unit) Consumers() int {
	n := 0
	for _, l := range u.links {
		if l.consumer != nil {
			n++
		}
	}
	return n
}

// AddWaitObject implements Submitter.
func (u *Unit) AddWaitObject(other Submitter, stage device.PipelineStage) error {
	assert.That(other != Submitter(u), "submit unit %q waits on itself", u.label)
	sem, err := other.SignalFor(u)
	if err != nil {
		return err
	}
	u.waits.add(sem, stage, other)
	return nil
}

// AddWaitSemaphore adds a wait on a semaphore signaled outside any
// Submitter. The wait is part of every submission.
func (u *Unit) AddWaitSemaphore(sem *syncobj.Semaphore, stage device.PipelineStage) {
	u.waits.add(sem, stage, nil)
}

// Waits returns the unit's wait edges.
func (u *Unit) Waits() []Edge { return u.waits }

// RemoveWait drops the edge on sem, if any.
func (u *Unit) RemoveWait(sem *syncobj.Semaphore) {
	u.waits.remove(u, func(e Edge) bool { return e.Semaphore == sem })
}

// RemoveWaitObject drops the edge on other, if any.
func (u *Unit) RemoveWaitObject(other Submitter) {
	u.waits.remove(u, func(e Edge) bool { return e.From == other })
}

// ClearWaits drops every wait edge.
func (u *Unit) ClearWaits() {
	u.waits.remove(u, func(Edge) bool { return true })
}

// EnableCompletionFence creates the unit's per-slot completion fence, so
// the CPU can wait for the unit's submissions. Repeated calls return the
// same fence.
func (u *Unit) EnableCompletionFence() (*syncobj.Fence, error) {
	if u.fence != nil {
		return u.fence, nil
	}
	f, err := syncobj.NewFence(u.ctx, false, false)
	if err != nil {
		return nil, fmt.Errorf("submit: completion fence for %q: %w", u.label, err)
	}
	u.fence = f
	return f, nil
}

// Fence returns the completion fence, or nil if it was never enabled.
func (u *Unit) Fence() *syncobj.Fence { return u.fence }

// Submissions returns how many times the unit has submitted.
func (u *Unit) Submissions() uint64 { return u.submits }

// Submit submits the current slot of cmd. It waits on every edge whose
// producer signaled in this slot and signals the semaphore of every
// linked consumer and the fence when they exist.
//
// A link still signaled from an earlier use of the slot, because its
// consumer skipped that frame, is waited on in the same batch before it
// is signaled again.
func (u *Unit) Submit(cmd *command.Buffer) error {
	waits, used := u.waits.ready()
	var (
		signals  []device.Semaphore
		signaled []*syncobj.Semaphore
		drained  int
	)
	for _, l := range u.links {
		if l.sem.Signaled() {
			waits = append(waits, device.SemaphoreWait{Semaphore: l.sem.Handle(), Stage: device.StageAllCommands})
			used = append(used, l.sem)
			drained++
		}
		if l.consumer != nil || l.sem == u.completion {
			signals = append(signals, l.sem.Handle())
			signaled = append(signaled, l.sem)
		}
	}
	if err := cmd.Submit(waits, signals, u.fence); err != nil {
		return fmt.Errorf("submit: unit %q: %w", u.label, err)
	}
	for _, sem := range used {
		sem.MarkWaited()
	}
	for _, sem := range signaled {
		sem.MarkSignaled()
	}
	u.submits++
	logging.Logger().Debug("submit: unit submitted",
		"label", u.label, "frame", u.ctx.FrameNumber(), "waits", len(waits),
		"drained", drained, "signals", len(signals), "fence", u.fence != nil)
	return nil
}

// Destroy releases the unit's semaphores and fence and unlinks it from
// its producers. The GPU must have finished the unit's work.
func (u *Unit) Destroy() {
	u.ClearWaits()
	for _, l := range u.links {
		l.sem.Destroy()
	}
	u.links, u.completion = nil, nil
	if u.fence != nil {
		u.fence.Destroy()
		u.fence = nil
	}
	u.waits = nil
}
