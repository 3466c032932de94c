// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package submit

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/syncobj"
)

// Presenter acquires swapchain images and presents them. Its completion
// semaphore is signaled when the acquired image is ready to be written,
// so the unit that renders to it waits on the Presenter. The image has a
// single such consumer.
type Presenter struct {
	ctx       *frame.Context
	swapchain device.Swapchain
	acquired  *syncobj.Semaphore
	consumer  Submitter
	waits     edges
	image     uint32
	holding   bool
}

var _ Submitter = (*Presenter)(nil)

// NewPresenter creates a presenter for swapchain.
func NewPresenter(ctx *frame.Context, swapchain device.Swapchain) *Presenter {
	assert.That(!device.IsNull(swapchain), "presenter without swapchain")
	return &Presenter{ctx: ctx, swapchain: swapchain}
}

// Swapchain returns the presented swapchain.
func (p *Presenter) Swapchain() device.Swapchain { return p.swapchain }

// GetOrCreateCompletionSemaphore implements Submitter.
func (p *Presenter) GetOrCreateCompletionSemaphore() (*syncobj.Semaphore, error) {
	if p.acquired != nil {
		return p.acquired, nil
	}
	sem, err := syncobj.NewSemaphore(p.ctx, false)
	if err != nil {
		return nil, fmt.Errorf("submit: image acquired semaphore: %w", err)
	}
	p.acquired = sem
	return sem, nil
}

// SignalFor implements Submitter. Only one consumer may wait for the
// acquired image.
func (p *Presenter) SignalFor(consumer Submitter) (*syncobj.Semaphore, error) {
	assert.That(p.consumer == nil || p.consumer == consumer,
		"swapchain image already consumed by another submitter")
	sem, err := p.GetOrCreateCompletionSemaphore()
	if err != nil {
		return nil, err
	}
	p.consumer = consumer
	return sem, nil
}

// Unlink implements Submitter.
func (p *Presenter) Unlink(consumer Submitter) {
	if p.consumer == consumer {
		p.consumer = nil
	}
}

// AddWaitObject implements Submitter. Present waits for other to finish.
func (p *Presenter) AddWaitObject(other Submitter, stage device.PipelineStage) error {
	sem, err := other.SignalFor(p)
	if err != nil {
		return err
	}
	p.waits.add(sem, stage, other)
	return nil
}

// Waits returns the edges Present waits on.
func (p *Presenter) Waits() []Edge { return p.waits }

// ClearWaits drops every edge Present waits on.
func (p *Presenter) ClearWaits() {
	p.waits.remove(p, func(Edge) bool { return true })
}

// Acquire acquires the next swapchain image and signals the completion
// semaphore when it is ready. Errors such as device.ErrOutOfDate are
// returned unchanged in the chain.
//
// If the consumer never waited on the slot's previous acquire, that
// signal is first drained with a wait-only submission.
func (p *Presenter) Acquire(timeout time.Duration) (uint32, error) {
	assert.That(!p.holding, "acquire while image %d is still held", p.image)
	sem, err := p.GetOrCreateCompletionSemaphore()
	if err != nil {
		return 0, err
	}
	dev := p.ctx.Device()
	if sem.Signaled() {
		drain := []device.SubmitInfo{{
			Waits: []device.SemaphoreWait{{Semaphore: sem.Handle(), Stage: device.StageAllCommands}},
		}}
		if err := dev.Submit(drain, device.Fence(0)); err != nil {
			return 0, fmt.Errorf("submit: drain image acquired semaphore: %w", err)
		}
		sem.MarkWaited()
	}
	idx, err := dev.AcquireNextImage(p.swapchain, sem.Handle(), timeout)
	if err != nil {
		return 0, fmt.Errorf("submit: acquire: %w", err)
	}
	sem.MarkSignaled()
	p.image = idx
	p.holding = true
	return idx, nil
}

// ImageIndex returns the acquired image and whether one is held.
func (p *Presenter) ImageIndex() (uint32, bool) { return p.image, p.holding }

// Present queues the acquired image for display after every wait edge
// whose producer signaled in this slot. The image is released even when
// presenting fails.
func (p *Presenter) Present() error {
	assert.That(p.holding, "present without an acquired image")
	p.holding = false
	ready, used := p.waits.ready()
	waits := make([]device.Semaphore, len(ready))
	for i, w := range ready {
		waits[i] = w.Semaphore
	}
	err := p.ctx.Device().Present(&device.PresentInfo{
		Swapchain:  p.swapchain,
		ImageIndex: p.image,
		Waits:      waits,
	})
	// Waits still execute when the swapchain is out of date.
	if err == nil || errors.Is(err, device.ErrOutOfDate) {
		for _, sem := range used {
			sem.MarkWaited()
		}
	}
	if err != nil {
		return fmt.Errorf("submit: present image %d: %w", p.image, err)
	}
	return nil
}

// Destroy releases the acquire semaphore and unlinks the presenter from
// the submitters it waits on.
func (p *Presenter) Destroy() {
	p.ClearWaits()
	if p.acquired != nil {
		p.acquired.Destroy()
		p.acquired = nil
	}
	p.consumer = nil
	p.waits = nil
}
