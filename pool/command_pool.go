// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pool

import (
	"fmt"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/handle"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
)

// CommandPoolBuilder configures a CommandPool. The zero value is usable.
type CommandPoolBuilder struct {
	label       string
	transient   bool
	capacity    int
	queueFamily uint32
	strict      bool
}

// NewCommandPoolBuilder starts a command pool configuration.
func NewCommandPoolBuilder(label string) CommandPoolBuilder {
	return CommandPoolBuilder{label: label}
}

// Transient marks buffers as short-lived and re-recorded often.
func (b CommandPoolBuilder) Transient() CommandPoolBuilder {
	b.transient = true
	return b
}

// Reserve raises the pool capacity by n buffers. A pool with no
// reservations has no capacity limit of its own.
func (b CommandPoolBuilder) Reserve(n int) CommandPoolBuilder {
	b.capacity += n
	return b
}

// QueueFamily selects the queue family the buffers are submitted to.
func (b CommandPoolBuilder) QueueFamily(i uint32) CommandPoolBuilder {
	b.queueFamily = i
	return b
}

// Strict makes exhaustion panic instead of returning an error.
func (b CommandPoolBuilder) Strict(strict bool) CommandPoolBuilder {
	b.strict = strict
	return b
}

// Build freezes the configuration into a pool owned by the returned handle.
func (b CommandPoolBuilder) Build(ctx *frame.Context) handle.Owner[*CommandPool] {
	assert.That(ctx != nil, "command pool %q built without context", b.label)
	return handle.New(&CommandPool{ctx: ctx, cfg: b})
}

// CommandPool allocates command buffers from one native pool.
type CommandPool struct {
	ctx         *frame.Context
	cfg         CommandPoolBuilder
	native      device.CommandPool
	outstanding int
	destroyed   bool
}

// Label returns the pool label.
func (p *CommandPool) Label() string { return p.cfg.label }

// Context returns the frame context the pool belongs to.
func (p *CommandPool) Context() *frame.Context { return p.ctx }

// Realized reports whether the native pool exists.
func (p *CommandPool) Realized() bool { return p.native != 0 }

// Outstanding returns the number of allocated buffers not yet freed.
func (p *CommandPool) Outstanding() int { return p.outstanding }

func (p *CommandPool) realize() error {
	if p.native != 0 {
		return nil
	}
	native, err := p.ctx.Device().CreateCommandPool(&device.CommandPoolDescriptor{
		Label:           p.cfg.label,
		Transient:       p.cfg.transient,
		ResetIndividual: true,
		QueueFamily:     p.cfg.queueFamily,
	})
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrRealize, p.cfg.label, err)
	}
	p.native = native
	logging.Logger().Debug("pool: command pool realized",
		"label", p.cfg.label, "capacity", p.cfg.capacity, "transient", p.cfg.transient)
	return nil
}

// Allocate allocates count command buffers. On exhaustion it returns count
// invalid handles and an error wrapping ErrPoolExhausted.
func (p *CommandPool) Allocate(count int) ([]device.CommandBuffer, error) {
	assert.That(!p.destroyed, "allocate from destroyed command pool %q", p.cfg.label)
	assert.That(count > 0, "allocate %d command buffers", count)
	if err := p.realize(); err != nil {
		return nil, err
	}
	if p.cfg.capacity > 0 && p.outstanding+count > p.cfg.capacity {
		err := fmt.Errorf("capacity %d, outstanding %d: %w", p.cfg.capacity, p.outstanding, device.ErrOutOfPoolMemory)
		return make([]device.CommandBuffer, count), exhausted("command", p.cfg.label, p.cfg.strict, count, err)
	}
	bufs, err := p.ctx.Device().AllocateCommandBuffers(p.native, count)
	if err != nil {
		if isExhaustion(err) {
			return make([]device.CommandBuffer, count), exhausted("command", p.cfg.label, p.cfg.strict, count, err)
		}
		return nil, fmt.Errorf("pool: allocate command buffers: %w", err)
	}
	p.outstanding += len(bufs)
	return bufs, nil
}

// Free returns buffers to the pool. Invalid handles are skipped.
func (p *CommandPool) Free(bufs []device.CommandBuffer) {
	valid := bufs[:0:0]
	for _, b := range bufs {
		if b != 0 {
			valid = append(valid, b)
		}
	}
	if len(valid) == 0 {
		return
	}
	assert.That(len(valid) <= p.outstanding, "command pool %q freed more buffers than it allocated", p.cfg.label)
	p.ctx.Device().FreeCommandBuffers(p.native, valid)
	p.outstanding -= len(valid)
}

// Reset recycles the native pool. Resetting with outstanding buffers is a
// contract violation.
func (p *CommandPool) Reset() error {
	assert.That(p.outstanding == 0, "reset of command pool %q with %d outstanding buffers", p.cfg.label, p.outstanding)
	if p.native == 0 {
		return nil
	}
	return p.ctx.Device().ResetCommandPool(p.native)
}

// Destroy releases the native pool. It is called by the owning handle once
// the last owner is released.
func (p *CommandPool) Destroy() {
	if p.destroyed {
		return
	}
	assert.That(p.outstanding == 0, "destroy of command pool %q with %d outstanding buffers", p.cfg.label, p.outstanding)
	if p.native != 0 {
		p.ctx.Device().DestroyCommandPool(p.native)
		p.native = 0
	}
	p.destroyed = true
}
