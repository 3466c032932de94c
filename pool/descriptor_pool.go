// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pool

import (
	"fmt"
	"slices"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/handle"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
)

// DescriptorPoolBuilder configures a DescriptorPool. Reservations add up.
type DescriptorPoolBuilder struct {
	label          string
	maxSets        uint32
	sizes          []device.PoolSize
	freeIndividual bool
	strict         bool
}

// NewDescriptorPoolBuilder starts a descriptor pool configuration.
func NewDescriptorPoolBuilder(label string) DescriptorPoolBuilder {
	return DescriptorPoolBuilder{label: label}
}

// Reserve adds room for count descriptors of type t.
func (b DescriptorPoolBuilder) Reserve(t device.DescriptorType, count uint32) DescriptorPoolBuilder {
	sizes := slices.Clone(b.sizes)
	i := slices.IndexFunc(sizes, func(s device.PoolSize) bool { return s.Type == t })
	if i < 0 {
		sizes = append(sizes, device.PoolSize{Type: t, Count: count})
	} else {
		sizes[i].Count += count
	}
	b.sizes = sizes
	return b
}

// ReserveSets adds room for n sets.
func (b DescriptorPoolBuilder) ReserveSets(n uint32) DescriptorPoolBuilder {
	b.maxSets += n
	return b
}

// ReserveLayout adds room for copies sets of the given layout.
func (b DescriptorPoolBuilder) ReserveLayout(bindings []device.LayoutBinding, copies uint32) DescriptorPoolBuilder {
	b = b.ReserveSets(copies)
	for _, lb := range bindings {
		b = b.Reserve(lb.Type, max(lb.Count, 1)*copies)
	}
	return b
}

// FreeIndividual allows sets to be returned to the native pool one at a
// time. Without it, freed sets are reclaimed only by Reset.
func (b DescriptorPoolBuilder) FreeIndividual() DescriptorPoolBuilder {
	b.freeIndividual = true
	return b
}

// Strict makes exhaustion panic instead of returning an error.
func (b DescriptorPoolBuilder) Strict(strict bool) DescriptorPoolBuilder {
	b.strict = strict
	return b
}

// MaxSets returns the number of sets reserved so far.
func (b DescriptorPoolBuilder) MaxSets() uint32 { return b.maxSets }

// Build freezes the configuration into a pool owned by the returned handle.
func (b DescriptorPoolBuilder) Build(ctx *frame.Context) handle.Owner[*DescriptorPool] {
	assert.That(ctx != nil, "descriptor pool %q built without context", b.label)
	b.sizes = slices.Clone(b.sizes)
	return handle.New(&DescriptorPool{ctx: ctx, cfg: b})
}

// DescriptorPool allocates descriptor sets from one native pool.
type DescriptorPool struct {
	ctx         *frame.Context
	cfg         DescriptorPoolBuilder
	native      device.DescriptorPool
	outstanding int
	destroyed   bool
}

// Label returns the pool label.
func (p *DescriptorPool) Label() string { return p.cfg.label }

// Context returns the frame context the pool belongs to.
func (p *DescriptorPool) Context() *frame.Context { return p.ctx }

// Realized reports whether the native pool exists.
func (p *DescriptorPool) Realized() bool { return p.native != 0 }

// Outstanding returns the number of allocated sets not yet freed.
func (p *DescriptorPool) Outstanding() int { return p.outstanding }

func (p *DescriptorPool) realize() error {
	if p.native != 0 {
		return nil
	}
	native, err := p.ctx.Device().CreateDescriptorPool(&device.DescriptorPoolDescriptor{
		Label:          p.cfg.label,
		MaxSets:        p.cfg.maxSets,
		Sizes:          p.cfg.sizes,
		FreeIndividual: p.cfg.freeIndividual,
	})
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrRealize, p.cfg.label, err)
	}
	p.native = native
	logging.Logger().Debug("pool: descriptor pool realized",
		"label", p.cfg.label, "maxSets", p.cfg.maxSets, "sizes", len(p.cfg.sizes))
	return nil
}

// Allocate allocates count sets of one layout. On exhaustion it returns
// count invalid handles and an error wrapping ErrPoolExhausted.
func (p *DescriptorPool) Allocate(layout device.DescriptorSetLayout, count int) ([]device.DescriptorSet, error) {
	assert.That(!p.destroyed, "allocate from destroyed descriptor pool %q", p.cfg.label)
	assert.That(count > 0, "allocate %d descriptor sets", count)
	if err := p.realize(); err != nil {
		return nil, err
	}
	layouts := make([]device.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout
	}
	sets, err := p.ctx.Device().AllocateDescriptorSets(p.native, layouts)
	if err != nil {
		if isExhaustion(err) {
			return make([]device.DescriptorSet, count), exhausted("descriptor", p.cfg.label, p.cfg.strict, count, err)
		}
		return nil, fmt.Errorf("pool: allocate descriptor sets: %w", err)
	}
	p.outstanding += len(sets)
	return sets, nil
}

// Free returns sets to the pool. Invalid handles are skipped.
func (p *DescriptorPool) Free(sets []device.DescriptorSet) error {
	valid := sets[:0:0]
	for _, s := range sets {
		if s != 0 {
			valid = append(valid, s)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	assert.That(len(valid) <= p.outstanding, "descriptor pool %q freed more sets than it allocated", p.cfg.label)
	p.outstanding -= len(valid)
	if !p.cfg.freeIndividual {
		return nil
	}
	return p.ctx.Device().FreeDescriptorSets(p.native, valid)
}

// Reset returns every set to the native pool. Resetting with outstanding
// sets is a contract violation.
func (p *DescriptorPool) Reset() error {
	assert.That(p.outstanding == 0, "reset of descriptor pool %q with %d outstanding sets", p.cfg.label, p.outstanding)
	if p.native == 0 {
		return nil
	}
	return p.ctx.Device().ResetDescriptorPool(p.native)
}

// Destroy releases the native pool. It is called by the owning handle once
// the last owner is released.
func (p *DescriptorPool) Destroy() {
	if p.destroyed {
		return
	}
	assert.That(p.outstanding == 0, "destroy of descriptor pool %q with %d outstanding sets", p.cfg.label, p.outstanding)
	if p.native != 0 {
		p.ctx.Device().DestroyDescriptorPool(p.native)
		p.native = 0
	}
	p.destroyed = true
}
