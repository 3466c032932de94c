// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package descriptor

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/handle"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
	"github.com/gogpu/frameflight/pool"
)

// ErrTooManyBindings is returned when a set describes more bindings than
// the device supports in one set.
var ErrTooManyBindings = errors.New("descriptor: too many bindings")

// Option configures a Set.
type Option func(*options)

type options struct {
	single bool
	label  string
}

// WithSingle creates one set pinned to slot 0 instead of one per slot.
func WithSingle() Option {
	return func(o *options) { o.single = true }
}

// WithLabel sets a label used in log messages.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

type binding struct {
	id     uint32
	typ    device.DescriptorType
	stages gputypes.ShaderStages
	buffer *device.BufferInfo
	image  *device.ImageInfo
	dirty  []bool
}

func (b *binding) write(set device.DescriptorSet) device.DescriptorWrite {
	return device.DescriptorWrite{Set: set, Binding: b.id, Type: b.typ, Buffer: b.buffer, Image: b.image}
}

// Set is a descriptor set with one copy per frame slot. It is not safe
// for concurrent use.
type Set struct {
	frame.Flight
	label    string
	pool     handle.Owner[*pool.DescriptorPool]
	bindings []*binding
	layout   device.DescriptorSetLayout
	sets     []device.DescriptorSet
}

// New creates a Set allocating from p. The set keeps p alive until
// Destroy. Nothing is allocated before the first GetSet.
func New(p *handle.Owner[*pool.DescriptorPool], opts ...Option) *Set {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	assert.That(p.Valid(), "descriptor set %q created from empty pool handle", o.label)
	s := &Set{label: o.label, pool: p.Clone()}
	s.DelayInitialize(p.Get().Context(), o.single)
	return s
}

// Label returns the set label.
func (s *Set) Label() string { return s.label }

// Realized reports whether the native layout and sets exist.
func (s *Set) Realized() bool { return s.sets != nil }

func (s *Set) describe(id uint32, t device.DescriptorType, stages gputypes.ShaderStages) *Set {
	assert.That(!s.Realized(), "describe binding %d of realized descriptor set %q", id, s.label)
	i, found := slices.BinarySearchFunc(s.bindings, id, func(b *binding, id uint32) int {
		return cmp.Compare(b.id, id)
	})
	assert.That(!found, "binding %d of descriptor set %q described twice", id, s.label)
	s.bindings = slices.Insert(s.bindings, i, &binding{id: id, typ: t, stages: stages})
	return s
}

// DescribeBuffer declares a buffer binding.
func (s *Set) DescribeBuffer(id uint32, t device.DescriptorType, stages gputypes.ShaderStages) *Set {
	assert.That(t.IsBuffer(), "DescribeBuffer with %s descriptor", t)
	return s.describe(id, t, stages)
}

// DescribeImage declares an image binding.
func (s *Set) DescribeImage(id uint32, t device.DescriptorType, stages gputypes.ShaderStages) *Set {
	assert.That(t.IsImage(), "DescribeImage with %s descriptor", t)
	return s.describe(id, t, stages)
}

// DescribeSampler declares a standalone sampler binding.
func (s *Set) DescribeSampler(id uint32, stages gputypes.ShaderStages) *Set {
	return s.describe(id, device.DescriptorSampler, stages)
}

// LayoutBindings returns the described layout in binding order.
func (s *Set) LayoutBindings() []device.LayoutBinding {
	out := make([]device.LayoutBinding, len(s.bindings))
	for i, b := range s.bindings {
		out[i] = device.LayoutBinding{Binding: b.id, Type: b.typ, Count: 1, Stages: b.stages}
	}
	return out
}

func (s *Set) lookup(id uint32) *binding {
	i, found := slices.BinarySearchFunc(s.bindings, id, func(b *binding, id uint32) int {
		return cmp.Compare(b.id, id)
	})
	assert.That(found, "write to undescribed binding %d of descriptor set %q", id, s.label)
	return s.bindings[i]
}

func (s *Set) markDirty(b *binding) {
	if b.dirty == nil {
		b.dirty = make([]bool, s.Count())
	}
	for i := range b.dirty {
		b.dirty[i] = true
	}
}

// SetBuffer binds info to a buffer binding in every slot. Slots pick the
// write up on their next GetSet.
func (s *Set) SetBuffer(id uint32, info device.BufferInfo) {
	b := s.lookup(id)
	assert.That(b.typ.IsBuffer(), "SetBuffer on %s binding %d of descriptor set %q", b.typ, id, s.label)
	b.buffer = &info
	s.markDirty(b)
}

// SetImage binds info to an image or sampler binding in every slot.
func (s *Set) SetImage(id uint32, info device.ImageInfo) {
	b := s.lookup(id)
	assert.That(!b.typ.IsBuffer(), "SetImage on %s binding %d of descriptor set %q", b.typ, id, s.label)
	b.image = &info
	s.markDirty(b)
}

// PendingWrites returns how many bindings slot i still has to flush.
func (s *Set) PendingWrites(i int) int {
	n := 0
	for _, b := range s.bindings {
		if b.dirty != nil && b.dirty[i] {
			n++
		}
	}
	return n
}

// Layout returns the native layout, or the null handle before
// realization.
func (s *Set) Layout() device.DescriptorSetLayout { return s.layout }

func (s *Set) realize() error {
	assert.That(len(s.bindings) > 0, "realize of empty descriptor set %q", s.label)
	dev := s.Context().Device()
	if limit := dev.Limits().MaxBindingsPerBindGroup; uint32(len(s.bindings)) > limit {
		return fmt.Errorf("%w: %q has %d, device allows %d", ErrTooManyBindings, s.label, len(s.bindings), limit)
	}
	layout, err := dev.CreateDescriptorSetLayout(s.LayoutBindings())
	if err != nil {
		return fmt.Errorf("descriptor: create layout %q: %w", s.label, err)
	}
	done := false
	defer func() {
		if !done {
			dev.DestroyDescriptorSetLayout(layout)
		}
	}()
	sets, err := s.pool.Get().Allocate(layout, s.Count())
	if err != nil {
		return fmt.Errorf("descriptor: allocate %q: %w", s.label, err)
	}
	done = true
	s.layout = layout
	s.sets = sets
	logging.Logger().Debug("descriptor: set realized",
		"label", s.label, "bindings", len(s.bindings), "copies", len(sets))
	return nil
}

// GetSet returns the current slot's native set, realizing the set on first
// use and flushing the slot's pending writes in one update.
func (s *Set) GetSet() (device.DescriptorSet, error) {
	if !s.Realized() {
		if err := s.realize(); err != nil {
			return 0, err
		}
	}
	i := s.CurrentFrame()
	set := s.sets[i]

	var writes []device.DescriptorWrite
	for _, b := range s.bindings {
		if b.dirty != nil && b.dirty[i] {
			writes = append(writes, b.write(set))
			b.dirty[i] = false
		}
	}
	if len(writes) > 0 {
		s.Context().Device().UpdateDescriptorSets(writes)
	}
	return set, nil
}

// Destroy returns the sets to the pool, destroys the layout and releases
// the pool. The GPU must have finished with the sets.
func (s *Set) Destroy() {
	if !s.pool.Valid() {
		return
	}
	if s.Realized() {
		if err := s.pool.Get().Free(s.sets); err != nil {
			logging.Logger().Warn("descriptor: free sets", "label", s.label, "err", err)
		}
		s.Context().Device().DestroyDescriptorSetLayout(s.layout)
		s.sets = nil
		s.layout = 0
	}
	s.pool.Release()
}
