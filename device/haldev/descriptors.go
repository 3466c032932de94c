// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldev

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/internal/logging"
)

type setLayout struct {
	bindings []device.LayoutBinding
	layout   hal.BindGroupLayout
}

type descriptorPool struct {
	desc device.DescriptorPoolDescriptor
	free map[device.DescriptorType]uint32
	sets map[device.DescriptorSet]struct{}
}

type descriptorSet struct {
	pool    device.DescriptorPool
	layout  *setLayout
	entries map[uint32]gputypes.BindGroupEntry
	// group is rebuilt once every binding of the layout has been written.
	group hal.BindGroup
}

// retiredGroup is a replaced bind group waiting for the submissions that
// may reference it.
type retiredGroup struct {
	group hal.BindGroup
	after uint64
}

// layoutEntry maps a Vulkan-style binding onto a WebGPU layout entry.
func layoutEntry(b device.LayoutBinding) (gputypes.BindGroupLayoutEntry, error) {
	e := gputypes.BindGroupLayoutEntry{Binding: b.Binding, Visibility: b.Stages}
	if b.Count > 1 {
		return e, fmt.Errorf("%w: binding %d: descriptor arrays", device.ErrUnsupported, b.Binding)
	}
	switch b.Type {
	case device.DescriptorUniformBuffer, device.DescriptorUniformBufferDynamic:
		e.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeUniform,
			HasDynamicOffset: b.Type == device.DescriptorUniformBufferDynamic,
		}
	case device.DescriptorStorageBuffer, device.DescriptorStorageBufferDynamic:
		e.Buffer = &gputypes.BufferBindingLayout{
			Type:             gputypes.BufferBindingTypeStorage,
			HasDynamicOffset: b.Type == device.DescriptorStorageBufferDynamic,
		}
	case device.DescriptorSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case device.DescriptorSampledImage:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    gputypes.TextureSampleTypeFloat,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case device.DescriptorStorageImage:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        gputypes.TextureFormatRGBA8Unorm,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		return e, fmt.Errorf("%w: binding %d: %s", device.ErrUnsupported, b.Binding, b.Type)
	}
	return e, nil
}

// CreateDescriptorSetLayout creates a bind group layout.
func (d *Device) CreateDescriptorSetLayout(bindings []device.LayoutBinding) (device.DescriptorSetLayout, error) {
	if n := uint32(len(bindings)); n > d.limits.MaxBindingsPerBindGroup {
		return 0, fmt.Errorf("%w: %d bindings exceed the limit of %d",
			device.ErrValidation, n, d.limits.MaxBindingsPerBindGroup)
	}
	entries := make([]gputypes.BindGroupLayoutEntry, len(bindings))
	for i, b := range bindings {
		e, err := layoutEntry(b)
		if err != nil {
			return 0, err
		}
		entries[i] = e
	}
	layout, err := d.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Entries: entries})
	if err != nil {
		return 0, fmt.Errorf("haldev: create bind group layout: %w", mapErr(err))
	}
	h := device.DescriptorSetLayout(d.handles.Next())
	d.layouts[h] = &setLayout{bindings: slices.Clone(bindings), layout: layout}
	return h, nil
}

// DestroyDescriptorSetLayout destroys a layout.
func (d *Device) DestroyDescriptorSetLayout(h device.DescriptorSetLayout) {
	l, ok := d.layouts[h]
	if !ok {
		return
	}
	d.dev.DestroyBindGroupLayout(l.layout)
	delete(d.layouts, h)
}

// CreateDescriptorPool creates a pool that accounts for MaxSets and the
// per-type sizes.
func (d *Device) CreateDescriptorPool(desc *device.DescriptorPoolDescriptor) (device.DescriptorPool, error) {
	if desc == nil {
		return 0, fmt.Errorf("%w: nil descriptor pool descriptor", device.ErrValidation)
	}
	p := &descriptorPool{
		desc: *desc,
		free: make(map[device.DescriptorType]uint32, len(desc.Sizes)),
		sets: make(map[device.DescriptorSet]struct{}),
	}
	p.desc.Sizes = slices.Clone(desc.Sizes)
	p.refill()
	h := device.DescriptorPool(d.handles.Next())
	d.descPools[h] = p
	return h, nil
}

func (p *descriptorPool) refill() {
	clear(p.free)
	for _, s := range p.desc.Sizes {
		p.free[s.Type] += s.Count
	}
}

// ResetDescriptorPool frees every set allocated from the pool.
func (d *Device) ResetDescriptorPool(h device.DescriptorPool) error {
	p, ok := d.descPools[h]
	if !ok {
		return unknown("descriptor pool", h)
	}
	for s := range p.sets {
		d.releaseSet(s)
	}
	clear(p.sets)
	p.refill()
	return nil
}

// DestroyDescriptorPool destroys a pool and its sets.
func (d *Device) DestroyDescriptorPool(h device.DescriptorPool) {
	p, ok := d.descPools[h]
	if !ok {
		return
	}
	for s := range p.sets {
		d.releaseSet(s)
	}
	delete(d.descPools, h)
}

func needs(layouts []*setLayout) map[device.DescriptorType]uint32 {
	n := make(map[device.DescriptorType]uint32)
	for _, l := range layouts {
		for _, b := range l.bindings {
			n[b.Type] += max(b.Count, 1)
		}
	}
	return n
}

// AllocateDescriptorSets allocates one set per layout.
func (d *Device) AllocateDescriptorSets(h device.DescriptorPool, layouts []device.DescriptorSetLayout) ([]device.DescriptorSet, error) {
	p, ok := d.descPools[h]
	if !ok {
		return nil, unknown("descriptor pool", h)
	}
	ls := make([]*setLayout, len(layouts))
	for i, lh := range layouts {
		l, ok := d.layouts[lh]
		if !ok {
			return nil, unknown("descriptor set layout", lh)
		}
		ls[i] = l
	}
	if uint32(len(p.sets)+len(ls)) > p.desc.MaxSets {
		return nil, fmt.Errorf("%w: %d sets requested, %d of %d in use",
			device.ErrOutOfPoolMemory, len(ls), len(p.sets), p.desc.MaxSets)
	}
	need := needs(ls)
	for t, n := range need {
		if p.free[t] < n {
			return nil, fmt.Errorf("%w: %d %s descriptors requested, %d free",
				device.ErrOutOfPoolMemory, n, t, p.free[t])
		}
	}
	for t, n := range need {
		p.free[t] -= n
	}

	out := make([]device.DescriptorSet, len(ls))
	for i, l := range ls {
		sh := device.DescriptorSet(d.handles.Next())
		d.sets[sh] = &descriptorSet{
			pool:    h,
			layout:  l,
			entries: make(map[uint32]gputypes.BindGroupEntry, len(l.bindings)),
		}
		p.sets[sh] = struct{}{}
		out[i] = sh
	}
	return out, nil
}

// FreeDescriptorSets returns sets to a pool created with FreeIndividual.
func (d *Device) FreeDescriptorSets(h device.DescriptorPool, sets []device.DescriptorSet) error {
	p, ok := d.descPools[h]
	if !ok {
		return unknown("descriptor pool", h)
	}
	if !p.desc.FreeIndividual {
		return validation("free of individual sets from pool %d without FreeIndividual", h)
	}
	for _, sh := range sets {
		s, ok := d.sets[sh]
		if !ok || s.pool != h {
			return unknown("descriptor set", sh)
		}
		for t, n := range needs([]*setLayout{s.layout}) {
			p.free[t] += n
		}
		d.releaseSet(sh)
		delete(p.sets, sh)
	}
	return nil
}

func (d *Device) releaseSet(h device.DescriptorSet) {
	s, ok := d.sets[h]
	if !ok {
		return
	}
	d.retire(s.group)
	delete(d.sets, h)
}

// UpdateDescriptorSets applies the writes. A set whose bindings are all
// written gets a new bind group.
func (d *Device) UpdateDescriptorSets(writes []device.DescriptorWrite) {
	var touched []*descriptorSet
	for _, w := range writes {
		s, ok := d.sets[w.Set]
		if !ok {
			logging.Logger().Warn("haldev: write to unknown descriptor set", "set", uint64(w.Set))
			continue
		}
		res, err := d.resource(w)
		if err != nil {
			logging.Logger().Warn("haldev: descriptor write dropped",
				"set", uint64(w.Set), "binding", w.Binding, "error", err)
			continue
		}
		s.entries[w.Binding] = gputypes.BindGroupEntry{Binding: w.Binding, Resource: res}
		if !slices.Contains(touched, s) {
			touched = append(touched, s)
		}
	}
	for _, s := range touched {
		if len(s.entries) < len(s.layout.bindings) {
			continue
		}
		if err := d.rebuild(s); err != nil {
			logging.Logger().Warn("haldev: rebuild bind group", "error", err)
		}
	}
}

func (d *Device) resource(w device.DescriptorWrite) (gputypes.BindingResource, error) {
	switch {
	case w.Buffer != nil:
		buf, ok := d.buffers[w.Buffer.Buffer]
		if !ok {
			return nil, unknown("buffer", w.Buffer.Buffer)
		}
		size := w.Buffer.Range
		if size == device.WholeSize {
			size = 0
		}
		return gputypes.BufferBinding{Buffer: buf.NativeHandle(), Offset: w.Buffer.Offset, Size: size}, nil
	case w.Image != nil && w.Type == device.DescriptorSampler:
		s, ok := d.samplers[w.Image.Sampler]
		if !ok {
			return nil, unknown("sampler", w.Image.Sampler)
		}
		return gputypes.SamplerBinding{Sampler: s.NativeHandle()}, nil
	case w.Image != nil:
		v, ok := d.views[w.Image.View]
		if !ok {
			return nil, unknown("image view", w.Image.View)
		}
		return gputypes.TextureViewBinding{TextureView: v.NativeHandle()}, nil
	}
	return nil, fmt.Errorf("%w: write to binding %d has no resource", device.ErrValidation, w.Binding)
}

func (d *Device) rebuild(s *descriptorSet) error {
	entries := make([]gputypes.BindGroupEntry, 0, len(s.entries))
	for _, b := range s.layout.bindings {
		entries = append(entries, s.entries[b.Binding])
	}
	group, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{Layout: s.layout.layout, Entries: entries})
	if err != nil {
		return mapErr(err)
	}
	d.retire(s.group)
	s.group = group
	return nil
}

// retire schedules a bind group for destruction once the queue has passed
// the latest submission.
func (d *Device) retire(g hal.BindGroup) {
	if g == nil {
		return
	}
	d.retired = append(d.retired, retiredGroup{group: g, after: d.lastSubmit})
	d.collect()
}

// collect destroys retired bind groups that no submission or recorded
// buffer can reference any more.
func (d *Device) collect() {
	if len(d.retired) == 0 {
		return
	}
	done := d.completed()
	d.retired = slices.DeleteFunc(d.retired, func(r retiredGroup) bool {
		if r.after > done || d.referenced(r.group) {
			return false
		}
		d.dev.DestroyBindGroup(r.group)
		return true
	})
}

func (d *Device) referenced(g hal.BindGroup) bool {
	for _, cb := range d.cbs {
		if slices.Contains(cb.bound, g) {
			return true
		}
	}
	return false
}
