// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldev

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/internal/logging"
)

type commandPool struct {
	desc    device.CommandPoolDescriptor
	buffers map[device.CommandBuffer]struct{}
}

type commandBuffer struct {
	pool  device.CommandPool
	label string
	enc   hal.CommandEncoder

	// cmd is the result of the last EndEncoding, nil until the first
	// recording is finished.
	cmd       hal.CommandBuffer
	recording bool

	// Compute pass state. Bindings are replayed when a barrier splits the
	// recording into a new pass.
	pass     hal.ComputePassEncoder
	pipeline hal.ComputePipeline
	groups   map[uint32]*descriptorSet

	// bound holds every bind group recorded into the buffer. They stay
	// alive until the buffer is reset.
	bound []hal.BindGroup

	submitted uint64
}

// CreateCommandPool creates a command pool.
func (d *Device) CreateCommandPool(desc *device.CommandPoolDescriptor) (device.CommandPool, error) {
	p := &commandPool{buffers: make(map[device.CommandBuffer]struct{})}
	if desc != nil {
		p.desc = *desc
	}
	h := device.CommandPool(d.handles.Next())
	d.cmdPools[h] = p
	return h, nil
}

// ResetCommandPool returns every buffer of the pool to the initial state.
func (d *Device) ResetCommandPool(h device.CommandPool) error {
	p, ok := d.cmdPools[h]
	if !ok {
		return unknown("command pool", h)
	}
	for cbh := range p.buffers {
		if d.pending(d.cbs[cbh]) {
			return validation("reset of command pool %d with pending buffer %d", h, cbh)
		}
	}
	for cbh := range p.buffers {
		d.resetBuffer(d.cbs[cbh])
	}
	return nil
}

// DestroyCommandPool destroys a pool and every buffer allocated from it.
func (d *Device) DestroyCommandPool(h device.CommandPool) {
	p, ok := d.cmdPools[h]
	if !ok {
		return
	}
	for cbh := range p.buffers {
		d.destroyBuffer(cbh)
	}
	delete(d.cmdPools, h)
}

// AllocateCommandBuffers creates count buffers, each with its own encoder.
func (d *Device) AllocateCommandBuffers(h device.CommandPool, count int) ([]device.CommandBuffer, error) {
	p, ok := d.cmdPools[h]
	if !ok {
		return nil, unknown("command pool", h)
	}
	out := make([]device.CommandBuffer, 0, count)
	for i := range count {
		label := fmt.Sprintf("%s[%d]", p.desc.Label, i)
		enc, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
		if err != nil {
			for _, cbh := range out {
				d.destroyBuffer(cbh)
			}
			return nil, fmt.Errorf("haldev: create command encoder: %w", mapErr(err))
		}
		cbh := device.CommandBuffer(d.handles.Next())
		d.cbs[cbh] = &commandBuffer{pool: h, label: label, enc: enc}
		p.buffers[cbh] = struct{}{}
		out = append(out, cbh)
	}
	return out, nil
}

// FreeCommandBuffers releases buffers back to their pool.
func (d *Device) FreeCommandBuffers(h device.CommandPool, buffers []device.CommandBuffer) {
	for _, cbh := range buffers {
		cb, ok := d.cbs[cbh]
		if !ok || cb.pool != h {
			continue
		}
		if d.pending(cb) {
			logging.Logger().Warn("haldev: freeing pending command buffer", "buffer", uint64(cbh))
		}
		d.destroyBuffer(cbh)
	}
}

func (d *Device) destroyBuffer(h device.CommandBuffer) {
	cb, ok := d.cbs[h]
	if !ok {
		return
	}
	d.resetBuffer(cb)
	cb.enc.Destroy()
	delete(d.cbs, h)
	if p, ok := d.cmdPools[cb.pool]; ok {
		delete(p.buffers, h)
	}
}

// pending reports whether the buffer's last submission is still executing.
func (d *Device) pending(cb *commandBuffer) bool {
	return cb != nil && cb.submitted != 0 && d.completed() < cb.submitted
}

func (d *Device) resetBuffer(cb *commandBuffer) {
	if cb.recording {
		cb.endPass()
		cb.enc.DiscardEncoding()
		cb.recording = false
	}
	if cb.cmd != nil {
		d.dev.FreeCommandBuffer(cb.cmd)
		cb.cmd = nil
	}
	cb.pipeline = nil
	clear(cb.groups)
	cb.bound = cb.bound[:0]
}

func (d *Device) buffer(h device.CommandBuffer) (*commandBuffer, error) {
	cb, ok := d.cbs[h]
	if !ok {
		return nil, unknown("command buffer", h)
	}
	return cb, nil
}

// BeginCommandBuffer starts recording, implicitly resetting a finished
// buffer.
func (d *Device) BeginCommandBuffer(h device.CommandBuffer, _ bool) error {
	cb, err := d.buffer(h)
	if err != nil {
		return err
	}
	if cb.recording {
		return validation("begin of command buffer %d that is already recording", h)
	}
	if d.pending(cb) {
		return validation("begin of pending command buffer %d", h)
	}
	d.resetBuffer(cb)
	if err := cb.enc.BeginEncoding(cb.label); err != nil {
		return fmt.Errorf("haldev: begin encoding: %w", mapErr(err))
	}
	cb.recording = true
	return nil
}

// EndCommandBuffer finishes recording.
func (d *Device) EndCommandBuffer(h device.CommandBuffer) error {
	cb, err := d.buffer(h)
	if err != nil {
		return err
	}
	if !cb.recording {
		return validation("end of command buffer %d that is not recording", h)
	}
	cb.endPass()
	cmd, err := cb.enc.EndEncoding()
	cb.recording = false
	if err != nil {
		return fmt.Errorf("haldev: end encoding: %w", mapErr(err))
	}
	cb.cmd = cmd
	return nil
}

// ResetCommandBuffer returns a buffer to the initial state.
func (d *Device) ResetCommandBuffer(h device.CommandBuffer) error {
	cb, err := d.buffer(h)
	if err != nil {
		return err
	}
	if d.pending(cb) {
		return validation("reset of pending command buffer %d", h)
	}
	d.resetBuffer(cb)
	return nil
}

// recordingBuffer looks up a buffer for a Cmd* call. Recording into a
// buffer that is not recording is logged and dropped.
func (d *Device) recordingBuffer(h device.CommandBuffer, op string) *commandBuffer {
	cb, ok := d.cbs[h]
	if !ok || !cb.recording {
		logging.Logger().Warn("haldev: command dropped", "op", op, "buffer", uint64(h))
		return nil
	}
	return cb
}

// CmdPipelineBarrier ends the open compute pass and records the
// transitions.
func (d *Device) CmdPipelineBarrier(h device.CommandBuffer, barriers *device.BarrierSet) {
	cb := d.recordingBuffer(h, "barrier")
	if cb == nil || barriers == nil || barriers.Empty() {
		return
	}
	cb.endPass()

	if len(barriers.Buffers) > 0 {
		bb := make([]hal.BufferBarrier, 0, len(barriers.Buffers))
		for _, t := range barriers.Buffers {
			buf, ok := d.buffers[t.Buffer]
			if !ok {
				logging.Logger().Warn("haldev: barrier on unknown buffer", "buffer", uint64(t.Buffer))
				continue
			}
			bb = append(bb, hal.BufferBarrier{
				Buffer: buf,
				Usage:  hal.BufferUsageTransition{OldUsage: t.From, NewUsage: t.To},
			})
		}
		cb.enc.TransitionBuffers(bb)
	}
	if len(barriers.Images) > 0 {
		tb := make([]hal.TextureBarrier, 0, len(barriers.Images))
		for _, t := range barriers.Images {
			tex, ok := d.textures[t.Image]
			if !ok {
				logging.Logger().Warn("haldev: barrier on unknown image", "image", uint64(t.Image))
				continue
			}
			tb = append(tb, hal.TextureBarrier{
				Texture: tex,
				Range: hal.TextureRange{
					Aspect:          gputypes.TextureAspectAll,
					BaseMipLevel:    t.BaseMipLevel,
					MipLevelCount:   t.MipLevelCount,
					BaseArrayLayer:  t.BaseArrayLayer,
					ArrayLayerCount: t.LayerCount,
				},
				Usage: hal.TextureUsageTransition{OldUsage: t.From, NewUsage: t.To},
			})
		}
		cb.enc.TransitionTextures(tb)
	}
}

// CmdBindPipeline binds a registered compute pipeline.
func (d *Device) CmdBindPipeline(h device.CommandBuffer, pipeline device.Pipeline) {
	cb := d.recordingBuffer(h, "bind-pipeline")
	if cb == nil {
		return
	}
	p, ok := d.pipelines[pipeline]
	if !ok {
		logging.Logger().Warn("haldev: bind of unknown pipeline", "pipeline", uint64(pipeline))
		return
	}
	cb.pipeline = p
	if cb.pass != nil {
		cb.pass.SetPipeline(p)
	}
}

// CmdBindDescriptorSet binds the set's current bind group at index.
func (d *Device) CmdBindDescriptorSet(h device.CommandBuffer, _ device.Pipeline, index uint32, set device.DescriptorSet) {
	cb := d.recordingBuffer(h, "bind-set")
	if cb == nil {
		return
	}
	s, ok := d.sets[set]
	if !ok {
		logging.Logger().Warn("haldev: bind of unknown descriptor set", "set", uint64(set))
		return
	}
	if cb.groups == nil {
		cb.groups = make(map[uint32]*descriptorSet)
	}
	cb.groups[index] = s
	if cb.pass != nil {
		cb.setGroup(index, s)
	}
}

// CmdDispatch dispatches compute work in the open pass, opening one if
// needed.
func (d *Device) CmdDispatch(h device.CommandBuffer, x, y, z uint32) {
	cb := d.recordingBuffer(h, "dispatch")
	if cb == nil {
		return
	}
	if cb.pipeline == nil {
		logging.Logger().Warn("haldev: dispatch without pipeline", "buffer", uint64(h))
		return
	}
	cb.beginPass()
	cb.pass.Dispatch(x, y, z)
}

func (cb *commandBuffer) beginPass() {
	if cb.pass != nil {
		return
	}
	cb.pass = cb.enc.BeginComputePass(&hal.ComputePassDescriptor{Label: cb.label})
	if cb.pipeline != nil {
		cb.pass.SetPipeline(cb.pipeline)
	}
	for index, s := range cb.groups {
		cb.setGroup(index, s)
	}
}

func (cb *commandBuffer) setGroup(index uint32, s *descriptorSet) {
	if s.group == nil {
		logging.Logger().Warn("haldev: descriptor set bound before all bindings were written",
			"index", index)
		return
	}
	cb.pass.SetBindGroup(index, s.group, nil)
	cb.bound = append(cb.bound, s.group)
}

func (cb *commandBuffer) endPass() {
	if cb.pass == nil {
		return
	}
	cb.pass.End()
	cb.pass = nil
}
