// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldev

import (
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameflight/device"
)

// Resources are created by the application through the HAL and registered
// here so command buffers and descriptor writes can refer to them by
// handle. The Device never destroys registered resources.

// RegisterBuffer returns a handle for a HAL buffer.
func (d *Device) RegisterBuffer(b hal.Buffer) device.Buffer {
	h := device.Buffer(d.handles.Next())
	d.buffers[h] = b
	return h
}

// RegisterTexture returns a handle for a HAL texture.
func (d *Device) RegisterTexture(t hal.Texture) device.Image {
	h := device.Image(d.handles.Next())
	d.textures[h] = t
	return h
}

// RegisterTextureView returns a handle for a HAL texture view.
func (d *Device) RegisterTextureView(v hal.TextureView) device.ImageView {
	h := device.ImageView(d.handles.Next())
	d.views[h] = v
	return h
}

// RegisterSampler returns a handle for a HAL sampler.
func (d *Device) RegisterSampler(s hal.Sampler) device.Sampler {
	h := device.Sampler(d.handles.Next())
	d.samplers[h] = s
	return h
}

// RegisterComputePipeline returns a handle for a HAL compute pipeline.
func (d *Device) RegisterComputePipeline(p hal.ComputePipeline) device.Pipeline {
	h := device.Pipeline(d.handles.Next())
	d.pipelines[h] = p
	return h
}

// Forget drops a registered resource handle of any kind.
func (d *Device) Forget(h uint64) {
	delete(d.buffers, device.Buffer(h))
	delete(d.textures, device.Image(h))
	delete(d.views, device.ImageView(h))
	delete(d.samplers, device.Sampler(h))
	delete(d.pipelines, device.Pipeline(h))
}
