// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldev

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameflight/device"
)

// halProvider is implemented by providers that expose their HAL objects,
// such as a gogpu window.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// fromProvider is the device.ProviderAdapter for HAL-backed providers.
func fromProvider(p gpucontext.DeviceProvider) (device.Device, bool, error) {
	hp, ok := p.(halProvider)
	if !ok {
		return nil, false, nil
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, true, fmt.Errorf("%w: provider HalDevice is not hal.Device", device.ErrUnsupported)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, true, fmt.Errorf("%w: provider HalQueue is not hal.Queue", device.ErrUnsupported)
	}
	info := p.AdapterInfo()
	d, err := New(dev, queue, WithAdapterInfo(gputypes.AdapterInfo{
		Name:       info.Name,
		DeviceType: deviceType(info.Type),
	}))
	if err != nil {
		return nil, true, err
	}
	return d, true, nil
}

// Provider exposes a HAL device and queue as a gpucontext.DeviceProvider.
// It lets headless tools share one device between frameflight and other
// gogpu libraries.
type Provider struct {
	dev    hal.Device
	queue  hal.Queue
	format gputypes.TextureFormat
	info   gputypes.AdapterInfo
}

var _ gpucontext.DeviceProvider = (*Provider)(nil)

// NewProvider returns a provider for the Device's HAL objects.
func NewProvider(d *Device, format gputypes.TextureFormat) *Provider {
	return &Provider{dev: d.dev, queue: d.queue, format: format, info: d.info}
}

// Device returns the HAL device.
func (p *Provider) Device() gpucontext.Device { return p.dev }

// Queue returns the HAL queue.
func (p *Provider) Queue() gpucontext.Queue { return p.queue }

// SurfaceFormat returns the preferred surface format.
func (p *Provider) SurfaceFormat() gputypes.TextureFormat { return p.format }

// Adapter returns nil; the adapter is not retained.
func (p *Provider) Adapter() gpucontext.Adapter { return nil }

// AdapterInfo returns the adapter name and type.
func (p *Provider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: p.info.Name, Type: adapterType(p.info.DeviceType)}
}

// HalDevice returns the HAL device.
func (p *Provider) HalDevice() any { return p.dev }

// HalQueue returns the HAL queue.
func (p *Provider) HalQueue() any { return p.queue }

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

func deviceType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}
