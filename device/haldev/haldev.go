// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldev

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/internal/logging"
)

func init() {
	device.Register(device.BackendHALNoop, func() (device.Device, error) {
		return Open(noop.API{}, device.BackendHALNoop)
	})
	device.RegisterProviderAdapter(fromProvider)
}

// Option configures a Device.
type Option func(*Device)

// WithName sets the name reported by Device.Name. The default is "hal".
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

// WithLimits sets the limits reported by Device.Limits. The default is
// gputypes.DefaultLimits.
func WithLimits(l gputypes.Limits) Option {
	return func(d *Device) { d.limits = l }
}

// WithAdapterInfo records the adapter the device was opened on.
func WithAdapterInfo(info gputypes.AdapterInfo) Option {
	return func(d *Device) { d.info = info }
}

// Device is a device.Device backed by a HAL device and queue.
type Device struct {
	name   string
	limits gputypes.Limits
	info   gputypes.AdapterInfo
	dev    hal.Device
	queue  hal.Queue

	// release destroys the HAL device and instance when the Device opened
	// them itself. Nil for wrapped devices.
	release func()

	handles device.HandleAllocator

	cmdPools   map[device.CommandPool]*commandPool
	cbs        map[device.CommandBuffer]*commandBuffer
	fences     map[device.Fence]*fence
	sems       map[device.Semaphore]struct{}
	layouts    map[device.DescriptorSetLayout]*setLayout
	descPools  map[device.DescriptorPool]*descriptorPool
	sets       map[device.DescriptorSet]*descriptorSet
	pipelines  map[device.Pipeline]hal.ComputePipeline
	buffers    map[device.Buffer]hal.Buffer
	textures   map[device.Image]hal.Texture
	views      map[device.ImageView]hal.TextureView
	samplers   map[device.Sampler]hal.Sampler
	swapchains map[device.Swapchain]*swapchain

	lastSubmit uint64
	retired    []retiredGroup
	destroyed  bool
}

var _ device.Device = (*Device)(nil)

// New wraps an existing HAL device and queue. The caller keeps ownership of
// both; Destroy releases only the objects created through the Device.
func New(dev hal.Device, queue hal.Queue, opts ...Option) (*Device, error) {
	if dev == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil hal device or queue", device.ErrInvalidHandle)
	}
	d := &Device{
		name:       "hal",
		limits:     gputypes.DefaultLimits(),
		dev:        dev,
		queue:      queue,
		cmdPools:   make(map[device.CommandPool]*commandPool),
		cbs:        make(map[device.CommandBuffer]*commandBuffer),
		fences:     make(map[device.Fence]*fence),
		sems:       make(map[device.Semaphore]struct{}),
		layouts:    make(map[device.DescriptorSetLayout]*setLayout),
		descPools:  make(map[device.DescriptorPool]*descriptorPool),
		sets:       make(map[device.DescriptorSet]*descriptorSet),
		pipelines:  make(map[device.Pipeline]hal.ComputePipeline),
		buffers:    make(map[device.Buffer]hal.Buffer),
		textures:   make(map[device.Image]hal.Texture),
		views:      make(map[device.ImageView]hal.TextureView),
		samplers:   make(map[device.Sampler]hal.Sampler),
		swapchains: make(map[device.Swapchain]*swapchain),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Open creates an instance of the HAL backend, opens its first adapter and
// returns a Device that owns the result.
func Open(api hal.Backend, name string) (*Device, error) {
	inst, err := api.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("haldev: create instance: %w", mapErr(err))
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		inst.Destroy()
		return nil, fmt.Errorf("%w: no %s adapters", device.ErrUnsupported, name)
	}
	exposed := adapters[0]
	limits := exposed.Capabilities.Limits
	open, err := exposed.Adapter.Open(0, limits)
	if err != nil {
		inst.Destroy()
		return nil, fmt.Errorf("haldev: open adapter %q: %w", exposed.Info.Name, mapErr(err))
	}

	d, err := New(open.Device, open.Queue,
		WithName(name), WithLimits(limits), WithAdapterInfo(exposed.Info))
	if err != nil {
		open.Device.Destroy()
		inst.Destroy()
		return nil, err
	}
	d.release = func() {
		open.Device.Destroy()
		inst.Destroy()
	}
	logging.Logger().Debug("haldev: opened", "backend", name, "adapter", exposed.Info.Name)
	return d, nil
}

// Name returns the backend name.
func (d *Device) Name() string { return d.name }

// Limits returns the device limits.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// AdapterInfo returns the adapter the device was opened on. It is zero for
// wrapped devices.
func (d *Device) AdapterInfo() gputypes.AdapterInfo { return d.info }

// HAL returns the underlying HAL device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.dev, d.queue }

// WaitIdle blocks until the queue has drained.
func (d *Device) WaitIdle() error {
	if err := d.dev.WaitIdle(); err != nil {
		return fmt.Errorf("haldev: wait idle: %w", mapErr(err))
	}
	d.collect()
	return nil
}

// Destroy waits for the queue to drain and releases every object created
// through the Device. Registered resources are left to their owner. The
// HAL device itself is destroyed only when the Device opened it.
func (d *Device) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	if err := d.dev.WaitIdle(); err != nil {
		logging.Logger().Warn("haldev: wait idle before destroy", "error", err)
	}

	for h := range d.cmdPools {
		d.DestroyCommandPool(h)
	}
	for h := range d.descPools {
		d.DestroyDescriptorPool(h)
	}
	for h := range d.layouts {
		d.DestroyDescriptorSetLayout(h)
	}
	for h := range d.swapchains {
		d.UnregisterSurface(h)
	}
	for _, r := range d.retired {
		d.dev.DestroyBindGroup(r.group)
	}
	d.retired = nil
	clear(d.fences)
	clear(d.sems)

	if d.release != nil {
		d.release()
		d.release = nil
	}
}

// completed returns the highest submission index the queue has finished.
func (d *Device) completed() uint64 { return d.queue.PollCompleted() }

// mapErr translates HAL errors into the device error vocabulary.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrDeviceLost):
		return fmt.Errorf("%w: %w", device.ErrDeviceLost, err)
	case errors.Is(err, hal.ErrSurfaceOutdated), errors.Is(err, hal.ErrSurfaceLost):
		return fmt.Errorf("%w: %w", device.ErrOutOfDate, err)
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return fmt.Errorf("%w: %w", device.ErrOutOfMemory, err)
	case errors.Is(err, hal.ErrTimeout), errors.Is(err, hal.ErrNotReady):
		return fmt.Errorf("%w: %w", device.ErrTimeout, err)
	case errors.Is(err, hal.ErrTimestampsNotSupported):
		return fmt.Errorf("%w: %w", device.ErrUnsupported, err)
	}
	return err
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: haldev: %s", device.ErrValidation, fmt.Sprintf(format, args...))
}

func unknown[H device.Handle](kind string, h H) error {
	return fmt.Errorf("%w: %s %d", device.ErrInvalidHandle, kind, uint64(h))
}
