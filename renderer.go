// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frameflight

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/frameflight/command"
	"github.com/gogpu/frameflight/descriptor"
	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/handle"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
	"github.com/gogpu/frameflight/pool"
	"github.com/gogpu/frameflight/rendergraph"
	"github.com/gogpu/frameflight/submit"
)

// Frame describes the frame opened by BeginFrame.
type Frame struct {
	// Number counts frames since the renderer was created.
	Number uint64
	// Slot is the frame slot whose resources the frame uses.
	Slot int
	// Image is the acquired swapchain image, valid when HasImage is set.
	Image    uint32
	HasImage bool
}

// Stats counts renderer activity.
type Stats struct {
	Frames         uint64
	Skipped        uint64
	Graphs         int
	DescriptorSets int
	CommandBuffers int
}

// Renderer drives the frame lifecycle and owns the shared pools every
// frame-aware object allocates from. It is not safe for concurrent use.
type Renderer struct {
	cfg     Config
	dev     device.Device
	backend string
	ctx     *frame.Context

	cmdPool  handle.Owner[*pool.CommandPool]
	descPool handle.Owner[*pool.DescriptorPool]

	presenter *submit.Presenter
	source    *rendergraph.Graph
	srcStage  device.PipelineStage

	graphs  []*rendergraph.Graph
	sets    []*descriptor.Set
	buffers []*command.Buffer

	inFrame   bool
	destroyed bool
	stats     Stats
}

// New creates a renderer on dev. The renderer does not own dev.
func New(dev device.Device, opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("frameflight: %w", frame.ErrNilDevice)
	}
	ctx, err := frame.NewContext(dev, o.cfg.MaxFramesInFlight)
	if err != nil {
		return nil, fmt.Errorf("frameflight: %w", err)
	}

	r := &Renderer{cfg: o.cfg, dev: dev, backend: dev.Name(), ctx: ctx}
	r.cmdPool = r.commandPoolBuilder().Build(ctx)
	r.descPool = r.descriptorPoolBuilder().Build(ctx)
	if !device.IsNull(o.swapchain) {
		r.presenter = submit.NewPresenter(ctx, o.swapchain)
	}

	logging.Logger().Info("frameflight: renderer created",
		"backend", r.backend, "framesInFlight", o.cfg.MaxFramesInFlight,
		"swapchain", r.presenter != nil, "label", o.cfg.Label)
	return r, nil
}

// Open opens a registered backend by name and creates a renderer on it.
// An empty name picks the highest-priority registered backend.
func Open(backend string, opts ...Option) (*Renderer, error) {
	var (
		dev device.Device
		err error
	)
	if backend == "" {
		dev, backend, err = device.OpenBest()
	} else {
		dev, err = device.Open(backend)
	}
	if err != nil {
		return nil, fmt.Errorf("frameflight: %w", err)
	}
	logging.Logger().Info("frameflight: backend selected", "backend", backend)
	return New(dev, opts...)
}

// NewFromProvider creates a renderer on the device of a host application.
func NewFromProvider(p gpucontext.DeviceProvider, opts ...Option) (*Renderer, error) {
	dev, err := device.FromProvider(p)
	if err != nil {
		return nil, fmt.Errorf("frameflight: %w", err)
	}
	return New(dev, opts...)
}

func (r *Renderer) commandPoolBuilder() pool.CommandPoolBuilder {
	b := pool.NewCommandPoolBuilder(r.cfg.Label + "/commands").
		Reserve(r.cfg.CommandPool.Capacity).
		Strict(r.cfg.StrictExhaustion)
	if r.cfg.CommandPool.Transient {
		b = b.Transient()
	}
	return b
}

func (r *Renderer) descriptorPoolBuilder() pool.DescriptorPoolBuilder {
	c := r.cfg.DescriptorPool
	b := pool.NewDescriptorPoolBuilder(r.cfg.Label + "/descriptors").
		ReserveSets(c.MaxSets).
		FreeIndividual().
		Strict(r.cfg.StrictExhaustion)
	for _, s := range []struct {
		t device.DescriptorType
		n uint32
	}{
		{device.DescriptorUniformBuffer, c.UniformBuffers},
		{device.DescriptorStorageBuffer, c.StorageBuffers},
		{device.DescriptorSampledImage, c.SampledImages},
		{device.DescriptorStorageImage, c.StorageImages},
		{device.DescriptorSampler, c.Samplers},
		{device.DescriptorCombinedImageSampler, c.CombinedImageSamplers},
	} {
		if s.n > 0 {
			b = b.Reserve(s.t, s.n)
		}
	}
	return b
}

func (r *Renderer) alive() {
	assert.That(!r.destroyed, "use of destroyed renderer %q", r.cfg.Label)
}

// Config returns the renderer configuration.
func (r *Renderer) Config() Config { return r.cfg }

// Device returns the device the renderer drives.
func (r *Renderer) Device() device.Device { return r.dev }

// Backend returns the backend name.
func (r *Renderer) Backend() string { return r.backend }

// Context returns the shared frame context.
func (r *Renderer) Context() *frame.Context { return r.ctx }

// Stats returns the activity counters.
func (r *Renderer) Stats() Stats {
	s := r.stats
	s.Graphs = len(r.graphs)
	s.DescriptorSets = len(r.sets)
	s.CommandBuffers = len(r.buffers)
	return s
}

// NewGraph creates a graph allocating from the renderer's command pool.
// Its slot recycle wait is bounded by the configured fence timeout.
func (r *Renderer) NewGraph(label string, opts ...rendergraph.Option) (*rendergraph.Graph, error) {
	r.alive()
	opts = append([]rendergraph.Option{
		rendergraph.WithLabel(label),
		rendergraph.WithFenceTimeout(r.cfg.FenceTimeout),
	}, opts...)
	g, err := rendergraph.New(r.ctx, &r.cmdPool, opts...)
	if err != nil {
		return nil, fmt.Errorf("frameflight: %w", err)
	}
	r.graphs = append(r.graphs, g)
	return g, nil
}

// NewDescriptorSet creates a descriptor set allocating from the renderer's
// descriptor pool.
func (r *Renderer) NewDescriptorSet(label string, opts ...descriptor.Option) *descriptor.Set {
	r.alive()
	opts = append([]descriptor.Option{descriptor.WithLabel(label)}, opts...)
	s := descriptor.New(&r.descPool, opts...)
	r.sets = append(r.sets, s)
	return s
}

// NewCommandBuffer creates a command buffer allocating from the renderer's
// command pool.
func (r *Renderer) NewCommandBuffer(label string, opts ...command.Option) (*command.Buffer, error) {
	r.alive()
	opts = append([]command.Option{command.WithLabel(label)}, opts...)
	b, err := command.New(&r.cmdPool, opts...)
	if err != nil {
		return nil, fmt.Errorf("frameflight: %w", err)
	}
	r.buffers = append(r.buffers, b)
	return b, nil
}

// PresentFrom makes g the graph that renders into the swapchain image: g
// waits for the acquired image at stage and Present waits for g.
func (r *Renderer) PresentFrom(g *rendergraph.Graph, stage device.PipelineStage) error {
	r.alive()
	assert.That(r.presenter != nil, "PresentFrom without a swapchain")
	r.detachSource()
	if err := g.Unit().AddWaitObject(r.presenter, stage); err != nil {
		return fmt.Errorf("frameflight: %w", err)
	}
	if err := r.presenter.AddWaitObject(g.Unit(), device.StageBottomOfPipe); err != nil {
		return fmt.Errorf("frameflight: %w", err)
	}
	r.source, r.srcStage = g, stage
	return nil
}

func (r *Renderer) detachSource() {
	if r.source == nil {
		return
	}
	r.source.Unit().RemoveWaitObject(r.presenter)
	r.presenter.ClearWaits()
	r.source = nil
}

// SetSwapchain replaces the attached swapchain, typically after
// ErrFrameSkipped. It waits for the device to go idle. A null swapchain
// detaches presentation.
func (r *Renderer) SetSwapchain(sc device.Swapchain) error {
	r.alive()
	assert.That(!r.inFrame, "SetSwapchain inside a frame")
	if err := r.WaitIdle(); err != nil {
		return err
	}
	source, stage := r.source, r.srcStage
	if r.presenter != nil {
		r.detachSource()
		r.presenter.Destroy()
		r.presenter = nil
	}
	if device.IsNull(sc) {
		return nil
	}
	r.presenter = submit.NewPresenter(r.ctx, sc)
	if source != nil {
		return r.PresentFrom(source, stage)
	}
	return nil
}

// BeginFrame opens the next frame. It waits until the GPU has finished
// the previous use of the frame slot and, with a swapchain attached,
// acquires the next image. An out-of-date swapchain yields
// ErrFrameSkipped, leaves no frame open and does not advance the frame
// counter.
func (r *Renderer) BeginFrame() (Frame, error) {
	r.alive()
	assert.That(!r.inFrame, "BeginFrame while frame %d is open", r.ctx.FrameNumber())
	fr := Frame{Number: r.ctx.FrameNumber(), Slot: r.ctx.CurrentSlot()}

	for _, g := range r.graphs {
		if !g.Alive() {
			continue
		}
		if err := g.Recycle(); err != nil {
			return fr, fmt.Errorf("frameflight: begin frame %d: %w", fr.Number, err)
		}
	}

	if r.presenter != nil {
		if r.source == nil {
			return fr, ErrNoPresentSource
		}
		idx, err := r.presenter.Acquire(r.cfg.FenceTimeout)
		if err != nil {
			if errors.Is(err, device.ErrOutOfDate) {
				r.stats.Skipped++
				logging.Logger().Warn("frameflight: frame skipped on acquire", "frame", fr.Number, "err", err)
				return fr, fmt.Errorf("%w: %w", ErrFrameSkipped, err)
			}
			return fr, fmt.Errorf("frameflight: begin frame %d: %w", fr.Number, err)
		}
		fr.Image, fr.HasImage = idx, true
	}
	r.inFrame = true
	return fr, nil
}

// EndFrame presents the acquired image, if any, and advances to the next
// frame slot. The frame counter advances even when presenting fails.
func (r *Renderer) EndFrame() error {
	r.alive()
	assert.That(r.inFrame, "EndFrame without BeginFrame")
	r.inFrame = false

	var err error
	if r.presenter != nil {
		if _, held := r.presenter.ImageIndex(); held {
			err = r.presenter.Present()
		}
	}
	number := r.ctx.FrameNumber()
	r.ctx.Advance()
	r.stats.Frames++

	switch {
	case err == nil:
		return nil
	case errors.Is(err, device.ErrOutOfDate):
		r.stats.Skipped++
		logging.Logger().Warn("frameflight: frame skipped on present", "frame", number, "err", err)
		return fmt.Errorf("%w: %w", ErrFrameSkipped, err)
	default:
		return fmt.Errorf("frameflight: end frame %d: %w", number, err)
	}
}

// WaitIdle blocks until the device has finished all submitted work.
func (r *Renderer) WaitIdle() error {
	if err := r.dev.WaitIdle(); err != nil {
		return fmt.Errorf("frameflight: wait idle: %w", err)
	}
	return nil
}

// Destroy waits for the device and releases everything the renderer
// created. Destroying twice does nothing.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	if err := r.WaitIdle(); err != nil {
		logging.Logger().Warn("frameflight: destroy without idle device", "err", err)
	}
	for _, g := range r.graphs {
		g.Destroy()
	}
	for _, s := range r.sets {
		s.Destroy()
	}
	for _, b := range r.buffers {
		b.Destroy()
	}
	if r.presenter != nil {
		r.presenter.Destroy()
	}
	r.graphs, r.sets, r.buffers = nil, nil, nil
	r.presenter, r.source = nil, nil
	r.cmdPool.Release()
	r.descPool.Release()
	r.destroyed = true
	logging.Logger().Info("frameflight: renderer destroyed", "frames", r.stats.Frames)
}
