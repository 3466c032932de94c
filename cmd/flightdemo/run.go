// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameflight"
	"github.com/gogpu/frameflight/descriptor"
	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/device/haldev"
	"github.com/gogpu/frameflight/device/sim"
	"github.com/gogpu/frameflight/rendergraph"
)

// workload is the backend-specific part of the demo: a compute pipeline,
// storage buffers and an optional swapchain.
type workload struct {
	pipeline  device.Pipeline
	buffers   []device.Buffer
	swapchain device.Swapchain
	release   func()
}

// result is what a run reports.
type result struct {
	backend  string
	frames   int
	inFlight int
	elapsed  time.Duration
	renderer frameflight.Stats
	sim      *sim.Stats
}

func openDevice(name string) (device.Device, string, error) {
	if name == "" {
		return device.OpenBest()
	}
	dev, err := device.Open(name)
	return dev, name, err
}

// prepare creates the demo resources on backends that can create them.
// Other backends run frames without GPU work.
func prepare(dev device.Device, cfg Config) (*workload, error) {
	switch d := dev.(type) {
	case *sim.Device:
		w := &workload{pipeline: d.NewPipeline("shade"), release: func() {}}
		for i := range cfg.Buffers {
			w.buffers = append(w.buffers, d.NewBuffer(fmt.Sprintf("params[%d]", i)))
		}
		if cfg.Images > 0 {
			w.swapchain = d.NewSwapchain(cfg.Images)
		}
		return w, nil
	case *haldev.Device:
		return prepareHAL(d, cfg)
	}
	return nil, nil
}

func prepareHAL(d *haldev.Device, cfg Config) (*workload, error) {
	halDev, _ := d.HAL()
	pipe, err := halDev.CreateComputePipeline(&hal.ComputePipelineDescriptor{Label: "shade"})
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	var bufs []hal.Buffer
	w := &workload{pipeline: d.RegisterComputePipeline(pipe)}
	w.release = func() {
		d.Forget(uint64(w.pipeline))
		halDev.DestroyComputePipeline(pipe)
		for i, b := range bufs {
			d.Forget(uint64(w.buffers[i]))
			halDev.DestroyBuffer(b)
		}
	}
	for i := range cfg.Buffers {
		b, err := halDev.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("params[%d]", i),
			Size:  256,
			Usage: gputypes.BufferUsageStorage,
		})
		if err != nil {
			w.release()
			return nil, fmt.Errorf("create buffer: %w", err)
		}
		bufs = append(bufs, b)
		w.buffers = append(w.buffers, d.RegisterBuffer(b))
	}
	return w, nil
}

func run(cfg Config) (*result, error) {
	dev, name, err := openDevice(cfg.Backend)
	if err != nil {
		return nil, err
	}
	if d, ok := dev.(interface{ Destroy() }); ok {
		defer d.Destroy()
	}

	w, err := prepare(dev, cfg)
	if err != nil {
		return nil, err
	}
	opts := []frameflight.Option{frameflight.WithConfig(cfg.Renderer)}
	if w != nil {
		defer w.release()
		if !device.IsNull(w.swapchain) {
			opts = append(opts, frameflight.WithSwapchain(w.swapchain))
		}
	}

	r, err := frameflight.New(dev, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Destroy()

	var (
		g      *rendergraph.Graph
		params *descriptor.Set
	)
	if w != nil {
		params = r.NewDescriptorSet("params")
		params.DescribeBuffer(0, device.DescriptorStorageBuffer, gputypes.ShaderStageCompute)
		if g, err = r.NewGraph("shade"); err != nil {
			return nil, err
		}
		g.Add(w.pipeline, rendergraph.Compute(64, 64, 1, params))
		if !device.IsNull(w.swapchain) {
			if err := r.PresentFrom(g, device.StageComputeShader); err != nil {
				return nil, err
			}
		}
	}

	start := time.Now()
	for i := range cfg.Frames {
		if _, err := r.BeginFrame(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if g != nil {
			params.SetBuffer(0, device.BufferInfo{Buffer: w.buffers[i%len(w.buffers)], Range: device.WholeSize})
			if _, err := g.RunAsync(); err != nil {
				return nil, fmt.Errorf("frame %d: %w", i, err)
			}
		}
		if err := r.EndFrame(); err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	if err := r.WaitIdle(); err != nil {
		return nil, err
	}

	res := &result{
		backend:  name,
		frames:   cfg.Frames,
		inFlight: r.Config().MaxFramesInFlight,
		elapsed:  time.Since(start),
		renderer: r.Stats(),
	}
	if d, ok := dev.(*sim.Device); ok {
		st := d.Stats()
		res.sim = &st
	}
	return res, nil
}

func (r *result) print(out io.Writer) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "backend\t%s\n", r.backend)
	fmt.Fprintf(tw, "frames\t%d (%d skipped)\n", r.renderer.Frames, r.renderer.Skipped)
	fmt.Fprintf(tw, "in flight\t%d\n", r.inFlight)
	fmt.Fprintf(tw, "elapsed\t%v\n", r.elapsed.Round(time.Microsecond))
	fmt.Fprintf(tw, "graphs\t%d\n", r.renderer.Graphs)
	fmt.Fprintf(tw, "descriptor sets\t%d\n", r.renderer.DescriptorSets)
	if s := r.sim; s != nil {
		fmt.Fprintf(tw, "submits\t%d\n", s.Submits)
		fmt.Fprintf(tw, "presents\t%d\n", s.Presents)
		fmt.Fprintf(tw, "fence waits\t%d (%d blocking)\n", s.FenceWaits, s.BlockingWaits)
		fmt.Fprintf(tw, "descriptor writes\t%d in %d updates\n", s.DescriptorWrites, s.DescriptorUpdates)
	}
	_ = tw.Flush()
}
