// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frameflight manages the per-frame GPU resources of a renderer
// that keeps several frames in flight.
//
// # Overview
//
// The CPU records frame N+1 while the GPU still executes frame N. Every
// mutable GPU object touched per frame therefore exists once per frame
// slot: command buffers, descriptor sets, fences and semaphores are
// replicated and selected by the current slot of a shared frame.Context.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/frameflight"
//		_ "github.com/gogpu/frameflight/device/haldev"
//	)
//
//	r, err := frameflight.Open("", frameflight.WithMaxFramesInFlight(2))
//	if err != nil {
//		return err
//	}
//	defer r.Destroy()
//
//	params := r.NewDescriptorSet("params")
//	params.DescribeBuffer(0, device.DescriptorUniformBuffer, gputypes.ShaderStageCompute)
//
//	g, err := r.NewGraph("simulate")
//	g.Add(pipeline, rendergraph.Compute(64, 1, 1, params))
//
//	for running {
//		if _, err := r.BeginFrame(); err != nil { ... }
//		params.SetBuffer(0, device.BufferInfo{Buffer: frameParams, Range: device.WholeSize})
//		if _, err := g.RunAsync(); err != nil { ... }
//		if err := r.EndFrame(); err != nil { ... }
//	}
//
// # Architecture
//
// The library is organized into:
//   - handle: reference-counted ownership of pools
//   - frame: the frame counter and per-slot replication
//   - pool: lazily realized command and descriptor pools
//   - command, syncobj, descriptor: frame-replicated GPU objects
//   - submit: semaphore edges between submissions, and presentation
//   - rendergraph: ordered stages recorded and submitted once per frame
//   - device: the backend boundary, with sim, haldev and vkdev backends
//
// # Contract violations
//
// Misuse that indicates a programming error, such as submitting a command
// buffer twice in one frame, panics with a "frameflight:" message.
// Recoverable conditions are returned as errors.
package frameflight

// Version is the current version of the library.
const Version = "0.1.0"
