// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package descriptor provides frame-replicated descriptor sets with lazy
// per-slot updates.
//
// A [Set] is described first, then written, then fetched every frame:
//
//	set := descriptor.New(&descriptorPool)
//	set.DescribeBuffer(0, device.DescriptorUniformBuffer, gputypes.ShaderStageCompute)
//	set.SetBuffer(0, device.BufferInfo{Buffer: params, Range: device.WholeSize})
//	...
//	native, err := set.GetSet()
//
// Every write marks all slot copies dirty. GetSet flushes the pending
// writes of the current slot only, so copies still referenced by frames in
// flight are never touched.
package descriptor
