// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package haldev implements device.Device on top of the gogpu/wgpu HAL.
//
// The HAL exposes a WebGPU-shaped API, so several Vulkan concepts are
// emulated:
//
//   - A command buffer owns one hal.CommandEncoder. Compute commands are
//     recorded into a compute pass that is opened lazily and closed by the
//     next barrier or by EndCommandBuffer.
//   - Fences track the queue submission index that signals them and are
//     resolved against hal.Queue.PollCompleted.
//   - Semaphores are bookkeeping only. The HAL queue executes submissions
//     in order, which already satisfies every wait.
//   - Descriptor sets are bind groups. A bind group is immutable, so an
//     update builds a new group and retires the old one once the last
//     submission that used it has completed.
//   - Descriptor pools are capacity accounting over MaxSets and the
//     per-type sizes, so exhaustion behaves as on Vulkan.
//
// Importing the package registers the "hal-noop" backend, which runs on the
// HAL noop device, and a provider adapter that wraps any
// gpucontext.DeviceProvider exposing HalDevice and HalQueue.
package haldev
