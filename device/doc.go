// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device defines the opaque device layer frameflight drives.
//
// The core never creates a device itself. A host application opens one
// through a backend (device/haldev over gogpu/wgpu HAL, device/vkdev over
// Vulkan, or the simulated device/sim) and passes it to frame.NewContext.
// Everything the core needs from the graphics API goes through [Device]:
// native pools, command buffers, fences, semaphores, descriptor sets,
// queue submission and presentation.
//
// Native objects are identified by small typed handles. The zero value of
// every handle type is the invalid handle, and pools return it as a
// sentinel when they run out of space.
package device
