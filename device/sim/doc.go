// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package sim is a deterministic, in-memory device that behaves like an
// asynchronous GPU.
//
// Submitted work does not complete on its own. It completes when the test
// calls Step or CompleteAll, or when the CPU blocks on a fence with a
// non-zero timeout, which models the GPU making progress while the CPU
// waits. A zero-timeout wait is a pure poll and never advances the GPU.
//
// The device validates usage the way a Vulkan validation layer would:
// resetting a command buffer that is still executing, updating a
// descriptor set referenced by in-flight work, waiting on a semaphore
// nothing signals, and submitting with a signaled fence are recorded as
// violations. Tests assert that Violations stays empty.
//
// Importing the package registers the "sim" backend.
package sim
