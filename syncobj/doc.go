// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package syncobj provides the frame-aware synchronization primitives.
//
// A [Fence] is the CPU-visible completion signal of a submission. Waiting
// on it is the only operation in the frame loop that blocks the CPU. Wait
// and WaitAll both report true when the fences are signaled. Fences do not
// reset themselves: Reset must follow a successful wait and precede the
// next submission.
//
// A [Semaphore] orders GPU work only. It has no CPU-side wait and is
// consumed through the edges built by package submit.
package syncobj
