// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package command wraps per-slot device command buffers.
//
// A [Buffer] owns one device command buffer per frame slot, allocated from
// a pool.CommandPool it keeps alive. Each slot moves through
//
//	Idle → Recording → Finalized → Submitted
//
// In OneShot mode a slot is re-recorded every frame: GetBuffer resets it
// when the frame generation has moved on. In Static mode a slot is
// recorded once, finalized, and resubmitted unchanged every frame through
// GetReadonlyBuffer.
//
// Misuse of the state machine, such as submitting one slot twice in a
// frame, panics.
package command
