// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package submit orders queue submissions with semaphore edges.
//
// Every submittable thing implements [Submitter]. A Submitter exposes a
// completion semaphore, created on first request and signaled each time
// the submitter's work finishes on the GPU, and accepts wait edges on the
// completion semaphores of other submitters:
//
//	shadow := submit.NewUnit(ctx, "shadow")
//	lighting := submit.NewUnit(ctx, "lighting")
//	if err := lighting.AddWaitObject(shadow, device.StageComputeShader); err != nil {
//		return err
//	}
//
// Edges persist across frames; the semaphores behind them are replicated
// per frame slot. Semaphores are binary, so a submitter with several
// consumers signals one semaphore per consumer. A consumer that does not
// run in a frame leaves its signal pending, and the producer consumes it
// on its next submission from that slot. Only an explicitly enabled
// completion fence lets the CPU observe a unit's progress.
package submit
