// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package frame multiplexes GPU resources across frames in flight.
//
// A [Context] owns the device and the shared frame counter. Every
// frame-aware object embeds a [Flight], which resolves the slot to touch
// now: the shared counter for replicated objects, slot 0 for single ones,
// or a temporary static override while priming all copies.
//
// [Replicated] holds one native handle per slot, allocated eagerly and
// destroyed together.
package frame
