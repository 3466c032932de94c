// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frameflight

import "errors"

var (
	// ErrFrameSkipped is returned by BeginFrame and EndFrame when the
	// swapchain went out of date. The frame produced nothing on screen;
	// the caller should recreate the swapchain and attach it with
	// SetSwapchain.
	ErrFrameSkipped = errors.New("frameflight: frame skipped")

	// ErrInvalidConfig is returned for a configuration that fails
	// validation.
	ErrInvalidConfig = errors.New("frameflight: invalid config")

	// ErrNoPresentSource is returned by BeginFrame when a swapchain is
	// attached but no graph renders into it.
	ErrNoPresentSource = errors.New("frameflight: swapchain has no present source")
)
