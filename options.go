// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frameflight

import (
	"time"

	"github.com/gogpu/frameflight/device"
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := frameflight.New(dev,
//	    frameflight.WithMaxFramesInFlight(3),
//	    frameflight.WithFenceTimeout(500*time.Millisecond))
type Option func(*options)

type options struct {
	cfg       Config
	swapchain device.Swapchain
}

func defaultOptions() options {
	return options{cfg: DefaultConfig()}
}

// WithConfig replaces the whole configuration. Options after it still
// apply on top.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithMaxFramesInFlight sets how many frames the CPU may record ahead of
// the GPU.
func WithMaxFramesInFlight(n int) Option {
	return func(o *options) {
		o.cfg.MaxFramesInFlight = n
	}
}

// WithFenceTimeout bounds every per-frame fence wait.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		o.cfg.FenceTimeout = d
	}
}

// WithStrictExhaustion makes pool exhaustion panic instead of returning
// an error.
func WithStrictExhaustion(strict bool) Option {
	return func(o *options) {
		o.cfg.StrictExhaustion = strict
	}
}

// WithLabel sets the label used for pools and log messages.
func WithLabel(label string) Option {
	return func(o *options) {
		o.cfg.Label = label
	}
}

// WithSwapchain attaches a swapchain, so BeginFrame acquires an image and
// EndFrame presents it.
func WithSwapchain(sc device.Swapchain) Option {
	return func(o *options) {
		o.swapchain = sc
	}
}
