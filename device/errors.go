// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import "errors"

var (
	// ErrDeviceLost is returned when the device stopped responding. The
	// device and everything created from it must be recreated.
	ErrDeviceLost = errors.New("device: device lost")

	// ErrOutOfDate is returned by AcquireNextImage and Present when the
	// swapchain no longer matches its surface and must be recreated.
	ErrOutOfDate = errors.New("device: swapchain out of date")

	// ErrOutOfMemory is returned when host or device memory is exhausted.
	ErrOutOfMemory = errors.New("device: out of memory")

	// ErrOutOfPoolMemory is returned when a descriptor or command pool has
	// no room left for an allocation.
	ErrOutOfPoolMemory = errors.New("device: out of pool memory")

	// ErrTimeout is returned by waits that expire before their condition.
	ErrTimeout = errors.New("device: timeout")

	// ErrUnsupported is returned for operations the backend cannot perform.
	ErrUnsupported = errors.New("device: operation not supported by backend")

	// ErrInvalidHandle is returned when a handle is null or unknown to the
	// device.
	ErrInvalidHandle = errors.New("device: invalid handle")

	// ErrValidation is returned when a call breaks an API usage rule, such
	// as waiting on a semaphore no submission signals.
	ErrValidation = errors.New("device: validation failed")

	// ErrUnknownBackend is returned by Open for an unregistered name.
	ErrUnknownBackend = errors.New("device: unknown backend")

	// ErrNoBackend is returned by OpenBest when nothing is registered.
	ErrNoBackend = errors.New("device: no backend registered")
)
