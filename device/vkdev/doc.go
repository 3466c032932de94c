// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vkdev implements device.Device directly on Vulkan through
// github.com/vulkan-go/vulkan.
//
// The Vulkan binding needs cgo and the Vulkan loader, so the device itself
// is built only with the vulkan build tag:
//
//	go build -tags vulkan ./...
//
// With the tag, importing the package registers the "vulkan" backend, which
// opens a headless device on the first adapter with a compute queue.
// Usage to access-mask conversion is available in every build.
package vkdev
