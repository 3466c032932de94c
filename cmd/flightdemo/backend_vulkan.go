// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build vulkan

package main

import _ "github.com/gogpu/frameflight/device/vkdev"
