// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command flightdemo drives the frame-in-flight loop on a chosen backend and
// prints submission and descriptor statistics.
//
// Usage:
//
//	flightdemo run --backend sim --frames 120 --in-flight 3
//	flightdemo backends
//	flightdemo version
//
// Settings are read from a YAML config file (--config, or flightdemo.yaml in
// the working directory) and FLIGHTDEMO_* environment variables, with flags
// taking precedence.
package main

import (
	"os"

	_ "github.com/gogpu/frameflight/device/haldev"
	_ "github.com/gogpu/frameflight/device/sim"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
