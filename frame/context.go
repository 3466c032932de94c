// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"errors"
	"fmt"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/internal/logging"
)

// MaxFramesInFlightLimit bounds the replication factor.
const MaxFramesInFlightLimit = 8

var (
	// ErrNilDevice is returned by NewContext without a device.
	ErrNilDevice = errors.New("frame: nil device")

	// ErrFramesInFlight is returned for a replication factor outside
	// [1, MaxFramesInFlightLimit].
	ErrFramesInFlight = errors.New("frame: invalid frames in flight")
)

// Context is the device context shared by every frame-aware object. It
// owns the current-frame counter. It is not safe for concurrent use.
type Context struct {
	dev   device.Device
	count int
	slot  int
	frame uint64
}

// NewContext creates a context for dev with maxFramesInFlight slots.
func NewContext(dev device.Device, maxFramesInFlight int) (*Context, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	if maxFramesInFlight < 1 || maxFramesInFlight > MaxFramesInFlightLimit {
		return nil, fmt.Errorf("%w: %d", ErrFramesInFlight, maxFramesInFlight)
	}
	logging.Logger().Debug("frame: context created",
		"backend", dev.Name(), "framesInFlight", maxFramesInFlight)
	return &Context{dev: dev, count: maxFramesInFlight}, nil
}

// Device returns the device the context drives.
func (c *Context) Device() device.Device { return c.dev }

// MaxFramesInFlight returns the number of slots.
func (c *Context) MaxFramesInFlight() int { return c.count }

// CurrentSlot returns the slot of the frame being recorded.
func (c *Context) CurrentSlot() int { return c.slot }

// FrameNumber returns the number of frames advanced so far. It identifies
// the generation of the current slot.
func (c *Context) FrameNumber() uint64 { return c.frame }

// Advance moves to the next frame and returns its slot.
func (c *Context) Advance() int {
	c.frame++
	c.slot = (c.slot + 1) % c.count
	return c.slot
}
