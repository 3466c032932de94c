// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldev

import (
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/internal/logging"
)

// DefaultSwapchainImages is the image count used when RegisterSurface is
// given zero.
const DefaultSwapchainImages = 3

type swapchain struct {
	surface  hal.Surface
	images   uint32
	next     uint32
	acquired map[uint32]hal.SurfaceTexture
}

// RegisterSurface configures a HAL surface and exposes it as a swapchain
// with the given number of images. The caller keeps ownership of the
// surface; UnregisterSurface unconfigures it.
func (d *Device) RegisterSurface(surface hal.Surface, cfg *hal.SurfaceConfiguration, images uint32) (device.Swapchain, error) {
	if surface == nil || cfg == nil {
		return 0, fmt.Errorf("%w: nil surface or configuration", device.ErrInvalidHandle)
	}
	if images == 0 {
		images = DefaultSwapchainImages
	}
	if err := surface.Configure(d.dev, cfg); err != nil {
		return 0, fmt.Errorf("haldev: configure surface: %w", mapErr(err))
	}
	h := device.Swapchain(d.handles.Next())
	d.swapchains[h] = &swapchain{
		surface:  surface,
		images:   images,
		acquired: make(map[uint32]hal.SurfaceTexture),
	}
	return h, nil
}

// ReconfigureSurface applies a new configuration, for example after a
// resize. Acquired images are discarded.
func (d *Device) ReconfigureSurface(h device.Swapchain, cfg *hal.SurfaceConfiguration) error {
	sc, ok := d.swapchains[h]
	if !ok {
		return unknown("swapchain", h)
	}
	sc.discardAll()
	if err := sc.surface.Configure(d.dev, cfg); err != nil {
		return fmt.Errorf("haldev: reconfigure surface: %w", mapErr(err))
	}
	return nil
}

// UnregisterSurface discards acquired images and unconfigures the surface.
func (d *Device) UnregisterSurface(h device.Swapchain) {
	sc, ok := d.swapchains[h]
	if !ok {
		return
	}
	sc.discardAll()
	sc.surface.Unconfigure(d.dev)
	delete(d.swapchains, h)
}

func (sc *swapchain) discardAll() {
	for i, tex := range sc.acquired {
		sc.surface.DiscardTexture(tex)
		delete(sc.acquired, i)
	}
}

// AcquireNextImage acquires the next surface texture. The HAL does not
// report image indices, so indices cycle through the configured count.
func (d *Device) AcquireNextImage(h device.Swapchain, sem device.Semaphore, _ time.Duration) (uint32, error) {
	sc, ok := d.swapchains[h]
	if !ok {
		return 0, unknown("swapchain", h)
	}
	if _, ok := d.sems[sem]; !ok {
		return 0, unknown("semaphore", sem)
	}
	if uint32(len(sc.acquired)) >= sc.images {
		return 0, validation("all %d images of swapchain %d are acquired", sc.images, h)
	}
	at, err := sc.surface.AcquireTexture(nil)
	if err != nil {
		return 0, fmt.Errorf("haldev: acquire: %w", mapErr(err))
	}
	if at.Suboptimal {
		logging.Logger().Debug("haldev: suboptimal surface texture", "swapchain", uint64(h))
	}
	index := sc.next % sc.images
	for {
		if _, busy := sc.acquired[index]; !busy {
			break
		}
		index = (index + 1) % sc.images
	}
	sc.next = index + 1
	sc.acquired[index] = at.Texture
	return index, nil
}

// Present presents an acquired image.
func (d *Device) Present(info *device.PresentInfo) error {
	if info == nil {
		return fmt.Errorf("%w: nil present info", device.ErrValidation)
	}
	sc, ok := d.swapchains[info.Swapchain]
	if !ok {
		return unknown("swapchain", info.Swapchain)
	}
	if err := d.checkSemaphores(nil, info.Waits); err != nil {
		return err
	}
	tex, ok := sc.acquired[info.ImageIndex]
	if !ok {
		return validation("present of image %d that is not acquired", info.ImageIndex)
	}
	delete(sc.acquired, info.ImageIndex)
	if err := d.queue.Present(sc.surface, tex, nil); err != nil {
		return fmt.Errorf("haldev: present: %w", mapErr(err))
	}
	return nil
}
