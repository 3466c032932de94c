// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"slices"

	"github.com/gogpu/frameflight/device"
)

// Step completes the oldest pending submission. It returns false when the
// queue is empty.
func (d *Device) Step() bool {
	if len(d.queue) == 0 {
		return false
	}
	s := d.queue[0]
	d.queue = d.queue[1:]
	for _, cb := range s.buffers {
		if b, ok := d.buffers[cb]; ok && b.state == cbPending {
			b.state = cbExecutable
		}
	}
	if f, ok := d.fences[s.fence]; ok {
		f.signaled = true
	}
	return true
}

// CompleteAll completes every pending submission.
func (d *Device) CompleteAll() {
	for d.Step() {
	}
}

// Pending returns the number of submissions the GPU has not finished.
func (d *Device) Pending() int { return len(d.queue) }

// SetStalled makes the GPU stop progressing during blocking waits, so they
// time out. Step and CompleteAll still work.
func (d *Device) SetStalled(stalled bool) { d.stalled = stalled }

// FailNext makes the next call of op return err.
func (d *Device) FailNext(op Op, err error) { d.failures[op] = err }

// Submissions returns every submission made so far, oldest first.
func (d *Device) Submissions() []Submission { return slices.Clone(d.history) }

// LastSubmission returns the most recent submission.
func (d *Device) LastSubmission() (Submission, bool) {
	if len(d.history) == 0 {
		return Submission{}, false
	}
	return d.history[len(d.history)-1], true
}

// Commands returns the commands recorded into cb since it was last reset.
func (d *Device) Commands(cb device.CommandBuffer) []Command {
	b, ok := d.buffers[cb]
	if !ok {
		return nil
	}
	return slices.Clone(b.commands)
}

// ResetCount returns how many times cb was explicitly reset.
func (d *Device) ResetCount(cb device.CommandBuffer) int {
	if b, ok := d.buffers[cb]; ok {
		return b.resets
	}
	return 0
}

// Binding returns the last write made to binding of set.
func (d *Device) Binding(set device.DescriptorSet, binding uint32) (device.DescriptorWrite, bool) {
	s, ok := d.sets[set]
	if !ok {
		return device.DescriptorWrite{}, false
	}
	w, ok := s.bindings[binding]
	return w, ok
}

// WriteCount returns the number of descriptor writes applied to set.
func (d *Device) WriteCount(set device.DescriptorSet) int {
	if s, ok := d.sets[set]; ok {
		return s.writes
	}
	return 0
}

// SemaphoreSignaled reports whether sem has a signal no wait consumed yet.
func (d *Device) SemaphoreSignaled(sem device.Semaphore) bool {
	s, ok := d.semaphores[sem]
	return ok && s.pending
}

// Stats returns the activity counters.
func (d *Device) Stats() Stats { return d.stats }

// Violations returns the usage errors detected so far.
func (d *Device) Violations() []string { return slices.Clone(d.violations) }

// Live counts the native objects that have not been destroyed.
func (d *Device) Live() Census {
	return Census{
		CommandPools:    len(d.commandPools),
		CommandBuffers:  len(d.buffers),
		Fences:          len(d.fences),
		Semaphores:      len(d.semaphores),
		DescriptorPools: len(d.descPools),
		Layouts:         len(d.layouts),
		DescriptorSets:  len(d.sets),
	}
}

// NewPipeline returns a pipeline handle. Pipelines are opaque to the core,
// so the simulator only tracks a label.
func (d *Device) NewPipeline(label string) device.Pipeline {
	h := d.ids.Next()
	d.labels[h] = label
	return device.Pipeline(h)
}

// NewBuffer returns a buffer handle.
func (d *Device) NewBuffer(label string) device.Buffer {
	h := d.ids.Next()
	d.labels[h] = label
	return device.Buffer(h)
}

// NewImage returns an image handle.
func (d *Device) NewImage(label string) device.Image {
	h := d.ids.Next()
	d.labels[h] = label
	return device.Image(h)
}

// NewImageView returns an image view handle.
func (d *Device) NewImageView(label string) device.ImageView {
	h := d.ids.Next()
	d.labels[h] = label
	return device.ImageView(h)
}

// NewSampler returns a sampler handle.
func (d *Device) NewSampler(label string) device.Sampler {
	h := d.ids.Next()
	d.labels[h] = label
	return device.Sampler(h)
}

// Label returns the label given to a resource handle.
func (d *Device) Label(h uint64) string { return d.labels[h] }

// NewSwapchain returns a swapchain with the given number of images.
func (d *Device) NewSwapchain(images uint32) device.Swapchain {
	h := device.Swapchain(d.ids.Next())
	d.swapchains[h] = &swapchain{images: max(images, 1)}
	return h
}

// SetOutOfDate marks a swapchain as no longer matching its surface.
func (d *Device) SetOutOfDate(sc device.Swapchain, outOfDate bool) {
	if s, ok := d.swapchains[sc]; ok {
		s.outOfDate = outOfDate
	}
}
