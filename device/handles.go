// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

// Native object handles. Zero is invalid for every type.
type (
	CommandPool         uint64
	CommandBuffer       uint64
	Fence               uint64
	Semaphore           uint64
	DescriptorPool      uint64
	DescriptorSetLayout uint64
	DescriptorSet       uint64
	Pipeline            uint64
	Buffer              uint64
	Image               uint64
	ImageView           uint64
	Sampler             uint64
	Swapchain           uint64
)

// Handle is satisfied by every native handle type.
type Handle interface {
	CommandPool | CommandBuffer | Fence | Semaphore | DescriptorPool |
		DescriptorSetLayout | DescriptorSet | Pipeline | Buffer | Image |
		ImageView | Sampler | Swapchain
}

// IsNull reports whether h is the invalid handle.
func IsNull[H Handle](h H) bool { return h == 0 }

// HandleAllocator hands out increasing handle values to backends that keep
// native objects in maps. It is not safe for concurrent use.
type HandleAllocator struct {
	next uint64
}

// Next returns a fresh non-zero handle value.
func (a *HandleAllocator) Next() uint64 {
	a.next++
	return a.next
}
