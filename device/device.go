// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"time"

	"github.com/gogpu/gputypes"
)

// Device is a logical GPU device with a single queue.
//
// Implementations are not required to be safe for concurrent use; the frame
// loop drives a device from one goroutine.
type Device interface {
	// Name identifies the backend, e.g. "sim", "hal-noop", "vulkan".
	Name() string

	// Limits returns the device limits.
	Limits() gputypes.Limits

	CreateCommandPool(desc *CommandPoolDescriptor) (CommandPool, error)
	ResetCommandPool(pool CommandPool) error
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)

	// BeginCommandBuffer starts recording. oneTime hints the buffer is
	// submitted once before it is reset.
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error
	ResetCommandBuffer(cb CommandBuffer) error

	CmdPipelineBarrier(cb CommandBuffer, barriers *BarrierSet)
	CmdBindPipeline(cb CommandBuffer, pipeline Pipeline)
	CmdBindDescriptorSet(cb CommandBuffer, pipeline Pipeline, index uint32, set DescriptorSet)
	CmdDispatch(cb CommandBuffer, x, y, z uint32)

	// CreateFence creates a fence, optionally already signaled.
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	// WaitForFences blocks until the fences are signaled (all of them when
	// waitAll is set, any otherwise) or the timeout expires. It returns true
	// when the wait condition was met.
	WaitForFences(fences []Fence, waitAll bool, timeout time.Duration) (bool, error)
	ResetFences(fences []Fence) error
	// FenceStatus reports whether the fence is signaled without blocking.
	FenceStatus(fence Fence) (bool, error)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(sem Semaphore)

	CreateDescriptorSetLayout(bindings []LayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreateDescriptorPool(desc *DescriptorPoolDescriptor) (DescriptorPool, error)
	ResetDescriptorPool(pool DescriptorPool) error
	DestroyDescriptorPool(pool DescriptorPool)
	// AllocateDescriptorSets allocates one set per layout. It returns
	// ErrOutOfPoolMemory when the pool cannot hold them.
	AllocateDescriptorSets(pool DescriptorPool, layouts []DescriptorSetLayout) ([]DescriptorSet, error)
	FreeDescriptorSets(pool DescriptorPool, sets []DescriptorSet) error
	UpdateDescriptorSets(writes []DescriptorWrite)

	// Submit queues the batches and signals fence (if non-zero) once they
	// have all completed.
	Submit(batches []SubmitInfo, fence Fence) error
	// AcquireNextImage returns the next presentable image index and signals
	// sem when the image is ready to be rendered to.
	AcquireNextImage(sc Swapchain, sem Semaphore, timeout time.Duration) (uint32, error)
	Present(info *PresentInfo) error
	WaitIdle() error
}
