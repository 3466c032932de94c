// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"math"
	"time"

	"github.com/gogpu/gputypes"
)

// Infinite is the timeout that never expires.
const Infinite = time.Duration(math.MaxInt64)

// WholeSize binds a buffer from its offset to its end.
const WholeSize = ^uint64(0)

// PipelineStage is a bit mask of GPU pipeline stages. Values match the
// Vulkan stage bits so backends can pass them through.
type PipelineStage uint32

// Pipeline stages.
const (
	StageTopOfPipe             PipelineStage = 0x00000001
	StageDrawIndirect          PipelineStage = 0x00000002
	StageVertexInput           PipelineStage = 0x00000004
	StageVertexShader          PipelineStage = 0x00000008
	StageFragmentShader        PipelineStage = 0x00000080
	StageEarlyFragmentTests    PipelineStage = 0x00000100
	StageLateFragmentTests     PipelineStage = 0x00000200
	StageColorAttachmentOutput PipelineStage = 0x00000400
	StageComputeShader         PipelineStage = 0x00000800
	StageTransfer              PipelineStage = 0x00001000
	StageBottomOfPipe          PipelineStage = 0x00002000
	StageAllGraphics           PipelineStage = 0x00008000
	StageAllCommands           PipelineStage = 0x00010000
)

// DescriptorType is the kind of resource a descriptor binding holds.
// Values match VkDescriptorType.
type DescriptorType uint32

// Descriptor types.
const (
	DescriptorSampler              DescriptorType = 0
	DescriptorCombinedImageSampler DescriptorType = 1
	DescriptorSampledImage         DescriptorType = 2
	DescriptorStorageImage         DescriptorType = 3
	DescriptorUniformBuffer        DescriptorType = 6
	DescriptorStorageBuffer        DescriptorType = 7
	DescriptorUniformBufferDynamic DescriptorType = 8
	DescriptorStorageBufferDynamic DescriptorType = 9
)

// IsBuffer reports whether t binds a buffer range.
func (t DescriptorType) IsBuffer() bool {
	switch t {
	case DescriptorUniformBuffer, DescriptorStorageBuffer,
		DescriptorUniformBufferDynamic, DescriptorStorageBufferDynamic:
		return true
	}
	return false
}

// IsImage reports whether t binds an image view (with or without a sampler).
func (t DescriptorType) IsImage() bool {
	switch t {
	case DescriptorCombinedImageSampler, DescriptorSampledImage, DescriptorStorageImage:
		return true
	}
	return false
}

// String returns the descriptor type name.
func (t DescriptorType) String() string {
	switch t {
	case DescriptorSampler:
		return "Sampler"
	case DescriptorCombinedImageSampler:
		return "CombinedImageSampler"
	case DescriptorSampledImage:
		return "SampledImage"
	case DescriptorStorageImage:
		return "StorageImage"
	case DescriptorUniformBuffer:
		return "UniformBuffer"
	case DescriptorStorageBuffer:
		return "StorageBuffer"
	case DescriptorUniformBufferDynamic:
		return "UniformBufferDynamic"
	case DescriptorStorageBufferDynamic:
		return "StorageBufferDynamic"
	default:
		return "Unknown"
	}
}

// ImageLayout is the layout an image is in when accessed through a
// descriptor. Values match VkImageLayout.
type ImageLayout uint32

// Image layouts.
const (
	LayoutUndefined                     ImageLayout = 0
	LayoutGeneral                       ImageLayout = 1
	LayoutColorAttachmentOptimal        ImageLayout = 2
	LayoutDepthStencilAttachmentOptimal ImageLayout = 3
	LayoutShaderReadOnlyOptimal         ImageLayout = 5
	LayoutTransferSrcOptimal            ImageLayout = 6
	LayoutTransferDstOptimal            ImageLayout = 7
	LayoutPresentSrc                    ImageLayout = 1000001002
)

// CommandPoolDescriptor configures a native command pool.
type CommandPoolDescriptor struct {
	Label string
	// Transient hints that buffers are short-lived and re-recorded often.
	Transient bool
	// ResetIndividual allows resetting buffers one at a time instead of
	// only through the whole pool.
	ResetIndividual bool
	QueueFamily     uint32
}

// PoolSize reserves Count descriptors of Type in a descriptor pool.
type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

// DescriptorPoolDescriptor configures a native descriptor pool.
type DescriptorPoolDescriptor struct {
	Label          string
	MaxSets        uint32
	Sizes          []PoolSize
	FreeIndividual bool
}

// LayoutBinding declares one binding slot of a descriptor set layout.
type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  gputypes.ShaderStages
}

// BufferInfo is the buffer range written into a buffer descriptor.
type BufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

// ImageInfo is the image view (and optional sampler) written into an image
// or sampler descriptor.
type ImageInfo struct {
	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

// DescriptorWrite updates one binding of one descriptor set. Exactly one of
// Buffer or Image is set.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType
	Buffer  *BufferInfo
	Image   *ImageInfo
}

// BufferTransition moves a buffer range between usages.
type BufferTransition struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
	From   gputypes.BufferUsage
	To     gputypes.BufferUsage
}

// ImageTransition moves an image subresource range between usages.
// Zero counts mean all remaining levels or layers.
type ImageTransition struct {
	Image          Image
	From           gputypes.TextureUsage
	To             gputypes.TextureUsage
	BaseMipLevel   uint32
	MipLevelCount  uint32
	BaseArrayLayer uint32
	LayerCount     uint32
}

// BarrierSet is the set of resource state transitions recorded between two
// passes. Src and Dst are the stages the barrier orders.
type BarrierSet struct {
	Src     PipelineStage
	Dst     PipelineStage
	Buffers []BufferTransition
	Images  []ImageTransition
}

// Empty reports whether the set transitions nothing.
func (b BarrierSet) Empty() bool {
	return len(b.Buffers) == 0 && len(b.Images) == 0
}

// SemaphoreWait is one entry of a submission's wait list.
type SemaphoreWait struct {
	Semaphore Semaphore
	Stage     PipelineStage
}

// SubmitInfo is one batch of a queue submission.
type SubmitInfo struct {
	Waits          []SemaphoreWait
	CommandBuffers []CommandBuffer
	Signals        []Semaphore
}

// PresentInfo presents one swapchain image after its waits are signaled.
type PresentInfo struct {
	Swapchain  Swapchain
	ImageIndex uint32
	Waits      []Semaphore
}
