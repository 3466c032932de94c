// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vkdev

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/frameflight/device"
)

// AccessFlags mirrors VkAccessFlags.
type AccessFlags uint32

// Access bits, values from VkAccessFlagBits.
const (
	AccessIndirectCommandRead  AccessFlags = 0x00000001
	AccessIndexRead            AccessFlags = 0x00000002
	AccessVertexAttributeRead  AccessFlags = 0x00000004
	AccessUniformRead          AccessFlags = 0x00000008
	AccessShaderRead           AccessFlags = 0x00000020
	AccessShaderWrite          AccessFlags = 0x00000040
	AccessColorAttachmentWrite AccessFlags = 0x00000100
	AccessTransferRead         AccessFlags = 0x00000800
	AccessTransferWrite        AccessFlags = 0x00001000
	AccessHostRead             AccessFlags = 0x00002000
	AccessHostWrite            AccessFlags = 0x00004000
)

// Shader stage bits, values from VkShaderStageFlagBits.
const (
	stageVertexBit   uint32 = 0x00000001
	stageFragmentBit uint32 = 0x00000010
	stageComputeBit  uint32 = 0x00000020
)

// BufferAccess returns the access mask covering every usage in u.
func BufferAccess(u gputypes.BufferUsage) AccessFlags {
	var a AccessFlags
	if u&gputypes.BufferUsageMapRead != 0 {
		a |= AccessHostRead
	}
	if u&gputypes.BufferUsageMapWrite != 0 {
		a |= AccessHostWrite
	}
	if u&gputypes.BufferUsageCopySrc != 0 {
		a |= AccessTransferRead
	}
	if u&gputypes.BufferUsageCopyDst != 0 {
		a |= AccessTransferWrite
	}
	if u&gputypes.BufferUsageIndex != 0 {
		a |= AccessIndexRead
	}
	if u&gputypes.BufferUsageVertex != 0 {
		a |= AccessVertexAttributeRead
	}
	if u&gputypes.BufferUsageUniform != 0 {
		a |= AccessUniformRead
	}
	if u&gputypes.BufferUsageStorage != 0 {
		a |= AccessShaderRead | AccessShaderWrite
	}
	if u&gputypes.BufferUsageIndirect != 0 {
		a |= AccessIndirectCommandRead
	}
	return a
}

// ImageAccess returns the access mask and layout for an image used as u.
// Storage use wins over sampling because it needs the general layout.
func ImageAccess(u gputypes.TextureUsage) (AccessFlags, device.ImageLayout) {
	switch {
	case u == gputypes.TextureUsageNone:
		return 0, device.LayoutUndefined
	case u&gputypes.TextureUsageStorageBinding != 0:
		return AccessShaderRead | AccessShaderWrite, device.LayoutGeneral
	case u&gputypes.TextureUsageRenderAttachment != 0:
		return AccessColorAttachmentWrite, device.LayoutColorAttachmentOptimal
	case u&gputypes.TextureUsageTextureBinding != 0:
		return AccessShaderRead, device.LayoutShaderReadOnlyOptimal
	case u&gputypes.TextureUsageCopyDst != 0:
		return AccessTransferWrite, device.LayoutTransferDstOptimal
	case u&gputypes.TextureUsageCopySrc != 0:
		return AccessTransferRead, device.LayoutTransferSrcOptimal
	}
	return 0, device.LayoutGeneral
}

// ShaderStageFlags converts WebGPU shader stages to VkShaderStageFlags.
func ShaderStageFlags(s gputypes.ShaderStages) uint32 {
	var f uint32
	if s&gputypes.ShaderStageVertex != 0 {
		f |= stageVertexBit
	}
	if s&gputypes.ShaderStageFragment != 0 {
		f |= stageFragmentBit
	}
	if s&gputypes.ShaderStageCompute != 0 {
		f |= stageComputeBit
	}
	return f
}
