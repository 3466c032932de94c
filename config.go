// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frameflight

import (
	"fmt"
	"time"

	"github.com/gogpu/frameflight/frame"
)

// Config configures a Renderer. The mapstructure tags let callers load it
// with viper or any other mapstructure-based loader.
type Config struct {
	MaxFramesInFlight int                  `mapstructure:"max_frames_in_flight"`
	FenceTimeout      time.Duration        `mapstructure:"fence_timeout"`
	StrictExhaustion  bool                 `mapstructure:"strict_exhaustion"`
	CommandPool       CommandPoolConfig    `mapstructure:"command_pool"`
	DescriptorPool    DescriptorPoolConfig `mapstructure:"descriptor_pool"`
	Label             string               `mapstructure:"label"`
}

// CommandPoolConfig sizes the renderer's command pool.
type CommandPoolConfig struct {
	// Capacity caps outstanding command buffers. Zero means unbounded.
	Capacity  int  `mapstructure:"capacity"`
	Transient bool `mapstructure:"transient"`
}

// DescriptorPoolConfig sizes the renderer's descriptor pool. Counts are
// descriptors, not sets.
type DescriptorPoolConfig struct {
	MaxSets               uint32 `mapstructure:"max_sets"`
	UniformBuffers        uint32 `mapstructure:"uniform_buffers"`
	StorageBuffers        uint32 `mapstructure:"storage_buffers"`
	SampledImages         uint32 `mapstructure:"sampled_images"`
	StorageImages         uint32 `mapstructure:"storage_images"`
	Samplers              uint32 `mapstructure:"samplers"`
	CombinedImageSamplers uint32 `mapstructure:"combined_image_samplers"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() Config {
	return Config{
		MaxFramesInFlight: 2,
		FenceTimeout:      time.Second,
		CommandPool: CommandPoolConfig{
			Transient: true,
		},
		DescriptorPool: DescriptorPoolConfig{
			MaxSets:               64,
			UniformBuffers:        64,
			StorageBuffers:        64,
			SampledImages:         32,
			StorageImages:         16,
			Samplers:              16,
			CombinedImageSamplers: 32,
		},
		Label: "frameflight",
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.MaxFramesInFlight < 1 || c.MaxFramesInFlight > frame.MaxFramesInFlightLimit {
		return fmt.Errorf("%w: max_frames_in_flight must be between 1 and %d, got %d",
			ErrInvalidConfig, frame.MaxFramesInFlightLimit, c.MaxFramesInFlight)
	}
	if c.FenceTimeout <= 0 {
		return fmt.Errorf("%w: fence_timeout must be positive, got %v", ErrInvalidConfig, c.FenceTimeout)
	}
	if c.CommandPool.Capacity < 0 {
		return fmt.Errorf("%w: command_pool.capacity must not be negative", ErrInvalidConfig)
	}
	if c.DescriptorPool.MaxSets == 0 {
		return fmt.Errorf("%w: descriptor_pool.max_sets must be positive", ErrInvalidConfig)
	}
	return nil
}
