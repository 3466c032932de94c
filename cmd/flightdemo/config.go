// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/gogpu/frameflight"
)

// Config is the demo configuration.
type Config struct {
	Backend  string             `mapstructure:"backend"`
	Frames   int                `mapstructure:"frames"`
	Images   uint32             `mapstructure:"images"`
	Buffers  int                `mapstructure:"buffers"`
	LogLevel string             `mapstructure:"log_level"`
	Renderer frameflight.Config `mapstructure:"renderer"`
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() Config {
	return Config{
		Frames:   60,
		Images:   3,
		Buffers:  4,
		LogLevel: "warn",
		Renderer: frameflight.DefaultConfig(),
	}
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("frames", cfg.Frames)
	v.SetDefault("images", cfg.Images)
	v.SetDefault("buffers", cfg.Buffers)
	v.SetDefault("log_level", cfg.LogLevel)

	r := cfg.Renderer
	v.SetDefault("renderer.max_frames_in_flight", r.MaxFramesInFlight)
	v.SetDefault("renderer.fence_timeout", r.FenceTimeout)
	v.SetDefault("renderer.strict_exhaustion", r.StrictExhaustion)
	v.SetDefault("renderer.label", r.Label)
	v.SetDefault("renderer.command_pool.capacity", r.CommandPool.Capacity)
	v.SetDefault("renderer.command_pool.transient", r.CommandPool.Transient)
	v.SetDefault("renderer.descriptor_pool.max_sets", r.DescriptorPool.MaxSets)
	v.SetDefault("renderer.descriptor_pool.uniform_buffers", r.DescriptorPool.UniformBuffers)
	v.SetDefault("renderer.descriptor_pool.storage_buffers", r.DescriptorPool.StorageBuffers)
	v.SetDefault("renderer.descriptor_pool.sampled_images", r.DescriptorPool.SampledImages)
	v.SetDefault("renderer.descriptor_pool.storage_images", r.DescriptorPool.StorageImages)
	v.SetDefault("renderer.descriptor_pool.samplers", r.DescriptorPool.Samplers)
	v.SetDefault("renderer.descriptor_pool.combined_image_samplers", r.DescriptorPool.CombinedImageSamplers)
}

// Load reads the configuration from cfgFile (or flightdemo.yaml in the
// working directory), FLIGHTDEMO_* variables and the values already bound
// on v. A missing config file is not an error.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("flightdemo")
	}

	v.SetEnvPrefix("FLIGHTDEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Frames < 1 {
		return fmt.Errorf("frames must be positive, got %d", c.Frames)
	}
	if c.Buffers < 1 {
		return fmt.Errorf("buffers must be positive, got %d", c.Buffers)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.Renderer.Validate()
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level must be one of debug, info, warn, error: %w", err)
	}
	return l, nil
}
