// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/frameflight"
	"github.com/gogpu/frameflight/device"
)

const version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flightdemo",
		Short: "Drive the frame-in-flight loop on a GPU backend",
		Long: `flightdemo runs a small compute workload through the frameflight
renderer, with several frames in flight, and reports how many submissions,
fence waits and descriptor writes the device saw.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newBackendsCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var cfgFile string
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run frames on a backend and print statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Load(v, cfgFile)
			if err != nil {
				return err
			}
			level, _ := parseLevel(cfg.LogLevel)
			frameflight.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(),
				&slog.HandlerOptions{Level: level})))

			res, err := run(cfg)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "flightdemo:", err)
				return err
			}
			res.print(cmd.OutOrStdout())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ./flightdemo.yaml)")
	f.String("backend", "", "backend name (default is the best registered backend)")
	f.Int("frames", 0, "number of frames to run")
	f.Uint32("images", 0, "swapchain images, 0 for offscreen")
	f.Int("buffers", 0, "distinct storage buffers cycled through the descriptor set")
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.Int("in-flight", 0, "maximum frames in flight")
	f.Bool("strict", false, "panic on pool exhaustion")

	for key, flag := range map[string]string{
		"backend":                       "backend",
		"frames":                        "frames",
		"images":                        "images",
		"buffers":                       "buffers",
		"log_level":                     "log-level",
		"renderer.max_frames_in_flight": "in-flight",
		"renderer.strict_exhaustion":    "strict",
	} {
		// Unset flags fall through to the file, environment and defaults.
		_ = v.BindPFlag(key, f.Lookup(flag))
	}
	return cmd
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered backends",
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range device.Available() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flightdemo %s (%s, %s/%s)\n",
				version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
