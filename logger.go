// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frameflight

import (
	"log/slog"

	"github.com/gogpu/frameflight/internal/logging"
)

// SetLogger configures the logger for frameflight and all its
// sub-packages. By default frameflight produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default.
//
// Log levels used by frameflight:
//   - [slog.LevelDebug]: realization, pool sizes, per-frame submissions
//   - [slog.LevelInfo]: lifecycle events (renderer created, backend selected)
//   - [slog.LevelWarn]: pool exhaustion, release errors, skipped frames
//
// Example:
//
//	frameflight.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
}

// Logger returns the current logger used by frameflight.
func Logger() *slog.Logger {
	return logging.Logger()
}
