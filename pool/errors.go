// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pool

import (
	"errors"
	"fmt"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
)

var (
	// ErrPoolExhausted is returned when a pool cannot satisfy an
	// allocation. The returned handles are invalid.
	ErrPoolExhausted = errors.New("pool: exhausted")

	// ErrRealize is returned when the native pool could not be created.
	ErrRealize = errors.New("pool: realize native pool")
)

func isExhaustion(err error) bool {
	return errors.Is(err, device.ErrOutOfPoolMemory) || errors.Is(err, device.ErrOutOfMemory)
}

// exhausted reports an allocation failure the way the pool's policy asks
// for and returns the error handed back to the caller.
func exhausted(kind, label string, strict bool, requested int, cause error) error {
	logging.Logger().Warn("pool: exhausted",
		"kind", kind, "label", label, "requested", requested, "err", cause)
	assert.That(!strict && !assert.Debug, "%s pool %q exhausted allocating %d: %v", kind, label, requested, cause)
	return fmt.Errorf("%w: %s pool %q: %w", ErrPoolExhausted, kind, label, cause)
}
