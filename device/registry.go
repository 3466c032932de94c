// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/gogpu/gpucontext"
)

// Factory opens a new device for a backend.
type Factory func() (Device, error)

// Backend names in order of preference.
const (
	BackendVulkan  = "vulkan"
	BackendHALNoop = "hal-noop"
	BackendSim     = "sim"
)

// registry holds backend factories. Backends register themselves from init,
// so importing a backend package makes it available:
//
//	import _ "github.com/gogpu/frameflight/device/sim"
var registry = gpucontext.NewRegistry[Factory](
	gpucontext.WithPriority(BackendVulkan, BackendHALNoop, BackendSim),
)

// Register makes a backend available under name, replacing any existing
// factory with the same name.
func Register(name string, f Factory) {
	registry.Register(name, func() Factory { return f })
}

// Unregister removes a backend.
func Unregister(name string) {
	registry.Unregister(name)
}

// IsAvailable reports whether a backend is registered under name.
func IsAvailable(name string) bool {
	return registry.Has(name)
}

// Available returns the registered backend names in sorted order.
func Available() []string {
	names := registry.Available()
	sort.Strings(names)
	return names
}

// Open opens the backend registered under name.
func Open(name string) (Device, error) {
	f := registry.Get(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	dev, err := f()
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", name, err)
	}
	return dev, nil
}

// OpenBest opens the highest-priority registered backend and returns its
// name.
func OpenBest() (Device, string, error) {
	name := registry.BestName()
	if name == "" {
		return nil, "", ErrNoBackend
	}
	dev, err := Open(name)
	return dev, name, err
}

// ProviderAdapter wraps the device objects of a host DeviceProvider. It
// reports false when it does not recognize the provider.
type ProviderAdapter func(p gpucontext.DeviceProvider) (Device, bool, error)

var (
	adaptersMu sync.Mutex
	adapters   []ProviderAdapter
)

// RegisterProviderAdapter adds an adapter tried by FromProvider. Backends
// call it from init.
func RegisterProviderAdapter(a ProviderAdapter) {
	adaptersMu.Lock()
	defer adaptersMu.Unlock()
	adapters = append(adapters, a)
}

// FromProvider wraps the device owned by a host application, such as a
// gogpu window, without creating a new one.
func FromProvider(p gpucontext.DeviceProvider) (Device, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrInvalidHandle)
	}
	adaptersMu.Lock()
	list := slices.Clone(adapters)
	adaptersMu.Unlock()

	for _, a := range list {
		dev, ok, err := a(p)
		if !ok {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("device: from provider %T: %w", p, err)
		}
		return dev, nil
	}
	return nil, fmt.Errorf("%w: provider %T", ErrUnsupported, p)
}
