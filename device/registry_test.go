// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package device

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
)

// stubDevice satisfies Device through the embedded nil interface; only
// Name is ever called in these tests.
type stubDevice struct {
	Device
	name string
}

func (s stubDevice) Name() string { return s.name }

func TestRegistryOpenByName(t *testing.T) {
	Register("test-a", func() (Device, error) { return stubDevice{name: "test-a"}, nil })
	defer Unregister("test-a")

	if !IsAvailable("test-a") {
		t.Fatal("test-a should be available")
	}
	dev, err := Open("test-a")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if dev.Name() != "test-a" {
		t.Errorf("Name() = %q, want test-a", dev.Name())
	}
}

func TestRegistryUnknown(t *testing.T) {
	_, err := Open("no-such-backend")
	if !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Open error = %v, want ErrUnknownBackend", err)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	Register("test-broken", func() (Device, error) { return nil, ErrDeviceLost })
	defer Unregister("test-broken")

	_, err := Open("test-broken")
	if !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Open error = %v, want wrapped ErrDeviceLost", err)
	}
}

func TestRegistryPriority(t *testing.T) {
	Register(BackendSim, func() (Device, error) { return stubDevice{name: BackendSim}, nil })
	Register(BackendHALNoop, func() (Device, error) { return stubDevice{name: BackendHALNoop}, nil })
	defer Unregister(BackendSim)
	defer Unregister(BackendHALNoop)

	if IsAvailable(BackendVulkan) {
		t.Skip("vulkan backend registered in this build")
	}
	dev, name, err := OpenBest()
	if err != nil {
		t.Fatalf("OpenBest: %v", err)
	}
	if name != BackendHALNoop || dev.Name() != BackendHALNoop {
		t.Errorf("OpenBest picked %q, want %q", name, BackendHALNoop)
	}
}

func TestDescriptorTypeClasses(t *testing.T) {
	tests := []struct {
		typ    DescriptorType
		buffer bool
		image  bool
	}{
		{DescriptorUniformBuffer, true, false},
		{DescriptorStorageBufferDynamic, true, false},
		{DescriptorSampledImage, false, true},
		{DescriptorCombinedImageSampler, false, true},
		{DescriptorSampler, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if tt.typ.IsBuffer() != tt.buffer || tt.typ.IsImage() != tt.image {
				t.Errorf("IsBuffer/IsImage = %v/%v, want %v/%v",
					tt.typ.IsBuffer(), tt.typ.IsImage(), tt.buffer, tt.image)
			}
		})
	}
}

func TestBarrierSetEmpty(t *testing.T) {
	if !(BarrierSet{}).Empty() {
		t.Error("zero BarrierSet should be empty")
	}
	b := BarrierSet{Buffers: []BufferTransition{{Buffer: 1}}}
	if b.Empty() {
		t.Error("BarrierSet with a buffer transition should not be empty")
	}
}

type stubProvider struct {
	gpucontext.DeviceProvider
	native any
}

func (p stubProvider) Device() gpucontext.Device { return p.native }

func TestFromProvider(t *testing.T) {
	type marker struct{}
	RegisterProviderAdapter(func(p gpucontext.DeviceProvider) (Device, bool, error) {
		if _, ok := p.Device().(marker); !ok {
			return nil, false, nil
		}
		return stubDevice{name: "wrapped"}, true, nil
	})

	dev, err := FromProvider(stubProvider{native: marker{}})
	if err != nil {
		t.Fatalf("FromProvider: %v", err)
	}
	if dev.Name() != "wrapped" {
		t.Errorf("Name() = %q, want wrapped", dev.Name())
	}

	if _, err := FromProvider(stubProvider{native: 42}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("unrecognized provider error = %v, want ErrUnsupported", err)
	}
	if _, err := FromProvider(nil); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("nil provider error = %v, want ErrInvalidHandle", err)
	}
}
