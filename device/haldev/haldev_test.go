// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package haldev

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/frameflight/device"
)

// createNoopDevice opens a Device on the HAL noop backend.
func createNoopDevice(t *testing.T) *Device {
	t.Helper()
	d, err := Open(noop.API{}, device.BackendHALNoop)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(d.Destroy)
	return d
}

func recorded(t *testing.T, d *Device) device.CommandBuffer {
	t.Helper()
	pool, err := d.CreateCommandPool(&device.CommandPoolDescriptor{Label: "test"})
	if err != nil {
		t.Fatalf("CreateCommandPool: %v", err)
	}
	cbs, err := d.AllocateCommandBuffers(pool, 1)
	if err != nil {
		t.Fatalf("AllocateCommandBuffers: %v", err)
	}
	if err := d.BeginCommandBuffer(cbs[0], true); err != nil {
		t.Fatalf("BeginCommandBuffer: %v", err)
	}
	if err := d.EndCommandBuffer(cbs[0]); err != nil {
		t.Fatalf("EndCommandBuffer: %v", err)
	}
	return cbs[0]
}

func TestRegistered(t *testing.T) {
	if !device.IsAvailable(device.BackendHALNoop) {
		t.Fatalf("%q not registered", device.BackendHALNoop)
	}
	dev, err := device.Open(device.BackendHALNoop)
	if err != nil {
		t.Fatalf("device.Open: %v", err)
	}
	d := dev.(*Device)
	defer d.Destroy()
	if d.Name() != device.BackendHALNoop {
		t.Errorf("Name() = %q", d.Name())
	}
	if d.AdapterInfo().Name != "Noop Adapter" {
		t.Errorf("AdapterInfo().Name = %q", d.AdapterInfo().Name)
	}
	if d.Limits().MaxBindingsPerBindGroup == 0 {
		t.Error("limits not taken from the adapter")
	}
}

func TestNewRejectsNil(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, device.ErrInvalidHandle) {
		t.Errorf("New(nil, nil) error = %v, want ErrInvalidHandle", err)
	}
}

func TestSubmitSignalsFence(t *testing.T) {
	d := createNoopDevice(t)
	cb := recorded(t, d)
	sem, _ := d.CreateSemaphore()
	fence, _ := d.CreateFence(false)

	err := d.Submit([]device.SubmitInfo{{CommandBuffers: []device.CommandBuffer{cb}, Signals: []device.Semaphore{sem}}}, fence)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ok, err := d.WaitForFences([]device.Fence{fence}, true, time.Second)
	if err != nil || !ok {
		t.Fatalf("WaitForFences = %v, %v", ok, err)
	}
	if signaled, _ := d.FenceStatus(fence); !signaled {
		t.Error("fence not signaled after wait")
	}
	if err := d.ResetFences([]device.Fence{fence}); err != nil {
		t.Fatalf("ResetFences: %v", err)
	}
	if signaled, _ := d.FenceStatus(fence); signaled {
		t.Error("fence signaled after reset")
	}

	// The buffer completed, so it can be recorded again.
	if err := d.BeginCommandBuffer(cb, true); err != nil {
		t.Fatalf("re-record: %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	d := createNoopDevice(t)
	pool, _ := d.CreateCommandPool(nil)
	cbs, _ := d.AllocateCommandBuffers(pool, 1)

	err := d.Submit([]device.SubmitInfo{{CommandBuffers: cbs}}, 0)
	if !errors.Is(err, device.ErrValidation) {
		t.Errorf("submit of initial buffer error = %v, want ErrValidation", err)
	}

	cb := recorded(t, d)
	err = d.Submit([]device.SubmitInfo{{
		CommandBuffers: []device.CommandBuffer{cb},
		Waits:          []device.SemaphoreWait{{Semaphore: 999, Stage: device.StageComputeShader}},
	}}, 0)
	if !errors.Is(err, device.ErrInvalidHandle) {
		t.Errorf("unknown semaphore error = %v, want ErrInvalidHandle", err)
	}

	signaled, _ := d.CreateFence(true)
	err = d.Submit([]device.SubmitInfo{{CommandBuffers: []device.CommandBuffer{cb}}}, signaled)
	if !errors.Is(err, device.ErrValidation) {
		t.Errorf("submit with signaled fence error = %v, want ErrValidation", err)
	}
}

func TestWaitOnUnarmedFence(t *testing.T) {
	d := createNoopDevice(t)
	fence, _ := d.CreateFence(false)

	ok, err := d.WaitForFences([]device.Fence{fence}, true, 0)
	if ok || err != nil {
		t.Errorf("poll = %v, %v; want false, nil", ok, err)
	}
	_, err = d.WaitForFences([]device.Fence{fence}, true, 10*time.Millisecond)
	if !errors.Is(err, device.ErrValidation) {
		t.Errorf("blocking wait error = %v, want ErrValidation", err)
	}

	pre, _ := d.CreateFence(true)
	ok, err = d.WaitForFences([]device.Fence{fence, pre}, false, device.Infinite)
	if !ok || err != nil {
		t.Errorf("wait any = %v, %v; want true, nil", ok, err)
	}
}

func TestRecordComputeStages(t *testing.T) {
	d := createNoopDevice(t)
	halDev, _ := d.HAL()

	pipe, err := halDev.CreateComputePipeline(&hal.ComputePipelineDescriptor{Label: "blur"})
	if err != nil {
		t.Fatalf("CreateComputePipeline: %v", err)
	}
	buf, err := halDev.CreateBuffer(&hal.BufferDescriptor{Size: 256, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	p := d.RegisterComputePipeline(pipe)
	b := d.RegisterBuffer(buf)

	layout, err := d.CreateDescriptorSetLayout([]device.LayoutBinding{
		{Binding: 0, Type: device.DescriptorStorageBuffer, Count: 1, Stages: gputypes.ShaderStageCompute},
	})
	if err != nil {
		t.Fatalf("CreateDescriptorSetLayout: %v", err)
	}
	dp, _ := d.CreateDescriptorPool(&device.DescriptorPoolDescriptor{
		MaxSets: 1,
		Sizes:   []device.PoolSize{{Type: device.DescriptorStorageBuffer, Count: 1}},
	})
	sets, err := d.AllocateDescriptorSets(dp, []device.DescriptorSetLayout{layout})
	if err != nil {
		t.Fatalf("AllocateDescriptorSets: %v", err)
	}
	d.UpdateDescriptorSets([]device.DescriptorWrite{{
		Set: sets[0], Binding: 0, Type: device.DescriptorStorageBuffer,
		Buffer: &device.BufferInfo{Buffer: b, Range: device.WholeSize},
	}})
	if d.sets[sets[0]].group == nil {
		t.Fatal("bind group not built after all bindings were written")
	}

	pool, _ := d.CreateCommandPool(nil)
	cbs, _ := d.AllocateCommandBuffers(pool, 1)
	cb := cbs[0]
	if err := d.BeginCommandBuffer(cb, true); err != nil {
		t.Fatalf("BeginCommandBuffer: %v", err)
	}
	d.CmdBindPipeline(cb, p)
	d.CmdBindDescriptorSet(cb, p, 0, sets[0])
	d.CmdDispatch(cb, 8, 8, 1)
	d.CmdPipelineBarrier(cb, &device.BarrierSet{
		Src: device.StageComputeShader, Dst: device.StageComputeShader,
		Buffers: []device.BufferTransition{{Buffer: b, From: gputypes.BufferUsageStorage, To: gputypes.BufferUsageStorage}},
	})
	if d.cbs[cb].pass != nil {
		t.Error("barrier did not close the compute pass")
	}
	d.CmdDispatch(cb, 4, 4, 1)
	if got := len(d.cbs[cb].bound); got != 2 {
		t.Errorf("bound groups = %d, want 2 (one per pass)", got)
	}
	if err := d.EndCommandBuffer(cb); err != nil {
		t.Fatalf("EndCommandBuffer: %v", err)
	}
	if err := d.Submit([]device.SubmitInfo{{CommandBuffers: cbs}}, 0); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func TestRewriteRetiresBindGroup(t *testing.T) {
	d := createNoopDevice(t)
	halDev, _ := d.HAL()
	buf, _ := halDev.CreateBuffer(&hal.BufferDescriptor{Size: 64, Usage: gputypes.BufferUsageUniform})
	b := d.RegisterBuffer(buf)

	layout, _ := d.CreateDescriptorSetLayout([]device.LayoutBinding{
		{Binding: 0, Type: device.DescriptorUniformBuffer, Count: 1, Stages: gputypes.ShaderStageCompute},
	})
	dp, _ := d.CreateDescriptorPool(&device.DescriptorPoolDescriptor{
		MaxSets: 1,
		Sizes:   []device.PoolSize{{Type: device.DescriptorUniformBuffer, Count: 1}},
	})
	sets, _ := d.AllocateDescriptorSets(dp, []device.DescriptorSetLayout{layout})
	write := []device.DescriptorWrite{{
		Set: sets[0], Binding: 0, Type: device.DescriptorUniformBuffer,
		Buffer: &device.BufferInfo{Buffer: b, Range: 64},
	}}
	d.UpdateDescriptorSets(write)
	d.UpdateDescriptorSets(write)

	// Nothing was submitted, so the replaced group is destroyed at once.
	if len(d.retired) != 0 {
		t.Errorf("retired groups = %d, want 0", len(d.retired))
	}
}

func TestDescriptorPoolAccounting(t *testing.T) {
	d := createNoopDevice(t)
	layout, err := d.CreateDescriptorSetLayout([]device.LayoutBinding{
		{Binding: 0, Type: device.DescriptorStorageBuffer, Count: 1},
		{Binding: 1, Type: device.DescriptorStorageImage, Count: 1},
	})
	if err != nil {
		t.Fatalf("CreateDescriptorSetLayout: %v", err)
	}
	dp, _ := d.CreateDescriptorPool(&device.DescriptorPoolDescriptor{
		MaxSets: 4,
		Sizes: []device.PoolSize{
			{Type: device.DescriptorStorageBuffer, Count: 4},
			{Type: device.DescriptorStorageImage, Count: 2},
		},
	})
	layouts := []device.DescriptorSetLayout{layout, layout}
	if _, err := d.AllocateDescriptorSets(dp, layouts); err != nil {
		t.Fatalf("first allocation: %v", err)
	}
	if _, err := d.AllocateDescriptorSets(dp, layouts[:1]); !errors.Is(err, device.ErrOutOfPoolMemory) {
		t.Errorf("storage images exhausted: error = %v, want ErrOutOfPoolMemory", err)
	}
	if err := d.FreeDescriptorSets(dp, nil); !errors.Is(err, device.ErrValidation) {
		t.Errorf("FreeDescriptorSets without FreeIndividual: error = %v, want ErrValidation", err)
	}
	if err := d.ResetDescriptorPool(dp); err != nil {
		t.Fatalf("ResetDescriptorPool: %v", err)
	}
	if _, err := d.AllocateDescriptorSets(dp, layouts); err != nil {
		t.Errorf("allocation after reset: %v", err)
	}
}

func TestFreeIndividualSets(t *testing.T) {
	d := createNoopDevice(t)
	layout, _ := d.CreateDescriptorSetLayout([]device.LayoutBinding{
		{Binding: 0, Type: device.DescriptorSampler, Count: 1},
	})
	dp, _ := d.CreateDescriptorPool(&device.DescriptorPoolDescriptor{
		MaxSets:        1,
		Sizes:          []device.PoolSize{{Type: device.DescriptorSampler, Count: 1}},
		FreeIndividual: true,
	})
	sets, err := d.AllocateDescriptorSets(dp, []device.DescriptorSetLayout{layout})
	if err != nil {
		t.Fatalf("AllocateDescriptorSets: %v", err)
	}
	if err := d.FreeDescriptorSets(dp, sets); err != nil {
		t.Fatalf("FreeDescriptorSets: %v", err)
	}
	if _, err := d.AllocateDescriptorSets(dp, []device.DescriptorSetLayout{layout}); err != nil {
		t.Errorf("allocation after free: %v", err)
	}
}

func TestUnsupportedBindings(t *testing.T) {
	d := createNoopDevice(t)
	tests := []struct {
		name    string
		binding device.LayoutBinding
	}{
		{"combined image sampler", device.LayoutBinding{Type: device.DescriptorCombinedImageSampler, Count: 1}},
		{"array", device.LayoutBinding{Type: device.DescriptorStorageBuffer, Count: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.CreateDescriptorSetLayout([]device.LayoutBinding{tt.binding})
			if !errors.Is(err, device.ErrUnsupported) {
				t.Errorf("error = %v, want ErrUnsupported", err)
			}
		})
	}
}

func TestSurfaceAcquirePresent(t *testing.T) {
	d := createNoopDevice(t)
	inst, _ := noop.API{}.CreateInstance(nil)
	defer inst.Destroy()
	surface, _ := inst.CreateSurface(0, 0)

	sc, err := d.RegisterSurface(surface, &hal.SurfaceConfiguration{
		Width: 640, Height: 480,
		Format:      gputypes.TextureFormatBGRA8Unorm,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: gputypes.PresentModeFifo,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	}, 3)
	if err != nil {
		t.Fatalf("RegisterSurface: %v", err)
	}
	sem, _ := d.CreateSemaphore()

	for frame := range 6 {
		idx, err := d.AcquireNextImage(sc, sem, time.Second)
		if err != nil {
			t.Fatalf("frame %d: acquire: %v", frame, err)
		}
		if want := uint32(frame % 3); idx != want {
			t.Errorf("frame %d: image = %d, want %d", frame, idx, want)
		}
		if err := d.Present(&device.PresentInfo{Swapchain: sc, ImageIndex: idx, Waits: []device.Semaphore{sem}}); err != nil {
			t.Fatalf("frame %d: present: %v", frame, err)
		}
	}

	err = d.Present(&device.PresentInfo{Swapchain: sc, ImageIndex: 1})
	if !errors.Is(err, device.ErrValidation) {
		t.Errorf("present of unacquired image: error = %v, want ErrValidation", err)
	}

	for range 3 {
		if _, err := d.AcquireNextImage(sc, sem, time.Second); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}
	if _, err := d.AcquireNextImage(sc, sem, time.Second); !errors.Is(err, device.ErrValidation) {
		t.Errorf("acquire beyond image count: error = %v, want ErrValidation", err)
	}
	d.UnregisterSurface(sc)
	if _, err := d.AcquireNextImage(sc, sem, 0); !errors.Is(err, device.ErrInvalidHandle) {
		t.Errorf("acquire after unregister: error = %v, want ErrInvalidHandle", err)
	}
}

func TestMapErr(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{hal.ErrDeviceLost, device.ErrDeviceLost},
		{hal.ErrSurfaceOutdated, device.ErrOutOfDate},
		{hal.ErrSurfaceLost, device.ErrOutOfDate},
		{hal.ErrDeviceOutOfMemory, device.ErrOutOfMemory},
		{hal.ErrTimeout, device.ErrTimeout},
		{fmt.Errorf("wrapped: %w", hal.ErrNotReady), device.ErrTimeout},
		{hal.ErrTimestampsNotSupported, device.ErrUnsupported},
	}
	for _, tt := range tests {
		got := mapErr(tt.in)
		if !errors.Is(got, tt.want) {
			t.Errorf("mapErr(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if !errors.Is(got, tt.in) {
			t.Errorf("mapErr(%v) lost the original error", tt.in)
		}
	}
	if mapErr(nil) != nil {
		t.Error("mapErr(nil) != nil")
	}
	other := errors.New("other")
	if mapErr(other) != other {
		t.Error("unknown errors should pass through")
	}
}

func TestFromProvider(t *testing.T) {
	d := createNoopDevice(t)
	p := NewProvider(d, gputypes.TextureFormatBGRA8Unorm)

	dev, err := device.FromProvider(p)
	if err != nil {
		t.Fatalf("FromProvider: %v", err)
	}
	wrapped := dev.(*Device)
	defer wrapped.Destroy()

	halDev, halQueue := wrapped.HAL()
	wantDev, wantQueue := d.HAL()
	if halDev != wantDev || halQueue != wantQueue {
		t.Error("wrapped device does not share the provider's HAL objects")
	}
	if wrapped.Name() != "hal" {
		t.Errorf("Name() = %q, want hal", wrapped.Name())
	}
	if got := p.SurfaceFormat(); got != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("SurfaceFormat() = %v", got)
	}
	if got := p.AdapterInfo().Name; got != "Noop Adapter" {
		t.Errorf("AdapterInfo().Name = %q", got)
	}
}

func TestDestroyIdempotent(t *testing.T) {
	d, err := Open(noop.API{}, device.BackendHALNoop)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pool, _ := d.CreateCommandPool(nil)
	if _, err := d.AllocateCommandBuffers(pool, 3); err != nil {
		t.Fatalf("AllocateCommandBuffers: %v", err)
	}
	d.Destroy()
	d.Destroy()
	if len(d.cbs) != 0 || len(d.cmdPools) != 0 {
		t.Errorf("Destroy left %d buffers and %d pools", len(d.cbs), len(d.cmdPools))
	}
}
