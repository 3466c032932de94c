// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build vulkan

package vkdev

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/internal/logging"
)

func init() {
	device.Register(device.BackendVulkan, func() (device.Device, error) {
		return OpenHeadless("frameflight")
	})
}

type pipeline struct {
	handle vk.Pipeline
	layout vk.PipelineLayout
}

type setLayout struct {
	handle   vk.DescriptorSetLayout
	bindings []device.LayoutBinding
}

type descriptorSet struct {
	handle vk.DescriptorSet
	pool   device.DescriptorPool
}

// Device is a device.Device on a Vulkan logical device and one queue.
type Device struct {
	instance vk.Instance
	physical vk.PhysicalDevice
	dev      vk.Device
	queue    vk.Queue
	family   uint32
	limits   gputypes.Limits
	// owned is set when the Device created the instance and device.
	owned bool

	handles device.HandleAllocator

	cmdPools   map[device.CommandPool]vk.CommandPool
	cbs        map[device.CommandBuffer]vk.CommandBuffer
	fences     map[device.Fence]vk.Fence
	sems       map[device.Semaphore]vk.Semaphore
	layouts    map[device.DescriptorSetLayout]*setLayout
	descPools  map[device.DescriptorPool]vk.DescriptorPool
	sets       map[device.DescriptorSet]*descriptorSet
	pipelines  map[device.Pipeline]pipeline
	buffers    map[device.Buffer]vk.Buffer
	images     map[device.Image]vk.Image
	views      map[device.ImageView]vk.ImageView
	samplers   map[device.Sampler]vk.Sampler
	swapchains map[device.Swapchain]vk.Swapchain
}

var _ device.Device = (*Device)(nil)

func newDevice() *Device {
	return &Device{
		cmdPools:   make(map[device.CommandPool]vk.CommandPool),
		cbs:        make(map[device.CommandBuffer]vk.CommandBuffer),
		fences:     make(map[device.Fence]vk.Fence),
		sems:       make(map[device.Semaphore]vk.Semaphore),
		layouts:    make(map[device.DescriptorSetLayout]*setLayout),
		descPools:  make(map[device.DescriptorPool]vk.DescriptorPool),
		sets:       make(map[device.DescriptorSet]*descriptorSet),
		pipelines:  make(map[device.Pipeline]pipeline),
		buffers:    make(map[device.Buffer]vk.Buffer),
		images:     make(map[device.Image]vk.Image),
		views:      make(map[device.ImageView]vk.ImageView),
		samplers:   make(map[device.Sampler]vk.Sampler),
		swapchains: make(map[device.Swapchain]vk.Swapchain),
	}
}

// Wrap uses a logical device and queue created by the application. The
// caller keeps ownership of both.
func Wrap(physical vk.PhysicalDevice, dev vk.Device, queue vk.Queue, family uint32) *Device {
	d := newDevice()
	d.physical, d.dev, d.queue, d.family = physical, dev, queue, family
	d.limits = queryLimits(physical)
	return d
}

// OpenHeadless loads the Vulkan loader, creates an instance without
// surface extensions and opens the first adapter with a compute queue.
func OpenHeadless(appName string) (*Device, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("%w: vulkan loader: %w", device.ErrUnsupported, err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("%w: vulkan init: %w", device.ErrUnsupported, err)
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			ApiVersion:       uint32(vk.MakeVersion(1, 1, 0)),
			PApplicationName: appName + "\x00",
			PEngineName:      "frameflight\x00",
		},
	}, nil, &instance)
	if err := result(ret); err != nil {
		return nil, fmt.Errorf("vkdev: create instance: %w", err)
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, fmt.Errorf("vkdev: init instance: %w", err)
	}

	physical, family, err := pickAdapter(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}

	var dev vk.Device
	ret = vk.CreateDevice(physical, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
	}, nil, &dev)
	if err := result(ret); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, fmt.Errorf("vkdev: create device: %w", err)
	}
	var queue vk.Queue
	vk.GetDeviceQueue(dev, family, 0, &queue)

	d := Wrap(physical, dev, queue, family)
	d.instance = instance
	d.owned = true
	logging.Logger().Debug("vkdev: opened headless device", "queueFamily", family)
	return d, nil
}

func pickAdapter(instance vk.Instance) (vk.PhysicalDevice, uint32, error) {
	var count uint32
	if err := result(vk.EnumeratePhysicalDevices(instance, &count, nil)); err != nil {
		return nil, 0, fmt.Errorf("vkdev: enumerate adapters: %w", err)
	}
	if count == 0 {
		return nil, 0, fmt.Errorf("%w: no Vulkan adapters", device.ErrUnsupported)
	}
	gpus := make([]vk.PhysicalDevice, count)
	if err := result(vk.EnumeratePhysicalDevices(instance, &count, gpus)); err != nil {
		return nil, 0, fmt.Errorf("vkdev: enumerate adapters: %w", err)
	}
	for _, gpu := range gpus {
		var n uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &n, nil)
		props := make([]vk.QueueFamilyProperties, n)
		vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &n, props)
		for i := range props {
			props[i].Deref()
			if props[i].QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
				return gpu, uint32(i), nil
			}
		}
	}
	return nil, 0, fmt.Errorf("%w: no adapter with a compute queue", device.ErrUnsupported)
}

func queryLimits(physical vk.PhysicalDevice) gputypes.Limits {
	limits := gputypes.DefaultLimits()
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(physical, &props)
	props.Deref()
	props.Limits.Deref()
	limits.MaxBindGroups = props.Limits.MaxBoundDescriptorSets
	limits.MaxStorageBuffersPerShaderStage = props.Limits.MaxPerStageDescriptorStorageBuffers
	limits.MaxUniformBuffersPerShaderStage = props.Limits.MaxPerStageDescriptorUniformBuffers
	limits.MaxSamplersPerShaderStage = props.Limits.MaxPerStageDescriptorSamplers
	limits.MaxSampledTexturesPerShaderStage = props.Limits.MaxPerStageDescriptorSampledImages
	limits.MaxStorageTexturesPerShaderStage = props.Limits.MaxPerStageDescriptorStorageImages
	return limits
}

// result converts a VkResult into the device error vocabulary.
func result(r vk.Result) error {
	switch r {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.Timeout, vk.NotReady:
		return fmt.Errorf("%w: %w", device.ErrTimeout, vk.Error(r))
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%w: %w", device.ErrDeviceLost, vk.Error(r))
	case vk.ErrorOutOfDate, vk.ErrorSurfaceLost:
		return fmt.Errorf("%w: %w", device.ErrOutOfDate, vk.Error(r))
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return fmt.Errorf("%w: %w", device.ErrOutOfMemory, vk.Error(r))
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return fmt.Errorf("%w: %w", device.ErrOutOfPoolMemory, vk.Error(r))
	}
	return vk.Error(r)
}

func timeoutNanos(d time.Duration) uint64 {
	if d == device.Infinite {
		return vk.MaxUint64
	}
	return uint64(max(d, 0))
}

// Name returns "vulkan".
func (d *Device) Name() string { return device.BackendVulkan }

// Limits returns the adapter limits.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// Register* make application-created objects addressable by handle. The
// Device never destroys them.

// RegisterBuffer returns a handle for a buffer.
func (d *Device) RegisterBuffer(b vk.Buffer) device.Buffer {
	h := device.Buffer(d.handles.Next())
	d.buffers[h] = b
	return h
}

// RegisterImage returns a handle for an image.
func (d *Device) RegisterImage(img vk.Image) device.Image {
	h := device.Image(d.handles.Next())
	d.images[h] = img
	return h
}

// RegisterImageView returns a handle for an image view.
func (d *Device) RegisterImageView(v vk.ImageView) device.ImageView {
	h := device.ImageView(d.handles.Next())
	d.views[h] = v
	return h
}

// RegisterSampler returns a handle for a sampler.
func (d *Device) RegisterSampler(s vk.Sampler) device.Sampler {
	h := device.Sampler(d.handles.Next())
	d.samplers[h] = s
	return h
}

// RegisterComputePipeline returns a handle for a compute pipeline and the
// layout its descriptor sets are bound through.
func (d *Device) RegisterComputePipeline(p vk.Pipeline, layout vk.PipelineLayout) device.Pipeline {
	h := device.Pipeline(d.handles.Next())
	d.pipelines[h] = pipeline{handle: p, layout: layout}
	return h
}

// RegisterSwapchain returns a handle for a swapchain.
func (d *Device) RegisterSwapchain(sc vk.Swapchain) device.Swapchain {
	h := device.Swapchain(d.handles.Next())
	d.swapchains[h] = sc
	return h
}

// CreateCommandPool creates a command pool on the queue family.
func (d *Device) CreateCommandPool(desc *device.CommandPoolDescriptor) (device.CommandPool, error) {
	var flags vk.CommandPoolCreateFlags
	if desc != nil && desc.Transient {
		flags |= vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit)
	}
	if desc != nil && desc.ResetIndividual {
		flags |= vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit)
	}
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.dev, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            flags,
		QueueFamilyIndex: d.family,
	}, nil, &pool)
	if err := result(ret); err != nil {
		return 0, fmt.Errorf("vkdev: create command pool: %w", err)
	}
	h := device.CommandPool(d.handles.Next())
	d.cmdPools[h] = pool
	return h, nil
}

// ResetCommandPool resets every buffer of the pool.
func (d *Device) ResetCommandPool(h device.CommandPool) error {
	pool, ok := d.cmdPools[h]
	if !ok {
		return unknown("command pool", h)
	}
	return result(vk.ResetCommandPool(d.dev, pool, 0))
}

// DestroyCommandPool destroys a pool and its buffers.
func (d *Device) DestroyCommandPool(h device.CommandPool) {
	pool, ok := d.cmdPools[h]
	if !ok {
		return
	}
	vk.DestroyCommandPool(d.dev, pool, nil)
	delete(d.cmdPools, h)
}

// AllocateCommandBuffers allocates primary command buffers.
func (d *Device) AllocateCommandBuffers(h device.CommandPool, count int) ([]device.CommandBuffer, error) {
	pool, ok := d.cmdPools[h]
	if !ok {
		return nil, unknown("command pool", h)
	}
	if count <= 0 {
		return nil, nil
	}
	native := make([]vk.CommandBuffer, count)
	ret := vk.AllocateCommandBuffers(d.dev, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}, native)
	if err := result(ret); err != nil {
		return nil, fmt.Errorf("vkdev: allocate command buffers: %w", err)
	}
	out := make([]device.CommandBuffer, count)
	for i, cb := range native {
		out[i] = device.CommandBuffer(d.handles.Next())
		d.cbs[out[i]] = cb
	}
	return out, nil
}

// FreeCommandBuffers frees buffers back to their pool.
func (d *Device) FreeCommandBuffers(h device.CommandPool, buffers []device.CommandBuffer) {
	pool, ok := d.cmdPools[h]
	if !ok {
		return
	}
	native := make([]vk.CommandBuffer, 0, len(buffers))
	for _, b := range buffers {
		if cb, ok := d.cbs[b]; ok {
			native = append(native, cb)
			delete(d.cbs, b)
		}
	}
	if len(native) > 0 {
		vk.FreeCommandBuffers(d.dev, pool, uint32(len(native)), native)
	}
}

// BeginCommandBuffer begins recording.
func (d *Device) BeginCommandBuffer(h device.CommandBuffer, oneTime bool) error {
	cb, ok := d.cbs[h]
	if !ok {
		return unknown("command buffer", h)
	}
	var flags vk.CommandBufferUsageFlags
	if oneTime {
		flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return result(vk.BeginCommandBuffer(cb, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}))
}

// EndCommandBuffer ends recording.
func (d *Device) EndCommandBuffer(h device.CommandBuffer) error {
	cb, ok := d.cbs[h]
	if !ok {
		return unknown("command buffer", h)
	}
	return result(vk.EndCommandBuffer(cb))
}

// ResetCommandBuffer resets one buffer. The pool must have been created
// with ResetIndividual.
func (d *Device) ResetCommandBuffer(h device.CommandBuffer) error {
	cb, ok := d.cbs[h]
	if !ok {
		return unknown("command buffer", h)
	}
	return result(vk.ResetCommandBuffer(cb, 0))
}

// CmdPipelineBarrier records buffer and image memory barriers.
func (d *Device) CmdPipelineBarrier(h device.CommandBuffer, b *device.BarrierSet) {
	cb, ok := d.cbs[h]
	if !ok || b == nil || b.Empty() {
		return
	}
	bufs := make([]vk.BufferMemoryBarrier, 0, len(b.Buffers))
	for _, t := range b.Buffers {
		buf, ok := d.buffers[t.Buffer]
		if !ok {
			logging.Logger().Warn("vkdev: barrier on unknown buffer", "buffer", uint64(t.Buffer))
			continue
		}
		size := t.Size
		if size == 0 {
			size = vk.WholeSize
		}
		bufs = append(bufs, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(BufferAccess(t.From)),
			DstAccessMask:       vk.AccessFlags(BufferAccess(t.To)),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              buf,
			Offset:              vk.DeviceSize(t.Offset),
			Size:                vk.DeviceSize(size),
		})
	}
	imgs := make([]vk.ImageMemoryBarrier, 0, len(b.Images))
	for _, t := range b.Images {
		img, ok := d.images[t.Image]
		if !ok {
			logging.Logger().Warn("vkdev: barrier on unknown image", "image", uint64(t.Image))
			continue
		}
		srcAccess, oldLayout := ImageAccess(t.From)
		dstAccess, newLayout := ImageAccess(t.To)
		levels, layers := t.MipLevelCount, t.LayerCount
		if levels == 0 {
			levels = vk.RemainingMipLevels
		}
		if layers == 0 {
			layers = vk.RemainingArrayLayers
		}
		imgs = append(imgs, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(srcAccess),
			DstAccessMask:       vk.AccessFlags(dstAccess),
			OldLayout:           vk.ImageLayout(oldLayout),
			NewLayout:           vk.ImageLayout(newLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseMipLevel:   t.BaseMipLevel,
				LevelCount:     levels,
				BaseArrayLayer: t.BaseArrayLayer,
				LayerCount:     layers,
			},
		})
	}
	vk.CmdPipelineBarrier(cb,
		vk.PipelineStageFlags(b.Src), vk.PipelineStageFlags(b.Dst), 0,
		0, nil,
		uint32(len(bufs)), bufs,
		uint32(len(imgs)), imgs)
}

// CmdBindPipeline binds a compute pipeline.
func (d *Device) CmdBindPipeline(h device.CommandBuffer, p device.Pipeline) {
	cb, ok := d.cbs[h]
	pl, known := d.pipelines[p]
	if !ok || !known {
		logging.Logger().Warn("vkdev: bind pipeline dropped", "buffer", uint64(h), "pipeline", uint64(p))
		return
	}
	vk.CmdBindPipeline(cb, vk.PipelineBindPointCompute, pl.handle)
}

// CmdBindDescriptorSet binds a set through the pipeline's layout.
func (d *Device) CmdBindDescriptorSet(h device.CommandBuffer, p device.Pipeline, index uint32, set device.DescriptorSet) {
	cb, ok := d.cbs[h]
	pl, known := d.pipelines[p]
	s, have := d.sets[set]
	if !ok || !known || !have {
		logging.Logger().Warn("vkdev: bind descriptor set dropped",
			"buffer", uint64(h), "pipeline", uint64(p), "set", uint64(set))
		return
	}
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointCompute, pl.layout,
		index, 1, []vk.DescriptorSet{s.handle}, 0, nil)
}

// CmdDispatch records a dispatch.
func (d *Device) CmdDispatch(h device.CommandBuffer, x, y, z uint32) {
	if cb, ok := d.cbs[h]; ok {
		vk.CmdDispatch(cb, x, y, z)
	}
}

// CreateFence creates a fence.
func (d *Device) CreateFence(signaled bool) (device.Fence, error) {
	var flags vk.FenceCreateFlags
	if signaled {
		flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	ret := vk.CreateFence(d.dev, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: flags,
	}, nil, &f)
	if err := result(ret); err != nil {
		return 0, fmt.Errorf("vkdev: create fence: %w", err)
	}
	h := device.Fence(d.handles.Next())
	d.fences[h] = f
	return h, nil
}

// DestroyFence destroys a fence.
func (d *Device) DestroyFence(h device.Fence) {
	if f, ok := d.fences[h]; ok {
		vk.DestroyFence(d.dev, f, nil)
		delete(d.fences, h)
	}
}

func (d *Device) nativeFences(hs []device.Fence) ([]vk.Fence, error) {
	out := make([]vk.Fence, len(hs))
	for i, h := range hs {
		f, ok := d.fences[h]
		if !ok {
			return nil, unknown("fence", h)
		}
		out[i] = f
	}
	return out, nil
}

// WaitForFences waits on the fences.
func (d *Device) WaitForFences(hs []device.Fence, waitAll bool, timeout time.Duration) (bool, error) {
	fences, err := d.nativeFences(hs)
	if err != nil {
		return false, err
	}
	all := vk.Bool32(vk.False)
	if waitAll {
		all = vk.True
	}
	ret := vk.WaitForFences(d.dev, uint32(len(fences)), fences, all, timeoutNanos(timeout))
	switch ret {
	case vk.Success:
		return true, nil
	case vk.Timeout:
		return false, nil
	}
	return false, result(ret)
}

// ResetFences resets the fences.
func (d *Device) ResetFences(hs []device.Fence) error {
	fences, err := d.nativeFences(hs)
	if err != nil {
		return err
	}
	return result(vk.ResetFences(d.dev, uint32(len(fences)), fences))
}

// FenceStatus reports whether the fence is signaled.
func (d *Device) FenceStatus(h device.Fence) (bool, error) {
	f, ok := d.fences[h]
	if !ok {
		return false, unknown("fence", h)
	}
	switch ret := vk.GetFenceStatus(d.dev, f); ret {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, result(ret)
	}
}

// CreateSemaphore creates a binary semaphore.
func (d *Device) CreateSemaphore() (device.Semaphore, error) {
	var s vk.Semaphore
	ret := vk.CreateSemaphore(d.dev, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &s)
	if err := result(ret); err != nil {
		return 0, fmt.Errorf("vkdev: create semaphore: %w", err)
	}
	h := device.Semaphore(d.handles.Next())
	d.sems[h] = s
	return h, nil
}

// DestroySemaphore destroys a semaphore.
func (d *Device) DestroySemaphore(h device.Semaphore) {
	if s, ok := d.sems[h]; ok {
		vk.DestroySemaphore(d.dev, s, nil)
		delete(d.sems, h)
	}
}

// CreateDescriptorSetLayout creates a descriptor set layout.
func (d *Device) CreateDescriptorSetLayout(bindings []device.LayoutBinding) (device.DescriptorSetLayout, error) {
	native := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		native[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: max(b.Count, 1),
			StageFlags:      vk.ShaderStageFlags(ShaderStageFlags(b.Stages)),
		}
	}
	var l vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(d.dev, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(native)),
		PBindings:    native,
	}, nil, &l)
	if err := result(ret); err != nil {
		return 0, fmt.Errorf("vkdev: create descriptor set layout: %w", err)
	}
	h := device.DescriptorSetLayout(d.handles.Next())
	d.layouts[h] = &setLayout{handle: l, bindings: bindings}
	return h, nil
}

// DestroyDescriptorSetLayout destroys a layout.
func (d *Device) DestroyDescriptorSetLayout(h device.DescriptorSetLayout) {
	if l, ok := d.layouts[h]; ok {
		vk.DestroyDescriptorSetLayout(d.dev, l.handle, nil)
		delete(d.layouts, h)
	}
}

// CreateDescriptorPool creates a descriptor pool.
func (d *Device) CreateDescriptorPool(desc *device.DescriptorPoolDescriptor) (device.DescriptorPool, error) {
	if desc == nil {
		return 0, fmt.Errorf("%w: nil descriptor pool descriptor", device.ErrValidation)
	}
	sizes := make([]vk.DescriptorPoolSize, 0, len(desc.Sizes))
	for _, s := range desc.Sizes {
		if s.Count == 0 {
			continue
		}
		sizes = append(sizes, vk.DescriptorPoolSize{Type: vk.DescriptorType(s.Type), DescriptorCount: s.Count})
	}
	var flags vk.DescriptorPoolCreateFlags
	if desc.FreeIndividual {
		flags = vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit)
	}
	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(d.dev, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         flags,
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &pool)
	if err := result(ret); err != nil {
		return 0, fmt.Errorf("vkdev: create descriptor pool: %w", err)
	}
	h := device.DescriptorPool(d.handles.Next())
	d.descPools[h] = pool
	return h, nil
}

func (d *Device) forgetSets(pool device.DescriptorPool) {
	for h, s := range d.sets {
		if s.pool == pool {
			delete(d.sets, h)
		}
	}
}

// ResetDescriptorPool frees every set of the pool.
func (d *Device) ResetDescriptorPool(h device.DescriptorPool) error {
	pool, ok := d.descPools[h]
	if !ok {
		return unknown("descriptor pool", h)
	}
	if err := result(vk.ResetDescriptorPool(d.dev, pool, 0)); err != nil {
		return err
	}
	d.forgetSets(h)
	return nil
}

// DestroyDescriptorPool destroys a pool and its sets.
func (d *Device) DestroyDescriptorPool(h device.DescriptorPool) {
	pool, ok := d.descPools[h]
	if !ok {
		return
	}
	vk.DestroyDescriptorPool(d.dev, pool, nil)
	d.forgetSets(h)
	delete(d.descPools, h)
}

// AllocateDescriptorSets allocates one set per layout.
func (d *Device) AllocateDescriptorSets(h device.DescriptorPool, layouts []device.DescriptorSetLayout) ([]device.DescriptorSet, error) {
	pool, ok := d.descPools[h]
	if !ok {
		return nil, unknown("descriptor pool", h)
	}
	if len(layouts) == 0 {
		return nil, nil
	}
	native := make([]vk.DescriptorSetLayout, len(layouts))
	for i, lh := range layouts {
		l, ok := d.layouts[lh]
		if !ok {
			return nil, unknown("descriptor set layout", lh)
		}
		native[i] = l.handle
	}
	sets := make([]vk.DescriptorSet, len(layouts))
	ret := vk.AllocateDescriptorSets(d.dev, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: uint32(len(native)),
		PSetLayouts:        native,
	}, &sets[0])
	if err := result(ret); err != nil {
		return nil, fmt.Errorf("vkdev: allocate descriptor sets: %w", err)
	}
	out := make([]device.DescriptorSet, len(sets))
	for i, s := range sets {
		out[i] = device.DescriptorSet(d.handles.Next())
		d.sets[out[i]] = &descriptorSet{handle: s, pool: h}
	}
	return out, nil
}

// FreeDescriptorSets frees sets of a FreeIndividual pool.
func (d *Device) FreeDescriptorSets(h device.DescriptorPool, sets []device.DescriptorSet) error {
	pool, ok := d.descPools[h]
	if !ok {
		return unknown("descriptor pool", h)
	}
	native := make([]vk.DescriptorSet, 0, len(sets))
	for _, sh := range sets {
		s, ok := d.sets[sh]
		if !ok || s.pool != h {
			return unknown("descriptor set", sh)
		}
		native = append(native, s.handle)
	}
	if len(native) == 0 {
		return nil
	}
	if err := result(vk.FreeDescriptorSets(d.dev, pool, uint32(len(native)), &native[0])); err != nil {
		return err
	}
	for _, sh := range sets {
		delete(d.sets, sh)
	}
	return nil
}

// UpdateDescriptorSets writes descriptors in one call.
func (d *Device) UpdateDescriptorSets(writes []device.DescriptorWrite) {
	native := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		s, ok := d.sets[w.Set]
		if !ok {
			logging.Logger().Warn("vkdev: write to unknown descriptor set", "set", uint64(w.Set))
			continue
		}
		nw := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		switch {
		case w.Buffer != nil:
			nw.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: d.buffers[w.Buffer.Buffer],
				Offset: vk.DeviceSize(w.Buffer.Offset),
				Range:  vk.DeviceSize(w.Buffer.Range),
			}}
		case w.Image != nil:
			nw.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     d.samplers[w.Image.Sampler],
				ImageView:   d.views[w.Image.View],
				ImageLayout: vk.ImageLayout(w.Image.Layout),
			}}
		default:
			continue
		}
		native = append(native, nw)
	}
	if len(native) > 0 {
		vk.UpdateDescriptorSets(d.dev, uint32(len(native)), native, 0, nil)
	}
}

func (d *Device) nativeSemaphores(hs []device.Semaphore) ([]vk.Semaphore, error) {
	out := make([]vk.Semaphore, len(hs))
	for i, h := range hs {
		s, ok := d.sems[h]
		if !ok {
			return nil, unknown("semaphore", h)
		}
		out[i] = s
	}
	return out, nil
}

// Submit submits all batches in one vkQueueSubmit.
func (d *Device) Submit(batches []device.SubmitInfo, h device.Fence) error {
	infos := make([]vk.SubmitInfo, len(batches))
	for i, b := range batches {
		waits := make([]device.Semaphore, len(b.Waits))
		stages := make([]vk.PipelineStageFlags, len(b.Waits))
		for j, w := range b.Waits {
			waits[j] = w.Semaphore
			stages[j] = vk.PipelineStageFlags(w.Stage)
		}
		waitSems, err := d.nativeSemaphores(waits)
		if err != nil {
			return err
		}
		signalSems, err := d.nativeSemaphores(b.Signals)
		if err != nil {
			return err
		}
		cbs := make([]vk.CommandBuffer, len(b.CommandBuffers))
		for j, cbh := range b.CommandBuffers {
			cb, ok := d.cbs[cbh]
			if !ok {
				return unknown("command buffer", cbh)
			}
			cbs[j] = cb
		}
		infos[i] = vk.SubmitInfo{
			SType:                vk.StructureTypeSubmitInfo,
			WaitSemaphoreCount:   uint32(len(waitSems)),
			PWaitSemaphores:      waitSems,
			PWaitDstStageMask:    stages,
			CommandBufferCount:   uint32(len(cbs)),
			PCommandBuffers:      cbs,
			SignalSemaphoreCount: uint32(len(signalSems)),
			PSignalSemaphores:    signalSems,
		}
	}
	fence := vk.NullFence
	if !device.IsNull(h) {
		f, ok := d.fences[h]
		if !ok {
			return unknown("fence", h)
		}
		fence = f
	}
	if err := result(vk.QueueSubmit(d.queue, uint32(len(infos)), infos, fence)); err != nil {
		return fmt.Errorf("vkdev: queue submit: %w", err)
	}
	return nil
}

// AcquireNextImage acquires a swapchain image.
func (d *Device) AcquireNextImage(h device.Swapchain, sem device.Semaphore, timeout time.Duration) (uint32, error) {
	sc, ok := d.swapchains[h]
	if !ok {
		return 0, unknown("swapchain", h)
	}
	s, ok := d.sems[sem]
	if !ok {
		return 0, unknown("semaphore", sem)
	}
	var index uint32
	ret := vk.AcquireNextImage(d.dev, sc, timeoutNanos(timeout), s, vk.NullFence, &index)
	if err := result(ret); err != nil {
		return 0, fmt.Errorf("vkdev: acquire: %w", err)
	}
	return index, nil
}

// Present queues an image for presentation.
func (d *Device) Present(info *device.PresentInfo) error {
	if info == nil {
		return fmt.Errorf("%w: nil present info", device.ErrValidation)
	}
	sc, ok := d.swapchains[info.Swapchain]
	if !ok {
		return unknown("swapchain", info.Swapchain)
	}
	waits, err := d.nativeSemaphores(info.Waits)
	if err != nil {
		return err
	}
	ret := vk.QueuePresent(d.queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waits)),
		PWaitSemaphores:    waits,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc},
		PImageIndices:      []uint32{info.ImageIndex},
	})
	if err := result(ret); err != nil {
		return fmt.Errorf("vkdev: present: %w", err)
	}
	return nil
}

// WaitIdle waits for the device to drain.
func (d *Device) WaitIdle() error {
	return result(vk.DeviceWaitIdle(d.dev))
}

// Destroy releases every object created through the Device, and the device
// and instance when OpenHeadless created them.
func (d *Device) Destroy() {
	if d.dev == nil {
		return
	}
	if err := d.WaitIdle(); err != nil {
		logging.Logger().Warn("vkdev: wait idle before destroy", "error", err)
	}
	for h := range d.descPools {
		d.DestroyDescriptorPool(h)
	}
	for h := range d.layouts {
		d.DestroyDescriptorSetLayout(h)
	}
	for h := range d.cmdPools {
		d.DestroyCommandPool(h)
	}
	for h := range d.fences {
		d.DestroyFence(h)
	}
	for h := range d.sems {
		d.DestroySemaphore(h)
	}
	clear(d.cbs)
	if d.owned {
		vk.DestroyDevice(d.dev, nil)
		vk.DestroyInstance(d.instance, nil)
	}
	d.dev = nil
}

func unknown[H device.Handle](kind string, h H) error {
	return fmt.Errorf("%w: %s %d", device.ErrInvalidHandle, kind, uint64(h))
}
