// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package sim

import (
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/frameflight/device"
)

func init() {
	device.Register(device.BackendSim, func() (device.Device, error) {
		return New(), nil
	})
}

// Op names a device operation that can be made to fail with FailNext.
type Op string

// Operations accepted by FailNext.
const (
	OpSubmit                 Op = "submit"
	OpAcquire                Op = "acquire"
	OpPresent                Op = "present"
	OpWait                   Op = "wait"
	OpAllocateCommandBuffers Op = "allocate-command-buffers"
	OpAllocateDescriptorSets Op = "allocate-descriptor-sets"
	OpCreateFence            Op = "create-fence"
	OpCreateSemaphore        Op = "create-semaphore"
)

// Option configures a simulated device.
type Option func(*Device)

// WithLimits overrides the reported device limits.
func WithLimits(l gputypes.Limits) Option {
	return func(d *Device) { d.limits = l }
}

// WithMaxCommandBuffers caps the number of live command buffers. Allocation
// beyond the cap fails with device.ErrOutOfMemory.
func WithMaxCommandBuffers(n int) Option {
	return func(d *Device) { d.maxCommandBuffers = n }
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
)

func (s cbState) String() string {
	switch s {
	case cbInitial:
		return "initial"
	case cbRecording:
		return "recording"
	case cbExecutable:
		return "executable"
	case cbPending:
		return "pending"
	default:
		return fmt.Sprintf("cbState(%d)", int(s))
	}
}

// Command is one recorded command, kept for inspection by tests.
type Command struct {
	Op       string
	Pipeline device.Pipeline
	Set      device.DescriptorSet
	Index    uint32
	Barriers device.BarrierSet
	X, Y, Z  uint32
}

type commandPool struct {
	desc    device.CommandPoolDescriptor
	buffers map[device.CommandBuffer]struct{}
}

type commandBuffer struct {
	pool     device.CommandPool
	state    cbState
	commands []Command
	sets     []device.DescriptorSet
	resets   int
}

type fence struct {
	signaled bool
}

type semaphore struct {
	pending bool
}

type descriptorPool struct {
	desc      device.DescriptorPoolDescriptor
	remaining map[device.DescriptorType]uint32
	sets      map[device.DescriptorSet]struct{}
}

type descriptorSet struct {
	pool     device.DescriptorPool
	layout   device.DescriptorSetLayout
	bindings map[uint32]device.DescriptorWrite
	writes   int
}

type swapchain struct {
	images    uint32
	next      uint32
	outOfDate bool
}

type submission struct {
	seq     uint64
	buffers []device.CommandBuffer
	signals []device.Semaphore
	fence   device.Fence
}

// Submission is the record of one Submit call.
type Submission struct {
	Seq     uint64
	Batches []device.SubmitInfo
	Fence   device.Fence
}

// WaitCount returns the total number of semaphore waits across batches.
func (s Submission) WaitCount() int {
	n := 0
	for _, b := range s.Batches {
		n += len(b.Waits)
	}
	return n
}

// Stats counts device activity.
type Stats struct {
	Submits           int
	Presents          int
	Acquires          int
	FenceWaits        int
	BlockingWaits     int
	DescriptorUpdates int
	DescriptorWrites  int
	CommandBuffers    int
	DescriptorSets    int
}

// Census counts live native objects.
type Census struct {
	CommandPools    int
	CommandBuffers  int
	Fences          int
	Semaphores      int
	DescriptorPools int
	Layouts         int
	DescriptorSets  int
}

// Device is a simulated device. It is not safe for concurrent use.
type Device struct {
	ids               device.HandleAllocator
	limits            gputypes.Limits
	maxCommandBuffers int

	commandPools map[device.CommandPool]*commandPool
	buffers      map[device.CommandBuffer]*commandBuffer
	fences       map[device.Fence]*fence
	semaphores   map[device.Semaphore]*semaphore
	layouts      map[device.DescriptorSetLayout][]device.LayoutBinding
	descPools    map[device.DescriptorPool]*descriptorPool
	sets         map[device.DescriptorSet]*descriptorSet
	swapchains   map[device.Swapchain]*swapchain
	labels       map[uint64]string

	queue      []*submission
	seq        uint64
	history    []Submission
	stalled    bool
	failures   map[Op]error
	stats      Stats
	violations []string
}

var _ device.Device = (*Device)(nil)

// New creates a simulated device.
func New(opts ...Option) *Device {
	d := &Device{
		limits:       gputypes.DefaultLimits(),
		commandPools: make(map[device.CommandPool]*commandPool),
		buffers:      make(map[device.CommandBuffer]*commandBuffer),
		fences:       make(map[device.Fence]*fence),
		semaphores:   make(map[device.Semaphore]*semaphore),
		layouts:      make(map[device.DescriptorSetLayout][]device.LayoutBinding),
		descPools:    make(map[device.DescriptorPool]*descriptorPool),
		sets:         make(map[device.DescriptorSet]*descriptorSet),
		swapchains:   make(map[device.Swapchain]*swapchain),
		labels:       make(map[uint64]string),
		failures:     make(map[Op]error),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements device.Device.
func (d *Device) Name() string { return device.BackendSim }

// Limits implements device.Device.
func (d *Device) Limits() gputypes.Limits { return d.limits }

func (d *Device) violate(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	d.violations = append(d.violations, msg)
	return fmt.Errorf("%w: %s", device.ErrValidation, msg)
}

func (d *Device) takeFailure(op Op) error {
	err, ok := d.failures[op]
	if !ok {
		return nil
	}
	delete(d.failures, op)
	return err
}

// --- command pools and buffers ---

// CreateCommandPool implements device.Device.
func (d *Device) CreateCommandPool(desc *device.CommandPoolDescriptor) (device.CommandPool, error) {
	h := device.CommandPool(d.ids.Next())
	d.commandPools[h] = &commandPool{desc: *desc, buffers: make(map[device.CommandBuffer]struct{})}
	return h, nil
}

// ResetCommandPool implements device.Device.
func (d *Device) ResetCommandPool(pool device.CommandPool) error {
	p, ok := d.commandPools[pool]
	if !ok {
		return device.ErrInvalidHandle
	}
	for cb := range p.buffers {
		b := d.buffers[cb]
		if b.state == cbPending {
			return d.violate("reset of command pool %d with pending buffer %d", pool, cb)
		}
		b.state = cbInitial
		b.commands = nil
		b.sets = nil
	}
	return nil
}

// DestroyCommandPool implements device.Device.
func (d *Device) DestroyCommandPool(pool device.CommandPool) {
	p, ok := d.commandPools[pool]
	if !ok {
		return
	}
	for cb := range p.buffers {
		delete(d.buffers, cb)
	}
	delete(d.commandPools, pool)
}

// AllocateCommandBuffers implements device.Device.
func (d *Device) AllocateCommandBuffers(pool device.CommandPool, count int) ([]device.CommandBuffer, error) {
	if err := d.takeFailure(OpAllocateCommandBuffers); err != nil {
		return nil, err
	}
	p, ok := d.commandPools[pool]
	if !ok {
		return nil, device.ErrInvalidHandle
	}
	if d.maxCommandBuffers > 0 && len(d.buffers)+count > d.maxCommandBuffers {
		return nil, device.ErrOutOfMemory
	}
	out := make([]device.CommandBuffer, count)
	for i := range out {
		h := device.CommandBuffer(d.ids.Next())
		d.buffers[h] = &commandBuffer{pool: pool}
		p.buffers[h] = struct{}{}
		out[i] = h
	}
	d.stats.CommandBuffers += count
	return out, nil
}

// FreeCommandBuffers implements device.Device.
func (d *Device) FreeCommandBuffers(pool device.CommandPool, buffers []device.CommandBuffer) {
	p, ok := d.commandPools[pool]
	if !ok {
		return
	}
	for _, cb := range buffers {
		b, ok := d.buffers[cb]
		if !ok {
			continue
		}
		if b.state == cbPending {
			_ = d.violate("free of pending command buffer %d", cb)
		}
		delete(d.buffers, cb)
		delete(p.buffers, cb)
	}
}

func (d *Device) buffer(cb device.CommandBuffer) (*commandBuffer, error) {
	b, ok := d.buffers[cb]
	if !ok {
		return nil, device.ErrInvalidHandle
	}
	return b, nil
}

// BeginCommandBuffer implements device.Device.
func (d *Device) BeginCommandBuffer(cb device.CommandBuffer, _ bool) error {
	b, err := d.buffer(cb)
	if err != nil {
		return err
	}
	switch b.state {
	case cbPending:
		return d.violate("begin on pending command buffer %d", cb)
	case cbRecording:
		return d.violate("begin on recording command buffer %d", cb)
	case cbExecutable:
		if !d.commandPools[b.pool].desc.ResetIndividual {
			return d.violate("implicit reset of command buffer %d from a pool without individual reset", cb)
		}
	}
	b.state = cbRecording
	b.commands = nil
	b.sets = nil
	return nil
}

// EndCommandBuffer implements device.Device.
func (d *Device) EndCommandBuffer(cb device.CommandBuffer) error {
	b, err := d.buffer(cb)
	if err != nil {
		return err
	}
	if b.state != cbRecording {
		return d.violate("end on %s command buffer %d", b.state, cb)
	}
	b.state = cbExecutable
	return nil
}

// ResetCommandBuffer implements device.Device.
func (d *Device) ResetCommandBuffer(cb device.CommandBuffer) error {
	b, err := d.buffer(cb)
	if err != nil {
		return err
	}
	if b.state == cbPending {
		return d.violate("reset of pending command buffer %d", cb)
	}
	b.state = cbInitial
	b.commands = nil
	b.sets = nil
	b.resets++
	return nil
}

func (d *Device) record(cb device.CommandBuffer, c Command) {
	b, ok := d.buffers[cb]
	if !ok {
		_ = d.violate("%s on unknown command buffer %d", c.Op, cb)
		return
	}
	if b.state != cbRecording {
		_ = d.violate("%s on %s command buffer %d", c.Op, b.state, cb)
		return
	}
	b.commands = append(b.commands, c)
	if c.Set != 0 {
		b.sets = append(b.sets, c.Set)
	}
}

// CmdPipelineBarrier implements device.Device.
func (d *Device) CmdPipelineBarrier(cb device.CommandBuffer, barriers *device.BarrierSet) {
	d.record(cb, Command{Op: "barrier", Barriers: *barriers})
}

// CmdBindPipeline implements device.Device.
func (d *Device) CmdBindPipeline(cb device.CommandBuffer, pipeline device.Pipeline) {
	d.record(cb, Command{Op: "bind-pipeline", Pipeline: pipeline})
}

// CmdBindDescriptorSet implements device.Device.
func (d *Device) CmdBindDescriptorSet(cb device.CommandBuffer, pipeline device.Pipeline, index uint32, set device.DescriptorSet) {
	if _, ok := d.sets[set]; !ok {
		_ = d.violate("bind of unknown descriptor set %d", set)
		return
	}
	d.record(cb, Command{Op: "bind-set", Pipeline: pipeline, Index: index, Set: set})
}

// CmdDispatch implements device.Device.
func (d *Device) CmdDispatch(cb device.CommandBuffer, x, y, z uint32) {
	d.record(cb, Command{Op: "dispatch", X: x, Y: y, Z: z})
}

// --- fences and semaphores ---

// CreateFence implements device.Device.
func (d *Device) CreateFence(signaled bool) (device.Fence, error) {
	if err := d.takeFailure(OpCreateFence); err != nil {
		return 0, err
	}
	h := device.Fence(d.ids.Next())
	d.fences[h] = &fence{signaled: signaled}
	return h, nil
}

// DestroyFence implements device.Device.
func (d *Device) DestroyFence(f device.Fence) {
	for _, s := range d.queue {
		if s.fence == f {
			_ = d.violate("destroy of fence %d used by pending submission", f)
		}
	}
	delete(d.fences, f)
}

func (d *Device) fencesMet(fences []device.Fence, waitAll bool) (bool, error) {
	signaled := false
	for _, h := range fences {
		f, ok := d.fences[h]
		if !ok {
			return false, device.ErrInvalidHandle
		}
		if f.signaled {
			signaled = true
		} else if waitAll {
			return false, nil
		}
	}
	return signaled, nil
}

// WaitForFences implements device.Device. A positive timeout lets the
// simulated GPU finish queued work in order until the condition holds.
func (d *Device) WaitForFences(fences []device.Fence, waitAll bool, timeout time.Duration) (bool, error) {
	if err := d.takeFailure(OpWait); err != nil {
		return false, err
	}
	d.stats.FenceWaits++
	if timeout > 0 {
		d.stats.BlockingWaits++
	}
	for {
		met, err := d.fencesMet(fences, waitAll)
		if err != nil || met {
			return met, err
		}
		if timeout == 0 || d.stalled || !d.Step() {
			return false, nil
		}
	}
}

// ResetFences implements device.Device.
func (d *Device) ResetFences(fences []device.Fence) error {
	for _, h := range fences {
		f, ok := d.fences[h]
		if !ok {
			return device.ErrInvalidHandle
		}
		for _, s := range d.queue {
			if s.fence == h {
				return d.violate("reset of fence %d used by pending submission", h)
			}
		}
		f.signaled = false
	}
	return nil
}

// FenceStatus implements device.Device.
func (d *Device) FenceStatus(h device.Fence) (bool, error) {
	f, ok := d.fences[h]
	if !ok {
		return false, device.ErrInvalidHandle
	}
	return f.signaled, nil
}

// CreateSemaphore implements device.Device.
func (d *Device) CreateSemaphore() (device.Semaphore, error) {
	if err := d.takeFailure(OpCreateSemaphore); err != nil {
		return 0, err
	}
	h := device.Semaphore(d.ids.Next())
	d.semaphores[h] = &semaphore{}
	return h, nil
}

// DestroySemaphore implements device.Device.
func (d *Device) DestroySemaphore(s device.Semaphore) {
	delete(d.semaphores, s)
}

// --- descriptors ---

// CreateDescriptorSetLayout implements device.Device.
func (d *Device) CreateDescriptorSetLayout(bindings []device.LayoutBinding) (device.DescriptorSetLayout, error) {
	if uint32(len(bindings)) > d.limits.MaxBindingsPerBindGroup {
		return 0, fmt.Errorf("%w: %d bindings exceed limit %d",
			device.ErrValidation, len(bindings), d.limits.MaxBindingsPerBindGroup)
	}
	h := device.DescriptorSetLayout(d.ids.Next())
	d.layouts[h] = slices.Clone(bindings)
	return h, nil
}

// DestroyDescriptorSetLayout implements device.Device.
func (d *Device) DestroyDescriptorSetLayout(l device.DescriptorSetLayout) {
	delete(d.layouts, l)
}

// CreateDescriptorPool implements device.Device.
func (d *Device) CreateDescriptorPool(desc *device.DescriptorPoolDescriptor) (device.DescriptorPool, error) {
	p := &descriptorPool{
		desc:      *desc,
		remaining: make(map[device.DescriptorType]uint32),
		sets:      make(map[device.DescriptorSet]struct{}),
	}
	p.desc.Sizes = slices.Clone(desc.Sizes)
	for _, s := range desc.Sizes {
		p.remaining[s.Type] += s.Count
	}
	h := device.DescriptorPool(d.ids.Next())
	d.descPools[h] = p
	return h, nil
}

// ResetDescriptorPool implements device.Device.
func (d *Device) ResetDescriptorPool(pool device.DescriptorPool) error {
	p, ok := d.descPools[pool]
	if !ok {
		return device.ErrInvalidHandle
	}
	for s := range p.sets {
		if d.setInFlight(s) {
			return d.violate("reset of descriptor pool %d while set %d is in flight", pool, s)
		}
	}
	for s := range p.sets {
		delete(d.sets, s)
	}
	p.sets = make(map[device.DescriptorSet]struct{})
	clear(p.remaining)
	for _, s := range p.desc.Sizes {
		p.remaining[s.Type] += s.Count
	}
	return nil
}

// DestroyDescriptorPool implements device.Device.
func (d *Device) DestroyDescriptorPool(pool device.DescriptorPool) {
	p, ok := d.descPools[pool]
	if !ok {
		return
	}
	for s := range p.sets {
		delete(d.sets, s)
	}
	delete(d.descPools, pool)
}

// AllocateDescriptorSets implements device.Device.
func (d *Device) AllocateDescriptorSets(pool device.DescriptorPool, layouts []device.DescriptorSetLayout) ([]device.DescriptorSet, error) {
	if err := d.takeFailure(OpAllocateDescriptorSets); err != nil {
		return nil, err
	}
	p, ok := d.descPools[pool]
	if !ok {
		return nil, device.ErrInvalidHandle
	}
	if uint32(len(p.sets)+len(layouts)) > p.desc.MaxSets {
		return nil, device.ErrOutOfPoolMemory
	}
	need := make(map[device.DescriptorType]uint32)
	for _, l := range layouts {
		bindings, ok := d.layouts[l]
		if !ok {
			return nil, device.ErrInvalidHandle
		}
		for _, b := range bindings {
			need[b.Type] += max(b.Count, 1)
		}
	}
	for t, n := range need {
		if p.remaining[t] < n {
			return nil, device.ErrOutOfPoolMemory
		}
	}
	for t, n := range need {
		p.remaining[t] -= n
	}
	out := make([]device.DescriptorSet, len(layouts))
	for i, l := range layouts {
		h := device.DescriptorSet(d.ids.Next())
		d.sets[h] = &descriptorSet{pool: pool, layout: l, bindings: make(map[uint32]device.DescriptorWrite)}
		p.sets[h] = struct{}{}
		out[i] = h
	}
	d.stats.DescriptorSets += len(out)
	return out, nil
}

// FreeDescriptorSets implements device.Device.
func (d *Device) FreeDescriptorSets(pool device.DescriptorPool, sets []device.DescriptorSet) error {
	p, ok := d.descPools[pool]
	if !ok {
		return device.ErrInvalidHandle
	}
	if !p.desc.FreeIndividual {
		return d.violate("free of descriptor sets from pool %d without individual free", pool)
	}
	for _, h := range sets {
		s, ok := d.sets[h]
		if !ok {
			continue
		}
		if d.setInFlight(h) {
			_ = d.violate("free of descriptor set %d while in flight", h)
		}
		for _, b := range d.layouts[s.layout] {
			p.remaining[b.Type] += max(b.Count, 1)
		}
		delete(d.sets, h)
		delete(p.sets, h)
	}
	return nil
}

// UpdateDescriptorSets implements device.Device.
func (d *Device) UpdateDescriptorSets(writes []device.DescriptorWrite) {
	d.stats.DescriptorUpdates++
	for _, w := range writes {
		s, ok := d.sets[w.Set]
		if !ok {
			_ = d.violate("update of unknown descriptor set %d", w.Set)
			continue
		}
		if d.setInFlight(w.Set) {
			_ = d.violate("update of descriptor set %d while in flight", w.Set)
		}
		s.bindings[w.Binding] = w
		s.writes++
		d.stats.DescriptorWrites++
	}
}

func (d *Device) setInFlight(set device.DescriptorSet) bool {
	for _, s := range d.queue {
		for _, cb := range s.buffers {
			if b, ok := d.buffers[cb]; ok && slices.Contains(b.sets, set) {
				return true
			}
		}
	}
	return false
}

// --- queue ---

// Submit implements device.Device.
func (d *Device) Submit(batches []device.SubmitInfo, f device.Fence) error {
	if err := d.takeFailure(OpSubmit); err != nil {
		return err
	}
	if f != 0 {
		fc, ok := d.fences[f]
		if !ok {
			return device.ErrInvalidHandle
		}
		if fc.signaled {
			return d.violate("submit with signaled fence %d", f)
		}
	}
	sub := &submission{fence: f}
	// Semaphore state is replayed batch by batch, waits before signals, so
	// a batch may wait on a signal queued by an earlier batch or re-signal
	// a semaphore it waits on.
	pending := make(map[device.Semaphore]bool)
	isPending := func(h device.Semaphore) bool {
		if p, ok := pending[h]; ok {
			return p
		}
		return d.semaphores[h].pending
	}
	for _, b := range batches {
		for _, w := range b.Waits {
			if _, ok := d.semaphores[w.Semaphore]; !ok {
				return device.ErrInvalidHandle
			}
			if !isPending(w.Semaphore) {
				return d.violate("wait on semaphore %d with no pending signal", w.Semaphore)
			}
			pending[w.Semaphore] = false
		}
		for _, cb := range b.CommandBuffers {
			buf, err := d.buffer(cb)
			if err != nil {
				return err
			}
			if buf.state != cbExecutable {
				return d.violate("submit of %s command buffer %d", buf.state, cb)
			}
		}
		for _, h := range b.Signals {
			if _, ok := d.semaphores[h]; !ok {
				return device.ErrInvalidHandle
			}
			if isPending(h) {
				return d.violate("signal of already signaled semaphore %d", h)
			}
			pending[h] = true
		}
	}
	for _, b := range batches {
		for _, w := range b.Waits {
			d.semaphores[w.Semaphore].pending = false
		}
		for _, cb := range b.CommandBuffers {
			d.buffers[cb].state = cbPending
			sub.buffers = append(sub.buffers, cb)
		}
		for _, h := range b.Signals {
			d.semaphores[h].pending = true
			sub.signals = append(sub.signals, h)
		}
	}
	d.seq++
	sub.seq = d.seq
	d.queue = append(d.queue, sub)
	d.history = append(d.history, Submission{Seq: sub.seq, Batches: cloneBatches(batches), Fence: f})
	d.stats.Submits++
	return nil
}

func cloneBatches(batches []device.SubmitInfo) []device.SubmitInfo {
	out := make([]device.SubmitInfo, len(batches))
	for i, b := range batches {
		out[i] = device.SubmitInfo{
			Waits:          slices.Clone(b.Waits),
			CommandBuffers: slices.Clone(b.CommandBuffers),
			Signals:        slices.Clone(b.Signals),
		}
	}
	return out
}

// AcquireNextImage implements device.Device.
func (d *Device) AcquireNextImage(h device.Swapchain, sem device.Semaphore, _ time.Duration) (uint32, error) {
	if err := d.takeFailure(OpAcquire); err != nil {
		return 0, err
	}
	sc, ok := d.swapchains[h]
	if !ok {
		return 0, device.ErrInvalidHandle
	}
	if sc.outOfDate {
		return 0, device.ErrOutOfDate
	}
	if sem != 0 {
		s, ok := d.semaphores[sem]
		if !ok {
			return 0, device.ErrInvalidHandle
		}
		if s.pending {
			return 0, d.violate("acquire signals already signaled semaphore %d", sem)
		}
		s.pending = true
	}
	idx := sc.next
	sc.next = (sc.next + 1) % sc.images
	d.stats.Acquires++
	return idx, nil
}

// Present implements device.Device.
func (d *Device) Present(info *device.PresentInfo) error {
	if err := d.takeFailure(OpPresent); err != nil {
		return err
	}
	sc, ok := d.swapchains[info.Swapchain]
	if !ok {
		return device.ErrInvalidHandle
	}
	for _, h := range info.Waits {
		s, ok := d.semaphores[h]
		if !ok {
			return device.ErrInvalidHandle
		}
		if !s.pending {
			return d.violate("present waits on semaphore %d with no pending signal", h)
		}
		s.pending = false
	}
	if sc.outOfDate {
		return device.ErrOutOfDate
	}
	d.stats.Presents++
	return nil
}

// WaitIdle implements device.Device.
func (d *Device) WaitIdle() error {
	if d.stalled {
		return device.ErrTimeout
	}
	d.CompleteAll()
	return nil
}
