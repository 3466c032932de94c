// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"errors"
	"testing"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/device/sim"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/handle"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/pool"
	"github.com/gogpu/frameflight/syncobj"
)

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

type fixture struct {
	ctx  *frame.Context
	dev  *sim.Device
	pool handle.Owner[*pool.CommandPool]
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	dev := sim.New()
	ctx, err := frame.NewContext(dev, n)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	f := &fixture{ctx: ctx, dev: dev, pool: pool.NewCommandPoolBuilder("test").Build(ctx)}
	t.Cleanup(func() {
		if f.pool.Valid() {
			f.pool.Release()
		}
		if v := dev.Violations(); len(v) != 0 {
			t.Errorf("device violations: %v", v)
		}
	})
	return f
}

func TestNewAllocatesPerSlot(t *testing.T) {
	f := newFixture(t, 3)
	b, err := New(&f.pool, WithLabel("frame"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Count() != 3 {
		t.Errorf("Count() = %d, want 3", b.Count())
	}
	if f.dev.Live().CommandBuffers != 3 {
		t.Errorf("live command buffers = %d, want 3", f.dev.Live().CommandBuffers)
	}
	if f.pool.UseCount() != 2 {
		t.Errorf("pool UseCount() = %d, want 2 while buffer alive", f.pool.UseCount())
	}
	b.Destroy()
	if f.pool.UseCount() != 1 {
		t.Errorf("pool UseCount() = %d after Destroy, want 1", f.pool.UseCount())
	}
	if f.dev.Live().CommandBuffers != 0 {
		t.Errorf("live command buffers after Destroy = %d", f.dev.Live().CommandBuffers)
	}
	b.Destroy() // no-op
}

func TestBufferKeepsPoolAlive(t *testing.T) {
	f := newFixture(t, 2)
	b, err := New(&f.pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.pool.Release()
	if f.dev.Live().CommandPools != 1 {
		t.Fatal("pool destroyed while a buffer still references it")
	}
	b.Destroy()
	if f.dev.Live().CommandPools != 0 {
		t.Error("pool not destroyed after the last reference was released")
	}
}

func TestSingleBufferPinned(t *testing.T) {
	f := newFixture(t, 3)
	b, err := New(&f.pool, WithSingle())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Destroy()
	if b.Count() != 1 || f.dev.Live().CommandBuffers != 1 {
		t.Fatalf("single buffer allocated %d slots", b.Count())
	}
	h0, _ := b.GetBuffer()
	f.ctx.Advance()
	if b.CurrentFrame() != 0 {
		t.Errorf("pinned buffer CurrentFrame() = %d, want 0", b.CurrentFrame())
	}
	_ = b.Finalize()
	f.ctx.Advance()
	h1, _ := b.GetBuffer()
	if h0 != h1 {
		t.Error("pinned buffer changed handle between frames")
	}
}

func TestOneShotLifecycle(t *testing.T) {
	f := newFixture(t, 2)
	b, err := New(&f.pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Destroy()
	fence, err := syncobj.NewFence(f.ctx, false, false)
	if err != nil {
		t.Fatalf("NewFence: %v", err)
	}
	defer fence.Destroy()
	defer f.dev.CompleteAll()

	if b.State() != Idle {
		t.Fatalf("initial State() = %v", b.State())
	}
	h, err := b.GetBuffer()
	if err != nil {
		t.Fatalf("GetBuffer: %v", err)
	}
	again, _ := b.GetBuffer()
	if again != h {
		t.Error("GetBuffer in the same frame returned a different buffer")
	}
	f.dev.CmdDispatch(h, 1, 1, 1)
	if err := b.Submit(nil, nil, fence); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if b.State() != Submitted {
		t.Errorf("State() = %v after Submit", b.State())
	}
	if got := b.GetReadonlyBuffer(); got != h {
		t.Error("implicit finalize did not make the buffer readable")
	}
	if !fence.Submitted() {
		t.Error("Submit did not arm the fence")
	}

	// Second slot records independently.
	f.ctx.Advance()
	h2, _ := b.GetBuffer()
	if h2 == h {
		t.Error("slot 1 shares the slot 0 buffer")
	}
	_ = b.Submit(nil, nil, fence)

	// Back on slot 0: recycle the fence, then re-record.
	f.ctx.Advance()
	if err := fence.Recycle(syncobj.Infinite); err != nil {
		t.Fatalf("Recycle: %v", err)
	}
	h3, err := b.GetBuffer()
	if err != nil {
		t.Fatalf("GetBuffer after wrap: %v", err)
	}
	if h3 != h {
		t.Error("slot 0 buffer changed after wrap")
	}
	if f.dev.ResetCount(h) != 1 {
		t.Errorf("ResetCount = %d, want 1", f.dev.ResetCount(h))
	}
	if len(f.dev.Commands(h)) != 0 {
		t.Error("re-recorded buffer kept old commands")
	}
}

func TestStaticResubmitWithoutRecording(t *testing.T) {
	f := newFixture(t, 1)
	b, err := New(&f.pool, WithMode(Static))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Destroy()

	h, _ := b.GetBuffer()
	f.dev.CmdDispatch(h, 4, 1, 1)
	if err := b.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	for frame := 0; frame < 3; frame++ {
		if got := b.GetReadonlyBuffer(); got != h {
			t.Fatalf("frame %d: GetReadonlyBuffer changed", frame)
		}
		if err := b.SubmitAndWait(nil, nil); err != nil {
			t.Fatalf("frame %d: SubmitAndWait: %v", frame, err)
		}
		f.ctx.Advance()
	}
	if f.dev.ResetCount(h) != 0 {
		t.Errorf("static buffer reset %d times", f.dev.ResetCount(h))
	}
	if got := f.dev.Stats().Submits; got != 3 {
		t.Errorf("Submits = %d, want 3", got)
	}
	if len(f.dev.Commands(h)) != 1 {
		t.Errorf("static buffer holds %d commands, want 1", len(f.dev.Commands(h)))
	}
}

func TestFinalizedRerecordResets(t *testing.T) {
	f := newFixture(t, 2)
	b, _ := New(&f.pool)
	defer b.Destroy()

	h, _ := b.GetBuffer()
	f.dev.CmdDispatch(h, 1, 1, 1)
	_ = b.Finalize()
	if _, err := b.GetBuffer(); err != nil {
		t.Fatalf("GetBuffer: %v", err)
	}
	if b.State() != Recording || len(f.dev.Commands(h)) != 0 {
		t.Errorf("re-record after Finalize: State()=%v commands=%d", b.State(), len(f.dev.Commands(h)))
	}
}

func TestSubmitPropagatesSemaphores(t *testing.T) {
	f := newFixture(t, 2)
	b, _ := New(&f.pool)
	defer b.Destroy()
	first, _ := syncobj.NewSemaphore(f.ctx, false)
	defer first.Destroy()
	second, _ := syncobj.NewSemaphore(f.ctx, false)
	defer second.Destroy()

	_, _ = b.GetBuffer()
	if err := b.Submit(nil, []device.Semaphore{first.Handle()}, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	other, _ := New(&f.pool)
	defer other.Destroy()
	_, _ = other.GetBuffer()
	waits := []device.SemaphoreWait{{Semaphore: first.Handle(), Stage: device.StageComputeShader}}
	if err := other.Submit(waits, []device.Semaphore{second.Handle()}, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	sub, _ := f.dev.LastSubmission()
	if sub.WaitCount() != 1 || sub.Batches[0].Signals[0] != second.Handle() {
		t.Errorf("submission = %+v", sub)
	}
	if f.dev.SemaphoreSignaled(first.Handle()) {
		t.Error("wait did not consume the first signal")
	}
	f.dev.CompleteAll()
}

func TestSubmitError(t *testing.T) {
	f := newFixture(t, 2)
	b, _ := New(&f.pool)
	defer b.Destroy()

	_, _ = b.GetBuffer()
	f.dev.FailNext(sim.OpSubmit, device.ErrDeviceLost)
	err := b.Submit(nil, nil, nil)
	if !errors.Is(err, device.ErrDeviceLost) {
		t.Fatalf("Submit error = %v, want ErrDeviceLost", err)
	}
	if b.State() != Finalized {
		t.Errorf("State() = %v after failed submit, want finalized", b.State())
	}
	if err := b.Submit(nil, nil, nil); err != nil {
		t.Errorf("retry Submit: %v", err)
	}
	f.dev.CompleteAll()
}

func TestContractViolations(t *testing.T) {
	f := newFixture(t, 2)
	b, _ := New(&f.pool)
	defer func() {
		f.dev.CompleteAll()
		b.Destroy()
	}()

	mustPanic(t, "Submit idle", func() { _ = b.Submit(nil, nil, nil) })
	mustPanic(t, "Finalize idle", func() { _ = b.Finalize() })
	mustPanic(t, "GetReadonlyBuffer before Finalize", func() { _ = b.GetReadonlyBuffer() })

	_, _ = b.GetBuffer()
	_ = b.Submit(nil, nil, nil)
	mustPanic(t, "double Submit", func() { _ = b.Submit(nil, nil, nil) })
	mustPanic(t, "GetBuffer after Submit in same frame", func() { _, _ = b.GetBuffer() })

	f.dev.CompleteAll()
	f.ctx.Advance()
	f.ctx.Advance()
	mustPanic(t, "resubmit one-shot", func() { _ = b.Submit(nil, nil, nil) })
}

func TestStaleOneShotNotReplayed(t *testing.T) {
	f := newFixture(t, 2)
	b, _ := New(&f.pool)
	defer b.Destroy()

	h, _ := b.GetBuffer()
	f.dev.CmdDispatch(h, 1, 1, 1)
	if err := b.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	f.ctx.Advance()
	f.ctx.Advance()
	if b.State() != Finalized {
		t.Fatalf("State() = %v on return to slot 0", b.State())
	}
	mustPanic(t, "submit stale finalized one-shot", func() { _ = b.Submit(nil, nil, nil) })

	_, _ = b.GetBuffer()
	f.ctx.Advance()
	f.ctx.Advance()
	mustPanic(t, "submit stale recording one-shot", func() { _ = b.Submit(nil, nil, nil) })
	if got := f.dev.Stats().Submits; got != 0 {
		t.Errorf("stale one-shot reached the queue: Submits = %d", got)
	}
}

func TestNewPoolExhausted(t *testing.T) {
	dev := sim.New(sim.WithMaxCommandBuffers(1))
	ctx, _ := frame.NewContext(dev, 2)
	p := pool.NewCommandPoolBuilder("tiny").Build(ctx)
	defer p.Release()

	if assert.Debug {
		t.Skip("exhaustion panics in debug builds")
	}
	if _, err := New(&p); !errors.Is(err, pool.ErrPoolExhausted) {
		t.Errorf("New error = %v, want ErrPoolExhausted", err)
	}
	if p.UseCount() != 1 {
		t.Errorf("failed New left pool UseCount() = %d", p.UseCount())
	}
}

func TestModeAndStateStrings(t *testing.T) {
	if OneShot.String() != "one-shot" || Static.String() != "static" {
		t.Error("Mode.String")
	}
	for s, want := range map[State]string{Idle: "idle", Recording: "recording", Finalized: "finalized", Submitted: "submitted", State(9): "State(9)"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestDiscardUnfinishedRecording(t *testing.T) {
	f := newFixture(t, 2)
	b, _ := New(&f.pool)
	defer b.Destroy()

	if err := b.Discard(); err != nil || b.State() != Idle {
		t.Fatalf("Discard on idle slot = %v, state %v", err, b.State())
	}
	h, _ := b.GetBuffer()
	f.dev.CmdDispatch(h, 1, 1, 1)
	if err := b.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if b.State() != Idle || len(f.dev.Commands(h)) != 0 {
		t.Errorf("after Discard: State()=%v commands=%d", b.State(), len(f.dev.Commands(h)))
	}
	if _, err := b.GetBuffer(); err != nil {
		t.Fatalf("GetBuffer after Discard: %v", err)
	}
	if err := b.Finalize(); err != nil {
		t.Fatal(err)
	}
}
