// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import (
	"errors"
	"testing"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/device/sim"
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

func newContext(t *testing.T, n int) (*Context, *sim.Device) {
	t.Helper()
	dev := sim.New()
	ctx, err := NewContext(dev, n)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx, dev
}

func TestNewContextValidation(t *testing.T) {
	if _, err := NewContext(nil, 2); !errors.Is(err, ErrNilDevice) {
		t.Errorf("nil device error = %v", err)
	}
	for _, n := range []int{0, -1, MaxFramesInFlightLimit + 1} {
		if _, err := NewContext(sim.New(), n); !errors.Is(err, ErrFramesInFlight) {
			t.Errorf("NewContext(%d) error = %v, want ErrFramesInFlight", n, err)
		}
	}
}

func TestAdvanceCycles(t *testing.T) {
	ctx, _ := newContext(t, 3)
	want := []int{1, 2, 0, 1}
	for i, w := range want {
		if got := ctx.Advance(); got != w {
			t.Errorf("Advance #%d = %d, want %d", i, got, w)
		}
	}
	if ctx.FrameNumber() != 4 {
		t.Errorf("FrameNumber() = %d, want 4", ctx.FrameNumber())
	}
}

// TestReplicatedCyclesWithPeriodN reads a replicated fence after every
// advance and checks it yields N distinct handles repeating with period N.
func TestReplicatedCyclesWithPeriodN(t *testing.T) {
	for n := 1; n <= 4; n++ {
		ctx, dev := newContext(t, n)
		r, err := NewReplicated(ctx, false,
			func(int) (device.Fence, error) { return dev.CreateFence(false) },
			dev.DestroyFence)
		if err != nil {
			t.Fatalf("N=%d: NewReplicated: %v", n, err)
		}

		seen := make(map[device.Fence]int)
		var order []device.Fence
		for k := 0; k < 3*n; k++ {
			h := r.Current()
			seen[h]++
			order = append(order, h)
			ctx.Advance()
		}
		if len(seen) != n {
			t.Errorf("N=%d: %d distinct handles, want %d", n, len(seen), n)
		}
		for k := n; k < len(order); k++ {
			if order[k] != order[k-n] {
				t.Errorf("N=%d: handle at %d differs from handle at %d", n, k, k-n)
			}
		}
		r.Destroy()
		if live := dev.Live().Fences; live != 0 {
			t.Errorf("N=%d: %d fences alive after Destroy", n, live)
		}
	}
}

func TestReplicatedSingleIsPinned(t *testing.T) {
	ctx, dev := newContext(t, 3)
	r, err := NewReplicated(ctx, true,
		func(int) (device.Semaphore, error) { return dev.CreateSemaphore() },
		dev.DestroySemaphore)
	if err != nil {
		t.Fatalf("NewReplicated: %v", err)
	}
	defer r.Destroy()
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	first := r.Current()
	ctx.Advance()
	ctx.Advance()
	if r.Current() != first || r.CurrentFrame() != 0 {
		t.Error("single replicated resource should stay on slot 0")
	}
}

func TestReplicatedPartialFailureCleansUp(t *testing.T) {
	ctx, dev := newContext(t, 3)
	calls := 0
	_, err := NewReplicated(ctx, false, func(int) (device.Fence, error) {
		calls++
		if calls == 3 {
			return 0, device.ErrOutOfMemory
		}
		return dev.CreateFence(false)
	}, dev.DestroyFence)
	if !errors.Is(err, device.ErrOutOfMemory) {
		t.Fatalf("error = %v, want ErrOutOfMemory", err)
	}
	if live := dev.Live().Fences; live != 0 {
		t.Errorf("%d fences leaked", live)
	}
}

func TestStaticFrameIndex(t *testing.T) {
	ctx, _ := newContext(t, 3)
	var f Flight
	f.DelayInitialize(ctx, false)

	f.SetStaticFrameIndex(2)
	if f.CurrentFrame() != 2 {
		t.Errorf("CurrentFrame() = %d, want 2", f.CurrentFrame())
	}
	ctx.Advance()
	if f.CurrentFrame() != 2 {
		t.Error("static index should ignore the shared counter")
	}
	f.ClearStaticFrameIndex()
	if f.CurrentFrame() != 1 {
		t.Errorf("CurrentFrame() = %d after clear, want 1", f.CurrentFrame())
	}
	mustPanic(t, "index out of range", func() { f.SetStaticFrameIndex(3) })
}

func TestEachSlotRestores(t *testing.T) {
	ctx, _ := newContext(t, 2)
	var f Flight
	f.DelayInitialize(ctx, false)
	ctx.Advance()

	var visited []int
	_ = f.EachSlot(func(slot int) error {
		visited = append(visited, f.CurrentFrame())
		return nil
	})
	if len(visited) != 2 || visited[0] != 0 || visited[1] != 1 {
		t.Errorf("visited = %v, want [0 1]", visited)
	}
	if f.CurrentFrame() != 1 {
		t.Errorf("CurrentFrame() = %d after EachSlot, want 1", f.CurrentFrame())
	}
}

func TestUnboundFlightPanics(t *testing.T) {
	var f Flight
	mustPanic(t, "CurrentFrame", func() { f.CurrentFrame() })
	mustPanic(t, "Count", func() { f.Count() })
	mustPanic(t, "Context", func() { f.Context() })
}
