// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pool

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/device/sim"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
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

func newContext(t *testing.T) (*frame.Context, *sim.Device) {
	t.Helper()
	dev := sim.New()
	ctx, err := frame.NewContext(dev, 2)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx, dev
}

var uniformLayout = []device.LayoutBinding{
	{Binding: 0, Type: device.DescriptorUniformBuffer, Count: 1, Stages: gputypes.ShaderStageCompute},
}

func TestCommandPoolRealizesLazily(t *testing.T) {
	ctx, dev := newContext(t)
	h := NewCommandPoolBuilder("frame").Transient().Build(ctx)
	p := h.Get()
	if p.Realized() || dev.Live().CommandPools != 0 {
		t.Fatal("pool realized before first allocation")
	}
	bufs, err := p.Allocate(2)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !p.Realized() || p.Outstanding() != 2 {
		t.Fatalf("Realized/Outstanding = %v/%d", p.Realized(), p.Outstanding())
	}
	p.Free(bufs)
	h.Release()
	if live := dev.Live(); live.CommandPools != 0 || live.CommandBuffers != 0 {
		t.Errorf("leaked native objects: %+v", live)
	}
}

func TestBuilderIsConsumedByValue(t *testing.T) {
	ctx, _ := newContext(t)
	base := NewDescriptorPoolBuilder("base").Reserve(device.DescriptorUniformBuffer, 2)
	grown := base.Reserve(device.DescriptorUniformBuffer, 3).ReserveSets(4)

	if base.MaxSets() != 0 || len(base.sizes) != 1 || base.sizes[0].Count != 2 {
		t.Errorf("Reserve on a copy mutated the original: %+v", base)
	}
	if grown.sizes[0].Count != 5 || grown.MaxSets() != 4 {
		t.Errorf("grown builder = %+v, want 5 uniform buffers and 4 sets", grown)
	}

	h := grown.Build(ctx)
	defer h.Release()
	_ = grown.Reserve(device.DescriptorUniformBuffer, 100)
	if h.Get().cfg.sizes[0].Count != 5 {
		t.Error("pool configuration changed after Build")
	}
}

func TestReserveLayout(t *testing.T) {
	b := NewDescriptorPoolBuilder("l").ReserveLayout(uniformLayout, 3)
	if b.MaxSets() != 3 || b.sizes[0].Count != 3 {
		t.Errorf("ReserveLayout = %+v, want 3 sets with 3 uniform buffers", b)
	}
}

func TestCommandPoolCapacityExhaustion(t *testing.T) {
	if assert.Debug {
		t.Skip("exhaustion panics in debug builds")
	}
	var buf bytes.Buffer
	logging.Set(slog.New(slog.NewTextHandler(&buf, nil)))
	defer logging.Set(nil)

	ctx, _ := newContext(t)
	h := NewCommandPoolBuilder("small").Reserve(2).Build(ctx)
	defer h.Release()
	p := h.Get()

	first, err := p.Allocate(2)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	bufs, err := p.Allocate(1)
	if !errors.Is(err, ErrPoolExhausted) || !errors.Is(err, device.ErrOutOfPoolMemory) {
		t.Fatalf("error = %v, want ErrPoolExhausted wrapping ErrOutOfPoolMemory", err)
	}
	if len(bufs) != 1 || bufs[0] != 0 {
		t.Errorf("exhausted allocation = %v, want one invalid handle", bufs)
	}
	if !strings.Contains(buf.String(), "pool: exhausted") {
		t.Errorf("expected warning in log, got %q", buf.String())
	}
	p.Free(bufs)
	p.Free(first)
}

func TestStrictExhaustionPanics(t *testing.T) {
	ctx, _ := newContext(t)
	h := NewCommandPoolBuilder("strict").Reserve(1).Strict(true).Build(ctx)
	p := h.Get()
	bufs, _ := p.Allocate(1)
	mustPanic(t, "strict exhaustion", func() { _, _ = p.Allocate(1) })
	p.Free(bufs)
	h.Release()
}

func TestDescriptorPoolExhaustion(t *testing.T) {
	if assert.Debug {
		t.Skip("exhaustion panics in debug builds")
	}
	ctx, dev := newContext(t)
	layout, _ := dev.CreateDescriptorSetLayout(uniformLayout)
	h := NewDescriptorPoolBuilder("desc").ReserveLayout(uniformLayout, 2).Build(ctx)
	defer h.Release()
	p := h.Get()

	sets, err := p.Allocate(layout, 2)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	extra, err := p.Allocate(layout, 1)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("error = %v, want ErrPoolExhausted", err)
	}
	if extra[0] != 0 {
		t.Errorf("exhausted allocation returned %v", extra)
	}
	if err := p.Free(sets); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := p.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := p.Allocate(layout, 2); err != nil {
		t.Errorf("allocation after reset: %v", err)
	}
	_ = p.Free(sets)
}

func TestResetWithOutstandingPanics(t *testing.T) {
	ctx, dev := newContext(t)
	layout, _ := dev.CreateDescriptorSetLayout(uniformLayout)
	dh := NewDescriptorPoolBuilder("d").ReserveLayout(uniformLayout, 1).Build(ctx)
	sets, err := dh.Get().Allocate(layout, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	mustPanic(t, "descriptor pool reset", func() { _ = dh.Get().Reset() })

	ch := NewCommandPoolBuilder("c").Build(ctx)
	bufs, _ := ch.Get().Allocate(1)
	mustPanic(t, "command pool reset", func() { _ = ch.Get().Reset() })

	_ = dh.Get().Free(sets)
	ch.Get().Free(bufs)
	dh.Release()
	ch.Release()
}

func TestFreeIndividualReturnsSpace(t *testing.T) {
	ctx, dev := newContext(t)
	layout, _ := dev.CreateDescriptorSetLayout(uniformLayout)
	h := NewDescriptorPoolBuilder("f").ReserveLayout(uniformLayout, 1).FreeIndividual().Build(ctx)
	defer h.Release()
	p := h.Get()

	for i := 0; i < 3; i++ {
		sets, err := p.Allocate(layout, 1)
		if err != nil {
			t.Fatalf("round %d: Allocate: %v", i, err)
		}
		if err := p.Free(sets); err != nil {
			t.Fatalf("round %d: Free: %v", i, err)
		}
	}
}
