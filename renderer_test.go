// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frameflight

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/frameflight/command"
	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/device/sim"
	"github.com/gogpu/frameflight/rendergraph"
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

func newRenderer(t *testing.T, dev *sim.Device, opts ...Option) *Renderer {
	t.Helper()
	r, err := New(dev, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		r.Destroy()
		if v := dev.Violations(); len(v) != 0 {
			t.Errorf("device violations: %v", v)
		}
		if live := dev.Live(); live != (sim.Census{}) {
			t.Errorf("leaked native objects: %+v", live)
		}
	})
	return r
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(sim.New(), WithMaxFramesInFlight(0)); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New error = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestOpenBackend(t *testing.T) {
	r, err := Open("sim", WithMaxFramesInFlight(3))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Destroy()
	if r.Backend() != "sim" || r.Context().MaxFramesInFlight() != 3 {
		t.Errorf("Backend()=%q frames=%d", r.Backend(), r.Context().MaxFramesInFlight())
	}
	if _, err := Open("no-such-backend"); !errors.Is(err, device.ErrUnknownBackend) {
		t.Errorf("Open unknown = %v", err)
	}
}

// Two frames in flight: the second frame's write must not clobber the
// first frame's descriptor copy while the first frame is still executing.
func TestHeadlessFrameLoop(t *testing.T) {
	dev := sim.New()
	r := newRenderer(t, dev)

	params := r.NewDescriptorSet("params")
	params.DescribeBuffer(0, device.DescriptorStorageBuffer, gputypes.ShaderStageCompute)
	g, err := r.NewGraph("simulate")
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	g.Add(dev.NewPipeline("step"), rendergraph.Compute(64, 1, 1, params))

	resources := []device.Buffer{dev.NewBuffer("A"), dev.NewBuffer("B"), dev.NewBuffer("C")}
	var sets []device.DescriptorSet
	for i, res := range resources {
		fr, err := r.BeginFrame()
		if err != nil {
			t.Fatalf("frame %d: BeginFrame: %v", i, err)
		}
		if fr.Number != uint64(i) || fr.Slot != i%2 || fr.HasImage {
			t.Errorf("frame %d: %+v", i, fr)
		}
		params.SetBuffer(0, device.BufferInfo{Buffer: res, Range: device.WholeSize})
		if _, err := g.RunAsync(); err != nil {
			t.Fatalf("frame %d: RunAsync: %v", i, err)
		}
		set, _ := params.GetSet()
		sets = append(sets, set)

		if i == 1 {
			w, _ := dev.Binding(sets[0], 0)
			if w.Buffer.Buffer != resources[0] {
				t.Error("frame 1 write clobbered frame 0's copy")
			}
		}
		if err := r.EndFrame(); err != nil {
			t.Fatalf("frame %d: EndFrame: %v", i, err)
		}
	}
	if sets[0] != sets[2] || sets[0] == sets[1] {
		t.Errorf("slot sets = %v, want period 2", sets)
	}
	if st := r.Stats(); st.Frames != 3 || st.Graphs != 1 || st.DescriptorSets != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestSwapchainFrameLoop(t *testing.T) {
	dev := sim.New()
	sc := dev.NewSwapchain(3)
	r := newRenderer(t, dev, WithSwapchain(sc))

	g, err := r.NewGraph("draw")
	if err != nil {
		t.Fatal(err)
	}
	g.Add(dev.NewPipeline("blit"), rendergraph.Compute(1, 1, 1))

	if _, err := r.BeginFrame(); !errors.Is(err, ErrNoPresentSource) {
		t.Fatalf("BeginFrame without source = %v, want ErrNoPresentSource", err)
	}
	if err := r.PresentFrom(g, device.StageComputeShader); err != nil {
		t.Fatalf("PresentFrom: %v", err)
	}

	for i := 0; i < 5; i++ {
		fr, err := r.BeginFrame()
		if err != nil {
			t.Fatalf("frame %d: BeginFrame: %v", i, err)
		}
		if !fr.HasImage || fr.Image != uint32(i%3) {
			t.Errorf("frame %d: image %d held=%v", i, fr.Image, fr.HasImage)
		}
		if _, err := g.RunAsync(); err != nil {
			t.Fatalf("frame %d: RunAsync: %v", i, err)
		}
		sub, _ := dev.LastSubmission()
		if sub.WaitCount() != 1 {
			t.Errorf("frame %d: draw waits on %d semaphores, want the acquire", i, sub.WaitCount())
		}
		if err := r.EndFrame(); err != nil {
			t.Fatalf("frame %d: EndFrame: %v", i, err)
		}
	}
	if got := dev.Stats().Presents; got != 5 {
		t.Errorf("Presents = %d, want 5", got)
	}
}

func TestPresentSourceWithSecondConsumer(t *testing.T) {
	dev := sim.New()
	sc := dev.NewSwapchain(3)
	r := newRenderer(t, dev, WithSwapchain(sc))
	draw, _ := r.NewGraph("draw")
	draw.Add(dev.NewPipeline("blit"), rendergraph.Compute(1, 1, 1))
	stats, _ := r.NewGraph("stats")
	stats.Add(dev.NewPipeline("histogram"), rendergraph.Compute(1, 1, 1))
	if err := r.PresentFrom(draw, device.StageComputeShader); err != nil {
		t.Fatal(err)
	}
	if err := stats.Unit().AddWaitObject(draw.Unit(), device.StageComputeShader); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if _, err := r.BeginFrame(); err != nil {
			t.Fatalf("frame %d: BeginFrame: %v", i, err)
		}
		if _, err := draw.RunAsync(); err != nil {
			t.Fatalf("frame %d: draw: %v", i, err)
		}
		// Every other frame the second consumer does not run.
		if i%2 == 0 {
			if _, err := stats.RunAsync(); err != nil {
				t.Fatalf("frame %d: stats: %v", i, err)
			}
		}
		if err := r.EndFrame(); err != nil {
			t.Fatalf("frame %d: EndFrame: %v", i, err)
		}
		if v := dev.Violations(); len(v) != 0 {
			t.Fatalf("frame %d: violations %v", i, v)
		}
	}
	if got := dev.Stats().Presents; got != 5 {
		t.Errorf("Presents = %d, want 5", got)
	}
}

func TestOutOfDateSkipsFrame(t *testing.T) {
	dev := sim.New()
	sc := dev.NewSwapchain(2)
	r := newRenderer(t, dev, WithSwapchain(sc))
	g, _ := r.NewGraph("draw")
	g.Add(dev.NewPipeline("p"), nil)
	if err := r.PresentFrom(g, device.StageColorAttachmentOutput); err != nil {
		t.Fatal(err)
	}

	dev.SetOutOfDate(sc, true)
	if _, err := r.BeginFrame(); !errors.Is(err, ErrFrameSkipped) || !errors.Is(err, device.ErrOutOfDate) {
		t.Fatalf("BeginFrame = %v, want ErrFrameSkipped wrapping ErrOutOfDate", err)
	}
	if r.Stats().Skipped != 1 {
		t.Errorf("Skipped = %d", r.Stats().Skipped)
	}
	if r.Context().FrameNumber() != 0 {
		t.Errorf("frame counter advanced to %d on a skipped acquire", r.Context().FrameNumber())
	}
	mustPanic(t, "EndFrame after skipped acquire", func() { _ = r.EndFrame() })

	if err := r.SetSwapchain(dev.NewSwapchain(2)); err != nil {
		t.Fatalf("SetSwapchain: %v", err)
	}
	if _, err := r.BeginFrame(); err != nil {
		t.Fatalf("BeginFrame after recreate: %v", err)
	}
	if _, err := g.RunAsync(); err != nil {
		t.Fatal(err)
	}
	if len(g.Unit().Waits()) != 1 {
		t.Errorf("draw graph has %d waits after swapchain swap, want 1", len(g.Unit().Waits()))
	}
	if err := r.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
}

func TestPresentOutOfDate(t *testing.T) {
	dev := sim.New()
	sc := dev.NewSwapchain(2)
	r := newRenderer(t, dev, WithSwapchain(sc))
	g, _ := r.NewGraph("draw")
	g.Add(dev.NewPipeline("p"), nil)
	_ = r.PresentFrom(g, device.StageColorAttachmentOutput)

	if _, err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.RunAsync(); err != nil {
		t.Fatal(err)
	}
	dev.SetOutOfDate(sc, true)
	if err := r.EndFrame(); !errors.Is(err, ErrFrameSkipped) {
		t.Fatalf("EndFrame = %v, want ErrFrameSkipped", err)
	}
	if r.Context().FrameNumber() != 1 {
		t.Error("frame counter did not advance after a failed present")
	}
}

func TestCommandBuffersAndStrictPools(t *testing.T) {
	dev := sim.New()
	r := newRenderer(t, dev, WithStrictExhaustion(true))

	b, err := r.NewCommandBuffer("upload", command.WithSingle())
	if err != nil {
		t.Fatalf("NewCommandBuffer: %v", err)
	}
	if _, err := b.GetBuffer(); err != nil {
		t.Fatal(err)
	}
	if err := b.SubmitAndWait(nil, nil); err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if r.Stats().CommandBuffers != 1 {
		t.Errorf("CommandBuffers = %d", r.Stats().CommandBuffers)
	}

	// The default pool reserves 16 storage images; two copies of 17 do not fit.
	s := r.NewDescriptorSet("huge")
	for i := uint32(0); i < 17; i++ {
		s.DescribeImage(i, device.DescriptorStorageImage, gputypes.ShaderStageCompute)
	}
	mustPanic(t, "strict exhaustion", func() { _, _ = s.GetSet() })
}

func TestFrameContract(t *testing.T) {
	r := newRenderer(t, sim.New())
	mustPanic(t, "EndFrame without BeginFrame", func() { _ = r.EndFrame() })
	if _, err := r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	mustPanic(t, "nested BeginFrame", func() { _, _ = r.BeginFrame() })
	mustPanic(t, "PresentFrom without swapchain", func() { _ = r.PresentFrom(nil, 0) })
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestDestroyIdempotent(t *testing.T) {
	dev := sim.New()
	r, err := New(dev)
	if err != nil {
		t.Fatal(err)
	}
	g, _ := r.NewGraph("g")
	g.Destroy()
	r.Destroy()
	r.Destroy()
	if live := dev.Live(); live != (sim.Census{}) {
		t.Errorf("leaked native objects: %+v", live)
	}
	mustPanic(t, "NewGraph after Destroy", func() { _, _ = r.NewGraph("late") })
}
