// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"fmt"
	"time"

	"github.com/gogpu/frameflight/command"
	"github.com/gogpu/frameflight/device"
	"github.com/gogpu/frameflight/frame"
	"github.com/gogpu/frameflight/handle"
	"github.com/gogpu/frameflight/internal/assert"
	"github.com/gogpu/frameflight/internal/logging"
	"github.com/gogpu/frameflight/pool"
	"github.com/gogpu/frameflight/submit"
	"github.com/gogpu/frameflight/syncobj"
)

// RecordFunc records the commands of one stage. The stage pipeline is
// already bound when it runs.
type RecordFunc func(rec *Recorder) error

// Stage is one step of a graph.
type Stage struct {
	Pipeline device.Pipeline
	Record   RecordFunc
	Barriers []device.BarrierSet
}

// Option configures a Graph.
type Option func(*Graph)

// WithLabel sets the graph label, also used for its command buffer and
// submit unit.
func WithLabel(label string) Option {
	return func(g *Graph) { g.label = label }
}

// WithFenceTimeout bounds the per-frame slot recycle wait. The default
// waits forever.
func WithFenceTimeout(d time.Duration) Option {
	return func(g *Graph) { g.timeout = d }
}

// Graph is an ordered list of stages submitted once per frame. It is not
// safe for concurrent use.
type Graph struct {
	ctx     *frame.Context
	label   string
	timeout time.Duration
	stages  []Stage
	cmd     *command.Buffer
	unit    *submit.Unit
	fence   *syncobj.Fence
}

// New creates a graph whose command buffers come from cmdPool.
func New(ctx *frame.Context, cmdPool *handle.Owner[*pool.CommandPool], opts ...Option) (*Graph, error) {
	g := &Graph{ctx: ctx, label: "graph", timeout: syncobj.Infinite}
	for _, opt := range opts {
		opt(g)
	}
	cmd, err := command.New(cmdPool, command.WithLabel(g.label))
	if err != nil {
		return nil, fmt.Errorf("rendergraph: %q: %w", g.label, err)
	}
	unit := submit.NewUnit(ctx, g.label)
	fence, err := unit.EnableCompletionFence()
	if err != nil {
		cmd.Destroy()
		return nil, fmt.Errorf("rendergraph: %q: %w", g.label, err)
	}
	g.cmd, g.unit, g.fence = cmd, unit, fence
	return g, nil
}

// Label returns the graph label.
func (g *Graph) Label() string { return g.label }

// Add appends a stage. barriers are recorded before the pipeline is bound.
func (g *Graph) Add(pipeline device.Pipeline, record RecordFunc, barriers ...device.BarrierSet) *Graph {
	g.stages = append(g.stages, Stage{Pipeline: pipeline, Record: record, Barriers: barriers})
	return g
}

// Alive reports whether the graph has not been destroyed.
func (g *Graph) Alive() bool { return g.cmd != nil }

// Stages returns the number of stages.
func (g *Graph) Stages() int { return len(g.stages) }

// Unit returns the graph's submit unit, for wiring semaphore edges.
func (g *Graph) Unit() *submit.Unit { return g.unit }

// Buffer returns the graph's command buffer.
func (g *Graph) Buffer() *command.Buffer { return g.cmd }

// Recycle waits for the current slot's previous submission and resets its
// fence. RunAsync calls it; calling it earlier in the frame makes the
// later call free.
func (g *Graph) Recycle() error {
	assert.That(g.Alive(), "use of destroyed graph %q", g.label)
	if err := g.fence.Recycle(g.timeout); err != nil {
		return fmt.Errorf("rendergraph: %q: %w", g.label, err)
	}
	return nil
}

// RunAsync records and submits the graph for the current frame. If a stage
// fails its error is returned and nothing is submitted; a panicking stage
// propagates the panic. In both cases the recording is left unfinished
// and discarded by the next run.
func (g *Graph) RunAsync() (Pending, error) {
	if err := g.Recycle(); err != nil {
		return Pending{}, err
	}
	if err := g.cmd.Discard(); err != nil {
		return Pending{}, fmt.Errorf("rendergraph: %q: %w", g.label, err)
	}
	cb, err := g.cmd.GetBuffer()
	if err != nil {
		return Pending{}, fmt.Errorf("rendergraph: %q: %w", g.label, err)
	}

	dev := g.ctx.Device()
	for i := range g.stages {
		st := &g.stages[i]
		for j := range st.Barriers {
			if !st.Barriers[j].Empty() {
				dev.CmdPipelineBarrier(cb, &st.Barriers[j])
			}
		}
		if !device.IsNull(st.Pipeline) {
			dev.CmdBindPipeline(cb, st.Pipeline)
		}
		if st.Record == nil {
			continue
		}
		if err := st.Record(&Recorder{dev: dev, cb: cb, pipeline: st.Pipeline}); err != nil {
			return Pending{}, fmt.Errorf("rendergraph: %q stage %d: %w", g.label, i, err)
		}
	}

	if err := g.unit.Submit(g.cmd); err != nil {
		return Pending{}, fmt.Errorf("rendergraph: %q: %w", g.label, err)
	}
	slot := g.fence.CurrentFrame()
	logging.Logger().Debug("rendergraph: submitted",
		"label", g.label, "stages", len(g.stages), "slot", slot, "frame", g.ctx.FrameNumber())
	return Pending{dev: dev, fence: g.fence.At(slot), frame: g.ctx.FrameNumber()}, nil
}

// Run submits the graph and blocks until the GPU has executed it or
// timeout elapses.
func (g *Graph) Run(timeout time.Duration) error {
	p, err := g.RunAsync()
	if err != nil {
		return err
	}
	ok, err := p.Wait(timeout)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("rendergraph: %q: %w", g.label, device.ErrTimeout)
	}
	return nil
}

// Destroy releases the graph's command buffer, semaphores and fence. The
// GPU must have finished the graph's work.
func (g *Graph) Destroy() {
	if g.cmd == nil {
		return
	}
	g.cmd.Destroy()
	g.unit.Destroy()
	g.cmd, g.unit, g.fence = nil, nil, nil
	g.stages = nil
}

// Pending is the GPU-side completion of one RunAsync. It tracks the
// slot's fence, so it is meaningful until the graph recycles that slot.
type Pending struct {
	dev   device.Device
	fence device.Fence
	frame uint64
}

// Frame returns the frame number the work was submitted in.
func (p Pending) Frame() uint64 { return p.frame }

// Wait blocks until the work completes or timeout elapses and reports
// whether it completed. A zero timeout polls.
func (p Pending) Wait(timeout time.Duration) (bool, error) {
	if p.dev == nil {
		return true, nil
	}
	ok, err := p.dev.WaitForFences([]device.Fence{p.fence}, true, timeout)
	if err != nil {
		return false, fmt.Errorf("rendergraph: wait: %w", err)
	}
	return ok, nil
}

// Done polls for completion.
func (p Pending) Done() (bool, error) { return p.Wait(0) }
