// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"github.com/gogpu/frameflight/descriptor"
	"github.com/gogpu/frameflight/device"
)

// Recorder records commands for one stage.
type Recorder struct {
	dev      device.Device
	cb       device.CommandBuffer
	pipeline device.Pipeline
}

// Device returns the device being recorded for.
func (r *Recorder) Device() device.Device { return r.dev }

// Buffer returns the native command buffer.
func (r *Recorder) Buffer() device.CommandBuffer { return r.cb }

// Pipeline returns the stage pipeline.
func (r *Recorder) Pipeline() device.Pipeline { return r.pipeline }

// BindSet flushes set's pending writes for the current slot and binds it
// at index.
func (r *Recorder) BindSet(index uint32, set *descriptor.Set) error {
	native, err := set.GetSet()
	if err != nil {
		return err
	}
	r.dev.CmdBindDescriptorSet(r.cb, r.pipeline, index, native)
	return nil
}

// Barrier records a pipeline barrier.
func (r *Recorder) Barrier(b device.BarrierSet) {
	if !b.Empty() {
		r.dev.CmdPipelineBarrier(r.cb, &b)
	}
}

// Dispatch records a compute dispatch.
func (r *Recorder) Dispatch(x, y, z uint32) {
	r.dev.CmdDispatch(r.cb, x, y, z)
}

// Compute returns a stage that binds sets at consecutive indices and
// dispatches x×y×z workgroups.
func Compute(x, y, z uint32, sets ...*descriptor.Set) RecordFunc {
	return func(r *Recorder) error {
		for i, s := range sets {
			if err := r.BindSet(uint32(i), s); err != nil {
				return err
			}
		}
		r.Dispatch(x, y, z)
		return nil
	}
}
