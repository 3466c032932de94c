// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rendergraph records an ordered list of pipeline stages into one
// command buffer per frame and submits it.
//
// Each RunAsync recycles the current frame slot by waiting its fence once,
// records every stage with its barriers into the slot's command buffer,
// and submits through the graph's submit.Unit, so graphs can be chained
// with semaphore edges:
//
//	g.Add(pipeline, rendergraph.Compute(16, 16, 1, paramsSet))
//	pending, err := g.RunAsync()
package rendergraph
