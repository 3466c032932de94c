// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pool provides the bulk allocators for command buffers and
// descriptor sets.
//
// A pool is configured through a builder value. Builders are additive (each
// call registers more object kinds or quantities) and are consumed by value
// in Build, so the resulting pool's configuration is immutable. The native
// pool is realized lazily on the first allocation.
//
// Objects are freed by the pool that allocated them. Holders keep a cloned
// owner of the pool so it outlives every allocation.
//
// Running out of space is an expected misconfiguration: Allocate returns
// invalid handles together with ErrPoolExhausted and logs a warning. Strict
// pools, and every pool in builds with the ffdebug tag, panic instead.
//
// Pools have no internal locking. Use one pool per goroutine that records.
package pool
