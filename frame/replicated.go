// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package frame

import "fmt"

// Replicated holds one native object per slot of its flight.
type Replicated[T comparable] struct {
	Flight
	items   []T
	destroy func(T)
}

// NewReplicated allocates every copy eagerly with create. If a copy fails,
// the copies already created are destroyed and the error is returned.
func NewReplicated[T comparable](ctx *Context, single bool, create func(slot int) (T, error), destroy func(T)) (*Replicated[T], error) {
	r := &Replicated[T]{destroy: destroy}
	r.DelayInitialize(ctx, single)
	n := r.Count()
	r.items = make([]T, 0, n)
	for i := 0; i < n; i++ {
		item, err := create(i)
		if err != nil {
			r.Destroy()
			return nil, fmt.Errorf("frame: create copy %d of %d: %w", i, n, err)
		}
		r.items = append(r.items, item)
	}
	return r, nil
}

// Current returns the copy for the current slot.
func (r *Replicated[T]) Current() T {
	return r.items[r.CurrentFrame()]
}

// At returns the copy for slot i.
func (r *Replicated[T]) At(i int) T {
	return r.items[i]
}

// Len returns the number of copies.
func (r *Replicated[T]) Len() int { return len(r.items) }

// All returns every copy in slot order. The slice must not be modified.
func (r *Replicated[T]) All() []T { return r.items }

// Destroy releases every copy. Calling Destroy again does nothing.
func (r *Replicated[T]) Destroy() {
	if r.destroy != nil {
		for _, item := range r.items {
			r.destroy(item)
		}
	}
	r.items = nil
}
