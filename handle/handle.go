// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package handle

import "github.com/gogpu/frameflight/internal/assert"

// Destroyer is implemented by every object an Owner can manage.
type Destroyer interface {
	Destroy()
}

// noCopy may be embedded into structs which must not be copied after first
// use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// cell is the shared use count of one managed object.
type cell struct {
	count     int
	destroyed bool
}

// Owner is a counted owning reference to obj.
// The zero value is an empty owner.
type Owner[T Destroyer] struct {
	_    noCopy
	obj  T
	cell *cell
}

// New takes ownership of obj with a use count of one.
func New[T Destroyer](obj T) Owner[T] {
	return Owner[T]{obj: obj, cell: &cell{count: 1}}
}

// Clone returns a new owner of the same object and increments the count.
// Cloning an empty owner returns an empty owner.
func (o *Owner[T]) Clone() Owner[T] {
	if o.cell == nil {
		return Owner[T]{}
	}
	assert.That(!o.cell.destroyed, "clone of destroyed handle")
	o.cell.count++
	return Owner[T]{obj: o.obj, cell: o.cell}
}

// Move transfers ownership to the returned owner without touching the count.
// o is empty afterwards.
func (o *Owner[T]) Move() Owner[T] {
	obj, c := o.obj, o.cell
	var zero T
	o.obj = zero
	o.cell = nil
	return Owner[T]{obj: obj, cell: c}
}

// Release drops this owner. The object is destroyed when the count reaches
// zero. Releasing an empty owner does nothing.
func (o *Owner[T]) Release() {
	c := o.cell
	if c == nil {
		return
	}
	obj := o.obj
	var zero T
	o.obj = zero
	o.cell = nil

	assert.That(c.count > 0 && !c.destroyed, "handle released below zero")
	c.count--
	if c.count == 0 {
		c.destroyed = true
		obj.Destroy()
	}
}

// Get returns the managed object. Get on an empty owner returns the zero value.
func (o *Owner[T]) Get() T {
	return o.obj
}

// Valid reports whether o currently owns an object.
func (o *Owner[T]) Valid() bool {
	return o.cell != nil
}

// UseCount returns the number of live owners sharing the object, or zero for
// an empty owner.
func (o *Owner[T]) UseCount() int {
	if o.cell == nil {
		return 0
	}
	return o.cell.count
}

// Borrow returns a non-owning view of the object.
func (o *Owner[T]) Borrow() Ref[T] {
	assert.That(o.cell != nil, "borrow of empty handle")
	return Ref[T]{obj: o.obj, cell: o.cell}
}

// Ref is a borrowed, non-owning view of a managed object. It does not keep
// the object alive and cannot be upgraded to an Owner.
type Ref[T Destroyer] struct {
	obj  T
	cell *cell
}

// Self returns a view of obj with no owner behind it. It is used to hand an
// object to its own callbacks without creating an ownership cycle.
func Self[T Destroyer](obj T) Ref[T] {
	return Ref[T]{obj: obj}
}

// Get returns the viewed object. It panics if the object has already been
// destroyed.
func (r Ref[T]) Get() T {
	assert.That(r.Alive(), "use of destroyed handle through borrowed view")
	return r.obj
}

// Alive reports whether the viewed object has not been destroyed. Views made
// by Self are always alive.
func (r Ref[T]) Alive() bool {
	return r.cell == nil || !r.cell.destroyed
}
