// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package assert reports calling-convention bugs. Contract violations such as
// releasing a handle twice or writing an undescribed binding are programming
// errors, so they panic rather than return an error.
package assert

import "fmt"

// Violation is the panic value raised by That and Fail.
type Violation struct {
	Msg string
}

func (v Violation) Error() string { return "frameflight: " + v.Msg }

// That panics with a Violation when cond is false.
func That(cond bool, format string, args ...any) {
	if !cond {
		Fail(format, args...)
	}
}

// Fail panics with a Violation unconditionally.
func Fail(format string, args ...any) {
	panic(Violation{Msg: fmt.Sprintf(format, args...)})
}
