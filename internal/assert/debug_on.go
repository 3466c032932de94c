// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build ffdebug

package assert

// Debug is true when built with the ffdebug tag. Debug builds turn
// recoverable conditions such as pool exhaustion into hard failures.
const Debug = true
