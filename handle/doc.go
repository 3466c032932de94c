// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package handle provides the shared-ownership handle used for every GPU
// object in frameflight.
//
// An [Owner] wraps an object together with a separately allocated use count.
// Clone adds an owner, Move transfers one, and Release drops one; the object's
// Destroy method runs exactly once, when the last owner is released.
//
// Owners are not safe for concurrent use. The count is plain arithmetic and
// an Owner embeds a noCopy marker, so `go vet` reports accidental value
// copies. Use Clone or Move to create another owner.
//
// A [Ref] is a borrowed view. It never keeps the object alive and cannot be
// turned back into an Owner.
package handle
