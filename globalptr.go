// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import "github.com/dashteam/dash/transport"

// GlobalPtr is a typed (segment, unit, offset) handle naming one
// element of type T in global memory. It carries no team or local
// address; GlobalRef adds those. GlobalPtr exists to let addresses be
// passed around and compared without pulling in a team.
type GlobalPtr[T Elem] struct {
	ptr transport.Pointer
}

// NewGlobalPtr wraps a raw transport.Pointer as a GlobalPtr[T].
func NewGlobalPtr[T Elem](ptr transport.Pointer) GlobalPtr[T] {
	return GlobalPtr[T]{ptr: ptr}
}

// GlobalPtrNull is the null GlobalPtr for T.
func GlobalPtrNull[T Elem]() GlobalPtr[T] {
	return GlobalPtr[T]{ptr: transport.PointerNull}
}

// Raw returns the underlying transport-level pointer.
func (p GlobalPtr[T]) Raw() transport.Pointer { return p.ptr }

// IsNull reports whether p is the null pointer.
func (p GlobalPtr[T]) IsNull() bool { return p.ptr.IsNull() }

// Unit returns the unit owning the addressed element.
func (p GlobalPtr[T]) Unit() transport.Unit { return p.ptr.Unit }

// IsLocalTo reports whether p addresses memory owned by me.
func (p GlobalPtr[T]) IsLocalTo(me transport.Unit) bool { return p.ptr.Unit == me }

// WithUnit returns a copy of p addressing the same offset on a
// different unit (dart_gptr_setunit).
func (p GlobalPtr[T]) WithUnit(u transport.Unit) GlobalPtr[T] {
	return GlobalPtr[T]{ptr: p.ptr.WithUnit(u)}
}

// IncElem returns a copy of p advanced by delta elements of T within
// the same unit's local storage (dart_gptr_incaddr, scaled by
// sizeof(T)). It does not cross a unit boundary; container iteration
// (Begin/End) is what walks the pattern to hop units.
func (p GlobalPtr[T]) IncElem(delta int64) GlobalPtr[T] {
	return GlobalPtr[T]{ptr: p.ptr.IncOffset(delta * int64(sizeOf[T]()))}
}

// Equal reports whether p and q name the same (segment, unit, offset).
func (p GlobalPtr[T]) Equal(q GlobalPtr[T]) bool { return p.ptr == q.ptr }
