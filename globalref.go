// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"unsafe"

	"github.com/dashteam/dash/transport"
)

// GlobalRef is a global pointer paired with a cached local address,
// when the referent happens to live on the calling unit. It behaves
// like a reference: reading it loads the value, assigning to it
// stores. GlobalRef is a small value type and is freely copied; there
// is no distinct owning container behind it to protect against
// aliasing.
type GlobalRef[T Elem] struct {
	team  *Team
	ptr   transport.Pointer
	local *T
}

// newGlobalRef constructs a GlobalRef. local must be non-nil iff ptr
// addresses memory owned by the calling unit.
func newGlobalRef[T Elem](team *Team, ptr transport.Pointer, local *T) GlobalRef[T] {
	return GlobalRef[T]{team: team, ptr: ptr, local: local}
}

// Team returns the team this reference was created against.
func (r GlobalRef[T]) Team() *Team { return r.team }

// Pointer returns the underlying transport pointer.
func (r GlobalRef[T]) Pointer() transport.Pointer { return r.ptr }

// GlobalPtr returns the typed global pointer for r.
func (r GlobalRef[T]) GlobalPtr() GlobalPtr[T] { return GlobalPtr[T]{ptr: r.ptr} }

// IsLocal reports whether r addresses memory owned by the calling
// unit, i.e. whether reads and writes resolve to a local memory
// access rather than a transport call.
func (r GlobalRef[T]) IsLocal() bool { return r.local != nil }

// localHitRecorder is implemented by transports (Local, notably) that
// track how often a reference resolves to a direct memory access
// instead of a transport call.
type localHitRecorder interface {
	RecordLocalHit()
}

// Get reads the referenced value: a direct load if local, otherwise a
// blocking get through the transport.
func (r GlobalRef[T]) Get(ctx context.Context) (T, error) {
	if r.local != nil {
		if rec, ok := r.team.tr.(localHitRecorder); ok {
			rec.RecordLocalHit()
		}
		return *r.local, nil
	}
	buf := make([]byte, sizeOf[T]())
	if err := r.team.tr.GetBlocking(ctx, buf, r.ptr); err != nil {
		var zero T
		return zero, fatalTransport(err)
	}
	return decode[T](buf), nil
}

// Set writes v to the referenced location: a direct store if local,
// otherwise a put that is blocking from the caller's perspective
// only — it returns once the source buffer may be reused, not once
// the write is visible to other units. Call Flush or Barrier for
// remote visibility.
func (r GlobalRef[T]) Set(ctx context.Context, v T) error {
	if r.local != nil {
		if rec, ok := r.team.tr.(localHitRecorder); ok {
			rec.RecordLocalHit()
		}
		*r.local = v
		return nil
	}
	return fatalTransport(r.team.tr.PutBlockingLocal(ctx, r.ptr, encode(v)))
}

// Swap exchanges the values referenced by a and b through a temporary
// of the value type.
func Swap[T Elem](ctx context.Context, a, b GlobalRef[T]) error {
	va, err := a.Get(ctx)
	if err != nil {
		return err
	}
	vb, err := b.Get(ctx)
	if err != nil {
		return err
	}
	if err := a.Set(ctx, vb); err != nil {
		return err
	}
	return b.Set(ctx, va)
}

// Member rebinds r to a struct member of type M living at byteOffset
// within T, producing a GlobalRef[M] over the same underlying
// storage.
func Member[T, M Elem](r GlobalRef[T], byteOffset int64) GlobalRef[M] {
	var local *M
	if r.local != nil {
		local = (*M)(unsafe.Add(unsafe.Pointer(r.local), byteOffset))
	}
	return GlobalRef[M]{team: r.team, ptr: r.ptr.IncOffset(byteOffset), local: local}
}

// Future issues a non-blocking read of r and returns a Future that
// resolves to its value.
func (r GlobalRef[T]) Future(ctx context.Context) (*Future[T], error) {
	return newFuture[T](ctx, r.team, r.ptr, r.local)
}
