// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"

	"github.com/dashteam/dash/transport"
)

// GlobalAsyncRef is the write-only counterpart to GlobalRef: Set
// issues a non-blocking put, and Flush establishes remote visibility
// of everything written through references over the same segment and
// target unit. Reads go through Future instead.
type GlobalAsyncRef[T Elem] struct {
	team  *Team
	ptr   transport.Pointer
	local *T
}

func newGlobalAsyncRef[T Elem](team *Team, ptr transport.Pointer, local *T) GlobalAsyncRef[T] {
	return GlobalAsyncRef[T]{team: team, ptr: ptr, local: local}
}

// IsLocal reports whether r addresses memory owned by the calling unit.
func (r GlobalAsyncRef[T]) IsLocal() bool { return r.local != nil }

// Pointer returns the underlying transport pointer.
func (r GlobalAsyncRef[T]) Pointer() transport.Pointer { return r.ptr }

// Set issues a non-blocking write of v. The source value is safe to
// reuse (or go out of scope) as soon as Set returns; remote
// visibility of the write is established only after Flush or a team
// Barrier. If r is local, the write happens immediately and directly;
// a subsequent read of the same location on the same unit before a
// Flush is left unspecified, matching an ordinary unflushed remote
// write.
func (r GlobalAsyncRef[T]) Set(ctx context.Context, v T) error {
	if r.local != nil {
		if rec, ok := r.team.tr.(localHitRecorder); ok {
			rec.RecordLocalHit()
		}
		*r.local = v
		return nil
	}
	_, err := r.team.tr.Put(ctx, r.ptr, encode(v))
	return fatalTransport(err)
}

// Flush drains all outstanding writes issued through async references
// on r's segment at r's target unit, and establishes their remote
// visibility.
func (r GlobalAsyncRef[T]) Flush(ctx context.Context) error {
	return fatalTransport(r.team.tr.Flush(ctx, r.ptr))
}

// Future issues a non-blocking read of r and returns a Future that
// resolves to its value.
func (r GlobalAsyncRef[T]) Future(ctx context.Context) (*Future[T], error) {
	return newFuture[T](ctx, r.team, r.ptr, r.local)
}
