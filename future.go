// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"runtime"
	"sync"

	"github.com/grailbio/base/log"

	"github.com/dashteam/dash/transport"
)

// Future represents a non-blocking read of a global reference: a
// transport handle paired with the buffer it will fill. Test polls
// without blocking, Wait blocks until the read completes, and Get
// implies Wait and returns the value.
//
// A Future should be consumed by exactly one call to Wait or Get.
// One left incomplete and unreferenced is drained by a finalizer on a
// best-effort basis so its transport resources are not leaked, but
// callers should not rely on garbage collection timing for that —
// call Wait explicitly.
type Future[T Elem] struct {
	handle transport.Handle
	buf    []byte

	mu    sync.Mutex
	done  bool
	value T
	err   error
}

func newFuture[T Elem](ctx context.Context, team *Team, ptr transport.Pointer, local *T) (*Future[T], error) {
	if local != nil {
		if rec, ok := team.tr.(localHitRecorder); ok {
			rec.RecordLocalHit()
		}
		f := &Future[T]{done: true, value: *local}
		return f, nil
	}
	buf := make([]byte, sizeOf[T]())
	h, err := team.tr.GetHandle(ctx, buf, ptr)
	if err != nil {
		return nil, fatalTransport(err)
	}
	f := &Future[T]{handle: h, buf: buf}
	runtime.SetFinalizer(f, drainFuture[T])
	return f, nil
}

func drainFuture[T Elem](f *Future[T]) {
	f.mu.Lock()
	incomplete := !f.done
	f.mu.Unlock()
	if !incomplete {
		return
	}
	log.Printf("dash: future dropped incomplete, draining handle")
	_ = f.Wait(context.Background())
}

// Test reports whether the future has completed, without blocking.
func (f *Future[T]) Test() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return true, f.err
	}
	if f.handle == nil {
		return true, nil
	}
	ok, err := f.handle.TestLocal()
	if !ok {
		return false, nil
	}
	f.complete(err)
	return true, f.err
}

// Wait blocks until the future completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) error {
	f.mu.Lock()
	if f.done {
		err := f.err
		f.mu.Unlock()
		return err
	}
	handle := f.handle
	f.mu.Unlock()
	if handle == nil {
		return nil
	}
	err := handle.Wait(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.done {
		f.complete(err)
	}
	return f.err
}

// complete must be called with f.mu held.
func (f *Future[T]) complete(err error) {
	if err == nil {
		f.value = decode[T](f.buf)
	}
	f.err = fatalTransport(err)
	f.done = true
	runtime.SetFinalizer(f, nil)
}

// Get waits for the future to complete and returns its value.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	if err := f.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, nil
}
