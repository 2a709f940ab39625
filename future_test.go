// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"testing"

	"github.com/dashteam/dash/transport"
)

// TestFutureLocalCompletesImmediately checks that a Future over a
// locally-owned element is already Test()-true without any transport
// round trip.
func TestFutureLocalCompletesImmediately(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(1)
	team := NewRootTeam(tr)
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 3)
		if err != nil {
			t.Error(err)
			return
		}
		ref := arr.At(ctx, 1)
		if err := ref.Set(ctx, 42); err != nil {
			t.Error(err)
			return
		}
		f, err := ref.Future(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		ok, err := f.Test()
		if !ok || err != nil {
			t.Errorf("Test() = (%v, %v), want (true, nil)", ok, err)
		}
		v, err := f.Get(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		if v != 42 {
			t.Errorf("Get() = %d, want 42", v)
		}
	})
}

// TestFutureRemoteWait exercises a future over a remotely-owned
// element, whose value comes through the transport's get handle and
// is read back with Get.
func TestFutureRemoteWait(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(2)
	team := NewRootTeam(tr)
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 2)
		if err != nil {
			t.Error(err)
			return
		}
		local := arr.At(ctx, int64(u))
		if err := local.Set(ctx, int64(u)+100); err != nil {
			t.Error(err)
			return
		}
		if err := team.Barrier(ctx); err != nil {
			t.Error(err)
			return
		}
		other := int64(1 - u)
		ref := arr.At(ctx, other)
		f, err := ref.Future(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		v, err := f.Get(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		if want := other + 100; v != want {
			t.Errorf("unit %d: Get() = %d, want %d", u, v, want)
		}
	})
}
