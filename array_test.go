// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"testing"

	"github.com/dashteam/dash/transport"
)

// TestArrayWriteReadAcrossUnits covers testable property 4: a write
// by the owning unit becomes visible to every unit after a barrier.
func TestArrayWriteReadAcrossUnits(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(4)
	team := NewRootTeam(tr)

	results := make([]int64, 4)
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 20)
		if err != nil {
			t.Error(err)
			return
		}
		ref := arr.At(ctx, 13)
		if ref.IsLocal() {
			if err := ref.Set(ctx, 99); err != nil {
				t.Error(err)
			}
		}
		if err := team.Barrier(ctx); err != nil {
			t.Error(err)
			return
		}
		v, err := ref.Get(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		results[u] = v
	})
	for u, v := range results {
		if v != 99 {
			t.Errorf("unit %d read %d, want 99", u, v)
		}
	}
}

// TestArrayLendMinusLbegin covers testable property 7.
func TestArrayLendMinusLbegin(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(3)
	team := NewRootTeam(tr)
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 10)
		if err != nil {
			t.Error(err)
			return
		}
		if got, want := int64(len(arr.LocalSlice(ctx))), arr.LocalSize(ctx); got != want {
			t.Errorf("unit %d: len(LocalSlice) = %d, want %d", u, got, want)
		}
	})
}

// TestArrayAccumulateSum covers testable property 5 / scenario S4:
// accumulate(arr.begin(), arr.end(), 10, +) over [1..20] returns 220.
func TestArrayAccumulateSum(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(3)
	team := NewRootTeam(tr)
	results := make([]int64, 3)
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 20)
		if err != nil {
			t.Error(err)
			return
		}
		for i := int64(0); i < 20; i++ {
			ref := arr.At(ctx, i)
			if ref.IsLocal() {
				if err := ref.Set(ctx, i+1); err != nil {
					t.Error(err)
				}
			}
		}
		if err := team.Barrier(ctx); err != nil {
			t.Error(err)
			return
		}
		sum, err := arr.Accumulate(ctx, int64(10), Sum[int64])
		if err != nil {
			t.Error(err)
			return
		}
		results[u] = sum
	})
	for u, v := range results {
		if v != 220 {
			t.Errorf("unit %d: accumulate = %d, want 220", u, v)
		}
	}
}

// TestArrayAsyncFlushVisibility covers testable property 6 / scenario
// S6: an async write becomes visible to other units after Flush.
func TestArrayAsyncFlushVisibility(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(2)
	team := NewRootTeam(tr)
	results := make([]int64, 2)
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 4)
		if err != nil {
			t.Error(err)
			return
		}
		aref := arr.AsyncAt(ctx, 0)
		if aref.IsLocal() {
			if err := aref.Set(ctx, 55); err != nil {
				t.Error(err)
			}
			if err := aref.Flush(ctx); err != nil {
				t.Error(err)
			}
		}
		if err := team.Barrier(ctx); err != nil {
			t.Error(err)
			return
		}
		v, err := arr.At(ctx, 0).Get(ctx)
		if err != nil {
			t.Error(err)
			return
		}
		results[u] = v
	})
	for u, v := range results {
		if v != 55 {
			t.Errorf("unit %d read %d, want 55", u, v)
		}
	}
}

// TestArrayFutureRoundTrip covers scenario S5.
func TestArrayFutureRoundTrip(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(3)
	team := NewRootTeam(tr)
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 9)
		if err != nil {
			t.Error(err)
			return
		}
		for i := int64(0); i < 9; i++ {
			ref := arr.At(ctx, i)
			if ref.IsLocal() {
				if err := ref.Set(ctx, i*i); err != nil {
					t.Error(err)
				}
			}
		}
		if err := team.Barrier(ctx); err != nil {
			t.Error(err)
			return
		}
		for i := int64(0); i < 9; i++ {
			f, err := arr.At(ctx, i).Future(ctx)
			if err != nil {
				t.Error(err)
				continue
			}
			v, err := f.Get(ctx)
			if err != nil {
				t.Error(err)
				continue
			}
			if want, err2 := arr.At(ctx, i).Get(ctx); err2 == nil && v != want {
				t.Errorf("unit %d: future[%d] = %d, want %d", u, i, v, want)
			}
		}
	})
}
