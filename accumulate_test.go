// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"testing"

	"github.com/dashteam/dash/transport"
)

// TestAccumulateMin exercises the general (value, valid) reduction
// path, since Min has no native identity for an arbitrary Elem.
func TestAccumulateMin(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(3)
	team := NewRootTeam(tr)
	results := make([]int64, 3)
	vals := []int64{9, 4, 7, 2, 11, 3}
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, int64(len(vals)))
		if err != nil {
			t.Error(err)
			return
		}
		for i, v := range vals {
			ref := arr.At(ctx, int64(i))
			if ref.IsLocal() {
				if err := ref.Set(ctx, v); err != nil {
					t.Error(err)
				}
			}
		}
		if err := team.Barrier(ctx); err != nil {
			t.Error(err)
			return
		}
		min, err := arr.Accumulate(ctx, int64(1000), Min[int64])
		if err != nil {
			t.Error(err)
			return
		}
		results[u] = min
	})
	for u, v := range results {
		if v != 2 {
			t.Errorf("unit %d: min = %d, want 2", u, v)
		}
	}
}

// TestAccumulateCustomBinop covers a caller-supplied binop that is not
// one of the package's own recognized functions, forcing the custom
// reduction path regardless of dtype.
func TestAccumulateCustomBinop(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(2)
	team := NewRootTeam(tr)
	results := make([]int64, 2)
	maxAbsDiff := func(a, b int64) int64 {
		d := a - b
		if d < 0 {
			d = -d
		}
		if d > a && d > b {
			return d
		}
		if a > b {
			return a
		}
		return b
	}
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 6)
		if err != nil {
			t.Error(err)
			return
		}
		for i := int64(0); i < 6; i++ {
			ref := arr.At(ctx, i)
			if ref.IsLocal() {
				if err := ref.Set(ctx, i*3); err != nil {
					t.Error(err)
				}
			}
		}
		if err := team.Barrier(ctx); err != nil {
			t.Error(err)
			return
		}
		v, err := arr.Accumulate(ctx, int64(0), maxAbsDiff)
		if err != nil {
			t.Error(err)
			return
		}
		results[u] = v
	})
	want := results[0]
	for u, v := range results {
		if v != want {
			t.Errorf("unit %d: result %d disagrees with unit 0's %d", u, v, want)
		}
	}
}

// TestAccumulateEmptyUnitContributes checks that a unit with no local
// elements (a BLOCKED distribution that doesn't evenly divide) does
// not disturb the reduction: on Sum's native path it contributes the
// identity 0.
func TestAccumulateEmptyUnitContributes(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(4)
	team := NewRootTeam(tr)
	results := make([]int64, 4)
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 5)
		if err != nil {
			t.Error(err)
			return
		}
		for i := int64(0); i < 5; i++ {
			ref := arr.At(ctx, i)
			if ref.IsLocal() {
				if err := ref.Set(ctx, 1); err != nil {
					t.Error(err)
				}
			}
		}
		if err := team.Barrier(ctx); err != nil {
			t.Error(err)
			return
		}
		sum, err := arr.Accumulate(ctx, int64(0), Sum[int64])
		if err != nil {
			t.Error(err)
			return
		}
		results[u] = sum
	})
	for u, v := range results {
		if v != 5 {
			t.Errorf("unit %d: sum = %d, want 5", u, v)
		}
	}
}
