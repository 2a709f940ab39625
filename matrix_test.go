// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"testing"

	"github.com/dashteam/dash/pattern"
	"github.com/dashteam/dash/transport"
)

// TestMatrixBlockedRowsOwnership covers scenario S1: an (8,6) matrix
// distributed NONE x BLOCKED over 2 units splits into two 8x3 blocks
// of columns, and coordinates in each half are owned by the expected
// unit.
func TestMatrixBlockedRowsOwnership(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(2)
	team := NewRootTeam(tr)
	dist := []pattern.DistSpec{pattern.NoneDist(), pattern.BlockedDist()}
	teamSpec := []int64{1, 2}

	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		m, err := NewMatrix[int64](ctx, team, []int64{8, 6}, dist, teamSpec, "m")
		if err != nil {
			t.Error(err)
			return
		}
		if got, want := m.Size(), int64(48); got != want {
			t.Errorf("Size() = %d, want %d", got, want)
		}
		for r := int64(0); r < 8; r++ {
			for c := int64(0); c < 6; c++ {
				ref := m.At(ctx, r, c)
				wantLocal := c < 3 && u == 0 || c >= 3 && u == 1
				if ref.IsLocal() != wantLocal {
					t.Errorf("unit %d: (%d,%d) local = %v, want %v", u, r, c, ref.IsLocal(), wantLocal)
				}
			}
		}
	})
}

// TestMatrixWriteReadRoundTrip writes each element from its owner and
// checks every unit reads back the same values after a barrier.
func TestMatrixWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(2)
	team := NewRootTeam(tr)
	dist := []pattern.DistSpec{pattern.NoneDist(), pattern.BlockedDist()}
	teamSpec := []int64{1, 2}

	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		m, err := NewMatrix[int64](ctx, team, []int64{4, 4}, dist, teamSpec, "m")
		if err != nil {
			t.Error(err)
			return
		}
		for r := int64(0); r < 4; r++ {
			for c := int64(0); c < 4; c++ {
				ref := m.At(ctx, r, c)
				if ref.IsLocal() {
					if err := ref.Set(ctx, r*10+c); err != nil {
						t.Error(err)
					}
				}
			}
		}
		if err := team.Barrier(ctx); err != nil {
			t.Error(err)
			return
		}
		for r := int64(0); r < 4; r++ {
			for c := int64(0); c < 4; c++ {
				v, err := m.At(ctx, r, c).Get(ctx)
				if err != nil {
					t.Error(err)
					continue
				}
				if want := r*10 + c; v != want {
					t.Errorf("unit %d: (%d,%d) = %d, want %d", u, r, c, v, want)
				}
			}
		}
	})
}

// TestMatrixLocalDense checks the gonum bridge sees the same element
// count as LocalSize for a rank-2 matrix.
func TestMatrixLocalDense(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(2)
	team := NewRootTeam(tr)
	dist := []pattern.DistSpec{pattern.NoneDist(), pattern.BlockedDist()}
	teamSpec := []int64{1, 2}

	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		m, err := NewMatrix[float64](ctx, team, []int64{4, 6}, dist, teamSpec, "m")
		if err != nil {
			t.Error(err)
			return
		}
		d := LocalDense(ctx, m)
		r, c := d.Dims()
		if int64(r*c) != m.LocalSize(ctx) {
			t.Errorf("unit %d: dense dims %dx%d = %d elems, want %d", u, r, c, r*c, m.LocalSize(ctx))
		}
	})
}
