// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dashteam/dash/pattern"
	"github.com/dashteam/dash/transport"
)

// TestViewSubComposition covers scenario S2: sub<0>(a,b).sub<1>(c,d)
// and sub<1>(c,d).sub<0>(a,b) name the same index-set, regardless of
// application order.
func TestViewSubComposition(t *testing.T) {
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
		v1, err := m.View().Sub(0, 2, 6)
		if err != nil {
			t.Fatal(err)
		}
		v1, err = v1.Sub(1, 1, 4)
		if err != nil {
			t.Fatal(err)
		}

		v2, err := m.View().Sub(1, 1, 4)
		if err != nil {
			t.Fatal(err)
		}
		v2, err = v2.Sub(0, 2, 6)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(v1.Extents(), v2.Extents()); diff != "" {
			t.Errorf("Extents mismatch (-order1 +order2):\n%s", diff)
		}
		if diff := cmp.Diff(v1.Offsets(), v2.Offsets()); diff != "" {
			t.Errorf("Offsets mismatch (-order1 +order2):\n%s", diff)
		}
		if diff := cmp.Diff(v1.Index(), v2.Index()); diff != "" {
			t.Errorf("Index mismatch (-order1 +order2):\n%s", diff)
		}
	})
}

// TestViewLocalSize covers scenario S3: local(sub<0>(0,N,mat)).size()
// == N*(M/U) for a column-blocked (rank 2) matrix.
func TestViewLocalSize(t *testing.T) {
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
		sub, err := m.View().Sub(0, 0, 8)
		if err != nil {
			t.Fatal(err)
		}
		local := sub.Local(ctx)
		want := int64(8 * 3)
		if got := local.Size(); got != want {
			t.Errorf("unit %d: local size = %d, want %d", u, got, want)
		}
		// The local range of a (NONE, BLOCKED) matrix stays rectangular:
		// its extents are the per-unit bounding box (8,3), not a
		// flattened one-dimensional (24,).
		if diff := cmp.Diff(local.Extents(), []int64{8, 3}); diff != "" {
			t.Errorf("unit %d: Extents mismatch (-got +want):\n%s", u, diff)
		}
	})
}

// TestViewIteratorCoversAllElements ensures the whole-container view's
// iterator visits every global linear index exactly once.
func TestViewIteratorCoversAllElements(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal(2)
	team := NewRootTeam(tr)

	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		arr, err := NewArray[int64](ctx, team, 10)
		if err != nil {
			t.Error(err)
			return
		}
		seen := make(map[transport.Pointer]bool)
		it := arr.Begin(ctx)
		for !it.Done() {
			ref := it.Next()
			seen[ref.GlobalPtr().Raw()] = true
		}
		if len(seen) != len(arr.View().Index()) {
			t.Errorf("unit %d: iterator visited %d distinct offsets, want %d", u, len(seen), len(arr.View().Index()))
		}
	})
}
