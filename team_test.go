// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/dashteam/dash/transport"
)

// allUnits runs f concurrently once per unit of team, each with its
// own unit identity installed on ctx, and waits for every call to
// return. Collectives (Barrier, Accumulate, container construction)
// require every unit to participate, so tests exercising them must
// use this rather than calling sequentially from one goroutine. It
// fans the units out through an errgroup to join a fixed batch of
// goroutines; f reports failures through the test itself, so no error
// is propagated.
func allUnits(ctx context.Context, team *Team, f func(ctx context.Context, u transport.Unit)) {
	var g errgroup.Group
	for i := 0; i < team.Size(); i++ {
		u := transport.Unit(i)
		g.Go(func() error {
			f(transport.WithUnit(ctx, u), u)
			return nil
		})
	}
	_ = g.Wait()
}

func TestRootTeamSizeAndBarrier(t *testing.T) {
	tr := transport.NewLocal(4)
	team := NewRootTeam(tr)
	if team.Size() != 4 {
		t.Fatalf("Size() = %d, want 4", team.Size())
	}
	ctx := context.Background()
	allUnits(ctx, team, func(ctx context.Context, u transport.Unit) {
		if got := team.MyID(ctx); got != u {
			t.Errorf("MyID() = %d, want %d", got, u)
		}
		if err := team.Barrier(ctx); err != nil {
			t.Errorf("Barrier: %v", err)
		}
	})
}

func TestTeamSplit(t *testing.T) {
	tr := transport.NewLocal(4)
	root := NewRootTeam(tr)
	sub, err := root.Split([]transport.Unit{0, 2})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Size() != 2 {
		t.Fatalf("sub.Size() = %d, want 2", sub.Size())
	}
	if sub.Parent() != root {
		t.Fatal("sub.Parent() != root")
	}
}
