// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dash implements a partitioned global address space runtime:
// a fixed collective Team of units cooperatively allocates
// logically-single Arrays and Matrices whose elements are physically
// partitioned across units according to a pattern.Pattern. It exposes
// these distributed containers, a lazily-composed View algebra over
// them, and a two-phase collective Accumulate, all built on top of
// the one-sided transport.Transport interface.
//
// Construction of a container, like every collective operation, is
// called by every unit of the team; the SPMD body below is the same
// code every unit runs, distinguished only by the unit identity on
// its context:
//
//	tr := transport.NewLocal(4)
//	team := dash.NewRootTeam(tr)
//	// one goroutine per unit stands in for one OS process per unit
//	for u := transport.Unit(0); u < 4; u++ {
//		go func(ctx context.Context) {
//			arr, err := dash.NewArray[int64](ctx, team, 100)
//			ref := arr.At(ctx, 42)
//			if err := ref.Set(ctx, 7); err != nil { ... }
//			team.Barrier(ctx)
//		}(transport.WithUnit(context.Background(), u))
//	}
//
// In production each unit is a separate OS process and gets its
// identity from the real transport at startup; transport.Local
// instead simulates units as goroutines sharing one address space,
// which is why unit identity travels on the context via
// transport.WithUnit — it is what the package's own tests run
// against.
package dash
