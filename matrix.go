// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"

	"github.com/grailbio/base/errors"

	"github.com/dashteam/dash/pattern"
)

// Matrix is an R-dimensional distributed container built directly on
// a pattern.Pattern: extents, a per-dimension distribution, and a
// team-grid factorization are all caller-specified, matching
// Matrix<T,R>(extents, dist, team, teamspec) of the container
// surface.
type Matrix[T Elem] struct {
	*container[T]
}

// NewMatrix collectively allocates a distributed matrix over team.
// extents, dist and teamSpec must all have equal length (the rank);
// teamSpec is the R-dimensional factorization of team's units, and
// must multiply out to team.Size().
func NewMatrix[T Elem](ctx context.Context, team *Team, extents []int64, dist []pattern.DistSpec, teamSpec []int64, name string) (*Matrix[T], error) {
	pat := pattern.New(extents, dist, teamSpec)
	if pat.NUnits() != team.Size() {
		return nil, errors.E(errors.Invalid, "dash: teamSpec does not factor team.Size()")
	}
	c, err := newContainer[T](ctx, team, pat, name)
	if err != nil {
		return nil, err
	}
	return &Matrix[T]{container: c}, nil
}

// At returns a GlobalRef to the element at coord (one index per
// dimension).
func (m *Matrix[T]) At(ctx context.Context, coord ...int64) GlobalRef[T] {
	assertDebug(len(coord) == m.pat.Rank(), "dash: Matrix.At: expected %d coordinates, got %d", m.pat.Rank(), len(coord))
	return m.refFor(ctx, coord)
}

// AsyncAt returns a GlobalAsyncRef to the element at coord.
func (m *Matrix[T]) AsyncAt(ctx context.Context, coord ...int64) GlobalAsyncRef[T] {
	assertDebug(len(coord) == m.pat.Rank(), "dash: Matrix.AsyncAt: expected %d coordinates, got %d", m.pat.Rank(), len(coord))
	return m.asyncRefFor(ctx, coord)
}

// View returns the identity view over the whole matrix.
func (m *Matrix[T]) View() *View[T] { return NewView[T](m.container) }

// Begin returns an iterator over the matrix's elements in canonical
// (row-major) order.
func (m *Matrix[T]) Begin(ctx context.Context) *ViewIterator[T] { return m.View().Begin(ctx) }
