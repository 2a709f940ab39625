// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// LocalDense returns a zero-copy gonum mat.Dense view over the
// calling unit's local block of m, so BLAS-backed numerical kernels
// (solves, decompositions, factorizations) can run directly against
// the owned portion of a distributed matrix. It performs no
// communication; only rank-2 matrices with a rectangular local block
// are supported, since mat.Dense itself has no notion of distribution
// or an irregular index-set.
func LocalDense(ctx context.Context, m *Matrix[float64]) *mat.Dense {
	assertDebug(m.pat.Rank() == 2, "dash: LocalDense requires a rank-2 matrix")
	le := m.pat.LocalExtents(tuToPU(m.myUnit(ctx)))
	rows, cols := int(le[0]), int(le[1])
	local := m.LocalSlice(ctx)
	if rows == 0 || cols == 0 {
		// mat.NewDense panics on a zero dimension; an empty local
		// block (legal for a unit with no owned rows/columns) has no
		// backing data to wrap, so return the zero Dense directly.
		return &mat.Dense{}
	}
	return mat.NewDense(rows, cols, local[:rows*cols])
}
