// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"

	"github.com/grailbio/base/errors"

	"github.com/dashteam/dash/pattern"
)

// viewKind tags which of the two representations a View currently
// holds. The realized view shapes are a closed set — a rectangular
// sub-region, or an explicit list of global linear indices — so View
// dispatches on this tag rather than through an interface hierarchy.
type viewKind int

const (
	viewRect viewKind = iota
	viewIndexList
)

// View is a non-owning index-set over a container: either a
// rectangular region of the origin or an explicit list of its global
// linear indices. Sub and Local return a new View directly rather than
// keeping a chain of narrowings; a rectangular view's indices are
// enumerated on demand. It borrows its origin for its lifetime and
// never copies element data.
type View[T Elem] struct {
	origin *container[T]
	kind   viewKind

	// valid when kind == viewRect
	offsets []int64
	extents []int64

	// valid when kind == viewIndexList: origin-global linear indices,
	// already in canonical order
	indices []int64
}

// NewView returns the identity view over the whole of c.
func NewView[T Elem](c *container[T]) *View[T] {
	return &View[T]{
		origin:  c,
		kind:    viewRect,
		offsets: make([]int64, c.pat.Rank()),
		extents: c.pat.Extents(),
	}
}

// NDim returns the view's rank: the origin's rank while rectangular,
// or 1 once flattened by Local over a non-rectangular pattern.
func (v *View[T]) NDim() int {
	if v.kind == viewRect {
		return len(v.extents)
	}
	return 1
}

// Extents returns the view's per-dimension extents.
func (v *View[T]) Extents() []int64 {
	if v.kind == viewRect {
		return append([]int64(nil), v.extents...)
	}
	return []int64{int64(len(v.indices))}
}

// Extent returns the view's extent along dimension d.
func (v *View[T]) Extent(d int) int64 { return v.Extents()[d] }

// Offsets returns the view's per-dimension offset into the origin's
// global index space. A flattened (non-rectangular) view has a single
// dimension with offset 0, since its index-set no longer describes a
// contiguous origin range.
func (v *View[T]) Offsets() []int64 {
	if v.kind == viewRect {
		return append([]int64(nil), v.offsets...)
	}
	return []int64{0}
}

// Size returns the number of elements named by the view.
func (v *View[T]) Size() int64 {
	sz := int64(1)
	for _, e := range v.Extents() {
		sz *= e
	}
	return sz
}

// Sub narrows dimension d of a rectangular view to [a, b).
func (v *View[T]) Sub(d int, a, b int64) (*View[T], error) {
	if v.kind != viewRect {
		return nil, errors.E(errors.Invalid, "dash: Sub requires a rectangular view")
	}
	if a < 0 || a > b || b > v.extents[d] {
		assertDebug(false, "dash: Sub: invalid range [%d,%d) for extent %d along dim %d", a, b, v.extents[d], d)
		return nil, errors.E(errors.Invalid, "dash: Sub: range out of bounds")
	}
	nv := &View[T]{
		origin:  v.origin,
		kind:    viewRect,
		offsets: append([]int64(nil), v.offsets...),
		extents: append([]int64(nil), v.extents...),
	}
	nv.offsets[d] += a
	nv.extents[d] = b - a
	return nv, nil
}

// Local restricts the view to indices owned by the calling unit. Over
// a rectangular view whose local range is itself contiguous along
// every dimension (always true for BLOCKED, and for TILE whenever the
// range overlaps at most one of the unit's tiles per dimension) this
// degrades to a rectangle narrowing, so local(sub(V)) == sub(local(V))
// stays representable as a viewRect. Otherwise (CYCLIC/BLOCKCYCLIC, or
// a TILE range spanning more than one of the unit's tiles) the result
// is a flattened, one-dimensional index list, per the pattern's
// ownership rather than any assumption of contiguity.
func (v *View[T]) Local(ctx context.Context) *View[T] {
	me := tuToPU(v.origin.myUnit(ctx))
	if v.kind == viewRect {
		if offsets, extents, ok := v.localBoundingBox(me); ok {
			return &View[T]{origin: v.origin, kind: viewRect, offsets: offsets, extents: extents}
		}
	}
	idx := v.indexSet()
	kept := make([]int64, 0, len(idx))
	coord := make([]int64, v.origin.pat.Rank())
	for _, lin := range idx {
		unravelInto(lin, v.origin.pat.Extents(), coord)
		if v.origin.pat.UnitAt(coord) == me {
			kept = append(kept, lin)
		}
	}
	return &View[T]{origin: v.origin, kind: viewIndexList, indices: kept}
}

// localBoundingBox computes, per dimension, the tightest global
// interval within v's rectangular range that unit me owns, via
// pattern.Pattern.LocalRun. ok is false if any dimension is
// BLOCKCYCLIC (which includes CYCLIC), or if any dimension's ownership
// within the range is fragmented across more than one block, in which
// case no single viewRect can name the local elements.
func (v *View[T]) localBoundingBox(me pattern.Unit) (offsets, extents []int64, ok bool) {
	r := v.origin.pat.Rank()
	offsets = make([]int64, r)
	extents = make([]int64, r)
	for d := 0; d < r; d++ {
		if v.origin.pat.Dist(d).Dist == pattern.BlockCyclic {
			return nil, nil, false
		}
		lo, hi, runOK := v.origin.pat.LocalRun(me, d, v.offsets[d], v.extents[d])
		if !runOK {
			return nil, nil, false
		}
		offsets[d] = lo
		extents[d] = hi - lo
	}
	return offsets, extents, true
}

// Index returns the view's global linear indices, into the origin's
// canonical order.
func (v *View[T]) Index() []int64 { return append([]int64(nil), v.indexSet()...) }

// indexSet materializes the view's global linear indices in canonical
// (row-major) order.
func (v *View[T]) indexSet() []int64 {
	if v.kind == viewIndexList {
		return v.indices
	}
	originExtents := v.origin.pat.Extents()
	r := len(v.extents)
	total := v.Size()
	out := make([]int64, 0, total)
	coord := append([]int64(nil), v.offsets...)
	for i := int64(0); i < total; i++ {
		out = append(out, ravelAgainst(coord, originExtents))
		for d := r - 1; d >= 0; d-- {
			coord[d]++
			if coord[d] < v.offsets[d]+v.extents[d] {
				break
			}
			coord[d] = v.offsets[d]
		}
	}
	return out
}

func ravelAgainst(coord, extents []int64) int64 {
	var lin int64
	for d := 0; d < len(coord); d++ {
		lin = lin*extents[d] + coord[d]
	}
	return lin
}

// At returns a GlobalRef to the i'th element of the view's index-set,
// in canonical order.
func (v *View[T]) At(ctx context.Context, i int64) (GlobalRef[T], error) {
	idx := v.indexSet()
	if i < 0 || i >= int64(len(idx)) {
		return GlobalRef[T]{}, errors.E(errors.Invalid, "dash: view index out of range")
	}
	coord := make([]int64, v.origin.pat.Rank())
	unravelInto(idx[i], v.origin.pat.Extents(), coord)
	return v.origin.refFor(ctx, coord), nil
}

// ViewIterator walks a View's index-set in canonical order, yielding
// GlobalRefs into the origin's storage.
type ViewIterator[T Elem] struct {
	v   *View[T]
	ctx context.Context
	idx []int64
	pos int
}

// Begin returns an iterator positioned before the view's first
// element.
func (v *View[T]) Begin(ctx context.Context) *ViewIterator[T] {
	return &ViewIterator[T]{v: v, ctx: ctx, idx: v.indexSet()}
}

// Done reports whether the iterator has been exhausted (the
// "end()" state).
func (it *ViewIterator[T]) Done() bool { return it.pos >= len(it.idx) }

// Next returns the next element's reference and advances the
// iterator. Calling Next after Done is a precondition violation.
func (it *ViewIterator[T]) Next() GlobalRef[T] {
	assertDebug(!it.Done(), "dash: ViewIterator.Next called past end")
	coord := make([]int64, it.v.origin.pat.Rank())
	unravelInto(it.idx[it.pos], it.v.origin.pat.Extents(), coord)
	it.pos++
	return it.v.origin.refFor(it.ctx, coord)
}
