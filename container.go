// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"unsafe"

	"github.com/grailbio/base/errors"

	"github.com/dashteam/dash/pattern"
	"github.com/dashteam/dash/transport"
)

// pattern and transport each define their own Unit type, deliberately
// decoupled so neither package needs to import the other; container
// is the boundary that converts between them.
func puToTU(u pattern.Unit) transport.Unit { return transport.Unit(u) }
func tuToPU(u transport.Unit) pattern.Unit { return pattern.Unit(u) }

// container is the shared implementation behind Array and Matrix: a
// pattern plus a team-allocated, symmetric memory segment reachable
// through the pattern's coordinate mapping.
type container[T Elem] struct {
	team    *Team
	pat     *pattern.Pattern
	segID   transport.SegmentID
	elemCap int64 // per-unit element capacity; segments are symmetric, so this is uniform across units even though LocalSize varies
	local   []T   // this unit's own local storage, len == elemCap
}

func newContainer[T Elem](ctx context.Context, team *Team, pat *pattern.Pattern, name string) (*container[T], error) {
	if pat.NUnits() != team.Size() {
		return nil, errors.E(errors.Invalid, "dash: pattern team size does not match team size")
	}
	var elemCap int64
	for u := 0; u < pat.NUnits(); u++ {
		if sz := pat.LocalSize(pattern.Unit(u)); sz > elemCap {
			elemCap = sz
		}
	}
	bytesPerUnit := uint64(elemCap) * uint64(sizeOf[T]())
	ptr, err := team.tr.TeamMemallocAligned(ctx, team.id, bytesPerUnit, name)
	if err != nil {
		return nil, fatalTransport(err)
	}
	mem, err := team.tr.LocalMemory(ctx, ptr)
	if err != nil {
		return nil, fatalTransport(err)
	}
	return &container[T]{
		team:    team,
		pat:     pat,
		segID:   ptr.Segment,
		elemCap: elemCap,
		local:   reinterpret[T](mem, int(elemCap)),
	}, nil
}

// reinterpret views b's first n*sizeof(T) bytes as a []T. b must
// outlive the returned slice.
func reinterpret[T Elem](b []byte, n int) []T {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

func (c *container[T]) myUnit(ctx context.Context) transport.Unit { return c.team.MyID(ctx) }

// refFor returns a GlobalRef to coord's element, carrying its global
// pointer and, when it is owned by the calling unit, its address
// within c.local.
func (c *container[T]) refFor(ctx context.Context, coord []int64) GlobalRef[T] {
	pu := c.pat.UnitAt(coord)
	off := c.pat.LocalAt(coord)
	tu := puToTU(pu)
	gp := transport.Pointer{Segment: c.segID, Unit: tu, Offset: uint64(off) * uint64(sizeOf[T]())}
	var local *T
	if tu == c.myUnit(ctx) {
		local = &c.local[off]
	}
	return newGlobalRef[T](c.team, gp, local)
}

func (c *container[T]) asyncRefFor(ctx context.Context, coord []int64) GlobalAsyncRef[T] {
	pu := c.pat.UnitAt(coord)
	off := c.pat.LocalAt(coord)
	tu := puToTU(pu)
	gp := transport.Pointer{Segment: c.segID, Unit: tu, Offset: uint64(off) * uint64(sizeOf[T]())}
	var local *T
	if tu == c.myUnit(ctx) {
		local = &c.local[off]
	}
	return newGlobalAsyncRef[T](c.team, gp, local)
}

// refAtLinear resolves a global linear index (canonical row-major
// order) to a GlobalRef, used by iteration.
func (c *container[T]) refAtLinear(ctx context.Context, lin int64) GlobalRef[T] {
	coord := make([]int64, c.pat.Rank())
	unravelInto(lin, c.pat.Extents(), coord)
	return c.refFor(ctx, coord)
}

func unravelInto(lin int64, extents []int64, out []int64) {
	for d := len(extents) - 1; d >= 0; d-- {
		out[d] = lin % extents[d]
		lin /= extents[d]
	}
}

// LocalSlice returns this unit's owned elements as a plain Go slice,
// standing in for lbegin()/lend(): its length is always
// LocalSize(MyID), never the padded per-unit capacity.
func (c *container[T]) LocalSlice(ctx context.Context) []T {
	n := c.pat.LocalSize(tuToPU(c.myUnit(ctx)))
	return c.local[:n]
}

// Pattern returns the container's coordinate mapping.
func (c *container[T]) Pattern() *pattern.Pattern { return c.pat }

// Size returns the total number of elements in the container.
func (c *container[T]) Size() int64 { return c.pat.Size() }

// LocalSize returns the number of elements owned by the calling unit.
func (c *container[T]) LocalSize(ctx context.Context) int64 {
	return c.pat.LocalSize(tuToPU(c.myUnit(ctx)))
}

// Barrier synchronizes the container's team.
func (c *container[T]) Barrier(ctx context.Context) error { return c.team.Barrier(ctx) }

// Team returns the container's team.
func (c *container[T]) Team() *Team { return c.team }
