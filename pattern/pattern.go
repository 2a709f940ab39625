// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pattern implements the coordinate mapping at the heart of a
// partitioned global address space: given a rectangular index space of
// global extents and a per-dimension distribution, it computes which
// unit owns a given global coordinate and where that element lives
// within the owning unit's local storage, along with the inverse
// mapping and enumeration of the blocks that make up the pattern.
//
// A Pattern is a plain value: constructing one performs no I/O and its
// query methods never allocate on the hot path. The realized
// distributions form a small closed set, so Pattern dispatches on a
// per-dimension tag rather than through an interface.
package pattern

import "fmt"

// Unit identifies one participant of a team, in [0, NUnits()).
type Unit uint32

// InvalidUnit is returned by queries that have no well-defined owner.
const InvalidUnit Unit = ^Unit(0)

// Dist names a per-dimension distribution kind.
type Dist int

const (
	// None leaves a dimension unsplit: every unit sees the full extent
	// locally along that dimension.
	None Dist = iota
	// Blocked splits a dimension into contiguous chunks of
	// ceil(extent/units) elements, one per unit along that dimension.
	Blocked
	// Tile splits a dimension into fixed-size chunks of TileSize
	// elements, assigned round-robin to units; a unit's tiles are
	// packed contiguously in its local storage.
	Tile
	// BlockCyclic is a separate tag from Tile, but Pattern maps both
	// identically: the same round-robin assignment and the same local
	// layout.
	BlockCyclic
)

func (d Dist) String() string {
	switch d {
	case None:
		return "NONE"
	case Blocked:
		return "BLOCKED"
	case Tile:
		return "TILE"
	case BlockCyclic:
		return "BLOCKCYCLIC"
	default:
		return fmt.Sprintf("Dist(%d)", int(d))
	}
}

// DistSpec is a single dimension's distribution tag. TileSize (k) is
// meaningful only for Tile and BlockCyclic; it must be >= 1 there.
type DistSpec struct {
	Dist     Dist
	TileSize int64
}

// NoneDist returns the DistSpec for an unsplit dimension.
func NoneDist() DistSpec { return DistSpec{Dist: None} }

// BlockedDist returns the DistSpec for a contiguous, evenly (modulo a
// trailing remainder) split dimension.
func BlockedDist() DistSpec { return DistSpec{Dist: Blocked} }

// TileDist returns the DistSpec for a dimension split into contiguous
// tiles of k elements, assigned round-robin and packed contiguously
// per unit.
func TileDist(k int64) DistSpec {
	if k < 1 {
		panic("pattern: TileDist: k must be >= 1")
	}
	return DistSpec{Dist: Tile, TileSize: k}
}

// BlockCyclicDist returns the DistSpec for a dimension split into
// chunks of k elements, assigned round-robin.
func BlockCyclicDist(k int64) DistSpec {
	if k < 1 {
		panic("pattern: BlockCyclicDist: k must be >= 1")
	}
	return DistSpec{Dist: BlockCyclic, TileSize: k}
}

// CyclicDist returns the DistSpec equivalent to BlockCyclicDist(1).
func CyclicDist() DistSpec { return BlockCyclicDist(1) }

// Pattern maps coordinates in a rectangular R-dimensional global index
// space onto (unit, local linear offset) pairs, and back.
type Pattern struct {
	extents []int64
	dist    []DistSpec
	team    []int64 // per-dimension team grid extents, product == NUnits()
}

// New constructs a Pattern from global extents, a per-dimension
// distribution, and a team layout (the R-dimensional factorization of
// the team's units). len(extents), len(dist) and len(team) must all be
// equal (the rank R); every team[d] must be >= 1 and, for dimensions
// with a None distribution, exactly 1.
func New(extents []int64, dist []DistSpec, team []int64) *Pattern {
	r := len(extents)
	if len(dist) != r || len(team) != r {
		panic("pattern: New: extents, dist and team must have equal length")
	}
	for d := 0; d < r; d++ {
		if extents[d] < 0 {
			panic("pattern: New: negative extent")
		}
		if team[d] < 1 {
			panic("pattern: New: team extent must be >= 1")
		}
		if dist[d].Dist == None && team[d] != 1 {
			panic("pattern: New: NONE dimension must have team extent 1")
		}
	}
	p := &Pattern{
		extents: append([]int64(nil), extents...),
		dist:    append([]DistSpec(nil), dist...),
		team:    append([]int64(nil), team...),
	}
	return p
}

// Rank returns the number of dimensions.
func (p *Pattern) Rank() int { return len(p.extents) }

// Extents returns the pattern's global extents.
func (p *Pattern) Extents() []int64 { return append([]int64(nil), p.extents...) }

// Extent returns the global extent of dimension d.
func (p *Pattern) Extent(d int) int64 { return p.extents[d] }

// Size returns the total number of elements in the pattern.
func (p *Pattern) Size() int64 {
	sz := int64(1)
	for _, e := range p.extents {
		sz *= e
	}
	return sz
}

// NUnits returns the number of units addressed by the pattern's team
// layout.
func (p *Pattern) NUnits() int {
	n := int64(1)
	for _, t := range p.team {
		n *= t
	}
	return int(n)
}

// TeamExtents returns the team's per-dimension grid extents.
func (p *Pattern) TeamExtents() []int64 { return append([]int64(nil), p.team...) }

// Dist returns the DistSpec of dimension d.
func (p *Pattern) Dist(d int) DistSpec { return p.dist[d] }

// ravel linearizes per-dimension indices against per-dimension
// extents in row-major (dimension 0 slowest-varying) order.
func ravel(idx, extents []int64) int64 {
	var lin int64
	for d := 0; d < len(idx); d++ {
		lin = lin*extents[d] + idx[d]
	}
	return lin
}

// unravel is the inverse of ravel: it decomposes a linear index
// against per-dimension extents, writing the result into out.
func unravel(lin int64, extents []int64, out []int64) {
	for d := len(extents) - 1; d >= 0; d-- {
		out[d] = lin % extents[d]
		lin /= extents[d]
	}
}

// blockCoord returns, for dimension d and global coordinate i, the
// coordinate of the owning unit along dimension d and the element's
// offset within that unit's block along dimension d (before folding
// in any earlier cycles for Tile/BlockCyclic distributions).
func (p *Pattern) blockCoord(d int, i int64) (unitCoord, inBlock int64) {
	switch p.dist[d].Dist {
	case None:
		return 0, i
	case Blocked:
		chunk := ceilDiv(p.extents[d], p.team[d])
		return i / chunk, i % chunk
	case Tile, BlockCyclic:
		k := p.dist[d].TileSize
		blockIndex := i / k
		return blockIndex % p.team[d], i % k
	default:
		panic("pattern: unknown Dist")
	}
}

// cycle returns the cycle number of global coordinate i along
// dimension d: the number of full round-robin passes over the team
// grid that occurred before the block owning i.
func (p *Pattern) cycle(d int, i int64) int64 {
	switch p.dist[d].Dist {
	case Tile, BlockCyclic:
		k := p.dist[d].TileSize
		return (i / k) / p.team[d]
	default:
		return 0
	}
}

func ceilDiv(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// teamCoord decomposes a unit index into per-dimension team-grid
// coordinates.
func (p *Pattern) teamCoord(u Unit) []int64 {
	coord := make([]int64, len(p.team))
	unravel(int64(u), p.team, coord)
	return coord
}

// UnitAt returns the unit owning the given global coordinate.
func (p *Pattern) UnitAt(coord []int64) Unit {
	r := len(p.extents)
	tc := make([]int64, r)
	for d := 0; d < r; d++ {
		uc, _ := p.blockCoord(d, coord[d])
		tc[d] = uc
	}
	return Unit(ravel(tc, p.team))
}

// LocalAt returns the local linear offset, within the owning unit's
// storage, of the given global coordinate.
func (p *Pattern) LocalAt(coord []int64) int64 {
	u := p.UnitAt(coord)
	r := len(p.extents)
	localCoord := make([]int64, r)
	for d := 0; d < r; d++ {
		_, inBlock := p.blockCoord(d, coord[d])
		switch p.dist[d].Dist {
		case Tile, BlockCyclic:
			localCoord[d] = p.cycle(d, coord[d])*p.dist[d].TileSize + inBlock
		default:
			localCoord[d] = inBlock
		}
	}
	extents := p.LocalExtents(u)
	return ravel(localCoord, extents)
}

// GlobalAt inverts UnitAt/LocalAt: given a unit and a local linear
// offset within that unit's storage, it returns the corresponding
// global coordinate.
func (p *Pattern) GlobalAt(u Unit, local int64) []int64 {
	r := len(p.extents)
	extents := p.LocalExtents(u)
	localCoord := make([]int64, r)
	unravel(local, extents, localCoord)
	tc := p.teamCoord(u)
	coord := make([]int64, r)
	for d := 0; d < r; d++ {
		switch p.dist[d].Dist {
		case None:
			coord[d] = localCoord[d]
		case Blocked:
			chunk := ceilDiv(p.extents[d], p.team[d])
			coord[d] = tc[d]*chunk + localCoord[d]
		case Tile, BlockCyclic:
			k := p.dist[d].TileSize
			cyc := localCoord[d] / k
			inBlock := localCoord[d] % k
			blockIndex := cyc*p.team[d] + tc[d]
			coord[d] = blockIndex*k + inBlock
		}
	}
	return coord
}

// blocksAlong returns the number of blocks along dimension d.
func (p *Pattern) blocksAlong(d int) int64 {
	switch p.dist[d].Dist {
	case None:
		return 1
	case Blocked:
		return p.team[d]
	case Tile, BlockCyclic:
		return ceilDiv(p.extents[d], p.dist[d].TileSize)
	default:
		panic("pattern: unknown Dist")
	}
}

// Blockspec returns the number of blocks per dimension.
func (p *Pattern) Blockspec() []int64 {
	r := len(p.extents)
	spec := make([]int64, r)
	for d := 0; d < r; d++ {
		spec[d] = p.blocksAlong(d)
	}
	return spec
}

// Block describes one block of a pattern in global coordinates.
type Block struct {
	Offsets []int64
	Extents []int64
}

func (p *Pattern) blockExtentAt(d int, blockIndex int64) (offset, extent int64) {
	switch p.dist[d].Dist {
	case None:
		return 0, p.extents[d]
	case Blocked:
		chunk := ceilDiv(p.extents[d], p.team[d])
		offset = blockIndex * chunk
		extent = chunk
		if rem := p.extents[d] - offset; rem < extent {
			extent = rem
		}
		if extent < 0 {
			extent = 0
		}
		return offset, extent
	case Tile, BlockCyclic:
		k := p.dist[d].TileSize
		offset = blockIndex * k
		extent = k
		if rem := p.extents[d] - offset; rem < extent {
			extent = rem
		}
		if extent < 0 {
			extent = 0
		}
		return offset, extent
	default:
		panic("pattern: unknown Dist")
	}
}

// Block returns the bi'th block of the pattern (bi is a linear index
// over Blockspec(), in row-major order), described in global
// coordinates.
func (p *Pattern) Block(bi int64) Block {
	r := len(p.extents)
	spec := p.Blockspec()
	bc := make([]int64, r)
	unravel(bi, spec, bc)
	off := make([]int64, r)
	ext := make([]int64, r)
	for d := 0; d < r; d++ {
		off[d], ext[d] = p.blockExtentAt(d, bc[d])
	}
	return Block{Offsets: off, Extents: ext}
}

// Blocksize returns the per-dimension block extent used for the
// dimension's distribution: the full extent for None, the ceil'd
// chunk size for Blocked, and TileSize for Tile/BlockCyclic. This is
// the *nominal* block size; the trailing block along a dimension may
// be smaller (see Block).
func (p *Pattern) Blocksize(d int) int64 {
	switch p.dist[d].Dist {
	case None:
		return p.extents[d]
	case Blocked:
		return ceilDiv(p.extents[d], p.team[d])
	case Tile, BlockCyclic:
		return p.dist[d].TileSize
	default:
		panic("pattern: unknown Dist")
	}
}

// blocksForUnit returns how many of the total blocks along dimension
// d, distributed round-robin over p.team[d] units, land on the unit
// at team-coordinate tc.
func blocksForUnit(total, units, tc int64) int64 {
	if tc >= units || tc >= total || total == 0 {
		return 0
	}
	return (total-tc-1)/units + 1
}

// LocalExtents returns the local, per-dimension extents of the
// storage owned by unit u. For Blocked/Tile/BlockCyclic dimensions
// with extents not evenly divisible, trailing units (or units past
// the last participating one) receive a smaller or zero extent along
// that dimension.
func (p *Pattern) LocalExtents(u Unit) []int64 {
	r := len(p.extents)
	tc := p.teamCoord(u)
	out := make([]int64, r)
	for d := 0; d < r; d++ {
		switch p.dist[d].Dist {
		case None:
			out[d] = p.extents[d]
		case Blocked:
			chunk := ceilDiv(p.extents[d], p.team[d])
			off := tc[d] * chunk
			extent := chunk
			if rem := p.extents[d] - off; rem < extent {
				extent = rem
			}
			if extent < 0 {
				extent = 0
			}
			out[d] = extent
		case Tile, BlockCyclic:
			k := p.dist[d].TileSize
			total := p.blocksAlong(d)
			count := blocksForUnit(total, p.team[d], tc[d])
			extent := count * k
			if total > 0 {
				lastOwner := (total - 1) % p.team[d]
				lastExtent := p.extents[d] - k*(total-1)
				if tc[d] == lastOwner && lastExtent < k {
					extent -= k - lastExtent
				}
			}
			out[d] = extent
		}
	}
	return out
}

// LocalSize returns the total number of elements owned by unit u.
func (p *Pattern) LocalSize(u Unit) int64 {
	sz := int64(1)
	for _, e := range p.LocalExtents(u) {
		sz *= e
	}
	return sz
}

// LocalBlockspec returns, per dimension, the number of blocks owned
// locally by unit u.
func (p *Pattern) LocalBlockspec(u Unit) []int64 {
	r := len(p.extents)
	tc := p.teamCoord(u)
	out := make([]int64, r)
	for d := 0; d < r; d++ {
		switch p.dist[d].Dist {
		case None, Blocked:
			out[d] = 1
		case Tile, BlockCyclic:
			out[d] = blocksForUnit(p.blocksAlong(d), p.team[d], tc[d])
		}
	}
	return out
}

// intersect returns the overlap of [aLo,aHi) and [bLo,bHi), or an
// empty interval at aLo if they don't overlap.
func intersect(aLo, aHi, bLo, bHi int64) (lo, hi int64) {
	lo, hi = aLo, aHi
	if bLo > lo {
		lo = bLo
	}
	if bHi < hi {
		hi = bHi
	}
	if lo > hi {
		hi = lo
	}
	return lo, hi
}

// LocalRun returns the tightest global-coordinate interval [lo, hi)
// along dimension d that both lies within [rangeOffset,
// rangeOffset+rangeExtent) and is owned by unit u, and reports
// whether u's ownership within that range is a single contiguous run.
// This holds unconditionally for None and Blocked dimensions (each
// unit owns exactly one contiguous chunk), and for Tile/BlockCyclic
// dimensions whenever the range happens to overlap at most one of the
// unit's round-robin blocks; ok is false when it overlaps more than
// one, since u's elements in the range are then scattered and cannot
// be named by a single interval.
func (p *Pattern) LocalRun(u Unit, d int, rangeOffset, rangeExtent int64) (lo, hi int64, ok bool) {
	rangeEnd := rangeOffset + rangeExtent
	if rangeExtent <= 0 {
		return rangeOffset, rangeOffset, true
	}
	tc := p.teamCoord(u)
	switch p.dist[d].Dist {
	case None:
		return rangeOffset, rangeEnd, true
	case Blocked:
		chunk := ceilDiv(p.extents[d], p.team[d])
		uOff := tc[d] * chunk
		uEnd := uOff + chunk
		if uEnd > p.extents[d] {
			uEnd = p.extents[d]
		}
		lo, hi = intersect(rangeOffset, rangeEnd, uOff, uEnd)
		return lo, hi, true
	case Tile, BlockCyclic:
		k := p.dist[d].TileSize
		firstBlock := rangeOffset / k
		lastBlock := (rangeEnd - 1) / k
		var count int64
		for b := firstBlock; b <= lastBlock; b++ {
			if b%p.team[d] != tc[d] {
				continue
			}
			count++
			if count > 1 {
				return 0, 0, false
			}
			bOff := b * k
			bEnd := bOff + k
			if bEnd > p.extents[d] {
				bEnd = p.extents[d]
			}
			lo, hi = intersect(rangeOffset, rangeEnd, bOff, bEnd)
		}
		if count == 0 {
			return rangeOffset, rangeOffset, true
		}
		return lo, hi, true
	default:
		panic("pattern: unknown Dist")
	}
}

// LocalBlock returns the lbi'th local block owned by unit u (lbi is a
// linear index over LocalBlockspec(u), in row-major order), described
// in global coordinates.
func (p *Pattern) LocalBlock(u Unit, lbi int64) Block {
	r := len(p.extents)
	tc := p.teamCoord(u)
	spec := p.LocalBlockspec(u)
	lbc := make([]int64, r)
	unravel(lbi, spec, lbc)
	off := make([]int64, r)
	ext := make([]int64, r)
	for d := 0; d < r; d++ {
		var globalBlockIndex int64
		switch p.dist[d].Dist {
		case None, Blocked:
			globalBlockIndex = tc[d]
		case Tile, BlockCyclic:
			globalBlockIndex = lbc[d]*p.team[d] + tc[d]
		}
		off[d], ext[d] = p.blockExtentAt(d, globalBlockIndex)
	}
	return Block{Offsets: off, Extents: ext}
}
