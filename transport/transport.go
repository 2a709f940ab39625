// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package transport defines the one-sided communication interface
// consumed by the rest of dash: put/get, handle-based asynchronous
// variants, flush, barrier, all-reduce, and team-scoped memory
// allocation. The interface is deliberately minimal and is meant to be
// backed by a real network transport in production; this package also
// ships Local, an in-process implementation (units are simulated as
// goroutines sharing one address space) used for tests and small,
// single-machine deployments.
package transport

import "context"

// Unit identifies one participant of a team, in [0, TeamSize(team)).
type Unit uint32

// InvalidUnit is the sentinel for "no unit".
const InvalidUnit Unit = ^Unit(0)

// SegmentID names a symmetric, team-wide memory allocation: every unit
// of the team that created it contributes equal local storage,
// addressable globally by (SegmentID, Unit, offset).
type SegmentID uint64

// Pointer is the global-memory address triple named in the data
// model: an allocation, the unit owning the referenced byte range
// within that allocation, and a byte offset within that unit's local
// portion.
type Pointer struct {
	Segment SegmentID
	Unit    Unit
	Offset  uint64
}

// PointerNull is the distinguished null pointer value (DASH's
// DART_GPTR_NULL).
var PointerNull = Pointer{Segment: 0, Unit: InvalidUnit, Offset: ^uint64(0)}

// IsNull reports whether p is the null pointer.
func (p Pointer) IsNull() bool { return p == PointerNull }

// WithUnit returns a copy of p with its unit field replaced (dart_gptr_setunit).
func (p Pointer) WithUnit(u Unit) Pointer { p.Unit = u; return p }

// WithOffset returns a copy of p with its offset field replaced (dart_gptr_setaddr).
func (p Pointer) WithOffset(off uint64) Pointer { p.Offset = off; return p }

// IncOffset returns a copy of p with its offset advanced by delta
// bytes (dart_gptr_incaddr). delta may be negative.
func (p Pointer) IncOffset(delta int64) Pointer {
	p.Offset = uint64(int64(p.Offset) + delta)
	return p
}

// Addr returns p's byte offset (dart_gptr_getaddr).
func (p Pointer) Addr() uint64 { return p.Offset }

// TeamID is an opaque handle naming a team, analogous to DART's
// dart_team_t. The root team is always TeamID(0).
type TeamID uint64

// RootTeam is the team containing every unit of the transport.
const RootTeam TeamID = 0

// DType names a primitive element type recognized natively by
// Allreduce, or a value returned by TypeCreateCustom for a
// user-registered type.
type DType int

const (
	DTypeInt32 DType = iota
	DTypeInt64
	DTypeUint32
	DTypeUint64
	DTypeFloat32
	DTypeFloat64
	DTypeByte
	dtypeCustomBase
)

// Op names a reduction operator recognized natively by Allreduce, or
// a value returned by OpCreate for a user-registered combine function.
type Op int

const (
	OpSum Op = iota
	OpProd
	OpMin
	OpMax
	OpLAnd
	OpLOr
	OpBAnd
	OpBOr
	OpBXor
	opCustomBase
)

// Handle represents a pending asynchronous operation: a put or get
// issued through Put/GetHandle.
type Handle interface {
	// TestLocal reports whether the operation has completed, without
	// blocking.
	TestLocal() (bool, error)
	// Wait blocks until the operation completes or ctx is done.
	Wait(ctx context.Context) error
}

// Transport is the one-sided communication substrate consumed by
// dash. Implementations are expected to be safe for concurrent use by
// multiple goroutines representing the same unit only when the
// caller's team was constructed with concurrent use in mind; see
// dash.Team.Concurrent.
type Transport interface {
	// PutBlockingLocal copies src into the memory named by dst. It
	// returns once src may be reused; remote visibility is guaranteed
	// only after Flush(dst) or a Barrier on dst's team.
	PutBlockingLocal(ctx context.Context, dst Pointer, src []byte) error
	// GetBlocking copies the memory named by src into dst, blocking
	// until the transfer completes.
	GetBlocking(ctx context.Context, dst []byte, src Pointer) error
	// Put is the non-blocking form of PutBlockingLocal: it returns a
	// Handle that completes once src may be reused.
	Put(ctx context.Context, dst Pointer, src []byte) (Handle, error)
	// GetHandle is the non-blocking form of GetBlocking: it returns a
	// Handle that completes once dst holds the fetched value.
	GetHandle(ctx context.Context, dst []byte, src Pointer) (Handle, error)
	// Flush drains all outstanding Put/PutBlockingLocal operations
	// addressed to p's (segment, unit) and establishes remote
	// visibility of their writes.
	Flush(ctx context.Context, p Pointer) error

	// LocalMemory returns the raw storage backing p's segment on p's
	// own unit, starting at p's offset. It is only meaningful when
	// p.Unit is the calling unit's own id (dart_gptr_to_local); callers
	// on any other unit must use GetBlocking/Put instead. The returned
	// slice aliases the transport's internal storage and is valid only
	// for the segment's lifetime.
	LocalMemory(ctx context.Context, p Pointer) ([]byte, error)

	// Barrier blocks until every unit of team has called Barrier for
	// the same collective step. It also establishes visibility of all
	// prior writes on team, as if Flush had been called for every
	// outstanding operation.
	Barrier(ctx context.Context, team TeamID) error
	// Allreduce combines send across every unit of team using op
	// (applied element-wise over count elements of type dtype) and
	// writes the combined result into recv on every unit.
	Allreduce(ctx context.Context, team TeamID, send, recv []byte, count int, dtype DType, op Op) error

	// TypeCreateCustom registers a fixed-size element type not among
	// the native DType values, for use with a custom Op.
	TypeCreateCustom(size int) (DType, error)
	// TypeDestroy releases a type created by TypeCreateCustom.
	TypeDestroy(dtype DType) error
	// OpCreate registers a combine function operating on raw,
	// count*size()-byte payloads, for use with Allreduce when no
	// native Op applies.
	OpCreate(combine func(dst, src []byte)) (Op, error)
	// OpDestroy releases an Op created by OpCreate.
	OpDestroy(op Op) error

	// TeamMemallocAligned collectively allocates a symmetric segment
	// of bytes-per-unit local storage, named for diagnostics by name,
	// and returns a Pointer naming the calling unit's own portion.
	TeamMemallocAligned(ctx context.Context, team TeamID, bytesPerUnit uint64, name string) (Pointer, error)
	// TeamFree collectively releases a segment allocated by
	// TeamMemallocAligned.
	TeamFree(ctx context.Context, team TeamID, gptr Pointer) error

	// TeamSize returns the number of units in team.
	TeamSize(team TeamID) int
	// TeamMyUnit returns the calling goroutine's unit within team, as
	// established by WithUnit on ctx.
	TeamMyUnit(ctx context.Context, team TeamID) Unit
}

// Splitter is implemented by transports that support constructing new
// teams at runtime from a subset of an existing team's units,
// mirroring DART's dart_team_create. Local implements it; a minimal
// transport need not.
type Splitter interface {
	SplitTeam(units []Unit) TeamID
}

type unitCtxKey struct{}

// WithUnit returns a context carrying the identity of the unit
// issuing calls through it. dash's SPMD model is one OS process per
// unit in production; Local instead simulates units as goroutines
// within one process, so unit identity travels on the context rather
// than being process-global.
func WithUnit(ctx context.Context, u Unit) context.Context {
	return context.WithValue(ctx, unitCtxKey{}, u)
}

// UnitFromContext returns the unit installed by WithUnit, or
// InvalidUnit if none was installed.
func UnitFromContext(ctx context.Context) Unit {
	u, ok := ctx.Value(unitCtxKey{}).(Unit)
	if !ok {
		return InvalidUnit
	}
	return u
}
