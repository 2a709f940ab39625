// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/google/btree"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/spaolacci/murmur3"
	"golang.org/x/exp/constraints"

	"github.com/dashteam/dash/ctxsync"
	"github.com/dashteam/dash/internal/metrics"
)

// Local is an in-process Transport that simulates NUnits units as
// disjoint byte arenas within a single Go process. It is the
// reference implementation used by dash's own tests, and is
// sufficient for small single-machine deployments; a networked
// transport would implement the same interface without dash's other
// packages needing to change.
type Local struct {
	mu       sync.Mutex
	nunits   int
	segments *btree.BTree
	nextSeg  uint64

	customTypeSize map[DType]int
	nextDType      DType
	customCombine  map[Op]func(dst, src []byte)
	nextOp         Op

	teams   map[TeamID]*teamState
	nextTeam TeamID

	status       *status.Group
	segmentTasks map[SegmentID]*status.Task
	metrics      metrics.Counters
}

// NewLocal returns a Local transport simulating nunits units, all of
// which belong to RootTeam.
func NewLocal(nunits int) *Local {
	if nunits < 1 {
		panic("transport: NewLocal: nunits must be >= 1")
	}
	l := &Local{
		nunits:         nunits,
		segments:       btree.New(8),
		customTypeSize: make(map[DType]int),
		nextDType:      dtypeCustomBase,
		customCombine:  make(map[Op]func(dst, src []byte)),
		nextOp:         opCustomBase,
		teams:          make(map[TeamID]*teamState),
		nextTeam:       RootTeam + 1,
		status:         (&status.Status{}).Group("dash.transport.local"),
		segmentTasks:   make(map[SegmentID]*status.Task),
	}
	units := make([]Unit, nunits)
	for i := range units {
		units[i] = Unit(i)
	}
	l.teams[RootTeam] = newTeamState(units)
	return l
}

// Metrics returns the counters accumulated by this transport.
func (l *Local) Metrics() metrics.Snapshot { return l.metrics.Snapshot() }

// RecordLocalHit records an access that resolved to a direct local
// memory read or write, bypassing this transport entirely. Callers
// holding a cached local pointer (dash's GlobalRef) call this instead
// of Get/PutBlockingLocal so Metrics still reflects local traffic.
func (l *Local) RecordLocalHit() { l.metrics.IncLocalHit() }

// segment is a btree.Item ordered by SegmentID, holding one byte
// arena per unit.
type segment struct {
	id      SegmentID
	name    string
	perUnit [][]byte
}

func (s *segment) Less(other btree.Item) bool { return s.id < other.(*segment).id }

func (l *Local) segmentByID(id SegmentID) *segment {
	item := l.segments.Get(&segment{id: id})
	if item == nil {
		return nil
	}
	return item.(*segment)
}

// TeamMemallocAligned implements Transport. It is collective: every
// unit of team must call it in matching program order with the same
// bytesPerUnit and name; the first arrival performs the allocation
// and every arrival (including the first) observes the same segment.
func (l *Local) TeamMemallocAligned(ctx context.Context, team TeamID, bytesPerUnit uint64, name string) (Pointer, error) {
	ts, err := l.teamState(team)
	if err != nil {
		return PointerNull, err
	}
	seg, err := ts.collectiveAlloc(ctx, l, bytesPerUnit, name)
	if err != nil {
		return PointerNull, err
	}
	l.reportSegment(seg, bytesPerUnit)
	log.Printf("dash: allocated segment %d (%q, %d bytes/unit)", seg.id, name, bytesPerUnit)
	me := UnitFromContext(ctx)
	return Pointer{Segment: seg.id, Unit: me, Offset: 0}, nil
}

// reportSegment posts one status.Task per live segment, so a program
// under status.Status can see which distributed containers currently
// hold memory and how much; the task is marked done when the segment
// is freed. Every arrival of collectiveAlloc's rendezvous calls this
// with the same *segment, so it's idempotent past the first call.
func (l *Local) reportSegment(seg *segment, bytesPerUnit uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.segmentTasks[seg.id]; ok {
		return
	}
	task := l.status.Startf("segment %d (%s)", seg.id, seg.name)
	task.Printf("%d units x %d bytes", len(seg.perUnit), bytesPerUnit)
	l.segmentTasks[seg.id] = task
}

// newSegmentID derives a stable-looking segment id by hashing the
// allocation's debug name, seeded with a monotonic counter so that
// repeated allocations of the same name hash differently. The 64-bit
// hash is not checked against the live segment table.
func (l *Local) newSegmentID(name string) SegmentID {
	l.nextSeg++
	h := murmur3.Sum64WithSeed([]byte(name), uint32(l.nextSeg))
	return SegmentID(h)
}

// TeamFree implements Transport. Like TeamMemallocAligned, it is
// collective; concurrent callers freeing the same segment race
// harmlessly, so a second, third, ... caller observing the segment
// already gone is not an error.
func (l *Local) TeamFree(ctx context.Context, team TeamID, gptr Pointer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.segments.Delete(&segment{id: gptr.Segment})
	if task, ok := l.segmentTasks[gptr.Segment]; ok {
		task.Done()
		delete(l.segmentTasks, gptr.Segment)
	}
	return nil
}

// PutBlockingLocal implements Transport.
func (l *Local) PutBlockingLocal(ctx context.Context, dst Pointer, src []byte) error {
	l.metrics.IncPut()
	seg := l.lockedSegment(dst.Segment)
	if seg == nil {
		return errors.E(errors.Invalid, fmt.Sprintf("transport: put: unknown segment %d", dst.Segment))
	}
	if int(dst.Unit) >= len(seg.perUnit) {
		return errors.E(errors.Invalid, "transport: put: unit out of range")
	}
	arena := seg.perUnit[dst.Unit]
	if dst.Offset+uint64(len(src)) > uint64(len(arena)) {
		return errors.E(errors.Invalid, "transport: put: write past end of segment")
	}
	copy(arena[dst.Offset:], src)
	return nil
}

// GetBlocking implements Transport.
func (l *Local) GetBlocking(ctx context.Context, dst []byte, src Pointer) error {
	l.metrics.IncGet()
	seg := l.lockedSegment(src.Segment)
	if seg == nil {
		return errors.E(errors.Invalid, fmt.Sprintf("transport: get: unknown segment %d", src.Segment))
	}
	if int(src.Unit) >= len(seg.perUnit) {
		return errors.E(errors.Invalid, "transport: get: unit out of range")
	}
	arena := seg.perUnit[src.Unit]
	if src.Offset+uint64(len(dst)) > uint64(len(arena)) {
		return errors.E(errors.Invalid, "transport: get: read past end of segment")
	}
	copy(dst, arena[src.Offset:])
	return nil
}

// LocalMemory implements Transport.
func (l *Local) LocalMemory(ctx context.Context, p Pointer) ([]byte, error) {
	seg := l.lockedSegment(p.Segment)
	if seg == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("transport: localmemory: unknown segment %d", p.Segment))
	}
	if int(p.Unit) >= len(seg.perUnit) {
		return nil, errors.E(errors.Invalid, "transport: localmemory: unit out of range")
	}
	arena := seg.perUnit[p.Unit]
	if p.Offset > uint64(len(arena)) {
		return nil, errors.E(errors.Invalid, "transport: localmemory: offset past end of segment")
	}
	return arena[p.Offset:], nil
}

func (l *Local) lockedSegment(id SegmentID) *segment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.segmentByID(id)
}

// localHandle is a Handle for an operation that has already completed
// by the time it is constructed: Local performs puts and gets
// synchronously, so there is nothing left to wait for. It still
// implements the full Handle contract so callers cannot tell Local
// apart from a transport with real asynchrony.
type localHandle struct{ err error }

func (h localHandle) TestLocal() (bool, error) { return true, h.err }
func (h localHandle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return h.err
	}
}

// Put implements Transport.
func (l *Local) Put(ctx context.Context, dst Pointer, src []byte) (Handle, error) {
	l.metrics.IncAsyncPut()
	err := l.PutBlockingLocal(ctx, dst, src)
	return localHandle{err: err}, nil
}

// GetHandle implements Transport.
func (l *Local) GetHandle(ctx context.Context, dst []byte, src Pointer) (Handle, error) {
	l.metrics.IncAsyncGet()
	err := l.GetBlocking(ctx, dst, src)
	return localHandle{err: err}, nil
}

// Flush implements Transport. Local performs every operation
// synchronously, so by the time Flush is called there is nothing
// outstanding; it exists to preserve the interface contract for
// callers and to record the call for diagnostics.
func (l *Local) Flush(ctx context.Context, p Pointer) error {
	l.metrics.IncFlush()
	return nil
}

// Barrier implements Transport.
func (l *Local) Barrier(ctx context.Context, team TeamID) error {
	l.metrics.IncBarrier()
	ts, err := l.teamState(team)
	if err != nil {
		return err
	}
	return ts.barrier(ctx)
}

// Allreduce implements Transport.
func (l *Local) Allreduce(ctx context.Context, team TeamID, send, recv []byte, count int, dtype DType, op Op) error {
	l.metrics.IncAllreduce()
	ts, err := l.teamState(team)
	if err != nil {
		return err
	}
	combine, err := l.combiner(dtype, op, count)
	if err != nil {
		return err
	}
	return ts.allreduce(ctx, send, recv, combine)
}

func (l *Local) combiner(dtype DType, op Op, count int) (func(dst, src []byte), error) {
	if op >= opCustomBase {
		l.mu.Lock()
		fn, ok := l.customCombine[op]
		l.mu.Unlock()
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("transport: unknown custom op %d", op))
		}
		return fn, nil
	}
	if dtype >= dtypeCustomBase {
		return nil, errors.E(errors.Invalid, "transport: native op cannot combine a custom dtype")
	}
	return nativeCombiner(dtype, op, count)
}

// TypeCreateCustom implements Transport.
func (l *Local) TypeCreateCustom(size int) (DType, error) {
	if size <= 0 {
		return 0, errors.E(errors.Invalid, "transport: custom type size must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextDType
	l.nextDType++
	l.customTypeSize[id] = size
	return id, nil
}

// TypeDestroy implements Transport.
func (l *Local) TypeDestroy(dtype DType) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.customTypeSize[dtype]; !ok {
		return errors.E(errors.NotExist, "transport: unknown custom dtype")
	}
	delete(l.customTypeSize, dtype)
	return nil
}

// OpCreate implements Transport.
func (l *Local) OpCreate(combine func(dst, src []byte)) (Op, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextOp
	l.nextOp++
	l.customCombine[id] = combine
	return id, nil
}

// OpDestroy implements Transport.
func (l *Local) OpDestroy(op Op) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.customCombine[op]; !ok {
		return errors.E(errors.NotExist, "transport: unknown custom op")
	}
	delete(l.customCombine, op)
	return nil
}

// TeamSize implements Transport.
func (l *Local) TeamSize(team TeamID) int {
	ts, err := l.teamState(team)
	if err != nil {
		return 0
	}
	return len(ts.units)
}

// TeamMyUnit implements Transport.
func (l *Local) TeamMyUnit(ctx context.Context, team TeamID) Unit {
	return UnitFromContext(ctx)
}

// SplitTeam creates a new team consisting of the given subset of the
// root team's units, mirroring DART's team splitting; the new team is
// not automatically a subset in any topological sense, just a named
// collective scope.
func (l *Local) SplitTeam(units []Unit) TeamID {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextTeam
	l.nextTeam++
	l.teams[id] = newTeamState(append([]Unit(nil), units...))
	return id
}

func (l *Local) teamState(team TeamID) (*teamState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts, ok := l.teams[team]
	if !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("transport: unknown team %d", team))
	}
	return ts, nil
}

// teamState holds the collective synchronization state (barrier,
// all-reduce and collective allocation) for one team. All three
// operations share the same rendezvous shape: the first unit to
// arrive in an epoch does the epoch's shared work (start an
// accumulator, allocate a segment), every arrival waits on cond until
// the whole team has arrived, and the last arrival advances the epoch
// counter and broadcasts. Waiters re-check the epoch after each wake,
// since Broadcast wakes every Cond waiter regardless of which
// operation queued it.
//
// barrier and allreduce share epoch and arrived: an epoch is just an
// arrival generation, agnostic to which of the two produced it, and a
// team never mixes them within one epoch since every unit issues the
// same collective call at the same program point. Only allreduce's
// generations carry a payload (results, keyed by the epoch that
// produced it), so this sharing never aliases one collective's data
// with the other's.
type teamState struct {
	units []Unit

	mu   sync.Mutex
	cond *ctxsync.Cond

	epoch   int
	arrived int
	buf     []byte

	// results holds each completed allreduce's output, keyed by the
	// epoch that produced it, and left in place until every one of its
	// arrivals has copied it out. buf is reused (reassigned, never
	// mutated in place after completion) as soon as the next epoch's
	// first arrival starts accumulating, so a waiter woken late for an
	// old epoch must not read buf itself: results keeps that epoch's
	// value stable regardless of how far epoch has since advanced.
	results  map[int][]byte
	draining map[int]int

	allocEpoch   int
	allocArrived int
	allocResult  *segment
}

func newTeamState(units []Unit) *teamState {
	ts := &teamState{
		units:    units,
		results:  make(map[int][]byte),
		draining: make(map[int]int),
	}
	ts.cond = ctxsync.NewCond(&ts.mu)
	return ts
}

// collectiveAlloc rendezvouses a team-wide allocation: the first
// arrival creates the segment (under l's lock, since the segment
// table is shared across teams), and every arrival receives a
// pointer to that same segment once the whole team has arrived.
func (ts *teamState) collectiveAlloc(ctx context.Context, l *Local, bytesPerUnit uint64, name string) (*segment, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	myEpoch := ts.allocEpoch
	if ts.allocArrived == 0 {
		l.mu.Lock()
		id := l.newSegmentID(name)
		seg := &segment{id: id, name: name, perUnit: make([][]byte, len(ts.units))}
		for i := range seg.perUnit {
			seg.perUnit[i] = make([]byte, bytesPerUnit)
		}
		l.segments.ReplaceOrInsert(seg)
		l.mu.Unlock()
		ts.allocResult = seg
	}
	// Capture this epoch's segment now: once the epoch completes, the
	// next epoch's first arrival may replace allocResult before a
	// waiter of this epoch wakes up.
	mySeg := ts.allocResult
	ts.allocArrived++
	if ts.allocArrived == len(ts.units) {
		ts.allocArrived = 0
		ts.allocEpoch++
		ts.cond.Broadcast()
		return mySeg, nil
	}
	for ts.allocEpoch == myEpoch {
		if err := ts.cond.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return mySeg, nil
}

func (ts *teamState) barrier(ctx context.Context) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	myEpoch := ts.epoch
	ts.arrived++
	if ts.arrived == len(ts.units) {
		ts.arrived = 0
		ts.epoch++
		ts.cond.Broadcast()
		return nil
	}
	for ts.epoch == myEpoch {
		if err := ts.cond.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// allreduce combines send across the team and returns the combined
// value to every unit in recv. epoch's shared buf accumulates the
// running combination while arrivals are still trickling in, but is
// reassigned (not mutated) by the very next epoch's first arrival as
// soon as this epoch closes out, and Go's Cond wakeup order is not
// FIFO — a fresh caller can relock and start the next epoch before an
// already-woken waiter from this one gets back in. So the completing
// arrival snapshots the result into results[myEpoch] rather than
// leaving stragglers to re-read buf, and that entry survives until
// every one of this epoch's arrivals (winner included) has drained
// it, however many further epochs run in the meantime.
func (ts *teamState) allreduce(ctx context.Context, send, recv []byte, combine func(dst, src []byte)) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	myEpoch := ts.epoch
	if ts.arrived == 0 {
		ts.buf = append([]byte(nil), send...)
	} else {
		combine(ts.buf, send)
	}
	ts.arrived++
	if ts.arrived == len(ts.units) {
		ts.results[myEpoch] = ts.buf
		ts.draining[myEpoch] = len(ts.units)
		ts.buf = nil
		ts.arrived = 0
		ts.epoch++
		ts.cond.Broadcast()
	} else {
		for ts.epoch == myEpoch {
			if err := ts.cond.Wait(ctx); err != nil {
				return err
			}
		}
	}
	copy(recv, ts.results[myEpoch])
	ts.draining[myEpoch]--
	if ts.draining[myEpoch] == 0 {
		delete(ts.results, myEpoch)
		delete(ts.draining, myEpoch)
	}
	return nil
}

// nativeCombiner returns a byte-level combine function for one of the
// native DType/Op pairs.
func nativeCombiner(dtype DType, op Op, count int) (func(dst, src []byte), error) {
	switch dtype {
	case DTypeInt32:
		return numericCombiner[int32](op, count)
	case DTypeInt64:
		return numericCombiner[int64](op, count)
	case DTypeUint32:
		return numericCombiner[uint32](op, count)
	case DTypeUint64:
		return numericCombiner[uint64](op, count)
	case DTypeFloat32:
		return numericCombiner[float32](op, count)
	case DTypeFloat64:
		return numericCombiner[float64](op, count)
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("transport: unsupported native dtype %d", dtype))
	}
}

func numericCombiner[T constraints.Integer | constraints.Float](op Op, count int) (func(dst, src []byte), error) {
	switch op {
	case OpSum, OpProd, OpMin, OpMax:
		return func(dst, src []byte) { combineArith[T](dst, src, op, count) }, nil
	case OpLAnd, OpLOr, OpBAnd, OpBOr, OpBXor:
		return func(dst, src []byte) { combineBitwise[T](dst, src, op, count) }, nil
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("transport: unsupported native op %d", op))
	}
}

func asSlice[T any](b []byte, count int) []T {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), count)
}

func combineArith[T constraints.Integer | constraints.Float](dst, src []byte, op Op, count int) {
	d, s := asSlice[T](dst, count), asSlice[T](src, count)
	for i := range d {
		switch op {
		case OpSum:
			d[i] += s[i]
		case OpProd:
			d[i] *= s[i]
		case OpMin:
			if s[i] < d[i] {
				d[i] = s[i]
			}
		case OpMax:
			if s[i] > d[i] {
				d[i] = s[i]
			}
		}
	}
}

// combineBitwise applies a logical or bitwise op element-wise by
// switching on the concrete slice type and handing integer slices to
// bitwiseInts. numericCombiner does not reject these ops for float
// dtypes; for float32 and float64 no case matches, and dst is left
// unchanged.
func combineBitwise[T constraints.Integer | constraints.Float](dst, src []byte, op Op, count int) {
	di := any(asSlice[T](dst, count))
	si := any(asSlice[T](src, count))
	switch d := di.(type) {
	case []int32:
		s := si.([]int32)
		bitwiseInts(d, s, op)
	case []int64:
		s := si.([]int64)
		bitwiseInts(d, s, op)
	case []uint32:
		s := si.([]uint32)
		bitwiseInts(d, s, op)
	case []uint64:
		s := si.([]uint64)
		bitwiseInts(d, s, op)
	}
}

func bitwiseInts[T constraints.Integer](d, s []T, op Op) {
	for i := range d {
		switch op {
		case OpLAnd:
			if d[i] != 0 && s[i] != 0 {
				d[i] = 1
			} else {
				d[i] = 0
			}
		case OpLOr:
			if d[i] != 0 || s[i] != 0 {
				d[i] = 1
			} else {
				d[i] = 0
			}
		case OpBAnd:
			d[i] &= s[i]
		case OpBOr:
			d[i] |= s[i]
		case OpBXor:
			d[i] ^= s[i]
		}
	}
}
