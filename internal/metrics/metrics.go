// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package metrics counts one-sided transport operations so that
// callers can observe how much communication a program generates.
// Counters are a fixed, named set (puts, gets, async puts, async gets,
// flushes, barriers, all-reduces and local hits) rather than an open
// string-keyed collection, since the
// set of transport operations is closed.
package metrics

import (
	"fmt"
	"sync/atomic"
)

// Counters tracks the number of one-sided operations issued through a
// single Transport (or a single team's view of one). The zero value is
// usable.
type Counters struct {
	puts       int64
	gets       int64
	asyncPuts  int64
	asyncGets  int64
	flushes    int64
	barriers   int64
	allreduces int64
	localHits  int64
}

// IncPut records a blocking put.
func (c *Counters) IncPut() { atomic.AddInt64(&c.puts, 1) }

// IncGet records a blocking get.
func (c *Counters) IncGet() { atomic.AddInt64(&c.gets, 1) }

// IncAsyncPut records a non-blocking put.
func (c *Counters) IncAsyncPut() { atomic.AddInt64(&c.asyncPuts, 1) }

// IncAsyncGet records a non-blocking get.
func (c *Counters) IncAsyncGet() { atomic.AddInt64(&c.asyncGets, 1) }

// IncFlush records a flush.
func (c *Counters) IncFlush() { atomic.AddInt64(&c.flushes, 1) }

// IncBarrier records a barrier.
func (c *Counters) IncBarrier() { atomic.AddInt64(&c.barriers, 1) }

// IncAllreduce records an all-reduce.
func (c *Counters) IncAllreduce() { atomic.AddInt64(&c.allreduces, 1) }

// IncLocalHit records an operation that resolved to a local memory
// access rather than a transport call.
func (c *Counters) IncLocalHit() { atomic.AddInt64(&c.localHits, 1) }

// Snapshot is a point-in-time copy of a Counters' values.
type Snapshot struct {
	Puts       int64
	Gets       int64
	AsyncPuts  int64
	AsyncGets  int64
	Flushes    int64
	Barriers   int64
	Allreduces int64
	LocalHits  int64
}

// Snapshot returns the current values of every counter.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Puts:       atomic.LoadInt64(&c.puts),
		Gets:       atomic.LoadInt64(&c.gets),
		AsyncPuts:  atomic.LoadInt64(&c.asyncPuts),
		AsyncGets:  atomic.LoadInt64(&c.asyncGets),
		Flushes:    atomic.LoadInt64(&c.flushes),
		Barriers:   atomic.LoadInt64(&c.barriers),
		Allreduces: atomic.LoadInt64(&c.allreduces),
		LocalHits:  atomic.LoadInt64(&c.localHits),
	}
}

// String renders the snapshot compactly for logs.
func (s Snapshot) String() string {
	return fmt.Sprintf(
		"put:%d get:%d asyncput:%d asyncget:%d flush:%d barrier:%d allreduce:%d localhit:%d",
		s.Puts, s.Gets, s.AsyncPuts, s.AsyncGets, s.Flushes, s.Barriers, s.Allreduces, s.LocalHits,
	)
}
