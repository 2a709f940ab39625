// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"

	"github.com/dashteam/dash/internal/metrics"
	"github.com/dashteam/dash/stats"
	"github.com/dashteam/dash/transport"
)

// Team is an immutable ordered set of units sharing a transport, with
// a collective barrier. Teams nest: a child team's lifetime must not
// outlive its parent's.
type Team struct {
	tr     transport.Transport
	id     transport.TeamID
	units  []transport.Unit
	parent *Team
	// concurrent, when true, permits multiple goroutines on this
	// process to issue transport calls on behalf of this team's local
	// unit concurrently. The transport implementation must be
	// reentrant for this to be safe; Local is.
	concurrent bool

	// calls counts collective calls issued through this specific Team
	// value by name (barrier, split, ...), separately from the
	// underlying transport's fixed operation counters, so a program
	// with several teams (root plus splits) can see which team is
	// driving traffic.
	calls *stats.Map
}

// NewRootTeam wraps tr's root team (every unit tr knows about) as a
// Team. This is the entry point for a program using a given
// transport.
func NewRootTeam(tr transport.Transport) *Team {
	n := tr.TeamSize(transport.RootTeam)
	units := make([]transport.Unit, n)
	for i := range units {
		units[i] = transport.Unit(i)
	}
	return &Team{tr: tr, id: transport.RootTeam, units: units, calls: stats.NewMap()}
}

// ID returns the team's transport-level identifier.
func (t *Team) ID() transport.TeamID { return t.id }

// Size returns the number of units in the team.
func (t *Team) Size() int { return len(t.units) }

// Units returns the team's ordered unit list.
func (t *Team) Units() []transport.Unit { return append([]transport.Unit(nil), t.units...) }

// MyID returns the calling goroutine's unit within the team, as
// established by transport.WithUnit on ctx.
func (t *Team) MyID(ctx context.Context) transport.Unit { return t.tr.TeamMyUnit(ctx, t.id) }

// Parent returns the team this team was split from, or nil for a root
// team.
func (t *Team) Parent() *Team { return t.parent }

// Concurrent reports whether this team permits concurrent transport
// use from multiple goroutines representing the same unit.
func (t *Team) Concurrent() bool { return t.concurrent }

// WithConcurrent returns a copy of t with its concurrency flag set.
// It does not mutate t; teams are otherwise immutable.
func (t *Team) WithConcurrent(v bool) *Team {
	t2 := *t
	t2.concurrent = v
	return &t2
}

// Split constructs a child team from a subset of t's units. The
// transport must implement transport.Splitter.
func (t *Team) Split(units []transport.Unit) (*Team, error) {
	sp, ok := t.tr.(transport.Splitter)
	if !ok {
		return nil, errors.E(errors.Invalid, "dash: transport does not support team splitting")
	}
	t.calls.Int("split").Add(1)
	id := sp.SplitTeam(units)
	return &Team{
		tr:     t.tr,
		id:     id,
		units:  append([]transport.Unit(nil), units...),
		parent: t,
		calls:  stats.NewMap(),
	}, nil
}

// Barrier blocks until every unit of the team has called Barrier for
// the same collective step, and establishes visibility of all prior
// writes on the team as if Flush had been called for every
// outstanding operation.
func (t *Team) Barrier(ctx context.Context) error {
	t.calls.Int("barrier").Add(1)
	return fatalTransport(t.tr.Barrier(ctx, t.id))
}

// CallCounts returns a snapshot of collective calls issued through
// this Team value, keyed by call name.
func (t *Team) CallCounts() stats.Values {
	vals := make(stats.Values)
	t.calls.AddAll(vals)
	return vals
}

// metricsProvider is implemented by transports (Local, notably) that
// track operation counters; Team.Metrics degrades gracefully when the
// underlying transport does not.
type metricsProvider interface {
	Metrics() metrics.Snapshot
}

// Metrics returns a snapshot of the team's transport-level operation
// counters, or the zero Snapshot if the transport does not track
// them.
func (t *Team) Metrics() metrics.Snapshot {
	if mp, ok := t.tr.(metricsProvider); ok {
		return mp.Metrics()
	}
	return metrics.Snapshot{}
}

func (t *Team) String() string {
	return fmt.Sprintf("team(id=%d, size=%d)", t.id, len(t.units))
}
