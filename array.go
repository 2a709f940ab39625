// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"

	"github.com/dashteam/dash/pattern"
)

// Array is a one-dimensional distributed container: N elements of T
// spread across a team according to a distribution, block-distributed
// by default. Construction is collective.
type Array[T Elem] struct {
	*container[T]
}

// ArrayOption configures NewArray.
type ArrayOption func(*arrayConfig)

type arrayConfig struct {
	dist pattern.DistSpec
	name string
}

// WithArrayDist overrides the array's default BLOCKED distribution.
func WithArrayDist(d pattern.DistSpec) ArrayOption {
	return func(c *arrayConfig) { c.dist = d }
}

// WithArrayName sets the debug name used for the array's segment.
func WithArrayName(name string) ArrayOption {
	return func(c *arrayConfig) { c.name = name }
}

// NewArray collectively allocates a distributed array of n elements
// over team, defaulting to a BLOCKED distribution.
func NewArray[T Elem](ctx context.Context, team *Team, n int64, opts ...ArrayOption) (*Array[T], error) {
	cfg := arrayConfig{dist: pattern.BlockedDist(), name: "dash.Array"}
	for _, opt := range opts {
		opt(&cfg)
	}
	pat := pattern.New([]int64{n}, []pattern.DistSpec{cfg.dist}, []int64{int64(team.Size())})
	c, err := newContainer[T](ctx, team, pat, cfg.name)
	if err != nil {
		return nil, err
	}
	return &Array[T]{container: c}, nil
}

// At returns a GlobalRef to element i.
func (a *Array[T]) At(ctx context.Context, i int64) GlobalRef[T] {
	return a.refFor(ctx, []int64{i})
}

// AsyncAt returns a GlobalAsyncRef to element i.
func (a *Array[T]) AsyncAt(ctx context.Context, i int64) GlobalAsyncRef[T] {
	return a.asyncRefFor(ctx, []int64{i})
}

// View returns the identity view over the whole array.
func (a *Array[T]) View() *View[T] { return NewView[T](a.container) }

// Begin returns an iterator over the array's elements in canonical
// (index) order.
func (a *Array[T]) Begin(ctx context.Context) *ViewIterator[T] { return a.View().Begin(ctx) }
