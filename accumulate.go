// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"context"

	"github.com/dashteam/dash/transport"
)

// reducePayload is the custom all-reduce payload used whenever a
// reduction cannot go through a native transport op/dtype: a value
// paired with a flag saying whether the contributing unit had any
// local elements at all, so units with an empty local range don't
// need to supply an identity element.
type reducePayload[T Elem] struct {
	Value T
	Valid bool
}

func mergePayload[T Elem](a, b reducePayload[T], binop func(x, y T) T) reducePayload[T] {
	switch {
	case a.Valid && b.Valid:
		return reducePayload[T]{Value: binop(a.Value, b.Value), Valid: true}
	case a.Valid:
		return a
	case b.Valid:
		return b
	default:
		return reducePayload[T]{}
	}
}

// identityFor returns the identity element for a native op that has
// one; Sum and Product are the only recognized native ops with a
// generically-derivable identity (0 and 1 respectively), so they are
// the only ones given a true native fast path below. Min and Max have
// no generic identity for an arbitrary Elem and always go through the
// (value, valid) protocol instead.
func identityFor[T Elem](op transport.Op) T {
	if op == transport.OpProd {
		return T(1)
	}
	var zero T
	return zero
}

// Accumulate performs the two-phase collective reduction described by
// the container surface: every unit folds its local elements of v (in
// canonical order, via binop, starting from the first local element),
// the per-unit results are all-reduced with binop, and binop(init,
// combined) is returned to every unit. binop must be associative and
// commutative.
func Accumulate[T Elem](ctx context.Context, v *View[T], init T, binop func(a, b T) T) (T, error) {
	local := v.Local(ctx)
	idx := local.Index()

	var (
		localVal T
		hasLocal bool
	)
	for i := range idx {
		ref, err := local.At(ctx, int64(i))
		if err != nil {
			return init, err
		}
		val, err := ref.Get(ctx)
		if err != nil {
			return init, err
		}
		if i == 0 {
			localVal, hasLocal = val, true
		} else {
			localVal = binop(localVal, val)
		}
	}

	team := v.origin.team
	if op, ok := recognizedOp[T](binop); ok && (op == transport.OpSum || op == transport.OpProd) {
		if dtype, ok := dtypeOf[T](); ok {
			if !hasLocal {
				localVal = identityFor[T](op)
			}
			send := encode(localVal)
			recv := make([]byte, len(send))
			if err := team.tr.Allreduce(ctx, team.id, send, recv, 1, dtype, op); err != nil {
				return init, fatalTransport(err)
			}
			return binop(init, decode[T](recv)), nil
		}
	}
	return accumulateCustom(ctx, team, init, binop, localVal, hasLocal)
}

// accumulateCustom runs the general (value, valid)-payload reduction,
// used for any binop/type combination without a native fast path.
func accumulateCustom[T Elem](ctx context.Context, team *Team, init T, binop func(a, b T) T, localVal T, hasLocal bool) (T, error) {
	op, err := team.tr.OpCreate(func(dst, src []byte) {
		merged := mergePayload(decodeRaw[reducePayload[T]](dst), decodeRaw[reducePayload[T]](src), binop)
		copy(dst, encodeRaw(merged))
	})
	if err != nil {
		return init, fatalTransport(err)
	}
	defer team.tr.OpDestroy(op)

	send := encodeRaw(reducePayload[T]{Value: localVal, Valid: hasLocal})
	recv := make([]byte, len(send))
	if err := team.tr.Allreduce(ctx, team.id, send, recv, 1, transport.DTypeByte, op); err != nil {
		return init, fatalTransport(err)
	}
	combined := decodeRaw[reducePayload[T]](recv)
	if !combined.Valid {
		logEmptyReduction(team)
		return init, nil
	}
	return binop(init, combined.Value), nil
}

// Accumulate reduces the array's elements.
func (a *Array[T]) Accumulate(ctx context.Context, init T, binop func(x, y T) T) (T, error) {
	return Accumulate(ctx, a.View(), init, binop)
}

// Accumulate reduces the matrix's elements.
func (m *Matrix[T]) Accumulate(ctx context.Context, init T, binop func(x, y T) T) (T, error) {
	return Accumulate(ctx, m.View(), init, binop)
}
