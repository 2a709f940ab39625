// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
)

func withUnits(ctx context.Context, n int, f func(ctx context.Context, u Unit)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(u Unit) {
			defer wg.Done()
			f(WithUnit(ctx, u), u)
		}(Unit(i))
	}
	wg.Wait()
}

func TestLocalPutGet(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(2)
	var ptr Pointer
	withUnits(ctx, 2, func(ctx context.Context, u Unit) {
		p, err := l.TeamMemallocAligned(ctx, RootTeam, 8, "x")
		if err != nil {
			t.Error(err)
			return
		}
		if u == 0 {
			ptr = p
		}
	})
	dst := ptr.WithUnit(1)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 42)
	if err := l.PutBlockingLocal(ctx, dst, buf[:]); err != nil {
		t.Fatal(err)
	}
	var got [8]byte
	if err := l.GetBlocking(ctx, got[:], dst); err != nil {
		t.Fatal(err)
	}
	if v := binary.LittleEndian.Uint64(got[:]); v != 42 {
		t.Errorf("got %d, want 42", v)
	}
}

func TestLocalPutOutOfRange(t *testing.T) {
	ctx := WithUnit(context.Background(), 0)
	l := NewLocal(1)
	ptr, err := l.TeamMemallocAligned(ctx, RootTeam, 4, "small")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.PutBlockingLocal(ctx, ptr, make([]byte, 8)); err == nil {
		t.Fatal("expected error writing past end of segment")
	}
}

func TestLocalBarrier(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(4)
	var reached int32
	var mu sync.Mutex
	withUnits(ctx, 4, func(ctx context.Context, u Unit) {
		mu.Lock()
		reached++
		mu.Unlock()
		if err := l.Barrier(ctx, RootTeam); err != nil {
			t.Error(err)
		}
	})
	if reached != 4 {
		t.Fatalf("reached = %d, want 4", reached)
	}
	// A second barrier epoch must also complete.
	withUnits(ctx, 4, func(ctx context.Context, u Unit) {
		if err := l.Barrier(ctx, RootTeam); err != nil {
			t.Error(err)
		}
	})
}

func TestLocalAllreduceSum(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(4)
	results := make([][8]byte, 4)
	withUnits(ctx, 4, func(ctx context.Context, u Unit) {
		var send [8]byte
		binary.LittleEndian.PutUint64(send[:], uint64(u)+1) // 1,2,3,4
		if err := l.Allreduce(ctx, RootTeam, send[:], results[u][:], 1, DTypeUint64, OpSum); err != nil {
			t.Error(err)
		}
	})
	for u, r := range results {
		if v := binary.LittleEndian.Uint64(r[:]); v != 10 {
			t.Errorf("unit %d: sum = %d, want 10", u, v)
		}
	}
}

func TestLocalAllreduceRepeated(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(3)
	for epoch := 0; epoch < 5; epoch++ {
		results := make([][8]byte, 3)
		withUnits(ctx, 3, func(ctx context.Context, u Unit) {
			var send [8]byte
			binary.LittleEndian.PutUint64(send[:], 1)
			if err := l.Allreduce(ctx, RootTeam, send[:], results[u][:], 1, DTypeUint64, OpMax); err != nil {
				t.Error(err)
			}
		})
		for u, r := range results {
			if v := binary.LittleEndian.Uint64(r[:]); v != 1 {
				t.Fatalf("epoch %d unit %d: max = %d, want 1", epoch, u, v)
			}
		}
	}
}

func TestLocalCustomOp(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(2)
	op, err := l.OpCreate(func(dst, src []byte) {
		for i := range dst {
			if src[i] > dst[i] {
				dst[i] = src[i]
			}
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	dtype, err := l.TypeCreateCustom(1)
	if err != nil {
		t.Fatal(err)
	}
	results := make([][1]byte, 2)
	withUnits(ctx, 2, func(ctx context.Context, u Unit) {
		send := [1]byte{byte(u) + 1}
		if err := l.Allreduce(ctx, RootTeam, send[:], results[u][:], 1, dtype, op); err != nil {
			t.Error(err)
		}
	})
	for u, r := range results {
		if r[0] != 2 {
			t.Errorf("unit %d: got %d, want 2", u, r[0])
		}
	}
}

func TestLocalTeamSizeAndMyUnit(t *testing.T) {
	l := NewLocal(3)
	if got := l.TeamSize(RootTeam); got != 3 {
		t.Errorf("TeamSize = %d, want 3", got)
	}
	ctx := WithUnit(context.Background(), 2)
	if got := l.TeamMyUnit(ctx, RootTeam); got != 2 {
		t.Errorf("TeamMyUnit = %d, want 2", got)
	}
}

func TestLocalSplitTeam(t *testing.T) {
	l := NewLocal(4)
	sub := l.SplitTeam([]Unit{0, 2})
	if got := l.TeamSize(sub); got != 2 {
		t.Errorf("TeamSize(sub) = %d, want 2", got)
	}
}
