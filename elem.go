// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dash

import (
	"reflect"
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/dashteam/dash/transport"
)

// Elem constrains the element types usable in a distributed container
// or global reference. One-sided put/get moves raw bytes, so elements
// must be fixed-size and pointer-free; every integer and floating
// point type satisfies that.
type Elem interface {
	constraints.Integer | constraints.Float
}

// dtypeOf reports the transport.DType corresponding to T, if any of
// the native ones apply. Integer widths without a direct native
// counterpart (int8, int16, uint8, uint16, int, uint, uintptr) report
// ok=false; Accumulate then falls back to its (value, valid) custom
// reduction, carried as raw bytes.
func dtypeOf[T Elem]() (dtype transport.DType, ok bool) {
	var zero T
	switch any(zero).(type) {
	case int32:
		return transport.DTypeInt32, true
	case int64:
		return transport.DTypeInt64, true
	case uint32:
		return transport.DTypeUint32, true
	case uint64:
		return transport.DTypeUint64, true
	case float32:
		return transport.DTypeFloat32, true
	case float64:
		return transport.DTypeFloat64, true
	default:
		return 0, false
	}
}

// sizeOf returns sizeof(T) in bytes.
func sizeOf[T Elem]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// encode reinterprets v's in-memory representation as a byte slice
// suitable for a transport put. Taking the address of v forces it
// onto the heap; the returned slice is only valid for the duration of
// the call it feeds (transport implementations must not retain it
// past PutBlockingLocal/Put returning).
func encode[T Elem](v T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&v)), sizeOf[T]())
}

// decode is the inverse of encode: it reinterprets a byte slice
// received from a transport get as a T.
func decode[T Elem](b []byte) T {
	var v T
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), sizeOf[T]()), b)
	return v
}

// encodeRaw and decodeRaw are encode/decode without the Elem
// constraint, for reduction payload structs that pair a value with a
// validity flag.
func encodeRaw[S any](v S) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&v)), int(unsafe.Sizeof(v)))
}

func decodeRaw[S any](b []byte) S {
	var v S
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v)), b)
	return v
}

// funcPointer returns the entry point of a function value, used to
// recognize a caller-supplied binop as one of the package's own
// Sum/Product/Min/... functions without requiring the caller to name
// an operator by anything other than passing the function itself.
func funcPointer(f any) uintptr {
	return reflect.ValueOf(f).Pointer()
}

// Sum returns a+b. Passing dash.Sum[T] to Accumulate is recognized as
// the native sum reduction.
func Sum[T Elem](a, b T) T { return a + b }

// Product returns a*b. Recognized as the native product reduction.
func Product[T Elem](a, b T) T { return a * b }

// Min returns the smaller of a and b. recognizedOp maps it to
// transport.OpMin, but Accumulate does not use a native all-reduce for
// it: Min is reduced through the (value, valid) custom path.
func Min[T Elem](a, b T) T {
	if b < a {
		return b
	}
	return a
}

// Max returns the larger of a and b. recognizedOp maps it to
// transport.OpMax, but Accumulate does not use a native all-reduce for
// it: Max is reduced through the (value, valid) custom path.
func Max[T Elem](a, b T) T {
	if b > a {
		return b
	}
	return a
}

// recognizedOp maps a binop to a native transport.Op, if binop is
// (by function identity) one of Sum/Product/Min/Max instantiated at
// T. Any other function, including a differently-written but
// semantically equivalent one, falls back to a custom reduction.
func recognizedOp[T Elem](binop func(a, b T) T) (transport.Op, bool) {
	p := funcPointer(binop)
	switch p {
	case funcPointer(Sum[T]):
		return transport.OpSum, true
	case funcPointer(Product[T]):
		return transport.OpProd, true
	case funcPointer(Min[T]):
		return transport.OpMin, true
	case funcPointer(Max[T]):
		return transport.OpMax, true
	default:
		return 0, false
	}
}
