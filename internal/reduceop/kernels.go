// File: internal/reduceop/kernels.go
// Author: momentics <momentics@gmail.com>
//
// Element-wise reduction kernels, one function per element type that
// switches on the operation, matching the teacher's codec style of
// explicit per-type functions rather than a generics-over-numeric-
// constraint abstraction (the teacher reaches for generics only in
// pool/ring.go's RingBuffer[T any], never for arithmetic).

package reduceop

import (
	"encoding/binary"
	"math"

	"github.com/momentics/ringallreduce/api"
)

// Reduce applies op element-wise, combining src into dst in place:
// dst[i] = dst[i] OP src[i], for count elements of et's width, reading
// and writing raw little-endian bytes directly (spec §6's wire encoding
// for all payload chunks).
func Reduce(et api.ElementType, op api.Operation, dst, src []byte, count int) error {
	w := et.Width()
	if len(dst) < count*w || len(src) < count*w {
		return api.NewError(api.ErrCodeBadArg, "reduce buffers shorter than count*width")
	}
	switch et {
	case api.Int32:
		return reduceInt32(op, dst, src, count)
	case api.Float32:
		return reduceFloat32(op, dst, src, count)
	case api.Float64:
		return reduceFloat64(op, dst, src, count)
	default:
		return api.NewError(api.ErrCodeBadArg, "unsupported element type")
	}
}

// ScaleMean divides every element of buf by n in place. Called exactly
// once per final chunk, immediately after reduce-scatter completes for
// api.Mean (spec §9 decision: "single division applied once").
func ScaleMean(et api.ElementType, buf []byte, count int, n int) error {
	if n <= 0 {
		return api.NewError(api.ErrCodeBadArg, "mean scale requires a positive world size")
	}
	switch et {
	case api.Int32:
		for i := 0; i < count; i++ {
			off := i * 4
			v := int32(binary.LittleEndian.Uint32(buf[off : off+4]))
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(v/int32(n)))
		}
	case api.Float32:
		for i := 0; i < count; i++ {
			off := i * 4
			v := math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v/float32(n)))
		}
	case api.Float64:
		for i := 0; i < count; i++ {
			off := i * 8
			v := math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
			binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v/float64(n)))
		}
	default:
		return api.NewError(api.ErrCodeBadArg, "unsupported element type")
	}
	return nil
}

func reduceInt32(op api.Operation, dst, src []byte, count int) error {
	for i := 0; i < count; i++ {
		off := i * 4
		a := int32(binary.LittleEndian.Uint32(dst[off : off+4]))
		b := int32(binary.LittleEndian.Uint32(src[off : off+4]))
		var r int32
		switch op {
		case api.Sum, api.Mean:
			r = a + b
		case api.Min:
			r = a
			if b < r {
				r = b
			}
		case api.Max:
			r = a
			if b > r {
				r = b
			}
		case api.Product:
			r = a * b
		default:
			return api.NewError(api.ErrCodeBadArg, "unsupported operation")
		}
		binary.LittleEndian.PutUint32(dst[off:off+4], uint32(r))
	}
	return nil
}

func reduceFloat32(op api.Operation, dst, src []byte, count int) error {
	for i := 0; i < count; i++ {
		off := i * 4
		a := math.Float32frombits(binary.LittleEndian.Uint32(dst[off : off+4]))
		b := math.Float32frombits(binary.LittleEndian.Uint32(src[off : off+4]))
		var r float32
		switch op {
		case api.Sum, api.Mean:
			r = a + b
		case api.Min:
			r = float32(math.Min(float64(a), float64(b)))
		case api.Max:
			r = float32(math.Max(float64(a), float64(b)))
		case api.Product:
			r = a * b
		default:
			return api.NewError(api.ErrCodeBadArg, "unsupported operation")
		}
		binary.LittleEndian.PutUint32(dst[off:off+4], math.Float32bits(r))
	}
	return nil
}

func reduceFloat64(op api.Operation, dst, src []byte, count int) error {
	for i := 0; i < count; i++ {
		off := i * 8
		a := math.Float64frombits(binary.LittleEndian.Uint64(dst[off : off+8]))
		b := math.Float64frombits(binary.LittleEndian.Uint64(src[off : off+8]))
		var r float64
		switch op {
		case api.Sum, api.Mean:
			r = a + b
		case api.Min:
			r = math.Min(a, b)
		case api.Max:
			r = math.Max(a, b)
		case api.Product:
			r = a * b
		default:
			return api.NewError(api.ErrCodeBadArg, "unsupported operation")
		}
		binary.LittleEndian.PutUint64(dst[off:off+8], math.Float64bits(r))
	}
	return nil
}
