// File: verify/verify.go
// Author: momentics <momentics@gmail.com>
//
// Result verifier: the external "result verifier" collaborator named
// alongside the collective core. Computes an expected vector in a
// reference, non-ring order and diffs it against a collective's output,
// with a tolerance for floating-point rounding — supplemented from
// original_source/test_allreduce.c and test_ring.c, whose test programs
// do exactly this before printing a pass/fail line.

package verify

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/momentics/ringallreduce/api"
)

// DefaultFloatTolerance bounds the acceptable per-element drift for
// floating-point comparisons, accounting for the ring's left-to-right
// summation order differing from a reference reduction (spec §4.3: "must
// not claim bit-exact associativity").
const DefaultFloatTolerance = 1e-6

// Mismatch describes one element where the actual vector diverged from
// the expected one.
type Mismatch struct {
	Index    int
	Expected float64
	Actual   float64
}

// Expected computes the reference reduction of inputs (one vector per
// rank, all of the same count and element type) using sequential,
// left-to-right combination — the same order original_source's
// pg_collectives.c reference loop uses, not the ring's interleaving.
func Expected(et api.ElementType, op api.Operation, inputs [][]byte, count int) ([]byte, error) {
	if len(inputs) == 0 {
		return nil, api.NewError(api.ErrCodeBadArg, "expected requires at least one input vector")
	}
	width := et.Width()
	out := make([]byte, count*width)
	copy(out, inputs[0][:count*width])

	for _, in := range inputs[1:] {
		if err := combineInto(et, op, out, in, count); err != nil {
			return nil, err
		}
	}
	if op == api.Mean {
		if err := scaleMean(et, out, count, len(inputs)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Compare diffs actual against expected element-wise, returning every
// mismatching index. Integer types require exact equality; float types
// use tol (pass DefaultFloatTolerance unless the caller has a reason to
// widen it).
func Compare(et api.ElementType, expected, actual []byte, count int, tol float64) []Mismatch {
	var mismatches []Mismatch
	width := et.Width()
	for i := 0; i < count; i++ {
		off := i * width
		ev, av := decodeElement(et, expected[off:off+width]), decodeElement(et, actual[off:off+width])
		diff := math.Abs(ev - av)
		ok := diff == 0
		if et != api.Int32 {
			ok = diff <= tol
		}
		if !ok {
			mismatches = append(mismatches, Mismatch{Index: i, Expected: ev, Actual: av})
		}
	}
	return mismatches
}

// Report renders mismatches as the single pass/fail line the original's
// test programs print.
func Report(mismatches []Mismatch) string {
	if len(mismatches) == 0 {
		return "PASS: all elements match"
	}
	return fmt.Sprintf("FAIL: %d mismatching element(s), first at index %d (expected %v, got %v)",
		len(mismatches), mismatches[0].Index, mismatches[0].Expected, mismatches[0].Actual)
}

func decodeElement(et api.ElementType, b []byte) float64 {
	switch et {
	case api.Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case api.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case api.Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		return 0
	}
}

func combineInto(et api.ElementType, op api.Operation, dst, src []byte, count int) error {
	width := et.Width()
	for i := 0; i < count; i++ {
		off := i * width
		a, b := decodeElement(et, dst[off:off+width]), decodeElement(et, src[off:off+width])
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
		encodeElement(et, dst[off:off+width], r)
	}
	return nil
}

func scaleMean(et api.ElementType, buf []byte, count, n int) error {
	width := et.Width()
	for i := 0; i < count; i++ {
		off := i * width
		v := decodeElement(et, buf[off:off+width]) / float64(n)
		encodeElement(et, buf[off:off+width], v)
	}
	return nil
}

func encodeElement(et api.ElementType, b []byte, v float64) {
	switch et {
	case api.Int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case api.Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case api.Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}
