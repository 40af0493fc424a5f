// File: internal/reduceop/kernels_test.go
// Author: momentics <momentics@gmail.com>

package reduceop

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/ringallreduce/api"
)

func encodeFloat64s(vs []float64) []byte {
	buf := make([]byte, len(vs)*8)
	for i, v := range vs {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], math.Float64bits(v))
	}
	return buf
}

func decodeFloat64s(buf []byte, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8 : i*8+8]))
	}
	return out
}

func TestReduceSumFloat64(t *testing.T) {
	dst := encodeFloat64s([]float64{1, 2, 3})
	src := encodeFloat64s([]float64{10, 20, 30})

	err := Reduce(api.Float64, api.Sum, dst, src, 3)
	assert.NoError(t, err)
	assert.Equal(t, []float64{11, 22, 33}, decodeFloat64s(dst, 3))
}

func TestReduceMinMaxFloat64(t *testing.T) {
	dst := encodeFloat64s([]float64{5, -1, 3})
	src := encodeFloat64s([]float64{2, -4, 8})

	minDst := append([]byte(nil), dst...)
	assert.NoError(t, Reduce(api.Float64, api.Min, minDst, src, 3))
	assert.Equal(t, []float64{2, -4, 3}, decodeFloat64s(minDst, 3))

	maxDst := append([]byte(nil), dst...)
	assert.NoError(t, Reduce(api.Float64, api.Max, maxDst, src, 3))
	assert.Equal(t, []float64{5, -1, 8}, decodeFloat64s(maxDst, 3))
}

func TestReduceProductInt32(t *testing.T) {
	dst := make([]byte, 8)
	src := make([]byte, 8)
	binary.LittleEndian.PutUint32(dst[0:4], uint32(int32(3)))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(int32(-2)))
	binary.LittleEndian.PutUint32(src[0:4], uint32(int32(4)))
	binary.LittleEndian.PutUint32(src[4:8], uint32(int32(5)))

	err := Reduce(api.Int32, api.Product, dst, src, 2)
	assert.NoError(t, err)
	assert.Equal(t, int32(12), int32(binary.LittleEndian.Uint32(dst[0:4])))
	assert.Equal(t, int32(-10), int32(binary.LittleEndian.Uint32(dst[4:8])))
}

func TestScaleMeanFloat64(t *testing.T) {
	buf := encodeFloat64s([]float64{10, 20, 30})
	assert.NoError(t, ScaleMean(api.Float64, buf, 3, 5))
	assert.Equal(t, []float64{2, 4, 6}, decodeFloat64s(buf, 3))
}

func TestScaleMeanRejectsNonPositiveWorldSize(t *testing.T) {
	buf := encodeFloat64s([]float64{1})
	err := ScaleMean(api.Float64, buf, 1, 0)
	assert.Error(t, err)
}

func TestReduceRejectsShortBuffers(t *testing.T) {
	dst := make([]byte, 4)
	src := make([]byte, 8)
	err := Reduce(api.Float64, api.Sum, dst, src, 1)
	assert.Error(t, err)
}
