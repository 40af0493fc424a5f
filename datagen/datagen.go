// File: datagen/datagen.go
// Author: momentics <momentics@gmail.com>
//
// Initial-data generator: the external "initial-data generator"
// collaborator. Produces deterministic per-rank fill patterns for demo
// and scenario-test vectors, supplemented from original_source/
// pg_collectives.c's fill helpers and example.c.

package datagen

import (
	"encoding/binary"
	"math"

	"github.com/momentics/ringallreduce/api"
)

// Pattern selects a deterministic fill rule.
type Pattern int

const (
	// Constant fills every element of every rank's vector with the same
	// value, useful for sum/product sanity checks with a known closed form.
	Constant Pattern = iota
	// RankIndexed fills rank r's vector with the value r at every
	// element, so sum = N(N-1)/2, mean = (N-1)/2, etc.
	RankIndexed
	// PowersOfTen fills rank r's vector with 10^r at every element,
	// matching original_source/pg_collectives.c's stress pattern for
	// exercising wide dynamic range.
	PowersOfTen
)

// Fill returns a new buffer of count elements of et filled according to
// pattern for the given rank, using value as the Constant pattern's fill
// value (ignored otherwise).
func Fill(et api.ElementType, pattern Pattern, rank, count int, value float64) ([]byte, error) {
	if !et.Valid() {
		return nil, api.NewError(api.ErrCodeBadArg, "invalid element type")
	}
	v := elementValue(pattern, rank, value)
	width := et.Width()
	buf := make([]byte, count*width)
	for i := 0; i < count; i++ {
		off := i * width
		switch et {
		case api.Int32:
			binary.LittleEndian.PutUint32(buf[off:off+4], uint32(int32(v)))
		case api.Float32:
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(float32(v)))
		case api.Float64:
			binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
		}
	}
	return buf, nil
}

func elementValue(pattern Pattern, rank int, value float64) float64 {
	switch pattern {
	case RankIndexed:
		return float64(rank)
	case PowersOfTen:
		return math.Pow(10, float64(rank))
	default:
		return value
	}
}
