// File: datagen/datagen_test.go
// Author: momentics <momentics@gmail.com>

package datagen

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/momentics/ringallreduce/api"
)

func TestFillRankIndexed(t *testing.T) {
	buf, err := Fill(api.Float64, RankIndexed, 3, 4, 0)
	if err != nil {
		t.Fatalf("Fill returned error: %v", err)
	}
	for i := 0; i < 4; i++ {
		v := math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8 : i*8+8]))
		if v != 3 {
			t.Errorf("element %d = %v, want 3", i, v)
		}
	}
}

func TestFillPowersOfTen(t *testing.T) {
	buf, err := Fill(api.Float32, PowersOfTen, 2, 1, 0)
	if err != nil {
		t.Fatalf("Fill returned error: %v", err)
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(buf))
	if v != 100 {
		t.Errorf("got %v, want 100", v)
	}
}

func TestFillConstant(t *testing.T) {
	buf, err := Fill(api.Int32, Constant, 0, 1, 42)
	if err != nil {
		t.Fatalf("Fill returned error: %v", err)
	}
	v := int32(binary.LittleEndian.Uint32(buf))
	if v != 42 {
		t.Errorf("got %d, want 42", v)
	}
}

func TestFillRejectsInvalidElementType(t *testing.T) {
	if _, err := Fill(api.ElementType(99), Constant, 0, 1, 0); err == nil {
		t.Error("expected error for invalid element type")
	}
}
