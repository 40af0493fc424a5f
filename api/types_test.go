// File: api/types_test.go
// Author: momentics <momentics@gmail.com>

package api

import "testing"

func TestElementTypeWidth(t *testing.T) {
	cases := []struct {
		t     ElementType
		width int
	}{
		{Int32, 4},
		{Float32, 4},
		{Float64, 8},
	}
	for _, c := range cases {
		if got := c.t.Width(); got != c.width {
			t.Errorf("%s.Width() = %d, want %d", c.t, got, c.width)
		}
		if !c.t.Valid() {
			t.Errorf("%s.Valid() = false, want true", c.t)
		}
	}

	if (ElementType(99)).Valid() {
		t.Error("ElementType(99).Valid() = true, want false")
	}
	if got := ElementType(99).String(); got != "ElementType(99)" {
		t.Errorf("unexpected String() for unknown element type: %q", got)
	}
}

func TestOperationValid(t *testing.T) {
	for _, op := range []Operation{Sum, Min, Max, Product, Mean} {
		if !op.Valid() {
			t.Errorf("%s.Valid() = false, want true", op)
		}
	}
	if (Operation(99)).Valid() {
		t.Error("Operation(99).Valid() = true, want false")
	}
}

func TestOperationString(t *testing.T) {
	cases := map[Operation]string{
		Sum: "sum", Min: "min", Max: "max", Product: "product", Mean: "mean",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", op, got, want)
		}
	}
}
