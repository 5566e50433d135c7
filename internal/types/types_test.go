package types

import "testing"

func TestSizes(t *testing.T) {
	tests := []struct {
		typ  *Type
		size int
	}{
		{VoidT, 0},
		{Int1T, 1},
		{Int32T, 4},
		{FloatT, 4},
		{PointerTo(Int32T), 8},
		{ArrayOf(FloatT, 10), 40},
		{ArrayOf(Int32T, 0), 0},
		{LabelT, 0},
	}
	for _, tt := range tests {
		if got := tt.typ.Size(); got != tt.size {
			t.Errorf("%s: size = %d, want %d", tt.typ, got, tt.size)
		}
	}
	if got := PointerTo(ArrayOf(Int32T, 3)).ElemSize(); got != 12 {
		t.Errorf("elem size = %d, want 12", got)
	}
	if got := Int32T.ElemSize(); got != 0 {
		t.Errorf("elem size of i32 = %d, want 0", got)
	}
}

func TestEqual(t *testing.T) {
	if !Equal(PointerTo(Int32T), PointerTo(Int32T)) {
		t.Error("distinct i32* values compare unequal")
	}
	if Equal(PointerTo(Int32T), PointerTo(FloatT)) {
		t.Error("i32* equals float*")
	}
	if Equal(ArrayOf(Int32T, 2), ArrayOf(Int32T, 3)) {
		t.Error("arrays of different length compare equal")
	}
	if !Equal(FuncOf(VoidT, Int32T, FloatT), FuncOf(VoidT, Int32T, FloatT)) {
		t.Error("identical signatures compare unequal")
	}
	if Equal(FuncOf(VoidT, Int32T), FuncOf(VoidT)) {
		t.Error("signatures of different arity compare equal")
	}
	if Equal(nil, Int32T) {
		t.Error("nil equals i32")
	}
}

func TestString(t *testing.T) {
	tests := map[string]*Type{
		"i1":                Int1T,
		"float*":            PointerTo(FloatT),
		"[4 x i32]":         ArrayOf(Int32T, 4),
		"[4 x i32]*":        PointerTo(ArrayOf(Int32T, 4)),
		"i32 (i32*, float)": FuncOf(Int32T, PointerTo(Int32T), FloatT),
		"void ()":           FuncOf(VoidT),
	}
	for want, typ := range tests {
		if got := typ.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}

func TestScalar(t *testing.T) {
	for _, typ := range []*Type{Int1T, Int32T, FloatT, PointerTo(Int32T)} {
		if !typ.IsScalar() {
			t.Errorf("%s is not scalar", typ)
		}
	}
	for _, typ := range []*Type{VoidT, ArrayOf(Int32T, 2), LabelT} {
		if typ.IsScalar() {
			t.Errorf("%s is scalar", typ)
		}
	}
}
