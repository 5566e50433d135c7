package types

import (
	"fmt"
	"strings"
)

// Kind is the shape of an IR type.
type Kind int

const (
	Void Kind = iota
	Int1
	Int32
	Float
	Ptr
	Array
	Label
	Func
)

// Type describes the type of an IR value on our 64-bit target.
type Type struct {
	K      Kind
	Elem   *Type   // pointee for Ptr, element for Array
	Len    int     // number of elements, Array only
	Ret    *Type   // Func only
	Params []*Type // Func only
}

var (
	VoidT  = &Type{K: Void}
	Int1T  = &Type{K: Int1}
	Int32T = &Type{K: Int32}
	FloatT = &Type{K: Float}
	LabelT = &Type{K: Label}
)

func PointerTo(elem *Type) *Type { return &Type{K: Ptr, Elem: elem} }

func ArrayOf(elem *Type, n int) *Type { return &Type{K: Array, Elem: elem, Len: n} }

func FuncOf(ret *Type, params ...*Type) *Type {
	return &Type{K: Func, Ret: ret, Params: append([]*Type(nil), params...)}
}

// Size returns the size in bytes for this type on our target.
func (t *Type) Size() int {
	switch t.K {
	case Int1:
		return 1
	case Int32, Float:
		return 4
	case Ptr:
		// 64-bit pointers
		return 8
	case Array:
		return t.Len * t.Elem.Size()
	default:
		return 0
	}
}

// ElemSize returns the pointee size if pointer, else 0.
func (t *Type) ElemSize() int {
	if t.K == Ptr && t.Elem != nil {
		return t.Elem.Size()
	}
	return 0
}

func (t *Type) IsVoid() bool    { return t.K == Void }
func (t *Type) IsPointer() bool { return t.K == Ptr }
func (t *Type) IsFloat() bool   { return t.K == Float }
func (t *Type) IsArray() bool   { return t.K == Array }

// IsInteger returns true for i1 and i32.
func (t *Type) IsInteger() bool { return t.K == Int1 || t.K == Int32 }

// IsScalar reports whether a value of this type fits in one register.
func (t *Type) IsScalar() bool { return t.IsInteger() || t.IsFloat() || t.IsPointer() }

// Equal compares types structurally.
func Equal(a, b *Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.K != b.K {
		return false
	}
	switch a.K {
	case Ptr:
		return Equal(a.Elem, b.Elem)
	case Array:
		return a.Len == b.Len && Equal(a.Elem, b.Elem)
	case Func:
		if !Equal(a.Ret, b.Ret) || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !Equal(a.Params[i], b.Params[i]) {
				return false
			}
		}
	}
	return true
}

func (t *Type) String() string {
	switch t.K {
	case Void:
		return "void"
	case Int1:
		return "i1"
	case Int32:
		return "i32"
	case Float:
		return "float"
	case Ptr:
		return t.Elem.String() + "*"
	case Array:
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
	case Label:
		return "label"
	case Func:
		ps := make([]string, len(t.Params))
		for i, p := range t.Params {
			ps[i] = p.String()
		}
		return fmt.Sprintf("%s (%s)", t.Ret, strings.Join(ps, ", "))
	}
	return "?"
}
