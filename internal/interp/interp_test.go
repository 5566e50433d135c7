package interp

import (
	"errors"
	"strings"
	"testing"

	"github.com/tinyrange/cminusc/internal/ir"
	"github.com/tinyrange/cminusc/internal/types"
)

// newMain adds main() returning int and a builder positioned in its entry.
func newMain(m *ir.Module) (*ir.Function, *ir.Builder) {
	f := m.NewFunction("main", types.Int32T)
	return f, ir.NewBuilder(f.NewBlock("entry"))
}

func TestRunArithmetic(t *testing.T) {
	m := ir.NewModule("test")
	_, bd := newMain(m)
	x := bd.Mul(ir.ConstInt(6), ir.ConstInt(7))
	y := bd.SDiv(x, ir.ConstInt(-4))
	bd.Ret(bd.Sub(y, ir.ConstInt(1)))

	code, err := New(m, strings.NewReader(""), &strings.Builder{}).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// division truncates toward zero
	if code != -11 {
		t.Errorf("exit = %d, want -11", code)
	}
}

func TestRunWraps(t *testing.T) {
	m := ir.NewModule("test")
	_, bd := newMain(m)
	bd.Ret(bd.Add(ir.ConstInt(2147483647), ir.ConstInt(1)))

	code, err := New(m, strings.NewReader(""), &strings.Builder{}).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != -2147483648 {
		t.Errorf("exit = %d, want -2147483648", code)
	}
}

func TestRunIO(t *testing.T) {
	m := ir.NewModule("test")
	input := m.NewFunction("input", types.Int32T)
	output := m.NewFunction("output", types.VoidT, types.Int32T)
	outputFloat := m.NewFunction("outputFloat", types.VoidT, types.FloatT)
	_, bd := newMain(m)
	a := bd.Call(input)
	b := bd.Call(input)
	bd.Call(output, bd.Add(a, b))
	bd.Call(outputFloat, bd.SIToFP(a))
	bd.Call(output, bd.FPToSI(ir.ConstFloat(-2.75)))
	bd.Ret(ir.ConstInt(0))

	var out strings.Builder
	mc := New(m, strings.NewReader("5 -3"), &out)
	if _, err := mc.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if want := "2\n5.000000\n-2\n"; out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
	if mc.Calls["input"] != 2 || mc.Calls["output"] != 2 || mc.Calls["main"] != 1 {
		t.Errorf("calls = %v", mc.Calls)
	}
}

func TestRunInputExhausted(t *testing.T) {
	m := ir.NewModule("test")
	input := m.NewFunction("input", types.Int32T)
	_, bd := newMain(m)
	bd.Ret(bd.Call(input))

	if _, err := New(m, strings.NewReader(""), &strings.Builder{}).Run(); err == nil {
		t.Fatalf("run with no input succeeded")
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *ir.Module, bd *ir.Builder)
		want  error
	}{
		{"divide by zero", func(m *ir.Module, bd *ir.Builder) {
			bd.Ret(bd.SDiv(ir.ConstInt(1), ir.ConstInt(0)))
		}, ErrDivideByZero},
		{"past the end", func(m *ir.Module, bd *ir.Builder) {
			a := bd.Alloca(types.ArrayOf(types.Int32T, 4))
			bd.Ret(bd.Load(bd.GEP(a, ir.ConstInt(0), ir.ConstInt(4))))
		}, ErrOutOfBounds},
		{"before the start", func(m *ir.Module, bd *ir.Builder) {
			g := m.NewGlobal("g", types.ArrayOf(types.Int32T, 2))
			bd.Store(ir.ConstInt(1), bd.GEP(g, ir.ConstInt(0), ir.ConstInt(-1)))
			bd.Ret(ir.ConstInt(0))
		}, ErrOutOfBounds},
		{"negative index", func(m *ir.Module, bd *ir.Builder) {
			bd.Call(m.NewFunction("neg_idx_except", types.VoidT))
			bd.Ret(ir.ConstInt(0))
		}, ErrNegativeIndex},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ir.NewModule("test")
			_, bd := newMain(m)
			tt.build(m, bd)
			_, err := New(m, strings.NewReader(""), &strings.Builder{}).Run()
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRunStepLimit(t *testing.T) {
	m := ir.NewModule("test")
	f, bd := newMain(m)
	loop := f.NewBlock("loop")
	bd.Br(loop)
	bd.SetBlock(loop)
	bd.Br(loop)

	mc := New(m, strings.NewReader(""), &strings.Builder{})
	mc.MaxSteps = 1000
	if _, err := mc.Run(); !errors.Is(err, ErrStepLimit) {
		t.Errorf("err = %v, want ErrStepLimit", err)
	}
}

func TestRunMissingTerminator(t *testing.T) {
	m := ir.NewModule("test")
	_, bd := newMain(m)
	bd.Add(ir.ConstInt(1), ir.ConstInt(2))

	_, err := New(m, strings.NewReader(""), &strings.Builder{}).Run()
	if !errors.Is(err, ir.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

// TestCallPhis runs a loop whose phis swap on every iteration; the
// second phi must see the first one's old value.
func TestCallPhis(t *testing.T) {
	m := ir.NewModule("test")
	f := m.NewFunction("swap", types.Int32T, types.Int32T)
	entry := f.NewBlock("entry")
	loop := f.NewBlock("loop")
	body := f.NewBlock("body")
	exit := f.NewBlock("exit")

	ir.NewBuilder(entry).Br(loop)
	a := loop.NewPhi(types.Int32T)
	b := loop.NewPhi(types.Int32T)
	i := loop.NewPhi(types.Int32T)
	bd := ir.NewBuilder(loop)
	bd.CondBr(bd.Cmp(ir.OpLt, i, f.Args[0]), body, exit)
	bd.SetBlock(body)
	inc := bd.Add(i, ir.ConstInt(1))
	bd.Br(loop)
	bd.SetBlock(exit)
	bd.Ret(bd.Add(bd.Mul(a, ir.ConstInt(10)), b))

	a.AddIncoming(ir.ConstInt(1), entry)
	a.AddIncoming(b, body)
	b.AddIncoming(ir.ConstInt(2), entry)
	b.AddIncoming(a, body)
	i.AddIncoming(ir.ConstInt(0), entry)
	i.AddIncoming(inc, body)

	mc := New(m, strings.NewReader(""), &strings.Builder{})
	for n, want := range map[int32]int64{0: 12, 1: 21, 2: 12, 5: 21} {
		got, err := mc.Call("swap", Int(n))
		if err != nil {
			t.Fatalf("swap(%d): %v", n, err)
		}
		if got.I != want {
			t.Errorf("swap(%d) = %d, want %d", n, got.I, want)
		}
	}
}

func TestCallArity(t *testing.T) {
	m := ir.NewModule("test")
	f := m.NewFunction("id", types.FloatT, types.FloatT)
	ir.NewBuilder(f.NewBlock("entry")).Ret(f.Args[0])

	mc := New(m, strings.NewReader(""), &strings.Builder{})
	if _, err := mc.Call("id"); err == nil {
		t.Errorf("call with missing argument succeeded")
	}
	if _, err := mc.Call("nope"); err == nil {
		t.Errorf("call of unknown function succeeded")
	}
	v, err := mc.Call("id", Float(1.5))
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	if v.F != 1.5 {
		t.Errorf("id(1.5) = %v", v.F)
	}
}

func TestGlobalsStartZero(t *testing.T) {
	m := ir.NewModule("test")
	g := m.NewGlobal("g", types.Int32T)
	_, bd := newMain(m)
	bd.Store(bd.Add(bd.Load(g), ir.ConstInt(3)), g)
	bd.Ret(bd.Load(g))

	mc := New(m, strings.NewReader(""), &strings.Builder{})
	for run, want := range []int32{3, 6} {
		code, err := mc.Run()
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if code != want {
			t.Errorf("run %d: exit = %d, want %d", run, code, want)
		}
	}
}
