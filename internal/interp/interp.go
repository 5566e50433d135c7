// Package interp executes IR directly. It serves the -run mode of the
// driver and lets tests compare a program's behaviour before and after
// the passes.
package interp

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/tinyrange/cminusc/internal/ir"
)

var (
	ErrNegativeIndex = errors.New("negative array index")
	ErrOutOfBounds   = errors.New("memory access out of bounds")
	ErrDivideByZero  = errors.New("integer division by zero")
	ErrStepLimit     = errors.New("step limit exceeded")
)

// DefaultMaxSteps bounds how many instructions one Run may execute.
const DefaultMaxSteps = 50_000_000

type object struct {
	cells []Value
}

// Pointer addresses one scalar cell of an object.
type Pointer struct {
	obj *object
	idx int
}

// Value is the runtime form of every first-class IR value. Integers of
// both widths live in I, floats in F, addresses in P.
type Value struct {
	I int64
	F float32
	P Pointer
}

func Int(v int32) Value     { return Value{I: int64(v)} }
func Float(v float32) Value { return Value{F: v} }

type Machine struct {
	MaxSteps int
	// Calls counts executed calls per callee name, builtins included.
	Calls map[string]int

	m       *ir.Module
	in      *bufio.Reader
	out     io.Writer
	globals map[*ir.GlobalVariable]*object
	steps   int
}

func New(m *ir.Module, in io.Reader, out io.Writer) *Machine {
	mc := &Machine{
		MaxSteps: DefaultMaxSteps,
		Calls:    map[string]int{},
		m:        m,
		in:       bufio.NewReader(in),
		out:      out,
		globals:  map[*ir.GlobalVariable]*object{},
	}
	for _, g := range m.Globals {
		mc.globals[g] = newObject(g.Contents.Len)
	}
	return mc
}

func newObject(n int) *object {
	if n < 1 {
		n = 1
	}
	return &object{cells: make([]Value, n)}
}

// Run executes main and returns its exit value.
func (mc *Machine) Run() (int32, error) {
	v, err := mc.Call("main")
	return int32(v.I), err
}

// Call runs the named function with the given arguments.
func (mc *Machine) Call(name string, args ...Value) (Value, error) {
	f := mc.m.Func(name)
	if f == nil {
		return Value{}, fmt.Errorf("no function %s", name)
	}
	if len(args) != len(f.Args) {
		return Value{}, fmt.Errorf("%s takes %d arguments, got %d", name, len(f.Args), len(args))
	}
	return mc.call(f, args)
}

func (mc *Machine) builtin(f *ir.Function, args []Value) (Value, error) {
	switch f.Name {
	case "input":
		var n int32
		if _, err := fmt.Fscan(mc.in, &n); err != nil {
			return Value{}, fmt.Errorf("input: %w", err)
		}
		return Int(n), nil
	case "output":
		_, err := fmt.Fprintf(mc.out, "%d\n", int32(args[0].I))
		return Value{}, err
	case "outputFloat":
		_, err := fmt.Fprintf(mc.out, "%f\n", args[0].F)
		return Value{}, err
	case "neg_idx_except":
		return Value{}, ErrNegativeIndex
	}
	return Value{}, fmt.Errorf("call to undefined function %s", f.Name)
}

type frame map[ir.Value]Value

func (mc *Machine) eval(fr frame, v ir.Value) Value {
	switch v := v.(type) {
	case *ir.ConstantInt:
		return Value{I: v.Val}
	case *ir.ConstantFP:
		return Value{F: v.Val}
	case *ir.Undef:
		return Value{}
	case *ir.GlobalVariable:
		return Value{P: Pointer{obj: mc.globals[v]}}
	}
	return fr[v]
}

func (p Pointer) cell() (*Value, error) {
	if p.obj == nil || p.idx < 0 || p.idx >= len(p.obj.cells) {
		return nil, ErrOutOfBounds
	}
	return &p.obj.cells[p.idx], nil
}

func (mc *Machine) call(f *ir.Function, args []Value) (Value, error) {
	mc.Calls[f.Name]++
	if f.IsDeclaration() {
		return mc.builtin(f, args)
	}
	fr := frame{}
	for i, a := range f.Args {
		fr[a] = args[i]
	}
	var prev *ir.BasicBlock
	b := f.Entry()
blocks:
	for {
		// phis read their inputs together, before any of them is written
		phis := b.Phis()
		vals := make([]Value, len(phis))
		for i, phi := range phis {
			if v, ok := phi.IncomingFor(prev); ok {
				vals[i] = mc.eval(fr, v)
			}
		}
		for i, phi := range phis {
			fr[phi] = vals[i]
		}

		for _, ins := range b.Instrs()[len(phis):] {
			mc.steps++
			if mc.steps > mc.MaxSteps {
				return Value{}, ErrStepLimit
			}
			if ins.Op == ir.OpRet {
				if ins.NumOperands() == 0 {
					return Value{}, nil
				}
				return mc.eval(fr, ins.Operand(0)), nil
			}
			if ins.Op == ir.OpBr {
				next := ins.Operand(0)
				if ins.IsCondBr() {
					next = ins.Operand(2)
					if mc.eval(fr, ins.Operand(0)).I&1 != 0 {
						next = ins.Operand(1)
					}
				}
				prev, b = b, next.(*ir.BasicBlock)
				continue blocks
			}
			v, err := mc.exec(fr, ins)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %s: %w", f.Name, ins, err)
			}
			if !ins.IsVoid() {
				fr[ins] = v
			}
		}
		return Value{}, fmt.Errorf("%s: block %s has no terminator: %w", f.Name, b.Name, ir.ErrMalformed)
	}
}

func (mc *Machine) exec(fr frame, ins *ir.Instruction) (Value, error) {
	op := func(n int) Value { return mc.eval(fr, ins.Operand(n)) }
	switch {
	case ins.Op.IsBinary():
		x, y := int32(op(0).I), int32(op(1).I)
		switch ins.Op {
		case ir.OpAdd:
			return Int(x + y), nil
		case ir.OpSub:
			return Int(x - y), nil
		case ir.OpMul:
			return Int(x * y), nil
		default:
			if y == 0 {
				return Value{}, ErrDivideByZero
			}
			return Int(x / y), nil
		}
	case ins.Op.IsFloatBinary():
		x, y := op(0).F, op(1).F
		switch ins.Op {
		case ir.OpFAdd:
			return Float(x + y), nil
		case ir.OpFSub:
			return Float(x - y), nil
		case ir.OpFMul:
			return Float(x * y), nil
		default:
			return Float(x / y), nil
		}
	case ins.Op.IsICmp():
		return boolean(compare(ins.Op, op(0).I, op(1).I)), nil
	case ins.Op.IsFCmp():
		return boolean(compareF(ins.Op, op(0).F, op(1).F)), nil
	}

	switch ins.Op {
	case ir.OpAlloca:
		return Value{P: Pointer{obj: newObject(ins.AllocType.Len)}}, nil
	case ir.OpLoad:
		c, err := op(0).P.cell()
		if err != nil {
			return Value{}, err
		}
		return *c, nil
	case ir.OpStore:
		c, err := op(1).P.cell()
		if err != nil {
			return Value{}, err
		}
		*c = op(0)
		return Value{}, nil
	case ir.OpGEP:
		p := op(0).P
		p.idx += int(int32(op(ins.NumOperands() - 1).I))
		return Value{P: p}, nil
	case ir.OpZExt:
		return Value{I: op(0).I & 1}, nil
	case ir.OpFPToSI:
		return Int(int32(op(0).F)), nil
	case ir.OpSIToFP:
		return Float(float32(int32(op(0).I))), nil
	case ir.OpCall:
		args := make([]Value, 0, ins.NumOperands()-1)
		for _, a := range ins.CallArgs() {
			args = append(args, mc.eval(fr, a))
		}
		return mc.call(ins.Callee(), args)
	}
	return Value{}, fmt.Errorf("cannot execute %s", ins.Op)
}

func boolean(b bool) Value {
	if b {
		return Value{I: 1}
	}
	return Value{}
}

func compare(op ir.Op, x, y int64) bool {
	switch op {
	case ir.OpGe:
		return x >= y
	case ir.OpGt:
		return x > y
	case ir.OpLe:
		return x <= y
	case ir.OpLt:
		return x < y
	case ir.OpEq:
		return x == y
	}
	return x != y
}

func compareF(op ir.Op, x, y float32) bool {
	switch op {
	case ir.OpFGe:
		return x >= y
	case ir.OpFGt:
		return x > y
	case ir.OpFLe:
		return x <= y
	case ir.OpFLt:
		return x < y
	case ir.OpFEq:
		return x == y
	}
	return x != y
}
