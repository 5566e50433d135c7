package ir

import (
	"github.com/tinyrange/cminusc/internal/types"
)

type Op int

const (
	OpRet Op = iota
	OpBr     // Args: [target] or [cond, true, false]
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpAlloca
	OpLoad  // Args: [ptr]
	OpStore // Args: [value, ptr]
	// integer comparisons produce i1
	OpGe
	OpGt
	OpLe
	OpLt
	OpEq
	OpNe
	// float comparisons produce i1
	OpFGe
	OpFGt
	OpFLe
	OpFLt
	OpFEq
	OpFNe
	OpPhi  // Args: [v0, bb0, v1, bb1, ...]
	OpCall // Args: [callee, args...]
	OpGEP  // Args: [ptr, idx] or [ptr-to-array, 0, idx]
	OpZExt
	OpFPToSI
	OpSIToFP
)

var opNames = [...]string{
	OpRet: "ret", OpBr: "br",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpSDiv: "sdiv",
	OpFAdd: "fadd", OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv",
	OpAlloca: "alloca", OpLoad: "load", OpStore: "store",
	OpGe: "icmp sge", OpGt: "icmp sgt", OpLe: "icmp sle", OpLt: "icmp slt", OpEq: "icmp eq", OpNe: "icmp ne",
	OpFGe: "fcmp uge", OpFGt: "fcmp ugt", OpFLe: "fcmp ule", OpFLt: "fcmp ult", OpFEq: "fcmp ueq", OpFNe: "fcmp une",
	OpPhi: "phi", OpCall: "call", OpGEP: "getelementptr",
	OpZExt: "zext", OpFPToSI: "fptosi", OpSIToFP: "sitofp",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "op?"
}

func (o Op) IsBinary() bool      { return o >= OpAdd && o <= OpSDiv }
func (o Op) IsFloatBinary() bool { return o >= OpFAdd && o <= OpFDiv }
func (o Op) IsICmp() bool        { return o >= OpGe && o <= OpNe }
func (o Op) IsFCmp() bool        { return o >= OpFGe && o <= OpFNe }

type Instruction struct {
	useList
	Name      string
	Op        Op
	Parent    *BasicBlock
	AllocType *types.Type // alloca only

	typ *types.Type
	ops []Value
}

func newInstr(f *Function, op Op, t *types.Type, ops ...Value) *Instruction {
	ins := &Instruction{Op: op, typ: t}
	if !t.IsVoid() {
		ins.Name = f.newName()
	}
	for _, v := range ops {
		ins.ops = append(ins.ops, v)
		v.addUse(ins)
	}
	return ins
}

func (i *Instruction) Type() *types.Type { return i.typ }
func (i *Instruction) Ref() string       { return "%" + i.Name }

func (i *Instruction) IsVoid() bool { return i.typ.IsVoid() }

func (i *Instruction) Operands() []Value   { return i.ops }
func (i *Instruction) Operand(n int) Value { return i.ops[n] }
func (i *Instruction) NumOperands() int    { return len(i.ops) }

func (i *Instruction) SetOperand(n int, v Value) {
	if old := i.ops[n]; old != nil {
		old.removeUse(i)
	}
	i.ops[n] = v
	if v != nil {
		v.addUse(i)
	}
}

func (i *Instruction) IsTerminator() bool { return i.Op == OpRet || i.Op == OpBr }
func (i *Instruction) IsCondBr() bool     { return i.Op == OpBr && len(i.ops) == 3 }

// Targets lists the blocks a branch may transfer to.
func (i *Instruction) Targets() []*BasicBlock {
	if i.Op != OpBr {
		return nil
	}
	var out []*BasicBlock
	for _, op := range i.ops {
		if b, ok := op.(*BasicBlock); ok {
			out = append(out, b)
		}
	}
	return out
}

// Callee returns the called function of a call instruction.
func (i *Instruction) Callee() *Function {
	if i.Op != OpCall {
		return nil
	}
	f, _ := i.ops[0].(*Function)
	return f
}

// CallArgs returns the actual arguments of a call instruction.
func (i *Instruction) CallArgs() []Value {
	if i.Op != OpCall {
		return nil
	}
	return i.ops[1:]
}

// Erase removes the instruction from its block and releases its operands.
func (i *Instruction) Erase() {
	if i.Op == OpBr && i.Parent != nil {
		for _, t := range i.Targets() {
			removeEdge(i.Parent, t)
		}
	}
	for n, op := range i.ops {
		if op != nil {
			op.removeUse(i)
		}
		i.ops[n] = nil
	}
	i.ops = nil
	if i.Parent != nil {
		i.Parent.Remove(i)
	}
}

type PhiIncoming struct {
	Value Value
	Block *BasicBlock
}

func (i *Instruction) Incoming() []PhiIncoming {
	var out []PhiIncoming
	for n := 0; n+1 < len(i.ops); n += 2 {
		out = append(out, PhiIncoming{Value: i.ops[n], Block: i.ops[n+1].(*BasicBlock)})
	}
	return out
}

// IncomingFor returns the value flowing into the phi from pred.
func (i *Instruction) IncomingFor(pred *BasicBlock) (Value, bool) {
	for n := 0; n+1 < len(i.ops); n += 2 {
		if i.ops[n+1] == pred {
			return i.ops[n], true
		}
	}
	return nil, false
}

func (i *Instruction) AddIncoming(v Value, pred *BasicBlock) {
	i.ops = append(i.ops, v, pred)
	v.addUse(i)
	pred.addUse(i)
}

// RemoveIncoming drops the pair for pred and reports whether one existed.
func (i *Instruction) RemoveIncoming(pred *BasicBlock) bool {
	for n := 0; n+1 < len(i.ops); n += 2 {
		if i.ops[n+1] != pred {
			continue
		}
		i.ops[n].removeUse(i)
		pred.removeUse(i)
		i.ops = append(i.ops[:n], i.ops[n+2:]...)
		return true
	}
	return false
}
