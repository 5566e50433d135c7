package ir

import (
	"github.com/tinyrange/cminusc/internal/types"
)

// Builder appends instructions to the end of a block.
type Builder struct {
	b *BasicBlock
}

func NewBuilder(b *BasicBlock) *Builder { return &Builder{b: b} }

func (bd *Builder) SetBlock(b *BasicBlock) { bd.b = b }
func (bd *Builder) Block() *BasicBlock     { return bd.b }

func (bd *Builder) add(op Op, t *types.Type, ops ...Value) *Instruction {
	ins := newInstr(bd.b.Parent, op, t, ops...)
	bd.b.append(ins)
	return ins
}

func (bd *Builder) Binary(op Op, x, y Value) *Instruction { return bd.add(op, x.Type(), x, y) }

func (bd *Builder) Add(x, y Value) *Instruction  { return bd.Binary(OpAdd, x, y) }
func (bd *Builder) Sub(x, y Value) *Instruction  { return bd.Binary(OpSub, x, y) }
func (bd *Builder) Mul(x, y Value) *Instruction  { return bd.Binary(OpMul, x, y) }
func (bd *Builder) SDiv(x, y Value) *Instruction { return bd.Binary(OpSDiv, x, y) }

// Cmp builds an integer or float comparison; op selects which.
func (bd *Builder) Cmp(op Op, x, y Value) *Instruction { return bd.add(op, types.Int1T, x, y) }

func (bd *Builder) Alloca(t *types.Type) *Instruction {
	ins := bd.add(OpAlloca, types.PointerTo(t))
	ins.AllocType = t
	return ins
}

// AllocaAtEntry places the alloca at the top of the function's entry block,
// ahead of any code already built there.
func (bd *Builder) AllocaAtEntry(t *types.Type) *Instruction {
	entry := bd.b.Parent.Entry()
	ins := newInstr(entry.Parent, OpAlloca, types.PointerTo(t))
	ins.AllocType = t
	i := 0
	for i < len(entry.instrs) && entry.instrs[i].Op == OpAlloca {
		i++
	}
	entry.insertAt(i, ins)
	return ins
}

func (bd *Builder) Load(ptr Value) *Instruction {
	return bd.add(OpLoad, ptr.Type().Elem, ptr)
}

func (bd *Builder) Store(v, ptr Value) *Instruction {
	return bd.add(OpStore, types.VoidT, v, ptr)
}

// GEP computes an element address. With one index ptr is a plain element
// pointer; with two the first index must be zero and ptr points to an array.
func (bd *Builder) GEP(ptr Value, idx ...Value) *Instruction {
	elem := ptr.Type().Elem
	if len(idx) == 2 {
		elem = elem.Elem
	}
	return bd.add(OpGEP, types.PointerTo(elem), append([]Value{ptr}, idx...)...)
}

func (bd *Builder) ZExt(v Value) *Instruction   { return bd.add(OpZExt, types.Int32T, v) }
func (bd *Builder) FPToSI(v Value) *Instruction { return bd.add(OpFPToSI, types.Int32T, v) }
func (bd *Builder) SIToFP(v Value) *Instruction { return bd.add(OpSIToFP, types.FloatT, v) }

func (bd *Builder) Call(fn *Function, args ...Value) *Instruction {
	return bd.add(OpCall, fn.RetType, append([]Value{fn}, args...)...)
}

func (bd *Builder) Ret(v Value) *Instruction { return bd.add(OpRet, types.VoidT, v) }
func (bd *Builder) RetVoid() *Instruction    { return bd.add(OpRet, types.VoidT) }

// Br ends the block with an unconditional branch and records the edge.
func (bd *Builder) Br(target *BasicBlock) *Instruction {
	ins := bd.add(OpBr, types.VoidT, target)
	addEdge(bd.b, target)
	return ins
}

// CondBr ends the block with a two-way branch and records both edges.
func (bd *Builder) CondBr(cond Value, t, f *BasicBlock) *Instruction {
	ins := bd.add(OpBr, types.VoidT, cond, t, f)
	addEdge(bd.b, t)
	addEdge(bd.b, f)
	return ins
}
