package ir

import (
	"fmt"

	"github.com/tinyrange/cminusc/internal/types"
)

type Module struct {
	Name    string
	Globals []*GlobalVariable
	Funcs   []*Function
}

func NewModule(name string) *Module { return &Module{Name: name} }

// NewGlobal adds a zero-initialized global holding a value of type contents.
func (m *Module) NewGlobal(name string, contents *types.Type) *GlobalVariable {
	g := &GlobalVariable{Name: name, Contents: contents, ptr: types.PointerTo(contents)}
	m.Globals = append(m.Globals, g)
	return g
}

// NewFunction adds a function with no blocks. It stays a declaration
// until a block is created in it.
func (m *Module) NewFunction(name string, ret *types.Type, params ...*types.Type) *Function {
	f := &Function{Name: name, RetType: ret, Parent: m}
	for i, p := range params {
		f.Args = append(f.Args, &Argument{Name: fmt.Sprintf("arg%d", i), Typ: p, Parent: f, Index: i})
	}
	m.Funcs = append(m.Funcs, f)
	return f
}

func (m *Module) Func(name string) *Function {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

type Function struct {
	useList
	Name    string
	RetType *types.Type
	Args    []*Argument
	Blocks  []*BasicBlock
	Parent  *Module

	nextBlockID int
	nextValueID int
}

func (f *Function) Type() *types.Type {
	ps := make([]*types.Type, len(f.Args))
	for i, a := range f.Args {
		ps[i] = a.Typ
	}
	return types.FuncOf(f.RetType, ps...)
}

func (f *Function) Ref() string { return "@" + f.Name }

func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

func (f *Function) Entry() *BasicBlock {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewBlock appends a fresh block; the first block created is the entry.
func (f *Function) NewBlock(hint string) *BasicBlock {
	b := f.makeBlock(hint)
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewBlockBefore inserts a fresh block in layout order just before at.
func (f *Function) NewBlockBefore(hint string, at *BasicBlock) *BasicBlock {
	b := f.makeBlock(hint)
	i := f.blockIndex(at)
	if i < 0 {
		f.Blocks = append(f.Blocks, b)
		return b
	}
	f.Blocks = append(f.Blocks, nil)
	copy(f.Blocks[i+1:], f.Blocks[i:])
	f.Blocks[i] = b
	return b
}

func (f *Function) makeBlock(hint string) *BasicBlock {
	if hint == "" {
		hint = "bb"
	}
	id := f.nextBlockID
	f.nextBlockID++
	return &BasicBlock{Name: fmt.Sprintf("%s%d", hint, id), ID: id, Parent: f}
}

// NumBlockIDs bounds every block ID handed out so far.
func (f *Function) NumBlockIDs() int { return f.nextBlockID }

func (f *Function) blockIndex(b *BasicBlock) int {
	for i, bb := range f.Blocks {
		if bb == b {
			return i
		}
	}
	return -1
}

func (f *Function) newName() string {
	n := fmt.Sprintf("op%d", f.nextValueID)
	f.nextValueID++
	return n
}

type BasicBlock struct {
	useList
	Name   string
	ID     int // unique within the function, never reused
	Parent *Function

	instrs []*Instruction
	preds  []*BasicBlock
	succs  []*BasicBlock
}

func (b *BasicBlock) Type() *types.Type { return types.LabelT }
func (b *BasicBlock) Ref() string       { return "%" + b.Name }

func (b *BasicBlock) Instrs() []*Instruction { return b.instrs }

// Preds and Succs must not be modified by callers; edges change only
// through branch construction and RedirectEdge.
func (b *BasicBlock) Preds() []*BasicBlock { return b.preds }
func (b *BasicBlock) Succs() []*BasicBlock { return b.succs }

func (b *BasicBlock) Terminator() *Instruction {
	if len(b.instrs) == 0 {
		return nil
	}
	if t := b.instrs[len(b.instrs)-1]; t.IsTerminator() {
		return t
	}
	return nil
}

func (b *BasicBlock) Terminated() bool { return b.Terminator() != nil }

// Phis returns the phi instructions at the top of the block.
func (b *BasicBlock) Phis() []*Instruction {
	n := 0
	for n < len(b.instrs) && b.instrs[n].Op == OpPhi {
		n++
	}
	return b.instrs[:n]
}

func (b *BasicBlock) append(ins *Instruction) {
	ins.Parent = b
	b.instrs = append(b.instrs, ins)
}

func (b *BasicBlock) insertAt(i int, ins *Instruction) {
	ins.Parent = b
	b.instrs = append(b.instrs, nil)
	copy(b.instrs[i+1:], b.instrs[i:])
	b.instrs[i] = ins
}

func (b *BasicBlock) indexOf(ins *Instruction) int {
	for i, x := range b.instrs {
		if x == ins {
			return i
		}
	}
	return -1
}

// Remove unlinks ins from b without touching its operands, so it can be
// inserted elsewhere.
func (b *BasicBlock) Remove(ins *Instruction) {
	if i := b.indexOf(ins); i >= 0 {
		b.instrs = append(b.instrs[:i], b.instrs[i+1:]...)
		ins.Parent = nil
	}
}

// NewPhi creates an empty phi of type t after the block's existing phis.
func (b *BasicBlock) NewPhi(t *types.Type) *Instruction {
	phi := newInstr(b.Parent, OpPhi, t)
	b.insertAt(len(b.Phis()), phi)
	return phi
}

// MoveBefore relocates ins so that it directly precedes at, possibly in
// another block.
func MoveBefore(ins, at *Instruction) {
	if ins.Parent != nil {
		ins.Parent.Remove(ins)
	}
	dst := at.Parent
	dst.insertAt(dst.indexOf(at), ins)
}
