package passes

import (
	"fmt"

	"golang.org/x/tools/container/intsets"

	"github.com/tinyrange/cminusc/internal/ir"
)

// DomTree is the dominance information Mem2Reg needs.
type DomTree interface {
	Reachable(b *ir.BasicBlock) bool
	Children(b *ir.BasicBlock) []*ir.BasicBlock
	Frontier(b *ir.BasicBlock) []*ir.BasicBlock
}

type Mem2RegStats struct {
	Promoted int // allocas turned into SSA values
	Phis     int // phis inserted
}

type mem2reg struct {
	f       *ir.Function
	dom     DomTree
	allocs  []*ir.Instruction // promotable, in program order
	tracked map[*ir.Instruction]bool
	phiVar  map[*ir.Instruction]*ir.Instruction // phi -> the alloca it stands for
	stacks  map[*ir.Instruction][]ir.Value
	dead    []*ir.Instruction
	stats   Mem2RegStats
}

// Mem2Reg promotes the scalar locals of f whose address never escapes into
// SSA values, inserting phis at dominance frontiers and deleting the
// alloca/load/store traffic that carried them.
func Mem2Reg(f *ir.Function, dom DomTree) (Mem2RegStats, error) {
	if f.IsDeclaration() {
		return Mem2RegStats{}, nil
	}
	m := &mem2reg{
		f:       f,
		dom:     dom,
		tracked: map[*ir.Instruction]bool{},
		phiVar:  map[*ir.Instruction]*ir.Instruction{},
		stacks:  map[*ir.Instruction][]ir.Value{},
	}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs() {
			if ins.Op == ir.OpAlloca && promotable(ins) {
				m.allocs = append(m.allocs, ins)
				m.tracked[ins] = true
				m.stacks[ins] = nil
			}
		}
	}
	if len(m.allocs) == 0 {
		return m.stats, nil
	}
	m.placePhis()
	m.rename(f.Entry())
	m.renameUnreachable()
	if err := m.cleanup(); err != nil {
		return m.stats, err
	}
	m.stats.Promoted = len(m.allocs)
	return m.stats, nil
}

// promotable reports whether the alloca's address is only ever the
// pointer operand of a load or store.
func promotable(alloca *ir.Instruction) bool {
	if !alloca.AllocType.IsScalar() {
		return false
	}
	for _, u := range alloca.Uses() {
		switch {
		case u.Op == ir.OpLoad && u.Operand(0) == alloca:
		case u.Op == ir.OpStore && u.Operand(1) == alloca && u.Operand(0) != alloca:
		default:
			return false
		}
	}
	return true
}

func (m *mem2reg) local(ptr ir.Value) *ir.Instruction {
	a, ok := ptr.(*ir.Instruction)
	if !ok || !m.tracked[a] {
		return nil
	}
	return a
}

func (m *mem2reg) placePhis() {
	for _, a := range m.allocs {
		var hasPhi, queued intsets.Sparse
		var work []*ir.BasicBlock
		for _, u := range a.Uses() {
			if u.Op != ir.OpStore || !m.dom.Reachable(u.Parent) {
				continue
			}
			if queued.Insert(u.Parent.ID) {
				work = append(work, u.Parent)
			}
		}
		for i := 0; i < len(work); i++ {
			for _, df := range m.dom.Frontier(work[i]) {
				if !hasPhi.Insert(df.ID) {
					continue
				}
				phi := df.NewPhi(a.AllocType)
				m.phiVar[phi] = a
				m.stats.Phis++
				if queued.Insert(df.ID) {
					work = append(work, df)
				}
			}
		}
	}
}

func (m *mem2reg) top(a *ir.Instruction) ir.Value {
	s := m.stacks[a]
	if len(s) == 0 {
		return ir.NewUndef(a.AllocType)
	}
	return s[len(s)-1]
}

func (m *mem2reg) rename(b *ir.BasicBlock) {
	saved := make(map[*ir.Instruction]int, len(m.stacks))
	for a, s := range m.stacks {
		saved[a] = len(s)
	}

	for _, ins := range b.Instrs() {
		switch ins.Op {
		case ir.OpPhi:
			if a, ok := m.phiVar[ins]; ok {
				m.stacks[a] = append(m.stacks[a], ins)
			}
		case ir.OpStore:
			if a := m.local(ins.Operand(1)); a != nil {
				m.stacks[a] = append(m.stacks[a], ins.Operand(0))
				m.dead = append(m.dead, ins)
			}
		case ir.OpLoad:
			if a := m.local(ins.Operand(0)); a != nil {
				ir.ReplaceAllUsesWith(ins, m.top(a))
				m.dead = append(m.dead, ins)
			}
		}
	}

	for _, s := range b.Succs() {
		for _, phi := range s.Phis() {
			if a, ok := m.phiVar[phi]; ok {
				phi.AddIncoming(m.top(a), b)
			}
		}
	}

	for _, c := range m.dom.Children(b) {
		m.rename(c)
	}

	for a, n := range saved {
		m.stacks[a] = m.stacks[a][:n]
	}
}

// renameUnreachable handles blocks the dominator walk never visits: their
// loads of promoted locals read an undefined value.
func (m *mem2reg) renameUnreachable() {
	for _, b := range m.f.Blocks {
		if m.dom.Reachable(b) {
			continue
		}
		for _, ins := range b.Instrs() {
			switch ins.Op {
			case ir.OpStore:
				if m.local(ins.Operand(1)) != nil {
					m.dead = append(m.dead, ins)
				}
			case ir.OpLoad:
				if a := m.local(ins.Operand(0)); a != nil {
					ir.ReplaceAllUsesWith(ins, ir.NewUndef(a.AllocType))
					m.dead = append(m.dead, ins)
				}
			}
		}
	}
}

func (m *mem2reg) cleanup() error {
	for _, ins := range m.dead {
		ins.Erase()
	}
	for _, a := range m.allocs {
		if n := len(a.Uses()); n > 0 {
			return ir.Errorf(m.f, a, fmt.Errorf("%w: promoted local still has %d uses", ir.ErrMalformed, n))
		}
		a.Erase()
	}
	return nil
}
