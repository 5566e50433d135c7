package passes

import (
	"github.com/tinyrange/cminusc/internal/analysis"
	"github.com/tinyrange/cminusc/internal/ir"
)

// PurityOracle tells LICM which callees have no observable side effects.
type PurityOracle interface {
	IsPure(f *ir.Function) bool
}

type LICMStats struct {
	Hoisted    int // instructions moved out of a loop
	Preheaders int // preheader blocks created
}

type licm struct {
	f      *ir.Function
	purity PurityOracle
	stats  LICMStats
}

// LICM hoists loop-invariant instructions of f into loop preheaders,
// innermost loops first. Hoisted code keeps its relative order, so an
// instruction never lands ahead of an invariant it depends on.
func LICM(f *ir.Function, loops *analysis.LoopForest, purity PurityOracle) (LICMStats, error) {
	p := &licm{f: f, purity: purity}
	for _, l := range loops.PostOrder() {
		if err := p.runOnLoop(l); err != nil {
			return p.stats, err
		}
	}
	return p.stats, nil
}

// memoryEffects summarizes what the loop body does to memory.
type memoryEffects struct {
	stored     map[ir.Value]bool // roots of every store
	opaque     bool              // a store through a pointer of unknown origin
	nonLocal   bool              // a store to anything but a local alloca
	impureCall bool
}

func isLocalObject(v ir.Value) bool {
	ins, ok := v.(*ir.Instruction)
	return ok && ins.Op == ir.OpAlloca
}

func isNamedObject(v ir.Value) bool {
	if _, ok := v.(*ir.GlobalVariable); ok {
		return true
	}
	return isLocalObject(v)
}

// loadInvariant decides whether a load from root sees the same memory on
// every iteration. Pointers of unknown origin (array parameters) may
// point at globals but never at this function's own allocas.
func (e *memoryEffects) loadInvariant(root ir.Value) bool {
	if e.impureCall {
		return false
	}
	if isNamedObject(root) {
		return !e.stored[root] && !e.opaque
	}
	return !e.nonLocal
}

func (p *licm) runOnLoop(l *analysis.Loop) error {
	inLoop := map[*ir.Instruction]bool{}
	var order []*ir.Instruction
	eff := &memoryEffects{stored: map[ir.Value]bool{}}
	for _, b := range l.Blocks() {
		for _, ins := range b.Instrs() {
			inLoop[ins] = true
			order = append(order, ins)
			switch ins.Op {
			case ir.OpStore:
				root := analysis.MemoryRoot(ins.Operand(1))
				eff.stored[root] = true
				if !isNamedObject(root) {
					eff.opaque = true
				}
				if !isLocalObject(root) {
					eff.nonLocal = true
				}
			case ir.OpCall:
				if !p.purity.IsPure(ins.Callee()) {
					eff.impureCall = true
				}
			}
		}
	}

	invariant := map[*ir.Instruction]bool{}
	defined := func(v ir.Value) bool {
		ins, ok := v.(*ir.Instruction)
		return !ok || !inLoop[ins] || invariant[ins]
	}
	allDefined := func(vs []ir.Value) bool {
		for _, v := range vs {
			if !defined(v) {
				return false
			}
		}
		return true
	}
	canHoist := func(ins *ir.Instruction) bool {
		switch ins.Op {
		case ir.OpStore, ir.OpRet, ir.OpBr, ir.OpPhi:
			return false
		case ir.OpCall:
			return p.purity.IsPure(ins.Callee()) && allDefined(ins.CallArgs())
		case ir.OpLoad:
			return defined(ins.Operand(0)) && eff.loadInvariant(analysis.MemoryRoot(ins.Operand(0)))
		}
		// the preheader runs even when the loop body, or the branch
		// guarding ins, does not
		return analysis.Speculatable(ins) && allDefined(ins.Operands())
	}

	var hoist []*ir.Instruction
	for changed := true; changed; {
		changed = false
		for _, ins := range order {
			if !invariant[ins] && canHoist(ins) {
				invariant[ins] = true
				hoist = append(hoist, ins)
				changed = true
			}
		}
	}
	if len(hoist) == 0 {
		return nil
	}

	pre, err := p.preheader(l)
	if err != nil {
		return err
	}
	term := pre.Terminator()
	for _, ins := range hoist {
		ir.MoveBefore(ins, term)
	}
	p.stats.Hoisted += len(hoist)
	return nil
}

// preheader returns the loop's preheader, creating it on first use. A
// new preheader takes over every edge entering the header from outside
// the loop, along with the matching phi operands.
func (p *licm) preheader(l *analysis.Loop) (*ir.BasicBlock, error) {
	if pre := l.Preheader(); pre != nil {
		return pre, nil
	}
	header := l.Header()
	var outside []*ir.BasicBlock
	for _, b := range header.Preds() {
		if !l.Contains(b) {
			outside = append(outside, b)
		}
	}

	pre := p.f.NewBlockBefore("preheader", header)
	for _, b := range outside {
		if err := ir.RedirectEdge(b, header, pre); err != nil {
			return nil, ir.Errorf(p.f, b.Terminator(), err)
		}
	}
	ir.NewBuilder(pre).Br(header)

	for _, phi := range header.Phis() {
		var moved []ir.PhiIncoming
		for _, in := range phi.Incoming() {
			if !l.Contains(in.Block) {
				moved = append(moved, in)
			}
		}
		if len(moved) == 0 {
			continue
		}
		merged := pre.NewPhi(phi.Type())
		for _, in := range moved {
			merged.AddIncoming(in.Value, in.Block)
			phi.RemoveIncoming(in.Block)
		}
		phi.AddIncoming(merged, pre)
	}

	l.SetPreheader(pre)
	for outer := l.Parent(); outer != nil; outer = outer.Parent() {
		outer.AddBlock(pre)
	}
	p.stats.Preheaders++
	return pre, nil
}
