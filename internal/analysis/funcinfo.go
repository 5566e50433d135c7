package analysis

import (
	"github.com/tinyrange/cminusc/internal/ir"
)

// FuncInfo records which functions are free of side effects.
type FuncInfo struct {
	pure map[*ir.Function]bool
}

// NewFuncInfo computes purity for every function of m. Declarations are
// assumed impure. A defined function is pure when it only touches memory
// it allocated itself, cannot fault, and calls only pure functions. A
// call to a pure function may therefore run where it never ran before.
func NewFuncInfo(m *ir.Module) *FuncInfo {
	fi := &FuncInfo{pure: map[*ir.Function]bool{}}
	for _, f := range m.Funcs {
		fi.pure[f] = !f.IsDeclaration() && sideEffectFree(f)
	}
	for changed := true; changed; {
		changed = false
		for _, f := range m.Funcs {
			if !fi.pure[f] {
				continue
			}
			for _, b := range f.Blocks {
				for _, ins := range b.Instrs() {
					if c := ins.Callee(); c != nil && !fi.pure[c] {
						fi.pure[f] = false
						changed = true
					}
				}
			}
		}
	}
	return fi
}

func (fi *FuncInfo) IsPure(f *ir.Function) bool { return fi.pure[f] }

// SetPure overrides the computed fact, for callers that know better.
func (fi *FuncInfo) SetPure(f *ir.Function, pure bool) { fi.pure[f] = pure }

func sideEffectFree(f *ir.Function) bool {
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs() {
			if !Speculatable(ins) {
				return false
			}
			var ptr ir.Value
			switch ins.Op {
			case ir.OpLoad:
				ptr = ins.Operand(0)
			case ir.OpStore:
				ptr = ins.Operand(1)
			default:
				continue
			}
			root, ok := MemoryRoot(ptr).(*ir.Instruction)
			if !ok || root.Op != ir.OpAlloca {
				return false
			}
		}
	}
	return true
}

// Speculatable reports whether ins can execute on a path where it did not
// before without faulting. Of the non-memory operations only a division
// can fault, and only when its divisor may be zero.
func Speculatable(ins *ir.Instruction) bool {
	if ins.Op != ir.OpSDiv {
		return true
	}
	d, ok := ins.Operand(1).(*ir.ConstantInt)
	return ok && d.Val != 0
}

// MemoryRoot strips address arithmetic off ptr and returns the object it
// points into: an alloca, a global, an argument, or whatever produced an
// opaque pointer.
func MemoryRoot(ptr ir.Value) ir.Value {
	for {
		ins, ok := ptr.(*ir.Instruction)
		if !ok || ins.Op != ir.OpGEP {
			return ptr
		}
		ptr = ins.Operand(0)
	}
}
