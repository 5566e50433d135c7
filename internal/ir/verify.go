package ir

import (
	"fmt"
)

// Verify checks the structural invariants every pass relies on.
func Verify(f *Function) error {
	for _, b := range f.Blocks {
		if err := verifyBlock(f, b); err != nil {
			return err
		}
	}
	return nil
}

func malformed(f *Function, ins *Instruction, format string, args ...any) error {
	return Errorf(f, ins, fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...))
}

func verifyBlock(f *Function, b *BasicBlock) error {
	if b.Parent != f {
		return malformed(f, nil, "block %s belongs to another function", b.Name)
	}
	term := b.Terminator()
	if term == nil {
		return malformed(f, nil, "block %s has no terminator", b.Name)
	}
	inPhis := true
	for i, ins := range b.instrs {
		if ins.Parent != b {
			return malformed(f, ins, "parent link does not point at %s", b.Name)
		}
		if ins.IsTerminator() && i != len(b.instrs)-1 {
			return malformed(f, ins, "terminator in the middle of %s", b.Name)
		}
		if ins.Op == OpPhi {
			if !inPhis {
				return malformed(f, ins, "phi after non-phi in %s", b.Name)
			}
			if err := verifyPhi(f, b, ins); err != nil {
				return err
			}
		} else {
			inPhis = false
		}
		if ins.IsVoid() && len(ins.Uses()) > 0 {
			return malformed(f, ins, "void instruction has uses")
		}
		for _, op := range ins.ops {
			if err := verifyOperand(f, ins, op); err != nil {
				return err
			}
		}
	}
	// successor list must be exactly the branch targets
	targets := term.Targets()
	for _, t := range targets {
		if !containsBlock(b.succs, t) {
			return malformed(f, term, "edge %s -> %s missing from successor list", b.Name, t.Name)
		}
		if !containsBlock(t.preds, b) {
			return malformed(f, term, "edge %s -> %s missing from predecessor list", b.Name, t.Name)
		}
	}
	for _, s := range b.succs {
		if !containsBlock(targets, s) {
			return malformed(f, term, "successor %s of %s is not a branch target", s.Name, b.Name)
		}
	}
	for _, p := range b.preds {
		if !containsBlock(p.succs, b) {
			return malformed(f, nil, "predecessor %s of %s does not list it as successor", p.Name, b.Name)
		}
	}
	return nil
}

func verifyPhi(f *Function, b *BasicBlock, phi *Instruction) error {
	if len(phi.ops)%2 != 0 {
		return malformed(f, phi, "odd phi operand count")
	}
	seen := map[*BasicBlock]bool{}
	for n := 0; n < len(phi.ops); n += 2 {
		pred, ok := phi.ops[n+1].(*BasicBlock)
		if !ok {
			return malformed(f, phi, "phi incoming block is not a block")
		}
		if seen[pred] {
			return malformed(f, phi, "duplicate incoming block %s", pred.Name)
		}
		seen[pred] = true
		if !containsBlock(b.preds, pred) {
			return malformed(f, phi, "incoming block %s is not a predecessor of %s", pred.Name, b.Name)
		}
	}
	return nil
}

func verifyOperand(f *Function, ins *Instruction, op Value) error {
	if op == nil {
		return malformed(f, nil, "%s in %s has a nil operand", ins.Op, ins.Parent.Name)
	}
	switch v := op.(type) {
	case *Instruction:
		if v.Parent == nil || v.Parent.Parent != f {
			return malformed(f, ins, "operand %s is not an instruction of this function", v.Ref())
		}
		if v.IsVoid() {
			return malformed(f, ins, "operand %s has no value", v.Ref())
		}
	case *Argument:
		if v.Parent != f {
			return malformed(f, ins, "argument %s belongs to another function", v.Ref())
		}
	case *BasicBlock:
		if v.Parent != f {
			return malformed(f, ins, "block %s belongs to another function", v.Name)
		}
	}
	return nil
}
