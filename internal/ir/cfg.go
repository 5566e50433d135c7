package ir

import (
	"fmt"
)

// Edge lists are sets: a conditional branch whose arms agree contributes
// one edge.

func addEdge(pred, succ *BasicBlock) {
	if !containsBlock(pred.succs, succ) {
		pred.succs = append(pred.succs, succ)
	}
	if !containsBlock(succ.preds, pred) {
		succ.preds = append(succ.preds, pred)
	}
}

func removeEdge(pred, succ *BasicBlock) {
	pred.succs = dropBlock(pred.succs, succ)
	succ.preds = dropBlock(succ.preds, pred)
}

func containsBlock(list []*BasicBlock, b *BasicBlock) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}

func dropBlock(list []*BasicBlock, b *BasicBlock) []*BasicBlock {
	out := list[:0]
	for _, x := range list {
		if x != b {
			out = append(out, x)
		}
	}
	return out
}

// RedirectEdge retargets pred's branch from one successor to another. The
// terminator operands and the edge lists of all three blocks change
// together.
func RedirectEdge(pred, from, to *BasicBlock) error {
	term := pred.Terminator()
	if term == nil || term.Op != OpBr {
		return fmt.Errorf("%w: %s has no branch to redirect", ErrMalformed, pred.Name)
	}
	found := false
	for i, op := range term.ops {
		if op == from {
			term.SetOperand(i, to)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s does not branch to %s", ErrMalformed, pred.Name, from.Name)
	}
	removeEdge(pred, from)
	addEdge(pred, to)
	return nil
}
