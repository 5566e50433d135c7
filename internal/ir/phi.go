package ir

// SplitCriticalEdges puts a fresh block on every edge that leaves a block
// with several successors and enters a block with phis and several
// predecessors. Afterwards the copies that feed a phi can be placed at the
// end of its predecessor without being seen on the other outgoing edges.
// It returns the number of blocks created.
func SplitCriticalEdges(f *Function) (int, error) {
	n := 0
	for _, b := range append([]*BasicBlock(nil), f.Blocks...) {
		if len(b.Phis()) == 0 {
			continue
		}
		for _, p := range append([]*BasicBlock(nil), b.preds...) {
			if !isCritical(p, b) {
				continue
			}
			if _, err := splitCriticalEdge(f, p, b); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

func isCritical(p, s *BasicBlock) bool {
	return len(p.succs) > 1 && len(s.preds) > 1
}

func splitCriticalEdge(f *Function, p, s *BasicBlock) (*BasicBlock, error) {
	nb := f.NewBlockBefore(p.Name+"_to_"+s.Name+"_", s)
	if err := RedirectEdge(p, s, nb); err != nil {
		return nil, err
	}
	NewBuilder(nb).Br(s)
	for _, phi := range s.Phis() {
		for i := 1; i < len(phi.ops); i += 2 {
			if phi.ops[i] == p {
				phi.SetOperand(i, nb)
			}
		}
	}
	return nb, nil
}
