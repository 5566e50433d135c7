package analysis

// This file computes the dominator tree and dominance frontiers of a
// function, using the algorithm of Cooper, Harvey and Kennedy,
// "A Simple, Fast Dominance Algorithm".

import (
	"golang.org/x/tools/container/intsets"

	"github.com/tinyrange/cminusc/internal/ir"
)

// DomInfo answers dominance queries for one function. It is a snapshot:
// blocks added to the function afterwards are unknown to it.
type DomInfo struct {
	f        *ir.Function
	byID     []*ir.BasicBlock
	idom     map[*ir.BasicBlock]*ir.BasicBlock
	children map[*ir.BasicBlock][]*ir.BasicBlock
	frontier map[*ir.BasicBlock]*intsets.Sparse
	pre      map[*ir.BasicBlock]int // dominator tree DFS numbering
	post     map[*ir.BasicBlock]int
}

type blockAndIndex struct {
	b     *ir.BasicBlock
	index int // number of successor edges of b already explored
}

// postorder computes a DFS postorder of the blocks reachable from entry.
func postorder(entry *ir.BasicBlock) []*ir.BasicBlock {
	seen := map[*ir.BasicBlock]bool{entry: true}
	var order []*ir.BasicBlock
	s := []blockAndIndex{{b: entry}}
	for len(s) > 0 {
		tos := len(s) - 1
		x := s[tos]
		b := x.b
		if i := x.index; i < len(b.Succs()) {
			s[tos].index++
			bb := b.Succs()[i]
			if !seen[bb] {
				seen[bb] = true
				s = append(s, blockAndIndex{b: bb})
			}
			continue
		}
		s = s[:tos]
		order = append(order, b)
	}
	return order
}

// intersect finds the closest dominator of both b and c.
func intersect(b, c *ir.BasicBlock, postnum map[*ir.BasicBlock]int, idom map[*ir.BasicBlock]*ir.BasicBlock) *ir.BasicBlock {
	for b != c {
		if postnum[b] < postnum[c] {
			b = idom[b]
		} else {
			c = idom[c]
		}
	}
	return b
}

// Dominators builds the dominator tree and frontiers of f.
func Dominators(f *ir.Function) *DomInfo {
	d := &DomInfo{
		f:        f,
		byID:     make([]*ir.BasicBlock, f.NumBlockIDs()),
		idom:     map[*ir.BasicBlock]*ir.BasicBlock{},
		children: map[*ir.BasicBlock][]*ir.BasicBlock{},
		frontier: map[*ir.BasicBlock]*intsets.Sparse{},
		pre:      map[*ir.BasicBlock]int{},
		post:     map[*ir.BasicBlock]int{},
	}
	for _, b := range f.Blocks {
		d.byID[b.ID] = b
		d.frontier[b] = &intsets.Sparse{}
	}
	entry := f.Entry()
	if entry == nil {
		return d
	}

	po := postorder(entry)
	postnum := make(map[*ir.BasicBlock]int, len(po))
	for i, b := range po {
		postnum[b] = i
	}
	d.idom[entry] = entry
	for changed := true; changed; {
		changed = false
		// reverse postorder, skipping the entry
		for i := len(po) - 2; i >= 0; i-- {
			b := po[i]
			var nd *ir.BasicBlock
			for _, p := range b.Preds() {
				if d.idom[p] == nil {
					continue
				}
				if nd == nil {
					nd = p
				} else {
					nd = intersect(p, nd, postnum, d.idom)
				}
			}
			if d.idom[b] != nd {
				d.idom[b] = nd
				changed = true
			}
		}
	}

	for _, b := range f.Blocks {
		if b == entry || d.idom[b] == nil {
			continue
		}
		p := d.idom[b]
		d.children[p] = append(d.children[p], b)
	}
	d.number(entry, new(int))

	for _, b := range f.Blocks {
		if d.idom[b] == nil {
			continue
		}
		var preds []*ir.BasicBlock
		for _, p := range b.Preds() {
			if d.idom[p] != nil {
				preds = append(preds, p)
			}
		}
		if len(preds) < 2 {
			continue
		}
		stop := d.IDom(b)
		for _, p := range preds {
			for runner := p; runner != nil && runner != stop; runner = d.IDom(runner) {
				d.frontier[runner].Insert(b.ID)
			}
		}
	}
	return d
}

func (d *DomInfo) number(b *ir.BasicBlock, n *int) {
	d.pre[b] = *n
	*n++
	for _, c := range d.children[b] {
		d.number(c, n)
	}
	d.post[b] = *n
	*n++
}

// Reachable reports whether b can be reached from the entry block.
func (d *DomInfo) Reachable(b *ir.BasicBlock) bool { return d.idom[b] != nil }

// IDom returns the immediate dominator of b, nil for the entry and for
// unreachable blocks.
func (d *DomInfo) IDom(b *ir.BasicBlock) *ir.BasicBlock {
	if b == d.f.Entry() {
		return nil
	}
	return d.idom[b]
}

// Children lists the blocks b immediately dominates, in layout order.
func (d *DomInfo) Children(b *ir.BasicBlock) []*ir.BasicBlock { return d.children[b] }

// Dominates reports whether every path from the entry to b goes through a.
func (d *DomInfo) Dominates(a, b *ir.BasicBlock) bool {
	if a == b {
		return true
	}
	if !d.Reachable(a) || !d.Reachable(b) {
		return false
	}
	return d.pre[a] <= d.pre[b] && d.post[b] <= d.post[a]
}

// Frontier returns the dominance frontier of b ordered by block ID.
func (d *DomInfo) Frontier(b *ir.BasicBlock) []*ir.BasicBlock {
	s, ok := d.frontier[b]
	if !ok {
		return nil
	}
	var out []*ir.BasicBlock
	for _, id := range s.AppendTo(nil) {
		out = append(out, d.byID[id])
	}
	return out
}
