package analysis

import (
	"sort"

	"golang.org/x/tools/container/intsets"

	"github.com/tinyrange/cminusc/internal/ir"
)

// Loop is a natural loop: a header plus every block that reaches one of
// the header's back edges without passing through the header.
type Loop struct {
	header    *ir.BasicBlock
	blocks    []*ir.BasicBlock
	set       intsets.Sparse // block IDs
	parent    *Loop
	children  []*Loop
	preheader *ir.BasicBlock
}

func (l *Loop) Header() *ir.BasicBlock        { return l.header }
func (l *Loop) Blocks() []*ir.BasicBlock      { return l.blocks }
func (l *Loop) Parent() *Loop                 { return l.parent }
func (l *Loop) Children() []*Loop             { return l.children }
func (l *Loop) Preheader() *ir.BasicBlock     { return l.preheader }
func (l *Loop) SetPreheader(b *ir.BasicBlock) { l.preheader = b }

func (l *Loop) Contains(b *ir.BasicBlock) bool { return b != nil && l.set.Has(b.ID) }

// AddBlock makes b a member of the loop.
func (l *Loop) AddBlock(b *ir.BasicBlock) {
	if l.set.Insert(b.ID) {
		l.blocks = append(l.blocks, b)
	}
}

// Latches returns the loop blocks that branch back to the header.
func (l *Loop) Latches() []*ir.BasicBlock {
	var out []*ir.BasicBlock
	for _, p := range l.header.Preds() {
		if l.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}

func (l *Loop) Depth() int {
	d := 0
	for p := l; p != nil; p = p.parent {
		d++
	}
	return d
}

// LoopForest is the loop nesting forest of one function.
type LoopForest struct {
	Roots []*Loop
	All   []*Loop
}

// PostOrder lists every loop after all of its children.
func (lf *LoopForest) PostOrder() []*Loop {
	var out []*Loop
	var walk func(l *Loop)
	walk = func(l *Loop) {
		for _, c := range l.children {
			walk(c)
		}
		out = append(out, l)
	}
	for _, r := range lf.Roots {
		walk(r)
	}
	return out
}

// FindLoops discovers the natural loops of f from its back edges. Loops
// sharing a header are merged.
func FindLoops(f *ir.Function, dom *DomInfo) *LoopForest {
	lf := &LoopForest{}
	for _, h := range f.Blocks {
		if !dom.Reachable(h) {
			continue
		}
		var latches []*ir.BasicBlock
		for _, p := range h.Preds() {
			if dom.Reachable(p) && dom.Dominates(h, p) {
				latches = append(latches, p)
			}
		}
		if len(latches) == 0 {
			continue
		}
		l := &Loop{header: h}
		l.set.Insert(h.ID)
		work := latches
		for len(work) > 0 {
			b := work[len(work)-1]
			work = work[:len(work)-1]
			if !l.set.Insert(b.ID) {
				continue
			}
			for _, p := range b.Preds() {
				if dom.Reachable(p) && !l.set.Has(p.ID) {
					work = append(work, p)
				}
			}
		}
		for _, b := range f.Blocks {
			if l.set.Has(b.ID) {
				l.blocks = append(l.blocks, b)
			}
		}
		lf.All = append(lf.All, l)
	}

	// The parent of a loop is the smallest other loop containing its header.
	bySize := append([]*Loop(nil), lf.All...)
	sort.SliceStable(bySize, func(i, j int) bool { return len(bySize[i].blocks) < len(bySize[j].blocks) })
	for i, l := range bySize {
		for _, outer := range bySize[i+1:] {
			if outer.Contains(l.header) {
				l.parent = outer
				break
			}
		}
	}
	for _, l := range lf.All {
		if l.parent == nil {
			lf.Roots = append(lf.Roots, l)
		} else {
			l.parent.children = append(l.parent.children, l)
		}
	}
	return lf
}
