// Package passes holds the SSA construction and loop optimization passes.
package passes

import (
	"errors"
	"fmt"

	"github.com/tinyrange/cminusc/internal/analysis"
	"github.com/tinyrange/cminusc/internal/ir"
)

type Options struct {
	Mem2Reg bool
	LICM    bool
}

// Stats accumulates what the passes did over a whole module.
type Stats struct {
	Mem2RegStats
	LICMStats
}

// Result is the outcome of running the pipeline over a module.
type Result struct {
	Stats Stats
	// Failed maps each function that could not be processed to its error.
	// Such a function may be partially transformed and must not be emitted.
	Failed map[*ir.Function]error
	order  []error
}

// Err joins the per-function failures in module order.
func (r *Result) Err() error { return errors.Join(r.order...) }

func (r *Result) fail(f *ir.Function, err error) {
	var fe *ir.FuncError
	if !errors.As(err, &fe) {
		err = ir.Errorf(f, nil, err)
	}
	r.Failed[f] = err
	r.order = append(r.order, err)
}

// Run applies the enabled passes to every defined function of m. The IR is
// verified before and after each pass; a function failing anywhere is
// recorded and skipped by the later passes while the others go on.
func Run(m *ir.Module, opts Options) *Result {
	r := &Result{Failed: map[*ir.Function]error{}}
	var funcs []*ir.Function
	for _, f := range m.Funcs {
		if f.IsDeclaration() {
			continue
		}
		if err := ir.Verify(f); err != nil {
			r.fail(f, err)
			continue
		}
		funcs = append(funcs, f)
	}

	if opts.Mem2Reg {
		for _, f := range funcs {
			if r.Failed[f] != nil {
				continue
			}
			st, err := Mem2Reg(f, analysis.Dominators(f))
			if err == nil {
				err = verifyAfter(f, "mem2reg")
			}
			if err != nil {
				r.fail(f, err)
				continue
			}
			r.Stats.Promoted += st.Promoted
			r.Stats.Phis += st.Phis
		}
	}

	if opts.LICM {
		purity := analysis.NewFuncInfo(m)
		for _, f := range funcs {
			if r.Failed[f] != nil {
				continue
			}
			loops := analysis.FindLoops(f, analysis.Dominators(f))
			st, err := LICM(f, loops, purity)
			if err == nil {
				err = verifyAfter(f, "licm")
			}
			if err != nil {
				r.fail(f, err)
				continue
			}
			r.Stats.Hoisted += st.Hoisted
			r.Stats.Preheaders += st.Preheaders
		}
	}
	return r
}

func verifyAfter(f *ir.Function, pass string) error {
	if err := ir.Verify(f); err != nil {
		return fmt.Errorf("after %s: %w", pass, err)
	}
	return nil
}
