package passes

import (
	"errors"
	"strings"
	"testing"

	"github.com/tinyrange/cminusc/internal/ir"
	"github.com/tinyrange/cminusc/internal/types"
)

func TestRunIsolatesFailures(t *testing.T) {
	m := buildModule(t, `int f(int n) {
		int i; int s;
		i = 0; s = 0;
		while (i < n) { s = s + n * 2; i = i + 1; }
		return s;
	}`)
	bad := m.NewFunction("bad", types.VoidT)
	ir.NewBuilder(bad.NewBlock("entry")).Alloca(types.Int32T)

	r := Run(m, Options{Mem2Reg: true, LICM: true})
	if r.Failed[bad] == nil {
		t.Fatal("malformed function not reported")
	}
	if r.Failed[m.Func("f")] != nil {
		t.Errorf("f failed: %v", r.Failed[m.Func("f")])
	}
	err := r.Err()
	if !errors.Is(err, ir.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
	var fe *ir.FuncError
	if !errors.As(err, &fe) || fe.Func != "bad" {
		t.Errorf("err = %v, want a FuncError for bad", err)
	}
	if r.Stats.Promoted != 3 {
		t.Errorf("promoted = %d, want 3", r.Stats.Promoted)
	}
	if r.Stats.Hoisted != 1 || r.Stats.Preheaders != 1 {
		t.Errorf("licm stats = %+v", r.Stats.LICMStats)
	}
	// the broken function is left untouched
	if len(bad.Entry().Instrs()) != 1 {
		t.Errorf("bad was transformed")
	}
}

func TestRunPassSelection(t *testing.T) {
	src := `int f(int n) { int i; i = 0; while (i < n) i = i + n * 2; return i; }`

	m := buildModule(t, src)
	r := Run(m, Options{})
	if r.Err() != nil || r.Stats != (Stats{}) {
		t.Errorf("no passes: err = %v, stats = %+v", r.Err(), r.Stats)
	}
	if !strings.Contains(m.Func("f").String(), "alloca") {
		t.Error("locals promoted with mem2reg disabled")
	}

	m = buildModule(t, src)
	r = Run(m, Options{Mem2Reg: true})
	if r.Stats.Promoted != 2 || r.Stats.Hoisted != 0 {
		t.Errorf("mem2reg only: stats = %+v", r.Stats)
	}

	// without mem2reg n is reloaded from its slot on every iteration, and
	// since the loop stores to i's slot only, that load is invariant
	m = buildModule(t, src)
	r = Run(m, Options{LICM: true})
	if r.Err() != nil {
		t.Fatalf("licm only: %v", r.Err())
	}
	if r.Stats.Promoted != 0 || r.Stats.Hoisted == 0 {
		t.Errorf("licm only: stats = %+v", r.Stats)
	}
}
