package passes

import (
	"strings"
	"testing"

	"github.com/tinyrange/cminusc/internal/analysis"
	"github.com/tinyrange/cminusc/internal/interp"
	"github.com/tinyrange/cminusc/internal/ir"
	"github.com/tinyrange/cminusc/internal/irgen"
	"github.com/tinyrange/cminusc/internal/parser"
	"github.com/tinyrange/cminusc/internal/types"
)

func buildModule(t testing.TB, src string) *ir.Module {
	t.Helper()
	file, err := parser.ParseFile("test.cminus", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := ir.NewModule("test")
	if err := irgen.BuildModule(file, m); err != nil {
		t.Fatalf("build: %v", err)
	}
	return m
}

func runMain(t testing.TB, m *ir.Module, input string) (int32, string) {
	t.Helper()
	var out strings.Builder
	code, err := interp.New(m, strings.NewReader(input), &out).Run()
	if err != nil {
		t.Fatalf("run: %v\n%s", err, m)
	}
	return code, out.String()
}

func mem2regAll(t testing.TB, m *ir.Module) Mem2RegStats {
	t.Helper()
	var total Mem2RegStats
	for _, f := range m.Funcs {
		st, err := Mem2Reg(f, analysis.Dominators(f))
		if err != nil {
			t.Fatalf("mem2reg %s: %v", f.Name, err)
		}
		if err := ir.Verify(f); err != nil {
			t.Fatalf("verify after mem2reg: %v\n%s", err, f)
		}
		total.Promoted += st.Promoted
		total.Phis += st.Phis
	}
	return total
}

// checkSSA asserts that every use in a reachable block is dominated by
// its definition. Phi operands count as uses at the end of the incoming
// block.
func checkSSA(t testing.TB, f *ir.Function) {
	t.Helper()
	dom := analysis.Dominators(f)
	for _, b := range f.Blocks {
		if !dom.Reachable(b) {
			continue
		}
		pos := map[*ir.Instruction]int{}
		for i, ins := range b.Instrs() {
			pos[ins] = i
		}
		for i, ins := range b.Instrs() {
			if ins.Op == ir.OpPhi {
				for _, in := range ins.Incoming() {
					def, ok := in.Value.(*ir.Instruction)
					if ok && !dom.Dominates(def.Parent, in.Block) {
						t.Errorf("%s: %s does not dominate edge from %s", f.Name, def.Ref(), in.Block.Name)
					}
				}
				continue
			}
			for _, op := range ins.Operands() {
				def, ok := op.(*ir.Instruction)
				if !ok {
					continue
				}
				if def.Parent == b {
					if pos[def] >= i {
						t.Errorf("%s: %s used before its definition in %s", f.Name, def.Ref(), b.Name)
					}
				} else if !dom.Dominates(def.Parent, b) {
					t.Errorf("%s: definition of %s does not dominate its use in %s", f.Name, def.Ref(), b.Name)
				}
			}
		}
	}
}

// checkPhis asserts one incoming pair per reachable predecessor.
func checkPhis(t testing.TB, f *ir.Function) {
	t.Helper()
	dom := analysis.Dominators(f)
	for _, b := range f.Blocks {
		if !dom.Reachable(b) {
			continue
		}
		var preds int
		for _, p := range b.Preds() {
			if dom.Reachable(p) {
				preds++
			}
		}
		for _, phi := range b.Phis() {
			if got := len(phi.Incoming()); got != preds {
				t.Errorf("%s: %s has %d incoming pairs, block %s has %d reachable preds", f.Name, phi, got, b.Name, preds)
			}
			for _, p := range b.Preds() {
				if _, ok := phi.IncomingFor(p); dom.Reachable(p) && !ok {
					t.Errorf("%s: %s has no pair for %s", f.Name, phi, p.Name)
				}
			}
		}
	}
}

func countOps(f *ir.Function, ops ...ir.Op) int {
	n := 0
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs() {
			for _, op := range ops {
				if ins.Op == op {
					n++
				}
			}
		}
	}
	return n
}

// TestMem2RegIfElse promotes x in
//
//	x = 0; if (c) x = x + 1; else ; return x;
func TestMem2RegIfElse(t *testing.T) {
	m := ir.NewModule("test")
	f := m.NewFunction("f", types.Int32T, types.Int32T)
	entry := f.NewBlock("entry")
	then := f.NewBlock("then")
	els := f.NewBlock("else")
	merge := f.NewBlock("merge")

	b := ir.NewBuilder(entry)
	x := b.Alloca(types.Int32T)
	b.Store(ir.ConstInt(0), x)
	b.CondBr(b.Cmp(ir.OpNe, f.Args[0], ir.ConstInt(0)), then, els)
	b.SetBlock(then)
	inc := b.Add(b.Load(x), ir.ConstInt(1))
	b.Store(inc, x)
	b.Br(merge)
	b.SetBlock(els)
	b.Br(merge)
	b.SetBlock(merge)
	ret := b.Ret(b.Load(x))

	st, err := Mem2Reg(f, analysis.Dominators(f))
	if err != nil {
		t.Fatalf("mem2reg: %v", err)
	}
	if st.Promoted != 1 || st.Phis != 1 {
		t.Errorf("stats = %+v, want 1 promoted, 1 phi", st)
	}
	if err := ir.Verify(f); err != nil {
		t.Fatalf("verify: %v\n%s", err, f)
	}
	if n := countOps(f, ir.OpAlloca, ir.OpLoad, ir.OpStore); n != 0 {
		t.Errorf("%d memory instructions left\n%s", n, f)
	}

	phis := merge.Phis()
	if len(phis) != 1 {
		t.Fatalf("merge has %d phis\n%s", len(phis), f)
	}
	phi := phis[0]
	if len(phi.Incoming()) != 2 {
		t.Fatalf("phi = %s", phi)
	}
	if v, ok := phi.IncomingFor(els); !ok || v.(*ir.ConstantInt).Val != 0 {
		t.Errorf("value from else = %v", v)
	}
	if v, ok := phi.IncomingFor(then); !ok || v != ir.Value(inc) {
		t.Errorf("value from then = %v, want %s", v, inc.Ref())
	}
	if c, ok := inc.Operand(0).(*ir.ConstantInt); !ok || c.Val != 0 {
		t.Errorf("increment reads %s, want 0", inc.Operand(0).Ref())
	}
	if ret.Operand(0) != ir.Value(phi) {
		t.Errorf("ret reads %s, want the phi", ret.Operand(0).Ref())
	}
	for _, ins := range entry.Instrs() {
		if ins.Op == ir.OpPhi {
			t.Error("phi placed in entry")
		}
	}
}

func TestMem2RegPrograms(t *testing.T) {
	tests := []struct {
		name, src, input string
	}{
		{"loop", `int main(void) {
			int i; int s;
			i = 0; s = 0;
			while (i < 10) { s = s + i; i = i + 1; }
			output(s);
			return s;
		}`, ""},
		{"nested", `int main(void) {
			int i; int j; int s;
			i = 0; s = 0;
			while (i < 4) {
				j = i;
				while (j < 4) { if (j / 2 * 2 == j) s = s + j; else s = s - 1; j = j + 1; }
				i = i + 1;
			}
			return s;
		}`, ""},
		{"swap", `int main(void) {
			int a; int b; int t; int n;
			a = 1; b = 2; n = 0;
			while (n < 5) { t = a; a = b; b = t; output(a * 10 + b); n = n + 1; }
			return a;
		}`, ""},
		{"arrays", `int g[4];
			int sum(int a[], int n) { int i; int s; i = 0; s = 0; while (i < n) { s = s + a[i]; i = i + 1; } return s; }
			int main(void) {
				int x[4]; int i;
				i = 0;
				while (i < 4) { x[i] = i + input(); g[i] = x[i] * 2; i = i + 1; }
				output(sum(x, 4));
				return sum(g, 4);
			}`, "1 2 3 4"},
		{"floats", `float avg(float a, float b) { float s; s = a + b; return s / 2; }
			int main(void) {
				float f; int k;
				f = 0.5; k = 0;
				while (f < 10) { f = avg(f, f * 4); k = k + 1; }
				outputFloat(f);
				return k;
			}`, ""},
		{"early return", `int find(int n) {
				int i;
				i = 0;
				while (1) { if (i * i >= n) return i; i = i + 1; }
				return 0 - 1;
			}
			int main(void) { return find(50); }`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode, wantOut := runMain(t, buildModule(t, tt.src), tt.input)

			m := buildModule(t, tt.src)
			st := mem2regAll(t, m)
			if st.Promoted == 0 {
				t.Error("nothing promoted")
			}
			for _, f := range m.Funcs {
				checkSSA(t, f)
				checkPhis(t, f)
			}
			code, out := runMain(t, m, tt.input)
			if code != wantCode || out != wantOut {
				t.Errorf("after mem2reg: exit %d output %q, want %d %q", code, out, wantCode, wantOut)
			}
		})
	}
}

func TestMem2RegKeepsArrays(t *testing.T) {
	m := buildModule(t, `int main(void) { int a[3]; int x; a[1] = 4; x = a[1]; return x; }`)
	mem2regAll(t, m)
	f := m.Func("main")
	var allocas []*ir.Instruction
	for _, ins := range f.Entry().Instrs() {
		if ins.Op == ir.OpAlloca {
			allocas = append(allocas, ins)
		}
	}
	if len(allocas) != 1 || !allocas[0].AllocType.IsArray() {
		t.Fatalf("allocas left = %v, want only the array", allocas)
	}
	if countOps(f, ir.OpLoad) != 1 || countOps(f, ir.OpStore) != 1 {
		t.Errorf("array traffic changed\n%s", f)
	}
}

func TestMem2RegUndefinedRead(t *testing.T) {
	m := buildModule(t, `int f(void) { int x; return x; }`)
	mem2regAll(t, m)
	term := m.Func("f").Entry().Terminator()
	if _, ok := term.Operand(0).(*ir.Undef); !ok {
		t.Errorf("ret reads %s, want undef", term.Operand(0).Ref())
	}
}

func TestMem2RegUnreachableLoad(t *testing.T) {
	m := ir.NewModule("test")
	f := m.NewFunction("f", types.Int32T)
	entry := f.NewBlock("entry")
	dead := f.NewBlock("dead")
	b := ir.NewBuilder(entry)
	x := b.Alloca(types.Int32T)
	b.Store(ir.ConstInt(5), x)
	live := b.Ret(b.Load(x))
	b.SetBlock(dead)
	b.Store(ir.ConstInt(6), x)
	deadRet := b.Ret(b.Load(x))

	if _, err := Mem2Reg(f, analysis.Dominators(f)); err != nil {
		t.Fatalf("mem2reg: %v", err)
	}
	if c, ok := live.Operand(0).(*ir.ConstantInt); !ok || c.Val != 5 {
		t.Errorf("live ret reads %s, want 5", live.Operand(0).Ref())
	}
	if _, ok := deadRet.Operand(0).(*ir.Undef); !ok {
		t.Errorf("unreachable ret reads %s, want undef", deadRet.Operand(0).Ref())
	}
	if n := countOps(f, ir.OpAlloca, ir.OpLoad, ir.OpStore); n != 0 {
		t.Errorf("%d memory instructions left\n%s", n, f)
	}
}

func TestMem2RegEscapingAddress(t *testing.T) {
	m := ir.NewModule("test")
	f := m.NewFunction("f", types.Int32T)
	b := ir.NewBuilder(f.NewBlock("entry"))
	x := b.Alloca(types.Int32T)
	p := b.Alloca(types.PointerTo(types.Int32T))
	b.Store(x, p)
	b.Store(ir.ConstInt(1), x)
	b.Ret(b.Load(x))

	st, err := Mem2Reg(f, analysis.Dominators(f))
	if err != nil {
		t.Fatalf("mem2reg: %v", err)
	}
	// p is promoted; x is not since its address is stored
	if st.Promoted != 1 {
		t.Errorf("promoted %d, want 1", st.Promoted)
	}
	if x.Parent == nil {
		t.Error("escaping alloca was removed")
	}
}
