package parser

import (
	"strings"
	"testing"

	"github.com/tinyrange/cminusc/internal/ast"
)

func mustParse(t testing.TB, src string) *ast.File {
	t.Helper()
	f, err := ParseFile("test.cminus", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return f
}

func TestParseDecls(t *testing.T) {
	f := mustParse(t, `
int g;
float buf[8];
int sum(int a[], int n) {
	int i;
	int s;
	i = 0;
	s = 0;
	while (i < n) {
		s = s + a[i];
		i = i + 1;
	}
	return s;
}
void main(void) { return; }
`)
	if len(f.Decls) != 4 {
		t.Fatalf("decls = %d, want 4", len(f.Decls))
	}
	g := f.Decls[0].(*ast.VarDecl)
	if g.Name != "g" || g.Typ != ast.BTInt || g.IsArray {
		t.Errorf("g = %+v", g)
	}
	buf := f.Decls[1].(*ast.VarDecl)
	if !buf.IsArray || buf.Len != 8 || buf.Typ != ast.BTFloat {
		t.Errorf("buf = %+v", buf)
	}
	sum := f.Decls[2].(*ast.FuncDecl)
	if sum.Ret != ast.BTInt || len(sum.Params) != 2 {
		t.Fatalf("sum = %+v", sum)
	}
	if !sum.Params[0].IsArray || sum.Params[1].IsArray {
		t.Errorf("params = %+v", sum.Params)
	}
	if len(sum.Body.Decls) != 2 || len(sum.Body.Stmts) != 4 {
		t.Errorf("sum body: %d decls, %d stmts, want 2 and 4", len(sum.Body.Decls), len(sum.Body.Stmts))
	}
	if _, ok := sum.Body.Stmts[2].(*ast.WhileStmt); !ok {
		t.Errorf("stmt 2 = %T, want *ast.WhileStmt", sum.Body.Stmts[2])
	}
	main := f.Decls[3].(*ast.FuncDecl)
	if main.Ret != ast.BTVoid || len(main.Params) != 0 {
		t.Errorf("main = %+v", main)
	}
	if r, ok := main.Body.Stmts[0].(*ast.ReturnStmt); !ok || r.Expr != nil {
		t.Errorf("main body = %+v", main.Body.Stmts)
	}
}

func TestPrecedence(t *testing.T) {
	f := mustParse(t, "int f(int a, int b) { return a + b * 2 < a - 1; }")
	ret := f.Decls[0].(*ast.FuncDecl).Body.Stmts[0].(*ast.ReturnStmt)
	cmp, ok := ret.Expr.(*ast.BinaryExpr)
	if !ok || cmp.Op != ast.OpLt {
		t.Fatalf("top = %+v, want <", ret.Expr)
	}
	add := cmp.Left.(*ast.BinaryExpr)
	if add.Op != ast.OpAdd {
		t.Errorf("left op = %v, want +", add.Op)
	}
	if mul := add.Right.(*ast.BinaryExpr); mul.Op != ast.OpMul {
		t.Errorf("a + b*2 parsed with %v on the right", mul.Op)
	}
	if sub := cmp.Right.(*ast.BinaryExpr); sub.Op != ast.OpSub {
		t.Errorf("right op = %v, want -", sub.Op)
	}
}

func TestAssignIsRightAssociative(t *testing.T) {
	f := mustParse(t, "void f(void) { int a; int b[2]; a = b[1] = 3; }")
	st := f.Decls[0].(*ast.FuncDecl).Body.Stmts[0].(*ast.ExprStmt)
	outer := st.X.(*ast.AssignExpr)
	if outer.Target.Name != "a" || outer.Target.Index != nil {
		t.Errorf("outer target = %+v", outer.Target)
	}
	inner, ok := outer.Value.(*ast.AssignExpr)
	if !ok || inner.Target.Name != "b" || inner.Target.Index == nil {
		t.Fatalf("inner = %+v", outer.Value)
	}
	if lit := inner.Value.(*ast.IntLit); lit.Value != 3 {
		t.Errorf("value = %d, want 3", lit.Value)
	}
}

func TestDanglingElse(t *testing.T) {
	f := mustParse(t, "void f(int a) { if (a) if (a > 1) a = 0; else a = 1; }")
	outer := f.Decls[0].(*ast.FuncDecl).Body.Stmts[0].(*ast.IfStmt)
	if outer.Else != nil {
		t.Error("else bound to the outer if")
	}
	if inner := outer.Then.(*ast.IfStmt); inner.Else == nil {
		t.Error("inner if lost its else")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"int f( { }", "test.cminus:1:8"},
		{"void x;", "declared void"},
		{"int a[0];", "bad array length"},
		{"int f(void) { 3 = 4; }", "cannot assign"},
		{"int f(void) { return 99999999999; }", "out of range"},
		{"int f(void x) { }", "parameter"},
		{"int f(void) { return 1 }", "expected ;"},
	}
	for _, tt := range tests {
		_, err := ParseFile("test.cminus", tt.src)
		if err == nil {
			t.Errorf("%q: no error", tt.src)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q: error %q does not mention %q", tt.src, err, tt.want)
		}
	}
}
