// Package irgen translates a C-minus-f syntax tree into non-SSA IR: every
// variable lives in memory and is accessed through load and store.
package irgen

import (
	"fmt"

	"github.com/tinyrange/cminusc/internal/ast"
	"github.com/tinyrange/cminusc/internal/ir"
	"github.com/tinyrange/cminusc/internal/types"
)

// Runtime functions every program may call.
const (
	FnInput        = "input"
	FnOutput       = "output"
	FnOutputFloat  = "outputFloat"
	FnNegIdxExcept = "neg_idx_except"
)

// symbol is a named storage location: a global, an alloca, or the alloca
// holding an array parameter's pointer.
type symbol struct {
	addr ir.Value
	typ  *types.Type // type of the named object
}

type scope map[string]symbol

type moduleCtx struct {
	m       *ir.Module
	globals scope
	funcs   map[string]*ir.Function
}

type buildCtx struct {
	*moduleCtx
	f      *ir.Function
	b      *ir.Builder
	scopes []scope
	dead   bool // the current block already ended
}

func basicType(t ast.BasicType) *types.Type {
	switch t {
	case ast.BTInt:
		return types.Int32T
	case ast.BTFloat:
		return types.FloatT
	}
	return types.VoidT
}

// BuildModule appends the runtime declarations and every declaration of
// file to m.
func BuildModule(file *ast.File, m *ir.Module) error {
	mc := &moduleCtx{m: m, globals: scope{}, funcs: map[string]*ir.Function{}}
	mc.funcs[FnInput] = m.NewFunction(FnInput, types.Int32T)
	mc.funcs[FnOutput] = m.NewFunction(FnOutput, types.VoidT, types.Int32T)
	mc.funcs[FnOutputFloat] = m.NewFunction(FnOutputFloat, types.VoidT, types.FloatT)
	mc.funcs[FnNegIdxExcept] = m.NewFunction(FnNegIdxExcept, types.VoidT)

	for _, d := range file.Decls {
		switch d := d.(type) {
		case *ast.VarDecl:
			if _, dup := mc.globals[d.Name]; dup {
				return fmt.Errorf("%s: %s redeclared", d.Pos, d.Name)
			}
			t := varType(d)
			mc.globals[d.Name] = symbol{addr: m.NewGlobal(d.Name, t), typ: t}
		case *ast.FuncDecl:
			if _, dup := mc.funcs[d.Name]; dup {
				return fmt.Errorf("%s: function %s redeclared", d.Pos, d.Name)
			}
			var params []*types.Type
			for _, p := range d.Params {
				params = append(params, paramType(p))
			}
			f := m.NewFunction(d.Name, basicType(d.Ret), params...)
			mc.funcs[d.Name] = f
			ctx := &buildCtx{moduleCtx: mc, f: f}
			if err := ctx.buildFunc(d); err != nil {
				return err
			}
		}
	}
	return nil
}

func varType(d *ast.VarDecl) *types.Type {
	if d.IsArray {
		return types.ArrayOf(basicType(d.Typ), d.Len)
	}
	return basicType(d.Typ)
}

func paramType(p ast.Param) *types.Type {
	if p.IsArray {
		return types.PointerTo(basicType(p.Typ))
	}
	return basicType(p.Typ)
}

func (c *buildCtx) buildFunc(d *ast.FuncDecl) error {
	c.b = ir.NewBuilder(c.f.NewBlock("entry"))
	c.push()
	slots := make([]*ir.Instruction, len(d.Params))
	for i, p := range d.Params {
		a := c.f.Args[i]
		slots[i] = c.b.Alloca(a.Typ)
		if err := c.declare(p.Pos, p.Name, symbol{addr: slots[i], typ: a.Typ}); err != nil {
			return err
		}
	}
	for i, slot := range slots {
		c.b.Store(c.f.Args[i], slot)
	}
	if err := c.buildBlock(d.Body); err != nil {
		return err
	}
	c.pop()
	if !c.dead {
		switch {
		case c.f.RetType.IsVoid():
			c.b.RetVoid()
		case c.f.RetType.IsFloat():
			c.b.Ret(ir.ConstFloat(0))
		default:
			c.b.Ret(ir.ConstInt(0))
		}
	}
	return nil
}

func (c *buildCtx) push() { c.scopes = append(c.scopes, scope{}) }
func (c *buildCtx) pop()  { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *buildCtx) declare(pos ast.Pos, name string, s symbol) error {
	top := c.scopes[len(c.scopes)-1]
	if _, dup := top[name]; dup {
		return fmt.Errorf("%s: %s redeclared", pos, name)
	}
	top[name] = s
	return nil
}

func (c *buildCtx) lookup(pos ast.Pos, name string) (symbol, error) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if s, ok := c.scopes[i][name]; ok {
			return s, nil
		}
	}
	if s, ok := c.globals[name]; ok {
		return s, nil
	}
	return symbol{}, fmt.Errorf("%s: undefined variable %s", pos, name)
}

// setBlock continues building in b.
func (c *buildCtx) setBlock(b *ir.BasicBlock) {
	c.b.SetBlock(b)
	c.dead = false
}

func (c *buildCtx) buildBlock(blk *ast.BlockStmt) error {
	c.push()
	defer c.pop()
	for _, d := range blk.Decls {
		t := varType(d)
		slot := c.b.AllocaAtEntry(t)
		if err := c.declare(d.Pos, d.Name, symbol{addr: slot, typ: t}); err != nil {
			return err
		}
	}
	for _, s := range blk.Stmts {
		// code after a return is never built
		if c.dead {
			return nil
		}
		if err := c.buildStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *buildCtx) buildStmt(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.BlockStmt:
		return c.buildBlock(s)
	case *ast.ExprStmt:
		if s.X == nil {
			return nil
		}
		_, err := c.buildExpr(s.X)
		return err
	case *ast.IfStmt:
		return c.buildIf(s)
	case *ast.WhileStmt:
		return c.buildWhile(s)
	case *ast.ReturnStmt:
		return c.buildReturn(s)
	}
	return fmt.Errorf("unsupported statement %T", s)
}

func (c *buildCtx) buildReturn(s *ast.ReturnStmt) error {
	if s.Expr == nil {
		if !c.f.RetType.IsVoid() {
			return fmt.Errorf("%s: %s must return a value", s.Pos, c.f.Name)
		}
		c.b.RetVoid()
		c.dead = true
		return nil
	}
	if c.f.RetType.IsVoid() {
		return fmt.Errorf("%s: void function %s returns a value", s.Pos, c.f.Name)
	}
	v, err := c.buildExpr(s.Expr)
	if err != nil {
		return err
	}
	c.b.Ret(c.convert(v, c.f.RetType))
	c.dead = true
	return nil
}

// buildCond evaluates e and compares it against zero.
func (c *buildCtx) buildCond(e ast.Expr) (ir.Value, error) {
	v, err := c.buildExpr(e)
	if err != nil {
		return nil, err
	}
	if v.Type().IsFloat() {
		return c.b.Cmp(ir.OpFNe, v, ir.ConstFloat(0)), nil
	}
	if v.Type().IsVoid() {
		return nil, fmt.Errorf("void value used as a condition")
	}
	return c.b.Cmp(ir.OpNe, v, ir.ConstInt(0)), nil
}

func (c *buildCtx) buildIf(s *ast.IfStmt) error {
	cond, err := c.buildCond(s.Cond)
	if err != nil {
		return err
	}
	thenB := c.f.NewBlock("then")
	var elseB, joinB *ir.BasicBlock
	if s.Else != nil {
		elseB = c.f.NewBlock("else")
		c.b.CondBr(cond, thenB, elseB)
	} else {
		joinB = c.f.NewBlock("ifcont")
		c.b.CondBr(cond, thenB, joinB)
	}
	// the join block is created on first use so a fully returning
	// if/else leaves no unreachable block behind
	toJoin := func() {
		if c.dead {
			return
		}
		if joinB == nil {
			joinB = c.f.NewBlock("ifcont")
		}
		c.b.Br(joinB)
	}

	c.setBlock(thenB)
	if err := c.buildStmt(s.Then); err != nil {
		return err
	}
	toJoin()
	if elseB != nil {
		c.setBlock(elseB)
		if err := c.buildStmt(s.Else); err != nil {
			return err
		}
		toJoin()
	}
	if joinB == nil {
		c.dead = true
		return nil
	}
	c.setBlock(joinB)
	return nil
}

func (c *buildCtx) buildWhile(s *ast.WhileStmt) error {
	condB := c.f.NewBlock("loopcond")
	c.b.Br(condB)
	c.setBlock(condB)
	cond, err := c.buildCond(s.Cond)
	if err != nil {
		return err
	}
	bodyB := c.f.NewBlock("loopbody")
	exitB := c.f.NewBlock("afterloop")
	c.b.CondBr(cond, bodyB, exitB)

	c.setBlock(bodyB)
	if err := c.buildStmt(s.Body); err != nil {
		return err
	}
	if !c.dead {
		c.b.Br(condB)
	}
	c.setBlock(exitB)
	return nil
}

// convert applies the implicit int/float conversions.
func (c *buildCtx) convert(v ir.Value, to *types.Type) ir.Value {
	switch {
	case to.IsFloat() && v.Type().K == types.Int32:
		return c.b.SIToFP(v)
	case to.K == types.Int32 && v.Type().IsFloat():
		return c.b.FPToSI(v)
	}
	return v
}

var intBinOps = map[ast.BinOp]ir.Op{
	ast.OpAdd: ir.OpAdd, ast.OpSub: ir.OpSub, ast.OpMul: ir.OpMul, ast.OpDiv: ir.OpSDiv,
	ast.OpEq: ir.OpEq, ast.OpNe: ir.OpNe, ast.OpLt: ir.OpLt, ast.OpLe: ir.OpLe, ast.OpGt: ir.OpGt, ast.OpGe: ir.OpGe,
}

var floatBinOps = map[ast.BinOp]ir.Op{
	ast.OpAdd: ir.OpFAdd, ast.OpSub: ir.OpFSub, ast.OpMul: ir.OpFMul, ast.OpDiv: ir.OpFDiv,
	ast.OpEq: ir.OpFEq, ast.OpNe: ir.OpFNe, ast.OpLt: ir.OpFLt, ast.OpLe: ir.OpFLe, ast.OpGt: ir.OpFGt, ast.OpGe: ir.OpFGe,
}

func (c *buildCtx) buildExpr(e ast.Expr) (ir.Value, error) {
	switch e := e.(type) {
	case *ast.IntLit:
		return ir.ConstInt(e.Value), nil
	case *ast.FloatLit:
		return ir.ConstFloat(e.Value), nil
	case *ast.VarRef:
		return c.buildVarValue(e)
	case *ast.AssignExpr:
		addr, err := c.buildAddr(e.Target)
		if err != nil {
			return nil, err
		}
		v, err := c.buildExpr(e.Value)
		if err != nil {
			return nil, err
		}
		if v.Type().IsVoid() {
			return nil, fmt.Errorf("%s: void value assigned to %s", e.Target.Pos, e.Target.Name)
		}
		v = c.convert(v, addr.Type().Elem)
		c.b.Store(v, addr)
		return v, nil
	case *ast.BinaryExpr:
		return c.buildBinary(e)
	case *ast.CallExpr:
		return c.buildCall(e)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func (c *buildCtx) buildBinary(e *ast.BinaryExpr) (ir.Value, error) {
	l, err := c.buildExpr(e.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.buildExpr(e.Right)
	if err != nil {
		return nil, err
	}
	if l.Type().IsVoid() || r.Type().IsVoid() {
		return nil, fmt.Errorf("void value used in arithmetic")
	}
	ops := intBinOps
	if l.Type().IsFloat() || r.Type().IsFloat() {
		ops = floatBinOps
		l, r = c.convert(l, types.FloatT), c.convert(r, types.FloatT)
	}
	if e.Op.IsComparison() {
		return c.b.ZExt(c.b.Cmp(ops[e.Op], l, r)), nil
	}
	return c.b.Binary(ops[e.Op], l, r), nil
}

func (c *buildCtx) buildCall(e *ast.CallExpr) (ir.Value, error) {
	fn, ok := c.funcs[e.Name]
	if !ok {
		return nil, fmt.Errorf("%s: undefined function %s", e.Pos, e.Name)
	}
	if len(e.Args) != len(fn.Args) {
		return nil, fmt.Errorf("%s: %s takes %d arguments, got %d", e.Pos, e.Name, len(fn.Args), len(e.Args))
	}
	args := make([]ir.Value, len(e.Args))
	for i, a := range e.Args {
		want := fn.Args[i].Typ
		if want.IsPointer() {
			ref, ok := a.(*ast.VarRef)
			if !ok || ref.Index != nil {
				return nil, fmt.Errorf("%s: argument %d of %s must be an array", e.Pos, i+1, e.Name)
			}
			p, err := c.buildArrayPtr(ref)
			if err != nil {
				return nil, err
			}
			args[i] = p
			continue
		}
		v, err := c.buildExpr(a)
		if err != nil {
			return nil, err
		}
		if !v.Type().IsScalar() || v.Type().IsPointer() {
			return nil, fmt.Errorf("%s: bad argument %d to %s", e.Pos, i+1, e.Name)
		}
		args[i] = c.convert(v, want)
	}
	return c.b.Call(fn, args...), nil
}

// buildArrayPtr yields a pointer to the first element of an array
// variable or array parameter.
func (c *buildCtx) buildArrayPtr(ref *ast.VarRef) (ir.Value, error) {
	s, err := c.lookup(ref.Pos, ref.Name)
	if err != nil {
		return nil, err
	}
	switch {
	case s.typ.IsArray():
		return c.b.GEP(s.addr, ir.ConstInt(0), ir.ConstInt(0)), nil
	case s.typ.IsPointer():
		return c.b.Load(s.addr), nil
	}
	return nil, fmt.Errorf("%s: %s is not an array", ref.Pos, ref.Name)
}

func (c *buildCtx) buildVarValue(ref *ast.VarRef) (ir.Value, error) {
	if ref.Index == nil {
		s, err := c.lookup(ref.Pos, ref.Name)
		if err != nil {
			return nil, err
		}
		if !s.typ.IsScalar() || s.typ.IsPointer() {
			return nil, fmt.Errorf("%s: array %s used as a value", ref.Pos, ref.Name)
		}
	}
	addr, err := c.buildAddr(ref)
	if err != nil {
		return nil, err
	}
	return c.b.Load(addr), nil
}

// buildAddr computes the address a variable reference denotes. Indexing
// checks for a negative index and calls the runtime handler when it is.
func (c *buildCtx) buildAddr(ref *ast.VarRef) (ir.Value, error) {
	s, err := c.lookup(ref.Pos, ref.Name)
	if err != nil {
		return nil, err
	}
	if ref.Index == nil {
		if !s.typ.IsScalar() || s.typ.IsPointer() {
			return nil, fmt.Errorf("%s: cannot assign to array %s", ref.Pos, ref.Name)
		}
		return s.addr, nil
	}
	if !s.typ.IsArray() && !s.typ.IsPointer() {
		return nil, fmt.Errorf("%s: %s is not an array", ref.Pos, ref.Name)
	}
	idx, err := c.buildExpr(ref.Index)
	if err != nil {
		return nil, err
	}
	if idx.Type().IsVoid() {
		return nil, fmt.Errorf("%s: void index into %s", ref.Pos, ref.Name)
	}
	idx = c.convert(idx, types.Int32T)

	neg := c.b.Cmp(ir.OpLt, idx, ir.ConstInt(0))
	negB := c.f.NewBlock("negidx")
	okB := c.f.NewBlock("idxok")
	c.b.CondBr(neg, negB, okB)
	c.setBlock(negB)
	c.b.Call(c.funcs[FnNegIdxExcept])
	c.b.Br(okB)
	c.setBlock(okB)

	if s.typ.IsArray() {
		return c.b.GEP(s.addr, ir.ConstInt(0), idx), nil
	}
	return c.b.GEP(c.b.Load(s.addr), idx), nil
}
