package ast

import "fmt"

type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Col) }

type File struct {
	Decls []Decl
}

type Decl interface{ isDecl() }

type BasicType int

const (
	BTVoid BasicType = iota
	BTInt
	BTFloat
)

func (t BasicType) String() string {
	switch t {
	case BTInt:
		return "int"
	case BTFloat:
		return "float"
	}
	return "void"
}

// VarDecl declares a scalar, or an array of Len elements when IsArray.
// It appears both at file scope and at the top of a block.
type VarDecl struct {
	Pos
	Name    string
	Typ     BasicType
	IsArray bool
	Len     int
}

func (*VarDecl) isDecl() {}

type FuncDecl struct {
	Pos
	Name   string
	Ret    BasicType
	Params []Param
	Body   *BlockStmt
}

func (*FuncDecl) isDecl() {}

// Param is a scalar parameter, or an array parameter (int a[]) passed as
// a pointer to its first element.
type Param struct {
	Pos
	Name    string
	Typ     BasicType
	IsArray bool
}

type Stmt interface{ isStmt() }

type BlockStmt struct {
	Decls []*VarDecl
	Stmts []Stmt
}

func (*BlockStmt) isStmt() {}

// ExprStmt with a nil X is the empty statement.
type ExprStmt struct{ X Expr }

func (*ExprStmt) isStmt() {}

type IfStmt struct {
	Cond Expr
	Then Stmt
	Else Stmt // may be nil
}

func (*IfStmt) isStmt() {}

type WhileStmt struct {
	Cond Expr
	Body Stmt
}

func (*WhileStmt) isStmt() {}

type ReturnStmt struct {
	Pos
	Expr Expr // may be nil
}

func (*ReturnStmt) isStmt() {}

type Expr interface{ isExpr() }

type AssignExpr struct {
	Target *VarRef
	Value  Expr
}

func (*AssignExpr) isExpr() {}

type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op BinOp) IsComparison() bool { return op >= OpEq }

type BinaryExpr struct {
	Op          BinOp
	Left, Right Expr
}

func (*BinaryExpr) isExpr() {}

type CallExpr struct {
	Pos
	Name string
	Args []Expr
}

func (*CallExpr) isExpr() {}

// VarRef names a variable, or one element of it when Index is set.
type VarRef struct {
	Pos
	Name  string
	Index Expr
}

func (*VarRef) isExpr() {}

type IntLit struct{ Value int64 }

func (*IntLit) isExpr() {}

type FloatLit struct{ Value float32 }

func (*FloatLit) isExpr() {}
