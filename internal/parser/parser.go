package parser

import (
	"fmt"
	"strconv"

	"github.com/tinyrange/cminusc/internal/ast"
	"github.com/tinyrange/cminusc/internal/lexer"
)

type Parser struct {
	filename string
	lx       *lexer.Lexer
	tok      lexer.Token
}

// ParseFile parses a whole C-minus-f translation unit and stops at the
// first syntax error.
func ParseFile(filename, src string) (*ast.File, error) {
	p := &Parser{filename: filename, lx: lexer.New(src)}
	p.next()
	f := &ast.File{}
	for p.tok.Type != lexer.EOF {
		d, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		f.Decls = append(f.Decls, d)
	}
	return f, nil
}

func (p *Parser) next() { p.tok = p.lx.Next() }

func (p *Parser) pos() ast.Pos { return ast.Pos{Line: p.tok.Line, Col: p.tok.Col} }

func (p *Parser) errorf(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if p.filename != "" {
		return fmt.Errorf("%s:%d:%d: %s", p.filename, p.tok.Line, p.tok.Col, msg)
	}
	return fmt.Errorf("%d:%d: %s", p.tok.Line, p.tok.Col, msg)
}

func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	if p.tok.Type != tt {
		return lexer.Token{}, p.errorf("expected %v, got %q", tt, p.tok.Lex)
	}
	t := p.tok
	p.next()
	return t, nil
}

func (p *Parser) parseType() (ast.BasicType, error) {
	var t ast.BasicType
	switch p.tok.Type {
	case lexer.KW_INT:
		t = ast.BTInt
	case lexer.KW_FLOAT:
		t = ast.BTFloat
	case lexer.KW_VOID:
		t = ast.BTVoid
	default:
		return 0, p.errorf("expected type, got %q", p.tok.Lex)
	}
	p.next()
	return t, nil
}

// parseDecl handles `type ID ;`, `type ID [ N ] ;` and function definitions.
func (p *Parser) parseDecl() (ast.Decl, error) {
	pos := p.pos()
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expect(lexer.IDENT)
	if err != nil {
		return nil, err
	}
	if p.tok.Type != lexer.LPAREN {
		return p.finishVarDecl(pos, typ, nameTok.Lex)
	}
	p.next()
	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	if _, err = p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FuncDecl{Pos: pos, Name: nameTok.Lex, Ret: typ, Params: params, Body: body}, nil
}

func (p *Parser) finishVarDecl(pos ast.Pos, typ ast.BasicType, name string) (*ast.VarDecl, error) {
	if typ == ast.BTVoid {
		return nil, p.errorf("variable %s declared void", name)
	}
	d := &ast.VarDecl{Pos: pos, Name: name, Typ: typ}
	if p.tok.Type == lexer.LBRACK {
		p.next()
		n, err := p.expect(lexer.INT)
		if err != nil {
			return nil, err
		}
		d.IsArray = true
		d.Len, err = strconv.Atoi(n.Lex)
		if err != nil || d.Len <= 0 {
			return nil, p.errorf("bad array length %s", n.Lex)
		}
		if _, err := p.expect(lexer.RBRACK); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.SEMI); err != nil {
		return nil, err
	}
	return d, nil
}

func (p *Parser) parseParams() ([]ast.Param, error) {
	var params []ast.Param
	if p.tok.Type == lexer.KW_VOID {
		p.next()
		if p.tok.Type == lexer.RPAREN {
			return nil, nil
		}
		return nil, p.errorf("parameter declared void")
	}
	if p.tok.Type == lexer.RPAREN {
		return nil, nil
	}
	for {
		pos := p.pos()
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		nameTok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		if typ == ast.BTVoid {
			return nil, p.errorf("parameter %s declared void", nameTok.Lex)
		}
		prm := ast.Param{Pos: pos, Name: nameTok.Lex, Typ: typ}
		if p.tok.Type == lexer.LBRACK {
			p.next()
			if _, err := p.expect(lexer.RBRACK); err != nil {
				return nil, err
			}
			prm.IsArray = true
		}
		params = append(params, prm)
		if p.tok.Type == lexer.COMMA {
			p.next()
			continue
		}
		return params, nil
	}
}

func (p *Parser) parseBlock() (*ast.BlockStmt, error) {
	if _, err := p.expect(lexer.LBRACE); err != nil {
		return nil, err
	}
	blk := &ast.BlockStmt{}
	for p.tok.Type == lexer.KW_INT || p.tok.Type == lexer.KW_FLOAT || p.tok.Type == lexer.KW_VOID {
		pos := p.pos()
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		nameTok, err := p.expect(lexer.IDENT)
		if err != nil {
			return nil, err
		}
		d, err := p.finishVarDecl(pos, typ, nameTok.Lex)
		if err != nil {
			return nil, err
		}
		blk.Decls = append(blk.Decls, d)
	}
	for p.tok.Type != lexer.RBRACE && p.tok.Type != lexer.EOF {
		s, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		blk.Stmts = append(blk.Stmts, s)
	}
	if _, err := p.expect(lexer.RBRACE); err != nil {
		return nil, err
	}
	return blk, nil
}

func (p *Parser) parseStmt() (ast.Stmt, error) {
	switch p.tok.Type {
	case lexer.LBRACE:
		return p.parseBlock()
	case lexer.SEMI:
		p.next()
		return &ast.ExprStmt{}, nil
	case lexer.KW_RETURN:
		pos := p.pos()
		p.next()
		if p.tok.Type == lexer.SEMI {
			p.next()
			return &ast.ReturnStmt{Pos: pos}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.SEMI); err != nil {
			return nil, err
		}
		return &ast.ReturnStmt{Pos: pos, Expr: e}, nil
	case lexer.KW_IF:
		p.next()
		cond, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		then, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		s := &ast.IfStmt{Cond: cond, Then: then}
		if p.tok.Type == lexer.KW_ELSE {
			p.next()
			if s.Else, err = p.parseStmt(); err != nil {
				return nil, err
			}
		}
		return s, nil
	case lexer.KW_WHILE:
		p.next()
		cond, err := p.parseParenExpr()
		if err != nil {
			return nil, err
		}
		body, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		return &ast.WhileStmt{Cond: cond, Body: body}, nil
	default:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.SEMI); err != nil {
			return nil, err
		}
		return &ast.ExprStmt{X: e}, nil
	}
}

func (p *Parser) parseParenExpr() (ast.Expr, error) {
	if _, err := p.expect(lexer.LPAREN); err != nil {
		return nil, err
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RPAREN); err != nil {
		return nil, err
	}
	return e, nil
}

// Expr grammar:
// expr     = var '=' expr | simple
// simple   = additive [ relop additive ]
// additive = term { (+|-) term }
// term     = factor { (*|/) factor }
// factor   = '(' expr ')' | var | call | INT | FLOAT
func (p *Parser) parseExpr() (ast.Expr, error) {
	left, err := p.parseSimple()
	if err != nil {
		return nil, err
	}
	if p.tok.Type != lexer.ASSIGN {
		return left, nil
	}
	target, ok := left.(*ast.VarRef)
	if !ok {
		return nil, p.errorf("cannot assign to this expression")
	}
	p.next()
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.AssignExpr{Target: target, Value: v}, nil
}

func (p *Parser) parseSimple() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := relOps[p.tok.Type]
	if !ok {
		return left, nil
	}
	p.next()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &ast.BinaryExpr{Op: op, Left: left, Right: right}, nil
}

var relOps = map[lexer.TokenType]ast.BinOp{
	lexer.EQEQ: ast.OpEq, lexer.NEQ: ast.OpNe,
	lexer.LT: ast.OpLt, lexer.LE: ast.OpLe, lexer.GT: ast.OpGt, lexer.GE: ast.OpGe,
}

func (p *Parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.tok.Type == lexer.PLUS || p.tok.Type == lexer.MINUS {
		op := p.tok.Type
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: binOpFromToken(op), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseTerm() (ast.Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.tok.Type == lexer.STAR || p.tok.Type == lexer.SLASH {
		op := p.tok.Type
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: binOpFromToken(op), Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseFactor() (ast.Expr, error) {
	switch p.tok.Type {
	case lexer.IDENT:
		pos := p.pos()
		name := p.tok.Lex
		p.next()
		switch p.tok.Type {
		case lexer.LPAREN:
			p.next()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &ast.CallExpr{Pos: pos, Name: name, Args: args}, nil
		case lexer.LBRACK:
			p.next()
			idx, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RBRACK); err != nil {
				return nil, err
			}
			return &ast.VarRef{Pos: pos, Name: name, Index: idx}, nil
		}
		return &ast.VarRef{Pos: pos, Name: name}, nil
	case lexer.INT:
		v, err := strconv.ParseInt(p.tok.Lex, 10, 32)
		if err != nil {
			return nil, p.errorf("integer literal %s out of range", p.tok.Lex)
		}
		p.next()
		return &ast.IntLit{Value: v}, nil
	case lexer.FLOAT:
		v, err := strconv.ParseFloat(p.tok.Lex, 32)
		if err != nil {
			return nil, p.errorf("bad float literal %s", p.tok.Lex)
		}
		p.next()
		return &ast.FloatLit{Value: float32(v)}, nil
	case lexer.LPAREN:
		return p.parseParenExpr()
	default:
		return nil, p.errorf("unexpected token %q", p.tok.Lex)
	}
}

// parseArgs parses a call's argument list after the opening parenthesis,
// consuming the closing one.
func (p *Parser) parseArgs() ([]ast.Expr, error) {
	var args []ast.Expr
	if p.tok.Type == lexer.RPAREN {
		p.next()
		return args, nil
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
		if p.tok.Type == lexer.COMMA {
			p.next()
			continue
		}
		if _, err := p.expect(lexer.RPAREN); err != nil {
			return nil, err
		}
		return args, nil
	}
}

func binOpFromToken(t lexer.TokenType) ast.BinOp {
	switch t {
	case lexer.PLUS:
		return ast.OpAdd
	case lexer.MINUS:
		return ast.OpSub
	case lexer.STAR:
		return ast.OpMul
	default:
		return ast.OpDiv
	}
}
