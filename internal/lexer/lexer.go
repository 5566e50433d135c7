package lexer

import (
	"unicode"
)

type Lexer struct {
	src  []rune
	i    int
	ch   rune
	line int
	col  int
}

func New(src string) *Lexer {
	l := &Lexer{src: []rune(src), line: 1}
	l.read()
	return l
}

func (l *Lexer) read() {
	if l.i >= len(l.src) {
		l.ch = 0
		return
	}
	l.ch = l.src[l.i]
	l.i++
	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peek() rune {
	if l.i >= len(l.src) {
		return 0
	}
	return l.src[l.i]
}

var single = map[rune]TokenType{
	'(': LPAREN, ')': RPAREN, '{': LBRACE, '}': RBRACE, '[': LBRACK, ']': RBRACK,
	';': SEMI, ',': COMMA, '+': PLUS, '-': MINUS, '*': STAR, '/': SLASH,
}

// withEq maps a character to its token alone and followed by '='.
var withEq = map[rune][2]TokenType{
	'=': {ASSIGN, EQEQ},
	'<': {LT, LE},
	'>': {GT, GE},
	'!': {ILLEGAL, NEQ},
}

func (l *Lexer) skipSpaceAndComments() {
	for {
		for unicode.IsSpace(l.ch) {
			l.read()
		}
		if l.ch == '/' && l.peek() == '/' {
			for l.ch != 0 && l.ch != '\n' {
				l.read()
			}
			continue
		}
		if l.ch == '/' && l.peek() == '*' {
			l.read()
			l.read()
			for l.ch != 0 {
				if l.ch == '*' && l.peek() == '/' {
					l.read()
					l.read()
					break
				}
				l.read()
			}
			continue
		}
		return
	}
}

func (l *Lexer) Next() Token {
	l.skipSpaceAndComments()
	tok := Token{Line: l.line, Col: l.col}
	ch := l.ch
	switch {
	case ch == 0:
		tok.Type = EOF
	case single[ch] != EOF:
		tok.Type, tok.Lex = single[ch], string(ch)
		l.read()
	case withEq[ch] != [2]TokenType{}:
		pair := withEq[ch]
		l.read()
		if l.ch == '=' {
			tok.Type, tok.Lex = pair[1], string(ch)+"="
			l.read()
		} else {
			tok.Type, tok.Lex = pair[0], string(ch)
		}
	case unicode.IsLetter(ch) || ch == '_':
		ident := []rune{ch}
		l.read()
		for unicode.IsLetter(l.ch) || unicode.IsDigit(l.ch) || l.ch == '_' {
			ident = append(ident, l.ch)
			l.read()
		}
		tok.Lex = string(ident)
		if kw, ok := keywords[tok.Lex]; ok {
			tok.Type = kw
		} else {
			tok.Type = IDENT
		}
	case unicode.IsDigit(ch) || (ch == '.' && unicode.IsDigit(l.peek())):
		tok.Type, tok.Lex = l.number()
	default:
		tok.Type, tok.Lex = ILLEGAL, string(ch)
		l.read()
	}
	return tok
}

// number scans an integer or a float literal: digits with an optional
// fraction, where either side of the point may be empty.
func (l *Lexer) number() (TokenType, string) {
	var num []rune
	for unicode.IsDigit(l.ch) {
		num = append(num, l.ch)
		l.read()
	}
	if l.ch != '.' {
		return INT, string(num)
	}
	num = append(num, l.ch)
	l.read()
	for unicode.IsDigit(l.ch) {
		num = append(num, l.ch)
		l.read()
	}
	return FLOAT, string(num)
}

// All scans the whole input, including the final EOF token.
func All(src string) []Token {
	l := New(src)
	var toks []Token
	for {
		t := l.Next()
		toks = append(toks, t)
		if t.Type == EOF {
			return toks
		}
	}
}
