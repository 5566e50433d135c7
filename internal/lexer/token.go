package lexer

type TokenType int

const (
	// Special
	EOF TokenType = iota
	ILLEGAL

	// Identifiers + literals
	IDENT
	INT
	FLOAT

	// Keywords
	KW_INT
	KW_FLOAT
	KW_VOID
	KW_RETURN
	KW_IF
	KW_ELSE
	KW_WHILE

	// Symbols
	LPAREN // (
	RPAREN // )
	LBRACE // {
	RBRACE // }
	LBRACK // [
	RBRACK // ]
	SEMI   // ;
	COMMA  // ,
	ASSIGN // =

	// Arithmetic
	PLUS  // +
	MINUS // -
	STAR  // *
	SLASH // /

	// Comparison
	EQEQ // ==
	NEQ  // !=
	LT   // <
	LE   // <=
	GT   // >
	GE   // >=
)

var tokenNames = [...]string{
	EOF: "EOF", ILLEGAL: "ILLEGAL",
	IDENT: "IDENT", INT: "INT", FLOAT: "FLOAT",
	KW_INT: "int", KW_FLOAT: "float", KW_VOID: "void", KW_RETURN: "return",
	KW_IF: "if", KW_ELSE: "else", KW_WHILE: "while",
	LPAREN: "(", RPAREN: ")", LBRACE: "{", RBRACE: "}", LBRACK: "[", RBRACK: "]",
	SEMI: ";", COMMA: ",", ASSIGN: "=",
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/",
	EQEQ: "==", NEQ: "!=", LT: "<", LE: "<=", GT: ">", GE: ">=",
}

func (t TokenType) String() string {
	if int(t) < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}
	return "?"
}

var keywords = map[string]TokenType{
	"int":    KW_INT,
	"float":  KW_FLOAT,
	"void":   KW_VOID,
	"return": KW_RETURN,
	"if":     KW_IF,
	"else":   KW_ELSE,
	"while":  KW_WHILE,
}

type Token struct {
	Type TokenType
	Lex  string
	Line int
	Col  int
}

func (t Token) Is(op TokenType) bool { return t.Type == op }
