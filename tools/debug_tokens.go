package main

import (
	"fmt"
	"os"

	"github.com/tinyrange/cminusc/internal/lexer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: debug_tokens <file>")
		os.Exit(2)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	for _, t := range lexer.All(string(data)) {
		fmt.Printf("%-8s %q at %d:%d\n", t.Type, t.Lex, t.Line, t.Col)
	}
}
