package ir

import (
	"errors"
	"fmt"
)

// ErrMalformed marks a structural violation of the IR.
var ErrMalformed = errors.New("malformed IR")

// FuncError locates a failure inside one function. Failures are local:
// callers report them and go on with the other functions.
type FuncError struct {
	Func  string
	Instr string // offending instruction, if any
	Err   error
}

func (e *FuncError) Error() string {
	if e.Instr != "" {
		return fmt.Sprintf("%s: %s: %v", e.Func, e.Instr, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Func, e.Err)
}

func (e *FuncError) Unwrap() error { return e.Err }

// Errorf wraps err with the location of f and, when non-nil, ins.
func Errorf(f *Function, ins *Instruction, err error) *FuncError {
	fe := &FuncError{Func: f.Name, Err: err}
	if ins != nil {
		fe.Instr = ins.String()
	}
	return fe
}
