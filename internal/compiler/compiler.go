// Package compiler strings the front end, the passes and the LoongArch
// backend together.
package compiler

import (
	"errors"
	"fmt"

	"github.com/tinyrange/cminusc/internal/codegen/loongarch"
	"github.com/tinyrange/cminusc/internal/ir"
	"github.com/tinyrange/cminusc/internal/irgen"
	"github.com/tinyrange/cminusc/internal/parser"
	"github.com/tinyrange/cminusc/internal/passes"
)

type Options struct {
	Mem2Reg bool
	LICM    bool
	// SkipCodegen stops after the passes; Result.Asm stays empty.
	SkipCodegen bool
}

func DefaultOptions() Options { return Options{Mem2Reg: true, LICM: true} }

type FrameInfo struct {
	Func string
	Size int
}

type Result struct {
	Module *ir.Module
	Asm    string
	Stats  passes.Stats
	// SplitEdges counts the blocks inserted on critical edges before codegen.
	SplitEdges int
	Frames     []FrameInfo
}

// Frontend parses src and builds its unoptimized IR.
func Frontend(name, src string) (*ir.Module, error) {
	file, err := parser.ParseFile(name, src)
	if err != nil {
		return nil, err
	}
	m := ir.NewModule(name)
	if err := irgen.BuildModule(file, m); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

// Compile runs the whole pipeline. Front end errors abort it. Failures
// inside single functions do not: those functions are left out of the
// listing, the rest is still produced and the failures come back joined
// alongside a non-nil Result.
func Compile(name, src string, opts Options) (*Result, error) {
	m, err := Frontend(name, src)
	if err != nil {
		return nil, err
	}
	pr := passes.Run(m, passes.Options{Mem2Reg: opts.Mem2Reg, LICM: opts.LICM})
	res := &Result{Module: m, Stats: pr.Stats}
	errs := []error{pr.Err()}

	ok := func(f *ir.Function) bool { return pr.Failed[f] == nil }
	for _, f := range m.Funcs {
		if f.IsDeclaration() || !ok(f) {
			continue
		}
		n, err := ir.SplitCriticalEdges(f)
		if err != nil {
			pr.Failed[f] = ir.Errorf(f, nil, err)
			errs = append(errs, pr.Failed[f])
			continue
		}
		res.SplitEdges += n
	}
	if opts.SkipCodegen {
		return res, errors.Join(errs...)
	}

	for _, f := range m.Funcs {
		if f.IsDeclaration() || !ok(f) {
			continue
		}
		if fr, err := loongarch.LayoutFrame(f); err == nil {
			res.Frames = append(res.Frames, FrameInfo{Func: f.Name, Size: fr.Size})
		}
	}
	res.Asm, err = loongarch.Emit(m, ok)
	errs = append(errs, err)
	return res, errors.Join(errs...)
}
