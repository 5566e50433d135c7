package ir

import (
	"fmt"
	"strings"
)

func typed(v Value) string { return v.Type().String() + " " + v.Ref() }

func (i *Instruction) String() string {
	var sb strings.Builder
	if !i.IsVoid() {
		fmt.Fprintf(&sb, "%s = ", i.Ref())
	}
	switch i.Op {
	case OpRet:
		if len(i.ops) == 0 {
			sb.WriteString("ret void")
		} else {
			sb.WriteString("ret " + typed(i.ops[0]))
		}
	case OpBr:
		if i.IsCondBr() {
			fmt.Fprintf(&sb, "br %s, label %s, label %s", typed(i.ops[0]), i.ops[1].Ref(), i.ops[2].Ref())
		} else {
			fmt.Fprintf(&sb, "br label %s", i.ops[0].Ref())
		}
	case OpAlloca:
		fmt.Fprintf(&sb, "alloca %s", i.AllocType)
	case OpLoad:
		fmt.Fprintf(&sb, "load %s, %s", i.typ, typed(i.ops[0]))
	case OpStore:
		fmt.Fprintf(&sb, "store %s, %s", typed(i.ops[0]), typed(i.ops[1]))
	case OpPhi:
		fmt.Fprintf(&sb, "phi %s ", i.typ)
		for n, in := range i.Incoming() {
			if n > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "[ %s, %s ]", in.Value.Ref(), in.Block.Ref())
		}
	case OpCall:
		args := make([]string, 0, len(i.ops)-1)
		for _, a := range i.CallArgs() {
			args = append(args, typed(a))
		}
		fmt.Fprintf(&sb, "call %s %s(%s)", i.typ, i.ops[0].Ref(), strings.Join(args, ", "))
	case OpGEP:
		parts := make([]string, len(i.ops))
		for n, op := range i.ops {
			parts[n] = typed(op)
		}
		fmt.Fprintf(&sb, "getelementptr %s", strings.Join(parts, ", "))
	case OpZExt, OpFPToSI, OpSIToFP:
		fmt.Fprintf(&sb, "%s %s to %s", i.Op, typed(i.ops[0]), i.typ)
	default:
		fmt.Fprintf(&sb, "%s %s %s, %s", i.Op, i.ops[0].Type(), i.ops[0].Ref(), i.ops[1].Ref())
	}
	return sb.String()
}

func (b *BasicBlock) String() string {
	var sb strings.Builder
	sb.WriteString(b.Name + ":")
	if len(b.preds) > 0 {
		names := make([]string, len(b.preds))
		for i, p := range b.preds {
			names[i] = p.Ref()
		}
		fmt.Fprintf(&sb, "                    ; preds = %s", strings.Join(names, ", "))
	}
	sb.WriteString("\n")
	for _, ins := range b.instrs {
		sb.WriteString("  " + ins.String() + "\n")
	}
	return sb.String()
}

func (f *Function) String() string {
	var sb strings.Builder
	params := make([]string, len(f.Args))
	for i, a := range f.Args {
		params[i] = typed(a)
		if f.IsDeclaration() {
			params[i] = a.Typ.String()
		}
	}
	if f.IsDeclaration() {
		fmt.Fprintf(&sb, "declare %s %s(%s)\n", f.RetType, f.Ref(), strings.Join(params, ", "))
		return sb.String()
	}
	fmt.Fprintf(&sb, "define %s %s(%s) {\n", f.RetType, f.Ref(), strings.Join(params, ", "))
	for _, b := range f.Blocks {
		sb.WriteString(b.String())
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (m *Module) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; ModuleID = '%s'\n", m.Name)
	for _, g := range m.Globals {
		fmt.Fprintf(&sb, "%s = global %s zeroinitializer\n", g.Ref(), g.Contents)
	}
	for _, f := range m.Funcs {
		sb.WriteString(f.String())
	}
	return sb.String()
}
