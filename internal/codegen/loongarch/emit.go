// Package loongarch lowers IR to LoongArch64 assembly. Every value lives
// in a stack slot: operands are loaded into scratch registers right
// before use and results are stored back right after.
package loongarch

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tinyrange/cminusc/internal/ir"
	"github.com/tinyrange/cminusc/internal/types"
)

// ErrUnsupported marks IR the backend cannot express.
var ErrUnsupported = errors.New("unsupported construct")

// Integer and float arguments are passed in $a0-$a7 and $fa0-$fa7, with
// separate counters. There are no stack-passed arguments.
const maxRegArgs = 8

func isImm12(v int64) bool { return v >= -2048 && v <= 2047 }

// EmitModule lowers every defined function of m.
func EmitModule(m *ir.Module) (string, error) { return Emit(m, nil) }

// Emit lowers the defined functions of m accepted by keep, or all of them
// when keep is nil. A function that fails to lower is left out of the
// listing; its error is joined into the returned one.
func Emit(m *ir.Module, keep func(*ir.Function) bool) (string, error) {
	var b strings.Builder
	if len(m.Globals) > 0 {
		b.WriteString("# Global variables\n")
		b.WriteString("  .text\n")
		b.WriteString("  .section .bss, \"aw\", @nobits\n")
		for _, g := range m.Globals {
			size := g.Contents.Size()
			fmt.Fprintf(&b, "  .globl %s\n", g.Name)
			fmt.Fprintf(&b, "  .type %s, @object\n", g.Name)
			fmt.Fprintf(&b, "  .size %s, %d\n", g.Name, size)
			fmt.Fprintf(&b, "%s:\n", g.Name)
			fmt.Fprintf(&b, "  .space %d\n", size)
		}
	}
	b.WriteString("  .text\n")
	var errs []error
	for _, f := range m.Funcs {
		if f.IsDeclaration() || (keep != nil && !keep(f)) {
			continue
		}
		text, err := emitFunc(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		b.WriteString(text)
	}
	return b.String(), errors.Join(errs...)
}

// funcCtx holds everything scoped to the function being lowered.
type funcCtx struct {
	f     *ir.Function
	frame *Frame
	out   strings.Builder
	fcmpN int   // numbers the labels of float comparisons
	err   error // first failure; later output is discarded
}

func emitFunc(f *ir.Function) (string, error) {
	if err := ir.Verify(f); err != nil {
		return "", err
	}
	frame, err := LayoutFrame(f)
	if err != nil {
		return "", err
	}
	c := &funcCtx{f: f, frame: frame}
	fmt.Fprintf(&c.out, "  .globl %s\n", f.Name)
	fmt.Fprintf(&c.out, "  .type %s, @function\n", f.Name)
	c.label(f.Name)
	frame.WriteMap(&c.out)
	c.prologue()
	if c.err != nil {
		return "", ir.Errorf(f, nil, c.err)
	}
	for _, b := range f.Blocks {
		c.label(c.blockLabel(b))
		for _, ins := range b.Instrs() {
			fmt.Fprintf(&c.out, "# %s\n", ins)
			c.lower(ins)
			if c.err != nil {
				return "", ir.Errorf(f, ins, c.err)
			}
		}
	}
	c.label(c.exitLabel())
	c.epilogue()
	return c.out.String(), nil
}

func (c *funcCtx) emit(format string, args ...any) {
	fmt.Fprintf(&c.out, "  "+format+"\n", args...)
}

func (c *funcCtx) label(name string) { fmt.Fprintf(&c.out, "%s:\n", name) }

func (c *funcCtx) fail(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
}

func (c *funcCtx) blockLabel(b *ir.BasicBlock) string { return "." + c.f.Name + "_" + b.Name }
func (c *funcCtx) exitLabel() string                  { return "." + c.f.Name + "_exit" }

func (c *funcCtx) prologue() {
	size := int64(c.frame.Size)
	if isImm12(-size) {
		c.emit("st.d $ra, $sp, -8")
		c.emit("st.d $fp, $sp, -16")
		c.emit("addi.d $fp, $sp, 0")
		c.emit("addi.d $sp, $sp, %d", -size)
	} else {
		c.loadLargeInt64(size, "$t0")
		c.emit("st.d $ra, $sp, -8")
		c.emit("st.d $fp, $sp, -16")
		c.emit("sub.d $sp, $sp, $t0")
		c.emit("add.d $fp, $sp, $t0")
	}
	gi, fi := 0, 0
	for _, a := range c.f.Args {
		if a.Typ.IsFloat() {
			if fi >= maxRegArgs {
				c.fail("%w: more than %d float parameters", ErrUnsupported, maxRegArgs)
				return
			}
			c.storeFromFreg(a, fmt.Sprintf("$fa%d", fi))
			fi++
		} else {
			if gi >= maxRegArgs {
				c.fail("%w: more than %d integer parameters", ErrUnsupported, maxRegArgs)
				return
			}
			c.storeFromGreg(a, fmt.Sprintf("$a%d", gi))
			gi++
		}
	}
}

func (c *funcCtx) epilogue() {
	size := int64(c.frame.Size)
	if isImm12(size) {
		c.emit("addi.d $sp, $sp, %d", size)
	} else {
		c.loadLargeInt64(size, "$t0")
		c.emit("add.d $sp, $sp, $t0")
	}
	c.emit("ld.d $ra, $sp, -8")
	c.emit("ld.d $fp, $sp, -16")
	c.emit("jr $ra")
}

// loadLargeInt32 builds v from its upper 20 and lower 12 bits.
func (c *funcCtx) loadLargeInt32(v int32, reg string) {
	c.emit("lu12i.w %s, %d", reg, v>>12)
	c.emit("ori %s, %s, %d", reg, reg, uint32(v)&0xfff)
}

func (c *funcCtx) loadLargeInt64(v int64, reg string) {
	c.loadLargeInt32(int32(v), reg)
	high := int32(v >> 32)
	c.emit("lu32i.d %s, %d", reg, (high<<12)>>12)
	c.emit("lu52i.d %s, %s, %d", reg, reg, high>>20)
}

func (c *funcCtx) loadImm(v int32, reg string) {
	if isImm12(int64(v)) {
		c.emit("addi.w %s, $zero, %d", reg, v)
	} else {
		c.loadLargeInt32(v, reg)
	}
}

// widthSuffix picks the ld/st width for a value kept in a general register.
func widthSuffix(t *types.Type) (string, bool) {
	switch t.K {
	case types.Int1:
		return "b", true
	case types.Int32:
		return "w", true
	case types.Ptr:
		return "d", true
	}
	return "", false
}

func (c *funcCtx) slot(v ir.Value) (int, bool) {
	off, ok := c.frame.Offset(v)
	if !ok {
		c.fail("%w: %s has no stack slot", ir.ErrMalformed, v.Ref())
	}
	return off, ok
}

// memOp emits "op reg, $fp, off", going through addr when off does not
// fit the immediate field.
func (c *funcCtx) memOp(op, reg string, off int, addr string) {
	if isImm12(int64(off)) {
		c.emit("%s %s, $fp, %d", op, reg, off)
		return
	}
	c.loadLargeInt64(int64(off), addr)
	c.emit("add.d %s, $fp, %s", addr, addr)
	c.emit("%s %s, %s, 0", op, reg, addr)
}

func (c *funcCtx) loadSlotG(off int, t *types.Type, reg string) {
	w, ok := widthSuffix(t)
	if !ok {
		c.fail("%w: %s value in a general register", ErrUnsupported, t)
		return
	}
	c.memOp("ld."+w, reg, off, reg)
}

func (c *funcCtx) storeSlotG(off int, t *types.Type, reg string) {
	w, ok := widthSuffix(t)
	if !ok {
		c.fail("%w: %s value in a general register", ErrUnsupported, t)
		return
	}
	c.memOp("st."+w, reg, off, "$t8")
}

func (c *funcCtx) loadSlotF(off int, reg string)  { c.memOp("fld.s", reg, off, "$t8") }
func (c *funcCtx) storeSlotF(off int, reg string) { c.memOp("fst.s", reg, off, "$t8") }

func (c *funcCtx) loadToGreg(v ir.Value, reg string) {
	switch v := v.(type) {
	case *ir.ConstantInt:
		c.loadImm(int32(v.Val), reg)
	case *ir.Undef:
		c.emit("addi.w %s, $zero, 0", reg)
	case *ir.GlobalVariable:
		c.emit("la.local %s, %s", reg, v.Name)
	default:
		if off, ok := c.slot(v); ok {
			c.loadSlotG(off, v.Type(), reg)
		}
	}
}

func (c *funcCtx) storeFromGreg(v ir.Value, reg string) {
	if off, ok := c.slot(v); ok {
		c.storeSlotG(off, v.Type(), reg)
	}
}

func (c *funcCtx) loadToFreg(v ir.Value, freg string) {
	switch v := v.(type) {
	case *ir.ConstantFP:
		c.loadLargeInt32(int32(math.Float32bits(v.Val)), "$t8")
		c.emit("movgr2fr.w %s, $t8", freg)
	case *ir.Undef:
		c.emit("movgr2fr.w %s, $zero", freg)
	default:
		if !v.Type().IsFloat() {
			c.fail("%w: %s is not a float", ErrUnsupported, v.Ref())
			return
		}
		if off, ok := c.slot(v); ok {
			c.loadSlotF(off, freg)
		}
	}
}

func (c *funcCtx) storeFromFreg(v ir.Value, freg string) {
	if off, ok := c.slot(v); ok {
		c.storeSlotF(off, freg)
	}
}

func (c *funcCtx) lower(ins *ir.Instruction) {
	switch {
	case ins.Op == ir.OpRet:
		c.lowerRet(ins)
	case ins.Op == ir.OpBr:
		c.lowerBr(ins)
	case ins.Op.IsBinary():
		c.lowerBinary(ins)
	case ins.Op.IsFloatBinary():
		c.lowerFloatBinary(ins)
	case ins.Op == ir.OpAlloca:
		c.lowerAlloca(ins)
	case ins.Op == ir.OpLoad:
		c.lowerLoad(ins)
	case ins.Op == ir.OpStore:
		c.lowerStore(ins)
	case ins.Op.IsICmp():
		c.lowerICmp(ins)
	case ins.Op.IsFCmp():
		c.lowerFCmp(ins)
	case ins.Op == ir.OpPhi:
		// assigned by copies at the end of each predecessor
	case ins.Op == ir.OpCall:
		c.lowerCall(ins)
	case ins.Op == ir.OpGEP:
		c.lowerGEP(ins)
	case ins.Op == ir.OpZExt:
		c.loadToGreg(ins.Operand(0), "$t0")
		c.emit("bstrpick.w $t1, $t0, 0, 0")
		c.storeFromGreg(ins, "$t1")
	case ins.Op == ir.OpFPToSI:
		c.loadToFreg(ins.Operand(0), "$ft0")
		c.emit("ftintrz.w.s $ft1, $ft0")
		c.emit("movfr2gr.s $t0, $ft1")
		c.storeFromGreg(ins, "$t0")
	case ins.Op == ir.OpSIToFP:
		c.loadToGreg(ins.Operand(0), "$t0")
		c.emit("movgr2fr.w $ft0, $t0")
		c.emit("ffint.s.w $ft1, $ft0")
		c.storeFromFreg(ins, "$ft1")
	default:
		c.fail("%w: opcode %s", ErrUnsupported, ins.Op)
	}
}

func (c *funcCtx) lowerRet(ins *ir.Instruction) {
	if ins.NumOperands() == 0 {
		c.emit("addi.w $a0, $zero, 0")
	} else if v := ins.Operand(0); v.Type().IsFloat() {
		c.loadToFreg(v, "$fa0")
	} else {
		c.loadToGreg(v, "$a0")
	}
	c.emit("b %s", c.exitLabel())
}

func (c *funcCtx) lowerBr(ins *ir.Instruction) {
	// the condition is read before the copies can overwrite its slot
	if ins.IsCondBr() {
		c.loadToGreg(ins.Operand(0), "$t0")
	}
	c.copyStatements(ins.Parent)
	if ins.IsCondBr() {
		c.emit("bstrpick.d $t0, $t0, 0, 0")
		c.emit("bnez $t0, %s", c.blockLabel(ins.Operand(1).(*ir.BasicBlock)))
		c.emit("b %s", c.blockLabel(ins.Operand(2).(*ir.BasicBlock)))
		return
	}
	c.emit("b %s", c.blockLabel(ins.Operand(0).(*ir.BasicBlock)))
}

// copyStatements assigns the successors' phis their values for the edge
// leaving b. Phis read by another copy are staged first so every copy
// sees the values from before the edge.
func (c *funcCtx) copyStatements(b *ir.BasicBlock) {
	copies := edgeCopies(b)
	dests := map[ir.Value]bool{}
	for _, cp := range copies {
		dests[cp.dst] = true
	}
	staged := map[ir.Value]int{}
	for _, cp := range copies {
		p, ok := cp.src.(*ir.Instruction)
		if !ok || !dests[p] || p == cp.dst {
			continue
		}
		if _, done := staged[p]; done {
			continue
		}
		off := c.frame.shadows[p]
		if p.Type().IsFloat() {
			c.loadToFreg(p, "$fa0")
			c.storeSlotF(off, "$fa0")
		} else {
			c.loadToGreg(p, "$a0")
			c.storeSlotG(off, p.Type(), "$a0")
		}
		staged[p] = off
	}
	for _, cp := range copies {
		off, fromShadow := staged[cp.src]
		switch {
		case cp.dst.Type().IsFloat() && fromShadow:
			c.loadSlotF(off, "$fa0")
			c.storeFromFreg(cp.dst, "$fa0")
		case cp.dst.Type().IsFloat():
			c.loadToFreg(cp.src, "$fa0")
			c.storeFromFreg(cp.dst, "$fa0")
		case fromShadow:
			c.loadSlotG(off, cp.dst.Type(), "$a0")
			c.storeFromGreg(cp.dst, "$a0")
		default:
			c.loadToGreg(cp.src, "$a0")
			c.storeFromGreg(cp.dst, "$a0")
		}
	}
}

var intOps = map[ir.Op]string{ir.OpAdd: "add.w", ir.OpSub: "sub.w", ir.OpMul: "mul.w", ir.OpSDiv: "div.w"}

var floatOps = map[ir.Op]string{ir.OpFAdd: "fadd.s", ir.OpFSub: "fsub.s", ir.OpFMul: "fmul.s", ir.OpFDiv: "fdiv.s"}

func (c *funcCtx) lowerBinary(ins *ir.Instruction) {
	c.loadToGreg(ins.Operand(0), "$t0")
	c.loadToGreg(ins.Operand(1), "$t1")
	c.emit("%s $t2, $t0, $t1", intOps[ins.Op])
	c.storeFromGreg(ins, "$t2")
}

func (c *funcCtx) lowerFloatBinary(ins *ir.Instruction) {
	c.loadToFreg(ins.Operand(0), "$ft0")
	c.loadToFreg(ins.Operand(1), "$ft1")
	c.emit("%s $ft2, $ft0, $ft1", floatOps[ins.Op])
	c.storeFromFreg(ins, "$ft2")
}

func (c *funcCtx) lowerAlloca(ins *ir.Instruction) {
	off, _ := c.frame.ObjectOffset(ins)
	if isImm12(int64(off)) {
		c.emit("addi.d $t0, $fp, %d", off)
	} else {
		c.loadLargeInt64(int64(off), "$t0")
		c.emit("add.d $t0, $fp, $t0")
	}
	c.storeFromGreg(ins, "$t0")
}

func (c *funcCtx) lowerLoad(ins *ir.Instruction) {
	c.loadToGreg(ins.Operand(0), "$t0")
	if ins.Type().IsFloat() {
		c.emit("fld.s $ft0, $t0, 0")
		c.storeFromFreg(ins, "$ft0")
		return
	}
	w, ok := widthSuffix(ins.Type())
	if !ok {
		c.fail("%w: load of %s", ErrUnsupported, ins.Type())
		return
	}
	c.emit("ld.%s $t1, $t0, 0", w)
	c.storeFromGreg(ins, "$t1")
}

func (c *funcCtx) lowerStore(ins *ir.Instruction) {
	v := ins.Operand(0)
	c.loadToGreg(ins.Operand(1), "$t0")
	if v.Type().IsFloat() {
		c.loadToFreg(v, "$ft0")
		c.emit("fst.s $ft0, $t0, 0")
		return
	}
	w, ok := widthSuffix(v.Type())
	if !ok {
		c.fail("%w: store of %s", ErrUnsupported, v.Type())
		return
	}
	c.loadToGreg(v, "$t1")
	c.emit("st.%s $t1, $t0, 0", w)
}

// lowerICmp builds every predicate from slt; xori negates a 0/1 result.
func (c *funcCtx) lowerICmp(ins *ir.Instruction) {
	c.loadToGreg(ins.Operand(0), "$t0")
	c.loadToGreg(ins.Operand(1), "$t1")
	switch ins.Op {
	case ir.OpLt:
		c.emit("slt $t2, $t0, $t1")
	case ir.OpGt:
		c.emit("slt $t2, $t1, $t0")
	case ir.OpGe:
		c.emit("slt $t2, $t0, $t1")
		c.emit("xori $t2, $t2, 1")
	case ir.OpLe:
		c.emit("slt $t2, $t1, $t0")
		c.emit("xori $t2, $t2, 1")
	case ir.OpNe, ir.OpEq:
		c.emit("slt $t2, $t0, $t1")
		c.emit("slt $t3, $t1, $t0")
		c.emit("or $t2, $t2, $t3")
		if ins.Op == ir.OpEq {
			c.emit("xori $t2, $t2, 1")
		}
	}
	c.storeFromGreg(ins, "$t2")
}

// lowerFCmp sets $fcc0 and branches to one of two numbered labels that
// store 1 or 0.
func (c *funcCtx) lowerFCmp(ins *ir.Instruction) {
	c.loadToFreg(ins.Operand(0), "$ft0")
	c.loadToFreg(ins.Operand(1), "$ft1")
	switch ins.Op {
	case ir.OpFLt:
		c.emit("fcmp.slt.s $fcc0, $ft0, $ft1")
	case ir.OpFLe:
		c.emit("fcmp.sle.s $fcc0, $ft0, $ft1")
	case ir.OpFGt:
		c.emit("fcmp.slt.s $fcc0, $ft1, $ft0")
	case ir.OpFGe:
		c.emit("fcmp.sle.s $fcc0, $ft1, $ft0")
	case ir.OpFEq:
		c.emit("fcmp.seq.s $fcc0, $ft0, $ft1")
	case ir.OpFNe:
		c.emit("fcmp.sne.s $fcc0, $ft0, $ft1")
	}
	n := c.fcmpN
	c.fcmpN++
	prefix := "." + c.f.Name + "_fcmp_"
	c.emit("bceqz $fcc0, %sfalse%d", prefix, n)
	c.label(fmt.Sprintf("%strue%d", prefix, n))
	c.emit("addi.w $t0, $zero, 1")
	c.storeFromGreg(ins, "$t0")
	c.emit("b %sexit%d", prefix, n)
	c.label(fmt.Sprintf("%sfalse%d", prefix, n))
	c.emit("addi.w $t0, $zero, 0")
	c.storeFromGreg(ins, "$t0")
	c.label(fmt.Sprintf("%sexit%d", prefix, n))
}

func (c *funcCtx) lowerCall(ins *ir.Instruction) {
	callee := ins.Callee()
	if callee == nil {
		c.fail("%w: indirect call", ErrUnsupported)
		return
	}
	gi, fi := 0, 0
	for _, a := range ins.CallArgs() {
		if a.Type().IsFloat() {
			if fi >= maxRegArgs {
				c.fail("%w: call to %s needs more than %d float argument registers", ErrUnsupported, callee.Name, maxRegArgs)
				return
			}
			c.loadToFreg(a, fmt.Sprintf("$fa%d", fi))
			fi++
		} else {
			if gi >= maxRegArgs {
				c.fail("%w: call to %s needs more than %d integer argument registers", ErrUnsupported, callee.Name, maxRegArgs)
				return
			}
			c.loadToGreg(a, fmt.Sprintf("$a%d", gi))
			gi++
		}
	}
	c.emit("bl %s", callee.Name)
	switch {
	case ins.IsVoid():
	case ins.Type().IsFloat():
		c.storeFromFreg(ins, "$fa0")
	default:
		c.storeFromGreg(ins, "$a0")
	}
}

// lowerGEP computes base + index * element size. Both operand shapes
// reduce to this: the leading zero index of the array form is ignored.
func (c *funcCtx) lowerGEP(ins *ir.Instruction) {
	c.loadToGreg(ins.Operand(0), "$t0")
	c.loadToGreg(ins.Operand(ins.NumOperands()-1), "$t1")
	c.loadImm(int32(ins.Type().Elem.Size()), "$t2")
	c.emit("mul.w $t3, $t1, $t2")
	c.emit("add.d $t3, $t0, $t3")
	c.storeFromGreg(ins, "$t3")
}
