package loongarch

import (
	"fmt"
	"io"

	"github.com/google/btree"

	"github.com/tinyrange/cminusc/internal/ir"
)

const (
	// saved $ra and $fp sit at fp-8 and fp-16
	prologueOffsetBase = 16
	stackAlign         = 16
)

type SlotKind int

const (
	SlotArg    SlotKind = iota // incoming argument
	SlotValue                  // instruction result
	SlotObject                 // storage reserved by an alloca
	SlotShadow                 // staging copy of a phi read by a sibling phi copy
)

func (k SlotKind) String() string {
	switch k {
	case SlotArg:
		return "arg"
	case SlotValue:
		return "value"
	case SlotObject:
		return "object"
	default:
		return "shadow"
	}
}

// Slot is a region [Off, Off+Size) relative to the frame pointer.
type Slot struct {
	Off  int
	Size int
	Kind SlotKind
	Name string
}

// Frame is the stack layout of one function. Every argument and every
// non-void instruction gets its own slot; nothing is reused.
type Frame struct {
	Size int

	offsets map[ir.Value]int
	objects map[*ir.Instruction]int // alloca -> start of its object
	shadows map[*ir.Instruction]int
	layout  *btree.BTreeG[Slot]
}

func align(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}

// LayoutFrame assigns slots for f. The result depends only on f, so two
// calls on an unchanged function agree.
func LayoutFrame(f *ir.Function) (*Frame, error) {
	fr := &Frame{
		offsets: map[ir.Value]int{},
		objects: map[*ir.Instruction]int{},
		shadows: map[*ir.Instruction]int{},
		layout:  btree.NewG(8, func(a, b Slot) bool { return a.Off < b.Off }),
	}
	off := prologueOffsetBase
	bump := func(size, a int) int {
		off = align(off+size, a)
		return -off
	}
	place := func(v ir.Value, name string, kind SlotKind) error {
		size := v.Type().Size()
		if size == 0 || size > 8 {
			return fmt.Errorf("%w: %s of type %s has no register-sized slot", ErrUnsupported, name, v.Type())
		}
		fr.offsets[v] = bump(size, size)
		fr.add(Slot{Off: fr.offsets[v], Size: size, Kind: kind, Name: name})
		return nil
	}

	for _, a := range f.Args {
		if err := place(a, a.Ref(), SlotArg); err != nil {
			return nil, ir.Errorf(f, nil, err)
		}
	}
	for _, b := range f.Blocks {
		for _, ins := range b.Instrs() {
			if ins.IsVoid() {
				continue
			}
			if err := place(ins, ins.Ref(), SlotValue); err != nil {
				return nil, ir.Errorf(f, ins, err)
			}
			if ins.Op == ir.OpAlloca {
				size := ins.AllocType.Size()
				fr.objects[ins] = bump(size, 8)
				if size > 0 {
					fr.add(Slot{Off: fr.objects[ins], Size: size, Kind: SlotObject, Name: "*" + ins.Ref()})
				}
			}
		}
	}
	for _, phi := range shadowedPhis(f) {
		size := phi.Type().Size()
		fr.shadows[phi] = bump(size, size)
		fr.add(Slot{Off: fr.shadows[phi], Size: size, Kind: SlotShadow, Name: "'" + phi.Ref()})
	}

	fr.Size = align(off, stackAlign)
	if err := fr.check(); err != nil {
		return nil, ir.Errorf(f, nil, err)
	}
	return fr, nil
}

// shadowedPhis lists, in program order, the phis whose old value must be
// staged before the copies at the end of some predecessor run, because
// another phi fed from the same block reads it.
func shadowedPhis(f *ir.Function) []*ir.Instruction {
	need := map[*ir.Instruction]bool{}
	for _, b := range f.Blocks {
		dests := map[ir.Value]bool{}
		for _, c := range edgeCopies(b) {
			dests[c.dst] = true
		}
		for _, c := range edgeCopies(b) {
			if p, ok := c.src.(*ir.Instruction); ok && dests[p] && p != c.dst {
				need[p] = true
			}
		}
	}
	var out []*ir.Instruction
	for _, b := range f.Blocks {
		for _, phi := range b.Phis() {
			if need[phi] {
				out = append(out, phi)
			}
		}
	}
	return out
}

type phiCopy struct {
	dst *ir.Instruction
	src ir.Value
}

// edgeCopies lists the phi assignments performed when control leaves b.
// A phi without an entry for b gets nothing: its value is unspecified
// along that edge.
func edgeCopies(b *ir.BasicBlock) []phiCopy {
	var out []phiCopy
	for _, s := range b.Succs() {
		for _, phi := range s.Phis() {
			if v, ok := phi.IncomingFor(b); ok {
				out = append(out, phiCopy{dst: phi, src: v})
			}
		}
	}
	return out
}

func (fr *Frame) add(s Slot) { fr.layout.ReplaceOrInsert(s) }

// check walks the slots by address and rejects any overlap or any slot
// reaching into the saved registers.
func (fr *Frame) check() error {
	var err error
	end := -fr.Size
	fr.layout.Ascend(func(s Slot) bool {
		if s.Off < end {
			err = fmt.Errorf("frame slot %s at %d overlaps the slot below it", s.Name, s.Off)
			return false
		}
		end = s.Off + s.Size
		return true
	})
	if err == nil && end > -prologueOffsetBase {
		err = fmt.Errorf("frame slots reach into the saved registers")
	}
	return err
}

// Offset returns the frame-pointer-relative slot of v.
func (fr *Frame) Offset(v ir.Value) (int, bool) {
	off, ok := fr.offsets[v]
	return off, ok
}

// ObjectOffset returns where the storage of an alloca starts.
func (fr *Frame) ObjectOffset(alloca *ir.Instruction) (int, bool) {
	off, ok := fr.objects[alloca]
	return off, ok
}

// Slots lists every slot from the lowest address up.
func (fr *Frame) Slots() []Slot {
	out := make([]Slot, 0, fr.layout.Len())
	fr.layout.Ascend(func(s Slot) bool {
		out = append(out, s)
		return true
	})
	return out
}

// WriteMap prints the layout as assembler comments, highest address first.
func (fr *Frame) WriteMap(w io.Writer) {
	fmt.Fprintf(w, "# frame size %d\n", fr.Size)
	fr.layout.Descend(func(s Slot) bool {
		fmt.Fprintf(w, "#   %6d %-6s %d %s\n", s.Off, s.Kind, s.Size, s.Name)
		return true
	})
}
