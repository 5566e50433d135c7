package ir

import (
	"strconv"

	"github.com/tinyrange/cminusc/internal/types"
)

// Value is anything an instruction can name as an operand.
type Value interface {
	Type() *types.Type
	// Ref is how the value is spelled when used as an operand.
	Ref() string
	// Uses lists the instructions reading this value, one entry per operand slot.
	Uses() []*Instruction
	addUse(user *Instruction)
	removeUse(user *Instruction)
}

type useList struct {
	uses []*Instruction
}

func (u *useList) Uses() []*Instruction { return u.uses }

func (u *useList) addUse(user *Instruction) { u.uses = append(u.uses, user) }

func (u *useList) removeUse(user *Instruction) {
	for i, x := range u.uses {
		if x == user {
			u.uses = append(u.uses[:i], u.uses[i+1:]...)
			return
		}
	}
}

// ReplaceAllUsesWith rewires every operand slot that reads old to read new instead.
func ReplaceAllUsesWith(old, new Value) {
	users := append([]*Instruction(nil), old.Uses()...)
	for _, u := range users {
		for i, op := range u.ops {
			if op == old {
				u.SetOperand(i, new)
			}
		}
	}
}

type ConstantInt struct {
	useList
	typ *types.Type
	Val int64
}

func ConstInt(v int64) *ConstantInt { return &ConstantInt{typ: types.Int32T, Val: v} }

func (c *ConstantInt) Type() *types.Type { return c.typ }
func (c *ConstantInt) Ref() string       { return strconv.FormatInt(c.Val, 10) }

type ConstantFP struct {
	useList
	Val float32
}

func ConstFloat(v float32) *ConstantFP { return &ConstantFP{Val: v} }

func (c *ConstantFP) Type() *types.Type { return types.FloatT }
func (c *ConstantFP) Ref() string       { return strconv.FormatFloat(float64(c.Val), 'e', -1, 32) }

// Undef stands for a value nobody defined, such as a read of a local
// before its first store. Any bit pattern is a correct materialization.
type Undef struct {
	useList
	typ *types.Type
}

func NewUndef(t *types.Type) *Undef { return &Undef{typ: t} }

func (u *Undef) Type() *types.Type { return u.typ }
func (u *Undef) Ref() string       { return "undef" }

// GlobalVariable is a named, zero-initialized object. As a value it is the
// object's address.
type GlobalVariable struct {
	useList
	Name     string
	Contents *types.Type
	ptr      *types.Type
}

func (g *GlobalVariable) Type() *types.Type { return g.ptr }
func (g *GlobalVariable) Ref() string       { return "@" + g.Name }

type Argument struct {
	useList
	Name   string
	Typ    *types.Type
	Parent *Function
	Index  int
}

func (a *Argument) Type() *types.Type { return a.Typ }
func (a *Argument) Ref() string       { return "%" + a.Name }
