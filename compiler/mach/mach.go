package mach

import (
	"fmt"

	"tlog.app/go/tlog/tlwire"
)

type (
	Reg int
	Imm int64
	Pos int // line in the source text, kept through rewrites

	Opcode int

	Instr struct {
		Op Opcode

		Rd Reg
		Rn Reg
		Rm Reg

		Imm Imm
		Sym string // symbolic immediate, set instead of Imm

		Cond Cond // branch condition for BC
		Pred Cond // execution predicate, AL when unpredicated

		Label int // branch target block

		Pos Pos
	}

	// Operand is an element of the condition operand list
	// returned by AnalyzeBranch.
	Operand struct {
		Reg   Reg
		Imm   Imm
		IsImm bool
	}

	Block struct {
		Code []Instr

		Succ []int
		Pred []int
	}

	Func struct {
		Name   string
		Entry  int
		Blocks []Block
	}
)

// Flags is the NZCV pseudo register, set by compares and flag-setting
// arithmetic, read by conditional branches and predicated instructions.
const Flags Reg = 32

const (
	Nop Opcode = iota

	MOV  // Rd = Imm
	MOVr // Rd = Rn
	ADD  // Rd = Rn + Rm
	SUB  // Rd = Rn - Rm
	MUL  // Rd = Rn * Rm
	ADDS // Rd = Rn + Rm, sets flags
	SUBS // Rd = Rn - Rm, sets flags

	CMP   // flags = Rn - Imm
	CMN   // flags = Rn + Imm
	TCMP  // narrow CMP, 8-bit immediate encoding
	T2CMP // wide-encoding CMP
	T2CMN // wide-encoding CMN
	CMPr  // flags = Rn - Rm

	B   // goto Label
	BC  // if Cond(flags) goto Label
	BR  // goto Rn, indirect
	RET

	// OpInvalid marks a missing opcode, in particular the missing
	// complement of TCMP.
	OpInvalid Opcode = -1
)

var opnames = []string{
	Nop: "nop",

	MOV:  "mov",
	MOVr: "mov",
	ADD:  "add",
	SUB:  "sub",
	MUL:  "mul",
	ADDS: "adds",
	SUBS: "subs",

	CMP:   "cmp",
	CMN:   "cmn",
	TCMP:  "tcmp",
	T2CMP: "t2cmp",
	T2CMN: "t2cmn",
	CMPr:  "cmp",

	B:   "b",
	BC:  "b",
	BR:  "br",
	RET: "ret",
}

func (op Opcode) String() string {
	if op == OpInvalid {
		return "invalid"
	}

	if op < 0 || int(op) >= len(opnames) {
		return fmt.Sprintf("op%d", int(op))
	}

	return opnames[op]
}

// DefsFlags reports whether the opcode writes the Flags register.
func (op Opcode) DefsFlags() bool {
	switch op {
	case ADDS, SUBS, CMP, CMN, TCMP, T2CMP, T2CMN, CMPr:
		return true
	}

	return false
}

// CmpImm reports whether the opcode is an immediate compare.
func (op Opcode) CmpImm() bool {
	switch op {
	case CMP, CMN, TCMP, T2CMP, T2CMN:
		return true
	}

	return false
}

// Cmn reports whether the opcode is a negative-form compare,
// an alias of flag-setting add.
func (op Opcode) Cmn() bool {
	return op == CMN || op == T2CMN
}

func (op Opcode) Terminator() bool {
	switch op {
	case B, BC, BR, RET:
		return true
	}

	return false
}

// Predicated reports whether the instruction executes conditionally.
func (i Instr) Predicated() bool {
	return i.Pred != AL
}

// ReadsFlags reports whether the instruction observes the Flags
// register: conditional branches and any predicated instruction do.
func (i Instr) ReadsFlags() bool {
	return i.Predicated() || i.Op == BC
}

func (i Instr) String() string {
	switch i.Op {
	case Nop:
		return "nop"
	case MOV:
		return fmt.Sprintf("mov%v x%d, #%d", pred(i.Pred), i.Rd, i.Imm)
	case MOVr:
		return fmt.Sprintf("mov%v x%d, x%d", pred(i.Pred), i.Rd, i.Rn)
	case ADD, SUB, MUL, ADDS, SUBS:
		return fmt.Sprintf("%v%v x%d, x%d, x%d", i.Op, pred(i.Pred), i.Rd, i.Rn, i.Rm)
	case CMP, CMN, TCMP, T2CMP, T2CMN:
		if i.Sym != "" {
			return fmt.Sprintf("%v%v x%d, %v", i.Op, pred(i.Pred), i.Rn, i.Sym)
		}

		return fmt.Sprintf("%v%v x%d, #%d", i.Op, pred(i.Pred), i.Rn, i.Imm)
	case CMPr:
		return fmt.Sprintf("cmp%v x%d, x%d", pred(i.Pred), i.Rn, i.Rm)
	case B:
		return fmt.Sprintf("b b%d", i.Label)
	case BC:
		return fmt.Sprintf("b.%v b%d", i.Cond, i.Label)
	case BR:
		return fmt.Sprintf("br x%d", i.Rn)
	case RET:
		return "ret"
	default:
		return fmt.Sprintf("op%d", int(i.Op))
	}
}

func (i Instr) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendFormat(b, "%v", i.String())
}

func pred(p Cond) string {
	if p == AL {
		return ""
	}

	return "." + p.String()
}

// FirstTerminator returns the index of the first terminator
// instruction, or -1 if the block has none.
func (b *Block) FirstTerminator() int {
	for i, ins := range b.Code {
		if ins.Op.Terminator() {
			return i
		}
	}

	return -1
}

// Insert splices ins immediately before index i.
func (b *Block) Insert(i int, ins Instr) {
	b.Code = append(b.Code, Instr{})
	copy(b.Code[i+1:], b.Code[i:])
	b.Code[i] = ins
}

// Erase removes the instruction at index i.
func (b *Block) Erase(i int) {
	b.Code = append(b.Code[:i], b.Code[i+1:]...)
}

// FlagsLiveIn reports whether the Flags register is live into the
// block: some path from its start reads flags before defining them.
func (f *Func) FlagsLiveIn(block int) bool {
	return f.flagsLiveIn(block, make([]bool, len(f.Blocks)))
}

func (f *Func) flagsLiveIn(block int, seen []bool) bool {
	if seen[block] {
		return false
	}

	seen[block] = true

	for _, ins := range f.Blocks[block].Code {
		if ins.ReadsFlags() {
			return true
		}

		if ins.Op.DefsFlags() {
			return false
		}
	}

	for _, s := range f.Blocks[block].Succ {
		if f.flagsLiveIn(s, seen) {
			return true
		}
	}

	return false
}
