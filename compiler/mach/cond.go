package mach

import "fmt"

// Cond is a condition code tested against the Flags register.
// The zero value is AL so that a zero Instr.Pred means unpredicated.
type Cond int

const (
	AL Cond = iota // always

	EQ
	NE

	// signed
	GE
	GT
	LE
	LT

	// unsigned
	HI
	HS
	LO
	LS

	// flag-only zero relations
	PL // positive or zero
	MI // negative

	condCount
)

var condnames = []string{
	AL: "al",
	EQ: "eq",
	NE: "ne",
	GE: "ge",
	GT: "gt",
	LE: "le",
	LT: "lt",
	HI: "hi",
	HS: "hs",
	LO: "lo",
	LS: "ls",
	PL: "pl",
	MI: "mi",
}

func (c Cond) String() string {
	if c < 0 || int(c) >= len(condnames) {
		return fmt.Sprintf("cond%d", int(c))
	}

	return condnames[c]
}

func ParseCond(s string) (Cond, bool) {
	for c, name := range condnames {
		if s == name {
			return Cond(c), true
		}
	}

	return AL, false
}

func (c Cond) Valid() bool {
	return c >= AL && c < condCount
}
