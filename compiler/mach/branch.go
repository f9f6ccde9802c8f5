package mach

// AnalyzeBranch decomposes the terminators of a block into a branch
// target pair and a condition operand list.
//
// On success tbb is the target taken on the condition (or the sole
// target of an unconditional branch, with empty cond), fbb is the
// explicit false target or -1 for a fall through, and cond holds the
// condition code immediate followed by the Flags register.
//
// Indirect branches, returns and malformed terminator runs are not
// analyzable.
func (f *Func) AnalyzeBranch(block int) (tbb, fbb int, cond []Operand, ok bool) {
	bp := &f.Blocks[block]

	t := bp.FirstTerminator()
	if t < 0 {
		return -1, -1, nil, false
	}

	term := bp.Code[t:]

	switch {
	case len(term) == 1 && term[0].Op == B:
		return term[0].Label, -1, nil, true

	case len(term) == 1 && term[0].Op == BC:
		return term[0].Label, -1, condOps(term[0]), true

	case len(term) == 2 && term[0].Op == BC && term[1].Op == B:
		return term[0].Label, term[1].Label, condOps(term[0]), true
	}

	return -1, -1, nil, false
}

func condOps(br Instr) []Operand {
	return []Operand{
		{Imm: Imm(br.Cond), IsImm: true},
		{Reg: Flags},
	}
}
