// Package condopt aligns consecutive immediate compares so a later
// CSE pass can drop the duplicate.
//
// It analyzes branches and adjusts comparisons with immediate values
// by converting GT <-> GE and LT <-> LE and correcting the two
// immediates towards each other until they are equal.
//
// Consider
//
//	if (a < 5 && ...) || (a > 5 && ...) {
//
// Upstream canonicalization emits compares against 4 and 6:
//
//	b0:
//		cmp x1, #4
//		b.gt b2
//	...
//	b2:
//		cmp x1, #6
//		b.lt b5
//
// After the pass both blocks compare against 5:
//
//	b0:
//		cmp x1, #5
//		b.ge b2
//	...
//	b2:
//		cmp x1, #5	// CSE removes this one
//		b.le b5
//
// Only unpredicated cmp/cmn with a literal immediate, followed by a
// conditional branch, are supported.
package condopt

import (
	"context"

	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/marchc/march/compiler/dom"
	"github.com/marchc/march/compiler/mach"
)

type (
	Pass struct {
		// NumAdjusted counts committed rewrites over the lifetime
		// of the pass instance.
		NumAdjusted int

		f  *mach.Func
		tr tlog.Span
	}

	// CmpInfo is a proposed rewrite of one compare and its branch.
	// It is committed whole or not at all.
	CmpInfo struct {
		Imm  mach.Imm
		Op   mach.Opcode
		Cond mach.Cond
	}

	// cmpRef locates a suitable compare instruction.
	cmpRef struct {
		block int
		index int
	}
)

func New() *Pass {
	return &Pass{}
}

// findCompare scans block backwards from its terminator for the
// compare controlling the branch. It fails if the block does not end
// in a conditional branch, if flags are live out, if anything between
// the compare and the branch touches flags, or if the compare is
// predicated or has a symbolic immediate.
func (p *Pass) findCompare(block int) (cmpRef, bool) {
	bp := &p.f.Blocks[block]

	term := bp.FirstTerminator()
	if term < 0 || bp.Code[term].Op != mach.BC {
		return cmpRef{}, false
	}

	// We may modify the compare, so flags must not outlive the block.
	for _, s := range bp.Succ {
		if p.f.FlagsLiveIn(s) {
			return cmpRef{}, false
		}
	}

	for i := term - 1; i >= 0; i-- {
		ins := bp.Code[i]

		// Flags are stale at the branch if read in between.
		// This also rejects predicated compares.
		if ins.ReadsFlags() {
			if p.tr.If("find") {
				p.tr.Printw("flags reader in between", "block", block, "ins", ins)
			}

			return cmpRef{}, false
		}

		if !ins.Op.DefsFlags() {
			continue
		}

		if !ins.Op.CmpImm() {
			// Flags defined by something we can not reason about.
			return cmpRef{}, false
		}

		if ins.Predicated() {
			if p.tr.If("find") {
				p.tr.Printw("skipping predicated compare", "block", block, "ins", ins)
			}

			return cmpRef{}, false
		}

		if ins.Sym != "" {
			if p.tr.If("find") {
				p.tr.Printw("immediate is symbolic", "block", block, "ins", ins)
			}

			return cmpRef{}, false
		}

		return cmpRef{block: block, index: i}, true
	}

	if p.tr.If("find") {
		p.tr.Printw("flags not defined in block", "block", block)
	}

	return cmpRef{}, false
}

// complementOpc flips cmp <-> cmn within the opcode width family.
// The narrow TCMP has no complement and maps to OpInvalid.
func complementOpc(op mach.Opcode) mach.Opcode {
	switch op {
	case mach.CMP:
		return mach.CMN
	case mach.CMN:
		return mach.CMP
	case mach.TCMP:
		return mach.OpInvalid
	case mach.T2CMP:
		return mach.T2CMN
	case mach.T2CMN:
		return mach.T2CMP
	default:
		panic(op)
	}
}

// adjustedCond exchanges inclusive and exclusive relations.
func adjustedCond(cc mach.Cond) mach.Cond {
	switch cc {
	case mach.GT:
		return mach.GE
	case mach.GE:
		return mach.GT
	case mach.LT:
		return mach.LE
	case mach.LE:
		return mach.LT
	case mach.HI:
		return mach.HS
	case mach.HS:
		return mach.HI
	case mach.LO:
		return mach.LS
	case mach.LS:
		return mach.LO
	default:
		panic(cc)
	}
}

// adjustCmp computes the rewrite moving the compare one step towards
// the paired one: GT -> GE, GE -> GT, LT -> LE, LE -> LT with the
// immediate corrected accordingly.
//
// The correction is computed in 64-bit arithmetic, which strictly
// contains every supported operand width, so an extreme immediate can
// not wrap.
//
// When the correction would cross zero into the missing opcode form,
// or would wrap an unsigned relation, the input triple is returned
// unchanged.
func (p *Pass) adjustCmp(ins mach.Instr, cc mach.Cond) CmpInfo {
	op := ins.Op
	oldOp := op

	signed := cc == mach.GT || cc == mach.GE || cc == mach.LT || cc == mach.LE

	// cmn (compare negative) is an alias of flag-setting add:
	// "operand - negative" == "operand + positive".
	negative := op.Cmn()

	correction := mach.Imm(-1)
	if cc == mach.GT || cc == mach.HI {
		correction = 1
	}

	if negative {
		correction = -correction
	}

	oldImm := ins.Imm

	newImm := oldImm + correction
	if newImm < 0 {
		newImm = -newImm
	}

	// cmn #1 -> cmp #0 crosses zero from the negative side.
	if oldImm == 1 && negative && correction == -1 {
		op = complementOpc(op)
	}

	// cmp #0 -> cmn #1 crosses below zero from the positive side.
	if oldImm == 0 && correction == -1 {
		op = complementOpc(op)
	}

	// A flipped opcode means the correction wrapped through zero,
	// which an unsigned relation can not survive. A missing
	// complement can not be expressed at all. Return the original
	// triple; the caller's exact-match check then fails on its own.
	if op == mach.OpInvalid || !signed && op != oldOp {
		return CmpInfo{Imm: oldImm, Op: oldOp, Cond: cc}
	}

	return CmpInfo{Imm: newImm, Op: op, Cond: adjustedCond(cc)}
}

// modifyCmp commits a CmpInfo: the compare and the branch are rebuilt
// in place with the new opcode, immediate and condition.
func (p *Pass) modifyCmp(ref cmpRef, info CmpInfo) {
	cc := info.Cond

	// Encode comparison with zero directly in the condition code.
	if info.Imm == 0 {
		if cc == mach.GE {
			cc = mach.PL
		}
		if cc == mach.LT {
			cc = mach.MI
		}
	}

	bp := &p.f.Blocks[ref.block]

	old := bp.Code[ref.index]

	bp.Insert(ref.index, mach.Instr{
		Op:  info.Op,
		Rn:  old.Rn,
		Imm: info.Imm,
		Pos: old.Pos,
	})
	bp.Erase(ref.index + 1)

	// The compare was picked against this block's first terminator.
	term := bp.FirstTerminator()
	br := bp.Code[term]

	bp.Insert(term, mach.Instr{
		Op:    mach.BC,
		Cond:  cc,
		Label: br.Label,
		Pos:   br.Pos,
	})
	bp.Erase(term + 1)

	p.NumAdjusted++

	if p.tr.If("rewrite") {
		p.tr.Printw("rewrite",
			"block", ref.block, "cmp", bp.Code[ref.index], "br", bp.Code[term],
			"from", loc.Caller(1))
	}
}

// parseCond extracts the condition code taken towards the true target
// from an AnalyzeBranch operand list.
func parseCond(cond []mach.Operand) (mach.Cond, bool) {
	if len(cond) != 2 || !cond[0].IsImm {
		return mach.AL, false
	}

	cc := mach.Cond(cond[0].Imm)
	if !cc.Valid() {
		return mach.AL, false
	}

	return cc, true
}

// adjustTo rewrites one compare onto another if the single-step
// adjustment lands exactly on the target immediate and opcode.
func (p *Pass) adjustTo(ref cmpRef, cc mach.Cond, to mach.Instr, toImm mach.Imm) bool {
	info := p.adjustCmp(p.f.Blocks[ref.block].Code[ref.index], cc)

	if info.Imm == toImm && info.Op == to.Op {
		p.modifyCmp(ref, info)
		return true
	}

	return false
}

func isGreaterThan(cc mach.Cond) bool {
	return cc == mach.GT || cc == mach.HI
}

func isLessThan(cc mach.Cond) bool {
	return cc == mach.LT || cc == mach.LO
}

func abs(x mach.Imm) mach.Imm {
	if x < 0 {
		return -x
	}

	return x
}

// RunFunc runs the pass over one function and reports whether
// anything changed. Block edges are never touched, so a dominator
// tree computed before the run is still valid after it.
func (p *Pass) RunFunc(ctx context.Context, f *mach.Func, dt *dom.Tree) (changed bool) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "condopt", "func", f.Name)
	defer func() { tr.Finish("changed", changed, "adjusted", p.NumAdjusted) }()

	p.f = f
	p.tr = tr

	// Pre-order enables multiple conversions rooted at the same
	// head block.
	for _, hb := range dt.PreOrder() {
		tbb, _, headCond, ok := f.AnalyzeBranch(hb)
		if !ok {
			continue
		}

		// Equivalence check is to skip loops.
		if tbb < 0 || tbb == hb {
			continue
		}

		_, _, trueCond, ok := f.AnalyzeBranch(tbb)
		if !ok {
			continue
		}

		headRef, ok := p.findCompare(hb)
		if !ok {
			continue
		}

		headCmp, ok := parseCond(headCond)
		if !ok {
			continue
		}

		trueCmp, ok := parseCond(trueCond)
		if !ok {
			continue
		}

		head := f.Blocks[headRef.block].Code[headRef.index]
		headImm := head.Imm

		// Zero compares come encoded as flag-only relations.
		if headImm == 0 {
			if headCmp == mach.PL {
				headCmp = mach.GE
			}
			if headCmp == mach.MI {
				headCmp = mach.LT
			}
		}

		headEff := headImm
		if head.Op.Cmn() {
			headEff = -headEff
		}

		trueRef, ok := p.findCompare(tbb)
		if !ok {
			continue
		}

		truth := f.Blocks[trueRef.block].Code[trueRef.index]
		trueImm := truth.Imm

		if trueImm == 0 {
			if trueCmp == mach.PL {
				trueCmp = mach.GE
			}
			if trueCmp == mach.MI {
				trueCmp = mach.LT
			}
		}

		trueEff := trueImm
		if truth.Op.Cmn() {
			trueEff = -trueEff
		}

		if tr.If("pair") {
			tr.Printw("candidate pair",
				"head", hb, "head_cmp", head, "head_cc", headCmp,
				"true", tbb, "true_cmp", truth, "true_cc", trueCmp)
		}

		switch {
		case (isGreaterThan(headCmp) && isLessThan(trueCmp) ||
			isLessThan(headCmp) && isGreaterThan(trueCmp)) &&
			abs(trueEff-headEff) == 2:
			// Opposite directions two apart converge on the
			// shared midpoint:
			//
			//	(a > x && ...) || (a < x+2 && ...)
			//	->
			//	(a >= x+1 && ...) || (a <= x+1 && ...)

			headInfo := p.adjustCmp(head, headCmp)
			trueInfo := p.adjustCmp(truth, trueCmp)

			if headInfo.Imm == trueInfo.Imm && headInfo.Op == trueInfo.Op {
				p.modifyCmp(headRef, headInfo)
				p.modifyCmp(trueRef, trueInfo)
				changed = true
			}

		case (isGreaterThan(headCmp) && isGreaterThan(trueCmp) ||
			isLessThan(headCmp) && isLessThan(trueCmp)) &&
			abs(trueEff-headEff) == 1:
			// Same direction one apart: one side becomes
			// inclusive and lands on the other:
			//
			//	(a > x && ...) || (a > x+1 && ...)
			//	->
			//	(a > x && ...) || (a >= x+1 && ...)

			// GT -> GE raises the immediate, so pick the smaller
			// side; LT -> LE lowers it, so invert the choice.
			adjustHead := headEff < trueEff
			if isLessThan(headCmp) {
				adjustHead = !adjustHead
			}

			if adjustHead {
				changed = p.adjustTo(headRef, headCmp, truth, trueImm) || changed
			} else {
				changed = p.adjustTo(trueRef, trueCmp, head, headImm) || changed
			}
		}

		// Other combinations almost never occur: upstream
		// canonicalization emits < and > rather than <= and >=.
	}

	return changed
}
