// Package parse reads the textual machine-IR dialect.
//
//	func max {
//	b0:
//		cmp x1, #4
//		b.gt b2
//		b b1
//	b1:
//		ret
//	b2:
//		cmp x1, #6
//		b.lt b1
//		ret
//	}
//
// Blocks are numbered in order of label definition, the first one is
// the entry. A conditional branch without a following unconditional
// one falls through to the next block.
package parse

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"

	"tlog.app/go/errors"

	"github.com/marchc/march/compiler/mach"
)

type (
	state struct {
		f *mach.Func

		labels map[string]int

		// branch target fixups, resolved when the func is closed
		fix []fixup
	}

	fixup struct {
		block int
		index int
		name  string
		line  int
	}
)

func ParseFile(ctx context.Context, name string) ([]*mach.Func, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return Parse(ctx, text)
}

func Parse(ctx context.Context, text []byte) (ff []*mach.Func, err error) {
	var s *state

	for ln, line := range bytes.Split(text, []byte("\n")) {
		ln++

		if i := bytes.Index(line, []byte("//")); i >= 0 {
			line = line[:i]
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("func ")):
			if s != nil {
				return nil, errors.New("line %d: func inside func", ln)
			}

			name := strings.TrimSuffix(strings.TrimSpace(string(line[5:])), "{")
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, errors.New("line %d: func name expected", ln)
			}

			s = &state{
				f:      &mach.Func{Name: name},
				labels: map[string]int{},
			}

		case bytes.Equal(line, []byte("}")):
			if s == nil {
				return nil, errors.New("line %d: unexpected }", ln)
			}

			err = s.close()
			if err != nil {
				return nil, errors.Wrap(err, "func %v", s.f.Name)
			}

			ff = append(ff, s.f)
			s = nil

		case line[len(line)-1] == ':':
			if s == nil {
				return nil, errors.New("line %d: label outside func", ln)
			}

			err = s.label(string(line[:len(line)-1]))
			if err != nil {
				return nil, errors.Wrap(err, "line %d", ln)
			}

		default:
			if s == nil {
				return nil, errors.New("line %d: instruction outside func", ln)
			}

			err = s.instr(string(line), ln)
			if err != nil {
				return nil, errors.Wrap(err, "line %d", ln)
			}
		}
	}

	if s != nil {
		return nil, errors.New("func %v: missing }", s.f.Name)
	}

	return ff, nil
}

func (s *state) label(name string) error {
	if _, ok := s.labels[name]; ok {
		return errors.New("redefined label: %v", name)
	}

	s.labels[name] = len(s.f.Blocks)
	s.f.Blocks = append(s.f.Blocks, mach.Block{})

	return nil
}

func (s *state) instr(line string, ln int) error {
	if len(s.f.Blocks) == 0 {
		return errors.New("instruction before first label")
	}

	name, rest, _ := strings.Cut(line, " ")

	name, suf, hasSuf := strings.Cut(name, ".")

	cc := mach.AL

	if hasSuf {
		var ok bool

		cc, ok = mach.ParseCond(suf)
		if !ok {
			return errors.New("bad condition: %v", suf)
		}
	}

	args := strings.Split(rest, ",")
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}
	if len(args) == 1 && args[0] == "" {
		args = nil
	}

	ins := mach.Instr{Pred: cc, Pos: mach.Pos(ln)}

	switch name {
	case "nop":
		ins.Op = mach.Nop

	case "mov":
		if len(args) != 2 {
			return errors.New("mov: two operands expected")
		}

		rd, err := reg(args[0])
		if err != nil {
			return err
		}

		ins.Rd = rd

		if imm, ok, err := immediate(args[1]); ok {
			if err != nil {
				return err
			}

			ins.Op = mach.MOV
			ins.Imm = imm

			break
		}

		rn, err := reg(args[1])
		if err != nil {
			return err
		}

		ins.Op = mach.MOVr
		ins.Rn = rn

	case "add", "sub", "mul", "adds", "subs":
		if len(args) != 3 {
			return errors.New("%v: three operands expected", name)
		}

		ops := map[string]mach.Opcode{
			"add": mach.ADD, "sub": mach.SUB, "mul": mach.MUL,
			"adds": mach.ADDS, "subs": mach.SUBS,
		}

		ins.Op = ops[name]

		for i, p := range []*mach.Reg{&ins.Rd, &ins.Rn, &ins.Rm} {
			r, err := reg(args[i])
			if err != nil {
				return err
			}

			*p = r
		}

	case "cmp", "cmn", "tcmp", "t2cmp", "t2cmn":
		if len(args) != 2 {
			return errors.New("%v: two operands expected", name)
		}

		rn, err := reg(args[0])
		if err != nil {
			return err
		}

		ins.Rn = rn

		if name == "cmp" && strings.HasPrefix(args[1], "x") {
			rm, err := reg(args[1])
			if err != nil {
				return err
			}

			ins.Op = mach.CMPr
			ins.Rm = rm

			break
		}

		ops := map[string]mach.Opcode{
			"cmp": mach.CMP, "cmn": mach.CMN, "tcmp": mach.TCMP,
			"t2cmp": mach.T2CMP, "t2cmn": mach.T2CMN,
		}

		ins.Op = ops[name]

		if imm, ok, err := immediate(args[1]); ok {
			if err != nil {
				return err
			}

			if imm < 0 {
				return errors.New("%v: immediate out of range: %d", name, imm)
			}

			ins.Imm = imm

			break
		}

		ins.Sym = args[1]

	case "b":
		if len(args) != 1 {
			return errors.New("b: target expected")
		}

		if hasSuf {
			ins.Op = mach.BC
			ins.Cond = cc
			ins.Pred = mach.AL
		} else {
			ins.Op = mach.B
		}

		s.fix = append(s.fix, fixup{
			block: len(s.f.Blocks) - 1,
			index: len(s.f.Blocks[len(s.f.Blocks)-1].Code),
			name:  args[0],
			line:  ln,
		})

	case "br":
		if len(args) != 1 {
			return errors.New("br: register expected")
		}

		rn, err := reg(args[0])
		if err != nil {
			return err
		}

		ins.Op = mach.BR
		ins.Rn = rn

	case "ret":
		ins.Op = mach.RET

	default:
		return errors.New("unsupported instruction: %v", name)
	}

	b := &s.f.Blocks[len(s.f.Blocks)-1]
	b.Code = append(b.Code, ins)

	return nil
}

func (s *state) close() error {
	for _, fix := range s.fix {
		target, ok := s.labels[fix.name]
		if !ok {
			return errors.New("line %d: undefined label: %v", fix.line, fix.name)
		}

		s.f.Blocks[fix.block].Code[fix.index].Label = target
	}

	s.edges()

	return nil
}

// edges derives Succ and Pred from terminators. A block that does not
// end in b or ret falls through to the next one.
func (s *state) edges() {
	f := s.f

	link := func(from, to int) {
		f.Blocks[from].Succ = append(f.Blocks[from].Succ, to)
		f.Blocks[to].Pred = append(f.Blocks[to].Pred, from)
	}

	for b := range f.Blocks {
		bp := &f.Blocks[b]

		t := bp.FirstTerminator()
		if t < 0 {
			if b+1 < len(f.Blocks) {
				link(b, b+1)
			}

			continue
		}

		fallthru := true

		for _, ins := range bp.Code[t:] {
			switch ins.Op {
			case mach.B:
				link(b, ins.Label)
				fallthru = false
			case mach.BC:
				link(b, ins.Label)
			case mach.BR, mach.RET:
				fallthru = false
			}

			if !fallthru {
				break
			}
		}

		if fallthru && b+1 < len(f.Blocks) {
			link(b, b+1)
		}
	}
}

func reg(s string) (mach.Reg, error) {
	if !strings.HasPrefix(s, "x") {
		return 0, errors.New("register expected: %v", s)
	}

	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 0 || mach.Reg(n) >= mach.Flags {
		return 0, errors.New("bad register: %v", s)
	}

	return mach.Reg(n), nil
}

func immediate(s string) (mach.Imm, bool, error) {
	if !strings.HasPrefix(s, "#") {
		return 0, false, nil
	}

	v, err := strconv.ParseInt(s[1:], 0, 64)
	if err != nil {
		return 0, true, errors.New("bad immediate: %v", s)
	}

	return mach.Imm(v), true, nil
}
