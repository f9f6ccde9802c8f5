package parse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marchc/march/compiler/mach"
)

func TestParseFunc(t *testing.T) {
	ff, err := Parse(context.Background(), []byte(`
// two compares of x1
func max {
b0:
	mov x2, #0
	cmp x1, #4
	b.gt b2
	b b1
b1:
	ret
b2:
	cmp x1, #6
	b.lt b1
	ret
}
`))
	require.NoError(t, err)
	require.Len(t, ff, 1)

	f := ff[0]
	assert.Equal(t, "max", f.Name)
	assert.Equal(t, 0, f.Entry)
	require.Len(t, f.Blocks, 3)

	b0 := f.Blocks[0]
	require.Len(t, b0.Code, 4)
	assert.Equal(t, mach.Instr{Op: mach.MOV, Rd: 2, Pos: 5}, b0.Code[0])
	assert.Equal(t, mach.Instr{Op: mach.CMP, Rn: 1, Imm: 4, Pos: 6}, b0.Code[1])
	assert.Equal(t, mach.Instr{Op: mach.BC, Cond: mach.GT, Label: 2, Pos: 7}, b0.Code[2])
	assert.Equal(t, mach.Instr{Op: mach.B, Label: 1, Pos: 8}, b0.Code[3])

	assert.Equal(t, []int{2, 1}, b0.Succ)
	assert.Equal(t, []int{0, 2}, f.Blocks[1].Pred)

	b2 := f.Blocks[2]
	assert.Equal(t, []int{1}, b2.Succ)
	assert.Equal(t, mach.Instr{Op: mach.CMP, Rn: 1, Imm: 6, Pos: 12}, b2.Code[0])
}

func TestParsePredicated(t *testing.T) {
	ff, err := Parse(context.Background(), []byte(`
func p {
b0:
	cmp.eq x1, #4
	mov.ne x2, #1
	ret
}
`))
	require.NoError(t, err)

	code := ff[0].Blocks[0].Code
	assert.Equal(t, mach.EQ, code[0].Pred)
	assert.Equal(t, mach.NE, code[1].Pred)
	assert.Equal(t, mach.AL, code[2].Pred)
}

func TestParseOperands(t *testing.T) {
	ff, err := Parse(context.Background(), []byte(`
func o {
b0:
	mov x1, x2
	add x3, x1, x2
	subs x4, x3, x1
	cmp x1, x2
	cmn x1, #0x10
	t2cmp x1, lim
	br x5
}
`))
	require.NoError(t, err)

	code := ff[0].Blocks[0].Code
	assert.Equal(t, mach.MOVr, code[0].Op)
	assert.Equal(t, mach.ADD, code[1].Op)
	assert.Equal(t, mach.SUBS, code[2].Op)
	assert.Equal(t, mach.CMPr, code[3].Op)
	assert.Equal(t, mach.Instr{Op: mach.CMN, Rn: 1, Imm: 16, Pos: 8}, code[4])
	assert.Equal(t, "lim", code[5].Sym)
	assert.Equal(t, mach.Instr{Op: mach.BR, Rn: 5, Pos: 10}, code[6])
	assert.Empty(t, ff[0].Blocks[0].Succ)
}

func TestParseFallthrough(t *testing.T) {
	ff, err := Parse(context.Background(), []byte(`
func f {
b0:
	cmp x1, #1
	b.eq b2
b1:
	ret
b2:
	ret
}
`))
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1}, ff[0].Blocks[0].Succ)
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{
		"func f {\nb0:\n\tb b9\n}\n",         // undefined label
		"func f {\n\tret\n}\n",               // instruction before label
		"func f {\nb0:\n\tcmp x1, #-4\n}\n",  // negative compare immediate
		"func f {\nb0:\n\tcmp y1, #4\n}\n",   // bad register
		"func f {\nb0:\n\tb.zz b0\n}\n",      // bad condition
		"func f {\nb0:\nb0:\n\tret\n}\n",     // redefined label
		"func f {\nb0:\n\tfrob x1, x2\n}\n",  // unknown instruction
		"func f {\nb0:\n\tret\n",             // missing }
		"ret\n",                              // instruction outside func
		"func f {\nfunc g {\n}\n}\n",         // nested func
		"func f {\nb0:\n\tmov x1\n}\n",       // missing operand
		"func f {\nb0:\n\tcmp x1, #zz\n}\n",  // bad immediate
		"func f {\nb0:\n\tcmp x99, #4\n}\n",  // register out of range
	} {
		_, err := Parse(context.Background(), []byte(src))
		assert.Error(t, err, "src:\n%s", src)
	}
}

func TestParseTwoFuncs(t *testing.T) {
	ff, err := Parse(context.Background(), []byte(`
func a {
b0:
	ret
}

func b {
b0:
	ret
}
`))
	require.NoError(t, err)
	require.Len(t, ff, 2)
	assert.Equal(t, "a", ff[0].Name)
	assert.Equal(t, "b", ff[1].Name)
}
