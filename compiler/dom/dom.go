// Package dom builds per-function dominator trees.
//
// The tree is computed once and stays valid as long as block edges do
// not change; passes that only rewrite instruction contents declare it
// preserved.
package dom

import (
	"github.com/marchc/march/compiler/mach"
	"github.com/marchc/march/compiler/set"
)

type (
	Tree struct {
		f *mach.Func

		rpo  []int // reachable blocks in reverse post-order
		rpon []int // block -> rpo index, -1 if unreachable
		idom []int // block -> immediate dominator, entry maps to itself
		kids [][]int

		doms []set.Bitmap // block -> set of its dominators
	}
)

// New computes the dominator tree of f using the Cooper-Harvey-Kennedy
// iterative algorithm over reverse post-order.
func New(f *mach.Func) *Tree {
	t := &Tree{f: f}

	t.rpo = postorder(f)
	reverse(t.rpo)

	t.rpon = make([]int, len(f.Blocks))
	t.idom = make([]int, len(f.Blocks))

	for b := range f.Blocks {
		t.rpon[b] = -1
		t.idom[b] = -1
	}

	for i, b := range t.rpo {
		t.rpon[b] = i
	}

	t.idom[f.Entry] = f.Entry

	for changed := true; changed; {
		changed = false

		for _, b := range t.rpo {
			if b == f.Entry {
				continue
			}

			idom := -1

			for _, p := range f.Blocks[b].Pred {
				if t.idom[p] < 0 {
					continue
				}

				if idom < 0 {
					idom = p
					continue
				}

				idom = t.intersect(idom, p)
			}

			if idom >= 0 && t.idom[b] != idom {
				t.idom[b] = idom
				changed = true
			}
		}
	}

	t.kids = make([][]int, len(f.Blocks))

	for _, b := range t.rpo {
		if b == f.Entry {
			continue
		}

		p := t.idom[b]
		t.kids[p] = append(t.kids[p], b)
	}

	t.doms = make([]set.Bitmap, len(f.Blocks))

	for _, b := range t.PreOrder() {
		if b == f.Entry {
			t.doms[b] = set.MakeBitmap(len(f.Blocks))
		} else {
			t.doms[b] = t.doms[t.idom[b]].Copy()
		}

		t.doms[b].Set(b)
	}

	return t
}

// Idom returns the immediate dominator of b.
// The entry block is its own idom, unreachable blocks return -1.
func (t *Tree) Idom(b int) int {
	return t.idom[b]
}

// Dominates reports whether a dominates b. A block dominates itself.
func (t *Tree) Dominates(a, b int) bool {
	if t.rpon[b] < 0 {
		return false
	}

	return t.doms[b].IsSet(a)
}

// PreOrder returns reachable block ids in dominator-tree pre-order.
// The slice is a fresh snapshot, safe to hold across instruction
// rewrites inside the visited blocks.
func (t *Tree) PreOrder() []int {
	order := make([]int, 0, len(t.rpo))
	stack := []int{t.f.Entry}

	for len(stack) != 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		order = append(order, b)

		for i := len(t.kids[b]) - 1; i >= 0; i-- {
			stack = append(stack, t.kids[b][i])
		}
	}

	return order
}

func (t *Tree) intersect(a, b int) int {
	for a != b {
		for t.rpon[a] > t.rpon[b] {
			a = t.idom[a]
		}

		for t.rpon[b] > t.rpon[a] {
			b = t.idom[b]
		}
	}

	return a
}

func postorder(f *mach.Func) []int {
	seen := set.MakeBitmap(len(f.Blocks))
	order := make([]int, 0, len(f.Blocks))

	var walk func(b int)
	walk = func(b int) {
		if seen.IsSet(b) {
			return
		}

		seen.Set(b)

		for _, s := range f.Blocks[b].Succ {
			walk(s)
		}

		order = append(order, b)
	}

	walk(f.Entry)

	return order
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
