package compiler

import (
	"context"
	"strings"
	"testing"
)

func TestSmoke(t *testing.T) {
	ctx := context.Background()

	obj, err := Optimize(ctx, "smoke", []byte(`
func max {
b0:
	cmp x1, #4
	b.gt b2
	b b1
b1:
	ret
b2:
	cmp x1, #6
	b.lt b3
	b b1
b3:
	ret
}
`))
	if err != nil {
		t.Errorf("optimize: %v", err)
	}

	if !strings.Contains(string(obj), "cmp x1, #5\n\tb.ge b2") {
		t.Errorf("head compare not aligned:\n%s", obj)
	}

	if !strings.Contains(string(obj), "cmp x1, #5\n\tb.le b3") {
		t.Errorf("true compare not aligned:\n%s", obj)
	}

	t.Logf("result:\n%s", obj)
}
