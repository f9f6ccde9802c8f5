// Package format prints functions back in the dialect parse reads.
package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/marchc/march/compiler/mach"
)

func Format(ctx context.Context, b []byte, ff ...*mach.Func) (_ []byte, err error) {
	for i, f := range ff {
		if i != 0 {
			b = append(b, '\n')
		}

		b, err = formatFunc(ctx, b, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return b, nil
}

func formatFunc(ctx context.Context, b []byte, f *mach.Func) ([]byte, error) {
	b = hfmt.Appendf(b, "func %v {\n", f.Name)

	for i := range f.Blocks {
		b = hfmt.Appendf(b, "b%d:\n", i)

		for _, ins := range f.Blocks[i].Code {
			b = hfmt.Appendf(b, "\t%v\n", ins)
		}
	}

	b = append(b, "}\n"...)

	return b, nil
}
