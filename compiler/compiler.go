package compiler

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/marchc/march/compiler/condopt"
	"github.com/marchc/march/compiler/dom"
	"github.com/marchc/march/compiler/format"
	"github.com/marchc/march/compiler/parse"
)

func OptimizeFile(ctx context.Context, name string) (obj []byte, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Optimize(ctx, name, text)
}

// Optimize parses text, runs the condition optimizer over every
// function and prints the result back.
func Optimize(ctx context.Context, name string, text []byte) (obj []byte, err error) {
	ff, err := parse.Parse(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "parse text")
	}

	p := condopt.New()

	for _, f := range ff {
		// The pass only replaces instruction contents, so the
		// tree built here stays valid after the run.
		dt := dom.New(f)

		p.RunFunc(ctx, f, dt)
	}

	tlog.SpanFromContext(ctx).Printw("optimized", "name", name, "funcs", len(ff), "adjusted", p.NumAdjusted)

	obj, err = format.Format(ctx, nil, ff...)
	if err != nil {
		return nil, errors.Wrap(err, "format")
	}

	return obj, nil
}
