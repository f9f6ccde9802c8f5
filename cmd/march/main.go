package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/marchc/march/compiler"
	"github.com/marchc/march/compiler/parse"
)

func main() {
	optCmd := &cli.Command{
		Name:   "opt",
		Action: optAct,
		Args:   cli.Args{},
	}

	dumpCmd := &cli.Command{
		Name:   "dump",
		Action: dumpAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "march",
		Description: "march is a machine-code condition optimizer",
		Commands: []*cli.Command{
			optCmd,
			dumpCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func optAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		obj, err := compiler.OptimizeFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "optimize %v", a)
		}

		fmt.Printf("%s", obj)
	}

	return nil
}

func dumpAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		ff, err := parse.ParseFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		for _, f := range ff {
			tlog.Printw("func", "name", f.Name, "entry", f.Entry, "blocks", len(f.Blocks))

			for b := range f.Blocks {
				for _, ins := range f.Blocks[b].Code {
					tlog.Printw("code", "block", b, "ins", ins)
				}
			}
		}
	}

	return nil
}
