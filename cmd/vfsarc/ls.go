package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/vfsarc/vfsarc/archive"
)

const lsHelp = `vfsarc ls [-flags] <archive> [path]

List a directory's contents. path defaults to the archive root.

Example:
  % vfsarc ls repo.vfsarc /bin
`

func cmdLs(args []string) error {
	fset := flag.NewFlagSet("ls", flag.ExitOnError)
	fset.Usage = usage(fset, lsHelp)
	pw := registerPasswordFlags(fset)
	fset.Parse(args)

	if fset.NArg() < 1 {
		fset.Usage()
		os.Exit(2)
	}
	path := fset.Arg(0)
	dir := "/"
	if fset.NArg() >= 2 {
		dir = fset.Arg(1)
	}

	a, err := archive.Open(path, pw.openOptions(true)...)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer a.Close()

	names, err := a.List(dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", dir, err)
	}

	printNames(os.Stdout, names)
	return nil
}

// printNames renders names one-per-line when stdout isn't a terminal
// (so scripts piping output get stable, parseable lines) and in
// fixed-width columns otherwise.
func printNames(f *os.File, names []string) {
	if !isatty.IsTerminal(f.Fd()) {
		for _, n := range names {
			fmt.Fprintln(f, n)
		}
		return
	}

	const columnWidth = 24
	const columns = 4
	for i, n := range names {
		fmt.Fprintf(f, "%-*s", columnWidth, n)
		if (i+1)%columns == 0 {
			fmt.Fprintln(f)
		}
	}
	if len(names)%columns != 0 {
		fmt.Fprintln(f)
	}
}
