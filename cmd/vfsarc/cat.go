package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/vfsarc/vfsarc/archive"
)

const catHelp = `vfsarc cat [-flags] <archive> <path>

Print a file's content to stdout.

Example:
  % vfsarc cat repo.vfsarc /README.md
`

func cmdCat(args []string) error {
	fset := flag.NewFlagSet("cat", flag.ExitOnError)
	fset.Usage = usage(fset, catHelp)
	pw := registerPasswordFlags(fset)
	fset.Parse(args)

	if fset.NArg() != 2 {
		fset.Usage()
		os.Exit(2)
	}
	path, target := fset.Arg(0), fset.Arg(1)

	a, err := archive.Open(path, pw.openOptions(true)...)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer a.Close()

	r, err := a.OpenReader(target)
	if err != nil {
		return fmt.Errorf("opening %s: %w", target, err)
	}
	defer r.Close()

	_, err = io.Copy(os.Stdout, r)
	return err
}
