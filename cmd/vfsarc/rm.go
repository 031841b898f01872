package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vfsarc/vfsarc/archive"
)

const rmHelp = `vfsarc rm [-flags] <archive> <path>

Remove a file or directory. Use -r to remove a non-empty directory.

Example:
  % vfsarc rm -r repo.vfsarc /tmp
`

func cmdRm(args []string) error {
	fset := flag.NewFlagSet("rm", flag.ExitOnError)
	fset.Usage = usage(fset, rmHelp)
	pw := registerPasswordFlags(fset)
	recursive := fset.Bool("r", false, "remove a non-empty directory and its contents")
	fset.Parse(args)

	if fset.NArg() != 2 {
		fset.Usage()
		os.Exit(2)
	}
	path, target := fset.Arg(0), fset.Arg(1)

	a, err := archive.Open(path, pw.openOptions(false)...)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if err := a.Remove(target, *recursive); err != nil {
		a.Close()
		return err
	}
	return a.Close()
}
