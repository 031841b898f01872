package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vfsarc/vfsarc/archive"
)

const mkdirHelp = `vfsarc mkdir [-flags] <archive> <path>

Create a directory, including any missing intermediate directories.

Example:
  % vfsarc mkdir repo.vfsarc /bin
`

func cmdMkdir(args []string) error {
	fset := flag.NewFlagSet("mkdir", flag.ExitOnError)
	fset.Usage = usage(fset, mkdirHelp)
	pw := registerPasswordFlags(fset)
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
	if err := a.Mkdir(target); err != nil {
		a.Close()
		return err
	}
	return a.Close()
}
