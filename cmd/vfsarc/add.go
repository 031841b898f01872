package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vfsarc/vfsarc/archive"
)

const addHelp = `vfsarc add [-flags] <archive> <local-file> <archive-path>

Copy a file from disk into an existing archive.

Example:
  % vfsarc add repo.vfsarc ./build/output.bin /bin/output.bin
`

func cmdAdd(args []string) error {
	fset := flag.NewFlagSet("add", flag.ExitOnError)
	fset.Usage = usage(fset, addHelp)
	pw := registerPasswordFlags(fset)
	fset.Parse(args)

	if fset.NArg() != 3 {
		fset.Usage()
		os.Exit(2)
	}
	path, src, dest := fset.Arg(0), fset.Arg(1), fset.Arg(2)

	a, err := archive.Open(path, pw.openOptions(false)...)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if err := addFileFromDisk(a, src, dest); err != nil {
		a.Close()
		return err
	}
	return a.Close()
}
