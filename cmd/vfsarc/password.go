package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vfsarc/vfsarc/archive"
)

const passwordHelp = `vfsarc password <archive> <old-password> <new-password>

Change an encrypt-key-mode archive's password without re-encrypting
page content. Archives created with a bare password (not -encrypt-key)
can't be rekeyed this way.

Example:
  % vfsarc password secrets.vfsarc hunter2 correct-horse-battery-staple
`

func cmdPassword(args []string) error {
	fset := flag.NewFlagSet("password", flag.ExitOnError)
	fset.Usage = usage(fset, passwordHelp)
	fset.Parse(args)

	if fset.NArg() != 3 {
		fset.Usage()
		os.Exit(2)
	}
	path, oldPassword, newPassword := fset.Arg(0), fset.Arg(1), fset.Arg(2)

	a, err := archive.Open(path, archive.WithPassword(oldPassword))
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if err := a.ChangePassword(newPassword); err != nil {
		a.Close()
		return err
	}
	return a.Close()
}
