package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vfsarc/vfsarc/archive"
)

const filesetHelp = `vfsarc fileset [-flags] <archive> list
vfsarc fileset [-flags] <archive> create <name>
vfsarc fileset [-flags] <archive> switch <name>
vfsarc fileset [-flags] <archive> delete <name>

Inspect or change an archive's filesets: alternate, named roots sharing
the same underlying page store.

Example:
  % vfsarc fileset repo.vfsarc list
  % vfsarc fileset repo.vfsarc create snapshot-2026-07
`

func cmdFileset(args []string) error {
	fset := flag.NewFlagSet("fileset", flag.ExitOnError)
	fset.Usage = usage(fset, filesetHelp)
	pw := registerPasswordFlags(fset)
	fset.Parse(args)

	if fset.NArg() < 2 {
		fset.Usage()
		os.Exit(2)
	}
	path, verb := fset.Arg(0), fset.Arg(1)
	readOnly := verb == "list"

	a, err := archive.Open(path, pw.openOptions(readOnly)...)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer a.Close()

	switch verb {
	case "list":
		active := a.ActiveFileset()
		for _, name := range a.Filesets() {
			marker := "  "
			if name == active {
				marker = "* "
			}
			fmt.Println(marker + name)
		}
		return nil
	case "create":
		if fset.NArg() != 3 {
			fset.Usage()
			os.Exit(2)
		}
		return a.CreateFileset(fset.Arg(2))
	case "switch":
		if fset.NArg() != 3 {
			fset.Usage()
			os.Exit(2)
		}
		return a.SwitchFileset(fset.Arg(2))
	case "delete":
		if fset.NArg() != 3 {
			fset.Usage()
			os.Exit(2)
		}
		return a.DeleteFileset(fset.Arg(2))
	default:
		fset.Usage()
		os.Exit(2)
		return nil
	}
}
