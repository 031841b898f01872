package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vfsarc/vfsarc/archive"
)

const infoHelp = `vfsarc info [-flags] <archive>

Print an archive's mount-level attributes: page count, compression,
encryption mode, and known filesets.

Example:
  % vfsarc info repo.vfsarc
`

func cmdInfo(args []string) error {
	fset := flag.NewFlagSet("info", flag.ExitOnError)
	fset.Usage = usage(fset, infoHelp)
	pw := registerPasswordFlags(fset)
	fset.Parse(args)

	if fset.NArg() != 1 {
		fset.Usage()
		os.Exit(2)
	}
	path := fset.Arg(0)

	a, err := archive.Open(path, pw.openOptions(true)...)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer a.Close()

	attrs := a.Attributes()
	fmt.Printf("path:            %s\n", attrs.Path)
	fmt.Printf("pages:           %d\n", attrs.PageCount)
	fmt.Printf("compression:     %s\n", attrs.Compression)
	fmt.Printf("read-only:       %t\n", attrs.ReadOnly)
	fmt.Printf("encrypted:       %t\n", attrs.Encrypted)
	fmt.Printf("encrypt-key:     %t\n", attrs.EncryptKeyMode)
	fmt.Printf("active fileset:  %s\n", attrs.ActiveFileset)
	fmt.Printf("filesets:        %v\n", attrs.Filesets)
	return nil
}
