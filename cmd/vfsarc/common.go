package main

import (
	"flag"

	"github.com/vfsarc/vfsarc/archive"
)

// passwordFlags registers the -password and -encrypt-key flags shared by
// every subcommand that opens an existing archive.
type passwordFlags struct {
	password   *string
	encryptKey *bool
}

func registerPasswordFlags(fset *flag.FlagSet) passwordFlags {
	return passwordFlags{
		password:   fset.String("password", "", "archive password, if any"),
		encryptKey: fset.Bool("encrypt-key", false, "use encrypt-key mode (a random data key wrapped under the password) when creating"),
	}
}

func (f passwordFlags) openOptions(readOnly bool) []archive.Option {
	var opts []archive.Option
	if *f.password != "" {
		opts = append(opts, archive.WithPassword(*f.password))
	}
	if readOnly {
		opts = append(opts, archive.WithReadOnly())
	}
	return opts
}

func (f passwordFlags) createOptions() []archive.Option {
	var opts []archive.Option
	switch {
	case *f.password != "" && *f.encryptKey:
		opts = append(opts, archive.WithEncryptKeyMode(*f.password))
	case *f.password != "":
		opts = append(opts, archive.WithPassword(*f.password))
	}
	return opts
}
