// Command vfsarc is a CLI front-end for the archive package: create
// archives, add and extract files, list directories, and inspect or
// change mount-level attributes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vfsarc/vfsarc/archive"
)

var debug = flag.Bool("debug", false, "format error messages with additional detail")

type cmd struct {
	fn func(args []string) error
}

func funcmain() error {
	flag.Parse()

	verbs := map[string]cmd{
		"create":   {cmdCreate},
		"add":      {cmdAdd},
		"cat":      {cmdCat},
		"ls":       {cmdLs},
		"mkdir":    {cmdMkdir},
		"rm":       {cmdRm},
		"info":     {cmdInfo},
		"fileset":  {cmdFileset},
		"password": {cmdPassword},
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	verb, args := args[0], args[1:]

	if verb == "help" {
		printUsage()
		return nil
	}

	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		fmt.Fprintf(os.Stderr, "syntax: vfsarc <command> [options]\n")
		os.Exit(2)
	}
	if err := v.fn(args); err != nil {
		if *debug {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}
	return archive.RunAtExit()
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "vfsarc [-flags] <command> [-flags] <args>\n")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "\tcreate   - create a new archive\n")
	fmt.Fprintf(os.Stderr, "\tadd      - add a file from disk into an archive\n")
	fmt.Fprintf(os.Stderr, "\tcat      - print a file's content to stdout\n")
	fmt.Fprintf(os.Stderr, "\tls       - list a directory's contents\n")
	fmt.Fprintf(os.Stderr, "\tmkdir    - create a directory\n")
	fmt.Fprintf(os.Stderr, "\trm       - remove a file or directory\n")
	fmt.Fprintf(os.Stderr, "\tinfo     - print archive attributes\n")
	fmt.Fprintf(os.Stderr, "\tfileset  - list/create/switch filesets\n")
	fmt.Fprintf(os.Stderr, "\tpassword - change an encrypt-key-mode archive's password\n")
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
