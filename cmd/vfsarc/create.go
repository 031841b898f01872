package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vfsarc/vfsarc/archive"
	"github.com/vfsarc/vfsarc/codec"
)

const createHelp = `vfsarc create [-flags] <archive> [file...]

Create a new archive at the given path. Each trailing file argument is
read from disk and stored under its base name at the archive root.

Example:
  % vfsarc create repo.vfsarc README.md LICENSE
  % vfsarc create -password hunter2 -encrypt-key secrets.vfsarc secret.txt
`

func parseCompression(name string) (codec.Tag, error) {
	switch name {
	case "", "zstd":
		return codec.TagZstd, nil
	case "zlib":
		return codec.TagZlib, nil
	case "bzip2":
		return codec.TagBzip2, nil
	case "lzma":
		return codec.TagLzma, nil
	case "brotli":
		return codec.TagBrotli, nil
	case "none":
		return codec.TagNone, nil
	default:
		return 0, fmt.Errorf("unknown -compression %q (want none, zlib, bzip2, lzma, zstd or brotli)", name)
	}
}

func cmdCreate(args []string) error {
	fset := flag.NewFlagSet("create", flag.ExitOnError)
	fset.Usage = usage(fset, createHelp)
	pw := registerPasswordFlags(fset)
	compression := fset.String("compression", "zstd", "page compression: none, zlib, bzip2, lzma, zstd, brotli")
	level := fset.Int("level", 9, "compression level, codec-dependent")
	fset.Parse(args)

	if fset.NArg() < 1 {
		fset.Usage()
		os.Exit(2)
	}
	path := fset.Arg(0)
	tag, err := parseCompression(*compression)
	if err != nil {
		return err
	}

	opts := pw.createOptions()
	opts = append(opts, archive.WithCompression(tag, *level))
	a, err := archive.Create(path, opts...)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	for _, src := range fset.Args()[1:] {
		if err := addFileFromDisk(a, src, "/"+filepath.Base(src)); err != nil {
			a.Close()
			return fmt.Errorf("adding %s: %w", src, err)
		}
	}
	return a.Close()
}

func addFileFromDisk(a *archive.Archive, src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := a.CreateWriter(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
