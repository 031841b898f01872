package fsindex

import (
	"time"

	"github.com/vfsarc/vfsarc"
)

// activeFilesetMetaKey is the reserved metadata key the active fileset
// name is persisted under, so it survives a close/reopen round-trip
// (spec.md §4.3's "active-fileset-name persisted in metadata").
const activeFilesetMetaKey = "\x00vfsarc.active-fileset"

// Filesets returns the names of all filesets, in no particular order.
func (ix *Index) Filesets() []string {
	names := make([]string, 0, len(ix.filesets))
	for n := range ix.filesets {
		names = append(names, n)
	}
	return names
}

// ActiveFileset returns the name of the currently active fileset.
func (ix *Index) ActiveFileset() string { return ix.activeName }

// CreateFileset adds a new, empty fileset without switching to it.
func (ix *Index) CreateFileset(name string) error {
	if _, exists := ix.filesets[name]; exists {
		return opErr("fsindex.CreateFileset", vfsarc.KindExists)
	}
	ix.filesets[name] = NewDirectory("", time.Time{})
	return nil
}

// SwitchFileset makes name the active fileset, updating Root() to return
// its tree. Exactly one fileset is active at a time (spec.md §4.3).
//
// Callers must flush any pending small-file writer buffer before calling
// this: a fileset switch changes which tree pending blocks would attach
// to, so the buffer is drained first (DESIGN.md's "fileset switch"
// decision).
func (ix *Index) SwitchFileset(name string) error {
	root, ok := ix.filesets[name]
	if !ok {
		return opErr("fsindex.SwitchFileset", vfsarc.KindNotFound)
	}
	ix.root = root
	ix.activeName = name
	ix.SetMetadata(activeFilesetMetaKey, []byte(name))
	return nil
}

// DeleteFileset removes a fileset other than the currently active one.
func (ix *Index) DeleteFileset(name string) error {
	if name == ix.activeName {
		return opErr("fsindex.DeleteFileset", vfsarc.KindInvalidArgument)
	}
	if _, ok := ix.filesets[name]; !ok {
		return opErr("fsindex.DeleteFileset", vfsarc.KindNotFound)
	}
	delete(ix.filesets, name)
	return nil
}

// restoreActiveFileset re-applies the active fileset name recorded in
// metadata after deserialization, falling back to defaultFileset if the
// key is absent (an archive written before filesets existed).
func (ix *Index) restoreActiveFileset() {
	if raw, ok := ix.GetMetadata(activeFilesetMetaKey); ok {
		if root, ok := ix.filesets[string(raw)]; ok {
			ix.root = root
			ix.activeName = string(raw)
			return
		}
	}
	if root, ok := ix.filesets[defaultFileset]; ok {
		ix.root = root
		ix.activeName = defaultFileset
		return
	}
	for name, root := range ix.filesets {
		ix.root = root
		ix.activeName = name
		return
	}
}
