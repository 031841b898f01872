package fsindex

import (
	"sync"
	"time"

	"github.com/vfsarc/vfsarc"
	"github.com/vfsarc/vfsarc/rwsync"
	"github.com/vfsarc/vfsarc/vpath"
)

// Index is the filesystem tree for one archive (or one fileset within an
// archive, see fileset.go). It's guarded by a single rwsync.RWMutex
// following the writer-then-pages-then-fsindex lock ordering used
// throughout the archive package.
type Index struct {
	mu   rwsync.RWMutex
	root *Entry

	filesets    map[string]*Entry
	activeName  string

	metaMu   sync.Mutex
	metadata map[string][]byte

	changeCount int64
}

// defaultFileset is the name of the fileset every archive starts with.
const defaultFileset = "default"

// New returns an Index with an empty root directory under the default
// fileset.
func New() *Index {
	root := NewDirectory("", time.Time{})
	return &Index{
		root:       root,
		filesets:   map[string]*Entry{defaultFileset: root},
		activeName: defaultFileset,
		metadata:   make(map[string][]byte),
	}
}

// Root returns the tree's root directory entry. Callers must hold the
// Index's lock (RLock/Lock) for the duration of any traversal through it.
func (ix *Index) Root() *Entry { return ix.root }

// RLock/RUnlock/Lock/Unlock expose the underlying rwsync.RWMutex so
// higher layers (archive, channel) can hold it across a traversal plus
// I/O, per spec.md §7's writer->pages->fsindex lock ordering.
func (ix *Index) RLock() error { return ix.mu.RLock() }
func (ix *Index) RUnlock()     { ix.mu.RUnlock() }
func (ix *Index) WLock() error { return ix.mu.Lock() }
func (ix *Index) WUnlock()     { ix.mu.Unlock() }

func opErr(op string, kind vfsarc.ErrorKind) error { return vfsarc.NewError(kind, op, nil) }

// walkParent resolves all but the last path element, returning the parent
// directory entry.
func (ix *Index) walkParent(p *vpath.Path) (*Entry, error) {
	dir := ix.root
	elems := p.Elements()
	if len(elems) == 0 {
		return nil, opErr("fsindex.walk", vfsarc.KindBadPath)
	}
	for _, name := range elems[:len(elems)-1] {
		child, ok := dir.Child(name)
		if !ok {
			return nil, opErr("fsindex.walk", vfsarc.KindNotFound)
		}
		if !child.IsDirectory() {
			return nil, opErr("fsindex.walk", vfsarc.KindNotADirectory)
		}
		dir = child
	}
	return dir, nil
}

// Get resolves p to its entry. The root path resolves to the root
// directory entry.
func (ix *Index) Get(p *vpath.Path) (*Entry, error) {
	if p.IsRoot() {
		return ix.root, nil
	}
	parent, err := ix.walkParent(p)
	if err != nil {
		return nil, err
	}
	child, ok := parent.Child(p.Tail())
	if !ok {
		return nil, opErr("fsindex.Get", vfsarc.KindNotFound)
	}
	return child, nil
}

// Set installs a file entry at p, replacing any existing entry there.
// Setting a directory over an existing directory fails hard rather than
// merging (an explicit decision recorded in DESIGN.md: silent merges
// make it too easy to lose files from the shadowed subtree).
func (ix *Index) Set(p *vpath.Path, e *Entry) error {
	if p.IsRoot() {
		return opErr("fsindex.Set", vfsarc.KindBadPath)
	}
	parent, err := ix.walkParent(p)
	if err != nil {
		return err
	}
	name := p.Tail()
	if existing, ok := parent.Child(name); ok {
		if existing.IsDirectory() && e.IsDirectory() {
			return opErr("fsindex.Set", vfsarc.KindExists)
		}
		if existing.IsDirectory() != e.IsDirectory() {
			if existing.IsDirectory() && existing.ChildCount() > 0 {
				return opErr("fsindex.Set", vfsarc.KindNotEmpty)
			}
		}
	}
	e.Name = name
	parent.SetChild(name, e)
	ix.bumpChangeCount()
	return nil
}

// SetDirectory ensures a directory entry exists at p, creating
// intermediate directories as needed (like mkdir -p), and fails if a file
// already occupies the path.
func (ix *Index) SetDirectory(p *vpath.Path) (*Entry, error) {
	dir := ix.root
	for _, name := range p.Elements() {
		child, ok := dir.Child(name)
		if !ok {
			child = NewDirectory(name, time.Now())
			dir.SetChild(name, child)
			ix.bumpChangeCount()
		} else if !child.IsDirectory() {
			return nil, opErr("fsindex.SetDirectory", vfsarc.KindNotADirectory)
		}
		dir = child
	}
	return dir, nil
}

// Unset removes the entry at p. A non-empty directory is refused unless
// recursive is true.
func (ix *Index) Unset(p *vpath.Path, recursive bool) error {
	if p.IsRoot() {
		return opErr("fsindex.Unset", vfsarc.KindBadPath)
	}
	parent, err := ix.walkParent(p)
	if err != nil {
		return err
	}
	name := p.Tail()
	e, ok := parent.Child(name)
	if !ok {
		return opErr("fsindex.Unset", vfsarc.KindNotFound)
	}
	if e.IsDirectory() && e.ChildCount() > 0 && !recursive {
		return opErr("fsindex.Unset", vfsarc.KindNotEmpty)
	}
	parent.RemoveChild(name)
	if e.Lock().Count() > 1 {
		e.MarkInactive()
	}
	ix.bumpChangeCount()
	return nil
}

// List returns the names of p's direct children. p must resolve to a
// directory.
func (ix *Index) List(p *vpath.Path) ([]string, error) {
	e, err := ix.Get(p)
	if err != nil {
		return nil, err
	}
	if !e.IsDirectory() {
		return nil, opErr("fsindex.List", vfsarc.KindNotADirectory)
	}
	return e.ChildNames(), nil
}

// SetMetadata stores an arbitrary key/value pair alongside the tree (mount
// options, user attributes, the active fileset marker; spec.md §4.3).
func (ix *Index) SetMetadata(key string, value []byte) {
	ix.metaMu.Lock()
	defer ix.metaMu.Unlock()
	ix.metadata[key] = value
}

// GetMetadata retrieves a previously stored metadata value.
func (ix *Index) GetMetadata(key string) ([]byte, bool) {
	ix.metaMu.Lock()
	defer ix.metaMu.Unlock()
	v, ok := ix.metadata[key]
	return v, ok
}

// MetadataKeys returns all metadata keys, for serialization.
func (ix *Index) MetadataKeys() []string {
	ix.metaMu.Lock()
	defer ix.metaMu.Unlock()
	keys := make([]string, 0, len(ix.metadata))
	for k := range ix.metadata {
		keys = append(keys, k)
	}
	return keys
}

func (ix *Index) bumpChangeCount() { ix.changeCount++ }

// ChangeCount returns how many structural mutations (Set/SetDirectory/
// Unset) have happened since creation. The archive layer does not consult
// it: its Flush and Close rewrite the index whenever the store is writable.
func (ix *Index) ChangeCount() int64 { return ix.changeCount }

// GetBlockUsage walks the whole tree counting how many file entries have
// at least one block referencing pageIndex, for the page cache's weighting
// decisions (spec.md §4.1).
func (ix *Index) GetBlockUsage(pageIndex int) int {
	var count int
	ix.walkFilesLocked(func(e *Entry) {
		if e.BlockUsage(pageIndex) > 0 {
			count++
		}
	})
	return count
}

// WalkFiles calls fn once for every file entry in the tree. The caller
// must hold ix.RLock (or WLock) for the duration of the call, same as
// Root.
func (ix *Index) WalkFiles(fn func(e *Entry)) {
	ix.walkFilesLocked(fn)
}

func (ix *Index) walkFilesLocked(fn func(e *Entry)) {
	var walk func(e *Entry)
	walk = func(e *Entry) {
		if e.IsDirectory() {
			for _, name := range e.ChildNames() {
				child, _ := e.Child(name)
				walk(child)
			}
			return
		}
		fn(e)
	}
	walk(ix.root)
}
