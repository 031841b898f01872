// Package fsindex implements the filesystem index: the hierarchical tree
// of files and directories that gives an archive its directory structure,
// plus the block maps that locate each file's content within the page
// store (spec.md §4.3).
package fsindex

import (
	"time"

	"github.com/vfsarc/vfsarc/rwsync"
)

// Kind distinguishes a File entry from a Directory entry in the tagged
// union (spec.md §4.3: "File{size,mtime,blocks} / Directory{children}").
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Block is one (pageIndex, offset, length) triple describing a contiguous
// run of a file's bytes living inside a single page. A negative pageIndex
// denotes a pending block: content still sitting in the small-file
// writer's buffer rather than committed to a page (spec.md §4.4).
type Block struct {
	PageIndex int
	Offset    int
	Length    int
}

// IsPending reports whether this block's bytes live in the small-file
// writer's buffer rather than in a committed page.
func (b Block) IsPending() bool { return b.PageIndex < 0 }

// PendingSlot returns the small-file writer buffer slot a pending block
// refers to. Only meaningful when IsPending is true.
func (b Block) PendingSlot() int { return -b.PageIndex - 1 }

// PendingBlock builds a Block referring to small-file writer buffer slot.
func PendingBlock(slot, offset, length int) Block {
	return Block{PageIndex: -(slot + 1), Offset: offset, Length: length}
}

// fixedChildSlots is the number of inline name/entry pairs a directory
// carries before its child container upgrades to a hash map. Most
// directories in practice hold a handful of entries, so a small fixed
// array avoids a map allocation for the common case (grounded on
// fsindex.c's small-directory array-then-hash escalation).
const fixedChildSlots = 8

// childContainer holds a directory's children, starting as a small fixed
// array and upgrading to a map once it overflows.
type childContainer struct {
	names [fixedChildSlots]string
	kids  [fixedChildSlots]*Entry
	count int

	hash map[string]*Entry // nil until upgraded
}

func newChildContainer() *childContainer { return &childContainer{} }

func (c *childContainer) get(name string) (*Entry, bool) {
	if c.hash != nil {
		e, ok := c.hash[name]
		return e, ok
	}
	for i := 0; i < c.count; i++ {
		if c.names[i] == name {
			return c.kids[i], true
		}
	}
	return nil, false
}

func (c *childContainer) set(name string, e *Entry) {
	if c.hash != nil {
		c.hash[name] = e
		return
	}
	for i := 0; i < c.count; i++ {
		if c.names[i] == name {
			c.kids[i] = e
			return
		}
	}
	if c.count < fixedChildSlots {
		c.names[c.count] = name
		c.kids[c.count] = e
		c.count++
		return
	}
	c.upgrade()
	c.hash[name] = e
}

func (c *childContainer) upgrade() {
	c.hash = make(map[string]*Entry, c.count+1)
	for i := 0; i < c.count; i++ {
		c.hash[c.names[i]] = c.kids[i]
	}
	c.count = 0
}

func (c *childContainer) delete(name string) {
	if c.hash != nil {
		delete(c.hash, name)
		return
	}
	for i := 0; i < c.count; i++ {
		if c.names[i] == name {
			last := c.count - 1
			c.names[i] = c.names[last]
			c.kids[i] = c.kids[last]
			c.names[last] = ""
			c.kids[last] = nil
			c.count--
			return
		}
	}
}

func (c *childContainer) childNames() []string {
	if c.hash != nil {
		out := make([]string, 0, len(c.hash))
		for n := range c.hash {
			out = append(out, n)
		}
		return out
	}
	out := make([]string, c.count)
	copy(out, c.names[:c.count])
	return out
}

func (c *childContainer) length() int {
	if c.hash != nil {
		return len(c.hash)
	}
	return c.count
}

// Entry is one node in the filesystem tree: either a file (with its block
// list) or a directory (with its children). Each entry carries its own
// soft lock so a handle into it can outlive a caller's hold on the parent
// index's lock (spec.md §7).
type Entry struct {
	Name  string
	Kind  Kind
	Mtime time.Time

	// File fields.
	Size   int64
	Blocks []Block

	// Directory fields.
	children *childContainer

	inactive bool
	lock     *rwsync.SoftLock
}

// NewFile builds a file entry with no content yet.
func NewFile(name string, mtime time.Time) *Entry {
	return &Entry{Name: name, Kind: KindFile, Mtime: mtime, lock: rwsync.NewSoftLock()}
}

// NewDirectory builds an empty directory entry.
func NewDirectory(name string, mtime time.Time) *Entry {
	return &Entry{Name: name, Kind: KindDirectory, Mtime: mtime, children: newChildContainer(), lock: rwsync.NewSoftLock()}
}

// IsDirectory reports whether this entry is a directory.
func (e *Entry) IsDirectory() bool { return e.Kind == KindDirectory }

// Child looks up a direct child by name. Only valid on directories.
func (e *Entry) Child(name string) (*Entry, bool) {
	if e.children == nil {
		return nil, false
	}
	return e.children.get(name)
}

// SetChild inserts or replaces a direct child by name. Only valid on
// directories.
func (e *Entry) SetChild(name string, child *Entry) {
	if e.children == nil {
		e.children = newChildContainer()
	}
	e.children.set(name, child)
}

// RemoveChild deletes a direct child by name, if present.
func (e *Entry) RemoveChild(name string) {
	if e.children != nil {
		e.children.delete(name)
	}
}

// ChildNames returns the directory's child names in no particular order.
func (e *Entry) ChildNames() []string {
	if e.children == nil {
		return nil
	}
	return e.children.childNames()
}

// ChildCount returns the number of direct children.
func (e *Entry) ChildCount() int {
	if e.children == nil {
		return 0
	}
	return e.children.length()
}

// Lock returns the entry's soft lock, which keeps the entry alive for a
// caller holding an open reader/writer channel even after the owning
// index entry is logically removed (spec.md §7).
func (e *Entry) Lock() *rwsync.SoftLock { return e.lock }

// MarkInactive flags the entry as removed-but-still-referenced: it no
// longer appears in directory listings but a soft lock holder can keep
// using it until they release.
func (e *Entry) MarkInactive() { e.inactive = true }

// Inactive reports whether the entry has been unlinked from its parent
// while still held open.
func (e *Entry) Inactive() bool { return e.inactive }

// BlockUsage returns the number of blocks this file has referencing
// pageIndex; Index.GetBlockUsage uses it to count the entries sharing a
// page (spec.md §4.1's cache-weight rule).
func (e *Entry) BlockUsage(pageIndex int) int {
	n := 0
	for _, b := range e.Blocks {
		if b.PageIndex == pageIndex {
			n++
		}
	}
	return n
}
