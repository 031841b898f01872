// Package vpath implements the normalized path object used to address
// entries in the filesystem index: UTF-8 byte strings with "/" as the
// canonical separator, split once into components and refcounted like the
// rest of the core's long-lived objects.
package vpath

import (
	"strings"
	"sync"
)

// Path is a normalized, split archive path. Construct with New; once built,
// a Path is immutable and safe for concurrent reads.
type Path struct {
	mu       sync.Mutex
	refcount int

	full string
	tail string
	elem []string
	key  string // elem joined with "\x00", returned by Key
}

// New splits and normalizes p: leading/trailing slashes are trimmed,
// repeated slashes collapse, and "." segments are dropped. An empty or
// all-slash path normalizes to the root path ("").
func New(p string) *Path {
	clean := strings.Trim(p, "/")
	var elem []string
	if clean != "" {
		for _, part := range strings.Split(clean, "/") {
			if part == "" || part == "." {
				continue
			}
			elem = append(elem, part)
		}
	}
	full := strings.Join(elem, "/")
	tail := ""
	if len(elem) > 0 {
		tail = elem[len(elem)-1]
	}
	return &Path{
		refcount: 1,
		full:     full,
		tail:     tail,
		elem:     elem,
		key:      strings.Join(elem, "\x00"),
	}
}

// IsRoot reports whether this path refers to the archive root.
func (p *Path) IsRoot() bool { return len(p.elem) == 0 }

// Full returns the normalized slash-joined path, without a leading slash.
func (p *Path) Full() string { return p.full }

// Tail returns the last path component, or "" for the root.
func (p *Path) Tail() string { return p.tail }

// Elements returns the path's components in order. The returned slice must
// not be mutated.
func (p *Path) Elements() []string { return p.elem }

// Parent returns the path with its last component removed.
func (p *Path) Parent() *Path {
	if len(p.elem) == 0 {
		return p
	}
	return New(strings.Join(p.elem[:len(p.elem)-1], "/"))
}

// Key returns an alternate representation with "/" separators replaced by
// NUL, suitable as a map key that can't collide with a prefix/suffix
// ambiguity the way naive string concatenation could.
func (p *Path) Key() string { return p.key }

// Ref increments the refcount and returns p for chaining.
func (p *Path) Ref() *Path {
	p.mu.Lock()
	p.refcount++
	p.mu.Unlock()
	return p
}

// Unref decrements the refcount, returning true if this was the last
// reference.
func (p *Path) Unref() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refcount--
	if p.refcount < 0 {
		panic("vpath: Unref called more times than Ref")
	}
	return p.refcount == 0
}
