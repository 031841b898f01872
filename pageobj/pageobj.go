// Package pageobj implements the refcounted byte buffer used for page
// contents. A Page reserves headroom for a 16-byte IV prefix even when
// unencrypted, so a page store can toggle encryption on without having to
// reallocate every cached buffer.
package pageobj

import "sync"

// ivHeadroom is the number of bytes reserved at the front of every Page's
// underlying array for an encryption IV, whether or not the page is
// currently encrypted.
const ivHeadroom = 16

// Page is a reference-counted, shared buffer of page content. Multiple
// cache readers can hold the same *Page without copying; the page is only
// released back to its pool (if any) once the last reference drops.
//
// Page never aliases a Go slice across goroutines mutably — once
// constructed, the content bytes are treated as immutable, matching the
// archive invariant that pages are immutable once written.
type Page struct {
	mu       sync.Mutex
	refcount int

	buf       []byte // full backing array, ivHeadroom bytes of headroom then content
	contentOf int    // offset of content start within buf (>= ivHeadroom)
	length    int    // content length
}

// New wraps content in a new Page with a single reference, reserving IV
// headroom ahead of the content so encryption can be applied later without
// reallocating.
func New(content []byte) *Page {
	buf := make([]byte, ivHeadroom+len(content))
	copy(buf[ivHeadroom:], content)
	return &Page{
		refcount:  1,
		buf:       buf,
		contentOf: ivHeadroom,
		length:    len(content),
	}
}

// Bytes returns the page's content (excluding IV headroom). The returned
// slice must not be mutated by the caller; pages are immutable once
// written.
func (p *Page) Bytes() []byte {
	return p.buf[p.contentOf : p.contentOf+p.length]
}

// Len returns the content length.
func (p *Page) Len() int { return p.length }

// WithIV returns a slice covering the reserved headroom immediately before
// the content, sized to exactly n bytes (n must be <= ivHeadroom), so a
// caller can write an IV in place without an extra allocation.
func (p *Page) WithIV(n int) []byte {
	if n > ivHeadroom {
		panic("pageobj: IV headroom exceeded")
	}
	return p.buf[p.contentOf-n : p.contentOf]
}

// Ref increments the soft-lock reference count and returns p for chaining.
func (p *Page) Ref() *Page {
	p.mu.Lock()
	p.refcount++
	p.mu.Unlock()
	return p
}

// Unref decrements the reference count. It returns true when this was the
// last reference, at which point the caller may return the buffer to a
// pool; Page itself does not enforce any pooling policy.
func (p *Page) Unref() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refcount--
	if p.refcount < 0 {
		panic("pageobj: Unref called more times than Ref")
	}
	return p.refcount == 0
}

// Refcount reports the current soft-lock reference count, for tests and
// diagnostics.
func (p *Page) Refcount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refcount
}
