package pages

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vfsarc/vfsarc/codec"
)

// AsyncWriteHandle represents an in-flight asynchronous page write. The
// compression work runs in a goroutine started by WritePageAsync; Wait
// blocks until it's done and Finalize commits the result into the page
// index, mirroring the process/wait/finalize callback trio of
// generic/pagesCompr.c's async compression path (spec.md §4.1).
type AsyncWriteHandle struct {
	store   *Store
	content []byte
	tag     codec.Tag
	level   int
	dedup   bool

	group      *errgroup.Group
	compressed []byte
	waitErr    error
	waited     bool
}

// WritePageAsync starts compressing content in a background goroutine and
// returns immediately. Call Wait to block until the compressed bytes are
// ready, then Finalize to commit the page (encrypt it if configured, then
// append it to the file and index). Splitting compression from the
// file write lets a caller pipeline several pages' compression work ahead
// of the point at which they actually need the result.
func (s *Store) WritePageAsync(ctx context.Context, content []byte, dedup bool) *AsyncWriteHandle {
	h := &AsyncWriteHandle{
		store:   s,
		content: content,
		tag:     s.defaultCompression,
		level:   s.defaultLevel,
		dedup:   dedup,
	}
	g, _ := errgroup.WithContext(ctx)
	h.group = g

	g.Go(func() error {
		c, ok := s.registry.Lookup(h.tag)
		if !ok {
			return vfsarcCompression("unknown compression tag in async write")
		}
		lvl := c.ClampLevel(h.level)
		out, err := c.Compress(lvl, content)
		if err != nil {
			return err
		}
		h.compressed = out
		h.level = lvl
		return nil
	})
	return h
}

// Wait blocks until background compression finishes. Safe to call more
// than once; only the first call does the actual waiting.
func (h *AsyncWriteHandle) Wait() error {
	if !h.waited {
		h.waitErr = h.group.Wait()
		h.waited = true
	}
	return h.waitErr
}

// Finalize commits the (already-waited-for) compressed bytes as a new
// page and returns its index, applying encryption and dedup exactly as
// the synchronous WritePage path does. Finalize calls Wait itself if the
// caller hasn't already.
func (h *AsyncWriteHandle) Finalize() (int, error) {
	if err := h.Wait(); err != nil {
		return 0, err
	}
	return h.store.writePrecompressed(h.content, h.compressed, h.tag, h.level, h.dedup)
}
