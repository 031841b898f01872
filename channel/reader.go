// Package channel implements the reader and writer channels: byte-stream
// I/O over a logical file whose content spans one or more pages, plus
// pending small-writer buffer slots (spec.md §4.5).
package channel

import (
	"io"
	"sync"

	"github.com/vfsarc/vfsarc"
	"github.com/vfsarc/vfsarc/fsindex"
	"github.com/vfsarc/vfsarc/pages"
)

// blockUsageSource reports how many file entries reference a page, so
// the reader can pick a cache weight for it (spec.md §4.5). fsindex.Index
// satisfies this.
type blockUsageSource interface {
	RLock() error
	RUnlock()
	GetBlockUsage(pageIndex int) int
}

// PendingSource resolves a small-file writer buffer slot to its raw
// bytes, for reading a file that hasn't been flushed to a page yet. The
// archive package's smallwriter.Writer satisfies this.
type PendingSource interface {
	SlotData(slotIndex int) ([]byte, bool)
}

// Reader is a read-only byte-stream cursor over one fsindex file entry's
// content, transparently crossing block boundaries.
type Reader struct {
	mu      sync.Mutex
	entry   *fsindex.Entry
	store   *pages.Store
	index   blockUsageSource
	pending PendingSource

	pos       int64
	firstRead bool

	// cursor caches the currently-loaded block so sequential reads (the
	// overwhelmingly common case) don't redo the cumulative-offset scan
	// on every call.
	blockIdx    int
	blockStart  int64
	blockData   []byte

	closed bool
}

// NewReader opens a read cursor over entry. index, if non-nil, is
// consulted to pick a cache weight per block (spec.md §4.5); pass nil to
// always use CacheWeightSingleEntry. pending may be nil if entry is known
// to have no pending blocks (e.g. a freshly opened read-only archive).
// The caller must call Close when done to release the entry's soft lock.
func NewReader(entry *fsindex.Entry, store *pages.Store, index blockUsageSource, pending PendingSource) *Reader {
	return &Reader{entry: entry, store: store, index: index, pending: pending, blockIdx: -1, firstRead: true}
}

// Close releases the soft lock NewReader's caller is expected to have
// acquired on entry before handing the Reader out. Close is idempotent.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.entry.Lock().Release()
	return nil
}

// Size returns the file's total byte length.
func (r *Reader) Size() int64 { return r.entry.Size }

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pos >= r.entry.Size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if r.firstRead {
		r.firstRead = false
		r.bumpClockIfFirstBlockUncached()
	}

	if err := r.loadBlockForLocked(r.pos); err != nil {
		return 0, err
	}
	offsetInBlock := int(r.pos - r.blockStart)
	n := copy(p, r.blockData[offsetInBlock:])
	r.pos += int64(n)
	return n, nil
}

// Seek implements io.Seeker.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = r.pos + offset
	case io.SeekEnd:
		newPos = r.entry.Size + offset
	default:
		return 0, vfsarc.NewError(vfsarc.KindInvalidArgument, "channel.Seek", nil)
	}
	if newPos < 0 {
		return 0, vfsarc.NewError(vfsarc.KindInvalidArgument, "channel.Seek", nil)
	}
	r.pos = newPos
	return r.pos, nil
}

// loadBlockForLocked ensures r.blockData holds the bytes covering offset,
// caller holds r.mu.
func (r *Reader) loadBlockForLocked(offset int64) error {
	if r.blockData != nil && offset >= r.blockStart && offset < r.blockStart+int64(len(r.blockData)) {
		return nil
	}

	var cum int64
	for i, b := range r.entry.Blocks {
		if offset >= cum && offset < cum+int64(b.Length) {
			data, err := r.readBlockContent(b)
			if err != nil {
				return err
			}
			r.blockIdx = i
			r.blockStart = cum
			r.blockData = data
			return nil
		}
		cum += int64(b.Length)
	}
	return vfsarc.NewError(vfsarc.KindIOError, "channel.Read", io.ErrUnexpectedEOF)
}

func (r *Reader) readBlockContent(b fsindex.Block) ([]byte, error) {
	if b.IsPending() {
		if r.pending == nil {
			return nil, vfsarc.NewError(vfsarc.KindIOError, "channel.Read", io.ErrUnexpectedEOF)
		}
		full, ok := r.pending.SlotData(b.PendingSlot())
		if !ok {
			return nil, vfsarc.NewError(vfsarc.KindIOError, "channel.Read", io.ErrUnexpectedEOF)
		}
		return full[b.Offset : b.Offset+b.Length], nil
	}

	full, err := r.store.ReadPage(b.PageIndex, r.cacheWeightFor(b.PageIndex))
	if err != nil {
		return nil, err
	}
	if b.Offset+b.Length > len(full) {
		return nil, vfsarc.NewError(vfsarc.KindCorruptArchive, "channel.Read", nil)
	}
	return full[b.Offset : b.Offset+b.Length], nil
}

// cacheWeightFor picks CacheWeightShared when more than one file entry
// references pageIndex, CacheWeightSingleEntry otherwise, per spec.md
// §4.5. Without an index to consult, it conservatively assumes
// single-entry usage.
func (r *Reader) cacheWeightFor(pageIndex int) int64 {
	if r.index == nil {
		return pages.CacheWeightSingleEntry
	}
	if err := r.index.RLock(); err != nil {
		return pages.CacheWeightSingleEntry
	}
	usage := r.index.GetBlockUsage(pageIndex)
	r.index.RUnlock()
	if usage > 1 {
		return pages.CacheWeightShared
	}
	return pages.CacheWeightSingleEntry
}

// bumpClockIfFirstBlockUncached implements spec.md §4.5's pre-first-read
// tickTock: if entry's first block's page isn't already cached, age
// every cached page by one tick so eviction doesn't favor whatever an
// async preload just materialized over the page this read is about to
// need.
func (r *Reader) bumpClockIfFirstBlockUncached() {
	if len(r.entry.Blocks) == 0 {
		return
	}
	b := r.entry.Blocks[0]
	if b.IsPending() {
		return
	}
	if !r.store.PageCached(b.PageIndex) {
		r.store.BumpCacheClock()
	}
}

var (
	_ io.ReadSeeker = (*Reader)(nil)
	_ io.Closer     = (*Reader)(nil)
)
