// Package smallwriter implements the small-file dedup batcher: small files
// are buffered in memory and packed together into shared pages instead of
// each getting its own page, with content-hash dedup against both other
// buffered files and already-committed pages (spec.md §4.4).
package smallwriter

import (
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/vfsarc/vfsarc/fsindex"
	"github.com/vfsarc/vfsarc/hashing"
	"github.com/vfsarc/vfsarc/pages"
	"github.com/vfsarc/vfsarc/vpath"
)

// slot is one buffered small file awaiting a Flush.
type slot struct {
	data  []byte
	path  *vpath.Path
	mtime time.Time
	entry *fsindex.Entry

	extension string
	tail      string
	fullName  string
}

type dedupKey struct {
	md5  hashing.MD5
	size int
}

type dedupTarget struct {
	pageIndex int
	offset    int
}

// Writer batches small file writes and periodically flushes them into
// shared pages. A Writer is not safe for concurrent use without external
// synchronization; callers hold the archive's write lock while using it.
type Writer struct {
	mu sync.Mutex

	store *pages.Store
	index *fsindex.Index

	smallFileSize int // files at or above this size bypass the buffer entirely
	pageSize      int // target size of a packed page

	// dedup is disabled entirely when encryption is active: encrypted
	// page bytes never repeat even for identical plaintext, so a byte
	// comparison against decrypted content would be the only way to
	// dedup and that defeats the performance point of the fast path
	// (spec.md §9).
	dedupEnabled bool

	slots   []*slot
	pageMap map[dedupKey]dedupTarget
}

// New returns a Writer backed by store and index, bypassing the buffer for
// any file at or above smallFileSize and packing pages up to roughly
// pageSize bytes. If index already holds single-block file entries (a
// freshly reopened archive), their (size, MD5) -> (page, offset)
// mappings seed the dedup page map up front, so an incoming small file
// identical to one packed in a previous session dedups against it
// without ever re-touching the buffer (spec.md §4.4, §8).
func New(store *pages.Store, index *fsindex.Index, smallFileSize, pageSize int, encryptionActive bool) *Writer {
	w := &Writer{
		store:         store,
		index:         index,
		smallFileSize: smallFileSize,
		pageSize:      pageSize,
		dedupEnabled:  !encryptionActive,
		pageMap:       make(map[dedupKey]dedupTarget),
	}
	if w.dedupEnabled {
		w.seedPageMap()
	}
	return w
}

// seedPageMap populates pageMap from every single-block file entry
// already in index, so cross-session dedup sees content packed by a
// prior Flush in an earlier mount of the same archive.
func (w *Writer) seedPageMap() {
	if err := w.index.RLock(); err != nil {
		return
	}
	defer w.index.RUnlock()
	w.index.WalkFiles(func(e *fsindex.Entry) {
		if len(e.Blocks) != 1 {
			return
		}
		b := e.Blocks[0]
		if b.IsPending() {
			return
		}
		content, err := w.store.ReadPage(b.PageIndex, pages.CacheWeightDedupScan)
		if err != nil || b.Offset+b.Length > len(content) {
			return
		}
		key := dedupKey{md5: hashing.SumMD5(content[b.Offset : b.Offset+b.Length]), size: b.Length}
		if _, exists := w.pageMap[key]; !exists {
			w.pageMap[key] = dedupTarget{pageIndex: b.PageIndex, offset: b.Offset}
		}
	})
}

// AddFile writes content as the named file's contents, buffering it if
// it's small or writing it directly as one or more full pages otherwise.
// entry is the (already inserted into the tree) fsindex entry to update
// with the resulting block list.
func (w *Writer) AddFile(p *vpath.Path, content []byte, mtime time.Time, entry *fsindex.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry.Size = int64(len(content))
	entry.Mtime = mtime
	entry.Blocks = entry.Blocks[:0]

	if len(content) >= w.smallFileSize {
		return w.writeLargeLocked(content, entry)
	}
	return w.bufferLocked(p, content, mtime, entry)
}

// writeLargeLocked splits content into pageSize-sized chunks and commits
// each directly as its own page.
func (w *Writer) writeLargeLocked(content []byte, entry *fsindex.Entry) error {
	if len(content) == 0 {
		return nil
	}
	for off := 0; off < len(content); off += w.pageSize {
		end := off + w.pageSize
		if end > len(content) {
			end = len(content)
		}
		chunk := content[off:end]
		idx, err := w.store.WritePage(chunk, w.dedupEnabled, pages.CacheWeightSingleEntry)
		if err != nil {
			return xerrors.Errorf("smallwriter: writing large-file page: %w", err)
		}
		entry.Blocks = append(entry.Blocks, fsindex.Block{PageIndex: idx, Offset: 0, Length: len(chunk)})
	}
	return nil
}

// bufferLocked either reuses an already-known page/offset for identical
// content, or appends a new pending slot.
func (w *Writer) bufferLocked(p *vpath.Path, content []byte, mtime time.Time, entry *fsindex.Entry) error {
	if len(content) == 0 {
		return nil
	}
	if w.dedupEnabled {
		key := dedupKey{md5: hashing.SumMD5(content), size: len(content)}
		if target, ok := w.pageMap[key]; ok {
			entry.Blocks = append(entry.Blocks, fsindex.Block{PageIndex: target.pageIndex, Offset: target.offset, Length: len(content)})
			return nil
		}
	}

	s := &slot{
		data:      append([]byte(nil), content...),
		path:      p,
		mtime:     mtime,
		entry:     entry,
		extension: extensionOf(p.Tail()),
		tail:      p.Tail(),
		fullName:  p.Full(),
	}
	slotIndex := len(w.slots)
	w.slots = append(w.slots, s)
	entry.Blocks = append(entry.Blocks, fsindex.PendingBlock(slotIndex, 0, len(content)))
	return nil
}

func extensionOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// SlotData returns the raw buffered bytes for a still-pending slot, so a
// reader channel can serve a file that hasn't been flushed to a page yet.
func (w *Writer) SlotData(slotIndex int) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if slotIndex < 0 || slotIndex >= len(w.slots) {
		return nil, false
	}
	return w.slots[slotIndex].data, true
}

// PendingCount returns how many files are currently buffered.
func (w *Writer) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.slots)
}

// RemoveSlot discards a buffered file (e.g. it was deleted or overwritten
// before a Flush) and renumbers the remaining slots' pending blocks so
// indices stay contiguous.
func (w *Writer) RemoveSlot(slotIndex int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if slotIndex < 0 || slotIndex >= len(w.slots) {
		return xerrors.Errorf("smallwriter: slot %d out of range", slotIndex)
	}
	w.slots = append(w.slots[:slotIndex], w.slots[slotIndex+1:]...)
	for i := slotIndex; i < len(w.slots); i++ {
		renumberPendingBlocks(w.slots[i].entry, i+1, i)
	}
	return nil
}

// renumberPendingBlocks rewrites any pending block in e referring to
// oldSlot so it instead refers to newSlot.
func renumberPendingBlocks(e *fsindex.Entry, oldSlot, newSlot int) {
	for i, b := range e.Blocks {
		if b.IsPending() && b.PendingSlot() == oldSlot {
			e.Blocks[i] = fsindex.PendingBlock(newSlot, b.Offset, b.Length)
		}
	}
}

// sortedSlotOrder returns slot indices ordered by (extension, tail, full
// name), the packing order chosen to keep similar files near each other
// on disk (spec.md §4.4, grounded on generic/writer.c's
// Cookfs_WriterPurge sort).
func (w *Writer) sortedSlotOrder() []int {
	order := make([]int, len(w.slots))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := w.slots[order[a]], w.slots[order[b]]
		if sa.extension != sb.extension {
			return sa.extension < sb.extension
		}
		if sa.tail != sb.tail {
			return sa.tail < sb.tail
		}
		return sa.fullName < sb.fullName
	})
	return order
}
