package smallwriter

import (
	"golang.org/x/xerrors"

	"github.com/vfsarc/vfsarc/fsindex"
	"github.com/vfsarc/vfsarc/hashing"
	"github.com/vfsarc/vfsarc/pages"
)

// Flush packs every buffered slot into one or more pages and rewrites the
// affected fsindex entries' pending blocks to point at the committed
// pages, then clears the buffer. Identical buffered content collapses to
// a single on-disk copy even across different target files when the
// duplicate falls in the same packed page; a duplicate of a page
// committed by an earlier Flush is reused only when dedup is enabled
// (that is, without encryption).
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.slots) == 0 {
		return nil
	}

	order := w.sortedSlotOrder()

	type placement struct{ pageIndex, offset int }
	resolved := make(map[int]placement, len(w.slots))

	var groupBuf []byte
	var groupMembers []int
	groupSeen := make(map[dedupKey]int)

	flushGroup := func() error {
		if len(groupBuf) == 0 {
			return nil
		}
		idx, err := w.store.WritePage(groupBuf, false, pages.CacheWeightShared)
		if err != nil {
			return xerrors.Errorf("smallwriter: writing packed page: %w", err)
		}
		for _, si := range groupMembers {
			p := resolved[si]
			p.pageIndex = idx
			resolved[si] = p
		}
		groupBuf = nil
		groupMembers = nil
		groupSeen = make(map[dedupKey]int)
		return nil
	}

	for _, si := range order {
		s := w.slots[si]
		key := dedupKey{md5: hashing.SumMD5(s.data), size: len(s.data)}

		if off, ok := groupSeen[key]; ok {
			resolved[si] = placement{offset: off}
			groupMembers = append(groupMembers, si)
			continue
		}
		if target, ok := w.pageMap[key]; w.dedupEnabled && ok {
			resolved[si] = placement{pageIndex: target.pageIndex, offset: target.offset}
			continue
		}

		if len(groupBuf)+len(s.data) > w.pageSize && len(groupBuf) > 0 {
			if err := flushGroup(); err != nil {
				return err
			}
		}
		off := len(groupBuf)
		groupBuf = append(groupBuf, s.data...)
		resolved[si] = placement{offset: off}
		groupMembers = append(groupMembers, si)
		groupSeen[key] = off
	}
	if err := flushGroup(); err != nil {
		return err
	}

	for si, s := range w.slots {
		r := resolved[si]
		key := dedupKey{md5: hashing.SumMD5(s.data), size: len(s.data)}
		w.pageMap[key] = dedupTarget{pageIndex: r.pageIndex, offset: r.offset}
		replacePendingBlock(s.entry, si, r.pageIndex, r.offset, len(s.data))
	}

	w.slots = w.slots[:0]
	return nil
}

// replacePendingBlock finds the pending block in e referencing slotIndex
// and rewrites it to a committed (pageIndex, offset, length) block.
func replacePendingBlock(e *fsindex.Entry, slotIndex, pageIndex, offset, length int) {
	for i, b := range e.Blocks {
		if b.IsPending() && b.PendingSlot() == slotIndex {
			e.Blocks[i] = fsindex.Block{PageIndex: pageIndex, Offset: offset, Length: length}
		}
	}
}
