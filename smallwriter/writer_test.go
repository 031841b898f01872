package smallwriter

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/vfsarc/vfsarc/fsindex"
	"github.com/vfsarc/vfsarc/pages"
	"github.com/vfsarc/vfsarc/vpath"
)

func newTestStore(t *testing.T) *pages.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.vfsarc")
	s, err := pages.Create(path)
	if err != nil {
		t.Fatalf("pages.Create: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddSmallFileBuffersAndFlushes(t *testing.T) {
	store := newTestStore(t)
	ix := fsindex.New()
	w := New(store, ix, 64, 4096, false)

	p := vpath.New("/small.txt")
	entry := fsindex.NewFile("small.txt", time.Now())
	if err := ix.Set(p, entry); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := w.AddFile(p, []byte("hello"), time.Now(), entry); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if w.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1", w.PendingCount())
	}
	if !entry.Blocks[0].IsPending() {
		t.Fatalf("expected a pending block before Flush")
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if w.PendingCount() != 0 {
		t.Fatalf("PendingCount() after Flush = %d, want 0", w.PendingCount())
	}
	if entry.Blocks[0].IsPending() {
		t.Fatalf("block still pending after Flush")
	}

	content, err := store.ReadPage(entry.Blocks[0].PageIndex, pages.CacheWeightSingleEntry)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	got := content[entry.Blocks[0].Offset : entry.Blocks[0].Offset+entry.Blocks[0].Length]
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestLargeFileBypassesBuffer(t *testing.T) {
	store := newTestStore(t)
	ix := fsindex.New()
	w := New(store, ix, 8, 4096, false)

	p := vpath.New("/large.bin")
	entry := fsindex.NewFile("large.bin", time.Now())
	ix.Set(p, entry)

	big := make([]byte, 100)
	for i := range big {
		big[i] = byte(i)
	}
	if err := w.AddFile(p, big, time.Now(), entry); err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if w.PendingCount() != 0 {
		t.Fatalf("large file should bypass the buffer entirely")
	}
	if len(entry.Blocks) == 0 || entry.Blocks[0].IsPending() {
		t.Fatalf("large file should have committed blocks immediately")
	}
}

func TestFlushDedupsIdenticalSmallFiles(t *testing.T) {
	store := newTestStore(t)
	ix := fsindex.New()
	w := New(store, ix, 64, 4096, false)

	p1 := vpath.New("/a.txt")
	p2 := vpath.New("/b.txt")
	e1 := fsindex.NewFile("a.txt", time.Now())
	e2 := fsindex.NewFile("b.txt", time.Now())
	ix.Set(p1, e1)
	ix.Set(p2, e2)

	w.AddFile(p1, []byte("duplicate content"), time.Now(), e1)
	w.AddFile(p2, []byte("duplicate content"), time.Now(), e2)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if e1.Blocks[0].PageIndex != e2.Blocks[0].PageIndex || e1.Blocks[0].Offset != e2.Blocks[0].Offset {
		t.Fatalf("expected identical small files to share page+offset, got %+v vs %+v", e1.Blocks[0], e2.Blocks[0])
	}
	if store.Index().Count() != 1 {
		t.Fatalf("expected exactly one packed page, got %d pages", store.Index().Count())
	}
}

func TestRemoveSlotRenumbers(t *testing.T) {
	store := newTestStore(t)
	ix := fsindex.New()
	w := New(store, ix, 64, 4096, false)

	var entries []*fsindex.Entry
	for i := 0; i < 3; i++ {
		name := string(rune('a' + i)) + ".txt"
		p := vpath.New("/" + name)
		e := fsindex.NewFile(name, time.Now())
		ix.Set(p, e)
		w.AddFile(p, []byte(name+" content"), time.Now(), e)
		entries = append(entries, e)
	}

	if err := w.RemoveSlot(0); err != nil {
		t.Fatalf("RemoveSlot: %v", err)
	}
	if w.PendingCount() != 2 {
		t.Fatalf("PendingCount() = %d, want 2", w.PendingCount())
	}
	if entries[1].Blocks[0].PendingSlot() != 0 {
		t.Fatalf("slot 1 should renumber to 0, got %d", entries[1].Blocks[0].PendingSlot())
	}
	if entries[2].Blocks[0].PendingSlot() != 1 {
		t.Fatalf("slot 2 should renumber to 1, got %d", entries[2].Blocks[0].PendingSlot())
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush after removal: %v", err)
	}
}

func TestDedupDisabledWhenEncryptionActive(t *testing.T) {
	store := newTestStore(t)
	ix := fsindex.New()
	w := New(store, ix, 64, 4096, true) // encryptionActive=true

	p1 := vpath.New("/a.txt")
	p2 := vpath.New("/b.txt")
	e1 := fsindex.NewFile("a.txt", time.Now())
	e2 := fsindex.NewFile("b.txt", time.Now())
	ix.Set(p1, e1)
	ix.Set(p2, e2)

	w.AddFile(p1, []byte("same"), time.Now(), e1)
	w.AddFile(p2, []byte("same"), time.Now(), e2)
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// Dedup is disabled for pageMap reuse across Flush calls, but
	// in-buffer packing still collapses identical content within the
	// same Flush since it's plain byte comparison, not pageMap lookup.
	if e1.Blocks[0].PageIndex != e2.Blocks[0].PageIndex {
		t.Fatalf("same-flush identical content should still share a page")
	}
}
