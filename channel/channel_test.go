package channel

import (
	"io"
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

func TestReaderAcrossBlocks(t *testing.T) {
	store := newTestStore(t)
	i1, _ := store.WritePage([]byte("0123456789"), false, pages.CacheWeightSingleEntry)
	i2, _ := store.WritePage([]byte("abcdefghij"), false, pages.CacheWeightSingleEntry)

	entry := fsindex.NewFile("f.bin", time.Now())
	entry.Size = 20
	entry.Blocks = []fsindex.Block{
		{PageIndex: i1, Offset: 0, Length: 10},
		{PageIndex: i2, Offset: 0, Length: 10},
	}

	r := NewReader(entry, store, nil, nil)
	buf := make([]byte, 20)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if n != 20 || string(buf) != "0123456789abcdefghij" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestReaderSeekMidBlock(t *testing.T) {
	store := newTestStore(t)
	idx, _ := store.WritePage([]byte("0123456789"), false, pages.CacheWeightSingleEntry)
	entry := fsindex.NewFile("f.bin", time.Now())
	entry.Size = 10
	entry.Blocks = []fsindex.Block{{PageIndex: idx, Offset: 0, Length: 10}}

	r := NewReader(entry, store, nil, nil)
	if _, err := r.Seek(5, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	buf := make([]byte, 5)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "56789" {
		t.Fatalf("got %q, want %q", buf[:n], "56789")
	}
}

type fakePendingSource struct {
	slots map[int][]byte
}

func (f fakePendingSource) SlotData(slot int) ([]byte, bool) {
	d, ok := f.slots[slot]
	return d, ok
}

func TestReaderPendingBlock(t *testing.T) {
	store := newTestStore(t)
	entry := fsindex.NewFile("pending.txt", time.Now())
	entry.Size = 7
	entry.Blocks = []fsindex.Block{fsindex.PendingBlock(0, 0, 7)}

	pending := fakePendingSource{slots: map[int][]byte{0: []byte("buffere")}}
	r := NewReader(entry, store, nil, pending)
	buf := make([]byte, 7)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buf) != "buffere" {
		t.Fatalf("got %q", buf)
	}
}

type fakeTarget struct {
	path    *vpath.Path
	content []byte
	entry   *fsindex.Entry
}

func (f *fakeTarget) AddFile(p *vpath.Path, content []byte, mtime time.Time, entry *fsindex.Entry) error {
	f.path = p
	f.content = append([]byte(nil), content...)
	f.entry = entry
	return nil
}

func TestWriterBasicRoundTrip(t *testing.T) {
	target := &fakeTarget{}
	entry := fsindex.NewFile("w.txt", time.Now())
	p := vpath.New("/w.txt")
	w := NewWriter(p, entry, target, nil)

	if _, err := w.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if string(target.content) != "hello world" {
		t.Fatalf("got %q, want %q", target.content, "hello world")
	}
}

func TestWriterSeekZeroFill(t *testing.T) {
	target := &fakeTarget{}
	entry := fsindex.NewFile("sparse.bin", time.Now())
	w := NewWriter(vpath.New("/sparse.bin"), entry, target, nil)

	if _, err := w.Write([]byte("AB")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Seek(10, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := w.Write([]byte("C")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()

	if len(target.content) != 11 {
		t.Fatalf("len = %d, want 11", len(target.content))
	}
	for i := 2; i < 10; i++ {
		if target.content[i] != 0 {
			t.Fatalf("expected zero fill at %d, got %d", i, target.content[i])
		}
	}
	if target.content[10] != 'C' {
		t.Fatalf("expected 'C' at tail")
	}
}

func TestWriterTruncate(t *testing.T) {
	target := &fakeTarget{}
	entry := fsindex.NewFile("t.bin", time.Now())
	w := NewWriter(vpath.New("/t.bin"), entry, target, nil)
	w.Write([]byte("0123456789"))

	if err := w.Truncate(4); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	w.Close()
	if string(target.content) != "0123" {
		t.Fatalf("got %q, want %q", target.content, "0123")
	}
}

func TestWriterPrefetchExisting(t *testing.T) {
	target := &fakeTarget{}
	entry := fsindex.NewFile("existing.txt", time.Now())
	w := NewWriter(vpath.New("/existing.txt"), entry, target, []byte("existing content"))

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if _, err := w.Write([]byte("EXISTING")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()
	if string(target.content) != "EXISTING content" {
		t.Fatalf("got %q", target.content)
	}
}

func TestBandedGrowth(t *testing.T) {
	if g := bandedGrowth(0, 500); g != 1024 {
		t.Fatalf("small band: got %d, want 1024", g)
	}
	if g := bandedGrowth(100*1024, 150*1024); g < 150*1024 || g%(128*1024) != 0 {
		t.Fatalf("medium band: got %d", g)
	}
	if g := bandedGrowth(2*1024*1024, 2*1024*1024+10); g%1024 != 0 {
		t.Fatalf("large band should round to 1KiB: got %d", g)
	}
}
