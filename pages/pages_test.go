package pages

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vfsarc/vfsarc/codec"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.vfsarc")
	s, err := Create(path, WithCompression(codec.TagZlib, 6))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	idx, err := s.WritePage([]byte("hello world"), true, CacheWeightSingleEntry)
	if err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	got, err := s.ReadPage(idx, CacheWeightSingleEntry)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("ReadPage = %q, want %q", got, "hello world")
	}
}

func TestWritePageDedup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.vfsarc")
	s, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	i1, _ := s.WritePage([]byte("same content"), true, CacheWeightSingleEntry)
	i2, _ := s.WritePage([]byte("same content"), true, CacheWeightSingleEntry)
	if i1 != i2 {
		t.Fatalf("dedup failed: got indices %d and %d", i1, i2)
	}
	if s.Index().Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after dedup", s.Index().Count())
	}
}

func TestWritePageNoDedupWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.vfsarc")
	s, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	i1, _ := s.WritePage([]byte("same content"), false, CacheWeightSingleEntry)
	i2, _ := s.WritePage([]byte("same content"), false, CacheWeightSingleEntry)
	if i1 == i2 {
		t.Fatalf("expected distinct pages when dedup disabled")
	}
}

func TestTrailerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.vfsarc")
	s, err := Create(path, WithCompression(codec.TagNone, 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.WritePage([]byte("page one"), true, CacheWeightSingleEntry)
	s.WritePage([]byte("page two"), true, CacheWeightSingleEntry)
	if err := s.WriteTrailer(SignatureV4); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}
	s.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if r.Index().Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Index().Count())
	}
	got, err := r.ReadPage(1, CacheWeightSingleEntry)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if string(got) != "page two" {
		t.Fatalf("ReadPage(1) = %q, want %q", got, "page two")
	}
}

func TestFsindexBlobRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.vfsarc")
	s, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.WritePage([]byte("content page"), true, CacheWeightSingleEntry)
	if _, err := s.WriteFsindexBlob([]byte("fake fsindex bytes")); err != nil {
		t.Fatalf("WriteFsindexBlob: %v", err)
	}
	if err := s.WriteTrailer(SignatureV4); err != nil {
		t.Fatalf("WriteTrailer: %v", err)
	}
	s.Close()

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got, err := r.ReadFsindexBlob()
	if err != nil {
		t.Fatalf("ReadFsindexBlob: %v", err)
	}
	if string(got) != "fake fsindex bytes" {
		t.Fatalf("got %q", got)
	}
	if r.Index().Count() != 1 {
		t.Fatalf("Count() = %d, want 1", r.Index().Count())
	}
}

func TestOpenRejectsBadSignature(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.vfsarc")
	s, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Close()
	// an empty freshly-created file has no trailer at all; Open must fail
	// rather than silently treating it as an empty archive.
	if _, err := Open(path); err == nil {
		t.Fatalf("expected Open to fail on a file with no trailer")
	}
}

func TestAsideDelegatesRead(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "base.vfsarc")
	asidePath := filepath.Join(t.TempDir(), "aside.vfsarc")

	base, err := Create(basePath)
	if err != nil {
		t.Fatalf("Create base: %v", err)
	}
	defer base.Close()
	aside, err := Create(asidePath)
	if err != nil {
		t.Fatalf("Create aside: %v", err)
	}
	defer aside.Close()

	asideIdx, _ := aside.WritePage([]byte("aside content"), true, CacheWeightSingleEntry)
	base.AttachAside(aside)

	got, err := base.ReadPage(AsideIndex(asideIdx), CacheWeightSingleEntry)
	if err != nil {
		t.Fatalf("ReadPage via aside: %v", err)
	}
	if string(got) != "aside content" {
		t.Fatalf("got %q, want %q", got, "aside content")
	}
}

func TestAsyncWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.vfsarc")
	s, err := Create(path, WithCompression(codec.TagZstd, 3))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer s.Close()

	h := s.WritePageAsync(context.Background(), []byte("async payload"), true)
	idx, err := h.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	got, err := s.ReadPage(idx, CacheWeightSingleEntry)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if string(got) != "async payload" {
		t.Fatalf("got %q, want %q", got, "async payload")
	}
}

func TestCacheEvictsLowestWeightOnOverflow(t *testing.T) {
	c := newCache(2)
	c.put(0, []byte("x"), CacheWeightShared)
	c.put(1, []byte("y"), CacheWeightSingleEntry)
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	// index 2 has the same weight as index 1 but is fresher (lower age);
	// index 1's lower weight and older age both make it the worse entry.
	c.put(2, []byte("z"), CacheWeightSingleEntry)
	if c.Len() != 2 {
		t.Fatalf("Len() after overflow = %d, want 2", c.Len())
	}
	if _, ok := c.get(0); !ok {
		t.Fatalf("weight-1 entry should have survived eviction")
	}
	if _, ok := c.get(1); ok {
		t.Fatalf("older weight-0 entry should have been evicted")
	}
}

func TestCacheEvictionLawAfterSizePlusOneDistinctReads(t *testing.T) {
	// spec.md §8: for cache size C, after C+1 distinct page reads with
	// weight 0, the least-recently inserted page is no longer cached.
	const size = 4
	c := newCache(size)
	for i := 0; i <= size; i++ {
		c.put(i, []byte{byte(i)}, CacheWeightDedupScan)
	}
	if _, ok := c.get(0); ok {
		t.Fatalf("page 0 should have been evicted after %d further distinct reads", size)
	}
	if c.Len() != size {
		t.Fatalf("Len() = %d, want %d", c.Len(), size)
	}
}

func TestCacheEvictsHigherAgeBeforeFresherEqualScore(t *testing.T) {
	c := newCache(2)
	c.put(0, []byte("a"), 1)
	c.put(1, []byte("b"), 1)
	c.put(2, []byte("c"), 1) // same weight as 0 and 1, but 0 is oldest
	if _, ok := c.get(0); ok {
		t.Fatalf("oldest equal-weight entry should be evicted first")
	}
	if _, ok := c.get(1); !ok {
		t.Fatalf("index 1 should have survived")
	}
}

// TestCacheEvictionTieBreakLowestIndex exercises evictLocked's final
// tie-break directly: when score and age are exactly equal (which put's
// strictly increasing tick can't itself produce between two distinct
// entries), the lowest index is evicted.
func TestCacheEvictionTieBreakLowestIndex(t *testing.T) {
	c := newCache(2)
	c.tick = 10
	c.entries[0] = &cacheEntry{index: 0, data: []byte("a"), weight: 1, tickAt: 5}
	c.entries[1] = &cacheEntry{index: 1, data: []byte("b"), weight: 1, tickAt: 5}
	c.entries[2] = &cacheEntry{index: 2, data: []byte("c"), weight: 1, tickAt: 8}
	c.evictLocked()
	if _, ok := c.entries[0]; ok {
		t.Fatalf("equal score and age should evict the lowest index")
	}
	if _, ok := c.entries[1]; !ok {
		t.Fatalf("index 1 should survive")
	}
}
