// Package pgindex implements the page index: the ordered table mapping a
// page number to its compression, encryption, size, and MD5 metadata, plus
// its on-disk column-major serialization (spec.md §4.2).
package pgindex

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/vfsarc/vfsarc/codec"
	"github.com/vfsarc/vfsarc/hashing"
)

// recordSize is the per-page byte cost in the serialized column-major
// layout: 1 (compression) + 1 (level) + 1 (encrypted) + 4 (compressed
// size) + 4 (uncompressed size) + 16 (MD5) = 27 bytes, matching spec.md
// §4.2 and §8's "byte length = 4 + 27*pageCount" property exactly.
const recordSize = 27

// Record is one page's metadata.
type Record struct {
	Compression      codec.Tag
	Level            uint8
	Encrypted        bool
	SizeCompressed   uint32
	SizeUncompressed uint32
	MD5              hashing.MD5
}

// Index is the ordered, append-only table of page records, plus the two
// "special" slots (the pgindex and fsindex blobs themselves) whose offsets
// are stored explicitly rather than derived.
type Index struct {
	mu      sync.RWMutex
	records []Record

	baseOffset     int64 // dataInitialOffset: where page 0 begins in the archive file
	offsetsValid   bool
	startOffsets   []int64 // memoized prefix sums, index i = start of page i

	pgindexOffset, pgindexLen int64
	fsindexOffset, fsindexLen int64
}

// New returns an empty Index whose pages begin at baseOffset within the
// archive file (dataInitialOffset in spec.md §4.1).
func New(baseOffset int64) *Index {
	return &Index{baseOffset: baseOffset}
}

// BaseOffset returns the configured data start offset.
func (ix *Index) BaseOffset() int64 { return ix.baseOffset }

// Add appends a new page record and returns its index.
func (ix *Index) Add(compression codec.Tag, level uint8, encrypted bool, sizeCompressed, sizeUncompressed uint32, md5 hashing.MD5) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records = append(ix.records, Record{
		Compression:      compression,
		Level:            level,
		Encrypted:        encrypted,
		SizeCompressed:   sizeCompressed,
		SizeUncompressed: sizeUncompressed,
		MD5:              md5,
	})
	ix.offsetsValid = false
	return len(ix.records) - 1
}

// SerializedLen returns the exact byte length Serialize produces for n
// page records, so a caller holding only the page count (e.g. the
// trailer) can recover a serialized pgindex blob's length without it
// ever being stored on disk.
func SerializedLen(n int) int { return 4 + recordSize*n }

// Count returns the number of page records (excluding the special slots).
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Record returns a copy of the record at i.
func (ix *Index) Record(i int) (Record, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if i < 0 || i >= len(ix.records) {
		return Record{}, fmt.Errorf("pgindex: index %d out of range [0,%d)", i, len(ix.records))
	}
	return ix.records[i], nil
}

// SearchByMD5 scans for a record matching (sizeUncompressed, md5), starting
// at *cursor, and advances *cursor past the match (or to the end, on a
// miss) so a caller can resume the search to find further duplicates. This
// implements the resumable dedup lookup spec.md §4.2 and original source
// generic/pgindex.c's Cookfs_PageHashSearch describe.
func (ix *Index) SearchByMD5(md5 hashing.MD5, sizeUncompressed uint32, cursor *int) (int, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for i := *cursor; i < len(ix.records); i++ {
		r := ix.records[i]
		if r.SizeUncompressed == sizeUncompressed && r.MD5 == md5 {
			*cursor = i + 1
			return i, true
		}
	}
	*cursor = len(ix.records)
	return -1, false
}

// StartOffset returns the byte offset within the archive file at which
// page i's on-disk bytes begin, computed lazily as the running sum of
// preceding compressed sizes plus baseOffset, and memoized until the next
// Add invalidates the cache.
func (ix *Index) StartOffset(i int) (int64, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if i < 0 || i >= len(ix.records) {
		return 0, fmt.Errorf("pgindex: index %d out of range [0,%d)", i, len(ix.records))
	}
	if !ix.offsetsValid {
		ix.rebuildOffsetsLocked()
	}
	return ix.startOffsets[i], nil
}

func (ix *Index) rebuildOffsetsLocked() {
	ix.startOffsets = make([]int64, len(ix.records))
	off := ix.baseOffset
	for i, r := range ix.records {
		ix.startOffsets[i] = off
		off += int64(r.physicalSize())
	}
	ix.offsetsValid = true
}

// physicalSize is the number of bytes a page occupies on disk: a 1-byte
// compression tag followed by its (possibly encrypted) compressed bytes.
// The IV, when present, is already folded into SizeCompressed by the pages
// package before the record is added.
func (r Record) physicalSize() uint32 { return 1 + r.SizeCompressed }

// SetSpecialSlots records the explicit offsets and lengths of the two
// special pages (the serialized pgindex and fsindex blobs), which are not
// part of the regular page array and whose offsets are never derived.
func (ix *Index) SetSpecialSlots(pgindexOffset, pgindexLen, fsindexOffset, fsindexLen int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.pgindexOffset, ix.pgindexLen = pgindexOffset, pgindexLen
	ix.fsindexOffset, ix.fsindexLen = fsindexOffset, fsindexLen
}

// PgindexSlot returns the explicit offset/length of the serialized pgindex
// blob.
func (ix *Index) PgindexSlot() (offset, length int64) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.pgindexOffset, ix.pgindexLen
}

// FsindexSlot returns the explicit offset/length of the serialized fsindex
// blob.
func (ix *Index) FsindexSlot() (offset, length int64) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.fsindexOffset, ix.fsindexLen
}

// Serialize writes the column-major on-disk representation: pagecount:4,
// then all compression tags, then all levels, then all encryption flags,
// then all compressed sizes (4 bytes each, big-endian), then all
// uncompressed sizes (4 bytes each), then all MD5s (16 bytes each). Total
// length is always 4 + 27*pageCount.
func (ix *Index) Serialize() []byte {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := len(ix.records)
	out := make([]byte, 4+recordSize*n)
	binary.BigEndian.PutUint32(out[0:4], uint32(n))

	pos := 4
	for _, r := range ix.records {
		out[pos] = byte(r.Compression)
		pos++
	}
	for _, r := range ix.records {
		out[pos] = r.Level
		pos++
	}
	for _, r := range ix.records {
		if r.Encrypted {
			out[pos] = 1
		}
		pos++
	}
	for _, r := range ix.records {
		binary.BigEndian.PutUint32(out[pos:pos+4], r.SizeCompressed)
		pos += 4
	}
	for _, r := range ix.records {
		binary.BigEndian.PutUint32(out[pos:pos+4], r.SizeUncompressed)
		pos += 4
	}
	for _, r := range ix.records {
		copy(out[pos:pos+hashing.Size], r.MD5[:])
		pos += hashing.Size
	}
	return out
}

// Deserialize parses the column-major layout Serialize produces, building
// a fresh Index rooted at baseOffset.
func Deserialize(b []byte, baseOffset int64) (*Index, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("pgindex: truncated header (%d bytes)", len(b))
	}
	n := int(binary.BigEndian.Uint32(b[0:4]))
	want := 4 + recordSize*n
	if len(b) != want {
		return nil, fmt.Errorf("pgindex: expected %d bytes for %d pages, got %d", want, n, len(b))
	}

	records := make([]Record, n)
	pos := 4
	for i := range records {
		records[i].Compression = codec.Tag(b[pos])
		pos++
	}
	for i := range records {
		records[i].Level = b[pos]
		pos++
	}
	for i := range records {
		records[i].Encrypted = b[pos] != 0
		pos++
	}
	for i := range records {
		records[i].SizeCompressed = binary.BigEndian.Uint32(b[pos : pos+4])
		pos += 4
	}
	for i := range records {
		records[i].SizeUncompressed = binary.BigEndian.Uint32(b[pos : pos+4])
		pos += 4
	}
	for i := range records {
		copy(records[i].MD5[:], b[pos:pos+hashing.Size])
		pos += hashing.Size
	}

	ix := New(baseOffset)
	ix.records = records
	return ix, nil
}
