// Package pages implements the page store: the content-addressed,
// compressed, optionally encrypted block layer that backs an archive file
// (spec.md §4.1).
package pages

import "github.com/vfsarc/vfsarc/codec"

const (
	// DefaultPageSize is the default maximum size, in bytes, of a page's
	// uncompressed content before it is split across multiple pages.
	DefaultPageSize = 256 * 1024

	// DefaultCacheSize is the default number of decompressed pages the
	// store's cache holds (spec.md §4.1's "the cache holds up to
	// cacheSize entries").
	DefaultCacheSize = 128

	// trailerSize is the fixed length, in bytes, of the archive trailer:
	// fsindexLen:4, pageCount:4, compressionTag:1, signature:7. The
	// pgindex blob's length is never stored: it's always exactly
	// 4+27*pageCount bytes (pgindex.SerializedLen), so storing it
	// separately would be redundant. The one length that can't be
	// derived from pageCount is the fsindex blob's, so that's the one
	// kept explicit, matching original_source/generic/pages.c's
	// COOKFS_SUFFIX_BYTES 16 and CookfsReadIndex.
	trailerSize = 16

	signatureLen = 7
)

var (
	// SignatureV2 is the archive trailer signature for format version 2
	// (no append support beyond a full rewrite).
	SignatureV2 = [signatureLen]byte{'C', 'F', 'S', '0', '0', '0', '2'}

	// SignatureV4 is the archive trailer signature for format version 4
	// (adds append-friendly incremental writes), grounded on
	// chpock/cookfs's CFS0004 trailer.
	SignatureV4 = [signatureLen]byte{'C', 'F', 'S', '0', '0', '0', '4'}
)

// trailer is the fixed-size footer written at the end of an archive file,
// immediately before archiveOffset/endOffset in host-file mode.
type trailer struct {
	FsindexLen     uint32
	PageCount      uint32
	CompressionTag codec.Tag
	Signature      [signatureLen]byte
}

// aside-chain page indices: an index at or above this value denotes a page
// that lives in a chained aside archive rather than this one, per spec.md
// §4.1's "aside overlay" rule. 1<<28 leaves 28 bits (~268M pages) of local
// addressing room before the aside bit kicks in.
const asideBit = 1 << 28

func isAsidePage(index int) bool { return index >= asideBit }

func localIndex(index int) int  { return index &^ asideBit }
func asideIndex(index int) int  { return index | asideBit }
