package pages

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/vfsarc/vfsarc"
	"github.com/vfsarc/vfsarc/codec"
	"github.com/vfsarc/vfsarc/hashing"
	"github.com/vfsarc/vfsarc/pgindex"
	"github.com/vfsarc/vfsarc/vcrypto"
)

// Store is the page store: an archive file's content-addressed,
// compressed, optionally encrypted block layer. It owns the pgindex, the
// weighted page cache, and the underlying file descriptor.
type Store struct {
	mu sync.Mutex // serializes raw file I/O; higher-level read/write exclusion is rwsync's job in the archive package

	file     *os.File
	readOnly bool

	// endOffset is the byte offset, within file, at which the archive's
	// trailer ends. For a dedicated archive file this is the file size;
	// for an archive embedded in a host file (spec.md §4.1 "host-file
	// endOffset mode") it is wherever the caller says the archive ends.
	endOffset int64

	dataInitialOffset int64

	// appendCursor is the byte offset at which the next page (or raw
	// blob) is written. It starts at dataInitialOffset for a fresh store
	// and, for a reopened store, at the position the old fsindex blob
	// used to occupy — so new pages overwrite the stale trailer region
	// rather than leaving a hole, matching the append-friendly format.
	appendCursor int64

	defaultCompression codec.Tag
	defaultLevel        int

	index    *pgindex.Index
	registry *codec.Registry
	cache    *Cache
	key      []byte // data-encryption key; nil means no encryption

	log *zap.Logger

	fatalMu sync.Mutex
	fatal   error

	aside *Store // chained aside store, if any (see aside.go)
}

// Option configures a Store at Open/Create time.
type Option func(*Store)

// WithCacheSize sets the fixed number of decompressed pages the store's
// cache can hold at once (spec.md §4.1's "the cache holds up to
// cacheSize entries").
func WithCacheSize(n int) Option {
	return func(s *Store) { s.cache = newCache(n) }
}

// WithCompression sets the default codec used by WritePage when the
// caller doesn't specify one explicitly.
func WithCompression(tag codec.Tag, level int) Option {
	return func(s *Store) {
		s.defaultCompression = tag
		s.defaultLevel = level
	}
}

// WithLogger attaches a zap logger; defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithRegistry overrides the codec registry (e.g. to add a custom codec).
func WithRegistry(r *codec.Registry) Option {
	return func(s *Store) { s.registry = r }
}

// WithEncryptionKey enables page-level AES-256-CBC encryption.
func WithEncryptionKey(key []byte) Option {
	return func(s *Store) { s.key = key }
}

// WithDataInitialOffset sets where page 0 begins within the file, for
// archives embedded after some unrelated header/prefix.
func WithDataInitialOffset(off int64) Option {
	return func(s *Store) { s.dataInitialOffset = off }
}

// WithEndOffset selects host-file endOffset mode: the archive's trailer is
// read from/written at endOffset instead of the physical end of file,
// letting an archive live appended to an unrelated host file.
func WithEndOffset(end int64) Option {
	return func(s *Store) { s.endOffset = end }
}

func newStore(f *os.File, readOnly bool, opts []Option) *Store {
	s := &Store{
		file:                f,
		readOnly:            readOnly,
		defaultCompression:  codec.TagZstd,
		defaultLevel:        9,
		registry:            codec.NewRegistry(),
		log:                 zap.NewNop(),
		cache:               newCache(DefaultCacheSize),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create truncates (or creates) path and initializes an empty page store.
func Create(path string, opts ...Option) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, xerrors.Errorf("pages: create %s: %w", path, err)
	}
	s := newStore(f, false, opts)
	s.index = pgindex.New(s.dataInitialOffset)
	if s.endOffset == 0 {
		s.endOffset = s.dataInitialOffset
	}
	s.appendCursor = s.dataInitialOffset
	return s, nil
}

// Open reads an existing archive file and reconstructs its page index
// from the trailer, validating the signature.
func Open(path string, opts ...Option) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	readOnly := false
	if err != nil {
		if !os.IsPermission(err) {
			return nil, xerrors.Errorf("pages: open %s: %w", path, err)
		}
		f, err = os.Open(path)
		if err != nil {
			return nil, xerrors.Errorf("pages: open %s: %w", path, err)
		}
		readOnly = true
	}

	s := newStore(f, readOnly, opts)
	if s.endOffset == 0 {
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, xerrors.Errorf("pages: stat: %w", err)
		}
		s.endOffset = fi.Size()
	}

	if err := s.readTrailer(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) readTrailer() error {
	if s.endOffset < trailerSize {
		return vfsarcCorrupt("archive too small for trailer")
	}
	buf := make([]byte, trailerSize)
	if _, err := s.file.ReadAt(buf, s.endOffset-trailerSize); err != nil {
		return xerrors.Errorf("pages: reading trailer: %w", err)
	}
	var tr trailer
	tr.FsindexLen = binary.BigEndian.Uint32(buf[0:4])
	tr.PageCount = binary.BigEndian.Uint32(buf[4:8])
	tr.CompressionTag = codec.Tag(buf[8])
	copy(tr.Signature[:], buf[9:16])

	if tr.Signature != SignatureV2 && tr.Signature != SignatureV4 {
		return vfsarcCorrupt(fmt.Sprintf("bad trailer signature %q", tr.Signature))
	}

	pgindexLen := pgindex.SerializedLen(int(tr.PageCount))
	pgindexStart := s.endOffset - trailerSize - int64(pgindexLen)
	fsindexStart := pgindexStart - int64(tr.FsindexLen)
	if pgindexStart < 0 || fsindexStart < 0 {
		return vfsarcCorrupt("pgindex/fsindex length exceeds archive size")
	}
	raw := make([]byte, pgindexLen)
	if _, err := s.file.ReadAt(raw, pgindexStart); err != nil {
		return xerrors.Errorf("pages: reading pgindex blob: %w", err)
	}

	idx, err := pgindex.Deserialize(raw, s.dataInitialOffset)
	if err != nil {
		return xerrors.Errorf("pages: %w", err)
	}
	idx.SetSpecialSlots(pgindexStart, int64(pgindexLen), fsindexStart, int64(tr.FsindexLen))
	s.index = idx
	s.defaultCompression = tr.CompressionTag
	// New pages overwrite the old fsindex/pgindex/trailer region; it gets
	// rewritten fresh by the next WriteFsindexBlob/WriteTrailer pair.
	s.appendCursor = fsindexStart
	return nil
}

// WriteFsindexBlob appends the fsindex's serialized bytes directly to the
// file (outside the regular page array, always unencrypted so it can be
// read back before any password-derived key is available) and returns
// where it landed. Call WriteTrailer immediately afterward.
func (s *Store) WriteFsindexBlob(raw []byte) (int64, error) {
	if s.readOnly {
		return 0, vfsarcReadOnly("WriteFsindexBlob")
	}
	off := s.appendCursorValue()
	s.mu.Lock()
	_, err := s.file.WriteAt(raw, off)
	s.mu.Unlock()
	if err != nil {
		return 0, s.fail(xerrors.Errorf("pages: writing fsindex blob: %w", err))
	}
	s.appendCursor = off + int64(len(raw))
	s.index.SetSpecialSlots(0, 0, off, int64(len(raw)))
	return off, nil
}

// ReadFsindexBlob reads back the fsindex bytes most recently located by
// WriteFsindexBlob or by opening an existing archive.
func (s *Store) ReadFsindexBlob() ([]byte, error) {
	off, length := s.index.FsindexSlot()
	if length == 0 {
		return nil, vfsarcCorrupt("no fsindex blob recorded")
	}
	raw := make([]byte, length)
	if _, err := s.file.ReadAt(raw, off); err != nil {
		return nil, xerrors.Errorf("pages: reading fsindex blob: %w", err)
	}
	return raw, nil
}

// WriteTrailer serializes the pgindex and writes it plus the fixed
// trailer immediately after the most recently written fsindex blob, then
// truncates the file to the new total length. Call WriteFsindexBlob
// first.
func (s *Store) WriteTrailer(signature [signatureLen]byte) error {
	if s.readOnly {
		return vfsarcReadOnly("WriteTrailer")
	}
	_, fsindexLen := s.index.FsindexSlot()
	pgindexOffset := s.appendCursorValue()
	raw := s.index.Serialize()
	if _, err := s.file.WriteAt(raw, pgindexOffset); err != nil {
		return xerrors.Errorf("pages: writing pgindex blob: %w", err)
	}

	tb := make([]byte, trailerSize)
	binary.BigEndian.PutUint32(tb[0:4], uint32(fsindexLen))
	binary.BigEndian.PutUint32(tb[4:8], uint32(s.index.Count()))
	tb[8] = byte(s.defaultCompression)
	copy(tb[9:16], signature[:])

	trailerOffset := pgindexOffset + int64(len(raw))
	if _, err := s.file.WriteAt(tb, trailerOffset); err != nil {
		return xerrors.Errorf("pages: writing trailer: %w", err)
	}
	if err := s.file.Truncate(trailerOffset + trailerSize); err != nil {
		return xerrors.Errorf("pages: truncate: %w", err)
	}
	s.endOffset = trailerOffset + trailerSize
	fsindexOffset, _ := s.index.FsindexSlot()
	s.appendCursor = fsindexOffset
	return s.file.Sync()
}

// Close closes the attached aside store, if any, and the underlying
// file. It does not write the trailer; callers must call WriteTrailer
// first if the store was mutated.
func (s *Store) Close() error {
	if s.aside != nil {
		if err := s.aside.Close(); err != nil {
			s.log.Warn("closing aside store", zap.Error(err))
		}
	}
	return s.file.Close()
}

// Index exposes the underlying page index for the archive/fsindex layers.
func (s *Store) Index() *pgindex.Index { return s.index }

// ReadOnly reports whether the store rejects mutations.
func (s *Store) ReadOnly() bool { return s.readOnly }

// DefaultCompression reports the codec used for new pages when a caller
// doesn't specify one, for mount-level attribute reporting.
func (s *Store) DefaultCompression() codec.Tag { return s.defaultCompression }

// PageCached reports whether index's decompressed content is currently
// held in the cache, without affecting its age, following the aside
// chain for aside-bit indices.
func (s *Store) PageCached(index int) bool {
	if isAsidePage(index) {
		if s.aside == nil {
			return false
		}
		return s.aside.PageCached(localIndex(index))
	}
	return s.cache.has(index)
}

// BumpCacheClock advances the cache's logical clock without touching any
// entry, per spec.md §4.5's pre-first-read tickTock bump.
func (s *Store) BumpCacheClock() { s.cache.tickTock() }

// fail latches a fatal error: once set, every subsequent ReadPage and
// page write returns it immediately, mirroring spec.md §7's "fatal state" rule that a
// corrupted or I/O-failed store never silently limps along.
func (s *Store) fail(err error) error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	if s.fatal == nil {
		s.fatal = err
		s.log.Error("page store entering fatal state", zap.Error(err))
	}
	return s.fatal
}

func (s *Store) checkFatal() error {
	s.fatalMu.Lock()
	defer s.fatalMu.Unlock()
	return s.fatal
}

// ReadPage returns the decompressed (and decrypted) content of page
// index, consulting the cache first, delegating to the aside chain for
// aside-bit indices. weight is the cache weight to install this page with
// on a miss; a hit refreshes the page's age and leaves its weight as it
// was. See the CacheWeight* constants.
func (s *Store) ReadPage(index int, weight int64) ([]byte, error) {
	if err := s.checkFatal(); err != nil {
		return nil, err
	}
	if isAsidePage(index) {
		if s.aside == nil {
			return nil, s.fail(vfsarcCorrupt("aside page referenced but no aside store attached"))
		}
		return s.aside.ReadPage(localIndex(index), weight)
	}

	if buf, ok := s.cache.get(index); ok {
		return buf, nil
	}

	rec, err := s.index.Record(index)
	if err != nil {
		return nil, s.fail(xerrors.Errorf("pages: %w", err))
	}
	off, err := s.index.StartOffset(index)
	if err != nil {
		return nil, s.fail(xerrors.Errorf("pages: %w", err))
	}

	raw := make([]byte, 1+rec.SizeCompressed)
	s.mu.Lock()
	_, err = s.file.ReadAt(raw, off)
	s.mu.Unlock()
	if err != nil {
		return nil, s.fail(xerrors.Errorf("pages: reading page %d: %w", index, err))
	}
	tag := codec.Tag(raw[0])
	body := raw[1:]

	if rec.Encrypted {
		if s.key == nil {
			return nil, vfsarcEncryption("page is encrypted but no key configured")
		}
		var err error
		body, err = vcrypto.DecryptPage(s.key, body)
		if err != nil {
			return nil, s.fail(xerrors.Errorf("pages: decrypting page %d: %w", index, err))
		}
	}

	c, ok := s.registry.Lookup(tag)
	if !ok {
		return nil, s.fail(vfsarcCompression(fmt.Sprintf("unknown compression tag %d", tag)))
	}
	plain, err := c.Decompress(body)
	if err != nil {
		return nil, s.fail(xerrors.Errorf("pages: decompressing page %d: %w", index, err))
	}
	if got := uint32(len(plain)); got != rec.SizeUncompressed {
		return nil, s.fail(vfsarcCorrupt(fmt.Sprintf("page %d: decompressed %d bytes, index says %d", index, got, rec.SizeUncompressed)))
	}

	s.cache.put(index, plain, weight)
	return plain, nil
}

// WritePage compresses, optionally encrypts, and appends content as a new
// page, deduplicating against an existing page with the same content hash
// and length when dedup is enabled (the small-file writer disables it
// whenever encryption is active, per spec.md §9). weight is the cache
// weight to warm the new (or matched) page with; see the CacheWeight*
// constants.
func (s *Store) WritePage(content []byte, dedup bool, weight int64) (int, error) {
	return s.writePageWith(content, s.defaultCompression, s.defaultLevel, dedup, weight)
}

func (s *Store) writePageWith(content []byte, tag codec.Tag, level int, dedup bool, weight int64) (int, error) {
	if err := s.checkFatal(); err != nil {
		return 0, err
	}
	if s.readOnly {
		return 0, vfsarcReadOnly("WritePage")
	}

	sum := hashing.SumMD5(content)
	if dedup && s.key == nil {
		cursor := 0
		for {
			i, found := s.index.SearchByMD5(sum, uint32(len(content)), &cursor)
			if !found {
				break
			}
			existing, err := s.ReadPage(i, CacheWeightDedupScan)
			if err == nil && string(existing) == string(content) {
				return i, nil
			}
		}
	}

	c, ok := s.registry.Lookup(tag)
	if !ok {
		return 0, vfsarcCompression(fmt.Sprintf("unknown compression tag %d", tag))
	}
	level = c.ClampLevel(level)
	compressed, err := c.Compress(level, content)
	if err != nil {
		return 0, s.fail(xerrors.Errorf("pages: compressing: %w", err))
	}

	return s.commitPage(content, compressed, tag, level, sum, weight)
}

// writePrecompressed commits bytes already compressed by an
// AsyncWriteHandle, re-running the dedup check (a concurrent writer may
// have added a matching page while compression was in flight) before
// appending. It always warms the cache at CacheWeightAsyncPreload: the
// page was just materialized by a preload, per spec.md §4.1.
func (s *Store) writePrecompressed(content, compressed []byte, tag codec.Tag, level int, dedup bool) (int, error) {
	if err := s.checkFatal(); err != nil {
		return 0, err
	}
	if s.readOnly {
		return 0, vfsarcReadOnly("WritePage")
	}

	sum := hashing.SumMD5(content)
	if dedup && s.key == nil {
		cursor := 0
		for {
			i, found := s.index.SearchByMD5(sum, uint32(len(content)), &cursor)
			if !found {
				break
			}
			existing, err := s.ReadPage(i, CacheWeightDedupScan)
			if err == nil && string(existing) == string(content) {
				return i, nil
			}
		}
	}
	return s.commitPage(content, compressed, tag, level, sum, CacheWeightAsyncPreload)
}

// commitPage encrypts (if configured) and appends an already-compressed
// page, recording it in the index and warming the cache with its
// decompressed content at the given weight. When the compressed bytes are
// not shorter than content, the page is stored uncompressed (tag none).
func (s *Store) commitPage(content, compressed []byte, tag codec.Tag, level int, sum hashing.MD5, weight int64) (int, error) {
	if tag != codec.TagNone && len(compressed) >= len(content) {
		compressed, tag, level = content, codec.TagNone, 0
	}
	encrypted := false
	body := compressed
	var err error
	if s.key != nil {
		body, err = vcrypto.EncryptPage(s.key, compressed)
		if err != nil {
			return 0, s.fail(xerrors.Errorf("pages: encrypting: %w", err))
		}
		encrypted = true
	}

	writeOffset := s.appendCursorValue()

	buf := make([]byte, 1+len(body))
	buf[0] = byte(tag)
	copy(buf[1:], body)

	s.mu.Lock()
	_, werr := s.file.WriteAt(buf, writeOffset)
	s.mu.Unlock()
	if werr != nil {
		return 0, s.fail(xerrors.Errorf("pages: writing page: %w", werr))
	}

	idx := s.index.Add(tag, uint8(level), encrypted, uint32(len(body)), uint32(len(content)), sum)
	s.appendCursor = writeOffset + int64(len(buf))
	s.cache.put(idx, content, weight)
	return idx, nil
}

// appendCursorValue returns the byte offset at which the next page or
// blob should be written.
func (s *Store) appendCursorValue() int64 { return s.appendCursor }

// SetEncryptionKey installs (or clears, with nil) the data-encryption key
// used for page content, for the archive layer's password/rekey flow
// which must read the fsindex (always unencrypted) before it can derive
// and install the content key.
func (s *Store) SetEncryptionKey(key []byte) { s.key = key }

func vfsarcCorrupt(msg string) error {
	return vfsarc.NewError(vfsarc.KindCorruptArchive, "pages", fmt.Errorf("%s", msg))
}
func vfsarcReadOnly(op string) error {
	return vfsarc.NewError(vfsarc.KindReadOnly, "pages."+op, nil)
}
func vfsarcCompression(msg string) error {
	return vfsarc.NewError(vfsarc.KindCompressionError, "pages", fmt.Errorf("%s", msg))
}
func vfsarcEncryption(msg string) error {
	return vfsarc.NewError(vfsarc.KindEncryptionError, "pages", fmt.Errorf("%s", msg))
}

var _ io.Closer = (*Store)(nil)
