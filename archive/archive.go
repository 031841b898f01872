// Package archive is the top-level mount orchestrator: it wires the page
// store, filesystem index, and small-file writer together behind a single
// writer-then-pages-then-fsindex lock, and hands out reader/writer
// channels for individual files (spec.md §1, §7).
package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/vfsarc/vfsarc"
	"github.com/vfsarc/vfsarc/channel"
	"github.com/vfsarc/vfsarc/codec"
	"github.com/vfsarc/vfsarc/fsindex"
	"github.com/vfsarc/vfsarc/pages"
	"github.com/vfsarc/vfsarc/rwsync"
	"github.com/vfsarc/vfsarc/smallwriter"
	"github.com/vfsarc/vfsarc/vcrypto"
	"github.com/vfsarc/vfsarc/vpath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	kdfIterations = 100000

	saltMetaKey           = "\x00vfsarc.kdf-salt"
	wrappedDataKeyMetaKey = "\x00vfsarc.wrapped-data-key"
	verifierMetaKey       = "\x00vfsarc.kdf-verifier"
	verifierPlaintext     = "vfsarc-password-verify"
)

// Archive is one mounted archive file: its page store, its filesystem
// tree, and the small-file dedup buffer sitting in front of both. mu
// orders every mutating operation writer -> pages -> fsindex by always
// being acquired first.
type Archive struct {
	mu rwsync.RWMutex

	opts options
	path string

	store  *pages.Store
	index  *fsindex.Index
	writer *smallwriter.Writer

	log *zap.Logger

	// sessionID identifies one mount in log lines, so multiple archives
	// open in the same process don't get confused in shared log output.
	sessionID string

	aside *Archive
}

// Create initializes a brand-new archive file at path.
func Create(path string, opts ...Option) (*Archive, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	storeOpts := []pages.Option{
		pages.WithCompression(o.compression, o.level),
		pages.WithLogger(o.logger),
		pages.WithCacheSize(o.cacheSize),
	}
	if o.registry != nil {
		storeOpts = append(storeOpts, pages.WithRegistry(o.registry))
	}
	store, err := pages.Create(path, storeOpts...)
	if err != nil {
		return nil, err
	}

	a := &Archive{opts: o, path: path, store: store, index: fsindex.New(), log: o.logger, sessionID: uuid.NewString()}

	if len(o.password) > 0 {
		if err := a.initEncryptionCreate(o.password, o.encryptKeyMode); err != nil {
			store.Close()
			return nil, err
		}
	}

	a.writer = smallwriter.New(store, a.index, o.smallFileSize, o.pageSize, len(o.password) > 0)
	a.log.Debug("archive created", zap.String("session", a.sessionID), zap.String("path", path))
	return a, nil
}

// Open opens an existing archive file, reconstructing its filesystem tree
// from the fsindex blob located via the trailer.
func Open(path string, opts ...Option) (*Archive, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	storeOpts := []pages.Option{pages.WithLogger(o.logger), pages.WithCacheSize(o.cacheSize)}
	if o.registry != nil {
		storeOpts = append(storeOpts, pages.WithRegistry(o.registry))
	}
	store, err := pages.Open(path, storeOpts...)
	if err != nil {
		return nil, err
	}

	raw, err := store.ReadFsindexBlob()
	if err != nil {
		store.Close()
		return nil, err
	}
	index, err := fsindex.Deserialize(raw)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &Archive{opts: o, path: path, store: store, index: index, log: o.logger, sessionID: uuid.NewString()}

	if len(o.password) > 0 {
		if err := a.initEncryptionOpen(o.password); err != nil {
			store.Close()
			return nil, err
		}
	}

	a.writer = smallwriter.New(store, index, o.smallFileSize, o.pageSize, len(o.password) > 0)
	a.log.Debug("archive opened", zap.String("session", a.sessionID), zap.String("path", path))
	return a, nil
}

// SessionID returns a random identifier generated when this archive was
// opened, for correlating log lines across archives mounted in the same
// process.
func (a *Archive) SessionID() string { return a.sessionID }

// initEncryptionCreate derives (and, in encrypt-key mode, wraps) the
// content-encryption key for a freshly created archive, storing everything
// a later Open needs in fsindex metadata. The fsindex blob itself is never
// encrypted (pages.Store's own documented rule): it has to be readable
// before a password-derived key can exist at all.
func (a *Archive) initEncryptionCreate(password []byte, encryptKeyMode bool) error {
	salt, err := vcrypto.RandomBytes(vcrypto.SaltLen)
	if err != nil {
		return err
	}
	passwordKey := vcrypto.DeriveKey(password, salt, kdfIterations, vcrypto.KeyLen)
	a.index.SetMetadata(saltMetaKey, salt)

	contentKey := passwordKey
	if encryptKeyMode {
		dataKey, err := vcrypto.RandomBytes(vcrypto.KeyLen)
		if err != nil {
			return err
		}
		wrapped, err := vcrypto.WrapDataKey(passwordKey, dataKey)
		if err != nil {
			return err
		}
		a.index.SetMetadata(wrappedDataKeyMetaKey, wrapped)
		contentKey = dataKey
	}

	verifier, err := vcrypto.EncryptPage(contentKey, []byte(verifierPlaintext))
	if err != nil {
		return err
	}
	a.index.SetMetadata(verifierMetaKey, verifier)
	a.store.SetEncryptionKey(contentKey)
	return nil
}

// initEncryptionOpen re-derives the content key from password and the
// fsindex-recorded salt/wrapped-key, rejecting a wrong password via the
// stored verifier rather than letting it surface later as a corrupt-page
// error.
func (a *Archive) initEncryptionOpen(password []byte) error {
	salt, ok := a.index.GetMetadata(saltMetaKey)
	if !ok {
		return vfsarc.NewError(vfsarc.KindEncryptionError, "archive.Open", fmt.Errorf("archive has no KDF salt recorded; it was not created with a password"))
	}
	passwordKey := vcrypto.DeriveKey(password, salt, kdfIterations, vcrypto.KeyLen)

	contentKey := passwordKey
	if wrapped, ok := a.index.GetMetadata(wrappedDataKeyMetaKey); ok {
		dataKey, err := vcrypto.UnwrapDataKey(passwordKey, wrapped)
		if err != nil {
			return vfsarc.NewError(vfsarc.KindEncryptionError, "archive.Open", fmt.Errorf("incorrect password: %w", err))
		}
		contentKey = dataKey
	}

	if verifier, ok := a.index.GetMetadata(verifierMetaKey); ok {
		got, err := vcrypto.DecryptPage(contentKey, verifier)
		if err != nil || string(got) != verifierPlaintext {
			return vfsarc.NewError(vfsarc.KindEncryptionError, "archive.Open", fmt.Errorf("incorrect password"))
		}
	}

	a.store.SetEncryptionKey(contentKey)
	return nil
}

// ChangePassword re-keys an archive created with WithEncryptKeyMode:
// the data key that actually encrypts page content never changes, only
// its password-wrapped copy does, so this touches metadata alone rather
// than re-encrypting every page. An archive created with WithPassword
// (content encrypted directly under the password-derived key) can't be
// cheaply rekeyed this way; callers needing password rotation should
// create with WithEncryptKeyMode up front.
func (a *Archive) ChangePassword(newPassword string) error {
	if err := a.mu.Lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()

	wrapped, ok := a.index.GetMetadata(wrappedDataKeyMetaKey)
	if !ok {
		return vfsarc.NewError(vfsarc.KindInvalidArgument, "archive.ChangePassword",
			fmt.Errorf("archive was not created with encrypt-key mode; cheap rekeying is unavailable"))
	}
	oldSalt, _ := a.index.GetMetadata(saltMetaKey)
	oldPasswordKey := vcrypto.DeriveKey(a.opts.password, oldSalt, kdfIterations, vcrypto.KeyLen)
	dataKey, err := vcrypto.UnwrapDataKey(oldPasswordKey, wrapped)
	if err != nil {
		return vfsarc.NewError(vfsarc.KindEncryptionError, "archive.ChangePassword", err)
	}

	newSalt, err := vcrypto.RandomBytes(vcrypto.SaltLen)
	if err != nil {
		return err
	}
	newPasswordKey := vcrypto.DeriveKey([]byte(newPassword), newSalt, kdfIterations, vcrypto.KeyLen)
	newWrapped, err := vcrypto.WrapDataKey(newPasswordKey, dataKey)
	if err != nil {
		return err
	}
	newVerifier, err := vcrypto.EncryptPage(dataKey, []byte(verifierPlaintext))
	if err != nil {
		return err
	}

	a.index.SetMetadata(saltMetaKey, newSalt)
	a.index.SetMetadata(wrappedDataKeyMetaKey, newWrapped)
	a.index.SetMetadata(verifierMetaKey, newVerifier)
	a.opts.password = []byte(newPassword)
	return nil
}

// Flush packs any buffered small files, re-serializes the fsindex, and
// rewrites the trailer, without closing the underlying file.
func (a *Archive) Flush() error {
	if err := a.mu.Lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	return a.flushLocked()
}

func (a *Archive) flushLocked() error {
	if a.store.ReadOnly() || a.opts.readOnly {
		return nil
	}
	if err := a.writer.Flush(); err != nil {
		return err
	}
	raw := a.index.Serialize()
	if _, err := a.store.WriteFsindexBlob(raw); err != nil {
		return err
	}
	return a.store.WriteTrailer(pages.SignatureV4)
}

// Close flushes pending writes and closes the underlying file. Close is
// safe to call on a read-only archive (Flush is then a no-op).
func (a *Archive) Close() error {
	if err := a.mu.Lock(); err != nil {
		return err
	}
	ferr := a.flushLocked()
	a.mu.Unlock()
	a.mu.Kill()
	if cerr := a.store.Close(); cerr != nil && ferr == nil {
		return cerr
	}
	return ferr
}

func (a *Archive) checkWritable(op string) error {
	if a.store.ReadOnly() || a.opts.readOnly {
		return vfsarc.NewError(vfsarc.KindReadOnly, op, nil)
	}
	return nil
}

// FileInfo is a snapshot of one fsindex entry's metadata, safe to use
// after the archive's lock has been released.
type FileInfo struct {
	Name  string
	IsDir bool
	Size  int64
	Mtime time.Time
}

// Stat resolves path to a FileInfo snapshot.
func (a *Archive) Stat(path string) (FileInfo, error) {
	if err := a.mu.RLock(); err != nil {
		return FileInfo{}, err
	}
	defer a.mu.RUnlock()
	e, err := a.index.Get(vpath.New(path))
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Name: e.Name, IsDir: e.IsDirectory(), Size: e.Size, Mtime: e.Mtime}, nil
}

// List returns the names of path's direct children.
func (a *Archive) List(path string) ([]string, error) {
	if err := a.mu.RLock(); err != nil {
		return nil, err
	}
	defer a.mu.RUnlock()
	return a.index.List(vpath.New(path))
}

// Mkdir creates a directory at path, creating intermediate directories as
// needed.
func (a *Archive) Mkdir(path string) error {
	if err := a.mu.Lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	if err := a.checkWritable("archive.Mkdir"); err != nil {
		return err
	}
	_, err := a.index.SetDirectory(vpath.New(path))
	return err
}

// Remove deletes the entry at path, refusing a non-empty directory unless
// recursive is set.
func (a *Archive) Remove(path string, recursive bool) error {
	if err := a.mu.Lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	if err := a.checkWritable("archive.Remove"); err != nil {
		return err
	}
	return a.index.Unset(vpath.New(path), recursive)
}

// OpenReader opens path for reading. The caller must Close the returned
// Reader when done.
func (a *Archive) OpenReader(path string) (*channel.Reader, error) {
	if err := a.mu.RLock(); err != nil {
		return nil, err
	}
	defer a.mu.RUnlock()
	e, err := a.index.Get(vpath.New(path))
	if err != nil {
		return nil, err
	}
	if e.IsDirectory() {
		return nil, vfsarc.NewError(vfsarc.KindIsADirectory, "archive.OpenReader", nil)
	}
	e.Lock().Acquire()
	return channel.NewReader(e, a.store, a.index, a.writer), nil
}

// CreateWriter creates (or truncates) the file at path and returns a
// writer channel for it. The caller must Close the returned Writer to
// commit its content.
func (a *Archive) CreateWriter(path string) (*channel.Writer, error) {
	if err := a.mu.Lock(); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	if err := a.checkWritable("archive.CreateWriter"); err != nil {
		return nil, err
	}
	p := vpath.New(path)
	if p.IsRoot() {
		return nil, vfsarc.NewError(vfsarc.KindBadPath, "archive.CreateWriter", nil)
	}
	if parent := p.Parent(); !parent.IsRoot() {
		if _, err := a.index.SetDirectory(parent); err != nil {
			return nil, err
		}
	}
	e := fsindex.NewFile(p.Tail(), time.Now())
	if err := a.index.Set(p, e); err != nil {
		return nil, err
	}
	e.Lock().Acquire()
	return channel.NewWriter(p, e, a.writer, nil), nil
}

// OpenWriter opens an existing file at path for in-place modification,
// prefetching its current content so unmodified regions are preserved.
// The caller must Close the returned Writer to commit its content.
func (a *Archive) OpenWriter(path string) (*channel.Writer, error) {
	if err := a.mu.Lock(); err != nil {
		return nil, err
	}
	defer a.mu.Unlock()
	if err := a.checkWritable("archive.OpenWriter"); err != nil {
		return nil, err
	}
	p := vpath.New(path)
	e, err := a.index.Get(p)
	if err != nil {
		return nil, err
	}
	if e.IsDirectory() {
		return nil, vfsarc.NewError(vfsarc.KindIsADirectory, "archive.OpenWriter", nil)
	}

	existing := make([]byte, e.Size)
	if e.Size > 0 {
		r := channel.NewReader(e, a.store, a.index, a.writer)
		if _, err := io.ReadFull(r, existing); err != nil {
			return nil, err
		}
	}

	e.Lock().Acquire()
	return channel.NewWriter(p, e, a.writer, existing), nil
}

// Filesets returns every fileset's name, or nil if the archive is closed.
func (a *Archive) Filesets() []string {
	if a.mu.RLock() != nil {
		return nil
	}
	defer a.mu.RUnlock()
	return a.index.Filesets()
}

// ActiveFileset returns the currently active fileset's name, or "" if the
// archive is closed.
func (a *Archive) ActiveFileset() string {
	if a.mu.RLock() != nil {
		return ""
	}
	defer a.mu.RUnlock()
	return a.index.ActiveFileset()
}

// CreateFileset adds a new, empty fileset without switching to it.
func (a *Archive) CreateFileset(name string) error {
	if err := a.mu.Lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	if err := a.checkWritable("archive.CreateFileset"); err != nil {
		return err
	}
	return a.index.CreateFileset(name)
}

// SwitchFileset makes name the active fileset. Any buffered small-file
// writes are flushed first: a fileset switch changes which tree pending
// blocks would attach to (DESIGN.md's "fileset switch" decision).
func (a *Archive) SwitchFileset(name string) error {
	if err := a.mu.Lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	if err := a.checkWritable("archive.SwitchFileset"); err != nil {
		return err
	}
	if err := a.writer.Flush(); err != nil {
		return err
	}
	return a.index.SwitchFileset(name)
}

// DeleteFileset removes a fileset other than the active one.
func (a *Archive) DeleteFileset(name string) error {
	if err := a.mu.Lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	if err := a.checkWritable("archive.DeleteFileset"); err != nil {
		return err
	}
	return a.index.DeleteFileset(name)
}

// AttachAside chains aside onto this archive as its overlay: reads of
// aside-bit page indices are delegated to aside. Any buffered small-file
// writes are flushed into this archive first. New pages are still written
// to this archive's own store while the aside is attached; nothing is
// written to aside.
func (a *Archive) AttachAside(aside *Archive) error {
	if err := a.mu.Lock(); err != nil {
		return err
	}
	defer a.mu.Unlock()
	if err := a.writer.Flush(); err != nil {
		return err
	}
	a.store.AttachAside(aside.store)
	a.aside = aside
	return nil
}

// DetachAside severs the aside chain, returning the detached Archive
// without closing it. It does not flush: buffered small files stay pending
// and are packed into this archive by its next Flush or Close.
func (a *Archive) DetachAside() *Archive {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store.DetachAside()
	prev := a.aside
	a.aside = nil
	return prev
}

// Attributes is a snapshot of mount-level information about the archive.
type Attributes struct {
	Path           string
	PageCount      int
	Compression    codec.Tag
	ReadOnly       bool
	Encrypted      bool
	EncryptKeyMode bool
	ActiveFileset  string
	Filesets       []string
}

// Attributes reports a snapshot of this archive's mount-level state, or
// the zero value if the archive is closed.
func (a *Archive) Attributes() Attributes {
	if a.mu.RLock() != nil {
		return Attributes{}
	}
	defer a.mu.RUnlock()
	_, encrypted := a.index.GetMetadata(saltMetaKey)
	_, keyMode := a.index.GetMetadata(wrappedDataKeyMetaKey)
	return Attributes{
		Path:           a.path,
		PageCount:      a.store.Index().Count(),
		Compression:    a.store.DefaultCompression(),
		ReadOnly:       a.store.ReadOnly(),
		Encrypted:      encrypted,
		EncryptKeyMode: keyMode,
		ActiveFileset:  a.index.ActiveFileset(),
		Filesets:       a.index.Filesets(),
	}
}
