package archive

import (
	"go.uber.org/zap"

	"github.com/vfsarc/vfsarc/codec"
	"github.com/vfsarc/vfsarc/pages"
)

// options collects every Option's effect, applied before Create/Open touch
// the page store.
type options struct {
	pageSize      int
	cacheSize     int
	smallFileSize int
	compression   codec.Tag
	level         int
	logger        *zap.Logger
	registry      *codec.Registry

	password       []byte
	encryptKeyMode bool // true: password wraps a random data key; false: password derives the data key directly

	readOnly bool
}

func defaultOptions() options {
	return options{
		pageSize:      pages.DefaultPageSize,
		cacheSize:     pages.DefaultCacheSize,
		smallFileSize: 16 * 1024,
		compression:   codec.TagZstd,
		level:         9,
		logger:        zap.NewNop(),
	}
}

// Option configures an Archive at Create/Open time.
type Option func(*options)

// WithPageSize sets the target size of a packed/large-file page.
func WithPageSize(n int) Option { return func(o *options) { o.pageSize = n } }

// WithCacheSize sets the fixed number of decompressed pages the archive's
// page store keeps cached at once (spec.md §4.1).
func WithCacheSize(n int) Option { return func(o *options) { o.cacheSize = n } }

// WithSmallFileSize sets the threshold below which a file is routed
// through the small-file writer's dedup buffer instead of written
// directly as its own page(s).
func WithSmallFileSize(n int) Option { return func(o *options) { o.smallFileSize = n } }

// WithCompression sets the default codec and level for new pages.
func WithCompression(tag codec.Tag, level int) Option {
	return func(o *options) { o.compression = tag; o.level = level }
}

// WithLogger attaches structured logging.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithCodecRegistry overrides the codec registry, e.g. to register a
// custom compression command.
func WithCodecRegistry(r *codec.Registry) Option { return func(o *options) { o.registry = r } }

// WithPassword enables encryption, deriving the content key directly from
// the password (spec.md §9's "password-only" mode).
func WithPassword(password string) Option {
	return func(o *options) { o.password = []byte(password); o.encryptKeyMode = false }
}

// WithEncryptKeyMode enables encryption via a random data key wrapped by
// the password-derived key (spec.md §9's "encrypt-key/data-key" mode),
// which makes ChangePassword cheap: only the wrapped key is re-encrypted,
// not the archive's content.
func WithEncryptKeyMode(password string) Option {
	return func(o *options) { o.password = []byte(password); o.encryptKeyMode = true }
}

// WithReadOnly opens the archive without permitting mutation.
func WithReadOnly() Option { return func(o *options) { o.readOnly = true } }
