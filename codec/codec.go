// Package codec dispatches page compression by the one-byte tag stored in
// the page index: the core never hard-codes an algorithm, it looks up a
// Codec by Tag and calls Compress/Decompress. Concrete algorithms are
// themselves external collaborators per the spec (this package is the
// dispatch layer, plus thin adapters over real third-party codec
// packages), except for Tag custom, which is always caller-supplied.
package codec

import "fmt"

// Tag identifies a compression algorithm in the on-disk format. Values
// match spec.md §6 exactly.
type Tag byte

const (
	TagNone   Tag = 0
	TagZlib   Tag = 1
	TagBzip2  Tag = 2
	TagLzma   Tag = 3
	TagZstd   Tag = 4
	TagBrotli Tag = 5
	TagCustom Tag = 254
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagZlib:
		return "zlib"
	case TagBzip2:
		return "bzip2"
	case TagLzma:
		return "lzma"
	case TagZstd:
		return "zstd"
	case TagBrotli:
		return "brotli"
	case TagCustom:
		return "custom"
	default:
		return fmt.Sprintf("tag(%d)", byte(t))
	}
}

// Codec compresses and decompresses page payloads for one Tag.
type Codec interface {
	Tag() Tag
	// ClampLevel maps a caller-requested level (0-255 per spec.md §3) into
	// the range this codec actually supports.
	ClampLevel(level int) int
	Compress(level int, data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Registry resolves a Tag to a Codec. A pages.Store owns one Registry;
// RegisterCustom lets a caller install the custom-command codec spec.md
// §9 keeps as an external collaborator.
type Registry struct {
	codecs map[Tag]Codec
}

// NewRegistry returns a Registry pre-populated with every built-in codec
// (none, zlib, bzip2, lzma, zstd, brotli). Tag custom is absent until the
// caller registers one with RegisterCustom.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[Tag]Codec, 8)}
	r.register(noneCodec{})
	r.register(newZlibCodec())
	r.register(newBzip2Codec())
	r.register(newLzmaCodec())
	r.register(newZstdCodec())
	r.register(newBrotliCodec())
	return r
}

func (r *Registry) register(c Codec) { r.codecs[c.Tag()] = c }

// RegisterCustom installs a user-supplied codec under TagCustom,
// overwriting any previously registered custom codec.
func (r *Registry) RegisterCustom(c Codec) {
	r.codecs[TagCustom] = c
}

// Lookup returns the Codec for tag, or (nil, false) if none is registered
// (only possible for TagCustom when no custom codec was installed, or an
// unknown tag from a corrupt archive).
func (r *Registry) Lookup(tag Tag) (Codec, bool) {
	c, ok := r.codecs[tag]
	return c, ok
}

// noneCodec is the trivial "store uncompressed" codec, used for tag 0.
// The page store also records tag 0 when a codec's output is not shorter
// than its input.
type noneCodec struct{}

func (noneCodec) Tag() Tag                                 { return TagNone }
func (noneCodec) ClampLevel(level int) int                 { return 0 }
func (noneCodec) Compress(_ int, data []byte) ([]byte, error) { return data, nil }
func (noneCodec) Decompress(data []byte) ([]byte, error)      { return data, nil }
