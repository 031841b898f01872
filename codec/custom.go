package codec

import "fmt"

// CompressFunc and DecompressFunc are the shape of a user-supplied custom
// compression command (spec.md §9, grounded on generic/pagesComprCustom.c):
// the core treats the concrete algorithm as an external collaborator and
// only ever calls through this interface.
type CompressFunc func(level int, data []byte) ([]byte, error)
type DecompressFunc func(data []byte) ([]byte, error)

// Custom adapts a pair of caller-supplied callbacks to the Codec
// interface, for Tag custom. There is deliberately no concrete algorithm
// bundled here.
type Custom struct {
	CompressCB   CompressFunc
	DecompressCB DecompressFunc
}

func (Custom) Tag() Tag { return TagCustom }

func (Custom) ClampLevel(level int) int { return level }

func (c Custom) Compress(level int, data []byte) ([]byte, error) {
	if c.CompressCB == nil {
		return nil, fmt.Errorf("codec: no custom compress callback registered")
	}
	return c.CompressCB(level, data)
}

func (c Custom) Decompress(data []byte) ([]byte, error) {
	if c.DecompressCB == nil {
		return nil, fmt.Errorf("codec: no custom decompress callback registered")
	}
	return c.DecompressCB(data)
}
