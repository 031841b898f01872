package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
)

type zstdCodec struct{}

func newZstdCodec() Codec { return zstdCodec{} }

func (zstdCodec) Tag() Tag { return TagZstd }

// ClampLevel maps the spec's level space onto zstd's classic 1-22 scale
// (negative levels mean "faster than level 1", which we don't expose).
func (zstdCodec) ClampLevel(level int) int {
	if level < 1 {
		return 3 // zstd's own default
	}
	if level > 22 {
		return 22
	}
	return level
}

func (c zstdCodec) Compress(level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.ClampLevel(level))))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (zstdCodec) Decompress(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
