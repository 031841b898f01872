package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

type zlibCodec struct{}

func newZlibCodec() Codec { return zlibCodec{} }

func (zlibCodec) Tag() Tag { return TagZlib }

// ClampLevel maps the spec's 0-255 level space onto zlib's 0 (no
// compression) - 9 (best compression) range, as generic/pagesComprZlib.c
// does.
func (zlibCodec) ClampLevel(level int) int {
	if level < 0 {
		return zlib.DefaultCompression
	}
	if level > 9 {
		return 9
	}
	return level
}

func (c zlibCodec) Compress(level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.ClampLevel(level))
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

func (zlibCodec) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
