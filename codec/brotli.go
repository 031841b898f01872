package codec

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

type brotliCodec struct{}

func newBrotliCodec() Codec { return brotliCodec{} }

func (brotliCodec) Tag() Tag { return TagBrotli }

// ClampLevel maps onto brotli's native 0-11 quality scale.
func (brotliCodec) ClampLevel(level int) int {
	if level < 0 {
		return brotli.DefaultCompression
	}
	if level > 11 {
		return 11
	}
	return level
}

func (c brotliCodec) Compress(level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, c.ClampLevel(level))
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (brotliCodec) Decompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}
