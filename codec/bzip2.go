package codec

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
)

// bzip2Codec wraps dsnet/compress/bzip2, which (unlike the standard
// library's compress/bzip2) implements a writer as well as a reader.
type bzip2Codec struct{}

func newBzip2Codec() Codec { return bzip2Codec{} }

func (bzip2Codec) Tag() Tag { return TagBzip2 }

func (bzip2Codec) ClampLevel(level int) int {
	if level < 1 {
		return 6
	}
	if level > 9 {
		return 9
	}
	return level
}

func (c bzip2Codec) Compress(level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: c.ClampLevel(level)})
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

func (bzip2Codec) Decompress(data []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(data), nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
