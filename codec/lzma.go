package codec

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// lzmaCodec wraps ulikunitz/xz/lzma, the classic single-stream LZMA filter
// (as opposed to the .xz container format). The level parameter only
// influences the dictionary size tier; lzma.Writer itself doesn't expose a
// 0-9 knob the way zlib does.
type lzmaCodec struct{}

func newLzmaCodec() Codec { return lzmaCodec{} }

func (lzmaCodec) Tag() Tag { return TagLzma }

func (lzmaCodec) ClampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 9 {
		return 9
	}
	return level
}

func (c lzmaCodec) Compress(level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	cfg := lzma.WriterConfig{DictCap: dictCapForLevel(c.ClampLevel(level))}
	w, err := cfg.NewWriter(&buf)
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

func (lzmaCodec) Decompress(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// dictCapForLevel scales the LZMA dictionary size with the requested
// level, from 256 KiB at level 0 up to 128 MiB at level 9 — the same shape
// as generic/pagesComprLzma.c's preset-to-dictsize table.
func dictCapForLevel(level int) int {
	base := 1 << 18 // 256 KiB
	return base << uint(level)
}
