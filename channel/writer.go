package channel

import (
	"io"
	"sync"
	"time"

	"github.com/vfsarc/vfsarc"
	"github.com/vfsarc/vfsarc/fsindex"
	"github.com/vfsarc/vfsarc/vpath"
)

// FlushTarget receives a writer channel's finished buffer at Close time.
// smallwriter.Writer satisfies this.
type FlushTarget interface {
	AddFile(p *vpath.Path, content []byte, mtime time.Time, entry *fsindex.Entry) error
}

// Writer is a read/write byte-stream cursor over a logical file backed by
// an in-memory elastic buffer; its content only reaches the archive when
// Close calls through to a FlushTarget (the small-file writer).
type Writer struct {
	mu     sync.Mutex
	path   *vpath.Path
	entry  *fsindex.Entry
	target FlushTarget

	buf    []byte
	pos    int64
	closed bool
}

// NewWriter opens a writer channel for path/entry, optionally preloaded
// with existing content (when opening over an already-populated file for
// in-place modification rather than truncation).
func NewWriter(path *vpath.Path, entry *fsindex.Entry, target FlushTarget, prefetch []byte) *Writer {
	buf := append([]byte(nil), prefetch...)
	return &Writer{path: path, entry: entry, target: target, buf: buf}
}

// bandedGrowth picks the next buffer capacity for a write that needs at
// least need bytes, given the buffer's current capacity. Small buffers
// grow in 1KiB steps, buffers under 1MiB grow in 128KiB steps, and larger
// buffers round the requirement up to the next 1KiB boundary rather than
// over-allocating further (grounded on generic/writer.c's
// Cookfs_WriterBufferGrow band table).
func bandedGrowth(currentCap, need int) int {
	if need <= currentCap {
		return currentCap
	}
	switch {
	case currentCap < 64*1024:
		return roundUp(need, 1024)
	case currentCap < 1024*1024:
		return roundUp(need, 128*1024)
	default:
		return roundUp(need, 1024)
	}
}

func roundUp(n, unit int) int {
	if n%unit == 0 {
		return n
	}
	return (n/unit + 1) * unit
}

func (w *Writer) growLocked(need int) {
	if need <= cap(w.buf) {
		return
	}
	newCap := bandedGrowth(cap(w.buf), need)
	nb := make([]byte, len(w.buf), newCap)
	copy(nb, w.buf)
	w.buf = nb
}

// Write implements io.Writer, extending the buffer (zero-filling any gap
// left by a prior Seek past the end) as needed.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, vfsarc.NewError(vfsarc.KindIOError, "channel.Write", nil)
	}
	if len(p) == 0 {
		return 0, nil
	}

	end := w.pos + int64(len(p))
	w.growLocked(int(end))
	if int64(len(w.buf)) < end {
		w.buf = w.buf[:end] // the zero-extension; Go zeroes newly-visible capacity
	}
	copy(w.buf[w.pos:end], p)
	w.pos = end
	return len(p), nil
}

// Seek implements io.Seeker. Seeking past the current end immediately
// zero-fills the buffer out to the new position, matching the visible
// gap a subsequent Read at an intermediate offset must return as zeros.
func (w *Writer) Seek(offset int64, whence int) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = w.pos + offset
	case io.SeekEnd:
		newPos = int64(len(w.buf)) + offset
	default:
		return 0, vfsarc.NewError(vfsarc.KindInvalidArgument, "channel.Seek", nil)
	}
	if newPos < 0 {
		return 0, vfsarc.NewError(vfsarc.KindInvalidArgument, "channel.Seek", nil)
	}
	if newPos > int64(len(w.buf)) {
		w.growLocked(int(newPos))
		w.buf = w.buf[:newPos]
	}
	w.pos = newPos
	return w.pos, nil
}

// Read implements io.Reader against the in-progress buffer, so a caller
// can read back what it has written before Close.
func (w *Writer) Read(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pos >= int64(len(w.buf)) {
		return 0, io.EOF
	}
	n := copy(p, w.buf[w.pos:])
	w.pos += int64(n)
	return n, nil
}

// Truncate resizes the buffer to size, zero-filling if it grows.
func (w *Writer) Truncate(size int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if size < 0 {
		return vfsarc.NewError(vfsarc.KindInvalidArgument, "channel.Truncate", nil)
	}
	if size <= int64(len(w.buf)) {
		w.buf = w.buf[:size]
		if w.pos > size {
			w.pos = size
		}
		return nil
	}
	w.growLocked(int(size))
	w.buf = w.buf[:size]
	return nil
}

// Close hands the finished buffer to the small-file writer (or direct
// large-file path) and marks this channel unusable. Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.target.AddFile(w.path, w.buf, time.Now(), w.entry)
	w.entry.Lock().Release()
	return err
}

var (
	_ io.ReadWriteSeeker = (*Writer)(nil)
	_ io.Closer          = (*Writer)(nil)
)
