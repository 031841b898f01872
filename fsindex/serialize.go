package fsindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"golang.org/x/xerrors"
)

// headerMagic is the 8-byte format tag written at the start of every
// serialized fsindex blob (spec.md §4.3's "CFS2.200 8-byte header").
const headerMagic = "CFS2.200"

const (
	entryTagFile      = 0
	entryTagDirectory = 1
)

// Serialize encodes every fileset's tree plus the metadata map into the
// on-disk fsindex blob format: an 8-byte magic header, a fileset count and
// each fileset's name plus recursively-encoded tree, then a metadata
// block of tagged key/value pairs.
func (ix *Index) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteString(headerMagic)

	writeUint32(&buf, uint32(len(ix.filesets)))
	for name, root := range ix.filesets {
		writeString(&buf, name)
		writeEntry(&buf, root)
	}

	keys := ix.MetadataKeys()
	writeUint32(&buf, uint32(len(keys)))
	for _, k := range keys {
		v, _ := ix.GetMetadata(k)
		writeString(&buf, k)
		writeBytes(&buf, v)
	}

	return buf.Bytes()
}

// Deserialize parses the blob Serialize produces into a fresh Index.
func Deserialize(raw []byte) (*Index, error) {
	if len(raw) < len(headerMagic) || string(raw[:len(headerMagic)]) != headerMagic {
		return nil, xerrors.New("fsindex: bad or missing CFS2.200 header")
	}
	r := bytes.NewReader(raw[len(headerMagic):])

	filesetCount, err := readUint32(r)
	if err != nil {
		return nil, xerrors.Errorf("fsindex: reading fileset count: %w", err)
	}

	ix := &Index{
		filesets: make(map[string]*Entry, filesetCount),
		metadata: make(map[string][]byte),
	}
	for i := uint32(0); i < filesetCount; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, xerrors.Errorf("fsindex: reading fileset name: %w", err)
		}
		root, err := readEntry(r)
		if err != nil {
			return nil, xerrors.Errorf("fsindex: reading fileset %q tree: %w", name, err)
		}
		ix.filesets[name] = root
	}

	metaCount, err := readUint32(r)
	if err != nil {
		return nil, xerrors.Errorf("fsindex: reading metadata count: %w", err)
	}
	for i := uint32(0); i < metaCount; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, xerrors.Errorf("fsindex: reading metadata key: %w", err)
		}
		v, err := readBytes(r)
		if err != nil {
			return nil, xerrors.Errorf("fsindex: reading metadata value: %w", err)
		}
		ix.metadata[k] = v
	}

	ix.restoreActiveFileset()
	return ix, nil
}

func writeEntry(buf *bytes.Buffer, e *Entry) {
	writeString(buf, e.Name)
	writeUint64(buf, uint64(e.Mtime.Unix()))

	if e.IsDirectory() {
		buf.WriteByte(entryTagDirectory)
		names := e.ChildNames()
		writeUint32(buf, uint32(len(names)))
		for _, name := range names {
			child, _ := e.Child(name)
			writeEntry(buf, child)
		}
		return
	}

	buf.WriteByte(entryTagFile)
	writeUint64(buf, uint64(e.Size))
	writeUint32(buf, uint32(len(e.Blocks)))
	for _, b := range e.Blocks {
		writeInt32(buf, int32(b.PageIndex))
		writeUint32(buf, uint32(b.Offset))
		writeUint32(buf, uint32(b.Length))
	}
}

func readEntry(r *bytes.Reader) (*Entry, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	mtimeUnix, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	mtime := time.Unix(int64(mtimeUnix), 0)

	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case entryTagDirectory:
		e := NewDirectory(name, mtime)
		count, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			child, err := readEntry(r)
			if err != nil {
				return nil, err
			}
			e.SetChild(child.Name, child)
		}
		return e, nil
	case entryTagFile:
		e := NewFile(name, mtime)
		size, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		e.Size = int64(size)
		blockCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		e.Blocks = make([]Block, blockCount)
		for i := range e.Blocks {
			pi, err := readInt32(r)
			if err != nil {
				return nil, err
			}
			off, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			length, err := readUint32(r)
			if err != nil {
				return nil, err
			}
			e.Blocks[i] = Block{PageIndex: int(pi), Offset: int(off), Length: int(length)}
		}
		return e, nil
	default:
		return nil, fmt.Errorf("fsindex: unknown entry tag %d", tag)
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeInt32(buf *bytes.Buffer, v int32) { writeUint32(buf, uint32(v)) }

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) { writeBytes(buf, []byte(s)) }

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readInt32(r *bytes.Reader) (int32, error) {
	v, err := readUint32(r)
	return int32(v), err
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
