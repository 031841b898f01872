package pgindex

import (
	"testing"

	"github.com/vfsarc/vfsarc/codec"
	"github.com/vfsarc/vfsarc/hashing"
)

func md5Of(s string) hashing.MD5 { return hashing.SumMD5([]byte(s)) }

func TestSerializeRoundTrip(t *testing.T) {
	ix := New(16)
	ix.Add(codec.TagZlib, 6, false, 100, 300, md5Of("a"))
	ix.Add(codec.TagZstd, 9, true, 50, 50, md5Of("b"))
	ix.Add(codec.TagNone, 0, false, 10, 10, md5Of("c"))

	raw := ix.Serialize()
	want := 4 + recordSize*3
	if len(raw) != want {
		t.Fatalf("Serialize() length = %d, want %d", len(raw), want)
	}

	got, err := Deserialize(raw, 16)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", got.Count())
	}
	r1, _ := got.Record(1)
	if r1.Compression != codec.TagZstd || r1.Level != 9 || !r1.Encrypted {
		t.Fatalf("record 1 = %+v, mismatched", r1)
	}
	if r1.MD5 != md5Of("b") {
		t.Fatalf("record 1 md5 mismatch")
	}
}

func TestSerializeLengthFormula(t *testing.T) {
	ix := New(0)
	for i := 0; i < 10; i++ {
		ix.Add(codec.TagNone, 0, false, 1, 1, md5Of("x"))
	}
	raw := ix.Serialize()
	if len(raw) != 4+27*10 {
		t.Fatalf("length = %d, want %d", len(raw), 4+27*10)
	}
}

func TestSearchByMD5Resumable(t *testing.T) {
	ix := New(0)
	target := md5Of("dup")
	ix.Add(codec.TagNone, 0, false, 5, 5, md5Of("other"))
	ix.Add(codec.TagNone, 0, false, 5, 5, target)
	ix.Add(codec.TagNone, 0, false, 5, 5, md5Of("other2"))
	ix.Add(codec.TagNone, 0, false, 5, 5, target)

	cursor := 0
	i, ok := ix.SearchByMD5(target, 5, &cursor)
	if !ok || i != 1 {
		t.Fatalf("first search = (%d,%v), want (1,true)", i, ok)
	}
	if cursor != 2 {
		t.Fatalf("cursor after first match = %d, want 2", cursor)
	}

	i, ok = ix.SearchByMD5(target, 5, &cursor)
	if !ok || i != 3 {
		t.Fatalf("second search = (%d,%v), want (3,true)", i, ok)
	}

	i, ok = ix.SearchByMD5(target, 5, &cursor)
	if ok {
		t.Fatalf("third search unexpectedly found %d", i)
	}
}

func TestSearchByMD5SizeMustMatch(t *testing.T) {
	ix := New(0)
	sum := md5Of("same-bytes-different-claimed-size")
	ix.Add(codec.TagNone, 0, false, 5, 100, sum)

	cursor := 0
	if _, ok := ix.SearchByMD5(sum, 50, &cursor); ok {
		t.Fatalf("search matched despite size mismatch")
	}
}

func TestStartOffsetAccumulates(t *testing.T) {
	ix := New(100)
	ix.Add(codec.TagNone, 0, false, 10, 10, md5Of("a"))
	ix.Add(codec.TagNone, 0, false, 20, 20, md5Of("b"))
	ix.Add(codec.TagNone, 0, false, 5, 5, md5Of("c"))

	off0, _ := ix.StartOffset(0)
	off1, _ := ix.StartOffset(1)
	off2, _ := ix.StartOffset(2)
	if off0 != 100 {
		t.Fatalf("off0 = %d, want 100", off0)
	}
	if off1 != 100+1+10 {
		t.Fatalf("off1 = %d, want %d", off1, 100+1+10)
	}
	if off2 != 100+1+10+1+20 {
		t.Fatalf("off2 = %d, want %d", off2, 100+1+10+1+20)
	}
}

func TestStartOffsetInvalidatesOnAdd(t *testing.T) {
	ix := New(0)
	ix.Add(codec.TagNone, 0, false, 10, 10, md5Of("a"))
	first, _ := ix.StartOffset(0)
	ix.Add(codec.TagNone, 0, false, 5, 5, md5Of("b"))
	second, _ := ix.StartOffset(0)
	if first != second {
		t.Fatalf("StartOffset(0) changed after unrelated Add: %d vs %d", first, second)
	}
}

func TestSpecialSlots(t *testing.T) {
	ix := New(0)
	ix.SetSpecialSlots(1000, 50, 1050, 75)
	po, pl := ix.PgindexSlot()
	fo, fl := ix.FsindexSlot()
	if po != 1000 || pl != 50 || fo != 1050 || fl != 75 {
		t.Fatalf("special slots = (%d,%d,%d,%d), mismatched", po, pl, fo, fl)
	}
}

func TestDeserializeTruncated(t *testing.T) {
	if _, err := Deserialize([]byte{0, 0}, 0); err == nil {
		t.Fatalf("expected error for truncated header")
	}
	if _, err := Deserialize([]byte{0, 0, 0, 1}, 0); err == nil {
		t.Fatalf("expected error for short body")
	}
}
