package fsindex

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vfsarc/vfsarc"
	"github.com/vfsarc/vfsarc/vpath"
)

func TestSetGetFile(t *testing.T) {
	ix := New()
	p := vpath.New("/a/b/c.txt")
	if _, err := ix.SetDirectory(vpath.New("/a/b")); err != nil {
		t.Fatalf("SetDirectory: %v", err)
	}
	f := NewFile("c.txt", time.Now())
	f.Size = 42
	if err := ix.Set(p, f); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := ix.Get(p)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Size != 42 {
		t.Fatalf("Size = %d, want 42", got.Size)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ix := New()
	_, err := ix.Get(vpath.New("/nope"))
	if !isNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func isNotFound(err error) bool {
	e, ok := err.(*vfsarc.Error)
	return ok && e.Kind == vfsarc.KindNotFound
}

func TestSetDirectoryOverDirectoryFailsHard(t *testing.T) {
	ix := New()
	dirPath := vpath.New("/a")
	dirEntry := NewDirectory("a", time.Now())
	if err := ix.Set(dirPath, dirEntry); err != nil {
		t.Fatalf("Set first directory: %v", err)
	}
	other := NewDirectory("a", time.Now())
	err := ix.Set(dirPath, other)
	if err == nil {
		t.Fatalf("expected directory-over-directory Set to fail")
	}
}

func TestUnsetNonEmptyDirectoryRequiresRecursive(t *testing.T) {
	ix := New()
	ix.SetDirectory(vpath.New("/a"))
	ix.Set(vpath.New("/a/f.txt"), NewFile("f.txt", time.Now()))

	if err := ix.Unset(vpath.New("/a"), false); err == nil {
		t.Fatalf("expected non-recursive Unset of non-empty dir to fail")
	}
	if err := ix.Unset(vpath.New("/a"), true); err != nil {
		t.Fatalf("recursive Unset: %v", err)
	}
	if _, err := ix.Get(vpath.New("/a")); err == nil {
		t.Fatalf("directory should be gone after recursive Unset")
	}
}

func TestListDirectory(t *testing.T) {
	ix := New()
	ix.SetDirectory(vpath.New("/dir"))
	ix.Set(vpath.New("/dir/x.txt"), NewFile("x.txt", time.Now()))
	ix.Set(vpath.New("/dir/y.txt"), NewFile("y.txt", time.Now()))

	names, err := ix.List(vpath.New("/dir"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
}

func TestManyChildrenUpgradesToHash(t *testing.T) {
	ix := New()
	ix.SetDirectory(vpath.New("/big"))
	for i := 0; i < 20; i++ {
		name := string(rune('a' + i))
		ix.Set(vpath.New("/big/"+name), NewFile(name, time.Now()))
	}
	names, err := ix.List(vpath.New("/big"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 20 {
		t.Fatalf("List returned %d, want 20", len(names))
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	ix := New()
	ix.SetDirectory(vpath.New("/a/b"))
	f := NewFile("c.txt", time.Unix(1700000000, 0))
	f.Size = 123
	f.Blocks = []Block{{PageIndex: 3, Offset: 10, Length: 50}, PendingBlock(2, 0, 10)}
	ix.Set(vpath.New("/a/b/c.txt"), f)
	ix.SetMetadata("user.note", []byte("hello"))

	raw := ix.Serialize()
	got, err := Deserialize(raw)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	e, err := got.Get(vpath.New("/a/b/c.txt"))
	if err != nil {
		t.Fatalf("Get after roundtrip: %v", err)
	}
	if e.Size != 123 {
		t.Fatalf("Size = %d, want 123", e.Size)
	}
	wantBlocks := []Block{{PageIndex: 3, Offset: 10, Length: 50}, PendingBlock(2, 0, 10)}
	if diff := cmp.Diff(wantBlocks, e.Blocks); diff != "" {
		t.Fatalf("Blocks mismatch after roundtrip (-want +got):\n%s", diff)
	}
	if v, ok := got.GetMetadata("user.note"); !ok || string(v) != "hello" {
		t.Fatalf("metadata mismatch: %q, %v", v, ok)
	}
}

func TestFilesetSwitch(t *testing.T) {
	ix := New()
	ix.Set(vpath.New("/only-in-default"), NewFile("only-in-default", time.Now()))

	if err := ix.CreateFileset("snapshot1"); err != nil {
		t.Fatalf("CreateFileset: %v", err)
	}
	if err := ix.SwitchFileset("snapshot1"); err != nil {
		t.Fatalf("SwitchFileset: %v", err)
	}
	if _, err := ix.Get(vpath.New("/only-in-default")); err == nil {
		t.Fatalf("snapshot1 should not see default fileset's files")
	}

	if err := ix.SwitchFileset(defaultFileset); err != nil {
		t.Fatalf("SwitchFileset back: %v", err)
	}
	if _, err := ix.Get(vpath.New("/only-in-default")); err != nil {
		t.Fatalf("default fileset file should still be reachable: %v", err)
	}
}

func TestFilesetPersistsActiveAcrossSerialize(t *testing.T) {
	ix := New()
	ix.CreateFileset("alt")
	ix.SwitchFileset("alt")

	raw := ix.Serialize()
	got, err := Deserialize(raw)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got.ActiveFileset() != "alt" {
		t.Fatalf("ActiveFileset() = %q, want %q", got.ActiveFileset(), "alt")
	}
}
