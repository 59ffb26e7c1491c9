package romfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"unicode/utf16"

	"github.com/go3ds/romfs3ds/internal/partition"
)

const (
	testDirTableRel  = 0x100
	testFileTableRel = 0x200
	testFileDataRel  = 0x300
)

func putU32(buf []byte, off uint32, v uint32) { binary.LittleEndian.PutUint32(buf[off:off+4], v) }
func putU64(buf []byte, off uint32, v uint64) { binary.LittleEndian.PutUint64(buf[off:off+8], v) }

func putUTF16Name(buf []byte, off uint32, name string) uint32 {
	units := utf16.Encode([]rune(name))
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[off+uint32(i)*2:off+uint32(i)*2+2], u)
	}
	return uint32(len(units) * 2)
}

// buildImage assembles a minimal RomFS image:
//
//	/          (root, two subdirs "a","b", one file "c.bin")
//	/a/        (empty)
//	/b/        (empty)
//	/c.bin     (5 bytes, "HELLO")
func buildImage(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, 8192)

	copy(buf[0:4], "IVFC")
	copy(buf[4:8], []byte{0, 0, 1, 0})

	base := uint32(level3TableOffset)
	putU32(buf, base+0, level3HeaderLen)
	putU32(buf, base+4, 0)  // dir hashdata offset (unused)
	putU32(buf, base+8, 0)  // dir hashdata length (unused)
	putU32(buf, base+12, testDirTableRel)
	putU32(buf, base+16, 0) // dir metadata length (unused)
	putU32(buf, base+20, 0) // file hashdata offset (unused)
	putU32(buf, base+24, 0) // file hashdata length (unused)
	putU32(buf, base+28, testFileTableRel)
	putU32(buf, base+32, 0) // file metadata length (unused)
	putU32(buf, base+36, testFileDataRel)

	dirBase := base + testDirTableRel
	// root at rel 0
	putU32(buf, dirBase+0, noPointer) // parent (unused)
	putU32(buf, dirBase+4, noPointer) // next sibling: none
	putU32(buf, dirBase+8, 20)        // first subdir: "a" at rel 20
	putU32(buf, dirBase+12, 0)        // first file: "c.bin" at rel 0 of file table
	putU32(buf, dirBase+16, 0)        // hash bucket (unused)

	// "a" at rel 20
	putU32(buf, dirBase+20, 0)         // parent (unused)
	putU32(buf, dirBase+24, 46)        // next sibling: "b" at rel 46
	putU32(buf, dirBase+28, noPointer) // first subdir: none
	putU32(buf, dirBase+32, noPointer) // first file: none
	putU32(buf, dirBase+36, 0)         // hash bucket
	putU32(buf, dirBase+40, 2)         // name length
	putUTF16Name(buf, dirBase+44, "a")

	// "b" at rel 46
	putU32(buf, dirBase+46, 0)
	putU32(buf, dirBase+50, noPointer) // next sibling: none
	putU32(buf, dirBase+54, noPointer)
	putU32(buf, dirBase+58, noPointer)
	putU32(buf, dirBase+62, 0)
	putU32(buf, dirBase+66, 2)
	putUTF16Name(buf, dirBase+70, "b")

	fileBase := base + testFileTableRel
	putU32(buf, fileBase+0, 0)         // parent (unused)
	putU32(buf, fileBase+4, noPointer) // sibling: none
	putU64(buf, fileBase+8, 0)         // data offset
	putU64(buf, fileBase+16, 5)        // data length
	putU32(buf, fileBase+24, 0)        // hash bucket
	putU32(buf, fileBase+28, 10)       // name length
	putUTF16Name(buf, fileBase+32, "c.bin")

	dataBase := base + testFileDataRel
	copy(buf[dataBase:dataBase+5], "HELLO")

	return buf
}

func src(data []byte) partition.Source { return bytes.NewReader(data) }

func TestNewParsesHeaderAndRoot(t *testing.T) {
	r, err := New(src(buildImage(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !r.Root.IsRoot {
		t.Fatal("Root.IsRoot = false")
	}
	if r.Root.Name != "" {
		t.Fatalf("Root.Name = %q, want empty", r.Root.Name)
	}
	if !r.Root.HasFirstSubdir || !r.Root.HasFirstFile {
		t.Fatal("Root should have both a subdir and a file")
	}
}

func TestNewRejectsBadHeaderLength(t *testing.T) {
	buf := buildImage(t)
	putU32(buf, level3TableOffset, 0x30)

	_, err := New(src(buf))
	if !errors.Is(err, ErrBadHeaderLength) {
		t.Fatalf("err=%v, want ErrBadHeaderLength", err)
	}
}

func TestNewRejectsBadFirstMagic(t *testing.T) {
	buf := buildImage(t)
	copy(buf[0:4], "XXXX")

	_, err := New(src(buf))
	var magicErr *FirstMagicError
	if !errors.As(err, &magicErr) {
		t.Fatalf("err=%v, want *FirstMagicError", err)
	}
}

func TestGetChildFindsFileAfterExhaustingDirChain(t *testing.T) {
	r, err := New(src(buildImage(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := r.GetChild(&r.Root, "c.bin")
	if err != nil {
		t.Fatalf("GetChild: %v", err)
	}
	if got.File == nil {
		t.Fatal("expected a file result")
	}
	if got.File.Name != "c.bin" || r.FileLength(got.File) != 5 {
		t.Fatalf("got %+v", got.File)
	}
}

func TestGetChildFindsDirectory(t *testing.T) {
	r, err := New(src(buildImage(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := r.GetChild(&r.Root, "b")
	if err != nil {
		t.Fatalf("GetChild: %v", err)
	}
	if got.Dir == nil || got.Dir.Name != "b" {
		t.Fatalf("got %+v", got)
	}
}

func TestGetChildMissingNameYieldsFileNotFoundWhenFileChainExists(t *testing.T) {
	r, err := New(src(buildImage(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.GetChild(&r.Root, "nope")
	if !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("err=%v, want ErrFileNotFound", err)
	}
}

func TestGetChildMissingNameYieldsDirectoryNotFoundWhenNoFileChain(t *testing.T) {
	r, err := New(src(buildImage(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := r.GetChild(&r.Root, "b")
	if err != nil {
		t.Fatalf("GetChild(b): %v", err)
	}
	_, err = r.GetChild(b.Dir, "nope")
	if !errors.Is(err, ErrDirectoryNotFound) {
		t.Fatalf("err=%v, want ErrDirectoryNotFound", err)
	}
}

func TestListChildEmptyForLeafDirectory(t *testing.T) {
	r, err := New(src(buildImage(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := r.GetChild(&r.Root, "b")
	if err != nil {
		t.Fatalf("GetChild(b): %v", err)
	}
	names, err := r.ListChild(b.Dir)
	if err != nil {
		t.Fatalf("ListChild: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("names=%v, want empty", names)
	}
}

func TestListChildRootOrdersFilesBeforeDirectories(t *testing.T) {
	r, err := New(src(buildImage(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	names, err := r.ListChild(&r.Root)
	if err != nil {
		t.Fatalf("ListChild: %v", err)
	}
	want := []string{"c.bin", "a", "b"}
	if len(names) != len(want) {
		t.Fatalf("names=%v, want %v", names, want)
	}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("names=%v, want %v", names, want)
		}
	}
}

func TestReadAtReturnsFilePayload(t *testing.T) {
	r, err := New(src(buildImage(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := r.GetChild(&r.Root, "c.bin")
	if err != nil {
		t.Fatalf("GetChild: %v", err)
	}
	buf := make([]byte, 5)
	n, err := r.ReadAt(got.File, 0, buf)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != 5 || string(buf) != "HELLO" {
		t.Fatalf("ReadAt=%q, want %q", buf, "HELLO")
	}
}

// armedPanicSource wraps a partition.Source and panics on Seek once armed,
// simulating a fault raised mid-operation while a Reader's table lock is
// held.
type armedPanicSource struct {
	partition.Source
	armed bool
}

func (s *armedPanicSource) Seek(offset int64, whence int) (int64, error) {
	if s.armed {
		panic("simulated fault")
	}
	return s.Source.Seek(offset, whence)
}

func TestPanicInLockedMethodPoisonsReader(t *testing.T) {
	ps := &armedPanicSource{Source: src(buildImage(t))}
	r, err := New(ps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ps.armed = true
	func() {
		defer func() { recover() }()
		_, _ = r.GetChild(&r.Root, "c.bin")
	}()

	if _, err := r.GetChild(&r.Root, "b"); !errors.Is(err, ErrPoisonedLock) {
		t.Fatalf("GetChild after panic: err=%v, want ErrPoisonedLock", err)
	}
	if _, err := r.ListChild(&r.Root); !errors.Is(err, ErrPoisonedLock) {
		t.Fatalf("ListChild after panic: err=%v, want ErrPoisonedLock", err)
	}
	if _, err := r.ReadAt(&FileMetadata{}, 0, make([]byte, 1)); !errors.Is(err, ErrPoisonedLock) {
		t.Fatalf("ReadAt after panic: err=%v, want ErrPoisonedLock", err)
	}
}

func TestUTF16OddLengthFails(t *testing.T) {
	buf := buildImage(t)
	dirBase := uint32(level3TableOffset) + testDirTableRel
	putU32(buf, dirBase+40, 3) // odd name length for "a"

	// New parses only the nameless root; "a" is decoded when GetChild walks
	// the root's subdirectory chain.
	r, err := New(src(buf))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = r.GetChild(&r.Root, "a")
	if !errors.Is(err, ErrUTF16OddLength) {
		t.Fatalf("err=%v, want ErrUTF16OddLength", err)
	}
}
