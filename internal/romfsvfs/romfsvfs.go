// Package romfsvfs adapts an IVFC-parsed RomFS tree ([romfs.Reader]) to the
// read-only [vfs.VFS] contract: path resolution, metadata, directory
// listing, and file opens backed by mutex-shared partition windows.
package romfsvfs

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/go3ds/romfs3ds/internal/partition"
	"github.com/go3ds/romfs3ds/internal/romfs"
	"github.com/go3ds/romfs3ds/internal/vfs"
)

// FS is a [vfs.VFS] rooted at a RomFS tree's root directory.
type FS struct {
	reader *romfs.Reader
	handle *partition.Handle
}

// New builds an FS from a parsed RomFS reader and the mutex-protected
// handle onto its underlying byte source. Every file opened through the
// returned FS windows into the same handle, so concurrent opens and reads
// interleave safely without reopening the source.
func New(reader *romfs.Reader, handle *partition.Handle) *FS {
	return &FS{reader: reader, handle: handle}
}

// Path constructs a VPath for s without validating existence. Leading and
// trailing slashes and empty components are ignored; "/a//b/" and "a/b"
// both name the same path.
func (f *FS) Path(s string) vfs.VPath {
	return &vpath{reader: f.reader, handle: f.handle, clean: splitClean(s)}
}

func splitClean(s string) string {
	s = path.Clean("/" + s)
	return strings.Trim(s, "/")
}

func components(clean string) []string {
	if clean == "" {
		return nil
	}
	return strings.Split(clean, "/")
}

// cannotDescendIntoFileError reports that a path component resolved to a
// file midway through a multi-component lookup.
type cannotDescendIntoFileError struct {
	At string
}

func (e *cannotDescendIntoFileError) Error() string {
	return "romfsvfs: cannot descend into file at \"" + e.At + "\""
}

// resolve walks clean's components from the tree root via romfs.GetChild,
// failing if an intermediate component names a file.
func resolve(reader *romfs.Reader, clean string) (romfs.DirectoryOrFile, error) {
	current := romfs.DirectoryOrFile{Dir: &reader.Root}
	parts := components(clean)
	for i, part := range parts {
		if current.Dir == nil {
			return romfs.DirectoryOrFile{}, &cannotDescendIntoFileError{At: strings.Join(parts[:i], "/")}
		}
		child, err := reader.GetChild(current.Dir, part)
		if err != nil {
			return romfs.DirectoryOrFile{}, err
		}
		current = child
	}
	return current, nil
}

type vpath struct {
	reader *romfs.Reader
	handle *partition.Handle
	clean  string
}

func (p *vpath) resolve() (romfs.DirectoryOrFile, error) {
	return resolve(p.reader, p.clean)
}

func (p *vpath) pathErr(op string, err error) error {
	switch {
	case err == romfs.ErrDirectoryNotFound || err == romfs.ErrFileNotFound:
		return &fs.PathError{Op: op, Path: p.String(), Err: fmt.Errorf("%w: %w", fs.ErrNotExist, err)}
	default:
		if _, ok := err.(*cannotDescendIntoFileError); ok {
			return &fs.PathError{Op: op, Path: p.String(), Err: fmt.Errorf("%w: %w", fs.ErrInvalid, err)}
		}
		return &fs.PathError{Op: op, Path: p.String(), Err: err}
	}
}

func (p *vpath) Exists() bool {
	_, err := p.resolve()
	return err == nil
}

type dirMetadata struct{}

func (dirMetadata) IsDir() bool   { return true }
func (dirMetadata) IsFile() bool  { return false }
func (dirMetadata) Len() uint64   { return 0 }

type fileMetadata struct{ length uint64 }

func (m fileMetadata) IsDir() bool  { return false }
func (m fileMetadata) IsFile() bool { return true }
func (m fileMetadata) Len() uint64  { return m.length }

func (p *vpath) Metadata() (vfs.Metadata, error) {
	found, err := p.resolve()
	if err != nil {
		return nil, p.pathErr("stat", err)
	}
	if found.File != nil {
		return fileMetadata{length: p.reader.FileLength(found.File)}, nil
	}
	return dirMetadata{}, nil
}

func (p *vpath) OpenWithOptions(opts vfs.OpenOptions) (vfs.File, error) {
	if opts.Write || opts.Create || opts.Append || opts.Truncate {
		return nil, &fs.PathError{Op: "open", Path: p.String(), Err: fs.ErrPermission}
	}

	found, err := p.resolve()
	if err != nil {
		return nil, p.pathErr("open", err)
	}
	if found.File == nil {
		return nil, &fs.PathError{Op: "open", Path: p.String(), Err: fs.ErrInvalid}
	}

	offset := p.reader.GetFileRealOffset(found.File)
	length := p.reader.FileLength(found.File)
	window, err := partition.NewShared(p.handle, offset, length)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: p.String(), Err: err}
	}
	return window, nil
}

func (p *vpath) Open() (vfs.File, error) { return p.OpenWithOptions(vfs.ReadOnly()) }

type dirIter struct {
	names []string
	i     int
	dir   *vpath
}

func (it *dirIter) Next() (vfs.VPath, bool, error) {
	if it.i >= len(it.names) {
		return nil, false, nil
	}
	name := it.names[it.i]
	it.i++
	return it.dir.Resolve(name), true, nil
}

func (p *vpath) ReadDir() (vfs.DirIter, error) {
	found, err := p.resolve()
	if err != nil {
		return nil, p.pathErr("readdir", err)
	}
	if found.Dir == nil {
		return nil, &fs.PathError{Op: "readdir", Path: p.String(), Err: fs.ErrInvalid}
	}
	names, err := p.reader.ListChild(found.Dir)
	if err != nil {
		return nil, p.pathErr("readdir", err)
	}
	return &dirIter{names: names, dir: p}, nil
}

func (p *vpath) Mkdir() error {
	return &fs.PathError{Op: "mkdir", Path: p.String(), Err: fs.ErrPermission}
}

func (p *vpath) Remove() error {
	return &fs.PathError{Op: "remove", Path: p.String(), Err: fs.ErrPermission}
}

func (p *vpath) RemoveAll() error {
	return &fs.PathError{Op: "removeall", Path: p.String(), Err: fs.ErrPermission}
}

func (p *vpath) FileName() (string, bool) {
	if p.clean == "" {
		return "", false
	}
	return path.Base(p.clean), true
}

func (p *vpath) Extension() (string, bool) {
	name, ok := p.FileName()
	if !ok {
		return "", false
	}
	ext := path.Ext(name)
	if ext == "" {
		return "", false
	}
	return strings.TrimPrefix(ext, "."), true
}

func (p *vpath) Resolve(name string) vfs.VPath {
	return &vpath{reader: p.reader, handle: p.handle, clean: splitClean(p.clean + "/" + name)}
}

func (p *vpath) Parent() (vfs.VPath, bool) {
	if p.clean == "" {
		return nil, false
	}
	parent := path.Dir(p.clean)
	if parent == "." {
		parent = ""
	}
	return &vpath{reader: p.reader, handle: p.handle, clean: parent}, true
}

func (p *vpath) String() string { return "romfs://" + p.clean }

// ToPathBuf returns the "/"-rooted path buffer, e.g. "/dir/file.bin", distinct from
// String's "romfs://"-prefixed form.
func (p *vpath) ToPathBuf() (string, bool) { return "/" + p.clean, true }

func (p *vpath) Clone() vfs.VPath {
	return &vpath{reader: p.reader, handle: p.handle, clean: p.clean}
}
