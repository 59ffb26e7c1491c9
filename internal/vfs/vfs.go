// Package vfs defines a small read-oriented virtual filesystem contract:
// path construction, metadata, directory iteration, and file handles whose
// writes are permitted to fail. It mirrors the shape of a mount-backed
// filesystem abstraction without committing to any single backing store;
// internal/romfsvfs is the IVFC-backed implementation used by this module.
package vfs

import (
	"io"
)

// OpenOptions selects the access mode for VPath.OpenWithOptions. A
// read-only implementation must reject any request with Write, Create,
// Append, or Truncate set.
type OpenOptions struct {
	Read     bool
	Write    bool
	Create   bool
	Append   bool
	Truncate bool
}

// ReadOnly returns the options for a plain read-only open.
func ReadOnly() OpenOptions { return OpenOptions{Read: true} }

// Metadata describes a resolved path: whether it is a directory or a
// regular file, and its size.
type Metadata interface {
	IsDir() bool
	IsFile() bool
	Len() uint64
}

// File is a handle returned by VPath.OpenWithOptions: readable and
// seekable, with a Write/Flush pair present only to satisfy callers that
// expect a read/write/seek/flush contract — on a read-only VFS both always
// fail or no-op respectively.
type File interface {
	io.Reader
	io.Seeker
	io.Writer
	Flush() error
	Close() error
}

// DirIter yields the children of a directory one at a time. Next returns
// ok == false once the sequence is exhausted, with err reported only if a
// failure interrupted iteration.
type DirIter interface {
	Next() (path VPath, ok bool, err error)
}

// VPath is an opaque, filesystem-rooted path. Construction never validates
// existence; call Metadata or Exists to resolve it.
type VPath interface {
	Exists() bool
	Metadata() (Metadata, error)
	OpenWithOptions(opts OpenOptions) (File, error)
	Open() (File, error)
	ReadDir() (DirIter, error)
	Mkdir() error
	Remove() error
	RemoveAll() error
	FileName() (string, bool)
	Extension() (string, bool)
	Resolve(name string) VPath
	Parent() (VPath, bool)
	String() string
	Clone() VPath
	// ToPathBuf returns this VPath's cleaned, "/"-rooted path, without
	// String's "romfs://" prefix. The bool is always true; it
	// mirrors the original's Option-returning signature.
	ToPathBuf() (string, bool)
}

// VFS constructs paths rooted at some filesystem.
type VFS interface {
	Path(s string) VPath
}
