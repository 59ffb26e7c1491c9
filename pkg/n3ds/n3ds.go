// Package n3ds wires the cartridge-image pipeline end to end: NCSD outer
// container, NCCH inner partition, IVFC RomFS metadata, and the read-only
// VFS built on top of it. GetRomFSVFS is the single entry point most
// callers need; Open is a convenience wrapper around it, and Inspect runs
// the same pipeline over partition 0 to produce a Summary.
package n3ds

import (
	"fmt"
	"os"

	"github.com/go3ds/romfs3ds/internal/ncch"
	"github.com/go3ds/romfs3ds/internal/ncsd"
	"github.com/go3ds/romfs3ds/internal/partition"
	"github.com/go3ds/romfs3ds/internal/romfs"
	"github.com/go3ds/romfs3ds/internal/romfsvfs"
	"github.com/go3ds/romfs3ds/internal/vfs"
)

// GetRomfsError reports which pipeline stage failed while assembling a
// RomFS VFS, preserving the stage's own error as its cause.
type GetRomfsError struct {
	Stage string
	Err   error
}

func (e *GetRomfsError) Error() string {
	return fmt.Sprintf("n3ds: %s: %v", e.Stage, e.Err)
}
func (e *GetRomfsError) Unwrap() error { return e.Err }

func stageErr(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &GetRomfsError{Stage: stage, Err: err}
}

// GetRomFSVFS drives NCSD -> partition 0 -> NCCH -> RomFS -> IVFC and
// returns the resulting read-only VFS. src must be positioned at offset 0
// of an unencrypted NCSD image.
func GetRomFSVFS(src partition.Source) (vfs.VFS, error) {
	return GetRomFSVFSFromPartition(src, 0)
}

// GetRomFSVFSFromPartition is GetRomFSVFS generalized to an arbitrary NCSD
// partition slot (0-7), supplementing GetRomFSVFS for images that carry
// RomFS data outside the primary executable partition.
func GetRomFSVFSFromPartition(src partition.Source, partitionIndex int) (vfs.VFS, error) {
	reader, err := ncsd.New(src)
	if err != nil {
		return nil, stageErr("ncsd", err)
	}

	part, err := reader.LoadPartition(partitionIndex)
	if err != nil {
		return nil, stageErr("ncsd", err)
	}

	ncchReader, err := ncch.New(part)
	if err != nil {
		return nil, stageErr("ncch", err)
	}

	romfsPart, err := ncchReader.GetRomFS()
	if err != nil {
		return nil, stageErr("ncch", err)
	}

	handle := partition.NewHandle(romfsPart)
	window, err := partition.NewShared(handle, 0, romfsPart.Len())
	if err != nil {
		return nil, stageErr("romfs", err)
	}

	ivfcReader, err := romfs.New(window)
	if err != nil {
		return nil, stageErr("romfs", err)
	}

	return romfsvfs.New(ivfcReader, handle), nil
}

// Open opens path and drives GetRomFSVFS over it. The returned VFS keeps
// the file open for as long as any path or handle it produced is in use;
// there is no explicit Close, matching the VFS's own resource model.
func Open(path string) (vfs.VFS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("n3ds: open %s: %w", path, err)
	}
	return GetRomFSVFS(f)
}

// Summary is a report of a cartridge image's outer and inner headers plus
// RomFS volume stats, produced by Inspect by walking the VFS once and
// discarding the tree.
type Summary struct {
	MediaID     uint64
	TotalSize   uint32
	NCCHVersion uint16
	NCCHSize    uint32
	FileCount   int
	DirCount    int
	TotalBytes  uint64
}

// Inspect decodes the NCSD and partition-0 NCCH headers of src, then walks
// the RomFS tree once to count files, directories, and total file bytes.
// Per the module's non-goals around caching file payloads or mirroring the
// directory tree in memory, the walk retains only these running totals.
func Inspect(src partition.Source) (Summary, error) {
	reader, err := ncsd.New(src)
	if err != nil {
		return Summary{}, stageErr("ncsd", err)
	}

	part, err := reader.LoadPartition(0)
	if err != nil {
		return Summary{}, stageErr("ncsd", err)
	}

	ncchReader, err := ncch.New(part)
	if err != nil {
		return Summary{}, stageErr("ncch", err)
	}

	romfsPart, err := ncchReader.GetRomFS()
	if err != nil {
		return Summary{}, stageErr("ncch", err)
	}

	handle := partition.NewHandle(romfsPart)
	window, err := partition.NewShared(handle, 0, romfsPart.Len())
	if err != nil {
		return Summary{}, stageErr("romfs", err)
	}

	ivfcReader, err := romfs.New(window)
	if err != nil {
		return Summary{}, stageErr("romfs", err)
	}

	v := romfsvfs.New(ivfcReader, handle)
	files, dirs, totalBytes, err := walkCount(v.Path("/"))
	if err != nil {
		return Summary{}, stageErr("romfs", err)
	}

	return Summary{
		MediaID:     reader.MediaID,
		TotalSize:   reader.Size,
		NCCHVersion: ncchReader.Version,
		NCCHSize:    ncchReader.ContentSize,
		FileCount:   files,
		DirCount:    dirs,
		TotalBytes:  totalBytes,
	}, nil
}

// walkCount recursively visits dir's entries via the VFS interface,
// accumulating counts and sizes without retaining the tree itself.
func walkCount(dir vfs.VPath) (files, dirs int, totalBytes uint64, err error) {
	it, err := dir.ReadDir()
	if err != nil {
		return 0, 0, 0, err
	}
	for {
		child, ok, err := it.Next()
		if err != nil {
			return files, dirs, totalBytes, err
		}
		if !ok {
			break
		}
		meta, err := child.Metadata()
		if err != nil {
			return files, dirs, totalBytes, err
		}
		if meta.IsDir() {
			dirs++
			childFiles, childDirs, childBytes, err := walkCount(child)
			if err != nil {
				return files, dirs, totalBytes, err
			}
			files += childFiles
			dirs += childDirs
			totalBytes += childBytes
			continue
		}
		files++
		totalBytes += meta.Len()
	}
	return files, dirs, totalBytes, nil
}
