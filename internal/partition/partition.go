// Package partition implements bounded, seekable windows over a random-access
// byte source: a [start, end) slice that behaves like its own independent
// stream. Two variants are provided. [Partition] owns its underlying source
// outright. [SharedPartition] holds a mutex-protected handle so many windows
// can multiplex a single source concurrently.
package partition

import (
	"errors"
	"fmt"
	"io"
)

// ErrInvalidSeek is returned when a seek would land before the start of the
// window.
var ErrInvalidSeek = errors.New("partition: cannot seek before partition start")

// ErrPermissionDenied is returned by Write on a read-only partition.
var ErrPermissionDenied = errors.New("partition: read-only filesystem")

// Source is the minimal random-access byte source a partition is built on.
type Source interface {
	io.Reader
	io.Seeker
}

// SeekError wraps an I/O failure encountered while seeking the underlying
// source, tagged with which operation was in flight.
type SeekError struct {
	Op  string
	Err error
}

func (e *SeekError) Error() string { return fmt.Sprintf("partition: seek failed: %s: %v", e.Op, e.Err) }
func (e *SeekError) Unwrap() error { return e.Err }

// ReadError wraps an I/O failure encountered while reading the underlying
// source.
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("partition: read failed: %s: %v", e.Op, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// Partition is a bounded view over [start, start+length) of an owned
// underlying Source. It implements io.ReadSeeker (plus a Write that always
// fails and a no-op Flush so it can stand in for a read/write/seek/flush
// file contract).
type Partition struct {
	src   Source
	start int64
	end   int64
	ptr   int64
}

// New constructs a Partition over src spanning [start, start+length). It
// seeks src to start; construction fails only if that seek fails.
func New(src Source, start, length uint64) (*Partition, error) {
	p := &Partition{
		src:   src,
		start: int64(start),
		end:   int64(start + length),
		ptr:   int64(start),
	}
	if _, err := p.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return p, nil
}

// Start returns the absolute offset of the first byte in the window.
func (p *Partition) Start() uint64 { return uint64(p.start) }

// Len returns the window's length in bytes.
func (p *Partition) Len() uint64 { return uint64(p.end - p.start) }

// Seek resolves whence/offset to an absolute position within the underlying
// source. Seeking before start fails with ErrInvalidSeek; seeking past end is
// permitted (a later read will return 0 bytes or fail as the source
// dictates). The returned offset is relative to start.
func (p *Partition) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = p.start + offset
	case io.SeekEnd:
		target = p.end + offset
	case io.SeekCurrent:
		target = p.ptr + offset
	default:
		return 0, fmt.Errorf("partition: invalid whence %d", whence)
	}
	if target < p.start {
		return 0, ErrInvalidSeek
	}
	if _, err := p.src.Seek(target, io.SeekStart); err != nil {
		return 0, &SeekError{Op: "reposition partition", Err: err}
	}
	p.ptr = target
	return p.ptr - p.start, nil
}

// Read fills buf from the current position, never returning bytes from
// beyond end. If the read would cross end, it falls back to a byte-at-a-time
// read that stops exactly at the boundary; if the underlying source fails
// partway through, the pointer is left just past the last byte read. Once
// the pointer is at or past end, Read returns 0, io.EOF.
func (p *Partition) Read(buf []byte) (int, error) {
	remaining := p.end - p.ptr
	if remaining < 0 {
		remaining = 0
	}
	if int64(len(buf)) <= remaining {
		n, err := p.src.Read(buf)
		p.ptr += int64(n)
		return n, err
	}

	total := int(remaining)
	if total == 0 {
		return 0, io.EOF
	}
	for i := 0; i < total; i++ {
		var single [1]byte
		if _, err := io.ReadFull(p.src, single[:]); err != nil {
			// Best-effort recovery: reposition the underlying source back to
			// the last known-good pointer before surfacing the error.
			_, _ = p.src.Seek(p.ptr, io.SeekStart)
			return i, &ReadError{Op: "partition tail read", Err: err}
		}
		p.ptr++
		buf[i] = single[0]
	}
	return total, nil
}

// Write always fails: a Partition stands in for the VFS read/write contract
// but never permits mutation.
func (p *Partition) Write([]byte) (int, error) { return 0, ErrPermissionDenied }

// Flush always succeeds; there is nothing buffered to flush.
func (p *Partition) Flush() error { return nil }
