package partition

import (
	"fmt"
	"io"
	"sync"
)

// Handle is a reference-counted (via ordinary Go pointer sharing), mutex-
// protected underlying source. Every SharedPartition built from the same
// Handle multiplexes the same Source; the lock is held only across a single
// seek+read pair.
type Handle struct {
	mu  sync.Mutex
	src Source
}

// NewHandle wraps src so it can be shared by multiple SharedPartition
// windows.
func NewHandle(src Source) *Handle { return &Handle{src: src} }

// SharedPartition is the Handle-backed twin of Partition. Each window keeps
// its own start/end/ptr and only touches the shared Handle for the duration
// of a single underlying operation, so concurrent windows on the same Handle
// interleave safely.
type SharedPartition struct {
	h     *Handle
	start int64
	end   int64
	ptr   int64
}

// NewShared constructs a SharedPartition over h spanning
// [start, start+length).
func NewShared(h *Handle, start, length uint64) (*SharedPartition, error) {
	p := &SharedPartition{
		h:     h,
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
func (p *SharedPartition) Start() uint64 { return uint64(p.start) }

// Len returns the window's length in bytes.
func (p *SharedPartition) Len() uint64 { return uint64(p.end - p.start) }

// Seek behaves exactly as Partition.Seek, save that the underlying
// reposition is performed under the shared Handle's mutex.
func (p *SharedPartition) Seek(offset int64, whence int) (int64, error) {
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

	p.h.mu.Lock()
	_, err := p.h.src.Seek(target, io.SeekStart)
	p.h.mu.Unlock()
	if err != nil {
		return 0, &SeekError{Op: "reposition shared partition", Err: err}
	}
	p.ptr = target
	return p.ptr - p.start, nil
}

// Read behaves exactly as Partition.Read, save that each underlying
// seek+read pair is performed under the shared Handle's mutex, released
// before the per-window pointer is updated. Because the Handle's source may
// have been repositioned by a different window since this one last touched
// it, every read re-seeks to this window's own ptr before reading, all under
// the same lock acquisition.
func (p *SharedPartition) Read(buf []byte) (int, error) {
	remaining := p.end - p.ptr
	if remaining < 0 {
		remaining = 0
	}
	if int64(len(buf)) <= remaining {
		p.h.mu.Lock()
		if _, err := p.h.src.Seek(p.ptr, io.SeekStart); err != nil {
			p.h.mu.Unlock()
			return 0, &SeekError{Op: "reposition shared partition before read", Err: err}
		}
		n, err := p.h.src.Read(buf)
		p.h.mu.Unlock()
		p.ptr += int64(n)
		return n, err
	}

	total := int(remaining)
	if total == 0 {
		return 0, io.EOF
	}
	for i := 0; i < total; i++ {
		var single [1]byte
		p.h.mu.Lock()
		if _, err := p.h.src.Seek(p.ptr, io.SeekStart); err != nil {
			p.h.mu.Unlock()
			return i, &SeekError{Op: "reposition shared partition before tail read", Err: err}
		}
		_, err := io.ReadFull(p.h.src, single[:])
		if err == nil {
			p.h.mu.Unlock()
			p.ptr++
			buf[i] = single[0]
			continue
		}
		_, _ = p.h.src.Seek(p.ptr, io.SeekStart)
		p.h.mu.Unlock()
		return i, &ReadError{Op: "shared partition tail read", Err: err}
	}
	return total, nil
}

// Write unconditionally fails: the VFS layer built on SharedPartition is
// read-only.
func (p *SharedPartition) Write([]byte) (int, error) { return 0, ErrPermissionDenied }

// Flush unconditionally succeeds.
func (p *SharedPartition) Flush() error { return nil }

// Close is a no-op: the Handle outlives any single SharedPartition and is
// released only when its last reference is dropped by the garbage
// collector.
func (p *SharedPartition) Close() error { return nil }
