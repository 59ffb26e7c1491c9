package partition

import (
	"io"
	"testing"
)

// FuzzPartitionStaysInBounds drives arbitrary seek/read sequences against a
// Partition and checks that no read ever returns a byte from outside
// [start, start+length).
func FuzzPartitionStaysInBounds(f *testing.F) {
	f.Add([]byte{0x00}, uint64(0), uint64(8), uint64(0))
	f.Add([]byte{0xFF, 0x00, 0x01}, uint64(2), uint64(1), uint64(5))
	f.Add(make([]byte, 64), uint64(10), uint64(20), uint64(3))

	f.Fuzz(func(t *testing.T, data []byte, start, length uint64, ops uint64) {
		if len(data) > 1<<16 || length > 1<<16 {
			return
		}
		src := newMemSource(data)
		p, err := New(src, start%uint64(len(data)+1), length)
		if err != nil {
			return
		}

		for i := uint64(0); i < ops%64; i++ {
			switch i % 3 {
			case 0:
				_, _ = p.Seek(int64(i), io.SeekStart)
			case 1:
				_, _ = p.Seek(int64(i)-8, io.SeekCurrent)
			case 2:
				before := p.ptr
				buf := make([]byte, int(i%32)+1)
				n, _ := p.Read(buf)
				if int64(n) > p.end-before {
					t.Fatalf("Read returned %d bytes from pointer %d, window ends at %d", n, before, p.end)
				}
			}
		}
	})
}
