package romfs

import (
	"bytes"
	"testing"
)

// FuzzNew feeds arbitrary bytes through header parsing and, when that
// succeeds, a bounded GetChild/ListChild walk, checking only that no input
// panics the parser.
func FuzzNew(f *testing.F) {
	f.Add([]byte("IVFC"))
	f.Add(make([]byte, 4096+0x28))

	f.Fuzz(func(t *testing.T, data []byte) {
		if len(data) > 1<<20 {
			return
		}
		r, err := New(bytes.NewReader(data))
		if err != nil {
			return
		}
		_, _ = r.ListChild(&r.Root)
		_, _ = r.GetChild(&r.Root, "anything")
	})
}
