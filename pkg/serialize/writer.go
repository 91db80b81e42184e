package serialize

import (
	"fmt"
)

// FixedSizeWriter writes into a buffer allocated up front from a ByteSize
// computation. Writing past the end, or leaving space unwritten, is a
// programming error and panics.
type FixedSizeWriter struct {
	bytes []byte
	wpos  int
}

func NewFixedSizeWriter(size int) *FixedSizeWriter {
	return &FixedSizeWriter{
		bytes: make([]byte, size),
	}
}

// NewFixedSizeWriterAt wraps an existing buffer, starting to write at offset.
// It lets callers reserve room for a frame header in front of the payload.
func NewFixedSizeWriterAt(buf []byte, offset int) *FixedSizeWriter {
	return &FixedSizeWriter{
		bytes: buf,
		wpos:  offset,
	}
}

func (w *FixedSizeWriter) Next(n int) []byte {
	if w.wpos+n > len(w.bytes) {
		panic(fmt.Sprintf("not enough space, need %d bytes but only %d available", n, len(w.bytes)-w.wpos))
	}
	slice := w.bytes[w.wpos : w.wpos+n]
	w.wpos += n
	return slice
}

func (w *FixedSizeWriter) Len() int {
	return w.wpos
}

func (w *FixedSizeWriter) Bytes() []byte {
	if w.wpos != len(w.bytes) {
		panic(fmt.Sprintf("leftover space, missing %d bytes", len(w.bytes)-w.wpos))
	}
	return w.bytes[:w.wpos]
}
