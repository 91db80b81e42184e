package serialize

import (
	"fmt"
)

type Reader struct {
	bytes []byte
	rpos  int
}

func NewReader(data []byte) *Reader {
	return &Reader{
		bytes: data,
	}
}

// NewReaderAt starts reading at offset.
func NewReaderAt(data []byte, offset int) *Reader {
	if offset > len(data) {
		offset = len(data)
	}
	return &Reader{
		bytes: data,
		rpos:  offset,
	}
}

// Read returns the next n bytes without copying them.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 || n > len(r.bytes)-r.rpos {
		return nil, fmt.Errorf("reader does not contain enough data, num bytes available: %d, num bytes needed: %d", len(r.bytes)-r.rpos, n)
	}
	bs := r.bytes[r.rpos : r.rpos+n]
	r.rpos += n
	return bs, nil
}

// Offset is the number of bytes consumed from the start of the buffer.
func (r *Reader) Offset() int {
	return r.rpos
}

func (r *Reader) Remaining() int {
	return len(r.bytes) - r.rpos
}
