// Package mmapio provides a read-only memory-mapped view over a file
// region (the "Mapped Segment" of the index design): page-aligned,
// tolerant of a zero-length file, and safe to Close multiple times.
package mmapio

import (
	"os"

	"github.com/blevesearch/mmap-go"

	"github.com/sapt-mt/sapt/internal/saptid"
)

// Segment is a read-only view over the bytes of an open file, backed by
// mmap when the file is non-empty. A zero-length file yields a Segment
// with Len() == 0 and a nil backing map, so callers never need to
// special-case empty corpora.
type Segment struct {
	data mmap.MMap // nil for a zero-length segment
	size int
}

// Open mmaps the full contents of the file at path for reading. The
// file is opened and closed internally; the mapping keeps its own
// reference to the underlying pages.
func Open(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Segment{}, nil
		}
		return nil, saptid.Wrap(saptid.KindIoFailure, err, "open mapped segment "+path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, saptid.Wrap(saptid.KindIoFailure, err, "stat mapped segment "+path)
	}
	if info.Size() == 0 {
		return &Segment{}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, saptid.Wrap(saptid.KindIoFailure, err, "mmap "+path)
	}
	return &Segment{data: m, size: len(m)}, nil
}

// Len returns the number of mapped bytes.
func (s *Segment) Len() int {
	if s == nil {
		return 0
	}
	return s.size
}

// Bytes returns the full mapped region. The caller must not retain it
// past Close.
func (s *Segment) Bytes() []byte {
	if s == nil || s.data == nil {
		return nil
	}
	return []byte(s.data)
}

// Slice returns data[off:off+n], bounds-checked against the mapped
// region.
func (s *Segment) Slice(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > s.Len() {
		return nil, saptid.Newf(saptid.KindInvariantViolation, "mapped segment slice [%d:%d] out of range (len %d)", off, off+n, s.Len())
	}
	if n == 0 {
		return nil, nil
	}
	return []byte(s.data[off : off+n]), nil
}

// Close releases the mapping. It is a no-op for a zero-length segment
// and safe to call more than once.
func (s *Segment) Close() error {
	if s == nil || s.data == nil {
		return nil
	}
	err := s.data.Unmap()
	s.data = nil
	if err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "unmap segment")
	}
	return nil
}
