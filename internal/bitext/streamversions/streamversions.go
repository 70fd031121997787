// Package streamversions tracks, per update stream, the highest
// sequence number applied so far, with the min/union reductions the
// bitext needs to compute its effective version across sub-components.
package streamversions

import (
	"encoding/binary"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/sapt-mt/sapt/internal/kvstore"
)

// UpdateID is a (stream, sequence) pair. Sequence numbers start at 1
// within a stream; 0 means "never applied".
type UpdateID struct {
	Stream uint16
	Seq    uint64
}

// StreamVersions tracks, per 16-bit stream tag, the highest sequence
// number applied so far. A bitset records which stream ids have ever
// been touched, so Min/Union only need to walk streams actually in use
// instead of the full 16-bit tag space.
type StreamVersions struct {
	mu      sync.RWMutex
	present *bitset.BitSet
	seq     map[uint16]uint64
}

// New returns an empty StreamVersions (every stream at high-water mark
// 0, i.e. "never applied").
func New() *StreamVersions {
	return &StreamVersions{
		present: bitset.New(1 << 16),
		seq:     make(map[uint16]uint64),
	}
}

// At returns the stored sequence number for stream, or 0 if untouched.
func (s *StreamVersions) At(stream uint16) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq[stream]
}

// Update performs a monotonic max: if update's sequence is higher than
// the stream's current mark, it becomes the new mark. Applying an
// out-of-order (not-newer) update is a silent no-op.
func (s *StreamVersions) Update(update UpdateID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if update.Seq > s.seq[update.Stream] {
		s.seq[update.Stream] = update.Seq
		s.present.Set(uint(update.Stream))
	}
}

// Min returns, for every stream present in either a or b, the smaller
// of the two marks (streams missing from one side are treated as 0).
// This is the reduction behind the bitext's effective version.
func Min(a, b *StreamVersions) *StreamVersions {
	out := New()
	a.mu.RLock()
	b.mu.RLock()
	defer a.mu.RUnlock()
	defer b.mu.RUnlock()

	union := a.present.Union(b.present)
	for i, ok := union.NextSet(0); ok; i, ok = union.NextSet(i + 1) {
		stream := uint16(i)
		av, bv := a.seq[stream], b.seq[stream]
		m := av
		if bv < m {
			m = bv
		}
		out.seq[stream] = m
		out.present.Set(i)
	}
	return out
}

// Union returns, for every stream present in either a or b, the larger
// of the two marks.
func Union(a, b *StreamVersions) *StreamVersions {
	out := New()
	a.mu.RLock()
	b.mu.RLock()
	defer a.mu.RUnlock()
	defer b.mu.RUnlock()

	union := a.present.Union(b.present)
	for i, ok := union.NextSet(0); ok; i, ok = union.NextSet(i + 1) {
		stream := uint16(i)
		av, bv := a.seq[stream], b.seq[stream]
		m := av
		if bv > m {
			m = bv
		}
		out.seq[stream] = m
		out.present.Set(i)
	}
	return out
}

// streamKey builds the KV key "seqn<stream-id>" (big-endian stream
// id); the scope portion is supplied by the caller's namespace.
func streamKey(stream uint16) []byte {
	b := make([]byte, 6)
	copy(b, "seqn")
	binary.BigEndian.PutUint16(b[4:], stream)
	return b
}

// Persist writes every tracked stream's sequence number under ns.
func (s *StreamVersions) Persist(ns *kvstore.Namespace) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch := ns.NewBatch()
	for stream, seq := range s.seq {
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, seq)
		batch.Put(streamKey(stream), val)
	}
	return batch.Commit()
}

// Load reconstructs a StreamVersions by scanning the "seqn" prefix
// under ns.
func Load(ns *kvstore.Namespace) (*StreamVersions, error) {
	s := New()
	err := ns.ScanPrefix([]byte("seqn"), func(key, value []byte) error {
		if len(key) != 6 || len(value) != 8 {
			return nil
		}
		stream := binary.BigEndian.Uint16(key[4:6])
		seq := binary.BigEndian.Uint64(value)
		s.seq[stream] = seq
		s.present.Set(uint(stream))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
