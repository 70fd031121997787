package suffixindex

import "sync/atomic"

// Stats accumulates the read-path counters the original's DB.h called
// PerformanceCounters: how many leaf and internal node records a Load
// actually pulled from the KV store, and how many bytes they cost. It
// has no effect on behaviour. Only LoadWithStats fills it in; no CLI
// tool reports it.
type Stats struct {
	leafReads     atomic.Uint64
	internalReads atomic.Uint64
	bytesRead     atomic.Uint64
}

// LeafReads returns the number of leaf records read so far.
func (s *Stats) LeafReads() uint64 {
	if s == nil {
		return 0
	}
	return s.leafReads.Load()
}

// InternalReads returns the number of internal-node records read so far.
func (s *Stats) InternalReads() uint64 {
	if s == nil {
		return 0
	}
	return s.internalReads.Load()
}

// BytesRead returns the total bytes of KV value data read so far.
func (s *Stats) BytesRead() uint64 {
	if s == nil {
		return 0
	}
	return s.bytesRead.Load()
}

func (s *Stats) recordLeaf(n int) {
	if s == nil {
		return
	}
	s.leafReads.Add(1)
	s.bytesRead.Add(uint64(n))
}

func (s *Stats) recordInternal(n int) {
	if s == nil {
		return
	}
	s.internalReads.Add(1)
	s.bytesRead.Add(uint64(n))
}
