// Package vocab implements the bidirectional surface<->id vocabulary:
// dense ids from 1, a reserved EOS entry at id 2,
// insert-on-lookup-by-surface but never insert-on-lookup-by-id, and KV
// persistence under a caller-supplied namespace.
package vocab

import (
	"encoding/binary"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sapt-mt/sapt/internal/kvstore"
	"github.com/sapt-mt/sapt/internal/saptid"
)

// Reserved token ids, shared with the corpus/tree packages.
const (
	Invalid uint32 = 0
	EOS     uint32 = 2
	UNK     uint32 = 3
)

const bosSurface = "<s>"
const eosSurface = "</s>"
const unkSurface = "<unk>"

// cacheSize bounds the reverse (id -> surface) LRU consulted before the
// byID map on hot lookups; every entry stays in memory after Load, so a
// miss falls back to the map, not to the KV store.
const cacheSize = 4096

// Vocab is a bidirectional, persistable surface<->id mapping.
type Vocab struct {
	mu      sync.RWMutex
	byID    map[uint32]string
	bySurf  map[string]uint32
	nextID  uint32
	surfLRU *lru.Cache[uint32, string]
}

// New returns an empty vocabulary pre-seeded with the reserved entries.
func New() *Vocab {
	v := &Vocab{
		byID:   make(map[uint32]string),
		bySurf: make(map[string]uint32),
		nextID: 1,
	}
	v.surfLRU, _ = lru.New[uint32, string](cacheSize)
	v.seedReserved()
	return v
}

// seedReserved pre-assigns ids 1-3 so that the dense-from-1 invariant
// and the EOS-at-2/UNK-at-3 reservation both hold from the very first
// insert: id 1 has to be occupied by something for id 2 to be reachable
// without a gap, so it goes to the conventional begin-of-sentence
// marker paired with "</s>".
func (v *Vocab) seedReserved() {
	v.insertRaw(1, bosSurface)
	v.insertRaw(EOS, eosSurface)
	v.insertRaw(UNK, unkSurface)
	v.nextID = 4
}

func (v *Vocab) insertRaw(id uint32, surface string) {
	v.byID[id] = surface
	v.bySurf[surface] = id
}

// InsertOrLookup returns the id for surface, inserting a new dense id
// if it is not already present.
func (v *Vocab) InsertOrLookup(surface string) uint32 {
	v.mu.RLock()
	if id, ok := v.bySurf[surface]; ok {
		v.mu.RUnlock()
		return id
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.bySurf[surface]; ok {
		return id
	}
	id := v.nextID
	v.nextID++
	v.insertRaw(id, surface)
	v.surfLRU.Add(id, surface)
	return id
}

// LookupID returns the id for surface, failing with NotFound if absent.
func (v *Vocab) LookupID(surface string) (uint32, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, ok := v.bySurf[surface]
	if !ok {
		return 0, saptid.Newf(saptid.KindNotFound, "surface %q not in vocabulary", surface)
	}
	return id, nil
}

// LookupSurface returns the surface for id, failing with NotFound if
// unknown. It never inserts.
func (v *Vocab) LookupSurface(id uint32) (string, error) {
	if s, ok := v.surfLRU.Get(id); ok {
		return s, nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.byID[id]
	if !ok {
		return "", saptid.Newf(saptid.KindNotFound, "id %d not in vocabulary", id)
	}
	v.surfLRU.Add(id, s)
	return s, nil
}

// Size returns the number of entries, including the reserved ones.
func (v *Vocab) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.byID)
}

// Persist stores every (id, surface) pair under ns, keyed
// "vid_<id>" -> surface and "srf_<surface>" -> id.
func (v *Vocab) Persist(ns *kvstore.Namespace) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	batch := ns.NewBatch()
	for id, surface := range v.byID {
		batch.Put(vidKey(id), []byte(surface))
		idBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(idBytes, id)
		batch.Put(srfKey(surface), idBytes)
	}
	return batch.Commit()
}

// Load reconstructs a Vocab from the id-keyed prefix under ns, scanning
// "vid_" entries and rebuilding both directions. An empty namespace
// yields a fresh vocabulary with only the reserved entries.
func Load(ns *kvstore.Namespace) (*Vocab, error) {
	v := New()
	err := ns.ScanPrefix([]byte("vid_"), func(key, value []byte) error {
		id, err := parseVidKey(key)
		if err != nil {
			return err
		}
		surface := string(value)
		v.mu.Lock()
		v.insertRaw(id, surface)
		if id >= v.nextID {
			v.nextID = id + 1
		}
		v.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func vidKey(id uint32) []byte {
	b := make([]byte, 4+4)
	copy(b, "vid_")
	binary.BigEndian.PutUint32(b[4:], id) // big-endian so lexicographic scan order == numeric id order
	return b
}

func srfKey(surface string) []byte {
	b := make([]byte, 0, 4+len(surface))
	b = append(b, "srf_"...)
	b = append(b, surface...)
	return b
}

func parseVidKey(key []byte) (uint32, error) {
	if len(key) != 4+4 || string(key[:4]) != "vid_" {
		return 0, saptid.Newf(saptid.KindCorruption, "malformed vocab key %q", key)
	}
	return binary.BigEndian.Uint32(key[4:]), nil
}
