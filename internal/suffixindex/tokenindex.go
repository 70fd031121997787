package suffixindex

import (
	"encoding/binary"
	"errors"

	"github.com/sapt-mt/sapt/internal/bitext/streamversions"
	"github.com/sapt-mt/sapt/internal/kvstore"
	"github.com/sapt-mt/sapt/internal/saptid"
)

// defaultMaxLeafSize matches the original sto/sapt default leaf array
// size budget K.
const defaultMaxLeafSize = 100000

// TokenIndex is a single hybrid suffix-trie/suffix-array rooted at one
// node, scoped to one (side, scope) pair within a bitext, e.g.
// target-language, domain "europarl". It also carries its own stream
// versions: the highest update id this particular index has absorbed,
// persisted alongside its tree so the bitext can compute the
// elementwise minimum across every sub-component on reopen.
type TokenIndex struct {
	src         TokenSource
	maxLeafSize int
	root        *node
	streams     *streamversions.StreamVersions
}

// New returns an empty Token Index reading tokens from src. A
// maxLeafSize of 0 or less selects the default budget K.
func New(src TokenSource, maxLeafSize int) *TokenIndex {
	if maxLeafSize <= 0 {
		maxLeafSize = defaultMaxLeafSize
	}
	return &TokenIndex{src: src, maxLeafSize: maxLeafSize, root: newLeaf(false), streams: streamversions.New()}
}

// Streams returns this index's own Stream Versions tracker.
func (t *TokenIndex) Streams() *streamversions.StreamVersions { return t.streams }

// Advance records that update has been absorbed into this index (a
// monotonic max per stream; out-of-order calls are a no-op).
func (t *TokenIndex) Advance(update streamversions.UpdateID) { t.streams.Update(update) }

// AddSentence indexes every real-token starting offset of the
// sentence sid (offsets 0 through length-1). The implicit EOS
// continuation past the last real token is never itself a separately
// indexed starting position — it only ever appears as the terminal
// token encountered while walking deeper into one of these real
// positions, which is how the EOS-keyed tree edges arise. See
// DESIGN.md for the reasoning.
func (t *TokenIndex) AddSentence(sid uint32, length uint32) {
	for offset := uint32(0); offset < length; offset++ {
		t.root.insertOne(t.src, 0, Position{Sid: sid, Offset: offset}, t.maxLeafSize)
	}
}

// Size returns the total number of indexed positions.
func (t *TokenIndex) Size() uint32 { return t.root.size() }

// Span returns a lookup cursor over the whole index.
func (t *TokenIndex) Span() Span { return Span{src: t.src, depth: 0, node: t.root} }

// Merge unions other's positions into t, deduping any position already
// present. Used both to apply a flushed write buffer and to replay a
// crash-recovery log idempotently.
func (t *TokenIndex) Merge(other *TokenIndex) {
	t.root.mergeNode(t.src, other.root, 0, t.maxLeafSize)
	if other.streams != nil {
		t.streams = streamversions.Union(t.streams, other.streams)
	}
}

const (
	leafKeyPrefix     = "arr_"
	internalKeyPrefix = "int_"
)

// appendToken extends a tree path with one more edge token, big-endian
// so path bytes sort in token order (matching the KV store's own key
// ordering, a minor convenience for prefix scans/debugging).
func appendToken(path []byte, tok Token) []byte {
	out := make([]byte, len(path)+4)
	copy(out, path)
	binary.BigEndian.PutUint32(out[len(path):], tok)
	return out
}

func encodePositions(arr []Position) []byte {
	buf := make([]byte, len(arr)*8)
	for i, p := range arr {
		binary.LittleEndian.PutUint32(buf[i*8:], p.Sid)
		binary.LittleEndian.PutUint32(buf[i*8+4:], p.Offset)
	}
	return buf
}

func decodePositions(buf []byte) ([]Position, error) {
	if len(buf)%8 != 0 {
		return nil, saptid.Newf(saptid.KindCorruption, "position array length %d not a multiple of 8", len(buf))
	}
	out := make([]Position, len(buf)/8)
	for i := range out {
		out[i] = Position{
			Sid:    binary.LittleEndian.Uint32(buf[i*8:]),
			Offset: binary.LittleEndian.Uint32(buf[i*8+4:]),
		}
	}
	return out, nil
}

func encodeTokenIDs(ids []Token) []byte {
	buf := make([]byte, len(ids)*4)
	for i, id := range ids {
		binary.LittleEndian.PutUint32(buf[i*4:], id)
	}
	return buf
}

func decodeTokenIDs(buf []byte) ([]Token, error) {
	if len(buf)%4 != 0 {
		return nil, saptid.Newf(saptid.KindCorruption, "child id list length %d not a multiple of 4", len(buf))
	}
	out := make([]Token, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out, nil
}

// Write serialises the whole tree under ns: leaves store their packed
// position array under an "arr_<path>" key, internal nodes store the
// ordered list of child token ids under an "int_<path>" key. Nodes
// with no positions and no children are skipped.
func (t *TokenIndex) Write(ns *kvstore.Namespace) error {
	batch := ns.NewBatch()
	writeNode(batch, nil, t.root)
	if err := batch.Commit(); err != nil {
		return err
	}
	return t.streams.Persist(ns)
}

func writeNode(batch *kvstore.Batch, path []byte, n *node) {
	if n.isLeaf() {
		arr := n.array()
		if len(arr) == 0 {
			return
		}
		batch.Put(append([]byte(leafKeyPrefix), path...), encodePositions(arr))
		return
	}
	kids := n.children()
	ids := kids.keys()
	if len(ids) == 0 {
		return
	}
	batch.Put(append([]byte(internalKeyPrefix), path...), encodeTokenIDs(ids))
	// A leaf that split since the last Write leaves its old array record
	// behind; drop it so the store holds exactly one role per path.
	batch.Delete(append([]byte(leafKeyPrefix), path...))
	kids.each(func(key Token, child *node) {
		writeNode(batch, appendToken(path, key), child)
	})
}

// Load reconstructs a TokenIndex from ns, top-down: at each path it
// probes for an internal-node entry first, then a leaf entry, and
// treats an absence as a leaf to create on first insert.
func Load(ns *kvstore.Namespace, src TokenSource, maxLeafSize int) (*TokenIndex, error) {
	return LoadWithStats(ns, src, maxLeafSize, nil)
}

// LoadWithStats is Load, additionally tallying leaf/internal node reads
// (and their byte cost) into stats. Passing a nil stats behaves exactly
// like Load.
func LoadWithStats(ns *kvstore.Namespace, src TokenSource, maxLeafSize int, stats *Stats) (*TokenIndex, error) {
	root, err := loadNode(ns, nil, src, stats)
	if err != nil {
		return nil, err
	}
	if maxLeafSize <= 0 {
		maxLeafSize = defaultMaxLeafSize
	}
	if root == nil {
		root = newLeaf(false)
	}
	streams, err := streamversions.Load(ns)
	if err != nil {
		return nil, err
	}
	return &TokenIndex{src: src, maxLeafSize: maxLeafSize, root: root, streams: streams}, nil
}

func viaEOSFromPath(path []byte) bool {
	if len(path) < 4 {
		return false
	}
	last := binary.BigEndian.Uint32(path[len(path)-4:])
	return last == EOS
}

func loadNode(ns *kvstore.Namespace, path []byte, src TokenSource, stats *Stats) (*node, error) {
	if raw, err := ns.Get(append([]byte(internalKeyPrefix), path...)); err == nil {
		stats.recordInternal(len(raw))
		ids, err := decodeTokenIDs(raw)
		if err != nil {
			return nil, err
		}
		n := newLeaf(viaEOSFromPath(path))
		n.leaf.Store(false)
		n.arr.Store(nil)
		kids := newOrderedSumMap()
		for _, id := range ids {
			child, err := loadNode(ns, appendToken(path, id), src, stats)
			if err != nil {
				return nil, err
			}
			if child == nil {
				child = newLeaf(id == EOS)
			}
			kids.insert(id, child)
			kids.addSize(id, child.size())
		}
		n.kids.Store(kids)
		return n, nil
	} else if !errors.Is(err, saptid.ErrNotFound) {
		return nil, err
	}

	if raw, err := ns.Get(append([]byte(leafKeyPrefix), path...)); err == nil {
		stats.recordLeaf(len(raw))
		positions, err := decodePositions(raw)
		if err != nil {
			return nil, err
		}
		n := newLeaf(viaEOSFromPath(path))
		n.arr.Store(&positions)
		return n, nil
	} else if !errors.Is(err, saptid.ErrNotFound) {
		return nil, err
	}

	return nil, nil
}
