package suffixindex

import (
	"sort"
	"sync/atomic"
)

// sumEntry is one child edge: its key token, its child node, the cached
// size of the subtree rooted at that child, and the partial sum of the
// sizes of its lexicographically earlier siblings.
type sumEntry struct {
	key   Token
	size  uint32
	left  uint32
	child *node
}

// orderedSumMap is a sorted-by-key list of child edges, each carrying
// its subtree's cached size and the running partial sum of earlier
// siblings, so random access by rank can binary-search the partial sums
// instead of visiting every child.
//
// The entry list is held behind an atomic pointer; every mutation
// (insert, addSize) builds a fresh slice and republishes it with a
// release-store, so a concurrent reader's find/each/keys/childForRank
// acquire-loads either the slice from before a mutation or the
// fully-built slice from after it, never one torn mid-append or
// mid-size-update.
type orderedSumMap struct {
	entries atomic.Pointer[[]sumEntry]
}

func newOrderedSumMap() *orderedSumMap {
	m := &orderedSumMap{}
	empty := []sumEntry(nil)
	m.entries.Store(&empty)
	return m
}

func (m *orderedSumMap) load() []sumEntry {
	p := m.entries.Load()
	if p == nil {
		return nil
	}
	return *p
}

func indexOf(entries []sumEntry, key Token) (int, bool) {
	i := sort.Search(len(entries), func(i int) bool { return entries[i].key >= key })
	if i < len(entries) && entries[i].key == key {
		return i, true
	}
	return i, false
}

// find returns the child keyed by key, if present.
func (m *orderedSumMap) find(key Token) (*node, bool) {
	entries := m.load()
	i, ok := indexOf(entries, key)
	if !ok {
		return nil, false
	}
	return entries[i].child, true
}

// insert adds a new child edge keyed by key, starting at size 0, or
// replaces the child already installed at an existing key. The caller
// is expected to follow a fresh insert with addSize once the child's
// initial contents are known.
func (m *orderedSumMap) insert(key Token, child *node) {
	entries := m.load()
	i, ok := indexOf(entries, key)
	if ok {
		next := make([]sumEntry, len(entries))
		copy(next, entries)
		next[i].child = child
		m.entries.Store(&next)
		return
	}
	next := make([]sumEntry, len(entries)+1)
	copy(next, entries[:i])
	next[i] = sumEntry{key: key, child: child}
	if i > 0 {
		next[i].left = entries[i-1].left + entries[i-1].size
	}
	copy(next[i+1:], entries[i:])
	m.entries.Store(&next)
}

// addSize adjusts the cached subtree size recorded for key's edge and
// the partial sums of every later sibling. Called deepest-first during
// insertion so a concurrent reader never observes a parent claiming
// more positions than its children collectively hold.
func (m *orderedSumMap) addSize(key Token, delta uint32) {
	entries := m.load()
	i, ok := indexOf(entries, key)
	if !ok {
		return
	}
	next := make([]sumEntry, len(entries))
	copy(next, entries)
	next[i].size += delta
	for j := i + 1; j < len(next); j++ {
		next[j].left += delta
	}
	m.entries.Store(&next)
}

// total returns the sum of every child's recorded size.
func (m *orderedSumMap) total() uint32 {
	entries := m.load()
	if len(entries) == 0 {
		return 0
	}
	last := entries[len(entries)-1]
	return last.left + last.size
}

// childForRank locates the child covering global rank r among this
// map's children (0 <= r < total()) by binary search over the partial
// sums (upper bound minus one), and returns the rank local to that
// child.
func (m *orderedSumMap) childForRank(r uint32) (*node, uint32, bool) {
	entries := m.load()
	i := sort.Search(len(entries), func(i int) bool { return entries[i].left > r }) - 1
	if i < 0 {
		return nil, 0, false
	}
	e := entries[i]
	if r >= e.left+e.size {
		return nil, 0, false
	}
	return e.child, r - e.left, true
}

// each visits every child edge in ascending key order, over a single
// consistent snapshot of the entry list.
func (m *orderedSumMap) each(fn func(key Token, child *node)) {
	for _, e := range m.load() {
		fn(e.key, e.child)
	}
}

// keys returns the distinct child token ids in ascending order, used
// by Span's frontier iteration.
func (m *orderedSumMap) keys() []Token {
	entries := m.load()
	out := make([]Token, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out
}
