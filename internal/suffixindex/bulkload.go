package suffixindex

import (
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sapt-mt/sapt/internal/bitext/streamversions"
)

// BulkBuild constructs a TokenIndex over every sentence in [0,
// sentenceCount) in one pass, used to bulk-ingest an already-complete
// legacy corpus. It builds the root's first-level grouping
// single-threaded, then hands each first-token subtree to a worker pool
// bounded by workers (<= 0 selects 1, i.e. fully sequential) via
// errgroup, since those subtrees share no data and can split and sort
// independently.
func BulkBuild(src TokenSource, sentenceCount uint32, maxLeafSize, workers int) *TokenIndex {
	if maxLeafSize <= 0 {
		maxLeafSize = defaultMaxLeafSize
	}
	if workers <= 0 {
		workers = 1
	}

	byFirstToken := make(map[Token][]Position)
	for sid := uint32(0); sid < sentenceCount; sid++ {
		length := src.Length(sid)
		for offset := uint32(0); offset < length; offset++ {
			p := Position{Sid: sid, Offset: offset}
			key := keyAtDepth(src, p, 0)
			byFirstToken[key] = append(byFirstToken[key], p)
		}
	}

	keys := make([]Token, 0, len(byFirstToken))
	for k := range byFirstToken {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	children := make([]*node, len(keys))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			children[i] = buildSubtree(src, byFirstToken[key], 1, maxLeafSize, key == EOS)
			return nil
		})
	}
	_ = g.Wait() // buildSubtree never returns an error; Wait only joins goroutines

	root := newLeaf(false)
	root.leaf.Store(false)
	root.arr.Store(nil)
	kids := newOrderedSumMap()
	for i, key := range keys {
		kids.insert(key, children[i])
		kids.addSize(key, children[i].size())
	}
	root.kids.Store(kids)
	return &TokenIndex{src: src, maxLeafSize: maxLeafSize, root: root, streams: streamversions.New()}
}

// buildSubtree recursively sorts and, if needed, splits one disjoint
// slice of positions that already share a common prefix of length
// depth, sequentially within the calling goroutine (the outer caller is
// what parallelises across independent top-level subtrees).
func buildSubtree(src TokenSource, positions []Position, depth uint32, maxLeafSize int, viaEOS bool) *node {
	sort.Slice(positions, func(i, j int) bool { return comparePositions(src, positions[i], positions[j]) < 0 })

	if viaEOS || len(positions) <= maxLeafSize {
		leaf := newLeaf(viaEOS)
		leaf.arr.Store(&positions)
		return leaf
	}

	groups := make(map[Token][]Position, 8)
	order := make([]Token, 0, 8)
	for _, p := range positions {
		key := keyAtDepth(src, p, depth)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	n := newLeaf(viaEOS)
	n.leaf.Store(false)
	n.arr.Store(nil)
	kids := newOrderedSumMap()
	for _, key := range order {
		child := buildSubtree(src, groups[key], depth+1, maxLeafSize, key == EOS)
		kids.insert(key, child)
		kids.addSize(key, child.size())
	}
	n.kids.Store(kids)
	return n
}
