package suffixindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// propertyCorpus is a small corpus with enough token repetition to
// force multi-level splits at low K.
func propertyCorpus() *fakeSource {
	return &fakeSource{sentences: [][]Token{
		{the, dog, bit, the, cat, on, the, mat},
		{the, dog, bit},
		{the, cat, on, the, mat},
		{dog, bit, dog},
		{the},
		{on, the, mat, on, the, mat},
	}}
}

// suffixAt returns the first k tokens of the suffix starting at p, the
// implicit EOS included at the sentence end.
func suffixAt(src *fakeSource, p Position, k uint32) []Token {
	out := make([]Token, 0, k)
	for d := uint32(0); d < k; d++ {
		if p.Offset+d > src.Length(p.Sid) {
			break
		}
		out = append(out, src.TokenAt(p.Sid, p.Offset+d))
	}
	return out
}

// bruteOccurrences counts the positions whose suffix starts with query,
// scanning every sentence directly.
func bruteOccurrences(src *fakeSource, query []Token) []Position {
	var out []Position
	for sid := range src.sentences {
		length := src.Length(uint32(sid))
		for offset := uint32(0); offset < length; offset++ {
			p := Position{Sid: uint32(sid), Offset: offset}
			match := true
			for d, tok := range query {
				if p.Offset+uint32(d) > length {
					match = false
					break
				}
				if src.TokenAt(p.Sid, p.Offset+uint32(d)) != tok {
					match = false
					break
				}
			}
			if match {
				out = append(out, p)
			}
		}
	}
	return out
}

func allQueries(src *fakeSource, maxLen int) [][]Token {
	vocabTokens := []Token{bit, cat, dog, mat, on, the, EOS}
	queries := [][]Token{{}}
	frontier := [][]Token{{}}
	for len(frontier[0]) < maxLen {
		var next [][]Token
		for _, q := range frontier {
			for _, tok := range vocabTokens {
				extended := append(append([]Token(nil), q...), tok)
				next = append(next, extended)
				queries = append(queries, extended)
			}
		}
		frontier = next
	}
	return queries
}

func TestNarrowingSoundAndComplete(t *testing.T) {
	src := propertyCorpus()
	for _, k := range []int{0, 3, 5} {
		idx := New(src, k)
		src.addAll(idx)
		for _, query := range allQueries(src, 3) {
			span := idx.Span()
			for _, tok := range query {
				span = span.Narrow(tok)
			}
			want := bruteOccurrences(src, query)
			require.Equal(t, uint32(len(want)), span.Size(),
				"K=%d query=%v: span size must equal occurrence count", k, query)
			for _, p := range span.Positions() {
				got := suffixAt(src, p, uint32(len(query)))
				require.Equal(t, query, got,
					"K=%d: position %v does not start with query %v", k, p, query)
			}
		}
	}
}

func TestSpanPositionsSorted(t *testing.T) {
	src := propertyCorpus()
	for _, k := range []int{0, 3, 5} {
		idx := New(src, k)
		src.addAll(idx)
		for _, query := range allQueries(src, 2) {
			span := idx.Span()
			for _, tok := range query {
				span = span.Narrow(tok)
			}
			positions := span.Positions()
			for i := 1; i < len(positions); i++ {
				require.Negative(t, comparePositions(src, positions[i-1], positions[i]),
					"K=%d query=%v: positions %v and %v out of order", k, query, positions[i-1], positions[i])
			}
		}
	}
}

func TestSpanRandomAccessMatchesIteration(t *testing.T) {
	src := propertyCorpus()
	idx := New(src, 3)
	src.addAll(idx)

	span := idx.Span()
	positions := span.Positions()
	require.Equal(t, int(span.Size()), len(positions))
	for rank, want := range positions {
		got, ok := span.At(uint32(rank))
		require.True(t, ok)
		assert.Equal(t, want, got, "rank %d", rank)
	}
	_, ok := span.At(span.Size())
	assert.False(t, ok)
}

// checkSums walks the tree verifying that every internal node's
// recorded size equals the sum of its children's recorded sizes, that
// each child's recorded size matches its subtree's true count, and that
// each child's left-sibling partial sum plus its own size equals its
// right neighbour's partial sum.
func checkSums(t *testing.T, n *node) uint32 {
	t.Helper()
	if n.isLeaf() {
		return uint32(len(n.array()))
	}
	entries := n.children().load()
	var total uint32
	for i, e := range entries {
		childTotal := checkSums(t, e.child)
		require.Equal(t, childTotal, e.size, "recorded size for child %d", e.key)
		require.Equal(t, total, e.left, "partial sum for child %d", e.key)
		if i+1 < len(entries) {
			require.Equal(t, e.left+e.size, entries[i+1].left,
				"child %d's partial sum plus size must equal its right neighbour's partial sum", e.key)
		}
		total += childTotal
	}
	require.Equal(t, total, n.size())
	return total
}

func TestPartialSumsConsistent(t *testing.T) {
	src := propertyCorpus()
	idx := New(src, 3)
	src.addAll(idx)
	checkSums(t, idx.root)
}

func TestEOSLeafGrowsPastBudgetWithoutSplitting(t *testing.T) {
	// Many single-token sentences: everything funnels into one EOS-keyed
	// leaf that would exceed K many times over if it were splittable.
	var sentences [][]Token
	for i := 0; i < 20; i++ {
		sentences = append(sentences, []Token{the})
	}
	src := &fakeSource{sentences: sentences}
	idx := New(src, 2)
	src.addAll(idx)

	span := idx.Span().Narrow(the).Narrow(EOS)
	assert.True(t, span.InLeaf(), "a leaf reached via EOS must never split")
	assert.Equal(t, uint32(20), span.Size())
}

func TestMergeCombinesDisjointTrees(t *testing.T) {
	src := propertyCorpus()
	// Low K on both sides so the merge exercises every structural case:
	// leaf-into-leaf, internal-into-internal, and leaf-into-internal.
	target := New(src, 3)
	for sid := 0; sid < 3; sid++ {
		target.AddSentence(uint32(sid), uint32(len(src.sentences[sid])))
	}
	other := New(src, 3)
	for sid := 3; sid < len(src.sentences); sid++ {
		other.AddSentence(uint32(sid), uint32(len(src.sentences[sid])))
	}

	target.Merge(other)

	whole := New(src, 3)
	src.addAll(whole)
	require.Equal(t, whole.Size(), target.Size())
	checkSums(t, target.root)
	for _, tok := range []Token{bit, cat, dog, mat, on, the} {
		assert.ElementsMatch(t,
			whole.Span().Narrow(tok).Positions(),
			target.Span().Narrow(tok).Positions(), "bucket %d", tok)
	}
}

func TestMergeOverlappingTreesDeduplicates(t *testing.T) {
	src := propertyCorpus()
	target := New(src, 3)
	src.addAll(target)
	other := New(src, 3)
	for sid := 2; sid < len(src.sentences); sid++ {
		other.AddSentence(uint32(sid), uint32(len(src.sentences[sid])))
	}

	before := target.Size()
	target.Merge(other)
	assert.Equal(t, before, target.Size(), "re-merging already-indexed sentences must not grow the tree")
	checkSums(t, target.root)
}

func TestBulkBuildMatchesIncrementalPerBucket(t *testing.T) {
	src := propertyCorpus()
	incremental := New(src, 3)
	src.addAll(incremental)
	bulk := BulkBuild(src, uint32(len(src.sentences)), 3, 4)

	require.Equal(t, incremental.Size(), bulk.Size())
	// Variants only promise the same position set per prefix bucket,
	// not an identical sequence.
	for _, tok := range []Token{bit, cat, dog, mat, on, the} {
		want := incremental.Span().Narrow(tok).Positions()
		got := bulk.Span().Narrow(tok).Positions()
		assert.ElementsMatch(t, want, got, "bucket %d", tok)
	}
}
