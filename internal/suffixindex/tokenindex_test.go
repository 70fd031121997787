package suffixindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapt-mt/sapt/internal/kvstore"
)

// fakeSource is a fixed in-memory TokenSource over pre-tokenised
// sentences.
type fakeSource struct {
	sentences [][]Token
}

// Word ids for the "the dog bit the cat on the mat" fixtures. Their
// relative order (bit < cat < dog < mat < on < the) drives the expected
// suffix order below; they sit clear of the reserved EOS id.
const (
	bit Token = 10
	cat Token = 11
	dog Token = 12
	mat Token = 13
	on  Token = 14
	the Token = 15
)

func (f *fakeSource) TokenAt(sid, offset uint32) Token {
	s := f.sentences[sid]
	if offset == uint32(len(s)) {
		return EOS
	}
	return s[offset]
}

func (f *fakeSource) Length(sid uint32) uint32 { return uint32(len(f.sentences[sid])) }

func (f *fakeSource) addAll(idx *TokenIndex) {
	for sid, s := range f.sentences {
		idx.AddSentence(uint32(sid), uint32(len(s)))
	}
}

func TestSingleSentenceSuffixOrder(t *testing.T) {
	src := &fakeSource{sentences: [][]Token{{the, dog, bit, the, cat, on, the, mat}}}
	idx := New(src, 0)
	idx.AddSentence(0, 8)

	span := idx.Span()
	require.Equal(t, uint32(8), span.Size())
	want := []Position{
		{Sid: 0, Offset: 2}, {Sid: 0, Offset: 4}, {Sid: 0, Offset: 1}, {Sid: 0, Offset: 7},
		{Sid: 0, Offset: 5}, {Sid: 0, Offset: 3}, {Sid: 0, Offset: 0}, {Sid: 0, Offset: 6},
	}
	assert.Equal(t, want, span.Positions())
}

func TestRootSplitsIntoPerTokenChildren(t *testing.T) {
	src := &fakeSource{sentences: [][]Token{{the, dog, bit, the, cat, on, the, mat}}}
	idx := New(src, 7)
	idx.AddSentence(0, 8)

	span := idx.Span()
	assert.Equal(t, []Token{bit, cat, dog, mat, on, the}, span.ChildTokens())

	theSpan := span.Narrow(the)
	require.Equal(t, uint32(3), theSpan.Size())
	assert.Equal(t, []Position{{Sid: 0, Offset: 3}, {Sid: 0, Offset: 0}, {Sid: 0, Offset: 6}}, theSpan.Positions())
}

func TestSecondLevelSplitKeepsEOSChild(t *testing.T) {
	src := &fakeSource{sentences: [][]Token{
		{the, dog, bit, the, cat, on, the, mat},
		{the, dog, bit},
		{the},
	}}
	idx := New(src, 4)
	src.addAll(idx)

	theSpan := idx.Span().Narrow(the)
	require.False(t, theSpan.InLeaf(), "subtree under a frequent token must have split")
	assert.Equal(t, []Token{EOS, cat, dog, mat}, theSpan.ChildTokens())

	assert.Equal(t, []Position{{Sid: 2, Offset: 0}}, theSpan.Narrow(EOS).Positions())
	assert.Equal(t, []Position{{Sid: 1, Offset: 0}, {Sid: 0, Offset: 0}}, theSpan.Narrow(dog).Positions())
}

// Narrowing a query ending at a sentence's true end ("dog </s>") must
// match while the root is still one monolithic leaf, exactly as it does
// once the same prefix has split into an explicit EOS child.
func TestNarrowEOSOnUnsplitLeaf(t *testing.T) {
	src := &fakeSource{sentences: [][]Token{{the, dog}}}
	idx := New(src, 0) // default K: root stays a single leaf
	idx.AddSentence(0, 2)

	span := idx.Span().Narrow(the).Narrow(dog).Narrow(EOS)
	assert.Equal(t, []Position{{Sid: 0, Offset: 0}}, span.Positions())
}

func TestMergeDropsDuplicatePositions(t *testing.T) {
	src := &fakeSource{sentences: [][]Token{{the, dog, bit}}}
	persistent := New(src, 0)
	persistent.AddSentence(0, 3)
	before := persistent.Size()

	replay := New(src, 0)
	replay.AddSentence(0, 3)
	persistent.Merge(replay)

	assert.Equal(t, before, persistent.Size(), "re-merging already-present positions must not change size")
}

func TestSpanDepthAndTreeDepth(t *testing.T) {
	src := &fakeSource{sentences: [][]Token{
		{the, dog, bit, the, cat, on, the, mat},
		{the, dog, bit},
		{the},
	}}
	idx := New(src, 4)
	src.addAll(idx)

	span := idx.Span().Narrow(the).Narrow(dog)
	assert.Equal(t, uint32(2), span.Depth())
	require.True(t, span.InLeaf())
	treeDepth := span.TreeDepth()

	// In-leaf narrowing consumes tokens without descending tree edges.
	deeper := span.Narrow(bit)
	assert.Equal(t, uint32(3), deeper.Depth())
	assert.Equal(t, treeDepth, deeper.TreeDepth())
}

func TestFailedNarrowLeavesEmptySpan(t *testing.T) {
	src := &fakeSource{sentences: [][]Token{{the, dog}}}
	idx := New(src, 0)
	idx.AddSentence(0, 2)

	span := idx.Span().Narrow(cat)
	assert.True(t, span.Empty())
	assert.Equal(t, uint32(0), span.Size())
	assert.Equal(t, uint32(1), span.Depth(), "a failed narrow still counts its consumed token")
}

func TestWriteLoadRoundTrip(t *testing.T) {
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "index.bbolt"))
	require.NoError(t, err)
	defer store.Close()
	ns := store.Namespace("en|R|")

	src := &fakeSource{sentences: [][]Token{
		{the, dog, bit, the, cat, on, the, mat},
		{the, dog, bit},
		{the},
	}}
	idx := New(src, 4)
	src.addAll(idx)
	require.NoError(t, idx.Write(ns))

	loaded, err := Load(ns, src, 4)
	require.NoError(t, err)
	assert.Equal(t, idx.Size(), loaded.Size())
	assert.Equal(t, idx.Span().Positions(), loaded.Span().Positions())
	assert.Equal(t,
		idx.Span().Narrow(the).Narrow(dog).Positions(),
		loaded.Span().Narrow(the).Narrow(dog).Positions())
}

func TestWriteAfterSplitRemovesStaleLeafRecord(t *testing.T) {
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "index.bbolt"))
	require.NoError(t, err)
	defer store.Close()
	ns := store.Namespace("en|R|")

	src := &fakeSource{sentences: [][]Token{
		{the, dog, bit, the, cat, on, the, mat},
		{the, dog, bit},
		{the},
	}}
	idx := New(src, 100)
	idx.AddSentence(0, 8)
	require.NoError(t, idx.Write(ns)) // root persisted as a leaf

	idx2, err := Load(ns, src, 4)
	require.NoError(t, err)
	idx2.AddSentence(1, 3) // root already holds 8 > K=4, splits on the first insert
	idx2.AddSentence(2, 1)
	require.NoError(t, idx2.Write(ns))

	_, err = ns.Get([]byte("arr_"))
	assert.Error(t, err, "the pre-split root leaf record must be gone")

	loaded, err := Load(ns, src, 4)
	require.NoError(t, err)
	assert.Equal(t, idx2.Size(), loaded.Size())
}

func TestLoadTracksReadCounters(t *testing.T) {
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "index.bbolt"))
	require.NoError(t, err)
	defer store.Close()
	ns := store.Namespace("en|R|")

	src := &fakeSource{sentences: [][]Token{{the, dog, bit, the, cat, on, the, mat}}}
	idx := New(src, 7)
	idx.AddSentence(0, 8)
	require.NoError(t, idx.Write(ns))

	var stats Stats
	_, err = LoadWithStats(ns, src, 7, &stats)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.InternalReads())
	assert.Equal(t, uint64(6), stats.LeafReads())
	assert.NotZero(t, stats.BytesRead())
}
