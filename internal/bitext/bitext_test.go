package bitext

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapt-mt/sapt/internal/corpus"
)

func TestDomainInsertSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "corpus.")

	bt, err := Open(base, "l1", "l2", 0, false)
	require.NoError(t, err)

	update := corpus.UpdateID{Stream: 0xFFFF, Seq: 1}
	src := []corpus.Token{14, 15}
	trg := []corpus.Token{24, 25, 26}
	align := []corpus.AlignPair{{Src: 0, Trg: 0}, {Src: 1, Trg: 2}}

	require.NoError(t, bt.Add(update, "domain-1", src, trg, align))
	require.Equal(t, uint32(1), bt.AlignmentSize())
	require.NoError(t, bt.Close())

	bt2, err := Open(base, "l1", "l2", 0, false)
	require.NoError(t, err)
	require.Equal(t, uint32(1), bt2.AlignmentSize(), "reopen must not lose or duplicate the update")

	update2 := corpus.UpdateID{Stream: 0xFFFF, Seq: 2}
	require.NoError(t, bt2.Add(update2, "domain-1", src, trg, align))
	require.NoError(t, bt2.Close())

	bt3, err := Open(base, "l1", "l2", 0, false)
	require.NoError(t, err)
	defer bt3.Close()
	assert.Equal(t, uint32(2), bt3.AlignmentSize())
}

func TestIdempotentReplayIsANoOp(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "corpus.")

	bt, err := Open(base, "l1", "l2", 0, false)
	require.NoError(t, err)
	defer bt.Close()

	update := corpus.UpdateID{Stream: 1, Seq: 1}
	src := []corpus.Token{14, 15}
	trg := []corpus.Token{24, 25}
	align := []corpus.AlignPair{{Src: 0, Trg: 0}}

	require.NoError(t, bt.Add(update, "default", src, trg, align))
	sizeAfterFirst := bt.Size()
	span, err := bt.Span("l1", GlobalDomain)
	require.NoError(t, err)
	indexSizeAfterFirst := span.Size()

	// Re-applying the same update id must be a silent no-op everywhere.
	require.NoError(t, bt.Add(update, "default", src, trg, align))
	assert.Equal(t, sizeAfterFirst, bt.Size())
	span, err = bt.Span("l1", GlobalDomain)
	require.NoError(t, err)
	assert.Equal(t, indexSizeAfterFirst, span.Size())
}

func TestReplayAfterReopenIsANoOp(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "corpus.")

	update := corpus.UpdateID{Stream: 3, Seq: 1}
	src := []corpus.Token{14, 15}
	trg := []corpus.Token{24, 25}
	align := []corpus.AlignPair{{Src: 0, Trg: 0}}

	bt, err := Open(base, "l1", "l2", 0, false)
	require.NoError(t, err)
	require.NoError(t, bt.Add(update, "default", src, trg, align))
	require.NoError(t, bt.Close())

	// A producer replaying its backlog after a restart re-sends updates
	// at or below the persisted high-water mark.
	bt2, err := Open(base, "l1", "l2", 0, false)
	require.NoError(t, err)
	defer bt2.Close()
	require.NoError(t, bt2.Add(update, "default", src, trg, align))
	assert.Equal(t, uint32(1), bt2.Size())
	assert.Equal(t, uint32(1), bt2.AlignmentSize())
}

func TestSpanOverDomainAndGlobalScopes(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "corpus.")

	bt, err := Open(base, "l1", "l2", 0, false)
	require.NoError(t, err)
	defer bt.Close()

	require.NoError(t, bt.Add(corpus.UpdateID{Stream: 1, Seq: 1}, "news",
		[]corpus.Token{14, 15}, []corpus.Token{24}, nil))
	require.NoError(t, bt.Add(corpus.UpdateID{Stream: 1, Seq: 2}, "law",
		[]corpus.Token{14, 16}, []corpus.Token{25}, nil))

	global, err := bt.Span("l1", GlobalDomain)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), global.Size())

	news, err := bt.Span("l1", bt.ResolveDomain("news"))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), news.Size())
	assert.Equal(t, uint32(2), news.Narrow(14).Narrow(15).Depth())
	assert.Equal(t, uint32(1), news.Narrow(14).Narrow(15).Size())
	assert.Zero(t, news.Narrow(16).Size(), "the other domain's tokens must not leak in")
}

func TestAddRejectsZeroSequence(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "corpus.")
	bt, err := Open(base, "l1", "l2", 0, false)
	require.NoError(t, err)
	defer bt.Close()

	err = bt.Add(corpus.UpdateID{Stream: 1, Seq: 0}, "default", nil, nil, nil)
	assert.Error(t, err, "sequence number 0 is reserved for never-applied")
}

func TestEqualLanguageTagsRejected(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "corpus.")
	_, err := Open(base, "en", "en", 0, false)
	assert.Error(t, err)
}

func TestSecondWriterIsLockedOut(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "corpus.")

	bt, err := Open(base, "l1", "l2", 0, false)
	require.NoError(t, err)
	defer bt.Close()

	_, err = Open(base, "l1", "l2", 0, false)
	assert.Error(t, err, "a second writer on the same bitext must fail to lock")
}
