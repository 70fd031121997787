package docmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapt-mt/sapt/internal/corpus"
)

func TestResolveDomainInsertsOnce(t *testing.T) {
	d := New()
	id1 := d.ResolveDomain("europarl")
	id2 := d.ResolveDomain("europarl")
	require.Equal(t, id1, id2)
	name, err := d.DomainName(id1)
	require.NoError(t, err)
	assert.Equal(t, "europarl", name)
}

func TestRecordSentenceAdvancesStreamVersion(t *testing.T) {
	d := New()
	domain := d.ResolveDomain("news")
	update := corpus.UpdateID{Stream: 1, Seq: 1}
	sid, err := d.RecordSentence(domain, update)
	require.NoError(t, err)
	require.Equal(t, uint32(0), sid)
	assert.Equal(t, uint64(1), d.StreamVersions().At(1))

	info, err := d.SentenceInfo(sid)
	require.NoError(t, err)
	assert.Equal(t, domain, info.Domain)
	assert.Equal(t, update, info.Update)
}

func TestCheckSequenceRejectsZero(t *testing.T) {
	d := New()
	_, err := d.CheckSequence(corpus.UpdateID{Stream: 1, Seq: 0})
	assert.Error(t, err)
}

func TestCheckSequenceFreshness(t *testing.T) {
	d := New()
	domain := d.ResolveDomain("news")
	_, err := d.RecordSentence(domain, corpus.UpdateID{Stream: 1, Seq: 5})
	require.NoError(t, err)

	fresh, err := d.CheckSequence(corpus.UpdateID{Stream: 1, Seq: 5})
	require.NoError(t, err)
	assert.False(t, fresh, "re-applying the same sequence must not be fresh")

	fresh, err = d.CheckSequence(corpus.UpdateID{Stream: 1, Seq: 6})
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestSizeTracksSentenceCount(t *testing.T) {
	d := New()
	domain := d.ResolveDomain("news")
	require.Zero(t, d.Size())
	_, err := d.RecordSentence(domain, corpus.UpdateID{Stream: 1, Seq: 1})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), d.Size())
}
