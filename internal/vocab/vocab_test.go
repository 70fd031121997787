package vocab

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapt-mt/sapt/internal/kvstore"
)

func TestInsertOrLookupRoundTrip(t *testing.T) {
	v := New()
	surfaces := []string{"the", "dog", "bit", "the", "cat"}
	ids := make(map[string]uint32)
	for _, s := range surfaces {
		id := v.InsertOrLookup(s)
		if prev, ok := ids[s]; ok {
			require.Equal(t, prev, id, "surface %q must keep its id", s)
		}
		ids[s] = id
		got, err := v.LookupSurface(id)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	assert.NotEqual(t, ids["the"], ids["dog"])
}

func TestEOSReservedAtTwo(t *testing.T) {
	v := New()
	id, err := v.LookupID("</s>")
	require.NoError(t, err)
	assert.Equal(t, EOS, id)
}

func TestLookupIDNotFound(t *testing.T) {
	v := New()
	_, err := v.LookupID("never-inserted")
	assert.Error(t, err)
}

func TestLookupSurfaceNeverInserts(t *testing.T) {
	v := New()
	sizeBefore := v.Size()
	_, err := v.LookupSurface(999)
	require.Error(t, err)
	assert.Equal(t, sizeBefore, v.Size())
}

func TestPersistLoadRoundTrip(t *testing.T) {
	store, err := kvstore.Open(filepath.Join(t.TempDir(), "index.bbolt"))
	require.NoError(t, err)
	defer store.Close()
	ns := store.Namespace("vocab.en|")

	v := New()
	for _, s := range []string{"the", "dog", "bit", "the", "cat", "on", "mat"} {
		v.InsertOrLookup(s)
	}
	require.NoError(t, v.Persist(ns))

	loaded, err := Load(ns)
	require.NoError(t, err)
	assert.Equal(t, v.Size(), loaded.Size())

	eosID, err := loaded.LookupID("</s>")
	require.NoError(t, err)
	assert.Equal(t, EOS, eosID, "the EOS reservation must survive persist/load")

	dogID, err := v.LookupID("dog")
	require.NoError(t, err)
	gotDog, err := loaded.LookupID("dog")
	require.NoError(t, err)
	assert.Equal(t, dogID, gotDog)

	// Dense monotonic sequence preserved: the next insert continues past
	// every loaded id.
	maxLoaded := uint32(0)
	for _, s := range []string{"the", "dog", "bit", "cat", "on", "mat"} {
		id, err := loaded.LookupID(s)
		require.NoError(t, err)
		if id > maxLoaded {
			maxLoaded = id
		}
	}
	assert.Greater(t, loaded.InsertOrLookup("fox"), maxLoaded)
}
