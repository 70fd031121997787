package suffixindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapt-mt/sapt/internal/bitext/streamversions"
)

func testUpdate(seq uint64) streamversions.UpdateID {
	return streamversions.UpdateID{Stream: 0, Seq: seq}
}

func TestBulkBuildCoversEveryRealPosition(t *testing.T) {
	src := propertyCorpus()
	var want uint32
	for _, s := range src.sentences {
		want += uint32(len(s))
	}

	for _, workers := range []int{0, 1, 4} {
		bulk := BulkBuild(src, uint32(len(src.sentences)), 4, workers)
		require.Equal(t, want, bulk.Size(), "workers=%d", workers)
		require.NotNil(t, bulk.Streams())
	}
}

func TestBulkBuildHonoursLeafBudget(t *testing.T) {
	src := propertyCorpus()
	bulk := BulkBuild(src, uint32(len(src.sentences)), 3, 2)

	span := bulk.Span()
	assert.False(t, span.InLeaf(), "a corpus larger than K must have split the root")
	checkSums(t, bulk.root)
}
