package suffixindex

import "github.com/sapt-mt/sapt/internal/bitext/streamversions"

// defaultBatchSize flushes after every sentence unless configured
// otherwise.
const defaultBatchSize = 1

// WriteBuffer offers the same AddSentence contract as a TokenIndex,
// batching sentences into a secondary in-memory index and merging that
// buffer into the wrapped persistent index once batchSize sentences
// have accumulated, or on an explicit Flush. There is no background
// task: the threshold check is a plain counter evaluated inline on
// every AddSentence call.
type WriteBuffer struct {
	persistent *TokenIndex
	buffer     *TokenIndex
	batchSize  int
	pending    int
}

// NewWriteBuffer wraps persistent with a batching buffer over the same
// corpus src. batchSize <= 0 selects the default of 1 (flush every
// sentence).
func NewWriteBuffer(persistent *TokenIndex, src TokenSource, batchSize int) *WriteBuffer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &WriteBuffer{
		persistent: persistent,
		buffer:     New(src, persistent.maxLeafSize),
		batchSize:  batchSize,
	}
}

// AddSentence buffers the sentence, flushing into the persistent index
// once the batch threshold is reached.
func (w *WriteBuffer) AddSentence(sid, length uint32, update streamversions.UpdateID) {
	w.buffer.AddSentence(sid, length)
	w.buffer.Advance(update)
	w.pending++
	if w.pending >= w.batchSize {
		w.flushLocked()
	}
}

// Flush forces an immediate merge of any buffered sentences into the
// persistent index, even if the batch threshold has not been reached.
func (w *WriteBuffer) Flush() {
	if w.pending == 0 {
		return
	}
	w.flushLocked()
}

func (w *WriteBuffer) flushLocked() {
	w.persistent.Merge(w.buffer)
	w.buffer = New(w.buffer.src, w.buffer.maxLeafSize)
	w.pending = 0
}

// Persistent returns the wrapped persistent index, e.g. to Write it out.
func (w *WriteBuffer) Persistent() *TokenIndex { return w.persistent }

// Span flushes any pending sentences and returns a span over the
// persistent index, so a reader never misses a just-buffered write.
func (w *WriteBuffer) Span() Span {
	w.Flush()
	return w.persistent.Span()
}

// Size flushes any pending sentences and returns the persistent
// index's total size.
func (w *WriteBuffer) Size() uint32 {
	w.Flush()
	return w.persistent.Size()
}
