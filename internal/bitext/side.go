package bitext

import (
	"sync"

	"github.com/sapt-mt/sapt/internal/corpus"
	"github.com/sapt-mt/sapt/internal/kvstore"
	"github.com/sapt-mt/sapt/internal/suffixindex"
	"github.com/sapt-mt/sapt/internal/vocab"
)

// defaultWriteBufferBatch flushes the write buffer on every sentence.
const defaultWriteBufferBatch = 1

// side holds one language's half of a Bitext: its token corpus, its
// vocabulary, a global write buffer, and a map domain-id -> per-domain
// write buffer, created lazily as domains are first encountered.
type side struct {
	lang      string
	corpus    *corpus.TokenCorpus
	vocab     *vocab.Vocab
	global    *suffixindex.WriteBuffer
	maxLeaf   int
	batchSize int

	store *kvstore.Store // nil for an in-memory or legacy read-only side

	mu      sync.Mutex
	domains map[uint32]*suffixindex.WriteBuffer
}

func newInMemorySide(lang string, maxLeafSize int) *side {
	c := corpus.NewTokenCorpus()
	return &side{
		lang:      lang,
		corpus:    c,
		vocab:     vocab.New(),
		global:    suffixindex.NewWriteBuffer(suffixindex.New(c, maxLeafSize), c, defaultWriteBufferBatch),
		maxLeaf:   maxLeafSize,
		batchSize: defaultWriteBufferBatch,
		domains:   make(map[uint32]*suffixindex.WriteBuffer),
	}
}

// domainBuffer returns the Write Buffer for domainID, loading it from
// the KV store on first reference (persistent mode) or creating a
// fresh in-memory one, and caching the result for subsequent calls.
// domainID == GlobalDomain always returns the side's global buffer.
func (s *side) domainBuffer(domainID uint32) (*suffixindex.WriteBuffer, error) {
	if domainID == GlobalDomain {
		return s.global, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.domains[domainID]; ok {
		return buf, nil
	}

	idx := suffixindex.New(s.corpus, s.maxLeaf)
	if s.store != nil {
		loaded, err := suffixindex.Load(scopeNamespace(s.store, s.lang, domainID), s.corpus, s.maxLeaf)
		if err != nil {
			return nil, err
		}
		idx = loaded
	}
	buf := suffixindex.NewWriteBuffer(idx, s.corpus, s.batchSize)
	s.domains[domainID] = buf
	return buf, nil
}

// persist flushes and writes the vocabulary, the global index, and
// every domain index touched so far to the KV store. A no-op for an
// in-memory or legacy read-only side.
func (s *side) persist() error {
	if s.store == nil {
		return nil
	}
	if err := s.vocab.Persist(vocabNamespace(s.store, s.lang)); err != nil {
		return err
	}
	s.global.Flush()
	if err := s.global.Persistent().Write(scopeNamespace(s.store, s.lang, GlobalDomain)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for domainID, buf := range s.domains {
		buf.Flush()
		if err := buf.Persistent().Write(scopeNamespace(s.store, s.lang, domainID)); err != nil {
			return err
		}
	}
	return nil
}

// close releases the underlying token corpus's file handles.
func (s *side) close() error {
	return s.corpus.Close()
}
