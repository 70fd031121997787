// Package bitext composes two token corpora, an alignment corpus, a
// sentence-info corpus (via the document map), and per-side global and
// per-domain token indexes, enforcing append/update ordering and
// idempotent replay.
package bitext

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/sapt-mt/sapt/internal/bitext/streamversions"
	"github.com/sapt-mt/sapt/internal/corpus"
	"github.com/sapt-mt/sapt/internal/docmap"
	"github.com/sapt-mt/sapt/internal/kvstore"
	"github.com/sapt-mt/sapt/internal/saptid"
	"github.com/sapt-mt/sapt/internal/suffixindex"
	"github.com/sapt-mt/sapt/internal/vocab"
)

// Bitext composes both sides of a parallel corpus. All mutation goes
// through Add, serialised by mu: one writer at a time, any number of
// concurrent readers.
type Bitext struct {
	mu sync.Mutex

	src, trg *side
	align    *corpus.AlignmentCorpus
	docs     *docmap.DocMap

	store    *kvstore.Store     // nil for legacy read-only or pure in-memory
	docsNS   *kvstore.Namespace // nil unless store != nil
	lock     *flock.Flock       // nil unless this Bitext holds the writer lock
	readOnly bool
}

func rejectEqualLangs(srcLang, trgLang string) error {
	if srcLang == trgLang {
		return saptid.Newf(saptid.KindUsageError, "source and target language tags must differ (both %q): persisted namespaces would collide", srcLang)
	}
	return nil
}

// New returns an empty, purely in-memory, writable Bitext over srcLang
// and trgLang, used by bulk load and tests. maxLeafSize <= 0 selects
// each Token Index's default budget K.
func New(srcLang, trgLang string, maxLeafSize int) (*Bitext, error) {
	if err := rejectEqualLangs(srcLang, trgLang); err != nil {
		return nil, err
	}
	return &Bitext{
		src:   newInMemorySide(srcLang, maxLeafSize),
		trg:   newInMemorySide(trgLang, maxLeafSize),
		align: corpus.NewAlignmentCorpus(),
		docs:  docmap.New(),
	}, nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Open auto-detects the persistence mode of a bitext rooted at base:
// if "<base>db/" exists,
// it opens in persistent read/append mode. Otherwise, if a legacy
// single-file corpus is present (its track file already exists), it
// attempts a read-only legacy open. Absent both, a writable open
// creates a fresh persistent bitext; a read-only open fails with
// NotFound. readOnly forces read-only even on a persistent store.
func Open(base, srcLang, trgLang string, maxLeafSize int, readOnly bool) (*Bitext, error) {
	if err := rejectEqualLangs(srcLang, trgLang); err != nil {
		return nil, err
	}
	kvDir := base + "db"
	switch {
	case pathExists(kvDir):
		return openPersistent(base, kvDir, srcLang, trgLang, maxLeafSize, readOnly)
	case pathExists(base + srcLang + ".trk"):
		return openLegacy(base, srcLang, trgLang, maxLeafSize)
	case !readOnly:
		return openPersistent(base, kvDir, srcLang, trgLang, maxLeafSize, readOnly)
	default:
		return nil, saptid.Newf(saptid.KindNotFound, "no bitext (persistent or legacy) found at %q", base)
	}
}

func openPersistent(base, kvDir, srcLang, trgLang string, maxLeafSize int, readOnly bool) (*Bitext, error) {
	if !readOnly {
		if err := os.MkdirAll(kvDir, 0o755); err != nil {
			return nil, saptid.Wrap(saptid.KindIoFailure, err, "create kv store dir")
		}
	} else if !pathExists(kvDir) {
		return nil, saptid.Newf(saptid.KindNotFound, "kv store dir %q does not exist", kvDir)
	}

	var lk *flock.Flock
	if !readOnly {
		lk = flock.New(filepath.Join(kvDir, ".lock"))
		ok, err := lk.TryLock()
		if err != nil {
			return nil, saptid.Wrap(saptid.KindIoFailure, err, "acquire bitext writer lock")
		}
		if !ok {
			return nil, saptid.Newf(saptid.KindUsageError, "bitext at %q is already locked by another writer", base)
		}
	}

	store, err := kvstore.Open(filepath.Join(kvDir, "index.bbolt"))
	if err != nil {
		if lk != nil {
			_ = lk.Unlock()
		}
		return nil, err
	}

	b := &Bitext{store: store, lock: lk, readOnly: readOnly}

	src, err := openPersistentSide(store, base, srcLang, maxLeafSize, readOnly)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	trg, err := openPersistentSide(store, base, trgLang, maxLeafSize, readOnly)
	if err != nil {
		_ = src.close()
		_ = store.Close()
		return nil, err
	}
	align, err := corpus.OpenAlignmentCorpus(base+"align.trk", base+"align.six", readOnly)
	if err != nil {
		_ = src.close()
		_ = trg.close()
		_ = store.Close()
		return nil, err
	}
	ns := store.Namespace("docmap|")
	docs, err := docmap.Open(ns, base+"docmap.trk", base+"docmap.six", readOnly)
	if err != nil {
		_ = src.close()
		_ = trg.close()
		_ = align.Close()
		_ = store.Close()
		return nil, err
	}

	b.src, b.trg, b.align, b.docs, b.docsNS = src, trg, align, docs, ns
	return b, nil
}

func openPersistentSide(store *kvstore.Store, base, lang string, maxLeafSize int, readOnly bool) (*side, error) {
	c, err := corpus.OpenTokenCorpus(base+lang+".trk", base+lang+".six", readOnly)
	if err != nil {
		return nil, err
	}
	vb, err := vocab.Load(vocabNamespace(store, lang))
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	global, err := suffixindex.Load(scopeNamespace(store, lang, GlobalDomain), c, maxLeafSize)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	s := &side{
		lang:      lang,
		corpus:    c,
		vocab:     vb,
		global:    suffixindex.NewWriteBuffer(global, c, defaultWriteBufferBatch),
		maxLeaf:   maxLeafSize,
		batchSize: defaultWriteBufferBatch,
		domains:   make(map[uint32]*suffixindex.WriteBuffer),
		store:     store,
	}
	return s, nil
}

// Add applies one sentence pair: append the three corpora, record
// sentence info, update the four indexes, then advance stream
// versions. A stale or already-applied update (judged against the
// elementwise minimum stream version across every component this
// update would touch) is a silent no-op, so producers can replay their
// backlog after a crash.
func (b *Bitext) Add(update corpus.UpdateID, domainName string, srcTokens, trgTokens []corpus.Token, alignment []corpus.AlignPair) error {
	if update.Seq == 0 {
		return saptid.New(saptid.KindUsageError, "update sequence number 0 is reserved for \"never applied\" and may not be submitted by a producer")
	}
	if b.readOnly {
		return saptid.New(saptid.KindUsageError, "bitext opened read-only")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	domainID := b.docs.ResolveDomain(domainName)
	srcBuf, err := b.src.domainBuffer(domainID)
	if err != nil {
		return err
	}
	trgBuf, err := b.trg.domainBuffer(domainID)
	if err != nil {
		return err
	}

	eff := minAcross(
		b.docs.StreamVersions(),
		b.src.global.Persistent().Streams(),
		b.trg.global.Persistent().Streams(),
		srcBuf.Persistent().Streams(),
		trgBuf.Persistent().Streams(),
	)
	if update.Seq <= eff.At(update.Stream) {
		return nil // already applied everywhere this update touches
	}

	sid, existed, err := b.docs.LookupSid(update)
	if err != nil {
		return err
	}
	if !existed {
		if _, err := b.src.corpus.AppendTokens(srcTokens); err != nil {
			return err
		}
		if _, err := b.trg.corpus.AppendTokens(trgTokens); err != nil {
			return err
		}
		if b.align != nil {
			if _, err := b.align.AppendAlignment(alignment); err != nil {
				return err
			}
		}
		sid, err = b.docs.RecordSentence(domainID, update)
		if err != nil {
			return err
		}
	}

	srcLen, trgLen := uint32(len(srcTokens)), uint32(len(trgTokens))
	sv := streamversions.UpdateID{Stream: update.Stream, Seq: update.Seq}

	// Target-domain, source-domain, target-global, source-global last,
	// so no reader can observe a source-global hit before the
	// corresponding target/domain positions are visible.
	trgBuf.AddSentence(sid, trgLen, sv)
	srcBuf.AddSentence(sid, srcLen, sv)
	b.trg.global.AddSentence(sid, trgLen, sv)
	b.src.global.AddSentence(sid, srcLen, sv)

	if b.store != nil {
		if err := b.src.persist(); err != nil {
			return err
		}
		if err := b.trg.persist(); err != nil {
			return err
		}
		if err := b.docs.Persist(b.docsNS); err != nil {
			return err
		}
	}
	return nil
}

func minAcross(first *streamversions.StreamVersions, rest ...*streamversions.StreamVersions) *streamversions.StreamVersions {
	out := first
	for _, v := range rest {
		out = streamversions.Min(out, v)
	}
	return out
}

// Span returns a lookup cursor over lang's index at the given scope
// (GlobalDomain or a resolved domain id).
// Obtaining the span briefly takes the writer lock, because it may
// flush the side's write buffer; the returned span is then read without
// any lock.
func (b *Bitext) Span(lang string, domain uint32) (suffixindex.Span, error) {
	s, err := b.sideFor(lang)
	if err != nil {
		return suffixindex.Span{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, err := s.domainBuffer(domain)
	if err != nil {
		return suffixindex.Span{}, err
	}
	return buf.Span(), nil
}

// ResolveDomain returns the domain id for name (inserting if new).
func (b *Bitext) ResolveDomain(name string) uint32 { return b.docs.ResolveDomain(name) }

// DomainName returns the name previously resolved for id.
func (b *Bitext) DomainName(id uint32) (string, error) { return b.docs.DomainName(id) }

func (b *Bitext) sideFor(lang string) (*side, error) {
	switch lang {
	case b.src.lang:
		return b.src, nil
	case b.trg.lang:
		return b.trg, nil
	default:
		return nil, saptid.Newf(saptid.KindUsageError, "unknown language tag %q (bitext holds %q/%q)", lang, b.src.lang, b.trg.lang)
	}
}

// Size returns the number of sentence pairs recorded so far. A legacy
// bitext has no per-sentence metadata, so its corpus is the count's
// source of truth.
func (b *Bitext) Size() uint32 {
	if n := b.docs.Size(); n > 0 {
		return n
	}
	return b.src.corpus.Size()
}

// AlignmentSize returns the number of alignment records recorded so far.
func (b *Bitext) AlignmentSize() uint32 {
	if b.align == nil {
		return 0
	}
	return b.align.Size()
}

// Alignment returns the decoded alignment links for sid.
func (b *Bitext) Alignment(sid uint32) ([]corpus.AlignPair, error) { return b.align.Sentence(sid) }

// SourceSentence returns the source-side token sentence for sid.
func (b *Bitext) SourceSentence(sid uint32) (corpus.Sentence, error) { return b.src.corpus.Sentence(sid) }

// TargetSentence returns the target-side token sentence for sid.
func (b *Bitext) TargetSentence(sid uint32) (corpus.Sentence, error) { return b.trg.corpus.Sentence(sid) }

// SourceVocab and TargetVocab expose each side's vocabulary, e.g. for a
// CLI tool to translate surfaces to ids before calling Add.
func (b *Bitext) SourceVocab() *vocab.Vocab { return b.src.vocab }
func (b *Bitext) TargetVocab() *vocab.Vocab { return b.trg.vocab }

// Close releases every file handle and the KV store, and releases the
// writer lock if held.
func (b *Bitext) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(b.src.close())
	record(b.trg.close())
	if b.align != nil {
		record(b.align.Close())
	}
	record(b.docs.Close())
	if b.store != nil {
		record(b.store.Close())
	}
	if b.lock != nil {
		record(b.lock.Unlock())
	}
	return firstErr
}
