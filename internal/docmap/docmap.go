// Package docmap implements the document map: a domain-name <->
// domain-id vocabulary plus the per-sentence domain and update-id
// metadata that lives in the sentence-info corpus, together with the
// stream-version bookkeeping both need to support idempotent replay.
package docmap

import (
	"encoding/binary"
	"errors"

	"github.com/sapt-mt/sapt/internal/bitext/streamversions"
	"github.com/sapt-mt/sapt/internal/corpus"
	"github.com/sapt-mt/sapt/internal/kvstore"
	"github.com/sapt-mt/sapt/internal/saptid"
	"github.com/sapt-mt/sapt/internal/vocab"
)

// DocMap pairs a domain-name vocabulary with the sentence-info corpus
// that records, per sentence, which domain it belongs to and which
// update produced it.
type DocMap struct {
	domains *vocab.Vocab
	info    *corpus.SentenceInfoCorpus
	streams *streamversions.StreamVersions
	ns      *kvstore.Namespace // nil for an in-memory DocMap
}

// New returns an empty in-memory DocMap, used by bulk load and tests.
func New() *DocMap {
	return &DocMap{
		domains: vocab.New(),
		info:    corpus.NewSentenceInfoCorpus(),
		streams: streamversions.New(),
	}
}

// Open opens a persistent DocMap: the domain vocabulary is loaded from
// ns, the sentence-info corpus from its track/index file pair.
func Open(ns *kvstore.Namespace, trackPath, indexPath string, readOnly bool) (*DocMap, error) {
	domains, err := vocab.Load(ns)
	if err != nil {
		return nil, err
	}
	info, err := corpus.OpenSentenceInfoCorpus(trackPath, indexPath, readOnly)
	if err != nil {
		return nil, err
	}
	streams, err := streamversions.Load(ns)
	if err != nil {
		return nil, err
	}
	d := &DocMap{domains: domains, info: info, streams: streams}
	if !readOnly {
		d.ns = ns
	}
	return d, nil
}

// pendingSidKey encodes the "has this (stream, seq) already produced a
// sentence id" lookup key: "upd_" + big-endian stream(2) + seq(8). Used
// to resume a crashed Bitext.Add between its corpus-append step and its
// index-update step without re-appending a duplicate sentence; the
// leaf-level dedup alone cannot protect a plain append-only corpus.
func pendingSidKey(update corpus.UpdateID) []byte {
	b := make([]byte, 4+2+8)
	copy(b, "upd_")
	binary.BigEndian.PutUint16(b[4:6], update.Stream)
	binary.BigEndian.PutUint64(b[6:14], update.Seq)
	return b
}

// LookupSid returns the sentence id already recorded for update, if
// RecordSentence previously ran for it (including across a crash that
// happened after this DocMap's own persistence but before the rest of
// a Bitext.Add completed).
func (d *DocMap) LookupSid(update corpus.UpdateID) (uint32, bool, error) {
	if d.ns == nil {
		return 0, false, nil
	}
	raw, err := d.ns.Get(pendingSidKey(update))
	if err != nil {
		if errors.Is(err, saptid.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return binary.BigEndian.Uint32(raw), true, nil
}

// Persist writes the domain vocabulary and stream versions to ns. The
// sentence-info corpus persists itself incrementally via Append.
func (d *DocMap) Persist(ns *kvstore.Namespace) error {
	if err := d.domains.Persist(ns); err != nil {
		return err
	}
	return d.streams.Persist(ns)
}

// ResolveDomain returns the domain id for name, inserting a new one if
// this is the first sentence seen for it.
func (d *DocMap) ResolveDomain(name string) uint32 {
	return d.domains.InsertOrLookup(name)
}

// DomainName returns the name for a previously resolved domain id.
func (d *DocMap) DomainName(id uint32) (string, error) {
	return d.domains.LookupSurface(id)
}

// RecordSentence appends sentence-info for domainID and update, returns
// the sentence id it was stored under, and advances the tracked stream
// version; in persistent mode it also records the update-to-sid key and
// persists the stream versions. It does not check the returned sid
// against the token corpora.
func (d *DocMap) RecordSentence(domainID uint32, update corpus.UpdateID) (uint32, error) {
	sid, err := d.info.Append(corpus.SentenceInfo{Domain: domainID, Update: update})
	if err != nil {
		return 0, err
	}
	d.streams.Update(streamversions.UpdateID{Stream: update.Stream, Seq: update.Seq})
	if d.ns != nil {
		sidBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(sidBytes, sid)
		if err := d.ns.Put(pendingSidKey(update), sidBytes); err != nil {
			return 0, err
		}
		if err := d.streams.Persist(d.ns); err != nil {
			return 0, err
		}
	}
	return sid, nil
}

// Size returns the number of sentences with recorded domain info.
func (d *DocMap) Size() uint32 {
	return d.info.Size()
}

// SentenceInfo returns the domain and update id recorded for sid.
func (d *DocMap) SentenceInfo(sid uint32) (corpus.SentenceInfo, error) {
	return d.info.Get(sid)
}

// StreamVersions returns the stream-version tracker backing this map's
// idempotent-replay check.
func (d *DocMap) StreamVersions() *streamversions.StreamVersions {
	return d.streams
}

// CheckSequence reports whether update is fresh (its sequence number is
// strictly greater than the stream's current high-water mark). A
// sequence number of 0 is always rejected.
func (d *DocMap) CheckSequence(update corpus.UpdateID) (fresh bool, err error) {
	if update.Seq == 0 {
		return false, saptid.New(saptid.KindUsageError, "update sequence number 0 is reserved for \"never applied\" and may not be submitted by a producer")
	}
	current := d.streams.At(update.Stream)
	return update.Seq > current, nil
}

// Close releases the underlying sentence-info corpus's resources.
func (d *DocMap) Close() error {
	return d.info.Close()
}
