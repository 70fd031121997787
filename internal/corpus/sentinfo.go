package corpus

import (
	"encoding/binary"

	"github.com/sapt-mt/sapt/internal/saptid"
)

const sentInfoSize = 16 // domain(4) + stream(2) + pad(2) + seq(8)

// UpdateID identifies one update as a (stream, sequence-number) pair.
// Sequence numbers are strictly increasing within a stream and start at
// 1; 0 means "never applied".
type UpdateID struct {
	Stream uint16
	Seq    uint64
}

// IsZero reports whether this is the "never applied" sentinel.
func (u UpdateID) IsZero() bool { return u.Seq == 0 }

// Less reports whether u sorts strictly before other within the same
// stream (undefined across different streams).
func (u UpdateID) Less(other UpdateID) bool { return u.Seq < other.Seq }

// SentenceInfo carries the domain id and originating update id of one
// sentence pair.
type SentenceInfo struct {
	Domain uint32
	Update UpdateID
}

// SentenceInfoCorpus has the same structure as TokenCorpus and
// AlignmentCorpus, but holds exactly one fixed-size record per sentence,
// indexed by sentence id.
type SentenceInfoCorpus struct {
	*Corpus
}

// NewSentenceInfoCorpus returns an empty in-memory SentenceInfoCorpus.
func NewSentenceInfoCorpus() *SentenceInfoCorpus {
	return &SentenceInfoCorpus{Corpus: New(sentInfoSize)}
}

// OpenSentenceInfoCorpus opens a persistent SentenceInfoCorpus.
func OpenSentenceInfoCorpus(trackPath, indexPath string, readOnly bool) (*SentenceInfoCorpus, error) {
	c, err := Open(trackPath, indexPath, sentInfoSize, readOnly)
	if err != nil {
		return nil, err
	}
	return &SentenceInfoCorpus{Corpus: c}, nil
}

// Append records one sentence's domain and update id, returning its
// sentence id (which must equal the corresponding token corpus's new
// sentence id; callers are responsible for keeping the two in lockstep).
func (c *SentenceInfoCorpus) Append(info SentenceInfo) (uint32, error) {
	buf := make([]byte, sentInfoSize)
	binary.LittleEndian.PutUint32(buf[0:4], info.Domain)
	binary.LittleEndian.PutUint16(buf[4:6], info.Update.Stream)
	binary.LittleEndian.PutUint64(buf[8:16], info.Update.Seq)
	return c.Corpus.Append(buf, 1)
}

// Get returns the SentenceInfo for sid.
func (c *SentenceInfoCorpus) Get(sid uint32) (SentenceInfo, error) {
	raw, err := c.Corpus.Sentence(sid)
	if err != nil {
		return SentenceInfo{}, err
	}
	if len(raw) != sentInfoSize {
		return SentenceInfo{}, saptid.Newf(saptid.KindCorruption, "sentence-info record %d has wrong length %d", sid, len(raw))
	}
	return SentenceInfo{
		Domain: binary.LittleEndian.Uint32(raw[0:4]),
		Update: UpdateID{
			Stream: binary.LittleEndian.Uint16(raw[4:6]),
			Seq:    binary.LittleEndian.Uint64(raw[8:16]),
		},
	}, nil
}
