package corpus

import (
	"encoding/binary"

	"github.com/sapt-mt/sapt/internal/saptid"
)

const alignPairSize = 8 // two uint32 byte offsets

// AlignPair is one (src-offset, trg-offset) word-alignment link.
type AlignPair struct {
	Src uint32
	Trg uint32
}

// AlignmentCorpus has the same shape as TokenCorpus, but each element
// is an AlignPair.
type AlignmentCorpus struct {
	*Corpus
}

// NewAlignmentCorpus returns an empty in-memory AlignmentCorpus.
func NewAlignmentCorpus() *AlignmentCorpus {
	return &AlignmentCorpus{Corpus: New(alignPairSize)}
}

// OpenAlignmentCorpus opens a persistent AlignmentCorpus.
func OpenAlignmentCorpus(trackPath, indexPath string, readOnly bool) (*AlignmentCorpus, error) {
	c, err := Open(trackPath, indexPath, alignPairSize, readOnly)
	if err != nil {
		return nil, err
	}
	return &AlignmentCorpus{Corpus: c}, nil
}

// AppendAlignment appends one sentence's alignment links.
func (c *AlignmentCorpus) AppendAlignment(pairs []AlignPair) (uint32, error) {
	buf := make([]byte, len(pairs)*alignPairSize)
	for i, p := range pairs {
		binary.LittleEndian.PutUint32(buf[i*alignPairSize:], p.Src)
		binary.LittleEndian.PutUint32(buf[i*alignPairSize+4:], p.Trg)
	}
	return c.Append(buf, uint32(len(pairs)))
}

// Sentence returns the decoded alignment links for sid.
func (c *AlignmentCorpus) Sentence(sid uint32) ([]AlignPair, error) {
	raw, err := c.Corpus.Sentence(sid)
	if err != nil {
		return nil, err
	}
	if len(raw)%alignPairSize != 0 {
		return nil, saptid.Newf(saptid.KindCorruption, "alignment sentence %d byte length %d not a multiple of pair size", sid, len(raw))
	}
	n := len(raw) / alignPairSize
	out := make([]AlignPair, n)
	for i := 0; i < n; i++ {
		out[i] = AlignPair{
			Src: binary.LittleEndian.Uint32(raw[i*alignPairSize : i*alignPairSize+4]),
			Trg: binary.LittleEndian.Uint32(raw[i*alignPairSize+4 : i*alignPairSize+8]),
		}
	}
	return out, nil
}
