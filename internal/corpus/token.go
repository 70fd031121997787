package corpus

import (
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sapt-mt/sapt/internal/saptid"
	"github.com/sapt-mt/sapt/internal/vocab"
)

// Token is a language-tagged vocabulary id. See vocab.Invalid/EOS/UNK
// for the reserved values.
type Token = uint32

const tokenSize = 4

// sentCacheSize bounds the decoded-sentence LRU. TokenAt sits on the
// hot path of every suffix comparison, and tree walks revisit the same
// few sentences many times in a row.
const sentCacheSize = 8192

// TokenCorpus is an ordered, append-only sequence of sentences, each a
// sequence of token ids. Sentences are immutable once appended, so the
// decoded-sentence cache never needs invalidation.
type TokenCorpus struct {
	*Corpus
	sentCache *lru.Cache[uint32, Sentence]
}

func wrapTokenCorpus(c *Corpus) *TokenCorpus {
	tc := &TokenCorpus{Corpus: c}
	tc.sentCache, _ = lru.New[uint32, Sentence](sentCacheSize)
	return tc
}

// NewTokenCorpus returns an empty in-memory TokenCorpus.
func NewTokenCorpus() *TokenCorpus {
	return wrapTokenCorpus(New(tokenSize))
}

// OpenTokenCorpus opens a persistent TokenCorpus at the given track/index
// file pair, auto-detecting legacy vs current format.
func OpenTokenCorpus(trackPath, indexPath string, readOnly bool) (*TokenCorpus, error) {
	c, err := Open(trackPath, indexPath, tokenSize, readOnly)
	if err != nil {
		return nil, err
	}
	return wrapTokenCorpus(c), nil
}

// AppendTokens appends one sentence's tokens, returning its sentence id.
func (c *TokenCorpus) AppendTokens(tokens []Token) (uint32, error) {
	buf := make([]byte, len(tokens)*tokenSize)
	for i, t := range tokens {
		binary.LittleEndian.PutUint32(buf[i*tokenSize:], t)
	}
	return c.Append(buf, uint32(len(tokens)))
}

// TokenAt returns the token at (sid, offset), or the implicit EOS
// sentinel when offset equals the sentence's length. It panics (via an
// InvariantViolation) on a genuinely out-of-range sentence id or
// offset, since callers are expected to stay within bounds derived
// from the same corpus.
func (c *TokenCorpus) TokenAt(sid, offset uint32) Token {
	sent, err := c.Sentence(sid)
	saptid.Invariant(err == nil, "TokenAt(%d, %d): %v", sid, offset, err)
	return sent.At(offset)
}

// Length returns the real (non-EOS) token count of sentence sid.
func (c *TokenCorpus) Length(sid uint32) uint32 {
	sent, err := c.Sentence(sid)
	saptid.Invariant(err == nil, "Length(%d): %v", sid, err)
	return sent.Len()
}

// Sentence returns a Sentence handle for sid.
func (c *TokenCorpus) Sentence(sid uint32) (Sentence, error) {
	if s, ok := c.sentCache.Get(sid); ok {
		return s, nil
	}
	raw, err := c.Corpus.Sentence(sid)
	if err != nil {
		return Sentence{}, err
	}
	if len(raw)%tokenSize != 0 {
		return Sentence{}, saptid.Newf(saptid.KindCorruption, "sentence %d byte length %d not a multiple of token size", sid, len(raw))
	}
	s := Sentence{corpus: c, sid: sid, raw: raw, count: uint32(len(raw) / tokenSize)}
	c.sentCache.Add(sid, s)
	return s, nil
}

// Sentence is a lightweight reference into a TokenCorpus: a sentence id,
// its raw packed tokens, and its length. At(size()) returns the implicit
// EOS sentinel without it ever being stored in the track.
type Sentence struct {
	corpus *TokenCorpus
	sid    uint32
	raw    []byte
	count  uint32
}

// Sid returns the sentence id.
func (s Sentence) Sid() uint32 { return s.sid }

// Len returns the number of real (non-EOS) tokens.
func (s Sentence) Len() uint32 { return s.count }

// At returns the token at index i. i == Len() yields the implicit EOS
// sentinel; i > Len() is a caller error.
func (s Sentence) At(i uint32) Token {
	saptid.Invariant(i <= s.count, "sentence index %d out of range (len %d)", i, s.count)
	if i == s.count {
		return vocab.EOS
	}
	return binary.LittleEndian.Uint32(s.raw[i*tokenSize : i*tokenSize+4])
}

// Tokens returns the decoded token slice, excluding the implicit EOS.
func (s Sentence) Tokens() []Token {
	out := make([]Token, s.count)
	for i := range out {
		out[i] = s.At(uint32(i))
	}
	return out
}
