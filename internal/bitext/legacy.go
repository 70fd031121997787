package bitext

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/sapt-mt/sapt/internal/corpus"
	"github.com/sapt-mt/sapt/internal/docmap"
	"github.com/sapt-mt/sapt/internal/suffixindex"
	"github.com/sapt-mt/sapt/internal/vocab"
)

// openLegacy opens a read-only Bitext over pre-existing "SaptIDX2"
// single-concatenated-file corpora, with no KV store present yet.
// There is no persisted tree index for this format, so both sides'
// global indexes are reconstructed with BulkBuild straight from the
// corpora, and per-domain indexes are left empty: a legacy bitext
// predates the document map, so it carries no recorded per-sentence
// domain tags to split on. WriteOut (writeout.go) is the supported
// path to upgrade this into a full persistent bitext.
func openLegacy(base, srcLang, trgLang string, maxLeafSize int) (*Bitext, error) {
	srcCorpus, err := corpus.OpenTokenCorpus(base+srcLang+".trk", base+srcLang+".six", true)
	if err != nil {
		return nil, err
	}
	trgCorpus, err := corpus.OpenTokenCorpus(base+trgLang+".trk", base+trgLang+".six", true)
	if err != nil {
		_ = srcCorpus.Close()
		return nil, err
	}

	workers := 4
	srcIdx := suffixindex.BulkBuild(srcCorpus, srcCorpus.Size(), maxLeafSize, workers)
	trgIdx := suffixindex.BulkBuild(trgCorpus, trgCorpus.Size(), maxLeafSize, workers)

	align, err := corpus.OpenAlignmentCorpus(base+"align.trk", base+"align.six", true)
	if err != nil {
		// A legacy corpus without a companion alignment file is still a
		// valid (monolingual-pair) legacy bitext for read purposes.
		align = corpus.NewAlignmentCorpus()
	}

	docs := docmap.New()

	printLegacyAdvisory(base)

	return &Bitext{
		src: &side{
			lang: srcLang, corpus: srcCorpus, vocab: vocab.New(),
			global: suffixindex.NewWriteBuffer(srcIdx, srcCorpus, defaultWriteBufferBatch),
			maxLeaf: maxLeafSize, domains: make(map[uint32]*suffixindex.WriteBuffer),
		},
		trg: &side{
			lang: trgLang, corpus: trgCorpus, vocab: vocab.New(),
			global: suffixindex.NewWriteBuffer(trgIdx, trgCorpus, defaultWriteBufferBatch),
			maxLeaf: maxLeafSize, domains: make(map[uint32]*suffixindex.WriteBuffer),
		},
		align:    align,
		docs:     docs,
		readOnly: true,
	}, nil
}

// IsLegacy reports whether this Bitext was opened from the legacy
// single-file format (no persistent KV store backing it).
func (b *Bitext) IsLegacy() bool { return b.store == nil && b.readOnly }

// printLegacyAdvisory prints a one-line advisory on every
// legacy-format open, dimmed when stderr is a real terminal.
func printLegacyAdvisory(base string) {
	msg := fmt.Sprintf("opened legacy-format bitext %q read-only; run mtt-build to upgrade to the persistent format", base)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "\x1b[2m%s\x1b[0m\n", msg)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}
