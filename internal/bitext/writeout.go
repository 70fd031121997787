package bitext

import (
	"os"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/sapt-mt/sapt/internal/corpus"
	"github.com/sapt-mt/sapt/internal/saptid"
)

// migrationStream is the synthetic update stream WriteOut assigns to
// every sentence it replays: a legacy corpus has no recorded stream ids
// of its own (they postdate the Document Map), so each sentence's
// original position doubles as its sequence number.
const migrationStream uint16 = 0

// WriteOut migrates this Bitext's sentences into a fresh persistent KV
// layout rooted at destBase, upgrading a legacy single-file bitext
// opened read-only into the current split track/index + KV-store
// layout. Progress is tracked in
// a RoaringBitmap of already-migrated sentence ids, persisted to
// "<destBase>migrate.bitmap" after every sentence, so a re-run after a
// crash resumes instead of re-appending already-migrated sentences.
func (b *Bitext) WriteOut(destBase string, domainName string) error {
	if err := os.MkdirAll(destBase+"db", 0o755); err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "create destination db dir")
	}

	dest, err := Open(destBase, b.src.lang, b.trg.lang, b.src.maxLeaf, false)
	if err != nil {
		return err
	}
	defer dest.Close()

	progressPath := destBase + "migrate.bitmap"
	done, err := loadProgress(progressPath)
	if err != nil {
		return err
	}

	total := b.Size()
	for sid := uint32(0); sid < total; sid++ {
		if done.Contains(sid) {
			continue
		}
		srcSent, err := b.SourceSentence(sid)
		if err != nil {
			return err
		}
		trgSent, err := b.TargetSentence(sid)
		if err != nil {
			return err
		}
		var alignment []corpus.AlignPair
		if sid < b.AlignmentSize() {
			alignment, err = b.Alignment(sid)
			if err != nil {
				return err
			}
		}
		update := corpus.UpdateID{Stream: migrationStream, Seq: uint64(sid) + 1}
		if err := dest.Add(update, domainName, srcSent.Tokens(), trgSent.Tokens(), alignment); err != nil {
			return err
		}
		done.Add(sid)
		if err := saveProgress(progressPath, done); err != nil {
			return err
		}
	}
	return nil
}

func loadProgress(path string) (*roaring.Bitmap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return roaring.New(), nil
		}
		return nil, saptid.Wrap(saptid.KindIoFailure, err, "read migration progress")
	}
	bm := roaring.New()
	if _, err := bm.FromBuffer(raw); err != nil {
		return nil, saptid.Wrap(saptid.KindCorruption, err, "decode migration progress")
	}
	return bm, nil
}

func saveProgress(path string, bm *roaring.Bitmap) error {
	raw, err := bm.ToBytes()
	if err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "encode migration progress")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "write migration progress")
	}
	return nil
}
