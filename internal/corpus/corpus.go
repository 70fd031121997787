// Package corpus implements the append-only sentence corpora backing
// the token index: one generic byte-oriented engine, parametric in
// per-element size, backed by a memory-mapped static prefix plus an
// in-memory dynamic tail, persisted as a track/index file pair with a
// data-before-metadata crash discipline. TokenCorpus, AlignmentCorpus
// and SentenceInfoCorpus are typed views over the same engine.
package corpus

import (
	"bytes"
	"encoding/binary"
	"os"
	"sync"

	"github.com/sapt-mt/sapt/internal/mmapio"
	"github.com/sapt-mt/sapt/internal/saptid"
)

const (
	magicLegacy  = "SaptIDX2"
	magicCurrent = "SaptIDX3"

	trackHeaderSize = 24 // magic(8) + legacyIndexOffset(8) + legacyIndexCount(4) + totalElemCount(4)
	indexHeaderSize = 12 // magic(8) + sentenceCount(4)
)

// Corpus is the generic engine: a sequence of fixed-width elements
// grouped into sentences. Offsets are counted in bytes, not entries, so
// one implementation serves token ids, alignment pairs and sentence-info
// records alike.
type Corpus struct {
	elemSize uint32

	mu sync.RWMutex

	writable  bool
	trackFile *os.File
	indexFile *os.File

	static        *mmapio.Segment
	dataStart     int      // file offset where element data begins (past the track header)
	staticOffsets []uint32 // length staticCount+1, byte offsets relative to dataStart
	staticBytes   uint32   // == staticOffsets[len-1]

	offsets     []uint32 // full offsets array, length count+1 (static prefix + dynamic growth)
	dynamicData []byte   // raw bytes appended since Open, offset-relative to staticBytes
}

// New creates an empty, writable, purely in-memory corpus (no backing
// files) — used by bulk-load and tests.
func New(elemSize uint32) *Corpus {
	return &Corpus{
		elemSize: elemSize,
		writable: true,
		offsets:  []uint32{0},
	}
}

// Open opens (creating if absent) a writable corpus backed by
// trackPath/indexPath. Passing readOnly=true opens an existing corpus
// (current or legacy format) for read access only.
func Open(trackPath, indexPath string, elemSize uint32, readOnly bool) (*Corpus, error) {
	c := &Corpus{elemSize: elemSize}

	trackInfo, trackErr := os.Stat(trackPath)
	exists := trackErr == nil && trackInfo.Size() > 0

	if !exists {
		if readOnly {
			return nil, saptid.Newf(saptid.KindNotFound, "corpus track file %q does not exist", trackPath)
		}
		if err := initEmptyCorpusFiles(trackPath, indexPath); err != nil {
			return nil, err
		}
	}

	header, err := readTrackHeader(trackPath)
	if err != nil {
		return nil, err
	}

	switch header.magic {
	case magicLegacy:
		if err := c.loadLegacy(trackPath, header); err != nil {
			return nil, err
		}
		c.writable = false
	case magicCurrent:
		if err := c.loadCurrent(trackPath, indexPath, header); err != nil {
			return nil, err
		}
		c.writable = !readOnly
	default:
		return nil, saptid.Newf(saptid.KindCorruption, "unknown corpus magic %q in %q", header.magic, trackPath)
	}

	if c.writable {
		tf, err := os.OpenFile(trackPath, os.O_RDWR, 0o644)
		if err != nil {
			return nil, saptid.Wrap(saptid.KindIoFailure, err, "open track file for writing")
		}
		ixf, err := os.OpenFile(indexPath, os.O_RDWR, 0o644)
		if err != nil {
			_ = tf.Close()
			return nil, saptid.Wrap(saptid.KindIoFailure, err, "open index file for writing")
		}
		c.trackFile = tf
		c.indexFile = ixf
	}

	return c, nil
}

type trackHeader struct {
	magic             string
	legacyIndexOffset uint64
	legacyIndexCount  uint32
	totalElemCount    uint32
}

func readTrackHeader(path string) (trackHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return trackHeader{}, saptid.Wrap(saptid.KindIoFailure, err, "open track header")
	}
	defer f.Close()

	buf := make([]byte, trackHeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return trackHeader{}, saptid.Wrap(saptid.KindCorruption, err, "read track header "+path)
	}
	return trackHeader{
		magic:             string(buf[0:8]),
		legacyIndexOffset: binary.LittleEndian.Uint64(buf[8:16]),
		legacyIndexCount:  binary.LittleEndian.Uint32(buf[16:20]),
		totalElemCount:    binary.LittleEndian.Uint32(buf[20:24]),
	}, nil
}

func initEmptyCorpusFiles(trackPath, indexPath string) error {
	tf, err := os.OpenFile(trackPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "create track file")
	}
	defer tf.Close()

	header := make([]byte, trackHeaderSize)
	copy(header[0:8], magicCurrent)
	if _, err := tf.WriteAt(header, 0); err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "init track header")
	}
	if err := tf.Sync(); err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "fsync track header")
	}

	ixf, err := os.OpenFile(indexPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "create index file")
	}
	defer ixf.Close()

	ihdr := make([]byte, indexHeaderSize+4)
	copy(ihdr[0:8], magicCurrent)
	// sentenceCount = 0, one sentinel offset entry of value 0
	if _, err := ixf.WriteAt(ihdr, 0); err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "init index header")
	}
	if err := ixf.Sync(); err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "fsync index header")
	}
	return nil
}

func (c *Corpus) loadCurrent(trackPath, indexPath string, h trackHeader) error {
	static, err := mmapio.Open(trackPath)
	if err != nil {
		return err
	}

	ixBuf, err := os.ReadFile(indexPath)
	if err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "read index file "+indexPath)
	}
	if len(ixBuf) < indexHeaderSize {
		return saptid.Newf(saptid.KindCorruption, "index file %q truncated", indexPath)
	}
	if string(ixBuf[0:8]) != magicCurrent {
		return saptid.Newf(saptid.KindCorruption, "index file %q has unexpected magic", indexPath)
	}
	count := binary.LittleEndian.Uint32(ixBuf[8:12])
	need := indexHeaderSize + int(count+1)*4
	if len(ixBuf) < need {
		return saptid.Newf(saptid.KindCorruption, "index file %q shorter than published sentence count", indexPath)
	}

	offsets := make([]uint32, count+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(ixBuf[indexHeaderSize+i*4 : indexHeaderSize+i*4+4])
	}

	published := trackHeaderSize + int(offsets[len(offsets)-1])
	if static.Len() < published {
		return saptid.Newf(saptid.KindCorruption, "track file %q shorter than the index's published length", trackPath)
	}

	c.static = static
	c.dataStart = trackHeaderSize
	c.staticOffsets = offsets
	c.staticBytes = offsets[len(offsets)-1]
	c.offsets = append([]uint32(nil), offsets...)
	return nil
}

func (c *Corpus) loadLegacy(trackPath string, h trackHeader) error {
	static, err := mmapio.Open(trackPath)
	if err != nil {
		return err
	}
	need := int(h.legacyIndexOffset) + int(h.legacyIndexCount+1)*4
	if static.Len() < need {
		return saptid.Newf(saptid.KindCorruption, "legacy corpus %q truncated index section", trackPath)
	}
	ixBytes, err := static.Slice(int(h.legacyIndexOffset), int(h.legacyIndexCount+1)*4)
	if err != nil {
		return err
	}
	offsets := make([]uint32, h.legacyIndexCount+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(ixBytes[i*4 : i*4+4])
	}
	c.static = static
	c.dataStart = trackHeaderSize
	c.staticOffsets = offsets
	c.staticBytes = offsets[len(offsets)-1]
	c.offsets = append([]uint32(nil), offsets...)
	return nil
}

// Size returns the number of complete sentences.
func (c *Corpus) Size() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return uint32(len(c.offsets) - 1)
}

// ElemSize returns the corpus's per-element byte size.
func (c *Corpus) ElemSize() uint32 {
	return c.elemSize
}

// Writable reports whether Append is permitted.
func (c *Corpus) Writable() bool {
	return c.writable
}

// Sentence returns the raw packed bytes for sentence sid.
func (c *Corpus) Sentence(sid uint32) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if sid+1 >= uint32(len(c.offsets)) {
		return nil, saptid.Newf(saptid.KindInvariantViolation, "sentence id %d out of range (size %d)", sid, len(c.offsets)-1)
	}
	start, end := c.offsets[sid], c.offsets[sid+1]
	if end <= c.staticBytes {
		return c.static.Slice(c.dataStart+int(start), int(end-start))
	}
	if start >= c.staticBytes {
		rs, re := start-c.staticBytes, end-c.staticBytes
		return c.dynamicData[rs:re], nil
	}
	// A sentence should never straddle the static/dynamic boundary: the
	// boundary always sits exactly at a sentence offset.
	return nil, saptid.Newf(saptid.KindInvariantViolation, "sentence %d straddles static/dynamic boundary", sid)
}

// Append copies elems (packed raw bytes, nElems*ElemSize() long) in as
// one new sentence. For a file-backed corpus the track data is written
// and fsynced before the index publishes the new sentence count, so a
// crash between the two leaves the previous count visible and the
// partial tail is overwritten by the next append.
func (c *Corpus) Append(elems []byte, nElems uint32) (uint32, error) {
	if uint32(len(elems)) != nElems*c.elemSize {
		return 0, saptid.Newf(saptid.KindInvariantViolation, "element buffer length %d does not match %d elements of size %d", len(elems), nElems, c.elemSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.writable {
		return 0, saptid.New(saptid.KindUsageError, "corpus is not writable")
	}

	sid := uint32(len(c.offsets) - 1)
	oldTotal := c.offsets[len(c.offsets)-1]
	newTotal := oldTotal + uint32(len(elems))

	if c.trackFile != nil {
		if _, err := c.trackFile.WriteAt(elems, trackHeaderSize+int64(oldTotal)); err != nil {
			return 0, saptid.Wrap(saptid.KindIoFailure, err, "append track data")
		}
		if err := c.trackFile.Sync(); err != nil {
			return 0, saptid.Wrap(saptid.KindIoFailure, err, "fsync track data")
		}

		offsetBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(offsetBytes, newTotal)
		offsetPos := indexHeaderSize + int64(sid+1)*4
		if _, err := c.indexFile.WriteAt(offsetBytes, offsetPos); err != nil {
			return 0, saptid.Wrap(saptid.KindIoFailure, err, "append index offset")
		}
		countBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(countBytes, sid+1)
		if _, err := c.indexFile.WriteAt(countBytes, 8); err != nil {
			return 0, saptid.Wrap(saptid.KindIoFailure, err, "publish index header")
		}
		if err := c.indexFile.Sync(); err != nil {
			return 0, saptid.Wrap(saptid.KindIoFailure, err, "fsync index header")
		}
		// The track file's own header total-count field is informational
		// only (it matters for a fresh Write() snapshot and for the
		// legacy single-file format); the index file's published sentence
		// count together with its offsets array is the sole source of
		// truth for how much of the track file is valid, so a crash
		// between the two writes above and this point cannot desynchronise
		// anything: re-opening simply sees the pre-crash index count.
	}

	c.dynamicData = append(c.dynamicData, elems...)
	c.offsets = append(c.offsets, newTotal)
	return sid, nil
}

// Write serialises the full corpus (static prefix + dynamic tail) to a
// fresh track/index file pair at trackPath/indexPath.
func (c *Corpus) Write(trackPath, indexPath string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var data bytes.Buffer
	for sid := uint32(0); sid+1 < uint32(len(c.offsets)); sid++ {
		start, end := c.offsets[sid], c.offsets[sid+1]
		var chunk []byte
		var err error
		if end <= c.staticBytes {
			chunk, err = c.static.Slice(c.dataStart+int(start), int(end-start))
		} else if start >= c.staticBytes {
			chunk = c.dynamicData[start-c.staticBytes : end-c.staticBytes]
		} else {
			err = saptid.Newf(saptid.KindInvariantViolation, "sentence %d straddles boundary", sid)
		}
		if err != nil {
			return err
		}
		data.Write(chunk)
	}

	totalElems := uint32(data.Len()) / c.elemSize
	header := make([]byte, trackHeaderSize)
	copy(header[0:8], magicCurrent)
	binary.LittleEndian.PutUint32(header[20:24], totalElems)

	if err := os.WriteFile(trackPath, append(header, data.Bytes()...), 0o644); err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "write track file")
	}

	count := uint32(len(c.offsets) - 1)
	ixBuf := make([]byte, indexHeaderSize+4*len(c.offsets))
	copy(ixBuf[0:8], magicCurrent)
	binary.LittleEndian.PutUint32(ixBuf[8:12], count)
	for i, off := range c.offsets {
		binary.LittleEndian.PutUint32(ixBuf[indexHeaderSize+i*4:indexHeaderSize+i*4+4], off)
	}
	if err := os.WriteFile(indexPath, ixBuf, 0o644); err != nil {
		return saptid.Wrap(saptid.KindIoFailure, err, "write index file")
	}
	return nil
}

// Close releases the mapped static region and any open file handles.
func (c *Corpus) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	if c.static != nil {
		if err := c.static.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.trackFile != nil {
		if err := c.trackFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.indexFile != nil {
		if err := c.indexFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
