// Command mtt-lexcount reads a bitext, counts per-token coalignment
// occurrences across N parallel partitions of the corpus, merges them,
// and writes a packed lexical-count table.
package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sapt-mt/sapt/internal/bitext"
	"github.com/sapt-mt/sapt/internal/saptlog"
	"github.com/sapt-mt/sapt/pkg/version"
)

var (
	outPath  string
	threads  int
	truncate int
	verbose  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mtt-lexcount <base-prefix> <src-lang> <trg-lang>",
		Short:   "Count per-token coalignment occurrences across a bitext",
		Version: version.Version,
		Args:    cobra.ExactArgs(3),
		RunE:    runLexcount,
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output packed-table file (required)")
	cmd.Flags().IntVarP(&threads, "threads", "t", 0, "partition count (default hardware parallelism)")
	cmd.Flags().IntVarP(&truncate, "truncate", "n", 0, "truncate to the first N sentences (0 = all)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "report progress")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runLexcount(cmd *cobra.Command, args []string) error {
	logger, cleanup, err := saptlog.Setup(logConfig())
	if err != nil {
		return err
	}
	defer cleanup()
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID), slog.String("tool", "mtt-lexcount"))

	base, srcLang, trgLang := args[0], args[1], args[2]
	bt, err := bitext.Open(base, srcLang, trgLang, 0, true)
	if err != nil {
		return err
	}
	defer bt.Close()

	n := bt.Size()
	if truncate > 0 && uint32(truncate) < n {
		n = uint32(truncate)
	}
	if verbose {
		logger.Info("counting", slog.Uint64("sentences", uint64(n)))
	}

	parts := threads
	if parts <= 0 {
		parts = runtime.GOMAXPROCS(0)
	}
	if parts > int(n)+1 {
		parts = int(n) + 1
	}
	if parts < 1 {
		parts = 1
	}

	partials := make([]map[uint32]map[uint32]uint64, parts)
	var wg sync.WaitGroup
	chunk := (n + uint32(parts) - 1) / uint32(parts)
	for p := 0; p < parts; p++ {
		start := uint32(p) * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			partials[p] = map[uint32]map[uint32]uint64{}
			continue
		}
		wg.Add(1)
		go func(p int, start, end uint32) {
			defer wg.Done()
			partials[p] = countRange(bt, start, end)
		}(p, start, end)
	}
	wg.Wait()

	counts := partials[0]
	for _, m := range partials[1:] {
		mergeCounts(counts, m)
	}

	srcVocabSize := uint32(bt.SourceVocab().Size())
	trgVocabSize := uint32(bt.TargetVocab().Size())
	if err := writeTable(outPath, counts, srcVocabSize, trgVocabSize); err != nil {
		return err
	}
	if verbose {
		logger.Info("done", slog.String("output", outPath))
	}
	return nil
}

func logConfig() saptlog.Config {
	if verbose {
		return saptlog.DebugConfig()
	}
	return saptlog.DefaultConfig()
}

func countRange(bt *bitext.Bitext, start, end uint32) map[uint32]map[uint32]uint64 {
	counts := make(map[uint32]map[uint32]uint64)
	for sid := start; sid < end; sid++ {
		src, err := bt.SourceSentence(sid)
		if err != nil {
			continue
		}
		trg, err := bt.TargetSentence(sid)
		if err != nil {
			continue
		}
		align, err := bt.Alignment(sid)
		if err != nil {
			continue
		}
		for _, a := range align {
			if a.Src >= src.Len() || a.Trg >= trg.Len() {
				continue
			}
			srcTok := src.At(a.Src)
			trgTok := trg.At(a.Trg)
			row, ok := counts[srcTok]
			if !ok {
				row = make(map[uint32]uint64)
				counts[srcTok] = row
			}
			row[trgTok]++
		}
	}
	return counts
}

func mergeCounts(dst, src map[uint32]map[uint32]uint64) {
	for srcTok, row := range src {
		dstRow, ok := dst[srcTok]
		if !ok {
			dst[srcTok] = row
			continue
		}
		for trgTok, n := range row {
			dstRow[trgTok] += n
		}
	}
}

// writeTable encodes the packed lexical-count table: a 16-byte header
// (index offset, source vocab size, target vocab size),
// then every source token's (target-id, count) rows back to back, then
// an offset index of (source-vocab-size + 1) entries, then the two
// per-vocabulary marginal tables.
func writeTable(path string, counts map[uint32]map[uint32]uint64, srcVocabSize, trgVocabSize uint32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rowOffsets := make([]uint64, srcVocabSize+1)
	srcMarginal := make([]uint64, srcVocabSize)
	trgMarginal := make([]uint64, trgVocabSize)

	var dataSize uint64
	rows := make([][]uint32, srcVocabSize)
	for src := uint32(0); src < srcVocabSize; src++ {
		row := counts[src]
		keys := make([]uint32, 0, len(row))
		for trg := range row {
			keys = append(keys, trg)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		rows[src] = keys
		rowOffsets[src] = dataSize
		dataSize += uint64(len(keys)) * 12
		for _, trg := range keys {
			n := row[trg]
			srcMarginal[src] += n
			if trg < trgVocabSize {
				trgMarginal[trg] += n
			}
		}
	}
	rowOffsets[srcVocabSize] = dataSize

	indexOffset := uint64(16) + dataSize

	header := make([]byte, 16)
	binary.LittleEndian.PutUint64(header[0:8], indexOffset)
	binary.LittleEndian.PutUint32(header[8:12], srcVocabSize)
	binary.LittleEndian.PutUint32(header[12:16], trgVocabSize)
	if _, err := f.Write(header); err != nil {
		return err
	}

	buf := make([]byte, 12)
	for src := uint32(0); src < srcVocabSize; src++ {
		row := counts[src]
		for _, trg := range rows[src] {
			binary.LittleEndian.PutUint32(buf[0:4], trg)
			binary.LittleEndian.PutUint64(buf[4:12], row[trg])
			if _, err := f.Write(buf); err != nil {
				return err
			}
		}
	}

	offBuf := make([]byte, 8)
	for _, off := range rowOffsets {
		binary.LittleEndian.PutUint64(offBuf, off)
		if _, err := f.Write(offBuf); err != nil {
			return err
		}
	}

	marginalBuf := make([]byte, 8)
	for _, n := range srcMarginal {
		binary.LittleEndian.PutUint64(marginalBuf, n)
		if _, err := f.Write(marginalBuf); err != nil {
			return err
		}
	}
	for _, n := range trgMarginal {
		binary.LittleEndian.PutUint64(marginalBuf, n)
		if _, err := f.Write(marginalBuf); err != nil {
			return err
		}
	}
	return nil
}
