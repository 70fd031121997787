// Command mtt-align ingests word alignments: it reads "i-j" alignment
// pairs per line from stdin, one sentence per line, and appends them
// to an alignment corpus.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sapt-mt/sapt/internal/corpus"
	"github.com/sapt-mt/sapt/internal/saptlog"
	"github.com/sapt-mt/sapt/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "mtt-align <output.mam>",
		Short:   "Ingest word alignments from stdin into an Alignment Corpus",
		Version: version.Version,
		Args:    cobra.ExactArgs(1),
		RunE:    runAlign,
	}
}

func runAlign(cmd *cobra.Command, args []string) error {
	logger, cleanup, err := saptlog.Setup(saptlog.DefaultConfig())
	if err != nil {
		return err
	}
	defer cleanup()
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID), slog.String("tool", "mtt-align"))

	out := args[0]
	align := corpus.NewAlignmentCorpus()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var sentences uint32
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		pairs, err := parseLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", sentences+1, err)
		}
		if _, err := align.AppendAlignment(pairs); err != nil {
			return err
		}
		sentences++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if err := align.Write(out+".trk", out+".six"); err != nil {
		return err
	}
	logger.Info("alignment ingest complete", slog.Uint64("sentences", uint64(sentences)), slog.String("output", out))
	return nil
}

func parseLine(line string) ([]corpus.AlignPair, error) {
	if line == "" {
		return nil, nil
	}
	fields := strings.Fields(line)
	pairs := make([]corpus.AlignPair, len(fields))
	for i, f := range fields {
		dash := strings.IndexByte(f, '-')
		if dash < 0 {
			return nil, fmt.Errorf("malformed alignment link %q (want i-j)", f)
		}
		src, err := strconv.ParseUint(f[:dash], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed source offset in %q: %w", f, err)
		}
		trg, err := strconv.ParseUint(f[dash+1:], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed target offset in %q: %w", f, err)
		}
		pairs[i] = corpus.AlignPair{Src: uint32(src), Trg: uint32(trg)}
	}
	return pairs, nil
}
