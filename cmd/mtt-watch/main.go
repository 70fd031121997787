// Command mtt-watch tails a growing input file and feeds newly
// appended sentence pairs into a running bitext incrementally, serving
// as a reference implementation of an online producer. Each input line
// is one producer record:
//
//	domain<TAB>update-seq<TAB>src-ids<TAB>trg-ids<TAB>alignment
//
// where src-ids/trg-ids are whitespace-separated numeric token ids and
// alignment is whitespace-separated "i-j" links.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sapt-mt/sapt/internal/bitext"
	"github.com/sapt-mt/sapt/internal/corpus"
	"github.com/sapt-mt/sapt/internal/saptlog"
	"github.com/sapt-mt/sapt/pkg/version"
)

// watchStream is the single producer stream id this tool advances; a
// one-process tail loop has exactly one update stream.
const watchStream uint16 = 1

var (
	srcLang, trgLang string
	base             string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mtt-watch <input-file>",
		Short:   "Tail an input file and apply new sentence pairs to a bitext",
		Version: version.Version,
		Args:    cobra.ExactArgs(1),
		RunE:    runWatch,
	}
	cmd.Flags().StringVar(&base, "base", "", "bitext base path (required)")
	cmd.Flags().StringVar(&srcLang, "src-lang", "", "source language tag (required)")
	cmd.Flags().StringVar(&trgLang, "trg-lang", "", "target language tag (required)")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("src-lang")
	_ = cmd.MarkFlagRequired("trg-lang")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, cleanup, err := saptlog.Setup(saptlog.DefaultConfig())
	if err != nil {
		return err
	}
	defer cleanup()
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID), slog.String("tool", "mtt-watch"))

	inputPath := args[0]
	bt, err := bitext.Open(base, srcLang, trgLang, 0, false)
	if err != nil {
		return err
	}
	defer bt.Close()

	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	var lineNo uint64
	applyAvailable := func() error {
		for {
			line, err := reader.ReadString('\n')
			if len(line) > 0 {
				line = strings.TrimRight(line, "\n")
				if line != "" {
					lineNo++
					if err := applyLine(bt, line); err != nil {
						logger.Error("failed to apply line", slog.Uint64("line", lineNo), slog.String("error", err.Error()))
					}
				}
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
		}
	}

	if err := applyAvailable(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(inputPath); err != nil {
		return err
	}

	logger.Info("watching for appended sentence pairs", slog.String("file", inputPath))
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := applyAvailable(); err != nil {
					logger.Error("tail read failed", slog.String("error", err.Error()))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// applyLine applies one producer record. The record carries its own
// sequence number, so re-reading a file from the start after a restart
// replays updates the bitext has already absorbed and Add drops them.
func applyLine(bt *bitext.Bitext, line string) error {
	fields := strings.Split(line, "\t")
	if len(fields) != 5 {
		return fmt.Errorf("expected 5 tab-separated fields, got %d", len(fields))
	}
	domain := fields[0]
	seq, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return fmt.Errorf("update-seq: %w", err)
	}
	srcTokens, err := parseIDs(fields[2])
	if err != nil {
		return fmt.Errorf("src-ids: %w", err)
	}
	trgTokens, err := parseIDs(fields[3])
	if err != nil {
		return fmt.Errorf("trg-ids: %w", err)
	}
	alignment, err := parseAlignment(fields[4])
	if err != nil {
		return fmt.Errorf("alignment: %w", err)
	}
	update := corpus.UpdateID{Stream: watchStream, Seq: seq}
	return bt.Add(update, domain, srcTokens, trgTokens, alignment)
}

func parseIDs(field string) ([]corpus.Token, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, nil
	}
	fields := strings.Fields(field)
	out := make([]corpus.Token, len(fields))
	for i, f := range fields {
		id, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, err
		}
		out[i] = corpus.Token(id)
	}
	return out, nil
}

func parseAlignment(field string) ([]corpus.AlignPair, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, nil
	}
	fields := strings.Fields(field)
	out := make([]corpus.AlignPair, len(fields))
	for i, f := range fields {
		dash := strings.IndexByte(f, '-')
		if dash < 0 {
			return nil, fmt.Errorf("malformed link %q", f)
		}
		src, err := strconv.ParseUint(f[:dash], 10, 32)
		if err != nil {
			return nil, err
		}
		trg, err := strconv.ParseUint(f[dash+1:], 10, 32)
		if err != nil {
			return nil, err
		}
		out[i] = corpus.AlignPair{Src: uint32(src), Trg: uint32(trg)}
	}
	return out, nil
}
