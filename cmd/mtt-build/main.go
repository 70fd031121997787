// Command mtt-build indexes one language side of a bitext from
// whitespace-tokenised lines of numeric token ids, writing the
// track/index file pair, a KV-store directory, and a doc-map file.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sapt-mt/sapt/internal/corpus"
	"github.com/sapt-mt/sapt/internal/docmap"
	"github.com/sapt-mt/sapt/internal/kvstore"
	"github.com/sapt-mt/sapt/internal/saptconfig"
	"github.com/sapt-mt/sapt/internal/saptlog"
	"github.com/sapt-mt/sapt/internal/suffixindex"
	"github.com/sapt-mt/sapt/pkg/version"
)

// buildStream tags sentences ingested from a pre-existing file rather
// than a live producer; their line numbers double as sequence numbers.
const buildStream uint16 = 0

var (
	quiet       bool
	inputFile   string
	docMapPath  string
	globalIndex bool
	configPath  string
	leafBudget  int
	workers     int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mtt-build <prefix>.<lang>",
		Short:   "Build a token index for one language side of a bitext",
		Version: version.Version,
		Args:    cobra.ExactArgs(1),
		RunE:    runBuild,
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	cmd.Flags().StringVarP(&inputFile, "input-file", "f", "", "input file of whitespace-tokenised token ids (default stdin)")
	cmd.Flags().StringVarP(&docMapPath, "doc-map", "m", "", "file of one domain name per input sentence")
	cmd.Flags().BoolVarP(&globalIndex, "global-index", "g", false, "also build the global index when a doc-map is supplied")
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML sidecar of batch defaults")
	cmd.Flags().IntVar(&leafBudget, "leaf-budget", 0, "leaf array size budget K (0 = default)")
	cmd.Flags().IntVar(&workers, "workers", 0, "bulk-sort worker count (0 = hardware parallelism)")
	return cmd
}

// resolveInt layers an explicit flag over the sidecar file over the
// built-in default: a flag the user actually set always wins, even when
// its value equals the zero default.
func resolveInt(fs *pflag.FlagSet, name string, flagVal, fileVal int) int {
	if fs.Changed(name) {
		return flagVal
	}
	if fileVal != 0 {
		return fileVal
	}
	return flagVal
}

func runBuild(cmd *cobra.Command, args []string) error {
	logger, cleanup, err := saptlog.Setup(saptlog.DefaultConfig())
	if err != nil {
		return err
	}
	defer cleanup()
	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID), slog.String("tool", "mtt-build"))

	cfg, err := saptconfig.Load(configPath)
	if err != nil {
		return err
	}
	k := resolveInt(cmd.Flags(), "leaf-budget", leafBudget, cfg.LeafBudget)
	nWorkers := resolveInt(cmd.Flags(), "workers", workers, cfg.BulkWorkers)
	if nWorkers <= 0 {
		nWorkers = runtime.GOMAXPROCS(0)
	}

	base := args[0]
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 {
		return fmt.Errorf("positional argument %q must be of the form <prefix>.<lang>", base)
	}
	prefix, lang := base[:dot+1], base[dot+1:]

	in := io.Reader(os.Stdin)
	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	c := corpus.NewTokenCorpus()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var sentences uint32
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		tokens, err := parseTokens(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", sentences+1, err)
		}
		if _, err := c.AppendTokens(tokens); err != nil {
			return err
		}
		sentences++
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(prefix+"db", 0o755); err != nil {
		return err
	}
	store, err := kvstore.Open(prefix + "db/index.bbolt")
	if err != nil {
		return err
	}
	defer store.Close()

	if docMapPath == "" || globalIndex {
		idx := suffixindex.BulkBuild(c, sentences, k, nWorkers)
		if err := idx.Write(store.Namespace(lang + "|R|")); err != nil {
			return err
		}
		if !quiet {
			logger.Info("built global index", slog.Uint64("positions", uint64(idx.Size())))
		}
	}

	if docMapPath != "" {
		if err := buildDomainIndexes(store, c, prefix, lang, sentences, k, logger); err != nil {
			return err
		}
	}

	if err := c.Write(prefix+lang+".trk", prefix+lang+".six"); err != nil {
		return err
	}

	if !quiet {
		logger.Info("build complete", slog.Uint64("sentences", uint64(sentences)), slog.String("prefix", prefix), slog.String("lang", lang))
	}
	return nil
}

func parseTokens(line string) ([]corpus.Token, error) {
	if line == "" {
		return nil, nil
	}
	fields := strings.Fields(line)
	tokens := make([]corpus.Token, len(fields))
	for i, f := range fields {
		id, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%q is not a numeric token id: %w", f, err)
		}
		tokens[i] = corpus.Token(id)
	}
	return tokens, nil
}

// buildDomainIndexes reads the doc-map file (one domain name per input
// sentence, in order), records each sentence's domain in the persisted
// document map, and builds one token index per domain over that
// domain's sentences.
func buildDomainIndexes(store *kvstore.Store, c *corpus.TokenCorpus, prefix, lang string, sentences uint32, k int, logger *slog.Logger) error {
	f, err := os.Open(docMapPath)
	if err != nil {
		return err
	}
	defer f.Close()

	docs, err := docmap.Open(store.Namespace("docmap|"), prefix+"docmap.trk", prefix+"docmap.six", false)
	if err != nil {
		return err
	}
	defer docs.Close()

	bySid := make([]uint32, 0, sentences)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if uint32(len(bySid)) == sentences {
			break
		}
		name := strings.TrimSpace(scanner.Text())
		bySid = append(bySid, docs.ResolveDomain(name))
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if uint32(len(bySid)) != sentences {
		return fmt.Errorf("doc-map %q names %d sentences, input has %d", docMapPath, len(bySid), sentences)
	}

	// Only extend the persisted map past what an earlier build run (the
	// other language side sharing this prefix) already recorded.
	for sid := docs.Size(); sid < sentences; sid++ {
		update := corpus.UpdateID{Stream: buildStream, Seq: uint64(sid) + 1}
		if _, err := docs.RecordSentence(bySid[sid], update); err != nil {
			return err
		}
	}

	byDomain := make(map[uint32][]uint32)
	for sid, domain := range bySid {
		byDomain[domain] = append(byDomain[domain], uint32(sid))
	}
	for domain, sids := range byDomain {
		idx := suffixindex.New(c, k)
		for _, sid := range sids {
			idx.AddSentence(sid, c.Length(sid))
		}
		ns := store.Namespace(fmt.Sprintf("%s|D%08x|", lang, domain))
		if err := idx.Write(ns); err != nil {
			return err
		}
		if !quiet {
			logger.Info("built domain index", slog.Uint64("domain", uint64(domain)), slog.Uint64("positions", uint64(idx.Size())))
		}
	}
	return nil
}
