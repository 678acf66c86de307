package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mcollard0/nixIndex/internal/catalog"
	"github.com/mcollard0/nixIndex/internal/config"
	"github.com/mcollard0/nixIndex/internal/errs"
	"github.com/mcollard0/nixIndex/internal/generate"
	"github.com/mcollard0/nixIndex/internal/importer"
	"github.com/mcollard0/nixIndex/internal/search"
	"github.com/mcollard0/nixIndex/internal/units"
)

func main() {
	var (
		cfgPath    string
		catalogDir string
		verbose    bool

		importSrc string
		encoding  string
		separator string
		chunkSpec string
		acuity    int64

		searchTerm string
		sourcePath string
		truncate   int

		genMode bool
		genURL  string
		genFile string
		genSize string
		genOut  string
	)

	flag.StringVar(&cfgPath, "config", "", "path to config file (json); created with defaults if missing")
	flag.StringVar(&catalogDir, "catalog", "", "catalog directory (overrides config)")
	flag.BoolVar(&verbose, "v", false, "verbose logging")

	flag.StringVar(&importSrc, "import", "", "import mode: source path, or - for stdin")
	flag.StringVar(&encoding, "encoding", "none", "encoding tag (gzip, bzip2, base64, caesar:3, ...)")
	flag.StringVar(&separator, "sep", `\n`, "record separator: literal with escapes, or re:<pattern>")
	flag.StringVar(&chunkSpec, "chunk", "", "read chunk size (64K, 4MB, ...; bare number = KiB)")
	flag.Int64Var(&acuity, "acuity", -1, "drop tokens occurring in fewer than N records (0 disables)")

	flag.StringVar(&searchTerm, "search", "", "search mode: whole-word query term")
	flag.StringVar(&sourcePath, "source", "", "search: override source path recorded in the catalog")
	flag.IntVar(&truncate, "truncate", -1, "search: print at most N bytes per record (0 = unlimited)")

	flag.BoolVar(&genMode, "generate", false, "generate mode: build an encoded test fixture")
	flag.StringVar(&genURL, "url", "", "generate: fetch payload from URL")
	flag.StringVar(&genFile, "file", "", "generate: read payload from file")
	flag.StringVar(&genSize, "size", "1M", "generate: target fixture size")
	flag.StringVar(&genOut, "out", "", "generate: output path (default: OS temp file)")
	flag.Parse()

	modes := 0
	if importSrc != "" {
		modes++
	}
	if searchTerm != "" {
		modes++
	}
	if genMode {
		modes++
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "nixindex: exactly one of -import, -search or -generate is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := config.EnsureConfigFile(cfgPath); err != nil {
		fatal(fmt.Errorf("config bootstrap: %w", err))
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal(fmt.Errorf("config load: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("config validate: %w", err))
	}
	if catalogDir != "" {
		cfg.CatalogDir = catalogDir
	}
	if chunkSpec != "" {
		cfg.Import.ChunkSize = chunkSpec
	}
	if acuity >= 0 {
		cfg.Import.Acuity = acuity
	}
	if truncate >= 0 {
		cfg.Search.TruncateBytes = truncate
	}

	log := newLogger(verbose)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case importSrc != "":
		err = runImport(ctx, log, cfg, importSrc, encoding, separator)
	case searchTerm != "":
		err = runSearch(ctx, log, cfg, searchTerm, sourcePath)
	default:
		err = runGenerate(ctx, log, cfg, genURL, genFile, encoding, genSize, genOut)
	}
	if err != nil {
		fatal(err)
	}
}

func runImport(ctx context.Context, log *zap.SugaredLogger, cfg config.Config, src, encoding, separator string) error {
	chunk, err := units.ParseSize(cfg.Import.ChunkSize)
	if err != nil {
		return err
	}
	cat, err := catalog.Open(cfg.CatalogDir, log)
	if err != nil {
		return err
	}
	defer cat.Close()

	sum, err := importer.New(log).Run(ctx, cat, importer.Options{
		SourcePath: src,
		Encoding:   encoding,
		Separator:  separator,
		ChunkSize:  int(chunk),
		BatchSize:  cfg.Import.BatchSize,
		Acuity:     cfg.Import.Acuity,
	})
	if err != nil {
		return err
	}
	fmt.Printf("imported %d records from %s (%s encoded, %s decoded)\n",
		sum.Records, sum.SourcePath, units.Bytes(sum.SourceBytes), units.Bytes(sum.DecodedBytes))
	fmt.Printf("tokens: %d before acuity, %d after; %d total occurrences\n",
		sum.TokensBefore, sum.TokensAfter, sum.Occurrences)
	fmt.Printf("elapsed: %s\n", sum.Elapsed.Round(time.Millisecond))
	return nil
}

func runSearch(ctx context.Context, log *zap.SugaredLogger, cfg config.Config, term, override string) error {
	cat, err := catalog.Open(cfg.CatalogDir, log)
	if err != nil {
		return err
	}
	defer cat.Close()

	eng := search.New(log, search.Config{
		LargeFileCutoff: cfg.LargeFileCutoffBytes(),
		ExternalDecoder: cfg.ExternalDecoderPath(),
		ChunkSize:       int(cfg.ChunkSizeBytes()),
	})
	sum, err := eng.Query(ctx, cat, term, override, func(r search.Result) error {
		b := r.Bytes
		cut := false
		if n := cfg.Search.TruncateBytes; n > 0 && len(b) > n {
			b = b[:n]
			cut = true
		}
		if _, err := os.Stdout.Write(b); err != nil {
			return err
		}
		if cut {
			fmt.Print(" …")
		}
		fmt.Println()
		return nil
	})
	if err != nil {
		return err
	}
	log.Infow("search metrics", "metrics", eng.SnapshotMetrics())
	if sum.Truncated {
		fmt.Fprintln(os.Stderr, "nixindex: decode error during extraction; results are a prefix")
	}
	fmt.Printf("%d results in %s\n", sum.Emitted, sum.Elapsed.Round(time.Millisecond))
	return nil
}

func runGenerate(ctx context.Context, log *zap.SugaredLogger, cfg config.Config, url, file, encoding, sizeSpec, out string) error {
	target, err := units.ParseSize(sizeSpec)
	if err != nil {
		return err
	}
	path, written, err := generate.Run(ctx, log, generate.Options{
		URL:         url,
		File:        file,
		Encoding:    encoding,
		TargetBytes: target,
		OutPath:     out,
	})
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s (%s)\n", path, units.Bytes(written))
	return nil
}

func newLogger(verbose bool) *zap.SugaredLogger {
	zc := zap.NewDevelopmentConfig()
	zc.OutputPaths = []string{"stderr"}
	if !verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	l, err := zc.Build()
	if err != nil {
		fatal(err)
	}
	return l.Sugar()
}

// fatal prints the single operator-facing diagnostic line and exits
// non-zero. The error kind is part of the message.
func fatal(err error) {
	if errs.IsCancelled(err) {
		fmt.Fprintf(os.Stderr, "nixindex: cancelled: %v\n", err)
		os.Exit(130)
	}
	fmt.Fprintf(os.Stderr, "nixindex: %v\n", err)
	os.Exit(1)
}
