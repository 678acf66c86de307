// Package importer drives the one-time import: source bytes through the
// codec, the splitter and the tokenizer into the catalog, in bounded memory.
// Peak residency is one record plus one write batch plus one codec window,
// independent of source size.
package importer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mcollard0/nixIndex/internal/catalog"
	"github.com/mcollard0/nixIndex/internal/codec"
	"github.com/mcollard0/nixIndex/internal/errs"
	"github.com/mcollard0/nixIndex/internal/split"
	"github.com/mcollard0/nixIndex/internal/tokenize"
	"github.com/mcollard0/nixIndex/internal/units"
)

type Importer struct {
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Importer { return &Importer{log: log} }

type Options struct {
	// SourcePath is the encoded input; "-" reads stdin, spooled to a temp
	// file so search can re-decode the same bytes later.
	SourcePath string
	Stdin      io.Reader
	Encoding   string
	Separator  string
	ChunkSize  int
	BatchSize  int
	// Acuity deletes tokens with occurrence count strictly below it after
	// the stream ends; 0 skips the pass.
	Acuity int64
}

type Summary struct {
	ImportID     string
	SourcePath   string
	Records      int64
	TokensBefore int64
	TokensAfter  int64
	Occurrences  int64
	SourceBytes  int64
	DecodedBytes int64
	Elapsed      time.Duration
}

// Run resets the catalog and repopulates it from the source. Any error
// leaves the catalog prefix-consistent but invalid; rerun to recover.
func (im *Importer) Run(ctx context.Context, cat *catalog.Catalog, opts Options) (*Summary, error) {
	started := time.Now()

	spec, err := codec.Resolve(opts.Encoding)
	if err != nil {
		return nil, err
	}
	sep, err := split.Parse(opts.Separator)
	if err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64 << 10
	}

	path := opts.SourcePath
	if path == "-" {
		if path, err = im.spoolStdin(opts.Stdin); err != nil {
			return nil, err
		}
	}
	if path, err = filepath.Abs(path); err != nil {
		return nil, errs.E(errs.KindIO, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errs.E(errs.KindIO, err)
	}
	defer f.Close()

	fp, size, err := catalog.Fingerprint(path)
	if err != nil {
		return nil, err
	}

	importID := uuid.NewString()
	if err := cat.Reset(ctx); err != nil {
		return nil, err
	}
	if err := cat.PutEncoding(ctx, spec.Tag()); err != nil {
		return nil, err
	}
	if err := cat.PutSource(ctx, catalog.Source{
		ImportID:    importID,
		Path:        path,
		Fingerprint: fp,
		Size:        size,
		ImportedAt:  started,
	}); err != nil {
		return nil, err
	}

	dec, err := spec.NewDecoder(ctx, f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	// Decoder worker feeds the splitter through a pipe; the pipe is the
	// bounded queue, so decode I/O overlaps tokenization without growing
	// memory. Correctness is as if the stages ran sequentially.
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, cerr := io.CopyBuffer(pw, dec, make([]byte, opts.ChunkSize))
		pw.CloseWithError(cerr)
		return cerr
	})
	records, err := im.indexStream(gctx, cat, pr, sep, opts)
	// Unblock the copier if the index loop bailed mid-stream.
	_ = pr.Close()
	if werr := g.Wait(); err == nil && werr != nil {
		err = werr
	}
	if err != nil {
		if errs.IsCancelled(err) {
			return nil, errs.Errorf(errs.KindCancelled, "import cancelled after %d records; catalog is partial; rerun required", records)
		}
		return nil, err
	}

	stats, err := cat.Stats(ctx)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		ImportID:     importID,
		SourcePath:   path,
		Records:      stats.Records,
		TokensBefore: stats.Tokens,
		TokensAfter:  stats.Tokens,
		Occurrences:  stats.Occurrences,
		SourceBytes:  size,
		DecodedBytes: dec.Pos(),
	}

	if opts.Acuity > 0 {
		ac, err := cat.ApplyAcuity(ctx, opts.Acuity)
		if err != nil {
			return nil, err
		}
		sum.TokensAfter = ac.TokensAfter
	}

	sum.Elapsed = time.Since(started)
	im.log.Infow("import complete",
		"records", sum.Records,
		"tokens_before", sum.TokensBefore,
		"tokens_after", sum.TokensAfter,
		"occurrences", sum.Occurrences,
		"source", units.Bytes(sum.SourceBytes),
		"decoded", units.Bytes(sum.DecodedBytes),
		"elapsed", sum.Elapsed)
	return sum, nil
}

// indexStream splits the decoded stream and writes records, tokens and
// postings in batches. Cancellation is honored at batch boundaries; whatever
// was committed stays committed.
func (im *Importer) indexStream(ctx context.Context, cat *catalog.Catalog, r io.Reader, sep split.Separator, opts Options) (int64, error) {
	sp := split.New(r, sep, opts.ChunkSize)
	tok := tokenize.New()

	batch, err := cat.BeginBatch(ctx)
	if err != nil {
		return 0, err
	}
	var records int64
	abort := func(err error) (int64, error) {
		_ = batch.Rollback()
		return records, err
	}

	for {
		rec, err := sp.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return abort(err)
		}
		id, err := batch.AppendRecord(ctx, rec.Start, rec.End)
		if err != nil {
			return abort(err)
		}
		err = tok.Distinct(rec.Bytes, func(t string) error {
			tid, err := batch.UpsertToken(ctx, t)
			if err != nil {
				return err
			}
			return batch.AddPosting(ctx, tid, id)
		})
		if err != nil {
			return abort(err)
		}
		records++

		if batch.Appended() >= opts.BatchSize {
			if err := batch.Commit(); err != nil {
				return records, err
			}
			if err := ctx.Err(); err != nil {
				return records, errs.E(errs.KindCancelled, err)
			}
			if batch, err = cat.BeginBatch(ctx); err != nil {
				return records, err
			}
		}
	}
	return records, batch.Commit()
}

func (im *Importer) spoolStdin(stdin io.Reader) (string, error) {
	if stdin == nil {
		stdin = os.Stdin
	}
	f, err := os.CreateTemp("", "nixindex-src-*.bin")
	if err != nil {
		return "", errs.E(errs.KindIO, err)
	}
	n, err := io.Copy(f, stdin)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", errs.E(errs.KindIO, err)
	}
	// The spool is the catalog's source of truth for later searches, so it
	// is intentionally not removed.
	im.log.Infow("stdin spooled", "path", f.Name(), "bytes", units.Bytes(n))
	return f.Name(), nil
}
