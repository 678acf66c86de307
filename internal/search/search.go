// Package search resolves a query term to record ranges and materializes
// them by re-decoding the source stream. The extractor keeps a single
// forward cursor in decoded coordinates; it never seeks, so latency is
// bounded by decode throughput times the last range offset.
package search

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mcollard0/nixIndex/internal/catalog"
	"github.com/mcollard0/nixIndex/internal/codec"
	"github.com/mcollard0/nixIndex/internal/errs"
)

type Config struct {
	// LargeFileCutoff is the encoded size above which a streaming codec is
	// driven through the external decoder subprocess, when one is configured.
	LargeFileCutoff int64
	ExternalDecoder string
	ChunkSize       int
}

type Engine struct {
	log     *zap.SugaredLogger
	cfg     Config
	metrics metricsCounters
}

func New(log *zap.SugaredLogger, cfg Config) *Engine {
	if cfg.LargeFileCutoff <= 0 {
		cfg.LargeFileCutoff = 1 << 30
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64 << 10
	}
	return &Engine{log: log, cfg: cfg}
}

// Result is one matching record, in source order.
type Result struct {
	RecordID int64
	Start    int64
	End      int64
	Bytes    []byte
}

type Summary struct {
	Term     string
	Matches  int
	Emitted  int
	Strategy string
	// Truncated is set when a decode error cut extraction short; results
	// emitted before the error stand.
	Truncated bool
	Elapsed   time.Duration
}

// Query looks up term, plans the extraction and emits matching records in
// ascending record id order. overrideSource substitutes the source path
// recorded in the catalog (the file content must still match).
func (e *Engine) Query(ctx context.Context, cat *catalog.Catalog, term, overrideSource string, emit func(Result) error) (*Summary, error) {
	started := time.Now()
	e.metrics.queriesTotal.Add(1)
	sum := &Summary{Term: strings.ToLower(strings.TrimSpace(term))}

	fail := func(err error) (*Summary, error) {
		e.metrics.queriesErrors.Add(1)
		return nil, err
	}

	matches, err := cat.MatchesFor(ctx, sum.Term)
	if err != nil {
		return fail(err)
	}
	if len(matches) == 0 {
		// Not an error: below-acuity and never-seen terms look identical.
		e.log.Infow("term not in dictionary", "term", sum.Term)
		sum.Elapsed = time.Since(started)
		return sum, nil
	}
	sum.Matches = len(matches)

	src, err := cat.Source(ctx)
	if err != nil {
		return fail(err)
	}
	path := src.Path
	if overrideSource != "" {
		path = overrideSource
	}
	fp, _, err := catalog.Fingerprint(path)
	if err != nil {
		return fail(err)
	}
	if fp != src.Fingerprint {
		return fail(errs.Errorf(errs.KindCatalogCorrupt,
			"source %s does not match the imported file; re-import or pass the original source", path))
	}

	tag, err := cat.Encoding(ctx)
	if err != nil {
		return fail(err)
	}
	spec, err := codec.Resolve(tag)
	if err != nil {
		return fail(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fail(errs.E(errs.KindIO, err))
	}
	defer f.Close()

	dec, strategy, err := e.openDecoded(ctx, spec, f, src.Size)
	if err != nil {
		return fail(err)
	}
	defer dec.Close()
	sum.Strategy = strategy

	emitted, truncated, err := e.extract(ctx, dec, matches, emit)
	sum.Emitted = emitted
	sum.Truncated = truncated
	if err != nil {
		return fail(err)
	}

	sum.Elapsed = time.Since(started)
	e.metrics.recordQuery(sum.Elapsed)
	return sum, nil
}

// openDecoded picks the extraction strategy from the encoding descriptor:
// in-process streaming below the cutoff, external subprocess above it, and a
// full-buffer decode for codecs that cannot stream (the whole decoded stream
// is then resident; the log line is the documented memory cost).
func (e *Engine) openDecoded(ctx context.Context, spec codec.Spec, f *os.File, size int64) (codec.Decoder, string, error) {
	if !spec.Streaming() {
		e.log.Warnw("non-streaming codec: buffering the entire decoded stream in memory",
			"encoding", spec.Tag(), "encoded_size", size)
		dec, err := spec.NewDecoder(ctx, f)
		if err != nil {
			return nil, "", err
		}
		defer dec.Close()
		buf, err := io.ReadAll(dec)
		if err != nil {
			return nil, "", err
		}
		return memDecoder{Reader: bytes.NewReader(buf)}, "full-buffer", nil
	}
	if size > e.cfg.LargeFileCutoff && e.cfg.ExternalDecoder != "" {
		dec, err := codec.NewExternal(ctx, e.cfg.ExternalDecoder, spec, f)
		if err != nil {
			return nil, "", err
		}
		return dec, "external", nil
	}
	dec, err := spec.NewDecoder(ctx, f)
	if err != nil {
		return nil, "", err
	}
	return dec, "streaming", nil
}

const skipChunk = 4 << 20

// extract walks matches in record id order with one forward cursor. Records
// are non-overlapping and ordered, so id order is offset order; duplicate
// ids and overlapping ranges are skipped defensively.
func (e *Engine) extract(ctx context.Context, dec codec.Decoder, matches []catalog.Match, emit func(Result) error) (emitted int, truncated bool, err error) {
	var cursor int64
	lastID := int64(-1)
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return emitted, false, errs.E(errs.KindCancelled, err)
		}
		if m.RecordID == lastID {
			continue
		}
		lastID = m.RecordID
		if m.Start < cursor || m.End < m.Start {
			e.log.Warnw("skipping out-of-order range", "record", m.RecordID, "start", m.Start, "end", m.End, "cursor", cursor)
			continue
		}
		if err := e.skip(ctx, dec, m.Start-cursor); err != nil {
			e.logDecodeErr(err)
			return emitted, true, nil
		}
		buf := make([]byte, m.End-m.Start)
		if _, err := io.ReadFull(dec, buf); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				err = errs.At(errs.KindDecode, dec.Pos(), io.ErrUnexpectedEOF)
			}
			e.logDecodeErr(err)
			return emitted, true, nil
		}
		cursor = m.End
		e.metrics.rangesServed.Add(1)
		e.metrics.bytesServed.Add(int64(len(buf)))
		if err := emit(Result{RecordID: m.RecordID, Start: m.Start, End: m.End, Bytes: buf}); err != nil {
			return emitted, false, err
		}
		emitted++
	}
	return emitted, false, nil
}

// skip advances the cursor without buffering, checking for cancellation at
// read boundaries.
func (e *Engine) skip(ctx context.Context, dec codec.Decoder, n int64) error {
	for n > 0 {
		if err := ctx.Err(); err != nil {
			return errs.E(errs.KindCancelled, err)
		}
		step := n
		if step > skipChunk {
			step = skipChunk
		}
		c, err := io.CopyN(io.Discard, dec, step)
		e.metrics.bytesSkipped.Add(c)
		if err != nil {
			if err == io.EOF {
				err = errs.At(errs.KindDecode, dec.Pos(), io.ErrUnexpectedEOF)
			}
			return err
		}
		n -= c
	}
	return nil
}

func (e *Engine) logDecodeErr(err error) {
	e.metrics.queriesErrors.Add(1)
	e.log.Errorw("decode failed during extraction; remaining ranges skipped", "err", err)
}

// memDecoder serves the full-buffer strategy: the decoded stream is already
// resident, but extraction still runs the same forward-cursor path.
type memDecoder struct {
	*bytes.Reader
}

func (m memDecoder) Pos() int64 {
	return m.Size() - int64(m.Len())
}

func (memDecoder) Close() error { return nil }
