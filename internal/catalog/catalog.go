// Package catalog is the durable inverted index: one encoding row, one
// source row, a record table keyed by decoded offsets, a token dictionary
// with occurrence counts, and token→record postings. A catalog handle
// represents exactly one imported source at a time.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mcollard0/nixIndex/internal/errs"
)

const dbFile = "catalog.db"

type Catalog struct {
	sql *sql.DB
	dir string
	log *zap.SugaredLogger
}

// Open opens (creating if needed) the catalog directory. WAL keeps readers
// live while the single writer commits batches or compacts.
func Open(dir string, log *zap.SugaredLogger) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.E(errs.KindIO, err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", filepath.Join(dir, dbFile))
	s, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.E(errs.KindIO, err)
	}
	// Multiple conns are fine; writes serialize on the sqlite side.
	s.SetMaxOpenConns(4)
	s.SetMaxIdleConns(4)

	c := &Catalog{sql: s, dir: dir, log: log}
	if err := c.migrate(); err != nil {
		_ = s.Close()
		return nil, errs.E(errs.KindIO, err)
	}
	if err := c.verify(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error { return c.sql.Close() }

// Dir returns the catalog directory (tables plus write-ahead log live there).
func (c *Catalog) Dir() string { return c.dir }

func (c *Catalog) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS encodings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			tag TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sources (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			import_id TEXT NOT NULL,
			path TEXT NOT NULL,
			fingerprint INTEGER NOT NULL,
			size INTEGER NOT NULL,
			imported_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY,
			start INTEGER NOT NULL,
			end INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			value TEXT NOT NULL UNIQUE,
			count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS postings (
			token_id INTEGER NOT NULL,
			record_id INTEGER NOT NULL,
			PRIMARY KEY (token_id, record_id)
		) WITHOUT ROWID;`,
	}
	for _, s := range stmts {
		if _, err := c.sql.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// verify enforces the open-time invariant: a non-empty record table without
// an encoding row means a torn import; the catalog must be reset before use.
func (c *Catalog) verify(ctx context.Context) error {
	var records, encodings int64
	if err := c.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM records`).Scan(&records); err != nil {
		return errs.E(errs.KindIO, err)
	}
	if err := c.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM encodings`).Scan(&encodings); err != nil {
		return errs.E(errs.KindIO, err)
	}
	if records > 0 && encodings == 0 {
		return errs.Errorf(errs.KindCatalogCorrupt, "record table is non-empty but no encoding row exists; reset the catalog")
	}
	return nil
}

// Reset truncates all five tables. An import always starts here.
func (c *Catalog) Reset(ctx context.Context) error {
	for _, t := range []string{"postings", "tokens", "records", "sources", "encodings"} {
		if _, err := c.sql.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return errs.E(errs.KindIO, err)
		}
	}
	// restart dense token ids at 1
	_, _ = c.sql.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name='tokens'`)
	return nil
}

func (c *Catalog) PutEncoding(ctx context.Context, tag string) error {
	_, err := c.sql.ExecContext(ctx, `INSERT INTO encodings(id, tag) VALUES(1, ?)`, tag)
	return errs.E(errs.KindIO, err)
}

type Source struct {
	ImportID    string
	Path        string
	Fingerprint uint64
	Size        int64
	ImportedAt  time.Time
}

func (c *Catalog) PutSource(ctx context.Context, src Source) error {
	_, err := c.sql.ExecContext(ctx,
		`INSERT INTO sources(id, import_id, path, fingerprint, size, imported_at) VALUES(1, ?, ?, ?, ?, ?)`,
		src.ImportID, src.Path, int64(src.Fingerprint), src.Size, src.ImportedAt.Unix())
	return errs.E(errs.KindIO, err)
}

func (c *Catalog) Encoding(ctx context.Context) (string, error) {
	var tag string
	err := c.sql.QueryRowContext(ctx, `SELECT tag FROM encodings WHERE id=1`).Scan(&tag)
	if err == sql.ErrNoRows {
		return "", errs.Errorf(errs.KindCatalogCorrupt, "catalog has no encoding row; run an import first")
	}
	if err != nil {
		return "", errs.E(errs.KindIO, err)
	}
	return tag, nil
}

func (c *Catalog) Source(ctx context.Context) (Source, error) {
	var src Source
	var fp, at int64
	err := c.sql.QueryRowContext(ctx, `SELECT import_id, path, fingerprint, size, imported_at FROM sources WHERE id=1`).
		Scan(&src.ImportID, &src.Path, &fp, &src.Size, &at)
	if err == sql.ErrNoRows {
		return Source{}, errs.Errorf(errs.KindCatalogCorrupt, "catalog has no source row; run an import first")
	}
	if err != nil {
		return Source{}, errs.E(errs.KindIO, err)
	}
	src.Fingerprint = uint64(fp)
	src.ImportedAt = time.Unix(at, 0)
	return src, nil
}

// PostingsFor returns the record ids containing value, ascending. A missing
// token returns an empty slice, not an error.
func (c *Catalog) PostingsFor(ctx context.Context, value string) ([]int64, error) {
	rows, err := c.sql.QueryContext(ctx,
		`SELECT p.record_id FROM tokens t JOIN postings p ON p.token_id = t.id WHERE t.value = ? ORDER BY p.record_id`,
		value)
	if err != nil {
		return nil, errs.E(errs.KindIO, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errs.E(errs.KindIO, err)
		}
		ids = append(ids, id)
	}
	return ids, errs.E(errs.KindIO, rows.Err())
}

func (c *Catalog) RecordRange(ctx context.Context, id int64) (start, end int64, err error) {
	err = c.sql.QueryRowContext(ctx, `SELECT start, end FROM records WHERE id = ?`, id).Scan(&start, &end)
	if err == sql.ErrNoRows {
		return 0, 0, errs.Errorf(errs.KindCatalogCorrupt, "posting references missing record %d", id)
	}
	if err != nil {
		return 0, 0, errs.E(errs.KindIO, err)
	}
	return start, end, nil
}

// Match is a record hit for a query term.
type Match struct {
	RecordID int64
	Start    int64
	End      int64
}

// MatchesFor joins postings with record offsets in one pass, ascending by
// record id (source order).
func (c *Catalog) MatchesFor(ctx context.Context, value string) ([]Match, error) {
	rows, err := c.sql.QueryContext(ctx, `
		SELECT r.id, r.start, r.end
		FROM tokens t
		JOIN postings p ON p.token_id = t.id
		JOIN records r ON r.id = p.record_id
		WHERE t.value = ?
		ORDER BY r.id`, value)
	if err != nil {
		return nil, errs.E(errs.KindIO, err)
	}
	defer rows.Close()
	var out []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.RecordID, &m.Start, &m.End); err != nil {
			return nil, errs.E(errs.KindIO, err)
		}
		out = append(out, m)
	}
	return out, errs.E(errs.KindIO, rows.Err())
}

type Stats struct {
	Records     int64
	Tokens      int64
	Postings    int64
	Occurrences int64
}

func (c *Catalog) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	row := c.sql.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(1) FROM records),
		(SELECT COUNT(1) FROM tokens),
		(SELECT COUNT(1) FROM postings),
		(SELECT COALESCE(SUM(count), 0) FROM tokens)`)
	if err := row.Scan(&st.Records, &st.Tokens, &st.Postings, &st.Occurrences); err != nil {
		return Stats{}, errs.E(errs.KindIO, err)
	}
	return st, nil
}

type AcuityStats struct {
	Threshold    int64
	TokensBefore int64
	TokensAfter  int64
	Elapsed      time.Duration
}

// ApplyAcuity deletes every token whose occurrence count is strictly below
// threshold, cascades to its postings, then reclaims free space and rebuilds
// the indexes. Readers stay live throughout via the WAL.
func (c *Catalog) ApplyAcuity(ctx context.Context, threshold int64) (AcuityStats, error) {
	started := time.Now()
	st := AcuityStats{Threshold: threshold}
	if err := c.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM tokens`).Scan(&st.TokensBefore); err != nil {
		return st, errs.E(errs.KindIO, err)
	}

	tx, err := c.sql.BeginTx(ctx, nil)
	if err != nil {
		return st, errs.E(errs.KindIO, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM postings WHERE token_id IN (SELECT id FROM tokens WHERE count < ?)`, threshold); err != nil {
		return st, errs.E(errs.KindIO, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE count < ?`, threshold); err != nil {
		return st, errs.E(errs.KindIO, err)
	}
	if err := tx.Commit(); err != nil {
		return st, errs.E(errs.KindIO, err)
	}

	if _, err := c.sql.ExecContext(ctx, `REINDEX`); err != nil {
		return st, errs.E(errs.KindIO, err)
	}
	if _, err := c.sql.ExecContext(ctx, `VACUUM`); err != nil {
		return st, errs.E(errs.KindIO, err)
	}

	if err := c.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM tokens`).Scan(&st.TokensAfter); err != nil {
		return st, errs.E(errs.KindIO, err)
	}
	st.Elapsed = time.Since(started)
	if c.log != nil {
		c.log.Infow("acuity compaction",
			"threshold", threshold,
			"tokens_before", st.TokensBefore,
			"tokens_after", st.TokensAfter,
			"elapsed", st.Elapsed)
	}
	return st, nil
}
