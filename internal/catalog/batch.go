package catalog

import (
	"context"
	"database/sql"

	"github.com/mcollard0/nixIndex/internal/errs"
)

// Batch groups record, token and posting writes into one transaction so the
// importer can commit every K records with a single fsync. Record ids are
// allocated densely in append order, continuing across batches.
type Batch struct {
	tx         *sql.Tx
	insRecord  *sql.Stmt
	upToken    *sql.Stmt
	insPosting *sql.Stmt
	nextRecord int64
	appended   int
}

func (c *Catalog) BeginBatch(ctx context.Context) (*Batch, error) {
	var next int64
	if err := c.sql.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM records`).Scan(&next); err != nil {
		return nil, errs.E(errs.KindIO, err)
	}
	tx, err := c.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.E(errs.KindIO, err)
	}
	b := &Batch{tx: tx, nextRecord: next}
	if b.insRecord, err = tx.PrepareContext(ctx, `INSERT INTO records(id, start, end) VALUES(?, ?, ?)`); err != nil {
		_ = tx.Rollback()
		return nil, errs.E(errs.KindIO, err)
	}
	if b.upToken, err = tx.PrepareContext(ctx,
		`INSERT INTO tokens(value, count) VALUES(?, 1)
		 ON CONFLICT(value) DO UPDATE SET count = count + 1
		 RETURNING id`); err != nil {
		_ = tx.Rollback()
		return nil, errs.E(errs.KindIO, err)
	}
	if b.insPosting, err = tx.PrepareContext(ctx, `INSERT OR IGNORE INTO postings(token_id, record_id) VALUES(?, ?)`); err != nil {
		_ = tx.Rollback()
		return nil, errs.E(errs.KindIO, err)
	}
	return b, nil
}

// AppendRecord allocates the next dense record id for [start, end).
func (b *Batch) AppendRecord(ctx context.Context, start, end int64) (int64, error) {
	id := b.nextRecord
	if _, err := b.insRecord.ExecContext(ctx, id, start, end); err != nil {
		return 0, errs.E(errs.KindIO, err)
	}
	b.nextRecord++
	b.appended++
	return id, nil
}

// UpsertToken inserts value or bumps its occurrence count, returning the
// token id either way. Call it once per distinct token per record.
func (b *Batch) UpsertToken(ctx context.Context, value string) (int64, error) {
	var id int64
	if err := b.upToken.QueryRowContext(ctx, value).Scan(&id); err != nil {
		return 0, errs.E(errs.KindIO, err)
	}
	return id, nil
}

func (b *Batch) AddPosting(ctx context.Context, tokenID, recordID int64) error {
	_, err := b.insPosting.ExecContext(ctx, tokenID, recordID)
	return errs.E(errs.KindIO, err)
}

// Appended reports how many records this batch holds so far.
func (b *Batch) Appended() int { return b.appended }

func (b *Batch) Commit() error {
	b.closeStmts()
	return errs.E(errs.KindIO, b.tx.Commit())
}

func (b *Batch) Rollback() error {
	b.closeStmts()
	return b.tx.Rollback()
}

func (b *Batch) closeStmts() {
	_ = b.insRecord.Close()
	_ = b.upToken.Close()
	_ = b.insPosting.Close()
}
