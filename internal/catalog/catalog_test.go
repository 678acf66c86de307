package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mcollard0/nixIndex/internal/errs"
)

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cat"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func seed(t *testing.T, c *Catalog, records [][2]int64, postings map[string][]int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Reset(ctx))
	require.NoError(t, c.PutEncoding(ctx, "none"))
	require.NoError(t, c.PutSource(ctx, Source{ImportID: "t", Path: "/dev/null", ImportedAt: time.Now()}))

	b, err := c.BeginBatch(ctx)
	require.NoError(t, err)
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i], err = b.AppendRecord(ctx, r[0], r[1])
		require.NoError(t, err)
	}
	for tok, recIdxs := range postings {
		for _, ri := range recIdxs {
			tid, err := b.UpsertToken(ctx, tok)
			require.NoError(t, err)
			require.NoError(t, b.AddPosting(ctx, tid, ids[ri]))
		}
	}
	require.NoError(t, b.Commit())
}

func TestDenseMonotonicRecordIDs(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	require.NoError(t, c.Reset(ctx))
	require.NoError(t, c.PutEncoding(ctx, "none"))

	b, err := c.BeginBatch(ctx)
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		id, err := b.AppendRecord(ctx, i*10, i*10+5)
		require.NoError(t, err)
		assert.Equal(t, i+1, id)
	}
	require.NoError(t, b.Commit())

	// ids keep counting across batches
	b, err = c.BeginBatch(ctx)
	require.NoError(t, err)
	id, err := b.AppendRecord(ctx, 50, 55)
	require.NoError(t, err)
	assert.EqualValues(t, 6, id)
	require.NoError(t, b.Commit())

	start, end, err := c.RecordRange(ctx, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 20, start)
	assert.EqualValues(t, 25, end)
}

func TestPostingsSetSemantics(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	seed(t, c, [][2]int64{{0, 10}, {10, 20}}, nil)

	b, err := c.BeginBatch(ctx)
	require.NoError(t, err)
	tid, err := b.UpsertToken(ctx, "alpha")
	require.NoError(t, err)
	// duplicate posting within one record emission collapses
	require.NoError(t, b.AddPosting(ctx, tid, 1))
	require.NoError(t, b.AddPosting(ctx, tid, 1))
	require.NoError(t, b.Commit())

	ids, err := c.PostingsFor(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
}

func TestPostingsMissOrdering(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	seed(t, c,
		[][2]int64{{0, 5}, {5, 9}, {9, 14}},
		map[string][]int64{"alpha": {2, 0}, "gamma": {1}})

	ids, err := c.PostingsFor(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids) // ascending record id

	ids, err = c.PostingsFor(ctx, "delta")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ms, err := c.MatchesFor(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.EqualValues(t, 0, ms[0].Start)
	assert.EqualValues(t, 5, ms[0].End)
	assert.EqualValues(t, 9, ms[1].Start)
}

func TestUpsertTokenCounts(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	seed(t, c,
		[][2]int64{{0, 1}, {1, 2}, {2, 3}},
		map[string][]int64{"common": {0, 1, 2}, "rare": {1}})

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.Records)
	assert.EqualValues(t, 2, st.Tokens)
	assert.EqualValues(t, 4, st.Postings)
	assert.EqualValues(t, 4, st.Occurrences)
}

func TestApplyAcuity(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	seed(t, c,
		[][2]int64{{0, 1}, {1, 2}, {2, 3}, {3, 4}},
		map[string][]int64{
			"common":   {0, 1, 2, 3},
			"rare":     {1},
			"boundary": {0, 2}, // count exactly at threshold survives
		})

	ac, err := c.ApplyAcuity(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, ac.TokensBefore)
	assert.EqualValues(t, 2, ac.TokensAfter)

	ids, err := c.PostingsFor(ctx, "rare")
	require.NoError(t, err)
	assert.Empty(t, ids)
	ids, err = c.PostingsFor(ctx, "boundary")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	// every surviving posting references a live token
	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 6, st.Postings)
}

func TestResetTruncatesEverything(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	seed(t, c, [][2]int64{{0, 1}}, map[string][]int64{"x": {0}})
	require.NoError(t, c.Reset(ctx))

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Records)
	assert.Zero(t, st.Tokens)
	assert.Zero(t, st.Postings)
	_, err = c.Encoding(ctx)
	assert.Equal(t, errs.KindCatalogCorrupt, errs.KindOf(err))
}

func TestCorruptDetectionOnOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cat")
	log := zap.NewNop().Sugar()
	c, err := Open(dir, log)
	require.NoError(t, err)
	ctx := context.Background()
	// records without an encoding row: torn import
	b, err := c.BeginBatch(ctx)
	require.NoError(t, err)
	_, err = b.AppendRecord(ctx, 0, 1)
	require.NoError(t, err)
	require.NoError(t, b.Commit())
	require.NoError(t, c.Close())

	_, err = Open(dir, log)
	require.Error(t, err)
	assert.Equal(t, errs.KindCatalogCorrupt, errs.KindOf(err))
}

func TestSourceRoundTrip(t *testing.T) {
	c := openTemp(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 0)
	require.NoError(t, c.PutEncoding(ctx, "gzip"))
	require.NoError(t, c.PutSource(ctx, Source{
		ImportID: "abc", Path: "/data/huge.gz", Fingerprint: 0xdeadbeefcafe, Size: 123, ImportedAt: at,
	}))

	tag, err := c.Encoding(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gzip", tag)
	src, err := c.Source(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data/huge.gz", src.Path)
	assert.EqualValues(t, 0xdeadbeefcafe, src.Fingerprint)
	assert.EqualValues(t, 123, src.Size)
	assert.True(t, src.ImportedAt.Equal(at))
}

func TestFingerprintDetectsChange(t *testing.T) {
	p := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(p, []byte("original contents"), 0o644))
	fp1, size1, err := Fingerprint(p)
	require.NoError(t, err)
	assert.EqualValues(t, 17, size1)

	require.NoError(t, os.WriteFile(p, []byte("swapped contents!"), 0o644))
	fp2, _, err := Fingerprint(p)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)

	// same bytes, same fingerprint
	require.NoError(t, os.WriteFile(p, []byte("original contents"), 0o644))
	fp3, _, err := Fingerprint(p)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp3)
}
