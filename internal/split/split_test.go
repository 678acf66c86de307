package split

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcollard0/nixIndex/internal/errs"
)

func collect(t *testing.T, input, sepSpec string, chunk int) []Record {
	t.Helper()
	sep, err := Parse(sepSpec)
	require.NoError(t, err)
	sp := New(strings.NewReader(input), sep, chunk)
	var out []Record
	for {
		rec, err := sp.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		cp := rec
		cp.Bytes = append([]byte(nil), rec.Bytes...)
		out = append(out, cp)
	}
}

func TestLiteralNewline(t *testing.T) {
	recs := collect(t, "alpha beta\ngamma alpha\n", `\n`, 8)
	require.Len(t, recs, 2)
	assert.Equal(t, "alpha beta", string(recs[0].Bytes))
	assert.Equal(t, "gamma alpha", string(recs[1].Bytes))
	assert.EqualValues(t, 0, recs[0].Start)
	assert.EqualValues(t, 10, recs[0].End)
	assert.EqualValues(t, 11, recs[1].Start)
	assert.EqualValues(t, 22, recs[1].End)
	assert.EqualValues(t, 0, recs[0].Index)
	assert.EqualValues(t, 1, recs[1].Index)
}

func TestTrailingPartialRecord(t *testing.T) {
	recs := collect(t, "one\ntwo", `\n`, 4)
	require.Len(t, recs, 2)
	assert.Equal(t, "two", string(recs[1].Bytes))
	assert.EqualValues(t, 4, recs[1].Start)
	assert.EqualValues(t, 7, recs[1].End)
}

func TestEmptyRecords(t *testing.T) {
	recs := collect(t, "a\n\n\nb\n", `\n`, 64)
	require.Len(t, recs, 4)
	assert.Equal(t, "", string(recs[1].Bytes))
	assert.Equal(t, recs[1].Start, recs[1].End)
	assert.Equal(t, "b", string(recs[3].Bytes))
}

func TestMultiByteLiteralAcrossChunks(t *testing.T) {
	// separator "::" straddles the 4-byte chunk edge
	recs := collect(t, "abc::def::g", "::", 4)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"abc", "def", "g"}, []string{
		string(recs[0].Bytes), string(recs[1].Bytes), string(recs[2].Bytes),
	})
}

func TestRegexSeparatorSpansChunkBoundary(t *testing.T) {
	// A ----- separator straddling the 64-byte chunk edge must match
	// exactly once, identical to a single-buffer reference split.
	input := strings.Repeat("a", 60) + "-----" + strings.Repeat("b", 70)
	chunked := collect(t, input, "re:---+", 64)
	reference := collect(t, input, "re:---+", len(input)+1)
	require.Equal(t, len(reference), len(chunked))
	for i := range reference {
		assert.Equal(t, reference[i], chunked[i])
	}
	require.Len(t, chunked, 2)
	assert.Equal(t, strings.Repeat("a", 60), string(chunked[0].Bytes))
	assert.Equal(t, strings.Repeat("b", 70), string(chunked[1].Bytes))
	assert.EqualValues(t, 65, chunked[1].Start)
}

func TestRegexGreedyAtEOF(t *testing.T) {
	recs := collect(t, "x---", "re:---+", 2)
	require.Len(t, recs, 1)
	assert.Equal(t, "x", string(recs[0].Bytes))
}

func TestEscapes(t *testing.T) {
	recs := collect(t, "a\tb\x00c", `\x00`, 64)
	require.Len(t, recs, 2)
	assert.Equal(t, "a\tb", string(recs[0].Bytes))

	recs = collect(t, "p\r\nq\r\n", `\r\n`, 64)
	require.Len(t, recs, 2)
	assert.Equal(t, "q", string(recs[1].Bytes))
}

func TestParseErrors(t *testing.T) {
	for _, spec := range []string{"", `\q`, `\x9`, `\xzz`, `a\`, "re:[", "re:a*"} {
		_, err := Parse(spec)
		require.Error(t, err, spec)
		assert.Equal(t, errs.KindSeparatorCompile, errs.KindOf(err), spec)
	}
}

func TestNoSeparatorAtAll(t *testing.T) {
	recs := collect(t, "single record with no terminator", `\n`, 8)
	require.Len(t, recs, 1)
	assert.EqualValues(t, 0, recs[0].Start)
	assert.EqualValues(t, 32, recs[0].End)
}

func TestEmptyInput(t *testing.T) {
	recs := collect(t, "", `\n`, 8)
	assert.Empty(t, recs)
}
