package generate

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mcollard0/nixIndex/internal/errs"
)

func TestGenerateFromFile(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "payload.txt")
	require.NoError(t, os.WriteFile(payload, []byte("alpha beta\n"), 0o644))
	out := filepath.Join(dir, "fixture.bin")

	path, written, err := Run(context.Background(), zap.NewNop().Sugar(), Options{
		File: payload, Encoding: "none", TargetBytes: 100, OutPath: out,
	})
	require.NoError(t, err)
	assert.Equal(t, out, path)
	assert.GreaterOrEqual(t, written, int64(100))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.EqualValues(t, written, len(b))
	// whole copies of the encoded payload
	assert.Zero(t, len(b)%len("alpha beta\n"))
	assert.True(t, strings.HasPrefix(string(b), "alpha beta\n"))
}

func TestGenerateRot13(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "payload.txt")
	require.NoError(t, os.WriteFile(payload, []byte("hello\n"), 0o644))
	out := filepath.Join(dir, "fixture.rot")

	_, _, err := Run(context.Background(), zap.NewNop().Sugar(), Options{
		File: payload, Encoding: "rot:13", TargetBytes: 12, OutPath: out,
	})
	require.NoError(t, err)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "uryyb\nuryyb\n", string(b))
}

func TestGenerateUnwrapsTar(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "member.txt", Mode: 0o644, Size: 6}))
	_, _ = tw.Write([]byte("inner\n"))
	require.NoError(t, tw.Close())
	payload := filepath.Join(dir, "payload.tar")
	require.NoError(t, os.WriteFile(payload, buf.Bytes(), 0o644))
	out := filepath.Join(dir, "fixture.bin")

	_, _, err := Run(context.Background(), zap.NewNop().Sugar(), Options{
		File: payload, Encoding: "none", TargetBytes: 6, OutPath: out,
	})
	require.NoError(t, err)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "inner\n", string(b))
}

func TestGenerateTempPath(t *testing.T) {
	payload := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(payload, []byte("x"), 0o644))

	path, _, err := Run(context.Background(), zap.NewNop().Sugar(), Options{
		File: payload, Encoding: "none", TargetBytes: 1,
	})
	require.NoError(t, err)
	defer os.Remove(path)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestGenerateRejects(t *testing.T) {
	log := zap.NewNop().Sugar()
	payload := filepath.Join(t.TempDir(), "p")
	require.NoError(t, os.WriteFile(payload, []byte("x"), 0o644))

	_, _, err := Run(context.Background(), log, Options{File: payload, Encoding: "bzip2", TargetBytes: 1})
	assert.Equal(t, errs.KindCodecUnsupported, errs.KindOf(err))

	_, _, err = Run(context.Background(), log, Options{File: payload, Encoding: "none", TargetBytes: 0})
	require.Error(t, err)

	_, _, err = Run(context.Background(), log, Options{Encoding: "none", TargetBytes: 1})
	require.Error(t, err)

	_, _, err = Run(context.Background(), log, Options{File: payload, URL: "http://example.invalid/x", Encoding: "none", TargetBytes: 1})
	require.Error(t, err)
}
