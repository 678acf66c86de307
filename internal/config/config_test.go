package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.EqualValues(t, 64<<10, cfg.ChunkSizeBytes())
	assert.EqualValues(t, 1<<30, cfg.LargeFileCutoffBytes())
}

func TestLoadFillsGaps(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"catalog_dir":"/tmp/cat"}`), 0o644))
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cat", cfg.CatalogDir)
	assert.Equal(t, 1000, cfg.Import.BatchSize)
	assert.Equal(t, "64K", cfg.Import.ChunkSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(`{`), 0o644))
	_, err := Load(p)
	require.Error(t, err)
}

func TestValidateRejectsBadSizes(t *testing.T) {
	cfg := Default()
	cfg.Import.ChunkSize = "64T"
	require.Error(t, cfg.Validate())
	cfg = Default()
	cfg.Search.TruncateBytes = -1
	require.Error(t, cfg.Validate())
}

func TestEnsureConfigFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, EnsureConfigFile(p))
	cfg, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	// existing file untouched
	require.NoError(t, os.WriteFile(p, []byte(`{"catalog_dir":"/custom"}`), 0o644))
	require.NoError(t, EnsureConfigFile(p))
	cfg, err = Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/custom", cfg.CatalogDir)
}

func TestExternalDecoderEnvWins(t *testing.T) {
	cfg := Default()
	cfg.Search.ExternalDecoder = "/usr/local/bin/fromconfig"
	t.Setenv(EnvExternalDecoder, "/opt/fromenv")
	assert.Equal(t, "/opt/fromenv", cfg.ExternalDecoderPath())
	t.Setenv(EnvExternalDecoder, "")
	assert.Equal(t, "/usr/local/bin/fromconfig", cfg.ExternalDecoderPath())
}
