// Package config holds the operator defaults the CLI flags can override.
package config

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/mcollard0/nixIndex/internal/units"
)

// EnvExternalDecoder names the environment variable consulted for the
// external streaming decoder used above the large-file cutoff. Absent both
// the env var and the config entry, search falls back to the in-process
// streaming path.
const EnvExternalDecoder = "NIXINDEX_DECODER"

type Import struct {
	// BatchSize is the number of records per catalog commit.
	BatchSize int `json:"batch_size"`
	// ChunkSize is the source read chunk size ("64K", "4MB", ...).
	ChunkSize string `json:"chunk_size"`
	// Acuity is the default minimum per-token occurrence count kept after
	// compaction; 0 disables the pass.
	Acuity int64 `json:"acuity"`
}

type Search struct {
	// LargeFileCutoff is the encoded size above which search prefers the
	// external decoder subprocess.
	LargeFileCutoff string `json:"large_file_cutoff"`
	// ExternalDecoder is the decoder program path; NIXINDEX_DECODER wins.
	ExternalDecoder string `json:"external_decoder"`
	// TruncateBytes limits the per-record bytes printed by the CLI;
	// 0 prints whole records.
	TruncateBytes int `json:"truncate_bytes"`
}

type Config struct {
	CatalogDir string `json:"catalog_dir"`
	Import     Import `json:"import"`
	Search     Search `json:"search"`
}

func Default() Config {
	return Config{
		CatalogDir: "./nixindex-catalog",
		Import: Import{
			BatchSize: 1000,
			ChunkSize: "64K",
			Acuity:    0,
		},
		Search: Search{
			LargeFileCutoff: "1G",
			TruncateBytes:   0,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	// Fill anything an older config file left empty.
	if cfg.Import.BatchSize <= 0 {
		cfg.Import.BatchSize = 1000
	}
	if cfg.Import.ChunkSize == "" {
		cfg.Import.ChunkSize = "64K"
	}
	if cfg.Search.LargeFileCutoff == "" {
		cfg.Search.LargeFileCutoff = "1G"
	}
	return cfg, nil
}

// EnsureConfigFile writes a default config if none exists, so a first run
// has something to edit.
func EnsureConfigFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	b, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func (c Config) Validate() error {
	if c.CatalogDir == "" {
		return errors.New("catalog_dir required")
	}
	if _, err := units.ParseSize(c.Import.ChunkSize); err != nil {
		return err
	}
	if _, err := units.ParseSize(c.Search.LargeFileCutoff); err != nil {
		return err
	}
	if c.Search.TruncateBytes < 0 {
		return errors.New("search.truncate_bytes must be >= 0")
	}
	return nil
}

// ChunkSizeBytes returns the parsed read chunk size.
func (c Config) ChunkSizeBytes() int64 {
	n, err := units.ParseSize(c.Import.ChunkSize)
	if err != nil {
		return 64 << 10
	}
	return n
}

// LargeFileCutoffBytes returns the parsed cutoff.
func (c Config) LargeFileCutoffBytes() int64 {
	n, err := units.ParseSize(c.Search.LargeFileCutoff)
	if err != nil {
		return 1 << 30
	}
	return n
}

// ExternalDecoderPath resolves the external decoder, environment first.
func (c Config) ExternalDecoderPath() string {
	if p := os.Getenv(EnvExternalDecoder); p != "" {
		return p
	}
	return c.Search.ExternalDecoder
}
