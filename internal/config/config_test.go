package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, int64(100*1024*1024), cfg.Fetcher.MaxRepoBytes)
	assert.Equal(t, 500, cfg.Fetcher.MaxFileCount)
	assert.Equal(t, 3, cfg.Fetcher.MaxReposPerOwner)
	assert.Equal(t, 2000, cfg.Chunker.WindowSize)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
	assert.Equal(t, 25, cfg.Uploader.BatchSize)
	assert.Equal(t, 6, cfg.Uploader.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Uploader.BaseBackoff)
	assert.Equal(t, 60*time.Second, cfg.Uploader.MaxBackoff)
	assert.Equal(t, "gemini", cfg.Embeddings.Provider)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		var cfg Config
		applyDefaults(&cfg)
		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "zero byte ceiling", mutate: func(c *Config) { c.Fetcher.MaxRepoBytes = -1 }, wantErr: true},
		{name: "overlap equals window", mutate: func(c *Config) { c.Chunker.Overlap = c.Chunker.WindowSize }, wantErr: true},
		{name: "unknown embeddings provider", mutate: func(c *Config) { c.Embeddings.Provider = "openai" }, wantErr: true},
		{name: "unknown vectorstore provider", mutate: func(c *Config) { c.VectorStore.Provider = "pinecone" }, wantErr: true},
		{name: "bad qdrant port", mutate: func(c *Config) {
			c.VectorStore.Provider = "qdrant"
			c.VectorStore.Qdrant.Port = 70000
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("chunker:\n  window_size: 1000\nfetcher:\n  max_file_count: 100\n")
	require.NoError(t, os.WriteFile(path, content, 0600))

	t.Setenv("FETCHER_MAX_FILE_COUNT", "42")

	cfg, err := Load(path)
	require.NoError(t, err)

	// Env overrides file, file overrides defaults.
	assert.Equal(t, 42, cfg.Fetcher.MaxFileCount)
	assert.Equal(t, 1000, cfg.Chunker.WindowSize)
	assert.Equal(t, 200, cfg.Chunker.Overlap)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Uploader.BatchSize)
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "fetcher.max_repo_bytes", envTransform("FETCHER_MAX_REPO_BYTES"))
	assert.Equal(t, "uploader.base_backoff", envTransform("UPLOADER_BASE_BACKOFF"))
	assert.Equal(t, "debug", envTransform("DEBUG"))
}
