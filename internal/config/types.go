package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration for the repo analyst pipeline.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Fetcher     FetcherConfig     `koanf:"fetcher"`
	Chunker     ChunkerConfig     `koanf:"chunker"`
	Uploader    UploaderConfig    `koanf:"uploader"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Catalog     CatalogConfig     `koanf:"catalog"`
	Completion  CompletionConfig  `koanf:"completion"`

	// Debug gates detailed diagnostics in user-visible failure messages.
	// When false, callers see a structured status, never an internal error string.
	Debug bool `koanf:"debug"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// FetcherConfig controls repository acquisition.
type FetcherConfig struct {
	// WorkspaceDir is the root directory for ephemeral repository checkouts.
	WorkspaceDir string `koanf:"workspace_dir"`

	// MaxRepoBytes is the total byte ceiling for a cloned working tree.
	MaxRepoBytes int64 `koanf:"max_repo_bytes"`

	// MaxFileCount is the file count ceiling for a cloned working tree.
	MaxFileCount int `koanf:"max_file_count"`

	// MaxReposPerOwner limits how many repositories one owner may keep indexed.
	// Re-indexing an already-indexed repository is always allowed.
	MaxReposPerOwner int `koanf:"max_repos_per_owner"`
}

// ChunkerConfig controls text splitting.
type ChunkerConfig struct {
	// WindowSize is the target chunk size in runes.
	WindowSize int `koanf:"window_size"`

	// Overlap is the number of runes shared between consecutive chunks.
	Overlap int `koanf:"overlap"`
}

// UploaderConfig controls embedding batch upload and quota retry behavior.
type UploaderConfig struct {
	// BatchSize is the number of chunks embedded and stored per batch.
	BatchSize int `koanf:"batch_size"`

	// MaxAttempts is the total attempts per batch before quota failure surfaces.
	MaxAttempts int `koanf:"max_attempts"`

	// BaseBackoff is the initial retry delay. Doubles per attempt.
	BaseBackoff time.Duration `koanf:"base_backoff"`

	// MaxBackoff caps the exponential retry delay.
	MaxBackoff time.Duration `koanf:"max_backoff"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "gemini" or "static".
	Provider string `koanf:"provider"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// APIKey is the provider API key (gemini only).
	APIKey string `koanf:"api_key"`

	// BaseURL overrides the provider endpoint. Used in tests.
	BaseURL string `koanf:"base_url"`

	// Dimension is the embedding vector dimension.
	Dimension int `koanf:"dimension"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host string `koanf:"host"`

	// Port is the gRPC port (6334), not the HTTP REST port.
	Port int `koanf:"port"`

	UseTLS bool `koanf:"use_tls"`
}

// CatalogConfig configures the durable repo record store.
type CatalogConfig struct {
	// DataDir holds the SQLite database file.
	DataDir string `koanf:"data_dir"`
}

// CompletionConfig configures the completion provider used for answering.
type CompletionConfig struct {
	Model  string `koanf:"model"`
	APIKey string `koanf:"api_key"`

	Temperature float64 `koanf:"temperature"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Fetcher.WorkspaceDir == "" {
		cfg.Fetcher.WorkspaceDir = "~/.local/share/repoanalyst/workspace"
	}
	if cfg.Fetcher.MaxRepoBytes == 0 {
		cfg.Fetcher.MaxRepoBytes = 100 * 1024 * 1024
	}
	if cfg.Fetcher.MaxFileCount == 0 {
		cfg.Fetcher.MaxFileCount = 500
	}
	if cfg.Fetcher.MaxReposPerOwner == 0 {
		cfg.Fetcher.MaxReposPerOwner = 3
	}

	if cfg.Chunker.WindowSize == 0 {
		cfg.Chunker.WindowSize = 2000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 200
	}

	if cfg.Uploader.BatchSize == 0 {
		cfg.Uploader.BatchSize = 25
	}
	if cfg.Uploader.MaxAttempts == 0 {
		cfg.Uploader.MaxAttempts = 6
	}
	if cfg.Uploader.BaseBackoff == 0 {
		cfg.Uploader.BaseBackoff = 2 * time.Second
	}
	if cfg.Uploader.MaxBackoff == 0 {
		cfg.Uploader.MaxBackoff = 60 * time.Second
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "gemini"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "gemini-embedding-001"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 768
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.local/share/repoanalyst/vectorstore"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}

	if cfg.Catalog.DataDir == "" {
		cfg.Catalog.DataDir = "~/.local/share/repoanalyst"
	}

	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "gemini-1.5-flash"
	}
	if cfg.Completion.Temperature == 0 {
		cfg.Completion.Temperature = 0.7
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Fetcher.MaxRepoBytes <= 0 {
		return fmt.Errorf("%w: max_repo_bytes must be positive", ErrInvalidConfig)
	}
	if c.Fetcher.MaxFileCount <= 0 {
		return fmt.Errorf("%w: max_file_count must be positive", ErrInvalidConfig)
	}

	if c.Chunker.WindowSize <= 0 {
		return fmt.Errorf("%w: window_size must be positive", ErrInvalidConfig)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.WindowSize {
		return fmt.Errorf("%w: overlap must be in [0, window_size)", ErrInvalidConfig)
	}

	if c.Uploader.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidConfig)
	}
	if c.Uploader.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max_attempts must be positive", ErrInvalidConfig)
	}

	switch c.Embeddings.Provider {
	case "gemini", "static":
	default:
		return fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("%w: unknown vectorstore provider %q", ErrInvalidConfig, c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" {
		if p := c.VectorStore.Qdrant.Port; p <= 0 || p > 65535 {
			return fmt.Errorf("%w: invalid qdrant port: %d", ErrInvalidConfig, p)
		}
	}

	return nil
}
