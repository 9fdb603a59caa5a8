// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/vectorstore"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProvider indicates a non-retryable provider failure
	ErrProvider = errors.New("embedding provider failure")

	// ErrQuota indicates the provider rejected the request for quota or
	// rate-limit reasons. Callers may retry after backing off.
	ErrQuota = errors.New("embedding quota exhausted")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// quotaMarkers are provider error substrings that signal a retryable
// quota or rate-limit rejection rather than a permanent failure.
var quotaMarkers = []string{
	"resource_exhausted",
	"quota",
	"rate limit",
}

// IsQuota reports whether err represents a quota or rate-limit rejection.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuota)
}

// classifyProviderError maps a provider HTTP failure to ErrQuota or
// ErrProvider. Classification happens here, at the provider boundary, so
// callers branch on error identity instead of scraping message text.
func classifyProviderError(statusCode int, body string) error {
	if statusCode == 429 {
		return fmt.Errorf("%w: status %d: %s", ErrQuota, statusCode, body)
	}
	lower := strings.ToLower(body)
	for _, marker := range quotaMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: status %d: %s", ErrQuota, statusCode, body)
		}
	}
	return fmt.Errorf("%w: status %d: %s", ErrProvider, statusCode, body)
}

// NewProvider creates an embedding provider based on the configuration.
func NewProvider(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiProvider(GeminiConfig{
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
		}, logger)
	case "static":
		return NewStaticProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
