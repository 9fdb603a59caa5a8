// Package completion wraps the language model used for answer generation.
//
// The pipeline treats completion as an opaque capability: it hands over a
// prompt and consumes streamed text fragments, nothing else.
package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
)

// ErrInvalidConfig indicates invalid configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// GeminiCompleter generates completions via the Gemini API.
type GeminiCompleter struct {
	llm         *googleai.GoogleAI
	temperature float64
	logger      *zap.Logger
}

// New creates a Gemini-backed completer.
func New(ctx context.Context, cfg config.CompletionConfig, logger *zap.Logger) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &GeminiCompleter{
		llm:         llm,
		temperature: temperature,
		logger:      logger,
	}, nil
}

// StreamComplete generates a completion for the prompt, delivering text
// fragments to fn as they arrive. Returning an error from fn aborts the
// stream.
func (c *GeminiCompleter) StreamComplete(ctx context.Context, prompt string, fn func(chunk string) error) error {
	_, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithTemperature(c.temperature),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return fn(string(chunk))
		}),
	)
	if err != nil {
		return fmt.Errorf("generating completion: %w", err)
	}
	return nil
}

// Complete generates a completion for the prompt and returns the full text.
func (c *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithTemperature(c.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return out, nil
}
