// Package rag answers questions about an indexed repository by combining
// retrieval with completion.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/vectorstore"
)

// ErrNoContext is returned when retrieval finds nothing to ground an answer
// on, usually because the repository was never indexed for this owner.
var ErrNoContext = errors.New("no indexed content found for this repository")

// Completer generates text from a prompt, streaming fragments to a callback.
type Completer interface {
	StreamComplete(ctx context.Context, prompt string, fn func(chunk string) error) error
}

// Retriever returns the top-k chunks for an owner's collection.
type Retriever interface {
	Retrieve(ctx context.Context, collectionName, ownerID, query string, k int, scoreThreshold float32) ([]vectorstore.SearchResult, error)
}

// Service answers repository questions with retrieved chunks as grounding.
type Service struct {
	retriever Retriever
	completer Completer
	logger    *zap.Logger
}

// NewService creates a question answering service.
func NewService(retriever Retriever, completer Completer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		retriever: retriever,
		completer: completer,
		logger:    logger,
	}
}

// Answer retrieves the top-k chunks for the question and streams a grounded
// answer to fn. Returns ErrNoContext when retrieval comes back empty.
func (s *Service) Answer(ctx context.Context, collectionName, ownerID, question string, k int, fn func(chunk string) error) error {
	results, err := s.retriever.Retrieve(ctx, collectionName, ownerID, question, k, 0)
	if err != nil {
		return fmt.Errorf("retrieving context: %w", err)
	}
	if len(results) == 0 {
		return ErrNoContext
	}

	s.logger.Debug("answering with retrieved context",
		zap.String("collection", collectionName),
		zap.String("owner_id", ownerID),
		zap.Int("chunks", len(results)),
	)

	prompt := buildPrompt(results, question)
	if err := s.completer.StreamComplete(ctx, prompt, fn); err != nil {
		return fmt.Errorf("completing answer: %w", err)
	}
	return nil
}

// buildPrompt assembles the grounding prompt: each chunk labeled with its
// source path so the model can cite files.
func buildPrompt(results []vectorstore.SearchResult, question string) string {
	var b strings.Builder
	b.WriteString("You are a code assistant answering questions about a source code repository.\n")
	b.WriteString("Use only the context below. When you reference code, cite the source file path.\n")
	b.WriteString("If the context does not contain the answer, say so.\n\n")
	b.WriteString("Context:\n")

	for _, r := range results {
		source, _ := r.Metadata["source"].(string)
		if source == "" {
			source = "unknown"
		}
		fmt.Fprintf(&b, "--- source: %s ---\n%s\n\n", source, r.Content)
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}
