// Package uploader pushes chunk batches into the vector store with
// quota-aware retry.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/chunker"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/embeddings"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/vectorstore"
)

var (
	// ErrQuotaExceeded indicates a batch kept hitting provider quota limits
	// through every retry attempt.
	ErrQuotaExceeded = errors.New("embedding quota exceeded after retries")

	// ErrUpload indicates a non-retryable upload failure.
	ErrUpload = errors.New("upload failed")
)

// Service embeds chunks in fixed-size batches and inserts them into the
// vector store. Batches that hit provider quota limits are retried with
// exponential backoff; completed batches stay committed even when a later
// batch fails.
type Service struct {
	cfg      config.UploaderConfig
	embedder embeddings.Provider
	store    vectorstore.Store
	logger   *zap.Logger

	// sleep waits between retry attempts. Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates an uploader service.
func NewService(cfg config.UploaderConfig, embedder embeddings.Provider, store vectorstore.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		logger:   logger,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// backoffFor returns the delay before the next attempt. The delay starts
// at BaseBackoff, doubles per attempt and is capped at MaxBackoff.
func (s *Service) backoffFor(attempt int) time.Duration {
	d := s.cfg.BaseBackoff << (attempt - 1)
	if d > s.cfg.MaxBackoff || d <= 0 {
		d = s.cfg.MaxBackoff
	}
	return d
}

// Upload embeds and stores all chunks for one collection.
//
// Returns the number of chunks stored. On failure the count covers the
// batches committed before the failing one; those documents remain in the
// store and the caller decides whether to purge them.
func (s *Service) Upload(ctx context.Context, collectionName string, chunks []chunker.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 25
	}

	uploaded := 0
	totalBatches := (len(chunks) + batchSize - 1) / batchSize

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		batchNum := start/batchSize + 1

		if err := s.uploadBatch(ctx, collectionName, batch, batchNum, totalBatches); err != nil {
			return uploaded, err
		}
		uploaded += len(batch)
	}

	s.logger.Info("upload complete",
		zap.String("collection", collectionName),
		zap.Int("chunks", uploaded),
		zap.Int("batches", totalBatches),
	)
	return uploaded, nil
}

// uploadBatch embeds one batch and inserts it, retrying quota rejections.
func (s *Service) uploadBatch(ctx context.Context, collectionName string, batch []chunker.Chunk, batchNum, totalBatches int) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 6
	}

	var vectors [][]float32
	for attempt := 1; ; attempt++ {
		var err error
		vectors, err = s.embedder.EmbedDocuments(ctx, texts)
		if err == nil {
			break
		}
		if !embeddings.IsQuota(err) {
			return fmt.Errorf("%w: embedding batch %d/%d: %v", ErrUpload, batchNum, totalBatches, err)
		}
		if attempt >= maxAttempts {
			return fmt.Errorf("%w: batch %d/%d failed %d attempts: %v", ErrQuotaExceeded, batchNum, totalBatches, maxAttempts, err)
		}

		delay := s.backoffFor(attempt)
		s.logger.Warn("embedding quota hit, backing off",
			zap.String("collection", collectionName),
			zap.Int("batch", batchNum),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w: %v", ErrUpload, err)
		}
	}

	docs := make([]vectorstore.Document, len(batch))
	for i, c := range batch {
		docs[i] = vectorstore.Document{
			ID:      uuid.New().String(),
			Content: c.Content,
			Metadata: map[string]interface{}{
				"owner_id":        c.OwnerID,
				"collection_name": c.CollectionName,
				"source":          c.SourcePath,
				"file_name":       c.FileName,
			},
			Embedding: vectors[i],
		}
	}

	if _, err := s.store.AddDocuments(ctx, collectionName, docs); err != nil {
		return fmt.Errorf("%w: inserting batch %d/%d: %v", ErrUpload, batchNum, totalBatches, err)
	}

	s.logger.Debug("batch uploaded",
		zap.String("collection", collectionName),
		zap.Int("batch", batchNum),
		zap.Int("size", len(batch)),
	)
	return nil
}
