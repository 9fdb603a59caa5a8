// Package indexer drives the ingestion lifecycle for one repository:
// purge, fetch, chunk, upload, finalize.
package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/catalog"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/chunker"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/fetcher"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/uploader"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/vectorstore"
)

// ErrRepoLimit indicates the owner already has the maximum number of
// repositories indexed. Re-indexing an existing repository is always allowed.
var ErrRepoLimit = errors.New("indexed repository limit reached")

// RunState is one stage of an ingestion run.
type RunState string

// Ingestion run states, in order.
const (
	StateFetching   RunState = "FETCHING"
	StateChunking   RunState = "CHUNKING"
	StateUploading  RunState = "UPLOADING"
	StateFinalizing RunState = "FINALIZING"
	StateSuccess    RunState = "SUCCESS"
	StateFailed     RunState = "FAILED"
)

// Terminal result statuses surfaced to callers.
const (
	StatusSuccess     = "success"
	StatusQuotaFailed = "quota_failed"
	StatusError       = "error"
)

// IndexResult is the caller-facing outcome of one ingestion run.
type IndexResult struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	TotalChunks    int    `json:"total_chunks"`
	CollectionName string `json:"collection_name"`
}

// Fetcher acquires a repository working tree under resource limits.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, ownerID string) (*fetcher.Workdir, error)
}

// Chunker converts a working tree into retrievable chunks.
type Chunker interface {
	ChunkTree(root, ownerID, collectionName string) ([]chunker.Chunk, error)
}

// Uploader embeds and stores chunks with quota-aware retry.
type Uploader interface {
	Upload(ctx context.Context, collectionName string, chunks []chunker.Chunk) (int, error)
}

// Catalog is the durable record of indexed repositories.
type Catalog interface {
	Save(ctx context.Context, rec catalog.RepoRecord) error
	Get(ctx context.Context, ownerID, collectionName string) (*catalog.RepoRecord, error)
	List(ctx context.Context, ownerID string) ([]catalog.RepoRecord, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
	Delete(ctx context.Context, ownerID, collectionName string) error
}

// Service coordinates the ingestion pipeline and owns its recovery
// semantics: re-indexing purges before fetching, and any failure triggers a
// best-effort purge of partial vectors so a half-indexed collection never
// survives. A failed run therefore leaves the collection empty, not restored.
type Service struct {
	fetcher  Fetcher
	chunker  Chunker
	uploader Uploader
	store    vectorstore.Store
	embedder vectorstore.Embedder
	catalog  Catalog
	logger   *zap.Logger

	maxReposPerOwner int

	// debug exposes internal error detail in user-visible messages.
	debug bool
}

// NewService creates an index lifecycle service.
func NewService(cfg config.Config, f Fetcher, c Chunker, u Uploader, store vectorstore.Store, embedder vectorstore.Embedder, cat Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		fetcher:          f,
		chunker:          c,
		uploader:         u,
		store:            store,
		embedder:         embedder,
		catalog:          cat,
		logger:           logger,
		maxReposPerOwner: cfg.Fetcher.MaxReposPerOwner,
		debug:            cfg.Debug,
	}
}

// keyFilters scopes every store operation to one (owner, collection) key.
func keyFilters(ownerID, collectionName string) map[string]interface{} {
	return map[string]interface{}{
		"owner_id":        ownerID,
		"collection_name": collectionName,
	}
}

func (s *Service) transition(ownerID, collectionName string, state RunState) {
	s.logger.Info("index run state",
		zap.String("owner_id", ownerID),
		zap.String("collection", collectionName),
		zap.String("state", string(state)),
	)
}

// Index ingests one repository for one owner.
//
// Re-indexing is destructive-then-constructive: existing vectors for the
// (owner_id, collection_name) key are purged before fetching, never appended
// to. The returned result always carries a terminal status; on failure the
// error is also returned typed for errors.Is branching.
func (s *Service) Index(ctx context.Context, repoURL, ownerID string) (*IndexResult, error) {
	if err := fetcher.ValidateURL(repoURL); err != nil {
		return s.fail(ctx, "", ownerID, err, false)
	}

	collectionName := fetcher.DeriveName(repoURL)
	if err := vectorstore.ValidateCollectionName(collectionName); err != nil {
		return s.fail(ctx, "", ownerID, err, false)
	}

	if err := s.checkOwnerLimit(ctx, ownerID, collectionName); err != nil {
		return s.fail(ctx, "", ownerID, err, false)
	}

	filters := keyFilters(ownerID, collectionName)

	// Purge before fetch so a re-index never mixes stale chunks with new ones.
	if err := s.store.DeleteByMetadata(ctx, collectionName, filters); err != nil {
		return s.fail(ctx, collectionName, ownerID, fmt.Errorf("purging existing vectors: %w", err), false)
	}

	s.transition(ownerID, collectionName, StateFetching)
	workdir, err := s.fetcher.Fetch(ctx, repoURL, ownerID)
	if err != nil {
		return s.fail(ctx, collectionName, ownerID, err, true)
	}
	defer workdir.Close()

	s.transition(ownerID, collectionName, StateChunking)
	chunks, err := s.chunker.ChunkTree(workdir.Path, ownerID, collectionName)
	if err != nil {
		return s.fail(ctx, collectionName, ownerID, err, true)
	}

	s.transition(ownerID, collectionName, StateUploading)
	total, err := s.uploader.Upload(ctx, collectionName, chunks)
	if err != nil {
		return s.fail(ctx, collectionName, ownerID, err, true)
	}

	s.transition(ownerID, collectionName, StateFinalizing)
	if err := s.catalog.Save(ctx, catalog.RepoRecord{
		OwnerID:        ownerID,
		CollectionName: collectionName,
		RepoURL:        repoURL,
	}); err != nil {
		return s.fail(ctx, collectionName, ownerID, fmt.Errorf("recording repository: %w", err), true)
	}

	s.transition(ownerID, collectionName, StateSuccess)
	return &IndexResult{
		Status:         StatusSuccess,
		Message:        fmt.Sprintf("indexed %d chunks into %s", total, collectionName),
		TotalChunks:    total,
		CollectionName: collectionName,
	}, nil
}

// checkOwnerLimit enforces the per-owner repository ceiling. Re-indexing an
// already-recorded collection is exempt.
func (s *Service) checkOwnerLimit(ctx context.Context, ownerID, collectionName string) error {
	if s.maxReposPerOwner <= 0 {
		return nil
	}

	_, err := s.catalog.Get(ctx, ownerID, collectionName)
	if err == nil {
		return nil // re-index of an existing repository
	}
	if !errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("checking repository record: %w", err)
	}

	count, err := s.catalog.CountByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("counting repositories: %w", err)
	}
	if count >= s.maxReposPerOwner {
		return fmt.Errorf("%w: %d of %d used", ErrRepoLimit, count, s.maxReposPerOwner)
	}
	return nil
}

// fail builds the FAILED terminal result. When purge is set, partial vectors
// written during this run are removed best-effort; a purge failure is logged
// and never masks the original error.
func (s *Service) fail(ctx context.Context, collectionName, ownerID string, cause error, purge bool) (*IndexResult, error) {
	if collectionName != "" {
		s.transition(ownerID, collectionName, StateFailed)
	}

	if purge && collectionName != "" {
		if err := s.store.DeleteByMetadata(ctx, collectionName, keyFilters(ownerID, collectionName)); err != nil {
			s.logger.Warn("best-effort purge of partial vectors failed",
				zap.String("owner_id", ownerID),
				zap.String("collection", collectionName),
				zap.Error(err),
			)
		}
	}

	status := StatusError
	message := "indexing failed"
	if errors.Is(cause, uploader.ErrQuotaExceeded) {
		status = StatusQuotaFailed
		message = "embedding quota exhausted, try again later"
	}
	if s.debug {
		message = fmt.Sprintf("%s: %v", message, cause)
	}

	s.logger.Error("index run failed",
		zap.String("owner_id", ownerID),
		zap.String("collection", collectionName),
		zap.String("status", status),
		zap.Error(cause),
	)

	return &IndexResult{
		Status:         status,
		Message:        message,
		CollectionName: collectionName,
	}, cause
}

// Retrieve embeds the query and returns the top-k chunks for the key.
func (s *Service) Retrieve(ctx context.Context, collectionName, ownerID, query string, k int, scoreThreshold float32) ([]vectorstore.SearchResult, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.RetrieveByVector(ctx, collectionName, ownerID, vector, k, scoreThreshold)
}

// RetrieveByVector runs the metadata-filtered similarity search with a
// precomputed query vector.
func (s *Service) RetrieveByVector(ctx context.Context, collectionName, ownerID string, vector []float32, k int, scoreThreshold float32) ([]vectorstore.SearchResult, error) {
	return s.store.SearchByVector(ctx, collectionName, vector, k, keyFilters(ownerID, collectionName), scoreThreshold)
}

// Delete removes an indexed repository: vectors first, then the catalog row.
// Deleting a repository that was never indexed succeeds.
func (s *Service) Delete(ctx context.Context, collectionName, ownerID string) error {
	if err := vectorstore.ValidateCollectionName(collectionName); err != nil {
		return err
	}
	if err := s.store.DeleteByMetadata(ctx, collectionName, keyFilters(ownerID, collectionName)); err != nil {
		return fmt.Errorf("purging vectors: %w", err)
	}
	if err := s.catalog.Delete(ctx, ownerID, collectionName); err != nil {
		return fmt.Errorf("deleting repository record: %w", err)
	}

	s.logger.Info("repository deleted",
		zap.String("owner_id", ownerID),
		zap.String("collection", collectionName),
	)
	return nil
}

// List returns the owner's indexed repositories, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]catalog.RepoRecord, error) {
	return s.catalog.List(ctx, ownerID)
}
