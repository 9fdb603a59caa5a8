package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/catalog"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/chunker"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/fetcher"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/uploader"
	"github.com/ibrahim-biner/ai-repo-analyst/internal/vectorstore"
)

// fakeFetcher returns a prepared working directory or a canned error.
type fakeFetcher struct {
	dir    string
	err    error
	called bool
}

func (f *fakeFetcher) Fetch(_ context.Context, _, _ string) (*fetcher.Workdir, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return &fetcher.Workdir{Path: f.dir}, nil
}

type fakeChunker struct {
	chunks []chunker.Chunk
	err    error
}

func (f *fakeChunker) ChunkTree(_, _, _ string) ([]chunker.Chunk, error) {
	return f.chunks, f.err
}

type fakeUploader struct {
	n      int
	err    error
	called bool
}

func (f *fakeUploader) Upload(_ context.Context, _ string, chunks []chunker.Chunk) (int, error) {
	f.called = true
	if f.err != nil {
		return 0, f.err
	}
	if f.n > 0 {
		return f.n, nil
	}
	return len(chunks), nil
}

// opStore records the order of store operations.
type opStore struct {
	ops       []string
	deleteErr error
}

func (o *opStore) AddDocuments(_ context.Context, _ string, docs []vectorstore.Document) ([]string, error) {
	o.ops = append(o.ops, "add")
	return make([]string, len(docs)), nil
}

func (o *opStore) SearchByVector(context.Context, string, []float32, int, map[string]interface{}, float32) ([]vectorstore.SearchResult, error) {
	o.ops = append(o.ops, "search")
	return nil, nil
}

func (o *opStore) DeleteByMetadata(context.Context, string, map[string]interface{}) error {
	o.ops = append(o.ops, "delete")
	return o.deleteErr
}

func (o *opStore) CollectionExists(context.Context, string) (bool, error) { return true, nil }
func (o *opStore) Close() error                                           { return nil }

// memCatalog is an in-memory Catalog.
type memCatalog struct {
	records map[string]catalog.RepoRecord
}

func newMemCatalog() *memCatalog {
	return &memCatalog{records: make(map[string]catalog.RepoRecord)}
}

func catKey(ownerID, collectionName string) string { return ownerID + "/" + collectionName }

func (m *memCatalog) Save(_ context.Context, rec catalog.RepoRecord) error {
	key := catKey(rec.OwnerID, rec.CollectionName)
	if _, ok := m.records[key]; ok {
		return nil
	}
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now().UTC()
	}
	m.records[key] = rec
	return nil
}

func (m *memCatalog) Get(_ context.Context, ownerID, collectionName string) (*catalog.RepoRecord, error) {
	rec, ok := m.records[catKey(ownerID, collectionName)]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &rec, nil
}

func (m *memCatalog) List(_ context.Context, ownerID string) ([]catalog.RepoRecord, error) {
	var out []catalog.RepoRecord
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memCatalog) CountByOwner(_ context.Context, ownerID string) (int, error) {
	count := 0
	for _, rec := range m.records {
		if rec.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (m *memCatalog) Delete(_ context.Context, ownerID, collectionName string) error {
	delete(m.records, catKey(ownerID, collectionName))
	return nil
}

func testChunks() []chunker.Chunk {
	return []chunker.Chunk{{
		Content: "package main", SourcePath: "main.go", FileName: "main.go",
		CollectionName: "repo", OwnerID: "u1",
	}}
}

type testDeps struct {
	fetcher  *fakeFetcher
	chunker  *fakeChunker
	uploader *fakeUploader
	store    *opStore
	catalog  *memCatalog
}

func newTestIndexer(t *testing.T, debug bool) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		fetcher:  &fakeFetcher{dir: t.TempDir()},
		chunker:  &fakeChunker{chunks: testChunks()},
		uploader: &fakeUploader{},
		store:    &opStore{},
		catalog:  newMemCatalog(),
	}
	cfg := config.Config{Debug: debug}
	cfg.Fetcher.MaxReposPerOwner = 3
	embedder := &staticTestEmbedder{}
	svc := NewService(cfg, deps.fetcher, deps.chunker, deps.uploader, deps.store, embedder, deps.catalog, zap.NewNop())
	return svc, deps
}

type staticTestEmbedder struct{}

func (staticTestEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (staticTestEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestIndex_Success(t *testing.T) {
	svc, deps := newTestIndexer(t, false)

	result, err := svc.Index(context.Background(), "https://github.com/org/My-Repo", "u1")
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "my_repo", result.CollectionName)
	assert.Equal(t, 1, result.TotalChunks)
	assert.Contains(t, result.Message, "1 chunks")

	rec, err := deps.catalog.Get(context.Background(), "u1", "my_repo")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/org/My-Repo", rec.RepoURL)

	// Exactly one purge, before the upload.
	assert.Equal(t, []string{"delete"}, deps.store.ops)
	assert.True(t, deps.uploader.called)
}

func TestIndex_InvalidURLNeverFetches(t *testing.T) {
	svc, deps := newTestIndexer(t, false)

	result, err := svc.Index(context.Background(), "ssh://github.com/org/repo", "u1")
	require.ErrorIs(t, err, fetcher.ErrValidation)
	assert.Equal(t, StatusError, result.Status)
	assert.False(t, deps.fetcher.called)
	assert.Empty(t, deps.store.ops)
}

func TestIndex_FetchFailurePurgesAndSurfaces(t *testing.T) {
	svc, deps := newTestIndexer(t, false)
	deps.fetcher.err = fmt.Errorf("%w: clone refused", fetcher.ErrClone)

	result, err := svc.Index(context.Background(), "https://github.com/org/repo", "u1")
	require.ErrorIs(t, err, fetcher.ErrClone)
	assert.Equal(t, StatusError, result.Status)
	assert.False(t, deps.uploader.called)

	// Pre-fetch purge plus best-effort purge on failure.
	assert.Equal(t, []string{"delete", "delete"}, deps.store.ops)
}

func TestIndex_QuotaFailureIsDistinguished(t *testing.T) {
	svc, deps := newTestIndexer(t, false)
	deps.uploader.err = fmt.Errorf("%w: batch 1", uploader.ErrQuotaExceeded)

	result, err := svc.Index(context.Background(), "https://github.com/org/repo", "u1")
	require.ErrorIs(t, err, uploader.ErrQuotaExceeded)
	assert.Equal(t, StatusQuotaFailed, result.Status)
	assert.Contains(t, result.Message, "try again later")

	// No repository record for a failed run.
	_, err = deps.catalog.Get(context.Background(), "u1", "repo")
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestIndex_FailureClosesWorkdir(t *testing.T) {
	svc, deps := newTestIndexer(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(deps.fetcher.dir, "main.go"), []byte("x"), 0o644))
	deps.uploader.err = errors.New("boom")

	_, err := svc.Index(context.Background(), "https://github.com/org/repo", "u1")
	require.Error(t, err)
	assert.NoDirExists(t, deps.fetcher.dir)
}

func TestIndex_OwnerLimit(t *testing.T) {
	svc, deps := newTestIndexer(t, false)
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three"} {
		require.NoError(t, deps.catalog.Save(ctx, catalog.RepoRecord{
			OwnerID: "u1", CollectionName: name, RepoURL: "https://github.com/org/" + name,
		}))
	}

	_, err := svc.Index(ctx, "https://github.com/org/fourth", "u1")
	require.ErrorIs(t, err, ErrRepoLimit)
	assert.False(t, deps.fetcher.called)

	// Re-indexing an already-recorded repository bypasses the ceiling.
	result, err := svc.Index(ctx, "https://github.com/org/two", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)

	// A different owner is unaffected.
	result, err = svc.Index(ctx, "https://github.com/org/fourth", "u2")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
}

func TestIndex_DebugGatesErrorDetail(t *testing.T) {
	ctx := context.Background()

	svc, deps := newTestIndexer(t, false)
	deps.uploader.err = errors.New("secret internal detail")
	result, err := svc.Index(ctx, "https://github.com/org/repo", "u1")
	require.Error(t, err)
	assert.NotContains(t, result.Message, "secret internal detail")

	svc, deps = newTestIndexer(t, true)
	deps.uploader.err = errors.New("secret internal detail")
	result, err = svc.Index(ctx, "https://github.com/org/repo", "u1")
	require.Error(t, err)
	assert.Contains(t, result.Message, "secret internal detail")
}

func TestDelete_RemovesVectorsAndRecord(t *testing.T) {
	svc, deps := newTestIndexer(t, false)
	ctx := context.Background()

	require.NoError(t, deps.catalog.Save(ctx, catalog.RepoRecord{
		OwnerID: "u1", CollectionName: "repo", RepoURL: "https://github.com/org/repo",
	}))

	require.NoError(t, svc.Delete(ctx, "repo", "u1"))
	assert.Equal(t, []string{"delete"}, deps.store.ops)
	_, err := deps.catalog.Get(ctx, "u1", "repo")
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	// Deleting an unknown repository is a no-op.
	require.NoError(t, svc.Delete(ctx, "absent", "u1"))
}
