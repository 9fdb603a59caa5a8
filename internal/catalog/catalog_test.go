package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCatalog(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveAndGet(t *testing.T) {
	store := newTestCatalog(t)
	ctx := context.Background()

	rec := RepoRecord{
		OwnerID:        "u1",
		CollectionName: "my_repo",
		RepoURL:        "https://github.com/org/my-repo",
	}
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "u1", "my_repo")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)
	assert.Equal(t, "my_repo", got.CollectionName)
	assert.Equal(t, rec.RepoURL, got.RepoURL)
	assert.False(t, got.IndexedAt.IsZero())
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestCatalog(t)

	_, err := store.Get(context.Background(), "u1", "absent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveKeepsFirstRecord(t *testing.T) {
	store := newTestCatalog(t)
	ctx := context.Background()

	first := RepoRecord{
		OwnerID:        "u1",
		CollectionName: "my_repo",
		RepoURL:        "https://github.com/org/my-repo",
		IndexedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, first))

	// Re-indexing the same repository must not overwrite the record.
	second := first
	second.RepoURL = "https://github.com/org/my-repo.git"
	second.IndexedAt = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Get(ctx, "u1", "my_repo")
	require.NoError(t, err)
	assert.Equal(t, first.RepoURL, got.RepoURL)
	assert.True(t, got.IndexedAt.Equal(first.IndexedAt))

	count, err := store.CountByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_ListNewestFirst(t *testing.T) {
	store := newTestCatalog(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"oldest", "middle", "newest"} {
		require.NoError(t, store.Save(ctx, RepoRecord{
			OwnerID:        "u1",
			CollectionName: name,
			RepoURL:        "https://github.com/org/" + name,
			IndexedAt:      base.Add(time.Duration(i) * time.Hour),
		}))
	}
	// Another owner's record must not leak into the listing.
	require.NoError(t, store.Save(ctx, RepoRecord{
		OwnerID:        "u2",
		CollectionName: "other",
		RepoURL:        "https://github.com/org/other",
	}))

	records, err := store.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "newest", records[0].CollectionName)
	assert.Equal(t, "middle", records[1].CollectionName)
	assert.Equal(t, "oldest", records[2].CollectionName)
}

func TestStore_CountByOwner(t *testing.T) {
	store := newTestCatalog(t)
	ctx := context.Background()

	count, err := store.CountByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, RepoRecord{
			OwnerID: "u1", CollectionName: name, RepoURL: "https://github.com/org/" + name,
		}))
	}

	count, err = store.CountByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestStore_Delete(t *testing.T) {
	store := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, RepoRecord{
		OwnerID: "u1", CollectionName: "repo", RepoURL: "https://github.com/org/repo",
	}))

	require.NoError(t, store.Delete(ctx, "u1", "repo"))
	_, err := store.Get(ctx, "u1", "repo")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op.
	require.NoError(t, store.Delete(ctx, "u1", "repo"))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, RepoRecord{
		OwnerID: "u1", CollectionName: "repo", RepoURL: "https://github.com/org/repo",
	}))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "u1", "repo")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/org/repo", got.RepoURL)
}
