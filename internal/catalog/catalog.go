// Package catalog persists the durable record of indexed repositories.
//
// The vector store holds the chunks; the catalog answers "which repositories
// does this owner have indexed" without touching vector data. Records are
// keyed by (owner_id, collection_name).
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned when a repository record does not exist.
var ErrNotFound = errors.New("repository record not found")

// RepoRecord is the durable record of one indexed repository.
type RepoRecord struct {
	// OwnerID identifies the tenant that indexed the repository.
	OwnerID string

	// CollectionName is the vector store collection holding the chunks.
	CollectionName string

	// RepoURL is the source URL the repository was fetched from.
	RepoURL string

	// IndexedAt is when the repository was first indexed.
	IndexedAt time.Time
}

// Store is a SQLite-backed repository catalog.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewStore creates a catalog store at the specified data directory.
// If dataDir is empty, defaults to ~/.local/share/repoanalyst/data.
func NewStore(dataDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share", "repoanalyst", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "catalog.db")

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Debug("catalog store opened", zap.String("path", dbPath))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS repos (
			owner_id        TEXT NOT NULL,
			collection_name TEXT NOT NULL,
			repo_url        TEXT NOT NULL,
			indexed_at      DATETIME NOT NULL,
			PRIMARY KEY (owner_id, collection_name)
		)
	`)
	if err != nil {
		return fmt.Errorf("creating repos table: %w", err)
	}
	return nil
}

// Save records an indexed repository. An existing record for the same
// (owner_id, collection_name) is left untouched, so re-indexing keeps the
// original IndexedAt timestamp.
func (s *Store) Save(ctx context.Context, rec RepoRecord) error {
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repos (owner_id, collection_name, repo_url, indexed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, collection_name) DO NOTHING
	`, rec.OwnerID, rec.CollectionName, rec.RepoURL, rec.IndexedAt)
	if err != nil {
		return fmt.Errorf("saving repo record: %w", err)
	}
	return nil
}

// Get retrieves a repository record.
func (s *Store) Get(ctx context.Context, ownerID, collectionName string) (*RepoRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT owner_id, collection_name, repo_url, indexed_at
		FROM repos WHERE owner_id = ? AND collection_name = ?
	`, ownerID, collectionName)

	var rec RepoRecord
	if err := row.Scan(&rec.OwnerID, &rec.CollectionName, &rec.RepoURL, &rec.IndexedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning repo record: %w", err)
	}
	return &rec, nil
}

// List returns all repository records for an owner, newest first.
func (s *Store) List(ctx context.Context, ownerID string) ([]RepoRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, collection_name, repo_url, indexed_at
		FROM repos WHERE owner_id = ?
		ORDER BY indexed_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying repo records: %w", err)
	}
	defer rows.Close()

	var records []RepoRecord
	for rows.Next() {
		var rec RepoRecord
		if err := rows.Scan(&rec.OwnerID, &rec.CollectionName, &rec.RepoURL, &rec.IndexedAt); err != nil {
			return nil, fmt.Errorf("scanning repo record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating repo records: %w", err)
	}
	return records, nil
}

// CountByOwner returns how many repositories an owner has indexed.
func (s *Store) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM repos WHERE owner_id = ?", ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting repo records: %w", err)
	}
	return count, nil
}

// Delete removes a repository record. Deleting a missing record succeeds.
func (s *Store) Delete(ctx context.Context, ownerID, collectionName string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM repos WHERE owner_id = ? AND collection_name = ?", ownerID, collectionName)
	if err != nil {
		return fmt.Errorf("deleting repo record: %w", err)
	}
	return nil
}
