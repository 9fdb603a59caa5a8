// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrEmptyFilter indicates a metadata operation without filter conditions.
	ErrEmptyFilter = errors.New("empty metadata filter")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against security rules.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Embedder generates vector embeddings from text.
//
// Embeddings are dense numerical representations that capture semantic
// meaning, enabling similarity search. Implementations can use cloud APIs
// (Gemini) or deterministic local vectors for tests.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector storage operations.
//
// This interface is transport-agnostic - implementations can use an embedded
// database or gRPC. Every stored document carries owner_id and collection_name
// metadata; callers scope all reads and deletes with those two fields.
//
// Implementations:
//   - ChromemStore: Embedded chromem-go (default)
//   - QdrantStore: External Qdrant gRPC client
type Store interface {
	// AddDocuments adds documents to the named collection.
	//
	// Documents carrying a precomputed Embedding are stored as-is; documents
	// without one are embedded in a single batch call. Returns the IDs of
	// the stored documents.
	AddDocuments(ctx context.Context, collectionName string, docs []Document) ([]string, error)

	// SearchByVector performs similarity search with metadata filters.
	//
	// Filters are applied to document metadata (e.g. {"owner_id": "u1"});
	// only documents matching ALL conditions are returned. Results are
	// ordered by similarity score (highest first) and carry the backend's
	// score unmodified. A positive scoreThreshold drops results below it.
	SearchByVector(ctx context.Context, collectionName string, vector []float32, k int, filters map[string]interface{}, scoreThreshold float32) ([]SearchResult, error)

	// DeleteByMetadata deletes all documents whose metadata matches every
	// filter condition. Deleting from a missing collection or matching zero
	// documents succeeds: the operation is idempotent.
	DeleteByMetadata(ctx context.Context, collectionName string, filters map[string]interface{}) error

	// CollectionExists checks if a collection exists.
	// Returns an error only if the check operation itself fails.
	CollectionExists(ctx context.Context, collectionName string) (bool, error)

	// Close closes the vector store connection and releases resources.
	Close() error
}
