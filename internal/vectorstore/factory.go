package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
)

// New creates a Store from the configuration.
//
// vectorSize is the embedding dimension and must match the embedder's
// output; it is only enforced by the Qdrant backend, chromem accepts
// whatever the embedder produces.
func New(cfg config.VectorStoreConfig, vectorSize int, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:     cfg.Chromem.Path,
			Compress: cfg.Chromem.Compress,
		}, embedder, logger)
	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			UseTLS:     cfg.Qdrant.UseTLS,
			VectorSize: uint64(vectorSize),
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
