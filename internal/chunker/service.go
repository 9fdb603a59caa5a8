// Package chunker converts a fetched working tree into retrievable text
// chunks with stable source attribution.
package chunker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
)

// skipDirs are directories never walked: version control, dependency and
// build caches.
var skipDirs = map[string]bool{
	".git":         true,
	".github":      true,
	".svn":         true,
	".hg":          true,
	"node_modules": true,
	"vendor":       true,
	".venv":        true,
	"venv":         true,
	"__pycache__":  true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
}

// includeExts is the extension allow-list for source, text and doc files.
var includeExts = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".java": true, ".cpp": true, ".c": true, ".h": true, ".hpp": true,
	".cs": true, ".php": true, ".go": true, ".rs": true, ".rb": true,
	".html": true, ".css": true, ".md": true, ".json": true,
	".yaml": true, ".yml": true, ".toml": true, ".sh": true, ".txt": true,
}

// Service walks working trees and splits included files into chunks.
type Service struct {
	cfg    config.ChunkerConfig
	logger *zap.Logger
}

// NewService creates a chunker.
func NewService(cfg config.ChunkerConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, logger: logger}
}

// ChunkTree walks the working tree at root and returns chunks for every
// included file, in deterministic walk order.
//
// A file that cannot be read or decoded is skipped with a warning; a single
// bad file never aborts the walk. Files that are empty after whitespace
// trimming are skipped silently.
func (s *Service) ChunkTree(root, ownerID, collectionName string) ([]Chunk, error) {
	var chunks []Chunk

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !includeExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		relPath = filepath.ToSlash(relPath)

		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable file",
				zap.String("path", relPath),
				zap.Error(err),
			)
			return nil
		}
		if !utf8.Valid(content) {
			s.logger.Warn("skipping non-text file", zap.String("path", relPath))
			return nil
		}

		text := string(content)
		if strings.TrimSpace(text) == "" {
			return nil
		}

		for _, window := range Split(text, s.cfg.WindowSize, s.cfg.Overlap) {
			chunks = append(chunks, Chunk{
				Content:        window,
				SourcePath:     relPath,
				FileName:       d.Name(),
				CollectionName: collectionName,
				OwnerID:        ownerID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking tree: %w", err)
	}

	s.logger.Debug("chunked working tree",
		zap.String("collection", collectionName),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}
