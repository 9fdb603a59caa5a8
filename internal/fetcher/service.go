// Package fetcher acquires remote repositories into an ephemeral workspace
// under hard resource ceilings.
package fetcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/ibrahim-biner/ai-repo-analyst/internal/config"
)

// Service clones allow-listed repositories and enforces size and file-count
// ceilings on the resulting working tree.
type Service struct {
	cfg    config.FetcherConfig
	logger *zap.Logger

	// cloneFn is swapped in tests to avoid network access.
	cloneFn func(ctx context.Context, path, url string) error
}

// NewService creates a repository fetcher.
func NewService(cfg config.FetcherConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:    cfg,
		logger: logger,
		cloneFn: func(ctx context.Context, path, url string) error {
			_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
				URL:          url,
				Depth:        1,
				SingleBranch: true,
			})
			return err
		},
	}
}

// Fetch validates the URL, clones the repository into a working directory
// keyed by (ownerID, derived name), and enforces the configured ceilings.
//
// Any leftover working directory for the same key is removed before cloning,
// so a fetch never operates on stale content. On a ceiling violation the tree
// is removed and a *LimitExceededError is returned. On success the caller
// owns the returned Workdir and must Close it on every exit path.
func (s *Service) Fetch(ctx context.Context, repoURL, ownerID string) (*Workdir, error) {
	if err := ValidateURL(repoURL); err != nil {
		return nil, err
	}

	name := DeriveName(repoURL)
	if name == "" {
		return nil, fmt.Errorf("%w: cannot derive repository name", ErrValidation)
	}

	root, err := config.ExpandPath(s.cfg.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("expanding workspace dir: %w", err)
	}

	// Keyed by owner as well as name: two owners indexing repositories that
	// collide on the derived name must not share a checkout.
	target := filepath.Join(root, ownerID, name)

	removeTree(target, s.logger)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace dir: %w", err)
	}

	s.logger.Info("cloning repository",
		zap.String("url", repoURL),
		zap.String("owner_id", ownerID),
		zap.String("path", target),
	)

	if err := s.cloneFn(ctx, target, repoURL); err != nil {
		removeTree(target, s.logger)
		return nil, fmt.Errorf("%w: %v", ErrClone, err)
	}

	wd := &Workdir{Path: target, logger: s.logger}

	if err := s.enforceLimits(ctx, target); err != nil {
		_ = wd.Close()
		return nil, err
	}

	return wd, nil
}

// enforceLimits walks the working tree once, totaling bytes and files.
// The walk halts as soon as either ceiling is exceeded.
func (s *Service) enforceLimits(ctx context.Context, root string) error {
	var totalBytes int64
	var fileCount int64

	var limitErr *LimitExceededError
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		fileCount++
		if fileCount > int64(s.cfg.MaxFileCount) {
			limitErr = &LimitExceededError{
				Kind:     LimitFiles,
				Measured: fileCount,
				Limit:    int64(s.cfg.MaxFileCount),
			}
			return fs.SkipAll
		}

		info, err := d.Info()
		if err != nil {
			// A file that vanished mid-walk does not count against the ceiling.
			return nil
		}
		totalBytes += info.Size()
		if totalBytes > s.cfg.MaxRepoBytes {
			limitErr = &LimitExceededError{
				Kind:     LimitSize,
				Measured: totalBytes,
				Limit:    s.cfg.MaxRepoBytes,
			}
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking working tree: %w", err)
	}
	if limitErr != nil {
		s.logger.Warn("repository exceeds resource ceiling",
			zap.String("kind", string(limitErr.Kind)),
			zap.Int64("measured", limitErr.Measured),
			zap.Int64("limit", limitErr.Limit),
		)
		return limitErr
	}

	s.logger.Debug("working tree within limits",
		zap.Int64("total_bytes", totalBytes),
		zap.Int64("file_count", fileCount),
	)
	return nil
}
