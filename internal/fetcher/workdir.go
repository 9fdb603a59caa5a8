package fetcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Workdir is a scoped handle on an ephemeral repository checkout.
//
// The caller owns the handle and must call Close on every exit path. Close is
// idempotent. Removal tolerates read-only files left behind by the clone
// (common on Windows checkouts) by retrying with a chmod-to-writable pass;
// a file still locked by an OS-level handle after the retries is logged and
// tolerated rather than treated as a processing failure.
type Workdir struct {
	// Path is the checkout root.
	Path string

	logger *zap.Logger
	closed bool
}

const (
	removeAttempts = 3
	removeDelay    = time.Second
)

// Close removes the working directory.
func (w *Workdir) Close() error {
	if w == nil || w.closed {
		return nil
	}
	w.closed = true
	removeTree(w.Path, w.logger)
	return nil
}

// removeTree removes path with retries, forcing read-only entries writable
// between attempts. Stubborn files are warned about, never fatal.
func removeTree(path string, logger *zap.Logger) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}

	var lastErr error
	for attempt := 1; attempt <= removeAttempts; attempt++ {
		lastErr = os.RemoveAll(path)
		if lastErr == nil {
			return
		}

		makeTreeWritable(path)

		if attempt < removeAttempts {
			time.Sleep(removeDelay)
		}
	}

	if logger != nil {
		logger.Warn("working directory could not be fully removed, continuing",
			zap.String("path", path),
			zap.Error(lastErr),
		)
	}
}

// makeTreeWritable chmods every entry under path writable so a retry of
// os.RemoveAll can delete read-only files.
func makeTreeWritable(path string) {
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		_ = os.Chmod(p, info.Mode().Perm()|0200)
		return nil
	})
}
