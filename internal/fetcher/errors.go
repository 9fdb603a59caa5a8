package fetcher

import (
	"errors"
	"fmt"
)

// Sentinel errors for repository acquisition.
var (
	// ErrValidation indicates a rejected repository URL. Never retried.
	ErrValidation = errors.New("invalid repository URL")

	// ErrClone indicates the clone itself failed.
	ErrClone = errors.New("clone failed")
)

// LimitKind identifies which ceiling a working tree exceeded.
type LimitKind string

const (
	// LimitSize is the total byte ceiling.
	LimitSize LimitKind = "size"
	// LimitFiles is the file count ceiling.
	LimitFiles LimitKind = "files"
)

// LimitExceededError reports a working tree exceeding a resource ceiling.
// The working directory has already been removed when this error is returned.
type LimitExceededError struct {
	Kind     LimitKind
	Measured int64
	Limit    int64
}

func (e *LimitExceededError) Error() string {
	switch e.Kind {
	case LimitSize:
		return fmt.Sprintf("repository size limit exceeded: %.2f MB (limit: %.2f MB)",
			float64(e.Measured)/(1024*1024), float64(e.Limit)/(1024*1024))
	default:
		return fmt.Sprintf("repository file count limit exceeded: %d files (limit: %d)",
			e.Measured, e.Limit)
	}
}

// IsLimitExceeded reports whether err is a LimitExceededError.
func IsLimitExceeded(err error) bool {
	var le *LimitExceededError
	return errors.As(err, &le)
}
