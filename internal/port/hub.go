package port

import (
	"context"
	"errors"
	"time"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

// Listing errors returned by a Lister
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrAuthRequired = errors.New("authentication required")
	ErrNotFound     = errors.New("repository not found")
)

// Lister enumerates the files of a remote repository
type Lister interface {
	ListFiles(ctx context.Context, repo domain.RepoRef) ([]domain.ManifestEntry, error)
}

// SizeProber looks up the real size of one remote file
type SizeProber interface {
	RemoteSize(ctx context.Context, repo domain.RepoRef, path string) (uint64, error)
}

// FetchResult describes a finished transfer
type FetchResult struct {
	Bytes    uint64
	Duration time.Duration
	Resumed  bool
}

// Transfer fetches one remote file into a local path.
// Failures are returned as *domain.TransferError.
type Transfer interface {
	Fetch(ctx context.Context, repo domain.RepoRef, path, dest string) (FetchResult, error)
}

// Clock supplies timestamps for ledger rows
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock
type ClockFunc func() time.Time

// Now returns the current time
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock is the wall clock in UTC
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Pinger checks connectivity of a remote collaborator
type Pinger interface {
	Ping(ctx context.Context) error
}
