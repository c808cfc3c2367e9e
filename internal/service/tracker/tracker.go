// Package tracker decides, per file, whether a batch run must transfer it,
// reconciling the ledger with what is actually on local disk.
//
// A record marked completed whose file is gone is presumed moved to external
// storage during rotation and is skipped, unless the operator asks for moved
// files to be downloaded again.
package tracker

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/port"
)

// Action is what a batch run must do with a file
type Action string

const (
	ActionDownload   Action = "download"
	ActionSkip       Action = "skip"
	ActionRedownload Action = "redownload"
	ActionVerify     Action = "verify"
)

// NeedsTransfer returns true for actions that fetch the file
func (a Action) NeedsTransfer() bool {
	return a == ActionDownload || a == ActionRedownload
}

// MovedFilePolicy selects how completed-but-absent files are treated
type MovedFilePolicy string

const (
	PolicySkipMoved       MovedFilePolicy = "skip"
	PolicyRedownloadMoved MovedFilePolicy = "redownload"
)

// ParsePolicy parses "skip" or "redownload"
func ParsePolicy(s string) (MovedFilePolicy, error) {
	switch MovedFilePolicy(s) {
	case PolicySkipMoved, PolicyRedownloadMoved:
		return MovedFilePolicy(s), nil
	case "":
		return PolicySkipMoved, nil
	default:
		return "", fmt.Errorf("%w: moved-files policy %q (want skip or redownload)", domain.ErrInvalidInput, s)
	}
}

// Resolution is the outcome of Resolve
type Resolution struct {
	Action    Action
	Reason    string
	Moved     bool // completed in the ledger, absent on disk
	LocalSize uint64
	Record    *domain.FileRecord
}

// Tracker wraps the ledger; all record mutation goes through it
type Tracker struct {
	records port.FileRecordRepository
	fs      port.FileSystem
	clock   port.Clock
	locks   *keyedMutex
	logger  *zap.Logger
}

// New creates a new Tracker
func New(records port.FileRecordRepository, fs port.FileSystem, clock port.Clock, logger *zap.Logger) *Tracker {
	if clock == nil {
		clock = port.SystemClock
	}
	return &Tracker{
		records: records,
		fs:      fs,
		clock:   clock,
		locks:   newKeyedMutex(),
		logger:  logger,
	}
}

func lockKey(taskID, path string) string {
	return taskID + "\x00" + path
}

// Resolve decides what to do with one file and writes the audit entry
func (t *Tracker) Resolve(taskID, path, localPath string, policy MovedFilePolicy) (*Resolution, error) {
	unlock := t.locks.Lock(lockKey(taskID, path))
	defer unlock()

	local, err := t.fs.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	res := &Resolution{LocalSize: local.Size}
	now := t.clock.Now()

	rec, err := t.records.UpdateRecord(taskID, path, func(r *domain.FileRecord) (string, error) {
		r.UpdatedAt = now
		matches := local.Exists && r.SizeMatches(local.Size)

		switch {
		case r.IsCompleted() && local.Exists && matches:
			res.Action = ActionSkip
			res.Reason = "completed and present"

		case r.IsCompleted() && local.Exists:
			res.Action = ActionRedownload
			res.Reason = fmt.Sprintf("completed but local size %d differs from expected %d", local.Size, r.ExpectedSize)
			r.ResetPending()

		case r.IsCompleted() && policy == PolicyRedownloadMoved:
			res.Action = ActionRedownload
			res.Moved = true
			res.Reason = "completed but absent; redownload of moved files requested"
			r.ResetPending()

		case r.IsCompleted():
			res.Action = ActionSkip
			res.Moved = true
			res.Reason = "completed but absent; presumed moved"

		case matches:
			res.Action = ActionVerify
			res.Reason = fmt.Sprintf("present with expected size after %s", r.Status)
			r.MarkCompleted(local.Size, now)

		case local.Exists && r.SizeUnknown:
			res.Action = ActionDownload
			res.Reason = fmt.Sprintf("local copy of %d bytes cannot be verified, remote size unknown", local.Size)

		case local.Exists:
			res.Action = ActionDownload
			res.Reason = fmt.Sprintf("local size %d differs from expected %d", local.Size, r.ExpectedSize)

		default:
			res.Action = ActionDownload
			res.Reason = "not on disk"
		}
		return "resolve " + string(res.Action) + ": " + res.Reason, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NewLedgerCorruption(taskID, "planned file has no ledger record", err)
		}
		return nil, err
	}

	res.Record = rec
	return res, nil
}

// Record returns the ledger row of a planned file
func (t *Tracker) Record(taskID, path string) (*domain.FileRecord, error) {
	rec, err := t.records.GetRecord(taskID, path)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, domain.NewLedgerCorruption(taskID, "planned file has no ledger record", err)
	}
	return rec, err
}

// MarkDownloading flags a file as in flight
func (t *Tracker) MarkDownloading(taskID, path string) (*domain.FileRecord, error) {
	return t.mutate(taskID, path, func(r *domain.FileRecord) (string, error) {
		r.Status = domain.FileStatusDownloading
		return "dispatched", nil
	})
}

// RecordAttemptFailure counts a failed attempt that will be retried
func (t *Tracker) RecordAttemptFailure(taskID, path string, cause error) (*domain.FileRecord, error) {
	return t.mutate(taskID, path, func(r *domain.FileRecord) (string, error) {
		r.MarkAttemptFailed(cause.Error())
		return fmt.Sprintf("attempt %d failed, retrying", r.Attempts), nil
	})
}

// MarkCompleted records a finished transfer with its actual size
func (t *Tracker) MarkCompleted(taskID, path string, actualSize uint64) (*domain.FileRecord, error) {
	now := t.clock.Now()
	return t.mutate(taskID, path, func(r *domain.FileRecord) (string, error) {
		r.MarkCompleted(actualSize, now)
		return "transfer completed", nil
	})
}

// MarkFailed records the final failure of a file
func (t *Tracker) MarkFailed(taskID, path string, cause error) (*domain.FileRecord, error) {
	return t.mutate(taskID, path, func(r *domain.FileRecord) (string, error) {
		r.MarkFailed(cause.Error())
		if domain.IsTransient(cause) {
			return "retries exhausted", nil
		}
		return "fatal transfer error", nil
	})
}

// MarkInterrupted returns an in-flight file to pending without counting a failure
func (t *Tracker) MarkInterrupted(taskID, path, reason string) (*domain.FileRecord, error) {
	return t.mutate(taskID, path, func(r *domain.FileRecord) (string, error) {
		r.Status = domain.FileStatusPending
		return reason, nil
	})
}

// UpdateExpectedSize replaces a placeholder size with the probed one
func (t *Tracker) UpdateExpectedSize(taskID, path string, size uint64) (*domain.FileRecord, error) {
	return t.mutate(taskID, path, func(r *domain.FileRecord) (string, error) {
		r.ExpectedSize = size
		r.SizeUnknown = false
		return fmt.Sprintf("size verified at %d bytes", size), nil
	})
}

func (t *Tracker) mutate(taskID, path string, fn func(r *domain.FileRecord) (string, error)) (*domain.FileRecord, error) {
	unlock := t.locks.Lock(lockKey(taskID, path))
	defer unlock()

	now := t.clock.Now()
	rec, err := t.records.UpdateRecord(taskID, path, func(r *domain.FileRecord) (string, error) {
		r.UpdatedAt = now
		return fn(r)
	})
	if err != nil {
		t.logger.Error("ledger update failed",
			zap.String("task_id", taskID),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}
	return rec, nil
}
