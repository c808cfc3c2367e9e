package repository

import (
	"time"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

// RecordMutation changes a record inside a transaction and returns the audit
// reason. Returning an error rolls the change back.
type RecordMutation func(r *domain.FileRecord) (reason string, err error)

// FileRecordRepository defines the per-file ledger operations
type FileRecordRepository interface {
	// GetRecord retrieves one ledger row
	// Returns domain.ErrRecordNotFound if the task has no record for path
	GetRecord(taskID, path string) (*domain.FileRecord, error)

	// ListRecords returns every record of a task ordered by path
	ListRecords(taskID string) ([]*domain.FileRecord, error)

	// ListRecordsByStatus returns records of a task in the given status
	ListRecordsByStatus(taskID string, status domain.FileStatus) ([]*domain.FileRecord, error)

	// UpdateRecord atomically reads, mutates and writes one record and appends
	// an audit entry (old status -> new status, reason) in the same transaction
	UpdateRecord(taskID, path string, fn RecordMutation) (*domain.FileRecord, error)

	// ListAudit returns the audit trail of one record, oldest first
	ListAudit(taskID, path string) ([]*domain.AuditEntry, error)

	// GetLedgerStats returns per-status counts for a task
	GetLedgerStats(taskID string) (*domain.LedgerStats, error)

	// ResetStaleDownloading moves records stuck in downloading back to pending
	// Used after a crash, when updated_at is older than the given duration
	ResetStaleDownloading(olderThan time.Duration) (int, error)
}
