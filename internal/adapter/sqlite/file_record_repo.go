package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/domain/repository"
)

const recordColumns = `task_id, path, expected_size, size_unknown, actual_size, status,
	attempts, last_error, created_at, updated_at, completed_at`

// GetRecord retrieves one ledger row
func (s *Store) GetRecord(taskID, path string) (*domain.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM file_records WHERE task_id = ? AND path = ?`

	rec, err := scanRecord(s.db.QueryRow(query, taskID, path))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, path)
	}
	return rec, nil
}

// ListRecords returns every record of a task ordered by path
func (s *Store) ListRecords(taskID string) ([]*domain.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM file_records WHERE task_id = ? ORDER BY path`
	return s.queryRecords(query, taskID)
}

// ListRecordsByStatus returns records of a task in the given status
func (s *Store) ListRecordsByStatus(taskID string, status domain.FileStatus) ([]*domain.FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM file_records WHERE task_id = ? AND status = ? ORDER BY path`
	return s.queryRecords(query, taskID, string(status))
}

// UpdateRecord atomically mutates one record and appends its audit entry
func (s *Store) UpdateRecord(taskID, path string, fn repository.RecordMutation) (*domain.FileRecord, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + recordColumns + ` FROM file_records WHERE task_id = ? AND path = ?`
	rec, err := scanRecord(tx.QueryRow(query, taskID, path))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRecordNotFound, path)
	}

	from := rec.Status
	prevUpdated := rec.UpdatedAt
	reason, err := fn(rec)
	if err != nil {
		return nil, err
	}
	if rec.UpdatedAt.Equal(prevUpdated) {
		rec.UpdatedAt = time.Now().UTC()
	}

	var completedAt sql.NullTime
	if rec.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *rec.CompletedAt, Valid: true}
	}

	_, err = tx.Exec(`
		UPDATE file_records
		SET expected_size = ?, size_unknown = ?, actual_size = ?, status = ?,
			attempts = ?, last_error = ?, updated_at = ?, completed_at = ?
		WHERE task_id = ? AND path = ?`,
		int64(rec.ExpectedSize), rec.SizeUnknown, int64(rec.ActualSize), string(rec.Status),
		rec.Attempts, nullString(rec.LastError), rec.UpdatedAt, completedAt,
		taskID, path)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO file_audit (task_id, path, from_status, to_status, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		taskID, path, string(from), string(rec.Status), reason, rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListAudit returns the audit trail of one record, oldest first
func (s *Store) ListAudit(taskID, path string) ([]*domain.AuditEntry, error) {
	rows, err := s.db.Query(`
		SELECT task_id, path, from_status, to_status, reason, created_at
		FROM file_audit
		WHERE task_id = ? AND path = ?
		ORDER BY id`, taskID, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.AuditEntry
	for rows.Next() {
		e := &domain.AuditEntry{}
		var from, to string
		if err := rows.Scan(&e.TaskID, &e.Path, &from, &to, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.From = domain.FileStatus(from)
		e.To = domain.FileStatus(to)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLedgerStats returns per-status counts for a task
func (s *Store) GetLedgerStats(taskID string) (*domain.LedgerStats, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*), COALESCE(SUM(expected_size), 0), COALESCE(SUM(actual_size), 0)
		FROM file_records
		WHERE task_id = ?
		GROUP BY status`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.LedgerStats{}
	for rows.Next() {
		var status string
		var count int
		var expected, actual int64
		if err := rows.Scan(&status, &count, &expected, &actual); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.ExpectedBytes += uint64(expected)
		switch domain.FileStatus(status) {
		case domain.FileStatusPending:
			stats.Pending = count
		case domain.FileStatusDownloading:
			stats.Downloading = count
		case domain.FileStatusCompleted:
			stats.Completed = count
			stats.CompletedBytes = uint64(actual)
		case domain.FileStatusFailed:
			stats.Failed = count
		default:
			return nil, domain.NewLedgerCorruption(taskID, "unknown file status "+status, nil)
		}
	}
	return stats, rows.Err()
}

// ResetStaleDownloading moves records stuck in downloading back to pending
func (s *Store) ResetStaleDownloading(olderThan time.Duration) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO file_audit (task_id, path, from_status, to_status, reason, created_at)
		SELECT task_id, path, 'downloading', 'pending', 'stale download released', ?
		FROM file_records
		WHERE status = 'downloading' AND updated_at < ?`, now, cutoff)
	if err != nil {
		return 0, err
	}

	result, err := tx.Exec(`
		UPDATE file_records
		SET status = 'pending', updated_at = ?
		WHERE status = 'downloading' AND updated_at < ?`, now, cutoff)
	if err != nil {
		return 0, err
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(count), tx.Commit()
}

func (s *Store) queryRecords(query string, args ...any) ([]*domain.FileRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// scanRecord scans a single record row; returns nil, nil when there is no row
func scanRecord(row rowScanner) (*domain.FileRecord, error) {
	rec := &domain.FileRecord{}
	var expected, actual int64
	var status string
	var lastError sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&rec.TaskID, &rec.Path, &expected, &rec.SizeUnknown, &actual, &status,
		&rec.Attempts, &lastError, &rec.CreatedAt, &rec.UpdatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.ExpectedSize = uint64(expected)
	rec.ActualSize = uint64(actual)
	rec.Status = domain.FileStatus(status)
	if lastError.Valid {
		rec.LastError = lastError.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}

	switch rec.Status {
	case domain.FileStatusPending, domain.FileStatusDownloading, domain.FileStatusCompleted, domain.FileStatusFailed:
	default:
		return nil, domain.NewLedgerCorruption(rec.TaskID, fmt.Sprintf("record %s has unknown status %q", rec.Path, status), nil)
	}
	if rec.Status == domain.FileStatusCompleted && rec.CompletedAt == nil {
		return nil, domain.NewLedgerCorruption(rec.TaskID, fmt.Sprintf("record %s completed without timestamp", rec.Path), nil)
	}

	return rec, nil
}
