package sqlite

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

// ActivatePlan stores a new plan version together with ledger records and
// the task's reset progress marker
func (s *Store) ActivatePlan(task *domain.Task, plan *domain.BatchPlan, manifest []domain.ManifestEntry) error {
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM batch_plans WHERE task_id = ?`, task.ID).Scan(&version); err != nil {
		return err
	}

	if _, err := tx.Exec(`UPDATE batch_plans SET active = FALSE WHERE task_id = ?`, task.ID); err != nil {
		return err
	}

	if _, err := tx.Exec(`
		INSERT INTO batch_plans (task_id, version, capacity, safety_margin, active, created_at)
		VALUES (?, ?, ?, ?, TRUE, ?)`,
		task.ID, version, int64(plan.Capacity), plan.SafetyMargin, plan.CreatedAt); err != nil {
		return err
	}

	batchStmt, err := tx.Prepare(`
		INSERT INTO plan_batches (task_id, version, batch_index, total_bytes, oversized)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer batchStmt.Close()

	entryStmt, err := tx.Prepare(`
		INSERT INTO plan_entries (task_id, version, batch_index, position, path, size_unknown)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer entryStmt.Close()

	for _, b := range plan.Batches {
		if _, err := batchStmt.Exec(task.ID, version, b.Index, int64(b.TotalBytes), b.Oversized); err != nil {
			return err
		}
		for pos, path := range b.Entries {
			if _, err := entryStmt.Exec(task.ID, version, b.Index, pos, path, plan.IsUnknownSize(path)); err != nil {
				return fmt.Errorf("plan entry %s: %w", path, err)
			}
		}
	}

	recordStmt, err := tx.Prepare(`
		INSERT INTO file_records (task_id, path, expected_size, size_unknown, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT (task_id, path) DO NOTHING`)
	if err != nil {
		return err
	}
	defer recordStmt.Close()

	for _, e := range manifest {
		if _, err := recordStmt.Exec(task.ID, e.Path, int64(e.ExpectedSize), e.SizeUnknown, now, now); err != nil {
			return fmt.Errorf("file record %s: %w", e.Path, err)
		}
	}

	result, err := tx.Exec(`
		UPDATE tasks
		SET status = ?, current_batch = 0, executed_batches = '', plan_version = ?, replanned = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'cancelled')`,
		string(task.Status), version, task.Replanned, nullString(task.LastError), task.UpdatedAt, task.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: task %s cannot be planned", domain.ErrInvalidStateTransition, task.ID)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	plan.TaskID = task.ID
	plan.Version = version
	task.PlanVersion = version
	task.ResetProgress()
	task.Plan = plan
	return nil
}

// GetActivePlan loads the active plan of a task
func (s *Store) GetActivePlan(taskID string) (*domain.BatchPlan, error) {
	plan := &domain.BatchPlan{TaskID: taskID}
	var capacity int64

	err := s.db.QueryRow(`
		SELECT version, capacity, safety_margin, created_at
		FROM batch_plans
		WHERE task_id = ? AND active = TRUE`, taskID).
		Scan(&plan.Version, &capacity, &plan.SafetyMargin, &plan.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoActivePlan, taskID)
	}
	if err != nil {
		return nil, err
	}
	plan.Capacity = uint64(capacity)

	rows, err := s.db.Query(`
		SELECT batch_index, total_bytes, oversized
		FROM plan_batches
		WHERE task_id = ? AND version = ?
		ORDER BY batch_index`, taskID, plan.Version)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var b domain.Batch
		var total int64
		if err := rows.Scan(&b.Index, &total, &b.Oversized); err != nil {
			rows.Close()
			return nil, err
		}
		if b.Index != len(plan.Batches) {
			rows.Close()
			return nil, domain.NewLedgerCorruption(taskID, fmt.Sprintf("batch index gap at %d", b.Index), nil)
		}
		b.TotalBytes = uint64(total)
		plan.Batches = append(plan.Batches, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(`
		SELECT batch_index, path, size_unknown
		FROM plan_entries
		WHERE task_id = ? AND version = ?
		ORDER BY batch_index, position`, taskID, plan.Version)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var path string
		var unknown bool
		if err := rows.Scan(&idx, &path, &unknown); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(plan.Batches) {
			return nil, domain.NewLedgerCorruption(taskID, fmt.Sprintf("entry %s in missing batch %d", path, idx), nil)
		}
		plan.Batches[idx].Entries = append(plan.Batches[idx].Entries, path)
		if plan.Batches[idx].Oversized {
			plan.Oversized = append(plan.Oversized, path)
		}
		if unknown {
			plan.UnknownSize = append(plan.UnknownSize, path)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range plan.Batches {
		if len(b.Entries) == 0 {
			return nil, domain.NewLedgerCorruption(taskID, fmt.Sprintf("batch %d has no entries", b.Number()), nil)
		}
	}

	sort.Strings(plan.Oversized)
	sort.Strings(plan.UnknownSize)
	return plan, nil
}
