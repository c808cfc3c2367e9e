package sqlite

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

const taskColumns = `id, repo_id, repo_type, revision, local_dir, status, current_batch,
	executed_batches, plan_version, auto_proceed, replanned, last_error, created_at, updated_at`

// CreateTask inserts a task in planning state
func (s *Store) CreateTask(task *domain.Task) error {
	if task.Status == "" {
		task.Status = domain.TaskStatusPlanning
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = task.CreatedAt

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		task.ID, task.Repo.ID, string(task.Repo.Type), task.Repo.Revision, task.LocalDir,
		string(task.Status), task.CurrentBatch, encodeIndexes(task.Executed), task.PlanVersion, task.AutoProceed, task.Replanned,
		nullString(task.LastError), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetTask retrieves a task with its active plan
func (s *Store) GetTask(id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(s.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}

	if task.PlanVersion == 0 {
		return task, nil
	}

	plan, err := s.GetActivePlan(id)
	if err != nil {
		return nil, domain.NewLedgerCorruption(id, fmt.Sprintf("plan version %d unreadable", task.PlanVersion), err)
	}
	if plan.Version != task.PlanVersion {
		return nil, domain.NewLedgerCorruption(id,
			fmt.Sprintf("active plan version %d, task expects %d", plan.Version, task.PlanVersion), nil)
	}
	if task.CurrentBatch > len(plan.Batches) {
		return nil, domain.NewLedgerCorruption(id,
			fmt.Sprintf("current batch %d beyond %d batches", task.CurrentBatch, len(plan.Batches)), nil)
	}
	if len(task.Executed) != task.CurrentBatch {
		return nil, domain.NewLedgerCorruption(id,
			fmt.Sprintf("%d batches marked executed, progress marker says %d", len(task.Executed), task.CurrentBatch), nil)
	}
	for _, index := range task.Executed {
		if index >= len(plan.Batches) {
			return nil, domain.NewLedgerCorruption(id,
				fmt.Sprintf("executed batch %d beyond %d batches", index+1, len(plan.Batches)), nil)
		}
	}
	task.Plan = plan

	return task, nil
}

// GetTaskStatus returns only the persisted status
func (s *Store) GetTaskStatus(id string) (domain.TaskStatus, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return domain.TaskStatus(status), nil
}

// ListTasks returns tasks without plans, newest first
func (s *Store) ListTasks(statuses ...domain.TaskStatus) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// SaveProgress persists the progress marker and status of a task
func (s *Store) SaveProgress(task *domain.Task) error {
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = time.Now().UTC()
	}

	query := `
		UPDATE tasks
		SET status = ?, current_batch = ?, executed_batches = ?, replanned = ?, last_error = ?, updated_at = ?
		WHERE id = ?
		  AND plan_version = ?
		  AND current_batch <= ?
		  AND status NOT IN ('completed', 'cancelled')
	`
	result, err := s.db.Exec(query,
		string(task.Status), task.CurrentBatch, encodeIndexes(task.Executed), task.Replanned, nullString(task.LastError), task.UpdatedAt,
		task.ID, task.PlanVersion, task.CurrentBatch)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Work out why nothing was updated
	current, err := s.GetTask(task.ID)
	if err != nil {
		return err
	}
	switch {
	case current.Status == domain.TaskStatusCancelled:
		return fmt.Errorf("%w: %s", domain.ErrTaskCancelled, task.ID)
	case current.Status.IsTerminal():
		return fmt.Errorf("%w: task %s is %s", domain.ErrInvalidStateTransition, task.ID, current.Status)
	case current.PlanVersion != task.PlanVersion:
		return fmt.Errorf("%w: plan version changed from %d to %d", domain.ErrOutOfOrderBatch, task.PlanVersion, current.PlanVersion)
	default:
		return fmt.Errorf("%w: current batch would move from %d back to %d",
			domain.ErrOutOfOrderBatch, current.CurrentBatch, task.CurrentBatch)
	}
}

// DeleteTask removes a task with its plans, records and audit trail
func (s *Store) DeleteTask(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	statements := []string{
		`DELETE FROM file_audit WHERE task_id = ?`,
		`DELETE FROM file_records WHERE task_id = ?`,
		`DELETE FROM plan_entries WHERE task_id = ?`,
		`DELETE FROM plan_batches WHERE task_id = ?`,
		`DELETE FROM batch_plans WHERE task_id = ?`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt, id); err != nil {
			return err
		}
	}

	result, err := tx.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask scans a single task row; returns nil, nil when there is no row
func scanTask(row rowScanner) (*domain.Task, error) {
	task := &domain.Task{}
	var repoType, status, executed string
	var lastError sql.NullString

	err := row.Scan(
		&task.ID, &task.Repo.ID, &repoType, &task.Repo.Revision, &task.LocalDir,
		&status, &task.CurrentBatch, &executed, &task.PlanVersion, &task.AutoProceed, &task.Replanned,
		&lastError, &task.CreatedAt, &task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task.Repo.Type = domain.RepoType(repoType)
	task.Status = domain.TaskStatus(status)
	if !task.Status.Valid() {
		return nil, domain.NewLedgerCorruption(task.ID, "unknown task status "+status, nil)
	}
	if lastError.Valid {
		task.LastError = lastError.String
	}
	task.Executed, err = decodeIndexes(executed)
	if err != nil {
		return nil, domain.NewLedgerCorruption(task.ID, "unreadable executed batches", err)
	}

	return task, nil
}

// encodeIndexes stores batch indexes as a comma-separated list
func encodeIndexes(indexes []int) string {
	parts := make([]string, len(indexes))
	for i, n := range indexes {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// decodeIndexes parses a list written by encodeIndexes; it must be strictly increasing
func decodeIndexes(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	indexes := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		if n < 0 || (i > 0 && n <= indexes[i-1]) {
			return nil, fmt.Errorf("batch index %d out of order in %q", n, s)
		}
		indexes[i] = n
	}
	return indexes, nil
}
