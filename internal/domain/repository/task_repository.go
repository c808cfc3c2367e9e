package repository

import (
	"github.com/vertextoedge/batchfetch/internal/domain"
)

// TaskRepository defines task and progress-marker persistence
type TaskRepository interface {
	// CreateTask inserts a task in planning state
	// Returns domain.ErrAlreadyExists if the ID is taken
	CreateTask(task *domain.Task) error

	// GetTask retrieves a task with its active plan
	// Returns domain.ErrTaskNotFound if no task has the ID
	GetTask(id string) (*domain.Task, error)

	// GetTaskStatus returns only the persisted status, for cheap polling
	GetTaskStatus(id string) (domain.TaskStatus, error)

	// ListTasks returns tasks without plans, newest first
	// With no statuses every task is returned
	ListTasks(statuses ...domain.TaskStatus) ([]*domain.Task, error)

	// SaveProgress persists status, current batch, replanned flag and last error
	// Refuses to move current batch backwards within a plan version and
	// returns domain.ErrTaskCancelled when the task was cancelled concurrently
	SaveProgress(task *domain.Task) error

	// DeleteTask removes a task with its plans, records and audit trail
	DeleteTask(id string) error
}

// PlanRepository defines plan persistence
type PlanRepository interface {
	// ActivatePlan stores a new plan version, inserts missing ledger records
	// for the manifest and resets the task's progress marker, all in one
	// transaction. plan.Version is assigned by the store.
	ActivatePlan(task *domain.Task, plan *domain.BatchPlan, manifest []domain.ManifestEntry) error

	// GetActivePlan loads the active plan of a task
	// Returns domain.ErrNoActivePlan if the task was never planned
	GetActivePlan(taskID string) (*domain.BatchPlan, error)
}
