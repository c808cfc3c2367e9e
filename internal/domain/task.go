package domain

import (
	"fmt"
	"slices"
	"time"
)

// TaskStatus is the state of a batch download task.
type TaskStatus string

const (
	TaskStatusPlanning          TaskStatus = "planning"
	TaskStatusRunning           TaskStatus = "running"
	TaskStatusPausedForRotation TaskStatus = "paused_for_rotation"
	TaskStatusDiskExhausted     TaskStatus = "disk_exhausted"
	TaskStatusCompleted         TaskStatus = "completed"
	TaskStatusFailed            TaskStatus = "failed"
	TaskStatusCancelled         TaskStatus = "cancelled"
)

// IsTerminal returns true for states no command can leave
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// Valid returns true for known statuses
func (s TaskStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPlanning: {TaskStatusRunning, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusRunning: {
		TaskStatusRunning, TaskStatusPausedForRotation, TaskStatusDiskExhausted,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled,
	},
	TaskStatusPausedForRotation: {TaskStatusRunning, TaskStatusCancelled},
	TaskStatusDiskExhausted:     {TaskStatusRunning, TaskStatusPausedForRotation, TaskStatusCancelled},
	TaskStatusFailed:            {TaskStatusRunning, TaskStatusPausedForRotation, TaskStatusCancelled},
	TaskStatusCompleted:         {},
	TaskStatusCancelled:         {},
}

// CanTransition reports whether the state machine allows from -> to
func CanTransition(from, to TaskStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Task is a batch download of one repository.
type Task struct {
	ID       string     `json:"id"`
	Repo     RepoRef    `json:"repo"`
	LocalDir string     `json:"local_dir"`
	Status   TaskStatus `json:"status"`

	// CurrentBatch counts the batches of the active plan that have run and
	// equals len(Plan.Batches) once every batch has run.
	CurrentBatch int `json:"current_batch"`
	// Executed holds the sorted zero-based indexes of those batches.
	Executed    []int `json:"executed_batches,omitempty"`
	PlanVersion int   `json:"plan_version"`
	AutoProceed bool  `json:"auto_proceed"`
	// Replanned is set when a new plan replaced the old one and cleared by
	// the next continue.
	Replanned bool   `json:"replanned"`
	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Plan *BatchPlan `json:"plan,omitempty"`
}

// TransitionTo moves the task to a new status
func (t *Task) TransitionTo(to TaskStatus, at time.Time) error {
	if !CanTransition(t.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, t.Status, to)
	}
	t.Status = to
	t.UpdatedAt = at
	return nil
}

// IsExecuted reports whether the batch with the given index has run
func (t *Task) IsExecuted(index int) bool {
	_, found := slices.BinarySearch(t.Executed, index)
	return found
}

// NextBatch returns the lowest index that has not run, or len(Plan.Batches)
// when every batch has run. Without a re-plan batches run in index order,
// so this is also CurrentBatch.
func (t *Task) NextBatch() int {
	if t.Plan == nil {
		return 0
	}
	for i := range t.Plan.Batches {
		if !t.IsExecuted(i) {
			return i
		}
	}
	return len(t.Plan.Batches)
}

// MarkExecuted records that a batch ran and moves the progress marker forward
func (t *Task) MarkExecuted(index int) error {
	if t.Plan != nil && (index < 0 || index >= len(t.Plan.Batches)) {
		return fmt.Errorf("%w: index %d of %d batches", ErrBatchOutOfRange, index, len(t.Plan.Batches))
	}
	i, found := slices.BinarySearch(t.Executed, index)
	if found {
		return fmt.Errorf("%w: batch %d already ran", ErrOutOfOrderBatch, index+1)
	}
	t.Executed = slices.Insert(t.Executed, i, index)
	t.CurrentBatch = len(t.Executed)
	return nil
}

// ResetProgress clears the progress marker for a new plan version
func (t *Task) ResetProgress() {
	t.Executed = nil
	t.CurrentBatch = 0
}

// RemainingBatches counts batches not yet executed
func (t *Task) RemainingBatches() int {
	if t.Plan == nil {
		return 0
	}
	return len(t.Plan.Batches) - t.CurrentBatch
}

// HasMoreBatches returns true while some batch has not run
func (t *Task) HasMoreBatches() bool {
	return t.RemainingBatches() > 0
}

// CheckContinue validates a continue request for a one-based batch number.
// A batch never runs twice under one plan version. The next batch is the
// lowest one that has not run, except right after a re-plan, when the
// operator may start with any batch.
func (t *Task) CheckContinue(number int) error {
	if t.Plan == nil {
		return ErrNoActivePlan
	}
	if number < 1 || number > len(t.Plan.Batches) {
		return fmt.Errorf("%w: batch %d of %d", ErrBatchOutOfRange, number, len(t.Plan.Batches))
	}
	if t.IsExecuted(number - 1) {
		return fmt.Errorf("%w: batch %d already ran", ErrOutOfOrderBatch, number)
	}
	if t.Replanned {
		return nil
	}
	if next := t.NextBatch() + 1; number != next {
		return fmt.Errorf("%w: next batch is %d, got %d", ErrOutOfOrderBatch, next, number)
	}
	return nil
}
