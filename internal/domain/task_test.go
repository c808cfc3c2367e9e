package domain

import (
	"errors"
	"testing"
	"time"
)

func planWithBatches(n int) *BatchPlan {
	p := &BatchPlan{Capacity: 100, SafetyMargin: 1}
	for i := 0; i < n; i++ {
		p.Batches = append(p.Batches, Batch{Index: i, Entries: []string{"f"}})
	}
	return p
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from TaskStatus
		to   TaskStatus
		want bool
	}{
		{TaskStatusPlanning, TaskStatusRunning, true},
		{TaskStatusRunning, TaskStatusPausedForRotation, true},
		{TaskStatusRunning, TaskStatusCompleted, true},
		{TaskStatusRunning, TaskStatusDiskExhausted, true},
		{TaskStatusPausedForRotation, TaskStatusRunning, true},
		{TaskStatusPausedForRotation, TaskStatusCompleted, false},
		{TaskStatusFailed, TaskStatusRunning, true},
		{TaskStatusDiskExhausted, TaskStatusRunning, true},
		{TaskStatusCompleted, TaskStatusRunning, false},
		{TaskStatusCancelled, TaskStatusRunning, false},
		{TaskStatusPlanning, TaskStatusPausedForRotation, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	for status := range transitions {
		want := !status.IsTerminal()
		if got := CanTransition(status, TaskStatusCancelled); got != want {
			t.Errorf("CanTransition(%s, cancelled) = %v, want %v", status, got, want)
		}
	}
}

func TestTask_TransitionTo(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task := &Task{Status: TaskStatusCompleted}

	err := task.TransitionTo(TaskStatusRunning, now)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("TransitionTo() error = %v, want ErrInvalidStateTransition", err)
	}
	if task.Status != TaskStatusCompleted {
		t.Errorf("status changed on rejected transition: %s", task.Status)
	}

	task.Status = TaskStatusRunning
	if err := task.TransitionTo(TaskStatusPausedForRotation, now); err != nil {
		t.Fatalf("TransitionTo() error = %v", err)
	}
	if !task.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", task.UpdatedAt, now)
	}
}

func TestTask_MarkExecuted(t *testing.T) {
	task := &Task{Plan: planWithBatches(3)}

	for _, index := range []int{1, 0} {
		if err := task.MarkExecuted(index); err != nil {
			t.Fatalf("MarkExecuted(%d) error = %v", index, err)
		}
	}
	if err := task.MarkExecuted(1); !errors.Is(err, ErrOutOfOrderBatch) {
		t.Errorf("MarkExecuted(1) twice error = %v, want ErrOutOfOrderBatch", err)
	}
	if err := task.MarkExecuted(3); !errors.Is(err, ErrBatchOutOfRange) {
		t.Errorf("MarkExecuted(3) error = %v, want ErrBatchOutOfRange", err)
	}
	if task.CurrentBatch != 2 || task.NextBatch() != 2 || !task.HasMoreBatches() {
		t.Errorf("CurrentBatch = %d, NextBatch = %d, HasMoreBatches = %v",
			task.CurrentBatch, task.NextBatch(), task.HasMoreBatches())
	}

	if err := task.MarkExecuted(2); err != nil {
		t.Fatalf("MarkExecuted(2) error = %v", err)
	}
	if task.CurrentBatch != 3 || task.HasMoreBatches() || task.NextBatch() != 3 {
		t.Errorf("CurrentBatch = %d, HasMoreBatches = %v", task.CurrentBatch, task.HasMoreBatches())
	}

	task.ResetProgress()
	if task.CurrentBatch != 0 || task.IsExecuted(0) {
		t.Errorf("after reset: CurrentBatch = %d, Executed = %v", task.CurrentBatch, task.Executed)
	}
}

func TestTask_CheckContinue(t *testing.T) {
	tests := []struct {
		name      string
		executed  []int
		replanned bool
		number    int
		wantErr   error
	}{
		{"next batch", []int{0}, false, 2, nil},
		{"same batch again", []int{0}, false, 1, ErrOutOfOrderBatch},
		{"skipping ahead", []int{0}, false, 3, ErrOutOfOrderBatch},
		{"out of range", []int{0}, false, 5, ErrBatchOutOfRange},
		{"zero", nil, false, 0, ErrBatchOutOfRange},
		{"any batch after replan", nil, true, 3, nil},
		{"ran batch after replan", []int{2}, true, 3, ErrOutOfOrderBatch},
		{"gap left by replan start", []int{2}, false, 1, nil},
		{"past the gap", []int{2}, false, 4, ErrOutOfOrderBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Executed: tt.executed, CurrentBatch: len(tt.executed), Replanned: tt.replanned, Plan: planWithBatches(4)}
			err := task.CheckContinue(tt.number)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("CheckContinue(%d) error = %v", tt.number, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("CheckContinue(%d) error = %v, want %v", tt.number, err, tt.wantErr)
			}
		})
	}

	if err := (&Task{}).CheckContinue(1); !errors.Is(err, ErrNoActivePlan) {
		t.Errorf("CheckContinue without plan error = %v, want ErrNoActivePlan", err)
	}
}
