package event

import (
	"time"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	// EventName returns the name of the event
	EventName() string
	// OccurredAt returns when the event occurred
	OccurredAt() time.Time
}

// BaseEvent provides common fields for all events
type BaseEvent struct {
	Timestamp time.Time
}

// OccurredAt returns when the event occurred
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

const (
	NameBatchStarted      = "batch.started"
	NameBatchFinished     = "batch.finished"
	NameFileCompleted     = "file.completed"
	NameFileFailed        = "file.failed"
	NameFileSkipped       = "file.skipped"
	NameTaskStatusChanged = "task.status_changed"
)

// BatchStarted is raised once a batch has been resolved and dispatch begins
type BatchStarted struct {
	BaseEvent
	TaskID      string
	BatchNumber int
	Files       int // files that will be transferred
	Bytes       uint64
	Skipped     int
}

// EventName returns the event name
func (e BatchStarted) EventName() string {
	return NameBatchStarted
}

// NewBatchStarted creates a new BatchStarted event
func NewBatchStarted(taskID string, number, files int, bytes uint64, skipped int) BatchStarted {
	return BatchStarted{
		BaseEvent:   BaseEvent{Timestamp: time.Now()},
		TaskID:      taskID,
		BatchNumber: number,
		Files:       files,
		Bytes:       bytes,
		Skipped:     skipped,
	}
}

// FileCompleted is raised when a transfer or verification completes a file
type FileCompleted struct {
	BaseEvent
	TaskID   string
	Path     string
	Size     uint64
	Verified bool // already on disk, no transfer
	Duration time.Duration
}

// EventName returns the event name
func (e FileCompleted) EventName() string {
	return NameFileCompleted
}

// NewFileCompleted creates a new FileCompleted event
func NewFileCompleted(taskID, path string, size uint64, verified bool, duration time.Duration) FileCompleted {
	return FileCompleted{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		TaskID:    taskID,
		Path:      path,
		Size:      size,
		Verified:  verified,
		Duration:  duration,
	}
}

// FileFailed is raised when a file exhausts retries or fails fatally
type FileFailed struct {
	BaseEvent
	TaskID   string
	Path     string
	Error    string
	Attempts uint32
	Fatal    bool
}

// EventName returns the event name
func (e FileFailed) EventName() string {
	return NameFileFailed
}

// NewFileFailed creates a new FileFailed event
func NewFileFailed(taskID, path, errMsg string, attempts uint32, fatal bool) FileFailed {
	return FileFailed{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		TaskID:    taskID,
		Path:      path,
		Error:     errMsg,
		Attempts:  attempts,
		Fatal:     fatal,
	}
}

// FileSkipped is raised when the ledger resolves a file as already done
type FileSkipped struct {
	BaseEvent
	TaskID string
	Path   string
	Reason string
}

// EventName returns the event name
func (e FileSkipped) EventName() string {
	return NameFileSkipped
}

// NewFileSkipped creates a new FileSkipped event
func NewFileSkipped(taskID, path, reason string) FileSkipped {
	return FileSkipped{
		BaseEvent: BaseEvent{Timestamp: time.Now()},
		TaskID:    taskID,
		Path:      path,
		Reason:    reason,
	}
}

// BatchFinished is raised after every dispatched transfer has been reaped
type BatchFinished struct {
	BaseEvent
	TaskID        string
	BatchNumber   int
	Completed     int
	Failed        int
	Skipped       int
	NotDispatched int
	Bytes         uint64
	DiskExhausted bool
	Cancelled     bool
	Duration      time.Duration
}

// EventName returns the event name
func (e BatchFinished) EventName() string {
	return NameBatchFinished
}

// TaskStatusChanged is raised on every persisted task transition
type TaskStatusChanged struct {
	BaseEvent
	TaskID       string
	From         string
	To           string
	CurrentBatch int
	Reason       string
}

// EventName returns the event name
func (e TaskStatusChanged) EventName() string {
	return NameTaskStatusChanged
}

// NewTaskStatusChanged creates a new TaskStatusChanged event
func NewTaskStatusChanged(taskID, from, to string, currentBatch int, reason string) TaskStatusChanged {
	return TaskStatusChanged{
		BaseEvent:    BaseEvent{Timestamp: time.Now()},
		TaskID:       taskID,
		From:         from,
		To:           to,
		CurrentBatch: currentBatch,
		Reason:       reason,
	}
}
