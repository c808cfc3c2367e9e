package domain

import (
	"errors"
	"fmt"
	"time"
)

// Common domain errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// Task domain errors
	ErrTaskNotFound           = errors.New("task not found")
	ErrNoActivePlan           = errors.New("task has no active plan")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOutOfOrderBatch        = errors.New("batch out of order")
	ErrBatchOutOfRange        = errors.New("batch number out of range")

	// Execution errors
	ErrDiskExhausted  = errors.New("free space below floor")
	ErrBatchFailed    = errors.New("batch failure rate exceeded threshold")
	ErrTaskCancelled  = errors.New("task cancelled")
	ErrRecordNotFound = errors.New("file record not found")
)

// PlanningErrorKind classifies a planning failure.
type PlanningErrorKind string

const (
	PlanningInvalidCapacity PlanningErrorKind = "invalid_capacity"
	PlanningEmptyManifest   PlanningErrorKind = "empty_manifest"
	PlanningReplanRequired  PlanningErrorKind = "replan_required"
)

// PlanningError is fatal for the current invocation; the operator must
// re-invoke with valid parameters or re-plan the task.
type PlanningError struct {
	Kind   PlanningErrorKind
	Detail string
}

// Error returns the error message
func (e *PlanningError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("planning: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("planning: %s", e.Kind)
}

// NewPlanningError creates a new planning error
func NewPlanningError(kind PlanningErrorKind, format string, args ...any) *PlanningError {
	return &PlanningError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// IsPlanningError reports whether err is a PlanningError, optionally of the given kinds.
func IsPlanningError(err error, kinds ...PlanningErrorKind) bool {
	var pe *PlanningError
	if !errors.As(err, &pe) {
		return false
	}
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if pe.Kind == k {
			return true
		}
	}
	return false
}

// TransferErrorKind is the failure class reported by a transfer.
type TransferErrorKind string

const (
	TransferNetwork TransferErrorKind = "network"
	TransferAuth    TransferErrorKind = "auth"
	TransferDisk    TransferErrorKind = "disk"
	TransferUnknown TransferErrorKind = "unknown"
)

// TransferError wraps a single-file transfer failure.
type TransferError struct {
	Kind       TransferErrorKind
	Err        error
	RetryAfter time.Duration
}

// Error returns the error message
func (e *TransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Err.Error())
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error
func (e *TransferError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure may succeed on retry.
// Only network failures (including timeouts, 429 and 5xx) are retried.
func (e *TransferError) Transient() bool {
	return e.Kind == TransferNetwork
}

// NewTransferError creates a new transfer error
func NewTransferError(kind TransferErrorKind, err error) *TransferError {
	return &TransferError{Kind: kind, Err: err}
}

// IsTransient returns true if the error should be retried.
// Errors that are not TransferErrors are never retried.
func IsTransient(err error) bool {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Transient()
	}
	return false
}

// GetRetryAfter returns the server-provided retry hint, if any
func GetRetryAfter(err error) (time.Duration, bool) {
	var te *TransferError
	if errors.As(err, &te) && te.RetryAfter > 0 {
		return te.RetryAfter, true
	}
	return 0, false
}

// LedgerCorruptionError marks persisted state that cannot be trusted.
// It is fatal for the task and is never repaired automatically.
type LedgerCorruptionError struct {
	TaskID string
	Detail string
	Err    error
}

// Error returns the error message
func (e *LedgerCorruptionError) Error() string {
	msg := "ledger corruption"
	if e.TaskID != "" {
		msg += " in task " + e.TaskID
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *LedgerCorruptionError) Unwrap() error {
	return e.Err
}

// NewLedgerCorruption creates a new ledger corruption error
func NewLedgerCorruption(taskID, detail string, err error) *LedgerCorruptionError {
	return &LedgerCorruptionError{TaskID: taskID, Detail: detail, Err: err}
}

// IsLedgerCorruption returns true if err reports corrupted persisted state
func IsLedgerCorruption(err error) bool {
	var le *LedgerCorruptionError
	return errors.As(err, &le)
}
