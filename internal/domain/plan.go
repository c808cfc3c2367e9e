package domain

import (
	"math"
	"sort"
	"time"
)

// Batch is a capacity-bounded group of files executed together.
// Index is zero-based; operators see Index+1.
type Batch struct {
	Index      int      `json:"index"`
	Entries    []string `json:"entries"`
	TotalBytes uint64   `json:"total_bytes"`
	Oversized  bool     `json:"oversized"`
}

// Number returns the operator-facing, one-based batch number
func (b Batch) Number() int {
	return b.Index + 1
}

// BatchPlan is the persisted partitioning of a task's manifest.
type BatchPlan struct {
	TaskID       string    `json:"task_id"`
	Version      int       `json:"version"`
	Capacity     uint64    `json:"capacity"`
	SafetyMargin float64   `json:"safety_margin"`
	Batches      []Batch   `json:"batches"`
	Oversized    []string  `json:"oversized,omitempty"`
	UnknownSize  []string  `json:"unknown_size,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SafeCapacity returns floor(capacity * margin)
func SafeCapacity(capacity uint64, margin float64) uint64 {
	return uint64(math.Floor(float64(capacity) * margin))
}

// SafeCapacity is the usable bytes per batch
func (p *BatchPlan) SafeCapacity() uint64 {
	return SafeCapacity(p.Capacity, p.SafetyMargin)
}

// TotalBytes sums every batch
func (p *BatchPlan) TotalBytes() uint64 {
	var total uint64
	for _, b := range p.Batches {
		total += b.TotalBytes
	}
	return total
}

// FileCount returns the number of planned paths
func (p *BatchPlan) FileCount() int {
	n := 0
	for _, b := range p.Batches {
		n += len(b.Entries)
	}
	return n
}

// IsOversized reports whether path was planned as an oversized singleton
func (p *BatchPlan) IsOversized(path string) bool {
	i := sort.SearchStrings(p.Oversized, path)
	return i < len(p.Oversized) && p.Oversized[i] == path
}

// IsUnknownSize reports whether path was packed with a placeholder size
func (p *BatchPlan) IsUnknownSize(path string) bool {
	i := sort.SearchStrings(p.UnknownSize, path)
	return i < len(p.UnknownSize) && p.UnknownSize[i] == path
}

// Batch returns the batch at a zero-based index
func (p *BatchPlan) Batch(index int) (Batch, error) {
	if index < 0 || index >= len(p.Batches) {
		return Batch{}, ErrBatchOutOfRange
	}
	return p.Batches[index], nil
}

// BatchResult is the outcome of executing one batch.
type BatchResult struct {
	BatchIndex int

	// Completed holds files downloaded or verified during this run.
	Completed map[string]uint64
	// Skipped holds files already complete on disk.
	Skipped []string
	// Moved holds completed files absent from disk and presumed rotated.
	Moved []string
	// Failed maps files that exhausted retries or failed fatally.
	Failed map[string]error
	// NotDispatched holds files never started because dispatch stopped.
	NotDispatched []string
	// Unverified holds files whose remote size could not be learned; the
	// batch was not started and DiskExhausted is set.
	Unverified []string

	DiskExhausted bool
	Cancelled     bool
	Duration      time.Duration
}

// NewBatchResult creates an empty result for a batch
func NewBatchResult(index int) *BatchResult {
	return &BatchResult{
		BatchIndex: index,
		Completed:  make(map[string]uint64),
		Failed:     make(map[string]error),
	}
}

// Attempted counts files that were not skipped
func (r *BatchResult) Attempted() int {
	return len(r.Completed) + len(r.Failed) + len(r.NotDispatched)
}

// FailureRate is failed / non-skipped files, zero when nothing was attempted
func (r *BatchResult) FailureRate() float64 {
	n := r.Attempted()
	if n == 0 {
		return 0
	}
	return float64(len(r.Failed)) / float64(n)
}

// Interrupted reports whether dispatch stopped before every file ran
func (r *BatchResult) Interrupted() bool {
	return r.DiskExhausted || r.Cancelled || len(r.NotDispatched) > 0
}

// BytesCompleted sums the bytes of completed files
func (r *BatchResult) BytesCompleted() uint64 {
	var total uint64
	for _, n := range r.Completed {
		total += n
	}
	return total
}
