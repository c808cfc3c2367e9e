package domain

import "time"

// FileStatus is the ledger state of a single file.
type FileStatus string

const (
	FileStatusPending     FileStatus = "pending"
	FileStatusDownloading FileStatus = "downloading"
	FileStatusCompleted   FileStatus = "completed"
	FileStatusFailed      FileStatus = "failed"
)

// FileRecord is one ledger row, identified by (TaskID, Path).
type FileRecord struct {
	TaskID       string
	Path         string
	ExpectedSize uint64
	SizeUnknown  bool
	ActualSize   uint64
	Status       FileStatus
	Attempts     uint32
	LastError    string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// IsCompleted returns true if the ledger considers the file done
func (r *FileRecord) IsCompleted() bool {
	return r.Status == FileStatusCompleted
}

// SizeMatches compares a local size with what the ledger expects.
// A completed record falls back to the size recorded at completion when the
// remote size was never known. An unfinished file of unknown size never
// matches, since nothing proves the local copy is whole.
func (r *FileRecord) SizeMatches(localSize uint64) bool {
	if !r.SizeUnknown {
		return localSize == r.ExpectedSize
	}
	if r.IsCompleted() {
		return localSize == r.ActualSize
	}
	return false
}

// MarkCompleted records a successful transfer or verification
func (r *FileRecord) MarkCompleted(actualSize uint64, at time.Time) {
	r.Status = FileStatusCompleted
	r.ActualSize = actualSize
	r.CompletedAt = &at
	r.LastError = ""
}

// MarkAttemptFailed counts a failed attempt while keeping the record in flight
func (r *FileRecord) MarkAttemptFailed(err string) {
	r.Attempts++
	r.LastError = err
}

// MarkFailed counts the final attempt and parks the record as failed
func (r *FileRecord) MarkFailed(err string) {
	r.Attempts++
	r.LastError = err
	r.Status = FileStatusFailed
}

// ResetPending clears completion so the file is fetched again
func (r *FileRecord) ResetPending() {
	r.Status = FileStatusPending
	r.ActualSize = 0
	r.CompletedAt = nil
}

// AuditEntry records one ledger resolution or mutation.
type AuditEntry struct {
	TaskID    string
	Path      string
	From      FileStatus
	To        FileStatus
	Reason    string
	CreatedAt time.Time
}

// LedgerStats summarises the ledger of one task
type LedgerStats struct {
	Total          int    `json:"total"`
	Pending        int    `json:"pending"`
	Downloading    int    `json:"downloading"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
	ExpectedBytes  uint64 `json:"expected_bytes"`
	CompletedBytes uint64 `json:"completed_bytes"`
}

// Add counts a record into the stats
func (s *LedgerStats) Add(r *FileRecord) {
	s.Total++
	s.ExpectedBytes += r.ExpectedSize
	switch r.Status {
	case FileStatusPending:
		s.Pending++
	case FileStatusDownloading:
		s.Downloading++
	case FileStatusCompleted:
		s.Completed++
		s.CompletedBytes += r.ActualSize
	case FileStatusFailed:
		s.Failed++
	}
}
