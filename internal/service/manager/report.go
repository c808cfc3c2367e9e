package manager

import (
	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/port"
	"github.com/vertextoedge/batchfetch/internal/service/planner"
)

// Batch states shown in status reports
const (
	BatchDone    = "done"
	BatchCurrent = "current"
	BatchPending = "pending"
)

// BatchSummary is the ledger view of one planned batch
type BatchSummary struct {
	Number      int    `json:"number"`
	State       string `json:"state"`
	Files       int    `json:"files"`
	PlannedSize uint64 `json:"planned_bytes"`
	Oversized   bool   `json:"oversized"`
	Completed   int    `json:"completed"`
	Failed      int    `json:"failed"`
	Pending     int    `json:"pending"`
}

// StatusReport is a task with its per-batch progress
type StatusReport struct {
	Task     *domain.Task            `json:"task"`
	Stats    *domain.LedgerStats     `json:"stats"`
	Batches  []BatchSummary          `json:"batches"`
	Timeline []planner.TimelinePoint `json:"timeline,omitempty"`
	Failures map[string]string       `json:"failures,omitempty"`
}

// Status loads a task and summarises its ledger batch by batch
func (m *Manager) Status(taskID string) (*StatusReport, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	stats, err := m.store.GetLedgerStats(taskID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{Task: task, Stats: stats}
	if task.Plan == nil {
		return report, nil
	}

	records, err := m.store.ListRecords(taskID)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*domain.FileRecord, len(records))
	for _, r := range records {
		byPath[r.Path] = r
		if r.Status == domain.FileStatusFailed {
			if report.Failures == nil {
				report.Failures = make(map[string]string)
			}
			report.Failures[r.Path] = r.LastError
		}
	}

	next := task.NextBatch()
	for _, b := range task.Plan.Batches {
		s := BatchSummary{
			Number:      b.Number(),
			Files:       len(b.Entries),
			PlannedSize: b.TotalBytes,
			Oversized:   b.Oversized,
		}
		switch {
		case task.IsExecuted(b.Index):
			s.State = BatchDone
		case b.Index == next:
			s.State = BatchCurrent
		default:
			s.State = BatchPending
		}
		for _, path := range b.Entries {
			r, ok := byPath[path]
			if !ok {
				return nil, domain.NewLedgerCorruption(taskID, "planned file "+path+" has no ledger record", nil)
			}
			switch r.Status {
			case domain.FileStatusCompleted:
				s.Completed++
			case domain.FileStatusFailed:
				s.Failed++
			default:
				s.Pending++
			}
		}
		report.Batches = append(report.Batches, s)
	}
	report.Timeline = planner.Timeline(task.Plan)
	return report, nil
}

// FileCheck classifies one ledger record against the disk
type FileCheck string

// CheckUnrecorded is a file on disk with the expected size whose record is
// not completed yet; the next run verifies it.
const (
	CheckOK         FileCheck = "ok"
	CheckMoved      FileCheck = "moved"
	CheckCorrupt    FileCheck = "size_mismatch"
	CheckUnrecorded FileCheck = "unrecorded"
	CheckMissing    FileCheck = "missing"
)

// VerifyReport groups ledger records by their on-disk state
type VerifyReport struct {
	TaskID string                 `json:"task_id"`
	Files  map[FileCheck][]string `json:"files"`
}

// Count returns the number of files in a class
func (r *VerifyReport) Count(c FileCheck) int {
	return len(r.Files[c])
}

// Verify compares every ledger record with the local disk without changing
// either
func (m *Manager) Verify(taskID string) (*VerifyReport, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	records, err := m.store.ListRecords(taskID)
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{TaskID: taskID, Files: make(map[FileCheck][]string)}
	for _, r := range records {
		local, err := m.localFile(task, r.Path)
		if err != nil {
			return nil, err
		}

		var c FileCheck
		switch {
		case r.IsCompleted() && !local.Exists:
			c = CheckMoved
		case r.IsCompleted() && r.SizeMatches(local.Size):
			c = CheckOK
		case r.IsCompleted():
			c = CheckCorrupt
		case local.Exists && r.SizeMatches(local.Size):
			c = CheckUnrecorded
		default:
			c = CheckMissing
		}
		report.Files[c] = append(report.Files[c], r.Path)
	}
	return report, nil
}

func (m *Manager) localFile(task *domain.Task, path string) (port.LocalFile, error) {
	dest, err := m.fs.LocalPath(task.LocalDir, path)
	if err != nil {
		return port.LocalFile{}, err
	}
	return m.fs.Stat(dest)
}
