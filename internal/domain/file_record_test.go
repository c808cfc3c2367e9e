package domain

import (
	"errors"
	"testing"
	"time"
)

func TestFileRecord_SizeMatches(t *testing.T) {
	tests := []struct {
		name   string
		record FileRecord
		local  uint64
		want   bool
	}{
		{"known size equal", FileRecord{ExpectedSize: 10}, 10, true},
		{"known size differs", FileRecord{ExpectedSize: 10}, 9, false},
		{"unknown size pending", FileRecord{SizeUnknown: true}, 123, false},
		{"unknown size interrupted", FileRecord{SizeUnknown: true, Status: FileStatusFailed}, 0, false},
		{"unknown size completed equal", FileRecord{SizeUnknown: true, Status: FileStatusCompleted, ActualSize: 5}, 5, true},
		{"unknown size completed differs", FileRecord{SizeUnknown: true, Status: FileStatusCompleted, ActualSize: 5}, 6, false},
		{"unknown size completed empty", FileRecord{SizeUnknown: true, Status: FileStatusCompleted}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.SizeMatches(tt.local); got != tt.want {
				t.Errorf("SizeMatches(%d) = %v, want %v", tt.local, got, tt.want)
			}
		})
	}
}

func TestFileRecord_Lifecycle(t *testing.T) {
	now := time.Now()
	r := &FileRecord{Status: FileStatusDownloading, ExpectedSize: 7}

	r.MarkAttemptFailed("timeout")
	if r.Attempts != 1 || r.Status != FileStatusDownloading {
		t.Fatalf("after attempt failure: attempts=%d status=%s", r.Attempts, r.Status)
	}

	r.MarkCompleted(7, now)
	if !r.IsCompleted() || r.ActualSize != 7 || r.CompletedAt == nil || r.LastError != "" {
		t.Fatalf("after completion: %+v", r)
	}

	r.ResetPending()
	if r.Status != FileStatusPending || r.CompletedAt != nil || r.ActualSize != 0 {
		t.Fatalf("after reset: %+v", r)
	}

	r.MarkFailed("403")
	if r.Status != FileStatusFailed || r.Attempts != 2 {
		t.Fatalf("after failure: %+v", r)
	}
}

func TestBatchResult_FailureRate(t *testing.T) {
	r := NewBatchResult(1)
	if r.FailureRate() != 0 {
		t.Errorf("empty FailureRate() = %v, want 0", r.FailureRate())
	}

	for _, p := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"} {
		r.Completed[p] = 1
	}
	r.Failed["j"] = errors.New("auth")
	r.Skipped = []string{"k", "l"}

	if got := r.FailureRate(); got != 0.1 {
		t.Errorf("FailureRate() = %v, want 0.1", got)
	}
	if r.Interrupted() {
		t.Error("Interrupted() = true, want false")
	}
	if r.BytesCompleted() != 9 {
		t.Errorf("BytesCompleted() = %d, want 9", r.BytesCompleted())
	}
}

func TestBatchPlan_Lookups(t *testing.T) {
	p := &BatchPlan{
		Capacity:     25,
		SafetyMargin: 0.9,
		Oversized:    []string{"big.bin", "huge.bin"},
		UnknownSize:  []string{"x.txt"},
		Batches:      []Batch{{Index: 0, Entries: []string{"a"}, TotalBytes: 3}},
	}

	if p.SafeCapacity() != 22 {
		t.Errorf("SafeCapacity() = %d, want 22", p.SafeCapacity())
	}
	if !p.IsOversized("huge.bin") || p.IsOversized("a") {
		t.Error("IsOversized() mismatch")
	}
	if !p.IsUnknownSize("x.txt") || p.IsUnknownSize("a") {
		t.Error("IsUnknownSize() mismatch")
	}
	if _, err := p.Batch(1); !errors.Is(err, ErrBatchOutOfRange) {
		t.Errorf("Batch(1) error = %v", err)
	}
}

func TestRepoRef(t *testing.T) {
	tests := []struct {
		ref     RepoRef
		str     string
		wantErr bool
	}{
		{RepoRef{ID: "org/model", Type: RepoTypeModel, Revision: "main"}, "org/model", false},
		{RepoRef{ID: "org/data", Type: RepoTypeDataset, Revision: "v1"}, "dataset:org/data@v1", false},
		{RepoRef{ID: "nodash", Type: RepoTypeModel}, "nodash", true},
		{RepoRef{ID: "a/b", Type: "space"}, "a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.ref.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
			if err := tt.ref.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
