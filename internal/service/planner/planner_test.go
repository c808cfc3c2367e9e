package planner

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

const gb = uint64(1) << 30

func TestPlan_EqualSizedFiles(t *testing.T) {
	manifest := []domain.ManifestEntry{
		{Path: "f1", ExpectedSize: 10 * gb},
		{Path: "f2", ExpectedSize: 10 * gb},
		{Path: "f3", ExpectedSize: 10 * gb},
		{Path: "f4", ExpectedSize: 10 * gb},
		{Path: "f5", ExpectedSize: 10 * gb},
	}

	plan, err := Plan("t", manifest, 25*gb, 0.9)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	want := [][]string{{"f1", "f2"}, {"f3", "f4"}, {"f5"}}
	if len(plan.Batches) != len(want) {
		t.Fatalf("got %d batches, want %d", len(plan.Batches), len(want))
	}
	for i, b := range plan.Batches {
		if !reflect.DeepEqual(b.Entries, want[i]) {
			t.Errorf("batch %d entries = %v, want %v", i, b.Entries, want[i])
		}
		if b.Index != i || b.Oversized {
			t.Errorf("batch %d index=%d oversized=%v", i, b.Index, b.Oversized)
		}
	}
	if plan.Batches[0].TotalBytes != 20*gb || plan.Batches[2].TotalBytes != 10*gb {
		t.Errorf("totals = %d, %d", plan.Batches[0].TotalBytes, plan.Batches[2].TotalBytes)
	}
	if len(plan.Oversized) != 0 {
		t.Errorf("oversized = %v, want none", plan.Oversized)
	}
}

func TestPlan_OversizedFile(t *testing.T) {
	manifest := []domain.ManifestEntry{
		{Path: "small.json", ExpectedSize: 1 * gb},
		{Path: "huge.bin", ExpectedSize: 50 * gb},
	}

	plan, err := Plan("t", manifest, 25*gb, 0.9)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if !plan.IsOversized("huge.bin") || len(plan.Oversized) != 1 {
		t.Fatalf("oversized = %v, want [huge.bin]", plan.Oversized)
	}
	var found bool
	for _, b := range plan.Batches {
		if len(b.Entries) == 1 && b.Entries[0] == "huge.bin" {
			found = true
			if !b.Oversized || b.TotalBytes != 50*gb {
				t.Errorf("oversized batch = %+v", b)
			}
		}
		for _, p := range b.Entries {
			if p == "huge.bin" && len(b.Entries) != 1 {
				t.Errorf("oversized file shares a batch: %v", b.Entries)
			}
		}
	}
	if !found {
		t.Error("oversized file has no singleton batch")
	}
}

func TestPlan_FirstFitAndTieBreak(t *testing.T) {
	manifest := []domain.ManifestEntry{
		{Path: "b", ExpectedSize: 4},
		{Path: "a", ExpectedSize: 4},
		{Path: "c", ExpectedSize: 7},
		{Path: "d", ExpectedSize: 3},
		{Path: "e", ExpectedSize: 2},
	}

	plan, err := Plan("t", manifest, 10, 1)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	// c(7) opens #0; a(4) opens #1; b(4) -> #1; d(3) -> #0; e(2) -> #1
	want := [][]string{{"c", "d"}, {"a", "b", "e"}}
	got := make([][]string, len(plan.Batches))
	for i, b := range plan.Batches {
		got[i] = b.Entries
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("batches = %v, want %v", got, want)
	}
}

func TestPlan_UnknownSizes(t *testing.T) {
	manifest := []domain.ManifestEntry{
		{Path: "known", ExpectedSize: 8},
		{Path: "mystery", SizeUnknown: true},
		{Path: "also-unknown", SizeUnknown: true},
	}

	plan, err := Plan("t", manifest, 10, 1)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	if !reflect.DeepEqual(plan.UnknownSize, []string{"also-unknown", "mystery"}) {
		t.Errorf("UnknownSize = %v", plan.UnknownSize)
	}
	if len(plan.Batches) != 1 || plan.Batches[0].TotalBytes != 8 {
		t.Errorf("batches = %+v, want unknowns packed as zero", plan.Batches)
	}
}

func TestPlan_Errors(t *testing.T) {
	manifest := []domain.ManifestEntry{{Path: "a", ExpectedSize: 1}}

	tests := []struct {
		name     string
		manifest []domain.ManifestEntry
		capacity uint64
		margin   float64
		kind     domain.PlanningErrorKind
	}{
		{"zero capacity", manifest, 0, 0.9, domain.PlanningInvalidCapacity},
		{"zero margin", manifest, 10, 0, domain.PlanningInvalidCapacity},
		{"negative margin", manifest, 10, -0.5, domain.PlanningInvalidCapacity},
		{"margin above one", manifest, 10, 1.1, domain.PlanningInvalidCapacity},
		{"no usable bytes", manifest, 1, 0.5, domain.PlanningInvalidCapacity},
		{"empty manifest", nil, 10, 0.9, domain.PlanningEmptyManifest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan("t", tt.manifest, tt.capacity, tt.margin)
			if !domain.IsPlanningError(err, tt.kind) {
				t.Errorf("Plan() error = %v, want %s", err, tt.kind)
			}
		})
	}
}

func TestPlan_DuplicatePathsKeepFirst(t *testing.T) {
	plan, err := Plan("t", []domain.ManifestEntry{
		{Path: "a", ExpectedSize: 3},
		{Path: "a", ExpectedSize: 9},
	}, 10, 1)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.FileCount() != 1 || plan.TotalBytes() != 3 {
		t.Errorf("plan = %+v", plan.Batches)
	}
}

func randomManifest(r *rand.Rand, n int) []domain.ManifestEntry {
	m := make([]domain.ManifestEntry, n)
	for i := range m {
		m[i] = domain.ManifestEntry{Path: fmt.Sprintf("file-%04d", i)}
		switch r.Intn(10) {
		case 0:
			m[i].SizeUnknown = true
		case 1:
			m[i].ExpectedSize = uint64(r.Int63n(int64(60 * gb)))
		default:
			m[i].ExpectedSize = uint64(r.Int63n(int64(8 * gb)))
		}
	}
	return m
}

func TestPlan_Invariants(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		manifest := randomManifest(r, 1+r.Intn(200))
		capacity := uint64(1+r.Intn(40)) * gb
		margin := 0.5 + r.Float64()*0.5

		plan, err := Plan("t", manifest, capacity, margin)
		if err != nil {
			t.Fatalf("round %d: Plan() error = %v", round, err)
		}
		safe := plan.SafeCapacity()

		seen := make(map[string]int)
		for i, b := range plan.Batches {
			if b.Index != i {
				t.Fatalf("round %d: batch %d has index %d", round, i, b.Index)
			}
			for _, p := range b.Entries {
				seen[p]++
			}
			if b.TotalBytes > safe && !(len(b.Entries) == 1 && plan.IsOversized(b.Entries[0])) {
				t.Fatalf("round %d: batch %d holds %d bytes over safe capacity %d", round, i, b.TotalBytes, safe)
			}
		}
		for _, e := range manifest {
			if seen[e.Path] != 1 {
				t.Fatalf("round %d: %s appears in %d batches", round, e.Path, seen[e.Path])
			}
		}

		again, err := Plan("t", manifest, capacity, margin)
		if err != nil {
			t.Fatalf("round %d: second Plan() error = %v", round, err)
		}
		if !reflect.DeepEqual(again.Batches, plan.Batches) || !reflect.DeepEqual(again.Oversized, plan.Oversized) {
			t.Fatalf("round %d: planning is not idempotent", round)
		}
	}
}

func TestOutstanding(t *testing.T) {
	records := []*domain.FileRecord{
		{Path: "done", ExpectedSize: 5, Status: domain.FileStatusCompleted},
		{Path: "todo", ExpectedSize: 6, Status: domain.FileStatusPending},
		{Path: "broken", ExpectedSize: 7, Status: domain.FileStatusFailed},
		{Path: "unsized", SizeUnknown: true, Status: domain.FileStatusDownloading},
	}

	got := Outstanding(records)
	want := []domain.ManifestEntry{
		{Path: "todo", ExpectedSize: 6},
		{Path: "broken", ExpectedSize: 7},
		{Path: "unsized", SizeUnknown: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Outstanding() = %+v, want %+v", got, want)
	}
}
