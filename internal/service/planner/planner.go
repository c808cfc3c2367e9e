// Package planner partitions a manifest into capacity-bounded batches.
//
// Packing is greedy first-fit over entries sorted by descending size, with
// ties broken by ascending path, so the same manifest and capacity always
// produce the same batches. Entries larger than the usable capacity become
// singleton batches flagged as oversized. Entries of unknown size pack as
// zero bytes and are listed for re-verification before execution.
package planner

import (
	"sort"
	"time"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

// Plan partitions manifest into batches of at most floor(capacity*margin) bytes
func Plan(taskID string, manifest []domain.ManifestEntry, capacity uint64, safetyMargin float64) (*domain.BatchPlan, error) {
	if capacity == 0 {
		return nil, domain.NewPlanningError(domain.PlanningInvalidCapacity, "capacity must be positive")
	}
	if !(safetyMargin > 0 && safetyMargin <= 1) {
		return nil, domain.NewPlanningError(domain.PlanningInvalidCapacity, "safety margin %v outside (0,1]", safetyMargin)
	}
	if len(manifest) == 0 {
		return nil, domain.NewPlanningError(domain.PlanningEmptyManifest, "nothing to plan")
	}

	safe := domain.SafeCapacity(capacity, safetyMargin)
	if safe == 0 {
		return nil, domain.NewPlanningError(domain.PlanningInvalidCapacity,
			"capacity %d with margin %v leaves no usable bytes", capacity, safetyMargin)
	}

	entries := dedupe(manifest)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ExpectedSize != entries[j].ExpectedSize {
			return entries[i].ExpectedSize > entries[j].ExpectedSize
		}
		return entries[i].Path < entries[j].Path
	})

	plan := &domain.BatchPlan{
		TaskID:       taskID,
		Capacity:     capacity,
		SafetyMargin: safetyMargin,
		CreatedAt:    time.Now().UTC(),
	}

	// open holds indexes of batches that still accept entries
	var open []int
	for _, e := range entries {
		if e.SizeUnknown {
			plan.UnknownSize = append(plan.UnknownSize, e.Path)
		}

		if e.ExpectedSize > safe {
			plan.Batches = append(plan.Batches, domain.Batch{
				Index:      len(plan.Batches),
				Entries:    []string{e.Path},
				TotalBytes: e.ExpectedSize,
				Oversized:  true,
			})
			plan.Oversized = append(plan.Oversized, e.Path)
			continue
		}

		placed := false
		for _, bi := range open {
			b := &plan.Batches[bi]
			if b.TotalBytes+e.ExpectedSize <= safe {
				b.Entries = append(b.Entries, e.Path)
				b.TotalBytes += e.ExpectedSize
				placed = true
				break
			}
		}
		if !placed {
			open = append(open, len(plan.Batches))
			plan.Batches = append(plan.Batches, domain.Batch{
				Index:      len(plan.Batches),
				Entries:    []string{e.Path},
				TotalBytes: e.ExpectedSize,
			})
		}
	}

	sort.Strings(plan.Oversized)
	sort.Strings(plan.UnknownSize)
	return plan, nil
}

// dedupe keeps the first occurrence of each path
func dedupe(manifest []domain.ManifestEntry) []domain.ManifestEntry {
	seen := make(map[string]struct{}, len(manifest))
	out := make([]domain.ManifestEntry, 0, len(manifest))
	for _, e := range manifest {
		if _, ok := seen[e.Path]; ok {
			continue
		}
		seen[e.Path] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Outstanding builds a manifest from ledger records that are not completed,
// using the sizes the ledger currently holds
func Outstanding(records []*domain.FileRecord) []domain.ManifestEntry {
	var out []domain.ManifestEntry
	for _, r := range records {
		if r.IsCompleted() {
			continue
		}
		out = append(out, domain.ManifestEntry{
			Path:         r.Path,
			ExpectedSize: r.ExpectedSize,
			SizeUnknown:  r.SizeUnknown,
		})
	}
	return out
}
