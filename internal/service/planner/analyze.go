package planner

import (
	"path"
	"sort"
	"strings"

	"github.com/vertextoedge/batchfetch/internal/domain"
)

// ExtensionStats aggregates files sharing an extension
type ExtensionStats struct {
	Extension string `json:"extension"`
	Files     int    `json:"files"`
	Bytes     uint64 `json:"bytes"`
}

// ManifestStats describes a manifest before planning
type ManifestStats struct {
	Files        int                   `json:"files"`
	TotalBytes   uint64                `json:"total_bytes"`
	UnknownSizes int                   `json:"unknown_sizes"`
	Largest      []domain.ManifestEntry `json:"largest"`
	Extensions   []ExtensionStats      `json:"extensions"`
}

// Summarize computes manifest statistics, keeping the top largest files
func Summarize(manifest []domain.ManifestEntry, top int) *ManifestStats {
	stats := &ManifestStats{}
	byExt := make(map[string]*ExtensionStats)

	for _, e := range manifest {
		stats.Files++
		stats.TotalBytes += e.ExpectedSize
		if e.SizeUnknown {
			stats.UnknownSizes++
		}

		ext := strings.ToLower(path.Ext(e.Path))
		if ext == "" {
			ext = "(none)"
		}
		es, ok := byExt[ext]
		if !ok {
			es = &ExtensionStats{Extension: ext}
			byExt[ext] = es
		}
		es.Files++
		es.Bytes += e.ExpectedSize
	}

	largest := append([]domain.ManifestEntry(nil), manifest...)
	sort.SliceStable(largest, func(i, j int) bool {
		if largest[i].ExpectedSize != largest[j].ExpectedSize {
			return largest[i].ExpectedSize > largest[j].ExpectedSize
		}
		return largest[i].Path < largest[j].Path
	})
	if top >= 0 && len(largest) > top {
		largest = largest[:top]
	}
	stats.Largest = largest

	for _, es := range byExt {
		stats.Extensions = append(stats.Extensions, *es)
	}
	sort.Slice(stats.Extensions, func(i, j int) bool {
		if stats.Extensions[i].Bytes != stats.Extensions[j].Bytes {
			return stats.Extensions[i].Bytes > stats.Extensions[j].Bytes
		}
		return stats.Extensions[i].Extension < stats.Extensions[j].Extension
	})

	return stats
}

// TimelinePoint is the disk picture while one batch is on local storage
type TimelinePoint struct {
	Batch int `json:"batch"`
	// BatchBytes must be free locally while the batch downloads.
	BatchBytes uint64 `json:"batch_bytes"`
	// CumulativeBytes have been downloaded once the batch completes,
	// across all rotations.
	CumulativeBytes uint64  `json:"cumulative_bytes"`
	Progress        float64 `json:"progress"`
	Oversized       bool    `json:"oversized"`
}

// Timeline projects disk usage batch by batch, assuming each batch is
// rotated off local storage before the next starts
func Timeline(plan *domain.BatchPlan) []TimelinePoint {
	total := plan.TotalBytes()
	points := make([]TimelinePoint, 0, len(plan.Batches))

	var cumulative uint64
	for _, b := range plan.Batches {
		cumulative += b.TotalBytes
		p := TimelinePoint{
			Batch:           b.Number(),
			BatchBytes:      b.TotalBytes,
			CumulativeBytes: cumulative,
			Oversized:       b.Oversized,
		}
		if total > 0 {
			p.Progress = float64(cumulative) / float64(total)
		} else {
			p.Progress = float64(b.Number()) / float64(len(plan.Batches))
		}
		points = append(points, p)
	}
	return points
}
