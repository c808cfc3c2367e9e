package filesystem

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/vertextoedge/batchfetch/internal/port"
)

// GetDiskUsage returns disk usage for the volume holding path
func (m *Manager) GetDiskUsage(path string) (*port.DiskUsage, error) {
	usage, err := disk.Usage(existingAncestor(path))
	if err != nil {
		return nil, fmt.Errorf("failed to get disk stats: %w", err)
	}

	return &port.DiskUsage{
		Total:   usage.Total,
		Used:    usage.Used,
		Free:    usage.Free,
		UsedPct: usage.UsedPercent,
	}, nil
}

// FreeBytes returns the bytes available on the volume holding path
func (m *Manager) FreeBytes(path string) (uint64, error) {
	usage, err := m.GetDiskUsage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// existingAncestor walks up to the nearest directory that exists, so the
// download root can be probed before it is created
func existingAncestor(path string) string {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(p)
		if parent == p {
			return p
		}
		p = parent
	}
}
