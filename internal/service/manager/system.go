package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/vertextoedge/batchfetch/internal/port"
)

// CheckResult is the outcome of one system check
type CheckResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// CheckSystem runs the pre-download checks concurrently: free space above
// the floor, a writable download directory, hub reachability and database
// health. hub may be nil.
func (m *Manager) CheckSystem(ctx context.Context, dir string, hub port.Pinger) ([]CheckResult, error) {
	if dir == "" {
		dir = m.cfg.DownloadRoot
	}

	var (
		mu      sync.Mutex
		results []CheckResult
	)
	record := func(name string, err error, detail string) {
		r := CheckResult{Name: name, OK: err == nil, Detail: detail}
		if err != nil {
			r.Detail = err.Error()
		}
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		free, err := m.space.FreeBytes(dir)
		if err == nil && free < m.cfg.MinFreeBytes {
			err = fmt.Errorf("%s free, floor is %s", humanize.IBytes(free), humanize.IBytes(m.cfg.MinFreeBytes))
		}
		record("free_space", err, humanize.IBytes(free)+" free")
		return nil
	})
	g.Go(func() error {
		record("download_dir", m.fs.CheckWritable(dir), dir+" is writable")
		return nil
	})
	g.Go(func() error {
		record("database", m.store.Ping(), "reachable")
		return nil
	})
	if hub != nil {
		g.Go(func() error {
			record("hub", hub.Ping(gctx), "reachable")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	order := map[string]int{"free_space": 0, "download_dir": 1, "database": 2, "hub": 3}
	sorted := make([]CheckResult, len(results))
	for _, r := range results {
		sorted[order[r.Name]] = r
	}
	return sorted, nil
}
