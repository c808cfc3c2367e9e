package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/service/manager"
	"github.com/vertextoedge/batchfetch/internal/service/planner"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// printer renders command results as tables or JSON
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, jsonOut bool) *printer {
	return &printer{w: w, json: jsonOut}
}

func (p *printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) Linef(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) table(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(p.w, t.String())
}

func bytesStr(n uint64) string {
	return humanize.IBytes(n)
}

func statusStr(s domain.TaskStatus) string {
	switch s {
	case domain.TaskStatusCompleted:
		return okStyle.Render(string(s))
	case domain.TaskStatusFailed, domain.TaskStatusCancelled:
		return errStyle.Render(string(s))
	case domain.TaskStatusPausedForRotation, domain.TaskStatusDiskExhausted:
		return warnStyle.Render(string(s))
	default:
		return string(s)
	}
}

// Plan prints batches with their sizes and the disk timeline
func (p *printer) Plan(repo domain.RepoRef, plan *domain.BatchPlan) error {
	if p.json {
		return p.JSON(plan)
	}

	p.Linef("Plan for %s: %d files, %s in %d batches (capacity %s, margin %.2f, safe %s)",
		repo, plan.FileCount(), bytesStr(plan.TotalBytes()), len(plan.Batches),
		bytesStr(plan.Capacity), plan.SafetyMargin, bytesStr(plan.SafeCapacity()))

	timeline := planner.Timeline(plan)
	rows := make([][]string, 0, len(plan.Batches))
	for i, b := range plan.Batches {
		note := ""
		if b.Oversized {
			note = warnStyle.Render("oversized, needs manual handling")
		}
		rows = append(rows, []string{
			strconv.Itoa(b.Number()),
			strconv.Itoa(len(b.Entries)),
			bytesStr(b.TotalBytes),
			bytesStr(timeline[i].CumulativeBytes),
			fmt.Sprintf("%.0f%%", timeline[i].Progress*100),
			note,
		})
	}
	p.table([]string{"Batch", "Files", "Size", "Cumulative", "Progress", "Note"}, rows)

	if len(plan.UnknownSize) > 0 {
		p.Linef("%d files have no advertised size and are re-checked before their batch runs", len(plan.UnknownSize))
	}
	return nil
}

// Task prints the outcome of a command that ran batches
func (p *printer) Task(task *domain.Task) error {
	if p.json {
		view := *task
		view.Plan = nil
		return p.JSON(view)
	}

	total := 0
	if task.Plan != nil {
		total = len(task.Plan.Batches)
	}
	p.Linef("Task %s (%s): %s, %d of %d batches done", task.ID, task.Repo, statusStr(task.Status), task.CurrentBatch, total)
	if task.LastError != "" {
		p.Linef("  last error: %s", task.LastError)
	}

	switch task.Status {
	case domain.TaskStatusPausedForRotation, domain.TaskStatusDiskExhausted:
		if task.HasMoreBatches() {
			p.Linef("Move finished files off %s, then run: batchfetch batch-continue %s %d",
				task.LocalDir, task.ID, task.NextBatch()+1)
		}
	case domain.TaskStatusFailed:
		p.Linef("Fix the cause, then run: batchfetch resume %s", task.ID)
	}
	return nil
}

// Status prints the per-batch summary of a task
func (p *printer) Status(report *manager.StatusReport) error {
	if p.json {
		return p.JSON(report)
	}

	if err := p.Task(report.Task); err != nil {
		return err
	}
	s := report.Stats
	p.Linef("Files: %d completed, %d pending, %d downloading, %d failed of %d (%s of %s)",
		s.Completed, s.Pending, s.Downloading, s.Failed, s.Total,
		bytesStr(s.CompletedBytes), bytesStr(s.ExpectedBytes))

	rows := make([][]string, 0, len(report.Batches))
	for _, b := range report.Batches {
		rows = append(rows, []string{
			strconv.Itoa(b.Number),
			b.State,
			strconv.Itoa(b.Files),
			bytesStr(b.PlannedSize),
			strconv.Itoa(b.Completed),
			strconv.Itoa(b.Failed),
			strconv.Itoa(b.Pending),
		})
	}
	if len(rows) > 0 {
		p.table([]string{"Batch", "State", "Files", "Size", "Done", "Failed", "Pending"}, rows)
	}

	if len(report.Failures) > 0 {
		paths := make([]string, 0, len(report.Failures))
		for path := range report.Failures {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		p.Linef("Failed files:")
		for _, path := range paths {
			p.Linef("  %s: %s", path, report.Failures[path])
		}
	}
	return nil
}

// Tasks prints a task listing
func (p *printer) Tasks(tasks []*domain.Task) error {
	if p.json {
		if tasks == nil {
			tasks = []*domain.Task{}
		}
		return p.JSON(tasks)
	}
	if len(tasks) == 0 {
		p.Linef("No tasks")
		return nil
	}

	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{
			t.ID,
			t.Repo.String(),
			statusStr(t.Status),
			strconv.Itoa(t.CurrentBatch),
			humanize.Time(t.UpdatedAt),
		})
	}
	p.table([]string{"ID", "Repository", "Status", "Batches done", "Updated"}, rows)
	return nil
}

// Verify prints the ledger vs disk comparison
func (p *printer) Verify(report *manager.VerifyReport) error {
	if p.json {
		return p.JSON(report)
	}

	classes := []manager.FileCheck{manager.CheckOK, manager.CheckMoved, manager.CheckUnrecorded, manager.CheckMissing, manager.CheckCorrupt}
	rows := make([][]string, 0, len(classes))
	for _, c := range classes {
		rows = append(rows, []string{string(c), strconv.Itoa(report.Count(c))})
	}
	p.table([]string{"Check", "Files"}, rows)

	for _, path := range report.Files[manager.CheckCorrupt] {
		p.Linef("  %s %s", errStyle.Render("size mismatch:"), path)
	}
	return nil
}

// Analysis prints manifest statistics
func (p *printer) Analysis(repo domain.RepoRef, stats *planner.ManifestStats) {
	p.Linef("%s: %d files, %s total, %d without size", repo, stats.Files, bytesStr(stats.TotalBytes), stats.UnknownSizes)

	rows := make([][]string, 0, len(stats.Largest))
	for _, e := range stats.Largest {
		size := bytesStr(e.ExpectedSize)
		if e.SizeUnknown {
			size = "?"
		}
		rows = append(rows, []string{e.Path, size})
	}
	p.table([]string{"Largest files", "Size"}, rows)

	rows = rows[:0]
	for _, es := range stats.Extensions {
		rows = append(rows, []string{es.Extension, strconv.Itoa(es.Files), bytesStr(es.Bytes)})
	}
	p.table([]string{"Extension", "Files", "Size"}, rows)
}

// Checks prints check-system results
func (p *printer) Checks(results []manager.CheckResult) error {
	if p.json {
		return p.JSON(results)
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		state := okStyle.Render("ok")
		if !r.OK {
			state = errStyle.Render("FAIL")
		}
		rows = append(rows, []string{r.Name, state, r.Detail})
	}
	p.table([]string{"Check", "Result", "Detail"}, rows)
	return nil
}
