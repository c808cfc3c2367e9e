package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vertextoedge/batchfetch/internal/adapter/filesystem"
	"github.com/vertextoedge/batchfetch/internal/adapter/sqlite"
	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/domain/event"
	"github.com/vertextoedge/batchfetch/internal/port"
	"github.com/vertextoedge/batchfetch/internal/service/planner"
	"github.com/vertextoedge/batchfetch/internal/service/tracker"
)

// mockTransfer writes zero-filled files of a configured size
type mockTransfer struct {
	mu       sync.Mutex
	fs       port.FileSystem
	sizes    map[string]uint64
	failures map[string][]error // returned in order before succeeding
	calls    map[string]int
	onFetch  func(path string)
}

func newMockTransfer(fs port.FileSystem, sizes map[string]uint64) *mockTransfer {
	return &mockTransfer{
		fs:       fs,
		sizes:    sizes,
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (m *mockTransfer) Fetch(ctx context.Context, repo domain.RepoRef, path, dest string) (port.FetchResult, error) {
	m.mu.Lock()
	m.calls[path]++
	n := m.calls[path]
	errs := m.failures[path]
	onFetch := m.onFetch
	m.mu.Unlock()

	if onFetch != nil {
		onFetch(path)
	}
	if n <= len(errs) {
		return port.FetchResult{}, errs[n-1]
	}
	written, err := m.fs.WriteFile(dest, bytes.NewReader(make([]byte, m.sizes[path])), false)
	if err != nil {
		return port.FetchResult{}, domain.NewTransferError(domain.TransferDisk, err)
	}
	return port.FetchResult{Bytes: written}, nil
}

func (m *mockTransfer) callCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

func (m *mockTransfer) totalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// mockSpace returns free-space readings in order, repeating the last one
type mockSpace struct {
	mu       sync.Mutex
	readings []uint64
	err      error
}

func (m *mockSpace) FreeBytes(path string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	v := m.readings[0]
	if len(m.readings) > 1 {
		m.readings = m.readings[1:]
	}
	return v, nil
}

// mockProber reports remote sizes for unknown entries
type mockProber struct {
	sizes map[string]uint64
	err   error
}

func (m *mockProber) RemoteSize(ctx context.Context, repo domain.RepoRef, path string) (uint64, error) {
	if m.err != nil {
		return 0, m.err
	}
	size, ok := m.sizes[path]
	if !ok {
		return 0, port.ErrNotFound
	}
	return size, nil
}

type fixture struct {
	store    *sqlite.Store
	fs       *filesystem.Manager
	tracker  *tracker.Tracker
	transfer *mockTransfer
	space    *mockSpace
	dir      string
	job      Job
}

var testClock = port.ClockFunc(func() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
})

func newFixture(t *testing.T, manifest []domain.ManifestEntry, capacity uint64, contents map[string]uint64) *fixture {
	t.Helper()

	root := t.TempDir()
	store, err := sqlite.Open(filepath.Join(root, "state.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	task := &domain.Task{
		ID:       "task-1",
		Repo:     domain.RepoRef{ID: "org/model", Type: domain.RepoTypeModel, Revision: "main"},
		LocalDir: filepath.Join(root, "download"),
		Status:   domain.TaskStatusPlanning,
	}
	if err := store.CreateTask(task); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	plan, err := planner.Plan(task.ID, manifest, capacity, 1.0)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	task.Status = domain.TaskStatusRunning
	if err := store.ActivatePlan(task, plan, manifest); err != nil {
		t.Fatalf("ActivatePlan() error = %v", err)
	}

	fs := filesystem.NewManagerWithBufferSize(4096)
	return &fixture{
		store:    store,
		fs:       fs,
		tracker:  tracker.New(store, fs, testClock, zap.NewNop()),
		transfer: newMockTransfer(fs, contents),
		space:    &mockSpace{readings: []uint64{1 << 40}},
		dir:      task.LocalDir,
		job: Job{
			TaskID:   task.ID,
			Repo:     task.Repo,
			LocalDir: task.LocalDir,
			Plan:     plan,
			Policy:   tracker.PolicySkipMoved,
		},
	}
}

func (f *fixture) executor(cfg Config, prober port.SizeProber, events event.EventDispatcher) *Executor {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	return New(cfg, f.tracker, f.transfer, prober, f.space, f.fs, events, testClock, zap.NewNop())
}

func (f *fixture) record(t *testing.T, path string) *domain.FileRecord {
	t.Helper()
	rec, err := f.store.GetRecord(f.job.TaskID, path)
	if err != nil {
		t.Fatalf("GetRecord(%s) error = %v", path, err)
	}
	return rec
}

func threeFiles() ([]domain.ManifestEntry, map[string]uint64) {
	return []domain.ManifestEntry{
			{Path: "a.bin", ExpectedSize: 30},
			{Path: "b.bin", ExpectedSize: 20},
			{Path: "sub/c.bin", ExpectedSize: 10},
		}, map[string]uint64{
			"a.bin": 30, "b.bin": 20, "sub/c.bin": 10,
		}
}

func TestExecutor_RunCompletesBatch(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)
	metrics := event.NewMetricsHandler()
	dispatcher := event.NewInMemoryDispatcher(zap.NewNop())
	dispatcher.Subscribe(metrics)

	result, err := f.executor(Config{Concurrency: 2}, nil, dispatcher).Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.Completed) != 3 || len(result.Failed) != 0 || result.Interrupted() {
		t.Fatalf("result = %+v", result)
	}
	if result.BytesCompleted() != 60 {
		t.Errorf("BytesCompleted() = %d, want 60", result.BytesCompleted())
	}
	for path, size := range contents {
		rec := f.record(t, path)
		if rec.Status != domain.FileStatusCompleted || rec.ActualSize != size {
			t.Errorf("%s: record = %+v", path, rec)
		}
		info, err := os.Stat(filepath.Join(f.dir, filepath.FromSlash(path)))
		if err != nil || uint64(info.Size()) != size {
			t.Errorf("%s: on disk = %v, %v", path, info, err)
		}
	}

	m := metrics.GetMetrics()
	if m["files_completed"] != 3 || m["batches"] != 1 {
		t.Errorf("metrics = %v", m)
	}
}

func TestExecutor_RerunSkipsAndHonoursMovedFiles(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)
	ex := f.executor(Config{Concurrency: 2}, nil, nil)

	if _, err := ex.Run(context.Background(), f.job); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// Rotate one file off the disk
	if err := os.Remove(filepath.Join(f.dir, "a.bin")); err != nil {
		t.Fatal(err)
	}

	result, err := ex.Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(result.Skipped) != 2 || len(result.Moved) != 1 || result.Moved[0] != "a.bin" {
		t.Errorf("skipped = %v, moved = %v", result.Skipped, result.Moved)
	}
	if f.transfer.callCount("a.bin") != 1 {
		t.Errorf("a.bin fetched %d times, want 1", f.transfer.callCount("a.bin"))
	}

	job := f.job
	job.Policy = tracker.PolicyRedownloadMoved
	result, err = ex.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("third Run() error = %v", err)
	}
	if _, ok := result.Completed["a.bin"]; !ok {
		t.Errorf("a.bin not redownloaded: %+v", result)
	}
	if f.transfer.callCount("a.bin") != 2 {
		t.Errorf("a.bin fetched %d times, want 2", f.transfer.callCount("a.bin"))
	}
}

func TestExecutor_VerifiesFilesAlreadyOnDisk(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, "b.bin"), make([]byte, 20), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := f.executor(Config{Concurrency: 1}, nil, nil).Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.transfer.callCount("b.bin") != 0 {
		t.Error("b.bin should be verified, not fetched")
	}
	if result.Completed["b.bin"] != 20 {
		t.Errorf("Completed[b.bin] = %d, want 20", result.Completed["b.bin"])
	}
}

func TestExecutor_RetriesTransientErrors(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)
	netErr := domain.NewTransferError(domain.TransferNetwork, errors.New("connection reset"))
	f.transfer.failures["a.bin"] = []error{netErr, netErr}

	result, err := f.executor(Config{Concurrency: 1, MaxAttempts: 3}, nil, nil).Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := result.Completed["a.bin"]; !ok {
		t.Fatalf("a.bin not completed: %+v", result)
	}
	if got := f.transfer.callCount("a.bin"); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
	if rec := f.record(t, "a.bin"); rec.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", rec.Attempts)
	}
}

func TestExecutor_RetryWarningsPrecedeRetries(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)
	netErr := domain.NewTransferError(domain.TransferNetwork, errors.New("connection reset"))
	f.transfer.failures["a.bin"] = []error{netErr, netErr, netErr}

	core, logs := observer.New(zapcore.WarnLevel)
	exec := New(Config{Concurrency: 1, MaxAttempts: 3, RetryDelay: time.Millisecond},
		f.tracker, f.transfer, nil, f.space, f.fs, nil, testClock, zap.New(core))

	result, err := exec.Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := result.Failed["a.bin"]; !ok {
		t.Fatalf("a.bin should fail after 3 attempts: %+v", result)
	}
	if n := logs.FilterMessage("transfer attempt failed, retrying").Len(); n != 2 {
		t.Errorf("retry warnings = %d, want 2", n)
	}
}

// eventRecorder keeps every event it is handed
type eventRecorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *eventRecorder) Handle(e event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) HandledEvents() []string { return []string{event.Wildcard} }

func TestExecutor_BatchFinishedStampedByClock(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)
	rec := &eventRecorder{}
	dispatcher := event.NewInMemoryDispatcher(zap.NewNop())
	dispatcher.Subscribe(rec)

	if _, err := f.executor(Config{Concurrency: 1}, nil, dispatcher).Run(context.Background(), f.job); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var finished *event.BatchFinished
	for _, e := range rec.events {
		if bf, ok := e.(event.BatchFinished); ok {
			finished = &bf
		}
	}
	if finished == nil {
		t.Fatal("no BatchFinished event")
	}
	if want := testClock(); !finished.OccurredAt().Equal(want) {
		t.Errorf("OccurredAt() = %v, want %v", finished.OccurredAt(), want)
	}
}

func TestExecutor_FailureClasses(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCalls    int
		wantAttempts uint32
	}{
		{"auth is fatal", domain.NewTransferError(domain.TransferAuth, errors.New("401")), 1, 1},
		{"disk is fatal", domain.NewTransferError(domain.TransferDisk, errors.New("read-only file system")), 1, 1},
		{"unknown is fatal", domain.NewTransferError(domain.TransferUnknown, errors.New("404")), 1, 1},
		{"network exhausts retries", domain.NewTransferError(domain.TransferNetwork, errors.New("timeout")), 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest, contents := threeFiles()
			f := newFixture(t, manifest, 100, contents)
			f.transfer.failures["b.bin"] = []error{tt.err, tt.err, tt.err}

			result, err := f.executor(Config{Concurrency: 1, MaxAttempts: 3}, nil, nil).Run(context.Background(), f.job)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(result.Failed) != 1 || result.Failed["b.bin"] == nil {
				t.Fatalf("Failed = %v", result.Failed)
			}
			if len(result.Completed) != 2 {
				t.Errorf("Completed = %v, want the other two files", result.Completed)
			}
			if got := f.transfer.callCount("b.bin"); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			rec := f.record(t, "b.bin")
			if rec.Status != domain.FileStatusFailed || rec.Attempts != tt.wantAttempts {
				t.Errorf("record status=%s attempts=%d, want failed/%d", rec.Status, rec.Attempts, tt.wantAttempts)
			}
			if result.FailureRate() != 1.0/3.0 {
				t.Errorf("FailureRate() = %v", result.FailureRate())
			}
		})
	}
}

func TestExecutor_SizeMismatchIsRetried(t *testing.T) {
	manifest, contents := threeFiles()
	contents["sub/c.bin"] = 9
	f := newFixture(t, manifest, 100, contents)

	result, err := f.executor(Config{Concurrency: 1, MaxAttempts: 2}, nil, nil).Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !domain.IsTransient(result.Failed["sub/c.bin"]) {
		t.Errorf("Failed[sub/c.bin] = %v, want transient", result.Failed["sub/c.bin"])
	}
	if got := f.transfer.callCount("sub/c.bin"); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestExecutor_PreflightStopsBatch(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)
	f.space.readings = []uint64{150}

	result, err := f.executor(Config{Concurrency: 2, MinFreeBytes: 100}, nil, nil).Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.DiskExhausted || len(result.NotDispatched) != 3 {
		t.Errorf("result = %+v, want disk exhausted with nothing dispatched", result)
	}
	if f.transfer.totalCalls() != 0 {
		t.Errorf("transfers started: %d", f.transfer.totalCalls())
	}
	if rec := f.record(t, "a.bin"); rec.Status != domain.FileStatusPending {
		t.Errorf("a.bin status = %s, want pending", rec.Status)
	}
}

func TestExecutor_CapacityGuardStopsDispatch(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)
	// Preflight sees plenty, then the first live reading is 45 bytes: after
	// admitting a.bin (30) the cached estimate drops under the floor of 20.
	f.space.readings = []uint64{1000, 45}

	result, err := f.executor(Config{Concurrency: 1, MinFreeBytes: 20, ProbeInterval: time.Hour}, nil, nil).Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.DiskExhausted {
		t.Fatal("DiskExhausted = false, want true")
	}
	if _, ok := result.Completed["a.bin"]; !ok || len(result.Completed) != 1 {
		t.Errorf("Completed = %v, want only a.bin", result.Completed)
	}
	if len(result.NotDispatched) != 2 {
		t.Errorf("NotDispatched = %v, want 2 files", result.NotDispatched)
	}
}

func TestExecutor_CancellationLetsInFlightFinish(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.transfer.onFetch = func(path string) {
		if path == "a.bin" {
			cancel()
		}
	}

	result, err := f.executor(Config{Concurrency: 1}, nil, nil).Run(ctx, f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Cancelled {
		t.Fatal("Cancelled = false, want true")
	}
	if _, ok := result.Completed["a.bin"]; !ok {
		t.Errorf("in-flight a.bin should complete: %+v", result)
	}
	if len(result.NotDispatched) != 2 {
		t.Errorf("NotDispatched = %v, want 2 files", result.NotDispatched)
	}
	if rec := f.record(t, "b.bin"); rec.Status != domain.FileStatusPending {
		t.Errorf("b.bin status = %s, want pending", rec.Status)
	}
}

func TestExecutor_UnknownSizes(t *testing.T) {
	manifest := []domain.ManifestEntry{
		{Path: "weights.bin", ExpectedSize: 10},
		{Path: "extra.bin", SizeUnknown: true},
	}

	t.Run("fits", func(t *testing.T) {
		f := newFixture(t, manifest, 20, map[string]uint64{"weights.bin": 10, "extra.bin": 5})
		prober := &mockProber{sizes: map[string]uint64{"extra.bin": 5}}

		result, err := f.executor(Config{Concurrency: 1}, prober, nil).Run(context.Background(), f.job)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(result.Completed) != 2 {
			t.Errorf("Completed = %v", result.Completed)
		}
		rec := f.record(t, "extra.bin")
		if rec.SizeUnknown || rec.ExpectedSize != 5 {
			t.Errorf("record = %+v, want verified size 5", rec)
		}
	})

	t.Run("batch overflows", func(t *testing.T) {
		f := newFixture(t, manifest, 20, map[string]uint64{"weights.bin": 10, "extra.bin": 15})
		prober := &mockProber{sizes: map[string]uint64{"extra.bin": 15}}

		_, err := f.executor(Config{Concurrency: 1}, prober, nil).Run(context.Background(), f.job)
		if !domain.IsPlanningError(err, domain.PlanningReplanRequired) {
			t.Fatalf("Run() error = %v, want replan required", err)
		}
		if f.transfer.totalCalls() != 0 {
			t.Error("nothing should be fetched before a replan")
		}
	})

	t.Run("file oversized", func(t *testing.T) {
		f := newFixture(t, manifest, 20, nil)
		prober := &mockProber{sizes: map[string]uint64{"extra.bin": 50}}

		_, err := f.executor(Config{Concurrency: 1}, prober, nil).Run(context.Background(), f.job)
		if !domain.IsPlanningError(err, domain.PlanningReplanRequired) {
			t.Fatalf("Run() error = %v, want replan required", err)
		}
	})

	t.Run("truncated local copy is fetched", func(t *testing.T) {
		f := newFixture(t, manifest, 100, map[string]uint64{"weights.bin": 10, "extra.bin": 50})
		if err := os.MkdirAll(f.dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(f.dir, "extra.bin"), make([]byte, 3), 0o644); err != nil {
			t.Fatal(err)
		}
		prober := &mockProber{sizes: map[string]uint64{"extra.bin": 50}}

		result, err := f.executor(Config{Concurrency: 1}, prober, nil).Run(context.Background(), f.job)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if f.transfer.callCount("extra.bin") != 1 {
			t.Errorf("extra.bin fetched %d times, want 1", f.transfer.callCount("extra.bin"))
		}
		if result.Completed["extra.bin"] != 50 {
			t.Errorf("Completed[extra.bin] = %d, want 50", result.Completed["extra.bin"])
		}
		rec := f.record(t, "extra.bin")
		if !rec.IsCompleted() || rec.ActualSize != 50 || rec.ExpectedSize != 50 {
			t.Errorf("record = %+v, want completed with 50 bytes", rec)
		}
	})
}

func TestExecutor_UnverifiedSizeStopsBatch(t *testing.T) {
	manifest := []domain.ManifestEntry{
		{Path: "weights.bin", ExpectedSize: 10},
		{Path: "extra.bin", SizeUnknown: true},
	}

	tests := []struct {
		name   string
		prober port.SizeProber
	}{
		{"lookup fails", &mockProber{err: domain.NewTransferError(domain.TransferNetwork, errors.New("connection reset"))}},
		{"no size source", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, manifest, 20, map[string]uint64{"weights.bin": 10, "extra.bin": 500})

			result, err := f.executor(Config{Concurrency: 1}, tt.prober, nil).Run(context.Background(), f.job)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !result.DiskExhausted {
				t.Error("DiskExhausted = false, want true")
			}
			if f.transfer.totalCalls() != 0 {
				t.Errorf("fetched %d files, want none", f.transfer.totalCalls())
			}
			if len(result.Unverified) != 1 || result.Unverified[0] != "extra.bin" {
				t.Errorf("Unverified = %v, want [extra.bin]", result.Unverified)
			}
			if len(result.NotDispatched) != 2 {
				t.Errorf("NotDispatched = %v, want both files", result.NotDispatched)
			}
			if rec := f.record(t, "extra.bin"); !rec.SizeUnknown || rec.Status != domain.FileStatusPending {
				t.Errorf("record = %+v, want untouched placeholder", rec)
			}
		})
	}
}

func TestExecutor_BatchOutOfRange(t *testing.T) {
	manifest, contents := threeFiles()
	f := newFixture(t, manifest, 100, contents)
	job := f.job
	job.BatchIndex = 5

	if _, err := f.executor(Config{}, nil, nil).Run(context.Background(), job); !errors.Is(err, domain.ErrBatchOutOfRange) {
		t.Errorf("Run() error = %v, want ErrBatchOutOfRange", err)
	}
}

func TestCapacityGuard(t *testing.T) {
	space := &mockSpace{readings: []uint64{100, 100}}
	g := newCapacityGuard(space, "/data", 40, time.Hour, testClock.Now)

	check, err := g.Preflight(60)
	if err != nil || !check.HasSpace || !check.Checked {
		t.Fatalf("Preflight(60) = %+v, %v", check, err)
	}
	if check, _ := g.Preflight(61); check.HasSpace {
		t.Error("Preflight(61) should not fit above the floor")
	}

	if check, _ := g.Admit(30); !check.HasSpace || !check.Checked {
		t.Errorf("first Admit = %+v, want live reading with space", check)
	}
	if check, _ := g.Admit(30); !check.HasSpace || check.Checked || check.FreeBytes != 70 {
		t.Errorf("second Admit = %+v, want cached 70", check)
	}
	if check, _ := g.Admit(30); !check.HasSpace || check.FreeBytes != 40 {
		t.Errorf("third Admit = %+v, want cached 40 at the floor", check)
	}
	if check, _ := g.Admit(30); check.HasSpace || check.FreeBytes != 10 {
		t.Errorf("fourth Admit = %+v, want refusal at 10", check)
	}
}
