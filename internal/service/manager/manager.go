// Package manager drives batch download tasks through their lifecycle:
// plan, run a batch, pause for disk rotation, continue with the next batch,
// until the task completes, fails or is cancelled. All progress is persisted
// so every command can run from a fresh process.
package manager

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/domain/event"
	"github.com/vertextoedge/batchfetch/internal/port"
	"github.com/vertextoedge/batchfetch/internal/service/executor"
	"github.com/vertextoedge/batchfetch/internal/service/planner"
	"github.com/vertextoedge/batchfetch/internal/service/tracker"
)

// Config contains manager configuration
type Config struct {
	// DownloadRoot holds one directory per repository unless a task names its own
	DownloadRoot string

	// SafetyMargin is the usable fraction of capacity when none is given
	SafetyMargin float64

	// FailureThreshold fails the task when a batch's failure rate exceeds it
	FailureThreshold float64

	// MinFreeBytes is kept free when capacity is derived from free space
	MinFreeBytes uint64

	// CancelPollInterval is how often a running task checks for a cancel
	// issued by another process
	CancelPollInterval time.Duration
}

// DefaultConfig returns default manager configuration
func DefaultConfig() Config {
	return Config{
		DownloadRoot:       "./downloads",
		SafetyMargin:       0.9,
		FailureThreshold:   0.5,
		MinFreeBytes:       1 << 30,
		CancelPollInterval: 2 * time.Second,
	}
}

// StartRequest describes a new batch download
type StartRequest struct {
	Repo         domain.RepoRef
	Capacity     uint64
	SafetyMargin float64 // zero means the configured default
	LocalDir     string  // empty means DownloadRoot/<repo>
	AutoProceed  bool
}

// Manager orchestrates planning and batch execution for tasks
type Manager struct {
	cfg      Config
	store    port.Store
	lister   port.Lister
	executor *executor.Executor
	fs       port.FileSystem
	space    port.SpaceProbe
	events   event.EventDispatcher
	clock    port.Clock
	logger   *zap.Logger
}

// New creates a new Manager
func New(
	cfg Config,
	store port.Store,
	lister port.Lister,
	exec *executor.Executor,
	fs port.FileSystem,
	space port.SpaceProbe,
	events event.EventDispatcher,
	clock port.Clock,
	logger *zap.Logger,
) *Manager {
	def := DefaultConfig()
	if cfg.DownloadRoot == "" {
		cfg.DownloadRoot = def.DownloadRoot
	}
	if cfg.SafetyMargin == 0 {
		cfg.SafetyMargin = def.SafetyMargin
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.CancelPollInterval <= 0 {
		cfg.CancelPollInterval = def.CancelPollInterval
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if clock == nil {
		clock = port.SystemClock
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		lister:   lister,
		executor: exec,
		fs:       fs,
		space:    space,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// LocalDirFor returns the default download directory of a repository
func (m *Manager) LocalDirFor(repo domain.RepoRef) string {
	name := strings.ReplaceAll(repo.ID, "/", "_")
	if repo.Type == domain.RepoTypeDataset {
		return filepath.Join(m.cfg.DownloadRoot, "datasets", name)
	}
	return filepath.Join(m.cfg.DownloadRoot, name)
}

func (m *Manager) margin(requested float64) float64 {
	if requested == 0 {
		return m.cfg.SafetyMargin
	}
	return requested
}

// listManifest fetches the remote file list
func (m *Manager) listManifest(ctx context.Context, repo domain.RepoRef) ([]domain.ManifestEntry, error) {
	if err := repo.Validate(); err != nil {
		return nil, err
	}
	manifest, err := m.lister.ListFiles(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", repo, err)
	}
	return manifest, nil
}

// PlanBatch previews the batches for a repository without creating a task
func (m *Manager) PlanBatch(ctx context.Context, repo domain.RepoRef, capacity uint64, safetyMargin float64) (*domain.BatchPlan, []domain.ManifestEntry, error) {
	manifest, err := m.listManifest(ctx, repo)
	if err != nil {
		return nil, nil, err
	}
	plan, err := planner.Plan("", manifest, capacity, m.margin(safetyMargin))
	if err != nil {
		return nil, manifest, err
	}
	return plan, manifest, nil
}

// StartBatchDownload creates a task, persists its plan and runs the first
// batch (every batch in auto mode)
func (m *Manager) StartBatchDownload(ctx context.Context, req StartRequest) (*domain.Task, error) {
	manifest, err := m.listManifest(ctx, req.Repo)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	task := &domain.Task{
		ID:          uuid.NewString(),
		Repo:        req.Repo,
		LocalDir:    req.LocalDir,
		Status:      domain.TaskStatusPlanning,
		AutoProceed: req.AutoProceed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.LocalDir == "" {
		task.LocalDir = m.LocalDirFor(req.Repo)
	}

	plan, err := planner.Plan(task.ID, manifest, req.Capacity, m.margin(req.SafetyMargin))
	if err != nil {
		return nil, err
	}
	if err := m.fs.CheckWritable(task.LocalDir); err != nil {
		return nil, fmt.Errorf("download directory: %w", err)
	}

	if err := m.store.CreateTask(task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if err := m.transition(task, domain.TaskStatusRunning, "plan activated"); err != nil {
		return task, err
	}
	if err := m.store.ActivatePlan(task, plan, manifest); err != nil {
		return task, fmt.Errorf("activate plan: %w", err)
	}

	m.logger.Info("task planned",
		zap.String("task_id", task.ID),
		zap.String("repo", req.Repo.String()),
		zap.Int("files", plan.FileCount()),
		zap.Int("batches", len(plan.Batches)),
		zap.Int("oversized", len(plan.Oversized)),
		zap.String("capacity", humanize.IBytes(plan.Capacity)),
		zap.String("total", humanize.IBytes(plan.TotalBytes())))

	return task, m.runBatches(ctx, task, task.NextBatch(), tracker.PolicySkipMoved)
}

// Download is a single-shot task sized to the current free space that runs
// every batch without pausing
func (m *Manager) Download(ctx context.Context, repo domain.RepoRef, localDir string) (*domain.Task, error) {
	if localDir == "" {
		localDir = m.LocalDirFor(repo)
	}
	free, err := m.space.FreeBytes(localDir)
	if err != nil {
		return nil, fmt.Errorf("free space probe: %w", err)
	}
	if free <= m.cfg.MinFreeBytes {
		return nil, domain.NewPlanningError(domain.PlanningInvalidCapacity,
			"only %s free, floor is %s", humanize.IBytes(free), humanize.IBytes(m.cfg.MinFreeBytes))
	}

	return m.StartBatchDownload(ctx, StartRequest{
		Repo:        repo,
		Capacity:    free - m.cfg.MinFreeBytes,
		LocalDir:    localDir,
		AutoProceed: true,
	})
}

// ContinueBatch runs the batch with the given one-based number. The number
// must be the lowest batch that has not run, unless the task was re-planned
// since the last continue; no batch runs twice under one plan. Without force
// the task must be waiting for rotation or disk space.
func (m *Manager) ContinueBatch(ctx context.Context, taskID string, number int, force bool) (*domain.Task, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if err := task.CheckContinue(number); err != nil {
		return task, err
	}
	if task.Status.IsTerminal() {
		return task, fmt.Errorf("%w: task is %s", domain.ErrInvalidStateTransition, task.Status)
	}
	if !force && task.Status != domain.TaskStatusPausedForRotation && task.Status != domain.TaskStatusDiskExhausted {
		return task, fmt.Errorf("%w: task is %s, use force to continue anyway", domain.ErrInvalidStateTransition, task.Status)
	}

	task.Replanned = false
	task.LastError = ""

	if err := m.transition(task, domain.TaskStatusRunning, fmt.Sprintf("continue with batch %d", number)); err != nil {
		return task, err
	}
	if err := m.save(task); err != nil {
		return task, err
	}
	return task, m.runBatches(ctx, task, number-1, tracker.PolicySkipMoved)
}

// Resume re-runs the current batch of an interrupted, failed or paused task
// with the given moved-file policy
func (m *Manager) Resume(ctx context.Context, taskID string, policy tracker.MovedFilePolicy) (*domain.Task, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Plan == nil {
		return task, domain.ErrNoActivePlan
	}
	if task.Status.IsTerminal() {
		return task, fmt.Errorf("%w: task is %s", domain.ErrInvalidStateTransition, task.Status)
	}

	task.Replanned = false
	task.LastError = ""
	if err := m.transition(task, domain.TaskStatusRunning, "resume with "+string(policy)+" policy"); err != nil {
		return task, err
	}

	if !task.HasMoreBatches() {
		if err := m.transition(task, domain.TaskStatusCompleted, "no batches left"); err != nil {
			return task, err
		}
		return task, m.save(task)
	}

	if err := m.save(task); err != nil {
		return task, err
	}
	return task, m.runBatches(ctx, task, task.NextBatch(), policy)
}

// Replan partitions the files not yet completed with a new capacity. The
// task waits for the operator to continue with any batch of the new plan.
func (m *Manager) Replan(ctx context.Context, taskID string, capacity uint64, safetyMargin float64) (*domain.Task, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.IsTerminal() {
		return task, fmt.Errorf("%w: task is %s", domain.ErrInvalidStateTransition, task.Status)
	}

	records, err := m.store.ListRecords(taskID)
	if err != nil {
		return task, err
	}
	outstanding := planner.Outstanding(records)

	plan, err := planner.Plan(task.ID, outstanding, capacity, m.margin(safetyMargin))
	if err != nil {
		return task, err
	}

	if task.Status != domain.TaskStatusPausedForRotation {
		if err := m.transition(task, domain.TaskStatusPausedForRotation, "replanned"); err != nil {
			return task, err
		}
	}
	task.Replanned = true
	task.LastError = ""
	task.UpdatedAt = m.clock.Now()

	if err := m.store.ActivatePlan(task, plan, outstanding); err != nil {
		return task, fmt.Errorf("activate plan: %w", err)
	}

	m.logger.Info("task replanned",
		zap.String("task_id", task.ID),
		zap.Int("plan_version", task.PlanVersion),
		zap.Int("files", plan.FileCount()),
		zap.Int("batches", len(plan.Batches)))
	return task, nil
}

// Cancel moves a task to cancelled. A process running the task notices on
// its next poll, stops dispatching and exits once in-flight transfers finish.
func (m *Manager) Cancel(taskID string) (*domain.Task, error) {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if err := m.transition(task, domain.TaskStatusCancelled, "cancelled by operator"); err != nil {
		return task, err
	}
	return task, m.save(task)
}

// List returns tasks, optionally filtered by status
func (m *Manager) List(statuses ...domain.TaskStatus) ([]*domain.Task, error) {
	return m.store.ListTasks(statuses...)
}

// Delete removes a task and its ledger, and optionally its downloaded files
func (m *Manager) Delete(taskID string, purgeFiles bool) error {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status == domain.TaskStatusRunning {
		return fmt.Errorf("%w: task is running, cancel it first", domain.ErrInvalidStateTransition)
	}
	if purgeFiles {
		if err := m.fs.RemoveAll(task.LocalDir); err != nil {
			return fmt.Errorf("purge %s: %w", task.LocalDir, err)
		}
	}
	if err := m.store.DeleteTask(taskID); err != nil {
		return err
	}
	m.logger.Info("task deleted",
		zap.String("task_id", taskID),
		zap.Bool("purged_files", purgeFiles))
	return nil
}

// Cleanup deletes every task in one of statuses, or every finished task when
// none are given, and returns the deleted IDs. Running tasks are left alone.
func (m *Manager) Cleanup(purgeFiles bool, statuses ...domain.TaskStatus) ([]string, error) {
	if len(statuses) == 0 {
		statuses = []domain.TaskStatus{domain.TaskStatusCompleted, domain.TaskStatusFailed, domain.TaskStatusCancelled}
	}
	tasks, err := m.store.ListTasks(statuses...)
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if task.Status == domain.TaskStatusRunning {
			m.logger.Warn("cleanup skipped running task", zap.String("task_id", task.ID))
			continue
		}
		if err := m.Delete(task.ID, purgeFiles); err != nil {
			return deleted, fmt.Errorf("cleanup %s: %w", task.ID, err)
		}
		deleted = append(deleted, task.ID)
	}
	return deleted, nil
}

// runBatches executes the batch at index first, then the lowest batches that
// have not run, until the task pauses, finishes or stops
func (m *Manager) runBatches(ctx context.Context, task *domain.Task, first int, policy tracker.MovedFilePolicy) error {
	ctx, stop := context.WithCancel(ctx)
	var (
		remoteCancel atomic.Bool
		wg           sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.watchCancel(ctx, task.ID, &remoteCancel, stop)
	}()
	defer wg.Wait()
	defer stop()

	for index := first; task.HasMoreBatches(); index = task.NextBatch() {
		result, err := m.executor.Run(ctx, executor.Job{
			TaskID:     task.ID,
			Repo:       task.Repo,
			LocalDir:   task.LocalDir,
			Plan:       task.Plan,
			BatchIndex: index,
			Policy:     policy,
		})
		if err != nil {
			return m.fail(task, fmt.Errorf("batch %d: %w", index+1, err))
		}

		switch {
		case remoteCancel.Load():
			task.Status = domain.TaskStatusCancelled
			m.logger.Info("task cancelled, in-flight transfers finished",
				zap.String("task_id", task.ID),
				zap.Int("batch", index+1))
			return domain.ErrTaskCancelled

		case result.Cancelled:
			task.LastError = fmt.Sprintf("interrupted during batch %d", index+1)
			if err := m.transition(task, domain.TaskStatusPausedForRotation, task.LastError); err != nil {
				return err
			}
			if err := m.save(task); err != nil {
				return err
			}
			return context.Canceled

		case result.DiskExhausted:
			task.LastError = fmt.Sprintf("free space below floor during batch %d", index+1)
			if len(result.Unverified) > 0 {
				task.LastError = fmt.Sprintf("remote size of %d files unknown, batch %d not started",
					len(result.Unverified), index+1)
			}
			if err := m.transition(task, domain.TaskStatusDiskExhausted, task.LastError); err != nil {
				return err
			}
			if err := m.save(task); err != nil {
				return err
			}
			return fmt.Errorf("%w: batch %d", domain.ErrDiskExhausted, index+1)
		}

		if rate := result.FailureRate(); rate > m.cfg.FailureThreshold {
			return m.fail(task, fmt.Errorf("%w: batch %d failed %d of %d files (%.0f%%)",
				domain.ErrBatchFailed, index+1, len(result.Failed), result.Attempted(), rate*100))
		}
		if len(result.Failed) > 0 {
			m.logger.Warn("batch finished with failures below threshold",
				zap.String("task_id", task.ID),
				zap.Int("batch", index+1),
				zap.Int("failed", len(result.Failed)),
				zap.Float64("failure_rate", result.FailureRate()))
		}

		if err := task.MarkExecuted(index); err != nil {
			return err
		}
		task.LastError = ""

		next := domain.TaskStatusRunning
		reason := fmt.Sprintf("batch %d done", index+1)
		switch {
		case !task.HasMoreBatches():
			next = domain.TaskStatusCompleted
		case !task.AutoProceed:
			next = domain.TaskStatusPausedForRotation
			reason += ", waiting for rotation"
		}
		if err := m.transition(task, next, reason); err != nil {
			return err
		}
		if err := m.save(task); err != nil {
			return err
		}
		if next != domain.TaskStatusRunning {
			return nil
		}
	}

	// Nothing left to run, e.g. a resumed task whose last batch had finished
	if task.Status == domain.TaskStatusRunning {
		if err := m.transition(task, domain.TaskStatusCompleted, "no batches left"); err != nil {
			return err
		}
		return m.save(task)
	}
	return nil
}

// fail persists a task failure and returns cause
func (m *Manager) fail(task *domain.Task, cause error) error {
	task.LastError = cause.Error()
	if err := m.transition(task, domain.TaskStatusFailed, task.LastError); err != nil {
		return errors.Join(cause, err)
	}
	if err := m.save(task); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// transition applies a status change and publishes it
func (m *Manager) transition(task *domain.Task, to domain.TaskStatus, reason string) error {
	from := task.Status
	if err := task.TransitionTo(to, m.clock.Now()); err != nil {
		return err
	}
	m.events.Dispatch(event.NewTaskStatusChanged(task.ID, string(from), string(to), task.CurrentBatch, reason))
	return nil
}

// save persists the progress marker. A cancel from another process wins.
func (m *Manager) save(task *domain.Task) error {
	err := m.store.SaveProgress(task)
	if errors.Is(err, domain.ErrTaskCancelled) {
		task.Status = domain.TaskStatusCancelled
	}
	return err
}

// watchCancel polls the task row and stops the run when it turns cancelled
func (m *Manager) watchCancel(ctx context.Context, taskID string, cancelled *atomic.Bool, stop context.CancelFunc) {
	ticker := time.NewTicker(m.cfg.CancelPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := m.store.GetTaskStatus(taskID)
			if err != nil {
				m.logger.Warn("failed to poll task status", zap.String("task_id", taskID), zap.Error(err))
				continue
			}
			if status == domain.TaskStatusCancelled {
				m.logger.Info("cancel requested, stopping dispatch", zap.String("task_id", taskID))
				cancelled.Store(true)
				stop()
				return
			}
		}
	}
}
