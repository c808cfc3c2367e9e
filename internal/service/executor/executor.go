// Package executor runs one planned batch: it resolves every file against
// the ledger, transfers what is missing through a bounded pool and stops
// dispatching when the disk runs low or the task is cancelled.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"github.com/vertextoedge/batchfetch/internal/domain/event"
	"github.com/vertextoedge/batchfetch/internal/port"
	"github.com/vertextoedge/batchfetch/internal/service/tracker"
)

// Config contains executor configuration
type Config struct {
	// Concurrency is the number of transfers in flight
	Concurrency int

	// MaxAttempts bounds attempts per file for transient failures
	MaxAttempts uint

	// RetryDelay is the linear backoff step: attempt n waits n*RetryDelay
	RetryDelay time.Duration

	// MaxRetryDelay caps a single backoff wait
	MaxRetryDelay time.Duration

	// MinFreeBytes is the free-space floor under which dispatch stops
	MinFreeBytes uint64

	// ProbeInterval is how often the capacity guard reads live free space
	ProbeInterval time.Duration
}

// DefaultConfig returns default executor configuration
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		MaxAttempts:   5,
		RetryDelay:    2 * time.Second,
		MaxRetryDelay: time.Minute,
		MinFreeBytes:  1 << 30,
		ProbeInterval: 2 * time.Second,
	}
}

// Job identifies the batch to run
type Job struct {
	TaskID     string
	Repo       domain.RepoRef
	LocalDir   string
	Plan       *domain.BatchPlan
	BatchIndex int
	Policy     tracker.MovedFilePolicy
}

// Executor runs batches
type Executor struct {
	cfg      Config
	tracker  *tracker.Tracker
	transfer port.Transfer
	prober   port.SizeProber
	space    port.SpaceProbe
	fs       port.FileSystem
	events   event.EventDispatcher
	clock    port.Clock
	logger   *zap.Logger
}

// New creates a new Executor. prober may be nil, in which case a batch
// holding a file of unknown size is never started.
func New(
	cfg Config,
	tr *tracker.Tracker,
	transfer port.Transfer,
	prober port.SizeProber,
	space port.SpaceProbe,
	fs port.FileSystem,
	events event.EventDispatcher,
	clock port.Clock,
	logger *zap.Logger,
) *Executor {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = def.MaxRetryDelay
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	if events == nil {
		events = event.NewNullDispatcher()
	}
	if clock == nil {
		clock = port.SystemClock
	}
	return &Executor{
		cfg:      cfg,
		tracker:  tr,
		transfer: transfer,
		prober:   prober,
		space:    space,
		fs:       fs,
		events:   events,
		clock:    clock,
		logger:   logger,
	}
}

// pendingFile is a file that needs a transfer. known is false only for
// redownloads of files completed before their remote size was learned.
type pendingFile struct {
	path  string
	dest  string
	size  uint64
	known bool
}

// Run executes one batch and returns once every dispatched transfer has
// finished. Disk exhaustion and cancellation are reported in the result,
// not as errors. Errors are planning or ledger failures that abort the batch.
func (e *Executor) Run(ctx context.Context, job Job) (*domain.BatchResult, error) {
	batch, err := job.Plan.Batch(job.BatchIndex)
	if err != nil {
		return nil, err
	}

	start := e.clock.Now()
	result := domain.NewBatchResult(batch.Index)
	logger := e.logger.With(
		zap.String("task_id", job.TaskID),
		zap.Int("batch", batch.Number()))

	outstanding, unverified, err := e.verifyUnknownSizes(ctx, job, batch)
	if err != nil {
		return nil, err
	}
	if len(unverified) > 0 {
		logger.Warn("remote size unknown, batch not started",
			zap.Strings("files", unverified))
		if ctx.Err() != nil {
			result.Cancelled = true
		} else {
			result.DiskExhausted = true
		}
		result.Unverified = unverified
		result.NotDispatched = outstanding
		return e.finish(job, batch, result, start), nil
	}

	var todo []pendingFile
	for _, path := range batch.Entries {
		dest, err := e.fs.LocalPath(job.LocalDir, path)
		if err != nil {
			return nil, err
		}
		res, err := e.tracker.Resolve(job.TaskID, path, dest, job.Policy)
		if err != nil {
			return nil, err
		}

		switch res.Action {
		case tracker.ActionSkip:
			if res.Moved {
				result.Moved = append(result.Moved, path)
			} else {
				result.Skipped = append(result.Skipped, path)
			}
			e.events.Dispatch(event.NewFileSkipped(job.TaskID, path, res.Reason))
		case tracker.ActionVerify:
			result.Completed[path] = res.LocalSize
			e.events.Dispatch(event.NewFileCompleted(job.TaskID, path, res.LocalSize, true, 0))
		case tracker.ActionRedownload:
			if err := e.fs.DiscardPartial(dest); err != nil {
				return nil, err
			}
			fallthrough
		default:
			todo = append(todo, pendingFile{
				path:  path,
				dest:  dest,
				size:  res.Record.ExpectedSize,
				known: !res.Record.SizeUnknown,
			})
		}
	}

	var needed, batchBytes uint64
	for _, f := range todo {
		batchBytes += f.size
		if partial := e.fs.PartialSize(f.dest); partial < f.size {
			needed += f.size - partial
		}
	}

	e.events.Dispatch(event.NewBatchStarted(job.TaskID, batch.Number(), len(todo), batchBytes,
		len(result.Skipped)+len(result.Moved)))

	guard := newCapacityGuard(e.space, job.LocalDir, e.cfg.MinFreeBytes, e.cfg.ProbeInterval, e.clock.Now)

	if len(todo) > 0 {
		check, err := guard.Preflight(needed)
		if err != nil {
			return nil, fmt.Errorf("free space probe: %w", err)
		}
		if !check.HasSpace {
			logger.Warn("not enough free space for batch",
				zap.String("free", humanize.IBytes(check.FreeBytes)),
				zap.String("needed", humanize.IBytes(needed)),
				zap.String("floor", humanize.IBytes(check.Floor)))
			result.DiskExhausted = true
			for _, f := range todo {
				result.NotDispatched = append(result.NotDispatched, f.path)
			}
			return e.finish(job, batch, result, start), nil
		}
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(e.cfg.Concurrency))
	)

	for i, f := range todo {
		if err := acquire(ctx, sem); err != nil {
			result.Cancelled = true
			skipRest(result, todo[i:], &mu)
			break
		}

		check, err := guard.Admit(f.size)
		if err != nil || !check.HasSpace {
			sem.Release(1)
			if err != nil {
				logger.Error("free space probe failed, stopping dispatch", zap.Error(err))
			} else {
				logger.Warn("free space below floor, stopping dispatch",
					zap.String("free", humanize.IBytes(check.FreeBytes)),
					zap.String("floor", humanize.IBytes(check.Floor)))
			}
			result.DiskExhausted = true
			skipRest(result, todo[i:], &mu)
			break
		}

		wg.Add(1)
		go func(f pendingFile) {
			defer wg.Done()
			defer sem.Release(1)
			e.transferOne(ctx, job, f, result, &mu, logger)
		}(f)
	}

	wg.Wait()

	if ctx.Err() != nil {
		result.Cancelled = true
	}
	return e.finish(job, batch, result, start), nil
}

// acquire takes a pool slot unless the context is done
func acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		sem.Release(1)
		return err
	}
	return nil
}

func skipRest(result *domain.BatchResult, rest []pendingFile, mu *sync.Mutex) {
	mu.Lock()
	defer mu.Unlock()
	for _, f := range rest {
		result.NotDispatched = append(result.NotDispatched, f.path)
	}
}

// verifyUnknownSizes replaces placeholder sizes of unfinished files with
// remote ones before anything is resolved, and refuses batches that the real
// sizes no longer fit. It returns the unfinished files of the batch and those
// whose size could not be learned.
func (e *Executor) verifyUnknownSizes(ctx context.Context, job Job, batch domain.Batch) (outstanding, unverified []string, err error) {
	safe := job.Plan.SafeCapacity()
	probed := false
	var total uint64

	for _, path := range batch.Entries {
		rec, err := e.tracker.Record(job.TaskID, path)
		if err != nil {
			return nil, nil, err
		}
		if rec.IsCompleted() {
			if rec.SizeUnknown {
				total += rec.ActualSize
			} else {
				total += rec.ExpectedSize
			}
			continue
		}
		outstanding = append(outstanding, path)
		if !rec.SizeUnknown {
			total += rec.ExpectedSize
			continue
		}

		if e.prober == nil {
			unverified = append(unverified, path)
			continue
		}
		size, err := e.prober.RemoteSize(ctx, job.Repo, path)
		if err != nil {
			e.logger.Warn("remote size lookup failed",
				zap.String("task_id", job.TaskID),
				zap.String("path", path),
				zap.Error(err))
			unverified = append(unverified, path)
			continue
		}
		if _, err := e.tracker.UpdateExpectedSize(job.TaskID, path, size); err != nil {
			return nil, nil, err
		}
		probed = true
		total += size

		if size > safe && !batch.Oversized {
			return nil, nil, domain.NewPlanningError(domain.PlanningReplanRequired,
				"%s is %s, above safe capacity %s", path, humanize.IBytes(size), humanize.IBytes(safe))
		}
	}

	if len(unverified) > 0 || !probed || batch.Oversized {
		return outstanding, unverified, nil
	}
	if total > safe {
		return nil, nil, domain.NewPlanningError(domain.PlanningReplanRequired,
			"batch %d holds %s with verified sizes, above safe capacity %s",
			batch.Number(), humanize.IBytes(total), humanize.IBytes(safe))
	}
	return outstanding, nil, nil
}

// backoff waits linearly longer per attempt unless the server asked otherwise
func (e *Executor) backoff(n uint, err error, _ *retry.Config) time.Duration {
	if d, ok := domain.GetRetryAfter(err); ok {
		return d
	}
	return time.Duration(n+1) * e.cfg.RetryDelay
}

func (e *Executor) transferOne(ctx context.Context, job Job, f pendingFile, result *domain.BatchResult, mu *sync.Mutex, logger *zap.Logger) {
	if _, err := e.tracker.MarkDownloading(job.TaskID, f.path); err != nil {
		e.recordFailure(job, f, err, result, mu)
		return
	}

	// In-flight bytes are not abandoned on cancellation; only retries stop.
	fetchCtx := context.WithoutCancel(ctx)
	start := e.clock.Now()

	var (
		fetched  port.FetchResult
		attempts uint
	)
	err := retry.Do(
		func() error {
			attempts++
			r, err := e.transfer.Fetch(fetchCtx, job.Repo, f.path, f.dest)
			if err == nil && f.known && r.Bytes != f.size {
				err = domain.NewTransferError(domain.TransferNetwork,
					fmt.Errorf("received %d bytes, expected %d", r.Bytes, f.size))
			}
			if err != nil {
				// The final attempt is counted by MarkFailed
				if domain.IsTransient(err) && attempts < e.cfg.MaxAttempts {
					if _, uerr := e.tracker.RecordAttemptFailure(job.TaskID, f.path, err); uerr != nil {
						logger.Error("failed to record attempt", zap.String("path", f.path), zap.Error(uerr))
					}
				}
				return err
			}
			fetched = r
			return nil
		},
		retry.Attempts(e.cfg.MaxAttempts),
		retry.Delay(e.cfg.RetryDelay),
		retry.MaxDelay(e.cfg.MaxRetryDelay),
		retry.DelayType(e.backoff),
		retry.RetryIf(domain.IsTransient),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			// the last attempt is reported by recordFailure
			if n+1 >= e.cfg.MaxAttempts {
				return
			}
			logger.Warn("transfer attempt failed, retrying",
				zap.String("path", f.path),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if _, uerr := e.tracker.MarkInterrupted(job.TaskID, f.path, "cancelled between attempts"); uerr != nil {
			logger.Error("failed to release record", zap.String("path", f.path), zap.Error(uerr))
		}
		mu.Lock()
		result.NotDispatched = append(result.NotDispatched, f.path)
		mu.Unlock()
		return
	}
	if err != nil {
		e.recordFailure(job, f, err, result, mu)
		return
	}

	if _, err := e.tracker.MarkCompleted(job.TaskID, f.path, fetched.Bytes); err != nil {
		e.recordFailure(job, f, err, result, mu)
		return
	}

	mu.Lock()
	result.Completed[f.path] = fetched.Bytes
	mu.Unlock()

	e.events.Dispatch(event.NewFileCompleted(job.TaskID, f.path, fetched.Bytes, false, e.clock.Now().Sub(start)))
}

func (e *Executor) recordFailure(job Job, f pendingFile, cause error, result *domain.BatchResult, mu *sync.Mutex) {
	var attempts uint32
	if rec, err := e.tracker.MarkFailed(job.TaskID, f.path, cause); err == nil {
		attempts = rec.Attempts
	} else {
		e.logger.Error("failed to record file failure",
			zap.String("path", f.path),
			zap.Error(err))
	}

	mu.Lock()
	result.Failed[f.path] = cause
	mu.Unlock()

	e.events.Dispatch(event.NewFileFailed(job.TaskID, f.path, cause.Error(), attempts, !domain.IsTransient(cause)))
}

func (e *Executor) finish(job Job, batch domain.Batch, result *domain.BatchResult, start time.Time) *domain.BatchResult {
	result.Duration = e.clock.Now().Sub(start)
	e.events.Dispatch(event.BatchFinished{
		BaseEvent:     event.BaseEvent{Timestamp: e.clock.Now()},
		TaskID:        job.TaskID,
		BatchNumber:   batch.Number(),
		Completed:     len(result.Completed),
		Failed:        len(result.Failed),
		Skipped:       len(result.Skipped) + len(result.Moved),
		NotDispatched: len(result.NotDispatched),
		Bytes:         result.BytesCompleted(),
		DiskExhausted: result.DiskExhausted,
		Cancelled:     result.Cancelled,
		Duration:      result.Duration,
	})
	return result
}
