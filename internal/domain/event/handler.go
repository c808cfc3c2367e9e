package event

import (
	"sync"

	"go.uber.org/zap"
)

// LoggingHandler logs all events
type LoggingHandler struct {
	logger *zap.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger *zap.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger}
}

// Handle logs the event
func (h *LoggingHandler) Handle(event DomainEvent) error {
	switch e := event.(type) {
	case BatchStarted:
		h.logger.Info("batch started",
			zap.String("task_id", e.TaskID),
			zap.Int("batch", e.BatchNumber),
			zap.Int("files", e.Files),
			zap.Uint64("bytes", e.Bytes),
			zap.Int("skipped", e.Skipped),
		)
	case FileCompleted:
		h.logger.Debug("file completed",
			zap.String("task_id", e.TaskID),
			zap.String("path", e.Path),
			zap.Uint64("size", e.Size),
			zap.Bool("verified", e.Verified),
			zap.Duration("duration", e.Duration),
		)
	case FileFailed:
		h.logger.Warn("file failed",
			zap.String("task_id", e.TaskID),
			zap.String("path", e.Path),
			zap.String("error", e.Error),
			zap.Uint32("attempts", e.Attempts),
			zap.Bool("fatal", e.Fatal),
		)
	case FileSkipped:
		h.logger.Debug("file skipped",
			zap.String("task_id", e.TaskID),
			zap.String("path", e.Path),
			zap.String("reason", e.Reason),
		)
	case BatchFinished:
		h.logger.Info("batch finished",
			zap.String("task_id", e.TaskID),
			zap.Int("batch", e.BatchNumber),
			zap.Int("completed", e.Completed),
			zap.Int("failed", e.Failed),
			zap.Int("skipped", e.Skipped),
			zap.Int("not_dispatched", e.NotDispatched),
			zap.Bool("disk_exhausted", e.DiskExhausted),
			zap.Bool("cancelled", e.Cancelled),
			zap.Duration("duration", e.Duration),
		)
	case TaskStatusChanged:
		h.logger.Info("task status changed",
			zap.String("task_id", e.TaskID),
			zap.String("from", e.From),
			zap.String("to", e.To),
			zap.Int("current_batch", e.CurrentBatch),
			zap.String("reason", e.Reason),
		)
	default:
		h.logger.Debug("domain event",
			zap.String("event", event.EventName()),
			zap.Time("occurred_at", event.OccurredAt()),
		)
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *LoggingHandler) HandledEvents() []string {
	return []string{Wildcard}
}

// MetricsHandler counts transfer outcomes across batches
type MetricsHandler struct {
	mu             sync.Mutex
	filesCompleted int64
	filesVerified  int64
	filesFailed    int64
	filesSkipped   int64
	bytesCompleted int64
	batches        int64
}

// NewMetricsHandler creates a new MetricsHandler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Handle updates metrics based on the event
func (h *MetricsHandler) Handle(event DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e := event.(type) {
	case FileCompleted:
		if e.Verified {
			h.filesVerified++
		} else {
			h.filesCompleted++
			h.bytesCompleted += int64(e.Size)
		}
	case FileFailed:
		h.filesFailed++
	case FileSkipped:
		h.filesSkipped++
	case BatchFinished:
		h.batches++
	}
	return nil
}

// HandledEvents returns the events this handler handles
func (h *MetricsHandler) HandledEvents() []string {
	return []string{
		NameFileCompleted,
		NameFileFailed,
		NameFileSkipped,
		NameBatchFinished,
	}
}

// GetMetrics returns current metrics
func (h *MetricsHandler) GetMetrics() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return map[string]int64{
		"files_completed": h.filesCompleted,
		"files_verified":  h.filesVerified,
		"files_failed":    h.filesFailed,
		"files_skipped":   h.filesSkipped,
		"bytes_completed": h.bytesCompleted,
		"batches":         h.batches,
	}
}

// FuncHandler adapts a function to EventHandler for the given event names
type FuncHandler struct {
	names []string
	fn    func(DomainEvent)
}

// NewFuncHandler creates a FuncHandler; no names subscribes to every event
func NewFuncHandler(fn func(DomainEvent), names ...string) *FuncHandler {
	if len(names) == 0 {
		names = []string{Wildcard}
	}
	return &FuncHandler{names: names, fn: fn}
}

// Handle calls the wrapped function
func (h *FuncHandler) Handle(event DomainEvent) error {
	h.fn(event)
	return nil
}

// HandledEvents returns the subscribed names
func (h *FuncHandler) HandledEvents() []string {
	return h.names
}
