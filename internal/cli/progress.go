package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/vertextoedge/batchfetch/internal/domain/event"
)

const progressTemplate pb.ProgressBarTemplate = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}{{string . "suffix"}}`

// progressHandler draws one byte-based progress bar per batch from domain events
type progressHandler struct {
	w io.Writer

	mu     sync.Mutex
	bar    *pb.ProgressBar
	failed int
}

func newProgressHandler(w io.Writer) *progressHandler {
	return &progressHandler{w: w}
}

// Handle implements event.EventHandler
func (h *progressHandler) Handle(e event.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e := e.(type) {
	case event.BatchStarted:
		h.finish()
		h.failed = 0
		bar := progressTemplate.New(int(e.Bytes))
		bar.SetWriter(h.w)
		bar.Set(pb.Bytes, true)
		bar.Set("prefix", fmt.Sprintf("batch %d (%d files) ", e.BatchNumber, e.Files))
		h.bar = bar.Start()
	case event.FileCompleted:
		if h.bar != nil && !e.Verified {
			h.bar.Add64(int64(e.Size))
		}
	case event.FileFailed:
		h.failed++
		if h.bar != nil {
			h.bar.Set("suffix", fmt.Sprintf(" %d failed", h.failed))
		}
	case event.BatchFinished:
		h.finish()
	}
	return nil
}

// HandledEvents implements event.EventHandler
func (h *progressHandler) HandledEvents() []string {
	return []string{event.NameBatchStarted, event.NameFileCompleted, event.NameFileFailed, event.NameBatchFinished}
}

func (h *progressHandler) finish() {
	if h.bar != nil {
		h.bar.Finish()
		h.bar = nil
	}
}
