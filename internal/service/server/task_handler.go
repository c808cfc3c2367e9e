package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/vertextoedge/batchfetch/internal/domain"
	"go.uber.org/zap"
)

// TaskHandler serves task listings and status reports
type TaskHandler struct {
	tasks  TaskReader
	logger *zap.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks TaskReader, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: logger,
	}
}

// HandleList lists tasks, optionally filtered by ?status=running,failed
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var statuses []domain.TaskStatus
	if q := r.URL.Query().Get("status"); q != "" {
		for _, s := range strings.Split(q, ",") {
			status := domain.TaskStatus(strings.TrimSpace(s))
			if !status.Valid() {
				http.Error(w, "Unknown status: "+s, http.StatusBadRequest)
				return
			}
			statuses = append(statuses, status)
		}
	}

	tasks, err := h.tasks.List(statuses...)
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		http.Error(w, "Failed to list tasks", http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	writeJSON(w, map[string]any{"tasks": tasks})
}

// HandleStatus returns the per-batch status report of one task
func (h *TaskHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.tasks.Status(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, report)
}

// HandleVerify compares the ledger of one task with the disk
func (h *TaskHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	report, err := h.tasks.Verify(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, report)
}

func (h *TaskHandler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrTaskNotFound) {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}
	h.logger.Error("failed to load task", zap.Error(err))
	http.Error(w, "Failed to load task", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
