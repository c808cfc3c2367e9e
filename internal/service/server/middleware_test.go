package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel zapcore.Level
	}{
		{"ok is debug", http.StatusOK, zapcore.DebugLevel},
		{"not found is debug", http.StatusNotFound, zapcore.DebugLevel},
		{"server error is warn", http.StatusInternalServerError, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			h := LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("hello"))
			}))

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks", nil))

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("got %d log entries, want 1", len(entries))
			}
			e := entries[0]
			if e.Level != tt.wantLevel {
				t.Errorf("level = %v, want %v", e.Level, tt.wantLevel)
			}
			fields := e.ContextMap()
			if fields["status"] != int64(tt.status) {
				t.Errorf("status field = %v, want %d", fields["status"], tt.status)
			}
			if fields["bytes"] != int64(5) {
				t.Errorf("bytes field = %v, want 5", fields["bytes"])
			}
		})
	}
}

func TestRequireBasicAuth_Disabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RequireBasicAuth("", "", zap.NewNop())(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") != "" {
		t.Error("unexpected auth challenge")
	}
}
