package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const authRealm = `Basic realm="batchfetch"`

// statusRecorder captures the status code and body size of a response
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// LoggingMiddleware logs each request; server errors are logged at warn level
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log := logger.Debug
			if rec.status >= http.StatusInternalServerError {
				log = logger.Warn
			}
			log("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// RequireBasicAuth rejects requests whose credentials do not match.
// An empty username disables the check.
func RequireBasicAuth(username, password string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if username == "" {
			return next
		}
		wantUser, wantPass := []byte(username), []byte(password)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if ok &&
				subtle.ConstantTimeCompare([]byte(user), wantUser) == 1 &&
				subtle.ConstantTimeCompare([]byte(pass), wantPass) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			if ok {
				logger.Warn("rejected api credentials",
					zap.String("username", user),
					zap.String("remote_addr", r.RemoteAddr))
			}
			w.Header().Set("WWW-Authenticate", authRealm)
			http.Error(w, "authentication required", http.StatusUnauthorized)
		})
	}
}
