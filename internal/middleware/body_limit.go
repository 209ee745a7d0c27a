package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// BodyLimitMiddleware rejects requests whose declared body exceeds maxBytes
// before any handler reads them, and caps the body reader for requests that
// do not declare a length. Health and metrics endpoints are never limited.
func BodyLimitMiddleware(maxBytes int64, logger *logrus.Logger) func(http.Handler) http.Handler {
	// No limit configured
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOperationalPath(r.URL.Path) || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > maxBytes {
				logger.WithFields(logrus.Fields{
					"path":           r.URL.Path,
					"method":         r.Method,
					"content_length": r.ContentLength,
					"max_bytes":      maxBytes,
				}).Warn("Request body exceeds limit")

				writeJSONError(w, http.StatusRequestEntityTooLarge, "EntityTooLarge", "The envelope exceeds the maximum allowed size.")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func isOperationalPath(path string) bool {
	switch path {
	case "/health", "/ready", "/live", "/metrics":
		return true
	}
	return false
}

// writeJSONError writes an error body in the same shape as the API handler.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}{code, message})
}
