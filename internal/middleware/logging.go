package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kenneth/identity-helper/internal/config"
	"github.com/sirupsen/logrus"
)

// operations maps each envelope route to the helper operation it serves.
var operations = map[string]string{
	"/v1/store-document":        "StoreDocument",
	"/v1/get-document":          "GetDocument",
	"/v1/get-document-versions": "GetDocumentVersions",
	"/v1/get-user-documents":    "GetUserDocuments",
}

// operationName returns the helper operation behind an envelope route, or ""
// for anything else.
func operationName(method, path string) string {
	if method != http.MethodPost {
		return ""
	}
	return operations[path]
}

// AccessEntry is one access log record. Envelope sizes are the sealed bytes
// actually read from and written to the wire.
type AccessEntry struct {
	RequestID   string            `json:"request_id,omitempty"`
	Operation   string            `json:"operation,omitempty"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	RemoteAddr  string            `json:"remote_addr"`
	Status      int               `json:"status"`
	Outcome     string            `json:"outcome"`
	DurationMs  int64             `json:"duration_ms"`
	EnvelopeIn  int64             `json:"envelope_in_bytes"`
	EnvelopeOut int64             `json:"envelope_out_bytes"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// LoggingMiddleware writes one access record per request. Envelope routes
// log at info (warn on 4xx, error on 5xx); operational endpoints log at debug
// so health checks and scrapes do not drown the envelope traffic.
func LoggingMiddleware(logger *logrus.Logger, cfg *config.LoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			body := &countingBody{ReadCloser: r.Body}
			if r.Body != nil {
				r.Body = body
			}
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			entry := newAccessEntry(r, rw, body.n, time.Since(start), cfg)
			logAccess(logger, entry, cfg.AccessLogFormat)
		})
	}
}

// countingBody counts the envelope bytes the handler consumed.
type countingBody struct {
	io.ReadCloser
	n int64
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	return n, err
}

// responseWriter captures the status code and the sealed response size.
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

func newAccessEntry(r *http.Request, rw *responseWriter, in int64, duration time.Duration, cfg *config.LoggingConfig) *AccessEntry {
	entry := &AccessEntry{
		RequestID:   r.Header.Get(RequestIDHeader),
		Operation:   operationName(r.Method, r.URL.Path),
		Method:      r.Method,
		Path:        r.URL.Path,
		RemoteAddr:  r.RemoteAddr,
		Status:      rw.statusCode,
		Outcome:     outcome(rw.statusCode),
		DurationMs:  duration.Milliseconds(),
		EnvelopeIn:  in,
		EnvelopeOut: rw.bytesWritten,
	}

	if cfg.AccessLogFormat == "json" {
		entry.Headers = make(map[string]string, len(r.Header))
		for name, values := range r.Header {
			lower := strings.ToLower(name)
			if shouldRedactHeader(lower, cfg.RedactHeaders) {
				entry.Headers[lower] = "[REDACTED]"
			} else {
				entry.Headers[lower] = strings.Join(values, ",")
			}
		}
	}
	return entry
}

// outcome classifies a status. A sealed 200 may still carry a signed FAIL memo.
func outcome(status int) string {
	switch {
	case status >= 500:
		return "fault"
	case status >= 400:
		return "rejected"
	default:
		return "sealed"
	}
}

func shouldRedactHeader(headerName string, redactHeaders []string) bool {
	for _, redact := range redactHeaders {
		if strings.EqualFold(redact, headerName) {
			return true
		}
	}
	return false
}

func logAccess(logger *logrus.Logger, entry *AccessEntry, format string) {
	var e *logrus.Entry
	if format == "json" {
		data, err := json.Marshal(entry)
		if err != nil {
			format = "default"
		} else {
			e = logger.WithField("access", string(data))
		}
	}
	if format != "json" {
		fields := logrus.Fields{
			"method":             entry.Method,
			"path":               entry.Path,
			"remote_addr":        entry.RemoteAddr,
			"status":             entry.Status,
			"outcome":            entry.Outcome,
			"duration_ms":        entry.DurationMs,
			"envelope_in_bytes":  entry.EnvelopeIn,
			"envelope_out_bytes": entry.EnvelopeOut,
		}
		if entry.Operation != "" {
			fields["operation"] = entry.Operation
		}
		if entry.RequestID != "" {
			fields["request_id"] = entry.RequestID
		}
		e = logger.WithFields(fields)
	}

	switch {
	case entry.Operation == "" && isOperationalPath(entry.Path):
		e.Debug("Operational request")
	case entry.Status >= 500:
		e.Error("Envelope request failed")
	case entry.Status >= 400:
		e.Warn("Envelope request rejected")
	case entry.Operation == "":
		e.Info("HTTP request")
	default:
		e.Info("Envelope request")
	}
}
