package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/kenneth/identity-helper/internal/helper"
	"github.com/kenneth/identity-helper/internal/metrics"
	"github.com/sirupsen/logrus"
)

// DefaultMaxBodyBytes bounds an envelope when no limit is configured.
const DefaultMaxBodyBytes int64 = 4 << 20

// Route paths.
const (
	PathStoreDocument       = "/v1/store-document"
	PathGetDocument         = "/v1/get-document"
	PathGetDocumentVersions = "/v1/get-document-versions"
	PathGetUserDocuments    = "/v1/get-user-documents"
)

// Engine is the envelope protocol the handler forwards request bodies to.
type Engine interface {
	StoreDocument(ctx context.Context, envelope []byte) ([]byte, error)
	GetDocument(ctx context.Context, envelope []byte) ([]byte, error)
	GetDocumentVersions(ctx context.Context, envelope []byte) ([]byte, error)
	GetUserDocuments(ctx context.Context, envelope []byte) ([]byte, error)
}

type operation func(ctx context.Context, envelope []byte) ([]byte, error)

// Handler handles HTTP requests for helper operations.
type Handler struct {
	engine       Engine
	logger       *logrus.Logger
	metrics      *metrics.Metrics
	maxBodyBytes int64
	readyTimeout time.Duration
	readyChecks  []metrics.Check
}

// Option configures a Handler.
type Option func(*Handler)

// WithMaxBodyBytes bounds the envelope size.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithReadinessChecks sets the dependencies probed by /ready.
func WithReadinessChecks(timeout time.Duration, checks ...metrics.Check) Option {
	return func(h *Handler) {
		h.readyTimeout = timeout
		h.readyChecks = checks
	}
}

// NewHandler creates a new API handler.
func NewHandler(engine Engine, logger *logrus.Logger, m *metrics.Metrics, opts ...Option) *Handler {
	h := &Handler{
		engine:       engine,
		logger:       logger,
		metrics:      m,
		maxBodyBytes: DefaultMaxBodyBytes,
		readyTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.Handle("/health", h.instrument("/health", metrics.HealthHandler())).Methods("GET")
	r.Handle("/ready", h.instrument("/ready", metrics.ReadinessHandler(h.readyTimeout, h.readyChecks...))).Methods("GET")
	r.Handle("/live", h.instrument("/live", metrics.LivenessHandler())).Methods("GET")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")

	r.HandleFunc(PathStoreDocument, h.handleEnvelope(PathStoreDocument, h.engine.StoreDocument)).Methods("POST")
	r.HandleFunc(PathGetDocument, h.handleEnvelope(PathGetDocument, h.engine.GetDocument)).Methods("POST")
	r.HandleFunc(PathGetDocumentVersions, h.handleEnvelope(PathGetDocumentVersions, h.engine.GetDocumentVersions)).Methods("POST")
	r.HandleFunc(PathGetUserDocuments, h.handleEnvelope(PathGetUserDocuments, h.engine.GetUserDocuments)).Methods("POST")
}

// instrument records request metrics for a plain handler.
func (h *Handler) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.metrics.RecordHTTPRequest(r.Method, route, rw.status, time.Since(start), 0)
	})
}

// handleEnvelope reads the raw envelope, hands it to op and writes back the
// encrypted response untouched.
func (h *Handler) handleEnvelope(route string, op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := getRequestID(r)
		logger := h.logger.WithFields(logrus.Fields{
			"route":      route,
			"request_id": requestID,
		})

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
		if err != nil {
			apiErr := ErrUnreadableBody
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				apiErr = ErrBodyTooLarge
			}
			logger.WithError(err).Warn("Failed to read envelope")
			h.writeError(w, r, route, apiErr.WithRequestID(requestID), start, 0)
			return
		}
		if len(body) == 0 {
			h.writeError(w, r, route, ErrEmptyBody.WithRequestID(requestID), start, 0)
			return
		}

		ctx := helper.WithRequestInfo(r.Context(), helper.RequestInfo{
			ID:       requestID,
			ClientIP: getClientIP(r),
		})

		out, err := op(ctx, body)
		if err != nil {
			apiErr := TranslateError(err)
			entry := logger.WithError(err).WithField("status", apiErr.HTTPStatus)
			if apiErr.HTTPStatus >= http.StatusInternalServerError {
				entry.Error("Envelope request failed")
			} else {
				entry.Warn("Envelope request rejected")
			}
			h.writeError(w, r, route, apiErr.WithRequestID(requestID), start, int64(len(body)))
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", strconv.Itoa(len(out)))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(out); err != nil {
			logger.WithError(err).Debug("Failed to write response")
		}

		h.metrics.RecordHTTPRequest(r.Method, route, http.StatusOK, time.Since(start), int64(len(body)))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, route string, apiErr *APIError, start time.Time, bytes int64) {
	apiErr.WriteJSON(w)
	h.metrics.RecordHTTPRequest(r.Method, route, apiErr.HTTPStatus, time.Since(start), bytes)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
