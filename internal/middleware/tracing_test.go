package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func withSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[string]string {
	attrs := make(map[string]string)
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	return attrs
}

func TestTracingMiddleware_Redaction(t *testing.T) {
	recorder := withSpanRecorder(t)

	handler := TracingMiddleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	req := httptest.NewRequest("POST", "/v1/store-document", strings.NewReader("envelope"))
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(RequestIDHeader, "req-1")
	req.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "Helper StoreDocument", spans[0].Name())

	attrs := spanAttributes(spans[0])
	assert.Equal(t, "[REDACTED]", attrs["http.request.header.authorization"])
	assert.Equal(t, "[REDACTED]", attrs["http.remote_addr"])
	assert.Equal(t, "application/octet-stream", attrs["http.request.header.content-type"])
	assert.Equal(t, "req-1", attrs["http.request_id"])
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestTracingMiddleware_NoRedaction(t *testing.T) {
	recorder := withSpanRecorder(t)

	handler := TracingMiddleware(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	handler.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP GET", spans[0].Name())
	attrs := spanAttributes(spans[0])
	assert.Equal(t, "Bearer token", attrs["http.request.header.authorization"])
	assert.Equal(t, "203.0.113.9", attrs["http.remote_addr"])
}

func TestTracingMiddleware_ErrorStatus(t *testing.T) {
	recorder := withSpanRecorder(t)

	handler := TracingMiddleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/get-document", strings.NewReader("x")))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.status_code", http.StatusBadGateway))
}

func TestTracingMiddleware_PropagatesContext(t *testing.T) {
	withSpanRecorder(t)

	var sawSpan bool
	handler := TracingMiddleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSpan = traceSpanValid(r)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/v1/get-user-documents", strings.NewReader("x")))

	assert.True(t, sawSpan, "handler context must carry the server span")
}

func TestGetSpanName(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{"POST", "/v1/store-document", "Helper StoreDocument"},
		{"POST", "/v1/get-document", "Helper GetDocument"},
		{"POST", "/v1/get-document-versions", "Helper GetDocumentVersions"},
		{"POST", "/v1/get-user-documents", "Helper GetUserDocuments"},
		{"GET", "/v1/get-document", "HTTP GET"},
		{"GET", "/metrics", "HTTP GET"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getSpanName(tt.method, tt.path), tt.method+" "+tt.path)
	}
}

func traceSpanValid(r *http.Request) bool {
	return trace.SpanContextFromContext(r.Context()).IsValid()
}
