package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeStore represents a document store request.
	EventTypeStore EventType = "store_document"
	// EventTypeFetch represents a document fetch request.
	EventTypeFetch EventType = "get_document"
	// EventTypeListVersions represents a version listing request.
	EventTypeListVersions EventType = "get_document_versions"
	// EventTypeListDocuments represents a user document listing request.
	EventTypeListDocuments EventType = "get_user_documents"
)

// Outcomes recorded on events.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// AuditEvent represents a single audit log event.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	ObjectKey string                 `json:"object_key,omitempty"`
	Outcome   string                 `json:"outcome"`
	Memo      string                 `json:"memo,omitempty"`
	ClientIP  string                 `json:"client_ip,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Duration  time.Duration          `json:"duration_ms"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// MarshalJSON reports the duration in milliseconds, as the field name says.
func (e *AuditEvent) MarshalJSON() ([]byte, error) {
	type alias AuditEvent
	return json.Marshal(&struct {
		*alias
		Duration float64 `json:"duration_ms"`
	}{
		alias:    (*alias)(e),
		Duration: float64(e.Duration) / float64(time.Millisecond),
	})
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log records an audit event.
	Log(event *AuditEvent) error

	// LogOperation records the outcome of one helper operation.
	LogOperation(eventType EventType, objectKey, outcome, memo string, err error, duration time.Duration, metadata map[string]interface{})

	// Events returns the buffered events, oldest first.
	Events() []*AuditEvent
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu        sync.Mutex
	events    []*AuditEvent
	maxEvents int
	writer    EventWriter
	dropped   int
}

// NewLogger creates a new audit logger keeping at most maxEvents in memory.
// A nil writer writes JSON lines to stdout.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	if writer == nil {
		writer = NewJSONWriter(os.Stdout)
	}
	if maxEvents <= 0 {
		maxEvents = 1
	}

	return &auditLogger{
		events:    make([]*AuditEvent, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

// Log records an audit event. Writer failures are counted, never returned,
// so auditing cannot fail a request.
func (l *auditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.WriteEvent(event); err != nil {
		l.dropped++
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}
	return nil
}

// LogOperation records the outcome of one helper operation.
func (l *auditLogger) LogOperation(eventType EventType, objectKey, outcome, memo string, err error, duration time.Duration, metadata map[string]interface{}) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		ObjectKey: objectKey,
		Outcome:   outcome,
		Memo:      memo,
		Duration:  duration,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if id, ok := metadata["request_id"].(string); ok {
		event.RequestID = id
	}
	if ip, ok := metadata["client_ip"].(string); ok {
		event.ClientIP = ip
	}

	_ = l.Log(event)
}

// Events returns a copy of the buffered events.
func (l *auditLogger) Events() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}

// JSONWriter writes one JSON document per event.
type JSONWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONWriter returns a writer emitting JSON lines to w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{w: w}
}

// WriteEvent implements EventWriter.
func (j *JSONWriter) WriteEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Discard drops every event; used when audit output is disabled but the
// in-memory buffer is still wanted.
type Discard struct{}

// WriteEvent implements EventWriter.
func (Discard) WriteEvent(*AuditEvent) error { return nil }
