package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventCompileStart    AuditEventType = "compile.start"
	AuditEventCompileComplete AuditEventType = "compile.complete"
	AuditEventCompileCanceled AuditEventType = "compile.canceled"
	AuditEventCompileError    AuditEventType = "compile.error"
	AuditEventOutputWrite     AuditEventType = "output.write"
	AuditEventExtensionError  AuditEventType = "extension.error"
)

// AuditEvent is one line of the build audit trail.
type AuditEvent struct {
	Timestamp    time.Time      `json:"timestamp"`
	EventType    AuditEventType `json:"event_type"`
	SessionID    string         `json:"session_id"`
	InvocationID string         `json:"invocation_id,omitempty"`
	Tool         string         `json:"tool,omitempty"`
	Success      bool           `json:"success"`
	Duration     time.Duration  `json:"duration_ms,omitempty"`
	Message      string         `json:"message,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	ErrorDetail  string         `json:"error_detail,omitempty"`
}

// AuditLogger appends audit events as JSON lines.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // File path or "stdout"/"stderr"
	SessionID  string
}

// NewAuditLogger creates a new audit logger. A disabled config yields a
// logger that drops every event.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil || !config.Enabled {
		return &AuditLogger{}, nil
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}
	return NewAuditWriter(writer, config.SessionID), nil
}

// NewAuditWriter returns an enabled logger writing to w.
func NewAuditWriter(w io.Writer, sessionID string) *AuditLogger {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return &AuditLogger{writer: w, sessionID: sessionID, enabled: true}
}

// Enabled reports whether events are written.
func (l *AuditLogger) Enabled() bool {
	return l != nil && l.enabled
}

// Log writes an audit event.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogCompileStart records the start of an invocation.
func (l *AuditLogger) LogCompileStart(invocationID, tool string, units int, options []string) {
	_ = l.Log(&AuditEvent{
		EventType:    AuditEventCompileStart,
		InvocationID: invocationID,
		Tool:         tool,
		Success:      true,
		Message:      fmt.Sprintf("Compiling %d units with %s", units, tool),
		Details: map[string]any{
			"units":   units,
			"options": options,
		},
	})
}

// LogCompileEnd records how an invocation finished.
func (l *AuditLogger) LogCompileEnd(invocationID, tool, outcome string, duration time.Duration, outputs, errorCount int) {
	eventType := AuditEventCompileComplete
	if outcome == OutcomeCanceled {
		eventType = AuditEventCompileCanceled
	}
	_ = l.Log(&AuditEvent{
		EventType:    eventType,
		InvocationID: invocationID,
		Tool:         tool,
		Success:      outcome == OutcomeSucceeded,
		Duration:     duration,
		Message:      fmt.Sprintf("Compilation %s", outcome),
		Details: map[string]any{
			"outputs":     outputs,
			"error_count": errorCount,
		},
	})
}

// LogCompileError records an internal fault.
func (l *AuditLogger) LogCompileError(invocationID, tool string, err error) {
	_ = l.Log(&AuditEvent{
		EventType:    AuditEventCompileError,
		InvocationID: invocationID,
		Tool:         tool,
		Success:      false,
		Message:      "Compilation aborted",
		ErrorDetail:  err.Error(),
	})
}

// LogOutput records one committed output file.
func (l *AuditLogger) LogOutput(invocationID, path string, size int, generated bool, sources []string) {
	_ = l.Log(&AuditEvent{
		EventType:    AuditEventOutputWrite,
		InvocationID: invocationID,
		Success:      true,
		Message:      fmt.Sprintf("Wrote %s", path),
		Details: map[string]any{
			"path":      path,
			"size":      size,
			"generated": generated,
			"sources":   sources,
		},
	})
}

// LogExtensionError records a compiler extension failure.
func (l *AuditLogger) LogExtensionError(invocationID, extension string, err error) {
	_ = l.Log(&AuditEvent{
		EventType:    AuditEventExtensionError,
		InvocationID: invocationID,
		Success:      false,
		Message:      fmt.Sprintf("Extension %s failed", extension),
		ErrorDetail:  err.Error(),
	})
}

// Close closes the audit logger (if using a file).
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	if closer, ok := l.writer.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			return closer.Close()
		}
	}
	return nil
}
