package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/device-services/dsc/internal/provider"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Subject   string                 `json:"subject"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMs int64                  `json:"latencyMs"`
}

// userKey is the context key the auth middleware stores the subject under.
type userKey struct{}

// WithUser returns a context carrying the authenticated subject for audit.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// Logger writes append-only JSONL audit records for device actions:
// position acquisitions, watch lifecycle, record commits and sync runs.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
}

// NewLogger creates an audit logger writing to audit.jsonl under logDir.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	filePath := filepath.Join(logDir, "audit.jsonl")

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
	}, nil
}

// LogAction logs an action against a subject (a provider ID, watch ID, sync
// source or record ID) with its outcome and latency.
func (l *Logger) LogAction(ctx context.Context, action, subject, outcome string, latency time.Duration) {
	l.write(Entry{
		Timestamp: time.Now().UTC(),
		User:      userFromContext(ctx),
		Subject:   subject,
		Action:    action,
		Outcome:   outcome,
		Code:      outcome,
		LatencyMs: latency.Milliseconds(),
	})
}

// LogDetailedAction logs an action with parameters, deriving the code from
// the error when one is present.
func (l *Logger) LogDetailedAction(ctx context.Context, action, subject string, params map[string]interface{}, err error, latency time.Duration) {
	outcome := "SUCCESS"
	if err != nil {
		outcome = "ERROR"
	}
	l.write(Entry{
		Timestamp: time.Now().UTC(),
		User:      userFromContext(ctx),
		Subject:   subject,
		Action:    action,
		Params:    params,
		Outcome:   outcome,
		Code:      codeFromError(err),
		LatencyMs: latency.Milliseconds(),
	})
}

func (l *Logger) write(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal audit entry: %v\n", err)
		return
	}

	if _, err := l.file.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write audit entry: %v\n", err)
		return
	}

	if err := l.file.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to sync audit log: %v\n", err)
	}
}

func userFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userKey{}).(string); ok && user != "" {
		return user
	}
	return "unknown"
}

// codeFromError maps normalized location errors to audit codes.
func codeFromError(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, provider.ErrPermissionDenied):
		return "PERMISSION_DENIED"
	case errors.Is(err, provider.ErrPositionUnavailable):
		return "POSITION_UNAVAILABLE"
	case errors.Is(err, provider.ErrTimeout):
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

// Close closes the audit logger and its file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// FilePath returns the path of the audit log file.
func (l *Logger) FilePath() string {
	return l.filePath
}

// Rotate renames the current log file with a timestamp suffix and starts a
// fresh one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
		l.file = nil
	}

	timestamp := time.Now().Format("20060102-150405")
	rotatedPath := fmt.Sprintf("%s.%s", l.filePath, timestamp)

	if err := os.Rename(l.filePath, rotatedPath); err != nil {
		// Keep logging to the original path; the closed handle must not
		// linger.
		if file, reopenErr := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); reopenErr == nil {
			l.file = file
		}
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open new log file: %w", err)
	}

	l.file = file
	return nil
}
