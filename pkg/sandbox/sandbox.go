package sandbox

// Package sandbox runs untrusted code snippets in isolated containers, with
// a degraded local fallback when no container backend is reachable.

import (
	"context"
	"fmt"
	"time"
)

// Language selects the interpreter a task runs under.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
)

// Task is one code snippet to execute. Input, when set, is fed to the
// process on stdin.
type Task struct {
	ID       string        `json:"id"`
	Language Language      `json:"language"`
	Code     string        `json:"code"`
	Input    string        `json:"input,omitempty"`
	Timeout  time.Duration `json:"timeout"`
}

// TaskResult reports the outcome of a task. Secure is false when the code
// ran outside a container, so callers can surface the degraded isolation.
type TaskResult struct {
	ID        string        `json:"id"`
	Success   bool          `json:"success"`
	Output    string        `json:"output"`
	Error     string        `json:"error,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Duration  time.Duration `json:"duration"`
	Secure    bool          `json:"secure"`
	Timestamp time.Time     `json:"timestamp"`
}

// Manager defines the lifecycle operations for sandboxes.
type Manager interface {
	// CreateSandbox ensures a sandbox exists for the given session, creating one if needed.
	CreateSandbox(ctx context.Context, image string, sessionID string) (*Handle, error)
	// GetSandbox returns the handle for an existing sandbox.
	GetSandbox(ctx context.Context, sessionID string) (*Handle, error)
	// DeleteSandbox tears down the sandbox for the given session.
	DeleteSandbox(ctx context.Context, sessionID string) error
}

// Handle represents a running sandbox bound to a session.
type Handle struct {
	SessionID string
	Name      string
	IP        string
	Port      int
}

// NotFoundError is returned when a sandbox for a given session does not exist.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sandbox not found for session %s", e.SessionID)
}
