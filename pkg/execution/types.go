package execution

import (
	"time"

	"github.com/curaious/warden/internal/services/workspace"
)

// Kind selects the backend a request is dispatched to.
type Kind string

const (
	KindShell      Kind = "shell"
	KindFilesystem Kind = "filesystem"
	KindBrowser    Kind = "browser"
	KindSandbox    Kind = "sandbox"
)

// Request is the stable boundary other subsystems use to ask the core to
// act. It is constructed per tool call and never persisted.
type Request struct {
	Kind      Kind                   `json:"type"`
	Operation string                 `json:"operation"`
	Params    map[string]any         `json:"params"`
	User      *workspace.UserContext `json:"user,omitempty"`
}

// Result is the uniform shape every backend returns, so the orchestrator can
// treat them polymorphically. Success is false whenever Error is set.
type Result struct {
	Success   bool      `json:"success"`
	Operation string    `json:"operation"`
	Data      string    `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OK builds a successful result carrying data.
func OK(operation, data string) *Result {
	return &Result{
		Success:   true,
		Operation: operation,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Fail builds a failed result. Backend failures are structured results, not
// Go errors: the orchestrator feeds them back to the model as tool output.
func Fail(operation, errMsg string) *Result {
	return &Result{
		Success:   false,
		Operation: operation,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
}
