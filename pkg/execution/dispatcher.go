package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/curaious/warden/internal/perrors"
)

// Backend is one concrete execution surface (shell, filesystem, browser,
// sandbox). Implementations always return a non-nil result.
type Backend interface {
	Execute(ctx context.Context, req *Request) *Result
}

// Dispatcher routes requests to the backend registered for their kind.
type Dispatcher struct {
	backends map[Kind]Backend
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{backends: make(map[Kind]Backend)}
}

// Register binds a backend to a kind. Later registrations for the same kind
// replace earlier ones.
func (d *Dispatcher) Register(kind Kind, backend Backend) {
	d.backends[kind] = backend
}

// Dispatch routes the request to its backend. An unknown kind is a
// configuration error, not a runtime failure of the action itself.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	backend, ok := d.backends[req.Kind]
	if !ok {
		err := perrors.NewErrConfiguration("no backend registered for execution kind", fmt.Errorf("unknown kind %q", req.Kind), map[string]interface{}{
			"kind":      req.Kind,
			"operation": req.Operation,
		})
		return nil, err
	}

	slog.DebugContext(ctx, "dispatching execution request",
		"kind", req.Kind,
		"operation", req.Operation,
	)
	return backend.Execute(ctx, req), nil
}
