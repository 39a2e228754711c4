package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/warden/internal/perrors"
	"github.com/curaious/warden/internal/services/audit"
)

const (
	actionRequested = "approval_requested"
	actionResolved  = "approval_resolved"
)

// ApprovalService is the risk-tiered gate in front of high-risk tool calls.
// The request table is owned here behind the mutex; conversation loops never
// see the raw map. Each request gets a resolution channel at creation time,
// before any decision can land, so a waiter can never miss the notification.
type ApprovalService struct {
	manualApproval bool
	auditor        audit.Recorder

	mu       sync.RWMutex
	requests map[string]*Request
	waiters  map[string]*waiter
}

// waiter publishes one decision to any number of Await callers. The status
// field is written before done is closed, and closing done is the only
// publication point, so every receiver sees the decision.
type waiter struct {
	status Status
	done   chan struct{}
}

func NewApprovalService(auditor audit.Recorder, manualApproval bool) *ApprovalService {
	return &ApprovalService{
		manualApproval: manualApproval,
		auditor:        auditor,
		requests:       make(map[string]*Request),
		waiters:        make(map[string]*waiter),
	}
}

// Request creates an approval request and resolves it according to the risk
// tier. CRITICAL is always denied. HIGH is denied unless manual-approval mode
// is on, in which case it stays PENDING until an external decision arrives.
// MEDIUM and LOW auto-approve. Creation and any synchronous resolution are
// both written to the audit trail.
func (s *ApprovalService) Request(ctx context.Context, userID, action, detailsJSON string, risk Risk) (*Request, error) {
	req := &Request{
		ID:          uuid.NewString(),
		UserID:      userID,
		Action:      action,
		DetailsJSON: detailsJSON,
		Risk:        risk,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	switch risk {
	case RiskCritical:
		req.Status = StatusDenied
		req.ResolvedAt = req.CreatedAt
		slog.WarnContext(ctx, "critical-risk action denied", slog.String("action", action), slog.String("user_id", userID))
	case RiskHigh:
		if !s.manualApproval {
			req.Status = StatusDenied
			req.ResolvedAt = req.CreatedAt
		}
	case RiskMedium, RiskLow:
		req.Status = StatusAutoApproved
		req.ResolvedAt = req.CreatedAt
	default:
		return nil, perrors.NewErrInvalidRequest("unknown risk level", nil, map[string]interface{}{"risk": string(risk)})
	}

	s.mu.Lock()
	s.requests[req.ID] = req
	if req.Status == StatusPending {
		s.waiters[req.ID] = &waiter{done: make(chan struct{})}
	}
	s.mu.Unlock()

	if err := s.auditor.Record(ctx, userID, actionRequested, action, detailsJSON, string(StatusPending)); err != nil {
		slog.ErrorContext(ctx, "failed to audit approval request", slog.Any("error", err))
	}
	if req.Status.Terminal() {
		if err := s.auditor.Record(ctx, userID, actionResolved, action, detailsJSON, string(req.Status)); err != nil {
			slog.ErrorContext(ctx, "failed to audit approval resolution", slog.Any("error", err))
		}
	}

	return req, nil
}

func (s *ApprovalService) Get(ctx context.Context, id string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, perrors.NewErrNotFound("approval request not found", nil, map[string]interface{}{"id": id})
	}
	cp := *req
	return &cp, nil
}

func (s *ApprovalService) ListPendingByUser(ctx context.Context, userID string) []*Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Request
	for _, req := range s.requests {
		if req.UserID == userID && req.Status == StatusPending {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out
}

// Approve transitions a PENDING request to APPROVED. Calling it on an
// already-terminal request is a no-op that returns the existing record and
// writes no duplicate audit entry.
func (s *ApprovalService) Approve(ctx context.Context, id string) (*Request, error) {
	return s.resolve(ctx, id, StatusApproved)
}

// Deny transitions a PENDING request to DENIED with the same idempotence
// guarantees as Approve.
func (s *ApprovalService) Deny(ctx context.Context, id string) (*Request, error) {
	return s.resolve(ctx, id, StatusDenied)
}

func (s *ApprovalService) resolve(ctx context.Context, id string, to Status) (*Request, error) {
	s.mu.Lock()
	req, ok := s.requests[id]
	if !ok {
		s.mu.Unlock()
		return nil, perrors.NewErrNotFound("approval request not found", nil, map[string]interface{}{"id": id})
	}
	if req.Status.Terminal() {
		cp := *req
		s.mu.Unlock()
		return &cp, nil
	}

	req.Status = to
	req.ResolvedAt = time.Now().UTC()
	w := s.waiters[id]
	delete(s.waiters, id)
	cp := *req
	s.mu.Unlock()

	if w != nil {
		w.status = to
		close(w.done)
	}

	if err := s.auditor.Record(ctx, cp.UserID, actionResolved, cp.Action, cp.DetailsJSON, string(to)); err != nil {
		slog.ErrorContext(ctx, "failed to audit approval resolution", slog.Any("error", err))
	}

	return &cp, nil
}

// ApplyRemoteDecision resolves a local PENDING request with a decision that
// was made on another replica. The originating replica already audited the
// resolution, so no audit entry is written here. Unknown ids are ignored: the
// request lives on whichever replica created it.
func (s *ApprovalService) ApplyRemoteDecision(id string, to Status) {
	if !to.Terminal() {
		return
	}

	s.mu.Lock()
	req, ok := s.requests[id]
	if !ok || req.Status.Terminal() {
		s.mu.Unlock()
		return
	}

	req.Status = to
	req.ResolvedAt = time.Now().UTC()
	w := s.waiters[id]
	delete(s.waiters, id)
	s.mu.Unlock()

	if w != nil {
		w.status = to
		close(w.done)
	}
}

// Await blocks until the request resolves, the timeout elapses, or ctx is
// cancelled. A request still PENDING when the window closes is treated as an
// implicit denial: a pending request must never block a conversation
// indefinitely.
func (s *ApprovalService) Await(ctx context.Context, id string, timeout time.Duration) (Status, error) {
	s.mu.RLock()
	req, ok := s.requests[id]
	if !ok {
		s.mu.RUnlock()
		return "", perrors.NewErrNotFound("approval request not found", nil, map[string]interface{}{"id": id})
	}
	if req.Status.Terminal() {
		status := req.Status
		s.mu.RUnlock()
		return status, nil
	}
	w := s.waiters[id]
	s.mu.RUnlock()

	// A nil done channel never fires, so a pending request without a waiter
	// falls through to the timeout.
	var done chan struct{}
	if w != nil {
		done = w.done
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return w.status, nil
	case <-timer.C:
		return StatusDenied, nil
	case <-ctx.Done():
		return StatusDenied, ctx.Err()
	}
}
