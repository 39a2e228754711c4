package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Recorder is the write-side interface consumed by the approval manager and
// the execution controllers.
type Recorder interface {
	Record(ctx context.Context, userID, action, resource, details, status string) error
}

type AuditService struct {
	repo *AuditRepo
}

func NewAuditService(repo *AuditRepo) *AuditService {
	return &AuditService{repo: repo}
}

// Record appends one entry to the trail. Failures are returned but callers
// on the hot path log and continue; the action itself already happened or was
// already denied by the time the trail is written.
func (s *AuditService) Record(ctx context.Context, userID, action, resource, details, status string) error {
	entry := &Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Details:   details,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		slog.ErrorContext(ctx, "audit record failed", slog.Any("error", err), slog.String("action", action))
		return err
	}
	return nil
}

func (s *AuditService) ListByUser(ctx context.Context, userID string) ([]*Entry, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *AuditService) ListByAction(ctx context.Context, action string) ([]*Entry, error) {
	return s.repo.ListByAction(ctx, action)
}
