package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type AuditRepo struct {
	db *sqlx.DB
}

func NewAuditRepo(db *sqlx.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// EnsureSchema creates the audit table if it does not exist. The statement is
// portable between the sqlite and postgres drivers.
func (r *AuditRepo) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_entries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			resource TEXT NOT NULL,
			details TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure audit schema: %w", err)
	}
	return nil
}

func (r *AuditRepo) Insert(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO audit_entries (id, user_id, action, resource, details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.Resource, entry.Details, entry.Status, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepo) ListByUser(ctx context.Context, userID string) ([]*Entry, error) {
	query := `
		SELECT id, user_id, action, resource, details, status, created_at
		FROM audit_entries
		WHERE user_id = $1
		ORDER BY created_at ASC
	`
	var entries []*Entry
	if err := r.db.SelectContext(ctx, &entries, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

func (r *AuditRepo) ListByAction(ctx context.Context, action string) ([]*Entry, error) {
	query := `
		SELECT id, user_id, action, resource, details, status, created_at
		FROM audit_entries
		WHERE action = $1
		ORDER BY created_at ASC
	`
	var entries []*Entry
	if err := r.db.SelectContext(ctx, &entries, query, action); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
