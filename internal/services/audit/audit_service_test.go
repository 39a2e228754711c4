package audit

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestService(t *testing.T) *AuditService {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewAuditRepo(db)
	require.NoError(t, repo.EnsureSchema(context.Background()))

	return NewAuditService(repo)
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Record(ctx, "user-1", "approval_requested", "run_shell", `{"command":"ls"}`, "PENDING"))
	require.NoError(t, svc.Record(ctx, "user-1", "approval_resolved", "run_shell", `{"command":"ls"}`, "APPROVED"))
	require.NoError(t, svc.Record(ctx, "user-2", "approval_requested", "delete_file", `{"path":"x"}`, "DENIED"))

	entries, err := svc.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "approval_requested", entries[0].Action)
	require.Equal(t, "APPROVED", entries[1].Status)
	require.NotEmpty(t, entries[0].ID)
	require.False(t, entries[0].CreatedAt.IsZero())

	byAction, err := svc.ListByAction(ctx, "approval_requested")
	require.NoError(t, err)
	require.Len(t, byAction, 2)
}

func TestListUnknownUserIsEmpty(t *testing.T) {
	svc := newTestService(t)

	entries, err := svc.ListByUser(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, entries)
}
