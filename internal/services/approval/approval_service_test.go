package approval

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/curaious/warden/internal/services/audit"
)

func newTestAudit(t *testing.T) *audit.AuditService {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := audit.NewAuditRepo(db)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return audit.NewAuditService(repo)
}

func TestCriticalIsAlwaysDenied(t *testing.T) {
	ctx := context.Background()
	auditor := newTestAudit(t)
	svc := NewApprovalService(auditor, true)

	req, err := svc.Request(ctx, "user-1", "wipe_disk", `{"device":"/dev/sda"}`, RiskCritical)
	require.NoError(t, err)
	require.Equal(t, StatusDenied, req.Status)

	// One entry for the request, one for the resolution.
	entries, err := auditor.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "approval_requested", entries[0].Action)
	require.Equal(t, "approval_resolved", entries[1].Action)
	require.Equal(t, "DENIED", entries[1].Status)
}

func TestHighDeniedWithoutManualApproval(t *testing.T) {
	ctx := context.Background()
	svc := NewApprovalService(newTestAudit(t), false)

	req, err := svc.Request(ctx, "user-1", "run_shell", `{"command":"ls"}`, RiskHigh)
	require.NoError(t, err)
	require.Equal(t, StatusDenied, req.Status)
}

func TestHighPendingWithManualApproval(t *testing.T) {
	ctx := context.Background()
	svc := NewApprovalService(newTestAudit(t), true)

	req, err := svc.Request(ctx, "user-1", "run_shell", `{"command":"ls"}`, RiskHigh)
	require.NoError(t, err)
	require.Equal(t, StatusPending, req.Status)

	pending := svc.ListPendingByUser(ctx, "user-1")
	require.Len(t, pending, 1)
	require.Equal(t, req.ID, pending[0].ID)
}

func TestMediumAndLowAutoApprove(t *testing.T) {
	ctx := context.Background()
	svc := NewApprovalService(newTestAudit(t), false)

	for _, risk := range []Risk{RiskLow, RiskMedium} {
		req, err := svc.Request(ctx, "user-1", "read_file", `{}`, risk)
		require.NoError(t, err)
		require.Equal(t, StatusAutoApproved, req.Status)
	}
}

func TestApproveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	auditor := newTestAudit(t)
	svc := NewApprovalService(auditor, true)

	req, err := svc.Request(ctx, "user-1", "run_shell", `{"command":"ls"}`, RiskHigh)
	require.NoError(t, err)

	first, err := svc.Approve(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, first.Status)

	// Second resolution attempt is a no-op returning the same record.
	second, err := svc.Deny(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, second.Status)
	require.Equal(t, first.ResolvedAt, second.ResolvedAt)

	entries, err := auditor.ListByAction(ctx, "approval_resolved")
	require.NoError(t, err)
	require.Len(t, entries, 1, "no duplicate audit entry on repeat resolution")
}

func TestAwaitSeesDecision(t *testing.T) {
	ctx := context.Background()
	svc := NewApprovalService(newTestAudit(t), true)

	req, err := svc.Request(ctx, "user-1", "run_shell", `{"command":"ls"}`, RiskHigh)
	require.NoError(t, err)

	done := make(chan Status, 1)
	go func() {
		status, _ := svc.Await(ctx, req.ID, 5*time.Second)
		done <- status
	}()

	// Give the waiter a moment to subscribe, then decide.
	time.Sleep(20 * time.Millisecond)
	_, err = svc.Approve(ctx, req.ID)
	require.NoError(t, err)

	select {
	case status := <-done:
		require.Equal(t, StatusApproved, status)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never observed the decision")
	}
}

func TestConcurrentAwaitersAllSeeDecision(t *testing.T) {
	ctx := context.Background()
	svc := NewApprovalService(newTestAudit(t), true)

	req, err := svc.Request(ctx, "user-1", "run_shell", `{"command":"ls"}`, RiskHigh)
	require.NoError(t, err)

	const waiters = 3
	results := make(chan Status, waiters)
	for range waiters {
		go func() {
			status, _ := svc.Await(ctx, req.ID, 5*time.Second)
			results <- status
		}()
	}

	time.Sleep(20 * time.Millisecond)
	_, err = svc.Approve(ctx, req.ID)
	require.NoError(t, err)

	for range waiters {
		select {
		case status := <-results:
			require.Equal(t, StatusApproved, status)
		case <-time.After(2 * time.Second):
			t.Fatal("a waiter never observed the decision")
		}
	}
}

func TestAwaitTimesOutToDenial(t *testing.T) {
	ctx := context.Background()
	svc := NewApprovalService(newTestAudit(t), true)

	req, err := svc.Request(ctx, "user-1", "run_shell", `{"command":"ls"}`, RiskHigh)
	require.NoError(t, err)

	status, err := svc.Await(ctx, req.ID, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, StatusDenied, status)

	// The request itself is still PENDING; only the caller's view timed out.
	got, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}

func TestGetUnknownID(t *testing.T) {
	svc := NewApprovalService(newTestAudit(t), false)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
}
