package workspace

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *WorkspaceService {
	t.Helper()

	svc, err := NewWorkspaceService(t.TempDir())
	require.NoError(t, err)
	return svc
}

func TestCreateProvisionsDirectory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ws, err := svc.Create(ctx, "user-1", "scratch")
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(ws.RootPath))

	info, err := os.Stat(ws.RootPath)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestCheckAccessContainment(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ws, err := svc.Create(ctx, "user-1", "scratch")
	require.NoError(t, err)
	uc := &UserContext{UserID: "user-1", WorkspaceID: ws.ID}

	tests := []struct {
		name    string
		target  string
		allowed bool
	}{
		{"relative inside", "notes/todo.txt", true},
		{"dot relative", "./report.md", true},
		{"parent escape", "../other", false},
		{"deep parent escape", "a/b/../../../../etc/passwd", false},
		{"absolute inside", filepath.Join(ws.RootPath, "data.json"), true},
		{"absolute outside", "/etc/passwd", false},
		{"root itself", ".", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := svc.CheckAccess(ctx, uc, tt.target)
			if tt.allowed {
				require.NoError(t, err)
				require.True(t, resolved == ws.RootPath || strings.HasPrefix(resolved, ws.RootPath+string(filepath.Separator)),
					"resolved path %s escapes root %s", resolved, ws.RootPath)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestCheckAccessSymlinkEscape(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ws, err := svc.Create(ctx, "user-1", "scratch")
	require.NoError(t, err)

	outside := t.TempDir()
	link := filepath.Join(ws.RootPath, "sneaky")
	require.NoError(t, os.Symlink(outside, link))

	uc := &UserContext{UserID: "user-1", WorkspaceID: ws.ID}
	_, err = svc.CheckAccess(ctx, uc, "sneaky/file.txt")
	require.Error(t, err, "symlink pointing outside the workspace must be rejected")
}

func TestCheckAccessWrongUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ws, err := svc.Create(ctx, "user-1", "scratch")
	require.NoError(t, err)

	_, err = svc.CheckAccess(ctx, &UserContext{UserID: "user-2", WorkspaceID: ws.ID}, "file.txt")
	require.Error(t, err)
}

func TestDeleteRemovesTreeAndIndex(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ws, err := svc.Create(ctx, "user-1", "scratch")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.RootPath, "f.txt"), []byte("x"), 0o644))

	require.NoError(t, svc.Delete(ctx, ws.ID))

	_, err = os.Stat(ws.RootPath)
	require.True(t, os.IsNotExist(err))

	_, err = svc.Get(ctx, ws.ID)
	require.Error(t, err)

	_, err = svc.CheckAccess(ctx, &UserContext{UserID: "user-1", WorkspaceID: ws.ID}, "f.txt")
	require.Error(t, err, "access check must fail after deletion")

	require.Empty(t, svc.ListByUser(ctx, "user-1"))
}
