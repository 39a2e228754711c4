package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/warden/internal/perrors"
)

// WorkspaceService owns the per-user workspace index. Both maps live behind
// the one mutex so a containment check can never observe a half-deleted
// workspace as valid.
type WorkspaceService struct {
	baseRoot string

	mu     sync.RWMutex
	byID   map[string]*Workspace
	byUser map[string][]string
}

// NewWorkspaceService creates the service with baseRoot as the parent
// directory for provisioned workspaces. baseRoot is created eagerly.
func NewWorkspaceService(baseRoot string) (*WorkspaceService, error) {
	abs, err := filepath.Abs(baseRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace base root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace base root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize workspace base root: %w", err)
	}

	return &WorkspaceService{
		baseRoot: canonical,
		byID:     make(map[string]*Workspace),
		byUser:   make(map[string][]string),
	}, nil
}

// Create provisions a workspace directory eagerly and registers it in the
// index.
func (s *WorkspaceService) Create(ctx context.Context, userID, name string) (*Workspace, error) {
	id := uuid.NewString()
	root := filepath.Join(s.baseRoot, id)

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, perrors.NewErrInternalServerError("failed to provision workspace directory", err)
	}

	ws := &Workspace{
		ID:        id,
		Name:      name,
		UserID:    userID,
		RootPath:  root,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.byID[id] = ws
	s.byUser[userID] = append(s.byUser[userID], id)
	s.mu.Unlock()

	slog.InfoContext(ctx, "workspace provisioned", slog.String("workspace_id", id), slog.String("user_id", userID))

	cp := *ws
	return &cp, nil
}

// Get returns the workspace by id.
func (s *WorkspaceService) Get(ctx context.Context, id string) (*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ws, ok := s.byID[id]
	if !ok {
		return nil, perrors.NewErrNotFound("workspace not found", nil, map[string]interface{}{"workspace_id": id})
	}
	cp := *ws
	return &cp, nil
}

// ListByUser returns the user's workspaces.
func (s *WorkspaceService) ListByUser(ctx context.Context, userID string) []*Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Workspace
	for _, id := range s.byUser[userID] {
		if ws, ok := s.byID[id]; ok {
			cp := *ws
			out = append(out, &cp)
		}
	}
	return out
}

// Delete removes the workspace directory tree and purges the index. Purge
// and removal happen under the write lock so no concurrent access check can
// pass against a workspace whose tree is going away.
func (s *WorkspaceService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ws, ok := s.byID[id]
	if !ok {
		return perrors.NewErrNotFound("workspace not found", nil, map[string]interface{}{"workspace_id": id})
	}

	delete(s.byID, id)
	ids := s.byUser[ws.UserID]
	for i, wid := range ids {
		if wid == id {
			s.byUser[ws.UserID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}

	if err := os.RemoveAll(ws.RootPath); err != nil {
		return perrors.NewErrInternalServerError("failed to remove workspace directory", err)
	}

	slog.InfoContext(ctx, "workspace deleted", slog.String("workspace_id", id))
	return nil
}

// CheckAccess resolves target against the user's workspace and returns the
// canonical path iff it stays inside the workspace root. Relative paths
// resolve against the root; absolute paths are honored only if they still
// resolve inside. `..` segments and symlinks are neutralized by
// canonicalizing before the prefix test.
func (s *WorkspaceService) CheckAccess(ctx context.Context, uc *UserContext, target string) (string, error) {
	if uc == nil || uc.WorkspaceID == "" {
		return "", perrors.NewErrInvalidRequest("request has no workspace context", nil)
	}

	s.mu.RLock()
	ws, ok := s.byID[uc.WorkspaceID]
	if !ok || ws.UserID != uc.UserID {
		s.mu.RUnlock()
		return "", perrors.New(perrors.ErrCodeForbidden, "workspace does not belong to requesting user", nil, map[string]interface{}{
			"workspace_id": uc.WorkspaceID,
		})
	}
	root := ws.RootPath
	s.mu.RUnlock()

	candidate := target
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}

	resolved, err := Canonicalize(candidate)
	if err != nil {
		return "", perrors.NewErrInvalidRequest("failed to resolve target path", err)
	}

	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", perrors.NewErrPolicyViolation("path resolves outside workspace", nil, map[string]interface{}{
			"workspace_id": uc.WorkspaceID,
		})
	}

	return resolved, nil
}

// Canonicalize resolves symlinks on the longest existing prefix of p, so
// paths to files that do not exist yet still canonicalize. Every containment
// check runs on the canonical form.
func Canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)

	existing := abs
	var suffix []string
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			parts := append([]string{resolved}, suffix...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		suffix = append([]string{filepath.Base(existing)}, suffix...)
		existing = parent
	}
}
