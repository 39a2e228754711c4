package fs

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/curaious/warden/internal/services/workspace"
	"github.com/curaious/warden/pkg/execution"
)

// File names that are never readable or writable regardless of location:
// credential material and system account databases.
var blockedNamePatterns = []string{
	".env", ".env.*",
	"id_rsa", "id_dsa", "id_ecdsa", "id_ed25519",
	"*.pem", "*.key",
	"credentials", "credentials.*",
	"secrets", "secrets.*",
	"shadow", "passwd",
}

type Options struct {
	// AllowedRoots confines requests that carry no workspace. Defaults to
	// the process working directory.
	AllowedRoots   []string
	MaxReadBytes   int64
	MaxListEntries int
}

// Executor performs filesystem operations confined to the caller's
// workspace, or to the allowed-root set when the request carries no
// workspace. Every path is resolved before use, so traversal and symlink
// escapes are rejected in one place.
type Executor struct {
	workspaces   *workspace.WorkspaceService
	allowedRoots []string
	maxReadBytes int64
	maxList      int
}

func NewExecutor(workspaces *workspace.WorkspaceService, opts Options) *Executor {
	maxRead := opts.MaxReadBytes
	if maxRead <= 0 {
		maxRead = 10 << 20
	}
	maxList := opts.MaxListEntries
	if maxList <= 0 {
		maxList = 1000
	}

	roots := make([]string, 0, len(opts.AllowedRoots))
	for _, root := range opts.AllowedRoots {
		if canonical, err := workspace.Canonicalize(root); err == nil {
			roots = append(roots, canonical)
		}
	}
	if len(roots) == 0 {
		if wd, err := os.Getwd(); err == nil {
			if canonical, err := workspace.Canonicalize(wd); err == nil {
				roots = append(roots, canonical)
			}
		}
	}

	return &Executor{workspaces: workspaces, allowedRoots: roots, maxReadBytes: maxRead, maxList: maxList}
}

func (e *Executor) Execute(ctx context.Context, req *execution.Request) *execution.Result {
	path, _ := req.Params["path"].(string)
	if path == "" {
		return execution.Fail(req.Operation, "missing required param: path")
	}

	resolved, err := e.resolve(ctx, req.User, path)
	if err != nil {
		slog.WarnContext(ctx, "filesystem access rejected",
			"operation", req.Operation,
			"path", path,
			"reason", err.Error(),
		)
		return execution.Fail(req.Operation, err.Error())
	}

	switch req.Operation {
	case "readFile":
		return e.readFile(req.Operation, resolved)
	case "writeFile":
		content, _ := req.Params["content"].(string)
		return e.writeFile(req.Operation, resolved, content)
	case "deleteFile":
		return e.deleteFile(req.Operation, resolved)
	case "listDirectory":
		return e.listDirectory(req.Operation, resolved)
	case "createDirectory":
		return e.createDirectory(req.Operation, resolved)
	case "search":
		pattern, _ := req.Params["pattern"].(string)
		return e.search(req.Operation, resolved, pattern)
	default:
		return execution.Fail(req.Operation, fmt.Sprintf("unknown filesystem operation %q", req.Operation))
	}
}

// resolve confines the path to the user's workspace when one is set, or to
// the allowed-root set otherwise, and applies the blocked name patterns to
// the final component.
func (e *Executor) resolve(ctx context.Context, uc *workspace.UserContext, path string) (string, error) {
	var resolved string
	var err error
	if uc != nil && uc.WorkspaceID != "" {
		resolved, err = e.workspaces.CheckAccess(ctx, uc, path)
	} else {
		resolved, err = e.resolveAllowed(path)
	}
	if err != nil {
		return "", err
	}
	if blocked, pattern := isBlockedName(filepath.Base(resolved)); blocked {
		return "", fmt.Errorf("access to %q is blocked (matches %q)", filepath.Base(resolved), pattern)
	}
	return resolved, nil
}

func (e *Executor) resolveAllowed(path string) (string, error) {
	if len(e.allowedRoots) == 0 {
		return "", fmt.Errorf("no allowed roots configured")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.allowedRoots[0], path)
	}
	// Canonical form first: `..` segments and symlinks must not move the
	// target outside a root after the prefix test.
	resolved, err := workspace.Canonicalize(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %v", path, err)
	}
	for _, root := range e.allowedRoots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("path %q is outside the allowed roots", path)
}

func (e *Executor) readFile(op, path string) *execution.Result {
	info, err := os.Stat(path)
	if err != nil {
		return execution.Fail(op, fmt.Sprintf("stat %s: %v", path, err))
	}
	if info.IsDir() {
		return execution.Fail(op, fmt.Sprintf("%s is a directory", path))
	}
	if info.Size() > e.maxReadBytes {
		return execution.Fail(op, fmt.Sprintf("file is %d bytes, read limit is %d", info.Size(), e.maxReadBytes))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return execution.Fail(op, fmt.Sprintf("read %s: %v", path, err))
	}
	return execution.OK(op, string(data))
}

func (e *Executor) writeFile(op, path, content string) *execution.Result {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return execution.Fail(op, fmt.Sprintf("create parent directory: %v", err))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return execution.Fail(op, fmt.Sprintf("write %s: %v", path, err))
	}
	return execution.OK(op, fmt.Sprintf("wrote %d bytes", len(content)))
}

func (e *Executor) deleteFile(op, path string) *execution.Result {
	info, err := os.Stat(path)
	if err != nil {
		return execution.Fail(op, fmt.Sprintf("stat %s: %v", path, err))
	}
	if info.IsDir() {
		return execution.Fail(op, fmt.Sprintf("%s is a directory, refusing to delete", path))
	}
	if err := os.Remove(path); err != nil {
		return execution.Fail(op, fmt.Sprintf("delete %s: %v", path, err))
	}
	return execution.OK(op, "deleted")
}

type dirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

func (e *Executor) listDirectory(op, path string) *execution.Result {
	entries, err := os.ReadDir(path)
	if err != nil {
		return execution.Fail(op, fmt.Sprintf("list %s: %v", path, err))
	}
	out := make([]dirEntry, 0, len(entries))
	for _, entry := range entries {
		if len(out) >= e.maxList {
			break
		}
		var size int64
		if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, dirEntry{Name: entry.Name(), IsDir: entry.IsDir(), Size: size})
	}
	data, err := sonic.MarshalString(out)
	if err != nil {
		return execution.Fail(op, fmt.Sprintf("encode listing: %v", err))
	}
	return execution.OK(op, data)
}

func (e *Executor) createDirectory(op, path string) *execution.Result {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return execution.Fail(op, fmt.Sprintf("create %s: %v", path, err))
	}
	return execution.OK(op, "created")
}

// search walks the resolved root and returns paths whose base name matches
// the glob pattern. Blocked names never appear in results.
func (e *Executor) search(op, root, pattern string) *execution.Result {
	if pattern == "" {
		return execution.Fail(op, "missing required param: pattern")
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return execution.Fail(op, fmt.Sprintf("invalid pattern %q", pattern))
	}
	var matches []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if len(matches) >= e.maxList {
			return filepath.SkipAll
		}
		name := d.Name()
		if blocked, _ := isBlockedName(name); blocked {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil {
				rel = p
			}
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return execution.Fail(op, fmt.Sprintf("search %s: %v", root, err))
	}
	data, err := sonic.MarshalString(matches)
	if err != nil {
		return execution.Fail(op, fmt.Sprintf("encode matches: %v", err))
	}
	return execution.OK(op, data)
}

func isBlockedName(name string) (bool, string) {
	lower := strings.ToLower(name)
	for _, pattern := range blockedNamePatterns {
		if ok, _ := filepath.Match(pattern, lower); ok {
			return true, pattern
		}
	}
	return false, ""
}
