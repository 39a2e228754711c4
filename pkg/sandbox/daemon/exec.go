package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const defaultTimeoutSeconds = 60

// interpreterFor maps a task language to the interpreter binary and the
// extension its script file needs.
var interpreterFor = map[string]struct {
	bin string
	ext string
}{
	"python":     {"python3", ".py"},
	"javascript": {"node", ".js"},
}

type execRequest struct {
	Language       string            `json:"language,omitempty"`
	Script         string            `json:"script,omitempty"`
	Stdin          string            `json:"stdin,omitempty"`
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Workdir        string            `json:"workdir,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
}

type execResponse struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	ExitCode      int    `json:"exit_code"`
	DurationMilli int64  `json:"duration_ms"`
}

type sandboxHandler func(w http.ResponseWriter, r *http.Request, root string)

// withSandboxRoot injects the sandbox root into handlers.
func withSandboxRoot(root string, h sandboxHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(w, r, root)
	})
}

// withJSON sets JSON headers on every response.
func withJSON(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		h.ServeHTTP(w, r)
	})
}

func handleExecScript(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid json: %v"}`, err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Script) == "" {
		http.Error(w, `{"error":"script is required"}`, http.StatusBadRequest)
		return
	}
	interp, ok := interpreterFor[strings.ToLower(req.Language)]
	if !ok {
		http.Error(w, fmt.Sprintf(`{"error":"unsupported language %q"}`, req.Language), http.StatusBadRequest)
		return
	}

	workdir, err := resolvePath(root, req.Workdir)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusBadRequest)
		return
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"failed to create workdir: %v"}`, err), http.StatusInternalServerError)
		return
	}

	tmpFile, err := os.CreateTemp(workdir, "script-*"+interp.ext)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"failed to create temp file: %v"}`, err), http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
	}()

	if _, err := tmpFile.WriteString(req.Script); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"failed to write script: %v"}`, err), http.StatusInternalServerError)
		return
	}
	if err := tmpFile.Sync(); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"failed to flush script: %v"}`, err), http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeoutFor(req.TimeoutSeconds))
	defer cancel()

	start := time.Now()
	res, err := runCommand(ctx, interp.bin, []string{tmpFile.Name()}, workdir, req.Env, req.Stdin)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("script exec error: %v", err)
		http.Error(w, fmt.Sprintf(`{"error":"exec failed: %v"}`, err), http.StatusInternalServerError)
		return
	}
	res.DurationMilli = time.Since(start).Milliseconds()

	status := http.StatusOK
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

func handleExecBash(w http.ResponseWriter, r *http.Request, root string) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid json: %v"}`, err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		http.Error(w, `{"error":"command is required"}`, http.StatusBadRequest)
		return
	}

	workdir, err := resolvePath(root, req.Workdir)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"%v"}`, err), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeoutFor(req.TimeoutSeconds))
	defer cancel()

	// Run through /bin/sh so quoting, pipes and redirections behave as the
	// caller wrote them. Isolation comes from the container, not the shell.
	shellCmd := req.Command
	if len(req.Args) > 0 {
		shellCmd = strings.Join(append([]string{req.Command}, req.Args...), " ")
	}

	start := time.Now()
	res, err := runCommand(ctx, "/bin/sh", []string{"-c", shellCmd}, workdir, req.Env, req.Stdin)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Printf("bash exec error: %v", err)
		http.Error(w, fmt.Sprintf(`{"error":"exec failed: %v"}`, err), http.StatusInternalServerError)
		return
	}
	res.DurationMilli = time.Since(start).Milliseconds()

	status := http.StatusOK
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

func timeoutFor(seconds int) time.Duration {
	if seconds <= 0 {
		seconds = defaultTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

func runCommand(ctx context.Context, name string, args []string, workdir string, env map[string]string, stdin string) (*execResponse, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workdir
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	done := make(chan struct{}, 2)

	go func() {
		_, _ = io.Copy(&stdoutBuf, stdoutPipe)
		done <- struct{}{}
	}()
	go func() {
		_, _ = io.Copy(&stderrBuf, stderrPipe)
		done <- struct{}{}
	}()

	<-done
	<-done

	err = cmd.Wait()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		case ctx.Err() != nil:
			return &execResponse{
				Stdout:   stdoutBuf.String(),
				Stderr:   stderrBuf.String(),
				ExitCode: -1,
			}, context.DeadlineExceeded
		default:
			return nil, fmt.Errorf("wait: %w", err)
		}
	}

	return &execResponse{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
	}, nil
}

// resolvePath returns an absolute path inside the sandbox root.
// If rel is empty, root is returned.
func resolvePath(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return root, nil
	}
	cleanRoot := filepath.Clean(root)
	target := filepath.Clean(filepath.Join(cleanRoot, rel))

	if target != cleanRoot && !strings.HasPrefix(target, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox root")
	}
	return target, nil
}
