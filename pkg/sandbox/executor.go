package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/curaious/warden/pkg/execution"
)

// localInterpreters maps task languages to host binaries for the degraded
// fallback path.
var localInterpreters = map[Language]struct {
	bin string
	ext string
}{
	LanguagePython:     {"python3", ".py"},
	LanguageJavaScript: {"node", ".js"},
}

type ExecutorOptions struct {
	// Manager provisions containers. Nil means no container backend.
	Manager Manager
	// Image used when creating sandboxes.
	Image string
	// SecureMode forbids the local fallback: when the container path is
	// unavailable the task fails instead of running on the host.
	SecureMode     bool
	DefaultTimeout time.Duration
}

// Executor runs code tasks, preferring a container and falling back to a
// local interpreter subprocess when allowed. Results carry Secure=false
// whenever the fallback ran, so callers can tell the difference.
type Executor struct {
	manager        Manager
	image          string
	secureMode     bool
	defaultTimeout time.Duration
	sessionID      string
	provisioned    atomic.Bool
}

func NewExecutor(opts ExecutorOptions) *Executor {
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Executor{
		manager:        opts.Manager,
		image:          opts.Image,
		secureMode:     opts.SecureMode,
		defaultTimeout: timeout,
		sessionID:      uuid.NewString(),
	}
}

// Run executes one task.
func (e *Executor) Run(ctx context.Context, task *Task) *TaskResult {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Timeout <= 0 {
		task.Timeout = e.defaultTimeout
	}
	if _, ok := localInterpreters[task.Language]; !ok {
		return &TaskResult{
			ID:        task.ID,
			Error:     fmt.Sprintf("unsupported language %q", task.Language),
			ExitCode:  -1,
			Timestamp: time.Now().UTC(),
		}
	}

	if e.manager != nil {
		res, err := e.runInContainer(ctx, task)
		if err == nil {
			return res
		}
		slog.WarnContext(ctx, "container execution unavailable",
			"task_id", task.ID,
			"error", err.Error(),
		)
	}

	if e.secureMode {
		return &TaskResult{
			ID:        task.ID,
			Error:     "sandbox unavailable and secure mode forbids local execution",
			ExitCode:  -1,
			Secure:    true,
			Timestamp: time.Now().UTC(),
		}
	}

	slog.WarnContext(ctx, "running task without container isolation",
		"task_id", task.ID,
		"language", string(task.Language),
	)
	return e.runLocal(ctx, task)
}

func (e *Executor) runInContainer(ctx context.Context, task *Task) (*TaskResult, error) {
	handle, err := e.manager.CreateSandbox(ctx, e.image, e.sessionID)
	if err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	e.provisioned.Store(true)

	started := time.Now().UTC()
	client := NewClient(handle)
	resp, err := client.RunScript(ctx, &ExecRequest{
		Language:       string(task.Language),
		Script:         task.Code,
		Stdin:          task.Input,
		TimeoutSeconds: int(task.Timeout / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("run script: %w", err)
	}

	res := &TaskResult{
		ID:        task.ID,
		Success:   resp.ExitCode == 0,
		Output:    resp.Stdout,
		ExitCode:  resp.ExitCode,
		Duration:  time.Duration(resp.DurationMilli) * time.Millisecond,
		Secure:    true,
		Timestamp: started,
	}
	if !res.Success {
		res.Error = resp.Stderr
	}
	return res, nil
}

// Close tears down the session's container, if one was ever provisioned.
// Safe to call when no container backend is configured.
func (e *Executor) Close(ctx context.Context) error {
	if e.manager == nil || !e.provisioned.Load() {
		return nil
	}
	e.provisioned.Store(false)
	if err := e.manager.DeleteSandbox(ctx, e.sessionID); err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("delete sandbox: %w", err)
	}
	return nil
}

// runLocal writes the code to a temp file and runs the interpreter in its
// own process group so the timeout can kill the whole tree.
func (e *Executor) runLocal(ctx context.Context, task *Task) *TaskResult {
	started := time.Now().UTC()
	res := &TaskResult{ID: task.ID, ExitCode: -1, Timestamp: started}

	interp := localInterpreters[task.Language]
	bin, err := exec.LookPath(interp.bin)
	if err != nil {
		res.Error = fmt.Sprintf("interpreter %s not found", interp.bin)
		return res
	}

	tmpFile, err := os.CreateTemp("", "task-*"+interp.ext)
	if err != nil {
		res.Error = fmt.Sprintf("create temp file: %v", err)
		return res
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.WriteString(task.Code); err != nil {
		_ = tmpFile.Close()
		res.Error = fmt.Sprintf("write code: %v", err)
		return res
	}
	if err := tmpFile.Close(); err != nil {
		res.Error = fmt.Sprintf("flush code: %v", err)
		return res
	}

	cmd := exec.Command(bin, tmpFile.Name())
	cmd.Dir = filepath.Dir(tmpFile.Name())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if task.Input != "" {
		cmd.Stdin = strings.NewReader(task.Input)
	}
	var stdout, stderr safeBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		res.Error = fmt.Sprintf("start interpreter: %v", err)
		return res
	}

	pgid := cmd.Process.Pid
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(task.Timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		res.ExitCode = cmd.ProcessState.ExitCode()
		if err == nil {
			res.Success = true
		} else {
			res.Error = stderr.String()
		}
	case <-timer.C:
		_ = unix.Kill(-pgid, unix.SIGKILL)
		<-done
		res.Error = fmt.Sprintf("task timed out after %s", task.Timeout)
	case <-ctx.Done():
		_ = unix.Kill(-pgid, unix.SIGKILL)
		<-done
		res.Error = ctx.Err().Error()
	}

	res.Output = stdout.String()
	res.Duration = time.Since(started)
	return res
}

// Execute adapts the executor to the execution backend interface. Params:
// language (string), code (string, required), input (string), timeout_ms
// (number).
func (e *Executor) Execute(ctx context.Context, req *execution.Request) *execution.Result {
	code, _ := req.Params["code"].(string)
	if code == "" {
		return execution.Fail(req.Operation, "missing required param: code")
	}
	language, _ := req.Params["language"].(string)
	if language == "" {
		language = string(LanguagePython)
	}
	input, _ := req.Params["input"].(string)

	task := &Task{Language: Language(language), Code: code, Input: input}
	if ms, ok := req.Params["timeout_ms"].(float64); ok && ms > 0 {
		task.Timeout = time.Duration(ms) * time.Millisecond
	}

	res := e.Run(ctx, task)
	if !res.Success {
		return execution.Fail(req.Operation, res.Error)
	}
	out := res.Output
	if !res.Secure {
		out = "[executed without container isolation]\n" + out
	}
	return execution.OK(req.Operation, out)
}
