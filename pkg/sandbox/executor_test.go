package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// failingManager simulates an unreachable container backend.
type failingManager struct{}

func (failingManager) CreateSandbox(context.Context, string, string) (*Handle, error) {
	return nil, errors.New("no container runtime")
}
func (failingManager) GetSandbox(_ context.Context, sessionID string) (*Handle, error) {
	return nil, &NotFoundError{SessionID: sessionID}
}
func (failingManager) DeleteSandbox(context.Context, string) error { return nil }

// recordingManager provisions a handle pointing at a closed port and counts
// lifecycle calls.
type recordingManager struct {
	deletes        int
	deletedSession string
}

func (m *recordingManager) CreateSandbox(_ context.Context, _ string, sessionID string) (*Handle, error) {
	return &Handle{SessionID: sessionID, Name: "sbx-" + sessionID, IP: "127.0.0.1", Port: 1}, nil
}
func (m *recordingManager) GetSandbox(_ context.Context, sessionID string) (*Handle, error) {
	return nil, &NotFoundError{SessionID: sessionID}
}
func (m *recordingManager) DeleteSandbox(_ context.Context, sessionID string) error {
	m.deletes++
	m.deletedSession = sessionID
	return nil
}

func requireInterpreter(t *testing.T, bin string) {
	t.Helper()
	if _, err := exec.LookPath(bin); err != nil {
		t.Skipf("%s not installed", bin)
	}
}

func TestLocalFallbackPython(t *testing.T) {
	requireInterpreter(t, "python3")

	e := NewExecutor(ExecutorOptions{Manager: failingManager{}})
	res := e.Run(context.Background(), &Task{
		Language: LanguagePython,
		Code:     `print("hello from fallback")`,
		Timeout:  10 * time.Second,
	})
	if !res.Success {
		t.Fatalf("task failed: %q", res.Error)
	}
	if res.Secure {
		t.Fatal("fallback execution reported as secure")
	}
	if !strings.Contains(res.Output, "hello from fallback") {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if res.ID == "" {
		t.Fatal("result missing id")
	}
	if res.Timestamp.IsZero() {
		t.Fatal("result missing timestamp")
	}
}

func TestTaskInputReachesStdin(t *testing.T) {
	requireInterpreter(t, "python3")

	e := NewExecutor(ExecutorOptions{})
	res := e.Run(context.Background(), &Task{
		Language: LanguagePython,
		Code:     "import sys\nprint(sys.stdin.read().strip().upper())",
		Input:    "piped data",
		Timeout:  10 * time.Second,
	})
	if !res.Success {
		t.Fatalf("task failed: %q", res.Error)
	}
	if strings.TrimSpace(res.Output) != "PIPED DATA" {
		t.Fatalf("stdin not delivered, output %q", res.Output)
	}
}

func TestCloseDeletesProvisionedSandbox(t *testing.T) {
	requireInterpreter(t, "python3")

	mgr := &recordingManager{}
	e := NewExecutor(ExecutorOptions{Manager: mgr})
	// The daemon behind the handle is unreachable, so the task falls back to
	// the local interpreter, but the container was provisioned and must be
	// torn down on Close.
	res := e.Run(context.Background(), &Task{
		Language: LanguagePython,
		Code:     `print("ok")`,
		Timeout:  10 * time.Second,
	})
	if !res.Success {
		t.Fatalf("task failed: %q", res.Error)
	}

	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if mgr.deletes != 1 {
		t.Fatalf("expected one delete, got %d", mgr.deletes)
	}
	if mgr.deletedSession != e.sessionID {
		t.Fatalf("deleted session %q, want %q", mgr.deletedSession, e.sessionID)
	}

	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if mgr.deletes != 1 {
		t.Fatalf("second close deleted again, got %d deletes", mgr.deletes)
	}
}

func TestCloseWithoutProvisioningIsNoop(t *testing.T) {
	mgr := &recordingManager{}
	e := NewExecutor(ExecutorOptions{Manager: mgr})
	if err := e.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if mgr.deletes != 0 {
		t.Fatalf("close deleted a sandbox that was never created, got %d deletes", mgr.deletes)
	}
}

func TestLocalFallbackJavaScript(t *testing.T) {
	requireInterpreter(t, "node")

	e := NewExecutor(ExecutorOptions{})
	res := e.Run(context.Background(), &Task{
		Language: LanguageJavaScript,
		Code:     `console.log(2 + 3)`,
		Timeout:  10 * time.Second,
	})
	if !res.Success {
		t.Fatalf("task failed: %q", res.Error)
	}
	if strings.TrimSpace(res.Output) != "5" {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestSecureModeBlocksFallback(t *testing.T) {
	e := NewExecutor(ExecutorOptions{Manager: failingManager{}, SecureMode: true})
	res := e.Run(context.Background(), &Task{
		Language: LanguagePython,
		Code:     `print("never runs")`,
	})
	if res.Success {
		t.Fatal("secure mode allowed host execution")
	}
	if !strings.Contains(res.Error, "secure mode") {
		t.Fatalf("unexpected error %q", res.Error)
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	e := NewExecutor(ExecutorOptions{})
	res := e.Run(context.Background(), &Task{Language: Language("cobol"), Code: "DISPLAY 'HI'."})
	if res.Success {
		t.Fatal("unsupported language succeeded")
	}
	if !strings.Contains(res.Error, "unsupported language") {
		t.Fatalf("unexpected error %q", res.Error)
	}
}

func TestLocalTimeoutKillsTask(t *testing.T) {
	requireInterpreter(t, "python3")

	e := NewExecutor(ExecutorOptions{})
	start := time.Now()
	res := e.Run(context.Background(), &Task{
		Language: LanguagePython,
		Code:     "import time\ntime.sleep(30)",
		Timeout:  200 * time.Millisecond,
	})
	if res.Success {
		t.Fatal("timed-out task reported success")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Fatalf("unexpected error %q", res.Error)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("task not killed promptly, took %s", time.Since(start))
	}
}

func TestNonZeroExitCapturesStderr(t *testing.T) {
	requireInterpreter(t, "python3")

	e := NewExecutor(ExecutorOptions{})
	res := e.Run(context.Background(), &Task{
		Language: LanguagePython,
		Code:     `import sys; sys.stderr.write("boom\n"); sys.exit(2)`,
		Timeout:  10 * time.Second,
	})
	if res.Success {
		t.Fatal("failing task reported success")
	}
	if res.ExitCode != 2 {
		t.Fatalf("expected exit code 2, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Error, "boom") {
		t.Fatalf("stderr not captured: %q", res.Error)
	}
}
