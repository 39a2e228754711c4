package shell

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/curaious/warden/pkg/execution"
)

// Commands rejected outright: destructive file removal, disk formatting and
// raw disk writes, privilege escalation, remote copy, and host power control.
var defaultBlocklist = []string{
	"rm", "shred",
	"mkfs", "dd", "fdisk", "parted",
	"sudo", "su", "doas",
	"scp", "rsync", "sftp",
	"shutdown", "reboot", "halt", "poweroff",
}

// Interpreters whose arguments can smuggle a blocked command, so their
// argument strings are scanned token by token.
var interpreters = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true, "fish": true,
	"python": true, "python3": true, "node": true, "ruby": true, "perl": true, "php": true,
}

type Options struct {
	// Extra commands blocked in addition to the built-in list.
	Blocklist []string
	// When EnforceAllowlist is set, only these commands may run.
	Allowlist        []string
	EnforceAllowlist bool
	// Strict rejects shell metacharacters in any argument.
	Strict         bool
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

type Result struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Success   bool          `json:"success"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Executor runs host commands directly, after validating them against the
// blocklist, the optional allowlist, and strict-mode metacharacter rules.
// Rejection happens before any process is spawned.
type Executor struct {
	blocked   map[string]bool
	allowed   map[string]bool
	enforce   bool
	strict    bool
	timeout   time.Duration
	maxOutput int
}

func NewExecutor(opts Options) *Executor {
	blocked := make(map[string]bool, len(defaultBlocklist)+len(opts.Blocklist))
	for _, c := range defaultBlocklist {
		blocked[c] = true
	}
	for _, c := range opts.Blocklist {
		if c = strings.TrimSpace(c); c != "" {
			blocked[c] = true
		}
	}
	allowed := make(map[string]bool, len(opts.Allowlist))
	for _, c := range opts.Allowlist {
		if c = strings.TrimSpace(c); c != "" {
			allowed[c] = true
		}
	}
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxOutput := opts.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = 1 << 20
	}
	return &Executor{
		blocked:   blocked,
		allowed:   allowed,
		enforce:   opts.EnforceAllowlist,
		strict:    opts.Strict,
		timeout:   timeout,
		maxOutput: maxOutput,
	}
}

// Validate checks a command without running it.
func (e *Executor) Validate(command string, args []string) error {
	base := baseCommand(command)
	if base == "" {
		return fmt.Errorf("empty command")
	}
	if e.blocked[base] {
		return fmt.Errorf("command %q is blocked", base)
	}
	if e.enforce && !e.allowed[base] {
		return fmt.Errorf("command %q is not on the allowlist", base)
	}
	if interpreters[base] {
		for _, arg := range args {
			for b := range e.blocked {
				if containsToken(arg, b) {
					return fmt.Errorf("argument to %q contains blocked command %q", base, b)
				}
			}
		}
	}
	if e.strict {
		for _, arg := range args {
			if strings.ContainsAny(arg, ";&|`$<>") {
				return fmt.Errorf("argument %q contains shell metacharacters", arg)
			}
		}
	}
	return nil
}

// Run validates, then executes the command in its own process group so a
// timeout can kill the whole tree, not just the direct child.
func (e *Executor) Run(ctx context.Context, command string, args []string, timeout time.Duration) *Result {
	started := time.Now().UTC()
	res := &Result{
		ID:        uuid.NewString(),
		Command:   renderCommand(command, args),
		ExitCode:  -1,
		Timestamp: started,
	}

	if err := e.Validate(command, args); err != nil {
		res.Error = err.Error()
		// The violation also lands in stderr so callers reading only the
		// streams see why nothing ran.
		res.Stderr = fmt.Sprintf("security violation: %s", err.Error())
		slog.WarnContext(ctx, "shell command rejected",
			"command", command,
			"reason", err.Error(),
		)
		return res
	}
	if timeout <= 0 {
		timeout = e.timeout
	}

	cmd := exec.Command(command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdout := newCappedBuffer(e.maxOutput)
	stderr := newCappedBuffer(e.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		res.Error = fmt.Sprintf("failed to start command: %v", err)
		res.Duration = time.Since(started)
		return res
	}

	pgid := cmd.Process.Pid
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timedOut := false
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		res.ExitCode = cmd.ProcessState.ExitCode()
		if err == nil {
			res.Success = true
		}
	case <-timer.C:
		timedOut = true
		_ = unix.Kill(-pgid, unix.SIGKILL)
		<-done
	case <-ctx.Done():
		_ = unix.Kill(-pgid, unix.SIGKILL)
		<-done
		res.Error = ctx.Err().Error()
	}

	res.Duration = time.Since(started)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if timedOut {
		res.Error = fmt.Sprintf("command timed out after %s", timeout)
	}
	if !res.Success && res.Error == "" {
		res.Error = fmt.Sprintf("command exited with code %d", res.ExitCode)
	}
	return res
}

// Execute adapts the executor to the execution backend interface. Params:
// command (string, required), args ([]string), timeout_ms (number).
func (e *Executor) Execute(ctx context.Context, req *execution.Request) *execution.Result {
	command, _ := req.Params["command"].(string)
	if command == "" {
		return execution.Fail(req.Operation, "missing required param: command")
	}
	args := stringSlice(req.Params["args"])
	timeout := time.Duration(0)
	if ms, ok := toFloat(req.Params["timeout_ms"]); ok {
		timeout = time.Duration(ms) * time.Millisecond
	}

	res := e.Run(ctx, command, args, timeout)
	if !res.Success {
		msg := res.Error
		if res.Stderr != "" {
			msg = msg + "\n" + res.Stderr
		}
		return execution.Fail(req.Operation, msg)
	}
	return execution.OK(req.Operation, res.Stdout)
}

func baseCommand(command string) string {
	command = strings.TrimSpace(command)
	if i := strings.LastIndexByte(command, '/'); i >= 0 {
		command = command[i+1:]
	}
	return command
}

// containsToken reports whether s contains word as a standalone command
// token, bounded by the string edges, whitespace, or the separators that
// start a new command in shell syntax.
func containsToken(s, word string) bool {
	for i := 0; i+len(word) <= len(s); i++ {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if boundary(s, start-1) && boundary(s, end) {
			return true
		}
		i = start
	}
	return false
}

func boundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	switch s[i] {
	case ' ', '\t', '\n', ';', '&', '|':
		return true
	}
	return false
}

func renderCommand(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case int:
		return float64(vv), true
	case int64:
		return float64(vv), true
	}
	return 0, false
}
