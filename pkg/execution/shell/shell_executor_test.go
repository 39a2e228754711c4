package shell

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestValidateBlocklist(t *testing.T) {
	e := NewExecutor(Options{})

	cases := []struct {
		name    string
		command string
		args    []string
		wantErr bool
	}{
		{"plain rm", "rm", []string{"-rf", "/tmp/x"}, true},
		{"rm by path", "/bin/rm", []string{"file"}, true},
		{"sudo", "sudo", []string{"ls"}, true},
		{"mkfs", "mkfs", []string{"/dev/sda1"}, true},
		{"interpreter smuggling rm", "bash", []string{"-c", "rm -rf /tmp/x"}, true},
		{"interpreter chained rm", "sh", []string{"-c", "echo hi; rm file"}, true},
		{"interpreter piped sudo", "bash", []string{"-c", "echo pw | sudo -S id"}, true},
		{"substring not a token", "bash", []string{"-c", "echo alarm"}, false},
		{"rmdir is not rm", "bash", []string{"-c", "rmdir /tmp/empty"}, false},
		{"benign echo", "echo", []string{"hello"}, false},
		{"benign ls", "ls", []string{"-la"}, false},
		{"non-interpreter args unscanned", "grep", []string{"rm", "notes.txt"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := e.Validate(tc.command, tc.args)
			if tc.wantErr && err == nil {
				t.Fatalf("expected rejection for %q %v", tc.command, tc.args)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected rejection for %q %v: %v", tc.command, tc.args, err)
			}
		})
	}
}

func TestValidateAllowlist(t *testing.T) {
	e := NewExecutor(Options{
		Allowlist:        []string{"echo", "ls"},
		EnforceAllowlist: true,
	})
	if err := e.Validate("echo", []string{"hi"}); err != nil {
		t.Fatalf("allowlisted command rejected: %v", err)
	}
	if err := e.Validate("curl", []string{"http://example.com"}); err == nil {
		t.Fatal("expected rejection of command outside allowlist")
	}
}

func TestValidateStrictMode(t *testing.T) {
	e := NewExecutor(Options{Strict: true})
	if err := e.Validate("echo", []string{"a;b"}); err == nil {
		t.Fatal("expected strict mode to reject semicolon")
	}
	if err := e.Validate("echo", []string{"a|b"}); err == nil {
		t.Fatal("expected strict mode to reject pipe")
	}
	if err := e.Validate("echo", []string{"plain"}); err != nil {
		t.Fatalf("strict mode rejected plain argument: %v", err)
	}
}

func TestRunBlockedCommandDoesNotSpawn(t *testing.T) {
	e := NewExecutor(Options{})
	res := e.Run(context.Background(), "bash", []string{"-c", "rm -rf /tmp/x"}, time.Second)
	if res.Success {
		t.Fatal("blocked command reported success")
	}
	if res.ExitCode != -1 {
		t.Fatalf("expected exit code -1 for unspawned process, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Error, "blocked") {
		t.Fatalf("expected blocklist error, got %q", res.Error)
	}
	if !strings.Contains(res.Stderr, "security violation") || !strings.Contains(res.Stderr, "blocked") {
		t.Fatalf("expected security violation in stderr, got %q", res.Stderr)
	}
	if res.Stdout != "" {
		t.Fatal("rejected command produced stdout")
	}
}

func TestRunEcho(t *testing.T) {
	e := NewExecutor(Options{})
	res := e.Run(context.Background(), "echo", []string{"hello"}, 5*time.Second)
	if !res.Success {
		t.Fatalf("echo failed: %q", res.Error)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
	if res.ID == "" {
		t.Fatal("result missing id")
	}
}

func TestRunNonZeroExit(t *testing.T) {
	e := NewExecutor(Options{})
	res := e.Run(context.Background(), "/bin/sh", []string{"-c", "exit 3"}, 5*time.Second)
	if res.Success {
		t.Fatal("expected failure for non-zero exit")
	}
	if res.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", res.ExitCode)
	}
}

func TestRunTimeoutKillsProcess(t *testing.T) {
	e := NewExecutor(Options{})
	start := time.Now()
	res := e.Run(context.Background(), "/bin/sh", []string{"-c", "sleep 5"}, 100*time.Millisecond)
	elapsed := time.Since(start)

	if res.Success {
		t.Fatal("timed-out command reported success")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Fatalf("expected timeout error, got %q", res.Error)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("process not killed promptly, Run took %s", elapsed)
	}
}

func TestRunOutputCapped(t *testing.T) {
	e := NewExecutor(Options{MaxOutputBytes: 64})
	res := e.Run(context.Background(), "/bin/sh", []string{"-c", "yes x | head -c 4096"}, 5*time.Second)
	if !res.Success {
		t.Fatalf("command failed: %q", res.Error)
	}
	if !strings.Contains(res.Stdout, "output truncated") {
		t.Fatalf("expected truncation marker, got %d bytes", len(res.Stdout))
	}
	if len(res.Stdout) > 200 {
		t.Fatalf("stdout not capped, got %d bytes", len(res.Stdout))
	}
}
