package docker_sandbox

import (
	"slices"
	"testing"
)

func networkArg(args []string) string {
	for i, a := range args {
		if a == "--network" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestRunArgsDefaultInternalNetwork(t *testing.T) {
	m := NewManager(Config{})
	args := m.runArgs("sandbox-abc", "warden-sandbox:latest")

	if got := networkArg(args); got != defaultNetwork {
		t.Fatalf("expected default internal network %q, got %q", defaultNetwork, got)
	}
	if !m.manageNetwork {
		t.Fatal("manager should own the default network")
	}
	if !slices.Contains(args, "no-new-privileges") {
		t.Fatal("missing no-new-privileges")
	}
}

func TestRunArgsExplicitNetwork(t *testing.T) {
	m := NewManager(Config{Network: "ops-net"})
	args := m.runArgs("sandbox-abc", "warden-sandbox:latest")

	if got := networkArg(args); got != "ops-net" {
		t.Fatalf("expected configured network, got %q", got)
	}
	if m.manageNetwork {
		t.Fatal("manager should not own an explicitly configured network")
	}
}
