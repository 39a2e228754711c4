package docker_sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/curaious/warden/pkg/sandbox"
)

// defaultNetwork is the internal (egress-blocked) network sandboxes join
// when no network is configured. Created on first use.
const defaultNetwork = "warden-sandbox-internal"

type Config struct {
	// Network the container joins. Must be reachable from this process;
	// containers never join the host network. When empty, an internal
	// network with no outbound connectivity is created and used.
	Network string

	// Resource limits passed to docker run, e.g. "1.0" and "512m".
	CPUs   string
	Memory string

	// Port the sandbox daemon listens on inside the container.
	Port int
}

type DockerSandboxManager struct {
	cfg Config

	// manageNetwork is set when no network was configured and the manager
	// owns the default internal network.
	manageNetwork bool
	netOnce       sync.Once
	netErr        error

	mu        sync.RWMutex
	bySession map[string]*sandbox.Handle
}

func NewManager(cfg Config) *DockerSandboxManager {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.CPUs == "" {
		cfg.CPUs = "1.0"
	}
	if cfg.Memory == "" {
		cfg.Memory = "512m"
	}
	manageNetwork := cfg.Network == ""
	if manageNetwork {
		cfg.Network = defaultNetwork
	}

	return &DockerSandboxManager{
		cfg:           cfg,
		manageNetwork: manageNetwork,
		bySession:     make(map[string]*sandbox.Handle),
	}
}

func (m *DockerSandboxManager) CreateSandbox(ctx context.Context, image string, sessionID string) (*sandbox.Handle, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID is required")
	}

	// Fast path: cached
	if h := m.getCached(sessionID); h != nil {
		return h, nil
	}

	name := fmt.Sprintf("sandbox-%s", sessionID)

	// If container already exists, reuse it
	if ip, err := inspectContainerIP(ctx, name); err == nil && ip != "" {
		h := &sandbox.Handle{
			SessionID: sessionID,
			Name:      name,
			IP:        ip,
			Port:      m.cfg.Port,
		}
		m.setCached(h)
		return h, nil
	}

	if err := m.ensureNetwork(ctx); err != nil {
		return nil, fmt.Errorf("ensure network: %w", err)
	}

	if err := runDocker(ctx, m.runArgs(name, image)...); err != nil {
		return nil, fmt.Errorf("docker run: %w", err)
	}

	// Wait for container IP
	var ip string
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		ip, _ = inspectContainerIP(ctx, name)
		if ip != "" {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if ip == "" {
		return nil, fmt.Errorf("container %s did not report an IP", name)
	}

	h := &sandbox.Handle{
		SessionID: sessionID,
		Name:      name,
		IP:        ip,
		Port:      m.cfg.Port,
	}
	m.setCached(h)

	return h, nil
}

func (m *DockerSandboxManager) GetSandbox(_ context.Context, sessionID string) (*sandbox.Handle, error) {
	if h := m.getCached(sessionID); h != nil {
		return h, nil
	}
	return nil, &sandbox.NotFoundError{SessionID: sessionID}
}

func (m *DockerSandboxManager) DeleteSandbox(ctx context.Context, sessionID string) error {
	h := m.getCached(sessionID)
	if h == nil {
		return nil
	}

	if err := runDocker(ctx, "rm", "-f", h.Name); err != nil {
		return fmt.Errorf("docker rm: %w", err)
	}

	m.mu.Lock()
	delete(m.bySession, sessionID)
	m.mu.Unlock()
	return nil
}

// runArgs builds the docker run invocation for one sandbox container.
func (m *DockerSandboxManager) runArgs(name, image string) []string {
	return []string{
		"run", "-d", "--name", name,
		"--cpus", m.cfg.CPUs,
		"--memory", m.cfg.Memory,
		"--pids-limit", "256",
		"--security-opt", "no-new-privileges",
		"--network", m.cfg.Network,
		"-e", fmt.Sprintf("SANDBOX_PORT=%d", m.cfg.Port),
		"-e", "SANDBOX_ROOT=/workspace",
		image,
	}
}

// ensureNetwork creates the managed internal network on first use. The
// --internal flag blocks all outbound traffic, so sandboxed code cannot
// reach the host network or the internet. Networks configured explicitly
// are assumed to exist.
func (m *DockerSandboxManager) ensureNetwork(ctx context.Context) error {
	if !m.manageNetwork {
		return nil
	}
	m.netOnce.Do(func() {
		if err := runDocker(ctx, "network", "inspect", m.cfg.Network); err == nil {
			return
		}
		if err := runDocker(ctx, "network", "create", "--internal", m.cfg.Network); err != nil {
			// Lost a race with another replica creating the same network.
			if runDocker(ctx, "network", "inspect", m.cfg.Network) == nil {
				return
			}
			m.netErr = err
		}
	})
	return m.netErr
}

// --- helpers ---

func (m *DockerSandboxManager) getCached(sessionID string) *sandbox.Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bySession[sessionID]
}

func (m *DockerSandboxManager) setCached(h *sandbox.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySession[h.SessionID] = h
}

func runDocker(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "docker", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func inspectContainerIP(ctx context.Context, name string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", "inspect",
		"-f", "{{range .NetworkSettings.Networks}}{{.IPAddress}}{{end}}", name)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(out.String()), nil
}
