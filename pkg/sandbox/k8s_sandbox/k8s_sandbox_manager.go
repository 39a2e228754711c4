package k8s_sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/curaious/warden/pkg/sandbox"
)

// Config defines how sandbox pods are created.
type Config struct {
	// Namespace where sandbox pods will be created.
	Namespace string

	// Resource limits (K8s quantities, e.g. "500m", "512Mi").
	CPU    string
	Memory string

	// Port the sandbox daemon listens on inside the pod.
	Port int
}

// kubeManager is a Kubernetes-backed implementation of Manager.
type kubeManager struct {
	client *kubernetes.Clientset
	cfg    Config

	mu        sync.RWMutex
	bySession map[string]*sandbox.Handle
}

// NewManager creates a sandbox manager using the in-cluster configuration.
func NewManager(cfg Config) (sandbox.Manager, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = "warden-sandbox"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.CPU == "" {
		cfg.CPU = "500m"
	}
	if cfg.Memory == "" {
		cfg.Memory = "512Mi"
	}

	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	return &kubeManager{
		client:    client,
		cfg:       cfg,
		bySession: make(map[string]*sandbox.Handle),
	}, nil
}

func (m *kubeManager) CreateSandbox(ctx context.Context, image string, sessionID string) (*sandbox.Handle, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("sessionID is required")
	}

	// Fast path: already have a handle in memory.
	if h := m.getCached(sessionID); h != nil {
		return h, nil
	}

	podName := fmt.Sprintf("sandbox-%s", sessionID)

	// Check if pod already exists.
	pod, err := m.client.CoreV1().Pods(m.cfg.Namespace).Get(ctx, podName, metav1.GetOptions{})
	if err == nil && pod != nil {
		handle := &sandbox.Handle{
			SessionID: sessionID,
			Name:      pod.Name,
			IP:        pod.Status.PodIP,
			Port:      m.cfg.Port,
		}
		m.setCached(handle)
		return handle, nil
	}

	cpu, err := resource.ParseQuantity(m.cfg.CPU)
	if err != nil {
		return nil, fmt.Errorf("invalid cpu quantity %s: %w", m.cfg.CPU, err)
	}
	memory, err := resource.ParseQuantity(m.cfg.Memory)
	if err != nil {
		return nil, fmt.Errorf("invalid memory quantity %s: %w", m.cfg.Memory, err)
	}

	runAsNonRoot := true
	noPrivEsc := false

	podSpec := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      podName,
			Namespace: m.cfg.Namespace,
			Labels: map[string]string{
				"app":      "warden-sandbox",
				"session":  sessionID,
				"managed":  "warden",
				"provider": "sandbox-daemon",
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Volumes: []corev1.Volume{
				{
					Name: "workspace",
					VolumeSource: corev1.VolumeSource{
						EmptyDir: &corev1.EmptyDirVolumeSource{},
					},
				},
			},
			Containers: []corev1.Container{
				{
					Name:       "sandbox",
					Image:      image,
					WorkingDir: "/sandbox",
					VolumeMounts: []corev1.VolumeMount{
						{
							Name:      "workspace",
							MountPath: "/sandbox/workspace",
						},
					},
					Env: []corev1.EnvVar{
						{Name: "SANDBOX_ROOT", Value: "/sandbox/workspace"},
						{Name: "SANDBOX_PORT", Value: fmt.Sprintf("%d", m.cfg.Port)},
					},
					Ports: []corev1.ContainerPort{
						{
							Name:          "http",
							ContainerPort: int32(m.cfg.Port),
						},
					},
					Resources: corev1.ResourceRequirements{
						Limits: corev1.ResourceList{
							corev1.ResourceCPU:    cpu,
							corev1.ResourceMemory: memory,
						},
					},
					SecurityContext: &corev1.SecurityContext{
						RunAsNonRoot:             &runAsNonRoot,
						AllowPrivilegeEscalation: &noPrivEsc,
					},
				},
			},
		},
	}

	_, err = m.client.CoreV1().Pods(m.cfg.Namespace).Create(ctx, podSpec, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("create sandbox pod: %w", err)
	}

	// Wait for pod to be running and have an IP.
	pod, err = m.waitForRunning(ctx, podName)
	if err != nil {
		return nil, err
	}

	handle := &sandbox.Handle{
		SessionID: sessionID,
		Name:      pod.Name,
		IP:        pod.Status.PodIP,
		Port:      m.cfg.Port,
	}
	m.setCached(handle)

	return handle, nil
}

func (m *kubeManager) GetSandbox(_ context.Context, sessionID string) (*sandbox.Handle, error) {
	if h := m.getCached(sessionID); h != nil {
		return h, nil
	}
	return nil, &sandbox.NotFoundError{SessionID: sessionID}
}

func (m *kubeManager) DeleteSandbox(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	handle, ok := m.bySession[sessionID]
	if ok {
		delete(m.bySession, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	propagation := metav1.DeletePropagationBackground
	if err := m.client.CoreV1().Pods(m.cfg.Namespace).Delete(ctx, handle.Name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	}); err != nil {
		return fmt.Errorf("delete sandbox pod: %w", err)
	}
	return nil
}

func (m *kubeManager) waitForRunning(ctx context.Context, podName string) (*corev1.Pod, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.After(2 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for pod %s: %w", podName, ctx.Err())
		case <-timeout:
			return nil, fmt.Errorf("timed out waiting for pod %s to become running", podName)
		case <-ticker.C:
			pod, err := m.client.CoreV1().Pods(m.cfg.Namespace).Get(ctx, podName, metav1.GetOptions{})
			if err != nil {
				continue
			}
			if pod.Status.Phase == corev1.PodRunning && pod.Status.PodIP != "" {
				return pod, nil
			}
		}
	}
}

func (m *kubeManager) getCached(sessionID string) *sandbox.Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bySession[sessionID]
}

func (m *kubeManager) setCached(h *sandbox.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySession[h.SessionID] = h
}
