package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/bytedance/sonic"
)

// Client talks to the daemon running inside a sandbox container.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client for the given sandbox handle.
func NewClient(handle *Handle) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d", handle.IP, handle.Port),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// ExecRequest is the daemon's wire format for script execution.
type ExecRequest struct {
	Language       string `json:"language,omitempty"`
	Script         string `json:"script,omitempty"`
	Stdin          string `json:"stdin,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ExecResponse is the normalized result of an execution in the sandbox.
type ExecResponse struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	ExitCode      int    `json:"exit_code"`
	DurationMilli int64  `json:"duration_ms"`
}

// RunScript executes a code snippet under the named interpreter.
func (c *Client) RunScript(ctx context.Context, in *ExecRequest) (*ExecResponse, error) {
	var res ExecResponse
	if err := c.doJSON(ctx, http.MethodPost, "/exec/script", in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health probes the daemon.
func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// doJSON sends a JSON request and decodes a JSON response (if out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, p string, in any, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	u.Path = path.Join(u.Path, p)

	var body io.Reader
	if in != nil {
		buf, err := sonic.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sandbox error: status=%d body=%s", resp.StatusCode, string(b))
	}

	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
