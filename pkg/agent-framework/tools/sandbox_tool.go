package tools

import (
	"context"
	"errors"

	"github.com/curaious/warden/pkg/agent-framework/core"
	"github.com/curaious/warden/pkg/execution"
	"github.com/curaious/warden/pkg/llm"
	"github.com/curaious/warden/pkg/sandbox"
)

// SandboxTool runs code snippets in an isolated sandbox.
type SandboxTool struct {
	*core.BaseTool
	executor *sandbox.Executor
}

func NewSandboxTool(executor *sandbox.Executor) *SandboxTool {
	return &SandboxTool{
		BaseTool: &core.BaseTool{
			Definition: &llm.ToolDefinition{
				Name:        "run_code",
				Description: "Execute a Python or JavaScript snippet in a sandbox and return its output",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"language": map[string]any{
							"type":        "string",
							"enum":        []string{"python", "javascript"},
							"description": "interpreter to run the code under",
						},
						"code": map[string]any{
							"type":        "string",
							"description": "source code to execute",
						},
						"input": map[string]any{
							"type":        "string",
							"description": "optional data fed to the program on stdin",
						},
						"timeout_ms": map[string]any{
							"type":        "number",
							"description": "optional timeout in milliseconds",
						},
					},
					"required": []string{"code"},
				},
			},
			RequiresApproval: false,
		},
		executor: executor,
	}
}

func (t *SandboxTool) Execute(ctx context.Context, call *core.ToolCall) (string, error) {
	res := t.executor.Execute(ctx, &execution.Request{
		Kind:      execution.KindSandbox,
		Operation: "run",
		Params:    call.Arguments,
		User:      call.User,
	})
	if !res.Success {
		return "", errors.New(res.Error)
	}
	return res.Data, nil
}
