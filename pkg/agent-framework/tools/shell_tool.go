package tools

import (
	"context"
	"errors"

	"github.com/curaious/warden/pkg/agent-framework/core"
	"github.com/curaious/warden/pkg/execution"
	"github.com/curaious/warden/pkg/execution/shell"
	"github.com/curaious/warden/pkg/llm"
)

// ShellTool runs host commands through the validating shell executor. It
// always requires approval.
type ShellTool struct {
	*core.BaseTool
	executor *shell.Executor
}

func NewShellTool(executor *shell.Executor) *ShellTool {
	return &ShellTool{
		BaseTool: &core.BaseTool{
			Definition: &llm.ToolDefinition{
				Name:        "run_shell",
				Description: "Run a command on the host and return its output",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"command": map[string]any{
							"type":        "string",
							"description": "executable to run",
						},
						"args": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "arguments passed to the command",
						},
						"timeout_ms": map[string]any{
							"type":        "number",
							"description": "optional timeout in milliseconds",
						},
					},
					"required": []string{"command"},
				},
			},
			RequiresApproval: true,
		},
		executor: executor,
	}
}

func (t *ShellTool) Execute(ctx context.Context, call *core.ToolCall) (string, error) {
	res := t.executor.Execute(ctx, &execution.Request{
		Kind:      execution.KindShell,
		Operation: "run",
		Params:    call.Arguments,
		User:      call.User,
	})
	if !res.Success {
		return "", errors.New(res.Error)
	}
	return res.Data, nil
}
