package tools

import (
	"context"
	"errors"

	"github.com/curaious/warden/pkg/agent-framework/core"
	"github.com/curaious/warden/pkg/execution"
	"github.com/curaious/warden/pkg/execution/fs"
	"github.com/curaious/warden/pkg/llm"
)

// FileReadTool covers the non-destructive filesystem operations.
type FileReadTool struct {
	*core.BaseTool
	executor *fs.Executor
}

func NewFileReadTool(executor *fs.Executor) *FileReadTool {
	return &FileReadTool{
		BaseTool: &core.BaseTool{
			Definition: &llm.ToolDefinition{
				Name:        "read_workspace",
				Description: "Read, list or search files inside the user's workspace",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"operation": map[string]any{
							"type":        "string",
							"enum":        []string{"readFile", "listDirectory", "search"},
							"description": "which read operation to perform",
						},
						"path": map[string]any{
							"type":        "string",
							"description": "path relative to the workspace root",
						},
						"pattern": map[string]any{
							"type":        "string",
							"description": "glob pattern, required for search",
						},
					},
					"required": []string{"operation", "path"},
				},
			},
			RequiresApproval: false,
		},
		executor: executor,
	}
}

func (t *FileReadTool) Execute(ctx context.Context, call *core.ToolCall) (string, error) {
	return runFsOperation(ctx, t.executor, call, []string{"readFile", "listDirectory", "search"})
}

// FileWriteTool covers the mutating filesystem operations. Deleting is
// destructive, so the tool is approval gated.
type FileWriteTool struct {
	*core.BaseTool
	executor *fs.Executor
}

func NewFileWriteTool(executor *fs.Executor) *FileWriteTool {
	return &FileWriteTool{
		BaseTool: &core.BaseTool{
			Definition: &llm.ToolDefinition{
				Name:        "write_workspace",
				Description: "Write, create or delete files inside the user's workspace",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"operation": map[string]any{
							"type":        "string",
							"enum":        []string{"writeFile", "createDirectory", "deleteFile"},
							"description": "which write operation to perform",
						},
						"path": map[string]any{
							"type":        "string",
							"description": "path relative to the workspace root",
						},
						"content": map[string]any{
							"type":        "string",
							"description": "file content, required for writeFile",
						},
					},
					"required": []string{"operation", "path"},
				},
			},
			RequiresApproval: true,
		},
		executor: executor,
	}
}

func (t *FileWriteTool) Execute(ctx context.Context, call *core.ToolCall) (string, error) {
	return runFsOperation(ctx, t.executor, call, []string{"writeFile", "createDirectory", "deleteFile"})
}

func runFsOperation(ctx context.Context, executor *fs.Executor, call *core.ToolCall, allowed []string) (string, error) {
	operation, _ := call.Arguments["operation"].(string)
	ok := false
	for _, op := range allowed {
		if operation == op {
			ok = true
			break
		}
	}
	if !ok {
		return "", errors.New("unsupported operation " + operation)
	}

	res := executor.Execute(ctx, &execution.Request{
		Kind:      execution.KindFilesystem,
		Operation: operation,
		Params:    call.Arguments,
		User:      call.User,
	})
	if !res.Success {
		return "", errors.New(res.Error)
	}
	return res.Data, nil
}
