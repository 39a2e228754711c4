package tools

import (
	"context"
	"errors"

	"github.com/curaious/warden/pkg/agent-framework/core"
	"github.com/curaious/warden/pkg/execution"
	"github.com/curaious/warden/pkg/execution/browser"
	"github.com/curaious/warden/pkg/llm"
)

// BrowserTool drives a headless browser for web automation.
type BrowserTool struct {
	*core.BaseTool
	executor *browser.Executor
}

func NewBrowserTool(executor *browser.Executor) *BrowserTool {
	return &BrowserTool{
		BaseTool: &core.BaseTool{
			Definition: &llm.ToolDefinition{
				Name:        "browse_web",
				Description: "Automate a headless browser: navigate, click, fill forms, capture screenshots or extract text",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"operation": map[string]any{
							"type":        "string",
							"enum":        []string{"navigate", "click", "fill", "screenshot", "getText"},
							"description": "which browser action to perform",
						},
						"url": map[string]any{
							"type":        "string",
							"description": "http or https page to act on",
						},
						"selector": map[string]any{
							"type":        "string",
							"description": "CSS selector, required for click, fill and getText",
						},
						"value": map[string]any{
							"type":        "string",
							"description": "text to type, required for fill",
						},
					},
					"required": []string{"operation", "url"},
				},
			},
			RequiresApproval: false,
		},
		executor: executor,
	}
}

func (t *BrowserTool) Execute(ctx context.Context, call *core.ToolCall) (string, error) {
	operation, _ := call.Arguments["operation"].(string)
	res := t.executor.Execute(ctx, &execution.Request{
		Kind:      execution.KindBrowser,
		Operation: operation,
		Params:    call.Arguments,
		User:      call.User,
	})
	if !res.Success {
		return "", errors.New(res.Error)
	}
	return res.Data, nil
}
