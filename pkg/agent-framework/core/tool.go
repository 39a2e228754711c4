package core

import (
	"context"

	"github.com/curaious/warden/internal/services/workspace"
	"github.com/curaious/warden/pkg/llm"
)

// ToolCall is one invocation requested by the model, with the identity of
// the user the agent is acting for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	User      *workspace.UserContext
}

type Tool interface {
	Execute(ctx context.Context, call *ToolCall) (string, error)
	Tool(ctx context.Context) *llm.ToolDefinition
	NeedApproval() bool
}

type BaseTool struct {
	Definition       *llm.ToolDefinition
	RequiresApproval bool
}

func (t *BaseTool) Tool(_ context.Context) *llm.ToolDefinition {
	return t.Definition
}

func (t *BaseTool) NeedApproval() bool {
	return t.RequiresApproval
}
