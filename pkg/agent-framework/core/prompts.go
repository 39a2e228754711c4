package core

import (
	"context"

	"github.com/curaious/warden/pkg/llm"
)

type SystemPromptProvider interface {
	GetPrompt(ctx context.Context, msgs []llm.Message) (string, error)
}

// StaticPrompt returns the same instruction for every run.
type StaticPrompt string

func (p StaticPrompt) GetPrompt(context.Context, []llm.Message) (string, error) {
	return string(p), nil
}

// ContextGatherer contributes supplementary context before the model is
// called. Gathering is best effort: a failing gatherer is skipped.
type ContextGatherer interface {
	Name() string
	Gather(ctx context.Context, userID string) (string, error)
}
