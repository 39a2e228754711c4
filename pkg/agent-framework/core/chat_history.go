package core

import (
	"context"
	"sync"

	"github.com/curaious/warden/pkg/llm"
)

type ChatHistory interface {
	// AddMessages appends new messages to the conversation.
	AddMessages(ctx context.Context, messages []llm.Message, usage *llm.Usage)

	// GetMessages returns the conversation so far.
	GetMessages(ctx context.Context) ([]llm.Message, error)

	// GetUsage returns the accumulated token usage.
	GetUsage() llm.Usage
}

// InMemoryHistory keeps the conversation for the lifetime of one run.
type InMemoryHistory struct {
	mu       sync.Mutex
	messages []llm.Message
	usage    llm.Usage
}

func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{}
}

func (h *InMemoryHistory) AddMessages(_ context.Context, messages []llm.Message, usage *llm.Usage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, messages...)
	if usage != nil {
		h.usage.PromptTokens += usage.PromptTokens
		h.usage.CompletionTokens += usage.CompletionTokens
		h.usage.TotalTokens += usage.TotalTokens
	}
}

func (h *InMemoryHistory) GetMessages(_ context.Context) ([]llm.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]llm.Message, len(h.messages))
	copy(out, h.messages)
	return out, nil
}

func (h *InMemoryHistory) GetUsage() llm.Usage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.usage
}
