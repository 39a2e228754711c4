package llm

import (
	"context"
	"fmt"
	"slices"
)

// Provider is a model backend capable of tool-calling completions.
type Provider interface {
	Complete(ctx context.Context, in *Request) (*Response, error)
}

type ProviderName string

var (
	ProviderNameOpenAI    ProviderName = "OpenAI"
	ProviderNameAnthropic ProviderName = "Anthropic"
	ProviderNameOllama    ProviderName = "Ollama"
)

func GetAllProviderNames() []ProviderName {
	return []ProviderName{
		ProviderNameOpenAI,
		ProviderNameAnthropic,
		ProviderNameOllama,
	}
}

func (p *ProviderName) IsValid() bool {
	return slices.Contains(GetAllProviderNames(), *p)
}

// defaultBaseURLs per provider. Anthropic and Ollama are reached through
// their OpenAI-compatible endpoints.
var defaultBaseURLs = map[ProviderName]string{
	ProviderNameOpenAI:    "https://api.openai.com/v1",
	ProviderNameAnthropic: "https://api.anthropic.com/v1",
	ProviderNameOllama:    "http://localhost:11434/v1",
}

// NewProvider constructs the backend for the named provider. An explicit
// baseURL overrides the provider's default endpoint.
func NewProvider(name ProviderName, baseURL, apiKey string) (Provider, error) {
	if !name.IsValid() {
		return nil, fmt.Errorf("unknown provider %q, valid providers: %v", name, GetAllProviderNames())
	}
	if baseURL == "" {
		baseURL = defaultBaseURLs[name]
	}
	return NewOpenAIProvider(baseURL, apiKey), nil
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a callable tool to the model. Parameters is a
// JSON schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Request struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   *int64           `json:"max_tokens,omitempty"`
}

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is one completion turn. Finished is true when the model produced
// a final answer rather than tool calls.
type Response struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
	Finished  bool       `json:"finished"`
}
