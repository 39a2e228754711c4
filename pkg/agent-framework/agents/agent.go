package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/curaious/warden/internal/perrors"
	"github.com/curaious/warden/internal/services/approval"
	"github.com/curaious/warden/internal/services/audit"
	"github.com/curaious/warden/internal/services/workspace"
	"github.com/curaious/warden/pkg/agent-framework/core"
	"github.com/curaious/warden/pkg/llm"
	"github.com/curaious/warden/pkg/safety"
)

var tracer = otel.Tracer("Agent")

// Agent runs the gated request pipeline: input passes the safety gates,
// context is gathered, then the model is called in a bounded tool loop where
// every tool call is validated, possibly held for approval, executed, and
// fed back wrapped as untrusted data.
type Agent struct {
	name        string
	model       string
	history     core.ChatHistory
	instruction core.SystemPromptProvider
	tools       []core.Tool
	gatherers   []core.ContextGatherer
	llm         llm.Provider

	guard     *safety.PromptGuard
	policy    *safety.ConstitutionalPolicy
	approvals *approval.ApprovalService
	auditor   audit.Recorder

	maxIterations   int
	approvalTimeout time.Duration
}

type AgentOptions struct {
	Name        string
	Model       string
	History     core.ChatHistory
	Instruction core.SystemPromptProvider
	Tools       []core.Tool
	Gatherers   []core.ContextGatherer
	LLM         llm.Provider

	Guard     *safety.PromptGuard
	Policy    *safety.ConstitutionalPolicy
	Approvals *approval.ApprovalService
	Auditor   audit.Recorder

	MaxIterations   int
	ApprovalTimeout time.Duration
}

func NewAgent(opts *AgentOptions) *Agent {
	if opts.History == nil {
		opts.History = core.NewInMemoryHistory()
	}
	if opts.Guard == nil {
		opts.Guard = safety.NewPromptGuard()
	}
	if opts.Policy == nil {
		opts.Policy = safety.NewConstitutionalPolicy()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	if opts.ApprovalTimeout <= 0 {
		opts.ApprovalTimeout = 5 * time.Minute
	}
	return &Agent{
		name:            opts.Name,
		model:           opts.Model,
		history:         opts.History,
		instruction:     opts.Instruction,
		tools:           opts.Tools,
		gatherers:       opts.Gatherers,
		llm:             opts.LLM,
		guard:           opts.Guard,
		policy:          opts.Policy,
		approvals:       opts.Approvals,
		auditor:         opts.Auditor,
		maxIterations:   opts.MaxIterations,
		approvalTimeout: opts.ApprovalTimeout,
	}
}

type AgentInput struct {
	User    *workspace.UserContext
	Message string

	// Callback receives streaming events when set.
	Callback func(event *StreamEvent)
}

type StreamEvent struct {
	Type       string `json:"type"` // "text", "tool_call", "tool_result", "done"
	Content    string `json:"content,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type AgentOutput struct {
	Content    string    `json:"content"`
	Iterations int       `json:"iterations"`
	Usage      llm.Usage `json:"usage"`
	// Exhausted is true when the iteration budget ran out before the model
	// produced a final answer.
	Exhausted bool `json:"exhausted"`
}

// Execute runs one request through the pipeline. Safety rejections are
// returned as errors before any model call or side effect.
func (a *Agent) Execute(ctx context.Context, in *AgentInput) (*AgentOutput, error) {
	userID := ""
	if in.User != nil {
		userID = in.User.UserID
	}

	ctx, span := tracer.Start(ctx, "Agent.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent_name", a.name),
		attribute.String("user_id", userID),
	)

	// Fail closed: the model is never called with input either gate rejects.
	sanitized := a.guard.Sanitize(in.Message)
	if v := a.guard.Validate(sanitized); !v.Safe {
		a.record(ctx, userID, "request_refused", a.name, string(v.Flag), "refused")
		return nil, perrors.NewErrRefused(v.Reason, nil, map[string]interface{}{"flag": v.Flag})
	}
	if v := a.policy.ValidateInput(sanitized); !v.Safe {
		a.record(ctx, userID, "request_refused", a.name, string(v.Flag), "refused")
		return nil, perrors.NewErrRefused(v.Reason, nil, map[string]interface{}{"flag": v.Flag})
	}

	messages, err := a.buildInitialMessages(ctx, userID, sanitized)
	if err != nil {
		return nil, err
	}
	a.history.AddMessages(ctx, messages, nil)

	out := &AgentOutput{}
	lastContent := ""

	for i := 0; i < a.maxIterations; i++ {
		out.Iterations = i + 1

		msgs, err := a.history.GetMessages(ctx)
		if err != nil {
			return nil, perrors.NewErrInternalServerError("failed to load conversation", err)
		}

		llmCtx, llmSpan := tracer.Start(ctx, "Agent.LLM.Complete")
		llmSpan.SetAttributes(attribute.Int("iteration", i))
		resp, err := a.llm.Complete(llmCtx, &llm.Request{
			Model:    a.model,
			Messages: msgs,
			Tools:    a.toolDefinitions(ctx),
		})
		if err != nil {
			llmSpan.RecordError(err)
			llmSpan.SetStatus(codes.Error, err.Error())
			llmSpan.End()
			return nil, perrors.New(perrors.ErrCodeExecutionFailed, "model call failed", err)
		}
		llmSpan.End()

		assistant := llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		a.history.AddMessages(ctx, []llm.Message{assistant}, &resp.Usage)

		if resp.Content != "" {
			lastContent = resp.Content
			emit(in, &StreamEvent{Type: "text", Content: a.policy.SanitizeOutput(resp.Content)})
		}

		if resp.Finished {
			out.Content = a.policy.SanitizeOutput(resp.Content)
			out.Usage = a.history.GetUsage()
			emit(in, &StreamEvent{Type: "done"})
			return out, nil
		}

		// Tool calls run sequentially in the order the model emitted them.
		for _, call := range resp.ToolCalls {
			result := a.runToolCall(ctx, in, &core.ToolCall{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
				User:      in.User,
			})
			a.history.AddMessages(ctx, []llm.Message{{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    result,
			}}, nil)
			emit(in, &StreamEvent{Type: "tool_result", ToolName: call.Name, ToolCallID: call.ID, Content: result})
		}
	}

	slog.WarnContext(ctx, "iteration budget exhausted",
		"agent", a.name,
		"user_id", userID,
		"iterations", a.maxIterations,
	)
	out.Content = a.policy.SanitizeOutput(lastContent)
	out.Usage = a.history.GetUsage()
	out.Exhausted = true
	emit(in, &StreamEvent{Type: "done"})
	return out, nil
}

// runToolCall applies the per-call gates and executes the tool. Failures
// become tool output so the model can react, never a dropped turn.
func (a *Agent) runToolCall(ctx context.Context, in *AgentInput, call *core.ToolCall) string {
	userID := ""
	if call.User != nil {
		userID = call.User.UserID
	}

	ctx, span := tracer.Start(ctx, "Agent.ToolCall")
	defer span.End()
	span.SetAttributes(attribute.String("tool_name", call.Name))

	emit(in, &StreamEvent{Type: "tool_call", ToolName: call.Name, ToolCallID: call.ID})

	tool := a.findTool(ctx, call.Name)
	if tool == nil {
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}

	if v := a.policy.ValidateToolUsage(call.Name, call.Arguments); !v.Safe {
		a.record(ctx, userID, "tool_call_blocked", call.Name, v.Reason, "blocked")
		return fmt.Sprintf("error: tool call blocked: %s", v.Reason)
	}

	if tool.NeedApproval() && a.approvals != nil {
		status, err := a.gateOnApproval(ctx, userID, call)
		if err != nil {
			return fmt.Sprintf("error: approval failed: %v", err)
		}
		if status == approval.StatusDenied {
			a.record(ctx, userID, "tool_call_denied", call.Name, "", "denied")
			return "error: tool call denied by approval policy"
		}
	}

	a.record(ctx, userID, "tool_call_executed", call.Name, "", "started")
	output, err := tool.Execute(ctx, call)
	if err != nil {
		a.record(ctx, userID, "tool_call_failed", call.Name, err.Error(), "failed")
		return fmt.Sprintf("error: %v", err)
	}

	// Tool output is data, not instructions.
	return safety.WrapUntrusted(call.Name, output)
}

func (a *Agent) gateOnApproval(ctx context.Context, userID string, call *core.ToolCall) (approval.Status, error) {
	details, err := sonic.MarshalString(call.Arguments)
	if err != nil {
		details = "{}"
	}
	req, err := a.approvals.Request(ctx, userID, call.Name, details, approval.RiskHigh)
	if err != nil {
		return approval.StatusDenied, err
	}
	if req.Status.Terminal() {
		return req.Status, nil
	}
	return a.approvals.Await(ctx, req.ID, a.approvalTimeout)
}

func (a *Agent) buildInitialMessages(ctx context.Context, userID, userMessage string) ([]llm.Message, error) {
	var messages []llm.Message

	if a.instruction != nil {
		prompt, err := a.instruction.GetPrompt(ctx, nil)
		if err != nil {
			return nil, perrors.NewErrInternalServerError("failed to build system prompt", err)
		}
		if prompt != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: prompt})
		}
	}

	// Context gathering is best effort: a failing gatherer degrades the
	// prompt, not the request.
	var sections []string
	for _, g := range a.gatherers {
		section, err := g.Gather(ctx, userID)
		if err != nil {
			slog.WarnContext(ctx, "context gatherer failed",
				"gatherer", g.Name(),
				"error", err.Error(),
			)
			continue
		}
		if section != "" {
			sections = append(sections, safety.WrapUntrusted(g.Name(), section))
		}
	}
	if len(sections) > 0 {
		messages = append(messages, llm.Message{
			Role:    llm.RoleSystem,
			Content: "Supplementary context:\n" + strings.Join(sections, "\n"),
		})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
	return messages, nil
}

func (a *Agent) toolDefinitions(ctx context.Context) []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(a.tools))
	for _, tool := range a.tools {
		if def := tool.Tool(ctx); def != nil {
			defs = append(defs, *def)
		}
	}
	return defs
}

func (a *Agent) findTool(ctx context.Context, name string) core.Tool {
	for _, tool := range a.tools {
		if def := tool.Tool(ctx); def != nil && def.Name == name {
			return tool
		}
	}
	return nil
}

func (a *Agent) record(ctx context.Context, userID, action, resource, details, status string) {
	if a.auditor == nil {
		return
	}
	if err := a.auditor.Record(ctx, userID, action, resource, details, status); err != nil {
		slog.WarnContext(ctx, "audit record failed", "action", action, "error", err.Error())
	}
}

func emit(in *AgentInput, event *StreamEvent) {
	if in.Callback != nil {
		in.Callback(event)
	}
}
