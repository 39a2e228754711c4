package controllers

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/warden/internal/perrors"
	"github.com/curaious/warden/internal/services"
	"github.com/curaious/warden/internal/services/workspace"
	"github.com/curaious/warden/pkg/agent-framework/agents"
	"github.com/curaious/warden/pkg/execution"
)

type executeRequest struct {
	Kind        string         `json:"type"`
	Operation   string         `json:"operation"`
	Params      map[string]any `json:"params"`
	WorkspaceID string         `json:"workspace_id"`
}

type converseRequest struct {
	Message     string `json:"message"`
	WorkspaceID string `json:"workspace_id"`
}

func RegisterExecutionRoutes(r *router.Router, svc *services.Services) {
	r.POST("/api/execute", executeAction(svc))
	r.POST("/api/converse", converse(svc))
}

// executeAction runs one execution request directly, without the model in
// the loop. The same backends and workspace checks apply.
func executeAction(svc *services.Services) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		userID, err := requestUserID(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Missing caller identity", perrors.NewErrInvalidRequest("missing caller identity", err))
			return
		}

		var req executeRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("invalid request body", err))
			return
		}

		res, err := svc.Dispatcher.Dispatch(stdCtx, &execution.Request{
			Kind:      execution.Kind(req.Kind),
			Operation: req.Operation,
			Params:    req.Params,
			User:      &workspace.UserContext{UserID: userID, WorkspaceID: req.WorkspaceID},
		})
		if err != nil {
			writeError(ctx, stdCtx, "Unable to dispatch execution request", err)
			return
		}

		writeOK(ctx, stdCtx, "Execution completed", res)
	}
}

// converse runs one message through the agent pipeline.
func converse(svc *services.Services) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		userID, err := requestUserID(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Missing caller identity", perrors.NewErrInvalidRequest("missing caller identity", err))
			return
		}

		var req converseRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("invalid request body", err))
			return
		}
		if req.Message == "" {
			writeError(ctx, stdCtx, "Message is required", perrors.NewErrInvalidRequest("message is required", nil))
			return
		}

		agent := svc.BuildAgent()
		out, err := agent.Execute(stdCtx, &agents.AgentInput{
			User:    &workspace.UserContext{UserID: userID, WorkspaceID: req.WorkspaceID},
			Message: req.Message,
		})
		if err != nil {
			writeError(ctx, stdCtx, "Unable to process the request", err)
			return
		}

		writeOK(ctx, stdCtx, "Conversation turn completed", out)
	}
}
