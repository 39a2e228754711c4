package controllers

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/warden/internal/perrors"
	"github.com/curaious/warden/internal/services"
)

type createWorkspaceRequest struct {
	Name string `json:"name"`
}

func RegisterWorkspaceRoutes(r *router.Router, svc *services.Services) {
	r.POST("/api/workspaces", createWorkspace(svc))
	r.GET("/api/workspaces", listWorkspaces(svc))
	r.DELETE("/api/workspaces/{id}", deleteWorkspace(svc))
}

func createWorkspace(svc *services.Services) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		userID, err := requestUserID(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Missing caller identity", perrors.NewErrInvalidRequest("missing caller identity", err))
			return
		}

		var req createWorkspaceRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("invalid request body", err))
			return
		}

		ws, err := svc.Workspace.Create(stdCtx, userID, req.Name)
		if err != nil {
			writeError(ctx, stdCtx, "Unable to create workspace", err)
			return
		}

		writeOK(ctx, stdCtx, "Workspace created", ws)
	}
}

func listWorkspaces(svc *services.Services) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		userID, err := requestUserID(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Missing caller identity", perrors.NewErrInvalidRequest("missing caller identity", err))
			return
		}

		writeOK(ctx, stdCtx, "Workspaces fetched", svc.Workspace.ListByUser(stdCtx, userID))
	}
}

func deleteWorkspace(svc *services.Services) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		userID, err := requestUserID(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Missing caller identity", perrors.NewErrInvalidRequest("missing caller identity", err))
			return
		}

		id, err := pathParam(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Workspace id is required", perrors.NewErrInvalidRequest("workspace id is required", err))
			return
		}

		// Only the owner may delete a workspace.
		ws, err := svc.Workspace.Get(stdCtx, id)
		if err != nil {
			writeError(ctx, stdCtx, "Unable to fetch workspace", err)
			return
		}
		if ws.UserID != userID {
			writeError(ctx, stdCtx, "Workspace does not belong to caller",
				perrors.New(perrors.ErrCodeForbidden, "workspace does not belong to caller", nil))
			return
		}

		if err := svc.Workspace.Delete(stdCtx, id); err != nil {
			writeError(ctx, stdCtx, "Unable to delete workspace", err)
			return
		}

		writeOK(ctx, stdCtx, "Workspace deleted", nil)
	}
}
