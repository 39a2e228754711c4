package controllers

import (
	"log/slog"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/warden/internal/perrors"
	"github.com/curaious/warden/internal/pubsub"
	"github.com/curaious/warden/internal/services"
	"github.com/curaious/warden/internal/services/approval"
)

func RegisterApprovalRoutes(r *router.Router, svc *services.Services) {
	r.GET("/api/approvals/pending", listPendingApprovals(svc))
	r.GET("/api/approvals/{id}", getApproval(svc))
	r.POST("/api/approvals/{id}/approve", resolveApproval(svc, true))
	r.POST("/api/approvals/{id}/deny", resolveApproval(svc, false))
}

func listPendingApprovals(svc *services.Services) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		userID, err := requestUserID(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Missing caller identity", perrors.NewErrInvalidRequest("missing caller identity", err))
			return
		}

		pending := svc.Approval.ListPendingByUser(stdCtx, userID)
		writeOK(ctx, stdCtx, "Pending approvals fetched", pending)
	}
}

func getApproval(svc *services.Services) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		id, err := pathParam(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Approval id is required", perrors.NewErrInvalidRequest("approval id is required", err))
			return
		}

		req, err := svc.Approval.Get(stdCtx, id)
		if err != nil {
			writeError(ctx, stdCtx, "Unable to fetch approval", err)
			return
		}

		writeOK(ctx, stdCtx, "Approval fetched", req)
	}
}

// resolveApproval applies a human decision. Resolving an already terminal
// request returns its state unchanged.
func resolveApproval(svc *services.Services, approve bool) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		id, err := pathParam(ctx, "id")
		if err != nil {
			writeError(ctx, stdCtx, "Approval id is required", perrors.NewErrInvalidRequest("approval id is required", err))
			return
		}

		var req *approval.Request
		if approve {
			req, err = svc.Approval.Approve(stdCtx, id)
		} else {
			req, err = svc.Approval.Deny(stdCtx, id)
		}
		if err != nil {
			writeError(ctx, stdCtx, "Unable to resolve approval", err)
			return
		}

		// The request may be pending on another replica.
		if svc.PubSub != nil {
			event := pubsub.DecisionEvent{RequestID: req.ID, Status: string(req.Status)}
			if err := svc.PubSub.Publish(stdCtx, event); err != nil {
				slog.ErrorContext(stdCtx, "Failed to broadcast approval decision", slog.Any("error", err))
			}
		}

		writeOK(ctx, stdCtx, "Approval resolved", req)
	}
}
