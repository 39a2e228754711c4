package controllers

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/warden/internal/perrors"
	"github.com/curaious/warden/internal/services"
)

func RegisterAuditRoutes(r *router.Router, svc *services.Services) {
	r.GET("/api/audit", listAuditEntries(svc))
}

// listAuditEntries returns the caller's trail, optionally filtered by action.
func listAuditEntries(svc *services.Services) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		userID, err := requestUserID(ctx)
		if err != nil {
			writeError(ctx, stdCtx, "Missing caller identity", perrors.NewErrInvalidRequest("missing caller identity", err))
			return
		}

		if action := string(ctx.QueryArgs().Peek("action")); action != "" {
			entries, err := svc.Audit.ListByAction(stdCtx, action)
			if err != nil {
				writeError(ctx, stdCtx, "Unable to fetch audit entries", err)
				return
			}
			writeOK(ctx, stdCtx, "Audit entries fetched", entries)
			return
		}

		entries, err := svc.Audit.ListByUser(stdCtx, userID)
		if err != nil {
			writeError(ctx, stdCtx, "Unable to fetch audit entries", err)
			return
		}
		writeOK(ctx, stdCtx, "Audit entries fetched", entries)
	}
}
