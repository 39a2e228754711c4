package api

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/curaious/warden/internal/api/controllers"
	"github.com/curaious/warden/internal/ratelimit"
)

var tracePropagator = propagation.TraceContext{}

func (s *Server) initRoutes() fasthttp.RequestHandler {
	r := router.New()

	r.GET("/api/health", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		_, _ = ctx.Write([]byte("OK"))
	})

	controllers.RegisterExecutionRoutes(r, s.services)
	controllers.RegisterApprovalRoutes(r, s.services)
	controllers.RegisterWorkspaceRoutes(r, s.services)
	controllers.RegisterAuditRoutes(r, s.services)

	return s.withMiddlewares(r.Handler)
}

func (s *Server) withMiddlewares(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	limit := ratelimit.Limit{
		Requests: s.conf.RATE_LIMIT_REQUESTS,
		Window:   time.Duration(s.conf.RATE_LIMIT_WINDOW_MS) * time.Millisecond,
	}

	return func(ctx *fasthttp.RequestCtx) {
		applyCORS(ctx)
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		start := time.Now()
		requestURI := string(ctx.URI().FullURI())
		slog.Info("Started processing", slog.String("method", string(ctx.Method())), slog.String("request_uri", requestURI))

		h := http.Header{}
		ctx.Request.Header.VisitAll(func(k, v []byte) {
			h[string(k)] = []string{string(v)}
		})
		traceCtx := tracePropagator.Extract(ctx, propagation.HeaderCarrier(h))
		ctx.SetUserValue("traceCtx", traceCtx)

		// Per-user rate limit; anonymous callers share one bucket.
		if string(ctx.Path()) != "/api/health" {
			key := string(ctx.Request.Header.Peek("X-User-ID"))
			if key == "" {
				key = "anonymous"
			}
			allowed, err := s.limiter.Allow(traceCtx, key, limit)
			if err != nil {
				slog.Warn("Rate limit check failed", slog.Any("error", err))
			} else if !allowed {
				ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
				return
			}
		}

		next(ctx)

		slog.Info("Finished processing", slog.String("method", string(ctx.Method())), slog.String("request_uri", requestURI), slog.Duration("duration", time.Since(start)))
	}
}

func applyCORS(ctx *fasthttp.RequestCtx) {
	headers := &ctx.Response.Header
	headers.Set("Access-Control-Allow-Origin", string(ctx.Request.Header.Peek("Origin")))
	headers.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS,PATCH")
	headers.Set("Access-Control-Allow-Headers", os.Getenv("ALLOWED_HEADERS"))
	headers.Set("Access-Control-Allow-Credentials", "true")
}
