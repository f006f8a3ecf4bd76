// Package kit carries request-scoped values and the transport-neutral
// Endpoint shape shared by the HTTP API and the MCP tools.
package kit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/pagever/idgen"
)

// Endpoint is one operation, independent of how it is reached.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware decorates an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs each call of the endpoint named name at Debug, or at Warn
// when it fails.
func Logging(logger *slog.Logger, name string) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"duration", time.Since(start),
			}
			if id := GetRequestID(ctx); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if err != nil {
				logger.WarnContext(ctx, "kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "kit: endpoint", attrs...)
			}
			return resp, err
		}
	}
}

// TraceHeader carries a caller-supplied trace id.
const TraceHeader = "X-Trace-Id"

// RequestContext is HTTP middleware that stamps every request with a fresh
// request id, the caller's trace id (or the request id when none is sent),
// and the remote address.
func RequestContext(gen idgen.Generator) func(http.Handler) http.Handler {
	if gen == nil {
		gen = idgen.Prefixed("req_", idgen.Default)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := gen()
			trace := r.Header.Get(TraceHeader)
			if trace == "" {
				trace = id
			}
			ctx := WithRequestID(r.Context(), id)
			ctx = WithTraceID(ctx, trace)
			ctx = WithTransport(ctx, "http")
			ctx = WithRemoteAddr(ctx, r.RemoteAddr)
			w.Header().Set("X-Request-Id", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
