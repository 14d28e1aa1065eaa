package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/coffeeshop/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, user_id, role, trace_id and span_id. Handlers and
// httputil.WriteError pick it up with logger.FromContext.
//
// Mount after RequestLogging and Tracing. Auth, mounted later on the API
// routes, extends the stored logger with the actor fields.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
