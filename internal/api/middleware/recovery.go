package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/contractsentinel/internal/api/response"
)

// PanicCounter counts handler panics by route pattern.
type PanicCounter interface {
	IncHTTPPanic(route string)
}

// NewRecovery turns a handler panic into a 500 response. The panic is logged
// with the tenant that made the request and counted on c, which may be nil.
func NewRecovery(c PanicCounter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, scope := withScope(r)
			defer func() {
				if err := recover(); err != nil {
					route := routePattern(r)
					slog.Error("panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
						"route", route,
						"tenant_id", scope.tenantID,
					)
					if c != nil {
						c.IncHTTPPanic(route)
					}
					response.Error(w, http.StatusInternalServerError,
						"INTERNAL_ERROR", "An unexpected error occurred", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// routePattern is the matched chi pattern, or "unmatched" outside a router.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
