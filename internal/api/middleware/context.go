package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const (
	tenantIDKey  contextKey = "tenant_id"
	keyPrefixKey contextKey = "key_prefix"
	scopeKey     contextKey = "request_scope"
)

// requestScope is shared by every context derived from one request, so the
// outer middleware can see the tenant that Auth resolves further in.
type requestScope struct {
	tenantID string
}

// withScope returns r carrying a requestScope, reusing one already present.
func withScope(r *http.Request) (*http.Request, *requestScope) {
	if s, ok := r.Context().Value(scopeKey).(*requestScope); ok {
		return r, s
	}
	s := &requestScope{}
	return r.WithContext(context.WithValue(r.Context(), scopeKey, s)), s
}

func SetTenantID(ctx context.Context, id string) context.Context {
	if s, ok := ctx.Value(scopeKey).(*requestScope); ok {
		s.tenantID = id
	}
	return context.WithValue(ctx, tenantIDKey, id)
}

func GetTenantID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(tenantIDKey).(string)
	return id, ok && id != ""
}

func setKeyPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, keyPrefixKey, prefix)
}

func getKeyPrefix(r *http.Request) (string, bool) {
	prefix, ok := r.Context().Value(keyPrefixKey).(string)
	return prefix, ok
}

// ExportedKeyPrefixKey returns the context key for key_prefix (for testing).
func ExportedKeyPrefixKey() contextKey {
	return keyPrefixKey
}
