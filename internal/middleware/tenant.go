package middleware

import (
	"net/http"

	"github.com/hitoshi/taita/internal/tenant"
)

// NewTenantMiddleware はリクエストのホスト名からテナントを解決してコンテキストに格納する。
// 解決したテナントは X-Tenant レスポンスヘッダーでも返す。
func NewTenantMiddleware(resolver *tenant.Resolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t := resolver.FromRequest(r)
			w.Header().Set(tenant.HeaderTenant, t)
			next.ServeHTTP(w, r.WithContext(tenant.WithTenant(r.Context(), t)))
		})
	}
}
