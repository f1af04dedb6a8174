// Package handler はゲートウェイのHTTPハンドラーを提供する。
//
// リクエストごとにテナントとブラウザセッションに対応するクライアント一式（clientset.Set）を組み立て、
// ブログストア・認証ストア・ルートガードの結果をJSONで返す。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taita/internal/clientset"
	"github.com/hitoshi/taita/internal/guard"
	"github.com/hitoshi/taita/internal/middleware"
	"github.com/hitoshi/taita/internal/tenant"
)

// ClientSets はリクエストに対応するクライアント一式を生成する。*clientset.Factory が満たす。
type ClientSets interface {
	New(ctx context.Context, tenantID, namespace, currentPath string) (*clientset.Set, error)
}

var _ ClientSets = (*clientset.Factory)(nil)

// SessionNamespacePrefix はブラウザセッションのストレージ名前空間の接頭辞。
// CLIプロファイル（"cli:"）と区別し、期限切れセッションの掃除対象を絞るために使う。
const SessionNamespacePrefix = "web:"

type contextKey string

var setContextKey = contextKey("clientset")

// NewClientSetMiddleware はテナントとセッションIDからclientset.Setを生成してコンテキストに格納する。
// TenantMiddlewareとSessionMiddlewareの後に配置する。
func NewClientSetMiddleware(sets ClientSets, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, _ := tenant.FromContext(r.Context())
			sessionID, err := middleware.SessionIDFromContext(r.Context())
			if err != nil {
				logger.Error("session missing for clientset", slog.String("path", r.URL.Path))
				middleware.WriteInternalServerError(w)
				return
			}

			set, err := sets.New(r.Context(), t, SessionNamespacePrefix+sessionID, r.URL.RequestURI())
			if err != nil {
				logger.Error("failed to build clientset",
					slog.String("tenant", t),
					slog.String("error", err.Error()),
				)
				middleware.WriteInternalServerError(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), setContextKey, set)))
		})
	}
}

// SetFromContext はリクエストコンテキストのclientset.Setを返す。
func SetFromContext(ctx context.Context) (*clientset.Set, bool) {
	set, ok := ctx.Value(setContextKey).(*clientset.Set)
	return set, ok && set != nil
}

// guardSession はガード用のSessionFuncを返す。
func guardSession(r *http.Request) guard.Session {
	set, ok := SetFromContext(r.Context())
	if !ok {
		return nil
	}
	return set.Auth
}
