// Package middleware はゲートウェイのHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// SessionCookieName はブラウザセッションIDを保持するCookieの名前。
const SessionCookieName = "taita_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionIDContextKey はリクエストコンテキストにブラウザセッションIDを格納するためのキー。
var sessionIDContextKey = contextKey("session_id")

// SessionConfig はブラウザセッションCookieの設定。
type SessionConfig struct {
	MaxAge       int
	CookieSecure bool
}

// NewSessionMiddleware はブラウザセッションIDをCookieから読み取り、なければ発行するミドルウェアを返す。
// セッションIDはクライアント側の保存領域（認証トークン等）の名前空間として使う。
// 不正な形式のIDは破棄して発行し直す。
func NewSessionMiddleware(cfg SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				if parsed, err := uuid.Parse(cookie.Value); err == nil {
					id = parsed.String()
				}
			}

			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   cfg.MaxAge,
					HttpOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSessionID(r.Context(), id)))
		})
	}
}

// SessionIDFromContext はリクエストコンテキストからブラウザセッションIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return id, nil
}

// ContextWithSessionID はコンテキストにブラウザセッションIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, id)
}
