// Package guard は画面遷移ごとに認証状態とルートのメタ情報からアクセス可否を判定する。
package guard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/taita/internal/model"
)

// RouteMeta はルートに付与するアクセス条件。
type RouteMeta struct {
	RequiresAuth          bool
	RequiresGuest         bool
	Roles                 []string
	Permissions           []string
	RequiresVerifiedEmail bool
	RequiresTwoFactor     bool
}

// Route は遷移先のルート。
// Matched は親から末端までの一致したルートのメタ情報、Meta は末端ルートのメタ情報。
type Route struct {
	FullPath string
	Matched  []RouteMeta
	Meta     RouteMeta
}

// requiresAuth は一致したいずれかのルートが認証を要求するかを返す。
func (r Route) requiresAuth() bool {
	if r.Meta.RequiresAuth {
		return true
	}
	for _, m := range r.Matched {
		if m.RequiresAuth {
			return true
		}
	}
	return false
}

// requiresGuest は一致したいずれかのルートが未ログイン限定かを返す。
func (r Route) requiresGuest() bool {
	if r.Meta.RequiresGuest {
		return true
	}
	for _, m := range r.Matched {
		if m.RequiresGuest {
			return true
		}
	}
	return false
}

// Session はガードが参照する認証状態。*auth.Store が満たす。
type Session interface {
	IsAuthenticated() bool
	Token() string
	User() *model.User
	FetchCurrentUser(ctx context.Context) (*model.User, error)
	HasAnyRole(roles ...string) bool
	HasAnyPermission(permissions ...string) bool
}

// Config はリダイレクト先の設定。
type Config struct {
	LoginRoute        string
	HomeRoute         string
	UnauthorizedRoute string
	VerifyEmailRoute  string
	TwoFactorRoute    string
	// RedirectParam はログイン後の戻り先を渡すクエリパラメータ名。
	RedirectParam string
}

// DefaultConfig は既定のリダイレクト先を返す。
func DefaultConfig() Config {
	return Config{
		LoginRoute:        "/auth/login",
		HomeRoute:         "/dashboard",
		UnauthorizedRoute: "/unauthorized",
		VerifyEmailRoute:  "/verify-email",
		TwoFactorRoute:    "/two-factor-challenge",
		RedirectParam:     "redirect",
	}
}

// Reason は判定理由。
type Reason string

const (
	ReasonAllowed           Reason = "allowed"
	ReasonGuestOnly         Reason = "guest_only"
	ReasonUnauthenticated   Reason = "unauthenticated"
	ReasonMissingRole       Reason = "missing_role"
	ReasonMissingPermission Reason = "missing_permission"
	ReasonUnverifiedEmail   Reason = "unverified_email"
	ReasonTwoFactorRequired Reason = "two_factor_required"
)

// Decision は判定結果。Allowがfalseの場合はRedirectへ遷移させる。
type Decision struct {
	Allow    bool
	Redirect string
	Reason   Reason
}

// Guard はルートガード。
type Guard struct {
	cfg    Config
	logger *slog.Logger
}

// New はGuardを生成する。空の設定項目は既定値で補う。
func New(cfg Config, logger *slog.Logger) *Guard {
	def := DefaultConfig()
	if cfg.LoginRoute == "" {
		cfg.LoginRoute = def.LoginRoute
	}
	if cfg.HomeRoute == "" {
		cfg.HomeRoute = def.HomeRoute
	}
	if cfg.UnauthorizedRoute == "" {
		cfg.UnauthorizedRoute = def.UnauthorizedRoute
	}
	if cfg.VerifyEmailRoute == "" {
		cfg.VerifyEmailRoute = def.VerifyEmailRoute
	}
	if cfg.TwoFactorRoute == "" {
		cfg.TwoFactorRoute = def.TwoFactorRoute
	}
	if cfg.RedirectParam == "" {
		cfg.RedirectParam = def.RedirectParam
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{cfg: cfg, logger: logger}
}

// Evaluate は遷移先routeへのアクセス可否を判定する。
func (g *Guard) Evaluate(ctx context.Context, route Route, session Session) Decision {
	// トークンだけ復元されている場合はユーザー情報を取り直す。失敗時はストア側でセッションが破棄される。
	if session.Token() != "" && session.User() == nil {
		if _, err := session.FetchCurrentUser(ctx); err != nil {
			g.logger.Warn("failed to refresh user before navigation",
				slog.String("path", route.FullPath),
				slog.String("error", err.Error()),
			)
		}
	}

	authenticated := session.IsAuthenticated()
	roles := route.Meta.Roles
	permissions := route.Meta.Permissions

	if route.requiresGuest() && authenticated {
		return g.deny(g.cfg.HomeRoute, ReasonGuestOnly)
	}

	if !authenticated && (route.requiresAuth() || len(roles) > 0 || len(permissions) > 0) {
		return g.deny(g.loginRedirect(route.FullPath), ReasonUnauthenticated)
	}

	if len(roles) > 0 && !session.HasAnyRole(roles...) {
		return g.deny(g.cfg.UnauthorizedRoute, ReasonMissingRole)
	}
	if len(permissions) > 0 && !session.HasAnyPermission(permissions...) {
		return g.deny(g.cfg.UnauthorizedRoute, ReasonMissingPermission)
	}

	user := session.User()
	if route.Meta.RequiresVerifiedEmail && user != nil && !user.IsEmailVerified() {
		return g.deny(g.cfg.VerifyEmailRoute, ReasonUnverifiedEmail)
	}
	if route.Meta.RequiresTwoFactor && user != nil && !user.TwoFactorEnabled {
		return g.deny(g.cfg.TwoFactorRoute, ReasonTwoFactorRequired)
	}

	return Decision{Allow: true, Reason: ReasonAllowed}
}

func (g *Guard) deny(redirect string, reason Reason) Decision {
	return Decision{Redirect: redirect, Reason: reason}
}

// loginRedirect はログイン画面のパスに戻り先をクエリとして付ける。
func (g *Guard) loginRedirect(fullPath string) string {
	if fullPath == "" {
		return g.cfg.LoginRoute
	}
	v := url.Values{}
	v.Set(g.cfg.RedirectParam, fullPath)
	return g.cfg.LoginRoute + "?" + v.Encode()
}

// SessionFunc はリクエストに対応するSessionを返す。取得できなければnil。
type SessionFunc func(r *http.Request) Session

// Middleware はmetaの条件でリクエストを判定し、拒否時は303 See Otherでリダイレクトする。
func (g *Guard) Middleware(meta RouteMeta, sessionFn SessionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFn(r)
			if session == nil {
				http.Error(w, "session unavailable", http.StatusInternalServerError)
				return
			}

			route := Route{
				FullPath: r.URL.RequestURI(),
				Matched:  []RouteMeta{meta},
				Meta:     meta,
			}
			decision := g.Evaluate(r.Context(), route, session)
			if !decision.Allow {
				g.logger.Info("navigation redirected",
					slog.String("path", route.FullPath),
					slog.String("redirect", decision.Redirect),
					slog.String("reason", string(decision.Reason)),
				)
				http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
