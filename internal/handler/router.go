package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/taita/internal/guard"
	"github.com/hitoshi/taita/internal/middleware"
	"github.com/hitoshi/taita/internal/tenant"
)

// HealthChecker はヘルスチェックで疎通を確認する依存先。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Resolver          *tenant.Resolver
	CORSAllowedOrigin string
	Session           middleware.SessionConfig
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder

	// クライアント一式
	ClientSets ClientSets
	Guard      *guard.Guard
	SiteName   string

	// アップロード中継
	UploadPath     string
	UploadMaxBytes int64

	// 運用
	MetricsHandler http.Handler
	HealthCheckers map[string]HealthChecker
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → Session → Tenant → RateLimit → CSRF → ClientSet
//
// /health と /metrics はセッションとレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", NewHealthHandler(deps.HealthCheckers, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	blogHandler := NewBlogHandler()
	authHandler := NewAuthHandler(logger)
	pageHandler := NewPageHandler(deps.SiteName)
	uploadHandler := NewUploadHandler(logger, deps.UploadPath, deps.UploadMaxBytes)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Session))
		r.Use(middleware.NewTenantMiddleware(deps.Resolver))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF, logger))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF, logger))

		r.Group(func(r chi.Router) {
			r.Use(NewClientSetMiddleware(deps.ClientSets, logger))

			guest := deps.Guard.Middleware(guard.RouteMeta{RequiresGuest: true}, guardSession)
			authed := deps.Guard.Middleware(guard.RouteMeta{RequiresAuth: true}, guardSession)

			// 公開ブログデータ
			r.Route("/api", func(r chi.Router) {
				r.Get("/bootstrap", blogHandler.Bootstrap)
				r.Get("/posts", blogHandler.ListPosts)
				r.Get("/posts/{slug}", blogHandler.GetPost)
				r.Get("/categories", blogHandler.ListCategories)
				r.Get("/categories/{slug}", blogHandler.GetCategory)
				r.Get("/categories/{slug}/posts", blogHandler.ListPostsByCategory)
				r.Get("/tags", blogHandler.ListTags)
				r.Get("/tags/{slug}", blogHandler.GetTag)
				r.Get("/tags/{slug}/posts", blogHandler.ListPostsByTag)
				r.Get("/search", blogHandler.Search)
				r.Get("/menu", blogHandler.Menu)

				r.With(authed).Post("/uploads", uploadHandler.Upload)
			})

			// 認証
			r.Route("/auth", func(r chi.Router) {
				r.With(guest).Get("/login", pageHandler.Page("login"))
				r.Post("/login", authHandler.Login)
				r.Post("/register", authHandler.Register)
				r.Post("/logout", authHandler.Logout)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/reset-password", authHandler.ResetPassword)
				r.Get("/me", authHandler.Me)
			})

			// ガード付き画面
			r.With(guest).Get("/login", pageHandler.Page("login"))
			r.With(authed).Get("/dashboard", pageHandler.Page("dashboard"))
			r.With(deps.Guard.Middleware(guard.RouteMeta{RequiresAuth: true, Roles: []string{"admin"}}, guardSession)).
				Get("/admin", pageHandler.Page("admin"))
			r.With(deps.Guard.Middleware(guard.RouteMeta{RequiresAuth: true, Permissions: []string{"posts.edit"}}, guardSession)).
				Get("/editor", pageHandler.Page("editor"))
			r.Get("/unauthorized", pageHandler.Page("unauthorized"))
		})
	})

	return r
}
