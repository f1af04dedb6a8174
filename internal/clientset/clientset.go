// Package clientset はテナントと保存領域ごとにAPIクライアント、認証ストア、ブログストアを組み立てる。
// グローバルな状態は持たず、呼び出し元が生成したSetを明示的に受け渡す。
package clientset

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/hitoshi/taita/internal/apiclient"
	"github.com/hitoshi/taita/internal/auth"
	"github.com/hitoshi/taita/internal/blog"
	"github.com/hitoshi/taita/internal/config"
	"github.com/hitoshi/taita/internal/fixture"
	"github.com/hitoshi/taita/internal/metrics"
	"github.com/hitoshi/taita/internal/navigation"
	"github.com/hitoshi/taita/internal/repository"
	"github.com/hitoshi/taita/internal/tenant"
)

// Set は1つのテナント・保存領域に属するクライアント一式。
type Set struct {
	Tenant  string
	API     *apiclient.Client
	Auth    *auth.Store
	Blog    *blog.Store
	History *navigation.History
}

// Factory はSetを生成する。並行に呼び出しても安全。
type Factory struct {
	cfg        *config.Config
	storage    repository.LocalStorage
	resolver   *tenant.Resolver
	logger     *slog.Logger
	httpClient *http.Client
	cache      apiclient.ResponseCache
	metrics    metrics.MetricsCollector
	tracer     trace.Tracer
	dataset    *fixture.Dataset

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // テナントごとに共有する送信レート制限
}

// Option はFactoryの任意設定。
type Option func(*Factory)

// WithHTTPClient はバックエンド通信に使うHTTPクライアントを指定する。
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Factory) { f.httpClient = hc }
}

// WithCache は公開GET応答のキャッシュを指定する。
func WithCache(rc apiclient.ResponseCache) Option {
	return func(f *Factory) { f.cache = rc }
}

// WithMetrics はメトリクスの記録先を指定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(f *Factory) { f.metrics = m }
}

// WithTracer はAPIリクエストのトレーサーを指定する。
func WithTracer(t trace.Tracer) Option {
	return func(f *Factory) { f.tracer = t }
}

// WithDataset は静的生成モードで使う固定データを指定する。未指定なら埋め込みサンプル。
func WithDataset(ds *fixture.Dataset) Option {
	return func(f *Factory) { f.dataset = ds }
}

// NewFactory はFactoryを生成する。
func NewFactory(cfg *config.Config, storage repository.LocalStorage, logger *slog.Logger, opts ...Option) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		cfg:      cfg,
		storage:  storage,
		resolver: tenant.NewResolver(cfg.DefaultTenant, cfg.TenantIgnore...),
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
	f.resolver.TrustForwardedHost = cfg.TrustProxy
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolver はテナント解決器を返す。
func (f *Factory) Resolver() *tenant.Resolver {
	return f.resolver
}

// New はtenantIDとnamespaceに対応するSetを生成し、保存された認証状態を復元する。
// namespaceはゲートウェイのブラウザセッションやCLIのプロファイル。currentPathは現在の画面パス。
func (f *Factory) New(ctx context.Context, tenantID, namespace, currentPath string) (*Set, error) {
	if tenantID == "" {
		tenantID = f.resolver.Default()
	}
	logger := f.logger.With(slog.String("tenant", tenantID))

	apiOpts := []apiclient.Option{apiclient.WithLogger(logger), apiclient.WithLimiter(f.limiter(tenantID))}
	if f.httpClient != nil {
		apiOpts = append(apiOpts, apiclient.WithHTTPClient(f.httpClient))
	}
	if f.cache != nil {
		apiOpts = append(apiOpts, apiclient.WithCache(f.cache))
	}
	if f.metrics != nil {
		apiOpts = append(apiOpts, apiclient.WithMetrics(f.metrics))
	}
	if f.tracer != nil {
		apiOpts = append(apiOpts, apiclient.WithTracer(f.tracer))
	}

	api := apiclient.New(apiclient.Config{
		BaseURL:       f.cfg.APIBaseURL,
		Tenant:        tenantID,
		DefaultTenant: f.cfg.DefaultTenant,
		TenantHeader:  f.cfg.TenantHeader,
		Timeout:       f.cfg.RequestTimeout,
		MaxRetries:    f.cfg.RetryMax,
		RetryDelay:    f.cfg.RetryDelay,
		RateLimit:     f.cfg.RateLimitRPS,
		RateBurst:     f.cfg.RateLimitBurst,
	}, apiOpts...)

	history := navigation.NewHistory(currentPath)

	authCfg := auth.DefaultConfig()
	if f.cfg.LoginRoute != "" {
		authCfg.LoginRoute = f.cfg.LoginRoute
	}
	storage := repository.NewNamespaced(f.storage, namespace)
	authStore := auth.NewStore(api, storage, history, authCfg, logger)
	api.SetTokenSource(authStore)
	api.SetUnauthorizedHandler(authStore)

	backend, err := f.backend(api)
	if err != nil {
		return nil, err
	}
	var storeMetrics blog.ErrorRecorder
	if f.metrics != nil {
		storeMetrics = f.metrics
	}
	blogStore := blog.NewStore(backend, blog.Options{
		Tenant:       tenantID,
		ImageBaseURL: f.cfg.ImageBaseURL,
		Locale:       f.cfg.Locale,
		Logger:       logger,
		Metrics:      storeMetrics,
	})

	authStore.Init(ctx)

	return &Set{
		Tenant:  tenantID,
		API:     api,
		Auth:    authStore,
		Blog:    blogStore,
		History: history,
	}, nil
}

// limiter はtenantIDのレートリミッターを返す。同じテナントのSetはすべて同じリミッターを使う。
// RATE_LIMIT_RPSが0以下ならnilを返し、Clientは無制限になる。
func (f *Factory) limiter(tenantID string) *rate.Limiter {
	if f.cfg.RateLimitRPS <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[tenantID]
	if !ok {
		burst := f.cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(f.cfg.RateLimitRPS), burst)
		f.limiters[tenantID] = l
	}
	return l
}

// backend は静的生成モードなら固定データ、そうでなければバックエンドAPIを返す。
func (f *Factory) backend(api *apiclient.Client) (blog.Backend, error) {
	if !f.cfg.StaticMode {
		return blog.NewRemoteBackend(api), nil
	}
	b, err := fixture.NewBackend(f.dataset)
	if err != nil {
		return nil, err
	}
	return b, nil
}
