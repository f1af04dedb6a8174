// Package app はコマンドラインの起動モードを解析し、依存関係を組み立てて実行する。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/taita/internal/cache"
	"github.com/hitoshi/taita/internal/clientset"
	"github.com/hitoshi/taita/internal/config"
	"github.com/hitoshi/taita/internal/database"
	"github.com/hitoshi/taita/internal/fixture"
	"github.com/hitoshi/taita/internal/guard"
	"github.com/hitoshi/taita/internal/handler"
	"github.com/hitoshi/taita/internal/logger"
	"github.com/hitoshi/taita/internal/metrics"
	"github.com/hitoshi/taita/internal/middleware"
	"github.com/hitoshi/taita/internal/repository"
	"github.com/hitoshi/taita/internal/security"
	"github.com/hitoshi/taita/internal/tracing"
	"github.com/hitoshi/taita/internal/worker/cleanup"
)

// Version はビルド時に -ldflags で上書きする。
var Version = "dev"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, "info")

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, logger.SetupDefault(w, cfg.LogLevel), nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。CLIの結果はstdoutにJSONで、ログはlogwに出力する。
func Run(ctx context.Context, stdout, logw io.Writer, args []string) error {
	cmd, ok := ParseCommand(args)
	if !ok {
		return fmt.Errorf("unknown command: %s", cmd)
	}
	if len(args) > 0 && args[0] == string(cmd) {
		args = args[1:]
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	opts, err := ParseOptions(cmd, args, logw)
	if err != nil {
		return err
	}

	cfg, log, err := Init(logw)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Debug("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", Version),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.Bool("static_mode", cfg.StaticMode),
	)

	switch cmd {
	case CommandServe:
		return runServe(ctx, cfg, log)
	case CommandMigrate:
		return runMigrate(cfg, log)
	case CommandTenant:
		return runTenant(stdout, cfg, opts)
	default:
		return runCLI(ctx, stdout, cfg, log, cmd, opts)
	}
}

// runtime はサーバーとCLIが共有する依存関係一式。
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	storage  repository.LocalStorage
	factory  *clientset.Factory
	registry *prometheus.Registry
	metrics  *metrics.Collector
	checkers map[string]handler.HealthChecker
	closers  []func(ctx context.Context) error
}

// newRuntime は設定に従ってストレージ、キャッシュ、メトリクス、トレーシング、クライアント工場を組み立てる。
func newRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*runtime, error) {
	rt := &runtime{
		cfg:      cfg,
		logger:   log,
		checkers: map[string]handler.HealthChecker{},
	}

	// 1. クライアント状態ストア
	storage, closeStorage, err := clientset.OpenStorage(cfg)
	if err != nil {
		return nil, err
	}
	rt.storage = storage
	rt.closers = append(rt.closers, func(context.Context) error { return closeStorage() })
	rt.checkers["storage"] = handler.HealthCheckFunc(func(ctx context.Context) error {
		_, _, err := storage.Get(ctx, repository.KeyAuthToken)
		return err
	})

	// 2. メトリクス
	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.NewCollector(rt.registry)

	opts := []clientset.Option{clientset.WithMetrics(rt.metrics)}

	// 3. 外向き通信の検証
	if cfg.SafeOutbound {
		guard := security.NewOutboundGuard(false)
		if err := guard.ValidateEndpoint(cfg.APIBaseURL); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("API_BASE_URL rejected by outbound guard: %w", err)
		}
		opts = append(opts, clientset.WithHTTPClient(guard.NewSafeClient(cfg.RequestTimeout)))
	}

	// 4. 公開GET応答キャッシュ
	if cfg.RedisAddr != "" {
		rc := cache.New(cfg.RedisAddr, cfg.CacheTTL, log)
		rt.closers = append(rt.closers, func(context.Context) error { return rc.Close() })
		rt.checkers["cache"] = rc
		opts = append(opts, clientset.WithCache(rc))
	}

	// 5. トレーシング
	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.Setup(ctx, cfg.OTLPEndpoint, Version)
		if err != nil {
			rt.Close(ctx)
			return nil, err
		}
		rt.closers = append(rt.closers, tp.Shutdown)
		opts = append(opts, clientset.WithTracer(tp.Tracer("github.com/hitoshi/taita/internal/apiclient")))
	}

	// 6. 静的生成用の固定データ
	if cfg.FixtureFeed != "" {
		ds, err := fixture.LoadFile(cfg.FixtureFeed)
		if err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("failed to load fixture feed: %w", err)
		}
		log.Info("fixture dataset loaded",
			slog.String("path", cfg.FixtureFeed),
			slog.Int("posts", len(ds.Posts)),
		)
		opts = append(opts, clientset.WithDataset(ds))
	}

	rt.factory = clientset.NewFactory(cfg, storage, log, opts...)
	return rt, nil
}

// Close は後から開いたものから順に閉じる。
func (rt *runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			rt.logger.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
	rt.closers = nil
}

// router はゲートウェイのハンドラーを組み立てる。返される関数でレートリミッターを停止する。
func (rt *runtime) router() (http.Handler, func()) {
	cfg := rt.cfg
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral), rt.logger)

	h := handler.NewRouter(&handler.RouterDeps{
		Logger:            rt.logger,
		Resolver:          rt.factory.Resolver(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Session: middleware.SessionConfig{
			MaxAge:       cfg.SessionMaxAge,
			CookieSecure: cfg.CookieSecure,
		},
		CSRF:           middleware.CSRFConfig{CookieSecure: cfg.CookieSecure},
		RateLimiter:    limiter,
		StatusRecorder: rt.metrics,
		ClientSets:     rt.factory,
		Guard: guard.New(guard.Config{
			LoginRoute:        cfg.LoginRoute,
			HomeRoute:         cfg.HomeRoute,
			UnauthorizedRoute: cfg.UnauthorizedRoute,
		}, rt.logger),
		SiteName:       cfg.SiteName,
		UploadPath:     cfg.UploadPath,
		UploadMaxBytes: cfg.UploadMaxBytes,
		MetricsHandler: metrics.Handler(rt.registry),
		HealthCheckers: rt.checkers,
	})
	return h, limiter.Stop
}

// runServe はゲートウェイサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	router, stopLimiter := rt.router()
	defer stopLimiter()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 期限切れのブラウザセッション状態を定期削除する
	if purger, ok := rt.storage.(repository.Purger); ok {
		retention := time.Duration(cfg.SessionMaxAge) * time.Second
		job := cleanup.NewJob(purger, log, handler.SessionNamespacePrefix, retention)
		go job.Start(ctx, time.Hour)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway starting",
			slog.String("addr", server.Addr),
			slog.String("storage", cfg.StorageDriver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("gateway stopped gracefully")
	return nil
}

// runMigrate はクライアント状態ストアのスキーマを用意する。
// PostgreSQLは未適用のマイグレーションを順に適用し、SQLiteは開くだけでスキーマが作られる。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		log.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.StorageDSN)),
		)
		if err := database.RunMigrations(cfg.StorageDSN); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		version, dirty, err := database.MigrationVersion(cfg.StorageDSN)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		log.Info("database migrations completed successfully",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	case config.StorageSQLite:
		db, err := database.OpenSQLite(cfg.StorageDSN)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		defer db.Close()
		log.Info("sqlite schema ready", slog.String("path", cfg.StorageDSN))
	default:
		log.Info("nothing to migrate", slog.String("storage", cfg.StorageDriver))
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報とクエリを伏せ、スキーム・ホスト・パスだけを残す。
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "***"
	}
	masked := u.Scheme + "://"
	if u.User != nil {
		masked += "***@"
	}
	return masked + u.Host + u.Path
}
