package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストレージドライバ名
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config はクライアントデータ層とゲートウェイ全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	APIBaseURL   string
	ImageBaseURL string
	SiteName     string

	// Tenant
	DefaultTenant string
	TenantHeader  string
	TenantIgnore  []string
	TrustProxy    bool // X-Forwarded-Hostからテナントを解決するか

	// Static generation
	StaticMode  bool
	FixtureFeed string

	// Fetch
	RequestTimeout time.Duration
	RetryMax       int
	RetryDelay     time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	SafeOutbound   bool
	UploadPath     string // アップロードを中継するバックエンドのパス
	UploadMaxBytes int64

	// Local storage
	StorageDriver string
	StorageDSN    string

	// Cache
	RedisAddr string
	CacheTTL  time.Duration

	// Routes
	LoginRoute        string
	HomeRoute         string
	UnauthorizedRoute string

	// Presentation
	Locale string

	// Logging / tracing
	LogLevel     string
	OTLPEndpoint string

	// Server
	ServerPort        string
	PublicBaseURL     string // ゲートウェイ自身の公開URL
	SessionMaxAge     int
	RateLimitGeneral  int
	CookieSecure      bool
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// APIのベースURLが不正、またはストレージドライバが未知の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = strings.TrimRight(getEnvString("API_BASE_URL", "https://taita-api.onrender.com/api"), "/")
	if err := validateBaseURL(cfg.APIBaseURL); err != nil {
		return nil, fmt.Errorf("invalid API_BASE_URL: %w", err)
	}
	cfg.ImageBaseURL = strings.TrimRight(getEnvString("IMAGE_BASE_URL", "https://taita-api.onrender.com"), "/")
	cfg.SiteName = getEnvString("SITE_NAME", "Taita Blog")

	cfg.DefaultTenant = strings.ToLower(getEnvString("DEFAULT_TENANT", "taita"))
	cfg.TenantHeader = getEnvString("TENANT_HEADER", "X-Tenant")
	cfg.TenantIgnore = getEnvList("TENANT_IGNORE", []string{"localhost", "127.0.0.1", "www"})
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)

	cfg.StaticMode = getEnvBool("STATIC_MODE", false)
	cfg.FixtureFeed = getEnvString("FIXTURE_FEED", "")

	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 10*time.Second)
	cfg.RetryMax = getEnvInt("RETRY_MAX", 2)
	cfg.RetryDelay = getEnvDuration("RETRY_DELAY", time.Second)
	cfg.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", 10)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 20)
	cfg.SafeOutbound = getEnvBool("SAFE_OUTBOUND", false)
	cfg.UploadPath = getEnvString("UPLOAD_PATH", "/media")
	cfg.UploadMaxBytes = int64(getEnvInt("UPLOAD_MAX_BYTES", 10<<20))

	cfg.StorageDriver = strings.ToLower(getEnvString("STORAGE_DRIVER", StorageSQLite))
	switch cfg.StorageDriver {
	case StorageMemory, StorageSQLite, StoragePostgres:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER: %q", cfg.StorageDriver)
	}
	cfg.StorageDSN = getEnvString("STORAGE_DSN", "data/taita.db")

	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", time.Minute)

	cfg.LoginRoute = getEnvString("LOGIN_ROUTE", "/auth/login")
	cfg.HomeRoute = getEnvString("HOME_ROUTE", "/dashboard")
	cfg.UnauthorizedRoute = getEnvString("UNAUTHORIZED_ROUTE", "/unauthorized")

	cfg.Locale = getEnvString("LOCALE", "es")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.OTLPEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.PublicBaseURL = strings.TrimRight(getEnvString("PUBLIC_BASE_URL", "http://localhost:"+cfg.ServerPort), "/")
	// Cookieの属性はバックエンドではなくゲートウェイ自身のスキームで決める
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", strings.HasPrefix(cfg.PublicBaseURL, "https://"))
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数を読み込む。空要素は除外する。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
