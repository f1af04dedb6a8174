// Package apiclient はブログバックエンドへの認証付きHTTPクライアントを提供する。
// 全リクエストに既定ヘッダー、Bearerトークン、テナントヘッダーを付与し、
// 401応答ではセッション破棄フックを1回だけ呼び出す。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/hitoshi/taita/internal/model"
	"github.com/hitoshi/taita/internal/tenant"
)

const (
	defaultUserAgent = "Taita/1.0 (+https://taita.blog)"
	// maxResponseSize は応答本文の読み取り上限（5MB）。
	maxResponseSize = 5 << 20
)

// TokenSource は現在の認証トークンを返す。未ログインなら空文字列。
type TokenSource interface {
	Token() string
}

// UnauthorizedHandler は401応答を受けたときに呼ばれる。
type UnauthorizedHandler interface {
	HandleUnauthorized(ctx context.Context)
}

// UnauthorizedFunc は関数をUnauthorizedHandlerとして使うためのアダプタ。
type UnauthorizedFunc func(ctx context.Context)

// HandleUnauthorized はf(ctx)を呼ぶ。
func (f UnauthorizedFunc) HandleUnauthorized(ctx context.Context) { f(ctx) }

// ResponseCache は公開GET応答のキャッシュ。
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Recorder はリクエストのメトリクスを記録する。
type Recorder interface {
	RecordAPIRequest(method string, status int, duration time.Duration)
	RecordUnauthorized()
	RecordCacheResult(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordAPIRequest(string, int, time.Duration) {}
func (nopRecorder) RecordUnauthorized()                         {}
func (nopRecorder) RecordCacheResult(bool)                      {}

// Config はClientの設定。
type Config struct {
	BaseURL       string
	Tenant        string
	DefaultTenant string
	TenantHeader  string
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	RateLimit     float64 // 1秒あたりのリクエスト数。0以下なら無制限
	RateBurst     int
	UserAgent     string
}

// RequestOptions は1リクエストごとの指定。
type RequestOptions struct {
	Query   url.Values
	Headers http.Header
	// Body はJSONとして送信する値。io.Readerの場合はそのまま送信する。
	Body any
	// SkipAuth はAuthorizationヘッダーを付与しない。
	SkipAuth bool
	// SkipTenant はテナントヘッダーを付与しない。
	SkipTenant bool
	// TenantQuery は既定以外のテナントをクエリパラメータ tenant にも付与する。
	TenantQuery bool
	// SkipUnauthorizedHook は401応答でもセッション破棄フックを呼ばない。
	SkipUnauthorizedHook bool
}

// Client はバックエンドAPIのクライアント。
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	baseURL        string
	defaultTenant  string
	tenantHeader   string
	userAgent      string
	maxRetries     int
	retryDelay     time.Duration
	limiter        *rate.Limiter
	tokens         TokenSource
	onUnauthorized UnauthorizedHandler
	cache          ResponseCache
	metrics        Recorder
	tracer         trace.Tracer
	sleep          func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	tenant string
}

// Option はClientの任意設定。
type Option func(*Client)

// WithHTTPClient は下位のhttp.Clientを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTokenSource は認証トークンの取得元を設定する。
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHandler は401応答時のフックを設定する。
func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(c *Client) { c.onUnauthorized = h }
}

// WithCache は公開GET応答のキャッシュを設定する。
func WithCache(rc ResponseCache) Option {
	return func(c *Client) { c.cache = rc }
}

// WithMetrics はメトリクス記録先を設定する。
func WithMetrics(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithTracer はリクエストごとのスパンを発行するトレーサーを設定する。
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithLimiter は送信前に待機するレートリミッターを差し替える。
// 複数のClientで共有すると、合算したリクエストレートが制限される。
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// New はClientを生成する。
func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	def := strings.ToLower(cfg.DefaultTenant)
	if def == "" {
		def = tenant.FallbackTenant
	}
	t := strings.ToLower(cfg.Tenant)
	if t == "" {
		t = def
	}
	header := cfg.TenantHeader
	if header == "" {
		header = tenant.HeaderTenant
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		logger:        slog.Default(),
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		defaultTenant: def,
		tenantHeader:  header,
		userAgent:     ua,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		limiter:       rate.NewLimiter(limit, burst),
		metrics:       nopRecorder{},
		tracer:        noop.NewTracerProvider().Tracer(""),
		sleep:         sleepContext,
		tenant:        t,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetTokenSource はトークン取得元を後から設定する。
// 認証ストアとクライアントが相互に参照する場合に使う。
func (c *Client) SetTokenSource(ts TokenSource) { c.tokens = ts }

// SetUnauthorizedHandler は401フックを後から設定する。
func (c *Client) SetUnauthorizedHandler(h UnauthorizedHandler) { c.onUnauthorized = h }

// SetTenant は以降のリクエストのテナントを切り替える。空文字列は既定テナントに戻す。
func (c *Client) SetTenant(t string) {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		t = c.defaultTenant
	}
	c.mu.Lock()
	c.tenant = t
	c.mu.Unlock()
}

// Tenant は現在のテナントを返す。
func (c *Client) Tenant() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tenant
}

// IsDefaultTenant は現在のテナントが既定テナントかを返す。
func (c *Client) IsDefaultTenant() bool {
	return c.Tenant() == c.defaultTenant
}

// Get はGETリクエストを送信する。
func (c *Client) Get(ctx context.Context, path string, opts RequestOptions, out any) error {
	return c.Do(ctx, http.MethodGet, path, opts, out)
}

// Post はPOSTリクエストを送信する。
func (c *Client) Post(ctx context.Context, path string, body any, opts RequestOptions, out any) error {
	opts.Body = body
	return c.Do(ctx, http.MethodPost, path, opts, out)
}

// Put はPUTリクエストを送信する。
func (c *Client) Put(ctx context.Context, path string, body any, opts RequestOptions, out any) error {
	opts.Body = body
	return c.Do(ctx, http.MethodPut, path, opts, out)
}

// Patch はPATCHリクエストを送信する。
func (c *Client) Patch(ctx context.Context, path string, body any, opts RequestOptions, out any) error {
	opts.Body = body
	return c.Do(ctx, http.MethodPatch, path, opts, out)
}

// Delete はDELETEリクエストを送信する。
func (c *Client) Delete(ctx context.Context, path string, opts RequestOptions, out any) error {
	return c.Do(ctx, http.MethodDelete, path, opts, out)
}

// Do はリクエストを送信し、2xx応答の本文をoutにデコードする。
// 失敗時は常に *model.APIError を返す。
func (c *Client) Do(ctx context.Context, method, path string, opts RequestOptions, out any) error {
	currentTenant := c.Tenant()

	reqURL, err := c.resolve(path, opts, currentTenant)
	if err != nil {
		return model.NewNetworkError(err)
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return model.NewRequestBuildError(fmt.Errorf("failed to encode request body: %w", err))
	}

	token := c.token(opts)
	cacheKey := ""
	if method == http.MethodGet && c.cache != nil && token == "" {
		cacheKey = "taita:api:" + currentTenant + ":" + reqURL
		if cached, ok := c.cache.Get(ctx, cacheKey); ok {
			c.metrics.RecordCacheResult(true)
			return decodeInto(cached, out)
		}
		c.metrics.RecordCacheResult(false)
	}

	ctx, span := c.tracer.Start(ctx, "apiclient "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", reqURL),
			attribute.String("taita.tenant", currentTenant),
		),
	)
	defer span.End()

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, "rate limiter")
			return model.NewNetworkError(err)
		}

		req, err := c.newRequest(ctx, method, reqURL, body, opts, token, currentTenant)
		if err != nil {
			return model.NewNetworkError(err)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.metrics.RecordAPIRequest(method, 0, time.Since(start))
			if ctx.Err() == nil && isIdempotent(method) && attempt < c.maxRetries {
				if c.sleep(ctx, CalculateBackoff(attempt, c.retryDelay)) == nil {
					continue
				}
			}
			c.logger.Error("API request failed",
				slog.String("method", method),
				slog.String("url", reqURL),
				slog.String("tenant", currentTenant),
				slog.Int("attempts", attempt+1),
				slog.String("error", err.Error()),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, "network error")
			return model.NewNetworkError(err)
		}

		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		c.metrics.RecordAPIRequest(method, resp.StatusCode, time.Since(start))
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

		switch ClassifyStatus(resp.StatusCode) {
		case OutcomeOK:
			if readErr != nil {
				span.SetStatus(codes.Error, "read body")
				return model.NewNetworkError(readErr)
			}
			if err := decodeInto(raw, out); err != nil {
				c.logger.Error("failed to decode API response",
					slog.String("url", reqURL),
					slog.String("error", err.Error()),
				)
				span.SetStatus(codes.Error, "decode")
				return err
			}
			if cacheKey != "" && len(raw) > 0 {
				c.cache.Set(ctx, cacheKey, raw)
			}
			return nil

		case OutcomeRetry:
			if isIdempotent(method) && attempt < c.maxRetries {
				delay := retryAfter(resp.Header)
				if delay == 0 {
					delay = CalculateBackoff(attempt, c.retryDelay)
				}
				if c.sleep(ctx, delay) == nil {
					continue
				}
			}
		}

		apiErr := parseError(resp.StatusCode, raw)
		span.SetStatus(codes.Error, apiErr.Code)
		c.logResponseError(method, reqURL, currentTenant, apiErr)

		if resp.StatusCode == http.StatusUnauthorized {
			c.metrics.RecordUnauthorized()
			if !opts.SkipUnauthorizedHook && c.onUnauthorized != nil {
				c.onUnauthorized.HandleUnauthorized(ctx)
			}
		}
		return apiErr
	}
}

func (c *Client) logResponseError(method, reqURL, currentTenant string, apiErr *model.APIError) {
	attrs := []any{
		slog.String("method", method),
		slog.String("url", reqURL),
		slog.String("tenant", currentTenant),
		slog.Int("http_status", apiErr.StatusCode),
		slog.String("message", apiErr.Message),
	}
	if apiErr.StatusCode >= 500 {
		c.logger.Error("API server error", attrs...)
		return
	}
	c.logger.Warn("API client error", attrs...)
}

// token は付与すべき認証トークンを返す。
func (c *Client) token(opts RequestOptions) string {
	if opts.SkipAuth || c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// resolve はパスをベースURLに連結し、クエリを付与した完全なURLを返す。
// pathが絶対URLの場合はベースURLを使わない。
func (c *Client) resolve(path string, opts RequestOptions, currentTenant string) (string, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		raw = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", raw, err)
	}

	q := u.Query()
	for k, vs := range opts.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if opts.TenantQuery && currentTenant != c.defaultTenant && q.Get(tenant.QueryParam) == "" {
		q.Set(tenant.QueryParam, currentTenant)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// newRequest はヘッダーを組み立てたリクエストを生成する。
// 呼び出し元が指定したヘッダーは上書きしない。
func (c *Client) newRequest(ctx context.Context, method, reqURL string, body []byte, opts RequestOptions, token, currentTenant string) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	setIfAbsent(req.Header, "Accept", "application/json")
	setIfAbsent(req.Header, "Content-Type", "application/json")
	setIfAbsent(req.Header, "X-Requested-With", "XMLHttpRequest")
	setIfAbsent(req.Header, "X-Request-ID", uuid.NewString())
	setIfAbsent(req.Header, "User-Agent", c.userAgent)

	if token != "" {
		setIfAbsent(req.Header, "Authorization", "Bearer "+token)
	}
	if !opts.SkipTenant && currentTenant != c.defaultTenant {
		setIfAbsent(req.Header, c.tenantHeader, currentTenant)
	}
	return req, nil
}

func setIfAbsent(h http.Header, key, value string) {
	if h.Get(key) == "" {
		h.Set(key, value)
	}
}

// encodeBody は送信本文をバイト列にする。再試行で同じ本文を送り直すため先に読み切る。
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case io.Reader:
		return io.ReadAll(b)
	default:
		return json.Marshal(b)
	}
}

// decodeInto は2xx応答本文をoutにデコードする。本文が空、またはoutがnilなら何もしない。
func decodeInto(raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return model.NewInvalidResponseError(err.Error())
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsNotFound はerrが404由来かを返す。
func IsNotFound(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
