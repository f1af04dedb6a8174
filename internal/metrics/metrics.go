// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// APIクライアント、ブログストア、ゲートウェイから利用する。
type MetricsCollector interface {
	RecordAPIRequest(method string, status int, duration time.Duration)
	RecordUnauthorized()
	RecordCacheResult(hit bool)
	RecordStoreError(operation string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	apiRequests  *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	unauthorized prometheus.Counter
	cacheResults *prometheus.CounterVec
	storeErrors  *prometheus.CounterVec
	httpStatus   *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taita_api_requests_total",
			Help: "バックエンドAPIへのリクエスト数（ステータス別、通信失敗は0）",
		}, []string{"method", "status_code"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taita_api_request_duration_seconds",
			Help:    "バックエンドAPIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taita_unauthorized_total",
			Help: "401応答によるセッション破棄の回数",
		}),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taita_cache_results_total",
			Help: "応答キャッシュのヒット・ミス数",
		}, []string{"result"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taita_store_errors_total",
			Help: "ブログストアの取得失敗数（操作別）",
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taita_http_status_total",
			Help: "ゲートウェイのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.unauthorized,
		c.cacheResults,
		c.storeErrors,
		c.httpStatus,
	)

	return c
}

// RecordAPIRequest はバックエンドへのリクエスト結果を記録する。apiclient.Recorder を満たす。
func (c *Collector) RecordAPIRequest(method string, status int, duration time.Duration) {
	c.apiRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.apiLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordUnauthorized は401応答を記録する。
func (c *Collector) RecordUnauthorized() {
	c.unauthorized.Inc()
}

// RecordCacheResult はキャッシュのヒット・ミスを記録する。
func (c *Collector) RecordCacheResult(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheResults.WithLabelValues(result).Inc()
}

// RecordStoreError はブログストアの取得失敗を記録する。blog.ErrorRecorder を満たす。
func (c *Collector) RecordStoreError(operation string) {
	c.storeErrors.WithLabelValues(operation).Inc()
}

// RecordHTTPStatus はゲートウェイの応答ステータスを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
