package apiclient

import (
	"net/http"
	"strconv"
	"time"
)

// Outcome はHTTPステータスに基づく応答の分類。
type Outcome int

const (
	// OutcomeOK は成功（2xx）。
	OutcomeOK Outcome = iota
	// OutcomeFatal は再試行しても結果が変わらないステータス（401/403/404/422等の4xx）。
	OutcomeFatal
	// OutcomeRetry はバックオフ後に再試行できるステータス（408/429/5xx）。
	OutcomeRetry
)

// maxRetryDelay はRetry-Afterや指数バックオフの上限。
const maxRetryDelay = 30 * time.Second

// ClassifyStatus はHTTPステータスコードを応答の分類に変換する。
func ClassifyStatus(statusCode int) Outcome {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return OutcomeOK
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests:
		return OutcomeRetry
	case statusCode >= 500:
		return OutcomeRetry
	default:
		return OutcomeFatal
	}
}

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// attempt=0で base、以降2倍ずつ増加し maxRetryDelay で頭打ちになる。
func CalculateBackoff(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// retryAfter はRetry-Afterヘッダー（秒数）を解釈する。解釈できない場合は0。
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// isIdempotent は再試行してよいメソッドかを返す。
func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
