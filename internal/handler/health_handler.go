package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// healthTimeout は依存先1件あたりの疎通確認の上限時間。
const healthTimeout = 2 * time.Second

// NewHealthHandler は依存先の疎通を確認するハンドラーを返す。
// いずれかが失敗した場合は503を返す。依存先が無ければ常に200。
func NewHealthHandler(checkers map[string]HealthChecker, logger *slog.Logger) http.HandlerFunc {
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		checks := make(map[string]string, len(names))
		for _, name := range names {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			err := checkers[name].Ping(ctx)
			cancel()
			if err != nil {
				logger.Warn("health check failed",
					slog.String("dependency", name),
					slog.String("error", err.Error()),
				)
				checks[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]any{
			"status": overall,
			"checks": checks,
		})
	}
}

// HealthCheckFunc は関数をHealthCheckerとして使うためのアダプタ。
type HealthCheckFunc func(ctx context.Context) error

// Ping はf(ctx)を呼ぶ。
func (f HealthCheckFunc) Ping(ctx context.Context) error {
	return f(ctx)
}
