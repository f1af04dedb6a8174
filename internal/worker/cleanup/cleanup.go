// Package cleanup は期限切れのブラウザセッション状態を削除するジョブを提供する。
// ゲートウェイはセッションごとに認証トークンやユーザー情報をストアへ書き込むため、
// セッションCookieの有効期限を過ぎた名前空間を定期的に削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taita/internal/repository"
)

// Job は保持期間を超過したセッション状態の削除ジョブ。冪等に実行できる。
type Job struct {
	store     repository.Purger
	logger    *slog.Logger
	Prefix    string        // 削除対象のキー接頭辞
	Retention time.Duration // 最終更新からの保持期間
	now       func() time.Time
}

// NewJob は新しいJobを生成する。
func NewJob(store repository.Purger, logger *slog.Logger, prefix string, retention time.Duration) *Job {
	return &Job{
		store:     store,
		logger:    logger,
		Prefix:    prefix,
		Retention: retention,
		now:       time.Now,
	}
}

// Run はPrefixに一致し、Retentionより前に更新されたキーを削除して件数を返す。
func (j *Job) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := j.now().Add(-j.Retention)

	deleted, err := j.store.PurgeBefore(ctx, j.Prefix, cutoff)
	if err != nil {
		j.logger.Error("session cleanup failed",
			slog.String("error", err.Error()),
			slog.String("prefix", j.Prefix),
		)
		return 0, fmt.Errorf("session cleanup: %w", err)
	}

	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.String("prefix", j.Prefix),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start は起動直後に1回実行し、その後intervalごとにRunを繰り返す。ctxのキャンセルで終了する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// 失敗はRunがログに残すので次の周期で再試行する
		_, _ = j.Run(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
