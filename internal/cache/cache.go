// Package cache はバックエンドの公開GET応答をRedisにキャッシュする。
// Redisに接続できない場合はキャッシュミスとして振る舞い、呼び出し元を失敗させない。
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL はTTL未指定時の保持期間。
const DefaultTTL = time.Minute

// Client はredis.Clientのラッパー。apiclient.ResponseCache を満たす。
type Client struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New はRedisクライアントを生成する。接続は最初のコマンド実行時に行われる。
func New(addr string, ttl time.Duration, logger *slog.Logger) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		}),
		ttl:    ttl,
		logger: logger,
	}
}

// Get はキャッシュされた値を返す。未登録・Redis障害時は(nil, false)。
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	res, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Debug("cache get failed, treating as miss",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return res, true
}

// Set は値をTTL付きで保存する。Redisのエラーは無視する。
func (c *Client) Set(ctx context.Context, key string, value []byte) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Debug("cache set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Delete はキーを削除する。Redisのエラーは無視する。
func (c *Client) Delete(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Debug("cache delete failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Ping はRedisへの疎通を確認する。ヘルスチェック用で、こちらはエラーを返す。
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache is not configured")
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close は接続を閉じる。
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
