package cache

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// TestNilClient_BehavesAsMiss は未設定のクライアントがキャッシュミスとして振る舞うことを検証する。
func TestNilClient_BehavesAsMiss(t *testing.T) {
	var c *Client
	ctx := context.Background()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("nil client Get should miss")
	}
	c.Set(ctx, "k", []byte("v"))
	c.Delete(ctx, "k")
	if err := c.Ping(ctx); err == nil {
		t.Error("nil client Ping should fail")
	}
	if err := c.Close(); err != nil {
		t.Errorf("nil client Close error = %v", err)
	}
}

// TestUnreachableRedis_FailsSafe は接続できないRedisでも呼び出しが失敗しないことを検証する。
func TestUnreachableRedis_FailsSafe(t *testing.T) {
	var buf bytes.Buffer
	c := New("127.0.0.1:1", time.Second, newTestLogger(&buf))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c.Set(ctx, "taita:test", []byte("v"))
	if _, ok := c.Get(ctx, "taita:test"); ok {
		t.Error("Get against unreachable redis should miss")
	}
	if err := c.Ping(ctx); err == nil {
		t.Error("Ping against unreachable redis should fail")
	}
	if !bytes.Contains(buf.Bytes(), []byte("cache get failed")) {
		t.Errorf("expected debug log, got %s", buf.String())
	}
}

func TestNew_DefaultTTL(t *testing.T) {
	var buf bytes.Buffer
	c := New("127.0.0.1:1", 0, newTestLogger(&buf))
	defer c.Close()
	if c.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", c.ttl, DefaultTTL)
	}
}

// TestRedisRoundTrip は実際のRedisで保存・取得・削除を検証する。REDIS_ADDR未設定ならスキップ。
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis test")
	}

	var buf bytes.Buffer
	c := New(addr, 5*time.Second, newTestLogger(&buf))
	defer c.Close()
	ctx := context.Background()

	if err := c.Ping(ctx); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	key := "taita:test:" + uuid.NewString()
	c.Set(ctx, key, []byte(`{"data":[]}`))
	got, ok := c.Get(ctx, key)
	if !ok || string(got) != `{"data":[]}` {
		t.Errorf("Get() = %q, %v", got, ok)
	}
	c.Delete(ctx, key)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("Get after Delete should miss")
	}
}
