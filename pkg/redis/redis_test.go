package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/mang4123/edumanager-backend-sub000/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)

	c, err := NewClient(&config.RedisConfig{Addr: s.Addr()}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient 失败: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewClient_Unreachable(t *testing.T) {
	_, err := NewClient(&config.RedisConfig{Addr: "127.0.0.1:1"}, zap.NewNop())
	if err == nil {
		t.Fatal("连接不可达的 Redis 时期望返回错误")
	}
}

func TestBlacklistToken(t *testing.T) {
	c, s := newTestClient(t)
	ctx := context.Background()

	if err := c.BlacklistToken(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("BlacklistToken 失败: %v", err)
	}

	ok, err := c.IsBlacklisted(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsBlacklisted 失败: %v", err)
	}
	if !ok {
		t.Error("期望 jti-1 在黑名单中")
	}

	// TTL 到期后自动移出
	s.FastForward(2 * time.Minute)
	ok, _ = c.IsBlacklisted(ctx, "jti-1")
	if ok {
		t.Error("TTL 过后 jti-1 不应仍在黑名单中")
	}
}

func TestBlacklistToken_ExpiredTokenSkipped(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.BlacklistToken(ctx, "jti-expired", 0); err != nil {
		t.Fatalf("BlacklistToken 失败: %v", err)
	}
	ok, _ := c.IsBlacklisted(ctx, "jti-expired")
	if ok {
		t.Error("已过期 Token 不应写入黑名单")
	}
}

func TestCheckRateLimit(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := c.CheckRateLimit(ctx, "rate:test", 3, time.Minute)
		if err != nil {
			t.Fatalf("CheckRateLimit 失败: %v", err)
		}
		if !allowed {
			t.Fatalf("第 %d 次请求应被放行", i+1)
		}
	}

	allowed, err := c.CheckRateLimit(ctx, "rate:test", 3, time.Minute)
	if err != nil {
		t.Fatalf("CheckRateLimit 失败: %v", err)
	}
	if allowed {
		t.Error("超过限额的请求应被拒绝")
	}
}
