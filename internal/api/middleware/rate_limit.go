package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mang4123/edumanager-backend-sub000/pkg/redis"
	"github.com/mang4123/edumanager-backend-sub000/pkg/response"
)

// RateLimit 速率限制中间件
// limit: 窗口内允许的最大请求数
// window: 滑动窗口时长
// 优先使用 Redis 滑动窗口（多实例共享）；rdb 为 nil 或 Redis 出错时退回进程内令牌桶
func RateLimit(rdb *redis.Client, limit int, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	local := newLocalLimiter(limit, window)

	return func(c *gin.Context) {
		key := fmt.Sprintf("rate_limit:%s:%s", c.ClientIP(), c.FullPath())

		var allowed bool
		if rdb != nil {
			ok, err := rdb.CheckRateLimit(c.Request.Context(), key, limit, window)
			if err != nil {
				logger.Warn("Redis 限流失败，使用本地限流", zap.Error(err))
				allowed = local.allow(key)
			} else {
				allowed = ok
			}
		} else {
			allowed = local.allow(key)
		}

		if !allowed {
			response.TooManyRequests(c)
			return
		}

		c.Next()
	}
}

// ── 进程内令牌桶 ──

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type localLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	every   rate.Limit
	burst   int
	idleTTL time.Duration
}

func newLocalLimiter(limit int, window time.Duration) *localLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &localLimiter{
		buckets: make(map[string]*bucket),
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idleTTL: 5 * window,
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		// 新桶创建时顺带清理长时间空闲的桶
		for k, old := range l.buckets {
			if now.Sub(old.lastSeen) > l.idleTTL {
				delete(l.buckets, k)
			}
		}
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}
