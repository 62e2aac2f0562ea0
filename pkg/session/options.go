package session

import (
	"time"

	"go.uber.org/zap"
)

// DefaultCallTimeout 身份提供方与对账调用的默认超时
const DefaultCallTimeout = 10 * time.Second

// Option 定制 Manager
type Option func(*Manager)

// WithLogger 设置日志器，默认 zap.NewNop()
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCallTimeout 设置单次外部调用超时
func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

// WithClock 注入时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}
