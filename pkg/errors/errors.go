package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrTimeout 外部调用（身份校验、存储读写）超出时限。
// 超时一律视为明确失败，可由调用方重试，绝不表现为无限加载。
var ErrTimeout = errors.New("外部调用超时，请稍后重试")

// StorageError 存储层错误（瞬时性）
// 补偿写入会按退避策略重试；主写路径直接向上暴露
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("存储操作 %s 失败: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Storage 包装存储错误；ctx 超时统一归类为 ErrTimeout
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return &StorageError{Op: op, Err: err}
}

// IsTimeout 判断错误链中是否包含超时
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
