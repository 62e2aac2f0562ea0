package service

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
)

func TestRetryStorage_RetriesTransientErrors(t *testing.T) {
	calls := 0
	v, err := retryStorage(context.Background(), time.Second, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, pkgerrors.Storage("profile.create", errTransient)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("瞬时错误重试后应成功: %v", err)
	}
	if v != 42 || calls != 3 {
		t.Errorf("期望第 3 次成功返回 42，实际 v=%d calls=%d", v, calls)
	}
}

// 超时不重试，单次时限即总时限
func TestRetryStorage_TimeoutIsNotRetried(t *testing.T) {
	calls := 0
	start := time.Now()
	_, err := retryStorage(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, pkgerrors.Storage("profile.create", ctx.Err())
	})
	if !errors.Is(err, pkgerrors.ErrTimeout) {
		t.Fatalf("期望 ErrTimeout，实际: %v", err)
	}
	if calls != 1 {
		t.Errorf("超时不应重试，实际调用 %d 次", calls)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("超时后应立即返回，耗时 %v", elapsed)
	}
}

func TestRetryStorage_BusinessErrorIsNotRetried(t *testing.T) {
	calls := 0
	_, err := retryStorage(context.Background(), time.Second, func(context.Context) (int, error) {
		calls++
		return 0, ErrInviteNotFound
	})
	if !errors.Is(err, ErrInviteNotFound) {
		t.Fatalf("期望 ErrInviteNotFound，实际: %v", err)
	}
	if calls != 1 {
		t.Errorf("业务错误不应重试，实际调用 %d 次", calls)
	}
}
