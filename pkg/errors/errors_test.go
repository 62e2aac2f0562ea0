package errors

import (
	"context"
	"errors"
	"testing"
)

func TestStorage_Nil(t *testing.T) {
	if err := Storage("profile.create", nil); err != nil {
		t.Errorf("nil 错误不应被包装，实际: %v", err)
	}
}

func TestStorage_DeadlineBecomesTimeout(t *testing.T) {
	err := Storage("invite.get", context.DeadlineExceeded)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("期望 ErrTimeout，实际: %v", err)
	}
	if !IsTimeout(err) {
		t.Error("IsTimeout 应返回 true")
	}
}

func TestStorage_WrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Storage("enrollment.create", cause)

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("期望 *StorageError，实际: %T", err)
	}
	if se.Op != "enrollment.create" {
		t.Errorf("期望 Op=enrollment.create，实际=%s", se.Op)
	}
	if !errors.Is(err, cause) {
		t.Error("StorageError 应保留原始错误链")
	}
	if IsTimeout(err) {
		t.Error("普通存储错误不应被识别为超时")
	}
}
