package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/metrics"
	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
)

// ── 测试辅助 ──

func setupTestProfileService() (ProfileService, *testRepos) {
	repo, m := newTestRepository()
	svc := NewProfileService(repo, time.Second, zap.NewNop())
	return svc, m
}

// ── Reconcile 测试 ──

func TestProfileService_Reconcile_CreatesOnce(t *testing.T) {
	svc, m := setupTestProfileService()
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.ProfilesProvisioned.WithLabelValues(provisionSourceReconcile))

	p := profile.Profile{ID: "user-1", Name: "Ana", Email: "ana@example.com", Role: profile.RoleStudent}
	first, err := svc.Reconcile(ctx, p)
	if err != nil {
		t.Fatalf("Reconcile 应成功: %v", err)
	}

	// 第二次对账不覆盖已有资料
	p.Name = "Outro Nome"
	p.Role = profile.RoleTeacher
	second, err := svc.Reconcile(ctx, p)
	if err != nil {
		t.Fatalf("重复 Reconcile 应成功: %v", err)
	}
	if second.Name != first.Name || second.Role != profile.RoleStudent {
		t.Errorf("已有资料不应被覆盖，实际: %+v", second)
	}
	if len(m.profile.profiles) != 1 {
		t.Errorf("期望 1 条资料，实际 %d", len(m.profile.profiles))
	}

	after := testutil.ToFloat64(metrics.ProfilesProvisioned.WithLabelValues(provisionSourceReconcile))
	if after-before != 1 {
		t.Errorf("期望创建计数 +1，实际 +%v", after-before)
	}
}

func TestProfileService_Reconcile_RetriesTransientErrors(t *testing.T) {
	fastRetry(t)
	svc, m := setupTestProfileService()
	m.profile.failCreate = 2

	got, err := svc.Reconcile(context.Background(), profile.Profile{
		ID: "user-1", Name: "Ana", Email: "ana@example.com", Role: profile.RoleStudent,
	})
	if err != nil {
		t.Fatalf("瞬时错误重试后应成功: %v", err)
	}
	if got.ID != "user-1" {
		t.Errorf("期望 ID=user-1，实际=%s", got.ID)
	}
	if m.profile.createCalls != 3 {
		t.Errorf("期望 3 次写入尝试，实际 %d", m.profile.createCalls)
	}
}

func TestProfileService_Reconcile_GivesUp(t *testing.T) {
	fastRetry(t)
	svc, m := setupTestProfileService()
	m.profile.failCreate = 100

	_, err := svc.Reconcile(context.Background(), profile.Profile{ID: "user-1", Role: profile.RoleTeacher})
	var se *pkgerrors.StorageError
	if !errors.As(err, &se) {
		t.Fatalf("期望 StorageError，实际: %v", err)
	}
	if m.profile.createCalls != int(retryMaxTries) {
		t.Errorf("期望 %d 次尝试，实际 %d", retryMaxTries, m.profile.createCalls)
	}
}

func TestProfileService_Reconcile_InvalidRoleFallsBack(t *testing.T) {
	svc, _ := setupTestProfileService()

	got, err := svc.Reconcile(context.Background(), profile.Profile{ID: "user-1", Role: "admin"})
	if err != nil {
		t.Fatalf("Reconcile 应成功: %v", err)
	}
	if got.Role != profile.DefaultRole {
		t.Errorf("期望默认角色 %s，实际 %s", profile.DefaultRole, got.Role)
	}
}

// ── Provision 测试 ──

func TestProfileService_Provision_DefaultRole(t *testing.T) {
	svc, _ := setupTestProfileService()

	got, err := svc.Provision(context.Background(), profile.Identity{ID: "user-1", Email: "someone@example.com"})
	if err != nil {
		t.Fatalf("Provision 应成功: %v", err)
	}
	if got.Role != profile.RoleTeacher {
		t.Errorf("无角色声明时期望 teacher，实际 %s", got.Role)
	}
	if got.Name != "someone" {
		t.Errorf("期望姓名取邮箱前缀，实际 %s", got.Name)
	}
}

func TestProfileService_Provision_UsesClaims(t *testing.T) {
	svc, _ := setupTestProfileService()

	got, err := svc.Provision(context.Background(), profile.Identity{
		ID:       "user-2",
		Email:    "x@example.com",
		Metadata: profile.Metadata{Role: "student", Name: "Bia"},
	})
	if err != nil {
		t.Fatalf("Provision 应成功: %v", err)
	}
	if got.Role != profile.RoleStudent || got.Name != "Bia" {
		t.Errorf("期望按声明创建 student/Bia，实际 %+v", got)
	}
}

func TestProfileService_Provision_KeepsExisting(t *testing.T) {
	svc, m := setupTestProfileService()
	ctx := context.Background()

	if _, err := svc.Reconcile(ctx, profile.Profile{ID: "user-1", Name: "Ana", Role: profile.RoleStudent}); err != nil {
		t.Fatal(err)
	}
	calls := m.profile.createCalls

	got, err := svc.Provision(ctx, profile.Identity{ID: "user-1", Email: "prof@example.com"})
	if err != nil {
		t.Fatalf("Provision 应成功: %v", err)
	}
	if got.Role != profile.RoleStudent {
		t.Errorf("已有资料应原样返回，实际角色 %s", got.Role)
	}
	if m.profile.createCalls != calls {
		t.Error("资料已存在时不应再写入")
	}
}

func TestProfileService_Get_NotFound(t *testing.T) {
	svc, _ := setupTestProfileService()

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("期望 ErrProfileNotFound，实际: %v", err)
	}
}
