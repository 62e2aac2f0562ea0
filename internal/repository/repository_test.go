package repository_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mang4123/edumanager-backend-sub000/internal/model"
	"github.com/mang4123/edumanager-backend-sub000/internal/repository"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

// setupTestDB 每个测试独立的内存 sqlite 库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("无法打开测试数据库: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("AutoMigrate 失败: %v", err)
	}
	return db
}

func createIdentity(t *testing.T, repo *repository.Repository, email string, meta model.Metadata) *model.Identity {
	t.Helper()
	identity := &model.Identity{Email: email, PasswordHash: "hash", Metadata: meta}
	if err := repo.Identity.Create(context.Background(), identity); err != nil {
		t.Fatalf("创建身份失败: %v", err)
	}
	return identity
}

func createInvite(t *testing.T, repo *repository.Repository, teacherID, token string) *model.Invite {
	t.Helper()
	invite := &model.Invite{
		Token:        token,
		TeacherID:    teacherID,
		StudentName:  "Ana",
		StudentEmail: "ana@example.com",
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}
	if err := repo.Invite.Create(context.Background(), invite); err != nil {
		t.Fatalf("创建邀请失败: %v", err)
	}
	return invite
}

// ═══════════════════════════════════════════════════════════
// Identity / Profile
// ═══════════════════════════════════════════════════════════

func TestIdentity_GetByEmail_CaseInsensitive(t *testing.T) {
	repo := repository.NewRepository(setupTestDB(t))
	created := createIdentity(t, repo, "prof@example.com", model.Metadata{Role: "teacher", Name: "Prof"})

	got, err := repo.Identity.GetByEmail(context.Background(), "PROF@Example.com")
	if err != nil {
		t.Fatalf("期望查到身份，实际错误: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("期望 ID=%s，实际=%s", created.ID, got.ID)
	}
	if got.Metadata.Role != "teacher" || got.Metadata.Name != "Prof" {
		t.Errorf("元数据未正确往返，实际: %+v", got.Metadata)
	}
}

func TestProfile_CreateIfMissing(t *testing.T) {
	repo := repository.NewRepository(setupTestDB(t))
	ctx := context.Background()
	identity := createIdentity(t, repo, "ana@example.com", model.Metadata{})

	p := &model.Profile{ID: identity.ID, Name: "Ana", Email: identity.Email, Role: "student"}
	created, err := repo.Profile.CreateIfMissing(ctx, p)
	if err != nil || !created {
		t.Fatalf("首次创建应成功，created=%v err=%v", created, err)
	}

	dup := &model.Profile{ID: identity.ID, Name: "Outro", Email: identity.Email, Role: "teacher"}
	created, err = repo.Profile.CreateIfMissing(ctx, dup)
	if err != nil {
		t.Fatalf("重复创建不应报错: %v", err)
	}
	if created {
		t.Error("重复创建应返回 created=false")
	}

	got, err := repo.Profile.GetByID(ctx, identity.ID)
	if err != nil {
		t.Fatalf("查询资料失败: %v", err)
	}
	if got.Role != "student" || got.Name != "Ana" {
		t.Errorf("已有资料不应被覆盖，实际: %+v", got)
	}
}

// ═══════════════════════════════════════════════════════════
// Invite
// ═══════════════════════════════════════════════════════════

func TestInvite_MarkAccepted_OnlyOnce(t *testing.T) {
	repo := repository.NewRepository(setupTestDB(t))
	ctx := context.Background()
	teacher := createIdentity(t, repo, "prof@example.com", model.Metadata{Role: "teacher"})
	createInvite(t, repo, teacher.ID, "tok-1")

	ok, err := repo.Invite.MarkAccepted(ctx, "tok-1", "student-a", time.Now())
	if err != nil || !ok {
		t.Fatalf("首次 CAS 应成功，ok=%v err=%v", ok, err)
	}
	ok, err = repo.Invite.MarkAccepted(ctx, "tok-1", "student-b", time.Now())
	if err != nil {
		t.Fatalf("第二次 CAS 不应报错: %v", err)
	}
	if ok {
		t.Error("第二次 CAS 应影响零行")
	}

	got, err := repo.Invite.GetByToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("查询邀请失败: %v", err)
	}
	if got.Status != model.InviteStatusAccepted {
		t.Errorf("期望 accepted，实际: %s", got.Status)
	}
	if !got.AcceptedByStudent("student-a") {
		t.Errorf("期望 accepted_by=student-a，实际: %v", got.AcceptedBy)
	}
	if got.UsedAt == nil {
		t.Error("used_at 应被写入")
	}
}

func TestInvite_Delete(t *testing.T) {
	repo := repository.NewRepository(setupTestDB(t))
	ctx := context.Background()
	invite := createInvite(t, repo, "teacher-1", "tok-del")

	deleted, err := repo.Invite.Delete(ctx, invite.ID)
	if err != nil || !deleted {
		t.Fatalf("删除应成功，deleted=%v err=%v", deleted, err)
	}
	if _, err := repo.Invite.GetByToken(ctx, "tok-del"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("删除后期望 ErrRecordNotFound，实际: %v", err)
	}
	deleted, err = repo.Invite.Delete(ctx, invite.ID)
	if err != nil || deleted {
		t.Errorf("重复删除应返回 false，deleted=%v err=%v", deleted, err)
	}
}

func TestInvite_ListAcceptedWithoutEnrollment(t *testing.T) {
	repo := repository.NewRepository(setupTestDB(t))
	ctx := context.Background()

	createInvite(t, repo, "teacher-1", "tok-a")
	createInvite(t, repo, "teacher-1", "tok-b")
	createInvite(t, repo, "teacher-1", "tok-pending")
	if _, err := repo.Invite.MarkAccepted(ctx, "tok-a", "student-a", time.Now()); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Invite.MarkAccepted(ctx, "tok-b", "student-b", time.Now()); err != nil {
		t.Fatal(err)
	}
	// student-b 已有 active 关系
	if _, err := repo.Enrollment.CreateIfAbsent(ctx, &model.Enrollment{
		TeacherID: "teacher-1", StudentID: "student-b", Active: true,
	}); err != nil {
		t.Fatal(err)
	}

	orphans, err := repo.Invite.ListAcceptedWithoutEnrollment(ctx, 10)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(orphans) != 1 || orphans[0].Token != "tok-a" {
		t.Errorf("期望仅 tok-a 缺少关系，实际: %+v", orphans)
	}
}

// ═══════════════════════════════════════════════════════════
// Enrollment
// ═══════════════════════════════════════════════════════════

func TestEnrollment_CreateIfAbsent_UniqueActivePair(t *testing.T) {
	repo := repository.NewRepository(setupTestDB(t))
	ctx := context.Background()

	first := &model.Enrollment{TeacherID: "teacher-1", StudentID: "student-1", Active: true}
	created, err := repo.Enrollment.CreateIfAbsent(ctx, first)
	if err != nil || !created {
		t.Fatalf("首次创建应成功，created=%v err=%v", created, err)
	}

	second := &model.Enrollment{TeacherID: "teacher-1", StudentID: "student-1", Active: true}
	created, err = repo.Enrollment.CreateIfAbsent(ctx, second)
	if err != nil {
		t.Fatalf("冲突插入不应报错: %v", err)
	}
	if created {
		t.Error("同一师生对不应出现第二条 active 关系")
	}

	// 非 active 记录不受部分唯一索引约束
	inactive := &model.Enrollment{TeacherID: "teacher-1", StudentID: "student-1", Active: false}
	created, err = repo.Enrollment.CreateIfAbsent(ctx, inactive)
	if err != nil || !created {
		t.Errorf("inactive 记录应可写入，created=%v err=%v", created, err)
	}

	got, err := repo.Enrollment.GetActive(ctx, "teacher-1", "student-1")
	if err != nil {
		t.Fatalf("查询 active 关系失败: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("期望返回首条关系 %s，实际 %s", first.ID, got.ID)
	}

	list, err := repo.Enrollment.ListByTeacher(ctx, "teacher-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("期望 1 条 active 关系，实际 %d", len(list))
	}
}

// ═══════════════════════════════════════════════════════════
// Transaction
// ═══════════════════════════════════════════════════════════

func TestTransaction_Rollback(t *testing.T) {
	repo := repository.NewRepository(setupTestDB(t))
	ctx := context.Background()
	createInvite(t, repo, "teacher-1", "tok-tx")

	boom := errors.New("boom")
	err := repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := tx.Invite.MarkAccepted(ctx, "tok-tx", "student-1", time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("期望事务返回原始错误，实际: %v", err)
	}

	got, err := repo.Invite.GetByToken(ctx, "tok-tx")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.InviteStatusPending {
		t.Errorf("回滚后期望 pending，实际: %s", got.Status)
	}
}

func TestTransaction_Commit(t *testing.T) {
	repo := repository.NewRepository(setupTestDB(t))
	ctx := context.Background()
	createInvite(t, repo, "teacher-1", "tok-commit")

	err := repo.Transaction(ctx, func(tx *repository.Repository) error {
		if _, err := tx.Invite.MarkAccepted(ctx, "tok-commit", "student-1", time.Now()); err != nil {
			return err
		}
		_, err := tx.Enrollment.CreateIfAbsent(ctx, &model.Enrollment{
			TeacherID: "teacher-1", StudentID: "student-1", Active: true,
		})
		return err
	})
	if err != nil {
		t.Fatalf("事务提交失败: %v", err)
	}

	if _, err := repo.Enrollment.GetActive(ctx, "teacher-1", "student-1"); err != nil {
		t.Errorf("提交后应能查到关系: %v", err)
	}
}
