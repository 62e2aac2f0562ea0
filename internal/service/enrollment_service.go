package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mang4123/edumanager-backend-sub000/internal/dto"
	"github.com/mang4123/edumanager-backend-sub000/internal/model"
	"github.com/mang4123/edumanager-backend-sub000/internal/repository"
	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/metrics"
	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
)

// EnrollmentService 邀请接受与师生关系业务接口
type EnrollmentService interface {
	// Accept 消费邀请并建立师生关系；重试与并发调用只产生一条 active 关系
	Accept(ctx context.Context, token, studentID string) (*dto.EnrollmentResponse, error)
	// ReconcileAccepted 为已消费但缺少关系记录的邀请补建关系，返回补建数量
	ReconcileAccepted(ctx context.Context, limit int) (int, error)
	List(ctx context.Context, userID, role string) ([]dto.EnrollmentResponse, error)
}

type enrollmentService struct {
	repo        *repository.Repository
	callTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewEnrollmentService 创建 EnrollmentService 实例
func NewEnrollmentService(repo *repository.Repository, callTimeout time.Duration, logger *zap.Logger) EnrollmentService {
	return &enrollmentService{
		repo:        repo,
		callTimeout: callTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// ═══════════════════════════════════════════════════════════
// Accept 接受邀请
// ═══════════════════════════════════════════════════════════
//
// 写入顺序固定：
//  1. 按 token 查询邀请，不存在 → ErrInviteNotFound
//  2. 已过期 → ErrInviteExpired（每次重试都检查）
//  3. 条件更新 status=pending → accepted（CAS）
//  4. CAS 成功：幂等插入关系（与 active 记录冲突视为成功）
//     CAS 零行：重新读取邀请，按已接受分支处理
//
// 已接受分支：已有 (teacher, student) active 关系 → 返回它；
// 邀请由本人消费但关系缺失 → 补建；否则 → ErrInviteAlreadyAccepted。
// 步骤 3、4 在同一事务内执行。

func (s *enrollmentService) Accept(ctx context.Context, token, studentID string) (*dto.EnrollmentResponse, error) {
	ctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()

	var (
		enrollment *model.Enrollment
		outcome    string
	)

	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		now := s.now()

		invite, err := s.loadInvite(ctx, tx, token)
		if err != nil {
			return err
		}
		if invite.IsExpired(now) {
			return ErrInviteExpired
		}

		if invite.Status == model.InviteStatusPending {
			won, err := tx.Invite.MarkAccepted(ctx, token, studentID, now)
			if err != nil {
				return pkgerrors.Storage("invite.mark_accepted", err)
			}
			if won {
				var created bool
				enrollment, created, err = s.insertEnrollment(ctx, tx, invite, studentID)
				if err != nil {
					return err
				}
				outcome = metrics.AcceptCreated
				if !created {
					outcome = metrics.AcceptIdempotent
				}
				return nil
			}

			// 零行受影响：其他请求已先完成消费
			invite, err = s.loadInvite(ctx, tx, token)
			if err != nil {
				return err
			}
		}

		enrollment, outcome, err = s.resolveAccepted(ctx, tx, invite, studentID)
		return err
	})

	if err != nil {
		metrics.InviteAccepts.WithLabelValues(acceptOutcome(err)).Inc()
		if !isInviteError(err) {
			s.logger.Error("接受邀请失败", zap.String("student_id", studentID), zap.Error(err))
		}
		return nil, err
	}

	metrics.InviteAccepts.WithLabelValues(outcome).Inc()
	s.logger.Info("邀请已接受",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("teacher_id", enrollment.TeacherID),
		zap.String("student_id", studentID),
		zap.String("outcome", outcome),
	)

	return toEnrollmentResponse(enrollment), nil
}

func (s *enrollmentService) loadInvite(ctx context.Context, tx *repository.Repository, token string) (*model.Invite, error) {
	invite, err := tx.Invite.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, pkgerrors.Storage("invite.get", err)
	}
	return invite, nil
}

// resolveAccepted 处理已被消费的邀请
func (s *enrollmentService) resolveAccepted(ctx context.Context, tx *repository.Repository, invite *model.Invite, studentID string) (*model.Enrollment, string, error) {
	existing, err := tx.Enrollment.GetActive(ctx, invite.TeacherID, studentID)
	if err == nil {
		return existing, metrics.AcceptIdempotent, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", pkgerrors.Storage("enrollment.get", err)
	}

	if !invite.AcceptedByStudent(studentID) {
		return nil, "", ErrInviteAlreadyAccepted
	}

	// 邀请已由本人消费但关系缺失（上次写入中断），补建
	enrollment, created, err := s.insertEnrollment(ctx, tx, invite, studentID)
	if err != nil {
		return nil, "", err
	}
	if !created {
		return enrollment, metrics.AcceptIdempotent, nil
	}
	return enrollment, metrics.AcceptRepaired, nil
}

// insertEnrollment 幂等插入 active 关系；冲突时返回已有记录与 created=false
func (s *enrollmentService) insertEnrollment(ctx context.Context, tx *repository.Repository, invite *model.Invite, studentID string) (*model.Enrollment, bool, error) {
	inviteID := invite.ID
	enrollment := &model.Enrollment{
		TeacherID: invite.TeacherID,
		StudentID: studentID,
		InviteID:  &inviteID,
		Active:    true,
	}

	created, err := tx.Enrollment.CreateIfAbsent(ctx, enrollment)
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, pkgerrors.Storage("enrollment.create", err)
	}
	if created {
		return enrollment, true, nil
	}

	existing, err := tx.Enrollment.GetActive(ctx, invite.TeacherID, studentID)
	if err != nil {
		return nil, false, pkgerrors.Storage("enrollment.get", err)
	}
	return existing, false, nil
}

// ═══════════════════════════════════════════════════════════
// ReconcileAccepted 补建缺失的师生关系
// ═══════════════════════════════════════════════════════════

func (s *enrollmentService) ReconcileAccepted(ctx context.Context, limit int) (int, error) {
	orphans, err := retryStorage(ctx, s.callTimeout, func(cctx context.Context) ([]model.Invite, error) {
		invites, err := s.repo.Invite.ListAcceptedWithoutEnrollment(cctx, limit)
		if err != nil {
			return nil, pkgerrors.Storage("invite.list_orphans", err)
		}
		return invites, nil
	})
	if err != nil {
		return 0, err
	}

	repaired := 0
	var errs []error
	for i := range orphans {
		invite := &orphans[i]
		if invite.AcceptedBy == nil {
			continue
		}
		inviteID := invite.ID
		enrollment := &model.Enrollment{
			TeacherID: invite.TeacherID,
			StudentID: *invite.AcceptedBy,
			InviteID:  &inviteID,
			Active:    true,
		}

		created, err := retryStorage(ctx, s.callTimeout, func(cctx context.Context) (bool, error) {
			created, err := s.repo.Enrollment.CreateIfAbsent(cctx, enrollment)
			if err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return false, nil
				}
				return false, pkgerrors.Storage("enrollment.create", err)
			}
			return created, nil
		})
		if err != nil {
			s.logger.Warn("补建师生关系失败",
				zap.String("invite_id", invite.ID),
				zap.String("student_id", enrollment.StudentID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if created {
			repaired++
			metrics.EnrollmentsReconciled.Inc()
			s.logger.Info("已补建师生关系",
				zap.String("invite_id", invite.ID),
				zap.String("teacher_id", enrollment.TeacherID),
				zap.String("student_id", enrollment.StudentID),
			)
		}
	}

	return repaired, errors.Join(errs...)
}

// ────────────────────── List ──────────────────────

func (s *enrollmentService) List(ctx context.Context, userID, role string) ([]dto.EnrollmentResponse, error) {
	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()

	var (
		enrollments []model.Enrollment
		err         error
	)
	if role == profile.RoleStudent {
		enrollments, err = s.repo.Enrollment.ListByStudent(cctx, userID)
	} else {
		enrollments, err = s.repo.Enrollment.ListByTeacher(cctx, userID)
	}
	if err != nil {
		s.logger.Error("列出师生关系失败", zap.String("user_id", userID), zap.Error(err))
		return nil, pkgerrors.Storage("enrollment.list", err)
	}

	result := make([]dto.EnrollmentResponse, 0, len(enrollments))
	for i := range enrollments {
		result = append(result, *toEnrollmentResponse(&enrollments[i]))
	}
	return result, nil
}

// ── 辅助 ──

func isInviteError(err error) bool {
	return errors.Is(err, ErrInviteNotFound) ||
		errors.Is(err, ErrInviteExpired) ||
		errors.Is(err, ErrInviteAlreadyAccepted)
}

func acceptOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInviteNotFound):
		return metrics.AcceptNotFound
	case errors.Is(err, ErrInviteExpired):
		return metrics.AcceptExpired
	case errors.Is(err, ErrInviteAlreadyAccepted):
		return metrics.AcceptAlreadyAccepted
	default:
		return metrics.AcceptError
	}
}

func toEnrollmentResponse(e *model.Enrollment) *dto.EnrollmentResponse {
	return &dto.EnrollmentResponse{
		ID:        e.ID,
		TeacherID: e.TeacherID,
		StudentID: e.StudentID,
		InviteID:  e.InviteID,
		Active:    e.Active,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}
