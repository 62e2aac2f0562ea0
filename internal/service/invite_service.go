package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mang4123/edumanager-backend-sub000/config"
	"github.com/mang4123/edumanager-backend-sub000/internal/dto"
	"github.com/mang4123/edumanager-backend-sub000/internal/model"
	"github.com/mang4123/edumanager-backend-sub000/internal/repository"
	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/metrics"
)

// ── 邀请模块业务错误 ──

var (
	ErrInviteNotFound        = errors.New("邀请不存在")
	ErrInviteExpired         = errors.New("邀请已过期")
	ErrInviteAlreadyAccepted = errors.New("邀请已被使用")
	ErrExportGenerateFail    = errors.New("生成 Excel 文件失败")
)

// InviteService 邀请业务接口
//
// 同一教师可对同一学生邮箱重复发出 pending 邀请，不做去重。
type InviteService interface {
	Create(ctx context.Context, teacherID string, req *dto.CreateInviteRequest) (*dto.InviteResponse, error)
	// List 返回展示状态；不回写存储中的状态
	List(ctx context.Context, teacherID string) ([]dto.InviteResponse, error)
	// Revoke 删除邀请行，不影响已创建的师生关系；非本人邀请按不存在处理
	Revoke(ctx context.Context, teacherID, inviteID string) error
	// Validate 注册页公开预览
	Validate(ctx context.Context, token string) (*dto.InviteValidateResponse, error)
	// ExportRoster 导出邀请与学生名单为 Excel
	ExportRoster(ctx context.Context, teacherID string) (*bytes.Buffer, string, error)
}

type inviteService struct {
	repo        *repository.Repository
	ttl         time.Duration
	baseURL     string
	callTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewInviteService 创建 InviteService 实例
func NewInviteService(cfg *config.Config, repo *repository.Repository, logger *zap.Logger) InviteService {
	return &inviteService{
		repo:        repo,
		ttl:         cfg.Invite.TTL,
		baseURL:     strings.TrimRight(cfg.Server.BaseURL, "/"),
		callTimeout: cfg.Database.CallTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// ────────────────────── Create ──────────────────────

func (s *inviteService) Create(ctx context.Context, teacherID string, req *dto.CreateInviteRequest) (*dto.InviteResponse, error) {
	now := s.now()
	invite := &model.Invite{
		Token:        uuid.NewString(), // UUIDv4，122 位随机
		TeacherID:    teacherID,
		StudentName:  strings.TrimSpace(req.StudentName),
		StudentEmail: strings.ToLower(strings.TrimSpace(req.StudentEmail)),
		StudentPhone: req.StudentPhone,
		Message:      req.Message,
		ExpiresAt:    now.Add(s.ttl),
		Status:       model.InviteStatusPending,
	}

	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()

	if err := s.repo.Invite.Create(cctx, invite); err != nil {
		s.logger.Error("创建邀请失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, pkgerrors.Storage("invite.create", err)
	}

	metrics.InvitesCreated.Inc()
	s.logger.Info("已创建邀请",
		zap.String("invite_id", invite.ID),
		zap.String("teacher_id", teacherID),
		zap.Time("expires_at", invite.ExpiresAt),
	)

	return s.toInviteResponse(invite, now), nil
}

// ────────────────────── List ──────────────────────

func (s *inviteService) List(ctx context.Context, teacherID string) ([]dto.InviteResponse, error) {
	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()

	invites, err := s.repo.Invite.ListByTeacher(cctx, teacherID)
	if err != nil {
		s.logger.Error("列出邀请失败", zap.String("teacher_id", teacherID), zap.Error(err))
		return nil, pkgerrors.Storage("invite.list", err)
	}

	now := s.now()
	result := make([]dto.InviteResponse, 0, len(invites))
	for i := range invites {
		result = append(result, *s.toInviteResponse(&invites[i], now))
	}
	return result, nil
}

// ────────────────────── Revoke ──────────────────────

func (s *inviteService) Revoke(ctx context.Context, teacherID, inviteID string) error {
	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()

	invite, err := s.repo.Invite.GetByID(cctx, inviteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInviteNotFound
		}
		return pkgerrors.Storage("invite.get", err)
	}
	if invite.TeacherID != teacherID {
		return ErrInviteNotFound
	}

	deleted, err := s.repo.Invite.Delete(cctx, inviteID)
	if err != nil {
		s.logger.Error("撤销邀请失败", zap.String("invite_id", inviteID), zap.Error(err))
		return pkgerrors.Storage("invite.delete", err)
	}
	if !deleted {
		return ErrInviteNotFound
	}

	s.logger.Info("已撤销邀请", zap.String("invite_id", inviteID), zap.String("teacher_id", teacherID))
	return nil
}

// ────────────────────── Validate ──────────────────────

func (s *inviteService) Validate(ctx context.Context, token string) (*dto.InviteValidateResponse, error) {
	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()

	invite, err := s.repo.Invite.GetByToken(cctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, pkgerrors.Storage("invite.get", err)
	}

	now := s.now()
	status := invite.DisplayStatus(now)
	resp := &dto.InviteValidateResponse{
		Valid:        status == model.InviteStatusPending,
		Status:       status,
		StudentName:  invite.StudentName,
		StudentEmail: invite.StudentEmail,
		ExpiresAt:    invite.ExpiresAt.Format(time.RFC3339),
	}

	// 教师姓名仅用于展示，查询失败不影响结果
	if teacher, err := s.repo.Profile.GetByID(cctx, invite.TeacherID); err == nil {
		resp.TeacherName = teacher.Name
	}

	return resp, nil
}

// ═══════════════════════════════════════════════════════════
// ExportRoster 导出邀请与学生名单
// ═══════════════════════════════════════════════════════════
//
// Sheet "邀请"：每个邀请一行（展示状态）
// Sheet "学生"：当前 active 的师生关系

func (s *inviteService) ExportRoster(ctx context.Context, teacherID string) (*bytes.Buffer, string, error) {
	cctx, cancel := callContext(ctx, s.callTimeout)
	defer cancel()

	invites, err := s.repo.Invite.ListByTeacher(cctx, teacherID)
	if err != nil {
		return nil, "", pkgerrors.Storage("invite.list", err)
	}
	enrollments, err := s.repo.Enrollment.ListByTeacher(cctx, teacherID)
	if err != nil {
		return nil, "", pkgerrors.Storage("enrollment.list", err)
	}

	now := s.now()

	f := excelize.NewFile()
	defer f.Close()

	inviteSheet := "邀请"
	idx, _ := f.NewSheet(inviteSheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})

	inviteHeaders := []string{"学生姓名", "学生邮箱", "学生电话", "状态", "创建时间", "过期时间", "接受时间"}
	writeRow(f, inviteSheet, 1, toCells(inviteHeaders))
	_ = f.SetCellStyle(inviteSheet, "A1", cellName(len(inviteHeaders), 1), headerStyle)

	for i := range invites {
		inv := &invites[i]
		writeRow(f, inviteSheet, i+2, []interface{}{
			inv.StudentName,
			inv.StudentEmail,
			derefString(inv.StudentPhone),
			inv.DisplayStatus(now),
			inv.CreatedAt.Format("2006-01-02 15:04"),
			inv.ExpiresAt.Format("2006-01-02 15:04"),
			formatTimePtr(inv.UsedAt, "2006-01-02 15:04"),
		})
	}
	_ = f.SetColWidth(inviteSheet, "A", "G", 22)

	studentSheet := "学生"
	if _, err := f.NewSheet(studentSheet); err != nil {
		s.logger.Error("创建 Sheet 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}
	studentHeaders := []string{"学生姓名", "学生邮箱", "学生电话", "关联时间"}
	writeRow(f, studentSheet, 1, toCells(studentHeaders))
	_ = f.SetCellStyle(studentSheet, "A1", cellName(len(studentHeaders), 1), headerStyle)

	for i := range enrollments {
		e := &enrollments[i]
		name, email, phone := e.StudentID, "", ""
		if p, err := s.repo.Profile.GetByID(cctx, e.StudentID); err == nil {
			name, email, phone = p.Name, p.Email, derefString(p.Phone)
		}
		writeRow(f, studentSheet, i+2, []interface{}{
			name, email, phone, e.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	_ = f.SetColWidth(studentSheet, "A", "D", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("roster-%s.xlsx", now.Format("20060102"))
	return buf, filename, nil
}

// ── 转换 ──

func (s *inviteService) toInviteResponse(inv *model.Invite, now time.Time) *dto.InviteResponse {
	resp := &dto.InviteResponse{
		ID:           inv.ID,
		Token:        inv.Token,
		InviteURL:    s.inviteURL(inv.Token),
		StudentName:  inv.StudentName,
		StudentEmail: inv.StudentEmail,
		StudentPhone: inv.StudentPhone,
		Message:      inv.Message,
		Status:       inv.DisplayStatus(now),
		ExpiresAt:    inv.ExpiresAt.Format(time.RFC3339),
		CreatedAt:    inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.UsedAt != nil {
		usedAt := inv.UsedAt.Format(time.RFC3339)
		resp.UsedAt = &usedAt
	}
	return resp
}

func (s *inviteService) inviteURL(token string) string {
	return s.baseURL + "/register?invite=" + url.QueryEscape(token)
}

// ── Excel 辅助 ──

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) {
	for col, v := range values {
		_ = f.SetCellValue(sheet, cellName(col+1, row), v)
	}
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTimePtr(t *time.Time, layout string) string {
	if t == nil {
		return ""
	}
	return t.Format(layout)
}
