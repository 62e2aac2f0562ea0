package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mang4123/edumanager-backend-sub000/internal/model"
	"github.com/mang4123/edumanager-backend-sub000/internal/repository"
)

// errTransient 模拟瞬时存储错误
var errTransient = errors.New("connection reset by peer")

// ── 测试仓储聚合 ──

type testRepos struct {
	identity   *mockIdentityRepo
	profile    *mockProfileRepo
	invite     *mockInviteRepo
	enrollment *mockEnrollmentRepo
}

// newTestRepository 未绑定数据库，Transaction 直接执行回调
func newTestRepository() (*repository.Repository, *testRepos) {
	enrollments := newMockEnrollmentRepo()
	m := &testRepos{
		identity:   newMockIdentityRepo(),
		profile:    newMockProfileRepo(),
		invite:     newMockInviteRepo(enrollments),
		enrollment: enrollments,
	}
	repo := &repository.Repository{
		Identity:   m.identity,
		Profile:    m.profile,
		Invite:     m.invite,
		Enrollment: m.enrollment,
	}
	return repo, m
}

// ── Mock IdentityRepository ──

type mockIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]model.Identity
}

func newMockIdentityRepo() *mockIdentityRepo {
	return &mockIdentityRepo{identities: make(map[string]model.Identity)}
}

func (m *mockIdentityRepo) Create(_ context.Context, identity *model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.identities {
		if strings.EqualFold(existing.Email, identity.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	identity.CreatedAt = time.Now()
	m.identities[identity.ID] = *identity
	return nil
}

func (m *mockIdentityRepo) GetByID(_ context.Context, id string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if identity, ok := m.identities[id]; ok {
		return &identity, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockIdentityRepo) GetByEmail(_ context.Context, email string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, identity := range m.identities {
		if strings.EqualFold(identity.Email, email) {
			return &identity, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockIdentityRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.identities)
}

// ── Mock ProfileRepository ──

type mockProfileRepo struct {
	mu          sync.Mutex
	profiles    map[string]model.Profile
	failCreate  int // 剩余的瞬时失败次数
	createCalls int
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[string]model.Profile)}
}

func (m *mockProfileRepo) CreateIfMissing(_ context.Context, p *model.Profile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.failCreate > 0 {
		m.failCreate--
		return false, errTransient
	}
	if _, ok := m.profiles[p.ID]; ok {
		return false, nil
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.profiles[p.ID] = *p
	return true, nil
}

func (m *mockProfileRepo) GetByID(_ context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[id]; ok {
		return &p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockProfileRepo) Update(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = *p
	return nil
}

// ── Mock InviteRepository ──

type mockInviteRepo struct {
	mu          sync.Mutex
	invites     map[string]model.Invite // key: token
	enrollments *mockEnrollmentRepo
	casWins     int
}

func newMockInviteRepo(enrollments *mockEnrollmentRepo) *mockInviteRepo {
	return &mockInviteRepo{invites: make(map[string]model.Invite), enrollments: enrollments}
}

func (m *mockInviteRepo) Create(_ context.Context, invite *model.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if invite.ID == "" {
		invite.ID = uuid.NewString()
	}
	if invite.Status == "" {
		invite.Status = model.InviteStatusPending
	}
	if invite.CreatedAt.IsZero() {
		invite.CreatedAt = time.Now()
	}
	m.invites[invite.Token] = *invite
	return nil
}

func (m *mockInviteRepo) GetByID(_ context.Context, id string) (*model.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, invite := range m.invites {
		if invite.ID == id {
			return &invite, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockInviteRepo) GetByToken(_ context.Context, token string) (*model.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if invite, ok := m.invites[token]; ok {
		return &invite, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockInviteRepo) ListByTeacher(_ context.Context, teacherID string) ([]model.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Invite
	for _, invite := range m.invites {
		if invite.TeacherID == teacherID {
			result = append(result, invite)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *mockInviteRepo) MarkAccepted(_ context.Context, token, studentID string, usedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	invite, ok := m.invites[token]
	if !ok || invite.Status != model.InviteStatusPending {
		return false, nil
	}
	invite.Status = model.InviteStatusAccepted
	invite.UsedAt = &usedAt
	invite.AcceptedBy = &studentID
	m.invites[token] = invite
	m.casWins++
	return true, nil
}

func (m *mockInviteRepo) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, invite := range m.invites {
		if invite.ID == id {
			delete(m.invites, token)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockInviteRepo) ListAcceptedWithoutEnrollment(ctx context.Context, limit int) ([]model.Invite, error) {
	m.mu.Lock()
	var accepted []model.Invite
	for _, invite := range m.invites {
		if invite.Status == model.InviteStatusAccepted && invite.AcceptedBy != nil {
			accepted = append(accepted, invite)
		}
	}
	m.mu.Unlock()

	var result []model.Invite
	for _, invite := range accepted {
		if _, err := m.enrollments.GetActive(ctx, invite.TeacherID, *invite.AcceptedBy); err == nil {
			continue
		}
		result = append(result, invite)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

// forceAccepted 模拟“邀请已消费、关系写入中断”的残留状态
func (m *mockInviteRepo) forceAccepted(token, studentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	invite := m.invites[token]
	now := time.Now()
	invite.Status = model.InviteStatusAccepted
	invite.UsedAt = &now
	invite.AcceptedBy = &studentID
	m.invites[token] = invite
}

func (m *mockInviteRepo) get(token string) (model.Invite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	invite, ok := m.invites[token]
	return invite, ok
}

// ── Mock EnrollmentRepository ──

type mockEnrollmentRepo struct {
	mu          sync.Mutex
	enrollments []model.Enrollment
	failCreate  int
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{}
}

func (m *mockEnrollmentRepo) CreateIfAbsent(_ context.Context, e *model.Enrollment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate > 0 {
		m.failCreate--
		return false, errTransient
	}
	if e.Active {
		for _, existing := range m.enrollments {
			if existing.Active && existing.TeacherID == e.TeacherID && existing.StudentID == e.StudentID {
				return false, nil
			}
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now()
	m.enrollments = append(m.enrollments, *e)
	return true, nil
}

func (m *mockEnrollmentRepo) GetActive(_ context.Context, teacherID, studentID string) (*model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.Active && e.TeacherID == teacherID && e.StudentID == studentID {
			return &e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEnrollmentRepo) ListByTeacher(_ context.Context, teacherID string) ([]model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Enrollment
	for _, e := range m.enrollments {
		if e.Active && e.TeacherID == teacherID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockEnrollmentRepo) ListByStudent(_ context.Context, studentID string) ([]model.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Enrollment
	for _, e := range m.enrollments {
		if e.Active && e.StudentID == studentID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *mockEnrollmentRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

// ── Mock TokenBlacklist ──

type mockBlacklist struct {
	mu    sync.Mutex
	jtis  map[string]time.Duration
	block bool // 模拟 Redis 无响应：阻塞直到 ctx 结束
}

func newMockBlacklist() *mockBlacklist {
	return &mockBlacklist{jtis: make(map[string]time.Duration)}
}

func (m *mockBlacklist) BlacklistToken(_ context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jtis[jti] = ttl
	return nil
}

func (m *mockBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if m.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.jtis[jti]
	return ok, nil
}

// ── 退避参数 ──

// fastRetry 缩短退避间隔，测试结束后恢复
func fastRetry(t interface{ Cleanup(func()) }) {
	initial, maxInterval := retryInitialInterval, retryMaxInterval
	retryInitialInterval, retryMaxInterval = time.Millisecond, 5*time.Millisecond
	t.Cleanup(func() {
		retryInitialInterval, retryMaxInterval = initial, maxInterval
	})
}
