// Package session 客户端会话管理器。
//
// Manager 把身份提供方的事件订阅与一次性 GetSession 查询合并为单一可观察状态：
//
//	INIT → LOADING → READY(profile | nil)
//
// 每个来源在开始时领取单调递增的 ticket，完成时仅当它仍持有最新发放的 ticket、
// 代次（generation）未变且管理器未销毁时才会生效；被更新来源取代的结果直接丢弃，
// 因此较新的登录仍在解析资料时，旧查询的未登录结果不会先行结算。
// Loading 在每次 Initialize 后只会翻转为 false 一次。
package session

import (
	"context"
	"errors"
	"time"

	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
)

// Event 身份提供方推送的会话事件
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

var (
	// ErrDisposed 管理器已 Teardown
	ErrDisposed = errors.New("会话管理器已销毁")
	// ErrRoleRequired 注册时必须显式给出角色
	ErrRoleRequired = errors.New("注册必须指定角色 teacher 或 student")
)

// Session 客户端会话（仅存在于内存）
type Session struct {
	AccessToken  string
	RefreshToken string
	Identity     profile.Identity
	ExpiresAt    time.Time
}

// Expired 会话是否已过期
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SignUpParams 注册参数；Metadata.Role 必填
type SignUpParams struct {
	Email    string
	Password string
	Metadata profile.Metadata
	Invite   string
}

// Provider 身份提供方
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, params SignUpParams) (*Session, error)
	SignOut(ctx context.Context) error
	// GetSession 返回当前会话；未登录时返回 (nil, nil)
	GetSession(ctx context.Context) (*Session, error)
	// OnAuthStateChange 订阅会话事件，返回取消订阅函数
	OnAuthStateChange(fn func(Event, *Session)) (unsubscribe func())
}

// Reconciler 将推导出的 Profile 与持久化存储对账
type Reconciler interface {
	Reconcile(ctx context.Context, p profile.Profile) (*profile.Profile, error)
}

// Phase 会话阶段
type Phase int

const (
	PhaseInit Phase = iota
	PhaseLoading
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "LOADING"
	case PhaseReady:
		return "READY"
	default:
		return "INIT"
	}
}

// State 对外可观察的会话状态（只读快照）
type State struct {
	Phase   Phase
	Loading bool
	Session *Session
	Profile *profile.Profile
}

// SignedIn 是否处于已登录的就绪状态
func (s State) SignedIn() bool {
	return s.Phase == PhaseReady && s.Profile != nil
}
