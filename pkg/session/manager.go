package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgerrors "github.com/mang4123/edumanager-backend-sub000/pkg/errors"
	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
)

// Manager 会话状态机，由调用方持有并负责 Initialize / Teardown
type Manager struct {
	provider    Provider
	reconciler  Reconciler
	logger      *zap.Logger
	callTimeout time.Duration
	now         func() time.Time

	mu          sync.Mutex
	state       State
	gen         uint64
	issued      uint64 // 已发放的最大票号；只有持有它的来源才能结算
	settled     bool
	disposed    bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	ready       chan struct{}
	done        chan struct{}

	listeners    map[int]func(State)
	nextListener int
	notifying    bool
	dirty        bool
}

// New 创建会话管理器；reconciler 可为 nil，此时直接使用声明推导的 Profile
func New(provider Provider, reconciler Reconciler, opts ...Option) *Manager {
	m := &Manager{
		provider:    provider,
		reconciler:  reconciler,
		logger:      zap.NewNop(),
		callTimeout: DefaultCallTimeout,
		now:         time.Now,
		state:       State{Phase: PhaseInit},
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
		listeners:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ═══════════════════════════════════════════════════════════
// 生命周期
// ═══════════════════════════════════════════════════════════

// Initialize 订阅会话事件并并发发起一次性 GetSession 查询。
// 重复调用会开启新代次，旧代次的迟到结果一律丢弃。ctx 约束本代次内所有后台调用。
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	prevUnsub, prevCancel := m.unsubscribe, m.cancel

	m.gen++
	gen := m.gen
	m.ctx, m.cancel = context.WithCancel(ctx)
	genCtx := m.ctx
	m.unsubscribe = nil
	m.settled = false
	m.ready = make(chan struct{})
	m.state = State{Phase: PhaseLoading, Loading: true}
	queryTicket := m.takeTicket()
	m.mu.Unlock()

	if prevUnsub != nil {
		prevUnsub()
	}
	if prevCancel != nil {
		prevCancel()
	}
	m.notify()

	unsub := m.provider.OnAuthStateChange(func(ev Event, s *Session) {
		m.handleEvent(gen, ev, s)
	})

	m.mu.Lock()
	if m.disposed || m.gen != gen {
		m.mu.Unlock()
		unsub()
		return nil
	}
	m.unsubscribe = unsub
	m.mu.Unlock()

	go m.runQuery(genCtx, gen, queryTicket)

	m.logger.Debug("会话管理器初始化", zap.Uint64("generation", gen))
	return nil
}

// Teardown 取消订阅并标记销毁；之后到达的任何异步结果都被丢弃
func (m *Manager) Teardown() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	unsub, cancel := m.unsubscribe, m.cancel
	m.unsubscribe, m.cancel = nil, nil
	m.listeners = map[int]func(State){}
	close(m.done)
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	m.logger.Debug("会话管理器已销毁")
}

// ═══════════════════════════════════════════════════════════
// 状态观察
// ═══════════════════════════════════════════════════════════

// State 当前状态快照
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe 注册状态监听器。监听器总能收到最新状态，中间状态可能被合并，但绝不会回退。
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return func() {}
	}
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// WaitReady 阻塞直至当前代次首次就绪
func (m *Manager) WaitReady(ctx context.Context) (State, error) {
	m.mu.Lock()
	ready, done := m.ready, m.done
	m.mu.Unlock()

	select {
	case <-ready:
		return m.State(), nil
	case <-done:
		return m.State(), ErrDisposed
	case <-ctx.Done():
		return m.State(), ctx.Err()
	}
}

// ═══════════════════════════════════════════════════════════
// 身份操作（均受 callTimeout 约束）
// ═══════════════════════════════════════════════════════════

// SignIn 邮箱密码登录；会话状态由随后的 SIGNED_IN 事件驱动
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	s, err := bounded(ctx, m.callTimeout, func(ctx context.Context) (*Session, error) {
		return m.provider.SignInWithPassword(ctx, email, password)
	})
	if err != nil {
		m.logger.Warn("登录失败", zap.String("email", email), zap.Error(err))
		return nil, err
	}
	return s, nil
}

// SignUp 注册；角色必须显式给出
func (m *Manager) SignUp(ctx context.Context, params SignUpParams) (*Session, error) {
	if !profile.IsValidRole(params.Metadata.Role) {
		return nil, ErrRoleRequired
	}
	if params.Metadata.UserType == "" {
		params.Metadata.UserType = params.Metadata.Role
	}

	s, err := bounded(ctx, m.callTimeout, func(ctx context.Context) (*Session, error) {
		return m.provider.SignUp(ctx, params)
	})
	if err != nil {
		m.logger.Warn("注册失败", zap.String("email", params.Email), zap.Error(err))
		return nil, err
	}
	return s, nil
}

// SignOut 登出；无论提供方调用是否成功，本地状态都结算为 READY(nil)
func (m *Manager) SignOut(ctx context.Context) error {
	_, err := bounded(ctx, m.callTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.provider.SignOut(ctx)
	})
	if err != nil {
		m.logger.Warn("提供方登出失败，仍清除本地会话", zap.Error(err))
	}

	m.mu.Lock()
	if m.disposed || m.state.Phase == PhaseInit {
		m.mu.Unlock()
		return err
	}
	gen, t := m.gen, m.takeTicket()
	m.mu.Unlock()

	m.apply(gen, t, nil, nil)
	return err
}

// ═══════════════════════════════════════════════════════════
// 内部：来源处理
// ═══════════════════════════════════════════════════════════

func (m *Manager) runQuery(ctx context.Context, gen, ticket uint64) {
	s, err := bounded(ctx, m.callTimeout, m.provider.GetSession)
	if err != nil {
		m.logger.Warn("获取当前会话失败，按未登录处理", zap.Error(err))
		m.apply(gen, ticket, nil, nil)
		return
	}
	if s == nil || s.Expired(m.now()) {
		m.apply(gen, ticket, nil, nil)
		return
	}
	if m.stale(gen, ticket) {
		return
	}
	m.apply(gen, ticket, s, m.resolveProfile(ctx, s))
}

func (m *Manager) handleEvent(gen uint64, ev Event, s *Session) {
	switch ev {
	case EventSignedIn, EventSignedOut, EventTokenRefreshed:
	default:
		m.logger.Warn("未知会话事件", zap.String("event", string(ev)))
		return
	}

	m.mu.Lock()
	if m.disposed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	t := m.takeTicket()
	ctx := m.ctx
	current := m.state.Profile
	m.mu.Unlock()

	m.logger.Debug("收到会话事件", zap.String("event", string(ev)), zap.Uint64("ticket", t))

	switch ev {
	case EventSignedOut:
		m.apply(gen, t, nil, nil)
	default:
		if s == nil {
			m.apply(gen, t, nil, nil)
			return
		}
		// 同一身份的 Token 刷新沿用已解析的 Profile
		if ev == EventTokenRefreshed && current != nil && current.ID == s.Identity.ID {
			m.apply(gen, t, s, current)
			return
		}
		go func() {
			m.apply(gen, t, s, m.resolveProfile(ctx, s))
		}()
	}
}

// resolveProfile 由声明推导 Profile 并对账；对账失败退回声明推导结果，永不失败
func (m *Manager) resolveProfile(ctx context.Context, s *Session) *profile.Profile {
	derived := profile.Resolve(s.Identity)
	if m.reconciler == nil {
		return &derived
	}

	p, err := bounded(ctx, m.callTimeout, func(ctx context.Context) (*profile.Profile, error) {
		return m.reconciler.Reconcile(ctx, derived)
	})
	if err != nil || p == nil {
		m.logger.Warn("资料对账失败，使用声明推导的资料",
			zap.String("user_id", derived.ID),
			zap.Error(err),
		)
		return &derived
	}
	return p
}

// ═══════════════════════════════════════════════════════════
// 内部：结算与通知
// ═══════════════════════════════════════════════════════════

// takeTicket 需持有 m.mu。新票号立即使所有更早的在途来源失效。
func (m *Manager) takeTicket() uint64 {
	m.issued++
	return m.issued
}

// superseded 需持有 m.mu
func (m *Manager) superseded(gen, ticket uint64) bool {
	return m.disposed || gen != m.gen || ticket != m.issued
}

func (m *Manager) stale(gen, ticket uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.superseded(gen, ticket)
}

func (m *Manager) apply(gen, ticket uint64, s *Session, p *profile.Profile) {
	m.mu.Lock()
	if m.superseded(gen, ticket) {
		m.mu.Unlock()
		m.logger.Debug("丢弃过期的会话结果", zap.Uint64("ticket", ticket))
		return
	}
	m.state = State{Phase: PhaseReady, Loading: false, Session: s, Profile: p}
	if !m.settled {
		m.settled = true
		close(m.ready)
	}
	m.mu.Unlock()

	m.notify()
}

// notify 向监听器投递最新状态。可重入：投递期间的新变更由正在投递的调用方补发。
func (m *Manager) notify() {
	m.mu.Lock()
	if m.notifying {
		m.dirty = true
		m.mu.Unlock()
		return
	}
	m.notifying = true
	for {
		m.dirty = false
		st := m.state
		fns := make([]func(State), 0, len(m.listeners))
		for _, fn := range m.listeners {
			fns = append(fns, fn)
		}
		m.mu.Unlock()

		for _, fn := range fns {
			fn(st)
		}

		m.mu.Lock()
		if !m.dirty {
			m.notifying = false
			m.mu.Unlock()
			return
		}
	}
}

// bounded 以超时执行外部调用；提供方不响应 ctx 时同样按时返回
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.v, fmt.Errorf("%w: %v", pkgerrors.ErrTimeout, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, pkgerrors.ErrTimeout
		}
		return zero, ctx.Err()
	}
}
