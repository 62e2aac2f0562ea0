// Package authclient 后端认证接口的 HTTP 客户端。
//
// Client 同时实现 session.Provider 与 session.Reconciler：登录、注册、刷新成功后
// 推送 SIGNED_IN / TOKEN_REFRESHED，登出后推送 SIGNED_OUT。
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mang4123/edumanager-backend-sub000/pkg/profile"
	"github.com/mang4123/edumanager-backend-sub000/pkg/session"
)

// ErrUnauthorized 凭证无效或会话已失效（HTTP 401）
var ErrUnauthorized = errors.New("未认证或凭证无效")

// APIError 后端返回的错误响应
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Is 401 视为 ErrUnauthorized
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client 后端认证客户端
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	current   *session.Session
	listeners map[int]func(session.Event, *session.Session)
	next      int
}

// Option 定制 Client
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New 创建客户端；baseURL 形如 http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{},
		logger:    zap.NewNop(),
		now:       time.Now,
		listeners: make(map[int]func(session.Event, *session.Session)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ session.Provider   = (*Client)(nil)
	_ session.Reconciler = (*Client)(nil)
)

// ── 线上格式 ──

type envelope struct {
	Error   bool            `json:"error"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type userPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type tokenPayload struct {
	User         userPayload `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"`
}

// ═══════════════════════════════════════════════════════════
// session.Provider
// ═══════════════════════════════════════════════════════════

// SignInWithPassword POST /api/auth/login
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	var out tokenPayload
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &out); err != nil {
		return nil, err
	}
	s := c.store(out)
	c.emit(session.EventSignedIn, s)
	return s, nil
}

// SignUp POST /api/auth/register
func (c *Client) SignUp(ctx context.Context, params session.SignUpParams) (*session.Session, error) {
	var out tokenPayload
	body := map[string]string{
		"role":     params.Metadata.Role,
		"email":    params.Email,
		"password": params.Password,
		"name":     params.Metadata.Name,
		"phone":    params.Metadata.Phone,
		"invite":   params.Invite,
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", body, &out); err != nil {
		return nil, err
	}
	s := c.store(out)
	c.emit(session.EventSignedIn, s)
	return s, nil
}

// SignOut POST /api/auth/logout；本地会话总会被清除
func (c *Client) SignOut(ctx context.Context) error {
	s := c.Current()
	if s == nil {
		return nil
	}

	err := c.do(ctx, http.MethodPost, "/api/auth/logout", s.AccessToken, nil, nil)
	if errors.Is(err, ErrUnauthorized) {
		err = nil
	}

	c.setCurrent(nil)
	c.emit(session.EventSignedOut, nil)
	return err
}

// GetSession 返回本地会话：过期则刷新，否则经 /api/auth/me 确认仍然有效
func (c *Client) GetSession(ctx context.Context) (*session.Session, error) {
	s := c.Current()
	if s == nil {
		return nil, nil
	}

	if s.Expired(c.now()) {
		if s.RefreshToken == "" {
			c.setCurrent(nil)
			return nil, nil
		}
		refreshed, err := c.Refresh(ctx)
		if errors.Is(err, ErrUnauthorized) {
			return nil, nil
		}
		return refreshed, err
	}

	var me struct {
		User userPayload `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", s.AccessToken, nil, &me); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.setCurrent(nil)
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// OnAuthStateChange 订阅会话事件
func (c *Client) OnAuthStateChange(fn func(session.Event, *session.Session)) func() {
	c.mu.Lock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Refresh POST /api/auth/refresh；旧 Refresh Token 由服务端作废
func (c *Client) Refresh(ctx context.Context) (*session.Session, error) {
	s := c.Current()
	if s == nil || s.RefreshToken == "" {
		return nil, ErrUnauthorized
	}

	var out tokenPayload
	body := map[string]string{"refresh_token": s.RefreshToken}
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", "", body, &out); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.setCurrent(nil)
			c.emit(session.EventSignedOut, nil)
		}
		return nil, err
	}
	refreshed := c.store(out)
	c.emit(session.EventTokenRefreshed, refreshed)
	return refreshed, nil
}

// ═══════════════════════════════════════════════════════════
// session.Reconciler
// ═══════════════════════════════════════════════════════════

// Reconcile PUT /api/profile；服务端已有资料时原样返回
func (c *Client) Reconcile(ctx context.Context, p profile.Profile) (*profile.Profile, error) {
	s := c.Current()
	if s == nil {
		return nil, ErrUnauthorized
	}

	body := map[string]string{"name": p.Name}
	if p.Phone != "" {
		body["phone"] = p.Phone
	}

	var out userPayload
	if err := c.do(ctx, http.MethodPut, "/api/profile", s.AccessToken, body, &out); err != nil {
		return nil, err
	}
	return &profile.Profile{
		ID:    out.ID,
		Name:  out.Name,
		Email: out.Email,
		Phone: out.Phone,
		Role:  out.Role,
	}, nil
}

// ═══════════════════════════════════════════════════════════
// 会话存储
// ═══════════════════════════════════════════════════════════

// Current 当前本地会话
func (c *Client) Current() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Restore 恢复持久化的会话（不推送事件，由 GetSession 校验）
func (c *Client) Restore(s *session.Session) {
	c.setCurrent(s)
}

func (c *Client) setCurrent(s *session.Session) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
}

func (c *Client) store(out tokenPayload) *session.Session {
	s := &session.Session{
		AccessToken:  out.Token,
		RefreshToken: out.RefreshToken,
		Identity: profile.Identity{
			ID:    out.User.ID,
			Email: out.User.Email,
			Metadata: profile.Metadata{
				Role:     out.User.Role,
				UserType: out.User.Role,
				Name:     out.User.Name,
				Phone:    out.User.Phone,
			},
		},
		ExpiresAt: c.now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}
	c.setCurrent(s)
	return s
}

func (c *Client) emit(ev session.Event, s *session.Session) {
	c.mu.Lock()
	fns := make([]func(session.Event, *session.Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev, s)
	}
}

// ═══════════════════════════════════════════════════════════
// HTTP
// ═══════════════════════════════════════════════════════════

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("编码请求失败: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s %s: 解析响应失败: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || env.Error {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
		c.logger.Debug("后端返回错误",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Int("code", env.Code),
		)
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: 解析响应数据失败: %w", method, path, err)
		}
	}
	return nil
}
