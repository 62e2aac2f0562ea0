package config

import (
	"testing"
	"time"
)

func TestLoad_DefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("EDU_AUTH_JWT_SECRET", "test-secret-key-for-unit-testing")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("期望默认端口 8080，实际=%d", cfg.Server.Port)
	}
	if cfg.Invite.TTL != 7*24*time.Hour {
		t.Errorf("期望邀请有效期 7 天，实际=%v", cfg.Invite.TTL)
	}
	if cfg.Session.CallTimeout != 10*time.Second {
		t.Errorf("期望会话调用超时 10s，实际=%v", cfg.Session.CallTimeout)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("期望默认驱动 postgres，实际=%s", cfg.Database.Driver)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("EDU_AUTH_JWT_SECRET", "")

	if _, err := Load(""); err == nil {
		t.Fatal("缺少 jwt_secret 时期望返回错误")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Driver: "sqlite"},
			Auth: AuthConfig{
				JWTSecret:       "0123456789abcdef",
				AccessTokenTTL:  time.Hour,
				RefreshTokenTTL: 24 * time.Hour,
			},
			Invite: InviteConfig{TTL: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"合法配置", func(c *Config) {}, false},
		{"密钥过短", func(c *Config) { c.Auth.JWTSecret = "short" }, true},
		{"端口越界", func(c *Config) { c.Server.Port = 70000 }, true},
		{"未知驱动", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"邀请有效期为零", func(c *Config) { c.Invite.TTL = 0 }, true},
		{"token 有效期为零", func(c *Config) { c.Auth.AccessTokenTTL = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("期望 wantErr=%v，实际 err=%v", tt.wantErr, err)
			}
		})
	}
}
