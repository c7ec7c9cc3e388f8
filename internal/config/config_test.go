package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STOREFRONT_CONFIG", "")
	t.Setenv("STOREFRONT_JWT_SECRET", testSecret)
	t.Setenv("STOREFRONT_ACCESS_TTL", "5m")
	t.Setenv("STOREFRONT_CORS_ORIGINS", "https://shop.example.com, https://admin.example.com")
	t.Setenv("STOREFRONT_TRUST_PROXY", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.AccessTTL != 5*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.Auth.AccessTTL)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Server.TrustProxy {
		t.Fatal("expected trust proxy to be enabled")
	}
	if cfg.Auth.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("default refresh ttl lost: %v", cfg.Auth.RefreshTTL)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yaml")
	data := strings.Join([]string{
		"env: production",
		"server:",
		"  addr: \":8443\"",
		"auth:",
		"  jwtSecret: " + testSecret,
		"  accessTTL: 10m",
		"redis:",
		"  addr: redis:6379",
	}, "\n")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STOREFRONT_CONFIG", path)
	t.Setenv("STOREFRONT_REDIS_ADDR", "cache:6380")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Production() || cfg.Server.Addr != ":8443" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Auth.AccessTTL != 10*time.Minute {
		t.Fatalf("unexpected access ttl: %v", cfg.Auth.AccessTTL)
	}
	if cfg.Redis.Addr != "cache:6380" {
		t.Fatalf("env should override file, got %q", cfg.Redis.Addr)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, want: "jwt secret"},
		{name: "unknown env", mutate: func(c *Config) { c.Env = "staging" }, want: "invalid env"},
		{name: "ttl order", mutate: func(c *Config) { c.Auth.AccessTTL = 8 * 24 * time.Hour }, want: "shorter"},
		{name: "admin pair", mutate: func(c *Config) { c.Auth.AdminEmail = "admin@example.com" }, want: "together"},
		{name: "same ports", mutate: func(c *Config) { c.Server.GRPCAddr = c.Server.Addr }, want: "must be different"},
		{
			name: "wildcard credentials",
			mutate: func(c *Config) {
				c.Env = EnvProduction
				c.CORS.AllowedOrigins = []string{"*"}
				c.CORS.AllowCredentials = true
			},
			want: "wildcard",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Auth.JWTSecret = testSecret
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("STOREFRONT_TEST_BAD_INT", "nope")
	if got := getEnvInt("STOREFRONT_TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("getEnvInt() = %d, want default", got)
	}
	t.Setenv("STOREFRONT_TEST_DURATION", "90s")
	if got := getEnvDuration("STOREFRONT_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("getEnvDuration() = %v", got)
	}
}
