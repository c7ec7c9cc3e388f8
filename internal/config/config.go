// Package config loads service configuration from an optional YAML file
// overlaid with STOREFRONT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config holds all application configuration.
type Config struct {
	Env      string         `yaml:"env"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Cache    CacheConfig    `yaml:"cache"`
	CORS     CORSConfig     `yaml:"cors"`
	Log      LogConfig      `yaml:"log"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	GRPCAddr        string        `yaml:"grpcAddr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	SlowRequest     time.Duration `yaml:"slowRequest"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	TrustProxy      bool          `yaml:"trustProxy"`
}

// AuthConfig holds token and bootstrap settings.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwtSecret"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	AccessTTL     time.Duration `yaml:"accessTTL"`
	RefreshTTL    time.Duration `yaml:"refreshTTL"`
	BcryptCost    int           `yaml:"bcryptCost"`
	AdminEmail    string        `yaml:"adminEmail"`
	AdminPassword string        `yaml:"adminPassword"`
}

// DatabaseConfig selects the Postgres backing store. An empty DSN keeps
// principals and refresh tokens in memory.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// RedisConfig selects the shared counter and cache store. An empty Addr
// keeps both in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

// CORSConfig controls cross-origin access.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// JobsConfig holds cron schedules for maintenance jobs.
type JobsConfig struct {
	TokenCleanup string `yaml:"tokenCleanup"`
	CounterSweep string `yaml:"counterSweep"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Env: EnvDevelopment,
		Server: ServerConfig{
			Addr:            ":8080",
			GRPCAddr:        ":9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    35 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			SlowRequest:     30 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Auth: AuthConfig{
			Issuer:     "storefront-api",
			Audience:   "storefront-clients",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			BcryptCost: 12,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{Prefix: "storefront:"},
		Cache: CacheConfig{Enabled: true, Size: 10000},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Log: LogConfig{Level: "info"},
		Jobs: JobsConfig{
			TokenCleanup: "@every 1h",
			CounterSweep: "@every 5m",
		},
	}
}

// Load builds configuration from defaults, the YAML file named by
// STOREFRONT_CONFIG (if any) and STOREFRONT_* environment variables, in
// that order, and validates the result.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("STOREFRONT_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Env = strings.ToLower(getEnv("STOREFRONT_ENV", c.Env))

	c.Server.Addr = getEnv("STOREFRONT_ADDR", c.Server.Addr)
	c.Server.GRPCAddr = getEnv("STOREFRONT_GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.ReadTimeout = getEnvDuration("STOREFRONT_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("STOREFRONT_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("STOREFRONT_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("STOREFRONT_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.SlowRequest = getEnvDuration("STOREFRONT_SLOW_REQUEST", c.Server.SlowRequest)
	c.Server.MaxBodyBytes = getEnvInt64("STOREFRONT_MAX_BODY_BYTES", c.Server.MaxBodyBytes)
	c.Server.TrustProxy = getEnvBool("STOREFRONT_TRUST_PROXY", c.Server.TrustProxy)

	c.Auth.JWTSecret = getEnv("STOREFRONT_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getEnv("STOREFRONT_JWT_ISSUER", c.Auth.Issuer)
	c.Auth.Audience = getEnv("STOREFRONT_JWT_AUDIENCE", c.Auth.Audience)
	c.Auth.AccessTTL = getEnvDuration("STOREFRONT_ACCESS_TTL", c.Auth.AccessTTL)
	c.Auth.RefreshTTL = getEnvDuration("STOREFRONT_REFRESH_TTL", c.Auth.RefreshTTL)
	c.Auth.BcryptCost = getEnvInt("STOREFRONT_BCRYPT_COST", c.Auth.BcryptCost)
	c.Auth.AdminEmail = getEnv("STOREFRONT_ADMIN_EMAIL", c.Auth.AdminEmail)
	c.Auth.AdminPassword = getEnv("STOREFRONT_ADMIN_PASSWORD", c.Auth.AdminPassword)

	c.Database.DSN = getEnv("STOREFRONT_PG_DSN", c.Database.DSN)
	c.Database.MaxOpenConns = getEnvInt("STOREFRONT_PG_MAX_CONNS", c.Database.MaxOpenConns)
	c.Database.ConnMaxLifetime = getEnvDuration("STOREFRONT_PG_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.Addr = getEnv("STOREFRONT_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("STOREFRONT_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("STOREFRONT_REDIS_DB", c.Redis.DB)
	c.Redis.Prefix = getEnv("STOREFRONT_REDIS_PREFIX", c.Redis.Prefix)

	c.Cache.Enabled = getEnvBool("STOREFRONT_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.Size = getEnvInt("STOREFRONT_CACHE_SIZE", c.Cache.Size)

	if origins := getEnv("STOREFRONT_CORS_ORIGINS", ""); origins != "" {
		c.CORS.AllowedOrigins = splitList(origins)
	}
	c.CORS.AllowCredentials = getEnvBool("STOREFRONT_CORS_CREDENTIALS", c.CORS.AllowCredentials)

	c.Log.Level = getEnv("STOREFRONT_LOG_LEVEL", c.Log.Level)

	c.Jobs.TokenCleanup = getEnv("STOREFRONT_JOB_TOKEN_CLEANUP", c.Jobs.TokenCleanup)
	c.Jobs.CounterSweep = getEnv("STOREFRONT_JOB_COUNTER_SWEEP", c.Jobs.CounterSweep)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("invalid env %q (must be development, test or production)", c.Env)
	}
	if c.Server.Addr == "" {
		return errors.New("server addr is required")
	}
	if c.Server.Addr == c.Server.GRPCAddr {
		return errors.New("server addr and grpc addr must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 bytes")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.Auth.AccessTTL >= c.Auth.RefreshTTL {
		return errors.New("access token lifetime must be shorter than refresh token lifetime")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost %d out of range", c.Auth.BcryptCost)
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return errors.New("admin email and password must be set together")
	}
	if c.Cache.Size <= 0 {
		return errors.New("cache size must be positive")
	}
	if c.Env == EnvProduction {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" && c.CORS.AllowCredentials {
				return errors.New("wildcard cors origin cannot be combined with credentials in production")
			}
		}
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool { return c.Env == EnvProduction }

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
