package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all crisp configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Engagement EngagementConfig
	Log        LogConfig
}

type ServerConfig struct {
	Bind string
	Port int
}

type DatabaseConfig struct {
	Path string // resolved at runtime via store.DefaultDBPath() when empty
}

// RedisConfig selects the quota backend. Empty URL falls back to SQLite.
type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type EngagementConfig struct {
	DecayWindow     time.Duration
	DailyRefreshes  int
	RelikeRefreshes bool
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	SweepInterval   time.Duration // 0 disables the background sweep
}

type LogConfig struct {
	Level  string // logrus level name
	Format string // "text" or "json"
}

// DevJWTSecret is the signing secret used when none is configured. Anyone
// who knows it can mint a token for any user.
const DevJWTSecret = "crisp-dev-secret"

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38888,
		},
		Auth: AuthConfig{
			JWTSecret: DevJWTSecret,
			Issuer:    "crisp",
		},
		Engagement: EngagementConfig{
			DecayWindow:    7 * 24 * time.Hour,
			DailyRefreshes: 3,
			RetryAttempts:  3,
			RetryBaseDelay: 20 * time.Millisecond,
			SweepInterval:  time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns Default() with CRISP_* environment overrides applied.
func Load() Config {
	cfg := Default()
	cfg.Server.Bind = getenv("CRISP_BIND", cfg.Server.Bind)
	cfg.Server.Port = getenvInt("CRISP_PORT", cfg.Server.Port)
	cfg.Database.Path = getenv("CRISP_DB", cfg.Database.Path)
	cfg.Redis.URL = getenv("CRISP_REDIS_URL", cfg.Redis.URL)
	cfg.Auth.JWTSecret = getenv("CRISP_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = getenv("CRISP_JWT_ISSUER", cfg.Auth.Issuer)
	cfg.Engagement.DecayWindow = getenvDuration("CRISP_DECAY_WINDOW", cfg.Engagement.DecayWindow)
	cfg.Engagement.DailyRefreshes = getenvInt("CRISP_DAILY_REFRESHES", cfg.Engagement.DailyRefreshes)
	cfg.Engagement.RelikeRefreshes = getenvBool("CRISP_RELIKE_REFRESHES", cfg.Engagement.RelikeRefreshes)
	cfg.Engagement.RetryAttempts = getenvInt("CRISP_RETRY_ATTEMPTS", cfg.Engagement.RetryAttempts)
	cfg.Engagement.RetryBaseDelay = getenvDuration("CRISP_RETRY_BASE_DELAY", cfg.Engagement.RetryBaseDelay)
	cfg.Engagement.SweepInterval = getenvDuration("CRISP_SWEEP_INTERVAL", cfg.Engagement.SweepInterval)
	cfg.Log.Level = getenv("CRISP_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("CRISP_LOG_FORMAT", cfg.Log.Format)
	return cfg
}

// UsesDevSecret reports whether tokens are signed with the built-in secret.
func (c *Config) UsesDevSecret() bool {
	return c.Auth.JWTSecret == DevJWTSecret
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
