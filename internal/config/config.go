// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	PublicBaseURL  string        `yaml:"public_base_url"` // prefix of the redemption URL
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	APIToken  string        `yaml:"api_token"`
	JWTSecret string        `yaml:"jwt_secret"` // empty disables operator tokens
	JWTTTL    time.Duration `yaml:"jwt_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // host:port; empty disables caching and shared rate limits
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type BotConfig struct {
	Token    string `yaml:"token"` // empty disables invite links
	Username string `yaml:"username"` // support link on the redemption page, without "@"
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type RateLimitConfig struct {
	RedeemPerMinute int `yaml:"redeem_per_minute"`
	VotePerMinute   int `yaml:"vote_per_minute"`
}

type GovernanceConfig struct {
	CloseInterval time.Duration `yaml:"close_interval"`
}

type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Admin      AdminConfig      `yaml:"admin"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Bot        BotConfig        `yaml:"bot"`
	Security   SecurityConfig   `yaml:"security"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Governance GovernanceConfig `yaml:"governance"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the yaml file at path (optional when every required value
// comes from the environment), applies .env and environment overrides, then
// defaults, then validation.
func LoadConfig(path string, dev bool) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Admin.APIToken, "ADMIN_API_TOKEN")
	override(&cfg.Admin.JWTSecret, "ADMIN_JWT_SECRET")
	override(&cfg.Bot.Token, "TELEGRAM_BOT_TOKEN")
	override(&cfg.Bot.Username, "TELEGRAM_BOT_USERNAME")
	override(&cfg.Security.EncryptionKey, "ENCRYPTION_KEY")
	override(&cfg.Server.PublicBaseURL, "PUBLIC_BASE_URL")
}

func applyDefaults(cfg *Config) {
	cfg.Bot.Username = strings.TrimPrefix(strings.TrimSpace(cfg.Bot.Username), "@")
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 15 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.JWTTTL <= 0 {
		cfg.Admin.JWTTTL = 12 * time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.RateLimit.RedeemPerMinute <= 0 {
		cfg.RateLimit.RedeemPerMinute = 30
	}
	if cfg.RateLimit.VotePerMinute <= 0 {
		cfg.RateLimit.VotePerMinute = 20
	}
	if cfg.Governance.CloseInterval <= 0 {
		cfg.Governance.CloseInterval = time.Minute
	}
	if cfg.Metrics.RefreshInterval <= 0 {
		cfg.Metrics.RefreshInterval = 30 * time.Second
	}
}

// Validate checks the values the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Admin.APIToken == "" {
		return errors.New("admin.api_token is required")
	}
	if k := len(c.Security.EncryptionKey); k != 0 && k != 16 && k != 24 && k != 32 {
		return fmt.Errorf("security.encryption_key must be 16, 24, or 32 bytes; got %d", k)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
