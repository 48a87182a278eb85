package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"` // public base, used for hosted payment URLs
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type FlowConfig struct {
	LockTTL  time.Duration `yaml:"lock_ttl"`  // max allowance for one processing attempt
	LockWait time.Duration `yaml:"lock_wait"` // bounded wait before replaying the saved result
}

type PayzenConfig struct {
	ShopID   string `yaml:"shop_id"`
	Password string `yaml:"password"`
	HMACKey  string `yaml:"hmac_key"`
	APIURL   string `yaml:"api_url"`
	Sandbox  bool   `yaml:"sandbox"`
}

type GatewaysConfig struct {
	Payzen PayzenConfig `yaml:"payzen"`
	// Noop enables the in-memory gateway; dev and tests only.
	Noop bool `yaml:"noop"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	LoginSecret string `yaml:"login_secret"` // shared secret for /api/v1/login

	SecureCookie bool          `yaml:"secure_cookie"`
	CookieDomain string        `yaml:"cookie_domain"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
}

type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

type SchedConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	ReconcileAfter    time.Duration `yaml:"reconcile_after"` // how stale a record must be to re-drive
	PurgeInterval     time.Duration `yaml:"purge_interval"`
	RetentionDays     int           `yaml:"retention_days"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Flow     FlowConfig     `yaml:"flow"`
	Gateways GatewaysConfig `yaml:"gateways"`
	Auth     AuthConfig     `yaml:"auth"`
	Notify   NotifyConfig   `yaml:"notify"`
	Sched    SchedConfig    `yaml:"sched"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Flow.LockTTL <= 0 {
		cfg.Flow.LockTTL = 30 * time.Second
	}
	if cfg.Flow.LockWait <= 0 {
		cfg.Flow.LockWait = 3 * time.Second
	}
	if cfg.Auth.SessionTTL <= 0 {
		cfg.Auth.SessionTTL = 30 * time.Minute
	}
	if cfg.Sched.ReconcileInterval <= 0 {
		cfg.Sched.ReconcileInterval = time.Minute
	}
	if cfg.Sched.ReconcileAfter <= 0 {
		cfg.Sched.ReconcileAfter = 10 * time.Minute
	}
	if cfg.Sched.PurgeInterval <= 0 {
		cfg.Sched.PurgeInterval = 24 * time.Hour
	}
	if cfg.Sched.RetentionDays <= 0 {
		cfg.Sched.RetentionDays = 90
	}

	// Minimal validation
	if cfg.Server.BaseURL == "" {
		return nil, errors.New("server.base_url is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
