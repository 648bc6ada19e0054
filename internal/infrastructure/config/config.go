package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/davidleathers/invoice-anomaly-backend/internal/service/detection"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	ERPNext  ERPNextConfig  `koanf:"erpnext"`

	Detection DetectionConfig `koanf:"detection"`
	Security  SecurityConfig  `koanf:"security"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// HistoryTTL bounds how stale a cached vendor history snapshot may be
	HistoryTTL time.Duration `koanf:"history_ttl"`
}

type ERPNextConfig struct {
	BaseURL   string        `koanf:"base_url"`
	APIKey    string        `koanf:"api_key"`
	APISecret string        `koanf:"api_secret"`
	Timeout   time.Duration `koanf:"timeout"`
}

// IsConfigured reports whether ERPNext integration can be enabled. The
// service runs fine without it; ERP endpoints then return a business error.
func (e ERPNextConfig) IsConfigured() bool {
	return e.BaseURL != "" && e.APIKey != "" && e.APISecret != ""
}

// DetectionConfig carries the engine thresholds plus the history window the
// store applies when assembling a vendor baseline.
type DetectionConfig struct {
	Thresholds    detection.Config `koanf:"thresholds"`
	HistoryWindow int              `koanf:"history_window"`
}

type SecurityConfig struct {
	JWTSecret   string          `koanf:"jwt_secret"`
	TokenExpiry time.Duration   `koanf:"token_expiry"`
	APIKeys     []string        `koanf:"api_keys"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

// Load reads configuration in three layers: struct defaults, an optional
// YAML file, then INVOICE_-prefixed environment variables (double underscore
// nests, e.g. INVOICE_ERPNEXT__API_KEY -> erpnext.api_key).
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			HistoryTTL:   5 * time.Minute,
		},
		ERPNext: ERPNextConfig{
			Timeout: 30 * time.Second,
		},
		Detection: DetectionConfig{
			Thresholds:    detection.DefaultConfig(),
			HistoryWindow: 50,
		},
		Security: SecurityConfig{
			TokenExpiry: 24 * time.Hour,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				BurstSize:         200,
			},
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	// Config file is optional
	_ = k.Load(file.Provider(configPath), yaml.Parser())

	if err := k.Load(env.Provider("INVOICE_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "INVOICE_"))
		return strings.Replace(s, "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Detection.HistoryWindow <= 0 {
		return fmt.Errorf("detection.history_window must be positive")
	}
	t := c.Detection.Thresholds
	if t.PriceIncreaseThreshold <= 0 || t.AmountDeviationThreshold <= 0 {
		return fmt.Errorf("detection thresholds must be positive")
	}
	if t.QuantityAvgMultiplier <= 1 || t.QuantityMaxMultiplier <= 1 {
		return fmt.Errorf("quantity multipliers must exceed 1")
	}
	if t.SuspiciousScore < 0 || t.SuspiciousScore > 100 {
		return fmt.Errorf("detection.thresholds.suspicious_score must be within [0,100]")
	}
	return nil
}
