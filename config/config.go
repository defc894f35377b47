// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Redis      RedisConfig      `yaml:"redis"`
	Backend    BackendConfig    `yaml:"backend"`
	Calculator CalculatorConfig `yaml:"calculator"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type RedisConfig struct {
	Enabled bool          `yaml:"enabled"`
	Addr    string        `yaml:"addr"`
	DB      int           `yaml:"db"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
}

type BackendConfig struct {
	APIBaseURL       string        `yaml:"api_base_url"`
	WSBaseURL        string        `yaml:"ws_base_url"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	PollRateLimit    float64       `yaml:"poll_rate_limit"`
}

type CalculatorConfig struct {
	LegalFee     int64 `yaml:"legal_fee"`
	HistoryLimit int   `yaml:"history_limit"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "auction:",
			TTL:    24 * time.Hour,
		},
		Backend: BackendConfig{
			APIBaseURL:       "http://localhost:8000",
			WSBaseURL:        "ws://localhost:8000",
			PollInterval:     5 * time.Second,
			RequestTimeout:   10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			ReadTimeout:      2 * time.Minute,
			PollRateLimit:    5,
		},
		Calculator: CalculatorConfig{
			LegalFee:     800_000,
			HistoryLimit: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults and then applies AUCTION_* environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Calculator.LegalFee < 0 {
		return fmt.Errorf("calculator.legal_fee must not be negative")
	}
	if c.Backend.PollInterval <= 0 {
		return fmt.Errorf("backend.poll_interval must be positive")
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit.requests_per_minute must not be negative")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"AUCTION_ADDR":         &cfg.Server.Addr,
		"AUCTION_REDIS_ADDR":   &cfg.Redis.Addr,
		"AUCTION_API_BASE_URL": &cfg.Backend.APIBaseURL,
		"AUCTION_WS_BASE_URL":  &cfg.Backend.WSBaseURL,
		"AUCTION_LOG_LEVEL":    &cfg.Log.Level,
	}
	for env, dst := range strs {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("AUCTION_REDIS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUCTION_REDIS_ENABLED: %w", err)
		}
		cfg.Redis.Enabled = b
	}
	if v := os.Getenv("AUCTION_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AUCTION_POLL_INTERVAL: %w", err)
		}
		cfg.Backend.PollInterval = d
	}
	if v := os.Getenv("AUCTION_LEGAL_FEE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("AUCTION_LEGAL_FEE: %w", err)
		}
		cfg.Calculator.LegalFee = n
	}
	return nil
}
