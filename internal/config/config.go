// Package config loads bot settings from an optional YAML file and the
// environment. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Token           string        `yaml:"token"`
	DBPath          string        `yaml:"db_path"`
	MonobankURL     string        `yaml:"monobank_url"`
	RatesCacheTTL   time.Duration `yaml:"rates_cache_ttl"`
	PollTimeout     time.Duration `yaml:"poll_timeout"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
	ChatRate        float64       `yaml:"chat_rate"`
	ChatBurst       int           `yaml:"chat_burst"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	Timezone        string        `yaml:"timezone"`
	LogLevel        string        `yaml:"log_level"`
}

func Default() Config {
	return Config{
		DBPath:          "./echobot.db",
		MonobankURL:     "https://api.monobank.ua",
		RatesCacheTTL:   5 * time.Minute,
		PollTimeout:     10 * time.Second,
		SessionTTL:      24 * time.Hour,
		JanitorInterval: 5 * time.Minute,
		ChatRate:        1,
		ChatBurst:       5,
		Timezone:        "Local",
		LogLevel:        "info",
	}
}

// Load reads the config like Read and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read builds a Config from defaults, then the YAML file at path (if any),
// then the environment. It does not validate.
func Read(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	mergeEnv(&cfg)
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func mergeEnv(cfg *Config) {
	token := ParseString("BOT_TOKEN", "")
	if token == "" {
		token = ParseString("TELEGRAM_TOKEN", "")
	}
	if token != "" {
		cfg.Token = token
	}

	cfg.DBPath = ParseString("ECHOBOT_DB", cfg.DBPath)
	cfg.MonobankURL = ParseString("MONOBANK_URL", cfg.MonobankURL)
	cfg.RatesCacheTTL = ParseDuration("RATES_CACHE_TTL", cfg.RatesCacheTTL)
	cfg.PollTimeout = ParseDuration("POLL_TIMEOUT", cfg.PollTimeout)
	cfg.SessionTTL = ParseDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.JanitorInterval = ParseDuration("JANITOR_INTERVAL", cfg.JanitorInterval)
	cfg.ChatRate = ParseFloat("CHAT_RATE", cfg.ChatRate)
	cfg.ChatBurst = ParseInt("CHAT_BURST", cfg.ChatBurst)
	cfg.MetricsAddr = ParseString("METRICS_ADDR", cfg.MetricsAddr)
	cfg.Timezone = ParseString("BOT_TIMEZONE", cfg.Timezone)
	cfg.LogLevel = ParseString("LOG_LEVEL", cfg.LogLevel)
}

func (c Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: BOT_TOKEN is required", ErrInvalidConfig)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db path is empty", ErrInvalidConfig)
	}
	durations := map[string]time.Duration{
		"rates_cache_ttl":  c.RatesCacheTTL,
		"poll_timeout":     c.PollTimeout,
		"session_ttl":      c.SessionTTL,
		"janitor_interval": c.JanitorInterval,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, name, d)
		}
	}
	if c.ChatRate <= 0 {
		return fmt.Errorf("%w: chat_rate must be positive, got %v", ErrInvalidConfig, c.ChatRate)
	}
	if c.ChatBurst < 1 {
		return fmt.Errorf("%w: chat_burst must be at least 1, got %d", ErrInvalidConfig, c.ChatBurst)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

// Location resolves the configured timezone used for age calculations.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}
