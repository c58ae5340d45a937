package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	DatabaseURL   string `env:"DATABASE_URL" env-default:"daily_planner.db"`
	Timezone      string `env:"TIMEZONE" env-default:"Local"`

	ReminderCheckInterval time.Duration `env:"REMINDER_CHECK_INTERVAL" env-default:"30s"`
	RepeatWindowDays      int           `env:"REPEAT_WINDOW_DAYS" env-default:"30"`
	WindowFillTime        string        `env:"WINDOW_FILL_TIME" env-default:"00:05"`
	DigestTime            string        `env:"DIGEST_TIME" env-default:"08:00"`
	CleanupTime           string        `env:"CLEANUP_TIME" env-default:"03:00"`
	ReminderRetention     time.Duration `env:"REMINDER_RETENTION" env-default:"168h"`
	DeliveredCacheSize    int           `env:"DELIVERED_CACHE_SIZE" env-default:"4096"`
	DeliveredCacheTTL     time.Duration `env:"DELIVERED_CACHE_TTL" env-default:"24h"`

	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat   string `env:"LOG_FORMAT" env-default:"json"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}
	cfg.TelegramToken = strings.TrimSpace(cfg.TelegramToken)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	if c.ReminderCheckInterval <= 0 {
		errs = append(errs, errors.New("REMINDER_CHECK_INTERVAL must be positive"))
	}
	if c.RepeatWindowDays <= 0 {
		errs = append(errs, errors.New("REPEAT_WINDOW_DAYS must be positive"))
	}
	if c.DeliveredCacheSize <= 0 {
		errs = append(errs, errors.New("DELIVERED_CACHE_SIZE must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves the configured time zone used for due times and snoozes.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
