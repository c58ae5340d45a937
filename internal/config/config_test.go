package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "  token  ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.TelegramToken)
	assert.Equal(t, "daily_planner.db", cfg.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.ReminderCheckInterval)
	assert.Equal(t, 30, cfg.RepeatWindowDays)
	assert.Equal(t, "08:00", cfg.DigestTime)
	assert.Equal(t, 168*time.Hour, cfg.ReminderRetention)
	assert.Equal(t, 4096, cfg.DeliveredCacheSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("REMINDER_CHECK_INTERVAL", "1m")
	t.Setenv("REPEAT_WINDOW_DAYS", "14")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.ReminderCheckInterval)
	assert.Equal(t, 14, cfg.RepeatWindowDays)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_TOKEN")
}

func TestValidate_BadTimezone(t *testing.T) {
	cfg := Config{
		TelegramToken:         "token",
		Timezone:              "Mars/Olympus",
		ReminderCheckInterval: time.Second,
		RepeatWindowDays:      30,
		DeliveredCacheSize:    1,
	}
	assert.ErrorContains(t, cfg.Validate(), "Mars/Olympus")
}
