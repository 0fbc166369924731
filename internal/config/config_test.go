package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.OfflineRepeatCount)
	assert.Equal(t, 10*time.Second, cfg.ExpiryScanInterval)
	assert.Equal(t, "5000", cfg.PushServerPort)
	assert.Equal(t, "http://localhost:5000", cfg.BaseURL)
	assert.Equal(t, 10, cfg.WatchdogLimit)
	assert.False(t, cfg.Debug)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("POLL_INTERVAL", "2m")
	t.Setenv("OFFLINE_REPEAT_COUNT", "5")
	t.Setenv("PUSH_SERVER_PORT", "8080")
	t.Setenv("BASE_URL", "https://ping.example.com")
	t.Setenv("TELEGRAM_ADMIN_ID", "123456789")
	t.Setenv("DEBUG", "true")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 2*time.Minute, cfg.PollInterval)
	assert.Equal(t, 5, cfg.OfflineRepeatCount)
	assert.Equal(t, "8080", cfg.PushServerPort)
	assert.Equal(t, "https://ping.example.com", cfg.BaseURL)
	assert.Equal(t, int64(123456789), cfg.TelegramAdminID)
	assert.True(t, cfg.Debug)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("PROBE_COUNT", "two")

	cfg := Load()

	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 2, cfg.ProbeCount)
}
