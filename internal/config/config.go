package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application's configuration values.
type Config struct {
	DatabaseDriver string
	DatabaseURL    string

	// Poll scheduler
	PollInterval       time.Duration
	ProbeCount         int
	ProbeInterval      time.Duration
	ProbeTimeout       time.Duration
	ProbePayloadSize   int
	ProbeConcurrency   int
	OfflineRepeatCount int

	// Heartbeat expiry scanner
	ExpiryScanInterval time.Duration

	// Push server
	PushServerPort string
	BaseURL        string

	// Telegram
	TelegramToken   string
	TelegramAdminID int64

	WatchdogLimit int
	ShutdownGrace time.Duration
	Debug         bool
}

// Load loads configuration from environment variables with sane defaults.
func Load() *Config {
	port := getEnv("PUSH_SERVER_PORT", "5000")
	return &Config{
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:    getEnv("DATABASE_URL", "hostpingbot.db"),

		PollInterval:       getEnvDuration("POLL_INTERVAL", 60*time.Second),
		ProbeCount:         getEnvInt("PROBE_COUNT", 2),
		ProbeInterval:      getEnvDuration("PROBE_INTERVAL", 50*time.Millisecond),
		ProbeTimeout:       getEnvDuration("PROBE_TIMEOUT", 2*time.Second),
		ProbePayloadSize:   getEnvInt("PROBE_PAYLOAD_SIZE", 8),
		ProbeConcurrency:   getEnvInt("PROBE_CONCURRENCY", 100),
		OfflineRepeatCount: getEnvInt("OFFLINE_REPEAT_COUNT", 3),

		ExpiryScanInterval: getEnvDuration("EXPIRY_SCAN_INTERVAL", 10*time.Second),

		PushServerPort: port,
		BaseURL:        getEnv("BASE_URL", fmt.Sprintf("http://localhost:%s", port)),

		TelegramToken:   getEnv("TELEGRAM_TOKEN", ""),
		TelegramAdminID: getEnvInt64("TELEGRAM_ADMIN_ID", 0),

		WatchdogLimit: getEnvInt("WATCHDOG_LIMIT", 10),
		ShutdownGrace: getEnvDuration("SHUTDOWN_GRACE", 10*time.Second),
		Debug:         getEnvBool("DEBUG", false),
	}
}

// Helper function to get an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as an integer.
func getEnvInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as an int64.
func getEnvInt64(key string, fallback int64) int64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as a boolean.
func getEnvBool(key string, fallback bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as a time.Duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return fallback
}
