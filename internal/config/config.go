// Package config loads taskrunner's runtime configuration from environment
// variables, mirroring the env-var-with-defaults style the rest of the
// daemon uses for its own settings.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Config holds every tunable named in the external interface contract.
// Every field has a conservative default so the daemon can start with a
// completely empty environment.
type Config struct {
	AppSecret     string
	AdminUser     string
	AdminPass     string
	DBURL         string
	Host          string
	Port          int
	RootPath      string
	MaxWorkers    int
	AlertSuppress time.Duration

	LogDir        string
	LogLevel      slog.Level
	LogMaxBytes   int64
	LogBackupDays int
	AppLogName    string

	MetricsRetentionDays int
	MetricsDir           string

	AlertPushScript string
	AlertPushTitle  string
	AlertPushGroup  string
	AlertPushLevel  string

	RunZombieSec time.Duration
	Timezone     string
	JobsFile     string

	DefaultTimeoutSec time.Duration

	HolidayOverridesFile string
}

// FromEnv builds a Config from the process environment, applying
// sensible defaults for any variable left unset.
func FromEnv() *Config {
	c := &Config{
		AppSecret:            getEnv("APP_SECRET", ""),
		AdminUser:            getEnv("ADMIN_USER", "admin"),
		AdminPass:            getEnv("ADMIN_PASS", ""),
		DBURL:                getEnv("DB_URL", "sqlite:///data/taskrunner.db"),
		Host:                 getEnv("HOST", "127.0.0.1"),
		Port:                 getEnvInt("PORT", 8901),
		RootPath:             getEnv("ROOT_PATH", ""),
		MaxWorkers:           getEnvInt("MAX_WORKERS", 4),
		AlertSuppress:        time.Duration(getEnvInt("ALERT_SUPPRESS_SEC", 1800)) * time.Second,
		LogDir:               getEnv("LOG_DIR", "./data/logs"),
		LogLevel:             parseLevel(getEnv("LOG_LEVEL", "INFO")),
		LogMaxBytes:          int64(getEnvInt("LOG_MAX_BYTES", 10*1024*1024)),
		LogBackupDays:        getEnvInt("LOG_BACKUP_COUNT", 7),
		AppLogName:           getEnv("APP_LOG_NAME", "app.log"),
		MetricsRetentionDays: getEnvInt("METRICS_RETENTION_DAYS", 90),
		MetricsDir:           getEnv("METRICS_DIR", "./data/metrics"),
		AlertPushScript:      getEnv("ALERT_PUSH_SCRIPT", ""),
		AlertPushTitle:       getEnv("ALERT_PUSH_TITLE", "taskrunner"),
		AlertPushGroup:       getEnv("ALERT_PUSH_GROUP", "ops"),
		AlertPushLevel:       getEnv("ALERT_PUSH_LEVEL", "warn"),
		RunZombieSec:         time.Duration(getEnvInt("RUN_ZOMBIE_SEC", 3600)) * time.Second,
		Timezone:             getEnv("TIMEZONE", "Asia/Shanghai"),
		JobsFile:             getEnv("JOBS_FILE", "./data/jobs.json"),
		DefaultTimeoutSec:    time.Duration(getEnvInt("DEFAULT_TIMEOUT_SEC", 300)) * time.Second,
		HolidayOverridesFile: getEnv("HOLIDAY_OVERRIDES_FILE", ""),
	}
	if c.LogBackupDays < 1 {
		c.LogBackupDays = 1
	}
	return c
}

// Validate checks invariants that FromEnv cannot enforce with a default
// alone (e.g. a worker count must be positive).
func (c *Config) Validate() error {
	if c.MaxWorkers < 1 {
		return errors.New("MAX_WORKERS must be >= 1")
	}
	if c.DefaultTimeoutSec <= 0 {
		return errors.New("DEFAULT_TIMEOUT_SEC must be positive")
	}
	if c.DBURL == "" {
		return errors.New("DB_URL is required")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseLevel(s string) slog.Level {
	switch s {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "warn", "WARNING", "warning":
		return slog.LevelWarn
	case "ERROR", "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
