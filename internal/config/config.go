package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// AppName is used for the per-user data directory
const AppName = "spacecat sage"

// Config holds process-wide settings read from the environment.
type Config struct {
	DataDir      string
	Workspace    string
	SettingsFile string

	// Logging
	LogFile       string
	LogLevel      slog.Level
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Generation
	RequestTimeout time.Duration
	MaxAttempts    int
	RetryDelay     time.Duration
}

// Load reads configuration from environment variables.
func Load() Config {
	dataDir := getEnv("SAGE_DATA_DIR", DefaultDataDir())
	return Config{
		DataDir:      dataDir,
		Workspace:    getEnv("SAGE_WORKSPACE", filepath.Join(dataDir, "sessions", "current")),
		SettingsFile: getEnv("SAGE_SETTINGS", filepath.Join(dataDir, "settings.yaml")),

		LogFile:       getEnv("SAGE_LOG_FILE", filepath.Join(dataDir, "logs", "sage.log")),
		LogLevel:      parseLogLevel(getEnv("SAGE_LOG_LEVEL", "INFO")),
		LogMaxSizeMB:  parseInt(getEnv("SAGE_LOG_MAX_SIZE_MB", "10"), 10),
		LogMaxBackups: parseInt(getEnv("SAGE_LOG_MAX_BACKUPS", "3"), 3),
		LogMaxAgeDays: parseInt(getEnv("SAGE_LOG_MAX_AGE_DAYS", "28"), 28),

		RequestTimeout: parseDuration(getEnv("SAGE_REQUEST_TIMEOUT", "120s"), 120*time.Second),
		MaxAttempts:    parseInt(getEnv("SAGE_MAX_ATTEMPTS", "3"), 3),
		RetryDelay:     parseDuration(getEnv("SAGE_RETRY_DELAY", "1s"), time.Second),
	}
}

// BackupDir is where session backups are written
func (c Config) BackupDir() string {
	return filepath.Join(c.DataDir, "sessions", "backups")
}

// DefaultDataDir returns the per-user application data directory
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(getEnv("APPDATA", filepath.Join(home, "AppData", "Roaming")), AppName)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppName)
	default:
		return filepath.Join(getEnv("XDG_DATA_HOME", filepath.Join(home, ".local", "share")), AppName)
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return d
}

// ParseLogLevel maps DEBUG/INFO/WARN/ERROR to a slog level, defaulting to INFO
func ParseLogLevel(s string) slog.Level { return parseLogLevel(s) }

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
