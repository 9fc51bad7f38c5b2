package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration for the transcription server.
type Config struct {
	Addr            string
	TmpDir          string
	SettingsPath    string
	LogLevel        string
	ShutdownTimeout time.Duration
	EventBufferSize int
}

// Load reads configuration from the environment, consulting a .env file when
// present. Missing values fall back to defaults rooted in the user home.
func Load() (Config, error) {
	_ = godotenv.Load()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	baseDir := filepath.Join(homeDir, ".aura-transcribe")

	cfg := Config{
		Addr:            getEnv("ADDR", "127.0.0.1:47821"),
		TmpDir:          getEnv("TMP_DIR", filepath.Join(baseDir, "tmp")),
		SettingsPath:    getEnv("SETTINGS_PATH", filepath.Join(baseDir, "settings.json")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
		EventBufferSize: getEnvInt("EVENT_BUFFER_SIZE", 1000),
	}

	if err := os.MkdirAll(cfg.TmpDir, 0o755); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// getEnv returns the env value or a default when unset or empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvInt returns the env value parsed as int, or a default.
func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration returns the env value parsed as a duration, or a default.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
