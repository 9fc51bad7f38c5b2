package config

import (
	"os"
	"path/filepath"

	"aura-transcribe/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
// Empty tool paths mean the bare command names are resolved from PATH.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		ModelPath: filepath.Join(homeDir, ".aura-transcribe", "models"),
		Language:  "auto",
	}
}
