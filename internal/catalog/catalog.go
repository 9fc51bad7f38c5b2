package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"aura-transcribe/internal/domain"
)

var whisperModels = []domain.WhisperModel{
	{
		ID:          "tiny.en",
		Name:        "Tiny (English)",
		FileName:    "ggml-tiny.en.bin",
		SizeLabel:   "~75 MB",
		Description: "Fastest, English-only model.",
	},
	{
		ID:          "tiny",
		Name:        "Tiny (Multilingual)",
		FileName:    "ggml-tiny.bin",
		SizeLabel:   "~75 MB",
		Description: "Fastest multilingual model.",
	},
	{
		ID:          "base.en",
		Name:        "Base (English)",
		FileName:    "ggml-base.en.bin",
		SizeLabel:   "~142 MB",
		Description: "Balanced speed/quality, English-only.",
	},
	{
		ID:          "base",
		Name:        "Base (Multilingual)",
		FileName:    "ggml-base.bin",
		SizeLabel:   "~142 MB",
		Description: "Balanced speed/quality, multilingual.",
	},
	{
		ID:          "small.en",
		Name:        "Small (English)",
		FileName:    "ggml-small.en.bin",
		SizeLabel:   "~466 MB",
		Description: "Higher quality, English-only.",
	},
	{
		ID:          "small",
		Name:        "Small (Multilingual)",
		FileName:    "ggml-small.bin",
		SizeLabel:   "~466 MB",
		Description: "Higher quality multilingual model.",
	},
	{
		ID:          "medium.en",
		Name:        "Medium (English)",
		FileName:    "ggml-medium.en.bin",
		SizeLabel:   "~1.5 GB",
		Description: "High quality, English-only.",
	},
	{
		ID:          "medium",
		Name:        "Medium (Multilingual)",
		FileName:    "ggml-medium.bin",
		SizeLabel:   "~1.5 GB",
		Description: "High quality multilingual model.",
	},
	{
		ID:          "large-v2",
		Name:        "Large v2",
		FileName:    "ggml-large-v2.bin",
		SizeLabel:   "~2.9 GB",
		Description: "Very high quality multilingual model.",
	},
	{
		ID:          "large-v3",
		Name:        "Large v3",
		FileName:    "ggml-large-v3.bin",
		SizeLabel:   "~2.9 GB",
		Description: "Latest large multilingual model.",
	},
	{
		ID:          "large-v3-turbo",
		Name:        "Large v3 Turbo",
		FileName:    "ggml-large-v3-turbo.bin",
		SizeLabel:   "~1.6 GB",
		Description: "Faster large-v3 variant.",
	},
}

// Catalog lists known whisper.cpp model presets and marks the ones already
// present on disk. It never downloads anything.
type Catalog struct {
	modelPath   string
	stat        func(string) (os.FileInfo, error)
	userHomeDir func() (string, error)
}

// New builds a catalog rooted at the configured model path. The path may name
// a model file or a directory of models; either way its directory is searched
// alongside the default local models directory.
func New(modelPath string) *Catalog {
	return &Catalog{
		modelPath:   modelPath,
		stat:        os.Stat,
		userHomeDir: os.UserHomeDir,
	}
}

// NewForTests builds a catalog with injectable OS dependencies.
func NewForTests(modelPath string, stat func(string) (os.FileInfo, error), userHomeDir func() (string, error)) *Catalog {
	return &Catalog{modelPath: modelPath, stat: stat, userHomeDir: userHomeDir}
}

// Models returns all presets with installed markers filled in.
func (c *Catalog) Models() []domain.WhisperModel {
	models := make([]domain.WhisperModel, len(whisperModels))
	copy(models, whisperModels)
	c.markInstalled(models, c.knownModelDirs())
	return models
}

// knownModelDirs collects directories that may hold model files: the default
// local models directory plus whatever the configured model path names.
func (c *Catalog) knownModelDirs() []string {
	seen := map[string]struct{}{}
	add := func(path string) {
		p := strings.TrimSpace(path)
		if p == "" {
			return
		}
		clean := filepath.Clean(p)
		if clean == "." {
			return
		}
		seen[clean] = struct{}{}
	}

	if homeDir, err := c.userHomeDir(); err == nil {
		add(filepath.Join(homeDir, ".aura-transcribe", "models"))
	}

	modelPath := strings.TrimSpace(c.modelPath)
	if modelPath != "" {
		info, err := c.stat(modelPath)
		switch {
		case err == nil && info.IsDir():
			add(modelPath)
		case err == nil:
			add(filepath.Dir(modelPath))
		case errors.Is(err, os.ErrNotExist):
			ext := strings.ToLower(filepath.Ext(modelPath))
			if ext == ".bin" || ext == ".gguf" {
				add(filepath.Dir(modelPath))
			} else {
				add(modelPath)
			}
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	return dirs
}

// markInstalled flags every preset whose file exists in one of the dirs.
func (c *Catalog) markInstalled(models []domain.WhisperModel, dirs []string) {
	for i := range models {
		for _, dir := range dirs {
			candidate := filepath.Join(dir, models[i].FileName)
			info, err := c.stat(candidate)
			if err != nil || info.IsDir() {
				continue
			}
			models[i].Installed = true
			models[i].LocalPath = candidate
			break
		}
	}
}
