package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Processor probes media durations and extracts normalized audio using
// ffprobe and ffmpeg. Failures are reported as zero duration or a false
// return, with the command detail logged here; callers never see an error.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	stat        func(name string) (os.FileInfo, error)
	mkdirAll    func(path string, perm os.FileMode) error
	remove      func(name string) error
	log         zerolog.Logger
}

// NewProcessor constructs the production processor with OS dependencies.
func NewProcessor(ffmpegPath, ffprobePath string, log zerolog.Logger) *Processor {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}

	return &Processor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      &execRunner{},
		stat:        os.Stat,
		mkdirAll:    os.MkdirAll,
		remove:      os.Remove,
		log:         log.With().Str("component", "media").Logger(),
	}
}

// ProbeDuration returns the media duration in seconds, or 0.0 on any failure.
func (p *Processor) ProbeDuration(ctx context.Context, path string) float64 {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	result, err := p.runner.Run(ctx, p.ffprobePath, args...)
	if err != nil {
		p.log.Error().Err(err).Str("path", path).Str("stderr", result.Stderr).
			Msg("ffprobe duration failed")
		return 0.0
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(result.Stdout), 64)
	if err != nil || duration < 0 {
		p.log.Error().Str("path", path).Str("stdout", result.Stdout).
			Msg("ffprobe returned unparseable duration")
		return 0.0
	}

	return duration
}

// ExtractAudio converts input media to mono 16kHz 16-bit PCM WAV at
// outputPath, overwriting any existing file. Returns false on failure.
func (p *Processor) ExtractAudio(ctx context.Context, inputPath, outputPath string) bool {
	if err := p.mkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		p.log.Error().Err(err).Str("path", outputPath).Msg("create tmp audio directory failed")
		return false
	}
	if _, err := p.stat(outputPath); err == nil {
		if err := p.remove(outputPath); err != nil {
			p.log.Error().Err(err).Str("path", outputPath).Msg("remove stale tmp audio failed")
			return false
		}
	}

	args := buildExtractArgs(inputPath, outputPath)
	result, err := p.runner.Run(ctx, p.ffmpegPath, args...)
	if err != nil {
		p.log.Error().Err(err).Str("input", inputPath).Int("exit_code", result.ExitCode).
			Str("stderr", result.Stderr).Msg("ffmpeg audio extraction failed")
		return false
	}

	if _, err := p.stat(outputPath); err != nil {
		p.log.Error().Err(err).Str("output", outputPath).
			Msg("ffmpeg completed but output file is missing")
		return false
	}

	return true
}

// buildExtractArgs builds ffmpeg CLI args for mono 16k PCM WAV output.
func buildExtractArgs(inputPath, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputPath,
	}
}

// NewProcessorForTests constructs a processor with injectable dependencies.
func NewProcessorForTests(
	ffmpegPath string,
	ffprobePath string,
	runner commandRunner,
	stat func(name string) (os.FileInfo, error),
	remove func(name string) error,
) *Processor {
	return &Processor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      runner,
		stat:        stat,
		mkdirAll:    os.MkdirAll,
		remove:      remove,
		log:         zerolog.Nop(),
	}
}
