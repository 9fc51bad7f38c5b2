package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// segmentLine matches whisper.cpp stdout lines such as
// "[00:00:00.000 --> 00:00:15.000]   Hello world".
var segmentLine = regexp.MustCompile(`^\[(\d{2}):(\d{2}):(\d{2})\.(\d{3}) --> (\d{2}):(\d{2}):(\d{2})\.(\d{3})\]\s?(.*)$`)

// detectedLine matches the whisper.cpp stderr auto-detection report.
var detectedLine = regexp.MustCompile(`auto-detected language: (\w+)`)

// Whisper runs whisper.cpp as a child process and parses its stdout into a
// segment stream as the engine produces it. The child-process boundary keeps
// an engine crash from taking down the orchestrator.
type Whisper struct {
	binaryPath string
	modelPath  string
}

// NewWhisper constructs a whisper.cpp engine for the given binary and model
// path. The model path may be a file or a directory holding .bin/.gguf models.
func NewWhisper(binaryPath, modelPath string) *Whisper {
	if strings.TrimSpace(binaryPath) == "" {
		binaryPath = "whisper.cpp"
	}
	return &Whisper{
		binaryPath: binaryPath,
		modelPath:  modelPath,
	}
}

// Transcribe launches the engine process and returns a stream over its output.
func (w *Whisper) Transcribe(ctx context.Context, audioPath, language string) (Stream, error) {
	modelPath, err := resolveModelPath(w.modelPath)
	if err != nil {
		return nil, err
	}

	args := buildWhisperArgs(modelPath, audioPath, language)
	cmd := exec.CommandContext(ctx, w.binaryPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("open engine stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", w.binaryPath, err)
	}

	s := &whisperStream{
		cmd:     cmd,
		scanner: bufio.NewScanner(stdout),
	}
	if lang := normalizeLanguage(language); lang != "" {
		s.language = lang
	}

	s.stderrDone = make(chan struct{})
	go s.drainStderr(stderr)

	return s, nil
}

// whisperStream adapts the running child process to the Stream contract.
type whisperStream struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner

	mu         sync.Mutex
	language   string
	stderrTail []string
	stderrDone chan struct{}

	waitOnce sync.Once
	waitErr  error
	closed   bool
}

// Next scans stdout until the next segment line or end of output. On a clean
// engine exit it returns io.EOF; on an engine failure it returns an error
// carrying the stderr tail.
func (s *whisperStream) Next() (Segment, error) {
	for s.scanner.Scan() {
		match := segmentLine.FindStringSubmatch(s.scanner.Text())
		if match == nil {
			continue
		}

		end := parseTimestamp(match[5], match[6], match[7], match[8])
		return Segment{Text: match[9], End: end}, nil
	}

	if err := s.scanner.Err(); err != nil {
		return Segment{}, fmt.Errorf("read engine output: %w", err)
	}

	if err := s.wait(); err != nil {
		return Segment{}, err
	}
	return Segment{}, io.EOF
}

// DetectedLanguage returns the engine-reported language, or the fixed hint.
func (s *whisperStream) DetectedLanguage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Close terminates the engine process if still running.
func (s *whisperStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() })
	return nil
}

// wait reaps the child process once and converts a failed exit into an error.
func (s *whisperStream) wait() error {
	<-s.stderrDone
	s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() })

	if s.waitErr == nil {
		return nil
	}

	s.mu.Lock()
	tail := strings.Join(s.stderrTail, "\n")
	s.mu.Unlock()
	if tail != "" {
		return fmt.Errorf("engine failed: %w: %s", s.waitErr, tail)
	}
	return fmt.Errorf("engine failed: %w", s.waitErr)
}

// drainStderr captures the detected language and keeps a short diagnostic tail.
func (s *whisperStream) drainStderr(r io.Reader) {
	defer close(s.stderrDone)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		s.mu.Lock()
		if match := detectedLine.FindStringSubmatch(line); match != nil {
			s.language = match[1]
		}
		s.stderrTail = append(s.stderrTail, line)
		if len(s.stderrTail) > 8 {
			s.stderrTail = s.stderrTail[1:]
		}
		s.mu.Unlock()
	}
}

// parseTimestamp converts hh,mm,ss,mmm capture groups to seconds.
func parseTimestamp(hh, mm, ss, ms string) float64 {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	sec, _ := strconv.Atoi(ss)
	milli, _ := strconv.Atoi(ms)
	return float64(h*3600+m*60+sec) + float64(milli)/1000.0
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildWhisperArgs builds whisper.cpp args for streamed stdout segments.
func buildWhisperArgs(modelPath, audioPath, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	} else {
		args = append(args, "-l", "auto")
	}

	return args
}

// resolveModelPath returns model file path from file or directory input.
func resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := os.Stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}
