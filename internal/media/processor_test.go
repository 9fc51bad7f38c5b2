package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

// Run delegates to injected behavior.
func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// TestProbeDurationParsesSeconds checks the ffprobe happy path.
func TestProbeDurationParsesSeconds(t *testing.T) {
	var probedPath string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			if name != "ffprobe-custom" {
				t.Fatalf("command name = %q, want ffprobe-custom", name)
			}
			probedPath = args[len(args)-1]
			return commandResult{Stdout: "60.0\n", ExitCode: 0}, nil
		},
	}

	p := NewProcessorForTests("ffmpeg", "ffprobe-custom", runner, os.Stat, os.Remove)
	got := p.ProbeDuration(context.Background(), "/media/talk.mp4")
	if got != 60.0 {
		t.Fatalf("duration = %v, want 60.0", got)
	}
	if probedPath != "/media/talk.mp4" {
		t.Fatalf("probed path = %q", probedPath)
	}
}

// TestProbeDurationFailureReturnsZero checks the documented 0.0 fallback.
func TestProbeDurationFailureReturnsZero(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{Stderr: "no such file", ExitCode: 1}, errors.New("exit status 1")
		},
	}

	p := NewProcessorForTests("ffmpeg", "ffprobe", runner, os.Stat, os.Remove)
	if got := p.ProbeDuration(context.Background(), "/missing.mp4"); got != 0.0 {
		t.Fatalf("duration = %v, want 0.0", got)
	}
}

// TestProbeDurationUnparseableOutputReturnsZero checks garbage ffprobe output.
func TestProbeDurationUnparseableOutputReturnsZero(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{Stdout: "N/A", ExitCode: 0}, nil
		},
	}

	p := NewProcessorForTests("ffmpeg", "ffprobe", runner, os.Stat, os.Remove)
	if got := p.ProbeDuration(context.Background(), "/odd.mp4"); got != 0.0 {
		t.Fatalf("duration = %v, want 0.0", got)
	}
}

// TestExtractAudioSuccess verifies args and the output existence check.
func TestExtractAudioSuccess(t *testing.T) {
	root := t.TempDir()
	outPath := filepath.Join(root, "tmp", "job-1.wav")

	var extractArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			extractArgs = append([]string{}, args...)
			mustWriteFile(t, args[len(args)-1], "wav")
			return commandResult{ExitCode: 0}, nil
		},
	}

	p := NewProcessorForTests("ffmpeg", "ffprobe", runner, os.Stat, os.Remove)
	if !p.ExtractAudio(context.Background(), "/in/talk.mp4", outPath) {
		t.Fatal("ExtractAudio returned false")
	}

	want := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", "/in/talk.mp4",
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
	if len(extractArgs) != len(want) {
		t.Fatalf("args len = %d, want %d", len(extractArgs), len(want))
	}
	for i := range want {
		if extractArgs[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, extractArgs[i], want[i])
		}
	}
}

// TestExtractAudioOverwritesStaleOutput verifies existing output is removed first.
func TestExtractAudioOverwritesStaleOutput(t *testing.T) {
	root := t.TempDir()
	outPath := filepath.Join(root, "job-1.wav")
	mustWriteFile(t, outPath, "stale")

	var removed string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			mustWriteFile(t, args[len(args)-1], "fresh")
			return commandResult{ExitCode: 0}, nil
		},
	}

	p := NewProcessorForTests("ffmpeg", "ffprobe", runner, os.Stat, func(name string) error {
		removed = name
		return os.Remove(name)
	})
	if !p.ExtractAudio(context.Background(), "/in/talk.mp4", outPath) {
		t.Fatal("ExtractAudio returned false")
	}
	if removed != outPath {
		t.Fatalf("removed = %q, want %q", removed, outPath)
	}
}

// TestExtractAudioCommandFailureReturnsFalse checks the false-not-error contract.
func TestExtractAudioCommandFailureReturnsFalse(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{Stderr: "ffmpeg failed", ExitCode: 1}, errors.New("exit status 1")
		},
	}

	p := NewProcessorForTests("ffmpeg", "ffprobe", runner, os.Stat, os.Remove)
	if p.ExtractAudio(context.Background(), "/in/talk.mp4", filepath.Join(root, "out.wav")) {
		t.Fatal("ExtractAudio should return false on command failure")
	}
}

// TestExtractAudioMissingOutputReturnsFalse checks a silent ffmpeg no-op.
func TestExtractAudioMissingOutputReturnsFalse(t *testing.T) {
	root := t.TempDir()
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
			return commandResult{ExitCode: 0}, nil
		},
	}

	p := NewProcessorForTests("ffmpeg", "ffprobe", runner, os.Stat, os.Remove)
	if p.ExtractAudio(context.Background(), "/in/talk.mp4", filepath.Join(root, "out.wav")) {
		t.Fatal("ExtractAudio should return false when output file is missing")
	}
}

// mustWriteFile creates parent directory and writes file content.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir parent: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
