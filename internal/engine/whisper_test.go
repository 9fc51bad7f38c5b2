package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeFakeEngine creates an executable script that mimics whisper.cpp output.
func writeFakeEngine(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake engine script requires a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "fake-whisper")
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

// writeModelFile creates a placeholder model artifact.
func writeModelFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("model"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

// TestWhisperStreamYieldsSegmentsInOrder checks stdout parsing end to end.
func TestWhisperStreamYieldsSegmentsInOrder(t *testing.T) {
	bin := writeFakeEngine(t, `
echo "whisper_init_from_file: loading model" >&2
echo "auto-detected language: es (p = 0.97)" >&2
echo "[00:00:00.000 --> 00:00:15.000]  Hola"
echo "some progress noise"
echo "[00:00:15.000 --> 00:00:30.000]  mundo"
echo "[00:00:30.000 --> 00:01:00.500]  adios"
`)
	model := writeModelFile(t, t.TempDir(), "ggml-small.bin")

	eng := NewWhisper(bin, model)
	stream, err := eng.Transcribe(context.Background(), "/audio.wav", "auto")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	defer stream.Close()

	wantEnds := []float64{15.0, 30.0, 60.5}
	wantTexts := []string{" Hola", " mundo", " adios"}
	for i := range wantEnds {
		seg, err := stream.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if seg.End != wantEnds[i] {
			t.Fatalf("segment %d end = %v, want %v", i, seg.End, wantEnds[i])
		}
		if seg.Text != wantTexts[i] {
			t.Fatalf("segment %d text = %q, want %q", i, seg.Text, wantTexts[i])
		}
	}

	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("final Next() error = %v, want io.EOF", err)
	}
	if lang := stream.DetectedLanguage(); lang != "es" {
		t.Fatalf("detected language = %q, want es", lang)
	}
}

// TestWhisperStreamFixedLanguageSkipsDetection verifies the hint is echoed back.
func TestWhisperStreamFixedLanguageSkipsDetection(t *testing.T) {
	bin := writeFakeEngine(t, `echo "[00:00:00.000 --> 00:00:05.000] hi"`)
	model := writeModelFile(t, t.TempDir(), "ggml-small.bin")

	eng := NewWhisper(bin, model)
	stream, err := eng.Transcribe(context.Background(), "/audio.wav", "en")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	defer stream.Close()

	if _, err := stream.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if _, err := stream.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("final Next() error = %v, want io.EOF", err)
	}
	if lang := stream.DetectedLanguage(); lang != "en" {
		t.Fatalf("detected language = %q, want en", lang)
	}
}

// TestWhisperStreamEngineFailureCarriesStderr checks the error path on bad exit.
func TestWhisperStreamEngineFailureCarriesStderr(t *testing.T) {
	bin := writeFakeEngine(t, `
echo "failed to load model" >&2
exit 3
`)
	model := writeModelFile(t, t.TempDir(), "ggml-small.bin")

	eng := NewWhisper(bin, model)
	stream, err := eng.Transcribe(context.Background(), "/audio.wav", "auto")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	defer stream.Close()

	_, err = stream.Next()
	if err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("Next() error = %v, want engine failure", err)
	}
}

// TestTranscribeMissingModelFails verifies model validation happens up front.
func TestTranscribeMissingModelFails(t *testing.T) {
	eng := NewWhisper("whisper.cpp", filepath.Join(t.TempDir(), "absent.bin"))
	if _, err := eng.Transcribe(context.Background(), "/audio.wav", "auto"); err == nil {
		t.Fatal("expected error for missing model path")
	}
}

// TestResolveModelPathPicksFirstSorted checks directory-based model discovery.
func TestResolveModelPathPicksFirstSorted(t *testing.T) {
	dir := t.TempDir()
	writeModelFile(t, dir, "z-large.bin")
	want := writeModelFile(t, dir, "a-small.gguf")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := resolveModelPath(dir)
	if err != nil {
		t.Fatalf("resolveModelPath() error = %v", err)
	}
	if got != want {
		t.Fatalf("model = %q, want %q", got, want)
	}
}

// TestResolveModelPathEmptyDirectoryFails checks the no-models error.
func TestResolveModelPathEmptyDirectoryFails(t *testing.T) {
	if _, err := resolveModelPath(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without models")
	}
}

// TestBuildWhisperArgsAutoLanguage verifies auto mode passes -l auto.
func TestBuildWhisperArgsAutoLanguage(t *testing.T) {
	args := buildWhisperArgs("/m.bin", "/audio.wav", "auto")
	if got := argValue(args, "-l"); got != "auto" {
		t.Fatalf("language arg = %q, want auto", got)
	}
}

// TestBuildWhisperArgsFixedLanguage verifies an explicit language override.
func TestBuildWhisperArgsFixedLanguage(t *testing.T) {
	args := buildWhisperArgs("/m.bin", "/audio.wav", "ru")
	if got := argValue(args, "-l"); got != "ru" {
		t.Fatalf("language arg = %q, want ru", got)
	}
	if got := argValue(args, "-m"); got != "/m.bin" {
		t.Fatalf("model arg = %q, want /m.bin", got)
	}
	if got := argValue(args, "-f"); got != "/audio.wav" {
		t.Fatalf("audio arg = %q, want /audio.wav", got)
	}
}

// TestParseTimestamp verifies hh:mm:ss.mmm conversion.
func TestParseTimestamp(t *testing.T) {
	if got := parseTimestamp("01", "02", "03", "250"); got != 3723.25 {
		t.Fatalf("parseTimestamp = %v, want 3723.25", got)
	}
}

// argValue returns value for key-style CLI args.
func argValue(args []string, key string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}
