// Package export writes finished transcripts to disk, either one file per
// job or merged into a single annotated document.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aura-transcribe/internal/domain"
)

const headerRule = "══════════════════════════════════════════════════════════"

// Writer renders transcript files.
type Writer struct {
	now func() time.Time
}

// NewWriter constructs a production writer.
func NewWriter() *Writer {
	return &Writer{now: time.Now}
}

// NewWriterForTests constructs a writer with a fixed clock.
func NewWriterForTests(now func() time.Time) *Writer {
	return &Writer{now: now}
}

// WriteSingle writes one job's transcript to targetPath, creating parent
// directories as needed.
func (w *Writer) WriteSingle(job domain.Job, targetPath string) error {
	if job.ResultText == "" {
		return fmt.Errorf("job %s has no transcript", job.ID)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	return os.WriteFile(targetPath, []byte(job.ResultText), 0o644)
}

// WriteSeparate writes one transcript per completed job into targetDir,
// named after each job's original media file.
func (w *Writer) WriteSeparate(jobs []domain.Job, targetDir string) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	for _, job := range jobs {
		if job.ResultText == "" {
			continue
		}
		path := filepath.Join(targetDir, transcriptFileName(job.OriginalFilename))
		if err := os.WriteFile(path, []byte(job.ResultText), 0o644); err != nil {
			return fmt.Errorf("write transcript for %s: %w", job.OriginalFilename, err)
		}
	}
	return nil
}

// WriteMerged writes one document combining the given jobs in order, each
// transcript preceded by a header naming the file, its duration, detected
// language, and the export date.
func (w *Writer) WriteMerged(jobs []domain.Job, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	date := w.now().Format("2006-01-02")
	var lines []string
	for _, job := range jobs {
		if job.ResultText == "" {
			continue
		}

		language := job.DetectedLanguage
		if language == "" {
			language = "Unknown"
		}

		lines = append(lines,
			headerRule,
			"File: "+job.OriginalFilename,
			fmt.Sprintf("Duration: %s  |  Language: %s  |  Date: %s",
				formatDuration(job.DurationSeconds), language, date),
			headerRule+"\n",
			job.ResultText,
			"\n\n",
		)
	}

	return os.WriteFile(targetPath, []byte(strings.Join(lines, "\n")), 0o644)
}

// formatDuration renders whole seconds as minutes:seconds with zero padding.
func formatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// transcriptFileName builds an output text filename from a media filename.
func transcriptFileName(mediaName string) string {
	name := strings.TrimSpace(strings.TrimSuffix(mediaName, filepath.Ext(mediaName)))
	if name == "" || name == "." {
		name = "transcript"
	}
	return name + ".txt"
}
