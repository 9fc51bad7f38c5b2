// Package worker implements the transcription worker side of the
// orchestrator's control protocol. The worker shares no mutable state with
// the dispatcher: everything crosses the boundary through the pause gate,
// the cancel latch, and the progress channel.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"aura-transcribe/internal/control"
	"aura-transcribe/internal/domain"
	"aura-transcribe/internal/engine"
)

// MessageKind classifies items carried over the progress channel.
type MessageKind string

const (
	MessageKindStatus   MessageKind = "status_change"
	MessageKindProgress MessageKind = "progress_update"
)

// Message is one item sent from the worker to the progress monitor.
type Message struct {
	JobID    string
	Kind     MessageKind
	Status   domain.JobStatus
	Progress float64
}

// Outcome is the terminal classification of one worker run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// Result is the single terminal value the dispatcher always observes.
type Result struct {
	Outcome          Outcome
	Text             string
	DetectedLanguage string
	Err              string
}

// Params carries everything a worker run needs across the isolation boundary.
type Params struct {
	JobID           string
	AudioPath       string
	Language        string
	DurationSeconds float64
	Pause           *control.Gate
	Cancel          *control.Latch
	Progress        chan<- Message
}

// Run consumes the engine's segment stream for one job, honoring pause and
// cancel between segments and reporting progress. It always returns a
// terminal Result; engine errors and panics never escape.
func Run(ctx context.Context, eng engine.Engine, p Params) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Outcome: OutcomeError, Err: fmt.Sprintf("worker panic: %v", r)}
		}
	}()

	// Cancellation may have raced ahead of dispatch.
	if p.Cancel.IsSet() {
		return Result{Outcome: OutcomeCancelled}
	}

	stream, err := eng.Transcribe(ctx, p.AudioPath, p.Language)
	if err != nil {
		return Result{Outcome: OutcomeError, Err: err.Error()}
	}
	defer stream.Close()

	var text strings.Builder
	for {
		segment, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{Outcome: OutcomeError, Err: err.Error()}
		}

		if p.Cancel.IsSet() {
			return Result{Outcome: OutcomeCancelled}
		}

		if !p.Pause.IsOpen() {
			p.send(ctx, Message{JobID: p.JobID, Kind: MessageKindStatus, Status: domain.JobStatusPaused})
			p.Pause.Wait()

			// Cancel opens the gate too, so a paused worker wakes here.
			if p.Cancel.IsSet() {
				return Result{Outcome: OutcomeCancelled}
			}
			p.send(ctx, Message{JobID: p.JobID, Kind: MessageKindStatus, Status: domain.JobStatusTranscribing})
		}

		text.WriteString(segment.Text)

		if p.DurationSeconds > 0 {
			progress := segment.End / p.DurationSeconds
			if progress > 1.0 {
				progress = 1.0
			}
			p.send(ctx, Message{JobID: p.JobID, Kind: MessageKindProgress, Progress: progress})
		}
	}

	return Result{
		Outcome:          OutcomeCompleted,
		Text:             strings.TrimSpace(text.String()),
		DetectedLanguage: stream.DetectedLanguage(),
	}
}

// send delivers one progress message, giving up on cancel or shutdown so a
// stalled monitor can never wedge the worker.
func (p Params) send(ctx context.Context, msg Message) {
	select {
	case p.Progress <- msg:
	case <-p.Cancel.Done():
	case <-ctx.Done():
	}
}
