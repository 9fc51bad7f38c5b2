package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aura-transcribe/internal/domain"
	"aura-transcribe/internal/engine"
	"aura-transcribe/internal/worker"
)

// ErrFileNotFound is returned when a submitted path does not exist.
var ErrFileNotFound = errors.New("file not found")

// MediaProcessor is the audio preparation collaborator consumed by the
// dispatcher: duration probe plus format normalization.
type MediaProcessor interface {
	ProbeDuration(ctx context.Context, path string) float64
	ExtractAudio(ctx context.Context, inputPath, outputPath string) bool
}

// Manager owns the job table and drives each job through its state machine.
// A single consuming loop guarantees at most one active transcription at a
// time; a separate monitor loop drains worker progress messages.
type Manager struct {
	store    *Store
	queue    chan string
	progress chan worker.Message
	media    MediaProcessor
	engine   engine.Engine
	bus      *EventBus
	tmpDir   string
	language string
	tick     time.Duration
	log      zerolog.Logger
}

// NewManager wires the dispatcher with its collaborators. The language is the
// configured hint passed to the engine ("auto" for detection).
func NewManager(media MediaProcessor, eng engine.Engine, bus *EventBus, tmpDir, language string, log zerolog.Logger) *Manager {
	if language == "" {
		language = "auto"
	}

	return &Manager{
		store:    NewStore(),
		queue:    make(chan string, 1024),
		progress: make(chan worker.Message, 256),
		media:    media,
		engine:   eng,
		bus:      bus,
		tmpDir:   tmpDir,
		language: language,
		tick:     time.Second,
		log:      log.With().Str("component", "jobs").Logger(),
	}
}

// NewManagerForTests wires a manager with a fast elapsed-time tick.
func NewManagerForTests(media MediaProcessor, eng engine.Engine, bus *EventBus, tmpDir string, tick time.Duration) *Manager {
	m := NewManager(media, eng, bus, tmpDir, "auto", zerolog.Nop())
	m.tick = tick
	return m
}

// Start launches the dispatch and monitor loops. Both exit when ctx is done.
func (m *Manager) Start(ctx context.Context) {
	go m.dispatchLoop(ctx)
	go m.monitorLoop(ctx)
}

// NewBatch builds queued jobs for the given paths, in order. Every path must
// name an existing file; otherwise no job is created and the offending path
// is reported.
func NewBatch(paths []string) ([]domain.Job, error) {
	jobs := make([]domain.Job, 0, len(paths))
	for i, path := range paths {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}

		jobs = append(jobs, domain.Job{
			ID:               uuid.NewString(),
			OriginalFilename: filepath.Base(path),
			OriginalPath:     path,
			Status:           domain.JobStatusQueued,
			IndexInBatch:     i + 1,
			TotalInBatch:     len(paths),
		})
	}
	return jobs, nil
}

// Submit registers jobs in order and enqueues them for dispatch. It returns
// immediately; processing happens on the dispatch loop.
func (m *Manager) Submit(jobs []domain.Job) []string {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		m.store.Put(job)
		ids = append(ids, job.ID)

		select {
		case m.queue <- job.ID:
		default:
			// 1024 pending jobs; give up rather than block the caller.
			m.log.Error().Str("job_id", job.ID).Msg("job queue saturated, dropping submission")
		}
	}
	return ids
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (domain.Job, bool) {
	return m.store.Get(id)
}

// List returns snapshots of all jobs in submission order.
func (m *Manager) List() []domain.Job {
	return m.store.List()
}

// Events returns the bus for subscriber registration and incremental reads.
func (m *Manager) Events() *EventBus {
	return m.bus
}

// Pause requests a pause for a transcribing job. The worker reports the
// PAUSED transition back over the progress channel; unknown ids and jobs in
// any other status are a silent no-op.
func (m *Manager) Pause(id string) {
	job, ok := m.store.Get(id)
	if !ok || job.Status != domain.JobStatusTranscribing {
		return
	}
	if pause, _, ok := m.store.Signals(id); ok {
		pause.Close()
	}
}

// Resume unparks a paused job's worker. Silent no-op otherwise.
func (m *Manager) Resume(id string) {
	job, ok := m.store.Get(id)
	if !ok || job.Status != domain.JobStatusPaused {
		return
	}
	if pause, _, ok := m.store.Signals(id); ok {
		pause.Open()
	}
}

// Cancel trips the cancel latch, opens the pause gate so a paused worker
// wakes to observe it, and optimistically marks the job CANCELLED. The
// worker's own eventual cancelled result is a no-op against the terminal
// status. Effective from any non-terminal status; silent no-op otherwise.
func (m *Manager) Cancel(id string) {
	_, cancel, ok := m.store.Signals(id)
	if !ok {
		return
	}

	job, _ := m.store.Get(id)
	if job.Status.IsTerminal() {
		return
	}

	cancel.Set()
	if pause, _, ok := m.store.Signals(id); ok {
		pause.Open()
	}

	if m.store.SetStatus(id, domain.JobStatusCancelled) {
		m.bus.Publish(Event{
			Type:   EventTypeStatusChange,
			JobID:  id,
			Status: domain.JobStatusCancelled,
		})
	}
}

// dispatchLoop pulls queued jobs and processes them strictly one at a time.
func (m *Manager) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			job, ok := m.store.Get(id)
			if !ok || job.Status.IsTerminal() {
				// Cancelled before dispatch; skip without running anything.
				continue
			}
			m.safeRunJob(ctx, id)
		}
	}
}

// safeRunJob keeps a panicking job from taking down the dispatch loop. The
// job resolves to ERROR and the loop moves on.
func (m *Manager) safeRunJob(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("job_id", id).Interface("panic", r).Msg("job processing panicked")
			if m.store.SetStatus(id, domain.JobStatusError) {
				message := fmt.Sprintf("internal error: %v", r)
				m.store.setError(id, message)
				m.publishStatus(id, domain.JobStatusError, message)
			}
		}
	}()
	m.runJob(ctx, id)
}

// runJob drives one job from EXTRACTING to a terminal status. Failures are
// absorbed into the job record; nothing propagates out of the loop.
func (m *Manager) runJob(ctx context.Context, id string) {
	job, _ := m.store.Get(id)
	_, cancel, ok := m.store.Signals(id)
	if !ok {
		return
	}

	if m.store.SetStatus(id, domain.JobStatusExtracting) {
		m.publishStatus(id, domain.JobStatusExtracting, "")
	}

	duration := m.media.ProbeDuration(ctx, job.OriginalPath)
	tmpAudioPath := filepath.Join(m.tmpDir, id+".wav")
	m.store.Update(id, func(j *domain.Job) {
		j.DurationSeconds = duration
		j.TmpAudioPath = tmpAudioPath
	})

	extracted := m.media.ExtractAudio(ctx, job.OriginalPath, tmpAudioPath)
	if !extracted || cancel.IsSet() {
		m.removeTmpAudio(id, tmpAudioPath)
		if cancel.IsSet() {
			if m.store.SetStatus(id, domain.JobStatusCancelled) {
				m.publishStatus(id, domain.JobStatusCancelled, "")
			}
		} else if m.store.SetStatus(id, domain.JobStatusError) {
			m.store.setError(id, "failed to extract audio using ffmpeg")
			m.publishStatus(id, domain.JobStatusError, "failed to extract audio using ffmpeg")
		}
		return
	}

	if m.store.SetStatus(id, domain.JobStatusTranscribing) {
		m.store.Update(id, func(j *domain.Job) { j.ElapsedSeconds = 0 })
		m.publishStatus(id, domain.JobStatusTranscribing, "")
	}

	pause, _, _ := m.store.Signals(id)
	params := worker.Params{
		JobID:           id,
		AudioPath:       tmpAudioPath,
		Language:        m.language,
		DurationSeconds: duration,
		Pause:           pause,
		Cancel:          cancel,
		Progress:        m.progress,
	}

	resultCh := make(chan worker.Result, 1)
	go func() {
		resultCh <- worker.Run(ctx, m.engine, params)
	}()

	result := m.awaitWorker(ctx, id, resultCh)

	switch result.Outcome {
	case worker.OutcomeCompleted:
		if m.store.SetStatus(id, domain.JobStatusCompleted) {
			m.store.setCompletion(id, result.Text, result.DetectedLanguage)
			m.removeTmpAudio(id, tmpAudioPath)
			m.publishCompleted(id)
			return
		}
		// Optimistically cancelled while the engine ran to completion; the
		// result is discarded and the cancel event was already emitted.
		m.removeTmpAudio(id, tmpAudioPath)
	case worker.OutcomeCancelled:
		m.removeTmpAudio(id, tmpAudioPath)
		if m.store.SetStatus(id, domain.JobStatusCancelled) {
			m.publishStatus(id, domain.JobStatusCancelled, "")
		}
	default:
		m.removeTmpAudio(id, tmpAudioPath)
		if m.store.SetStatus(id, domain.JobStatusError) {
			m.store.setError(id, result.Err)
			m.publishStatus(id, domain.JobStatusError, result.Err)
		}
	}
}

// awaitWorker waits for the worker result while refreshing elapsed time once
// per tick. Elapsed seconds accrue only while the job is TRANSCRIBING.
func (m *Manager) awaitWorker(ctx context.Context, id string, resultCh <-chan worker.Result) worker.Result {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case result := <-resultCh:
			return result
		case <-ticker.C:
			m.store.Update(id, func(j *domain.Job) {
				if j.Status == domain.JobStatusTranscribing {
					j.ElapsedSeconds++
				}
			})
		}
	}
}

// monitorLoop drains the progress channel and applies worker-reported
// transitions and progress updates to the job table.
func (m *Manager) monitorLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.progress:
			m.handleMessage(msg)
		}
	}
}

// handleMessage applies one progress channel item. Messages for unknown jobs
// or invalid transitions are dropped silently.
func (m *Manager) handleMessage(msg worker.Message) {
	switch msg.Kind {
	case worker.MessageKindStatus:
		if m.store.SetStatus(msg.JobID, msg.Status) {
			m.publishStatus(msg.JobID, msg.Status, "")
		}
	case worker.MessageKindProgress:
		advanced := false
		applied := m.store.Update(msg.JobID, func(j *domain.Job) {
			if msg.Progress < j.ProgressAudio {
				// Stale fraction; keep the job as is and publish nothing.
				return
			}
			advanced = true
			j.ProgressAudio = msg.Progress

			if msg.Progress > 0 && j.ElapsedSeconds > 0 {
				estimated := int(float64(j.ElapsedSeconds)/msg.Progress) - j.ElapsedSeconds
				if estimated < 0 {
					estimated = 0
				}
				j.EstimatedRemain = estimated
			}
		})
		if !applied || !advanced {
			return
		}

		job, _ := m.store.Get(msg.JobID)
		m.bus.Publish(Event{
			Type:               EventTypeProgress,
			JobID:              job.ID,
			Status:             job.Status,
			AudioProgress:      job.ProgressAudio,
			BatchCurrent:       job.IndexInBatch,
			BatchTotal:         job.TotalInBatch,
			ElapsedSeconds:     job.ElapsedSeconds,
			EstimatedRemaining: job.EstimatedRemain,
		})
	}
}

// removeTmpAudio deletes the job's extracted audio file if present. The path
// is passed in rather than read off the job record: a cancel landing during
// extraction makes the job terminal before TmpAudioPath is recorded, and the
// file still has to go.
func (m *Manager) removeTmpAudio(id, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Error().Err(err).Str("job_id", id).Str("path", path).
			Msg("failed to delete tmp audio")
	}
}

// publishStatus sends a normalized status-change event.
func (m *Manager) publishStatus(id string, status domain.JobStatus, errorMessage string) {
	m.bus.Publish(Event{
		Type:         EventTypeStatusChange,
		JobID:        id,
		Status:       status,
		ErrorMessage: errorMessage,
	})
}

// publishCompleted sends the completion event carrying the full payload.
func (m *Manager) publishCompleted(id string) {
	job, ok := m.store.Get(id)
	if !ok {
		return
	}
	m.bus.Publish(Event{
		Type:             EventTypeCompleted,
		JobID:            job.ID,
		Filename:         job.OriginalFilename,
		DetectedLanguage: job.DetectedLanguage,
		DurationSeconds:  job.DurationSeconds,
		Text:             job.ResultText,
	})
}
