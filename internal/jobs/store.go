package jobs

import (
	"sync"

	"aura-transcribe/internal/control"
	"aura-transcribe/internal/domain"
)

// trackedJob pairs a job with the control signals created at submission.
type trackedJob struct {
	job    domain.Job
	pause  *control.Gate
	cancel *control.Latch
}

// Store is the in-memory job table. It is mutated only by the dispatcher,
// the progress monitor, and the cancel path of the control surface.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*trackedJob
	order []string
}

// NewStore creates an empty job table.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*trackedJob)}
}

// Put registers a job and allocates its pause gate and cancel latch.
func (s *Store) Put(job domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = &trackedJob{
		job:    job,
		pause:  control.NewGate(),
		cancel: control.NewLatch(),
	}
	s.order = append(s.order, job.ID)
}

// Get returns a snapshot of the job with the given id.
func (s *Store) Get(id string) (domain.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracked, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return tracked.job, true
}

// List returns snapshots of all jobs in submission order.
func (s *Store) List() []domain.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].job)
	}
	return out
}

// Signals returns the control signals paired with a job.
func (s *Store) Signals(id string) (*control.Gate, *control.Latch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracked, ok := s.jobs[id]
	if !ok {
		return nil, nil, false
	}
	return tracked.pause, tracked.cancel, true
}

// Update applies fn to the stored job under the table lock. Updates against
// a job already in a terminal status are refused.
func (s *Store) Update(id string, fn func(*domain.Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracked, ok := s.jobs[id]
	if !ok || tracked.job.Status.IsTerminal() {
		return false
	}
	fn(&tracked.job)
	return true
}

// SetStatus validates and applies one state machine transition. It reports
// whether the transition was performed.
func (s *Store) SetStatus(id string, status domain.JobStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracked, ok := s.jobs[id]
	if !ok || !isValidTransition(tracked.job.Status, status) {
		return false
	}
	tracked.job.Status = status
	return true
}

// setCompletion writes the worker's completed payload onto the job. It runs
// after the COMPLETED transition, so it bypasses the terminal-status guard.
func (s *Store) setCompletion(id, text, detectedLanguage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracked, ok := s.jobs[id]
	if !ok {
		return
	}
	tracked.job.ResultText = text
	if detectedLanguage != "" {
		tracked.job.DetectedLanguage = detectedLanguage
	}
}

// setError writes the failure message onto the job. It runs after the ERROR
// transition, so it bypasses the terminal-status guard.
func (s *Store) setError(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracked, ok := s.jobs[id]
	if !ok {
		return
	}
	tracked.job.Error = message
}

// isValidTransition enforces the allowed job state machine edges: a single
// forward path plus a cancel escape from every non-terminal state.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusQueued:
		return to == domain.JobStatusExtracting || to == domain.JobStatusCancelled
	case domain.JobStatusExtracting:
		return to == domain.JobStatusTranscribing || to == domain.JobStatusError || to == domain.JobStatusCancelled
	case domain.JobStatusTranscribing:
		return to == domain.JobStatusPaused || to == domain.JobStatusCompleted ||
			to == domain.JobStatusError || to == domain.JobStatusCancelled
	case domain.JobStatusPaused:
		return to == domain.JobStatusTranscribing || to == domain.JobStatusCancelled
	default:
		return false
	}
}
