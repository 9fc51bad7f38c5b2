package jobs

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aura-transcribe/internal/domain"
)

// EventType classifies messages emitted by the orchestrator core.
type EventType string

const (
	EventTypeStatusChange EventType = "status_change"
	EventTypeProgress     EventType = "progress"
	EventTypeCompleted    EventType = "completed"
)

// Event is a sequenced payload delivered to subscribers.
type Event struct {
	Seq                int64            `json:"seq"`
	Timestamp          time.Time        `json:"timestamp"`
	Type               EventType        `json:"event"`
	JobID              string           `json:"job_id"`
	Status             domain.JobStatus `json:"status,omitempty"`
	ErrorMessage       string           `json:"error_message,omitempty"`
	AudioProgress      float64          `json:"audio_progress"`
	BatchCurrent       int              `json:"batch_current,omitempty"`
	BatchTotal         int              `json:"batch_total,omitempty"`
	ElapsedSeconds     int              `json:"elapsed_seconds"`
	EstimatedRemaining int              `json:"estimated_remaining"`
	Filename           string           `json:"filename,omitempty"`
	DetectedLanguage   string           `json:"detected_language,omitempty"`
	DurationSeconds    float64          `json:"duration_seconds,omitempty"`
	Text               string           `json:"text,omitempty"`
}

// Sink receives every published event. A sink returning an error is logged
// and skipped for that event; it never affects delivery to other sinks.
type Sink func(Event) error

// EventBus stores recent events for incremental reads and fans each published
// event out to registered sinks.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	sinkNames []string
	sinks     []Sink
	log       zerolog.Logger
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int, log zerolog.Logger) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		log:       log.With().Str("component", "events").Logger(),
	}
}

// AddSink registers a named subscriber for all future events.
func (b *EventBus) AddSink(name string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinkNames = append(b.sinkNames, name)
	b.sinks = append(b.sinks, sink)
}

// Publish assigns sequence and timestamp, stores the event, and fans it out.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	names := b.sinkNames
	sinks := b.sinks
	b.mu.Unlock()

	for i, sink := range sinks {
		if err := sink(event); err != nil {
			b.log.Error().Err(err).Str("sink", names[i]).Str("job_id", event.JobID).
				Msg("event delivery failed")
		}
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
