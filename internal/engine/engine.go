// Package engine defines the speech-recognition engine seam consumed by the
// transcription worker and provides the whisper.cpp implementation. The
// orchestrator treats the engine as a black box: it asks for a lazy segment
// stream and never sees engine internals.
package engine

import "context"

// Segment is one recognized span of audio with its end timestamp.
type Segment struct {
	Text string
	End  float64
}

// Stream is a lazy, finite, non-restartable sequence of recognized segments.
// Next returns io.EOF after the final segment. DetectedLanguage is valid
// once the stream reported it (always by exhaustion). Close releases engine
// resources early and is safe after exhaustion.
type Stream interface {
	Next() (Segment, error)
	DetectedLanguage() string
	Close() error
}

// Engine produces a segment stream for one prepared audio file. The language
// hint is a code such as "es", or "auto" for engine-side detection.
type Engine interface {
	Transcribe(ctx context.Context, audioPath, language string) (Stream, error)
}
