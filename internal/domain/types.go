package domain

// JobStatus tracks the lifecycle stage of one transcription job.
type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusPaused       JobStatus = "paused"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusCancelled    JobStatus = "cancelled"
	JobStatusError        JobStatus = "error"
)

// IsTerminal reports whether a status permits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCancelled, JobStatusError:
		return true
	default:
		return false
	}
}

// Job stores one submitted media file's transcription request and its full state.
type Job struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	OriginalPath     string    `json:"original_path"`
	TmpAudioPath     string    `json:"tmp_audio_path,omitempty"`
	Status           JobStatus `json:"status"`
	ProgressAudio    float64   `json:"progress_audio"`
	IndexInBatch     int       `json:"index_in_batch"`
	TotalInBatch     int       `json:"total_in_batch"`
	ElapsedSeconds   int       `json:"elapsed_seconds"`
	EstimatedRemain  int       `json:"estimated_remaining"`
	ResultText       string    `json:"result_text,omitempty"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	DurationSeconds  float64   `json:"duration_seconds,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ModelPath   string `json:"modelPath"`
	FFmpegPath  string `json:"ffmpegPath"`
	FFprobePath string `json:"ffprobePath"`
	WhisperPath string `json:"whisperPath"`
	Language    string `json:"language"`
}

// Language is one user-selectable transcription language option.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Languages lists the selectable language hints, "auto" meaning engine detection.
var Languages = []Language{
	{Code: "auto", Name: "Auto-detect"},
	{Code: "es", Name: "Spanish"},
	{Code: "en", Name: "English"},
}
