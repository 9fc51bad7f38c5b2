package domain

// WhisperModel describes one known whisper.cpp model preset. Installed and
// LocalPath are filled in when the model file is found on disk.
type WhisperModel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FileName    string `json:"file_name"`
	SizeLabel   string `json:"size_label,omitempty"`
	Description string `json:"description,omitempty"`
	Installed   bool   `json:"installed"`
	LocalPath   string `json:"local_path,omitempty"`
}
