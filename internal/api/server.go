package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aura-transcribe/internal/config"
	"aura-transcribe/internal/domain"
	"aura-transcribe/internal/export"
	"aura-transcribe/internal/jobs"
)

// maxUploadBytes bounds multipart parsing memory; larger parts spill to disk.
const maxUploadBytes = 64 << 20

// ModelCatalog lists known engine models with installed markers.
type ModelCatalog interface {
	Models() []domain.WhisperModel
}

// Server holds the HTTP surface over the job orchestrator.
type Server struct {
	manager     *jobs.Manager
	exporter    *export.Writer
	catalog     ModelCatalog
	settings    config.Store
	diagnostics func() domain.DiagnosticReport
	hub         *Hub
	tmpDir      string
	log         zerolog.Logger
}

// NewServer wires handlers with their collaborators.
func NewServer(
	manager *jobs.Manager,
	exporter *export.Writer,
	catalog ModelCatalog,
	settings config.Store,
	diagnostics func() domain.DiagnosticReport,
	hub *Hub,
	tmpDir string,
	log zerolog.Logger,
) *Server {
	return &Server{
		manager:     manager,
		exporter:    exporter,
		catalog:     catalog,
		settings:    settings,
		diagnostics: diagnostics,
		hub:         hub,
		tmpDir:      tmpDir,
		log:         log.With().Str("component", "api").Logger(),
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(s.log))

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(s.log))

		r.Route("/api", func(r chi.Router) {
			r.Route("/transcription", func(r chi.Router) {
				r.Get("/", s.handleListJobs)
				r.Post("/paths", s.handleSubmitPaths)
				r.Post("/upload", s.handleUpload)
				r.Get("/{id}", s.handleGetJob)
				r.Get("/{id}/text", s.handleGetText)
				r.Post("/{id}/pause", s.handlePause)
				r.Post("/{id}/resume", s.handleResume)
				r.Post("/{id}/cancel", s.handleCancel)
			})

			r.Post("/export", s.handleExport)
		r.Post("/export/single", s.handleExportSingle)
			r.Get("/events", s.handleEvents)
			r.Get("/models", s.handleModels)
			r.Get("/diagnostics", s.handleDiagnostics)
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)
		})
	})

	// The websocket upgrade hijacks the connection; keep it outside the
	// logging wrapper.
	r.Get("/ws/progress", s.hub.handleWS)

	return r
}

// handleSubmitPaths queues jobs for media files already on disk.
func (s *Server) handleSubmitPaths(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	if len(req.Paths) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "paths is required")
		return
	}

	batch, err := jobs.NewBatch(req.Paths)
	if err != nil {
		if errors.Is(err, jobs.ErrFileNotFound) {
			respondError(w, http.StatusBadRequest, "FILE_NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	ids := s.manager.Submit(batch)
	respondJSON(w, http.StatusOK, map[string][]string{"job_ids": ids})
}

// handleUpload accepts multipart media uploads, stores them in the working
// directory and queues them like path submissions.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid multipart body")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "files is required")
		return
	}

	paths := make([]string, 0, len(files))
	names := make([]string, 0, len(files))
	for _, header := range files {
		name := filepath.Base(header.Filename)
		if name == "" || name == "." {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "file name is required")
			return
		}

		dst := filepath.Join(s.tmpDir, uuid.NewString()+"_"+name)
		if err := s.saveUpload(header, dst); err != nil {
			s.log.Error().Err(err).Str("file", name).Msg("failed to store upload")
			respondError(w, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to store uploaded file")
			return
		}
		paths = append(paths, dst)
		names = append(names, name)
	}

	batch, err := jobs.NewBatch(paths)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "UPLOAD_FAILED", err.Error())
		return
	}
	for i := range batch {
		batch[i].OriginalFilename = names[i]
	}

	ids := s.manager.Submit(batch)
	respondJSON(w, http.StatusOK, map[string][]string{"job_ids": ids})
}

func (s *Server) saveUpload(header *multipart.FileHeader, dst string) error {
	src, err := header.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// handleListJobs returns all jobs in submission order.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]domain.Job{"jobs": s.manager.List()})
}

// handleGetJob returns one job snapshot.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Unknown job id")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleGetText returns the transcript of one job.
func (s *Server) handleGetText(w http.ResponseWriter, r *http.Request) {
	job, ok := s.manager.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Unknown job id")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"text": job.ResultText})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, s.manager.Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, s.manager.Resume)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, s.manager.Cancel)
}

// handleControl runs one pause/resume/cancel action. Unknown ids are 404;
// actions on jobs in a non-eligible status are accepted no-ops.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request, action func(string)) {
	id := chi.URLParam(r, "id")
	if _, ok := s.manager.Get(id); !ok {
		respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Unknown job id")
		return
	}

	action(id)

	job, _ := s.manager.Get(id)
	respondJSON(w, http.StatusOK, job)
}

// handleExport writes transcripts to disk, merged or one file per job.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobIDs     []string `json:"job_ids"`
		Mode       string   `json:"mode"`
		TargetPath string   `json:"target_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	if len(req.JobIDs) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "job_ids is required")
		return
	}
	if strings.TrimSpace(req.TargetPath) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "target_path is required")
		return
	}

	selected := make([]domain.Job, 0, len(req.JobIDs))
	for _, id := range req.JobIDs {
		job, ok := s.manager.Get(id)
		if !ok {
			respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Unknown job id: "+id)
			return
		}
		selected = append(selected, job)
	}

	var err error
	switch req.Mode {
	case "merged":
		err = s.exporter.WriteMerged(selected, req.TargetPath)
	case "separate":
		err = s.exporter.WriteSeparate(selected, req.TargetPath)
	default:
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "mode must be merged or separate")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("mode", req.Mode).Msg("export failed")
		respondError(w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"target_path": req.TargetPath})
}

// handleExportSingle writes one job's transcript to an exact target path.
// Jobs without a transcript are treated the same as unknown ids.
func (s *Server) handleExportSingle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID      string `json:"job_id"`
		TargetPath string `json:"target_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}
	if req.JobID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id is required")
		return
	}
	if strings.TrimSpace(req.TargetPath) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "target_path is required")
		return
	}

	job, ok := s.manager.Get(req.JobID)
	if !ok || job.ResultText == "" {
		respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job or transcript not found")
		return
	}

	if err := s.exporter.WriteSingle(job, req.TargetPath); err != nil {
		s.log.Error().Err(err).Str("job_id", req.JobID).Msg("single export failed")
		respondError(w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"target_path": req.TargetPath})
}

// handleEvents returns sequenced events after the given sequence number so a
// reconnecting client can reconcile missed updates.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "since must be a non-negative integer")
			return
		}
		since = parsed
	}

	events := s.manager.Events().Since(since)
	if events == nil {
		events = []jobs.Event{}
	}
	respondJSON(w, http.StatusOK, map[string][]jobs.Event{"events": events})
}

// handleModels returns the model catalog with installed markers.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]domain.WhisperModel{"models": s.catalog.Models()})
}

// handleDiagnostics returns the current tool and path check report.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.diagnostics())
}

type settingsResponse struct {
	Settings  domain.Settings   `json:"settings"`
	Languages []domain.Language `json:"languages"`
}

// handleGetSettings returns persisted settings plus the language catalog.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.Load()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load settings")
		respondError(w, http.StatusInternalServerError, "SETTINGS_LOAD_FAILED", "Failed to load settings")
		return
	}
	respondJSON(w, http.StatusOK, settingsResponse{Settings: settings, Languages: domain.Languages})
}

// handlePutSettings persists user settings.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	if err := s.settings.Save(settings); err != nil {
		s.log.Error().Err(err).Msg("failed to save settings")
		respondError(w, http.StatusInternalServerError, "SETTINGS_SAVE_FAILED", "Failed to save settings")
		return
	}
	respondJSON(w, http.StatusOK, settingsResponse{Settings: settings, Languages: domain.Languages})
}
