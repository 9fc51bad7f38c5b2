package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"aura-transcribe/internal/api"
	"aura-transcribe/internal/catalog"
	"aura-transcribe/internal/config"
	"aura-transcribe/internal/diagnostics"
	"aura-transcribe/internal/domain"
	"aura-transcribe/internal/engine"
	"aura-transcribe/internal/export"
	"aura-transcribe/internal/jobs"
	"aura-transcribe/internal/media"
)

// App wires configuration, the job orchestrator and the HTTP surface.
type App struct {
	Config   config.Config
	Settings domain.Settings
	Store    config.Store
	Manager  *jobs.Manager
	Hub      *api.Hub

	server  *http.Server
	checker *diagnostics.Checker
	log     zerolog.Logger
}

// New builds the application with persisted settings and all collaborators.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	store := config.NewJSONStore(cfg.SettingsPath)
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	checker := diagnostics.NewChecker()
	report := checker.Run(settings, cfg.TmpDir)
	if report.HasFailures {
		for _, item := range report.Items {
			if item.Status == domain.DiagnosticStatusFail {
				log.Warn().Str("check", item.ID).Msg(item.Message)
			}
		}
	}

	processor := media.NewProcessor(settings.FFmpegPath, settings.FFprobePath, log)
	eng := engine.NewWhisper(settings.WhisperPath, settings.ModelPath)
	bus := jobs.NewEventBus(cfg.EventBufferSize, log)
	manager := jobs.NewManager(processor, eng, bus, cfg.TmpDir, settings.Language, log)

	hub := api.NewHub(log)
	bus.AddSink("websocket", hub.Sink())

	diagnose := func() domain.DiagnosticReport {
		current, loadErr := store.Load()
		if loadErr != nil {
			current = settings
		}
		return checker.Run(normalizeSettings(current), cfg.TmpDir)
	}

	server := api.NewServer(
		manager,
		export.NewWriter(),
		catalog.New(settings.ModelPath),
		store,
		diagnose,
		hub,
		cfg.TmpDir,
		log,
	)

	return &App{
		Config:   cfg,
		Settings: settings,
		Store:    store,
		Manager:  manager,
		Hub:      hub,
		server: &http.Server{
			Addr:    cfg.Addr,
			Handler: server.Router(),
		},
		checker: checker,
		log:     log,
	}, nil
}

// Run starts the orchestrator loops and serves HTTP until ctx is cancelled,
// then shuts the server down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.Manager.Start(runCtx)
	go a.Hub.Run()
	defer a.Hub.Stop()

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.log.Info().Str("addr", a.Config.Addr).Msg("server listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancelShutdown()
	return a.server.Shutdown(shutdownCtx)
}

// newLogger builds the process logger at the configured level.
func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(parsed).With().Timestamp().Logger()
}

// normalizeSettings trims user inputs and applies default language when empty.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.ModelPath = strings.TrimSpace(settings.ModelPath)
	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	settings.FFprobePath = strings.TrimSpace(settings.FFprobePath)
	settings.WhisperPath = strings.TrimSpace(settings.WhisperPath)
	settings.Language = strings.TrimSpace(settings.Language)
	if settings.Language == "" {
		settings.Language = "auto"
	}
	return settings
}
