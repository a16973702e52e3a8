package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"

	"github.com/unalkalkan/PanelReader/internal/api"
	"github.com/unalkalkan/PanelReader/internal/config"
	"github.com/unalkalkan/PanelReader/internal/health"
	"github.com/unalkalkan/PanelReader/internal/logger"
	"github.com/unalkalkan/PanelReader/internal/panel"
	"github.com/unalkalkan/PanelReader/internal/pipeline"
	"github.com/unalkalkan/PanelReader/internal/preferences"
	"github.com/unalkalkan/PanelReader/internal/provider"
	_ "github.com/unalkalkan/PanelReader/internal/provider/tesseract"
	"github.com/unalkalkan/PanelReader/internal/session"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/internal/tts"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

const version = "0.3.0"

const (
	sweepInterval = time.Minute
	sessionMaxAge = 30 * time.Minute
)

func main() {
	configPath := flag.String("config", "config/dev.example.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)
	log.Info().Str("version", version).Str("config", *configPath).Msg("Starting PanelReader server")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
	log.Info().Msg("Server stopped")
}

func run(cfg *types.Config, log zerolog.Logger) error {
	storageAdapter, err := storage.NewAdapter(cfg.Storage, logger.Component(log, "storage"))
	if err != nil {
		return fmt.Errorf("failed to create storage adapter: %w", err)
	}
	defer storageAdapter.Close()

	providerRegistry := provider.NewRegistry(logger.Component(log, "provider"))
	if err := providerRegistry.InitializeProviders(cfg.Providers); err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}
	defer providerRegistry.Close()
	log.Info().
		Strs("tts", providerRegistry.ListTTS()).
		Strs("ocr", providerRegistry.ListOCR()).
		Msg("Providers initialized")

	prefs := preferences.NewStore(storageAdapter, log)
	panelPipeline := pipeline.New(cfg, providerRegistry, prefs, log)
	sessions := session.NewManager(cfg.Synthesis, providerRegistry, storageAdapter, log,
		session.WithPlayer(tts.PacedPlayer{}))
	defer sessions.Close()

	healthHandler := health.NewHandler(version, log)
	healthHandler.Register("storage", health.StorageCheck(storageAdapter))
	healthHandler.Register("recognition", health.BackendCheck("recognition", func(ctx context.Context) error {
		_, err := providerRegistry.ResolveOCR(ctx, cfg.Recognition.Provider, cfg.Recognition.Fallback, millis(cfg.Recognition.InitTimeoutMs))
		return err
	}))
	healthHandler.Register("synthesis", health.BackendCheck("synthesis", func(ctx context.Context) error {
		_, err := providerRegistry.ResolveTTS(ctx, cfg.Synthesis.Provider, cfg.Synthesis.Fallback, millis(cfg.Synthesis.InitTimeoutMs))
		return err
	}))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.LivenessHandler())
	mux.HandleFunc("GET /health/ready", healthHandler.ReadinessHandler())
	mux.HandleFunc("GET /health", healthHandler.HealthHandler())
	mux.HandleFunc("GET /api/v1/info", infoHandler(version, cfg))
	mux.HandleFunc("GET /api/v1/providers", providersHandler(providerRegistry))

	api.Routes{
		Panels:   api.NewPanelHandler(panelPipeline, sessions, panel.NewRepository(storageAdapter), cfg.Server.MaxUploadMB, log),
		Sessions: api.NewSessionHandler(sessions, storageAdapter, log),
		Voices:   api.NewVoicesHandler(providerRegistry, prefs, log),
	}.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      api.RequestLogger(logger.Component(log, "http"), mux),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, sessions, log)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if n := cfg.Server.MaxConnections; n > 0 {
		listener = netutil.LimitListener(listener, n)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Int("max_connections", cfg.Server.MaxConnections).Msg("Server listening")
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// sweepSessions drops finished sessions until ctx is done
func sweepSessions(ctx context.Context, sessions *session.Manager, log zerolog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(sessionMaxAge); n > 0 {
				log.Info().Int("removed", n).Msg("Swept stale sessions")
			}
		}
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// infoHandler returns basic server information
func infoHandler(version string, cfg *types.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"version":            version,
			"storage_adapter":    cfg.Storage.Adapter,
			"recognition_mode":   cfg.Recognition.Mode,
			"recognition":        cfg.Recognition.Provider,
			"synthesis":          cfg.Synthesis.Provider,
			"reading_direction":  cfg.Detection.ReadingDirection,
			"skip_empty_regions": cfg.Pipeline.SkipEmptyRegions,
		})
	}
}

// providersHandler returns information about registered providers
func providersHandler(registry *provider.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string][]string{
			"tts": registry.ListTTS(),
			"ocr": registry.ListOCR(),
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
