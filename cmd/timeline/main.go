// Command timeline runs the panel pipeline on one image and prints the
// resulting timeline as JSON. With -play it also synthesizes every unit and
// prints the session stream to stderr.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/unalkalkan/PanelReader/internal/config"
	"github.com/unalkalkan/PanelReader/internal/logger"
	"github.com/unalkalkan/PanelReader/internal/pipeline"
	"github.com/unalkalkan/PanelReader/internal/playback"
	"github.com/unalkalkan/PanelReader/internal/preferences"
	"github.com/unalkalkan/PanelReader/internal/provider"
	_ "github.com/unalkalkan/PanelReader/internal/provider/tesseract"
	"github.com/unalkalkan/PanelReader/internal/session"
	"github.com/unalkalkan/PanelReader/internal/storage"
	"github.com/unalkalkan/PanelReader/internal/streaming"
	"github.com/unalkalkan/PanelReader/internal/tts"
	"github.com/unalkalkan/PanelReader/pkg/types"
)

func main() {
	configPath := flag.String("config", "config/dev.example.yaml", "Path to configuration file")
	userID := flag.String("user", "local", "User whose preferences and character registry are used")
	mode := flag.String("mode", "", "Recognition mode override: full or region")
	play := flag.Bool("play", false, "Synthesize the timeline and print playback events")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <image>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Recognition.Mode = *mode
	}
	// stdout carries the timeline
	cfg.Logging.Output = "stderr"
	log := logger.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, flag.Arg(0), *userID, *play); err != nil {
		log.Error().Err(err).Msg("Failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *types.Config, log zerolog.Logger, imagePath, userID string, play bool) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	adapter, err := storage.NewAdapter(cfg.Storage, logger.Component(log, "storage"))
	if err != nil {
		return fmt.Errorf("failed to create storage adapter: %w", err)
	}
	defer adapter.Close()

	registry := provider.NewRegistry(logger.Component(log, "provider"))
	if err := registry.InitializeProviders(cfg.Providers); err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}
	defer registry.Close()

	res, err := pipeline.New(cfg, registry, preferences.NewStore(adapter, log), log).Run(ctx, data, userID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("failed to write timeline: %w", err)
	}

	if !play || len(res.Timeline) == 0 {
		return nil
	}
	return playTimeline(ctx, cfg, registry, adapter, log, userID, res.Timeline)
}

// playTimeline runs a session to completion, echoing its stream to stderr
func playTimeline(ctx context.Context, cfg *types.Config, registry *provider.Registry, adapter storage.Adapter, log zerolog.Logger, userID string, timeline types.Timeline) error {
	manager := session.NewManager(cfg.Synthesis, registry, adapter, log, session.WithPlayer(tts.PacedPlayer{}))
	defer manager.Close()

	s, err := manager.Create(ctx, userID, timeline)
	if err != nil {
		return err
	}
	log.Info().Str("session_id", s.ID).Msg("Playing")

	after := 0
	for {
		items, err := s.Recorder.Wait(ctx, after)
		if err != nil {
			return err
		}
		out, err := streaming.EncodeNDJSON(items)
		if err != nil {
			return err
		}
		os.Stderr.Write(out)
		for _, it := range items {
			after = it.Seq
			if it.Kind == streaming.KindEvent && it.Event.Type == playback.EventFinished {
				return nil
			}
		}
	}
}
