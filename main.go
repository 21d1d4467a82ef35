package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gordonklaus/portaudio"

	"github.com/voxlabs/voxd/asr"
	"github.com/voxlabs/voxd/config"
	"github.com/voxlabs/voxd/events"
	"github.com/voxlabs/voxd/history"
	"github.com/voxlabs/voxd/ingest"
	"github.com/voxlabs/voxd/record"
	"github.com/voxlabs/voxd/server"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := portaudio.Initialize(); err != nil {
		slog.Error("Failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	if *listDevices {
		devices, err := record.ListDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}
		fmt.Println("Available audio input devices:")
		for i, device := range devices {
			fmt.Printf("[%d] %s\n", i, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	bus := events.NewBus()
	store := history.NewStore(cfg.HistoryPath, bus)
	session := record.NewSession(&record.PortAudioSource{
		Device:          cfg.Capture.Device,
		FramesPerBuffer: cfg.Capture.FramesPerBuffer,
	})

	model := cfg.STT.ModelPath
	if model == "" {
		model = cfg.STT.ModelName
	}
	lifecycle := asr.NewLifecycle(model,
		asr.NewRestorer(cfg.STT.Mode, cfg.STT.Command, cfg.STT.ModelName, cfg.STT.ModelPath),
		asr.NewDeviceSelector(cfg.STT.Device))
	go lifecycle.Load(ctx)

	if cfg.Ingest.Dir != "" {
		ingestService, err := ingest.New(ingest.Config{Dir: cfg.Ingest.Dir, Workers: cfg.Ingest.Workers}, lifecycle, store)
		if err != nil {
			slog.Error("Failed to initialize ingest service", "error", err)
			os.Exit(1)
		}
		if err := ingestService.Start(ctx); err != nil {
			slog.Error("Failed to start ingest service", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := ingestService.Stop(context.Background()); err != nil {
				slog.Error("Failed to stop ingest service", "error", err)
			}
		}()
	}

	srv := server.New(cfg, lifecycle, session, bus, store)
	if err := srv.Run(ctx); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}

	slog.Debug("Program exiting")
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
