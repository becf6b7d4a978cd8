package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/conservacam/fieldcam/config"
	"github.com/conservacam/fieldcam/logging"
)

func main() {
	configPath := flag.String("config", "fieldcam.json", "Path to the configuration file (.json, .yaml or .yml)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with FIELDCAM_ variables")

	// Config override flags
	mode := flag.String("mode", "", "Capture mode: 'image' or 'video' (overrides config)")
	interval := flag.Int("interval", 0, "Seconds between captures (overrides config)")
	dispatchEvery := flag.Int("dispatch-every", 0, "Captures between classification runs (overrides config)")
	imageRoot := flag.String("image-root", "", "Root directory for images (overrides config)")
	videoRoot := flag.String("video-root", "", "Root directory for videos (overrides config)")
	cameraDevice := flag.String("camera-device", "", "Camera device index or path (overrides config)")
	modelDir := flag.String("model-dir", "", "SpeciesNet model directory (overrides config)")
	statusAddr := flag.String("status-addr", "", "Address of the status server, e.g. ':8080' (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	// file < .env and FIELDCAM_* environment < flags
	layers := []config.Layer{
		config.EnvLayer(os.Getenv),
		config.OverrideLayer(config.ConfigOverrides{
			Mode:            mode,
			IntervalSeconds: interval,
			DispatchEvery:   dispatchEvery,
			ImageRoot:       imageRoot,
			VideoRoot:       videoRoot,
			CameraDevice:    cameraDevice,
			ModelDir:        modelDir,
			StatusAddr:      statusAddr,
			LogLevel:        logLevel,
		}),
	}

	cfg, err := config.LoadLayered(*configPath, layers...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogDir, "fieldcam")
	logger.Info("Configuration loaded",
		"mode", cfg.Mode,
		"interval_seconds", cfg.IntervalSeconds,
		"dispatch_every", cfg.DispatchEvery,
		"media_root", cfg.MediaRoot(),
		"camera_device", cfg.CameraDevice,
		"model_dir", cfg.ModelDir)

	station, err := NewFieldStation(cfg, *configPath, logger, layers...)
	if err != nil {
		logger.Error("Failed to start field station", "error", err)
		os.Exit(1)
	}
	defer station.Close()

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting capture loop")

	if err := station.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Capture loop stopped", "error", err)
		station.Close()
		os.Exit(1)
	}

	logger.Info("Field station stopped")
}
