// Command survey-batch runs tiled animal detection over a folder of aerial
// survey images and writes one COCO predictions file per image.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/conservacam/fieldcam/batch"
	"github.com/conservacam/fieldcam/config"
	"github.com/conservacam/fieldcam/detection"
	"github.com/conservacam/fieldcam/dnn"
	"github.com/conservacam/fieldcam/inference"
	"github.com/conservacam/fieldcam/logging"
	"github.com/conservacam/fieldcam/storage"
	"github.com/conservacam/fieldcam/visualization"
)

func main() {
	configPath := flag.String("config", "", "Optional configuration file (.json, .yaml or .yml)")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with FIELDCAM_ variables")
	folder := flag.String("folder", "", "Folder with survey images (required)")
	saveDir := flag.String("save-dir", "", "Output directory for predictions (overrides config)")
	parallel := flag.Bool("parallel", false, "Process images on a worker pool")
	workerFraction := flag.Float64("worker-fraction", 0, "Share of CPU cores used in parallel mode (overrides config)")
	backend := flag.String("backend", "", "Detector backend: 'dnn' or 'exec' (overrides config)")
	modelPath := flag.String("model", "", "Detection model weights (overrides config)")
	modelConfig := flag.String("model-config", "", "Detection network description (overrides config)")
	visualize := flag.Bool("visualize", true, "Write an annotated copy of every image (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")

	flag.Parse()

	if *folder == "" {
		flag.Usage()
		os.Exit(2)
	}

	// A boolean flag only overrides the config when it was passed
	var visualizeOverride *bool
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "visualize" {
			visualizeOverride = visualize
		}
	})

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Failed to load %s: %v", *envFile, err)
	}

	// file < .env and FIELDCAM_* environment < flags
	cfg, err := config.LoadLayered(*configPath,
		config.EnvLayer(os.Getenv),
		config.OverrideLayer(config.ConfigOverrides{LogLevel: logLevel}),
		config.DetectionOverrideLayer(config.DetectionOverrides{
			Backend:        backend,
			ModelPath:      modelPath,
			ModelConfig:    modelConfig,
			SaveDir:        saveDir,
			WorkerFraction: workerFraction,
			Visualize:      visualizeOverride,
		}),
	)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	det := cfg.Detection
	if err := det.Validate(); err != nil {
		log.Fatalf("Invalid detection configuration: %v", err)
	}

	logger := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogDir, "survey-batch")

	workers := 1
	if *parallel {
		workers = batch.WorkerCount(det.WorkerFraction, runtime.NumCPU())
	}

	detector, closeDetector, err := newDetector(det, workers, logger)
	if err != nil {
		logger.Error("Failed to create detector", "error", err)
		os.Exit(1)
	}
	defer closeDetector()

	var renderer batch.Renderer
	if det.Visualize {
		renderer = visualization.NewRenderer()
	}

	processor, err := batch.NewDetectionProcessor(detector, renderer, det.SaveDir)
	if err != nil {
		logger.Error("Failed to create processor", "error", err)
		os.Exit(1)
	}
	runner := batch.NewRunner(processor, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	var report *batch.Report
	if *parallel {
		report, err = runner.RunParallel(ctx, *folder, workers)
	} else {
		report, err = runner.RunSerial(ctx, *folder)
	}
	if err != nil {
		logger.Error("Failed to process folder", "folder", *folder, "error", err)
		os.Exit(1)
	}

	for _, message := range report.Messages() {
		fmt.Println(message)
	}
	fmt.Printf("Processed %d of %d images in %s (%d failed, %d workers)\n",
		report.Processed(), len(report.Results), report.Duration.Round(time.Millisecond), report.Failed(), report.Workers)

	recordJob(cfg.StateDBPath, batch.DetectionJob(report, det.ModelPath, det.SaveDir, startedAt), logger)
}

// newDetector builds the configured backend. The returned func releases it.
func newDetector(det config.DetectionConfig, workers int, logger logging.Logger) (detection.Detector, func(), error) {
	switch det.Backend {
	case config.DetectionBackendExec:
		exec, err := detection.NewExecDetector(det.ExecCommand, inference.NewExecRunner(), det.Labels, logger)
		return exec, func() {}, err

	default:
		// One network per worker, tiles of one image run sequentially
		tiles, err := dnn.NewTileDetector(dnn.Options{
			ModelPath:      det.ModelPath,
			ConfigPath:     det.ModelConfig,
			InputSize:      det.InputSize,
			Instances:      workers,
			ScoreThreshold: det.ConfidenceThreshold,
			Labels:         det.Labels,
		}, logger)
		if err != nil {
			return nil, nil, err
		}

		sliced, err := detection.NewSlicedDetector(tiles, detection.SlicedOptions{
			Slice: detection.SliceParams{
				SliceHeight:        det.SliceHeight,
				SliceWidth:         det.SliceWidth,
				OverlapHeightRatio: det.OverlapHeightRatio,
				OverlapWidthRatio:  det.OverlapWidthRatio,
			},
			ConfidenceThreshold: det.ConfidenceThreshold,
			MatchThreshold:      det.MatchThreshold,
			FullImagePass:       det.FullImagePass,
			Labels:              det.Labels,
		}, logger)
		if err != nil {
			tiles.Close()
			return nil, nil, err
		}
		return sliced, func() { tiles.Close() }, nil
	}
}

// recordJob appends the run to the station's job history when a state
// database is configured and already exists.
func recordJob(dbPath string, job *inference.Job, logger logging.Logger) {
	if dbPath == "" {
		return
	}
	if _, err := os.Stat(dbPath); err != nil {
		logger.Debug("No state database, batch run not recorded", "path", dbPath)
		return
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		logger.Warn("Failed to open state database", "path", dbPath, "error", err)
		return
	}
	defer db.Close()

	jobs, err := storage.NewSQLiteJobRepository(db)
	if err != nil {
		logger.Warn("Failed to open job history", "error", err)
		return
	}
	if err := jobs.RecordJob(context.Background(), job); err != nil {
		logger.Warn("Failed to record batch job", "error", err)
	}
}
