package main

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/conservacam/fieldcam/capture"
	captureloop "github.com/conservacam/fieldcam/capture-loop"
	"github.com/conservacam/fieldcam/config"
	filemanagement "github.com/conservacam/fieldcam/file-management"
	"github.com/conservacam/fieldcam/inference"
	"github.com/conservacam/fieldcam/logging"
	postprocessing "github.com/conservacam/fieldcam/post-processing"
	"github.com/conservacam/fieldcam/recording"
	"github.com/conservacam/fieldcam/session"
	"github.com/conservacam/fieldcam/status"
	"github.com/conservacam/fieldcam/storage"
)

// FieldStation owns the capture loop and the services around it.
type FieldStation struct {
	loop         *captureloop.Loop
	statusServer *status.Server
	db           *sql.DB
	logger       logging.Logger
}

// NewFieldStation wires camera, storage, classifier and capture loop from cfg.
// configPath is watched for recording setting changes; layers are re-applied
// on top of every reload.
func NewFieldStation(cfg *config.Config, configPath string, logger logging.Logger, layers ...config.Layer) (*FieldStation, error) {
	station := &FieldStation{logger: logger}

	var (
		checkpointer session.Checkpointer
		jobStore     *storage.SQLiteJobRepository
		dispatchOpts []inference.DispatcherOption
	)

	if cfg.StateDBPath != "" {
		db, err := storage.Open(cfg.StateDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open state database: %w", err)
		}
		station.db = db

		sessionRepo, err := storage.NewSQLiteSessionRepository(db)
		if err != nil {
			station.Close()
			return nil, fmt.Errorf("failed to create session repository: %w", err)
		}
		jobStore, err = storage.NewSQLiteJobRepository(db)
		if err != nil {
			station.Close()
			return nil, fmt.Errorf("failed to create job repository: %w", err)
		}

		checkpointer = sessionRepo
		dispatchOpts = append(dispatchOpts, inference.WithJobRecorder(jobStore))
	}

	// Recording settings follow edits to the config file
	fileSettings, err := config.NewFileSettingsProvider(configPath, cfg, 0, logger, layers...)
	if err != nil {
		station.Close()
		return nil, err
	}
	recordingSettings := recording.NewRecordingSettingsProvider(fileSettings)

	fileTracker := filemanagement.NewLocalFileTracker(logger)
	remuxer := postprocessing.NewFfmpegRemuxer(
		config.NewStaticSettingsProvider(postprocessing.DefaultRemuxSettings()),
		fileTracker,
		logger,
	)

	var camera capture.Camera = recording.NewGoCVCamera(cfg.CameraDevice, recordingSettings, remuxer, logger)
	captureTimeout := cfg.CaptureTimeout()
	if captureTimeout > 0 && cfg.Mode == string(capture.ModeVideo) {
		// The deadline covers the recording itself
		captureTimeout += cfg.VideoDuration()
	}
	camera = capture.WithTimeout(camera, captureTimeout)

	classifier := inference.NewSpeciesNetClassifier(cfg.Python, inference.NewExecRunner(), logger)
	dispatchOpts = append(dispatchOpts, inference.WithTimeout(cfg.DispatchTimeout()))
	dispatcher := inference.NewClassificationDispatcher(classifier, cfg.PredictionsDir, logger, dispatchOpts...)

	directories := filemanagement.NewLocalDayDirectoryManager(cfg.MediaRoot(), logger)

	var loopOpts []captureloop.LoopOption
	if checkpointer != nil {
		loopOpts = append(loopOpts, captureloop.WithCheckpointer(checkpointer))
	}

	loop, err := captureloop.New(captureloop.Options{
		Mode:          cfg.Mode,
		Interval:      cfg.Interval(),
		DispatchEvery: cfg.DispatchEvery,
		VideoDuration: cfg.VideoDuration(),
		VideoFormat:   cfg.VideoFormat,
		ModelRef:      cfg.ModelDir,
		FailurePolicy: cfg.CaptureFailurePolicy,
		ResumeSession: cfg.ResumeSession,
	}, camera, directories, dispatcher, logger, loopOpts...)
	if err != nil {
		station.Close()
		return nil, err
	}
	station.loop = loop

	if cfg.StatusAddr != "" {
		var jobs inference.JobLister
		if jobStore != nil {
			jobs = jobStore
		}
		handler := status.NewStatusHandler(logger, loop.Tracker(), jobs, cfg.DispatchEvery)
		station.statusServer = status.NewServer(cfg.StatusAddr, handler, logger)
	}

	return station, nil
}

// Run blocks until the capture loop ends. Cancelling ctx stops the loop after
// the current step and returns nil.
func (s *FieldStation) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	if s.statusServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.statusServer.Start(); err != nil {
				s.logger.Error("Status server stopped", "error", err)
			}
		}()
	}

	err := s.loop.Run(ctx)

	if s.statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if shutdownErr := s.statusServer.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Warn("Status server shutdown failed", "error", shutdownErr)
		}
		cancel()
		wg.Wait()
	}

	return err
}

// Close releases the state database.
func (s *FieldStation) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
