package inference

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conservacam/fieldcam/logging"
)

const predictionsLayout = "20060102-150405"

// PredictionsFileName returns predictions_<YYYYMMDD-HHMMSS>.json for t.
func PredictionsFileName(t time.Time) string {
	return "predictions_" + t.Format(predictionsLayout) + ".json"
}

// Dispatcher runs the classifier over a folder and records each run as a Job.
type Dispatcher interface {
	Dispatch(ctx context.Context, inputFolder, modelRef string) (*Job, error)
}

// ClassificationDispatcher implements Dispatcher around a Classifier.
type ClassificationDispatcher struct {
	classifier     Classifier
	predictionsDir string
	recorder       JobRecorder
	timeout        time.Duration
	logger         logging.Logger
	now            func() time.Time
	newID          func() string

	mu       sync.Mutex
	lastPath string
}

// DispatcherOption configures a ClassificationDispatcher.
type DispatcherOption func(*ClassificationDispatcher)

// WithJobRecorder records every job before and after the external run.
func WithJobRecorder(recorder JobRecorder) DispatcherOption {
	return func(d *ClassificationDispatcher) { d.recorder = recorder }
}

// WithTimeout bounds every run; zero means no timeout.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *ClassificationDispatcher) { d.timeout = timeout }
}

// WithClock replaces the wall clock used for output names and job times.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *ClassificationDispatcher) { d.now = now }
}

// NewClassificationDispatcher creates a dispatcher writing predictions into predictionsDir
func NewClassificationDispatcher(classifier Classifier, predictionsDir string, logger logging.Logger, opts ...DispatcherOption) *ClassificationDispatcher {
	if predictionsDir == "" {
		predictionsDir = "."
	}
	d := &ClassificationDispatcher{
		classifier:     classifier,
		predictionsDir: predictionsDir,
		logger:         logging.OrNop(logger),
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch blocks until the classifier returns. The output file is named
// after the wall-clock time at call time. A failed run is returned as an
// InferenceError together with the finished job; nothing is retried.
func (d *ClassificationDispatcher) Dispatch(ctx context.Context, inputFolder, modelRef string) (*Job, error) {
	startedAt := d.now()
	outputPath, err := d.outputPath(startedAt)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:          d.newID(),
		Kind:        JobKindClassification,
		InputFolder: inputFolder,
		ModelRef:    modelRef,
		OutputPath:  outputPath,
		Status:      JobStatusRunning,
		StartedAt:   startedAt,
		ExitCode:    -1,
	}
	d.record(ctx, job)

	d.logger.Info("Dispatching classification", "job", job.ID, "folder", inputFolder, "model", modelRef, "output", outputPath)

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	runErr := d.classifier.Classify(runCtx, inputFolder, modelRef, outputPath)

	finishedAt := d.now()
	job.FinishedAt = &finishedAt
	if runErr != nil {
		var inferenceErr *InferenceError
		if !errors.As(runErr, &inferenceErr) {
			inferenceErr = NewInferenceError("run classification", inputFolder, -1, "", runErr)
			runErr = inferenceErr
		}
		job.Status = JobStatusFailed
		job.Error = runErr.Error()
		job.ExitCode = inferenceErr.ExitCode
	} else {
		job.Status = JobStatusSucceeded
		job.ExitCode = 0
	}
	// The ledger write must not be lost when ctx was cancelled mid-run.
	d.record(context.WithoutCancel(ctx), job)

	if runErr != nil {
		d.logger.Error("Classification failed", "job", job.ID, "folder", inputFolder, "exit_code", job.ExitCode, "error", runErr)
		return job, runErr
	}

	d.logger.Info("Classification finished", "job", job.ID, "output", outputPath, "duration", job.Duration())
	return job, nil
}

// outputPath returns a predictions path that no earlier job of this process
// used and that does not exist yet.
func (d *ClassificationDispatcher) outputPath(startedAt time.Time) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.predictionsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create predictions directory %s: %w", d.predictionsDir, err)
	}

	base := PredictionsFileName(startedAt)
	path := filepath.Join(d.predictionsDir, base)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	for i := 1; path == d.lastPath || fileExists(path); i++ {
		path = filepath.Join(d.predictionsDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}

	d.lastPath = path
	return path, nil
}

func (d *ClassificationDispatcher) record(ctx context.Context, job *Job) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordJob(ctx, job); err != nil {
		d.logger.Warn("Failed to record inference job", "job", job.ID, "error", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
