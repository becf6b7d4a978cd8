// Package captureloop drives periodic capture and triggers species
// classification every k captures.
package captureloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conservacam/fieldcam/capture"
	"github.com/conservacam/fieldcam/config"
	filemanagement "github.com/conservacam/fieldcam/file-management"
	"github.com/conservacam/fieldcam/inference"
	"github.com/conservacam/fieldcam/logging"
	"github.com/conservacam/fieldcam/session"
)

// Options configures the capture loop. Mode is fixed for the lifetime of the loop.
type Options struct {
	Mode          string
	Interval      time.Duration
	DispatchEvery int
	VideoDuration time.Duration
	VideoFormat   string
	ModelRef      string
	FailurePolicy string // config.CaptureFailureAbort or config.CaptureFailureSkip
	ResumeSession bool
	Iterations    int // 0 runs until the context ends
}

// Loop captures one media item per iteration, sleeps for the interval and
// dispatches classification of the day directory every DispatchEvery captures.
// Capture, sleep and dispatch are its only blocking points and never overlap.
type Loop struct {
	opts         Options
	mode         capture.Mode
	format       capture.VideoFormat
	camera       capture.Camera
	directories  filemanagement.DayDirectoryManager
	dispatcher   inference.Dispatcher
	tracker      *session.Tracker
	checkpointer session.Checkpointer
	clock        Clock
	sleeper      Sleeper
	logger       logging.Logger
}

// LoopOption configures optional collaborators of a Loop.
type LoopOption func(*Loop)

// WithClock replaces the wall clock.
func WithClock(clock Clock) LoopOption {
	return func(l *Loop) { l.clock = clock }
}

// WithSleeper replaces the timer based sleeper.
func WithSleeper(sleeper Sleeper) LoopOption {
	return func(l *Loop) { l.sleeper = sleeper }
}

// WithCheckpointer persists the session after every capture and dispatch.
func WithCheckpointer(checkpointer session.Checkpointer) LoopOption {
	return func(l *Loop) { l.checkpointer = checkpointer }
}

// New validates opts and creates a Loop. Invalid options are reported as
// config.ConfigurationError before anything touches the camera.
func New(
	opts Options,
	camera capture.Camera,
	directories filemanagement.DayDirectoryManager,
	dispatcher inference.Dispatcher,
	logger logging.Logger,
	loopOpts ...LoopOption,
) (*Loop, error) {
	mode, err := capture.ParseMode(opts.Mode)
	if err != nil {
		return nil, config.NewConfigurationError("mode", opts.Mode, capture.ErrInvalidMode.Error())
	}
	if opts.Interval <= 0 {
		return nil, config.NewConfigurationError("interval", opts.Interval, "must be positive")
	}
	if opts.DispatchEvery <= 0 {
		return nil, config.NewConfigurationError("dispatch_every", opts.DispatchEvery, "must be positive")
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.CaptureFailureAbort
	}
	if opts.FailurePolicy != config.CaptureFailureAbort && opts.FailurePolicy != config.CaptureFailureSkip {
		return nil, config.NewConfigurationError("capture_failure_policy", opts.FailurePolicy, "must be 'abort' or 'skip'")
	}

	var format capture.VideoFormat
	if mode == capture.ModeVideo {
		if format, err = capture.ParseVideoFormat(opts.VideoFormat); err != nil {
			return nil, config.NewConfigurationError("video_format", opts.VideoFormat, err.Error())
		}
		if opts.VideoDuration <= 0 {
			return nil, config.NewConfigurationError("video_duration", opts.VideoDuration, "must be positive")
		}
	}
	if opts.Iterations < 0 {
		return nil, config.NewConfigurationError("iterations", opts.Iterations, "must not be negative")
	}

	if camera == nil || directories == nil || dispatcher == nil {
		return nil, fmt.Errorf("camera, day directories and dispatcher are required")
	}

	tracker, err := session.NewTracker(opts.DispatchEvery)
	if err != nil {
		return nil, config.NewConfigurationError("dispatch_every", opts.DispatchEvery, err.Error())
	}

	l := &Loop{
		opts:        opts,
		mode:        mode,
		format:      format,
		camera:      camera,
		directories: directories,
		dispatcher:  dispatcher,
		tracker:     tracker,
		clock:       SystemClock(),
		sleeper:     TimerSleeper(),
		logger:      logging.OrNop(logger),
	}
	for _, opt := range loopOpts {
		opt(l)
	}

	return l, nil
}

// Tracker exposes the session state, e.g. to the status server.
func (l *Loop) Tracker() *session.Tracker {
	return l.tracker
}

// Run blocks until the context ends, Iterations are done, or a fatal error
// occurs. Context cancellation is a clean stop and returns nil. A capture
// failure is fatal under the abort policy; a dispatch failure is always fatal.
func (l *Loop) Run(ctx context.Context) error {
	l.restore(ctx)

	l.logger.Info("Starting capture loop",
		"mode", l.mode,
		"interval", l.opts.Interval,
		"dispatch_every", l.opts.DispatchEvery,
		"count", l.tracker.Snapshot().Count,
	)

	for i := 0; l.opts.Iterations == 0 || i < l.opts.Iterations; i++ {
		if ctx.Err() != nil {
			l.logger.Info("Capture loop stopped", "reason", ctx.Err())
			return nil
		}
		if err := l.iterate(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Info("Capture loop stopped", "reason", ctx.Err())
				return nil
			}
			return err
		}
	}

	l.logger.Info("Capture loop finished", "iterations", l.opts.Iterations)
	return nil
}

func (l *Loop) iterate(ctx context.Context) error {
	now := l.clock.Now()

	dir, err := l.directories.EnsureDayDirectory(now)
	if err != nil {
		return err
	}
	l.tracker.SetDay(capture.DayDirName(now))

	item, err := capture.Capture(ctx, l.camera, l.mode, dir, now, l.opts.VideoDuration, l.format)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !capture.IsCaptureError(err) {
			err = capture.NewCaptureError("capture "+string(l.mode), dir, err)
		}
		if l.opts.FailurePolicy == config.CaptureFailureAbort {
			return err
		}
		l.logger.Warn("Capture failed, skipping", "directory", dir, "error", err)
	} else {
		count := l.tracker.RecordCapture(item.Timestamp)
		l.logger.Info("Captured media", "path", item.Path, "count", count)
		l.checkpoint(ctx)
	}

	if err := l.sleeper.Sleep(ctx, l.opts.Interval); err != nil {
		return err
	}
	l.logger.Info("Slept", "duration", l.opts.Interval)

	if !l.tracker.DispatchDue() {
		return nil
	}

	job, err := l.dispatcher.Dispatch(ctx, dir, l.opts.ModelRef)
	l.tracker.ResetAfterDispatch(l.clock.Now())
	l.checkpoint(context.WithoutCancel(ctx))
	if err != nil {
		return fmt.Errorf("dispatch on %s failed: %w", dir, err)
	}

	l.logger.Info("Dispatch finished", "job", job.ID, "output", job.OutputPath)
	return nil
}

// restore resumes the checkpointed count if it belongs to today.
func (l *Loop) restore(ctx context.Context) {
	if l.checkpointer == nil || !l.opts.ResumeSession {
		return
	}

	state, err := l.checkpointer.LoadState(ctx)
	if err != nil {
		l.logger.Warn("Failed to load session checkpoint, starting fresh", "error", err)
		return
	}
	if state == nil {
		return
	}

	today := capture.DayDirName(l.clock.Now())
	if state.Day != today {
		l.logger.Info("Checkpoint is from another day, starting fresh", "checkpoint_day", state.Day, "today", today)
		return
	}

	l.tracker.Restore(*state)
	l.logger.Info("Resumed session", "day", state.Day, "count", l.tracker.Snapshot().Count)
}

func (l *Loop) checkpoint(ctx context.Context) {
	if l.checkpointer == nil {
		return
	}
	if err := l.checkpointer.SaveState(ctx, l.tracker.Snapshot()); err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Warn("Failed to save session checkpoint", "error", err)
	}
}
