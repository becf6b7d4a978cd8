package capture

import (
	"context"
	"time"
)

// Camera produces one media item per call inside directory, named after
// timestamp. Implementations wrap the camera hardware.
type Camera interface {
	// CaptureStill writes one still image and returns its path.
	CaptureStill(ctx context.Context, directory string, timestamp time.Time) (string, error)
	// CaptureVideo records a clip of the given duration and returns its path.
	CaptureVideo(ctx context.Context, directory string, timestamp time.Time, duration time.Duration, format VideoFormat) (string, error)
}

// MediaItem is one captured file.
type MediaItem struct {
	Path      string
	Timestamp time.Time
	Mode      Mode
}

// Capture dispatches to CaptureStill or CaptureVideo depending on mode.
func Capture(ctx context.Context, camera Camera, mode Mode, directory string, timestamp time.Time, duration time.Duration, format VideoFormat) (*MediaItem, error) {
	var (
		path string
		err  error
	)

	switch mode {
	case ModeImage:
		path, err = camera.CaptureStill(ctx, directory, timestamp)
	case ModeVideo:
		path, err = camera.CaptureVideo(ctx, directory, timestamp, duration, format)
	default:
		return nil, ErrInvalidMode
	}
	if err != nil {
		return nil, err
	}

	return &MediaItem{
		Path:      path,
		Timestamp: timestamp.Truncate(time.Second),
		Mode:      mode,
	}, nil
}

type timeoutCamera struct {
	inner   Camera
	timeout time.Duration
}

// WithTimeout bounds every capture call of camera by timeout. A call that
// exceeds it fails with a CaptureError; the underlying device call is left to
// finish in the background because camera SDK calls cannot be interrupted.
// A zero or negative timeout returns camera unchanged.
func WithTimeout(camera Camera, timeout time.Duration) Camera {
	if timeout <= 0 {
		return camera
	}
	return &timeoutCamera{inner: camera, timeout: timeout}
}

type captureOutcome struct {
	path string
	err  error
}

func (c *timeoutCamera) CaptureStill(ctx context.Context, directory string, timestamp time.Time) (string, error) {
	return c.run(ctx, "capture still", directory, func(ctx context.Context) (string, error) {
		return c.inner.CaptureStill(ctx, directory, timestamp)
	})
}

func (c *timeoutCamera) CaptureVideo(ctx context.Context, directory string, timestamp time.Time, duration time.Duration, format VideoFormat) (string, error) {
	return c.run(ctx, "capture video", directory, func(ctx context.Context) (string, error) {
		return c.inner.CaptureVideo(ctx, directory, timestamp, duration, format)
	})
}

func (c *timeoutCamera) run(ctx context.Context, op, directory string, fn func(context.Context) (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan captureOutcome, 1)
	go func() {
		path, err := fn(ctx)
		done <- captureOutcome{path: path, err: err}
	}()

	select {
	case outcome := <-done:
		return outcome.path, outcome.err
	case <-ctx.Done():
		return "", NewCaptureError(op, directory, ctx.Err())
	}
}
