package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/conservacam/fieldcam/capture"
	"github.com/conservacam/fieldcam/config"
	"github.com/conservacam/fieldcam/logging"
	postprocessing "github.com/conservacam/fieldcam/post-processing"
	"github.com/conservacam/fieldcam/resolution"
)

// rawClip is a clip as written by the video writer, before any remuxing.
type rawClip struct {
	Path     string
	Duration time.Duration
	Frames   int
}

// GoCVCamera implements capture.Camera on top of an OpenCV video device.
// The device is opened for each capture and released afterwards, so the
// camera sensor is idle between intervals.
type GoCVCamera struct {
	device           string // Device identifier, e.g., "/dev/video0" or "0" for default camera
	settingsProvider config.SettingsProvider[RecordingSettings]
	remuxer          postprocessing.Remuxer
	logger           logging.Logger
	mu               sync.Mutex // one capture at a time per device
}

func NewGoCVCamera(device string, provider config.SettingsProvider[RecordingSettings], remuxer postprocessing.Remuxer, logger logging.Logger) *GoCVCamera {
	return &GoCVCamera{
		device:           device,
		settingsProvider: provider,
		remuxer:          remuxer,
		logger:           logging.OrNop(logger),
	}
}

// CaptureStill lets exposure settle for the configured warm-up time and then
// writes a single JPEG frame.
func (c *GoCVCamera) CaptureStill(ctx context.Context, directory string, timestamp time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	settings := c.settingsProvider.GetSettings()
	path := filepath.Join(directory, capture.ImageFileName(timestamp))

	webcam, err := c.open(settings.StillResolution)
	if err != nil {
		return "", capture.NewCaptureError("capture still", path, err)
	}
	defer webcam.Close()

	img := gocv.NewMat()
	defer img.Close()

	// Frames read during warm-up are discarded
	deadline := time.Now().Add(settings.Warmup)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return "", capture.NewCaptureError("capture still", path, err)
		}
		webcam.Read(&img)
	}

	if ok := webcam.Read(&img); !ok || img.Empty() {
		return "", capture.NewCaptureError("capture still", path, fmt.Errorf("no frame from device %s", c.device))
	}

	if ok := gocv.IMWrite(path, img); !ok {
		return "", capture.NewCaptureError("capture still", path, fmt.Errorf("failed to write image"))
	}

	c.logger.Debug("Still captured", "path", path, "width", img.Cols(), "height", img.Rows())
	return path, nil
}

// CaptureVideo records duration worth of frames into a raw H.264 file and,
// for the mp4 format, remuxes it into an MP4 container.
func (c *GoCVCamera) CaptureVideo(ctx context.Context, directory string, timestamp time.Time, duration time.Duration, format capture.VideoFormat) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	settings := c.settingsProvider.GetSettings()
	rawPath := filepath.Join(directory, capture.VideoFileName(timestamp, capture.VideoFormatH264))

	webcam, err := c.open(settings.VideoResolution)
	if err != nil {
		return "", capture.NewCaptureError("capture video", rawPath, err)
	}

	clip, err := c.recordClip(ctx, webcam, rawPath, duration, settings)
	webcam.Close()
	if err != nil {
		// Drop partial recordings
		_ = os.Remove(rawPath)
		return "", capture.NewCaptureError("capture video", rawPath, err)
	}

	if format != capture.VideoFormatMP4 {
		return clip.Path, nil
	}

	if c.remuxer == nil {
		return "", capture.NewCaptureError("capture video", rawPath, fmt.Errorf("no remuxer configured for %s output", format))
	}

	video, err := c.remuxer.Remux(ctx, clip.Path)
	if err != nil {
		return "", capture.NewCaptureError("remux video", clip.Path, err)
	}
	c.logger.Debug("Clip remuxed", "path", video.Path, "recorded", clip.Duration, "container", video.Duration)

	return video.Path, nil
}

func (c *GoCVCamera) open(res resolution.Resolution) (*gocv.VideoCapture, error) {
	var device any = c.device

	// Numeric identifiers select a camera index
	if c.device == "" {
		device = 0
	} else if id, err := strconv.Atoi(c.device); err == nil {
		device = id
	}

	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %s: %w", c.device, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("camera %s is not available", c.device)
	}

	if res.Valid() {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(res.Width))
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(res.Height))

		// Drivers fall back to the nearest supported mode, which may crop
		actual := resolution.Resolution{
			Width:  int(webcam.Get(gocv.VideoCaptureFrameWidth)),
			Height: int(webcam.Get(gocv.VideoCaptureFrameHeight)),
		}
		if actual.Valid() && !actual.SameAspect(res) {
			c.logger.Warn("Camera changed the aspect ratio", "requested", res.String(), "requested_aspect", res.AspectRatio(),
				"actual", actual.String(), "actual_aspect", actual.AspectRatio())
		}
	}

	return webcam, nil
}

func (c *GoCVCamera) recordClip(ctx context.Context, webcam *gocv.VideoCapture, clipPath string, duration time.Duration, settings RecordingSettings) (*rawClip, error) {
	// Get frame properties from webcam
	width := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	height := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	if width <= 0 || height <= 0 {
		width = settings.VideoResolution.Width
		height = settings.VideoResolution.Height
		c.logger.Warn("Camera did not report a frame size, using configured resolution", "resolution", settings.VideoResolution)
	}

	frameRate := settings.FrameRate
	if frameRate <= 0 {
		frameRate = DefaultRecordingSettings.FrameRate
	}

	c.logger.Info("Recording clip", "path", clipPath, "codec", settings.Codec, "width", width, "height", height)

	writer, err := gocv.VideoWriterFile(clipPath, settings.Codec, frameRate, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create video writer: %w", err)
	}
	defer writer.Close()

	img := gocv.NewMat()
	defer img.Close()

	startTime := time.Now()
	frameCount := 0

	// Calculate frame interval for precise timing control
	frameInterval := time.Duration(float64(time.Second) / frameRate)
	nextFrameTime := startTime

	for time.Since(startTime) < duration {
		if ctx.Err() != nil {
			break
		}

		// Wait until it's time for the next frame to maintain proper frame rate
		now := time.Now()
		if now.Before(nextFrameTime) {
			time.Sleep(nextFrameTime.Sub(now))
		}

		if ok := webcam.Read(&img); !ok {
			c.logger.Debug("Failed to read frame", "frame", frameCount)
			// Don't advance nextFrameTime on failed reads
			time.Sleep(frameInterval)
			continue
		}

		if img.Empty() {
			continue
		}

		if err := writer.Write(img); err != nil {
			c.logger.Warn("Failed to write frame", "frame", frameCount, "error", err)
		}
		frameCount++

		nextFrameTime = nextFrameTime.Add(frameInterval)
	}

	clipDuration := time.Since(startTime)

	if frameCount <= 0 {
		return nil, fmt.Errorf("no frames were recorded from camera %s", c.device)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clip := &rawClip{
		Path:     clipPath,
		Duration: clipDuration,
		Frames:   frameCount,
	}

	c.logger.Info("Recorded clip", "path", clip.Path, "frames", clip.Frames, "duration", clip.Duration, "fps", frameRate)

	return clip, nil
}
