package postprocessing

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xfrr/goffmpeg/transcoder"

	"github.com/conservacam/fieldcam/config"
	filemanagement "github.com/conservacam/fieldcam/file-management"
	"github.com/conservacam/fieldcam/logging"
)

// Remuxer turns a raw recorded stream into a playable container file.
type Remuxer interface {
	// Remux converts the raw clip at rawPath and returns the resulting clip.
	Remux(ctx context.Context, rawPath string) (*VideoClip, error)
}

// VideoClip is a remuxed clip on disk.
type VideoClip struct {
	Path     string
	Duration time.Duration // zero when ffprobe reported none
}

// FfmpegRemuxer implements Remuxer with ffmpeg through goffmpeg.
type FfmpegRemuxer struct {
	settingsProvider config.SettingsProvider[RemuxSettings]
	fileTracker      filemanagement.FileTracker
	logger           logging.Logger
}

func NewFfmpegRemuxer(settingsProvider config.SettingsProvider[RemuxSettings], fileTracker filemanagement.FileTracker, logger logging.Logger) *FfmpegRemuxer {
	return &FfmpegRemuxer{
		settingsProvider: settingsProvider,
		fileTracker:      fileTracker,
		logger:           logging.OrNop(logger),
	}
}

// Remux copies the video stream of rawPath into the configured container.
// The raw file is deleted once the new file has been written.
func (p *FfmpegRemuxer) Remux(ctx context.Context, rawPath string) (*VideoClip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Get the latest settings for this operation.
	settings := p.settingsProvider.GetSettings()

	trans := new(transcoder.Transcoder)

	outputPath := OutputPath(rawPath, settings.OutputFormat)

	if err := trans.Initialize(rawPath, outputPath); err != nil {
		return nil, fmt.Errorf("failed to initialize transcoder: %w", err)
	}

	// Stream copy, video only
	trans.MediaFile().SetVideoCodec(settings.OutputCodec)
	trans.MediaFile().SetOutputFormat(settings.OutputFormat)
	trans.MediaFile().SetSkipAudio(true)

	done := trans.Run(false)

	// The input was already probed during initialization.
	duration, durationErr := parseDuration(trans.MediaFile().Metadata().Format.Duration)

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to remux %s: %w", rawPath, err)
	}

	if durationErr != nil {
		p.logger.Debug("Clip duration unavailable", "path", rawPath, "error", durationErr)
	}

	if settings.DeleteRaw && p.fileTracker != nil {
		p.fileTracker.DeleteFile(rawPath)
	}

	p.logger.Info("Video converted", "path", outputPath)

	return &VideoClip{Path: outputPath, Duration: duration}, nil
}

// OutputPath replaces the extension of rawPath with format.
func OutputPath(rawPath, format string) string {
	return strings.TrimSuffix(rawPath, filepath.Ext(rawPath)) + "." + strings.TrimLeft(format, ".")
}

func parseDuration(durationStr string) (time.Duration, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration in video metadata")
	}

	// Parse duration string to float64 seconds
	durationSeconds, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s': %w", durationStr, err)
	}

	if durationSeconds <= 0 {
		return 0, fmt.Errorf("invalid or zero duration: %f seconds", durationSeconds)
	}

	return time.Duration(durationSeconds * float64(time.Second)), nil
}
