package capture

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode selects what the camera produces on every capture.
type Mode string

const (
	ModeImage Mode = "image"
	ModeVideo Mode = "video"
)

// ErrInvalidMode is returned for any mode other than image or video.
var ErrInvalidMode = errors.New("mode must be either 'image' or 'video'")

// ParseMode validates a mode name. Matching is exact.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeImage, ModeVideo:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidMode, s)
	}
}

// VideoFormat is the container of a recorded clip.
type VideoFormat string

const (
	// VideoFormatH264 keeps the raw elementary stream as recorded.
	VideoFormatH264 VideoFormat = "h264"
	// VideoFormatMP4 remuxes the raw stream into an MP4 container.
	VideoFormatMP4 VideoFormat = "mp4"
)

// ParseVideoFormat accepts "h264" or "mp4", with or without a leading dot.
func ParseVideoFormat(s string) (VideoFormat, error) {
	format := VideoFormat(strings.TrimPrefix(strings.ToLower(s), "."))
	switch format {
	case VideoFormatH264, VideoFormatMP4:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported video format %q", s)
	}
}

// Extension returns the file extension including the dot.
func (f VideoFormat) Extension() string {
	return "." + string(f)
}

// MimeType returns the MIME type for the format.
func (f VideoFormat) MimeType() string {
	switch f {
	case VideoFormatMP4:
		return "video/mp4"
	default:
		return "video/h264"
	}
}

const (
	dayLayout       = "2006-01-02"
	timestampLayout = "2006-01-02_15-04-05"
)

// DayDirName returns the per-day directory name, e.g. 2025-03-01.
func DayDirName(t time.Time) string {
	return t.Format(dayLayout)
}

// ImageFileName returns image_<YYYY-MM-DD_HH-MM-SS>.jpg for t.
func ImageFileName(t time.Time) string {
	return "image_" + t.Format(timestampLayout) + ".jpg"
}

// VideoBaseName returns video_<YYYY-MM-DD_HH-MM-SS> without extension.
func VideoBaseName(t time.Time) string {
	return "video_" + t.Format(timestampLayout)
}

// VideoFileName returns video_<YYYY-MM-DD_HH-MM-SS>.<format> for t.
func VideoFileName(t time.Time, format VideoFormat) string {
	return VideoBaseName(t) + format.Extension()
}
