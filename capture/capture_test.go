package capture

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type fakeCamera struct {
	stillCalls int
	videoCalls int
	delay      time.Duration
	err        error
	lastFormat VideoFormat
}

func (f *fakeCamera) CaptureStill(ctx context.Context, directory string, timestamp time.Time) (string, error) {
	f.stillCalls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(directory, ImageFileName(timestamp)), nil
}

func (f *fakeCamera) CaptureVideo(ctx context.Context, directory string, timestamp time.Time, duration time.Duration, format VideoFormat) (string, error) {
	f.videoCalls++
	f.lastFormat = format
	if f.err != nil {
		return "", f.err
	}
	return filepath.Join(directory, VideoFileName(timestamp, format)), nil
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"image", "video"} {
		mode, err := ParseMode(valid)
		if err != nil {
			t.Errorf("ParseMode(%q) returned error: %v", valid, err)
		}
		if string(mode) != valid {
			t.Errorf("ParseMode(%q) = %q", valid, mode)
		}
	}

	for _, invalid := range []string{"", "Image", "still", "audio", "video "} {
		if _, err := ParseMode(invalid); !errors.Is(err, ErrInvalidMode) {
			t.Errorf("ParseMode(%q) error = %v, want ErrInvalidMode", invalid, err)
		}
	}
}

func TestParseVideoFormat(t *testing.T) {
	cases := map[string]VideoFormat{
		"mp4":  VideoFormatMP4,
		".MP4": VideoFormatMP4,
		"h264": VideoFormatH264,
	}
	for in, want := range cases {
		got, err := ParseVideoFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseVideoFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	if _, err := ParseVideoFormat("avi"); err == nil {
		t.Error("expected error for unsupported format avi")
	}
}

func TestFileNames(t *testing.T) {
	ts := time.Date(2025, 3, 7, 9, 5, 3, 999, time.Local)

	if got := DayDirName(ts); got != "2025-03-07" {
		t.Errorf("DayDirName = %s", got)
	}
	if got := ImageFileName(ts); got != "image_2025-03-07_09-05-03.jpg" {
		t.Errorf("ImageFileName = %s", got)
	}
	if got := VideoFileName(ts, VideoFormatH264); got != "video_2025-03-07_09-05-03.h264" {
		t.Errorf("VideoFileName(h264) = %s", got)
	}
	if got := VideoFileName(ts, VideoFormatMP4); got != "video_2025-03-07_09-05-03.mp4" {
		t.Errorf("VideoFileName(mp4) = %s", got)
	}
}

func TestFileNames_UniquePerSecond(t *testing.T) {
	base := time.Date(2025, 3, 7, 23, 59, 58, 0, time.Local)
	seen := make(map[string]bool)

	for i := 0; i < 5; i++ {
		name := ImageFileName(base.Add(time.Duration(i) * time.Second))
		if seen[name] {
			t.Fatalf("duplicate file name %s", name)
		}
		seen[name] = true
	}
}

func TestCapture_DispatchesByMode(t *testing.T) {
	cam := &fakeCamera{}
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)

	item, err := Capture(context.Background(), cam, ModeImage, "day", ts, 0, VideoFormatMP4)
	if err != nil {
		t.Fatalf("Capture(image) failed: %v", err)
	}
	if cam.stillCalls != 1 || cam.videoCalls != 0 {
		t.Errorf("expected one still capture, got still=%d video=%d", cam.stillCalls, cam.videoCalls)
	}
	if item.Path != filepath.Join("day", "image_2025-01-02_03-04-05.jpg") {
		t.Errorf("unexpected image path %s", item.Path)
	}

	item, err = Capture(context.Background(), cam, ModeVideo, "day", ts, 30*time.Second, VideoFormatMP4)
	if err != nil {
		t.Fatalf("Capture(video) failed: %v", err)
	}
	if cam.videoCalls != 1 || cam.lastFormat != VideoFormatMP4 {
		t.Errorf("expected one mp4 video capture, got video=%d format=%s", cam.videoCalls, cam.lastFormat)
	}
	if item.Mode != ModeVideo {
		t.Errorf("expected video media item, got %s", item.Mode)
	}

	if _, err := Capture(context.Background(), cam, Mode("audio"), "day", ts, 0, VideoFormatMP4); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestWithTimeout_ZeroReturnsSameCamera(t *testing.T) {
	cam := &fakeCamera{}
	if WithTimeout(cam, 0) != Camera(cam) {
		t.Error("WithTimeout(0) should not wrap the camera")
	}
}

func TestWithTimeout_ExpiredCaptureIsCaptureError(t *testing.T) {
	cam := WithTimeout(&fakeCamera{delay: 200 * time.Millisecond}, 10*time.Millisecond)

	_, err := cam.CaptureStill(context.Background(), "day", time.Now())
	if !IsCaptureError(err) {
		t.Fatalf("expected CaptureError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
}

func TestWithTimeout_PassesThroughResult(t *testing.T) {
	inner := &fakeCamera{}
	cam := WithTimeout(inner, time.Second)

	path, err := cam.CaptureVideo(context.Background(), "day", time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), time.Second, VideoFormatH264)
	if err != nil {
		t.Fatalf("CaptureVideo failed: %v", err)
	}
	if filepath.Base(path) != "video_2025-01-01_00-00-00.h264" {
		t.Errorf("unexpected path %s", path)
	}

	inner.err = NewCaptureError("capture video", "day", errors.New("device busy"))
	if _, err := cam.CaptureVideo(context.Background(), "day", time.Now(), time.Second, VideoFormatH264); !IsCaptureError(err) {
		t.Errorf("expected inner CaptureError to pass through, got %v", err)
	}
}
