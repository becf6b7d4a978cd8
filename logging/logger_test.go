package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[LogLevel]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewConsoleLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, slog.LevelWarn, true)

	logger.Info("hidden message")
	logger.Warn("visible message", "count", 3)

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Errorf("info record should be filtered at warn level, got %q", out)
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "count=3") {
		t.Errorf("expected warn record with attributes, got %q", out)
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) != NopLogger {
		t.Error("OrNop(nil) should return NopLogger")
	}

	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, slog.LevelInfo, true)
	if OrNop(logger) != Logger(logger) {
		t.Error("OrNop should return the given logger unchanged")
	}
}

func TestDailyRotatingWriter_RotatesOnDayChange(t *testing.T) {
	dir := t.TempDir()
	w := NewDailyRotatingWriter(dir, "fieldcam")
	defer w.Close()

	day := time.Date(2025, 3, 1, 23, 59, 0, 0, time.Local)
	w.now = func() time.Time { return day }

	if _, err := w.Write([]byte("first\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	first := w.CurrentPath()

	day = day.Add(2 * time.Minute)
	if _, err := w.Write([]byte("second\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	second := w.CurrentPath()

	if first == second {
		t.Fatalf("expected a new file after midnight, still writing to %s", first)
	}
	if filepath.Base(first) != "fieldcam-2025-03-01.log" {
		t.Errorf("unexpected first file name %s", filepath.Base(first))
	}
	if filepath.Base(second) != "fieldcam-2025-03-02.log" {
		t.Errorf("unexpected second file name %s", filepath.Base(second))
	}

	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "first\n" {
		t.Errorf("first file content = %q", string(data))
	}
}

func TestDailyRotatingWriter_AppendsWithinDay(t *testing.T) {
	dir := t.TempDir()
	w := NewDailyRotatingWriter(dir, "batch")
	w.now = func() time.Time { return time.Date(2025, 6, 10, 8, 0, 0, 0, time.Local) }

	w.Write([]byte("a\n"))
	w.Write([]byte("b\n"))
	w.Close()

	data, err := os.ReadFile(filepath.Join(dir, "batch-2025-06-10.log"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "a\nb\n" {
		t.Errorf("expected both lines in one file, got %q", string(data))
	}
}
