package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DailyRotatingWriter appends to one log file per local calendar day.
type DailyRotatingWriter struct {
	logDir      string
	filename    string
	currentFile *os.File
	currentDate string
	now         func() time.Time
	mu          sync.Mutex
}

// NewDailyRotatingWriter creates a new daily rotating writer
func NewDailyRotatingWriter(logDir, filename string) *DailyRotatingWriter {
	return &DailyRotatingWriter{
		logDir:   logDir,
		filename: filename,
		now:      time.Now,
	}
}

// Write implements the io.Writer interface
func (w *DailyRotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Use local time, the camera's notion of "today"
	currentDate := w.now().Format("2006-01-02")

	if w.currentFile == nil || w.currentDate != currentDate {
		if err := w.rotate(currentDate); err != nil {
			return 0, err
		}
	}

	return w.currentFile.Write(p)
}

// CurrentPath returns the file currently written to, or "" before the first write.
func (w *DailyRotatingWriter) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}
	return w.currentFile.Name()
}

// rotate closes the current file and opens a new one for the given date
func (w *DailyRotatingWriter) rotate(date string) error {
	if w.currentFile != nil {
		w.currentFile.Close()
	}

	name := fmt.Sprintf("%s-%s.log", w.filename, date)
	path := filepath.Join(w.logDir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	w.currentFile = file
	w.currentDate = date
	return nil
}

// Close closes the current file
func (w *DailyRotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		return err
	}
	return nil
}
