package filemanagement

import (
	"os"
	"sync"

	"github.com/conservacam/fieldcam/logging"
)

// FileTracker manages file cleanup operations
type FileTracker interface {
	// DeleteFile removes a file from disk
	DeleteFile(filePath string)
}

// LocalFileTracker implements FileTracker for local filesystem
type LocalFileTracker struct {
	logger logging.Logger
	mu     sync.Mutex
}

// NewLocalFileTracker creates a new local file tracker
func NewLocalFileTracker(logger logging.Logger) *LocalFileTracker {
	return &LocalFileTracker{
		logger: logging.OrNop(logger),
	}
}

// DeleteFile removes a file from disk. A file that is already gone is not an error.
func (t *LocalFileTracker) DeleteFile(filePath string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		t.logger.Warn("Failed to remove file", "path", filePath, "error", err)
	} else {
		t.logger.Debug("Deleted file", "path", filePath)
	}
}
